//
// Tencent is pleased to support the open source community by making trpc-rag-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-rag-go is licensed under the Apache License Version 2.0.
//
//

package cos

import (
	"net/http"
	"net/url"
	"os"
	"time"

	cos "github.com/tencentyun/cos-go-sdk-v5"
)

const (
	defaultTimeout = 60 * time.Second
	defaultKey     = "ragchat/index.snapshot.zst"
	contentType    = "application/zstd"

	// SecretIDEnv is the environment variable holding the COS secret id.
	SecretIDEnv = "COS_SECRETID"
	// SecretKeyEnv is the environment variable holding the COS secret key.
	SecretKeyEnv = "COS_SECRETKEY"
)

// Option configures the snapshot store.
type Option func(*options)

type options struct {
	client     client
	httpClient *http.Client
	timeout    time.Duration
	secretID   string
	secretKey  string
	key        string
}

// WithClient sets the COS client directly. It takes precedence over the
// credential and HTTP options.
func WithClient(c *cos.Client) Option {
	return func(o *options) { o.client = newCosClient(c) }
}

// WithHTTPClient sets the HTTP client used for COS requests.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithTimeout sets the HTTP timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(o *options) { o.timeout = timeout }
}

// WithSecretID sets the secret id. Default COS_SECRETID.
func WithSecretID(id string) Option {
	return func(o *options) { o.secretID = id }
}

// WithSecretKey sets the secret key. Default COS_SECRETKEY.
func WithSecretKey(key string) Option {
	return func(o *options) { o.secretKey = key }
}

// WithKey sets the object key of the snapshot.
func WithKey(key string) Option {
	return func(o *options) {
		if key != "" {
			o.key = key
		}
	}
}

func buildClient(bucketURL string, o *options) (client, error) {
	if o.client != nil {
		return o.client, nil
	}
	u, err := url.Parse(bucketURL)
	if err != nil {
		return nil, err
	}
	httpClient := o.httpClient
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: &cos.AuthorizationTransport{
				SecretID:  o.secretID,
				SecretKey: o.secretKey,
			},
		}
	}
	if o.timeout > 0 {
		httpClient.Timeout = o.timeout
	}
	return newCosClient(cos.NewClient(&cos.BaseURL{BucketURL: u}, httpClient)), nil
}

func defaultOptions() *options {
	return &options{
		timeout:   defaultTimeout,
		secretID:  os.Getenv(SecretIDEnv),
		secretKey: os.Getenv(SecretKeyEnv),
		key:       defaultKey,
	}
}
