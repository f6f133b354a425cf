//
// Tencent is pleased to support the open source community by making trpc-rag-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-rag-go is licensed under the Apache License Version 2.0.
//
//

// Package redis provides the redis instance registry and a storage.KV backed by redis.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"trpc.group/trpc-go/trpc-rag-go/errs"
	"trpc.group/trpc-go/trpc-rag-go/storage"
)

var redisRegistry = map[string][]ClientBuilderOpt{}

type clientBuilder func(builderOpts ...ClientBuilderOpt) (redis.UniversalClient, error)

var globalBuilder clientBuilder = DefaultClientBuilder

// SetClientBuilder sets the redis client builder.
func SetClientBuilder(builder clientBuilder) {
	globalBuilder = builder
}

// GetClientBuilder gets the redis client builder.
func GetClientBuilder() clientBuilder {
	return globalBuilder
}

// DefaultClientBuilder is the default redis client builder.
func DefaultClientBuilder(builderOpts ...ClientBuilderOpt) (redis.UniversalClient, error) {
	o := &ClientBuilderOpts{}
	for _, opt := range builderOpts {
		opt(o)
	}
	if o.URL == "" {
		return nil, errors.New("redis: url is empty")
	}
	opts, err := redis.ParseURL(o.URL)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url %s: %w", o.URL, err)
	}
	return redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:           []string{opts.Addr},
		DB:              opts.DB,
		Username:        opts.Username,
		Password:        opts.Password,
		ClientName:      opts.ClientName,
		TLSConfig:       opts.TLSConfig,
		MaxRetries:      opts.MaxRetries,
		DialTimeout:     opts.DialTimeout,
		ReadTimeout:     opts.ReadTimeout,
		WriteTimeout:    opts.WriteTimeout,
		PoolSize:        opts.PoolSize,
		MinIdleConns:    opts.MinIdleConns,
		ConnMaxIdleTime: opts.ConnMaxIdleTime,
	}), nil
}

// ClientBuilderOpt is the option for the redis client.
type ClientBuilderOpt func(*ClientBuilderOpts)

// ClientBuilderOpts is the options for the redis client.
type ClientBuilderOpts struct {
	URL string
}

// WithClientBuilderURL sets the redis client url for clientBuilder.
// scheme: redis://<username>:<password>@<host>:<port>/<db>?<options>
func WithClientBuilderURL(url string) ClientBuilderOpt {
	return func(opts *ClientBuilderOpts) {
		opts.URL = url
	}
}

// RegisterRedisInstance registers a redis instance options.
func RegisterRedisInstance(name string, opts ...ClientBuilderOpt) {
	redisRegistry[name] = append(redisRegistry[name], opts...)
}

// GetRedisInstance gets the redis instance options.
func GetRedisInstance(name string) ([]ClientBuilderOpt, bool) {
	opts, ok := redisRegistry[name]
	return opts, ok
}

var _ storage.KV = (*KV)(nil)

// KV is a storage.KV stored as plain redis strings.
type KV struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// KVOption configures a KV.
type KVOption func(*kvOptions)

type kvOptions struct {
	url          string
	instanceName string
	client       redis.UniversalClient
	prefix       string
	ttl          time.Duration
}

// WithURL builds the client from a redis URL.
func WithURL(url string) KVOption {
	return func(o *kvOptions) { o.url = url }
}

// WithInstanceName uses the options registered under name.
func WithInstanceName(name string) KVOption {
	return func(o *kvOptions) { o.instanceName = name }
}

// WithClient uses an existing client.
func WithClient(c redis.UniversalClient) KVOption {
	return func(o *kvOptions) { o.client = c }
}

// WithKeyPrefix namespaces every key.
func WithKeyPrefix(prefix string) KVOption {
	return func(o *kvOptions) { o.prefix = prefix }
}

// WithTTL sets an expiry on written keys. Zero keeps keys forever.
func WithTTL(ttl time.Duration) KVOption {
	return func(o *kvOptions) { o.ttl = ttl }
}

// NewKV creates a redis KV. Client selection order: WithClient,
// WithInstanceName, WithURL.
func NewKV(opts ...KVOption) (*KV, error) {
	o := kvOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	client := o.client
	if client == nil {
		var builderOpts []ClientBuilderOpt
		switch {
		case o.instanceName != "":
			registered, ok := GetRedisInstance(o.instanceName)
			if !ok {
				return nil, fmt.Errorf("redis: instance %s not found", o.instanceName)
			}
			builderOpts = registered
		case o.url != "":
			builderOpts = []ClientBuilderOpt{WithClientBuilderURL(o.url)}
		default:
			return nil, errors.New("redis: one of client, instance name or url is required")
		}
		c, err := GetClientBuilder()(builderOpts...)
		if err != nil {
			return nil, err
		}
		client = c
	}
	return &KV{client: client, prefix: o.prefix, ttl: o.ttl}, nil
}

func (s *KV) key(k string) string {
	return s.prefix + k
}

// Get implements storage.KV.
func (s *KV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errs.Wrap(errs.ErrStorage, "redis get "+key, err)
	}
	return v, true, nil
}

// Put implements storage.KV using SETNX.
func (s *KV) Put(ctx context.Context, key string, value []byte) error {
	ok, err := s.client.SetNX(ctx, s.key(key), value, s.ttl).Result()
	if err != nil {
		return errs.Wrap(errs.ErrStorage, "redis put "+key, err)
	}
	if !ok {
		return errs.Wrap(errs.ErrStorage, "redis put "+key, storage.ErrKeyExists)
	}
	return nil
}

// Upsert implements storage.KV.
func (s *KV) Upsert(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, s.key(key), value, s.ttl).Err(); err != nil {
		return errs.Wrap(errs.ErrStorage, "redis upsert "+key, err)
	}
	return nil
}

// Close implements storage.KV.
func (s *KV) Close() error {
	return s.client.Close()
}
