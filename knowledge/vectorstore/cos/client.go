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
	"context"
	"io"

	cos "github.com/tencentyun/cos-go-sdk-v5"
)

// client is the subset of the COS API the snapshot store needs.
type client interface {
	PutObject(ctx context.Context, name string, content io.Reader) error
	GetObject(ctx context.Context, name string) (io.ReadCloser, error)
}

type cosClient struct {
	*cos.Client
}

func newCosClient(c *cos.Client) client {
	return &cosClient{Client: c}
}

func (c *cosClient) PutObject(ctx context.Context, name string, content io.Reader) error {
	opt := &cos.ObjectPutOptions{
		ObjectPutHeaderOptions: &cos.ObjectPutHeaderOptions{ContentType: contentType},
	}
	_, err := c.Client.Object.Put(ctx, name, content, opt)
	return err
}

func (c *cosClient) GetObject(ctx context.Context, name string) (io.ReadCloser, error) {
	resp, err := c.Client.Object.Get(ctx, name, nil)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}
