//
// Tencent is pleased to support the open source community by making trpc-rag-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-rag-go is licensed under the Apache License Version 2.0.
//
//

// Package cos stores vector index snapshots in Tencent Cloud Object Storage.
//
// Credentials are read from COS_SECRETID and COS_SECRETKEY unless given
// through WithSecretID and WithSecretKey.
//
//	store, err := cos.New("https://bucket.cos.region.myqcloud.com")
//	ix, err := vectorstore.Restore(ctx, store)
package cos

import (
	"bytes"
	"context"
	"fmt"
	"io"

	cos "github.com/tencentyun/cos-go-sdk-v5"

	"trpc.group/trpc-go/trpc-rag-go/knowledge/vectorstore"
)

var _ vectorstore.SnapshotStore = (*Store)(nil)

// Store is a vectorstore.SnapshotStore backed by one COS object.
type Store struct {
	client client
	key    string
}

// New creates a COS snapshot store for the bucket at bucketURL.
func New(bucketURL string, opts ...Option) (*Store, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	c, err := buildClient(bucketURL, o)
	if err != nil {
		return nil, fmt.Errorf("cos snapshot store: %w", err)
	}
	return &Store{client: c, key: o.key}, nil
}

// Key returns the object key of the snapshot.
func (s *Store) Key() string { return s.key }

// Save implements vectorstore.SnapshotStore. A COS put replaces the object
// atomically.
func (s *Store) Save(ctx context.Context, data []byte) error {
	if err := s.client.PutObject(ctx, s.key, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("put %s: %w", s.key, err)
	}
	return nil
}

// Load implements vectorstore.SnapshotStore.
func (s *Store) Load(ctx context.Context) ([]byte, error) {
	body, err := s.client.GetObject(ctx, s.key)
	if err != nil {
		if cos.IsNotFoundError(err) {
			return nil, fmt.Errorf("%s: %w", s.key, vectorstore.ErrSnapshotNotFound)
		}
		return nil, fmt.Errorf("get %s: %w", s.key, err)
	}
	defer body.Close()
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.key, err)
	}
	return data, nil
}
