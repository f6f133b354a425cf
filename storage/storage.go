//
// Tencent is pleased to support the open source community by making trpc-rag-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-rag-go is licensed under the Apache License Version 2.0.
//
//

// Package storage defines the key-value persistence contract used for
// fingerprints, chat histories and other small durable records.
package storage

import (
	"context"
	"errors"
)

// ErrKeyExists is returned by Put when the key is already present.
var ErrKeyExists = errors.New("storage: key already exists")

// KV is a durable key-value store. All failures match errs.ErrStorage.
type KV interface {
	// Get returns the value for key. The boolean reports whether the key exists;
	// an absent key is not an error.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Put inserts a new key. It fails with ErrKeyExists if the key is present.
	Put(ctx context.Context, key string, value []byte) error
	// Upsert inserts the key or replaces its value.
	Upsert(ctx context.Context, key string, value []byte) error
	// Close releases the underlying resources.
	Close() error
}
