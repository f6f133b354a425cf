//
// Tencent is pleased to support the open source community by making trpc-rag-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-rag-go is licensed under the Apache License Version 2.0.
//
//

// Package inmemory provides a process local storage.KV.
package inmemory

import (
	"context"
	"sync"

	"trpc.group/trpc-go/trpc-rag-go/errs"
	"trpc.group/trpc-go/trpc-rag-go/storage"
)

var _ storage.KV = (*KV)(nil)

// KV is a map backed storage.KV. It is safe for concurrent use.
type KV struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// New creates an empty in-memory KV.
func New() *KV {
	return &KV{data: make(map[string][]byte)}
}

// Get implements storage.KV.
func (s *KV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, errs.Wrap(errs.ErrStorage, "inmemory get", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

// Put implements storage.KV.
func (s *KV) Put(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return errs.Wrap(errs.ErrStorage, "inmemory put", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[key]; ok {
		return errs.Wrap(errs.ErrStorage, "inmemory put "+key, storage.ErrKeyExists)
	}
	s.data[key] = append([]byte(nil), value...)
	return nil
}

// Upsert implements storage.KV.
func (s *KV) Upsert(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return errs.Wrap(errs.ErrStorage, "inmemory upsert", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = append([]byte(nil), value...)
	return nil
}

// Close implements storage.KV.
func (s *KV) Close() error { return nil }
