//
// Tencent is pleased to support the open source community by making trpc-rag-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-rag-go is licensed under the Apache License Version 2.0.
//
//

package fingerprint

import (
	"context"
	"encoding/json"

	"trpc.group/trpc-go/trpc-rag-go/errs"
	"trpc.group/trpc-go/trpc-rag-go/storage"
)

const defaultKey = "fingerprints"

// Store persists a Table as one JSON document in a storage.KV.
type Store struct {
	kv  storage.KV
	key string
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithKey sets the KV key. Default "fingerprints".
func WithKey(key string) StoreOption {
	return func(s *Store) { s.key = key }
}

// NewStore creates a Store over kv.
func NewStore(kv storage.KV, opts ...StoreOption) *Store {
	s := &Store{kv: kv, key: defaultKey}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load returns the stored table, or an empty one when nothing is stored.
func (s *Store) Load(ctx context.Context) (Table, error) {
	raw, ok, err := s.kv.Get(ctx, s.key)
	if err != nil {
		return nil, err
	}
	t := make(Table)
	if !ok {
		return t, nil
	}
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, errs.Wrap(errs.ErrStorage, "fingerprint decode", err)
	}
	return t, nil
}

// Save replaces the stored table.
func (s *Store) Save(ctx context.Context, t Table) error {
	raw, err := json.Marshal(t)
	if err != nil {
		return errs.Wrap(errs.ErrStorage, "fingerprint encode", err)
	}
	return s.kv.Upsert(ctx, s.key, raw)
}
