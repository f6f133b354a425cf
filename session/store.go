//
// Tencent is pleased to support the open source community by making trpc-rag-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-rag-go is licensed under the Apache License Version 2.0.
//
//

package session

import (
	"context"
	"encoding/json"

	"trpc.group/trpc-go/trpc-rag-go/errs"
	"trpc.group/trpc-go/trpc-rag-go/storage"
)

const defaultKeyPrefix = "chat:"

// Persister durably records finished sessions.
type Persister interface {
	Save(ctx context.Context, rec *Record) error
}

// Store persists Records as JSON documents in a storage.KV keyed by chat id.
type Store struct {
	kv     storage.KV
	prefix string
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithKeyPrefix sets the prefix prepended to chat ids. Default "chat:".
func WithKeyPrefix(prefix string) StoreOption {
	return func(s *Store) { s.prefix = prefix }
}

// NewStore creates a Store over kv.
func NewStore(kv storage.KV, opts ...StoreOption) *Store {
	s := &Store{kv: kv, prefix: defaultKeyPrefix}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Save upserts rec. A chat id flushed twice keeps the latest history.
func (s *Store) Save(ctx context.Context, rec *Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return errs.Wrap(errs.ErrStorage, "session save", err)
	}
	return s.kv.Upsert(ctx, s.prefix+rec.ChatID, data)
}

// Load returns the record of chatID. The boolean is false if none was saved.
func (s *Store) Load(ctx context.Context, chatID string) (*Record, bool, error) {
	data, ok, err := s.kv.Get(ctx, s.prefix+chatID)
	if err != nil || !ok {
		return nil, false, err
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, false, errs.Wrap(errs.ErrStorage, "session load", err)
	}
	return &rec, true, nil
}
