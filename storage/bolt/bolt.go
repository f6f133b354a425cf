//
// Tencent is pleased to support the open source community by making trpc-rag-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-rag-go is licensed under the Apache License Version 2.0.
//
//

// Package bolt provides a storage.KV backed by a bbolt file.
package bolt

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"trpc.group/trpc-go/trpc-rag-go/errs"
	"trpc.group/trpc-go/trpc-rag-go/storage"
)

var bucketKV = []byte("kv")

var _ storage.KV = (*KV)(nil)

// KV stores all keys in one bucket.
type KV struct {
	db *bbolt.DB
}

// New opens the bbolt file at path.
func New(path string) (*KV, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errs.Wrap(errs.ErrStorage, "bolt mkdir", err)
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, errs.Wrap(errs.ErrStorage, "bolt open", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketKV)
		return err
	})
	if err != nil {
		db.Close()
		return nil, errs.Wrap(errs.ErrStorage, "bolt create bucket", err)
	}
	return &KV{db: db}, nil
}

// Get implements storage.KV.
func (s *KV) Get(_ context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket(bucketKV).Get([]byte(key)); v != nil {
			value = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, false, errs.Wrap(errs.ErrStorage, "bolt get "+key, err)
	}
	return value, value != nil, nil
}

// Put implements storage.KV.
func (s *KV) Put(_ context.Context, key string, value []byte) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketKV)
		if b.Get([]byte(key)) != nil {
			return storage.ErrKeyExists
		}
		return b.Put([]byte(key), value)
	})
	return errs.Wrap(errs.ErrStorage, "bolt put "+key, err)
}

// Upsert implements storage.KV.
func (s *KV) Upsert(_ context.Context, key string, value []byte) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketKV).Put([]byte(key), value)
	})
	return errs.Wrap(errs.ErrStorage, "bolt upsert "+key, err)
}

// Close implements storage.KV.
func (s *KV) Close() error {
	return s.db.Close()
}
