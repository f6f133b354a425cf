//
// Tencent is pleased to support the open source community by making trpc-rag-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-rag-go is licensed under the Apache License Version 2.0.
//
//

// Package sqlite provides a storage.KV backed by an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure Go sqlite driver

	"trpc.group/trpc-go/trpc-rag-go/errs"
	"trpc.group/trpc-go/trpc-rag-go/storage"
)

var _ storage.KV = (*KV)(nil)

// KV is a storage.KV stored in a single SQLite table.
type KV struct {
	db *sql.DB
}

// New opens (creating if needed) the database at path. Use ":memory:" for a
// throwaway database.
func New(ctx context.Context, path string) (*KV, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errs.Wrap(errs.ErrStorage, "sqlite mkdir", err)
		}
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errs.Wrap(errs.ErrStorage, "sqlite open", err)
	}
	// SQLite allows one writer; a single connection also keeps :memory: stable.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	kv := &KV{db: db}
	if err := kv.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return kv, nil
}

func (s *KV) migrate(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS kv (
		key        TEXT PRIMARY KEY,
		value      BLOB NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return errs.Wrap(errs.ErrStorage, "sqlite migrate", err)
	}
	return nil
}

// Get implements storage.KV.
func (s *KV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, "SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errs.Wrap(errs.ErrStorage, "sqlite get "+key, err)
	}
	return value, true, nil
}

// Put implements storage.KV.
func (s *KV) Put(ctx context.Context, key string, value []byte) error {
	res, err := s.db.ExecContext(ctx, "INSERT OR IGNORE INTO kv (key, value) VALUES (?, ?)", key, value)
	if err != nil {
		return errs.Wrap(errs.ErrStorage, "sqlite put "+key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errs.Wrap(errs.ErrStorage, "sqlite put "+key, err)
	}
	if n == 0 {
		return errs.Wrap(errs.ErrStorage, "sqlite put "+key, storage.ErrKeyExists)
	}
	return nil
}

// Upsert implements storage.KV.
func (s *KV) Upsert(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO kv (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`, key, value)
	if err != nil {
		return errs.Wrap(errs.ErrStorage, fmt.Sprintf("sqlite upsert %s", key), err)
	}
	return nil
}

// Close implements storage.KV.
func (s *KV) Close() error {
	return s.db.Close()
}
