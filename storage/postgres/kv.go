//
// Tencent is pleased to support the open source community by making trpc-rag-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-rag-go is licensed under the Apache License Version 2.0.
//
//

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"

	"trpc.group/trpc-go/trpc-rag-go/errs"
	"trpc.group/trpc-go/trpc-rag-go/storage"
)

const defaultTable = "ragchat_kv"

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

var _ storage.KV = (*KV)(nil)

// KV is a storage.KV stored in a (key, value) table.
type KV struct {
	client Client
	table  string
}

// KVOption configures a KV.
type KVOption func(*kvOptions)

type kvOptions struct {
	connString   string
	instanceName string
	client       Client
	table        string
	skipInit     bool
}

// WithConnString builds the client from a connection string.
func WithConnString(conn string) KVOption {
	return func(o *kvOptions) { o.connString = conn }
}

// WithInstanceName uses the connection string registered under name.
func WithInstanceName(name string) KVOption {
	return func(o *kvOptions) { o.instanceName = name }
}

// WithClient uses an existing client.
func WithClient(c Client) KVOption {
	return func(o *kvOptions) { o.client = c }
}

// WithTable sets the table name. Default "ragchat_kv".
func WithTable(table string) KVOption {
	return func(o *kvOptions) { o.table = table }
}

// WithSkipDBInit skips CREATE TABLE on startup.
func WithSkipDBInit(skip bool) KVOption {
	return func(o *kvOptions) { o.skipInit = skip }
}

// NewKV creates a PostgreSQL KV and ensures its table exists.
func NewKV(ctx context.Context, opts ...KVOption) (*KV, error) {
	o := kvOptions{table: defaultTable}
	for _, opt := range opts {
		opt(&o)
	}
	if !tableNamePattern.MatchString(o.table) {
		return nil, fmt.Errorf("postgres: invalid table name %q", o.table)
	}
	client := o.client
	if client == nil {
		conn := o.connString
		if o.instanceName != "" {
			registered, ok := lookupInstance(o.instanceName)
			if !ok {
				return nil, fmt.Errorf("postgres: instance %s not found", o.instanceName)
			}
			conn = registered
		}
		if conn == "" {
			return nil, errors.New("postgres: one of client, instance name or connection string is required")
		}
		c, err := connect(ctx, conn)
		if err != nil {
			return nil, errs.Wrap(errs.ErrStorage, "postgres connect", err)
		}
		client = c
	}
	kv := &KV{client: client, table: o.table}
	if !o.skipInit {
		if err := kv.init(ctx); err != nil {
			client.Close()
			return nil, err
		}
	}
	return kv, nil
}

func (s *KV) init(ctx context.Context) error {
	q := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	key TEXT PRIMARY KEY,
	value BYTEA NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, s.table)
	if _, err := s.client.ExecContext(ctx, q); err != nil {
		return errs.Wrap(errs.ErrStorage, "postgres create table", err)
	}
	return nil
}

// Get implements storage.KV.
func (s *KV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	q := fmt.Sprintf("SELECT value FROM %s WHERE key = $1", s.table)
	switch err := s.client.QueryRowContext(ctx, q, key).Scan(&value); {
	case errors.Is(err, sql.ErrNoRows):
		return nil, false, nil
	case err != nil:
		return nil, false, errs.Wrap(errs.ErrStorage, "postgres get "+key, err)
	}
	return value, true, nil
}

// Put implements storage.KV.
func (s *KV) Put(ctx context.Context, key string, value []byte) error {
	q := fmt.Sprintf("INSERT INTO %s (key, value) VALUES ($1, $2) ON CONFLICT (key) DO NOTHING", s.table)
	res, err := s.client.ExecContext(ctx, q, key, value)
	if err != nil {
		return errs.Wrap(errs.ErrStorage, "postgres put "+key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errs.Wrap(errs.ErrStorage, "postgres put "+key, err)
	}
	if n == 0 {
		return errs.Wrap(errs.ErrStorage, "postgres put "+key, storage.ErrKeyExists)
	}
	return nil
}

// Upsert implements storage.KV.
func (s *KV) Upsert(ctx context.Context, key string, value []byte) error {
	q := fmt.Sprintf(`INSERT INTO %s (key, value, updated_at) VALUES ($1, $2, now())
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`, s.table)
	if _, err := s.client.ExecContext(ctx, q, key, value); err != nil {
		return errs.Wrap(errs.ErrStorage, "postgres upsert "+key, err)
	}
	return nil
}

// Close implements storage.KV.
func (s *KV) Close() error {
	return s.client.Close()
}
