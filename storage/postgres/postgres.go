//
// Tencent is pleased to support the open source community by making trpc-rag-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-rag-go is licensed under the Apache License Version 2.0.
//
//

// Package postgres provides a storage.KV backed by a PostgreSQL table.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
)

// Client is the part of *sql.DB the KV uses.
type Client interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	Close() error
}

var _ Client = (*sql.DB)(nil)

// Opener connects to a database.
type Opener func(ctx context.Context, connString string) (Client, error)

var (
	mu        sync.RWMutex
	opener    Opener = open
	instances        = map[string]string{}
)

// SetOpener replaces how connection strings are turned into clients and
// returns the previous Opener.
func SetOpener(o Opener) Opener {
	mu.Lock()
	defer mu.Unlock()
	prev := opener
	opener = o
	return prev
}

// RegisterInstance names a connection string for WithInstanceName.
func RegisterInstance(name, connString string) {
	mu.Lock()
	defer mu.Unlock()
	instances[name] = connString
}

func lookupInstance(name string) (string, bool) {
	mu.RLock()
	defer mu.RUnlock()
	conn, ok := instances[name]
	return conn, ok
}

func connect(ctx context.Context, connString string) (Client, error) {
	mu.RLock()
	o := opener
	mu.RUnlock()
	return o(ctx, connString)
}

// open dials through pgx and checks the server is reachable.
func open(ctx context.Context, connString string) (Client, error) {
	if connString == "" {
		return nil, errors.New("postgres: connection string is empty")
	}
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	db.SetMaxOpenConns(8)
	db.SetConnMaxIdleTime(5 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return db, nil
}
