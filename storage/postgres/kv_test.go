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
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-rag-go/errs"
	"trpc.group/trpc-go/trpc-rag-go/storage"
)

func TestSetOpener(t *testing.T) {
	var got string
	prev := SetOpener(func(ctx context.Context, conn string) (Client, error) {
		got = conn
		return nil, errors.New("unreachable")
	})
	defer SetOpener(prev)

	_, err := NewKV(context.Background(), WithConnString("postgres://localhost:5432/test"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrStorage))
	assert.Equal(t, "postgres://localhost:5432/test", got)
}

func TestOpen_EmptyConnString(t *testing.T) {
	_, err := open(context.Background(), "")
	require.EqualError(t, err, "postgres: connection string is empty")
}

func TestRegisterInstance(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS ragchat_kv").WillReturnResult(sqlmock.NewResult(0, 0))

	var got string
	prev := SetOpener(func(ctx context.Context, conn string) (Client, error) {
		got = conn
		return db, nil
	})
	defer SetOpener(prev)

	RegisterInstance("main", "postgres://u:p@localhost/db")
	_, err = NewKV(context.Background(), WithInstanceName("main"))
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@localhost/db", got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func newMockKV(t *testing.T) (*KV, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS ragchat_kv")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	kv, err := NewKV(context.Background(), WithClient(db))
	require.NoError(t, err)
	return kv, mock
}

func TestKV_Get(t *testing.T) {
	kv, mock := newMockKV(t)
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT value FROM ragchat_kv WHERE key = $1")).
		WithArgs("present").
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow([]byte("v")))
	v, ok, err := kv.Get(ctx, "present")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", string(v))

	mock.ExpectQuery(regexp.QuoteMeta("SELECT value FROM ragchat_kv WHERE key = $1")).
		WithArgs("absent").
		WillReturnRows(sqlmock.NewRows([]string{"value"}))
	_, ok, err = kv.Get(ctx, "absent")
	require.NoError(t, err)
	assert.False(t, ok)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT value FROM ragchat_kv")).
		WillReturnError(errors.New("connection reset"))
	_, _, err = kv.Get(ctx, "boom")
	assert.True(t, errors.Is(err, errs.ErrStorage))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestKV_PutAndUpsert(t *testing.T) {
	kv, mock := newMockKV(t)
	ctx := context.Background()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO ragchat_kv (key, value) VALUES ($1, $2) ON CONFLICT (key) DO NOTHING")).
		WithArgs("k", []byte("v")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, kv.Put(ctx, "k", []byte("v")))

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO ragchat_kv (key, value) VALUES")).
		WithArgs("k", []byte("v2")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := kv.Put(ctx, "k", []byte("v2"))
	assert.True(t, errors.Is(err, storage.ErrKeyExists))
	assert.True(t, errors.Is(err, errs.ErrStorage))

	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value")).
		WithArgs("k", []byte("v3")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, kv.Upsert(ctx, "k", []byte("v3")))

	mock.ExpectClose()
	require.NoError(t, kv.Close())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewKV_Validation(t *testing.T) {
	_, err := NewKV(context.Background(), WithTable("bad;name"))
	require.Error(t, err)

	_, err = NewKV(context.Background())
	require.Error(t, err)

	_, err = NewKV(context.Background(), WithInstanceName("missing"))
	require.EqualError(t, err, "postgres: instance missing not found")

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	mock.ExpectExec("CREATE TABLE").WillReturnError(errors.New("permission denied"))
	mock.ExpectClose()
	_, err = NewKV(context.Background(), WithClient(db))
	assert.True(t, errors.Is(err, errs.ErrStorage))
	require.NoError(t, mock.ExpectationsWereMet())
}
