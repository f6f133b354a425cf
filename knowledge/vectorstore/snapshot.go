//
// Tencent is pleased to support the open source community by making trpc-rag-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-rag-go is licensed under the Apache License Version 2.0.
//
//

package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"trpc.group/trpc-go/trpc-rag-go/errs"
	"trpc.group/trpc-go/trpc-rag-go/storage"
)

const snapshotVersion = 1

// ErrSnapshotNotFound is returned by a SnapshotStore holding no snapshot.
var ErrSnapshotNotFound = errors.New("vectorstore: snapshot not found")

// SnapshotStore keeps the durable copy of an index.
type SnapshotStore interface {
	// Save replaces the stored snapshot.
	Save(ctx context.Context, data []byte) error
	// Load returns the stored snapshot, or ErrSnapshotNotFound.
	Load(ctx context.Context) ([]byte, error)
}

type snapshot struct {
	Version   int         `json:"version"`
	Dimension int         `json:"dimension"`
	Fragments []*Fragment `json:"fragments"`
}

// Encode serialises the index as zstd compressed JSON.
func (ix *Index) Encode() ([]byte, error) {
	ix.mu.RLock()
	snap := snapshot{Version: snapshotVersion, Dimension: ix.dimension}
	for _, e := range ix.ordered() {
		snap.Fragments = append(snap.Fragments, e.frag)
	}
	raw, err := json.Marshal(snap)
	ix.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	zw, err := zstd.NewWriter(&buf)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(raw); err != nil {
		zw.Close()
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode rebuilds an index from the output of Encode. Failures match
// errs.ErrIndexLoad.
func Decode(data []byte) (*Index, error) {
	zr, err := zstd.NewReader(nil)
	if err != nil {
		return nil, errs.Wrap(errs.ErrIndexLoad, "decode snapshot", err)
	}
	defer zr.Close()
	raw, err := zr.DecodeAll(data, nil)
	if err != nil {
		return nil, errs.Wrap(errs.ErrIndexLoad, "decode snapshot", err)
	}
	var snap snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, errs.Wrap(errs.ErrIndexLoad, "decode snapshot", err)
	}
	if snap.Version != snapshotVersion {
		return nil, errs.New(errs.ErrIndexLoad, "decode snapshot", "unsupported version %d", snap.Version)
	}
	ix := New()
	ix.dimension = snap.Dimension
	for i, f := range snap.Fragments {
		if f == nil || f.ID == "" {
			return nil, errs.New(errs.ErrIndexLoad, "decode snapshot", "fragment %d has no id", i)
		}
		if len(f.Vector) != snap.Dimension {
			return nil, errs.New(errs.ErrIndexLoad, "decode snapshot", "fragment %s: %v", f.ID, ErrDimensionMismatch)
		}
		if _, dup := ix.entries[f.ID]; dup {
			return nil, errs.New(errs.ErrIndexLoad, "decode snapshot", "duplicate fragment id %s", f.ID)
		}
		ix.add(f)
	}
	return ix, nil
}

// Persist writes the index to store. Failures match errs.ErrIO.
func (ix *Index) Persist(ctx context.Context, store SnapshotStore) error {
	data, err := ix.Encode()
	if err != nil {
		return errs.Wrap(errs.ErrIO, "encode snapshot", err)
	}
	if err := store.Save(ctx, data); err != nil {
		return errs.Wrap(errs.ErrIO, "save snapshot", err)
	}
	return nil
}

// Restore reads an index from store. An absent or corrupt snapshot fails with
// an error matching errs.ErrIndexLoad.
func Restore(ctx context.Context, store SnapshotStore) (*Index, error) {
	data, err := store.Load(ctx)
	if err != nil {
		return nil, errs.Wrap(errs.ErrIndexLoad, "load snapshot", err)
	}
	return Decode(data)
}

// FileSnapshotStore keeps the snapshot in a local file. Saves are atomic.
type FileSnapshotStore struct {
	path string
}

// NewFileSnapshotStore creates a store writing to path.
func NewFileSnapshotStore(path string) *FileSnapshotStore {
	return &FileSnapshotStore{path: path}
}

// Path returns the snapshot file path.
func (s *FileSnapshotStore) Path() string { return s.path }

// Save implements SnapshotStore.
func (s *FileSnapshotStore) Save(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}

// Load implements SnapshotStore.
func (s *FileSnapshotStore) Load(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", s.path, ErrSnapshotNotFound)
	}
	return data, err
}

// KVSnapshotStore keeps the snapshot under one key of a storage.KV, so the
// index can live in the same backend as sessions and fingerprints.
type KVSnapshotStore struct {
	kv  storage.KV
	key string
}

// NewKVSnapshotStore creates a store writing to key of kv.
func NewKVSnapshotStore(kv storage.KV, key string) *KVSnapshotStore {
	return &KVSnapshotStore{kv: kv, key: key}
}

// Save implements SnapshotStore.
func (s *KVSnapshotStore) Save(ctx context.Context, data []byte) error {
	return s.kv.Upsert(ctx, s.key, data)
}

// Load implements SnapshotStore.
func (s *KVSnapshotStore) Load(ctx context.Context) ([]byte, error) {
	data, ok, err := s.kv.Get(ctx, s.key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", s.key, ErrSnapshotNotFound)
	}
	return data, nil
}
