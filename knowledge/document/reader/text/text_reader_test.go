//
// Tencent is pleased to support the open source community by making trpc-rag-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-rag-go is licensed under the Apache License Version 2.0.
//
//

package text

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-rag-go/knowledge/document/reader"
)

func TestReader(t *testing.T) {
	r := New()
	assert.Equal(t, "TextReader", r.Name())

	docs, err := r.ReadFromReader("a.txt", strings.NewReader("hello world"))
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "hello world", docs[0].Content)
	assert.Equal(t, "a.txt", docs[0].Name)

	docs, err = r.ReadFromReader("empty.txt", strings.NewReader("  \n "))
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestReader_ReadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("line one\nline two"), 0o644))
	docs, err := New().ReadFromFile(path)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "notes.txt", docs[0].Name)

	_, err = New().ReadFromFile(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}

func TestRegistered(t *testing.T) {
	rd, ok := reader.GetReader(".txt")
	require.True(t, ok)
	assert.Equal(t, "TextReader", rd.Name())
}
