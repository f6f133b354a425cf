//
// Tencent is pleased to support the open source community by making trpc-rag-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-rag-go is licensed under the Apache License Version 2.0.
//
//

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-rag-go/config"
	"trpc.group/trpc-go/trpc-rag-go/knowledge/lifecycle"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "ragchat "+version+"\n", out)
}

func TestIndex(t *testing.T) {
	for _, k := range []string{"RAGCHAT_DOCUMENTS_DIR", "RAGCHAT_STORAGE_TYPE", "RAGCHAT_STORAGE_DSN", "RAGCHAT_LOG_LEVEL"} {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
	dir := t.TempDir()
	docs := filepath.Join(dir, "docs")
	require.NoError(t, os.MkdirAll(docs, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(docs, "syllabus.txt"),
		[]byte("Quiz 2 covers weeks five to eight. The end term exam is in person."), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(docs, "grading.txt"),
		[]byte("The final score is weighted across assignments, quizzes and the end term."), 0o644))

	cfgPath := filepath.Join(dir, "ragchat.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(fmt.Sprintf(`
log:
  level: error
documents:
  dir: %q
embedder:
  type: hash
  dimensions: 32
storage:
  type: bolt
  dsn: %q
snapshot:
  type: file
  path: %q
`, docs, filepath.Join(dir, "ragchat.bolt"), filepath.Join(dir, "index.snapshot.zst"))), 0o644))
	args := []string{"--config", cfgPath, "--env", filepath.Join(dir, "missing.env"), "index"}

	out, err := execute(t, args...)
	require.NoError(t, err)
	var first lifecycle.Stats
	require.NoError(t, json.Unmarshal([]byte(out), &first))
	assert.Equal(t, lifecycle.StateReady, first.State)
	assert.Equal(t, lifecycle.TransitionRebuild, first.LastTransition)
	assert.Equal(t, 2, first.TrackedFiles)
	assert.Positive(t, first.Fragments)
	assert.Empty(t, first.LastError)
	assert.FileExists(t, filepath.Join(dir, "index.snapshot.zst"))

	out, err = execute(t, args...)
	require.NoError(t, err)
	var second lifecycle.Stats
	require.NoError(t, json.Unmarshal([]byte(out), &second))
	assert.Equal(t, lifecycle.TransitionRestore, second.LastTransition)
	assert.Equal(t, first.Fragments, second.Fragments)
}

func TestIndex_InvalidConfig(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "ragchat.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("embedder:\n  type: word2vec\n"), 0o644))
	_, err := execute(t, "--config", cfgPath, "index")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "word2vec")
}

func TestOpenKV_Unknown(t *testing.T) {
	_, err := openKV(t.Context(), config.StorageConfig{Type: "etcd"})
	require.Error(t, err)
}
