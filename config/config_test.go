//
// Tencent is pleased to support the open source community by making trpc-rag-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-rag-go is licensed under the Apache License Version 2.0.
//
//

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv unsets keys for the duration of the test.
func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

var envKeys = []string{
	"RAGCHAT_ADDR", "RAGCHAT_LOG_LEVEL", "RAGCHAT_DOCUMENTS_DIR", "RAGCHAT_STORAGE_TYPE",
	"RAGCHAT_STORAGE_DSN", "GROQ_API_KEY", "OPENAI_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY",
	"COS_SECRETID", "COS_SECRETKEY", "RAGCHAT_CACHE_ENABLED",
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 120*time.Second, cfg.Documents.MinReloadInterval)
	assert.Equal(t, 5, cfg.Session.Window)
	assert.Equal(t, 30*time.Minute, cfg.Session.Timeout)
	assert.InDelta(t, 0.8, cfg.Model.Temperature, 1e-9)
	assert.Equal(t, "stop", cfg.Chat.StopWord)
	assert.True(t, cfg.Cache.Enabled)
	assert.InDelta(t, 0.9, cfg.Cache.Threshold, 1e-9)
	assert.False(t, cfg.Tracing.Enabled)
}

func TestLoad_YAML(t *testing.T) {
	clearEnv(t, envKeys...)
	path := writeFile(t, "ragchat.yaml", `
server:
  addr: ":8080"
documents:
  dir: /srv/docs
  include: ["*.pdf", "*.docx"]
  min_reload_interval: 90s
embedder:
  type: hash
storage:
  type: redis
  dsn: redis://localhost:6379/0
snapshot:
  type: kv
cache:
  threshold: 0.95
  min_history_turns: 50
  save_interval: 1m
session:
  timeout: 45m
chat:
  retrieval:
    k: 2
    fetch_k: 10
    lambda: 0.7
tracing:
  enabled: true
  endpoint: otel-collector:4318
  insecure: true
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "/srv/docs", cfg.Documents.Dir)
	assert.Equal(t, []string{"*.pdf", "*.docx"}, cfg.Documents.Include)
	assert.Equal(t, 90*time.Second, cfg.Documents.MinReloadInterval)
	assert.Equal(t, 1000, cfg.Documents.ChunkSize)
	assert.Equal(t, EmbedderHash, cfg.Embedder.Type)
	assert.Equal(t, StorageRedis, cfg.Storage.Type)
	assert.Equal(t, SnapshotKV, cfg.Snapshot.Type)
	assert.InDelta(t, 0.95, cfg.Cache.Threshold, 1e-9)
	assert.Equal(t, 50, cfg.Cache.MinHistoryTurns)
	assert.Equal(t, 5, cfg.Cache.FetchK)
	assert.Equal(t, time.Minute, cfg.Cache.SaveInterval)
	assert.Equal(t, 45*time.Minute, cfg.Session.Timeout)
	assert.Equal(t, 2, cfg.Chat.Retrieval.K)
	assert.InDelta(t, 0.7, cfg.Chat.Retrieval.Lambda, 1e-9)
	assert.True(t, cfg.Tracing.Enabled)
	assert.Equal(t, "otel-collector:4318", cfg.Tracing.Endpoint)
	assert.True(t, cfg.Tracing.Insecure)
	assert.False(t, cfg.Metrics.Enabled)
}

func TestLoad_Errors(t *testing.T) {
	clearEnv(t, envKeys...)
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "bad.yaml", "server: ["))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "invalid.yaml", "storage:\n  type: mongo\n"))
	assert.ErrorContains(t, err, "storage.type")
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t, envKeys...)
	t.Setenv("RAGCHAT_DOCUMENTS_DIR", "/env/docs")
	t.Setenv("OPENAI_API_KEY", "sk-openai")
	t.Setenv("COS_SECRETID", "id")
	t.Setenv("RAGCHAT_CACHE_ENABLED", "false")

	envFile := writeFile(t, ".env", "GROQ_API_KEY=gsk-groq\nRAGCHAT_DOCUMENTS_DIR=/dotenv/docs\n")
	cfg, err := Load("", envFile, filepath.Join(t.TempDir(), "absent.env"))
	require.NoError(t, err)
	// Variables already set win over the .env file.
	assert.Equal(t, "/env/docs", cfg.Documents.Dir)
	assert.Equal(t, "gsk-groq", cfg.Model.APIKey)
	assert.Equal(t, "sk-openai", cfg.Embedder.APIKey)
	assert.Equal(t, "id", cfg.Snapshot.COS.SecretID)
	assert.False(t, cfg.Cache.Enabled)

	t.Setenv("RAGCHAT_CACHE_ENABLED", "maybe")
	_, err = Load("")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"addr", func(c *Config) { c.Server.Addr = "" }, "server.addr"},
		{"dir", func(c *Config) { c.Documents.Dir = "" }, "documents.dir"},
		{"overlap", func(c *Config) { c.Documents.ChunkOverlap = 1000 }, "chunk_overlap"},
		{"embedder", func(c *Config) { c.Embedder.Type = "bert" }, "embedder.type"},
		{"dsn", func(c *Config) { c.Storage.Type = StoragePostgres; c.Storage.DSN = "" }, "storage.dsn"},
		{"cos", func(c *Config) { c.Snapshot.Type = SnapshotCOS }, "bucket_url"},
		{"threshold", func(c *Config) { c.Cache.Threshold = 1.5 }, "cache.threshold"},
		{"window", func(c *Config) { c.Session.Window = 0 }, "session.window"},
		{"zone", func(c *Config) { c.Session.TimeZone = "Mars/Olympus" }, "session.time_zone"},
		{"pattern", func(c *Config) { c.Chat.EmailPattern = "(" }, "email_pattern"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}

	cfg := Default()
	cfg.Storage.Type = StorageMemory
	cfg.Storage.DSN = ""
	assert.NoError(t, cfg.Validate())
}
