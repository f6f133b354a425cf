//
// Tencent is pleased to support the open source community by making trpc-rag-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-rag-go is licensed under the Apache License Version 2.0.
//
//

// Package config loads the ragchat service configuration from YAML, .env
// files and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"trpc.group/trpc-go/trpc-rag-go/chat"
	"trpc.group/trpc-go/trpc-rag-go/knowledge/semcache"
	modelopenai "trpc.group/trpc-go/trpc-rag-go/model/openai"
	"trpc.group/trpc-go/trpc-rag-go/session"
)

// Backend names.
const (
	StorageMemory   = "memory"
	StorageSQLite   = "sqlite"
	StorageBolt     = "bolt"
	StorageRedis    = "redis"
	StoragePostgres = "postgres"

	SnapshotFile = "file"
	SnapshotKV   = "kv"
	SnapshotCOS  = "cos"

	EmbedderOpenAI = "openai"
	EmbedderGemini = "gemini"
	EmbedderHash   = "hash"
)

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DocumentsConfig configures the indexed document directory.
type DocumentsConfig struct {
	Dir               string        `yaml:"dir"`
	Include           []string      `yaml:"include"`
	Exclude           []string      `yaml:"exclude"`
	Recursive         bool          `yaml:"recursive"`
	ChunkSize         int           `yaml:"chunk_size"`
	ChunkOverlap      int           `yaml:"chunk_overlap"`
	PruneDeleted      bool          `yaml:"prune_deleted"`
	MinReloadInterval time.Duration `yaml:"min_reload_interval"`
	EmbedConcurrency  int           `yaml:"embed_concurrency"`
	Watch             bool          `yaml:"watch"`
	WatchDebounce     time.Duration `yaml:"watch_debounce"`
}

// EmbedderConfig selects the embedding provider.
type EmbedderConfig struct {
	Type       string `yaml:"type"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	BaseURL    string `yaml:"base_url"`
	APIKey     string `yaml:"api_key"`
}

// ModelConfig configures the chat language model.
type ModelConfig struct {
	Name         string        `yaml:"name"`
	BaseURL      string        `yaml:"base_url"`
	APIKey       string        `yaml:"api_key"`
	Temperature  float64       `yaml:"temperature"`
	MaxTokens    int           `yaml:"max_tokens"`
	Timeout      time.Duration `yaml:"timeout"`
	SystemPrompt string        `yaml:"system_prompt"`
}

// StorageConfig selects the key-value backend. DSN is a file path for
// sqlite and bolt, a redis:// URL or a PostgreSQL connection string.
type StorageConfig struct {
	Type string `yaml:"type"`
	DSN  string `yaml:"dsn"`
}

// COSConfig locates snapshots in Tencent Cloud COS.
type COSConfig struct {
	BucketURL string `yaml:"bucket_url"`
	SecretID  string `yaml:"secret_id"`
	SecretKey string `yaml:"secret_key"`
}

// SnapshotConfig selects where index snapshots are kept. Path is used by the
// file backend, Key by the kv and cos backends.
type SnapshotConfig struct {
	Type      string    `yaml:"type"`
	Path      string    `yaml:"path"`
	Key       string    `yaml:"key"`
	CachePath string    `yaml:"cache_path"`
	CacheKey  string    `yaml:"cache_key"`
	COS       COSConfig `yaml:"cos"`
}

// CacheConfig configures the semantic answer cache.
type CacheConfig struct {
	semcache.Config `yaml:",inline"`
	SaveInterval    time.Duration `yaml:"save_interval"`
}

// SessionConfig configures chat sessions.
type SessionConfig struct {
	Window          int           `yaml:"window"`
	Timeout         time.Duration `yaml:"timeout"`
	TimeZone        string        `yaml:"time_zone"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// ChatConfig configures request handling.
type ChatConfig struct {
	EmailPattern string               `yaml:"email_pattern"`
	AllowList    []string             `yaml:"allow_list"`
	StopWord     string               `yaml:"stop_word"`
	Retrieval    chat.RetrievalConfig `yaml:"retrieval"`
}

// MetricsConfig configures the OTLP metric exporter.
type MetricsConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Endpoint string        `yaml:"endpoint"`
	Insecure bool          `yaml:"insecure"`
	Interval time.Duration `yaml:"interval"`
}

// TracingConfig configures the OTLP trace exporter.
type TracingConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
	Insecure bool   `yaml:"insecure"`
}

// Config is the root configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Documents DocumentsConfig `yaml:"documents"`
	Embedder  EmbedderConfig  `yaml:"embedder"`
	Model     ModelConfig     `yaml:"model"`
	Storage   StorageConfig   `yaml:"storage"`
	Snapshot  SnapshotConfig  `yaml:"snapshot"`
	Cache     CacheConfig     `yaml:"cache"`
	Session   SessionConfig   `yaml:"session"`
	Chat      ChatConfig      `yaml:"chat"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Tracing   TracingConfig   `yaml:"tracing"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":5000",
			AllowedOrigins:  []string{"*"},
			ShutdownTimeout: 10 * time.Second,
		},
		Log: LogConfig{Level: "info", Format: "console"},
		Documents: DocumentsConfig{
			Dir:               "data",
			Recursive:         true,
			ChunkSize:         1000,
			ChunkOverlap:      200,
			MinReloadInterval: 120 * time.Second,
			EmbedConcurrency:  4,
			WatchDebounce:     2 * time.Second,
		},
		Embedder: EmbedderConfig{Type: EmbedderOpenAI},
		Model: ModelConfig{
			Name:        "llama3-8b-8192",
			BaseURL:     modelopenai.GroqBaseURL,
			Temperature: chat.DefaultTemperature,
			Timeout:     chat.DefaultCallTimeout,
		},
		Storage: StorageConfig{Type: StorageSQLite, DSN: "ragchat.db"},
		Snapshot: SnapshotConfig{
			Type:      SnapshotFile,
			Path:      "index.snapshot.zst",
			Key:       "ragchat/index.snapshot.zst",
			CachePath: "cache.snapshot.zst",
			CacheKey:  "ragchat/cache.snapshot.zst",
		},
		Cache: CacheConfig{Config: semcache.DefaultConfig(), SaveInterval: 5 * time.Minute},
		Session: SessionConfig{
			Window:          session.DefaultWindow,
			Timeout:         session.DefaultTimeout,
			TimeZone:        session.DefaultTimeZone,
			CleanupInterval: time.Minute,
		},
		Chat: ChatConfig{
			EmailPattern: chat.DefaultEmailPattern,
			AllowList:    append([]string(nil), chat.DefaultAllowList...),
			StopWord:     chat.DefaultStopWord,
			Retrieval:    chat.DefaultRetrievalConfig(),
		},
		Metrics: MetricsConfig{Interval: time.Minute},
	}
}

// Load returns the defaults overlaid with the YAML file at path, the given
// .env files and the environment. An empty path skips the file; missing
// .env files are ignored.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := loadEnvFiles(envFiles...); err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadEnvFiles(files ...string) error {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load env file %s: %w", f, err)
		}
	}
	return nil
}

func (c *Config) applyEnv() error {
	setString := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v := os.Getenv(k); v != "" {
				*dst = v
				return
			}
		}
	}
	setString(&c.Server.Addr, "RAGCHAT_ADDR")
	setString(&c.Log.Level, "RAGCHAT_LOG_LEVEL")
	setString(&c.Documents.Dir, "RAGCHAT_DOCUMENTS_DIR")
	setString(&c.Storage.Type, "RAGCHAT_STORAGE_TYPE")
	setString(&c.Storage.DSN, "RAGCHAT_STORAGE_DSN")
	setString(&c.Model.APIKey, "GROQ_API_KEY", "OPENAI_API_KEY")
	switch c.Embedder.Type {
	case EmbedderOpenAI:
		setString(&c.Embedder.APIKey, "OPENAI_API_KEY")
	case EmbedderGemini:
		setString(&c.Embedder.APIKey, "GEMINI_API_KEY", "GOOGLE_API_KEY")
	}
	setString(&c.Snapshot.COS.SecretID, "COS_SECRETID")
	setString(&c.Snapshot.COS.SecretKey, "COS_SECRETKEY")
	if v := os.Getenv("RAGCHAT_CACHE_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("RAGCHAT_CACHE_ENABLED: %w", err)
		}
		c.Cache.Enabled = b
	}
	return nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return errors.New("server.addr is required")
	}
	if c.Documents.Dir == "" {
		return errors.New("documents.dir is required")
	}
	if c.Documents.ChunkSize <= 0 {
		return fmt.Errorf("documents.chunk_size must be positive, got %d", c.Documents.ChunkSize)
	}
	if c.Documents.ChunkOverlap < 0 || c.Documents.ChunkOverlap >= c.Documents.ChunkSize {
		return fmt.Errorf("documents.chunk_overlap must be in [0, %d), got %d",
			c.Documents.ChunkSize, c.Documents.ChunkOverlap)
	}
	switch c.Embedder.Type {
	case EmbedderOpenAI, EmbedderGemini, EmbedderHash:
	default:
		return fmt.Errorf("unknown embedder.type %q", c.Embedder.Type)
	}
	if c.Model.Name == "" {
		return errors.New("model.name is required")
	}
	switch c.Storage.Type {
	case StorageMemory:
	case StorageSQLite, StorageBolt, StorageRedis, StoragePostgres:
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required for %s", c.Storage.Type)
		}
	default:
		return fmt.Errorf("unknown storage.type %q", c.Storage.Type)
	}
	switch c.Snapshot.Type {
	case SnapshotFile:
		if c.Snapshot.Path == "" {
			return errors.New("snapshot.path is required for file snapshots")
		}
	case SnapshotKV:
		if c.Snapshot.Key == "" {
			return errors.New("snapshot.key is required for kv snapshots")
		}
	case SnapshotCOS:
		if c.Snapshot.COS.BucketURL == "" {
			return errors.New("snapshot.cos.bucket_url is required for cos snapshots")
		}
	default:
		return fmt.Errorf("unknown snapshot.type %q", c.Snapshot.Type)
	}
	if t := c.Cache.Threshold; t < 0 || t > 1 {
		return fmt.Errorf("cache.threshold must be in [0, 1], got %v", t)
	}
	if c.Session.Window <= 0 {
		return fmt.Errorf("session.window must be positive, got %d", c.Session.Window)
	}
	if c.Session.Timeout <= 0 {
		return fmt.Errorf("session.timeout must be positive, got %s", c.Session.Timeout)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if _, err := regexp.Compile(c.Chat.EmailPattern); err != nil {
		return fmt.Errorf("chat.email_pattern: %w", err)
	}
	return nil
}

// Location returns the session time zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Session.TimeZone == "" || c.Session.TimeZone == session.DefaultTimeZone {
		return session.DefaultLocation(), nil
	}
	loc, err := time.LoadLocation(c.Session.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("session.time_zone: %w", err)
	}
	return loc, nil
}
