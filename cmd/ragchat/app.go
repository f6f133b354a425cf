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
	"context"
	"errors"
	"fmt"

	"trpc.group/trpc-go/trpc-rag-go/chat"
	"trpc.group/trpc-go/trpc-rag-go/config"
	"trpc.group/trpc-go/trpc-rag-go/knowledge/chunking"
	"trpc.group/trpc-go/trpc-rag-go/knowledge/embedder"
	"trpc.group/trpc-go/trpc-rag-go/knowledge/embedder/gemini"
	"trpc.group/trpc-go/trpc-rag-go/knowledge/embedder/hash"
	embopenai "trpc.group/trpc-go/trpc-rag-go/knowledge/embedder/openai"
	"trpc.group/trpc-go/trpc-rag-go/knowledge/extract"
	"trpc.group/trpc-go/trpc-rag-go/knowledge/fingerprint"
	"trpc.group/trpc-go/trpc-rag-go/knowledge/lifecycle"
	"trpc.group/trpc-go/trpc-rag-go/knowledge/semcache"
	"trpc.group/trpc-go/trpc-rag-go/knowledge/vectorstore"
	"trpc.group/trpc-go/trpc-rag-go/knowledge/vectorstore/cos"
	"trpc.group/trpc-go/trpc-rag-go/log"
	modelopenai "trpc.group/trpc-go/trpc-rag-go/model/openai"
	"trpc.group/trpc-go/trpc-rag-go/model/tiktoken"
	"trpc.group/trpc-go/trpc-rag-go/session"
	"trpc.group/trpc-go/trpc-rag-go/storage"
	"trpc.group/trpc-go/trpc-rag-go/storage/bolt"
	"trpc.group/trpc-go/trpc-rag-go/storage/inmemory"
	"trpc.group/trpc-go/trpc-rag-go/storage/postgres"
	"trpc.group/trpc-go/trpc-rag-go/storage/redis"
	"trpc.group/trpc-go/trpc-rag-go/storage/sqlite"
)

// app holds the wired components of the service.
type app struct {
	cfg      *config.Config
	kv       storage.KV
	embedder embedder.Embedder
	index    *lifecycle.Manager
	cache    *semcache.Cache
	sessions *session.Manager
	chat     *chat.Service
}

// newIndexApp wires the components needed to maintain the document index.
func newIndexApp(ctx context.Context, cfg *config.Config) (*app, error) {
	kv, err := openKV(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, kv: kv}
	if err := a.initIndex(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

// newApp wires every component of the chat service.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a, err := newIndexApp(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := a.initChat(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) initIndex(ctx context.Context) error {
	emb, err := newEmbedder(ctx, a.cfg.Embedder)
	if err != nil {
		return err
	}
	a.embedder = emb

	snapshots, err := newSnapshotStore(a.cfg.Snapshot, a.kv, a.cfg.Snapshot.Path, a.cfg.Snapshot.Key)
	if err != nil {
		return err
	}
	docs := a.cfg.Documents
	tracker, err := fingerprint.NewTracker(
		fingerprint.WithInclude(docs.Include...),
		fingerprint.WithExclude(docs.Exclude...),
		fingerprint.WithRecursive(docs.Recursive),
	)
	if err != nil {
		return err
	}
	extractor := extract.New(
		extract.WithChunking(chunking.NewFixedSizeChunking(
			chunking.WithChunkSize(docs.ChunkSize),
			chunking.WithOverlap(docs.ChunkOverlap),
		)),
	)
	a.index, err = lifecycle.New(docs.Dir, emb, snapshots, fingerprint.NewStore(a.kv),
		lifecycle.WithTracker(tracker),
		lifecycle.WithExtractor(extractor),
		lifecycle.WithMinReloadInterval(docs.MinReloadInterval),
		lifecycle.WithPruneDeleted(docs.PruneDeleted),
		lifecycle.WithEmbedConcurrency(docs.EmbedConcurrency),
	)
	return err
}

func (a *app) initChat(ctx context.Context) error {
	cfg := a.cfg
	cacheSnapshots, err := newSnapshotStore(cfg.Snapshot, a.kv, cfg.Snapshot.CachePath, cfg.Snapshot.CacheKey)
	if err != nil {
		return err
	}
	a.cache = semcache.New(a.embedder,
		semcache.WithConfig(cfg.Cache.Config),
		semcache.WithSnapshotStore(cacheSnapshots),
	)
	if err := a.cache.Load(ctx); err != nil {
		log.Warnf("semantic cache snapshot unusable, starting empty: %v", err)
	}

	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	a.sessions = session.NewManager(session.NewStore(a.kv),
		session.WithWindow(cfg.Session.Window),
		session.WithTimeout(cfg.Session.Timeout),
		session.WithLocation(loc),
	)

	validator, err := chat.NewEmailValidator(cfg.Chat.EmailPattern, cfg.Chat.AllowList)
	if err != nil {
		return err
	}
	counter, err := tiktoken.New(cfg.Model.Name)
	if err != nil {
		return err
	}
	llm := modelopenai.New(cfg.Model.Name,
		modelopenai.WithBaseURL(cfg.Model.BaseURL),
		modelopenai.WithAPIKey(cfg.Model.APIKey),
	)
	completerOpts := []chat.CompleterOption{
		chat.WithTemperature(cfg.Model.Temperature),
		chat.WithMaxTokens(cfg.Model.MaxTokens),
		chat.WithCallTimeout(cfg.Model.Timeout),
	}
	if cfg.Model.SystemPrompt != "" {
		completerOpts = append(completerOpts, chat.WithSystemPrompt(cfg.Model.SystemPrompt))
	}
	a.chat, err = chat.NewService(a.sessions, a.index, a.embedder,
		chat.NewCompleter(llm, completerOpts...),
		chat.WithCache(a.cache),
		chat.WithTokenCounter(counter),
		chat.WithEmailValidator(validator),
		chat.WithRetrieval(cfg.Chat.Retrieval),
		chat.WithStopWord(cfg.Chat.StopWord),
	)
	return err
}

// Close releases the storage backend.
func (a *app) Close() error {
	if a.kv == nil {
		return nil
	}
	return a.kv.Close()
}

func openKV(ctx context.Context, cfg config.StorageConfig) (kv storage.KV, err error) {
	switch cfg.Type {
	case config.StorageMemory:
		return inmemory.New(), nil
	case config.StorageSQLite:
		kv, err = sqlite.New(ctx, cfg.DSN)
	case config.StorageBolt:
		kv, err = bolt.New(cfg.DSN)
	case config.StorageRedis:
		kv, err = redis.NewKV(redis.WithURL(cfg.DSN))
	case config.StoragePostgres:
		kv, err = postgres.NewKV(ctx, postgres.WithConnString(cfg.DSN))
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
	if err != nil {
		return nil, err
	}
	return kv, nil
}

func newEmbedder(ctx context.Context, cfg config.EmbedderConfig) (embedder.Embedder, error) {
	switch cfg.Type {
	case config.EmbedderOpenAI:
		opts := []embopenai.Option{embopenai.WithAPIKey(cfg.APIKey)}
		if cfg.Model != "" {
			opts = append(opts, embopenai.WithModel(cfg.Model))
		}
		if cfg.Dimensions > 0 {
			opts = append(opts, embopenai.WithDimensions(cfg.Dimensions))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, embopenai.WithBaseURL(cfg.BaseURL))
		}
		return embopenai.New(opts...), nil
	case config.EmbedderGemini:
		opts := []gemini.Option{gemini.WithAPIKey(cfg.APIKey)}
		if cfg.Model != "" {
			opts = append(opts, gemini.WithModel(cfg.Model))
		}
		if cfg.Dimensions > 0 {
			opts = append(opts, gemini.WithDimensions(cfg.Dimensions))
		}
		emb, err := gemini.New(ctx, opts...)
		if err != nil {
			return nil, err
		}
		return emb, nil
	case config.EmbedderHash:
		var opts []hash.Option
		if cfg.Dimensions > 0 {
			opts = append(opts, hash.WithDimensions(cfg.Dimensions))
		}
		return hash.New(opts...), nil
	default:
		return nil, fmt.Errorf("unknown embedder type %q", cfg.Type)
	}
}

func newSnapshotStore(cfg config.SnapshotConfig, kv storage.KV, path, key string) (vectorstore.SnapshotStore, error) {
	switch cfg.Type {
	case config.SnapshotFile:
		if path == "" {
			return nil, errors.New("snapshot path is empty")
		}
		return vectorstore.NewFileSnapshotStore(path), nil
	case config.SnapshotKV:
		return vectorstore.NewKVSnapshotStore(kv, key), nil
	case config.SnapshotCOS:
		store, err := cos.New(cfg.COS.BucketURL,
			cos.WithKey(key),
			cos.WithSecretID(cfg.COS.SecretID),
			cos.WithSecretKey(cfg.COS.SecretKey),
		)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown snapshot type %q", cfg.Type)
	}
}
