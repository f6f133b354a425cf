//
// Tencent is pleased to support the open source community by making trpc-rag-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-rag-go is licensed under the Apache License Version 2.0.
//
//

// Package semcache answers questions from previously answered ones whose
// embedding is close enough, avoiding a model call.
package semcache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"trpc.group/trpc-go/trpc-rag-go/knowledge/embedder"
	"trpc.group/trpc-go/trpc-rag-go/knowledge/vectorstore"
	"trpc.group/trpc-go/trpc-rag-go/log"
	"trpc.group/trpc-go/trpc-rag-go/telemetry/metric"
)

// Config holds the cache policy.
type Config struct {
	// Enabled turns lookups and recording on.
	Enabled bool `yaml:"enabled"`
	// Threshold is the minimum cosine relevance of a hit.
	Threshold float64 `yaml:"threshold"`
	// TopK is the number of MMR results examined.
	TopK int `yaml:"top_k"`
	// FetchK is the number of nearest pairs re-ranked by MMR.
	FetchK int `yaml:"fetch_k"`
	// Lambda is the MMR relevance/diversity weight.
	Lambda float64 `yaml:"lambda"`
	// MinAnswerLength is the minimum answer length in characters worth
	// recording.
	MinAnswerLength int `yaml:"min_answer_length"`
	// MinHistoryTurns is the session history length from which the cache is
	// consulted.
	MinHistoryTurns int `yaml:"min_history_turns"`
}

// DefaultConfig returns the default policy.
func DefaultConfig() Config {
	return Config{
		Enabled:         true,
		Threshold:       0.9,
		TopK:            1,
		FetchK:          5,
		Lambda:          0.5,
		MinAnswerLength: 20,
	}
}

// Hit is a cached answer.
type Hit struct {
	ID        string
	Question  string
	Answer    string
	Relevance float64
}

// RecordFilter decides whether a pair may be cached.
type RecordFilter func(question, answer string) bool

// Cache is a semantic question/answer cache over a twin vector index holding
// only qa_pair fragments. It is safe for concurrent use.
type Cache struct {
	cfg       Config
	embedder  embedder.Embedder
	filter    RecordFilter
	snapshots vectorstore.SnapshotStore
	now       func() time.Time

	// mu serialises writers so replacing a question is atomic.
	mu    sync.Mutex
	index atomic.Pointer[vectorstore.Index]
	dirty atomic.Bool
}

// Option configures a Cache.
type Option func(*Cache)

// WithConfig sets the cache policy.
func WithConfig(cfg Config) Option {
	return func(c *Cache) { c.cfg = cfg }
}

// WithRecordFilter sets an extra predicate for recording.
func WithRecordFilter(f RecordFilter) Option {
	return func(c *Cache) { c.filter = f }
}

// WithSnapshotStore makes the cache durable through Save and Load.
func WithSnapshotStore(s vectorstore.SnapshotStore) Option {
	return func(c *Cache) { c.snapshots = s }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates an empty cache.
func New(emb embedder.Embedder, opts ...Option) *Cache {
	c := &Cache{
		cfg:      DefaultConfig(),
		embedder: emb,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.cfg.TopK <= 0 {
		c.cfg.TopK = 1
	}
	if c.cfg.FetchK < c.cfg.TopK {
		c.cfg.FetchK = c.cfg.TopK
	}
	c.index.Store(vectorstore.New())
	return c
}

// Config returns the cache policy.
func (c *Cache) Config() Config { return c.cfg }

// Len returns the number of cached pairs.
func (c *Cache) Len() int { return c.index.Load().Len() }

// Active reports whether the cache should be consulted for a session with
// historyLen turns.
func (c *Cache) Active(historyLen int) bool {
	return c.cfg.Enabled && historyLen >= c.cfg.MinHistoryTurns
}

// Embed embeds a question the way the cache does, so callers can reuse the
// vector for LookupVector and RecordVector.
func (c *Cache) Embed(ctx context.Context, question string) ([]float64, error) {
	return embedder.Embed(ctx, c.embedder, question)
}

// Lookup returns the cached answer of the closest prior question if its
// relevance reaches the threshold. A miss is not an error.
func (c *Cache) Lookup(ctx context.Context, question string) (*Hit, bool, error) {
	if !c.cfg.Enabled {
		return nil, false, nil
	}
	vec, err := c.Embed(ctx, question)
	if err != nil {
		return nil, false, err
	}
	return c.LookupVector(ctx, vec)
}

// LookupVector is Lookup for an already embedded question.
func (c *Cache) LookupVector(ctx context.Context, vec []float64) (*Hit, bool, error) {
	if !c.cfg.Enabled {
		return nil, false, nil
	}
	hit, err := c.best(vec)
	if err != nil {
		return nil, false, err
	}
	ok := hit != nil && hit.Relevance >= c.cfg.Threshold
	metric.RecordCacheLookup(ctx, ok)
	if !ok {
		return nil, false, nil
	}
	return hit, true, nil
}

func (c *Cache) best(vec []float64) (*Hit, error) {
	ix := c.index.Load()
	if ix.Len() == 0 {
		return nil, nil
	}
	hits, err := ix.SearchMMR(vec, vectorstore.MMRQuery{
		K:      c.cfg.TopK,
		FetchK: c.cfg.FetchK,
		Lambda: c.cfg.Lambda,
		Filter: &vectorstore.Filter{Source: vectorstore.SourceQAPair},
	})
	if err != nil {
		return nil, err
	}
	var best *vectorstore.RelevanceHit
	for i := range hits {
		if best == nil || hits[i].Relevance > best.Relevance {
			best = &hits[i]
		}
	}
	if best == nil {
		return nil, nil
	}
	return &Hit{
		ID:        best.Fragment.ID,
		Question:  best.Fragment.Metadata[vectorstore.MetaQuestion],
		Answer:    best.Fragment.Metadata[vectorstore.MetaAnswer],
		Relevance: best.Relevance,
	}, nil
}

// Record caches a question/answer pair. It must be called after the lookup of
// the same turn so a question never matches itself. Pairs rejected by the
// policy are skipped and reported as not recorded.
func (c *Cache) Record(ctx context.Context, question, answer string) (bool, error) {
	if !c.accepts(question, answer) {
		return false, nil
	}
	vec, err := c.Embed(ctx, question)
	if err != nil {
		return false, err
	}
	return c.RecordVector(question, answer, vec)
}

// RecordVector is Record for an already embedded question. A new question is
// inserted into the live index. A pair with the same question replaces the
// previous one in a copy that is then swapped in, so readers never see both
// or neither.
func (c *Cache) RecordVector(question, answer string, vec []float64) (bool, error) {
	if !c.accepts(question, answer) {
		return false, nil
	}
	pair := vectorstore.Fragment{
		Text:   question,
		Vector: vec,
		Source: vectorstore.SourceQAPair,
		Metadata: map[string]string{
			vectorstore.MetaQuestion:   question,
			vectorstore.MetaAnswer:     answer,
			vectorstore.MetaRecordedAt: c.now().UTC().Format(time.RFC3339),
		},
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	cur := c.index.Load()
	same := &vectorstore.Filter{Metadata: map[string]string{vectorstore.MetaQuestion: question}}
	if cur.Count(same) == 0 {
		if _, err := cur.Insert([]vectorstore.Fragment{pair}); err != nil {
			return false, err
		}
		c.dirty.Store(true)
		return true, nil
	}
	next := cur.Clone()
	next.DeleteWhere(vectorstore.MetaQuestion, question)
	if _, err := next.Insert([]vectorstore.Fragment{pair}); err != nil {
		return false, err
	}
	c.index.Store(next)
	c.dirty.Store(true)
	return true, nil
}

func (c *Cache) accepts(question, answer string) bool {
	if !c.cfg.Enabled {
		return false
	}
	question, answer = strings.TrimSpace(question), strings.TrimSpace(answer)
	if question == "" || answer == "" {
		return false
	}
	if utf8.RuneCountInString(answer) < c.cfg.MinAnswerLength {
		return false
	}
	return c.filter == nil || c.filter(question, answer)
}

// Save persists the cache if it changed since the last save.
func (c *Cache) Save(ctx context.Context) error {
	if c.snapshots == nil || !c.dirty.Swap(false) {
		return nil
	}
	if err := c.index.Load().Persist(ctx, c.snapshots); err != nil {
		c.dirty.Store(true)
		return err
	}
	return nil
}

// Load replaces the cache content with the persisted snapshot. An absent
// snapshot leaves the cache empty.
func (c *Cache) Load(ctx context.Context) error {
	if c.snapshots == nil {
		return nil
	}
	ix, err := vectorstore.Restore(ctx, c.snapshots)
	if errors.Is(err, vectorstore.ErrSnapshotNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.index.Store(ix)
	c.mu.Unlock()
	log.Infof("semantic cache loaded with %d pairs", ix.Len())
	return nil
}

// Run saves the cache every interval until ctx is done, then saves it once
// more.
func (c *Cache) Run(ctx context.Context, interval time.Duration) {
	if c.snapshots == nil || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if err := c.Save(context.WithoutCancel(ctx)); err != nil {
				log.Errorf("semantic cache final save: %v", err)
			}
			return
		case <-ticker.C:
			if err := c.Save(ctx); err != nil {
				log.Errorf("semantic cache save: %v", err)
			}
		}
	}
}
