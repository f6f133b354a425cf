//
// Tencent is pleased to support the open source community by making trpc-rag-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-rag-go is licensed under the Apache License Version 2.0.
//
//

// Package lifecycle keeps the document vector index consistent with the
// document directory. It restores the durable snapshot, embeds only new or
// changed files, persists the result and publishes each new index
// generation atomically.
package lifecycle

import (
	"context"
	"errors"
	"maps"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"trpc.group/trpc-go/trpc-rag-go/errs"
	"trpc.group/trpc-go/trpc-rag-go/knowledge/embedder"
	"trpc.group/trpc-go/trpc-rag-go/knowledge/extract"
	"trpc.group/trpc-go/trpc-rag-go/knowledge/fingerprint"
	"trpc.group/trpc-go/trpc-rag-go/knowledge/vectorstore"
	"trpc.group/trpc-go/trpc-rag-go/log"
	"trpc.group/trpc-go/trpc-rag-go/telemetry/metric"
	"trpc.group/trpc-go/trpc-rag-go/telemetry/trace"
)

// DefaultMinReloadInterval is the default window during which the current
// index is returned without checking the document directory.
const DefaultMinReloadInterval = 120 * time.Second

// Manager owns the document index. It is safe for concurrent use.
type Manager struct {
	dir          string
	embedder     embedder.Embedder
	snapshots    vectorstore.SnapshotStore
	fingerprints *fingerprint.Store
	tracker      *fingerprint.Tracker
	extractor    extract.Extractor
	interval     time.Duration
	prune        bool
	concurrency  int
	now          func() time.Time

	// mu serialises refreshes.
	mu sync.Mutex

	index        atomic.Pointer[vectorstore.Index]
	state        atomic.Int32
	generation   atomic.Uint64
	lastReloadAt atomic.Int64
	trackedFiles atomic.Int64
	lastInfo     atomic.Pointer[refreshInfo]
}

type refreshInfo struct {
	transition string
	err        error
}

// Option configures a Manager.
type Option func(*Manager)

// WithMinReloadInterval sets the reload guard window. Zero disables it.
func WithMinReloadInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d >= 0 {
			m.interval = d
		}
	}
}

// WithPruneDeleted removes the fragments and fingerprints of files deleted
// from the directory. By default they are kept.
func WithPruneDeleted(prune bool) Option {
	return func(m *Manager) { m.prune = prune }
}

// WithTracker sets the fingerprint tracker.
func WithTracker(t *fingerprint.Tracker) Option {
	return func(m *Manager) { m.tracker = t }
}

// WithExtractor sets the document extractor.
func WithExtractor(e extract.Extractor) Option {
	return func(m *Manager) { m.extractor = e }
}

// WithEmbedConcurrency sets the number of parallel embedding calls.
func WithEmbedConcurrency(n int) Option {
	return func(m *Manager) { m.concurrency = n }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// New creates a Manager for the documents of dir.
func New(
	dir string,
	emb embedder.Embedder,
	snapshots vectorstore.SnapshotStore,
	fingerprints *fingerprint.Store,
	opts ...Option,
) (*Manager, error) {
	if emb == nil || snapshots == nil || fingerprints == nil {
		return nil, errors.New("lifecycle: embedder, snapshot store and fingerprint store are required")
	}
	m := &Manager{
		dir:          dir,
		embedder:     emb,
		snapshots:    snapshots,
		fingerprints: fingerprints,
		interval:     DefaultMinReloadInterval,
		concurrency:  embedder.DefaultConcurrency,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.tracker == nil {
		t, err := fingerprint.NewTracker()
		if err != nil {
			return nil, err
		}
		m.tracker = t
	}
	if m.extractor == nil {
		m.extractor = extract.New()
	}
	return m, nil
}

// Current returns the published index without refreshing it, or nil.
func (m *Manager) Current() *vectorstore.Index {
	return m.index.Load()
}

// State returns the lifecycle state.
func (m *Manager) State() State {
	return State(m.state.Load())
}

// Stats describes the published index.
func (m *Manager) Stats() Stats {
	s := Stats{
		State:        m.State(),
		Generation:   m.generation.Load(),
		TrackedFiles: int(m.trackedFiles.Load()),
	}
	if ix := m.index.Load(); ix != nil {
		s.Fragments = ix.Len()
	}
	if ns := m.lastReloadAt.Load(); ns != 0 {
		s.LastReloadAt = time.Unix(0, ns)
	}
	if info := m.lastInfo.Load(); info != nil {
		s.LastTransition = info.transition
		if info.err != nil {
			s.LastError = info.err.Error()
		}
	}
	return s
}

// Invalidate clears the reload guard so the next Index call checks the
// document directory.
func (m *Manager) Invalidate() {
	m.lastReloadAt.Store(0)
}

// Index returns an index reflecting the document directory. Within the reload
// window the current index is returned as is. While another refresh runs,
// callers get the current index instead of waiting. Refresh failures fall back
// to the last known-good index; an error is returned only when no index is
// available at all.
func (m *Manager) Index(ctx context.Context) (*vectorstore.Index, error) {
	if cur := m.index.Load(); cur != nil {
		if m.withinGuard() {
			return cur, nil
		}
		if !m.mu.TryLock() {
			return cur, nil
		}
	} else {
		m.mu.Lock()
	}
	defer m.mu.Unlock()

	cur := m.index.Load()
	if cur != nil && m.withinGuard() {
		return cur, nil
	}
	return m.refresh(ctx, cur)
}

// Refresh checks the document directory now, ignoring the reload guard.
func (m *Manager) Refresh(ctx context.Context) (*vectorstore.Index, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refresh(ctx, m.index.Load())
}

func (m *Manager) withinGuard() bool {
	last := m.lastReloadAt.Load()
	return last != 0 && m.interval > 0 && m.now().Sub(time.Unix(0, last)) < m.interval
}

// refresh must be called with mu held.
func (m *Manager) refresh(ctx context.Context, cur *vectorstore.Index) (*vectorstore.Index, error) {
	ctx, span := trace.Tracer.Start(ctx, trace.SpanIndexRefresh)
	defer span.End()
	start := m.now()
	ix, transition, err := m.update(ctx, cur)
	outcome := metric.OutcomeSuccess
	switch {
	case err == nil:
		m.publish(ix, cur)
	case ix != nil:
		outcome = metric.OutcomeFallback
		log.Errorf("index %s failed, serving last known-good index: %v", transition, err)
		m.publish(ix, cur)
	default:
		outcome = metric.OutcomeFailure
		log.Errorf("index %s failed and no index is available: %v", transition, err)
		m.state.Store(int32(StateEmpty))
	}
	m.lastInfo.Store(&refreshInfo{transition: transition, err: err})
	metric.RecordIndexRefresh(ctx, transition, outcome, m.now().Sub(start))
	span.SetAttributes(
		attribute.String(trace.KeyTransition, transition),
		attribute.String(trace.KeyOutcome, outcome),
	)
	trace.RecordError(span, err)
	if ix != nil {
		span.SetAttributes(attribute.Int(trace.KeyFragments, ix.Len()))
	}
	if ix == nil {
		return nil, err
	}
	m.lastReloadAt.Store(m.now().UnixNano())
	return ix, nil
}

func (m *Manager) publish(ix, cur *vectorstore.Index) {
	if ix != cur {
		m.index.Store(ix)
		m.generation.Add(1)
	}
	m.state.Store(int32(StateReady))
}

// update returns the index to publish. With a non-nil error, a non-nil index
// is the known-good fallback.
func (m *Manager) update(ctx context.Context, cur *vectorstore.Index) (*vectorstore.Index, string, error) {
	previous, err := m.fingerprints.Load(ctx)
	if err != nil {
		return cur, TransitionReuse, err
	}
	diff, err := m.tracker.Diff(m.dir, previous)
	if err != nil {
		return cur, TransitionReuse, err
	}

	base := cur
	if base == nil {
		restored, err := vectorstore.Restore(ctx, m.snapshots)
		switch {
		case err == nil:
			base = restored
			m.state.Store(int32(StateLoaded))
			log.Infof("index snapshot restored with %d fragments", restored.Len())
		case errors.Is(err, vectorstore.ErrSnapshotNotFound):
			log.Infof("no index snapshot found, building from %s", m.dir)
		default:
			log.Warnf("index snapshot unusable, rebuilding: %v", err)
		}
	}
	if base == nil {
		ix, err := m.rebuild(ctx, previous, diff)
		return ix, TransitionRebuild, err
	}

	var removed []string
	if m.prune {
		removed = diff.Deleted
	}
	if !diff.HasChanges() && len(removed) == 0 {
		m.trackedFiles.Store(int64(len(diff.Current)))
		if base != cur {
			return base, TransitionRestore, nil
		}
		return base, TransitionReuse, nil
	}

	ix, err := m.merge(ctx, base, previous, diff, removed)
	if errors.Is(err, vectorstore.ErrDimensionMismatch) {
		log.Warnf("embedding dimension changed, rebuilding index: %v", err)
		rebuilt, rerr := m.rebuild(ctx, previous, diff)
		if rerr != nil {
			return base, TransitionRebuild, rerr
		}
		return rebuilt, TransitionRebuild, nil
	}
	if err != nil {
		return base, TransitionMerge, err
	}
	return ix, TransitionMerge, nil
}

// rebuild embeds every tracked file into a fresh index.
func (m *Manager) rebuild(ctx context.Context, previous fingerprint.Table, diff *fingerprint.Diff) (*vectorstore.Index, error) {
	m.state.Store(int32(StateRebuilding))
	files := slices.Sorted(maps.Keys(diff.Current))
	fragments, processed, err := m.embedFiles(ctx, files)
	if err != nil {
		return nil, err
	}
	ix := vectorstore.New()
	if _, err := ix.Insert(fragments); err != nil {
		return nil, errs.Wrap(errs.ErrEmbedding, "build index", err)
	}
	if err := m.commit(ctx, ix, previous, diff, processed); err != nil {
		return nil, err
	}
	log.Infof("index rebuilt: %d files, %d fragments", len(processed), ix.Len())
	return ix, nil
}

// merge embeds the new and changed files into a transient index and merges it
// into a copy of base, replacing the fragments of changed files.
func (m *Manager) merge(
	ctx context.Context,
	base *vectorstore.Index,
	previous fingerprint.Table,
	diff *fingerprint.Diff,
	removed []string,
) (*vectorstore.Index, error) {
	m.state.Store(int32(StateStalePendingMerge))
	fragments, processed, err := m.embedFiles(ctx, diff.Pending())
	if err != nil {
		return nil, err
	}
	transient := vectorstore.New()
	if _, err := transient.Insert(fragments); err != nil {
		return nil, err
	}
	next := base.Clone()
	stale := next.DeleteWhere(vectorstore.MetaSourceFile, append(slices.Clone(processed), removed...)...)
	if _, err := next.Merge(transient); err != nil {
		return nil, err
	}
	if err := m.commit(ctx, next, previous, diff, processed); err != nil {
		return nil, err
	}
	log.Infof("index merged: %d files, %d new fragments, %d stale fragments dropped",
		len(processed), transient.Len(), stale)
	return next, nil
}

// commit persists ix and only then records the fingerprints of processed.
// A fingerprint save failure is logged; those files are re-embedded on the
// next refresh and replace their own fragments.
func (m *Manager) commit(
	ctx context.Context,
	ix *vectorstore.Index,
	previous fingerprint.Table,
	diff *fingerprint.Diff,
	processed []string,
) error {
	if err := ix.Persist(ctx, m.snapshots); err != nil {
		return err
	}
	table := fingerprint.Apply(previous, diff, processed, m.prune)
	if err := m.fingerprints.Save(ctx, table); err != nil {
		log.Errorf("index persisted but fingerprints not saved: %v", err)
	}
	m.trackedFiles.Store(int64(len(diff.Current)))
	return nil
}

// embedFiles extracts and embeds files. It returns the fragments and the files
// whose content is fully represented by them.
func (m *Manager) embedFiles(ctx context.Context, files []string) ([]vectorstore.Fragment, []string, error) {
	if len(files) == 0 {
		return nil, nil, nil
	}
	res, err := m.extractor.Extract(ctx, m.dir, files)
	if err != nil {
		return nil, nil, err
	}
	for _, f := range res.Failed {
		log.Warnf("index: %s could not be read and will be retried", f)
	}
	texts := make([]string, len(res.Passages))
	for i, p := range res.Passages {
		texts[i] = p.Text
	}
	vectors, err := embedder.EmbedBatch(ctx, m.embedder, texts, m.concurrency)
	if err != nil {
		return nil, nil, err
	}
	fragments := make([]vectorstore.Fragment, len(res.Passages))
	for i, p := range res.Passages {
		fragments[i] = vectorstore.Fragment{
			Text:   p.Text,
			Vector: vectors[i],
			Source: vectorstore.SourceDocument,
			Metadata: map[string]string{
				vectorstore.MetaSourceFile: p.File,
				vectorstore.MetaChunkIndex: strconv.Itoa(p.Index),
			},
		}
	}
	return fragments, res.Processed(files), nil
}
