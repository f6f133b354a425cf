//
// Tencent is pleased to support the open source community by making trpc-rag-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-rag-go is licensed under the Apache License Version 2.0.
//
//

// Package vectorstore provides a flat, exact vector index over embedded text
// fragments with distance and maximal marginal relevance search, merging and
// durable snapshots.
package vectorstore

import (
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// SourceTag tells what a fragment was embedded from.
type SourceTag string

const (
	// SourceDocument marks a passage of a document file.
	SourceDocument SourceTag = "document"
	// SourceQAPair marks a question/answer pair recorded by the answer cache.
	SourceQAPair SourceTag = "qa_pair"
)

// Metadata keys.
const (
	MetaSourceFile = "source_file"
	MetaChunkIndex = "chunk_index"
	MetaQuestion   = "question"
	MetaAnswer     = "answer"
	MetaRecordedAt = "recorded_at"
)

var (
	// ErrDimensionMismatch is returned when a vector does not have the
	// dimension of the index.
	ErrDimensionMismatch = errors.New("vectorstore: dimension mismatch")
	// ErrEmptyVector is returned for an empty vector.
	ErrEmptyVector = errors.New("vectorstore: empty vector")
)

// Fragment is a unit of text stored with its embedding.
type Fragment struct {
	ID       string            `json:"id"`
	Text     string            `json:"text"`
	Vector   []float64         `json:"vector"`
	Source   SourceTag         `json:"source"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Clone returns a deep copy of the fragment.
func (f *Fragment) Clone() *Fragment {
	c := *f
	c.Vector = slices.Clone(f.Vector)
	c.Metadata = maps.Clone(f.Metadata)
	return &c
}

// Filter restricts searches. The zero value matches every fragment.
type Filter struct {
	Source   SourceTag
	Metadata map[string]string
}

// Match reports whether f passes the filter.
func (flt *Filter) Match(f *Fragment) bool {
	if flt == nil {
		return true
	}
	if flt.Source != "" && f.Source != flt.Source {
		return false
	}
	for k, v := range flt.Metadata {
		if f.Metadata[k] != v {
			return false
		}
	}
	return true
}

// DistanceHit is a search result scored by L2 distance. Lower is more similar.
type DistanceHit struct {
	Fragment *Fragment
	Distance float64
}

// RelevanceHit is a search result scored by cosine relevance to the query.
// Higher is more similar.
type RelevanceHit struct {
	Fragment  *Fragment
	Relevance float64
}

// MMRQuery configures a maximal marginal relevance search.
type MMRQuery struct {
	// K is the number of results.
	K int
	// FetchK is the number of nearest candidates re-ranked. Defaults to 4*K.
	FetchK int
	// Lambda weighs similarity to the query against diversity, in [0, 1].
	Lambda float64
	Filter *Filter
}

type entry struct {
	frag *Fragment
	seq  uint64
}

// Index is a flat, exact, in-memory vector index. It is safe for concurrent
// use: searches share a read lock and mutations take the write lock.
type Index struct {
	mu        sync.RWMutex
	dimension int
	entries   map[string]*entry
	seq       uint64
}

// New creates an empty index.
func New() *Index {
	return &Index{entries: make(map[string]*entry)}
}

// Len returns the number of fragments.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entries)
}

// Dimension returns the vector dimension, 0 while the index has never held a
// fragment.
func (ix *Index) Dimension() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.dimension
}

// Count returns the number of fragments passing filter.
func (ix *Index) Count(filter *Filter) int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	n := 0
	for _, e := range ix.entries {
		if filter.Match(e.frag) {
			n++
		}
	}
	return n
}

// Get returns a copy of the fragment with id.
func (ix *Index) Get(id string) (*Fragment, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	e, ok := ix.entries[id]
	if !ok {
		return nil, false
	}
	return e.frag.Clone(), true
}

// Fragments returns copies of all fragments in insertion order.
func (ix *Index) Fragments() []*Fragment {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	out := make([]*Fragment, 0, len(ix.entries))
	for _, e := range ix.ordered() {
		out = append(out, e.frag.Clone())
	}
	return out
}

// Insert adds fragments and returns the ids assigned to them, in order. Any
// id set on the input is ignored. The first insert into an empty index fixes
// its dimension.
func (ix *Index) Insert(fragments []Fragment) ([]string, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	dim := ix.dimension
	for i := range fragments {
		n := len(fragments[i].Vector)
		if n == 0 {
			return nil, fmt.Errorf("fragment %d: %w", i, ErrEmptyVector)
		}
		if dim == 0 {
			dim = n
		}
		if n != dim {
			return nil, fmt.Errorf("fragment %d has %d, want %d: %w", i, n, dim, ErrDimensionMismatch)
		}
	}
	ix.dimension = dim
	ids := make([]string, len(fragments))
	for i := range fragments {
		f := fragments[i].Clone()
		f.ID = ix.freshID()
		if f.Source == "" {
			f.Source = SourceDocument
		}
		ix.add(f)
		ids[i] = f.ID
	}
	return ids, nil
}

// Delete removes fragments by id. Unknown ids are ignored. It returns the
// number of removed fragments.
func (ix *Index) Delete(ids ...string) int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	n := 0
	for _, id := range ids {
		if _, ok := ix.entries[id]; ok {
			delete(ix.entries, id)
			n++
		}
	}
	return n
}

// DeleteWhere removes the fragments whose metadata key holds one of values.
func (ix *Index) DeleteWhere(key string, values ...string) int {
	if len(values) == 0 {
		return 0
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	n := 0
	for id, e := range ix.entries {
		if v, ok := e.frag.Metadata[key]; ok && slices.Contains(values, v) {
			delete(ix.entries, id)
			n++
		}
	}
	return n
}

// Merge absorbs all fragments of other. Ids are kept when free in ix and
// renumbered otherwise. It returns the ids the fragments have in ix.
func (ix *Index) Merge(other *Index) ([]string, error) {
	incoming := other.Fragments()
	if len(incoming) == 0 {
		return nil, nil
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	dim := ix.dimension
	if dim == 0 {
		dim = len(incoming[0].Vector)
	}
	for _, f := range incoming {
		if len(f.Vector) != dim {
			return nil, fmt.Errorf("merge fragment %s has %d, want %d: %w", f.ID, len(f.Vector), dim, ErrDimensionMismatch)
		}
	}
	ix.dimension = dim
	ids := make([]string, len(incoming))
	for i, f := range incoming {
		if _, taken := ix.entries[f.ID]; taken || f.ID == "" {
			f.ID = ix.freshID()
		}
		ix.add(f)
		ids[i] = f.ID
	}
	return ids, nil
}

// Clone returns a deep copy of the index.
func (ix *Index) Clone() *Index {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	c := &Index{
		dimension: ix.dimension,
		entries:   make(map[string]*entry, len(ix.entries)),
		seq:       ix.seq,
	}
	for id, e := range ix.entries {
		c.entries[id] = &entry{frag: e.frag.Clone(), seq: e.seq}
	}
	return c
}

// SearchByDistance returns up to k fragments passing filter, nearest first by
// L2 distance.
func (ix *Index) SearchByDistance(vector []float64, k int, filter *Filter) ([]DistanceHit, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	cands, err := ix.nearest(vector, k, filter)
	if err != nil {
		return nil, err
	}
	hits := make([]DistanceHit, len(cands))
	for i, c := range cands {
		hits[i] = DistanceHit{Fragment: c.e.frag.Clone(), Distance: c.dist}
	}
	return hits, nil
}

// SearchMMR re-ranks the FetchK nearest fragments with maximal marginal
// relevance and returns up to K of them in selection order. The most similar
// candidate is always selected first; each following pick maximises
// Lambda*sim(query, c) - (1-Lambda)*max(sim(c, selected)). Relevance is the
// cosine similarity of the fragment to the query.
func (ix *Index) SearchMMR(vector []float64, q MMRQuery) ([]RelevanceHit, error) {
	if q.K <= 0 {
		return nil, nil
	}
	fetchK := q.FetchK
	if fetchK <= 0 {
		fetchK = 4 * q.K
	}
	fetchK = max(fetchK, q.K)
	lambda := min(max(q.Lambda, 0), 1)

	ix.mu.RLock()
	defer ix.mu.RUnlock()
	cands, err := ix.nearest(vector, fetchK, q.Filter)
	if err != nil {
		return nil, err
	}
	simQ := make([]float64, len(cands))
	for i, c := range cands {
		simQ[i] = cosine(vector, c.e.frag.Vector)
	}
	selected := make([]int, 0, min(q.K, len(cands)))
	used := make([]bool, len(cands))
	// Highest redundancy of each candidate against the selected set.
	redundancy := make([]float64, len(cands))
	for i := range redundancy {
		redundancy[i] = math.Inf(-1)
	}
	for len(selected) < q.K && len(selected) < len(cands) {
		best, bestScore := -1, math.Inf(-1)
		for i := range cands {
			if used[i] {
				continue
			}
			score := simQ[i]
			if len(selected) > 0 {
				score = lambda*simQ[i] - (1-lambda)*redundancy[i]
			}
			if score > bestScore {
				best, bestScore = i, score
			}
		}
		used[best] = true
		selected = append(selected, best)
		for i := range cands {
			if !used[i] {
				redundancy[i] = max(redundancy[i], cosine(cands[i].e.frag.Vector, cands[best].e.frag.Vector))
			}
		}
	}
	hits := make([]RelevanceHit, len(selected))
	for i, s := range selected {
		hits[i] = RelevanceHit{Fragment: cands[s].e.frag.Clone(), Relevance: simQ[s]}
	}
	return hits, nil
}

type candidate struct {
	e    *entry
	dist float64
}

// nearest must be called with the read lock held.
func (ix *Index) nearest(vector []float64, k int, filter *Filter) ([]candidate, error) {
	if len(vector) == 0 {
		return nil, ErrEmptyVector
	}
	if k <= 0 || len(ix.entries) == 0 {
		return nil, nil
	}
	if len(vector) != ix.dimension {
		return nil, fmt.Errorf("query has %d, want %d: %w", len(vector), ix.dimension, ErrDimensionMismatch)
	}
	cands := make([]candidate, 0, len(ix.entries))
	for _, e := range ix.entries {
		if !filter.Match(e.frag) {
			continue
		}
		cands = append(cands, candidate{e: e, dist: l2(vector, e.frag.Vector)})
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].dist != cands[j].dist {
			return cands[i].dist < cands[j].dist
		}
		return cands[i].e.seq < cands[j].e.seq
	})
	if len(cands) > k {
		cands = cands[:k]
	}
	return cands, nil
}

// add must be called with the write lock held.
func (ix *Index) add(f *Fragment) {
	ix.seq++
	ix.entries[f.ID] = &entry{frag: f, seq: ix.seq}
}

// freshID must be called with the write lock held.
func (ix *Index) freshID() string {
	for {
		id := uuid.NewString()
		if _, taken := ix.entries[id]; !taken {
			return id
		}
	}
}

// ordered must be called with the read lock held.
func (ix *Index) ordered() []*entry {
	out := slices.Collect(maps.Values(ix.entries))
	slices.SortFunc(out, func(a, b *entry) int {
		switch {
		case a.seq < b.seq:
			return -1
		case a.seq > b.seq:
			return 1
		}
		return 0
	})
	return out
}

func l2(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

func cosine(a, b []float64) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
