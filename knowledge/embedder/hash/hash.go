//
// Tencent is pleased to support the open source community by making trpc-rag-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-rag-go is licensed under the Apache License Version 2.0.
//
//

// Package hash provides a deterministic local embedder based on feature
// hashing of words and word bigrams. It needs no network access.
package hash

import (
	"context"
	"errors"
	"math"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"

	"trpc.group/trpc-go/trpc-rag-go/knowledge/embedder"
)

var _ embedder.Embedder = (*Embedder)(nil)

// DefaultDimensions is the default vector length.
const DefaultDimensions = 384

// Embedder hashes tokens into a fixed number of buckets and L2 normalises the
// result, so cosine similarity approximates token overlap.
type Embedder struct {
	dimensions int
	bigrams    bool
}

// Option configures the Embedder.
type Option func(*Embedder)

// WithDimensions sets the vector length.
func WithDimensions(d int) Option {
	return func(e *Embedder) {
		if d > 0 {
			e.dimensions = d
		}
	}
}

// WithBigrams toggles word bigram features. Enabled by default.
func WithBigrams(enabled bool) Option {
	return func(e *Embedder) { e.bigrams = enabled }
}

// New creates a hash embedder.
func New(opts ...Option) *Embedder {
	e := &Embedder{dimensions: DefaultDimensions, bigrams: true}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// GetEmbedding implements embedder.Embedder.
func (e *Embedder) GetEmbedding(ctx context.Context, text string) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return nil, errors.New("text has no tokens")
	}
	vec := make([]float64, e.dimensions)
	for i, tok := range tokens {
		e.add(vec, tok, 1)
		if e.bigrams && i > 0 {
			e.add(vec, tokens[i-1]+" "+tok, 0.5)
		}
	}
	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return vec, nil
	}
	for i := range vec {
		vec[i] /= norm
	}
	return vec, nil
}

// GetEmbeddingWithUsage implements embedder.Embedder.
func (e *Embedder) GetEmbeddingWithUsage(ctx context.Context, text string) ([]float64, map[string]any, error) {
	vec, err := e.GetEmbedding(ctx, text)
	if err != nil {
		return nil, nil, err
	}
	return vec, map[string]any{"tokens": len(tokenize(text))}, nil
}

// GetDimensions implements embedder.Embedder.
func (e *Embedder) GetDimensions() int {
	return e.dimensions
}

func (e *Embedder) add(vec []float64, feature string, weight float64) {
	h := xxhash.Sum64String(feature)
	idx := h % uint64(e.dimensions)
	if h>>63 == 1 {
		weight = -weight
	}
	vec[idx] += weight
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
