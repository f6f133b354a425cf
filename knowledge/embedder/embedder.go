//
// Tencent is pleased to support the open source community by making trpc-rag-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-rag-go is licensed under the Apache License Version 2.0.
//
//

// Package embedder provides interfaces and implementations for text embedding.
package embedder

import (
	"context"
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"

	"trpc.group/trpc-go/trpc-rag-go/errs"
)

// DefaultConcurrency is the default number of parallel embedding calls made
// by EmbedBatch.
const DefaultConcurrency = 4

// Embedder is the interface that all embedders must implement.
//
// Implementations must be deterministic for identical input and return an
// error for provider failures. An empty vector is treated as a failure by
// EmbedBatch.
type Embedder interface {
	// GetEmbedding generates an embedding vector for the given text.
	GetEmbedding(ctx context.Context, text string) ([]float64, error)

	// GetEmbeddingWithUsage generates an embedding vector for the given text
	// and returns usage information if available.
	GetEmbeddingWithUsage(ctx context.Context, text string) ([]float64, map[string]any, error)

	// GetDimensions returns the dimensionality of the embeddings produced by this embedder.
	// Returns 0 if dimensions are not known or configurable.
	GetDimensions() int
}

// Embed embeds a single text. Any failure, including an empty vector, is
// reported as errs.ErrEmbedding.
func Embed(ctx context.Context, e Embedder, text string) ([]float64, error) {
	vec, err := e.GetEmbedding(ctx, text)
	if err != nil {
		return nil, errs.Wrap(errs.ErrEmbedding, "embed", err)
	}
	if len(vec) == 0 {
		return nil, errs.New(errs.ErrEmbedding, "embed", "empty embedding")
	}
	return vec, nil
}

// EmbedBatch embeds texts with up to concurrency parallel calls. The result
// has the same order as texts. The first failure aborts the batch.
func EmbedBatch(ctx context.Context, e Embedder, texts []string, concurrency int) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	pool, err := ants.NewPool(min(concurrency, len(texts)))
	if err != nil {
		return nil, errs.Wrap(errs.ErrEmbedding, "embed batch pool", err)
	}
	defer pool.Release()

	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)
	fail := func(err error) {
		once.Do(func() {
			firstErr = err
			cancel()
		})
	}
	out := make([][]float64, len(texts))
	for i, text := range texts {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		task := func() {
			defer wg.Done()
			if ctx.Err() != nil {
				return
			}
			vec, err := Embed(ctx, e, text)
			if err != nil {
				fail(fmt.Errorf("text %d: %w", i, err))
				return
			}
			out[i] = vec
		}
		if err := pool.Submit(task); err != nil {
			wg.Done()
			fail(errs.Wrap(errs.ErrEmbedding, "embed batch submit", err))
			break
		}
	}
	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, errs.Wrap(errs.ErrEmbedding, "embed batch", err)
	}
	return out, nil
}
