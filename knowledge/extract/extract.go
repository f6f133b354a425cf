//
// Tencent is pleased to support the open source community by making trpc-rag-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-rag-go is licensed under the Apache License Version 2.0.
//
//

// Package extract turns files of the document directory into cleaned text
// passages ready to embed.
package extract

import (
	"context"
	"path/filepath"
	"slices"
	"sync"

	"github.com/panjf2000/ants/v2"

	"trpc.group/trpc-go/trpc-rag-go/errs"
	"trpc.group/trpc-go/trpc-rag-go/knowledge/chunking"
	"trpc.group/trpc-go/trpc-rag-go/knowledge/document/reader"
	"trpc.group/trpc-go/trpc-rag-go/log"

	// Built-in readers.
	_ "trpc.group/trpc-go/trpc-rag-go/knowledge/document/reader/csv"
	_ "trpc.group/trpc-go/trpc-rag-go/knowledge/document/reader/docx"
	_ "trpc.group/trpc-go/trpc-rag-go/knowledge/document/reader/markdown"
	_ "trpc.group/trpc-go/trpc-rag-go/knowledge/document/reader/pdf"
	_ "trpc.group/trpc-go/trpc-rag-go/knowledge/document/reader/text"
)

const defaultConcurrency = 4

// Passage is one cleaned text fragment of a source file.
type Passage struct {
	File  string
	Index int
	Text  string
}

// Result is the outcome of an extraction. Failed lists files that could not be
// read; they must not be marked as indexed.
type Result struct {
	Passages []Passage
	Failed   []string
	Skipped  []string
}

// Extractor extracts passages from files.
type Extractor interface {
	Extract(ctx context.Context, dir string, files []string) (*Result, error)
}

// FileExtractor reads files through a reader registry and chunks them.
type FileExtractor struct {
	registry    *reader.Registry
	chunker     chunking.Strategy
	concurrency int
}

// Option configures a FileExtractor.
type Option func(*FileExtractor)

// WithRegistry sets the reader registry. Default reader.Default().
func WithRegistry(r *reader.Registry) Option {
	return func(e *FileExtractor) { e.registry = r }
}

// WithChunking sets the chunking strategy.
func WithChunking(s chunking.Strategy) Option {
	return func(e *FileExtractor) { e.chunker = s }
}

// WithConcurrency sets how many files are read in parallel.
func WithConcurrency(n int) Option {
	return func(e *FileExtractor) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// New creates a FileExtractor.
func New(opts ...Option) *FileExtractor {
	e := &FileExtractor{
		registry:    reader.Default(),
		chunker:     chunking.NewFixedSizeChunking(),
		concurrency: defaultConcurrency,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Supports reports whether name has a registered reader.
func (e *FileExtractor) Supports(name string) bool {
	return e.registry.Supports(name)
}

// Extract reads files (names relative to dir) and returns their passages in
// file order.
func (e *FileExtractor) Extract(ctx context.Context, dir string, files []string) (*Result, error) {
	pool, err := ants.NewPool(e.concurrency)
	if err != nil {
		return nil, errs.Wrap(errs.ErrIO, "extract pool", err)
	}
	defer pool.Release()

	perFile := make([][]Passage, len(files))
	status := make([]int, len(files))
	const (
		ok = iota
		failed
		skipped
	)
	var wg sync.WaitGroup
	for i, name := range files {
		if err := ctx.Err(); err != nil {
			wg.Wait()
			return nil, errs.Wrap(errs.ErrIO, "extract", err)
		}
		if !e.registry.Supports(name) {
			log.Warnf("extract: no reader for %s, skipping", name)
			status[i] = skipped
			continue
		}
		wg.Add(1)
		task := func() {
			defer wg.Done()
			passages, err := e.extractFile(filepath.Join(dir, filepath.FromSlash(name)), name)
			if err != nil {
				log.Errorf("extract: %s: %v", name, err)
				status[i] = failed
				return
			}
			perFile[i] = passages
		}
		if err := pool.Submit(task); err != nil {
			wg.Done()
			return nil, errs.Wrap(errs.ErrIO, "extract submit", err)
		}
	}
	wg.Wait()

	res := &Result{}
	for i, name := range files {
		switch status[i] {
		case failed:
			res.Failed = append(res.Failed, name)
		case skipped:
			res.Skipped = append(res.Skipped, name)
		default:
			res.Passages = append(res.Passages, perFile[i]...)
		}
	}
	return res, nil
}

func (e *FileExtractor) extractFile(path, name string) ([]Passage, error) {
	docs, err := e.registry.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var out []Passage
	for _, d := range docs {
		d.Content = CleanText(d.Content)
		if d.IsEmpty() {
			continue
		}
		chunks, err := e.chunker.Chunk(d)
		if err != nil {
			return nil, err
		}
		for _, c := range chunks {
			out = append(out, Passage{File: name, Index: len(out), Text: c.Content})
		}
	}
	return out, nil
}

// Processed returns the files that did not fail, in input order. Skipped
// files count as processed since there is nothing to index for them.
func (r *Result) Processed(files []string) []string {
	var out []string
	for _, f := range files {
		if !slices.Contains(r.Failed, f) {
			out = append(out, f)
		}
	}
	return out
}
