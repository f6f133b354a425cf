//
// Tencent is pleased to support the open source community by making trpc-rag-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-rag-go is licensed under the Apache License Version 2.0.
//
//

package chunking

import (
	"strings"
	"unicode"

	"trpc.group/trpc-go/trpc-rag-go/knowledge/document"
)

// FixedSizeChunking cuts text into windows of at most size runes. Neighbours
// share overlap runes and cuts prefer to land after whitespace.
type FixedSizeChunking struct {
	size    int
	overlap int
}

// Option configures FixedSizeChunking.
type Option func(*FixedSizeChunking)

// WithChunkSize sets the window size in runes.
func WithChunkSize(size int) Option {
	return func(c *FixedSizeChunking) { c.size = size }
}

// WithOverlap sets how many runes consecutive windows share.
func WithOverlap(overlap int) Option {
	return func(c *FixedSizeChunking) { c.overlap = overlap }
}

// NewFixedSizeChunking returns a FixedSizeChunking. Out of range values are
// clamped so that 0 <= overlap < size.
func NewFixedSizeChunking(opts ...Option) *FixedSizeChunking {
	c := &FixedSizeChunking{size: defaultChunkSize, overlap: defaultOverlap}
	for _, opt := range opts {
		opt(c)
	}
	if c.size <= 0 {
		c.size = defaultChunkSize
	}
	c.overlap = max(c.overlap, 0)
	if c.overlap >= c.size {
		c.overlap = min(defaultOverlap, c.size-1)
	}
	return c
}

// Chunk implements Strategy.
func (c *FixedSizeChunking) Chunk(doc *document.Document) ([]*document.Document, error) {
	switch {
	case doc == nil:
		return nil, ErrNilDocument
	case doc.IsEmpty():
		return nil, ErrEmptyDocument
	}

	text := []rune(strings.TrimSpace(doc.Content))
	if len(text) <= c.size {
		return []*document.Document{chunkOf(doc, string(text), 1)}, nil
	}

	var out []*document.Document
	for lo := 0; lo+c.overlap < len(text); {
		hi := c.cut(text, lo)
		out = append(out, chunkOf(doc, string(text[lo:hi]), len(out)+1))
		if hi == len(text) {
			break
		}
		lo = hi - c.overlap
	}
	return out, nil
}

// cut returns the end of the window starting at lo. A whitespace boundary is
// used only when it keeps the window longer than the overlap, so lo always
// advances.
func (c *FixedSizeChunking) cut(text []rune, lo int) int {
	hi := min(lo+c.size, len(text))
	if hi == len(text) {
		return hi
	}
	for i := hi - 1; i >= lo+max(c.overlap, 1); i-- {
		if unicode.IsSpace(text[i]) {
			return i + 1
		}
	}
	return hi
}
