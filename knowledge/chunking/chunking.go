//
// Tencent is pleased to support the open source community by making trpc-rag-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-rag-go is licensed under the Apache License Version 2.0.
//
//

// Package chunking splits documents into fragments small enough to embed.
package chunking

import (
	"errors"
	"fmt"
	"maps"
	"time"
	"unicode/utf8"

	"trpc.group/trpc-go/trpc-rag-go/knowledge/document"
)

// Strategy splits one document into chunks.
type Strategy interface {
	Chunk(doc *document.Document) ([]*document.Document, error)
}

// Errors returned by Chunk.
var (
	ErrNilDocument   = errors.New("chunking: nil document")
	ErrEmptyDocument = errors.New("chunking: empty document")
)

const (
	defaultChunkSize = 1024
	defaultOverlap   = 128
)

// chunkOf returns the n-th (1-based) chunk of parent. It inherits the parent
// metadata plus its position and rune length.
func chunkOf(parent *document.Document, text string, n int) *document.Document {
	meta := make(map[string]any, len(parent.Metadata)+2)
	maps.Copy(meta, parent.Metadata)
	meta[document.MetaChunkIndex] = n
	meta[document.MetaChunkSize] = utf8.RuneCountInString(text)

	prefix := parent.ID
	if prefix == "" {
		prefix = parent.Name
	}
	if prefix == "" {
		prefix = "chunk"
	}
	ts := time.Now().UTC()
	return &document.Document{
		ID:        fmt.Sprintf("%s_%d", prefix, n),
		Name:      parent.Name,
		Content:   text,
		Metadata:  meta,
		CreatedAt: ts,
		UpdatedAt: ts,
	}
}
