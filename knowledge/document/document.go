//
// Tencent is pleased to support the open source community by making trpc-rag-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-rag-go is licensed under the Apache License Version 2.0.
//
//

// Package document defines the text document produced by readers and chunkers.
package document

import (
	"maps"
	"strings"
	"time"
)

// Metadata keys set by readers and chunkers.
const (
	metaPrefix = "ragchat_"

	MetaFileName   = metaPrefix + "file_name"
	MetaFileExt    = metaPrefix + "file_ext"
	MetaChunkIndex = metaPrefix + "chunk_index"
	MetaChunkSize  = metaPrefix + "chunk_size"
)

// Document is a unit of extracted text.
type Document struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// New creates a document named name with an ID derived from the name.
func New(content, name string) *Document {
	now := time.Now().UTC()
	return &Document{
		ID:        strings.ReplaceAll(name, " ", "_") + "_" + now.Format("20060102150405"),
		Name:      name,
		Content:   content,
		Metadata:  make(map[string]any),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsEmpty reports whether the document is nil or has only whitespace content.
func (d *Document) IsEmpty() bool {
	return d == nil || strings.TrimSpace(d.Content) == ""
}

// Clone returns a copy with its own metadata map.
func (d *Document) Clone() *Document {
	c := *d
	c.Metadata = maps.Clone(d.Metadata)
	return &c
}
