//
// Tencent is pleased to support the open source community by making trpc-rag-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-rag-go is licensed under the Apache License Version 2.0.
//
//

// Package reader defines the interface for document readers and a registry
// that maps file extensions to readers.
package reader

import (
	"io"

	"trpc.group/trpc-go/trpc-rag-go/knowledge/document"
)

// Reader converts raw file content into documents.
type Reader interface {
	// ReadFromReader reads content from an io.Reader and returns a list of documents.
	// The name parameter identifies the source, usually the file name.
	ReadFromReader(name string, r io.Reader) ([]*document.Document, error)

	// ReadFromFile reads content from a file path and returns a list of documents.
	ReadFromFile(filePath string) ([]*document.Document, error)

	// Name returns the name of this reader.
	Name() string
}
