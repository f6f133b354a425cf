//
// Tencent is pleased to support the open source community by making trpc-rag-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-rag-go is licensed under the Apache License Version 2.0.
//
//

// Package text provides the plain text document reader.
package text

import (
	"io"
	"os"
	"path/filepath"

	"trpc.group/trpc-go/trpc-rag-go/knowledge/document"
	"trpc.group/trpc-go/trpc-rag-go/knowledge/document/reader"
)

func init() {
	reader.RegisterReader([]string{".txt", ".text"}, func() reader.Reader { return New() })
}

// Reader reads plain text files as a single document.
type Reader struct{}

// New creates a text reader.
func New() *Reader {
	return &Reader{}
}

// ReadFromReader implements reader.Reader.
func (r *Reader) ReadFromReader(name string, rd io.Reader) ([]*document.Document, error) {
	content, err := io.ReadAll(rd)
	if err != nil {
		return nil, err
	}
	doc := document.New(string(content), name)
	if doc.IsEmpty() {
		return nil, nil
	}
	return []*document.Document{doc}, nil
}

// ReadFromFile implements reader.Reader.
func (r *Reader) ReadFromFile(filePath string) ([]*document.Document, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return r.ReadFromReader(filepath.Base(filePath), f)
}

// Name implements reader.Reader.
func (r *Reader) Name() string {
	return "TextReader"
}
