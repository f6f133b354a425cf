//
// Tencent is pleased to support the open source community by making trpc-rag-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-rag-go is licensed under the Apache License Version 2.0.
//
//

// Package docx provides the DOCX document reader. Paragraphs are grouped into
// documents of a fixed paragraph count.
package docx

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gonfva/docxlib"

	"trpc.group/trpc-go/trpc-rag-go/knowledge/document"
	"trpc.group/trpc-go/trpc-rag-go/knowledge/document/reader"
)

const defaultParagraphsPerDocument = 10

func init() {
	reader.RegisterReader([]string{".docx"}, func() reader.Reader { return New() })
}

// Reader reads DOCX documents.
type Reader struct {
	paragraphsPerDocument int
}

// Option represents a functional option for configuring the DOCX reader.
type Option func(*Reader)

// WithParagraphsPerDocument sets how many paragraphs go into one document.
func WithParagraphsPerDocument(n int) Option {
	return func(r *Reader) {
		if n > 0 {
			r.paragraphsPerDocument = n
		}
	}
}

// New creates a new DOCX reader with the given options.
func New(opts ...Option) *Reader {
	r := &Reader{paragraphsPerDocument: defaultParagraphsPerDocument}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ReadFromReader implements reader.Reader.
func (r *Reader) ReadFromReader(name string, rd io.Reader) ([]*document.Document, error) {
	data, err := io.ReadAll(rd)
	if err != nil {
		return nil, fmt.Errorf("docx: read data: %w", err)
	}
	return r.read(bytes.NewReader(data), int64(len(data)), name)
}

// ReadFromFile implements reader.Reader.
func (r *Reader) ReadFromFile(filePath string) ([]*document.Document, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	return r.read(f, st.Size(), filepath.Base(filePath))
}

func (r *Reader) read(ra io.ReaderAt, size int64, name string) ([]*document.Document, error) {
	doc, err := docxlib.Parse(ra, size)
	if err != nil {
		return nil, fmt.Errorf("docx: parse %s: %w", name, err)
	}
	var paragraphs []string
	for _, p := range doc.Paragraphs() {
		var parts []string
		for _, child := range p.Children() {
			if child.Run != nil && child.Run.Text != nil {
				parts = appendText(parts, child.Run.Text.Text)
			}
			if child.Link != nil && child.Link.Run.Text != nil {
				parts = appendText(parts, child.Link.Run.Text.Text)
			}
		}
		if len(parts) > 0 {
			paragraphs = append(paragraphs, strings.Join(parts, " "))
		}
	}
	var docs []*document.Document
	for start := 0; start < len(paragraphs); start += r.paragraphsPerDocument {
		end := min(start+r.paragraphsPerDocument, len(paragraphs))
		d := document.New(strings.Join(paragraphs[start:end], "\n"), name)
		d.Metadata[document.MetaChunkIndex] = len(docs)
		docs = append(docs, d)
	}
	return docs, nil
}

func appendText(parts []string, text string) []string {
	if text = strings.TrimSpace(text); text != "" {
		return append(parts, text)
	}
	return parts
}

// Name implements reader.Reader.
func (r *Reader) Name() string {
	return "DOCXReader"
}
