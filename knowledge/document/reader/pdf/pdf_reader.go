//
// Tencent is pleased to support the open source community by making trpc-rag-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-rag-go is licensed under the Apache License Version 2.0.
//
//

// Package pdf provides the PDF document reader. Each page with text becomes
// one document.
package pdf

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	"trpc.group/trpc-go/trpc-rag-go/knowledge/document"
	"trpc.group/trpc-go/trpc-rag-go/knowledge/document/reader"
	"trpc.group/trpc-go/trpc-rag-go/log"
)

func init() {
	reader.RegisterReader([]string{".pdf"}, func() reader.Reader { return New() })
}

// Reader reads PDF documents.
type Reader struct{}

// New creates a new PDF reader.
func New() *Reader {
	return &Reader{}
}

// ReadFromReader implements reader.Reader.
func (r *Reader) ReadFromReader(name string, rd io.Reader) ([]*document.Document, error) {
	data, err := io.ReadAll(rd)
	if err != nil {
		return nil, err
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
	pr, err := pdf.NewReader(ra, size)
	if err != nil {
		return nil, fmt.Errorf("pdf: open %s: %w", name, err)
	}
	var docs []*document.Document
	for i := 1; i <= pr.NumPage(); i++ {
		page := pr.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			log.Warnf("pdf: skip page %d of %s: %v", i, name, err)
			continue
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		doc := document.New(text, name)
		doc.Metadata[document.MetaChunkIndex] = i
		docs = append(docs, doc)
	}
	return docs, nil
}

// Name implements reader.Reader.
func (r *Reader) Name() string {
	return "PDFReader"
}
