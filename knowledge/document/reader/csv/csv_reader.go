//
// Tencent is pleased to support the open source community by making trpc-rag-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-rag-go is licensed under the Apache License Version 2.0.
//
//

// Package csv provides the CSV document reader. Rows are rendered as
// "column: value" lines and grouped into documents of a fixed row count.
package csv

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"trpc.group/trpc-go/trpc-rag-go/knowledge/document"
	"trpc.group/trpc-go/trpc-rag-go/knowledge/document/reader"
)

const defaultRowsPerDocument = 1000

func init() {
	reader.RegisterReader([]string{".csv"}, func() reader.Reader { return New() })
}

// Reader reads CSV documents.
type Reader struct {
	rowsPerDocument int
}

// Option represents a functional option for configuring the CSV reader.
type Option func(*Reader)

// WithRowsPerDocument sets how many data rows go into one document.
func WithRowsPerDocument(n int) Option {
	return func(r *Reader) {
		if n > 0 {
			r.rowsPerDocument = n
		}
	}
}

// New creates a new CSV reader with the given options.
func New(opts ...Option) *Reader {
	r := &Reader{rowsPerDocument: defaultRowsPerDocument}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ReadFromReader implements reader.Reader.
func (r *Reader) ReadFromReader(name string, rd io.Reader) ([]*document.Document, error) {
	cr := csv.NewReader(rd)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("csv: read header: %w", err)
	}

	var (
		docs  []*document.Document
		lines []string
		part  int
	)
	flush := func() {
		if len(lines) == 0 {
			return
		}
		doc := document.New(strings.Join(lines, "\n"), name)
		doc.Metadata[document.MetaChunkIndex] = part
		docs = append(docs, doc)
		part++
		lines = lines[:0]
	}
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csv: read row: %w", err)
		}
		if line := renderRow(header, record); line != "" {
			lines = append(lines, line)
		}
		if len(lines) == r.rowsPerDocument {
			flush()
		}
	}
	flush()
	return docs, nil
}

func renderRow(header, record []string) string {
	fields := make([]string, 0, len(record))
	for i, v := range record {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if i < len(header) && header[i] != "" {
			fields = append(fields, strings.TrimSpace(header[i])+": "+v)
		} else {
			fields = append(fields, v)
		}
	}
	return strings.Join(fields, ", ")
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
	return "CSVReader"
}
