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
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-rag-go/knowledge/document"
)

func TestFixedSizeChunking_Errors(t *testing.T) {
	fsc := NewFixedSizeChunking()

	chunks, err := fsc.Chunk(nil)
	require.ErrorIs(t, err, ErrNilDocument)
	require.Nil(t, chunks)

	_, err = fsc.Chunk(&document.Document{ID: "empty", Content: ""})
	require.ErrorIs(t, err, ErrEmptyDocument)
}

func TestFixedSizeChunking_OverlapValidation(t *testing.T) {
	tests := []struct {
		name      string
		chunkSize int
		overlap   int
	}{
		{name: "overlap greater than chunkSize", chunkSize: 10, overlap: 15},
		{name: "overlap equal to chunkSize", chunkSize: 20, overlap: 20},
		{name: "very large overlap", chunkSize: 5, overlap: 100},
		{name: "negative values", chunkSize: -1, overlap: -3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fsc := NewFixedSizeChunking(WithChunkSize(tt.chunkSize), WithOverlap(tt.overlap))
			assert.Less(t, fsc.overlap, fsc.size)
			doc := &document.Document{ID: "test", Content: "This is a test content for chunking validation"}
			chunks, err := fsc.Chunk(doc)
			require.NoError(t, err)
			require.NotEmpty(t, chunks)
		})
	}
}

func TestFixedSizeChunking_SplitOverlap(t *testing.T) {
	const (
		chunkSize = 8
		overlap   = 2
	)
	doc := &document.Document{ID: "doc-1", Content: strings.Repeat("abcdefghij", 3)}
	chunks, err := NewFixedSizeChunking(WithChunkSize(chunkSize), WithOverlap(overlap)).Chunk(doc)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	for i, c := range chunks {
		assert.LessOrEqual(t, len(c.Content), chunkSize)
		assert.Equal(t, i+1, c.Metadata[document.MetaChunkIndex])
		if i > 0 {
			prev := chunks[i-1].Content
			assert.Equal(t, prev[len(prev)-overlap:], c.Content[:overlap])
		}
	}
	assert.Equal(t, "doc-1_1", chunks[0].ID)
}

func TestFixedSizeChunking_BreaksOnWhitespace(t *testing.T) {
	doc := &document.Document{Name: "words", Content: "alpha beta gamma delta epsilon"}
	chunks, err := NewFixedSizeChunking(WithChunkSize(12), WithOverlap(0)).Chunk(doc)
	require.NoError(t, err)
	assert.Equal(t, "alpha beta ", chunks[0].Content)
	assert.Equal(t, "words_1", chunks[0].ID)
}

func TestFixedSizeChunking_MultiByte(t *testing.T) {
	doc := &document.Document{Content: strings.Repeat("数据科学", 10)}
	chunks, err := NewFixedSizeChunking(WithChunkSize(7), WithOverlap(1)).Chunk(doc)
	require.NoError(t, err)
	for _, c := range chunks {
		assert.True(t, utf8.ValidString(c.Content))
		assert.LessOrEqual(t, utf8.RuneCountInString(c.Content), 7)
	}
}

func TestFixedSizeChunking_SingleChunk(t *testing.T) {
	doc := &document.Document{ID: "x", Content: "  short  ", Metadata: map[string]any{"k": "v"}}
	chunks, err := NewFixedSizeChunking().Chunk(doc)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "short", chunks[0].Content)
	assert.Equal(t, "v", chunks[0].Metadata["k"])
	assert.Equal(t, 5, chunks[0].Metadata[document.MetaChunkSize])
	_, ok := doc.Metadata[document.MetaChunkIndex]
	assert.False(t, ok, "original metadata is untouched")
}
