//
// Tencent is pleased to support the open source community by making trpc-rag-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-rag-go is licensed under the Apache License Version 2.0.
//
//

package tiktoken

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounter_Count(t *testing.T) {
	counter, err := NewCl100k()
	require.NoError(t, err)

	n, err := counter.Count("hello world")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = counter.Count("")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestNew_UnknownModelFallsBack(t *testing.T) {
	llama, err := New("llama3-8b-8192")
	require.NoError(t, err)
	base, err := NewCl100k()
	require.NoError(t, err)

	text := "What does quiz 2 cover?"
	got, err := llama.Count(text)
	require.NoError(t, err)
	want, err := base.Count(text)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Positive(t, got)
}

func TestNew_KnownModel(t *testing.T) {
	counter, err := New("gpt-4o")
	require.NoError(t, err)
	n, err := counter.Count("hello world")
	require.NoError(t, err)
	assert.Positive(t, n)
}
