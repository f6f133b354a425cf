//
// Tencent is pleased to support the open source community by making trpc-rag-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-rag-go is licensed under the Apache License Version 2.0.
//
//

package gemini

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func TestNew_APIKeyPriority(t *testing.T) {
	ctx := context.Background()
	t.Setenv(GoogleAPIKeyEnv, "google")
	t.Setenv(APIKeyEnv, "")

	e, err := New(ctx)
	require.NoError(t, err)
	assert.Equal(t, "google", e.clientOptions.APIKey)

	t.Setenv(APIKeyEnv, "gemini")
	e, err = New(ctx)
	require.NoError(t, err)
	assert.Equal(t, "gemini", e.clientOptions.APIKey)

	e, err = New(ctx, WithAPIKey("explicit"))
	require.NoError(t, err)
	assert.Equal(t, "explicit", e.clientOptions.APIKey)

	e, err = New(ctx, WithAPIKey("explicit"), WithClientOptions(&genai.ClientConfig{APIKey: "client"}))
	require.NoError(t, err)
	assert.Equal(t, "client", e.clientOptions.APIKey)
}

func TestNew_MissingKey(t *testing.T) {
	t.Setenv(GoogleAPIKeyEnv, "")
	t.Setenv(APIKeyEnv, "")
	_, err := New(context.Background())
	assert.Error(t, err)
}

func TestEmbedder_GetEmbedding(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/embeddings") {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"embeddings": []map[string]any{{"values": []float64{0.1, 0.2, 0.3}}},
			"metadata":   map[string]any{"billable_character_count": 10},
		})
	}))
	defer srv.Close()

	e, err := New(context.Background(),
		WithAPIKey("dummy"),
		WithDimensions(3),
		WithClientOptions(&genai.ClientConfig{
			HTTPOptions: genai.HTTPOptions{BaseURL: srv.URL + "/embeddings"},
		}),
	)
	require.NoError(t, err)
	assert.Equal(t, 3, e.GetDimensions())

	vec, err := e.GetEmbedding(context.Background(), "hello")
	require.NoError(t, err)
	require.Len(t, vec, 3)
	assert.InDelta(t, 0.1, vec[0], 1e-6)

	_, usage, err := e.GetEmbeddingWithUsage(context.Background(), "hi")
	require.NoError(t, err)
	assert.NotNil(t, usage)

	_, err = e.GetEmbedding(context.Background(), "")
	assert.Error(t, err)
}
