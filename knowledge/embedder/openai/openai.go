//
// Tencent is pleased to support the open source community by making trpc-rag-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-rag-go is licensed under the Apache License Version 2.0.
//
//

// Package openai provides an embedder for OpenAI compatible embedding APIs.
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"trpc.group/trpc-go/trpc-rag-go/knowledge/embedder"
	"trpc.group/trpc-go/trpc-rag-go/log"
)

var _ embedder.Embedder = (*Embedder)(nil)

const (
	// DefaultModel is the default OpenAI embedding model.
	DefaultModel = ModelTextEmbedding3Small
	// DefaultDimensions is the default embedding dimension for text-embedding-3-small.
	DefaultDimensions = 1536

	// ModelTextEmbedding3Small represents the text-embedding-3-small model.
	ModelTextEmbedding3Small = "text-embedding-3-small"
	// ModelTextEmbedding3Large represents the text-embedding-3-large model.
	ModelTextEmbedding3Large = "text-embedding-3-large"
	// ModelTextEmbeddingAda002 represents the text-embedding-ada-002 model.
	ModelTextEmbeddingAda002 = "text-embedding-ada-002"

	textEmbedding3Prefix = "text-embedding-3"
)

var errEmptyText = errors.New("text cannot be empty")

// Embedder calls the embeddings endpoint of an OpenAI compatible API.
type Embedder struct {
	client         openai.Client
	model          string
	dimensions     int
	user           string
	apiKey         string
	baseURL        string
	requestOptions []option.RequestOption
}

// Option represents a functional option for configuring the Embedder.
type Option func(*Embedder)

// WithModel sets the embedding model to use.
func WithModel(model string) Option {
	return func(e *Embedder) { e.model = model }
}

// WithDimensions sets the number of dimensions for the embedding.
// Only sent for text-embedding-3 models.
func WithDimensions(dimensions int) Option {
	return func(e *Embedder) { e.dimensions = dimensions }
}

// WithUser sets an optional end-user identifier.
func WithUser(user string) Option {
	return func(e *Embedder) { e.user = user }
}

// WithAPIKey sets the API key. If empty, OPENAI_API_KEY is used.
func WithAPIKey(apiKey string) Option {
	return func(e *Embedder) { e.apiKey = apiKey }
}

// WithBaseURL sets the base URL for OpenAI compatible APIs.
func WithBaseURL(baseURL string) Option {
	return func(e *Embedder) { e.baseURL = baseURL }
}

// WithRequestOptions appends options applied to every request.
func WithRequestOptions(opts ...option.RequestOption) Option {
	return func(e *Embedder) { e.requestOptions = append(e.requestOptions, opts...) }
}

// New creates a new OpenAI embedder with the given options.
func New(opts ...Option) *Embedder {
	e := &Embedder{
		model:      DefaultModel,
		dimensions: DefaultDimensions,
	}
	for _, opt := range opts {
		opt(e)
	}
	var clientOpts []option.RequestOption
	if e.apiKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(e.apiKey))
	}
	if e.baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(e.baseURL))
	}
	clientOpts = append(clientOpts, e.requestOptions...)
	e.client = openai.NewClient(clientOpts...)
	return e
}

// GetEmbedding implements embedder.Embedder.
func (e *Embedder) GetEmbedding(ctx context.Context, text string) ([]float64, error) {
	vec, _, err := e.embed(ctx, text)
	return vec, err
}

// GetEmbeddingWithUsage implements embedder.Embedder.
func (e *Embedder) GetEmbeddingWithUsage(ctx context.Context, text string) ([]float64, map[string]any, error) {
	return e.embed(ctx, text)
}

// GetDimensions implements embedder.Embedder.
func (e *Embedder) GetDimensions() int {
	return e.dimensions
}

func (e *Embedder) embed(ctx context.Context, text string) ([]float64, map[string]any, error) {
	if text == "" {
		return nil, nil, errEmptyText
	}
	req := openai.EmbeddingNewParams{
		Input:          openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		Model:          openai.EmbeddingModel(e.model),
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	}
	if e.user != "" {
		req.User = openai.String(e.user)
	}
	if strings.HasPrefix(e.model, textEmbedding3Prefix) && e.dimensions > 0 {
		req.Dimensions = openai.Int(int64(e.dimensions))
	}
	rsp, err := e.client.Embeddings.New(ctx, req)
	if err != nil {
		return nil, nil, fmt.Errorf("create embedding: %w", err)
	}
	if len(rsp.Data) == 0 || len(rsp.Data[0].Embedding) == 0 {
		log.Warnf("openai embedder: empty embedding for model %s", e.model)
		return []float64{}, nil, nil
	}
	usage := map[string]any{
		"prompt_tokens": rsp.Usage.PromptTokens,
		"total_tokens":  rsp.Usage.TotalTokens,
	}
	return rsp.Data[0].Embedding, usage, nil
}
