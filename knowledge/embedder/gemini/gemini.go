//
// Tencent is pleased to support the open source community by making trpc-rag-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-rag-go is licensed under the Apache License Version 2.0.
//
//

// Package gemini provides an embedder backed by the Gemini embedding API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"google.golang.org/genai"

	"trpc.group/trpc-go/trpc-rag-go/knowledge/embedder"
	"trpc.group/trpc-go/trpc-rag-go/log"
)

var _ embedder.Embedder = (*Embedder)(nil)

const (
	// DefaultModel is the default Gemini embedding model.
	DefaultModel = "gemini-embedding-001"
	// DefaultDimensions is the default embedding dimension.
	DefaultDimensions = 768
	// DefaultTaskType suits both questions and passages, which share one index.
	DefaultTaskType = TaskTypeSemanticSimilarity

	// TaskTypeSemanticSimilarity optimises embeddings for text similarity.
	TaskTypeSemanticSimilarity = "SEMANTIC_SIMILARITY"
	// TaskTypeRetrievalDocument optimises embeddings of indexed passages.
	TaskTypeRetrievalDocument = "RETRIEVAL_DOCUMENT"
	// TaskTypeRetrievalQuery optimises embeddings of search queries.
	TaskTypeRetrievalQuery = "RETRIEVAL_QUERY"

	// APIKeyEnv is read first when no key is configured.
	APIKeyEnv = "GEMINI_API_KEY"
	// GoogleAPIKeyEnv is read when APIKeyEnv is unset.
	GoogleAPIKeyEnv = "GOOGLE_API_KEY"
)

var errEmptyText = errors.New("text cannot be empty")

// Embedder implements embedder.Embedder for the Gemini API.
type Embedder struct {
	client        *genai.Client
	model         string
	dimensions    int
	taskType      string
	apiKey        string
	clientOptions *genai.ClientConfig
}

// Option represents a functional option for configuring the Embedder.
type Option func(*Embedder)

// WithModel sets the embedding model to use.
func WithModel(model string) Option {
	return func(e *Embedder) { e.model = model }
}

// WithDimensions sets the output dimensionality.
func WithDimensions(dimensions int) Option {
	return func(e *Embedder) { e.dimensions = dimensions }
}

// WithTaskType sets the task type hint sent with each request.
func WithTaskType(taskType string) Option {
	return func(e *Embedder) { e.taskType = taskType }
}

// WithAPIKey sets the API key. Priority: WithClientOptions > WithAPIKey >
// GEMINI_API_KEY > GOOGLE_API_KEY.
func WithAPIKey(apiKey string) Option {
	return func(e *Embedder) { e.apiKey = apiKey }
}

// WithClientOptions sets the Gemini client config.
func WithClientOptions(cfg *genai.ClientConfig) Option {
	return func(e *Embedder) {
		c := *cfg
		e.clientOptions = &c
	}
}

// New creates a Gemini embedder.
func New(ctx context.Context, opts ...Option) (*Embedder, error) {
	e := &Embedder{
		model:         DefaultModel,
		dimensions:    DefaultDimensions,
		taskType:      DefaultTaskType,
		clientOptions: &genai.ClientConfig{},
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.apiKey == "" {
		e.apiKey = os.Getenv(APIKeyEnv)
	}
	if e.apiKey == "" {
		e.apiKey = os.Getenv(GoogleAPIKeyEnv)
	}
	if e.clientOptions.APIKey == "" {
		e.clientOptions.APIKey = e.apiKey
	}
	if e.clientOptions.APIKey == "" {
		return nil, fmt.Errorf("gemini embedder: %s is not provided", APIKeyEnv)
	}
	if e.clientOptions.Backend == genai.BackendUnspecified {
		e.clientOptions.Backend = genai.BackendGeminiAPI
	}
	client, err := genai.NewClient(ctx, e.clientOptions)
	if err != nil {
		return nil, fmt.Errorf("gemini embedder: new client: %w", err)
	}
	e.client = client
	return e, nil
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
	dims := int32(e.dimensions)
	cfg := &genai.EmbedContentConfig{TaskType: e.taskType}
	if dims > 0 {
		cfg.OutputDimensionality = &dims
	}
	model := strings.TrimPrefix(e.model, "models/")
	content := genai.NewContentFromText(text, genai.RoleUser)
	rsp, err := e.client.Models.EmbedContent(ctx, model, []*genai.Content{content}, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("create embedding: %w", err)
	}
	if len(rsp.Embeddings) == 0 || len(rsp.Embeddings[0].Values) == 0 {
		log.Warnf("gemini embedder: empty embedding for model %s", model)
		return []float64{}, nil, nil
	}
	vec := make([]float64, len(rsp.Embeddings[0].Values))
	for i, v := range rsp.Embeddings[0].Values {
		vec[i] = float64(v)
	}
	usage := map[string]any{}
	if rsp.Metadata != nil {
		usage["billable_character_count"] = rsp.Metadata.BillableCharacterCount
	}
	return vec, usage, nil
}
