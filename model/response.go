//
// Tencent is pleased to support the open source community by making trpc-rag-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-rag-go is licensed under the Apache License Version 2.0.
//
//

package model

import (
	"time"
)

// Error types of ResponseError.
const (
	ErrorTypeStreamError = "stream_error"
	ErrorTypeAPIError    = "api_error"
)

// Object types of Response.
const (
	ObjectTypeChatCompletionChunk = "chat.completion.chunk"
	ObjectTypeChatCompletion      = "chat.completion"
)

// Choice represents a single completion choice.
type Choice struct {
	// Index is the index of the choice in the list of choices.
	Index int `json:"index"`

	// Message is the completion message, set on non-streaming and final
	// responses.
	Message Message `json:"message,omitempty"`

	// Delta is the incremental content of a streaming chunk.
	Delta Message `json:"delta,omitempty"`

	// FinishReason is why the model stopped generating tokens.
	FinishReason *string `json:"finish_reason,omitempty"`
}

// Usage represents token usage information.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is one message of the GenerateContent channel.
type Response struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   *Usage   `json:"usage,omitempty"`

	// Error contains error information if the request failed.
	Error *ResponseError `json:"error,omitempty"`

	// Timestamp is when the response was produced.
	Timestamp time.Time `json:"timestamp"`

	// Done indicates whether this is the final response.
	Done bool `json:"done"`

	// IsPartial indicates a streaming chunk.
	IsPartial bool `json:"is_partial"`
}

// ResponseError represents an error returned by the model API.
type ResponseError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
}

// Error implements error.
func (e *ResponseError) Error() string {
	if e.Code != "" {
		return e.Type + " (" + e.Code + "): " + e.Message
	}
	return e.Type + ": " + e.Message
}
