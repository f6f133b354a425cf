//
// Tencent is pleased to support the open source community by making trpc-rag-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-rag-go is licensed under the Apache License Version 2.0.
//
//

// Package tiktoken counts tokens with the OpenAI BPE encodings.
package tiktoken

import (
	"fmt"

	"github.com/tiktoken-go/tokenizer"
)

// Counter counts tokens with one encoding. It is safe for concurrent use.
type Counter struct {
	codec tokenizer.Codec
}

// New returns a Counter for the encoding used by modelName. Models tiktoken
// does not know, such as the hosted Llama models, get cl100k_base.
func New(modelName string) (*Counter, error) {
	if codec, err := tokenizer.ForModel(tokenizer.Model(modelName)); err == nil {
		return &Counter{codec: codec}, nil
	}
	return NewCl100k()
}

// NewCl100k returns a cl100k_base Counter.
func NewCl100k() (*Counter, error) {
	codec, err := tokenizer.Get(tokenizer.Cl100kBase)
	if err != nil {
		return nil, fmt.Errorf("tiktoken: load cl100k_base: %w", err)
	}
	return &Counter{codec: codec}, nil
}

// Count returns the number of tokens in text.
func (c *Counter) Count(text string) (int, error) {
	if text == "" {
		return 0, nil
	}
	ids, _, err := c.codec.Encode(text)
	if err != nil {
		return 0, fmt.Errorf("tiktoken: encode: %w", err)
	}
	return len(ids), nil
}
