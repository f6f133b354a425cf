//
// Tencent is pleased to support the open source community by making trpc-rag-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-rag-go is licensed under the Apache License Version 2.0.
//
//

// Package model defines the contract of the chat language model.
package model

import "context"

// Model is the interface that all language models must implement.
type Model interface {
	// GenerateContent generates content from the given request.
	//
	// Returns:
	// - A channel of Response objects, a single one unless Stream is set
	// - An error for failures that prevent the request from being sent
	//
	// The Response objects may carry their own Error for API-level errors.
	GenerateContent(ctx context.Context, request *Request) (<-chan *Response, error)

	// Info returns basic information about the model.
	Info() Info
}

// Info contains basic information about a Model.
type Info struct {
	// Name is the name of the model.
	Name string
}

// Text drains the channel of GenerateContent and returns the assistant
// text. Streaming deltas are concatenated; the first response error is
// returned as a *ResponseError.
func Text(ctx context.Context, ch <-chan *Response) (string, *Usage, error) {
	var (
		text  string
		usage *Usage
	)
	for {
		select {
		case <-ctx.Done():
			return "", nil, ctx.Err()
		case rsp, ok := <-ch:
			if !ok {
				return text, usage, nil
			}
			if rsp == nil {
				continue
			}
			if rsp.Error != nil {
				return "", nil, rsp.Error
			}
			if rsp.Usage != nil {
				usage = rsp.Usage
			}
			for _, c := range rsp.Choices {
				if rsp.IsPartial {
					text += c.Delta.Content
				} else if rsp.Done && c.Message.Content != "" {
					text = c.Message.Content
				}
			}
		}
	}
}
