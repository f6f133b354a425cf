//
// Tencent is pleased to support the open source community by making trpc-rag-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-rag-go is licensed under the Apache License Version 2.0.
//
//

// Package openai provides an OpenAI-compatible chat model. Any provider
// speaking the chat completions protocol, such as Groq, works through
// WithBaseURL.
package openai

import (
	"context"
	"errors"
	"strconv"
	"time"

	openai "github.com/openai/openai-go"
	openaiopt "github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"trpc.group/trpc-go/trpc-rag-go/log"
	"trpc.group/trpc-go/trpc-rag-go/model"
)

const (
	// defaultChannelBufferSize is the default channel buffer size.
	defaultChannelBufferSize = 256
	// GroqBaseURL is the OpenAI-compatible endpoint of Groq.
	GroqBaseURL = "https://api.groq.com/openai/v1"
)

// ChatRequestCallbackFunc is called before a request is sent.
type ChatRequestCallbackFunc func(ctx context.Context, req *openai.ChatCompletionNewParams)

// ChatResponseCallbackFunc is called after a non-streaming response arrives.
type ChatResponseCallbackFunc func(
	ctx context.Context,
	req *openai.ChatCompletionNewParams,
	rsp *openai.ChatCompletion,
	err error,
)

type options struct {
	// API key for the OpenAI client.
	APIKey string
	// Base URL for the OpenAI client. It is optional for OpenAI-compatible APIs.
	BaseURL string
	// Buffer size for response channels (default: 256)
	ChannelBufferSize int
	// Callback for the chat request.
	ChatRequestCallback ChatRequestCallbackFunc
	// Callback for the chat response.
	ChatResponseCallback ChatResponseCallbackFunc
	// Options for the OpenAI client.
	OpenAIOptions []openaiopt.RequestOption
}

// Option is a function that configures an OpenAI model.
type Option func(*options)

// WithAPIKey sets the API key for the OpenAI client.
func WithAPIKey(key string) Option {
	return func(o *options) { o.APIKey = key }
}

// WithBaseURL sets the base URL for the OpenAI client.
func WithBaseURL(url string) Option {
	return func(o *options) { o.BaseURL = url }
}

// WithChannelBufferSize sets the channel buffer size for the OpenAI client.
func WithChannelBufferSize(size int) Option {
	return func(o *options) {
		if size <= 0 {
			size = defaultChannelBufferSize
		}
		o.ChannelBufferSize = size
	}
}

// WithChatRequestCallback sets the function to be called before sending a
// chat request.
func WithChatRequestCallback(fn ChatRequestCallbackFunc) Option {
	return func(o *options) { o.ChatRequestCallback = fn }
}

// WithChatResponseCallback sets the function to be called after receiving a
// non-streaming chat response.
func WithChatResponseCallback(fn ChatResponseCallbackFunc) Option {
	return func(o *options) { o.ChatResponseCallback = fn }
}

// WithOpenAIOptions appends raw openai-go request options.
func WithOpenAIOptions(openaiOpts ...openaiopt.RequestOption) Option {
	return func(o *options) { o.OpenAIOptions = append(o.OpenAIOptions, openaiOpts...) }
}

// Model implements model.Model over the chat completions API.
type Model struct {
	client               openai.Client
	name                 string
	channelBufferSize    int
	chatRequestCallback  ChatRequestCallbackFunc
	chatResponseCallback ChatResponseCallbackFunc
}

// New creates a new OpenAI-compatible model. The client does not retry on
// its own; callers decide the retry policy.
func New(name string, opts ...Option) *Model {
	o := &options{ChannelBufferSize: defaultChannelBufferSize}
	for _, opt := range opts {
		opt(o)
	}
	clientOpts := []openaiopt.RequestOption{openaiopt.WithMaxRetries(0)}
	if o.APIKey != "" {
		clientOpts = append(clientOpts, openaiopt.WithAPIKey(o.APIKey))
	}
	if o.BaseURL != "" {
		clientOpts = append(clientOpts, openaiopt.WithBaseURL(o.BaseURL))
	}
	clientOpts = append(clientOpts, o.OpenAIOptions...)
	return &Model{
		client:               openai.NewClient(clientOpts...),
		name:                 name,
		channelBufferSize:    o.ChannelBufferSize,
		chatRequestCallback:  o.ChatRequestCallback,
		chatResponseCallback: o.ChatResponseCallback,
	}
}

// Info implements the model.Model interface.
func (m *Model) Info() model.Info {
	return model.Info{Name: m.name}
}

// GenerateContent implements the model.Model interface.
func (m *Model) GenerateContent(
	ctx context.Context,
	request *model.Request,
) (<-chan *model.Response, error) {
	if request == nil {
		return nil, errors.New("request cannot be nil")
	}
	if len(request.Messages) == 0 {
		return nil, errors.New("request has no messages")
	}

	chatRequest := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(m.name),
		Messages: convertMessages(request.Messages),
	}
	if request.MaxTokens != nil {
		chatRequest.MaxCompletionTokens = openai.Int(int64(*request.MaxTokens))
	}
	if request.Temperature != nil {
		chatRequest.Temperature = openai.Float(*request.Temperature)
	}
	if request.TopP != nil {
		chatRequest.TopP = openai.Float(*request.TopP)
	}
	if len(request.Stop) > 0 {
		chatRequest.Stop = openai.ChatCompletionNewParamsStopUnion{OfStringArray: request.Stop}
	}
	if request.Stream {
		chatRequest.StreamOptions = openai.ChatCompletionStreamOptionsParam{
			IncludeUsage: openai.Bool(true),
		}
	}

	responseChan := make(chan *model.Response, m.channelBufferSize)
	go func() {
		defer close(responseChan)
		if m.chatRequestCallback != nil {
			m.chatRequestCallback(ctx, &chatRequest)
		}
		if request.Stream {
			m.handleStreamingResponse(ctx, chatRequest, responseChan)
		} else {
			m.handleNonStreamingResponse(ctx, chatRequest, responseChan)
		}
	}()
	return responseChan, nil
}

func convertMessages(messages []model.Message) []openai.ChatCompletionMessageParamUnion {
	result := make([]openai.ChatCompletionMessageParamUnion, len(messages))
	for i, msg := range messages {
		switch msg.Role {
		case model.RoleSystem:
			result[i] = openai.SystemMessage(msg.Content)
		case model.RoleAssistant:
			result[i] = openai.AssistantMessage(msg.Content)
		default:
			result[i] = openai.UserMessage(msg.Content)
		}
	}
	return result
}

func (m *Model) handleNonStreamingResponse(
	ctx context.Context,
	chatRequest openai.ChatCompletionNewParams,
	responseChan chan<- *model.Response,
) {
	chatCompletion, err := m.client.Chat.Completions.New(ctx, chatRequest)
	if m.chatResponseCallback != nil {
		m.chatResponseCallback(ctx, &chatRequest, chatCompletion, err)
	}
	if err != nil {
		send(ctx, responseChan, errorResponse(err))
		return
	}
	response := &model.Response{
		ID:        chatCompletion.ID,
		Object:    string(chatCompletion.Object),
		Created:   chatCompletion.Created,
		Model:     chatCompletion.Model,
		Choices:   convertChoices(chatCompletion.Choices),
		Usage:     convertUsage(chatCompletion.Usage),
		Timestamp: time.Now(),
		Done:      true,
	}
	send(ctx, responseChan, response)
}

func (m *Model) handleStreamingResponse(
	ctx context.Context,
	chatRequest openai.ChatCompletionNewParams,
	responseChan chan<- *model.Response,
) {
	stream := m.client.Chat.Completions.NewStreaming(ctx, chatRequest)
	defer stream.Close()

	acc := openai.ChatCompletionAccumulator{}
	for stream.Next() {
		chunk := stream.Current()
		acc.AddChunk(chunk)
		if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
			continue
		}
		partial := &model.Response{
			ID:        chunk.ID,
			Object:    model.ObjectTypeChatCompletionChunk,
			Created:   chunk.Created,
			Model:     chunk.Model,
			Timestamp: time.Now(),
			IsPartial: true,
		}
		for _, c := range chunk.Choices {
			partial.Choices = append(partial.Choices, model.Choice{
				Index: int(c.Index),
				Delta: model.Message{Role: model.RoleAssistant, Content: c.Delta.Content},
			})
		}
		if !send(ctx, responseChan, partial) {
			return
		}
	}
	if err := stream.Err(); err != nil {
		log.Warnf("chat stream of %s failed: %v", m.name, err)
		send(ctx, responseChan, &model.Response{
			Error: &model.ResponseError{
				Message: err.Error(),
				Type:    model.ErrorTypeStreamError,
			},
			Timestamp: time.Now(),
			Done:      true,
		})
		return
	}
	send(ctx, responseChan, &model.Response{
		ID:        acc.ID,
		Object:    model.ObjectTypeChatCompletion,
		Created:   acc.Created,
		Model:     acc.Model,
		Choices:   convertChoices(acc.Choices),
		Usage:     convertUsage(acc.Usage),
		Timestamp: time.Now(),
		Done:      true,
	})
}

func convertChoices(choices []openai.ChatCompletionChoice) []model.Choice {
	if len(choices) == 0 {
		return nil
	}
	out := make([]model.Choice, len(choices))
	for i, choice := range choices {
		out[i] = model.Choice{
			Index:   int(choice.Index),
			Message: model.NewAssistantMessage(choice.Message.Content),
		}
		if choice.FinishReason != "" {
			finishReason := choice.FinishReason
			out[i].FinishReason = &finishReason
		}
	}
	return out
}

func convertUsage(u openai.CompletionUsage) *model.Usage {
	if u.PromptTokens == 0 && u.CompletionTokens == 0 {
		return nil
	}
	return &model.Usage{
		PromptTokens:     int(u.PromptTokens),
		CompletionTokens: int(u.CompletionTokens),
		TotalTokens:      int(u.TotalTokens),
	}
}

func errorResponse(err error) *model.Response {
	rspErr := &model.ResponseError{Message: err.Error(), Type: model.ErrorTypeAPIError}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		rspErr.Code = strconv.Itoa(apiErr.StatusCode)
		if apiErr.Message != "" {
			rspErr.Message = apiErr.Message
		}
	}
	return &model.Response{Error: rspErr, Timestamp: time.Now(), Done: true}
}

func send(ctx context.Context, ch chan<- *model.Response, rsp *model.Response) bool {
	select {
	case ch <- rsp:
		return true
	case <-ctx.Done():
		return false
	}
}
