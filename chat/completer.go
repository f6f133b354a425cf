//
// Tencent is pleased to support the open source community by making trpc-rag-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-rag-go is licensed under the Apache License Version 2.0.
//
//

package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"trpc.group/trpc-go/trpc-rag-go/errs"
	"trpc.group/trpc-go/trpc-rag-go/log"
	"trpc.group/trpc-go/trpc-rag-go/model"
	"trpc.group/trpc-go/trpc-rag-go/session"
	"trpc.group/trpc-go/trpc-rag-go/telemetry/metric"
	"trpc.group/trpc-go/trpc-rag-go/telemetry/trace"
)

const (
	// DefaultTemperature is the sampling temperature of answers.
	DefaultTemperature = 0.8
	// DefaultCallTimeout bounds a single model call.
	DefaultCallTimeout = 60 * time.Second
	// DefaultSystemPrompt instructs the model to answer from the context.
	DefaultSystemPrompt = "Use the following pieces of context to answer the user's question. " +
		"If you don't know the answer, just say that you don't know, don't try to make up an answer."
)

var errEmptyAnswer = errors.New("model returned an empty answer")

// Completer answers a question from retrieved documents and recent history.
// A failed call is retried at most once.
type Completer struct {
	model        model.Model
	systemPrompt string
	temperature  float64
	maxTokens    int
	timeout      time.Duration
	retryDelay   time.Duration
}

// CompleterOption configures a Completer.
type CompleterOption func(*Completer)

// WithSystemPrompt replaces DefaultSystemPrompt.
func WithSystemPrompt(p string) CompleterOption {
	return func(c *Completer) { c.systemPrompt = p }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) CompleterOption {
	return func(c *Completer) { c.temperature = t }
}

// WithMaxTokens caps the answer length. Zero leaves it to the provider.
func WithMaxTokens(n int) CompleterOption {
	return func(c *Completer) { c.maxTokens = n }
}

// WithCallTimeout bounds each model call.
func WithCallTimeout(d time.Duration) CompleterOption {
	return func(c *Completer) { c.timeout = d }
}

// WithRetryDelay sets the pause before the retry.
func WithRetryDelay(d time.Duration) CompleterOption {
	return func(c *Completer) { c.retryDelay = d }
}

// NewCompleter creates a Completer over m.
func NewCompleter(m model.Model, opts ...CompleterOption) *Completer {
	c := &Completer{
		model:        m,
		systemPrompt: DefaultSystemPrompt,
		temperature:  DefaultTemperature,
		timeout:      DefaultCallTimeout,
		retryDelay:   500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Messages builds the model conversation for question.
func (c *Completer) Messages(question string, docs []string, history []session.ChatTurn) []model.Message {
	var sb strings.Builder
	sb.WriteString(c.systemPrompt)
	if len(docs) > 0 {
		sb.WriteString("\n\n----------------\n")
		sb.WriteString(strings.Join(docs, "\n\n"))
	}
	msgs := make([]model.Message, 0, 2*len(history)+2)
	msgs = append(msgs, model.NewSystemMessage(sb.String()))
	for _, turn := range history {
		msgs = append(msgs, model.NewUserMessage(turn.Question), model.NewAssistantMessage(turn.Answer))
	}
	return append(msgs, model.NewUserMessage(question))
}

// Complete returns the model answer. Failures match errs.ErrModel.
func (c *Completer) Complete(
	ctx context.Context,
	question string,
	docs []string,
	history []session.ChatTurn,
) (string, error) {
	req := &model.Request{Messages: c.Messages(question, docs, history)}
	temp := c.temperature
	req.Temperature = &temp
	if c.maxTokens > 0 {
		n := c.maxTokens
		req.MaxTokens = &n
	}

	answer, err := c.call(ctx, req)
	if err == nil {
		metric.RecordModelCall(ctx, metric.OutcomeSuccess)
		return answer, nil
	}
	if ctx.Err() != nil {
		metric.RecordModelCall(ctx, metric.OutcomeFailure)
		return "", errs.Wrap(errs.ErrModel, "complete", err)
	}
	log.Warnf("model %s call failed, retrying once: %v", c.model.Info().Name, err)
	metric.RecordModelCall(ctx, metric.OutcomeRetried)
	if c.retryDelay > 0 {
		t := time.NewTimer(c.retryDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			metric.RecordModelCall(ctx, metric.OutcomeFailure)
			return "", errs.Wrap(errs.ErrModel, "complete", ctx.Err())
		case <-t.C:
		}
	}
	answer, err = c.call(ctx, req)
	if err != nil {
		metric.RecordModelCall(ctx, metric.OutcomeFailure)
		return "", errs.Wrap(errs.ErrModel, "complete", err)
	}
	metric.RecordModelCall(ctx, metric.OutcomeSuccess)
	return answer, nil
}

func (c *Completer) call(ctx context.Context, req *model.Request) (answer string, err error) {
	ctx, span := trace.Tracer.Start(ctx, trace.SpanCallLLM)
	span.SetAttributes(attribute.String(trace.KeyModel, c.model.Info().Name))
	defer func() {
		trace.RecordError(span, err)
		span.End()
	}()
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	ch, err := c.model.GenerateContent(ctx, req)
	if err != nil {
		return "", err
	}
	answer, usage, err := model.Text(ctx, ch)
	if err != nil {
		return "", err
	}
	if usage != nil {
		span.SetAttributes(
			attribute.Int(trace.KeyPromptTokens, usage.PromptTokens),
			attribute.Int(trace.KeyCompletionTokens, usage.CompletionTokens),
		)
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return "", errEmptyAnswer
	}
	return answer, nil
}
