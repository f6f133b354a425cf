//
// Tencent is pleased to support the open source community by making trpc-rag-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-rag-go is licensed under the Apache License Version 2.0.
//
//

// Package trace records request spans through OpenTelemetry. Until Start is
// called Tracer is a no-op.
package trace

import (
	"context"
	"fmt"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.34.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"trpc.group/trpc-go/trpc-rag-go/telemetry/metric"
)

// Span names.
const (
	SpanChat         = "chat"
	SpanCacheLookup  = "cache_lookup"
	SpanRetrieve     = "retrieve"
	SpanCallLLM      = "call_llm"
	SpanIndexRefresh = "index_refresh"
)

// Span attribute keys.
const (
	KeyChatID           = "ragchat.chat_id"
	KeyCached           = "ragchat.cached"
	KeySessionEnded     = "ragchat.session_ended"
	KeyCacheHit         = "ragchat.cache.hit"
	KeyRelevance        = "ragchat.cache.relevance"
	KeyDocuments        = "ragchat.retrieve.documents"
	KeyModel            = "ragchat.llm.model"
	KeyPromptTokens     = "ragchat.llm.prompt_tokens"
	KeyCompletionTokens = "ragchat.llm.completion_tokens"
	KeyTransition       = "ragchat.index.transition"
	KeyOutcome          = "ragchat.index.outcome"
	KeyFragments        = "ragchat.index.fragments"
)

// Tracer is the global tracer of the service.
var Tracer trace.Tracer = noop.NewTracerProvider().Tracer("")

// RecordError marks span as failed with err. A nil err is ignored.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// Start installs a tracer provider exporting spans over OTLP/HTTP, or to the
// processor given with WithSpanProcessor. The returned function flushes
// pending spans and restores the no-op tracer.
//
// Without WithEndpoint the endpoint comes from
// OTEL_EXPORTER_OTLP_TRACES_ENDPOINT or OTEL_EXPORTER_OTLP_ENDPOINT, and
// defaults to localhost:4318.
func Start(ctx context.Context, opts ...Option) (clean func() error, err error) {
	o := &options{
		tracesEndpoint: tracesEndpoint(),
		serviceVersion: "dev",
	}
	for _, opt := range opts {
		opt(o)
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNamespace(metric.ServiceNamespace),
			semconv.ServiceName(metric.ServiceName),
			semconv.ServiceVersion(o.serviceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}
	processor := o.processor
	if processor == nil {
		exporterOpts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(o.tracesEndpoint)}
		if o.insecure {
			exporterOpts = append(exporterOpts, otlptracehttp.WithInsecure())
		}
		if len(o.headers) > 0 {
			exporterOpts = append(exporterOpts, otlptracehttp.WithHeaders(o.headers))
		}
		exporter, err := otlptracehttp.New(ctx, exporterOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create trace exporter: %w", err)
		}
		processor = sdktrace.NewBatchSpanProcessor(exporter)
	}
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(processor),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	Tracer = provider.Tracer(metric.InstrumentName)
	return func() error {
		Tracer = noop.NewTracerProvider().Tracer("")
		if err := provider.Shutdown(context.WithoutCancel(ctx)); err != nil {
			return fmt.Errorf("failed to shutdown TracerProvider: %w", err)
		}
		return nil
	}, nil
}

func tracesEndpoint() string {
	if endpoint := os.Getenv("OTEL_EXPORTER_OTLP_TRACES_ENDPOINT"); endpoint != "" {
		return endpoint
	}
	if endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); endpoint != "" {
		return endpoint
	}
	return "localhost:4318"
}

// Option configures Start.
type Option func(*options)

type options struct {
	tracesEndpoint string
	serviceVersion string
	insecure       bool
	headers        map[string]string
	processor      sdktrace.SpanProcessor
}

// WithEndpoint sets the OTLP/HTTP endpoint (host and port, no scheme).
func WithEndpoint(endpoint string) Option {
	return func(o *options) {
		if endpoint != "" {
			o.tracesEndpoint = endpoint
		}
	}
}

// WithInsecure disables TLS towards the collector.
func WithInsecure(insecure bool) Option {
	return func(o *options) { o.insecure = insecure }
}

// WithHeaders sets headers sent with every export request.
func WithHeaders(headers map[string]string) Option {
	return func(o *options) { o.headers = headers }
}

// WithServiceVersion sets the reported service version.
func WithServiceVersion(v string) Option {
	return func(o *options) { o.serviceVersion = v }
}

// WithSpanProcessor replaces the OTLP exporter with p.
func WithSpanProcessor(p sdktrace.SpanProcessor) Option {
	return func(o *options) { o.processor = p }
}
