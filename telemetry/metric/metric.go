//
// Tencent is pleased to support the open source community by making trpc-rag-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-rag-go is licensed under the Apache License Version 2.0.
//
//

// Package metric records service metrics through OpenTelemetry. Until Start
// is called every instrument is a no-op.
package metric

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	noopm "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.34.0"
)

// Service identity reported with every metric.
const (
	ServiceName      = "ragchat"
	ServiceNamespace = "trpc-rag-go"
	InstrumentName   = "trpc.rag.go"
)

// Outcome labels.
const (
	OutcomeSuccess  = "success"
	OutcomeFailure  = "failure"
	OutcomeFallback = "fallback"
	OutcomeSkipped  = "skipped"
	OutcomeRetried  = "retried"
)

// Meter is the global OpenTelemetry meter of the service.
var Meter metric.Meter = noopm.Meter{}

type instruments struct {
	cacheLookups    metric.Int64Counter
	indexRefreshes  metric.Int64Counter
	refreshDuration metric.Float64Histogram
	modelCalls      metric.Int64Counter
	sessionFlushes  metric.Int64Counter
}

var current atomic.Pointer[instruments]

func init() {
	current.Store(newInstruments(Meter))
}

func newInstruments(m metric.Meter) *instruments {
	// Invalid instruments fall back to no-ops.
	in := &instruments{}
	var err error
	if in.cacheLookups, err = m.Int64Counter("ragchat.cache.lookups",
		metric.WithDescription("Semantic cache lookups by result.")); err != nil {
		in.cacheLookups = noopm.Int64Counter{}
	}
	if in.indexRefreshes, err = m.Int64Counter("ragchat.index.refreshes",
		metric.WithDescription("Index refreshes by transition and outcome.")); err != nil {
		in.indexRefreshes = noopm.Int64Counter{}
	}
	if in.refreshDuration, err = m.Float64Histogram("ragchat.index.refresh.duration",
		metric.WithUnit("s"), metric.WithDescription("Duration of index refreshes.")); err != nil {
		in.refreshDuration = noopm.Float64Histogram{}
	}
	if in.modelCalls, err = m.Int64Counter("ragchat.model.calls",
		metric.WithDescription("Language model calls by outcome.")); err != nil {
		in.modelCalls = noopm.Int64Counter{}
	}
	if in.sessionFlushes, err = m.Int64Counter("ragchat.session.flushes",
		metric.WithDescription("Session flushes by outcome.")); err != nil {
		in.sessionFlushes = noopm.Int64Counter{}
	}
	return in
}

// RecordCacheLookup counts one semantic cache lookup.
func RecordCacheLookup(ctx context.Context, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	current.Load().cacheLookups.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// RecordIndexRefresh counts one index refresh and its duration.
func RecordIndexRefresh(ctx context.Context, transition, outcome string, d time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("transition", transition),
		attribute.String("outcome", outcome),
	)
	in := current.Load()
	in.indexRefreshes.Add(ctx, 1, attrs)
	in.refreshDuration.Record(ctx, d.Seconds(), attrs)
}

// RecordModelCall counts one language model call.
func RecordModelCall(ctx context.Context, outcome string) {
	current.Load().modelCalls.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordSessionFlush counts one session flush attempt.
func RecordSessionFlush(ctx context.Context, outcome string) {
	current.Load().sessionFlushes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// Start installs a meter provider exporting over OTLP/HTTP, or to the reader
// given with WithReader. The returned function flushes and shuts it down.
func Start(ctx context.Context, opts ...Option) (clean func() error, err error) {
	o := &options{
		metricsEndpoint: metricsEndpoint(),
		serviceName:     ServiceName,
		serviceVersion:  "dev",
		interval:        time.Minute,
	}
	for _, opt := range opts {
		opt(o)
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNamespace(ServiceNamespace),
			semconv.ServiceName(o.serviceName),
			semconv.ServiceVersion(o.serviceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}
	reader := o.reader
	if reader == nil {
		exporterOpts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(o.metricsEndpoint)}
		if o.insecure {
			exporterOpts = append(exporterOpts, otlpmetrichttp.WithInsecure())
		}
		exporter, err := otlpmetrichttp.New(ctx, exporterOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create metrics exporter: %w", err)
		}
		reader = sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(o.interval))
	}
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(reader),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(provider)
	Meter = provider.Meter(InstrumentName)
	current.Store(newInstruments(Meter))
	return func() error {
		current.Store(newInstruments(noopm.Meter{}))
		Meter = noopm.Meter{}
		if err := provider.Shutdown(context.WithoutCancel(ctx)); err != nil {
			return fmt.Errorf("failed to shutdown MeterProvider: %w", err)
		}
		return nil
	}, nil
}

func metricsEndpoint() string {
	if endpoint := os.Getenv("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT"); endpoint != "" {
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
	metricsEndpoint string
	serviceName     string
	serviceVersion  string
	insecure        bool
	interval        time.Duration
	reader          sdkmetric.Reader
}

// WithEndpoint sets the OTLP/HTTP endpoint (host and port, no scheme). It
// takes precedence over OTEL_EXPORTER_OTLP_METRICS_ENDPOINT and
// OTEL_EXPORTER_OTLP_ENDPOINT.
func WithEndpoint(endpoint string) Option {
	return func(o *options) {
		if endpoint != "" {
			o.metricsEndpoint = endpoint
		}
	}
}

// WithInsecure disables TLS towards the collector.
func WithInsecure(insecure bool) Option {
	return func(o *options) { o.insecure = insecure }
}

// WithInterval sets the export interval.
func WithInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.interval = d
		}
	}
}

// WithServiceVersion sets the reported service version.
func WithServiceVersion(v string) Option {
	return func(o *options) { o.serviceVersion = v }
}

// WithReader replaces the OTLP exporter with reader.
func WithReader(r sdkmetric.Reader) Option {
	return func(o *options) { o.reader = r }
}
