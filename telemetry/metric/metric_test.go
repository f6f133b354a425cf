//
// Tencent is pleased to support the open source community by making trpc-rag-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-rag-go is licensed under the Apache License Version 2.0.
//
//

package metric

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestMetricsEndpoint(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT", "custom-metric:4318")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "generic-endpoint:4318")
	assert.Equal(t, "custom-metric:4318", metricsEndpoint())

	t.Setenv("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT", "")
	assert.Equal(t, "generic-endpoint:4318", metricsEndpoint())

	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	assert.Equal(t, "localhost:4318", metricsEndpoint())
}

func TestRecordBeforeStart(t *testing.T) {
	ctx := context.Background()
	assert.NotPanics(t, func() {
		RecordCacheLookup(ctx, true)
		RecordIndexRefresh(ctx, "rebuild", OutcomeSuccess, time.Second)
		RecordModelCall(ctx, OutcomeFailure)
		RecordSessionFlush(ctx, OutcomeSuccess)
	})
}

func TestStartWithReader(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	clean, err := Start(ctx, WithReader(reader), WithServiceVersion("test"))
	require.NoError(t, err)
	defer func() { _ = clean() }()

	RecordCacheLookup(ctx, true)
	RecordCacheLookup(ctx, false)
	RecordCacheLookup(ctx, true)
	RecordModelCall(ctx, OutcomeSuccess)
	RecordIndexRefresh(ctx, "merge", OutcomeFallback, 10*time.Millisecond)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	sums := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if data, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range data.DataPoints {
					sums[m.Name] += dp.Value
				}
			}
		}
	}
	assert.EqualValues(t, 3, sums["ragchat.cache.lookups"])
	assert.EqualValues(t, 1, sums["ragchat.model.calls"])
	assert.EqualValues(t, 1, sums["ragchat.index.refreshes"])
}

func TestStartWithEndpoint(t *testing.T) {
	var posts atomic.Int32
	collector := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/metrics" {
			posts.Add(1)
		}
		w.Header().Set("Content-Type", "application/x-protobuf")
		w.WriteHeader(http.StatusOK)
	}))
	defer collector.Close()

	ctx := context.Background()
	clean, err := Start(ctx,
		WithEndpoint(collector.Listener.Addr().String()),
		WithInsecure(true),
		WithInterval(time.Hour),
	)
	require.NoError(t, err)
	RecordSessionFlush(ctx, OutcomeSuccess)
	require.NoError(t, clean())
	assert.GreaterOrEqual(t, posts.Load(), int32(1), "shutdown flushes pending metrics")
}
