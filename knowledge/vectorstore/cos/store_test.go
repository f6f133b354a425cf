//
// Tencent is pleased to support the open source community by making trpc-rag-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-rag-go is licensed under the Apache License Version 2.0.
//
//

package cos

import (
	"bytes"
	"context"
	"errors"
	"hash/crc64"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	cos "github.com/tencentyun/cos-go-sdk-v5"

	"trpc.group/trpc-go/trpc-rag-go/errs"
	"trpc.group/trpc-go/trpc-rag-go/knowledge/vectorstore"
)

// bucketTransport emulates the object endpoints of a COS bucket.
type bucketTransport struct {
	mu      sync.Mutex
	objects map[string][]byte
	puts    int
}

func (b *bucketTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := strings.TrimPrefix(req.URL.Path, "/")
	switch req.Method {
	case http.MethodPut:
		data, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		b.objects[key] = data
		b.puts++
		header := make(http.Header)
		header.Set("x-cos-hash-crc64ecma", strconv.FormatUint(crc64.Checksum(data, crc64.MakeTable(crc64.ECMA)), 10))
		header.Set("ETag", `"etag"`)
		return &http.Response{StatusCode: http.StatusOK, Header: header, Body: io.NopCloser(strings.NewReader(""))}, nil
	case http.MethodGet:
		data, ok := b.objects[key]
		if !ok {
			return &http.Response{
				StatusCode: http.StatusNotFound,
				Header:     make(http.Header),
				Body:       io.NopCloser(strings.NewReader(`<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code></Error>`)),
			}, nil
		}
		header := make(http.Header)
		header.Set("Content-Type", contentType)
		return &http.Response{StatusCode: http.StatusOK, Header: header, Body: io.NopCloser(bytes.NewReader(data))}, nil
	}
	return &http.Response{StatusCode: http.StatusMethodNotAllowed, Header: make(http.Header), Body: io.NopCloser(strings.NewReader(""))}, nil
}

func newTestStore(t *testing.T, opts ...Option) (*Store, *bucketTransport) {
	t.Helper()
	tr := &bucketTransport{objects: map[string][]byte{}}
	u, _ := url.Parse("https://test-bucket-1234567890.cos.ap-guangzhou.myqcloud.com")
	c := cos.NewClient(&cos.BaseURL{BucketURL: u}, &http.Client{Transport: tr})
	s, err := New("", append([]Option{WithClient(c)}, opts...)...)
	require.NoError(t, err)
	return s, tr
}

func TestStore_PersistRestore(t *testing.T) {
	ctx := context.Background()
	s, tr := newTestStore(t, WithKey("course/index.zst"))
	assert.Equal(t, "course/index.zst", s.Key())

	_, err := vectorstore.Restore(ctx, s)
	assert.True(t, errors.Is(err, errs.ErrIndexLoad))
	assert.True(t, errors.Is(err, vectorstore.ErrSnapshotNotFound))

	ix := vectorstore.New()
	_, err = ix.Insert([]vectorstore.Fragment{{Text: "hello", Vector: []float64{1, 0}}})
	require.NoError(t, err)
	require.NoError(t, ix.Persist(ctx, s))
	assert.Equal(t, 1, tr.puts)
	assert.Contains(t, tr.objects, "course/index.zst")

	got, err := vectorstore.Restore(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, ix.Fragments(), got.Fragments())
}

func TestNew_Options(t *testing.T) {
	t.Setenv(SecretIDEnv, "id")
	t.Setenv(SecretKeyEnv, "key")
	s, err := New("https://bucket.cos.ap-guangzhou.myqcloud.com", WithTimeout(0))
	require.NoError(t, err)
	assert.Equal(t, defaultKey, s.Key())

	o := defaultOptions()
	assert.Equal(t, "id", o.secretID)
	assert.Equal(t, "key", o.secretKey)
	assert.Equal(t, defaultTimeout, o.timeout)

	_, err = New("://bad")
	assert.Error(t, err)
}
