//
// Tencent is pleased to support the open source community by making trpc-rag-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-rag-go is licensed under the Apache License Version 2.0.
//
//

package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestSetLevel(t *testing.T) {
	defer SetLevel(LevelInfo)
	cases := []struct {
		in       string
		expected zapcore.Level
	}{
		{LevelDebug, zapcore.DebugLevel},
		{LevelInfo, zapcore.InfoLevel},
		{LevelWarn, zapcore.WarnLevel},
		{LevelError, zapcore.ErrorLevel},
		{LevelFatal, zapcore.FatalLevel},
		{"unknown", zapcore.InfoLevel},
	}
	for _, c := range cases {
		SetLevel(c.in)
		assert.Equal(t, c.expected, zapLevel.Level(), c.in)
	}
}

func TestNew_JSONHonoursLevel(t *testing.T) {
	defer SetLevel(LevelInfo)
	var buf bytes.Buffer
	l := New(&buf, FormatJSON)

	SetLevel(LevelWarn)
	l.Infof("dropped %d", 1)
	assert.Zero(t, buf.Len())

	l.Warnf("kept %d", 2)
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "kept 2", entry["message"])
	assert.Equal(t, "warn", entry["lvl"])
}

func TestPackageFuncsUseDefault(t *testing.T) {
	old := Default
	defer func() { Default = old }()
	var buf bytes.Buffer
	Default = New(&buf, FormatConsole)

	Infof("hello %s", "world")
	Info("plain")
	Warnf("w")
	Errorf("e")
	Debugf("filtered at info level")
	out := buf.String()
	assert.Contains(t, out, "hello world")
	assert.Contains(t, out, "plain")
	assert.NotContains(t, out, "filtered at info level")
}
