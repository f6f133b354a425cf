//
// Tencent is pleased to support the open source community by making trpc-rag-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-rag-go is licensed under the Apache License Version 2.0.
//
//

// Package log is the process wide logger, a sugared zap logger behind a
// small interface.
package log

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Levels accepted by SetLevel.
const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
	LevelFatal = "fatal"
)

// Output formats accepted by New.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// Logger is implemented by *zap.SugaredLogger.
type Logger interface {
	Debugf(format string, args ...any)
	Info(args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
	Fatalf(format string, args ...any)
}

var zapLevel = zap.NewAtomicLevelAt(zapcore.InfoLevel)

// Default receives the package level calls. Init or tests may replace it.
var Default Logger = New(os.Stdout, FormatConsole)

// New returns a Logger writing console or JSON lines to w. All loggers share
// the level set by SetLevel.
func New(w io.Writer, format string) Logger {
	cfg := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "lvl",
		CallerKey:      "caller",
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalColorLevelEncoder,
		EncodeTime:     zapcore.RFC3339TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	enc := zapcore.NewConsoleEncoder(cfg)
	if format == FormatJSON {
		cfg.EncodeLevel = zapcore.LowercaseLevelEncoder
		enc = zapcore.NewJSONEncoder(cfg)
	}
	core := zapcore.NewCore(enc, zapcore.AddSync(w), zapLevel)
	return zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)).Sugar()
}

// Init points Default at stdout in the given format and sets the level.
func Init(level, format string) {
	Default = New(os.Stdout, format)
	SetLevel(level)
}

// SetLevel changes the level of every logger. Unknown names mean info.
func SetLevel(level string) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil || lvl < zapcore.DebugLevel || lvl > zapcore.FatalLevel {
		lvl = zapcore.InfoLevel
	}
	zapLevel.SetLevel(lvl)
}

func Debugf(format string, args ...any) { Default.Debugf(format, args...) }

func Info(args ...any) { Default.Info(args...) }

func Infof(format string, args ...any) { Default.Infof(format, args...) }

func Warnf(format string, args ...any) { Default.Warnf(format, args...) }

func Errorf(format string, args ...any) { Default.Errorf(format, args...) }

// Fatalf logs and exits the process.
func Fatalf(format string, args ...any) { Default.Fatalf(format, args...) }
