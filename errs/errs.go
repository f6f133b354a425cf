//
// Tencent is pleased to support the open source community by making trpc-rag-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-rag-go is licensed under the Apache License Version 2.0.
//
//

// Package errs defines the error taxonomy shared by all components.
//
// Every failure that crosses a component boundary matches exactly one of the
// kind sentinels below via errors.Is, while the underlying cause stays
// reachable through errors.Is and errors.As as well.
package errs

import (
	"errors"
	"fmt"
)

// Error kinds.
var (
	// ErrIO marks file or local resource access failures.
	ErrIO = errors.New("io error")
	// ErrEmbedding marks embedding provider failures.
	ErrEmbedding = errors.New("embedding error")
	// ErrIndexLoad marks corrupt or missing index snapshots.
	ErrIndexLoad = errors.New("index load error")
	// ErrModel marks language model failures, including timeouts.
	ErrModel = errors.New("model error")
	// ErrStorage marks persistence backend failures.
	ErrStorage = errors.New("storage error")
	// ErrValidation marks malformed requests such as a bad email.
	ErrValidation = errors.New("validation error")
)

var kinds = []error{ErrIO, ErrEmbedding, ErrIndexLoad, ErrModel, ErrStorage, ErrValidation}

// Error is a classified error carrying the failed operation.
type Error struct {
	Kind error
	Op   string
	Err  error
}

// Error implements error.
func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap exposes both the kind and the cause.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Wrap classifies err as kind. It returns nil when err is nil.
func Wrap(kind error, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// New returns a classified error with a formatted message.
func New(kind error, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind sentinel err matches, or nil.
func KindOf(err error) error {
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
