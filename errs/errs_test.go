//
// Tencent is pleased to support the open source community by making trpc-rag-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-rag-go is licensed under the Apache License Version 2.0.
//
//

package errs

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(ErrIO, "read", nil))

	err := Wrap(ErrIO, "read a.txt", fs.ErrNotExist)
	assert.True(t, errors.Is(err, ErrIO))
	assert.True(t, errors.Is(err, fs.ErrNotExist))
	assert.False(t, errors.Is(err, ErrStorage))
	assert.Equal(t, "read a.txt: file does not exist", err.Error())

	var e *Error
	assert.True(t, errors.As(fmt.Errorf("outer: %w", err), &e))
	assert.Equal(t, "read a.txt", e.Op)
}

func TestNewAndKindOf(t *testing.T) {
	err := New(ErrValidation, "chat", "invalid email %q", "x")
	assert.Equal(t, `chat: invalid email "x"`, err.Error())
	assert.Equal(t, ErrValidation, KindOf(err))
	assert.Equal(t, ErrModel, KindOf(fmt.Errorf("wrapped: %w", Wrap(ErrModel, "complete", errors.New("timeout")))))
	assert.Nil(t, KindOf(errors.New("plain")))

	bare := &Error{Kind: ErrStorage, Op: "put"}
	assert.Equal(t, "put: storage error", bare.Error())
	assert.True(t, errors.Is(bare, ErrStorage))
}
