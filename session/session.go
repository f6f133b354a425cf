//
// Tencent is pleased to support the open source community by making trpc-rag-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-rag-go is licensed under the Apache License Version 2.0.
//
//

// Package session keeps the in-memory chat sessions and flushes their
// history to durable storage when they end.
package session

import (
	"errors"
	"sync"
	"time"
)

const (
	// DefaultWindow is the number of recent turns handed to the model.
	DefaultWindow = 5
	// DefaultTimeout is the session lifetime measured from its start.
	DefaultTimeout = 30 * time.Minute
	// DefaultTimeZone is the zone turn timestamps are rendered in.
	DefaultTimeZone = "Asia/Kolkata"
	// TimestampLayout is the layout of ChatTurn.Timestamp.
	TimestampLayout = "2006-01-02 15:04:05"
)

var (
	// ErrSessionNotFound is returned for an unknown or already flushed chat id.
	ErrSessionNotFound = errors.New("session: not found")
	// ErrEmailRequired is returned when a session is started without email.
	ErrEmailRequired = errors.New("session: email is required")
	// ErrEmailMismatch is returned when a live chat id is used with the email
	// of another user.
	ErrEmailMismatch = errors.New("session: chat belongs to another email")
)

// ChatTurn is one question and its answer.
type ChatTurn struct {
	Question  string `json:"question"`  // Question is the user question.
	Answer    string `json:"answer"`    // Answer is the reply shown to the user.
	Timestamp string `json:"timestamp"` // Timestamp is rendered in the manager's zone.
}

// Session is a live chat. Its fields are guarded by mu; use Snapshot to read
// them from outside the package.
type Session struct {
	ID        string     `json:"chat_id"`    // ID is the chat id.
	Email     string     `json:"email"`      // Email identifies the user.
	StartTime time.Time  `json:"start_time"` // StartTime is when the session began.
	History   []ChatTurn `json:"history"`    // History holds every turn.

	mu      sync.Mutex
	stopped bool
	flushed bool
}

// Snapshot returns a copy safe to use without locking.
func (s *Session) Snapshot() Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

func (s *Session) snapshot() Session {
	return Session{
		ID:        s.ID,
		Email:     s.Email,
		StartTime: s.StartTime,
		History:   append([]ChatTurn(nil), s.History...),
		stopped:   s.stopped,
	}
}

// Stopped reports whether a stop signal was received.
func (s *Session) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// ShouldExpire reports whether the session outlived timeout at now or was
// stopped.
func (s *Session) ShouldExpire(now time.Time, timeout time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expired(now, timeout)
}

func (s *Session) expired(now time.Time, timeout time.Duration) bool {
	return s.stopped || now.Sub(s.StartTime) > timeout
}

// Record is the persisted form of a finished session.
type Record struct {
	ChatID    string     `json:"chat_id"`
	Email     string     `json:"email"`
	StartTime time.Time  `json:"start_time"`
	EndTime   time.Time  `json:"end_time"`
	History   []ChatTurn `json:"history"`
}

// Seed restores a session the client still holds but the server has lost,
// for example after a restart.
type Seed struct {
	StartTime time.Time
	History   []ChatTurn
}
