//
// Tencent is pleased to support the open source community by making trpc-rag-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-rag-go is licensed under the Apache License Version 2.0.
//
//

package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"trpc.group/trpc-go/trpc-rag-go/log"
	"trpc.group/trpc-go/trpc-rag-go/telemetry/metric"
)

const (
	defaultRetryDelay    = 200 * time.Millisecond
	defaultCleanupPeriod = time.Minute
	shutdownFlushTimeout = 10 * time.Second
)

// Manager owns the live sessions. It is safe for concurrent use; each
// session has its own lock so chats do not block one another.
type Manager struct {
	persister  Persister
	window     int
	timeout    time.Duration
	location   *time.Location
	retryDelay time.Duration
	now        func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
}

// Option configures a Manager.
type Option func(*Manager)

// WithWindow sets how many recent turns Context returns. Default 5.
func WithWindow(n int) Option {
	return func(m *Manager) { m.window = n }
}

// WithTimeout sets the session lifetime. Default 30 minutes.
func WithTimeout(d time.Duration) Option {
	return func(m *Manager) { m.timeout = d }
}

// WithLocation sets the zone turn timestamps are rendered in.
func WithLocation(loc *time.Location) Option {
	return func(m *Manager) { m.location = loc }
}

// WithRetryDelay sets the pause before a failed flush is retried.
func WithRetryDelay(d time.Duration) Option {
	return func(m *Manager) { m.retryDelay = d }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a Manager flushing finished sessions to p. A nil p
// discards histories on flush.
func NewManager(p Persister, opts ...Option) *Manager {
	m := &Manager{
		persister:  p,
		window:     DefaultWindow,
		timeout:    DefaultTimeout,
		location:   DefaultLocation(),
		retryDelay: defaultRetryDelay,
		now:        time.Now,
		sessions:   make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.window <= 0 {
		m.window = DefaultWindow
	}
	if m.timeout <= 0 {
		m.timeout = DefaultTimeout
	}
	if m.location == nil {
		m.location = time.UTC
	}
	return m
}

// DefaultLocation loads DefaultTimeZone, falling back to its fixed offset
// when the zone database is unavailable.
func DefaultLocation() *time.Location {
	loc, err := time.LoadLocation(DefaultTimeZone)
	if err != nil {
		return time.FixedZone("IST", 5*60*60+30*60)
	}
	return loc
}

// Timeout returns the session lifetime.
func (m *Manager) Timeout() time.Duration { return m.timeout }

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Start opens a session with a fresh chat id.
func (m *Manager) Start(email string) (*Session, error) {
	if email == "" {
		return nil, ErrEmailRequired
	}
	s := &Session{ID: uuid.NewString(), Email: email, StartTime: m.now()}
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	log.Debugf("session %s started for %s", s.ID, email)
	return s, nil
}

// Ensure returns the live session id, creating it when unknown. An empty id
// starts a new session. seed, if given, restores the start time and history
// of a session the server no longer holds. A live session is only returned to
// its own email; otherwise ErrEmailMismatch.
func (m *Manager) Ensure(id, email string, seed *Seed) (s *Session, created bool, err error) {
	if id == "" {
		s, err = m.Start(email)
		return s, err == nil, err
	}
	if email == "" {
		return nil, false, ErrEmailRequired
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		if !strings.EqualFold(s.Email, email) {
			return nil, false, ErrEmailMismatch
		}
		return s, false, nil
	}
	s = &Session{ID: id, Email: email, StartTime: m.now()}
	if seed != nil {
		if !seed.StartTime.IsZero() {
			s.StartTime = seed.StartTime
		}
		s.History = append([]ChatTurn(nil), seed.History...)
	}
	m.sessions[id] = s
	return s, true, nil
}

// Get returns the live session id.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Append adds a turn to the session and returns it.
func (m *Manager) Append(id, question, answer string) (ChatTurn, error) {
	s, ok := m.Get(id)
	if !ok {
		return ChatTurn{}, ErrSessionNotFound
	}
	turn := ChatTurn{
		Question:  question,
		Answer:    answer,
		Timestamp: m.now().In(m.location).Format(TimestampLayout),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.flushed {
		return ChatTurn{}, ErrSessionNotFound
	}
	s.History = append(s.History, turn)
	return turn, nil
}

// Context returns the most recent turns of the session, oldest first.
func (m *Manager) Context(id string) ([]ChatTurn, error) {
	s, ok := m.Get(id)
	if !ok {
		return nil, ErrSessionNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.History
	if len(h) > m.window {
		h = h[len(h)-m.window:]
	}
	return append([]ChatTurn(nil), h...), nil
}

// History returns every turn of the session.
func (m *Manager) History(id string) ([]ChatTurn, error) {
	s, ok := m.Get(id)
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s.Snapshot().History, nil
}

// Stop records a stop signal; the session expires at the next check.
func (m *Manager) Stop(id string) error {
	s, ok := m.Get(id)
	if !ok {
		return ErrSessionNotFound
	}
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	return nil
}

// ShouldExpire reports whether session id has ended at now. Unknown ids
// have nothing left to expire.
func (m *Manager) ShouldExpire(id string, now time.Time) bool {
	s, ok := m.Get(id)
	if !ok {
		return false
	}
	return s.ShouldExpire(now, m.timeout)
}

// CheckExpiry flushes the session if it has ended and reports whether it
// did. A failed flush leaves the session live for the next check.
func (m *Manager) CheckExpiry(ctx context.Context, id string) (bool, error) {
	if !m.ShouldExpire(id, m.now()) {
		return false, nil
	}
	if err := m.FlushAndClear(ctx, id); err != nil {
		return false, err
	}
	return true, nil
}

// FlushAndClear persists the full history of session id and removes it.
// A storage failure is retried once; if that fails too the session stays
// in memory. Flushing an unknown or already flushed session is a no-op.
func (m *Manager) FlushAndClear(ctx context.Context, id string) error {
	s, ok := m.Get(id)
	if !ok {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.flushed {
		return nil
	}
	rec := &Record{
		ChatID:    s.ID,
		Email:     s.Email,
		StartTime: s.StartTime,
		EndTime:   m.now(),
		History:   append([]ChatTurn(nil), s.History...),
	}
	if err := m.persist(ctx, rec); err != nil {
		metric.RecordSessionFlush(ctx, metric.OutcomeFailure)
		log.Errorf("session %s flush failed, keeping it in memory: %v", id, err)
		return err
	}
	s.flushed = true
	s.History = nil
	m.mu.Lock()
	if m.sessions[id] == s {
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	metric.RecordSessionFlush(ctx, metric.OutcomeSuccess)
	log.Debugf("session %s flushed with %d turns", id, len(rec.History))
	return nil
}

func (m *Manager) persist(ctx context.Context, rec *Record) error {
	if m.persister == nil {
		return nil
	}
	err := m.persister.Save(ctx, rec)
	if err == nil {
		return nil
	}
	log.Warnf("session %s flush failed, retrying: %v", rec.ChatID, err)
	metric.RecordSessionFlush(ctx, metric.OutcomeRetried)
	if m.retryDelay > 0 {
		t := time.NewTimer(m.retryDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("flush retry: %w", errors.Join(err, ctx.Err()))
		case <-t.C:
		}
	}
	return m.persister.Save(ctx, rec)
}

// Sweep flushes every session that has ended and returns how many were
// flushed.
func (m *Manager) Sweep(ctx context.Context) int {
	now := m.now()
	n := 0
	for _, s := range m.live() {
		if !s.ShouldExpire(now, m.timeout) {
			continue
		}
		if err := m.FlushAndClear(ctx, s.ID); err == nil {
			n++
		}
	}
	return n
}

// FlushAll flushes every live session regardless of expiry.
func (m *Manager) FlushAll(ctx context.Context) error {
	var errList []error
	for _, s := range m.live() {
		if err := m.FlushAndClear(ctx, s.ID); err != nil {
			errList = append(errList, fmt.Errorf("session %s: %w", s.ID, err))
		}
	}
	return errors.Join(errList...)
}

func (m *Manager) live() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

// Run sweeps expired sessions every interval until ctx is done, then flushes
// what is left.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = defaultCleanupPeriod
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownFlushTimeout)
			if err := m.FlushAll(flushCtx); err != nil {
				log.Errorf("flush sessions on shutdown: %v", err)
			}
			cancel()
			return
		case <-ticker.C:
			if n := m.Sweep(ctx); n > 0 {
				log.Infof("flushed %d expired sessions", n)
			}
		}
	}
}
