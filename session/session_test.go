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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-rag-go/errs"
	"trpc.group/trpc-go/trpc-rag-go/storage/inmemory"
)

var t0 = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// flakyPersister fails the first failures calls.
type flakyPersister struct {
	mu       sync.Mutex
	failures int
	calls    int
	saved    []*Record
}

func (p *flakyPersister) Save(_ context.Context, rec *Record) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.failures > 0 {
		p.failures--
		return errs.Wrap(errs.ErrStorage, "save", errors.New("disk full"))
	}
	p.saved = append(p.saved, rec)
	return nil
}

func (p *flakyPersister) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func newManager(p Persister, clk *clock, opts ...Option) *Manager {
	opts = append([]Option{WithClock(clk.Now), WithRetryDelay(0)}, opts...)
	return NewManager(p, opts...)
}

func TestManager_BoundedContextFullPersistence(t *testing.T) {
	ctx := context.Background()
	clk := &clock{now: t0}
	store := NewStore(inmemory.New())
	m := newManager(store, clk)

	s, err := m.Start("21f1000001@ds.study.iitm.ac.in")
	require.NoError(t, err)
	require.NotEmpty(t, s.ID)

	for i := 0; i < 60; i++ {
		_, err := m.Append(s.ID, fmt.Sprintf("q%d", i), fmt.Sprintf("a%d", i))
		require.NoError(t, err)
	}

	recent, err := m.Context(s.ID)
	require.NoError(t, err)
	require.Len(t, recent, DefaultWindow)
	assert.Equal(t, "q55", recent[0].Question)
	assert.Equal(t, "q59", recent[4].Question)

	full, err := m.History(s.ID)
	require.NoError(t, err)
	assert.Len(t, full, 60)

	require.NoError(t, m.FlushAndClear(ctx, s.ID))
	assert.Equal(t, 0, m.Len())

	rec, ok, err := store.Load(ctx, s.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, rec.History, 60)
	assert.Equal(t, "21f1000001@ds.study.iitm.ac.in", rec.Email)
	assert.True(t, rec.StartTime.Equal(t0))

	_, err = m.Context(s.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestManager_FlushTwiceIsNoop(t *testing.T) {
	ctx := context.Background()
	p := &flakyPersister{}
	m := newManager(p, &clock{now: t0})

	s, err := m.Start("a@b.c")
	require.NoError(t, err)
	_, err = m.Append(s.ID, "q", "a")
	require.NoError(t, err)

	require.NoError(t, m.FlushAndClear(ctx, s.ID))
	require.NoError(t, m.FlushAndClear(ctx, s.ID))
	assert.Equal(t, 1, p.Calls())
	require.Len(t, p.saved, 1)
	assert.Len(t, p.saved[0].History, 1)
}

func TestManager_Expiry(t *testing.T) {
	clk := &clock{now: t0}
	m := newManager(nil, clk)
	s, err := m.Start("a@b.c")
	require.NoError(t, err)

	assert.False(t, m.ShouldExpire(s.ID, t0.Add(10*time.Minute)))
	assert.True(t, m.ShouldExpire(s.ID, t0.Add(31*time.Minute)))
	assert.False(t, m.ShouldExpire("unknown", t0.Add(time.Hour)))

	require.NoError(t, m.Stop(s.ID))
	assert.True(t, m.ShouldExpire(s.ID, t0.Add(time.Minute)))
	assert.ErrorIs(t, m.Stop("unknown"), ErrSessionNotFound)
}

func TestManager_CheckExpiry(t *testing.T) {
	ctx := context.Background()
	clk := &clock{now: t0}
	p := &flakyPersister{}
	m := newManager(p, clk)
	s, err := m.Start("a@b.c")
	require.NoError(t, err)

	clk.Advance(10 * time.Minute)
	ended, err := m.CheckExpiry(ctx, s.ID)
	require.NoError(t, err)
	assert.False(t, ended)
	assert.Equal(t, 1, m.Len())

	clk.Advance(21 * time.Minute)
	ended, err = m.CheckExpiry(ctx, s.ID)
	require.NoError(t, err)
	assert.True(t, ended)
	assert.Equal(t, 0, m.Len())
	assert.Len(t, p.saved, 1)
}

func TestManager_FlushRetry(t *testing.T) {
	ctx := context.Background()

	t.Run("second attempt succeeds", func(t *testing.T) {
		p := &flakyPersister{failures: 1}
		m := newManager(p, &clock{now: t0})
		s, err := m.Start("a@b.c")
		require.NoError(t, err)

		require.NoError(t, m.FlushAndClear(ctx, s.ID))
		assert.Equal(t, 2, p.Calls())
		assert.Equal(t, 0, m.Len())
	})

	t.Run("persistent failure keeps session", func(t *testing.T) {
		p := &flakyPersister{failures: 2}
		m := newManager(p, &clock{now: t0})
		s, err := m.Start("a@b.c")
		require.NoError(t, err)
		_, err = m.Append(s.ID, "q", "a")
		require.NoError(t, err)

		err = m.FlushAndClear(ctx, s.ID)
		require.Error(t, err)
		assert.ErrorIs(t, err, errs.ErrStorage)
		assert.Equal(t, 2, p.Calls())

		history, err := m.History(s.ID)
		require.NoError(t, err)
		assert.Len(t, history, 1)

		// The next check retries and succeeds.
		require.NoError(t, m.FlushAndClear(ctx, s.ID))
		assert.Equal(t, 0, m.Len())
		require.Len(t, p.saved, 1)
		assert.Len(t, p.saved[0].History, 1)
	})

	t.Run("canceled retry", func(t *testing.T) {
		p := &flakyPersister{failures: 1}
		m := newManager(p, &clock{now: t0}, WithRetryDelay(time.Hour))
		s, err := m.Start("a@b.c")
		require.NoError(t, err)

		cctx, cancel := context.WithCancel(ctx)
		cancel()
		err = m.FlushAndClear(cctx, s.ID)
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, m.Len())
	})
}

func TestManager_TimestampZone(t *testing.T) {
	m := newManager(nil, &clock{now: t0})
	s, err := m.Start("a@b.c")
	require.NoError(t, err)
	turn, err := m.Append(s.ID, "q", "a")
	require.NoError(t, err)
	assert.Equal(t, "2025-01-01 05:30:00", turn.Timestamp)

	m = newManager(nil, &clock{now: t0}, WithLocation(time.UTC))
	s, err = m.Start("a@b.c")
	require.NoError(t, err)
	turn, err = m.Append(s.ID, "q", "a")
	require.NoError(t, err)
	assert.Equal(t, "2025-01-01 00:00:00", turn.Timestamp)
}

func TestManager_Ensure(t *testing.T) {
	clk := &clock{now: t0}
	m := newManager(nil, clk)

	_, _, err := m.Ensure("", "", nil)
	assert.ErrorIs(t, err, ErrEmailRequired)

	s, created, err := m.Ensure("", "a@b.c", nil)
	require.NoError(t, err)
	assert.True(t, created)

	same, created, err := m.Ensure(s.ID, "a@b.c", nil)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Same(t, s, same)

	same, _, err = m.Ensure(s.ID, "A@B.C", nil)
	require.NoError(t, err)
	assert.Same(t, s, same)

	_, _, err = m.Ensure(s.ID, "other@b.c", nil)
	assert.ErrorIs(t, err, ErrEmailMismatch)
	got, ok := m.Get(s.ID)
	require.True(t, ok)
	assert.Equal(t, "a@b.c", got.Email, "the session is left to its owner")

	start := t0.Add(-20 * time.Minute)
	seeded, created, err := m.Ensure("client-id", "a@b.c", &Seed{
		StartTime: start,
		History:   []ChatTurn{{Question: "q0", Answer: "a0"}},
	})
	require.NoError(t, err)
	assert.True(t, created)
	snap := seeded.Snapshot()
	assert.True(t, snap.StartTime.Equal(start))
	require.Len(t, snap.History, 1)
	assert.True(t, m.ShouldExpire("client-id", t0.Add(11*time.Minute)))
}

func TestManager_SweepAndRun(t *testing.T) {
	clk := &clock{now: t0}
	p := &flakyPersister{}
	m := newManager(p, clk)

	old, err := m.Start("old@b.c")
	require.NoError(t, err)
	clk.Advance(20 * time.Minute)
	_, err = m.Start("new@b.c")
	require.NoError(t, err)
	clk.Advance(11 * time.Minute)

	assert.Equal(t, 1, m.Sweep(context.Background()))
	_, ok := m.Get(old.ID)
	assert.False(t, ok)
	assert.Equal(t, 1, m.Len())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx, time.Hour)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
	assert.Equal(t, 0, m.Len())
	assert.Len(t, p.saved, 2)
}

func TestManager_ConcurrentAppend(t *testing.T) {
	m := newManager(&flakyPersister{}, &clock{now: t0})
	s, err := m.Start("a@b.c")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				_, err := m.Append(s.ID, fmt.Sprintf("g%d-q%d", g, i), "a")
				assert.NoError(t, err)
				_, err = m.Context(s.ID)
				assert.NoError(t, err)
			}
		}(g)
	}
	wg.Wait()

	history, err := m.History(s.ID)
	require.NoError(t, err)
	assert.Len(t, history, 200)
}

func TestManager_AppendAfterFlush(t *testing.T) {
	m := newManager(nil, &clock{now: t0})
	s, err := m.Start("a@b.c")
	require.NoError(t, err)
	require.NoError(t, m.FlushAndClear(context.Background(), s.ID))

	_, err = m.Append(s.ID, "q", "a")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = m.Start("")
	assert.ErrorIs(t, err, ErrEmailRequired)
}

func TestStore_LoadMissing(t *testing.T) {
	store := NewStore(inmemory.New(), WithKeyPrefix("history/"))
	_, ok, err := store.Load(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, ok)
}
