//
// Tencent is pleased to support the open source community by making trpc-rag-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-rag-go is licensed under the Apache License Version 2.0.
//
//

package vectorstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/trpc-rag-go/errs"
	"trpc.group/trpc-go/trpc-rag-go/storage/inmemory"
)

func frag(text string, vec ...float64) Fragment {
	return Fragment{Text: text, Vector: vec, Metadata: map[string]string{MetaSourceFile: text + ".txt"}}
}

func texts[T DistanceHit | RelevanceHit](hits []T) []string {
	var out []string
	for _, h := range hits {
		switch v := any(h).(type) {
		case DistanceHit:
			out = append(out, v.Fragment.Text)
		case RelevanceHit:
			out = append(out, v.Fragment.Text)
		}
	}
	return out
}

func TestIndex_InsertAndSearchByDistance(t *testing.T) {
	ix := New()
	ids, err := ix.Insert([]Fragment{frag("a", 0, 0), frag("b", 3, 4), frag("c", 1, 0)})
	require.NoError(t, err)
	require.Len(t, ids, 3)
	assert.NotEqual(t, ids[0], ids[1])
	assert.Equal(t, 2, ix.Dimension())
	assert.Equal(t, 3, ix.Len())

	hits, err := ix.SearchByDistance([]float64{0, 0}, 2, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, texts(hits))
	assert.Equal(t, 0.0, hits[0].Distance)
	assert.Equal(t, 1.0, hits[1].Distance)

	hits, err = ix.SearchByDistance([]float64{0, 0}, 10, nil)
	require.NoError(t, err)
	assert.Equal(t, 5.0, hits[2].Distance)

	got, ok := ix.Get(ids[1])
	require.True(t, ok)
	assert.Equal(t, SourceDocument, got.Source)
	got.Vector[0] = 100
	again, _ := ix.Get(ids[1])
	assert.Equal(t, 3.0, again.Vector[0], "returned fragments are copies")
}

func TestIndex_InsertErrors(t *testing.T) {
	ix := New()
	_, err := ix.Insert([]Fragment{frag("a", 1, 2), frag("b", 1)})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
	assert.Equal(t, 0, ix.Len(), "a failed insert adds nothing")

	_, err = ix.Insert([]Fragment{{Text: "empty"}})
	assert.ErrorIs(t, err, ErrEmptyVector)

	_, err = ix.Insert([]Fragment{frag("a", 1, 2)})
	require.NoError(t, err)
	_, err = ix.SearchByDistance([]float64{1}, 1, nil)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
	_, err = ix.SearchMMR(nil, MMRQuery{K: 1})
	assert.ErrorIs(t, err, ErrEmptyVector)
	hits, err := ix.SearchMMR([]float64{1, 2}, MMRQuery{})
	assert.NoError(t, err)
	assert.Empty(t, hits)
	_, err = ix.SearchByDistance(nil, 1, nil)
	assert.ErrorIs(t, err, ErrEmptyVector)
}

func TestIndex_Filter(t *testing.T) {
	ix := New()
	_, err := ix.Insert([]Fragment{
		frag("doc", 1, 0),
		{Text: "qa", Vector: []float64{1, 0}, Source: SourceQAPair, Metadata: map[string]string{MetaQuestion: "q"}},
	})
	require.NoError(t, err)

	hits, err := ix.SearchByDistance([]float64{1, 0}, 5, &Filter{Source: SourceQAPair})
	require.NoError(t, err)
	assert.Equal(t, []string{"qa"}, texts(hits))

	hits, err = ix.SearchByDistance([]float64{1, 0}, 5, &Filter{Metadata: map[string]string{MetaSourceFile: "doc.txt"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"doc"}, texts(hits))

	assert.Equal(t, 1, ix.Count(&Filter{Source: SourceDocument}))
	assert.Equal(t, 2, ix.Count(nil))
}

func TestIndex_SearchMMR(t *testing.T) {
	ix := New()
	_, err := ix.Insert([]Fragment{
		frag("exact", 1, 0),
		frag("duplicate", 0.99, 0.01),
		frag("diverse", 0.7, 0.7),
	})
	require.NoError(t, err)
	query := []float64{1, 0}

	hits, err := ix.SearchMMR(query, MMRQuery{K: 2, FetchK: 3, Lambda: 0.3})
	require.NoError(t, err)
	assert.Equal(t, []string{"exact", "diverse"}, texts(hits))
	assert.InDelta(t, 1.0, hits[0].Relevance, 1e-9)
	assert.InDelta(t, 0.7071, hits[1].Relevance, 1e-3)

	hits, err = ix.SearchMMR(query, MMRQuery{K: 2, FetchK: 3, Lambda: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"exact", "duplicate"}, texts(hits))

	hits, err = ix.SearchMMR(query, MMRQuery{K: 5, FetchK: 2, Lambda: 0.5})
	require.NoError(t, err)
	assert.Len(t, hits, 3, "FetchK is raised to K")

	hits, err = New().SearchMMR(query, MMRQuery{K: 1, FetchK: 5, Lambda: 0.5})
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestIndex_Delete(t *testing.T) {
	ix := New()
	ids, err := ix.Insert([]Fragment{frag("a", 1), frag("b", 2), frag("c", 3)})
	require.NoError(t, err)

	assert.Equal(t, 1, ix.Delete(ids[0], "unknown"))
	assert.Equal(t, 0, ix.Delete("unknown"))
	hits, err := ix.SearchByDistance([]float64{1}, 10, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, texts(hits))

	assert.Equal(t, 1, ix.DeleteWhere(MetaSourceFile, "c.txt", "missing.txt"))
	assert.Equal(t, 0, ix.DeleteWhere(MetaSourceFile))
	assert.Equal(t, 1, ix.Len())
}

func TestIndex_MergeThroughPersistRestore(t *testing.T) {
	ctx := context.Background()
	store := NewFileSnapshotStore(filepath.Join(t.TempDir(), "index", "snapshot.zst"))

	first := New()
	_, err := first.Insert([]Fragment{frag("X", 1, 0, 0), frag("Y", 0, 1, 0)})
	require.NoError(t, err)
	require.NoError(t, first.Persist(ctx, store))

	restored, err := Restore(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, first.Fragments(), restored.Fragments())

	second := New()
	_, err = second.Insert([]Fragment{frag("Z", 0, 0, 1)})
	require.NoError(t, err)
	ids, err := restored.Merge(second)
	require.NoError(t, err)
	require.Len(t, ids, 1)

	for _, tc := range []struct {
		text string
		vec  []float64
	}{{"X", []float64{1, 0, 0}}, {"Y", []float64{0, 1, 0}}, {"Z", []float64{0, 0, 1}}} {
		hits, err := restored.SearchByDistance(tc.vec, 1, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{tc.text}, texts(hits))
	}
	all, err := restored.SearchByDistance([]float64{0, 0, 0}, 10, nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"X", "Y", "Z"}, texts(all))
}

func TestIndex_MergeRenumbersCollisions(t *testing.T) {
	ix := New()
	ids, err := ix.Insert([]Fragment{frag("a", 1), frag("b", 2)})
	require.NoError(t, err)

	merged, err := ix.Merge(ix.Clone())
	require.NoError(t, err)
	assert.Equal(t, 4, ix.Len())
	for _, id := range merged {
		assert.NotContains(t, ids, id)
	}

	other := New()
	_, err = other.Insert([]Fragment{frag("wide", 1, 2)})
	require.NoError(t, err)
	_, err = ix.Merge(other)
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	empty := New()
	merged, err = empty.Merge(New())
	require.NoError(t, err)
	assert.Empty(t, merged)
}

func TestIndex_CloneIsIndependent(t *testing.T) {
	ix := New()
	ids, err := ix.Insert([]Fragment{frag("a", 1)})
	require.NoError(t, err)
	c := ix.Clone()
	c.Delete(ids[0])
	assert.Equal(t, 1, ix.Len())
	assert.Equal(t, 0, c.Len())
}

func TestRestore_Failures(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	_, err := Restore(ctx, NewFileSnapshotStore(filepath.Join(dir, "absent")))
	assert.True(t, errors.Is(err, errs.ErrIndexLoad))
	assert.True(t, errors.Is(err, ErrSnapshotNotFound))

	corrupt := filepath.Join(dir, "corrupt")
	require.NoError(t, os.WriteFile(corrupt, []byte("not zstd"), 0o644))
	_, err = Restore(ctx, NewFileSnapshotStore(corrupt))
	assert.True(t, errors.Is(err, errs.ErrIndexLoad))
}

func TestKVSnapshotStore(t *testing.T) {
	ctx := context.Background()
	store := NewKVSnapshotStore(inmemory.New(), "index")

	_, err := Restore(ctx, store)
	assert.True(t, errors.Is(err, ErrSnapshotNotFound))

	ix := New()
	_, err = ix.Insert([]Fragment{frag("a", 1, 2)})
	require.NoError(t, err)
	require.NoError(t, ix.Persist(ctx, store))
	require.NoError(t, ix.Persist(ctx, store), "persist overwrites")

	got, err := Restore(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Len())
	assert.Equal(t, 2, got.Dimension())
}

func TestIndex_ConcurrentAccess(t *testing.T) {
	ix := New()
	_, err := ix.Insert([]Fragment{frag("seed", 1, 1)})
	require.NoError(t, err)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = ix.Insert([]Fragment{frag("w", float64(i), 1)})
		}()
		go func() {
			defer wg.Done()
			_, _ = ix.SearchMMR([]float64{1, 1}, MMRQuery{K: 2, FetchK: 4, Lambda: 0.5})
		}()
	}
	wg.Wait()
	assert.Equal(t, 9, ix.Len())
}
