package cache

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRU_SetGet(t *testing.T) {
	c := NewLRU[string](4)
	c.Set("a", "alpha", time.Minute)

	got, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, "alpha", got)

	_, ok = c.Get("missing")
	assert.False(t, ok)
}

func TestLRU_TTLExpiry(t *testing.T) {
	c := NewLRU[string](4)
	now := time.Now()
	c.now = func() time.Time { return now }

	c.Set("a", "alpha", time.Minute)

	now = now.Add(30 * time.Second)
	_, ok := c.Get("a")
	assert.True(t, ok)

	now = now.Add(31 * time.Second)
	_, ok = c.Get("a")
	assert.False(t, ok)
	assert.Zero(t, c.Len(), "expired entry should be deleted on access")
}

func TestLRU_EvictsOldest(t *testing.T) {
	c := NewLRU[int](2)
	c.Set("a", 1, time.Minute)
	c.Set("b", 2, time.Minute)
	c.Set("c", 3, time.Minute)

	_, ok := c.Get("a")
	assert.False(t, ok, "oldest entry should be evicted")
	_, ok = c.Get("b")
	assert.True(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)
}

func TestLRU_GetRefreshesRecency(t *testing.T) {
	c := NewLRU[int](2)
	c.Set("a", 1, time.Minute)
	c.Set("b", 2, time.Minute)

	_, ok := c.Get("a")
	require.True(t, ok)

	c.Set("c", 3, time.Minute)

	_, ok = c.Get("a")
	assert.True(t, ok, "recently read entry should survive eviction")
	_, ok = c.Get("b")
	assert.False(t, ok)
}

func TestLRU_SetReplacesAndResetsTTL(t *testing.T) {
	c := NewLRU[string](2)
	now := time.Now()
	c.now = func() time.Time { return now }

	c.Set("a", "old", time.Minute)
	now = now.Add(50 * time.Second)
	c.Set("a", "new", time.Minute)
	now = now.Add(30 * time.Second)

	got, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, "new", got)
}

func TestLRU_DeletePrefix(t *testing.T) {
	c := NewLRU[int](8)
	c.Set("fact:p1:x", 1, time.Minute)
	c.Set("fact:p1:y", 2, time.Minute)
	c.Set("fact:p2:x", 3, time.Minute)
	c.Set("draft:p1:x", 4, time.Minute)

	removed := c.DeletePrefix("fact:p1")
	assert.Equal(t, 2, removed)
	assert.Equal(t, 2, c.Len())

	_, ok := c.Get("fact:p2:x")
	assert.True(t, ok)
	_, ok = c.Get("draft:p1:x")
	assert.True(t, ok)
}

func TestLRU_Stats(t *testing.T) {
	c := NewLRU[int](2)
	c.Set("a", 1, time.Minute)

	c.Get("a")
	c.Get("a")
	c.Get("missing")

	hits, misses := c.Stats()
	assert.Equal(t, uint64(2), hits)
	assert.Equal(t, uint64(1), misses)
}

func TestTTLFor(t *testing.T) {
	assert.Equal(t, 60*time.Second, TTLFor(CategoryDraft))
	assert.Equal(t, 600*time.Second, TTLFor(CategoryStyle))
	assert.Equal(t, DefaultTTL, TTLFor("unknown"))
}

func TestStoreCache_ReadThrough(t *testing.T) {
	sc := NewStoreCache(16)
	loads := 0
	load := func() (any, error) {
		loads++
		return "value", nil
	}

	v, err := sc.GetOrLoad(CategoryCharacter, "p1", []string{"hero"}, load)
	require.NoError(t, err)
	assert.Equal(t, "value", v)

	v, err = sc.GetOrLoad(CategoryCharacter, "p1", []string{"hero"}, load)
	require.NoError(t, err)
	assert.Equal(t, "value", v)
	assert.Equal(t, 1, loads, "second read should be served from cache")
}

func TestStoreCache_LoadErrorNotCached(t *testing.T) {
	sc := NewStoreCache(16)
	loads := 0
	load := func() (any, error) {
		loads++
		if loads == 1 {
			return nil, errors.New("disk error")
		}
		return "value", nil
	}

	_, err := sc.GetOrLoad(CategoryDraft, "p1", nil, load)
	require.Error(t, err)

	v, err := sc.GetOrLoad(CategoryDraft, "p1", nil, load)
	require.NoError(t, err)
	assert.Equal(t, "value", v)
	assert.Equal(t, 2, loads)
}

func TestStoreCache_InvalidateCategory(t *testing.T) {
	sc := NewStoreCache(16)
	loads := 0
	load := func() (any, error) {
		loads++
		return loads, nil
	}

	_, err := sc.GetOrLoad(CategoryFact, "p1", []string{"all"}, load)
	require.NoError(t, err)

	sc.InvalidateCategory(CategoryFact, "p1")

	v, err := sc.GetOrLoad(CategoryFact, "p1", []string{"all"}, load)
	require.NoError(t, err)
	assert.Equal(t, 2, v, "invalidated entry should be reloaded")
}

func TestStoreCache_InvalidateCategoryScopedToProject(t *testing.T) {
	sc := NewStoreCache(16)
	p1Loads, p2Loads := 0, 0

	_, err := sc.GetOrLoad(CategoryFact, "p1", nil, func() (any, error) { p1Loads++; return 1, nil })
	require.NoError(t, err)
	_, err = sc.GetOrLoad(CategoryFact, "p2", nil, func() (any, error) { p2Loads++; return 1, nil })
	require.NoError(t, err)

	sc.InvalidateCategory(CategoryFact, "p1")

	_, err = sc.GetOrLoad(CategoryFact, "p2", nil, func() (any, error) { p2Loads++; return 1, nil })
	require.NoError(t, err)
	assert.Equal(t, 1, p2Loads, "other project's entries must survive")
}

func TestKey(t *testing.T) {
	assert.Equal(t, "character:p1:hero", Key(CategoryCharacter, "p1", "hero"))
	assert.Equal(t, "draft:p1", Key(CategoryDraft, "p1"))
}
