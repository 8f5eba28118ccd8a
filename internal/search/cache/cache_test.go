package cache

import (
	"context"
	"errors"
	"path"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Document-Reader-Search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Document-Reader-Search/internal/search"
	"github.com/Adithya-Monish-Kumar-K/Document-Reader-Search/pkg/config"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memBackend struct {
	mu   sync.Mutex
	data map[string]string
	down bool
}

func newMemBackend() *memBackend {
	return &memBackend{data: make(map[string]string)}
}

func (m *memBackend) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return "", errors.New("connection refused")
	}
	v, ok := m.data[key]
	if !ok {
		return "", goredis.Nil
	}
	return v, nil
}

func (m *memBackend) Set(_ context.Context, key string, value any, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return errors.New("connection refused")
	}
	m.data[key] = string(value.([]byte))
	return nil
}

func (m *memBackend) DeleteByPattern(_ context.Context, pattern string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k := range m.data {
		if ok, _ := path.Match(pattern, k); ok {
			delete(m.data, k)
			n++
		}
	}
	return n, nil
}

func (m *memBackend) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}

var sample = []search.Result{{PageIndex: 2, Text: "a fox", Range: index.Range{Location: 2, Length: 3}, Context: "a fox"}}

func TestGetOrComputeCachesResults(t *testing.T) {
	backend := newMemBackend()
	c := New(backend, config.RedisConfig{CacheTTL: time.Minute})
	ctx := context.Background()

	var computed atomic.Int32
	compute := func() ([]search.Result, error) {
		computed.Add(1)
		return sample, nil
	}

	got, hit, err := c.GetOrCompute(ctx, "doc", "fox", search.Options{}, compute)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, sample, got)
	hits, misses := c.Stats()
	assert.Equal(t, int64(0), hits)
	assert.Equal(t, int64(1), misses, "one lookup is one miss")

	got, hit, err = c.GetOrCompute(ctx, "doc", "fox", search.Options{}, compute)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, sample, got)
	assert.Equal(t, int32(1), computed.Load())

	_, hit, err = c.GetOrCompute(ctx, "doc", "fox", search.Options{WholeWords: true}, compute)
	require.NoError(t, err)
	assert.False(t, hit, "options are part of the key")

	hits, misses = c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(2), misses)
}

func TestInvalidateIsPerDocument(t *testing.T) {
	backend := newMemBackend()
	c := New(backend, config.RedisConfig{})
	ctx := context.Background()
	compute := func() ([]search.Result, error) { return sample, nil }

	for _, doc := range []string{"a", "b"} {
		_, _, err := c.GetOrCompute(ctx, doc, "fox", search.Options{}, compute)
		require.NoError(t, err)
	}
	require.Equal(t, 2, backend.len())

	require.NoError(t, c.Invalidate(ctx, "a"))
	assert.Equal(t, 1, backend.len())

	_, hit, err := c.GetOrCompute(ctx, "b", "fox", search.Options{}, compute)
	require.NoError(t, err)
	assert.True(t, hit)
}

func TestBackendOutageFallsThrough(t *testing.T) {
	backend := newMemBackend()
	backend.down = true
	c := New(backend, config.RedisConfig{})

	got, hit, err := c.GetOrCompute(context.Background(), "doc", "fox", search.Options{}, func() ([]search.Result, error) {
		return sample, nil
	})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, sample, got)
}

func TestComputeErrorIsReturned(t *testing.T) {
	c := New(newMemBackend(), config.RedisConfig{})
	boom := errors.New("boom")
	_, _, err := c.GetOrCompute(context.Background(), "doc", "fox", search.Options{}, func() ([]search.Result, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestBuildKey(t *testing.T) {
	k := buildKey("doc", "fox", search.Options{})
	assert.Equal(t, k, buildKey("doc", "fox", search.Options{}))
	assert.NotEqual(t, k, buildKey("doc", "fox", search.Options{CaseSensitive: true}))
	ok, _ := path.Match(keyPrefix+"doc:*", k)
	assert.True(t, ok)
}
