package workspace

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Document-Reader-Search/internal/pagecache"
	"github.com/Adithya-Monish-Kumar-K/Document-Reader-Search/internal/pressure"
	"github.com/Adithya-Monish-Kumar-K/Document-Reader-Search/internal/search"
	"github.com/Adithya-Monish-Kumar-K/Document-Reader-Search/internal/textsource"
	"github.com/Adithya-Monish-Kumar-K/Document-Reader-Search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Document-Reader-Search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Document-Reader-Search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Document-Reader-Search/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Indexer.DataDir = filepath.Join(dir, "indexes")
	cfg.Catalog.DSN = filepath.Join(dir, "catalog.db")
	cfg.Watch.Debounce = 20 * time.Millisecond
	cfg.Memory.SampleInterval = 10 * time.Millisecond
	return cfg
}

func newTestWorkspace(t *testing.T, cfg *config.Config, sample uint64) *Workspace {
	t.Helper()
	w, err := New(cfg,
		WithMetrics(metrics.NewWithRegistry(prometheus.NewRegistry())),
		WithSampler(pressure.SamplerFunc(func() (uint64, error) { return sample, nil })),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.NoError(t, w.Shutdown(ctx))
	})
	return w
}

func writeDoc(t *testing.T, dir, name string, pages ...string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	content := ""
	for i, p := range pages {
		if i > 0 {
			content += textsource.PageSeparator
		}
		content += p
	}
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestOpenIndexSearch(t *testing.T) {
	w := newTestWorkspace(t, testConfig(t), 0)
	path := writeDoc(t, t.TempDir(), "book.txt", "Hello World", "foo bar", "World peace")

	var last float64
	info, err := w.Open(path, func(f float64) { last = f })
	require.NoError(t, err)
	assert.Equal(t, 3, info.Pages)

	ctx := context.Background()
	require.NoError(t, w.WaitIndexed(ctx, info.Key))
	assert.Equal(t, 1.0, last)

	results, err := w.Search(ctx, info.Key, "world", search.Options{WholeWords: true})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 0, results[0].PageIndex)
	assert.Equal(t, 2, results[1].PageIndex)

	docs := w.Documents()
	require.Len(t, docs, 1)
	assert.True(t, docs[0].Indexed)
	assert.Equal(t, path, docs[0].Path)
	assert.Positive(t, docs[0].Terms)

	checker := health.NewChecker(time.Second)
	w.RegisterHealth(checker)
	assert.Equal(t, health.StatusUp, checker.Run(ctx).Status)

	entry, ok, err := w.Catalog().Get(ctx, info.Key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 3, entry.PageCount)
}

func TestOpenSameFileTwice(t *testing.T) {
	w := newTestWorkspace(t, testConfig(t), 0)
	path := writeDoc(t, t.TempDir(), "a.txt", "one", "two")

	first, err := w.Open(path, nil)
	require.NoError(t, err)
	second, err := w.Open(path, nil)
	require.NoError(t, err)
	assert.Equal(t, first.Key, second.Key)
	assert.Len(t, w.Documents(), 1)
}

func TestViewDrivesPageCache(t *testing.T) {
	w := newTestWorkspace(t, testConfig(t), 0)
	pages := make([]string, 20)
	for i := range pages {
		pages[i] = "page body"
	}
	info, err := w.OpenSource("doc", textsource.NewStatic(pages...), nil)
	require.NoError(t, err)

	stats, err := w.View("doc", pagecache.Range{Low: 5, High: 7})
	require.NoError(t, err)
	assert.Equal(t, 7, stats.Loaded)
	assert.Equal(t, 3, stats.Visible)

	lines, ok := w.Page(info.Key, 6)
	require.True(t, ok)
	assert.Equal(t, []string{"page body"}, lines)
	_, ok = w.Page(info.Key, 15)
	assert.False(t, ok)

	_, err = w.View("missing", pagecache.Range{})
	assert.ErrorIs(t, err, apperrors.ErrDocumentNotOpen)
}

func TestConcurrentViewsStayWithTheirDocument(t *testing.T) {
	w := newTestWorkspace(t, testConfig(t), 0)
	dir := t.TempDir()
	short, err := w.Open(writeDoc(t, dir, "short.txt", "a", "b", "c"), nil)
	require.NoError(t, err)
	long, err := w.Open(writeDoc(t, dir, "long.txt", "0", "1", "2", "3", "4", "5", "6", "7", "8", "9"), nil)
	require.NoError(t, err)

	// the same range loads 3 pages of short and 9 of long
	vr := pagecache.Range{Low: 0, High: 8}
	want := map[string]int{short.Key: 3, long.Key: 9}

	var wg sync.WaitGroup
	for _, key := range []string{short.Key, long.Key} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				stats, err := w.View(key, vr)
				if !assert.NoError(t, err) {
					return
				}
				assert.Equal(t, want[key], stats.Loaded)
				assert.Equal(t, want[key], stats.Visible)
			}
		}()
	}
	wg.Wait()
}

func TestCriticalPressureEmptiesPageCache(t *testing.T) {
	cfg := testConfig(t)
	w := newTestWorkspace(t, cfg, cfg.Memory.CriticalBytes()+1)
	_, err := w.OpenSource("doc", textsource.NewStatic("a", "b", "c", "d"), nil)
	require.NoError(t, err)

	stats, err := w.View("doc", pagecache.Range{Low: 0, High: 1})
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Loaded)

	assert.Equal(t, pressure.Critical, w.PressureLevel())
	assert.Equal(t, 0, w.Stats().PageCache.Loaded)
	assert.Equal(t, "critical", w.Stats().PressureLevel)
}

func TestCloseDiscardsIndex(t *testing.T) {
	cfg := testConfig(t)
	w := newTestWorkspace(t, cfg, 0)
	ctx := context.Background()

	info, err := w.OpenSource("doc", textsource.NewStatic("alpha beta"), nil)
	require.NoError(t, err)
	require.NoError(t, w.Close(ctx, info.Key, true))

	_, err = w.Search(ctx, info.Key, "alpha", search.Options{})
	assert.ErrorIs(t, err, apperrors.ErrDocumentNotOpen)
	assert.Empty(t, w.Documents())
	assert.Zero(t, w.Stats().ResidentIndexBytes)

	err = w.Close(ctx, info.Key, false)
	assert.ErrorIs(t, err, apperrors.ErrDocumentNotOpen)
}

func TestClearIndices(t *testing.T) {
	cfg := testConfig(t)
	w := newTestWorkspace(t, cfg, 0)
	ctx := context.Background()

	info, err := w.OpenSource("doc", textsource.NewStatic("alpha beta", "gamma"), nil)
	require.NoError(t, err)
	require.NoError(t, w.WaitIndexed(ctx, info.Key))

	removed, err := w.ClearIndices(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	results, err := w.Search(ctx, info.Key, "alpha", search.Options{})
	require.NoError(t, err)
	assert.Empty(t, results)

	entries, err := w.Catalog().List(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestEditedFileIsReindexed(t *testing.T) {
	cfg := testConfig(t)
	w := newTestWorkspace(t, cfg, 0)
	w.Start()
	ctx := context.Background()

	path := writeDoc(t, t.TempDir(), "notes.txt", "first draft")
	info, err := w.Open(path, nil)
	require.NoError(t, err)
	require.NoError(t, w.WaitIndexed(ctx, info.Key))

	writeDoc(t, filepath.Dir(path), "notes.txt", "second revision")

	var current DocumentInfo
	require.Eventually(t, func() bool {
		docs := w.Documents()
		if len(docs) != 1 || docs[0].Key == info.Key || !docs[0].Indexed {
			return false
		}
		current = docs[0]
		return true
	}, 5*time.Second, 20*time.Millisecond)

	results, err := w.Search(ctx, current.Key, "revision", search.Options{WholeWords: true})
	require.NoError(t, err)
	assert.Len(t, results, 1)
	_, err = w.Search(ctx, info.Key, "draft", search.Options{})
	assert.ErrorIs(t, err, apperrors.ErrDocumentNotOpen)
}

func TestOptionalBackendsDegrade(t *testing.T) {
	cfg := testConfig(t)
	cfg.Catalog.DSN = filepath.Join(writeDoc(t, t.TempDir(), "blocker"), "catalog.db")
	w := newTestWorkspace(t, cfg, 0)

	assert.Nil(t, w.Catalog())
	info, err := w.OpenSource("doc", textsource.NewStatic("still works"), nil)
	require.NoError(t, err)
	require.NoError(t, w.WaitIndexed(context.Background(), info.Key))

	checker := health.NewChecker(time.Second)
	w.RegisterHealth(checker)
	report := checker.Run(context.Background())
	assert.Equal(t, health.StatusUp, report.Status)
	assert.Empty(t, report.Components)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.PageCache.Buffer = -1
	_, err := New(cfg)
	assert.Error(t, err)
}
