package catalog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Document-Reader-Search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Document-Reader-Search/pkg/sqldb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	client, err := sqldb.New(config.CatalogConfig{
		Driver: sqldb.DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "catalog.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	c := New(client)
	require.NoError(t, c.Migrate(context.Background()))
	require.NoError(t, c.Migrate(context.Background()), "migrate is idempotent")
	return c
}

func TestRecordAndGet(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()
	created := time.Date(2026, 5, 1, 8, 30, 0, 0, time.UTC)

	require.NoError(t, c.Record(ctx, Entry{
		DocumentKey:   "abc",
		SourcePath:    "/books/a.txt",
		IndexFile:     "/data/abc.drix",
		PageCount:     12,
		TermCount:     340,
		FormatVersion: "2",
		CreatedAt:     created,
	}))

	e, ok, err := c.Get(ctx, "abc")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 12, e.PageCount)
	assert.Equal(t, "/books/a.txt", e.SourcePath)
	assert.True(t, created.Equal(e.CreatedAt))

	_, ok, err = c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRecordUpserts(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	require.NoError(t, c.Record(ctx, Entry{DocumentKey: "abc", PageCount: 1, CreatedAt: time.Now()}))
	require.NoError(t, c.Record(ctx, Entry{DocumentKey: "abc", PageCount: 2, CreatedAt: time.Now()}))

	entries, err := c.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 2, entries[0].PageCount)
}

func TestListNewestFirstAndDelete(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, key := range []string{"old", "mid", "new"} {
		require.NoError(t, c.Record(ctx, Entry{DocumentKey: key, CreatedAt: base.Add(time.Duration(i) * time.Hour)}))
	}
	entries, err := c.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "new", entries[0].DocumentKey)
	assert.Equal(t, "old", entries[2].DocumentKey)

	require.NoError(t, c.Delete(ctx, "mid"))
	require.NoError(t, c.Delete(ctx, "mid"))

	n, err := c.DeleteAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	entries, err = c.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
