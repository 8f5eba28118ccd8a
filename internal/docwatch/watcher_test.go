package docwatch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type changeLog struct {
	mu    sync.Mutex
	paths []string
}

func (c *changeLog) add(p string) {
	c.mu.Lock()
	c.paths = append(c.paths, p)
	c.mu.Unlock()
}

func (c *changeLog) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.paths...)
}

func TestWatcherCoalescesWrites(t *testing.T) {
	dir := t.TempDir()
	doc := filepath.Join(dir, "book.txt")
	other := filepath.Join(dir, "other.txt")
	require.NoError(t, os.WriteFile(doc, []byte("v1"), 0o644))

	log := &changeLog{}
	w, err := New(50*time.Millisecond, log.add)
	require.NoError(t, err)
	defer w.Close()
	require.NoError(t, w.Add(doc))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(doc, []byte{byte('a' + i)}, 0o644))
	}
	require.NoError(t, os.WriteFile(other, []byte("ignored"), 0o644))

	abs, err := filepath.Abs(doc)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(log.snapshot()) > 0 }, 3*time.Second, 10*time.Millisecond)
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, []string{abs}, log.snapshot())
}

func TestWatcherAddRemove(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "b.txt")

	w, err := New(0, func(string) {})
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.Add(a))
	require.NoError(t, w.Add(a))
	require.NoError(t, w.Add(b))
	assert.Len(t, w.Files(), 2)

	w.Remove(a)
	w.Remove(a)
	assert.Len(t, w.Files(), 1)
	assert.Equal(t, 1, w.dirs[dir])

	assert.Error(t, w.Add(filepath.Join(dir, "missing", "c.txt")))
}
