package pagecache

import (
	"math"
	"math/rand"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/Document-Reader-Search/internal/textsource"
	"github.com/Adithya-Monish-Kumar-K/Document-Reader-Search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Document-Reader-Search/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRenderer struct {
	pages     int
	live      map[int]int
	requested int
	cleared   int
	dropped   int
}

func newFakeRenderer(pages int) *fakeRenderer {
	return &fakeRenderer{pages: pages, live: make(map[int]int)}
}

func (f *fakeRenderer) PageCount() int { return f.pages }

func (f *fakeRenderer) RenderedPage(page int) (any, bool) {
	if page < 0 || page >= f.pages {
		return nil, false
	}
	f.requested++
	f.live[page]++
	return page, true
}

func (f *fakeRenderer) ReleasePage(page int, handle any) {
	if handle.(int) != page {
		panic("handle returned for the wrong page")
	}
	f.live[page]--
	if f.live[page] == 0 {
		delete(f.live, page)
	}
}

func (f *fakeRenderer) ClearTransientCaches() { f.cleared++ }
func (f *fakeRenderer) DropDecodedImages()    { f.dropped++ }

func newTestCache(buffer int) *Cache {
	return New(config.PageCacheConfig{Buffer: buffer}, WithMetrics(metrics.NewWithRegistry(prometheus.NewRegistry())))
}

func TestUpdateVisibleRangeLoadsAndEvicts(t *testing.T) {
	r := newFakeRenderer(100)
	c := newTestCache(2)
	c.SetDocument(r)

	c.UpdateVisibleRange(Range{Low: 10, High: 12})
	assert.Equal(t, []int{10, 11, 12}, c.Resident())

	c.UpdateVisibleRange(Range{Low: 13, High: 15})
	assert.Equal(t, []int{11, 12, 13, 14, 15}, c.Resident())

	c.UpdateVisibleRange(Range{Low: 40, High: 41})
	assert.Equal(t, []int{40, 41}, c.Resident())
	assert.Len(t, r.live, 2, "evicted handles must be released")
}

func TestUpdateVisibleRangeDoesNotReload(t *testing.T) {
	r := newFakeRenderer(10)
	c := newTestCache(2)
	c.SetDocument(r)

	c.UpdateVisibleRange(Range{Low: 0, High: 3})
	c.UpdateVisibleRange(Range{Low: 1, High: 4})
	assert.Equal(t, 5, r.requested)
	assert.Equal(t, 1, r.live[2])
}

func TestUpdateVisibleRangeClipsToDocument(t *testing.T) {
	r := newFakeRenderer(5)
	c := newTestCache(2)
	c.SetDocument(r)

	c.UpdateVisibleRange(Range{Low: 3, High: 9})
	assert.Equal(t, []int{3, 4}, c.Resident())

	c.UpdateVisibleRange(Range{Low: 2, High: -1})
	vr, ok := c.VisibleRange()
	require.True(t, ok)
	assert.Equal(t, Range{Low: -1, High: 2}, vr)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, c.Resident())
}

func TestExtremeRangesSaturate(t *testing.T) {
	assert.Equal(t, Range{Low: math.MinInt, High: 4}, Range{Low: math.MinInt, High: 2}.Expand(2))
	assert.Equal(t, Range{Low: math.MinInt, High: math.MaxInt}, Range{Low: math.MinInt + 1, High: math.MaxInt - 1}.Expand(2))
	assert.Equal(t, Range{Low: 3, High: 7}, Range{Low: 5, High: 5}.Expand(2))

	r := newFakeRenderer(5)
	c := newTestCache(2)
	c.SetDocument(r)
	c.UpdateVisibleRange(Range{Low: 3, High: 4})
	c.UpdateVisibleRange(Range{Low: math.MinInt, High: 1})
	assert.Equal(t, []int{0, 1, 3}, c.Resident())

	c.UpdateVisibleRange(Range{Low: math.MinInt, High: math.MaxInt})
	assert.Equal(t, []int{0, 1, 2, 3, 4}, c.Resident())
}

func TestCacheWindowInvariant(t *testing.T) {
	const pages = 300
	for _, buffer := range []int{0, 1, 2, 5} {
		r := newFakeRenderer(pages)
		c := newTestCache(buffer)
		c.SetDocument(r)
		rng := rand.New(rand.NewSource(int64(buffer) + 7))

		var last Range
		for i := 0; i < 500; i++ {
			low := rng.Intn(pages)
			last = Range{Low: low, High: low + rng.Intn(6)}
			c.UpdateVisibleRange(last)

			keep := last.Expand(buffer)
			for _, p := range c.Resident() {
				require.True(t, keep.Contains(p), "page %d outside %v", p, keep)
			}
			for p := last.Low; p <= last.High && p < pages; p++ {
				_, ok := c.Handle(p)
				require.True(t, ok, "visible page %d not resident", p)
			}
		}
		assert.Len(t, r.live, len(c.Resident()))
	}
}

func TestOptimizeForMemoryPressure(t *testing.T) {
	r := newFakeRenderer(50)
	c := newTestCache(2)
	c.SetDocument(r)
	c.UpdateVisibleRange(Range{Low: 10, High: 11})
	c.UpdateVisibleRange(Range{Low: 11, High: 12})
	require.Equal(t, []int{10, 11, 12}, c.Resident())

	c.OptimizeForMemoryPressure()
	assert.Equal(t, []int{11, 12}, c.Resident())
	assert.Equal(t, Stats{Loaded: 2, Visible: 2, Buffer: 2, VisibleRange: &Range{Low: 11, High: 12}}, c.Statistics())
}

func TestClearCacheAndSetDocument(t *testing.T) {
	r := newFakeRenderer(20)
	c := newTestCache(2)
	c.SetDocument(r)
	c.UpdateVisibleRange(Range{Low: 0, High: 4})

	c.ClearCache()
	assert.Empty(t, c.Resident())
	assert.Empty(t, r.live)

	c.UpdateVisibleRange(Range{Low: 0, High: 1})
	other := newFakeRenderer(3)
	c.SetDocument(other)
	assert.Empty(t, r.live, "switching documents releases the old pages")
	_, ok := c.VisibleRange()
	assert.False(t, ok)

	c.SetDocument(nil)
	c.UpdateVisibleRange(Range{Low: 0, High: 1})
	assert.Empty(t, c.Resident())
}

func TestStatistics(t *testing.T) {
	c := newTestCache(2)
	c.SetDocument(newFakeRenderer(30))
	c.UpdateVisibleRange(Range{Low: 5, High: 9})
	c.UpdateVisibleRange(Range{Low: 8, High: 10})

	s := c.Statistics()
	assert.Equal(t, 5, s.Loaded)
	assert.Equal(t, 3, s.Visible)
	assert.Equal(t, 2, s.Cached)
}

func TestForwardsTransientCacheCalls(t *testing.T) {
	r := newFakeRenderer(3)
	c := newTestCache(2)
	c.SetDocument(r)
	c.ClearTransientCaches()
	c.DropDecodedImages()
	assert.Equal(t, 1, r.cleared)
	assert.Equal(t, 1, r.dropped)

	c.SetDocument(nil)
	assert.NotPanics(t, c.ClearTransientCaches)
}

func TestWorksWithTextRenderer(t *testing.T) {
	renderer := textsource.NewRenderer(textsource.NewStatic("one", "two", "three", "four"), 40)
	c := newTestCache(1)
	c.SetDocument(renderer)

	c.UpdateVisibleRange(Range{Low: 0, High: 1})
	c.UpdateVisibleRange(Range{Low: 3, High: 3})
	assert.Equal(t, []int{3}, c.Resident())
	assert.Equal(t, 1, renderer.Live())

	h, ok := c.Handle(3)
	require.True(t, ok)
	assert.Equal(t, []string{"four"}, h.(*textsource.RenderedPage).Lines)
}
