// Package pagecache keeps rendered pages resident only inside a sliding
// window around the visible range.
//
// Eviction is by positional distance from the visible range, not by access
// recency: a page survives while it lies within buffer pages of what is on
// screen.
package pagecache

import (
	"log/slog"
	"math"
	"sort"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/Document-Reader-Search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Document-Reader-Search/pkg/metrics"
)

const DefaultBuffer = 2

// Range is a closed interval of page indices.
type Range struct {
	Low  int `json:"low"`
	High int `json:"high"`
}

func (r Range) Contains(page int) bool {
	return page >= r.Low && page <= r.High
}

// Expand widens the range by n pages on each side, saturating at the int
// limits.
func (r Range) Expand(n int) Range {
	low, high := r.Low-n, r.High+n
	if low > r.Low {
		low = math.MinInt
	}
	if high < r.High {
		high = math.MaxInt
	}
	return Range{Low: low, High: high}
}

func (r Range) normalized() Range {
	if r.Low > r.High {
		return Range{Low: r.High, High: r.Low}
	}
	return r
}

// Renderer hands out opaque page handles. The cache never looks inside a
// handle; it only requests and releases them.
type Renderer interface {
	PageCount() int
	RenderedPage(pageIndex int) (handle any, ok bool)
	ReleasePage(pageIndex int, handle any)
}

// TransientCacheOwner is implemented by renderers that hold decode or
// layout caches the memory coordinator may ask them to drop.
type TransientCacheOwner interface {
	ClearTransientCaches()
	DropDecodedImages()
}

// Stats is a point-in-time view of the cache. Loaded counts every resident
// page; Visible those inside the visible range; Cached those held only by
// the buffer.
type Stats struct {
	Loaded       int    `json:"loaded"`
	Cached       int    `json:"cached"`
	Visible      int    `json:"visible"`
	Buffer       int    `json:"buffer"`
	VisibleRange *Range `json:"visibleRange,omitempty"`
}

type Option func(*Cache)

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

// Cache is safe for concurrent use; every operation runs under one lock so
// viewer updates and pressure callbacks are applied in sequence.
type Cache struct {
	mu         sync.Mutex
	renderer   Renderer
	buffer     int
	resident   map[int]any
	visible    Range
	hasVisible bool
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

func New(cfg config.PageCacheConfig, opts ...Option) *Cache {
	buffer := cfg.Buffer
	if buffer < 0 {
		buffer = DefaultBuffer
	}
	c := &Cache{
		buffer:   buffer,
		resident: make(map[int]any),
		logger:   slog.Default().With("component", "page-cache"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetDocument releases everything resident and switches to r. A nil r
// closes the current document.
func (c *Cache) SetDocument(r Renderer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.evictLocked(func(int) bool { return true }, "clear")
	c.renderer = r
	c.hasVisible = false
	c.visible = Range{}
	pages := 0
	if r != nil {
		pages = r.PageCount()
	}
	c.logger.Debug("document set", "pages", pages)
}

// UpdateVisibleRange loads every page of vr that is not yet resident, then
// evicts every resident page farther than the buffer from vr. Indices
// outside the document are ignored for loading but still define the window.
func (c *Cache) UpdateVisibleRange(vr Range) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.renderer == nil {
		return
	}
	vr = vr.normalized()
	c.visible = vr
	c.hasVisible = true

	pageCount := c.renderer.PageCount()
	low, high := max(vr.Low, 0), min(vr.High, pageCount-1)
	loaded := 0
	for page := low; page <= high; page++ {
		if _, ok := c.resident[page]; ok {
			continue
		}
		handle, ok := c.renderer.RenderedPage(page)
		if !ok {
			continue
		}
		c.resident[page] = handle
		loaded++
	}
	if loaded > 0 && c.metrics != nil {
		c.metrics.PageLoadsTotal.Add(float64(loaded))
	}

	keep := vr.Expand(c.buffer)
	evicted := c.evictLocked(func(page int) bool { return !keep.Contains(page) }, "window")
	c.logger.Debug("visible range updated",
		"low", vr.Low,
		"high", vr.High,
		"loaded", loaded,
		"evicted", evicted,
		"resident", len(c.resident),
	)
}

// ClearCache evicts every resident page.
func (c *Cache) ClearCache() {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.evictLocked(func(int) bool { return true }, "clear")
	if n > 0 {
		c.logger.Info("page cache cleared", "evicted", n)
	}
}

// OptimizeForMemoryPressure keeps only pages inside the visible range,
// dropping the buffer. With no visible range it clears everything.
func (c *Cache) OptimizeForMemoryPressure() {
	c.mu.Lock()
	defer c.mu.Unlock()
	vr, has := c.visible, c.hasVisible
	n := c.evictLocked(func(page int) bool { return !has || !vr.Contains(page) }, "pressure")
	c.logger.Info("page cache trimmed to visible range", "evicted", n, "resident", len(c.resident))
}

// ClearTransientCaches forwards to the renderer when it keeps such caches.
func (c *Cache) ClearTransientCaches() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if owner, ok := c.renderer.(TransientCacheOwner); ok {
		owner.ClearTransientCaches()
	}
}

// DropDecodedImages forwards to the renderer when it keeps decoded images.
func (c *Cache) DropDecodedImages() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if owner, ok := c.renderer.(TransientCacheOwner); ok {
		owner.DropDecodedImages()
	}
}

// Handle returns the resident handle for page.
func (c *Cache) Handle(page int) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.resident[page]
	return h, ok
}

// Resident returns the resident page indices in ascending order.
func (c *Cache) Resident() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.residentLocked()
}

// VisibleRange returns the last range passed to UpdateVisibleRange.
func (c *Cache) VisibleRange() (Range, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.visible, c.hasVisible
}

func (c *Cache) Statistics() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Stats{Loaded: len(c.resident), Buffer: c.buffer}
	if c.hasVisible {
		vr := c.visible
		s.VisibleRange = &vr
	}
	for page := range c.resident {
		if c.hasVisible && c.visible.Contains(page) {
			s.Visible++
		} else {
			s.Cached++
		}
	}
	return s
}

func (c *Cache) residentLocked() []int {
	pages := make([]int, 0, len(c.resident))
	for p := range c.resident {
		pages = append(pages, p)
	}
	sort.Ints(pages)
	return pages
}

// evictLocked releases every resident page for which drop returns true.
func (c *Cache) evictLocked(drop func(page int) bool, reason string) int {
	n := 0
	for page, handle := range c.resident {
		if !drop(page) {
			continue
		}
		if c.renderer != nil {
			c.renderer.ReleasePage(page, handle)
		}
		delete(c.resident, page)
		n++
	}
	if c.metrics != nil {
		if n > 0 {
			c.metrics.PageEvictionsTotal.WithLabelValues(reason).Add(float64(n))
		}
		c.metrics.ResidentPages.Set(float64(len(c.resident)))
	}
	return n
}
