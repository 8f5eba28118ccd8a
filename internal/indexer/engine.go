// Package indexer builds, loads and tracks per-document search indices.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Document-Reader-Search/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/Document-Reader-Search/internal/events"
	"github.com/Adithya-Monish-Kumar-K/Document-Reader-Search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Document-Reader-Search/internal/indexer/indexfile"
	"github.com/Adithya-Monish-Kumar-K/Document-Reader-Search/internal/textsource"
	"github.com/Adithya-Monish-Kumar-K/Document-Reader-Search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Document-Reader-Search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Document-Reader-Search/pkg/metrics"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// ProgressFunc receives the fraction of pages merged so far, in [0,1]. The
// last call of a successful BuildIndex is always exactly 1.
type ProgressFunc func(fraction float64)

// Catalog is the subset of *catalog.Catalog the engine records into.
type Catalog interface {
	Record(ctx context.Context, e catalog.Entry) error
	Delete(ctx context.Context, documentKey string) error
	DeleteAll(ctx context.Context) (int64, error)
}

type Option func(*Engine)

func WithCatalog(c Catalog) Option {
	return func(e *Engine) { e.catalog = c }
}

func WithEvents(sink events.Sink) Option {
	return func(e *Engine) { e.events = sink }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithClock overrides the time source used for CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// Engine owns every resident index.Store, keyed by document key.
type Engine struct {
	cfg     config.IndexerConfig
	writer  *indexfile.Writer
	catalog Catalog
	events  events.Sink
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time

	group  singleflight.Group
	mu     sync.RWMutex
	stores map[string]*index.Store
}

func NewEngine(cfg config.IndexerConfig, opts ...Option) *Engine {
	e := &Engine{
		cfg:    cfg,
		writer: indexfile.NewWriter(cfg.DataDir),
		logger: slog.Default().With("component", "indexer"),
		now:    time.Now,
		stores: make(map[string]*index.Store),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// BuildIndex returns the index for documentKey, in order of preference: the
// resident store, a fresh persisted store, or a new build over src. Fresh
// means the format version matches and the store is not older than the
// source's modification time (when src implements textsource.Modified).
//
// Concurrent calls for the same key share one build. A build is never
// interrupted: when ctx is cancelled the pages are still merged, then the
// result is discarded unpersisted and ctx.Err() is returned.
func (e *Engine) BuildIndex(ctx context.Context, documentKey string, src textsource.Source, progress ProgressFunc) (*index.Store, error) {
	if documentKey == "" {
		return nil, apperrors.New(apperrors.ErrInvalidInput, 400, "document key is required")
	}
	modTime := sourceModTime(src)
	if store, ok := e.resident(documentKey, modTime); ok {
		e.observeOutcome("memory")
		report(progress, 1)
		return store, nil
	}

	v, err, _ := e.group.Do(documentKey, func() (any, error) {
		if store, ok := e.resident(documentKey, modTime); ok {
			e.observeOutcome("memory")
			return store, nil
		}
		if store, ok := e.load(documentKey, modTime); ok {
			return store, nil
		}
		return e.build(ctx, documentKey, src, progress)
	})
	if err != nil {
		return nil, err
	}
	report(progress, 1)
	return v.(*index.Store), nil
}

func (e *Engine) build(ctx context.Context, documentKey string, src textsource.Source, progress ProgressFunc) (*index.Store, error) {
	pageCount := src.PageCount()
	if pageCount < 0 {
		return nil, apperrors.Newf(apperrors.ErrInvalidInput, 400, "source reports %d pages", pageCount)
	}
	start := time.Now()
	e.logger.Info("building index", "doc_key", documentKey, "pages", pageCount)

	// Page tasks only produce results; the loop below is the single owner
	// of the builder.
	results := make(chan index.PageResult, pageCount)
	var g errgroup.Group
	for i := 0; i < pageCount; i++ {
		g.Go(func() error {
			text, err := src.Text(ctx, i)
			if err != nil {
				e.logger.Debug("page text unavailable", "doc_key", documentKey, "page_index", i, "error", err)
				text = ""
			}
			results <- index.AnalyzePage(i, text)
			return nil
		})
	}
	go func() {
		_ = g.Wait()
		close(results)
	}()

	builder := index.NewBuilder(documentKey, sourcePath(src), pageCount)
	merged := 0
	for res := range results {
		builder.Merge(res)
		merged++
		if merged < pageCount {
			report(progress, float64(merged)/float64(pageCount))
		}
	}
	store := builder.Build(e.now())
	elapsed := time.Since(start)

	if e.metrics != nil {
		e.metrics.PagesIndexedTotal.WithLabelValues("text").Add(float64(pageCount - builder.Textless()))
		e.metrics.PagesIndexedTotal.WithLabelValues("empty").Add(float64(builder.Textless()))
	}
	if err := ctx.Err(); err != nil {
		e.observeOutcome("cancelled")
		e.logger.Info("index build finished after cancellation, discarding",
			"doc_key", documentKey,
			"elapsed", elapsed,
		)
		return nil, err
	}

	e.register(store)
	e.observeOutcome("built")
	if e.metrics != nil {
		e.metrics.IndexBuildDuration.Observe(elapsed.Seconds())
	}
	e.logger.Info("index built",
		"doc_key", documentKey,
		"pages", pageCount,
		"textless_pages", builder.Textless(),
		"terms", store.Terms(),
		"elapsed", elapsed,
	)
	e.persist(ctx, store)
	e.track(events.Event{
		Type:        events.EventIndexBuilt,
		DocumentKey: documentKey,
		PageCount:   pageCount,
		TermCount:   store.Terms(),
		LatencyMs:   elapsed.Milliseconds(),
	})
	return store, nil
}

// persist writes the store and records it in the catalog. Failures are
// logged; the in-memory store stays valid.
func (e *Engine) persist(ctx context.Context, store *index.Store) {
	if !e.cfg.Persist {
		return
	}
	path, err := e.writer.Write(store)
	if err != nil {
		e.observeSave("failed")
		e.logger.Error("failed to persist index", "doc_key", store.DocumentKey, "error", err)
		return
	}
	e.observeSave("ok")
	if e.catalog == nil {
		return
	}
	entry := catalog.Entry{
		DocumentKey:   store.DocumentKey,
		SourcePath:    store.SourcePath,
		IndexFile:     path,
		PageCount:     store.PageCount,
		TermCount:     store.Terms(),
		FormatVersion: store.FormatVersion,
		CreatedAt:     store.CreatedAt,
	}
	if err := e.catalog.Record(ctx, entry); err != nil {
		e.logger.Warn("failed to record index in catalog", "doc_key", store.DocumentKey, "error", err)
	}
}

// load reads a persisted store. Every failure is reported as "no index".
func (e *Engine) load(documentKey string, modTime time.Time) (*index.Store, bool) {
	if !e.cfg.Persist {
		return nil, false
	}
	path := e.writer.Path(documentKey)
	store, err := indexfile.Read(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return nil, false
	case err != nil:
		e.logger.Warn("ignoring unreadable index file", "doc_key", documentKey, "path", path, "error", err)
		if rmErr := e.writer.Remove(documentKey); rmErr != nil {
			e.logger.Debug("could not remove unreadable index file", "error", rmErr)
		}
		return nil, false
	}
	if store.DocumentKey != documentKey {
		e.logger.Warn("index file belongs to another document", "doc_key", documentKey, "stored_key", store.DocumentKey)
		return nil, false
	}
	if store.IsStale(modTime) {
		e.logger.Info("persisted index is stale", "doc_key", documentKey,
			"index_created", store.CreatedAt, "source_modified", modTime)
		return nil, false
	}
	e.register(store)
	e.observeOutcome("loaded")
	e.logger.Info("index loaded from disk", "doc_key", documentKey, "pages", store.PageCount, "terms", store.Terms())
	e.track(events.Event{
		Type:        events.EventIndexLoaded,
		DocumentKey: documentKey,
		PageCount:   store.PageCount,
		TermCount:   store.Terms(),
	})
	return store, true
}

func (e *Engine) resident(documentKey string, modTime time.Time) (*index.Store, bool) {
	e.mu.RLock()
	store, ok := e.stores[documentKey]
	e.mu.RUnlock()
	if !ok || !store.Current() || store.IsStale(modTime) {
		return nil, false
	}
	return store, true
}

func (e *Engine) register(store *index.Store) {
	e.mu.Lock()
	e.stores[store.DocumentKey] = store
	e.mu.Unlock()
	if e.metrics != nil {
		e.metrics.IndexTerms.WithLabelValues(shortKey(store.DocumentKey)).Set(float64(store.Terms()))
	}
}

// Store returns the resident index for documentKey.
func (e *Engine) Store(documentKey string) (*index.Store, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	store, ok := e.stores[documentKey]
	return store, ok
}

// HasIndex reports whether documentKey has a resident index.
func (e *Engine) HasIndex(documentKey string) bool {
	_, ok := e.Store(documentKey)
	return ok
}

// Keys returns the resident document keys in sorted order.
func (e *Engine) Keys() []string {
	e.mu.RLock()
	keys := make([]string, 0, len(e.stores))
	for k := range e.stores {
		keys = append(keys, k)
	}
	e.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

// ResidentBytes estimates the heap held by all resident stores.
func (e *Engine) ResidentBytes() int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var total int64
	for _, s := range e.stores {
		total += s.Size()
	}
	return total
}

// Discard drops the resident store for documentKey, typically on document
// close. With deleteFile the persisted file and catalog entry go too.
func (e *Engine) Discard(ctx context.Context, documentKey string, deleteFile bool) error {
	e.forget(documentKey)
	e.logger.Info("index discarded", "doc_key", documentKey, "delete_file", deleteFile)
	e.track(events.Event{Type: events.EventIndexDiscarded, DocumentKey: documentKey})
	if !deleteFile {
		return nil
	}
	return e.removePersisted(ctx, documentKey)
}

// Invalidate drops every copy of documentKey's index after its source
// changed. The next BuildIndex rebuilds from scratch.
func (e *Engine) Invalidate(ctx context.Context, documentKey string) error {
	e.forget(documentKey)
	e.logger.Info("index invalidated", "doc_key", documentKey)
	e.track(events.Event{Type: events.EventIndexInvalidated, DocumentKey: documentKey})
	return e.removePersisted(ctx, documentKey)
}

// ClearAll drops every resident store and, with deleteFiles, every index
// file in the data directory and every catalog entry. It returns the number
// of files removed.
func (e *Engine) ClearAll(ctx context.Context, deleteFiles bool) (int, error) {
	for _, key := range e.Keys() {
		e.forget(key)
	}
	if !deleteFiles {
		return 0, nil
	}
	removed, err := e.writer.RemoveAll()
	if err != nil {
		return removed, fmt.Errorf("clearing index files: %w", err)
	}
	if e.catalog != nil {
		if _, err := e.catalog.DeleteAll(ctx); err != nil {
			return removed, fmt.Errorf("clearing catalog: %w", err)
		}
	}
	e.logger.Info("all indices cleared", "files_removed", removed)
	return removed, nil
}

func (e *Engine) forget(documentKey string) {
	e.mu.Lock()
	delete(e.stores, documentKey)
	e.mu.Unlock()
	if e.metrics != nil {
		e.metrics.IndexTerms.DeleteLabelValues(shortKey(documentKey))
	}
}

func (e *Engine) removePersisted(ctx context.Context, documentKey string) error {
	if err := e.writer.Remove(documentKey); err != nil {
		return err
	}
	if e.catalog != nil {
		if err := e.catalog.Delete(ctx, documentKey); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) track(event events.Event) {
	if e.events != nil {
		e.events.Track(event)
	}
}

func (e *Engine) observeOutcome(outcome string) {
	if e.metrics != nil {
		e.metrics.IndexBuildsTotal.WithLabelValues(outcome).Inc()
	}
}

func (e *Engine) observeSave(status string) {
	if e.metrics != nil {
		e.metrics.IndexSavesTotal.WithLabelValues(status).Inc()
	}
}

func report(progress ProgressFunc, fraction float64) {
	if progress != nil {
		progress(fraction)
	}
}

func sourceModTime(src textsource.Source) time.Time {
	if m, ok := src.(textsource.Modified); ok {
		return m.ModTime()
	}
	return time.Time{}
}

func sourcePath(src textsource.Source) string {
	if l, ok := src.(textsource.Located); ok {
		return l.Path()
	}
	return ""
}

// shortKey keeps metric label cardinality readable for content hashes.
func shortKey(documentKey string) string {
	if len(documentKey) > 12 {
		return documentKey[:12]
	}
	return documentKey
}
