// Package workspace is the composition root: it owns one indexer, search
// engine, page cache and memory coordinator, plus the optional catalog,
// result cache, event collector and file watcher, and routes document
// operations between them.
package workspace

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/Adithya-Monish-Kumar-K/Document-Reader-Search/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/Document-Reader-Search/internal/docwatch"
	"github.com/Adithya-Monish-Kumar-K/Document-Reader-Search/internal/events"
	"github.com/Adithya-Monish-Kumar-K/Document-Reader-Search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Document-Reader-Search/internal/pagecache"
	"github.com/Adithya-Monish-Kumar-K/Document-Reader-Search/internal/pressure"
	"github.com/Adithya-Monish-Kumar-K/Document-Reader-Search/internal/search"
	"github.com/Adithya-Monish-Kumar-K/Document-Reader-Search/internal/search/cache"
	"github.com/Adithya-Monish-Kumar-K/Document-Reader-Search/internal/textsource"
	"github.com/Adithya-Monish-Kumar-K/Document-Reader-Search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Document-Reader-Search/pkg/health"
	apperrors "github.com/Adithya-Monish-Kumar-K/Document-Reader-Search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Document-Reader-Search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Document-Reader-Search/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Document-Reader-Search/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/Document-Reader-Search/pkg/sqldb"
)

// RenderWidth is the column width text pages are laid out at.
const RenderWidth = 100

// DocumentInfo describes an open document.
type DocumentInfo struct {
	Key      string  `json:"key"`
	Path     string  `json:"path,omitempty"`
	Pages    int     `json:"pages"`
	Indexed  bool    `json:"indexed"`
	Progress float64 `json:"progress"`
	Terms    int     `json:"terms"`
	Error    string  `json:"error,omitempty"`
}

// Stats is the workspace-wide observability snapshot.
type Stats struct {
	Documents          int             `json:"documents"`
	ResidentIndexBytes int64           `json:"residentIndexBytes"`
	PageCache          pagecache.Stats `json:"pageCache"`
	PressureLevel      string          `json:"pressureLevel"`
	ResidentBytes      uint64          `json:"residentBytes"`
	CacheHits          int64           `json:"cacheHits"`
	CacheMisses        int64           `json:"cacheMisses"`
}

type document struct {
	key      string
	path     string
	source   textsource.Source
	renderer *textsource.Renderer
	indexed  chan struct{}
	progress atomic.Uint64
	err      error
}

func (d *document) setProgress(f float64) {
	d.progress.Store(math.Float64bits(f))
}

func (d *document) getProgress() float64 {
	return math.Float64frombits(d.progress.Load())
}

type Option func(*Workspace)

func WithMetrics(m *metrics.Metrics) Option {
	return func(w *Workspace) { w.metrics = m }
}

// WithSampler replaces the process memory sampler.
func WithSampler(s pressure.Sampler) Option {
	return func(w *Workspace) { w.sampler = s }
}

type Workspace struct {
	cfg     *config.Config
	metrics *metrics.Metrics
	sampler pressure.Sampler
	logger  *slog.Logger

	indexer     *indexer.Engine
	search      *search.Engine
	pages       *pagecache.Cache
	coordinator *pressure.Coordinator

	db          *sqldb.Client
	catalog     *catalog.Catalog
	redis       *pkgredis.Client
	resultCache *cache.ResultCache
	producer    *kafka.Producer
	collector   *events.Collector
	watcher     *docwatch.Watcher

	ctx    context.Context
	cancel context.CancelFunc
	builds sync.WaitGroup

	mu     sync.RWMutex
	docs   map[string]*document
	byPath map[string]string
	active string
}

// New wires every component from cfg. Optional backends that fail to come
// up are logged and left out; the reader keeps working without them.
func New(cfg *config.Config, opts ...Option) (*Workspace, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	w := &Workspace{
		cfg:    cfg,
		logger: slog.Default().With("component", "workspace"),
		ctx:    ctx,
		cancel: cancel,
		docs:   make(map[string]*document),
		byPath: make(map[string]string),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.metrics == nil {
		w.metrics = metrics.New()
	}

	var sink events.Sink
	if cfg.Kafka.Enabled {
		w.producer = kafka.NewProducer(cfg.Kafka)
		w.collector = events.NewCollector(w.producer, 1024)
		w.collector.Start(ctx)
		sink = w.collector
	}

	indexerOpts := []indexer.Option{indexer.WithMetrics(w.metrics)}
	if sink != nil {
		indexerOpts = append(indexerOpts, indexer.WithEvents(sink))
	}
	if cfg.Catalog.Enabled {
		if err := w.openCatalog(); err != nil {
			w.logger.Warn("index catalog unavailable", "driver", cfg.Catalog.Driver, "error", err)
		} else {
			indexerOpts = append(indexerOpts, indexer.WithCatalog(w.catalog))
		}
	}
	w.indexer = indexer.NewEngine(cfg.Indexer, indexerOpts...)

	searchOpts := []search.Option{search.WithMetrics(w.metrics)}
	if sink != nil {
		searchOpts = append(searchOpts, search.WithEvents(sink))
	}
	if cfg.Redis.Enabled {
		client, err := pkgredis.NewClient(cfg.Redis)
		if err != nil {
			w.logger.Warn("result cache unavailable", "addr", cfg.Redis.Addr, "error", err)
		} else {
			w.redis = client
			w.resultCache = cache.New(client, cfg.Redis)
			searchOpts = append(searchOpts, search.WithCache(w.resultCache))
		}
	}
	w.search = search.NewEngine(w.indexer, cfg.Search, searchOpts...)

	w.pages = pagecache.New(cfg.PageCache, pagecache.WithMetrics(w.metrics))
	pressureOpts := []pressure.Option{pressure.WithMetrics(w.metrics)}
	if w.sampler != nil {
		pressureOpts = append(pressureOpts, pressure.WithSampler(w.sampler))
	}
	if sink != nil {
		pressureOpts = append(pressureOpts, pressure.WithEvents(sink))
	}
	w.coordinator = pressure.NewCoordinator(cfg.Memory, pressureOpts...)
	w.coordinator.Register(w.pages)

	if cfg.Watch.Enabled {
		watcher, err := docwatch.New(cfg.Watch.Debounce, w.sourceChanged)
		if err != nil {
			w.logger.Warn("file watching unavailable", "error", err)
		} else {
			w.watcher = watcher
		}
	}
	return w, nil
}

func (w *Workspace) openCatalog() error {
	db, err := sqldb.New(w.cfg.Catalog)
	if err != nil {
		return err
	}
	cat := catalog.New(db)
	if err := cat.Migrate(w.ctx); err != nil {
		db.Close()
		return err
	}
	w.db = db
	w.catalog = cat
	return nil
}

// Start runs the background loops: memory sampling and file watching.
func (w *Workspace) Start() {
	w.coordinator.Start(w.ctx)
	if w.watcher != nil {
		go w.watcher.Run(w.ctx)
	}
}

// Open opens a text export and starts indexing it in the background. Opening
// the same unchanged file again returns the existing document.
func (w *Workspace) Open(path string, progress indexer.ProgressFunc) (DocumentInfo, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return DocumentInfo{}, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "bad path %q: %v", path, err)
	}
	src, err := textsource.OpenFile(abs)
	if err != nil {
		return DocumentInfo{}, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "%v", err)
	}

	w.mu.RLock()
	oldKey, seen := w.byPath[abs]
	w.mu.RUnlock()
	if seen && oldKey != src.Key() {
		w.logger.Info("document content changed since it was opened", "path", abs)
		if err := w.Close(w.ctx, oldKey, false); err != nil {
			w.logger.Warn("closing previous version failed", "doc_key", oldKey, "error", err)
		}
	}

	info, err := w.OpenSource(src.Key(), src, progress)
	if err != nil {
		return info, err
	}
	w.mu.Lock()
	w.byPath[abs] = src.Key()
	w.mu.Unlock()
	if w.watcher != nil {
		if err := w.watcher.Add(abs); err != nil {
			w.logger.Warn("cannot watch document", "path", abs, "error", err)
		}
	}
	return info, nil
}

// OpenSource registers an arbitrary source under key and starts indexing.
func (w *Workspace) OpenSource(key string, src textsource.Source, progress indexer.ProgressFunc) (DocumentInfo, error) {
	if key == "" {
		return DocumentInfo{}, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "document key is required")
	}
	w.mu.Lock()
	if doc, ok := w.docs[key]; ok {
		w.mu.Unlock()
		return w.info(doc), nil
	}
	doc := &document{
		key:      key,
		source:   src,
		renderer: textsource.NewRenderer(src, RenderWidth),
		indexed:  make(chan struct{}),
	}
	if l, ok := src.(textsource.Located); ok {
		doc.path = l.Path()
	}
	w.docs[key] = doc
	w.mu.Unlock()

	w.builds.Add(1)
	go func() {
		defer w.builds.Done()
		defer close(doc.indexed)
		_, err := w.indexer.BuildIndex(w.ctx, key, src, func(f float64) {
			doc.setProgress(f)
			if progress != nil {
				progress(f)
			}
		})
		if err != nil {
			doc.err = err
			w.logger.Warn("indexing did not complete", "doc_key", key, "error", err)
		}
	}()
	w.logger.Info("document opened", "doc_key", key, "path", doc.path, "pages", src.PageCount())
	return w.info(doc), nil
}

// WaitIndexed blocks until key's index build has finished.
func (w *Workspace) WaitIndexed(ctx context.Context, key string) error {
	doc, err := w.document(key)
	if err != nil {
		return err
	}
	select {
	case <-doc.indexed:
		return doc.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Search queries an open document. An open document whose index is not
// built yet yields no results.
func (w *Workspace) Search(ctx context.Context, key, query string, opts search.Options) ([]search.Result, error) {
	if _, err := w.document(key); err != nil {
		return nil, err
	}
	return w.search.Search(ctx, key, query, opts), nil
}

// View makes key the document on screen and moves the visible range.
// Views are serialised: the switch, the range update and the statistics
// all belong to the same document.
func (w *Workspace) View(key string, visible pagecache.Range) (pagecache.Stats, error) {
	doc, err := w.document(key)
	if err != nil {
		return pagecache.Stats{}, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.active != key {
		w.pages.SetDocument(doc.renderer)
		w.active = key
	}
	w.pages.UpdateVisibleRange(visible)
	return w.pages.Statistics(), nil
}

// Page returns the laid-out lines of a resident page of the active
// document.
func (w *Workspace) Page(key string, page int) ([]string, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.active != key {
		return nil, false
	}
	h, ok := w.pages.Handle(page)
	if !ok {
		return nil, false
	}
	return h.(*textsource.RenderedPage).Lines, true
}

// Close forgets key. A build still in flight is allowed to finish and its
// result is then discarded. With deleteIndex the persisted index goes too.
func (w *Workspace) Close(ctx context.Context, key string, deleteIndex bool) error {
	w.mu.Lock()
	doc, ok := w.docs[key]
	if !ok {
		w.mu.Unlock()
		return apperrors.Newf(apperrors.ErrDocumentNotOpen, http.StatusNotFound, "document %s is not open", key)
	}
	delete(w.docs, key)
	if doc.path != "" && w.byPath[doc.path] == key {
		delete(w.byPath, doc.path)
	}
	if w.active == key {
		w.pages.SetDocument(nil)
		w.active = ""
	}
	w.mu.Unlock()

	if doc.path != "" && w.watcher != nil {
		w.watcher.Remove(doc.path)
	}
	select {
	case <-doc.indexed:
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := w.indexer.Discard(ctx, key, deleteIndex); err != nil {
		return fmt.Errorf("discarding index: %w", err)
	}
	w.invalidateResults(ctx, key)
	return nil
}

// ClearIndices drops every index, in memory and on disk. Open documents
// stay open but search returns nothing until they are reopened.
func (w *Workspace) ClearIndices(ctx context.Context) (int, error) {
	removed, err := w.indexer.ClearAll(ctx, true)
	if err != nil {
		return removed, err
	}
	for _, d := range w.Documents() {
		w.invalidateResults(ctx, d.Key)
	}
	return removed, nil
}

// Documents lists the open documents ordered by path then key.
func (w *Workspace) Documents() []DocumentInfo {
	w.mu.RLock()
	docs := make([]*document, 0, len(w.docs))
	for _, d := range w.docs {
		docs = append(docs, d)
	}
	w.mu.RUnlock()

	infos := make([]DocumentInfo, 0, len(docs))
	for _, d := range docs {
		infos = append(infos, w.info(d))
	}
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].Path != infos[j].Path {
			return infos[i].Path < infos[j].Path
		}
		return infos[i].Key < infos[j].Key
	})
	return infos
}

// Catalog returns the index catalog, or nil when it is disabled.
func (w *Workspace) Catalog() *catalog.Catalog {
	return w.catalog
}

// PressureLevel samples memory once and applies the result.
func (w *Workspace) PressureLevel() pressure.Level {
	return w.coordinator.SampleOnce()
}

func (w *Workspace) Stats() Stats {
	level, sample := w.coordinator.Level()
	s := Stats{
		Documents:          len(w.Documents()),
		ResidentIndexBytes: w.indexer.ResidentBytes(),
		PageCache:          w.pages.Statistics(),
		PressureLevel:      level.String(),
		ResidentBytes:      sample,
	}
	if w.resultCache != nil {
		s.CacheHits, s.CacheMisses = w.resultCache.Stats()
	}
	return s
}

// RegisterHealth adds a probe for every backend that came up. The catalog
// is required; the result cache and broker only degrade readiness.
func (w *Workspace) RegisterHealth(c *health.Checker) {
	if w.db != nil {
		c.Require("catalog", func(ctx context.Context) error {
			if err := w.db.Ping(ctx); err != nil {
				return fmt.Errorf("%w: %v", apperrors.ErrCatalogUnavailable, err)
			}
			return nil
		})
	}
	if w.redis != nil {
		c.Optional("redis", w.redis.Ping)
	}
	if w.producer != nil {
		c.Optional("kafka", w.producer.Ping)
	}
}

// Shutdown stops background work, waits for in-flight builds within ctx and
// closes every backend.
func (w *Workspace) Shutdown(ctx context.Context) error {
	w.cancel()
	done := make(chan struct{})
	go func() {
		w.builds.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		w.logger.Warn("shutdown timed out waiting for index builds")
	}
	w.coordinator.Wait()
	w.pages.SetDocument(nil)

	if w.watcher != nil {
		_ = w.watcher.Close()
	}
	if w.collector != nil {
		w.collector.Close()
	}
	if w.producer != nil {
		if err := w.producer.Close(); err != nil {
			w.logger.Warn("closing kafka producer", "error", err)
		}
	}
	if w.redis != nil {
		_ = w.redis.Close()
	}
	if w.db != nil {
		if err := w.db.Close(); err != nil {
			return fmt.Errorf("closing catalog: %w", err)
		}
	}
	return nil
}

// sourceChanged runs on the watcher goroutine when an open file changes.
// Content keys are hashes, so a touch without an edit changes nothing.
func (w *Workspace) sourceChanged(path string) {
	w.mu.RLock()
	key, ok := w.byPath[path]
	w.mu.RUnlock()
	if !ok {
		return
	}
	src, err := textsource.OpenFile(path)
	if err != nil {
		w.logger.Warn("open document disappeared", "path", path, "error", err)
		if err := w.Close(w.ctx, key, true); err != nil {
			w.logger.Debug("closing vanished document", "doc_key", key, "error", err)
		}
		return
	}
	if src.Key() == key {
		return
	}
	if err := w.indexer.Invalidate(w.ctx, key); err != nil {
		w.logger.Warn("invalidating index failed", "doc_key", key, "error", err)
	}
	w.invalidateResults(w.ctx, key)
	if _, err := w.Open(path, nil); err != nil {
		w.logger.Warn("reopening changed document failed", "path", path, "error", err)
	}
}

func (w *Workspace) invalidateResults(ctx context.Context, key string) {
	if w.resultCache == nil {
		return
	}
	if err := w.resultCache.Invalidate(ctx, key); err != nil {
		w.logger.Warn("result cache invalidation failed", "doc_key", key, "error", err)
	}
}

func (w *Workspace) document(key string) (*document, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	doc, ok := w.docs[key]
	if !ok {
		return nil, apperrors.Newf(apperrors.ErrDocumentNotOpen, http.StatusNotFound, "document %s is not open", key)
	}
	return doc, nil
}

func (w *Workspace) info(d *document) DocumentInfo {
	info := DocumentInfo{
		Key:      d.key,
		Path:     d.path,
		Pages:    d.source.PageCount(),
		Progress: d.getProgress(),
	}
	if store, ok := w.indexer.Store(d.key); ok {
		info.Indexed = true
		info.Terms = store.Terms()
	}
	select {
	case <-d.indexed:
		if d.err != nil {
			info.Error = d.err.Error()
		}
	default:
	}
	return info
}
