// Package search answers whole-word and substring queries against a built
// document index and cuts a context snippet around every match.
package search

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Document-Reader-Search/internal/events"
	"github.com/Adithya-Monish-Kumar-K/Document-Reader-Search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Document-Reader-Search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/Document-Reader-Search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Document-Reader-Search/pkg/metrics"
)

const (
	DefaultMaxResults    = 1000
	DefaultContextRadius = 40
)

// Options tunes one query. The zero value is a case-insensitive substring
// search capped at the engine's default result limit.
type Options struct {
	WholeWords    bool `json:"wholeWords"`
	CaseSensitive bool `json:"caseSensitive"`
	MaxResults    int  `json:"maxResults"`
}

// Mode names the query mode for logs and metrics.
func (o Options) Mode() string {
	if o.WholeWords {
		return "whole_word"
	}
	return "substring"
}

// Result is one match. Text is the full page text so callers can do their
// own highlighting; Range and Context are in code points.
type Result struct {
	PageIndex int         `json:"pageIndex"`
	Text      string      `json:"text"`
	Range     index.Range `json:"range"`
	Context   string      `json:"context"`
}

// StoreProvider looks up a built index. *indexer.Engine satisfies it.
type StoreProvider interface {
	Store(documentKey string) (*index.Store, bool)
}

// ResultCache memoises result lists. The cache package provides a Redis
// implementation.
type ResultCache interface {
	GetOrCompute(ctx context.Context, documentKey, query string, opts Options, compute func() ([]Result, error)) ([]Result, bool, error)
}

type Option func(*Engine)

func WithCache(c ResultCache) Option {
	return func(e *Engine) { e.cache = c }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithEvents(sink events.Sink) Option {
	return func(e *Engine) { e.events = sink }
}

// Engine is read-only against the stores it is given and safe for
// concurrent queries.
type Engine struct {
	stores     StoreProvider
	cache      ResultCache
	metrics    *metrics.Metrics
	events     events.Sink
	logger     *slog.Logger
	maxResults int
	radius     int
}

func NewEngine(stores StoreProvider, cfg config.SearchConfig, opts ...Option) *Engine {
	e := &Engine{
		stores:     stores,
		logger:     slog.Default().With("component", "search"),
		maxResults: cfg.MaxResults,
		radius:     cfg.ContextRadius,
	}
	if e.maxResults <= 0 {
		e.maxResults = DefaultMaxResults
	}
	if e.radius <= 0 {
		e.radius = DefaultContextRadius
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Search runs query against documentKey's index. It never fails: an empty
// query, an unindexed document and a cache outage all degrade to a plain
// result list, possibly empty. Results are in ascending page order.
func (e *Engine) Search(ctx context.Context, documentKey, query string, opts Options) []Result {
	start := time.Now()
	if opts.MaxResults <= 0 || opts.MaxResults > e.maxResults {
		opts.MaxResults = e.maxResults
	}
	needle := strings.TrimSpace(query)
	if !opts.CaseSensitive {
		needle = strings.ToLower(needle)
	}
	if needle == "" {
		return []Result{}
	}

	store, ok := e.stores.Store(documentKey)
	if !ok {
		e.logger.Warn("search against unindexed document, build the index first",
			"doc_key", documentKey,
			"query", query,
		)
		e.observe(opts, "not_indexed", 0, time.Since(start))
		return []Result{}
	}

	compute := func() ([]Result, error) {
		return e.execute(store, needle, opts), nil
	}
	var results []Result
	if e.cache != nil {
		cached, hit, err := e.cache.GetOrCompute(ctx, documentKey, needle, opts, compute)
		if err != nil {
			e.logger.Warn("result cache unavailable, searching directly", "error", err)
			cached, _ = compute()
		}
		results = cached
		if e.metrics != nil {
			if hit {
				e.metrics.CacheHitsTotal.Inc()
			} else {
				e.metrics.CacheMissesTotal.Inc()
			}
		}
	} else {
		results, _ = compute()
	}

	elapsed := time.Since(start)
	resultType := "hit"
	if len(results) == 0 {
		resultType = "zero_result"
	}
	e.observe(opts, resultType, len(results), elapsed)
	e.logger.Debug("search completed",
		"doc_key", documentKey,
		"query", query,
		"mode", opts.Mode(),
		"case_sensitive", opts.CaseSensitive,
		"results", len(results),
		"elapsed", elapsed,
	)
	if e.events != nil {
		e.events.Track(events.Event{
			Type:        events.EventSearch,
			DocumentKey: documentKey,
			Query:       query,
			Results:     len(results),
			LatencyMs:   elapsed.Milliseconds(),
		})
	}
	return results
}

func (e *Engine) execute(store *index.Store, needle string, opts Options) []Result {
	if opts.WholeWords {
		return e.wholeWord(store, needle, opts)
	}
	return e.substring(store, needle, opts)
}

// wholeWord is a single index lookup; cost is proportional to the number of
// occurrences of the word.
func (e *Engine) wholeWord(store *index.Store, needle string, opts Options) []Result {
	key := tokenizer.TrimPunct(needle)
	postings := store.Occurrences(key, opts.CaseSensitive)
	results := make([]Result, 0, min(len(postings), opts.MaxResults))

	lastPage := -1
	var text string
	var runes []rune
	for _, pos := range postings {
		if len(results) >= opts.MaxResults {
			break
		}
		if pos.PageIndex != lastPage {
			t, ok := store.PageText(pos.PageIndex)
			if !ok {
				continue
			}
			lastPage, text, runes = pos.PageIndex, t, []rune(t)
		}
		results = append(results, Result{
			PageIndex: pos.PageIndex,
			Text:      text,
			Range:     pos.Range,
			Context:   contextWindow(runes, pos.Range, e.radius),
		})
	}
	return results
}

// substring scans every stored page; the inverted index cannot serve
// matches that cross token boundaries.
func (e *Engine) substring(store *index.Store, needle string, opts Options) []Result {
	results := make([]Result, 0)
	for _, page := range store.Pages() {
		text, _ := store.PageText(page)
		ranges := findAll(text, needle, opts.CaseSensitive)
		if len(ranges) == 0 {
			continue
		}
		runes := []rune(text)
		for _, r := range ranges {
			if len(results) >= opts.MaxResults {
				return results
			}
			results = append(results, Result{
				PageIndex: page,
				Text:      text,
				Range:     r,
				Context:   contextWindow(runes, r, e.radius),
			})
		}
	}
	return results
}

func (e *Engine) observe(opts Options, resultType string, n int, elapsed time.Duration) {
	if e.metrics == nil {
		return
	}
	e.metrics.SearchQueriesTotal.WithLabelValues(opts.Mode(), resultType).Inc()
	e.metrics.SearchLatency.WithLabelValues(opts.Mode()).Observe(elapsed.Seconds())
	e.metrics.SearchResultsCount.Observe(float64(n))
}
