package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Document-Reader-Search/internal/api"
	"github.com/Adithya-Monish-Kumar-K/Document-Reader-Search/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/Document-Reader-Search/internal/events"
	"github.com/Adithya-Monish-Kumar-K/Document-Reader-Search/internal/search"
	"github.com/Adithya-Monish-Kumar-K/Document-Reader-Search/internal/workspace"
	"github.com/Adithya-Monish-Kumar-K/Document-Reader-Search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Document-Reader-Search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Document-Reader-Search/pkg/metrics"
	"github.com/dustin/go-humanize"
	"github.com/sahilm/fuzzy"
)

func runIndex(ctx context.Context, e *env, args []string) error {
	if len(args) == 0 {
		return usageError("at least one FILE is required")
	}
	for _, path := range args {
		info, elapsed, err := openAndWait(ctx, e, path)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		fmt.Fprintf(e.stdout, "%s\t%s\t%s pages\t%s terms\t%s\n",
			info.Key[:min(12, len(info.Key))],
			info.Path,
			humanize.Comma(int64(info.Pages)),
			humanize.Comma(int64(info.Terms)),
			elapsed.Round(time.Millisecond),
		)
	}
	return nil
}

func runSearch(ctx context.Context, e *env, args []string) error {
	if len(args) != 2 {
		return usageError("expected FILE and QUERY")
	}
	info, _, err := openAndWait(ctx, e, args[0])
	if err != nil {
		return err
	}
	opts := search.Options{
		WholeWords:    e.flags.wholeWords,
		CaseSensitive: e.flags.caseSensitive,
		MaxResults:    e.flags.maxResults,
	}
	results, err := e.ws.Search(ctx, info.Key, args[1], opts)
	if err != nil {
		return err
	}
	printResults(e.stdout, results)
	fmt.Fprintf(e.stderr, "%s in %s\n", plural(len(results), "match", "matches"), filepath.Base(info.Path))
	return nil
}

func runList(ctx context.Context, e *env, args []string) error {
	if len(args) > 1 {
		return usageError("at most one PATTERN")
	}
	cat := e.ws.Catalog()
	if cat == nil {
		return errors.New("the index catalog is disabled or unavailable, see catalog.* in the config")
	}
	entries, err := cat.List(ctx)
	if err != nil {
		return err
	}
	if len(args) == 1 {
		entries = filterEntries(entries, args[0])
	}
	printEntries(e.stdout, entries, time.Now())
	return nil
}

func runClear(ctx context.Context, e *env, args []string) error {
	if len(args) != 0 {
		return usageError("clear takes no arguments")
	}
	removed, err := e.ws.ClearIndices(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "removed %s\n", plural(removed, "index file", "index files"))
	return nil
}

func runServe(ctx context.Context, e *env, args []string) error {
	cfg := e.cfg
	if e.flags.port > 0 {
		cfg.Server.Port = e.flags.port
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	e.ws.Start()
	for _, path := range args {
		if _, err := e.ws.Open(path, nil); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}

	checker := health.NewChecker(2 * time.Second)
	e.ws.RegisterHealth(checker)
	m := processMetrics()

	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port, map[string]http.Handler{
			"/health/live":  checker.LiveHandler(),
			"/health/ready": checker.ReadyHandler(),
		})
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdownMetrics(shutdownCtx)
		}()
	}

	server := &http.Server{
		Addr:         fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port),
		Handler:      api.NewRouter(api.New(e.ws), checker, m, cfg.Server.WriteTimeout),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("reader api listening", "addr", server.Addr, "documents", len(args))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	slog.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	slog.Info("reader api stopped")
	return nil
}

// runEvents tails the lifecycle event topic until interrupted.
func runEvents(ctx context.Context, e *env, args []string) error {
	if len(args) != 0 {
		return usageError("events takes no arguments")
	}
	if len(e.cfg.Kafka.Brokers) == 0 {
		return errors.New("no kafka brokers configured, see kafka.brokers in the config")
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary := events.NewSummary()
	var show func(events.Event)
	if !e.flags.summary {
		show = func(ev events.Event) { printEvent(e.stdout, ev) }
	}
	consumer := kafka.NewConsumer(e.cfg.Kafka, e.flags.fromStart, summary.Handler(show))
	if err := consumer.Run(ctx); err != nil {
		return err
	}
	if e.flags.summary {
		enc := json.NewEncoder(e.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summary.Stats())
	}
	return nil
}

func printEvent(w io.Writer, ev events.Event) {
	line := fmt.Sprintf("%s  %-17s", ev.Timestamp.Local().Format(time.TimeOnly), ev.Type)
	if ev.DocumentKey != "" {
		line += "  doc=" + ev.DocumentKey[:min(12, len(ev.DocumentKey))]
	}
	switch ev.Type {
	case events.EventSearch:
		line += fmt.Sprintf("  q=%q results=%d %dms", ev.Query, ev.Results, ev.LatencyMs)
	case events.EventIndexBuilt, events.EventIndexLoaded:
		line += fmt.Sprintf("  pages=%s terms=%s", humanize.Comma(int64(ev.PageCount)), humanize.Comma(int64(ev.TermCount)))
	case events.EventPressureChanged:
		line += "  level=" + ev.Level
	}
	fmt.Fprintln(w, line)
}

// openAndWait opens path and blocks until its index is ready, drawing a
// progress line on a terminal.
func openAndWait(ctx context.Context, e *env, path string) (workspace.DocumentInfo, time.Duration, error) {
	start := time.Now()
	name := filepath.Base(path)
	var progress func(float64)
	if e.tty {
		progress = func(f float64) {
			fmt.Fprintf(e.stderr, "\rindexing %s %3.0f%%", name, f*100)
		}
	}
	info, err := e.ws.Open(path, progress)
	if err != nil {
		return info, 0, err
	}
	err = e.ws.WaitIndexed(ctx, info.Key)
	if e.tty {
		fmt.Fprint(e.stderr, "\r\033[K")
	}
	if err != nil {
		return info, 0, err
	}
	for _, d := range e.ws.Documents() {
		if d.Key == info.Key {
			info = d
		}
	}
	return info, time.Since(start), nil
}

func printResults(w io.Writer, results []search.Result) {
	for _, r := range results {
		fmt.Fprintf(w, "p.%d:%d\t%s\n", r.PageIndex+1, r.Range.Location, r.Context)
	}
}

// filterEntries keeps the entries whose source path fuzzily matches
// pattern, best match first.
func filterEntries(entries []catalog.Entry, pattern string) []catalog.Entry {
	paths := make([]string, len(entries))
	for i, entry := range entries {
		paths[i] = entry.SourcePath
	}
	matches := fuzzy.Find(pattern, paths)
	out := make([]catalog.Entry, 0, len(matches))
	for _, m := range matches {
		out = append(out, entries[m.Index])
	}
	return out
}

func printEntries(w io.Writer, entries []catalog.Entry, now time.Time) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tSOURCE\tPAGES\tTERMS\tSIZE\tINDEXED")
	for _, entry := range entries {
		size := "-"
		if st, err := os.Stat(entry.IndexFile); err == nil {
			size = humanize.Bytes(uint64(st.Size()))
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			entry.DocumentKey[:min(12, len(entry.DocumentKey))],
			entry.SourcePath,
			humanize.Comma(int64(entry.PageCount)),
			humanize.Comma(int64(entry.TermCount)),
			size,
			humanize.RelTime(entry.CreatedAt, now, "ago", "from now"),
		)
	}
	_ = tw.Flush()
}

func plural(n int, one, many string) string {
	if n == 1 {
		return "1 " + one
	}
	return humanize.Comma(int64(n)) + " " + many
}
