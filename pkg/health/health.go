// Package health runs dependency probes for the reader API. The catalog is
// required; the result cache and event broker are optional, so their
// failures only degrade the report.
package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"
)

type Status string

const (
	StatusUp       Status = "up"
	StatusDown     Status = "down"
	StatusDegraded Status = "degraded"
)

// Probe returns nil when the dependency answers.
type Probe func(ctx context.Context) error

type ComponentHealth struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

type Report struct {
	Status     Status                     `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
	Timestamp  string                     `json:"timestamp"`
}

type check struct {
	probe    Probe
	required bool
}

type Checker struct {
	mu      sync.RWMutex
	checks  map[string]check
	timeout time.Duration
	logger  *slog.Logger
}

// NewChecker returns a Checker that gives every probe at most timeout.
func NewChecker(timeout time.Duration) *Checker {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Checker{
		checks:  make(map[string]check),
		timeout: timeout,
		logger:  slog.Default().With("component", "health"),
	}
}

// Require registers a probe whose failure marks the whole report down.
func (c *Checker) Require(name string, probe Probe) {
	c.register(name, probe, true)
}

// Optional registers a probe whose failure only degrades the report.
func (c *Checker) Optional(name string, probe Probe) {
	c.register(name, probe, false)
}

func (c *Checker) register(name string, probe Probe, required bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check{probe: probe, required: required}
}

// Run probes every dependency concurrently.
func (c *Checker) Run(ctx context.Context) Report {
	c.mu.RLock()
	checks := make(map[string]check, len(c.checks))
	for name, ch := range c.checks {
		checks[name] = ch
	}
	c.mu.RUnlock()

	report := Report{
		Status:     StatusUp,
		Components: make(map[string]ComponentHealth, len(checks)),
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for name, ch := range checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result := c.probe(ctx, name, ch)
			mu.Lock()
			report.Components[name] = result
			mu.Unlock()
		}()
	}
	wg.Wait()

	names := make([]string, 0, len(report.Components))
	for name := range report.Components {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		switch report.Components[name].Status {
		case StatusDown:
			report.Status = StatusDown
		case StatusDegraded:
			if report.Status == StatusUp {
				report.Status = StatusDegraded
			}
		}
	}
	return report
}

func (c *Checker) probe(ctx context.Context, name string, ch check) ComponentHealth {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	start := time.Now()
	err := ch.probe(ctx)
	result := ComponentHealth{
		Status:  StatusUp,
		Latency: time.Since(start).Round(time.Millisecond).String(),
	}
	if err != nil {
		result.Status = StatusDegraded
		if ch.required {
			result.Status = StatusDown
		}
		result.Message = err.Error()
		c.logger.Warn("health probe failed", "check", name, "required", ch.required, "error", err)
	}
	return result
}

// LiveHandler always answers 200 while the process serves requests.
func (c *Checker) LiveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "alive"})
	}
}

// ReadyHandler answers 200 unless a required dependency is down.
func (c *Checker) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := c.Run(r.Context())
		w.Header().Set("Content-Type", "application/json")
		if report.Status == StatusDown {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(report)
	}
}
