// Package resilience wraps calls to optional backends (the Redis result
// cache and the Kafka event broker) so their outages stay cheap: a circuit
// breaker, retry with jittered backoff and a per-call deadline.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

var ErrCircuitOpen = errors.New("circuit open")

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig zero values fall back to 5 failures, 30s open and a single
// half-open probe.
type BreakerConfig struct {
	FailureThreshold int
	OpenFor          time.Duration
	HalfOpenProbes   int
	// IsFailure decides which errors count against the backend. By default
	// everything except the caller's own cancellation does.
	IsFailure func(error) bool
}

// Breaker opens after FailureThreshold consecutive failures and rejects
// calls for OpenFor, then lets HalfOpenProbes calls through to decide
// whether to close again.
type Breaker struct {
	name   string
	cfg    BreakerConfig
	now    func() time.Time
	logger *slog.Logger

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probes   int
}

func NewBreaker(name string, cfg BreakerConfig) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.OpenFor <= 0 {
		cfg.OpenFor = 30 * time.Second
	}
	if cfg.HalfOpenProbes <= 0 {
		cfg.HalfOpenProbes = 1
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = func(err error) bool { return !errors.Is(err, context.Canceled) }
	}
	return &Breaker{
		name:   name,
		cfg:    cfg,
		now:    time.Now,
		logger: slog.Default().With("component", "circuit-breaker", "name", name),
	}
}

// Do runs fn unless the circuit is open.
func (b *Breaker) Do(fn func() error) error {
	if err := b.admit(); err != nil {
		return err
	}
	err := fn()
	b.record(err)
	return err
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset closes the circuit and forgets past failures.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transition(StateClosed)
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case StateOpen:
		wait := b.cfg.OpenFor - b.now().Sub(b.openedAt)
		if wait > 0 {
			return fmt.Errorf("%w: %s, retry in %v", ErrCircuitOpen, b.name, wait.Round(time.Millisecond))
		}
		b.transition(StateHalfOpen)
		fallthrough
	case StateHalfOpen:
		if b.probes >= b.cfg.HalfOpenProbes {
			return fmt.Errorf("%w: %s, probe in flight", ErrCircuitOpen, b.name)
		}
		b.probes++
	}
	return nil
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil || !b.cfg.IsFailure(err) {
		if b.state == StateHalfOpen {
			b.transition(StateClosed)
		}
		b.failures = 0
		return
	}
	b.failures++
	switch {
	case b.state == StateHalfOpen:
		b.transition(StateOpen)
	case b.state == StateClosed && b.failures >= b.cfg.FailureThreshold:
		b.transition(StateOpen)
	}
}

// transition must be called with mu held.
func (b *Breaker) transition(to State) {
	from := b.state
	b.state = to
	b.probes = 0
	switch to {
	case StateOpen:
		b.openedAt = b.now()
		b.logger.Warn("circuit opened", "from", from, "failures", b.failures, "open_for", b.cfg.OpenFor)
	case StateClosed:
		b.failures = 0
		if from != StateClosed {
			b.logger.Info("circuit closed", "from", from)
		}
	case StateHalfOpen:
		b.logger.Info("circuit half-open, probing")
	}
}
