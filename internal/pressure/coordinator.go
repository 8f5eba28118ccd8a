// Package pressure samples process memory and sheds page-cache memory when
// usage crosses the warning or critical threshold. It never touches search
// indices and never cancels an index build.
package pressure

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Document-Reader-Search/internal/events"
	"github.com/Adithya-Monish-Kumar-K/Document-Reader-Search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Document-Reader-Search/pkg/metrics"
	"golang.org/x/time/rate"
)

type Level int

const (
	Normal Level = iota
	Warning
	Critical
)

func (l Level) String() string {
	switch l {
	case Normal:
		return "normal"
	case Warning:
		return "warning"
	case Critical:
		return "critical"
	default:
		return "unknown"
	}
}

// Thresholds are in bytes. Hysteresis is how far below a threshold a
// sample must fall before the level steps down past it.
type Thresholds struct {
	Warning    uint64
	Critical   uint64
	Hysteresis uint64
}

// ThresholdsFromConfig converts the megabyte settings to bytes.
func ThresholdsFromConfig(cfg config.MemoryConfig) Thresholds {
	return Thresholds{
		Warning:    cfg.WarningBytes(),
		Critical:   cfg.CriticalBytes(),
		Hysteresis: cfg.HysteresisBytes(),
	}
}

// Classify maps a sample to a level, ignoring hysteresis. A zero threshold
// disables its level.
func (t Thresholds) Classify(sample uint64) Level {
	switch {
	case t.Critical > 0 && sample >= t.Critical:
		return Critical
	case t.Warning > 0 && sample >= t.Warning:
		return Warning
	default:
		return Normal
	}
}

// Next returns the level after observing sample at current. Escalation is
// immediate; de-escalation stops at the highest level the sample is still
// within Hysteresis of.
func (t Thresholds) Next(current Level, sample uint64) Level {
	target := t.Classify(sample)
	if target >= current || t.Hysteresis == 0 {
		return target
	}
	return min(t.Classify(sample+t.Hysteresis), current)
}

// Evictor is the memory-holding side the coordinator commands.
// *pagecache.Cache satisfies it.
type Evictor interface {
	OptimizeForMemoryPressure()
	ClearCache()
	ClearTransientCaches()
	DropDecodedImages()
}

// Listener is told about every level change, after the evictors ran.
type Listener func(from, to Level, sample uint64)

type Option func(*Coordinator)

func WithSampler(s Sampler) Option {
	return func(c *Coordinator) { c.sampler = s }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

func WithEvents(sink events.Sink) Option {
	return func(c *Coordinator) { c.events = sink }
}

// WithReclaim replaces the forced reclaim pass run on critical pressure.
func WithReclaim(fn func()) Option {
	return func(c *Coordinator) { c.reclaim = fn }
}

type Coordinator struct {
	thresholds Thresholds
	interval   time.Duration
	sampler    Sampler
	reclaim    func()
	limiter    *rate.Limiter
	metrics    *metrics.Metrics
	events     events.Sink
	logger     *slog.Logger

	mu         sync.Mutex
	level      Level
	lastSample uint64
	evictors   []Evictor
	listeners  []Listener
	done       chan struct{}
}

func NewCoordinator(cfg config.MemoryConfig, opts ...Option) *Coordinator {
	interval := cfg.SampleInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	reclaimEvery := cfg.ReclaimInterval
	if reclaimEvery <= 0 {
		reclaimEvery = 10 * time.Second
	}
	c := &Coordinator{
		thresholds: ThresholdsFromConfig(cfg),
		interval:   interval,
		reclaim:    debug.FreeOSMemory,
		limiter:    rate.NewLimiter(rate.Every(reclaimEvery), 1),
		logger:     slog.Default().With("component", "memory-pressure"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.sampler == nil {
		c.sampler = DefaultSampler()
	}
	return c
}

// Register adds an evictor commanded on every level change.
func (c *Coordinator) Register(e Evictor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.evictors = append(c.evictors, e)
}

// OnChange adds a listener for level changes.
func (c *Coordinator) OnChange(l Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, l)
}

// Level returns the current level and the sample that produced it.
func (c *Coordinator) Level() (Level, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.level, c.lastSample
}

// Start samples immediately and then every interval until ctx is done.
func (c *Coordinator) Start(ctx context.Context) {
	c.mu.Lock()
	if c.done != nil {
		c.mu.Unlock()
		return
	}
	c.done = make(chan struct{})
	done := c.done
	c.mu.Unlock()

	ticker := time.NewTicker(c.interval)
	go func() {
		defer close(done)
		defer ticker.Stop()
		c.SampleOnce()
		for {
			select {
			case <-ctx.Done():
				c.logger.Info("memory sampler stopping")
				return
			case <-ticker.C:
				c.SampleOnce()
			}
		}
	}()
	c.logger.Info("memory sampler started",
		"interval", c.interval,
		"warning_bytes", c.thresholds.Warning,
		"critical_bytes", c.thresholds.Critical,
	)
}

// Wait blocks until a started sampling loop has exited.
func (c *Coordinator) Wait() {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done != nil {
		<-done
	}
}

// SampleOnce takes one sample and applies it. A failed sample counts as
// normal pressure.
func (c *Coordinator) SampleOnce() Level {
	sample, err := c.sampler.Sample()
	if err != nil {
		c.logger.Warn("memory sample failed, assuming normal pressure", "error", err)
		return c.apply(0, func(Level) Level { return Normal })
	}
	return c.Observe(sample)
}

// Observe classifies sample against the current level and runs the
// actions for any transition.
func (c *Coordinator) Observe(sample uint64) Level {
	return c.apply(sample, func(prev Level) Level {
		return c.thresholds.Next(prev, sample)
	})
}

func (c *Coordinator) apply(sample uint64, decide func(prev Level) Level) Level {
	c.mu.Lock()
	prev := c.level
	next := decide(prev)
	c.level = next
	c.lastSample = sample
	if c.metrics != nil {
		c.metrics.MemoryResidentBytes.Set(float64(sample))
		c.metrics.MemoryPressureLevel.Set(float64(next))
	}
	if next == prev {
		c.mu.Unlock()
		return next
	}

	switch next {
	case Warning:
		for _, e := range c.evictors {
			e.OptimizeForMemoryPressure()
			e.ClearTransientCaches()
		}
	case Critical:
		for _, e := range c.evictors {
			e.ClearCache()
			e.ClearTransientCaches()
			e.DropDecodedImages()
		}
		if c.limiter.Allow() {
			c.reclaim()
		} else {
			c.logger.Debug("reclaim pass skipped, ran recently")
		}
	}
	listeners := append([]Listener(nil), c.listeners...)
	c.mu.Unlock()

	log := c.logger.Info
	if next > prev {
		log = c.logger.Warn
	}
	log("memory pressure changed", "from", prev.String(), "to", next.String(), "resident_bytes", sample)
	if c.metrics != nil {
		c.metrics.PressureEventsTotal.WithLabelValues(next.String()).Inc()
	}
	if c.events != nil {
		c.events.Track(events.Event{Type: events.EventPressureChanged, Level: next.String()})
	}
	for _, l := range listeners {
		l(prev, next, sample)
	}
	return next
}
