package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Document-Reader-Search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Document-Reader-Search/pkg/resilience"
)

// Publisher is satisfied by *kafka.Producer.
type Publisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// Sink accepts events without blocking. A nil *Collector is a valid Sink
// that drops everything.
type Sink interface {
	Track(event Event)
}

// Collector buffers events and publishes them from a single goroutine.
type Collector struct {
	publisher Publisher
	eventCh   chan Event
	logger    *slog.Logger
	done      chan struct{}
	mu        sync.RWMutex
	closed    bool
	retry     resilience.Backoff
}

// NewCollector creates a Collector with room for bufferSize pending events.
func NewCollector(publisher Publisher, bufferSize int) *Collector {
	if bufferSize <= 0 {
		bufferSize = 1024
	}
	return &Collector{
		publisher: publisher,
		eventCh:   make(chan Event, bufferSize),
		logger:    slog.Default().With("component", "event-collector"),
		done:      make(chan struct{}),
		retry: resilience.Backoff{
			Attempts: 3,
			Initial:  50 * time.Millisecond,
			Max:      time.Second,
		},
	}
}

// Start launches the publishing loop. It drains what is buffered when ctx
// is cancelled.
func (c *Collector) Start(ctx context.Context) {
	go func() {
		defer close(c.done)
		for {
			select {
			case event, ok := <-c.eventCh:
				if !ok {
					return
				}
				c.publish(ctx, event)
			case <-ctx.Done():
				c.drainRemaining()
				return
			}
		}
	}()
	c.logger.Info("event collector started", "buffer_size", cap(c.eventCh))
}

// Track enqueues an event, dropping it when the buffer is full.
func (c *Collector) Track(event Event) {
	if c == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.eventCh <- event:
	default:
		c.logger.Warn("event dropped (buffer full)", "type", event.Type)
	}
}

// Close stops accepting events and waits for the loop to finish. Start must
// have been called. Events tracked after Close are ignored.
func (c *Collector) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.eventCh)
	c.mu.Unlock()
	<-c.done
}

func (c *Collector) publish(ctx context.Context, event Event) {
	err := resilience.Retry(ctx, "publish-event", c.retry, func(ctx context.Context) error {
		return c.publisher.Publish(ctx, kafka.Event{Key: event.DocumentKey, Value: event})
	})
	if err != nil {
		c.logger.Error("failed to publish event", "type", event.Type, "error", err)
	}
}

func (c *Collector) drainRemaining() {
	for {
		select {
		case event, ok := <-c.eventCh:
			if !ok {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			if err := c.publisher.Publish(ctx, kafka.Event{Key: event.DocumentKey, Value: event}); err != nil {
				c.logger.Error("failed to publish remaining event", "error", err)
			}
			cancel()
		default:
			return
		}
	}
}
