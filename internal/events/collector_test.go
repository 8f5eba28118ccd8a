package events

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/Document-Reader-Search/pkg/kafka"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	mu       sync.Mutex
	events   []kafka.Event
	failures int
}

func (f *fakePublisher) Publish(_ context.Context, event kafka.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return errors.New("broker unavailable")
	}
	f.events = append(f.events, event)
	return nil
}

func (f *fakePublisher) published() []kafka.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]kafka.Event(nil), f.events...)
}

func TestCollectorPublishesInOrder(t *testing.T) {
	pub := &fakePublisher{}
	c := NewCollector(pub, 16)
	c.Start(context.Background())

	c.Track(Event{Type: EventIndexBuilt, DocumentKey: "a", PageCount: 3})
	c.Track(Event{Type: EventSearch, DocumentKey: "a", Query: "fox"})
	c.Close()

	got := pub.published()
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].Key)
	first := got[0].Value.(Event)
	assert.Equal(t, EventIndexBuilt, first.Type)
	assert.False(t, first.Timestamp.IsZero())
	assert.Equal(t, EventSearch, got[1].Value.(Event).Type)
}

func TestCollectorRetriesTransientFailures(t *testing.T) {
	pub := &fakePublisher{failures: 1}
	c := NewCollector(pub, 4)
	c.Start(context.Background())

	c.Track(Event{Type: EventPressureChanged, Level: "warning"})
	c.Close()

	assert.Len(t, pub.published(), 1)
}

func TestCollectorDropsWhenFull(t *testing.T) {
	pub := &fakePublisher{}
	c := NewCollector(pub, 1)

	c.Track(Event{Type: EventSearch})
	c.Track(Event{Type: EventSearch})
	assert.Len(t, c.eventCh, 1)
}

func TestNilCollectorTrack(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() { c.Track(Event{Type: EventSearch}) })
}

func TestTrackAfterCloseIsIgnored(t *testing.T) {
	pub := &fakePublisher{}
	c := NewCollector(pub, 4)
	c.Start(context.Background())
	c.Close()
	c.Close()

	assert.NotPanics(t, func() { c.Track(Event{Type: EventSearch}) })
	assert.Empty(t, pub.published())
}
