// Package events collects document lifecycle events and ships them to a
// publisher in the background.
package events

import "time"

type EventType string

const (
	EventIndexBuilt       EventType = "index_built"
	EventIndexLoaded      EventType = "index_loaded"
	EventIndexDiscarded   EventType = "index_discarded"
	EventIndexInvalidated EventType = "index_invalidated"
	EventSearch           EventType = "search"
	EventPressureChanged  EventType = "pressure_changed"
)

// Event is one lifecycle record. Fields irrelevant to a type stay zero.
type Event struct {
	Type        EventType `json:"type"`
	DocumentKey string    `json:"document_key,omitempty"`
	PageCount   int       `json:"page_count,omitempty"`
	TermCount   int       `json:"term_count,omitempty"`
	Query       string    `json:"query,omitempty"`
	Results     int       `json:"results,omitempty"`
	Level       string    `json:"level,omitempty"`
	LatencyMs   int64     `json:"latency_ms,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}
