package events

import (
	"context"
	"sort"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/Document-Reader-Search/pkg/kafka"
)

// Summary folds a stream of events into counters for `docreader events
// -summary`.
type Summary struct {
	mu             sync.Mutex
	byType         map[EventType]int64
	documents      map[string]bool
	latencies      []int64
	queries        map[string]int64
	zeroResult     map[string]int64
	pressureLevels []string
	undecodable    int64
}

type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

type SummaryStats struct {
	Events            map[EventType]int64 `json:"events"`
	Documents         int                 `json:"documents"`
	Searches          int64               `json:"searches"`
	P50LatencyMs      int64               `json:"p50_latency_ms"`
	P95LatencyMs      int64               `json:"p95_latency_ms"`
	TopQueries        []QueryCount        `json:"top_queries"`
	ZeroResultQueries []QueryCount        `json:"zero_result_queries"`
	PressureLevels    []string            `json:"pressure_levels,omitempty"`
	Undecodable       int64               `json:"undecodable,omitempty"`
}

func NewSummary() *Summary {
	return &Summary{
		byType:     make(map[EventType]int64),
		documents:  make(map[string]bool),
		queries:    make(map[string]int64),
		zeroResult: make(map[string]int64),
	}
}

func (s *Summary) Record(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byType[e.Type]++
	if e.DocumentKey != "" {
		s.documents[e.DocumentKey] = true
	}
	switch e.Type {
	case EventSearch:
		s.latencies = append(s.latencies, e.LatencyMs)
		s.queries[e.Query]++
		if e.Results == 0 {
			s.zeroResult[e.Query]++
		}
	case EventPressureChanged:
		s.pressureLevels = append(s.pressureLevels, e.Level)
	}
}

// Handler decodes each message as an Event, records it and passes it on
// to next when next is non-nil. Undecodable messages are counted and
// skipped.
func (s *Summary) Handler(next func(Event)) kafka.MessageHandler {
	return func(_ context.Context, _ []byte, value []byte) error {
		event, err := kafka.DecodeJSON[Event](value)
		if err != nil || event.Type == "" {
			s.mu.Lock()
			s.undecodable++
			s.mu.Unlock()
			return nil
		}
		s.Record(event)
		if next != nil {
			next(event)
		}
		return nil
	}
}

func (s *Summary) Stats() SummaryStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := SummaryStats{
		Events:            make(map[EventType]int64, len(s.byType)),
		Documents:         len(s.documents),
		Searches:          s.byType[EventSearch],
		TopQueries:        topN(s.queries, 10),
		ZeroResultQueries: topN(s.zeroResult, 10),
		PressureLevels:    append([]string(nil), s.pressureLevels...),
		Undecodable:       s.undecodable,
	}
	for t, n := range s.byType {
		stats.Events[t] = n
	}
	if len(s.latencies) > 0 {
		sorted := append([]int64(nil), s.latencies...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
	}
	return stats
}

func percentile(sorted []int64, pct int) int64 {
	idx := pct * len(sorted) / 100
	return sorted[min(idx, len(sorted)-1)]
}

// topN orders by count, then query, so ties print stably.
func topN(counts map[string]int64, n int) []QueryCount {
	result := make([]QueryCount, 0, len(counts))
	for query, count := range counts {
		result = append(result, QueryCount{Query: query, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Query < result[j].Query
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
