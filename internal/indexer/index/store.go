// Package index holds the per-document search index: extracted page text and
// an inverted map from normalized word to occurrence records.
package index

import (
	"sort"
	"time"
)

// FormatVersion tags every store. A persisted store carrying any other tag is
// treated as absent and rebuilt.
const FormatVersion = "2"

// Range is a span of code points within a page's text.
type Range struct {
	Location int `json:"location"`
	Length   int `json:"length"`
}

// End returns the first code point past the range.
func (r Range) End() int { return r.Location + r.Length }

// PageWordPosition records one occurrence of a word.
type PageWordPosition struct {
	PageIndex int   `json:"pageIndex"`
	WordIndex int   `json:"wordIndex"`
	Range     Range `json:"range"`
}

// PostingList is the ordered occurrence list of a single word.
type PostingList []PageWordPosition

// Store is the immutable index of one document snapshot. Pages whose text
// could not be extracted are absent from PageTexts.
type Store struct {
	DocumentKey   string                 `json:"documentKey"`
	SourcePath    string                 `json:"sourcePath,omitempty"`
	PageTexts     map[int]string         `json:"pageTexts"`
	WordPositions map[string]PostingList `json:"wordPositions"`
	// ExactPositions is keyed by the punctuation-trimmed token with its
	// original casing and serves case-sensitive whole-word queries.
	ExactPositions map[string]PostingList `json:"exactPositions"`
	PageCount      int                    `json:"pageCount"`
	CreatedAt      time.Time              `json:"createdAt"`
	FormatVersion  string                 `json:"formatVersion"`
}

// Current reports whether the store was written with this build's format.
func (s *Store) Current() bool {
	return s != nil && s.FormatVersion == FormatVersion
}

// IsStale reports whether the source changed after the store was built.
// A zero modTime means the source cannot tell, and the store is kept.
func (s *Store) IsStale(sourceModTime time.Time) bool {
	if sourceModTime.IsZero() {
		return false
	}
	return sourceModTime.After(s.CreatedAt)
}

// PageText returns the stored text of a page.
func (s *Store) PageText(pageIndex int) (string, bool) {
	text, ok := s.PageTexts[pageIndex]
	return text, ok
}

// Occurrences returns the posting list for an already-normalized key. The
// returned slice is shared and must not be modified.
func (s *Store) Occurrences(key string, caseSensitive bool) PostingList {
	if caseSensitive {
		return s.ExactPositions[key]
	}
	return s.WordPositions[key]
}

// Pages returns the indexed page numbers in ascending order.
func (s *Store) Pages() []int {
	pages := make([]int, 0, len(s.PageTexts))
	for p := range s.PageTexts {
		pages = append(pages, p)
	}
	sort.Ints(pages)
	return pages
}

// Terms returns the number of distinct normalized words.
func (s *Store) Terms() int {
	return len(s.WordPositions)
}

// Size estimates the store's heap footprint in bytes.
func (s *Store) Size() int64 {
	var size int64
	for _, text := range s.PageTexts {
		size += int64(len(text)) + 16
	}
	for term, postings := range s.WordPositions {
		size += int64(len(term)) + int64(len(postings))*32 + 48
	}
	for term, postings := range s.ExactPositions {
		size += int64(len(term)) + int64(len(postings))*32 + 48
	}
	return size
}
