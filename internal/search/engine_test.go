package search

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Document-Reader-Search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Document-Reader-Search/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapProvider map[string]*index.Store

func (m mapProvider) Store(key string) (*index.Store, bool) {
	s, ok := m[key]
	return s, ok
}

func buildStore(pages ...string) *index.Store {
	b := index.NewBuilder("doc", "", len(pages))
	for i, text := range pages {
		b.Merge(index.AnalyzePage(i, text))
	}
	return b.Build(time.Now())
}

func newTestEngine(pages ...string) *Engine {
	return NewEngine(mapProvider{"doc": buildStore(pages...)}, config.SearchConfig{})
}

func TestSearchWholeWordExample(t *testing.T) {
	e := newTestEngine("The quick brown fox", "the Lazy Dog sleeps")

	results := e.Search(context.Background(), "doc", "the", Options{WholeWords: true})
	require.Len(t, results, 2)
	assert.Equal(t, 0, results[0].PageIndex)
	assert.Equal(t, 1, results[1].PageIndex)
	assert.Equal(t, "The quick brown fox", results[0].Context)
	assert.Equal(t, "the Lazy Dog sleeps", results[1].Context)
	assert.Equal(t, index.Range{Location: 0, Length: 3}, results[0].Range)
	assert.Equal(t, "The quick brown fox", results[0].Text)
}

func TestSearchSubstringExample(t *testing.T) {
	e := newTestEngine("The quick brown fox", "the Lazy Dog sleeps")

	results := e.Search(context.Background(), "doc", "o", Options{})
	require.Len(t, results, 3)
	assert.Equal(t, []int{0, 0, 1}, []int{results[0].PageIndex, results[1].PageIndex, results[2].PageIndex})
	assert.Equal(t, 12, results[0].Range.Location)
	assert.Equal(t, 17, results[1].Range.Location)
	assert.Equal(t, 10, results[2].Range.Location)
}

func TestSearchSubstringCompleteness(t *testing.T) {
	page := "aaaa banana bandana aa"
	e := newTestEngine(page)

	results := e.Search(context.Background(), "doc", "aa", Options{})
	require.Len(t, results, strings.Count(page, "aa"))
	for i := 1; i < len(results); i++ {
		assert.Greater(t, results[i].Range.Location, results[i-1].Range.Location)
	}

	results = e.Search(context.Background(), "doc", "ana", Options{})
	assert.Len(t, results, 2, "matches must not overlap")
}

func TestSearchSubstringCrossesTokens(t *testing.T) {
	e := newTestEngine("quick brown", "nothing here")
	results := e.Search(context.Background(), "doc", "k b", Options{})
	require.Len(t, results, 1)
	assert.Equal(t, index.Range{Location: 4, Length: 3}, results[0].Range)
}

func TestSearchUnicodeOffsets(t *testing.T) {
	e := newTestEngine("Ünïcödé straße STRASSE Straße")

	results := e.Search(context.Background(), "doc", "straße", Options{})
	require.Len(t, results, 2)
	assert.Equal(t, 8, results[0].Range.Location)
	assert.Equal(t, 23, results[1].Range.Location)

	results = e.Search(context.Background(), "doc", "ÜNÏ", Options{})
	require.Len(t, results, 1)
	assert.Equal(t, 0, results[0].Range.Location)
}

func TestSearchCaseSensitive(t *testing.T) {
	e := newTestEngine("Go go GO gopher", "Going to go")

	whole := e.Search(context.Background(), "doc", "go", Options{WholeWords: true})
	assert.Len(t, whole, 4)

	whole = e.Search(context.Background(), "doc", "Go", Options{WholeWords: true, CaseSensitive: true})
	require.Len(t, whole, 1)
	assert.Equal(t, 0, whole[0].PageIndex)

	sub := e.Search(context.Background(), "doc", "Go", Options{CaseSensitive: true})
	require.Len(t, sub, 2)
	assert.Equal(t, []int{0, 1}, []int{sub[0].PageIndex, sub[1].PageIndex})
}

func TestSearchMaxResults(t *testing.T) {
	e := newTestEngine(strings.Repeat("word ", 50), strings.Repeat("word ", 50))

	assert.Len(t, e.Search(context.Background(), "doc", "word", Options{WholeWords: true, MaxResults: 7}), 7)
	assert.Len(t, e.Search(context.Background(), "doc", "word", Options{MaxResults: 60}), 60)
	assert.Len(t, e.Search(context.Background(), "doc", "word", Options{}), 100)
}

func TestSearchEmptyQueryAndMissingIndex(t *testing.T) {
	e := newTestEngine("some text")

	assert.Empty(t, e.Search(context.Background(), "doc", "", Options{}))
	assert.Empty(t, e.Search(context.Background(), "doc", "   ", Options{WholeWords: true}))

	results := e.Search(context.Background(), "unknown", "text", Options{})
	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestSearchSkipsPagesMissingFromStore(t *testing.T) {
	store := buildStore("alpha beta", "beta gamma")
	delete(store.PageTexts, 1)
	e := NewEngine(mapProvider{"doc": store}, config.SearchConfig{})

	results := e.Search(context.Background(), "doc", "beta", Options{WholeWords: true})
	require.Len(t, results, 1)
	assert.Equal(t, 0, results[0].PageIndex)
}

func TestSearchContextRadius(t *testing.T) {
	page := strings.Repeat("x", 100) + " needle " + strings.Repeat("y", 100)
	e := NewEngine(mapProvider{"doc": buildStore(page)}, config.SearchConfig{ContextRadius: 5})

	results := e.Search(context.Background(), "doc", "needle", Options{})
	require.Len(t, results, 1)
	assert.Equal(t, "xxxx needle yyyy", results[0].Context)
}

type stubCache struct {
	calls int
	fail  bool
}

func (s *stubCache) GetOrCompute(_ context.Context, _, _ string, _ Options, compute func() ([]Result, error)) ([]Result, bool, error) {
	s.calls++
	if s.fail {
		return nil, false, assert.AnError
	}
	r, err := compute()
	return r, false, err
}

func TestSearchCacheFailureFallsBack(t *testing.T) {
	cache := &stubCache{fail: true}
	e := NewEngine(mapProvider{"doc": buildStore("cached words")}, config.SearchConfig{}, WithCache(cache))

	results := e.Search(context.Background(), "doc", "words", Options{})
	assert.Len(t, results, 1)
	assert.Equal(t, 1, cache.calls)

	e.Search(context.Background(), "missing", "words", Options{})
	assert.Equal(t, 1, cache.calls, "unindexed documents bypass the cache")
}

func BenchmarkSearchSubstring(b *testing.B) {
	pages := make([]string, 500)
	for i := range pages {
		pages[i] = strings.Repeat("the quick brown fox jumps over the lazy dog ", 40)
	}
	e := NewEngine(mapProvider{"doc": buildStore(pages...)}, config.SearchConfig{})
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		e.Search(context.Background(), "doc", "lazy", Options{})
	}
}

func BenchmarkSearchWholeWord(b *testing.B) {
	pages := make([]string, 500)
	for i := range pages {
		pages[i] = strings.Repeat("the quick brown fox jumps over the lazy dog ", 40)
	}
	e := NewEngine(mapProvider{"doc": buildStore(pages...)}, config.SearchConfig{})
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		e.Search(context.Background(), "doc", "lazy", Options{WholeWords: true})
	}
}
