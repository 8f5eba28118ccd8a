package index

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyzePage(t *testing.T) {
	res := AnalyzePage(3, "The cat and the hat.")
	require.True(t, res.HasText)

	the := res.Words["the"]
	require.Len(t, the, 2)
	assert.Equal(t, PageWordPosition{PageIndex: 3, WordIndex: 0, Range: Range{Location: 0, Length: 3}}, the[0])
	assert.Equal(t, PageWordPosition{PageIndex: 3, WordIndex: 3, Range: Range{Location: 12, Length: 3}}, the[1])

	hat := res.Words["hat"]
	require.Len(t, hat, 1)
	assert.Equal(t, 4, hat[0].Range.Length, "range keeps the untrimmed token length")

	assert.Len(t, res.Exact["The"], 1)
	assert.Len(t, res.Exact["the"], 1)
}

func TestAnalyzePageEmpty(t *testing.T) {
	for _, text := range []string{"", "   \n\t "} {
		res := AnalyzePage(0, text)
		assert.False(t, res.HasText)
		assert.Nil(t, res.Words)
	}
}

func TestBuilderMergeIsOrderInsensitive(t *testing.T) {
	pages := map[int]string{
		0: "alpha beta alpha",
		1: "",
		2: "beta gamma",
		3: "alpha",
	}

	forward := NewBuilder("doc", "", len(pages))
	for i := 0; i < len(pages); i++ {
		forward.Merge(AnalyzePage(i, pages[i]))
	}
	backward := NewBuilder("doc", "", len(pages))
	for i := len(pages) - 1; i >= 0; i-- {
		backward.Merge(AnalyzePage(i, pages[i]))
	}

	now := time.Now()
	a := forward.Build(now)
	b := backward.Build(now)

	assert.Equal(t, a.WordPositions, b.WordPositions)
	assert.Equal(t, a.ExactPositions, b.ExactPositions)
	assert.Equal(t, a.PageTexts, b.PageTexts)
	assert.Equal(t, 1, forward.Textless())

	alpha := a.WordPositions["alpha"]
	require.Len(t, alpha, 3)
	assert.Equal(t, []int{0, 0, 3}, pageIndexes(alpha))
}

func TestBuilderSkipsTextlessPages(t *testing.T) {
	b := NewBuilder("doc", "", 2)
	b.Merge(AnalyzePage(0, "words here"))
	b.Merge(AnalyzePage(1, ""))
	s := b.Build(time.Now())

	_, ok := s.PageText(1)
	assert.False(t, ok)
	assert.Equal(t, []int{0}, s.Pages())
	assert.Equal(t, 2, s.PageCount)
	assert.True(t, s.Current())
}

func TestStoreIsStale(t *testing.T) {
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s := &Store{CreatedAt: created, FormatVersion: FormatVersion}

	assert.False(t, s.IsStale(time.Time{}))
	assert.False(t, s.IsStale(created.Add(-time.Hour)))
	assert.True(t, s.IsStale(created.Add(time.Second)))
}

func BenchmarkBuilder(b *testing.B) {
	texts := make([]string, 200)
	for i := range texts {
		texts[i] = fmt.Sprintf("page %d covers indexing, caching and memory pressure in large documents", i)
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		bld := NewBuilder("bench", "", len(texts))
		for p, text := range texts {
			bld.Merge(AnalyzePage(p, text))
		}
		_ = bld.Build(time.Now())
	}
}

func pageIndexes(pl PostingList) []int {
	out := make([]int, len(pl))
	for i, p := range pl {
		out[i] = p.PageIndex
	}
	return out
}
