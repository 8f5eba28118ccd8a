package index

import (
	"sort"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Document-Reader-Search/internal/indexer/tokenizer"
)

// PageResult is the partial index of a single page, produced independently
// of every other page.
type PageResult struct {
	PageIndex int
	Text      string
	HasText   bool
	Words     map[string]PostingList
	Exact     map[string]PostingList
}

// AnalyzePage tokenizes one page. It touches no shared state and is safe to
// call from any goroutine.
func AnalyzePage(pageIndex int, text string) PageResult {
	res := PageResult{PageIndex: pageIndex, Text: text}
	tokens := tokenizer.Tokenize(text)
	if len(tokens) == 0 {
		return res
	}
	res.HasText = true
	res.Words = make(map[string]PostingList)
	res.Exact = make(map[string]PostingList)
	for _, tok := range tokens {
		if tok.Term == "" {
			continue
		}
		pos := PageWordPosition{
			PageIndex: pageIndex,
			WordIndex: tok.Position,
			Range:     Range{Location: tok.Offset, Length: tok.Length},
		}
		res.Words[tok.Term] = append(res.Words[tok.Term], pos)
		res.Exact[tok.Exact] = append(res.Exact[tok.Exact], pos)
	}
	return res
}

// Builder accumulates page results into a Store. It is owned by a single
// goroutine; page tasks hand it results instead of writing to it.
type Builder struct {
	documentKey string
	sourcePath  string
	pageCount   int
	pageTexts   map[int]string
	words       map[string]PostingList
	exact       map[string]PostingList
	textless    int
}

// NewBuilder creates a Builder for a document with pageCount pages.
func NewBuilder(documentKey, sourcePath string, pageCount int) *Builder {
	return &Builder{
		documentKey: documentKey,
		sourcePath:  sourcePath,
		pageCount:   pageCount,
		pageTexts:   make(map[int]string, pageCount),
		words:       make(map[string]PostingList),
		exact:       make(map[string]PostingList),
	}
}

// Merge folds one page into the index. Occurrence lists under the same key
// are concatenated, never replaced. Textless pages leave no trace.
func (b *Builder) Merge(res PageResult) {
	if !res.HasText {
		b.textless++
		return
	}
	b.pageTexts[res.PageIndex] = res.Text
	for term, postings := range res.Words {
		b.words[term] = append(b.words[term], postings...)
	}
	for term, postings := range res.Exact {
		b.exact[term] = append(b.exact[term], postings...)
	}
}

// Textless returns how many merged pages contributed no text.
func (b *Builder) Textless() int {
	return b.textless
}

// Build finalizes the store. Posting lists are put in page order so the
// result does not depend on the order page tasks finished in.
func (b *Builder) Build(now time.Time) *Store {
	sortPostings(b.words)
	sortPostings(b.exact)
	return &Store{
		DocumentKey:    b.documentKey,
		SourcePath:     b.sourcePath,
		PageTexts:      b.pageTexts,
		WordPositions:  b.words,
		ExactPositions: b.exact,
		PageCount:      b.pageCount,
		CreatedAt:      now,
		FormatVersion:  FormatVersion,
	}
}

func sortPostings(m map[string]PostingList) {
	for _, postings := range m {
		sort.SliceStable(postings, func(i, j int) bool {
			if postings[i].PageIndex != postings[j].PageIndex {
				return postings[i].PageIndex < postings[j].PageIndex
			}
			return postings[i].WordIndex < postings[j].WordIndex
		})
	}
}
