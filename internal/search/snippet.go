package search

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/Document-Reader-Search/internal/indexer/index"
)

// contextWindow returns the runes within radius code points of r, clipped
// to the page bounds. Ranges past the end of the page clip to an empty
// window at the end rather than failing.
func contextWindow(page []rune, r index.Range, radius int) string {
	start := clamp(r.Location-radius, 0, len(page))
	end := clamp(r.End()+radius, start, len(page))
	return string(page[start:end])
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// foldRunes lower-cases rune by rune so that code point offsets in the
// folded string are the offsets in the original.
func foldRunes(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// findAll returns every non-overlapping occurrence of needle in text, in
// document order, as code point ranges. It scans left to right and resumes
// after each match.
func findAll(text, needle string, caseSensitive bool) []index.Range {
	if needle == "" || text == "" {
		return nil
	}
	hay := text
	if !caseSensitive {
		hay = foldRunes(text)
		needle = foldRunes(needle)
	}
	needleLen := utf8.RuneCountInString(needle)

	var ranges []index.Range
	bytePos, runePos := 0, 0
	for bytePos < len(hay) {
		i := strings.Index(hay[bytePos:], needle)
		if i < 0 {
			break
		}
		runePos += utf8.RuneCountInString(hay[bytePos : bytePos+i])
		ranges = append(ranges, index.Range{Location: runePos, Length: needleLen})
		bytePos += i + len(needle)
		runePos += needleLen
	}
	return ranges
}
