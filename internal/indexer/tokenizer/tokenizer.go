// Package tokenizer splits page text into whitespace-delimited tokens and
// normalizes them into index keys.
//
// Offsets and lengths are counted in Unicode code points, not bytes or
// grapheme clusters. Offsets are approximate: the cursor advances by the
// token's length plus one for the single separator assumed to follow it, so
// runs of whitespace make later offsets drift left of the true position.
// Consumers only use them to centre a context window.
package tokenizer

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Token is one whitespace-delimited word of a page.
type Token struct {
	// Term is the lower-cased, punctuation-trimmed index key. Empty when the
	// token was punctuation only.
	Term string
	// Exact is the punctuation-trimmed token with its original casing.
	Exact string
	// Position is the ordinal of the token in the page's token stream.
	Position int
	// Offset is the approximate code point offset of the token in the page.
	Offset int
	// Length is the code point length of the original, untrimmed token.
	Length int
}

// Tokenize breaks text on whitespace and newlines, drops empty tokens, and
// returns every token in page order.
func Tokenize(text string) []Token {
	words := strings.Fields(text)
	tokens := make([]Token, 0, len(words))
	cursor := 0
	for i, word := range words {
		exact := TrimPunct(word)
		length := utf8.RuneCountInString(word)
		tokens = append(tokens, Token{
			Term:     strings.ToLower(exact),
			Exact:    exact,
			Position: i,
			Offset:   cursor,
			Length:   length,
		})
		cursor += length + 1
	}
	return tokens
}

// Normalize converts a word into its index key.
func Normalize(word string) string {
	return strings.ToLower(TrimPunct(strings.TrimSpace(word)))
}

// TrimPunct strips leading and trailing punctuation, keeping the case.
func TrimPunct(word string) string {
	return strings.TrimFunc(word, unicode.IsPunct)
}
