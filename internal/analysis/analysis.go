// Package analysis turns field text into indexable tokens.
package analysis

import (
	"iter"
	"unicode"
	"unicode/utf8"

	"github.com/clipperhouse/uax29/v2/words"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// DefaultMaxTokenLength drops longer tokens.
const DefaultMaxTokenLength = 255

// Token is one term occurrence.
type Token struct {
	Text string
	// Position counts tokens from 0, including dropped stop words.
	Position int
}

// Analyzer splits text into tokens.
type Analyzer interface {
	Tokens(text string) iter.Seq[Token]
}

// StandardAnalyzer segments text into UAX #29 words, normalizes them to NFKC
// and case folds them. Segments that do not start with a letter or digit
// (spaces, punctuation) are skipped.
type StandardAnalyzer struct {
	stopWords      map[string]struct{}
	maxTokenLength int
}

// Option configures a StandardAnalyzer.
type Option func(*StandardAnalyzer)

// WithStopWords drops the given (already folded) words. Dropped words still
// advance the position.
func WithStopWords(stop ...string) Option {
	return func(a *StandardAnalyzer) {
		for _, w := range stop {
			a.stopWords[w] = struct{}{}
		}
	}
}

// WithMaxTokenLength drops tokens longer than n bytes.
func WithMaxTokenLength(n int) Option {
	return func(a *StandardAnalyzer) {
		if n > 0 {
			a.maxTokenLength = n
		}
	}
}

// NewStandardAnalyzer returns a StandardAnalyzer.
func NewStandardAnalyzer(opts ...Option) *StandardAnalyzer {
	a := &StandardAnalyzer{
		stopWords:      make(map[string]struct{}),
		maxTokenLength: DefaultMaxTokenLength,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Tokens implements Analyzer.
func (a *StandardAnalyzer) Tokens(text string) iter.Seq[Token] {
	return func(yield func(Token) bool) {
		// cases.Caser is stateful and not safe for concurrent use.
		fold := cases.Fold()
		seg := words.FromString(norm.NFKC.String(text))
		pos := 0
		for seg.Next() {
			w := seg.Value()
			if !isWord(w) {
				continue
			}
			w = fold.String(w)
			if len(w) > a.maxTokenLength {
				pos++
				continue
			}
			if _, stop := a.stopWords[w]; stop {
				pos++
				continue
			}
			if !yield(Token{Text: w, Position: pos}) {
				return
			}
			pos++
		}
	}
}

func isWord(s string) bool {
	r, _ := utf8.DecodeRuneInString(s)
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// KeywordAnalyzer emits the whole text as a single token.
type KeywordAnalyzer struct{}

// Tokens implements Analyzer.
func (KeywordAnalyzer) Tokens(text string) iter.Seq[Token] {
	return func(yield func(Token) bool) {
		yield(Token{Text: text})
	}
}
