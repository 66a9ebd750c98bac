// Package vector builds sparse term-weight vectors from text and compares them.
package vector

import (
	"math"
	"regexp"

	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	bleveregexp "github.com/blevesearch/bleve/v2/analysis/tokenizer/regexp"
)

// SparseVector maps a case-folded token to its non-negative weight.
// Tokens that do not appear in the source text are absent and weigh 0.
type SparseVector map[string]float64

// wordPattern matches runs of letters and digits; everything else separates tokens.
var wordPattern = regexp.MustCompile(`[\p{L}\p{M}\p{N}]+`)

var (
	wordTokenizer = bleveregexp.NewRegexpTokenizer(wordPattern)
	lowerFilter   = lowercase.NewLowerCaseFilter()
)

// Tokenize lowercases text and splits it into word tokens in order of appearance.
func Tokenize(text string) []string {
	if text == "" {
		return nil
	}
	stream := lowerFilter.Filter(wordTokenizer.Tokenize([]byte(text)))
	tokens := make([]string, 0, len(stream))
	for _, tok := range stream {
		tokens = append(tokens, string(tok.Term))
	}
	return tokens
}

// Vectorize converts text into term weights. The text is treated as a corpus of one
// document, so every token shares the same inverse document frequency and its weight
// is proportional to how often it occurs. Chunk text and query text both go through
// this function so that their vectors are comparable.
func Vectorize(text string) SparseVector {
	tokens := Tokenize(text)
	counts := make(map[string]int, len(tokens))
	for _, tok := range tokens {
		counts[tok]++
	}
	v := make(SparseVector, len(counts))
	for term, n := range counts {
		v[term] = float64(n) * DocumentIDF
	}
	return v
}

// Norm returns the L2 magnitude of v.
func (v SparseVector) Norm() float64 {
	var sum float64
	for _, w := range v {
		sum += w * w
	}
	return math.Sqrt(sum)
}

// Clone returns a copy of v that shares no storage with it.
func (v SparseVector) Clone() SparseVector {
	out := make(SparseVector, len(v))
	for term, w := range v {
		out[term] = w
	}
	return out
}
