// Package indexer splits documents into chunks and keeps their stored vectors current.
package indexer

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultChunkSize is the target chunk length in characters.
const DefaultChunkSize = 1000

const paragraphSep = "\n\n"

var paragraphBreak = regexp.MustCompile(`\n\s*\n`)

// Chunker splits text into ordered chunks of at most targetSize characters,
// packing whole paragraphs and falling back to sentences for long paragraphs.
type Chunker struct {
	targetSize int
}

// NewChunker creates a chunker with the given target size in characters.
// A non-positive size uses DefaultChunkSize.
func NewChunker(targetSize int) *Chunker {
	if targetSize <= 0 {
		targetSize = DefaultChunkSize
	}
	return &Chunker{targetSize: targetSize}
}

// TargetSize returns the configured target chunk length.
func (c *Chunker) TargetSize() int {
	return c.targetSize
}

// Chunk splits text into chunks. Paragraphs are separated by blank lines and are
// never split unless a single paragraph is longer than the target size; such a
// paragraph is split on sentence boundaries instead. A single sentence longer than
// the target size is emitted whole. Empty or whitespace-only text yields no chunks.
func (c *Chunker) Chunk(text string) []string {
	var chunks []string
	emit := func(s string) { chunks = append(chunks, s) }

	paragraphs := newPacker(c.targetSize, paragraphSep, emit)
	for _, raw := range paragraphBreak.Split(text, -1) {
		p := strings.TrimSpace(raw)
		if p == "" {
			continue
		}
		n := utf8.RuneCountInString(p)
		if n <= c.targetSize {
			paragraphs.add(p, n)
			continue
		}
		paragraphs.flush()
		c.packSentences(p, emit)
	}
	paragraphs.flush()
	return chunks
}

// packer greedily joins units with sep while the result stays within limit.
type packer struct {
	limit  int
	sep    string
	sepLen int
	buf    strings.Builder
	n      int
	emit   func(string)
}

func newPacker(limit int, sep string, emit func(string)) *packer {
	return &packer{limit: limit, sep: sep, sepLen: utf8.RuneCountInString(sep), emit: emit}
}

func (p *packer) add(s string, n int) {
	if p.n > 0 && p.n+p.sepLen+n > p.limit {
		p.flush()
	}
	if p.n > 0 {
		p.buf.WriteString(p.sep)
		p.n += p.sepLen
	}
	p.buf.WriteString(s)
	p.n += n
}

func (p *packer) flush() {
	if p.n == 0 {
		return
	}
	p.emit(p.buf.String())
	p.buf.Reset()
	p.n = 0
}

// packSentences emits runs of consecutive sentences of p, each as a literal
// slice of p so the whitespace between sentences is preserved.
func (c *Chunker) packSentences(p string, emit func(string)) {
	first := -1
	var firstRune, lastEnd int
	for _, sp := range sentenceSpans(p) {
		if first >= 0 && sp.runeEnd-firstRune > c.targetSize {
			emit(p[first:lastEnd])
			first = -1
		}
		if first < 0 {
			first, firstRune = sp.start, sp.runeStart
		}
		lastEnd = sp.end
	}
	if first >= 0 {
		emit(p[first:lastEnd])
	}
}

// span is a trimmed sentence of a paragraph, in byte and rune offsets.
type span struct {
	start, end         int
	runeStart, runeEnd int
}

// sentenceSpans splits a paragraph after each run of '.', '!' or '?' that is
// followed by whitespace or the end of the text. Trailing text without terminal
// punctuation is kept as the last sentence.
func sentenceSpans(p string) []span {
	runes := []rune(p)
	offsets := make([]int, 0, len(runes)+1)
	for i := range p {
		offsets = append(offsets, i)
	}
	offsets = append(offsets, len(p))

	var out []span
	keep := func(s, e int) {
		for s < e && unicode.IsSpace(runes[s]) {
			s++
		}
		for e > s && unicode.IsSpace(runes[e-1]) {
			e--
		}
		if s < e {
			out = append(out, span{start: offsets[s], end: offsets[e], runeStart: s, runeEnd: e})
		}
	}
	start := 0
	for i := 0; i < len(runes); i++ {
		if !isTerminal(runes[i]) {
			continue
		}
		end := i
		for end+1 < len(runes) && isTerminal(runes[end+1]) {
			end++
		}
		if end+1 == len(runes) || unicode.IsSpace(runes[end+1]) {
			keep(start, end+1)
			start = end + 1
		}
		i = end
	}
	keep(start, len(runes))
	return out
}

func splitSentences(p string) []string {
	spans := sentenceSpans(p)
	out := make([]string, len(spans))
	for i, sp := range spans {
		out[i] = p[sp.start:sp.end]
	}
	return out
}

func isTerminal(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}
