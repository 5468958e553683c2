// Package indexing turns stored report text into embedded chunks and a
// full-text search document, and answers similarity queries over them.
package indexing

import (
	"regexp"
	"strings"
)

const (
	DefaultSentencesPerChunk = 5
	DefaultOverlapSentences  = 1
)

var sentenceRe = regexp.MustCompile(`[^.!?]+[.!?]+`)

// SentenceChunker groups sentences into fixed-size windows that share
// overlap sentences with the previous window.
type SentenceChunker struct {
	size    int
	overlap int
}

// NewSentenceChunker falls back to the defaults for non-positive size and
// clamps overlap to [0, size).
func NewSentenceChunker(size, overlap int) *SentenceChunker {
	if size <= 0 {
		size = DefaultSentencesPerChunk
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size - 1
	}
	return &SentenceChunker{size: size, overlap: overlap}
}

// Split returns the chunk texts for text, in order. Blank text yields nil.
func (c *SentenceChunker) Split(text string) []string {
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return nil
	}

	var out []string
	step := c.size - c.overlap
	for start := 0; start < len(sentences); start += step {
		end := start + c.size
		if end > len(sentences) {
			end = len(sentences)
		}
		out = append(out, strings.Join(sentences[start:end], " "))
		if end == len(sentences) {
			break
		}
	}
	return out
}

// splitSentences keeps trailing text without terminal punctuation as a
// final sentence and collapses internal whitespace.
func splitSentences(text string) []string {
	var out []string
	last := 0
	for _, loc := range sentenceRe.FindAllStringIndex(text, -1) {
		if s := squash(text[loc[0]:loc[1]]); s != "" {
			out = append(out, s)
		}
		last = loc[1]
	}
	if s := squash(text[last:]); s != "" {
		out = append(out, s)
	}
	return out
}

func squash(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
