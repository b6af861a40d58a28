// Package textproc holds the text side of the reader: word counts for
// duration estimates, chunking for synthesis, and normalization of imported
// book text.
package textproc

import (
	"strings"
	"unicode"
)

// CountWords counts whitespace separated words.
func CountWords(text string) int {
	return len(strings.Fields(text))
}

// Chunking limits used when a book is synthesized in several requests.
const (
	MinWordsPerChunk = 1000
	MaxChunks        = 10
)

// Chunk splits text into at most MaxChunks pieces of at least
// MinWordsPerChunk words each (the last one may be shorter). Splits prefer a
// sentence end at or after the target size; text is never reordered or
// dropped apart from whitespace at the split points.
func Chunk(text string) []string {
	words := CountWords(text)
	if words == 0 {
		return nil
	}
	per := MinWordsPerChunk
	if n := (words + MaxChunks - 1) / MaxChunks; n > per {
		per = n
	}

	var chunks []string
	rest := strings.TrimSpace(text)
	for len(chunks) < MaxChunks-1 && CountWords(rest) > per {
		cut := splitPoint(rest, per)
		if cut <= 0 || cut >= len(rest) {
			break
		}
		chunks = append(chunks, strings.TrimSpace(rest[:cut]))
		rest = strings.TrimSpace(rest[cut:])
	}
	if rest != "" {
		chunks = append(chunks, rest)
	}
	return chunks
}

// splitPoint returns the byte index just after the first sentence end that
// follows the per-th word, or just after the per-th word when no sentence end
// exists before the text runs out.
func splitPoint(text string, per int) int {
	count := 0
	inWord := false
	wordEnd := -1
	for i, r := range text {
		if unicode.IsSpace(r) {
			if inWord {
				count++
				inWord = false
				if count == per {
					wordEnd = i
				}
				if count >= per && i > 0 && isSentenceEnd(text[:i]) {
					return i
				}
			}
			continue
		}
		inWord = true
	}
	return wordEnd
}

func isSentenceEnd(s string) bool {
	s = strings.TrimRight(s, `"')]`)
	if s == "" {
		return false
	}
	switch s[len(s)-1] {
	case '.', '!', '?':
		return true
	}
	return false
}
