package textproc

import (
	"context"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Normalizer cleans extracted book text before it is stored and synthesized.
type Normalizer interface {
	Normalize(ctx context.Context, text string) (string, error)
}

// NormalizerFunc adapts a function to Normalizer.
type NormalizerFunc func(ctx context.Context, text string) (string, error)

func (f NormalizerFunc) Normalize(ctx context.Context, text string) (string, error) {
	return f(ctx, text)
}

var (
	paragraphBreak = regexp.MustCompile(`\n[ \t]*\n`)
	manySpaces     = regexp.MustCompile(`[ \t\f\v]+`)
)

// Basic joins words hyphenated across line breaks, unwraps hard-wrapped lines
// inside paragraphs and collapses runs of whitespace. Paragraphs come back
// separated by one blank line.
func Basic(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	var paras []string
	for _, block := range paragraphBreak.Split(text, -1) {
		cur := ""
		for _, line := range strings.Split(block, "\n") {
			line = strings.TrimSpace(manySpaces.ReplaceAllString(line, " "))
			switch {
			case line == "":
			case cur == "":
				cur = line
			case hyphenated(cur, line):
				cur = cur[:len(cur)-1] + line
			default:
				cur += " " + line
			}
		}
		if cur != "" {
			paras = append(paras, cur)
		}
	}
	return strings.Join(paras, "\n\n")
}

// hyphenated reports whether prev ends in "letter-" and next starts with a
// lower case letter, i.e. a word was split across the line break.
func hyphenated(prev, next string) bool {
	if len(prev) < 2 || prev[len(prev)-1] != '-' {
		return false
	}
	before, _ := utf8.DecodeLastRuneInString(prev[:len(prev)-1])
	first, _ := utf8.DecodeRuneInString(next)
	return unicode.IsLetter(before) && unicode.IsLower(first)
}

// BasicNormalizer is Basic as a Normalizer.
var BasicNormalizer = NormalizerFunc(func(_ context.Context, text string) (string, error) {
	return Basic(text), nil
})
