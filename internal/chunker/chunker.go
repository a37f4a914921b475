// Package chunker splits transcript text into sentence-bounded chunks.
package chunker

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const DefaultMaxChunkSize = 1000

var sentenceEnd = regexp.MustCompile(`[.!?]+\s+`)

// Split groups the sentences of text into chunks of at most maxChunkSize
// characters. A sentence is never split, so one longer than the bound is
// emitted alone as an oversized chunk.
func Split(text string, maxChunkSize int) []string {
	if maxChunkSize <= 0 {
		maxChunkSize = DefaultMaxChunkSize
	}

	var chunks []string
	var buf strings.Builder
	bufLen := 0

	for _, sentence := range Sentences(text) {
		n := utf8.RuneCountInString(sentence)
		if bufLen > 0 && bufLen+1+n > maxChunkSize {
			chunks = append(chunks, strings.TrimSpace(buf.String()))
			buf.Reset()
			bufLen = 0
		}
		if bufLen > 0 {
			buf.WriteByte(' ')
			bufLen++
		}
		buf.WriteString(sentence)
		bufLen += n
	}

	if bufLen > 0 {
		chunks = append(chunks, strings.TrimSpace(buf.String()))
	}

	return chunks
}

// Sentences cuts text after each run of terminal punctuation that is followed
// by whitespace. Punctuation stays with its sentence; whitespace between
// sentences is dropped and empty fragments are skipped.
func Sentences(text string) []string {
	var out []string
	start := 0

	for _, loc := range sentenceEnd.FindAllStringIndex(text, -1) {
		// loc[1] is past the whitespace; find where the punctuation run ends.
		end := loc[0]
		for end < loc[1] && strings.ContainsRune(".!?", rune(text[end])) {
			end++
		}
		if s := strings.TrimSpace(text[start:end]); s != "" {
			out = append(out, s)
		}
		start = loc[1]
	}

	if s := strings.TrimSpace(text[start:]); s != "" {
		out = append(out, s)
	}

	return out
}
