package chunker

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplitEmpty(t *testing.T) {
	for _, in := range []string{"", "   ", "\n\t"} {
		if got := Split(in, 100); len(got) != 0 {
			t.Errorf("Split(%q) = %q, want empty", in, got)
		}
	}
}

func TestSentences(t *testing.T) {
	got := Sentences("We marched on the FDA. Did it work?! Yes...  It did.\nThen we went home")
	want := []string{"We marched on the FDA.", "Did it work?!", "Yes...", "It did.", "Then we went home"}
	if len(got) != len(want) {
		t.Fatalf("got %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sentence %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSplitRespectsBound(t *testing.T) {
	text := strings.Repeat("This is a sentence about activism. ", 40)
	chunks := Split(text, 120)

	if len(chunks) < 2 {
		t.Fatalf("expected several chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if n := utf8.RuneCountInString(c); n > 120 {
			t.Errorf("chunk %d has %d chars, want <= 120", i, n)
		}
		if c != strings.TrimSpace(c) {
			t.Errorf("chunk %d not trimmed: %q", i, c)
		}
	}
}

func TestSplitOversizedSentenceEmittedWhole(t *testing.T) {
	long := strings.Repeat("word ", 50) + "end."
	text := "Short one. " + long + " Another short."

	chunks := Split(text, 40)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d: %q", len(chunks), chunks)
	}
	if chunks[1] != strings.TrimSpace(long) {
		t.Errorf("oversized sentence was altered: %q", chunks[1])
	}
	for _, c := range []string{chunks[0], chunks[2]} {
		if utf8.RuneCountInString(c) > 40 {
			t.Errorf("regular chunk exceeds bound: %q", c)
		}
	}
}

func TestSplitReconstructsSentences(t *testing.T) {
	text := "I joined in 1988. The meetings were loud! Who ran them? Nobody, really. We all did."
	chunks := Split(text, 35)

	var rebuilt []string
	for _, c := range chunks {
		rebuilt = append(rebuilt, Sentences(c)...)
	}

	want := Sentences(text)
	if strings.Join(rebuilt, " ") != strings.Join(want, " ") {
		t.Fatalf("rebuilt %q, want %q", rebuilt, want)
	}
}

func TestSplitIdempotentOnChunkSizedInput(t *testing.T) {
	text := strings.Repeat("Silence equals death. Action equals life! ", 10)
	for _, c := range Split(text, 100) {
		again := Split(c, 100)
		if len(again) != 1 || again[0] != c {
			t.Errorf("re-chunking %q gave %q", c, again)
		}
	}
}

func TestSplitDefaultSize(t *testing.T) {
	text := strings.Repeat("a", 600) + ". " + strings.Repeat("b", 600) + "."
	chunks := Split(text, 0)
	if len(chunks) != 2 {
		t.Fatalf("expected default bound of %d to give 2 chunks, got %d", DefaultMaxChunkSize, len(chunks))
	}
}

func TestSplitDeterministic(t *testing.T) {
	text := "One. Two. Three. Four. Five. Six."
	a := Split(text, 10)
	b := Split(text, 10)
	if strings.Join(a, "|") != strings.Join(b, "|") {
		t.Fatalf("non-deterministic output: %q vs %q", a, b)
	}
}
