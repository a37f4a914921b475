// Package assembler turns ranked evidence into the context block handed to
// the generator.
package assembler

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const separator = "\n\n"

// Evidence is one ranked piece of retrieved text with its provenance.
type Evidence struct {
	InterviewID   string
	InterviewName string
	Text          string
}

type Result struct {
	Context string
	// Used is how many leading evidence items made it into Context.
	Used int
}

// Paragraph renders one evidence item.
func Paragraph(e Evidence) string {
	return fmt.Sprintf("From %s's interview (%s): %s", e.InterviewName, e.InterviewID, e.Text)
}

// Assemble joins evidence in ranked order and keeps the longest prefix whose
// rendered size fits budget characters. Items are dropped whole from the
// bottom; text is never cut. A budget <= 0 means unbounded.
func Assemble(evidence []Evidence, budget int) Result {
	var b strings.Builder
	size := 0
	used := 0

	for _, e := range evidence {
		p := Paragraph(e)
		n := utf8.RuneCountInString(p)
		if used > 0 {
			n += len(separator)
		}
		if budget > 0 && size+n > budget {
			break
		}
		if used > 0 {
			b.WriteString(separator)
		}
		b.WriteString(p)
		size += n
		used++
	}

	return Result{Context: b.String(), Used: used}
}

// SystemPrompt prefixes the assembled context with the assistant persona.
func SystemPrompt(persona, context string) string {
	persona = strings.TrimSpace(persona)
	return persona + "\nUse the following interview context to answer questions:\n" + context
}
