// Package quizbank turns semi-structured quiz text into typed questions,
// options and correct-answer sets, and decides whether a selection matches.
package quizbank

import (
	"log"
	"strings"

	"github.com/nthbao13/cloud-quiz/internal/domain"
)

// Bank maps quiz names to their questions in encounter order.
type Bank struct {
	order   []string
	quizzes map[string][]domain.QuestionRecord
}

// headerMarker starts a quiz-name header row in the source.
const headerMarker = "Quiz"

// Names returns the quiz names in encounter order.
func (b Bank) Names() []string {
	out := make([]string, len(b.order))
	copy(out, b.order)
	return out
}

// Questions returns the question list for one quiz name.
func (b Bank) Questions(name string) ([]domain.QuestionRecord, bool) {
	qs, ok := b.quizzes[name]
	return qs, ok
}

// All concatenates every quiz's questions in encounter order.
func (b Bank) All() []domain.QuestionRecord {
	var out []domain.QuestionRecord
	for _, name := range b.order {
		out = append(out, b.quizzes[name]...)
	}
	return out
}

// Len reports the total number of questions across all quizzes.
func (b Bank) Len() int {
	n := 0
	for _, qs := range b.quizzes {
		n += len(qs)
	}
	return n
}

// Empty reports whether the bank holds no questions at all. An empty bank is
// a valid but unusable state; callers must refuse to start a quiz from it.
func (b Bank) Empty() bool {
	return b.Len() == 0
}

// ParseBank parses the raw delimited quiz source. Rows are either quiz-name
// headers (first cell starts with the header marker) or question rows
// (question text, answer text, optional explanation). A field may span
// several physical lines inside a quoted span; the accumulated logical line
// is complete only once its quote count is even. Malformed rows are skipped,
// never fatal. Rows before the first header are ignored.
func ParseBank(raw string) Bank {
	bank := Bank{quizzes: make(map[string][]domain.QuestionRecord)}
	lines := strings.Split(raw, "\n")
	current := ""

	// First physical line is the column header row.
	for i := 1; i < len(lines); i++ {
		line := lines[i]
		if strings.TrimSpace(line) == "" {
			continue
		}

		// Absorb continuation lines while inside an open quoted span.
		for strings.Count(line, `"`)%2 == 1 && i < len(lines)-1 {
			i++
			line += "\n" + lines[i]
		}

		parts := splitRow(line)
		if len(parts) == 0 {
			continue
		}

		first := strings.TrimSpace(parts[0])
		if first != "" && strings.HasPrefix(first, headerMarker) {
			current = first
			if _, seen := bank.quizzes[current]; !seen {
				bank.order = append(bank.order, current)
				bank.quizzes[current] = []domain.QuestionRecord{}
			}
			continue
		}

		if current == "" || len(parts) < 3 {
			if current != "" {
				log.Printf("quizbank: skipping malformed row %d (%d fields)", i, len(parts))
			}
			continue
		}

		question := cleanHTMLArtifacts(strings.TrimSpace(parts[1]))
		answer := cleanHTMLArtifacts(strings.TrimSpace(parts[2]))
		explain := ""
		if len(parts) > 3 {
			explain = cleanHTMLArtifacts(strings.TrimSpace(parts[3]))
		}
		if question == "" {
			continue
		}
		bank.quizzes[current] = append(bank.quizzes[current], domain.QuestionRecord{
			Quiz:    current,
			Text:    question,
			Answer:  answer,
			Explain: explain,
		})
	}
	return bank
}

// splitRow splits one logical row on commas, honoring quoted spans and
// unescaping doubled quote characters, then strips one layer of surrounding
// quotes from each field.
func splitRow(line string) []string {
	var fields []string
	var current strings.Builder
	inQuotes := false

	for i := 0; i < len(line); i++ {
		ch := line[i]
		if ch == '"' {
			if inQuotes && i+1 < len(line) && line[i+1] == '"' {
				current.WriteByte('"')
				i++
				continue
			}
			inQuotes = !inQuotes
			continue
		}
		if ch == ',' && !inQuotes {
			fields = append(fields, current.String())
			current.Reset()
			continue
		}
		current.WriteByte(ch)
	}
	fields = append(fields, current.String())

	for i, f := range fields {
		f = strings.TrimSpace(f)
		fields[i] = stripSurroundingQuotes(f)
	}
	return fields
}

func stripSurroundingQuotes(s string) string {
	if len(s) >= 2 && strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) {
		return s[1 : len(s)-1]
	}
	return s
}

// htmlReplacer strips the tag fragments and decodes the named entities the
// source exports are known to leak into field text.
var htmlReplacer = strings.NewReplacer(
	"/p>", "",
	"<p>", "",
	"</p>", "",
	"<P>", "",
	"</P>", "",
	"&nbsp;", " ",
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
)

func cleanHTMLArtifacts(text string) string {
	if text == "" {
		return text
	}
	return strings.TrimSpace(htmlReplacer.Replace(text))
}
