package quizbank

import (
	"strings"

	"github.com/nthbao13/cloud-quiz/internal/domain"
)

const (
	// essayLengthThreshold marks long free-form prose answers.
	essayLengthThreshold = 300
	// essaySentenceCount is the sentence-terminator count beyond which prose
	// with a colon is treated as essay reference text.
	essaySentenceCount = 3
	// maxAnswerParts guards against essays mis-split into many fragments.
	maxAnswerParts = 6
)

// ResolveAnswers turns a question's raw answer field into its canonical
// correct-answer set, or recognizes it as essay reference text. The essay
// classification is a best-effort heuristic over length and punctuation
// shape; adversarial inputs can land on either side.
func ResolveAnswers(rawAnswer string) domain.CorrectAnswers {
	text := stripQuoteLayer(rawAnswer)

	sentences := strings.Count(text, ".")
	hasColon := strings.Contains(text, ":")
	if len(text) > essayLengthThreshold || (sentences > essaySentenceCount && hasColon) {
		return domain.CorrectAnswers{Entries: []string{text}, IsEssay: true}
	}

	normalized := strings.ReplaceAll(text, "\n", ",")
	var parts []string
	for _, part := range strings.Split(normalized, ",") {
		part = strings.TrimSpace(part)
		part = stripQuoteLayer(part)
		part = strings.TrimSpace(strings.TrimPrefix(part, "- "))
		if part != "" {
			parts = append(parts, part)
		}
	}

	// Too many parts means a mis-split essay, not a huge option set.
	if len(parts) > maxAnswerParts {
		return domain.CorrectAnswers{Entries: []string{text}, IsEssay: true}
	}
	return domain.CorrectAnswers{Entries: parts}
}

// SplitSmart splits a short answer field on commas that sit outside
// parentheses. The multiplayer flow uses it so parenthesized clauses inside
// a single answer do not explode into separate entries.
func SplitSmart(rawAnswer string) []string {
	if rawAnswer == "" {
		return nil
	}

	var answers []string
	var current strings.Builder
	depth := 0

	for _, ch := range rawAnswer {
		switch {
		case ch == '(':
			depth++
			current.WriteRune(ch)
		case ch == ')':
			depth--
			current.WriteRune(ch)
		case ch == ',' && depth == 0:
			if part := strings.TrimSpace(current.String()); part != "" {
				answers = append(answers, part)
			}
			current.Reset()
		default:
			current.WriteRune(ch)
		}
	}
	if part := strings.TrimSpace(current.String()); part != "" {
		answers = append(answers, part)
	}
	return answers
}

// stripQuoteLayer removes one layer of surrounding straight or single quote
// characters from either end.
func stripQuoteLayer(s string) string {
	s = strings.TrimPrefix(s, `"`)
	s = strings.TrimPrefix(s, `'`)
	s = strings.TrimSuffix(s, `"`)
	s = strings.TrimSuffix(s, `'`)
	return s
}
