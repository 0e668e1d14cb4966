package quizbank

import (
	"regexp"
	"strings"

	"github.com/nthbao13/cloud-quiz/internal/domain"
)

var (
	letteredOptionRe = regexp.MustCompile(`(?i)^([a-z])\.\s*(.+)`)
	firstOptionRe    = regexp.MustCompile(`(?i)\n[a-z]\.\s`)
	selectOneRe      = regexp.MustCompile(`(?i)Select one:`)
	tierLineRe       = regexp.MustCompile(`(?i)^(Hot|Cold|Archive)\s*-\s*$`)
	scenarioLineRe   = regexp.MustCompile(`^([A-Z])\s*[–-]\s*(.+)`)
)

// ExtractOptions derives the selectable options from a question's raw text.
// Lettered lines ("a. ...") win whenever at least one exists; otherwise the
// True/False, Yes/No and tier-matching heuristics apply in that order. An
// empty result together with a non-empty answer field marks an essay
// question.
func ExtractOptions(questionText string) []domain.AnswerOption {
	var options []domain.AnswerOption

	for _, line := range strings.Split(questionText, "\n") {
		if m := letteredOptionRe.FindStringSubmatch(line); m != nil {
			letter := strings.ToLower(m[1])
			text := strings.TrimSpace(m[2])
			options = append(options, domain.AnswerOption{
				Letter:  letter,
				Text:    text,
				Display: letter + ". " + text,
			})
		}
	}
	if len(options) > 0 {
		return options
	}

	lower := strings.ToLower(questionText)

	if strings.Contains(lower, "true") && strings.Contains(lower, "false") &&
		strings.Contains(lower, "select one:") {
		return []domain.AnswerOption{
			{Letter: "a", Text: "True", Display: "True"},
			{Letter: "b", Text: "False", Display: "False"},
		}
	}

	if strings.Contains(lower, "yes") && strings.Contains(lower, "no") {
		return []domain.AnswerOption{
			{Letter: "a", Text: "Yes", Display: "Yes"},
			{Letter: "b", Text: "No", Display: "No"},
		}
	}

	return tierMatchingOptions(questionText)
}

// tierMatchingOptions recognizes tier-matching questions: bare tier lines
// ("Hot -") paired with lettered scenario lines ("A – ..."). The option set
// is the cross product of tiers and scenarios.
func tierMatchingOptions(questionText string) []domain.AnswerOption {
	var tiers []string
	var scenarios []struct{ letter, text string }

	for _, line := range strings.Split(questionText, "\n") {
		if m := tierLineRe.FindStringSubmatch(line); m != nil {
			tiers = append(tiers, m[1])
			continue
		}
		if m := scenarioLineRe.FindStringSubmatch(line); m != nil {
			scenarios = append(scenarios, struct{ letter, text string }{m[1], strings.TrimSpace(m[2])})
		}
	}
	if len(tiers) == 0 || len(scenarios) == 0 {
		return nil
	}

	var options []domain.AnswerOption
	for _, tier := range tiers {
		for _, sc := range scenarios {
			options = append(options, domain.AnswerOption{
				Letter:  strings.ToLower(tier) + "-" + strings.ToLower(sc.letter),
				Text:    tier + " → " + sc.letter,
				Display: tier + " → " + sc.letter + ": " + sc.text,
			})
		}
	}
	return options
}

// DisplayText truncates the question text to exclude detected option lines:
// cut at the first lettered-option line or just after a "Select one:" marker,
// whichever sits closer to the start of the text.
func DisplayText(questionText string, options []domain.AnswerOption) string {
	if len(options) == 0 {
		return strings.TrimSpace(questionText)
	}

	cut := len(questionText)
	if loc := firstOptionRe.FindStringIndex(questionText); loc != nil {
		cut = loc[0]
	}
	if loc := selectOneRe.FindStringIndex(questionText); loc != nil && loc[1] < cut {
		cut = loc[1]
	}
	return strings.TrimSpace(questionText[:cut])
}

// IsEssay reports whether a question has no selectable options but does have
// reference answer text, the shape evaluated by free-text grading.
func IsEssay(q domain.QuestionRecord) bool {
	return len(ExtractOptions(q.Text)) == 0 && strings.TrimSpace(q.Answer) != ""
}

// HasLetteredOptions is the cheap pre-filter used when assembling multiplayer
// question sets: only questions carrying inline lettered options survive.
func HasLetteredOptions(q domain.QuestionRecord) bool {
	return strings.Contains(q.Text, "\na.") || strings.Contains(q.Text, "\nA.")
}
