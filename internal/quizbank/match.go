package quizbank

import (
	"regexp"
	"strings"
)

var (
	quoteStripper = strings.NewReplacer(`'`, "", `"`, "", "‘", "", "’", "", "“", "", "”", "")
	arrowMapRe    = regexp.MustCompile(`(?i)(hot|cold|archive)\s*→\s*([a-c])`)
	spaceRe       = regexp.MustCompile(`\s+`)
)

// minMatchLength guards the containment fallback: at least one side must be
// longer than this, or short accidental substrings would count as matches.
// Known heuristic weakness: containment can still produce false positives on
// answers that embed each other legitimately.
const minMatchLength = 3

// Matches reports whether a candidate answer string matches a canonical
// correct entry. Exact comparisons run on lowercased, trimmed, quote-stripped
// forms; tier-matching answers compare their extracted "<tier> → <letter>"
// mapping; otherwise containment in either direction counts, gated by
// minMatchLength.
func Matches(candidate, correct string) bool {
	a := normalizeAnswer(candidate)
	b := normalizeAnswer(correct)

	if a == b {
		return true
	}

	if strings.Contains(a, "→") || strings.Contains(b, "→") {
		ma := extractMapping(a)
		mb := extractMapping(b)
		if ma == mb {
			return true
		}
		// The correct side may list several mappings joined together.
		if strings.Contains(spaceRe.ReplaceAllString(b, ""), spaceRe.ReplaceAllString(ma, "")) {
			return true
		}
	}

	if strings.Contains(a, b) || strings.Contains(b, a) {
		if len(a) > minMatchLength || len(b) > minMatchLength {
			return true
		}
	}
	return false
}

// Evaluate applies the full-question correctness check: the submission is
// correct iff selection and correct-entry counts are equal and the two sets
// cover each other bijectively under Matches, not merely per-item existence.
func Evaluate(selected, correct []string) bool {
	if len(selected) == 0 || len(selected) != len(correct) {
		return false
	}

	used := make([]bool, len(correct))
	for _, sel := range selected {
		found := false
		for i, cor := range correct {
			if !used[i] && Matches(sel, cor) {
				used[i] = true
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for _, u := range used {
		if !u {
			return false
		}
	}
	return true
}

func normalizeAnswer(s string) string {
	return quoteStripper.Replace(strings.TrimSpace(strings.ToLower(s)))
}

// extractMapping pulls the "<tier> → <letter>" core out of a tier-matching
// answer, or returns the input unchanged when no mapping is present.
func extractMapping(s string) string {
	if m := arrowMapRe.FindStringSubmatch(s); m != nil {
		return strings.ToLower(m[1]) + " → " + strings.ToLower(m[2])
	}
	return s
}
