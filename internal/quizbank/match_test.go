package quizbank

import "testing"

func TestMatchesExactAndNormalized(t *testing.T) {
	if !Matches("Paris", "paris") {
		t.Fatalf("case-insensitive match failed")
	}
	if !Matches(`  "Paris" `, "paris") {
		t.Fatalf("quote-stripped match failed")
	}
	if Matches("Paris", "London") {
		t.Fatalf("unrelated answers matched")
	}
}

func TestMatchesContainmentGuard(t *testing.T) {
	if !Matches("Cloud Storage", "Cloud Storage (object store)") {
		t.Fatalf("containment match failed")
	}
	// Both sides at or under the guard length never match by containment.
	if Matches("a", "ab") {
		t.Fatalf("short accidental substring matched")
	}
	if !Matches("b", "b. 4") {
		t.Fatalf("letter-in-longer-answer containment failed")
	}
}

func TestMatchesTierMappings(t *testing.T) {
	if !Matches("Hot → A", "hot → a") {
		t.Fatalf("mapping normalization failed")
	}
	if !Matches("Hot → A: frequently accessed", "Hot → A") {
		t.Fatalf("mapping extraction failed")
	}
	// Correct side listing several mappings joined together.
	if !Matches("Cold → B", "Hot → C, Cold → B, Archive → A") {
		t.Fatalf("joined mapping containment failed")
	}
	if Matches("Hot → A", "Hot → B") {
		t.Fatalf("different mappings matched")
	}
}

func TestEvaluateBijectiveCoverage(t *testing.T) {
	correct := []string{"Compute Engine", "Cloud Storage"}

	if !Evaluate([]string{"cloud storage", "compute engine"}, correct) {
		t.Fatalf("order-insensitive coverage failed")
	}
	if Evaluate([]string{"compute engine"}, correct) {
		t.Fatalf("partial selection accepted")
	}
	if Evaluate([]string{"compute engine", "compute engine"}, correct) {
		t.Fatalf("duplicate selection covered two distinct entries")
	}
	if Evaluate(nil, correct) {
		t.Fatalf("empty selection accepted")
	}
	if Evaluate([]string{"compute engine", "app engine"}, correct) {
		t.Fatalf("wrong entry accepted")
	}
}

func TestEvaluateSingleChoice(t *testing.T) {
	if !Evaluate([]string{"b"}, []string{"b"}) {
		t.Fatalf("single choice match failed")
	}
	if Evaluate([]string{"a"}, []string{"b"}) {
		t.Fatalf("wrong single choice accepted")
	}
}
