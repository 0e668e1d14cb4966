package quizbank

import (
	"testing"

	"github.com/nthbao13/cloud-quiz/internal/domain"
)

func TestExtractLetteredOptions(t *testing.T) {
	text := "What is 2+2?\na. 3\nb. 4\nc. 5"
	opts := ExtractOptions(text)
	if len(opts) != 3 {
		t.Fatalf("expected 3 options, got %d", len(opts))
	}
	if opts[0].Letter != "a" || opts[0].Text != "3" {
		t.Fatalf("unexpected first option: %+v", opts[0])
	}
	if opts[1].Letter != "b" || opts[1].Text != "4" {
		t.Fatalf("unexpected second option: %+v", opts[1])
	}
}

func TestExtractTrueFalseFallback(t *testing.T) {
	text := "Cloud storage is always free.\nSelect one:\nTrue\nFalse"
	opts := ExtractOptions(text)
	if len(opts) != 2 || opts[0].Text != "True" || opts[1].Text != "False" {
		t.Fatalf("expected synthesized True/False, got %+v", opts)
	}

	// Without the "select one:" marker the True/False fallback must not fire.
	if opts := ExtractOptions("It is true that false positives exist."); len(opts) != 0 {
		t.Fatalf("expected no options without marker, got %+v", opts)
	}
}

func TestExtractYesNoFallback(t *testing.T) {
	text := "Does an S3 bucket name need to be globally unique?\nYes\nNo"
	opts := ExtractOptions(text)
	if len(opts) != 2 || opts[0].Text != "Yes" || opts[1].Text != "No" {
		t.Fatalf("expected synthesized Yes/No, got %+v", opts)
	}
}

func TestExtractTierMatchingCrossProduct(t *testing.T) {
	text := "Match each storage tier to its scenario.\n" +
		"Hot -\n" +
		"Cold -\n" +
		"Archive -\n" +
		"A – Frequently accessed data\n" +
		"B – Backups kept for a month\n" +
		"C – Compliance records kept for years"
	opts := ExtractOptions(text)
	if len(opts) != 9 {
		t.Fatalf("expected 3x3 cross product, got %d options", len(opts))
	}
	if opts[0].Letter != "hot-a" || opts[0].Text != "Hot → A" {
		t.Fatalf("unexpected first tier option: %+v", opts[0])
	}
	if opts[8].Letter != "archive-c" {
		t.Fatalf("unexpected last tier option: %+v", opts[8])
	}
}

func TestDisplayTextTruncation(t *testing.T) {
	text := "What is 2+2?\na. 3\nb. 4"
	opts := ExtractOptions(text)
	if got := DisplayText(text, opts); got != "What is 2+2?" {
		t.Fatalf("expected options cut from display text, got %q", got)
	}

	tf := "Cloud storage is always free.\nSelect one:\nTrue\nFalse"
	tfOpts := ExtractOptions(tf)
	if got := DisplayText(tf, tfOpts); got != "Cloud storage is always free.\nSelect one:" {
		t.Fatalf("expected cut after select-one marker, got %q", got)
	}
}

func TestExtractOptionsIdempotentOnDisplayText(t *testing.T) {
	text := "What is 2+2?\na. 3\nb. 4"
	opts := ExtractOptions(text)
	display := DisplayText(text, opts)
	if again := ExtractOptions(display); len(again) != 0 {
		t.Fatalf("expected no options on reconstructed display text, got %+v", again)
	}
}

func TestIsEssay(t *testing.T) {
	essay := domain.QuestionRecord{
		Text:   "Explain the shared responsibility model.",
		Answer: "The provider secures the infrastructure while the customer secures workloads.",
	}
	if !IsEssay(essay) {
		t.Fatalf("expected essay classification")
	}

	choice := domain.QuestionRecord{Text: "Pick one.\na. x\nb. y", Answer: "a"}
	if IsEssay(choice) {
		t.Fatalf("lettered question misclassified as essay")
	}

	// No options and no answer text is ambiguous, not an essay.
	blank := domain.QuestionRecord{Text: "Just a statement.", Answer: "  "}
	if IsEssay(blank) {
		t.Fatalf("blank answer misclassified as essay")
	}
}
