package quizbank

import (
	"strings"
	"testing"
)

func TestResolveShortAnswerSet(t *testing.T) {
	got := ResolveAnswers(`"a. Paris, b. London"`)
	if got.IsEssay {
		t.Fatalf("short token list misclassified as essay")
	}
	if len(got.Entries) != 2 || got.Entries[0] != "a. Paris" || got.Entries[1] != "b. London" {
		t.Fatalf("unexpected entries: %v", got.Entries)
	}
}

func TestResolveNewlinesAndBullets(t *testing.T) {
	got := ResolveAnswers("- first\n- second\n- third")
	if got.IsEssay || len(got.Entries) != 3 {
		t.Fatalf("unexpected resolution: %+v", got)
	}
	if got.Entries[1] != "second" {
		t.Fatalf("bullet marker not stripped: %q", got.Entries[1])
	}
}

func TestResolveEssayByLength(t *testing.T) {
	long := strings.Repeat("All of the compute happens in the provider region. ", 7)
	got := ResolveAnswers(long)
	if !got.IsEssay {
		t.Fatalf("expected essay for %d-char answer", len(long))
	}
	if len(got.Entries) != 1 {
		t.Fatalf("essay set must hold exactly one entry, got %d", len(got.Entries))
	}
}

func TestResolveEssayBySentenceShape(t *testing.T) {
	prose := "Key points: first point. Second point. Third point. Fourth point."
	got := ResolveAnswers(prose)
	if !got.IsEssay {
		t.Fatalf("expected essay for multi-sentence prose with a colon")
	}

	// Same sentence count without a colon stays a split candidate.
	noColon := "First. Second. Third. Fourth."
	if got := ResolveAnswers(noColon); got.IsEssay {
		t.Fatalf("colon-free prose misclassified as essay: %+v", got)
	}
}

func TestResolveFallsBackOnOversplit(t *testing.T) {
	got := ResolveAnswers("a, b, c, d, e, f, g, h")
	if !got.IsEssay || len(got.Entries) != 1 {
		t.Fatalf("expected mis-split fallback to single essay entry, got %+v", got)
	}
	if got.Entries[0] != "a, b, c, d, e, f, g, h" {
		t.Fatalf("fallback lost the original text: %q", got.Entries[0])
	}
}

func TestResolveReflexiveUnderMatches(t *testing.T) {
	got := ResolveAnswers("Compute Engine, Cloud Storage, BigQuery")
	if got.IsEssay {
		t.Fatalf("unexpected essay classification")
	}
	for _, entry := range got.Entries {
		if !Matches(entry, entry) {
			t.Fatalf("canonical entry %q does not match itself", entry)
		}
	}
}

func TestSplitSmartIgnoresParenthesizedCommas(t *testing.T) {
	got := SplitSmart("Object storage (blobs, media), Block storage")
	if len(got) != 2 {
		t.Fatalf("expected 2 parts, got %v", got)
	}
	if got[0] != "Object storage (blobs, media)" {
		t.Fatalf("parenthesized comma split: %q", got[0])
	}

	if got := SplitSmart(""); got != nil {
		t.Fatalf("expected nil for empty input, got %v", got)
	}
}
