package explain

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/nthbao13/cloud-quiz/internal/domain"
)

// Fallback texts shown when the external service cannot produce a result.
// Progression through the quiz never blocks on these.
const (
	fallbackUnavailable = "Không thể tải giải thích từ AI. Vui lòng kiểm tra API key hoặc kết nối mạng."
	fallbackEmpty       = "Không nhận được giải thích từ AI. Vui lòng thử lại."
	fallbackNone        = "Không có giải thích cho câu hỏi này."
	fallbackGrading     = "Không thể đánh giá câu trả lời."
)

// fingerprintLen bounds the cache key taken from the question text.
const fingerprintLen = 100

// Generator produces text from a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Fingerprint derives the cache key for a question: a bounded prefix of its
// text, trimmed.
func Fingerprint(q domain.QuestionRecord) string {
	text := q.Text
	if runes := []rune(text); len(runes) > fingerprintLen {
		text = string(runes[:fingerprintLen])
	}
	return strings.TrimSpace(text)
}

// Explainer produces per-question explanation text. Fetches for the same
// question are deduplicated; successful results go into the cache, so a
// prefetch started on question display is reused by the Explain call after
// submission.
type Explainer struct {
	gen   Generator
	cache Cache
	group singleflight.Group
}

func NewExplainer(gen Generator, cache Cache) *Explainer {
	if cache == nil {
		cache = NewMemoryCache()
	}
	return &Explainer{gen: gen, cache: cache}
}

// Prefetch starts fetching the explanation in the background. Questions that
// carry their own explanation text, or ones already cached, are skipped.
func (e *Explainer) Prefetch(ctx context.Context, q domain.QuestionRecord) {
	if q.Explain != "" {
		return
	}
	key := Fingerprint(q)
	if _, ok := e.cache.Get(key); ok {
		return
	}
	go func() {
		if _, err := e.fetch(context.Background(), q, key); err != nil {
			log.Printf("explain: prefetch %q: %v", key, err)
		}
	}()
}

// Explain returns the best available explanation for q: its own explanation
// text, the cached or in-flight fetched one, or a fallback message. It never
// returns an error; a missing explanation must not stop the session.
func (e *Explainer) Explain(ctx context.Context, q domain.QuestionRecord) string {
	if q.Explain != "" {
		return q.Explain
	}
	key := Fingerprint(q)
	if text, ok := e.cache.Get(key); ok {
		return text
	}
	text, err := e.fetch(ctx, q, key)
	switch {
	case errors.Is(err, domain.ErrEmptyResult):
		return fallbackEmpty
	case err != nil:
		return fallbackUnavailable
	case text == "":
		return fallbackNone
	}
	return text
}

func (e *Explainer) fetch(ctx context.Context, q domain.QuestionRecord, key string) (string, error) {
	v, err, _ := e.group.Do(key, func() (any, error) {
		text, err := e.gen.Generate(ctx, explanationPrompt(q))
		if err != nil {
			return "", err
		}
		e.cache.Set(key, text)
		return text, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func explanationPrompt(q domain.QuestionRecord) string {
	return "Hãy giải thích câu trả lời cho câu hỏi sau bằng tiếng Việt. " +
		"Giải thích ngắn gọn, súc tích và dễ hiểu.\n\n" +
		"Câu hỏi: " + q.Text + "\n\nĐáp án đúng: " + q.Answer
}

// Grader wraps a Generator into the essay grading collaborator used by the
// single-player session.
type Grader struct {
	gen Generator
}

func NewGrader(gen Generator) *Grader {
	return &Grader{gen: gen}
}

// GradeEssay asks the model to grade a free-text answer against the
// question's reference answer. The verdict is positive when the reply rates
// the answer excellent or good.
func (g *Grader) GradeEssay(ctx context.Context, q domain.QuestionRecord, answer string) (bool, string, error) {
	reply, err := g.gen.Generate(ctx, gradingPrompt(q, answer))
	if err != nil {
		return false, fallbackGrading, err
	}
	lower := strings.ToLower(reply)
	positive := strings.Contains(lower, "xuất sắc") || strings.Contains(lower, "tốt")
	return positive, reply, nil
}

func gradingPrompt(q domain.QuestionRecord, answer string) string {
	return fmt.Sprintf(`Bạn là một giáo viên đang chấm bài tự luận về Cloud Computing.

Câu hỏi: %s

Đáp án mẫu (tham khảo):
%s

Câu trả lời của học sinh:
%s

Hãy đánh giá câu trả lời của học sinh theo các tiêu chí:
1. Độ chính xác (so với đáp án mẫu)
2. Tính đầy đủ
3. Cách diễn đạt

Trả lời theo format:
**Đánh giá: [Xuất sắc/Tốt/Khá/Cần cải thiện]**

**Nhận xét:**
- [Điểm mạnh]
- [Điểm cần cải thiện nếu có]

**Gợi ý:**
[Thông tin bổ sung hoặc góc nhìn khác]`, q.Text, q.Answer, answer)
}
