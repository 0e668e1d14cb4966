// Package session drives the single-player flow: linear progression through
// an optionally shuffled question list, collecting results and a wrong-answer
// retry queue.
package session

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/nthbao13/cloud-quiz/internal/domain"
	"github.com/nthbao13/cloud-quiz/internal/quizbank"
)

// Grader evaluates essay submissions against the question's reference text.
type Grader interface {
	GradeEssay(ctx context.Context, q domain.QuestionRecord, answer string) (positive bool, feedback string, err error)
}

// Explainer produces explanation text for a question. Prefetch starts a
// background fetch; Explain returns the best available text, falling back to
// a fixed message when the external service fails.
type Explainer interface {
	Prefetch(ctx context.Context, q domain.QuestionRecord)
	Explain(ctx context.Context, q domain.QuestionRecord) string
}

// AllQuizzes selects the concatenation of every quiz in the bank.
const AllQuizzes = "all"

type phase int

const (
	presenting phase = iota
	submitted
)

// Rendered is the presentation-ready view of the current question.
type Rendered struct {
	Title    string                `json:"title"`
	Index    int                   `json:"index"`
	Total    int                   `json:"total"`
	Text     string                `json:"text"`
	Options  []domain.AnswerOption `json:"options"`
	Multiple bool                  `json:"multiple"`
	IsEssay  bool                  `json:"isEssay"`
}

// Results aggregates a finished session.
type Results struct {
	Correct    int  `json:"correct"`
	Incorrect  int  `json:"incorrect"`
	Percentage int  `json:"percentage"`
	CanRetry   bool `json:"canRetry"`
}

// Controller is the single-player session state machine. Not safe for
// concurrent use; one controller serves one player.
type Controller struct {
	bank      quizbank.Bank
	grader    Grader
	explainer Explainer
	rnd       *rand.Rand

	title      string
	quiz       []domain.QuestionRecord
	index      int
	answers    []domain.AnswerRecord
	wrongQueue []domain.QuestionRecord
	retryMode  bool
	finished   bool
	phase      phase
	active     bool
}

// Option configures a Controller.
type Option func(*Controller)

// WithRand injects a deterministic shuffle source.
func WithRand(rnd *rand.Rand) Option {
	return func(c *Controller) { c.rnd = rnd }
}

// WithExplainer wires the optional explanation collaborator.
func WithExplainer(e Explainer) Option {
	return func(c *Controller) { c.explainer = e }
}

func NewController(bank quizbank.Bank, grader Grader, opts ...Option) *Controller {
	c := &Controller{
		bank:   bank,
		grader: grader,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start resets the session over one named quiz or, for AllQuizzes, the
// concatenation of every quiz. With shuffle the working list is Fisher-Yates
// shuffled. Prior answers and the retry queue are discarded.
func (c *Controller) Start(ctx context.Context, quizKey string, shuffle bool) error {
	var questions []domain.QuestionRecord
	if quizKey == AllQuizzes {
		questions = c.bank.All()
		c.title = "Tất cả Quiz"
	} else {
		qs, ok := c.bank.Questions(quizKey)
		if !ok {
			return domain.ErrQuizNotFound
		}
		questions = append([]domain.QuestionRecord{}, qs...)
		c.title = quizKey
	}
	if len(questions) == 0 {
		return domain.ErrNoQuestions
	}

	if shuffle {
		c.shuffle(questions)
	}

	c.quiz = questions
	c.index = 0
	c.answers = nil
	c.wrongQueue = nil
	c.retryMode = false
	c.finished = false
	c.phase = presenting
	c.active = true
	c.prefetchCurrent(ctx)
	return nil
}

// Current returns the question under presentation.
func (c *Controller) Current() (domain.QuestionRecord, bool) {
	if !c.active || c.finished || c.index >= len(c.quiz) {
		return domain.QuestionRecord{}, false
	}
	return c.quiz[c.index], true
}

// Render derives the presentation view of the current question.
func (c *Controller) Render() (Rendered, bool) {
	q, ok := c.Current()
	if !ok {
		return Rendered{}, false
	}
	options := quizbank.ExtractOptions(q.Text)
	resolved := quizbank.ResolveAnswers(q.Answer)
	isEssay := quizbank.IsEssay(q)
	return Rendered{
		Title:    c.title,
		Index:    c.index + 1,
		Total:    len(c.quiz),
		Text:     quizbank.DisplayText(q.Text, options),
		Options:  options,
		Multiple: !isEssay && len(resolved.Entries) > 1,
		IsEssay:  isEssay,
	}, true
}

// Submit records a choice-question selection. The verdict applies the full
// bijective coverage check against the resolved correct-answer set; wrong
// answers join the retry queue. The returned explanation never blocks on the
// external service beyond its own fallback handling.
func (c *Controller) Submit(ctx context.Context, selection []string) (domain.AnswerRecord, string, error) {
	q, ok := c.Current()
	if !ok {
		return domain.AnswerRecord{}, "", domain.ErrSessionFinished
	}
	if c.phase == submitted {
		return c.answers[len(c.answers)-1], "", nil
	}
	if len(selection) == 0 {
		return domain.AnswerRecord{}, "", domain.ErrNoSelection
	}

	resolved := quizbank.ResolveAnswers(q.Answer)
	correct := quizbank.Evaluate(selection, resolved.Entries)

	record := domain.AnswerRecord{
		Question: q,
		Selected: append([]string{}, selection...),
		Correct:  correct,
	}
	c.record(record)
	return record, c.explanation(ctx, q), nil
}

// SubmitEssay defers the verdict to the grading collaborator. A failed or
// empty grading call records the answer as not positive with the grader's
// fallback feedback; progression stays available.
func (c *Controller) SubmitEssay(ctx context.Context, answer string) (domain.AnswerRecord, string, error) {
	q, ok := c.Current()
	if !ok {
		return domain.AnswerRecord{}, "", domain.ErrSessionFinished
	}
	if c.phase == submitted {
		return c.answers[len(c.answers)-1], "", nil
	}
	if answer == "" {
		return domain.AnswerRecord{}, "", domain.ErrNoSelection
	}

	var positive bool
	var feedback string
	if c.grader != nil {
		var err error
		positive, feedback, err = c.grader.GradeEssay(ctx, q, answer)
		if err != nil {
			positive = false
		}
	}

	record := domain.AnswerRecord{
		Question: q,
		Selected: []string{answer},
		Correct:  positive,
		IsEssay:  true,
	}
	c.record(record)
	return record, feedback, nil
}

func (c *Controller) record(record domain.AnswerRecord) {
	c.answers = append(c.answers, record)
	if !record.Correct {
		c.wrongQueue = append(c.wrongQueue, record.Question)
	}
	c.phase = submitted
}

// Advance moves to the next question, finishing the session past the last
// one. It reports whether a next question is being presented.
func (c *Controller) Advance(ctx context.Context) bool {
	if !c.active || c.finished {
		return false
	}
	c.index++
	c.phase = presenting
	if c.index >= len(c.quiz) {
		c.finished = true
		return false
	}
	c.prefetchCurrent(ctx)
	return true
}

// Finished reports whether the session ran past its last question.
func (c *Controller) Finished() bool {
	return c.finished
}

// Results computes the aggregate score of a session.
func (c *Controller) Results() Results {
	correct := 0
	for _, a := range c.answers {
		if a.Correct {
			correct++
		}
	}
	total := len(c.answers)
	pct := 0
	if total > 0 {
		pct = int(math.Round(float64(correct) / float64(total) * 100))
	}
	return Results{
		Correct:    correct,
		Incorrect:  total - correct,
		Percentage: pct,
		CanRetry:   len(c.wrongQueue) > 0,
	}
}

// RetryWrong starts a new session scoped to the questions answered wrong,
// clearing the queue. With nothing queued it reports ErrNothingToRetry.
func (c *Controller) RetryWrong(ctx context.Context) error {
	if len(c.wrongQueue) == 0 {
		return domain.ErrNothingToRetry
	}
	c.quiz = c.wrongQueue
	c.wrongQueue = nil
	c.index = 0
	c.answers = nil
	c.retryMode = true
	c.finished = false
	c.phase = presenting
	c.title = "Làm lại câu sai"
	c.prefetchCurrent(ctx)
	return nil
}

// RetryMode reports whether the session replays previously wrong questions.
func (c *Controller) RetryMode() bool {
	return c.retryMode
}

func (c *Controller) explanation(ctx context.Context, q domain.QuestionRecord) string {
	if q.Explain != "" {
		return q.Explain
	}
	if c.explainer == nil {
		return ""
	}
	return c.explainer.Explain(ctx, q)
}

// prefetchCurrent optimistically fetches the explanation for the question
// being presented. The explainer keys fetches by question fingerprint, so a
// prefetch is only ever consulted for the question that started it.
func (c *Controller) prefetchCurrent(ctx context.Context) {
	if c.explainer == nil {
		return
	}
	if q, ok := c.Current(); ok && q.Explain == "" {
		c.explainer.Prefetch(ctx, q)
	}
}

func (c *Controller) shuffle(questions []domain.QuestionRecord) {
	for i := len(questions) - 1; i > 0; i-- {
		j := c.rnd.Intn(i + 1)
		questions[i], questions[j] = questions[j], questions[i]
	}
}
