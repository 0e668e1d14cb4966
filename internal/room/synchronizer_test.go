package room

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/nthbao13/cloud-quiz/internal/domain"
	"github.com/nthbao13/cloud-quiz/internal/infra/memory"
	"github.com/nthbao13/cloud-quiz/internal/quizbank"
)

const roomTestSource = "Name,Question,Answer,Explain\n" +
	"Quiz 1: Cloud Basics,,,\n" +
	",\"What does S3 stand for?\na. Simple Storage Service\nb. Secure Storage System\",a,\n" +
	",\"Minimum availability zones per region?\na. 1\nb. 2\nc. 3\",c,\n" +
	",Describe the shared responsibility model in your own words.,\"The provider secures the infrastructure. The customer secures workloads: data, identities, and configuration. Both sides share the duty of keeping the platform safe and audited over time.\",\n"

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.UnixMilli(1_700_000_000_000)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func testConfig() Config {
	return Config{
		QuestionWindow: 5 * time.Second,
		RevealDelay:    10 * time.Millisecond,
		AdvanceDelay:   20 * time.Millisecond,
		MaxQuestions:   50,
	}
}

func newTestSynchronizer(t *testing.T, st *memory.Store, clock *fakeClock, seed int64) *Synchronizer {
	t.Helper()
	bank := quizbank.ParseBank(roomTestSource)
	if bank.Len() != 3 {
		t.Fatalf("fixture bank has %d questions", bank.Len())
	}
	s := NewSynchronizer(st, bank, testConfig(),
		WithClock(clock.Now),
		WithRand(rand.New(rand.NewSource(seed))))
	t.Cleanup(func() { s.Close(context.Background()) })
	return s
}

func waitSnapshot(t *testing.T, s *Synchronizer, what string, pred func(Snapshot) bool) Snapshot {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case snap := <-s.Events():
			if pred(snap) {
				return snap
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", what)
		}
	}
}

func setupGame(t *testing.T, st *memory.Store, clock *fakeClock) (host, peer *Synchronizer, code string) {
	t.Helper()
	ctx := context.Background()
	host = newTestSynchronizer(t, st, clock, 1)
	peer = newTestSynchronizer(t, st, clock, 2)

	code, err := host.CreateRoom(ctx, "An")
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	if len(code) != 6 {
		t.Fatalf("room code %q, want 6 characters", code)
	}
	if err := peer.JoinRoom(ctx, code, "Binh"); err != nil {
		t.Fatalf("join room: %v", err)
	}
	waitSnapshot(t, host, "host sees both players", func(s Snapshot) bool {
		return s.View == ViewRoom && len(s.Players) == 2
	})
	waitSnapshot(t, peer, "peer sees both players", func(s Snapshot) bool {
		return s.View == ViewRoom && len(s.Players) == 2
	})
	return host, peer, code
}

func TestCreateJoinAndStart(t *testing.T) {
	st := memory.NewStore()
	clock := newFakeClock()
	host, peer, _ := setupGame(t, st, clock)

	if err := host.StartGame(context.Background(), "all"); err != nil {
		t.Fatalf("start game: %v", err)
	}

	for _, s := range []*Synchronizer{host, peer} {
		snap := waitSnapshot(t, s, "first question", func(sn Snapshot) bool {
			return sn.View == ViewQuestion
		})
		if snap.QuestionIndex != 0 {
			t.Fatalf("question index = %d, want 0", snap.QuestionIndex)
		}
		// The essay question carries no lettered options and must be dropped.
		if snap.QuestionTotal != 2 {
			t.Fatalf("question total = %d, want 2", snap.QuestionTotal)
		}
		if snap.Question == nil || len(snap.Question.Options) == 0 {
			t.Fatalf("question snapshot missing options: %+v", snap.Question)
		}
	}
}

func TestStartGameRequiresHost(t *testing.T) {
	st := memory.NewStore()
	clock := newFakeClock()
	_, peer, _ := setupGame(t, st, clock)

	if err := peer.StartGame(context.Background(), "all"); !errors.Is(err, domain.ErrNotHost) {
		t.Fatalf("peer start = %v, want ErrNotHost", err)
	}
}

func TestJoinRejections(t *testing.T) {
	ctx := context.Background()
	st := memory.NewStore()
	clock := newFakeClock()
	host := newTestSynchronizer(t, st, clock, 1)

	code, err := host.CreateRoom(ctx, "An")
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	if _, err := host.CreateRoom(ctx, "An"); !errors.Is(err, domain.ErrAlreadyInRoom) {
		t.Fatalf("second create = %v, want ErrAlreadyInRoom", err)
	}

	stranger := newTestSynchronizer(t, st, clock, 2)
	if err := stranger.JoinRoom(ctx, "ZZZZZZ", "Chi"); !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("join absent room = %v, want ErrRoomNotFound", err)
	}

	if err := host.StartGame(ctx, "all"); err != nil {
		t.Fatalf("start game: %v", err)
	}
	waitSnapshot(t, host, "game start", func(s Snapshot) bool { return s.View == ViewQuestion })
	if err := stranger.JoinRoom(ctx, code, "Chi"); !errors.Is(err, domain.ErrRoomNotWaiting) {
		t.Fatalf("join running room = %v, want ErrRoomNotWaiting", err)
	}
}

func TestTwoPlayerScoring(t *testing.T) {
	ctx := context.Background()
	st := memory.NewStore()
	clock := newFakeClock()
	host, peer, code := setupGame(t, st, clock)

	if err := host.StartGame(ctx, "all"); err != nil {
		t.Fatalf("start game: %v", err)
	}
	hostQ := waitSnapshot(t, host, "host question", func(s Snapshot) bool { return s.View == ViewQuestion })
	waitSnapshot(t, peer, "peer question", func(s Snapshot) bool { return s.View == ViewQuestion })

	answers := map[string]string{
		"What does S3 stand for?":                "a",
		"Minimum availability zones per region?": "c",
	}
	correctFirst, ok := answers[hostQ.Question.Text]
	if !ok {
		t.Fatalf("unexpected question %q", hostQ.Question.Text)
	}

	// Two seconds into the window a correct answer is worth 900 points.
	clock.Advance(2 * time.Second)
	peer.Select(correctFirst)
	if err := peer.Submit(ctx); err != nil {
		t.Fatalf("peer submit: %v", err)
	}
	snap := waitSnapshot(t, peer, "peer submission", func(s Snapshot) bool { return s.Answered })
	if snap.LastPoints != 900 {
		t.Fatalf("peer points = %d, want 900", snap.LastPoints)
	}

	host.Select("z")
	if err := host.Submit(ctx); err != nil {
		t.Fatalf("host submit: %v", err)
	}
	snap = waitSnapshot(t, host, "host submission", func(s Snapshot) bool { return s.Answered })
	if snap.LastPoints != 0 {
		t.Fatalf("host points = %d, want 0", snap.LastPoints)
	}

	var roomDoc domain.Room
	if ok, err := st.ReadOnce(ctx, "rooms/"+code, &roomDoc); err != nil || !ok {
		t.Fatalf("read room: ok=%v err=%v", ok, err)
	}
	peerEntry := roomDoc.Players[snapPlayerID(t, peer)]
	hostEntry := roomDoc.Players[snapPlayerID(t, host)]
	if peerEntry.Score != 900 {
		t.Fatalf("peer stored score = %d, want 900", peerEntry.Score)
	}
	if hostEntry.Score != 0 {
		t.Fatalf("host stored score = %d, want 0", hostEntry.Score)
	}
	rec, ok := peerEntry.Answered[0]
	if !ok {
		t.Fatalf("peer answer record for question 0 missing")
	}
	if !rec.Correct || rec.Points != 900 || rec.TimeMs != 2000 {
		t.Fatalf("peer answer record = %+v", rec)
	}
}

func snapPlayerID(t *testing.T, s *Synchronizer) string {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.playerID == "" {
		t.Fatalf("synchronizer has no player id")
	}
	return s.playerID
}

func TestQuestionTransitionOrdering(t *testing.T) {
	ctx := context.Background()
	st := memory.NewStore()
	clock := newFakeClock()
	host, peer, _ := setupGame(t, st, clock)

	if err := host.StartGame(ctx, "all"); err != nil {
		t.Fatalf("start game: %v", err)
	}
	waitSnapshot(t, host, "question 0", func(s Snapshot) bool { return s.View == ViewQuestion })
	waitSnapshot(t, peer, "question 0", func(s Snapshot) bool { return s.View == ViewQuestion })

	peer.Select("a")
	if err := peer.Submit(ctx); err != nil {
		t.Fatalf("peer submit: %v", err)
	}
	host.Select("a")
	if err := host.Submit(ctx); err != nil {
		t.Fatalf("host submit: %v", err)
	}

	// Reveal interlude first, then the next question, never a direct jump.
	waitSnapshot(t, peer, "reveal after question 0", func(s Snapshot) bool { return s.View == ViewReveal })
	snap := waitSnapshot(t, peer, "question 1", func(s Snapshot) bool { return s.View == ViewQuestion })
	if snap.QuestionIndex != 1 {
		t.Fatalf("question index = %d, want 1", snap.QuestionIndex)
	}
	if snap.Answered {
		t.Fatalf("answered flag not reset for question 1")
	}
	waitSnapshot(t, host, "host question 1", func(s Snapshot) bool {
		return s.View == ViewQuestion && s.QuestionIndex == 1
	})

	peer.Select("a")
	if err := peer.Submit(ctx); err != nil {
		t.Fatalf("peer submit q1: %v", err)
	}
	host.Select("a")
	if err := host.Submit(ctx); err != nil {
		t.Fatalf("host submit q1: %v", err)
	}

	waitSnapshot(t, host, "results", func(s Snapshot) bool { return s.View == ViewResults })
	waitSnapshot(t, peer, "results", func(s Snapshot) bool { return s.View == ViewResults })
}

func TestSubmitIsIdempotent(t *testing.T) {
	ctx := context.Background()
	st := memory.NewStore()
	clock := newFakeClock()
	host, peer, code := setupGame(t, st, clock)

	if err := host.StartGame(ctx, "all"); err != nil {
		t.Fatalf("start game: %v", err)
	}
	q := waitSnapshot(t, peer, "question", func(s Snapshot) bool { return s.View == ViewQuestion })
	correct := map[string]string{
		"What does S3 stand for?":                "a",
		"Minimum availability zones per region?": "c",
	}[q.Question.Text]

	peer.Select(correct)
	if err := peer.Submit(ctx); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := peer.Submit(ctx); err != nil {
		t.Fatalf("repeat submit: %v", err)
	}

	var roomDoc domain.Room
	if _, err := st.ReadOnce(ctx, "rooms/"+code, &roomDoc); err != nil {
		t.Fatalf("read room: %v", err)
	}
	if got := roomDoc.Players[snapPlayerID(t, peer)].Score; got != 1000 {
		t.Fatalf("score after double submit = %d, want 1000", got)
	}
}

func TestAutoSubmitOnWindowExpiry(t *testing.T) {
	ctx := context.Background()
	st := memory.NewStore()
	clock := newFakeClock()
	host := newTestSynchronizer(t, st, clock, 1)
	host.cfg.QuestionWindow = 30 * time.Millisecond

	if _, err := host.CreateRoom(ctx, "An"); err != nil {
		t.Fatalf("create room: %v", err)
	}
	if err := host.StartGame(ctx, "all"); err != nil {
		t.Fatalf("start game: %v", err)
	}
	waitSnapshot(t, host, "question", func(s Snapshot) bool { return s.View == ViewQuestion })

	snap := waitSnapshot(t, host, "auto submission", func(s Snapshot) bool { return s.Answered })
	if snap.LastPoints != 0 {
		t.Fatalf("auto-submit points = %d, want 0", snap.LastPoints)
	}
}

func TestHostLeaveClosesRoom(t *testing.T) {
	ctx := context.Background()
	st := memory.NewStore()
	clock := newFakeClock()
	host, peer, code := setupGame(t, st, clock)

	host.Leave(ctx)

	snap := waitSnapshot(t, peer, "peer back in lobby", func(s Snapshot) bool { return s.View == ViewLobby })
	if snap.Alert != alertRoomClosed {
		t.Fatalf("alert = %q, want %q", snap.Alert, alertRoomClosed)
	}
	if ok, err := st.ReadOnce(ctx, "rooms/"+code, nil); err != nil || ok {
		t.Fatalf("room still present after host leave: ok=%v err=%v", ok, err)
	}
}

func TestPlayerLeaveKeepsRoom(t *testing.T) {
	ctx := context.Background()
	st := memory.NewStore()
	clock := newFakeClock()
	host, peer, code := setupGame(t, st, clock)

	peer.Leave(ctx)

	waitSnapshot(t, host, "host sees departure", func(s Snapshot) bool {
		return s.View == ViewRoom && len(s.Players) == 1
	})
	var roomDoc domain.Room
	if ok, err := st.ReadOnce(ctx, "rooms/"+code, &roomDoc); err != nil || !ok {
		t.Fatalf("room gone after player leave: ok=%v err=%v", ok, err)
	}
	if len(roomDoc.Players) != 1 {
		t.Fatalf("players after leave = %d, want 1", len(roomDoc.Players))
	}
}

func TestPlayAgainResetsScoresAndAnswers(t *testing.T) {
	ctx := context.Background()
	st := memory.NewStore()
	clock := newFakeClock()
	host, peer, code := setupGame(t, st, clock)

	if err := host.StartGame(ctx, "all"); err != nil {
		t.Fatalf("start game: %v", err)
	}
	for qi := 0; qi < 2; qi++ {
		waitSnapshot(t, peer, "question", func(s Snapshot) bool {
			return s.View == ViewQuestion && s.QuestionIndex == qi && !s.Answered
		})
		waitSnapshot(t, host, "question", func(s Snapshot) bool {
			return s.View == ViewQuestion && s.QuestionIndex == qi && !s.Answered
		})
		peer.Select("a")
		if err := peer.Submit(ctx); err != nil {
			t.Fatalf("peer submit: %v", err)
		}
		host.Select("a")
		if err := host.Submit(ctx); err != nil {
			t.Fatalf("host submit: %v", err)
		}
	}
	waitSnapshot(t, host, "results", func(s Snapshot) bool { return s.View == ViewResults })
	waitSnapshot(t, peer, "results", func(s Snapshot) bool { return s.View == ViewResults })

	if err := peer.PlayAgain(ctx); !errors.Is(err, domain.ErrNotHost) {
		t.Fatalf("peer play again = %v, want ErrNotHost", err)
	}
	if err := host.PlayAgain(ctx); err != nil {
		t.Fatalf("play again: %v", err)
	}

	waitSnapshot(t, host, "back to room", func(s Snapshot) bool { return s.View == ViewRoom })
	waitSnapshot(t, peer, "back to room", func(s Snapshot) bool { return s.View == ViewRoom })

	var roomDoc domain.Room
	if _, err := st.ReadOnce(ctx, "rooms/"+code, &roomDoc); err != nil {
		t.Fatalf("read room: %v", err)
	}
	if roomDoc.Status != domain.StatusWaiting {
		t.Fatalf("status after play again = %q, want waiting", roomDoc.Status)
	}
	if len(roomDoc.Questions) != 0 {
		t.Fatalf("questions not cleared: %d left", len(roomDoc.Questions))
	}
	for id, p := range roomDoc.Players {
		if p.Score != 0 {
			t.Fatalf("player %s score = %d after play again", id, p.Score)
		}
		if len(p.Answered) != 0 {
			t.Fatalf("player %s keeps %d answer records", id, len(p.Answered))
		}
	}
}

func TestPointsFormula(t *testing.T) {
	cases := []struct {
		correct   bool
		elapsedMs int64
		want      int
	}{
		{true, 0, 1000},
		{true, 2000, 900},
		{true, 5000, 750},
		{true, 10000, 500},
		{true, 15000, 500},
		{false, 0, 0},
	}
	for _, c := range cases {
		if got := Points(c.correct, c.elapsedMs); got != c.want {
			t.Errorf("Points(%v, %d) = %d, want %d", c.correct, c.elapsedMs, got, c.want)
		}
	}
}
