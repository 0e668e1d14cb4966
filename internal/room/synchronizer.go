// Package room implements the multiplayer room synchronization state
// machine: a host-authoritative protocol advancing a shared game session
// across independent clients through snapshots of a shared mutable store.
package room

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/nthbao13/cloud-quiz/internal/domain"
	"github.com/nthbao13/cloud-quiz/internal/quizbank"
	"github.com/nthbao13/cloud-quiz/internal/store"
)

// View names the local screen a client mirrors from room state.
type View string

const (
	ViewLobby    View = "lobby"
	ViewRoom     View = "room"
	ViewQuestion View = "question"
	ViewReveal   View = "reveal"
	ViewResults  View = "results"
)

// alertRoomClosed mirrors the message shown when the room document vanishes.
const alertRoomClosed = "Phòng đã bị đóng"

// QuestionView is the presentation-ready form of the active question.
type QuestionView struct {
	Text     string                `json:"text"`
	Options  []domain.AnswerOption `json:"options"`
	Multiple bool                  `json:"multiple"`
	Selected []string              `json:"selected"`
}

// Snapshot is an immutable view-state emitted to the presentation layer on
// every local or mirrored transition.
type Snapshot struct {
	View          View              `json:"view"`
	RoomCode      string            `json:"roomCode,omitempty"`
	PlayerID      string            `json:"playerId,omitempty"`
	PlayerName    string            `json:"playerName,omitempty"`
	IsHost        bool              `json:"isHost"`
	Status        domain.RoomStatus `json:"status,omitempty"`
	Topic         string            `json:"topic,omitempty"`
	Players       []ScoreEntry      `json:"players,omitempty"`
	QuestionIndex int               `json:"questionIndex"`
	QuestionTotal int               `json:"questionTotal"`
	Question      *QuestionView     `json:"question,omitempty"`
	Answered      bool              `json:"answered"`
	LastPoints    int               `json:"lastPoints"`
	Alert         string            `json:"alert,omitempty"`
}

// Config sets the timing knobs of the protocol. The answer window drives the
// local countdown; reveal and advance delays pace the host's two-phase
// question transition.
type Config struct {
	QuestionWindow time.Duration
	RevealDelay    time.Duration
	AdvanceDelay   time.Duration
	MaxQuestions   int
}

func DefaultConfig() Config {
	return Config{
		QuestionWindow: 10 * time.Second,
		RevealDelay:    2 * time.Second,
		AdvanceDelay:   3 * time.Second,
		MaxQuestions:   50,
	}
}

// Synchronizer is one client's room state machine. All cross-client ordering
// comes from the shared store's snapshot delivery; the synchronizer holds no
// authority beyond its own player subtree, plus status transitions when it
// is the host.
type Synchronizer struct {
	store  store.Store
	bank   quizbank.Bank
	cfg    Config
	now    func() time.Time
	events chan Snapshot

	mu         sync.Mutex
	rnd        *rand.Rand
	view       View
	alert      string
	roomCode   string
	playerID   string
	playerName string
	isHost     bool
	sub        store.Subscription
	room       domain.Room

	qIndex        int
	questions     []domain.QuestionRecord
	hasAnswered   bool
	selected      []string
	displayedAt   time.Time
	lastSelection time.Time
	lastPoints    int

	// qGen invalidates countdown/advance timers across question and room
	// transitions.
	qGen      int
	countdown *time.Timer
	advance   *time.Timer
	reveal    *time.Timer
	closed    bool
}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithClock injects the time source used for elapsed-time scoring.
func WithClock(now func() time.Time) Option {
	return func(s *Synchronizer) { s.now = now }
}

// WithRand injects a deterministic source for codes, ids and shuffling.
func WithRand(rnd *rand.Rand) Option {
	return func(s *Synchronizer) { s.rnd = rnd }
}

func NewSynchronizer(st store.Store, bank quizbank.Bank, cfg Config, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		store:  st,
		bank:   bank,
		cfg:    cfg,
		now:    time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		events: make(chan Snapshot, 16),
		view:   ViewLobby,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Events yields view-state snapshots for the presentation layer. Slow
// consumers observe newer state; intermediate snapshots may be dropped.
func (s *Synchronizer) Events() <-chan Snapshot {
	return s.events
}

// CreateRoom writes a fresh room document with this player as sole host and
// subscribes to it. Codes are random; a colliding code overwrites the prior
// room, a race accepted by design.
func (s *Synchronizer) CreateRoom(ctx context.Context, playerName string) (string, error) {
	s.mu.Lock()
	if s.roomCode != "" {
		s.mu.Unlock()
		return "", domain.ErrAlreadyInRoom
	}
	code := s.generateCodeLocked()
	playerID := s.generatePlayerIDLocked()
	s.mu.Unlock()

	nowMs := s.now().UnixMilli()
	roomDoc := domain.Room{
		Code: code,
		Host: playerName,
		Players: map[string]domain.PlayerEntry{
			playerID: {Name: playerName, IsHost: true, JoinedAt: nowMs},
		},
		Settings:  domain.RoomSettings{Topic: "all"},
		Status:    domain.StatusWaiting,
		CreatedAt: nowMs,
	}
	if err := s.store.Write(ctx, roomPath(code), roomDoc); err != nil {
		return "", fmt.Errorf("create room: %w", err)
	}
	if err := s.attach(ctx, code, playerID, playerName, true); err != nil {
		return "", err
	}
	return code, nil
}

// JoinRoom appends this player to an existing waiting room. Absent rooms and
// rooms past waiting are rejected with no local state change.
func (s *Synchronizer) JoinRoom(ctx context.Context, code, playerName string) error {
	s.mu.Lock()
	if s.roomCode != "" {
		s.mu.Unlock()
		return domain.ErrAlreadyInRoom
	}
	playerID := s.generatePlayerIDLocked()
	s.mu.Unlock()

	code = strings.ToUpper(strings.TrimSpace(code))
	var roomDoc domain.Room
	ok, err := s.store.ReadOnce(ctx, roomPath(code), &roomDoc)
	if err != nil {
		return fmt.Errorf("join room %s: %w", code, err)
	}
	if !ok {
		return domain.ErrRoomNotFound
	}
	if roomDoc.Status != domain.StatusWaiting {
		return domain.ErrRoomNotWaiting
	}

	entry := domain.PlayerEntry{Name: playerName, JoinedAt: s.now().UnixMilli()}
	if err := s.store.Write(ctx, playerPath(code, playerID), entry); err != nil {
		return fmt.Errorf("join room %s: %w", code, err)
	}
	return s.attach(ctx, code, playerID, playerName, false)
}

func (s *Synchronizer) attach(ctx context.Context, code, playerID, playerName string, isHost bool) error {
	// Local state goes in before the subscription so the initial snapshot is
	// never dropped by the not-in-a-room guard.
	s.mu.Lock()
	s.roomCode = code
	s.playerID = playerID
	s.playerName = playerName
	s.isHost = isHost
	s.view = ViewRoom
	s.alert = ""
	s.mu.Unlock()

	sub, err := s.store.Subscribe(ctx, roomPath(code), s.onEvent)
	if err != nil {
		s.mu.Lock()
		s.detachLocked()
		s.mu.Unlock()
		return fmt.Errorf("subscribe room %s: %w", code, err)
	}
	s.mu.Lock()
	s.sub = sub
	s.mu.Unlock()
	return nil
}

// StartGame is host-only: it assembles the question set for the chosen topic
// (every topic for "all"), drops essay-shaped questions, shuffles, caps the
// set, and flips the room to playing in a single update.
func (s *Synchronizer) StartGame(ctx context.Context, topic string) error {
	s.mu.Lock()
	if s.roomCode == "" {
		s.mu.Unlock()
		return domain.ErrNotInRoom
	}
	if !s.isHost {
		s.mu.Unlock()
		return domain.ErrNotHost
	}
	code := s.roomCode

	var questions []domain.QuestionRecord
	if topic == "all" || topic == "" {
		questions = s.bank.All()
	} else if qs, ok := s.bank.Questions(topic); ok {
		questions = append([]domain.QuestionRecord{}, qs...)
	}
	kept := questions[:0]
	for _, q := range questions {
		if quizbank.HasLetteredOptions(q) {
			kept = append(kept, q)
		}
	}
	questions = kept
	for i := len(questions) - 1; i > 0; i-- {
		j := s.rnd.Intn(i + 1)
		questions[i], questions[j] = questions[j], questions[i]
	}
	if len(questions) > s.cfg.MaxQuestions {
		questions = questions[:s.cfg.MaxQuestions]
	}
	s.mu.Unlock()

	if len(questions) == 0 {
		return domain.ErrNoQuestions
	}

	err := s.store.Update(ctx, roomPath(code), map[string]any{
		"status":               domain.StatusPlaying,
		"questions":            questions,
		"currentQuestionIndex": 0,
		"startTime":            s.now().UnixMilli(),
		"settings/topic":       topicOrAll(topic),
	})
	if err != nil {
		return fmt.Errorf("start game: %w", err)
	}
	return nil
}

// Select toggles a local selection for the active question. Selections stay
// local until submission; the last selection time feeds the score's
// time-decay bonus.
func (s *Synchronizer) Select(option string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.view != ViewQuestion || s.hasAnswered {
		return
	}
	s.lastSelection = s.now()
	if s.multipleChoiceLocked() {
		for i, sel := range s.selected {
			if sel == option {
				s.selected = append(s.selected[:i], s.selected[i+1:]...)
				s.emitLocked()
				return
			}
		}
		s.selected = append(s.selected, option)
	} else {
		s.selected = []string{option}
	}
	s.emitLocked()
}

// Submit finalizes the player's answer for the active question. A second
// trigger, explicit or timer-driven, is a no-op.
func (s *Synchronizer) Submit(ctx context.Context) error {
	s.mu.Lock()
	gen := s.qGen
	s.mu.Unlock()
	return s.submit(ctx, gen)
}

func (s *Synchronizer) submit(ctx context.Context, gen int) error {
	s.mu.Lock()
	if s.closed || gen != s.qGen || s.view != ViewQuestion || s.hasAnswered || s.roomCode == "" {
		s.mu.Unlock()
		return nil
	}
	s.hasAnswered = true
	if s.countdown != nil {
		s.countdown.Stop()
	}

	q := s.questions[s.qIndex]
	elapsedMs := int64(s.cfg.QuestionWindow / time.Millisecond)
	if !s.lastSelection.IsZero() {
		elapsedMs = s.lastSelection.Sub(s.displayedAt).Milliseconds()
	}
	correct := false
	if len(s.selected) > 0 {
		correct = quizbank.Evaluate(s.selected, quizbank.SplitSmart(q.Answer))
	}
	points := Points(correct, elapsedMs)
	s.lastPoints = points

	code := s.roomCode
	playerID := s.playerID
	isHost := s.isHost
	qIndex := s.qIndex
	answer := domain.PerQuestionAnswer{
		Answers: append([]string{}, s.selected...),
		Correct: correct,
		Points:  points,
		TimeMs:  elapsedMs,
	}
	s.emitLocked()
	s.mu.Unlock()

	// Read-modify-write of the player's own score subtree. Not atomic, but
	// each player is the only writer of its own score.
	scorePath := playerPath(code, playerID) + "/score"
	var current int
	if _, err := s.store.ReadOnce(ctx, scorePath, &current); err != nil {
		return fmt.Errorf("read score: %w", err)
	}
	if err := s.store.Write(ctx, scorePath, current+points); err != nil {
		return fmt.Errorf("write score: %w", err)
	}
	answeredPath := playerPath(code, playerID) + "/" + domain.AnsweredKey(qIndex)
	if err := s.store.Write(ctx, answeredPath, answer); err != nil {
		return fmt.Errorf("write answer record: %w", err)
	}

	if isHost {
		s.mu.Lock()
		if !s.closed && gen == s.qGen {
			s.advance = time.AfterFunc(s.cfg.AdvanceDelay, func() {
				s.advanceQuestion(gen)
			})
		}
		s.mu.Unlock()
	}
	return nil
}

// advanceQuestion is the host's two-phase transition: question_end with the
// next index, then back to playing after the reveal pause; past the last
// question the room goes finished.
func (s *Synchronizer) advanceQuestion(gen int) {
	s.mu.Lock()
	if s.closed || gen != s.qGen || !s.isHost || s.roomCode == "" {
		s.mu.Unlock()
		return
	}
	code := s.roomCode
	next := s.qIndex + 1
	total := len(s.questions)
	s.mu.Unlock()

	ctx := context.Background()
	if next >= total {
		if err := s.store.Update(ctx, roomPath(code), map[string]any{"status": domain.StatusFinished}); err != nil {
			log.Printf("room %s: finish update: %v", code, err)
		}
		return
	}

	err := s.store.Update(ctx, roomPath(code), map[string]any{
		"status":               domain.StatusQuestionEnd,
		"currentQuestionIndex": next,
	})
	if err != nil {
		log.Printf("room %s: question_end update: %v", code, err)
		return
	}

	s.mu.Lock()
	if !s.closed && s.roomCode == code {
		s.reveal = time.AfterFunc(s.cfg.RevealDelay, func() {
			s.resumePlaying(code)
		})
	}
	s.mu.Unlock()
}

func (s *Synchronizer) resumePlaying(code string) {
	s.mu.Lock()
	stale := s.closed || s.roomCode != code || !s.isHost
	s.mu.Unlock()
	if stale {
		return
	}
	if err := s.store.Update(context.Background(), roomPath(code), map[string]any{"status": domain.StatusPlaying}); err != nil {
		log.Printf("room %s: resume update: %v", code, err)
	}
}

// PlayAgain is host-only: scores reset, per-question answer records cleared,
// room back to waiting with no question set.
func (s *Synchronizer) PlayAgain(ctx context.Context) error {
	s.mu.Lock()
	if s.roomCode == "" {
		s.mu.Unlock()
		return domain.ErrNotInRoom
	}
	if !s.isHost {
		s.mu.Unlock()
		return domain.ErrNotHost
	}
	code := s.roomCode
	maxQ := s.cfg.MaxQuestions
	s.mu.Unlock()

	var roomDoc domain.Room
	ok, err := s.store.ReadOnce(ctx, roomPath(code), &roomDoc)
	if err != nil {
		return fmt.Errorf("play again: %w", err)
	}
	if !ok {
		return domain.ErrRoomNotFound
	}

	fields := map[string]any{
		"status":               domain.StatusWaiting,
		"questions":            nil,
		"currentQuestionIndex": nil,
	}
	for playerID := range roomDoc.Players {
		fields["players/"+playerID+"/score"] = 0
		for i := 0; i < maxQ; i++ {
			fields["players/"+playerID+"/"+domain.AnsweredKey(i)] = nil
		}
	}
	if err := s.store.Update(ctx, roomPath(code), fields); err != nil {
		return fmt.Errorf("play again: %w", err)
	}
	return nil
}

// Leave tears down the local machine and removes this player's entry; a
// leaving host removes the whole room document, ending the session for
// everyone still subscribed.
func (s *Synchronizer) Leave(ctx context.Context) {
	s.mu.Lock()
	code := s.roomCode
	playerID := s.playerID
	isHost := s.isHost
	sub := s.sub
	s.detachLocked()
	s.emitLocked()
	s.mu.Unlock()

	if sub != nil {
		sub.Cancel()
	}
	if code == "" {
		return
	}
	if isHost {
		if err := s.store.Remove(ctx, roomPath(code)); err != nil {
			log.Printf("room %s: remove room: %v", code, err)
		}
		return
	}
	if err := s.store.Remove(ctx, playerPath(code, playerID)); err != nil {
		log.Printf("room %s: remove player %s: %v", code, playerID, err)
	}
}

// Close runs Leave and stops the machine for good; used on process/page
// termination.
func (s *Synchronizer) Close(ctx context.Context) {
	s.Leave(ctx)
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// onEvent mirrors each store snapshot into local view state. It is the sole
// source of truth for status transitions; there is no client-side override.
func (s *Synchronizer) onEvent(ev store.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.roomCode == "" {
		return
	}

	if !ev.Exists {
		// Room disappeared mid-session (host left). Back to the lobby; no
		// further writes against the deleted room.
		sub := s.sub
		s.detachLocked()
		s.alert = alertRoomClosed
		if sub != nil {
			go sub.Cancel()
		}
		s.emitLocked()
		return
	}

	var roomDoc domain.Room
	if err := json.Unmarshal(ev.Value, &roomDoc); err != nil {
		log.Printf("room %s: bad snapshot: %v", s.roomCode, err)
		return
	}
	s.room = roomDoc

	switch roomDoc.Status {
	case domain.StatusWaiting:
		if s.view != ViewRoom {
			s.view = ViewRoom
			s.resetQuestionLocked()
		}
	case domain.StatusPlaying:
		if s.view != ViewQuestion || s.qIndex != roomDoc.CurrentQuestionIndex {
			s.startQuestionLocked(roomDoc)
		}
	case domain.StatusQuestionEnd:
		s.view = ViewReveal
		s.qIndex = roomDoc.CurrentQuestionIndex
		if s.countdown != nil {
			s.countdown.Stop()
		}
	case domain.StatusFinished:
		s.view = ViewResults
		s.resetTimersLocked()
	}
	s.emitLocked()
}

func (s *Synchronizer) startQuestionLocked(roomDoc domain.Room) {
	s.view = ViewQuestion
	s.qIndex = roomDoc.CurrentQuestionIndex
	s.questions = roomDoc.Questions
	s.hasAnswered = false
	s.selected = nil
	s.displayedAt = s.now()
	s.lastSelection = time.Time{}
	s.lastPoints = 0
	s.qGen++
	gen := s.qGen
	if s.countdown != nil {
		s.countdown.Stop()
	}
	s.countdown = time.AfterFunc(s.cfg.QuestionWindow, func() {
		if err := s.submit(context.Background(), gen); err != nil {
			log.Printf("room %s: auto-submit q%d: %v", roomDoc.Code, roomDoc.CurrentQuestionIndex, err)
		}
	})
}

func (s *Synchronizer) resetQuestionLocked() {
	s.qGen++
	s.resetTimersLocked()
	s.questions = nil
	s.qIndex = 0
	s.hasAnswered = false
	s.selected = nil
	s.lastPoints = 0
}

func (s *Synchronizer) resetTimersLocked() {
	if s.countdown != nil {
		s.countdown.Stop()
		s.countdown = nil
	}
	if s.advance != nil {
		s.advance.Stop()
		s.advance = nil
	}
	if s.reveal != nil {
		s.reveal.Stop()
		s.reveal = nil
	}
}

func (s *Synchronizer) detachLocked() {
	s.qGen++
	s.resetTimersLocked()
	s.sub = nil
	s.roomCode = ""
	s.playerID = ""
	s.isHost = false
	s.room = domain.Room{}
	s.questions = nil
	s.hasAnswered = false
	s.selected = nil
	s.view = ViewLobby
}

func (s *Synchronizer) multipleChoiceLocked() bool {
	if s.qIndex >= len(s.questions) {
		return false
	}
	return len(quizbank.SplitSmart(s.questions[s.qIndex].Answer)) > 1
}

func (s *Synchronizer) emitLocked() {
	snap := Snapshot{
		View:          s.view,
		RoomCode:      s.roomCode,
		PlayerID:      s.playerID,
		PlayerName:    s.playerName,
		IsHost:        s.isHost,
		Status:        s.room.Status,
		Topic:         s.room.Settings.Topic,
		Players:       Scoreboard(s.room.Players),
		QuestionIndex: s.qIndex,
		QuestionTotal: len(s.questions),
		Answered:      s.hasAnswered,
		LastPoints:    s.lastPoints,
		Alert:         s.alert,
	}
	s.alert = ""
	if s.view == ViewQuestion && s.qIndex < len(s.questions) {
		q := s.questions[s.qIndex]
		options := quizbank.ExtractOptions(q.Text)
		snap.Question = &QuestionView{
			Text:     quizbank.DisplayText(q.Text, options),
			Options:  options,
			Multiple: len(quizbank.SplitSmart(q.Answer)) > 1,
			Selected: append([]string{}, s.selected...),
		}
	}
	select {
	case s.events <- snap:
	default:
		select {
		case <-s.events:
		default:
		}
		select {
		case s.events <- snap:
		default:
		}
	}
}

func (s *Synchronizer) generateCodeLocked() string {
	const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	code := make([]byte, 6)
	for i := range code {
		code[i] = alphabet[s.rnd.Intn(len(alphabet))]
	}
	return string(code)
}

func (s *Synchronizer) generatePlayerIDLocked() string {
	const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	suffix := make([]byte, 9)
	for i := range suffix {
		suffix[i] = alphabet[s.rnd.Intn(len(alphabet))]
	}
	return fmt.Sprintf("player_%d_%s", s.now().UnixMilli(), suffix)
}

func roomPath(code string) string {
	return "rooms/" + code
}

func playerPath(code, playerID string) string {
	return "rooms/" + code + "/players/" + playerID
}

func topicOrAll(topic string) string {
	if topic == "" {
		return "all"
	}
	return topic
}
