package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// QuestionRecord is one quiz item as parsed from the tabular source.
// Immutable once parsed; sessions and rooms reference it, never rewrite it.
type QuestionRecord struct {
	Quiz    string `json:"quiz"`
	Text    string `json:"question"`
	Answer  string `json:"answer"`
	Explain string `json:"explain,omitempty"`
}

// AnswerOption is a selectable option derived from a question's raw text.
// Regenerated per render, never persisted.
type AnswerOption struct {
	Letter  string `json:"letter"`
	Text    string `json:"text"`
	Display string `json:"display"`
}

// CorrectAnswers is the canonical set of acceptable answer strings for a
// question, or a single verbatim reference text when the answer field is
// essay-shaped prose.
type CorrectAnswers struct {
	Entries []string `json:"entries"`
	IsEssay bool     `json:"isEssay"`
}

// AnswerRecord captures one submission inside a single-player session.
type AnswerRecord struct {
	Question QuestionRecord `json:"question"`
	Selected []string       `json:"selected"`
	Correct  bool           `json:"correct"`
	IsEssay  bool           `json:"isEssay"`
}

// RoomStatus is the multiplayer room lifecycle state kept in the shared store.
type RoomStatus string

const (
	StatusWaiting     RoomStatus = "waiting"
	StatusPlaying     RoomStatus = "playing"
	StatusQuestionEnd RoomStatus = "question_end"
	StatusFinished    RoomStatus = "finished"
)

// RoomSettings holds host-chosen options for the next game.
type RoomSettings struct {
	Topic string `json:"topic"`
}

// PerQuestionAnswer records one player's submission for one question index.
type PerQuestionAnswer struct {
	Answers []string `json:"answers"`
	Correct bool     `json:"isCorrect"`
	Points  int      `json:"points"`
	TimeMs  int64    `json:"time"`
}

// PlayerEntry is a single player's node inside a room document. Each player
// writes only its own entry; IsHost and JoinedAt are write-once at join time.
//
// On the wire the per-question answers are flattened into sibling keys
// "answeredQuestion<i>" next to the scalar fields, so entries round-trip
// against documents written by other clients of the same store.
type PlayerEntry struct {
	Name     string
	Score    int
	IsHost   bool
	JoinedAt int64
	Answered map[int]PerQuestionAnswer
}

const answeredKeyPrefix = "answeredQuestion"

// AnsweredKey is the wire field name for the per-question answer at index i.
func AnsweredKey(i int) string {
	return answeredKeyPrefix + strconv.Itoa(i)
}

func (p PlayerEntry) MarshalJSON() ([]byte, error) {
	doc := map[string]any{
		"name":     p.Name,
		"score":    p.Score,
		"isHost":   p.IsHost,
		"joinedAt": p.JoinedAt,
	}
	for idx, ans := range p.Answered {
		doc[AnsweredKey(idx)] = ans
	}
	return json.Marshal(doc)
}

func (p *PlayerEntry) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	scan := func(key string, dest any) error {
		v, ok := raw[key]
		if !ok {
			return nil
		}
		return json.Unmarshal(v, dest)
	}
	if err := scan("name", &p.Name); err != nil {
		return fmt.Errorf("player name: %w", err)
	}
	if err := scan("score", &p.Score); err != nil {
		return fmt.Errorf("player score: %w", err)
	}
	if err := scan("isHost", &p.IsHost); err != nil {
		return fmt.Errorf("player isHost: %w", err)
	}
	if err := scan("joinedAt", &p.JoinedAt); err != nil {
		return fmt.Errorf("player joinedAt: %w", err)
	}
	for key, v := range raw {
		if !strings.HasPrefix(key, answeredKeyPrefix) {
			continue
		}
		idx, err := strconv.Atoi(strings.TrimPrefix(key, answeredKeyPrefix))
		if err != nil {
			continue
		}
		var ans PerQuestionAnswer
		if err := json.Unmarshal(v, &ans); err != nil {
			return fmt.Errorf("player %s: %w", key, err)
		}
		if p.Answered == nil {
			p.Answered = make(map[int]PerQuestionAnswer)
		}
		p.Answered[idx] = ans
	}
	return nil
}

// Room is the authoritative multiplayer session document, keyed by Code in
// the shared store. The host owns status/questions/index transitions; each
// player owns its own Players subtree.
type Room struct {
	Code                 string                 `json:"code"`
	Host                 string                 `json:"host"`
	Players              map[string]PlayerEntry `json:"players"`
	Settings             RoomSettings           `json:"settings"`
	Status               RoomStatus             `json:"status"`
	Questions            []QuestionRecord       `json:"questions,omitempty"`
	CurrentQuestionIndex int                    `json:"currentQuestionIndex"`
	StartTime            int64                  `json:"startTime,omitempty"`
	CreatedAt            int64                  `json:"createdAt"`
}
