package room

import (
	"math"
	"sort"

	"github.com/nthbao13/cloud-quiz/internal/domain"
)

const (
	scoreBase     = 500
	scoreBonus    = 500
	scoreWindowMs = 10000
)

// Points computes the award for one submission: zero when incorrect,
// otherwise a flat base plus a linear time-decay bonus over the 10-second
// answer window, capped at 1000 for an instant correct answer.
func Points(correct bool, elapsedMs int64) int {
	if !correct {
		return 0
	}
	remaining := scoreWindowMs - elapsedMs
	if remaining < 0 {
		remaining = 0
	}
	return scoreBase + int(math.Round(scoreBonus*float64(remaining)/scoreWindowMs))
}

// ScoreEntry is one row of the live scoreboard.
type ScoreEntry struct {
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
	Score    int    `json:"score"`
	IsHost   bool   `json:"isHost"`
}

// Scoreboard orders a room's players by score descending, then by join time,
// then by name.
func Scoreboard(players map[string]domain.PlayerEntry) []ScoreEntry {
	entries := make([]ScoreEntry, 0, len(players))
	for id, p := range players {
		entries = append(entries, ScoreEntry{
			PlayerID: id,
			Name:     p.Name,
			Score:    p.Score,
			IsHost:   p.IsHost,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		pi := players[entries[i].PlayerID]
		pj := players[entries[j].PlayerID]
		if pi.JoinedAt != pj.JoinedAt {
			return pi.JoinedAt < pj.JoinedAt
		}
		return entries[i].Name < entries[j].Name
	})
	return entries
}
