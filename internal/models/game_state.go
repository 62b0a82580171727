// internal/models/game_state.go
package models

import (
	"fmt"

	"github.com/google/uuid"
)

// Status is the lifecycle stage of a game.
type Status string

const (
	StatusSetup      Status = "setup"
	StatusActive     Status = "active"
	StatusFinalRound Status = "finalRound"
	StatusTieBreaker Status = "tieBreaker"
	StatusFinished   Status = "finished"
)

// Valid reports whether s is one of the five known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusSetup, StatusActive, StatusFinalRound, StatusTieBreaker, StatusFinished:
		return true
	}
	return false
}

// InProgress reports whether turns are being taken.
func (s Status) InProgress() bool {
	return s == StatusActive || s == StatusFinalRound || s == StatusTieBreaker
}

// WinCondition says how a game was decided.
type WinCondition string

const (
	WinThreshold  WinCondition = "10k"
	WinStars      WinCondition = "stars"
	WinManual     WinCondition = "manual"
	WinTieBreaker WinCondition = "tieBreaker"
	WinTie        WinCondition = "tie"
)

// WinnerRef identifies one of the players sharing a tied result.
type WinnerRef struct {
	PlayerID int    `json:"playerId"`
	Name     string `json:"name"`
}

// WinnerResult is either a single winner or, when IsTie is set, the list of tied players.
type WinnerResult struct {
	PlayerID     int          `json:"playerId,omitempty"`
	Name         string       `json:"name,omitempty"`
	WinCondition WinCondition `json:"winCondition"`
	IsTie        bool         `json:"isTie,omitempty"`
	Players      []WinnerRef  `json:"players,omitempty"`
}

// GameState is the root aggregate and, serialized as JSON, the persisted snapshot.
type GameState struct {
	GameID                string        `json:"gameId"`
	Players               []*Player     `json:"players"`
	Rounds                []*Round      `json:"rounds"`
	CurrentRound          int           `json:"currentRound"`
	CurrentPlayerIndex    int           `json:"currentPlayerIndex"`
	GameStatus            Status        `json:"gameStatus"`
	Winner                *WinnerResult `json:"winner"`
	Threshold10kTriggered bool          `json:"threshold10kTriggered"`
	TieBreakPlayers       []*Player     `json:"tieBreakPlayers"`
}

// NewGameState builds an empty setup-stage game with a fresh id.
func NewGameState() *GameState {
	return &GameState{
		GameID:       uuid.NewString(),
		Players:      []*Player{},
		Rounds:       []*Round{},
		CurrentRound: 1,
		GameStatus:   StatusSetup,
	}
}

// ActiveRoster returns the players currently taking turns.
func (s *GameState) ActiveRoster() []*Player {
	if s.TieBreakPlayers != nil {
		return s.TieBreakPlayers
	}
	return s.Players
}

// CurrentPlayer returns the acting player, or nil if the index is out of range.
func (s *GameState) CurrentPlayer() *Player {
	roster := s.ActiveRoster()
	if s.CurrentPlayerIndex < 0 || s.CurrentPlayerIndex >= len(roster) {
		return nil
	}
	if p := s.PlayerByID(roster[s.CurrentPlayerIndex].ID); p != nil {
		return p
	}
	return roster[s.CurrentPlayerIndex]
}

// PlayerByID looks up a player in the full roster.
func (s *GameState) PlayerByID(id int) *Player {
	for _, p := range s.Players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// RoundByNum finds the round record with the given number.
func (s *GameState) RoundByNum(num int) *Round {
	for _, r := range s.Rounds {
		if r.RoundNum == num {
			return r
		}
	}
	return nil
}

// CumulativeTotal sums every recorded score for the player, tie-break rounds included.
func (s *GameState) CumulativeTotal(playerID int) int {
	total := 0
	for _, r := range s.Rounds {
		if v, ok := r.Scores[playerID]; ok {
			total += v
		}
	}
	return total
}

// Clone returns a deep copy. Tie-break entries in the copy point at the copied players.
func (s *GameState) Clone() *GameState {
	c := *s
	c.Players = make([]*Player, len(s.Players))
	for i, p := range s.Players {
		cp := *p
		c.Players[i] = &cp
	}
	c.Rounds = make([]*Round, len(s.Rounds))
	for i, r := range s.Rounds {
		c.Rounds[i] = r.clone()
	}
	if s.Winner != nil {
		w := *s.Winner
		if s.Winner.Players != nil {
			w.Players = append([]WinnerRef(nil), s.Winner.Players...)
		}
		c.Winner = &w
	}
	if s.TieBreakPlayers != nil {
		c.TieBreakPlayers = make([]*Player, 0, len(s.TieBreakPlayers))
		for _, p := range s.TieBreakPlayers {
			if linked := c.PlayerByID(p.ID); linked != nil {
				c.TieBreakPlayers = append(c.TieBreakPlayers, linked)
			} else {
				cp := *p
				c.TieBreakPlayers = append(c.TieBreakPlayers, &cp)
			}
		}
	}
	return &c
}

// Normalize repairs the shape of a decoded snapshot: nil maps become empty and
// tie-break entries are re-linked to the canonical player records.
func (s *GameState) Normalize() {
	if s.Players == nil {
		s.Players = []*Player{}
	}
	if s.Rounds == nil {
		s.Rounds = []*Round{}
	}
	for _, r := range s.Rounds {
		r.ensureMaps()
	}
	for i, p := range s.TieBreakPlayers {
		if linked := s.PlayerByID(p.ID); linked != nil {
			s.TieBreakPlayers[i] = linked
		}
	}
}

// Validate checks the structural invariants of a game state.
func (s *GameState) Validate() error {
	if s.GameID == "" {
		return fmt.Errorf("missing gameId")
	}
	if !s.GameStatus.Valid() {
		return fmt.Errorf("unknown gameStatus %q", s.GameStatus)
	}

	seen := make(map[int]bool, len(s.Players))
	for _, p := range s.Players {
		if p == nil {
			return fmt.Errorf("nil player entry")
		}
		if seen[p.ID] {
			return fmt.Errorf("duplicate player id %d", p.ID)
		}
		seen[p.ID] = true
		if p.Stars < 0 {
			return fmt.Errorf("player %d has negative stars", p.ID)
		}
	}

	for i, r := range s.Rounds {
		if r == nil {
			return fmt.Errorf("nil round entry at index %d", i)
		}
		if r.RoundNum != i+1 {
			return fmt.Errorf("round at index %d has roundNum %d", i, r.RoundNum)
		}
	}

	if (s.GameStatus == StatusFinished) != (s.Winner != nil) {
		return fmt.Errorf("gameStatus %q inconsistent with winner", s.GameStatus)
	}
	if (s.GameStatus == StatusTieBreaker) != (s.TieBreakPlayers != nil) {
		return fmt.Errorf("gameStatus %q inconsistent with tieBreakPlayers", s.GameStatus)
	}
	for _, p := range s.TieBreakPlayers {
		if p == nil || !seen[p.ID] {
			return fmt.Errorf("tie-break player not in roster")
		}
	}

	if s.GameStatus == StatusSetup {
		return nil
	}
	if len(s.Players) < 2 {
		return fmt.Errorf("need at least 2 players once started, have %d", len(s.Players))
	}
	if s.GameStatus.InProgress() {
		if s.CurrentRound < 1 || s.CurrentRound != len(s.Rounds) {
			return fmt.Errorf("currentRound %d does not match %d rounds", s.CurrentRound, len(s.Rounds))
		}
		if s.CurrentPlayerIndex < 0 || s.CurrentPlayerIndex >= len(s.ActiveRoster()) {
			return fmt.Errorf("currentPlayerIndex %d out of range", s.CurrentPlayerIndex)
		}
	}
	return nil
}
