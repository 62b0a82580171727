package game

import (
	"github.com/jason-s-yu/scoretracker/internal/models"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// GameEventType is an enum-like type for broadcasting game notices.
type GameEventType string

const (
	EventStateSync    GameEventType = "state_sync"    // full state after every mutation
	EventFinalRound   GameEventType = "final_round"   // a player crossed the threshold
	EventStarAwarded  GameEventType = "star_awarded"  // star granted, turn passed
	EventStarRemoved  GameEventType = "star_removed"  // star revoked
	EventTieBreaker   GameEventType = "tie_breaker"   // a tie-breaker round started
	EventScoreUpdated GameEventType = "score_updated" // historical score overwritten
	EventScoreDeleted GameEventType = "score_deleted" // historical score removed
	EventGameEnd      GameEventType = "game_end"      // winner decided
	EventNewGame      GameEventType = "new_game"      // table reset to setup
)

// EventPlayer identifies a player inside an event.
type EventPlayer struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// GameEvent is what the presentation layer receives.
type GameEvent struct {
	Type    GameEventType          `json:"type"`
	Player  *EventPlayer           `json:"player,omitempty"`
	Message string                 `json:"message,omitempty"`
	Payload map[string]interface{} `json:"payload,omitempty"`
	State   *models.GameState      `json:"state,omitempty"`
}

// OnGameEndFunc receives a copy of the state once a game is finished.
type OnGameEndFunc func(state *models.GameState)

var printer = message.NewPrinter(language.English)

// formatPoints renders a score with thousands separators, e.g. 10,000.
func formatPoints(n int) string {
	return printer.Sprintf("%d", n)
}

func eventPlayer(p *models.Player) *EventPlayer {
	if p == nil {
		return nil
	}
	return &EventPlayer{ID: p.ID, Name: p.Name}
}
