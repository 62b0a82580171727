// internal/handlers/intent.go
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/jason-s-yu/scoretracker/internal/game"
	"github.com/jason-s-yu/scoretracker/internal/models"
)

// Intent is a user action arriving over HTTP or the table WebSocket.
type Intent struct {
	Type string `json:"type"`

	// configure_players
	Names []string `json:"names,omitempty"`
	Count int      `json:"count,omitempty"`

	// move_player
	Index     int `json:"index,omitempty"`
	Direction int `json:"direction,omitempty"`

	// Score may be a JSON number or the raw text of the score field.
	Score json.RawMessage `json:"score,omitempty"`

	// edit_score, delete_score
	RoundIndex int `json:"roundIndex,omitempty"`
	PlayerID   int `json:"playerId,omitempty"`
}

// IntentResult is the reply to an intent.
type IntentResult struct {
	State   *models.GameState   `json:"state"`
	Roster  []models.Player     `json:"roster,omitempty"`
	Prefill []models.PlayerSeed `json:"prefill,omitempty"`
}

var errUnknownIntent = errors.New("unknown intent type")

// parseScore accepts 1500, "1500" and " 1500 ".
func (in Intent) parseScore() (int, error) {
	if len(in.Score) == 0 || string(in.Score) == "null" {
		return 0, fmt.Errorf("missing score: %w", game.ErrInvalidScore)
	}
	raw := string(in.Score)
	if in.Score[0] == '"' {
		unquoted, err := strconv.Unquote(raw)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", raw, game.ErrInvalidScore)
		}
		raw = unquoted
	}
	return game.ParseScore(raw)
}

// dispatch applies an intent to the engine.
func dispatch(g *game.GameEngine, in Intent) (IntentResult, error) {
	var res IntentResult
	var err error

	switch in.Type {
	case "configure_players":
		res.Roster, err = g.ConfigurePlayers(in.Names, in.Count)
	case "move_player":
		res.Roster, err = g.MoveSetupPlayer(in.Index, in.Direction)
	case "take_prefill":
		res.Prefill = g.TakePreviousPlayers()
	case "start_game":
		err = g.StartGame()
	case "submit_score":
		var score int
		if score, err = in.parseScore(); err == nil {
			err = g.SubmitScore(score)
		}
	case "award_star":
		err = g.AwardStar()
	case "revoke_star":
		err = g.RevokeStar()
	case "edit_score":
		var score int
		if score, err = in.parseScore(); err == nil {
			err = g.EditScore(in.RoundIndex, in.PlayerID, score)
		}
	case "delete_score":
		err = g.DeleteScore(in.RoundIndex, in.PlayerID)
	case "end_game":
		err = g.EndGameManually()
	case "new_game":
		g.NewGame()
	default:
		err = fmt.Errorf("%q: %w", in.Type, errUnknownIntent)
	}
	if err != nil {
		return IntentResult{}, err
	}

	res.State = g.State()
	if res.Roster == nil && res.State.GameStatus == models.StatusSetup {
		res.Roster = g.SetupRoster()
	}
	return res, nil
}

// statusForError maps engine rejections to HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, game.ErrInvalidScore),
		errors.Is(err, game.ErrNotEnoughPlayers),
		errors.Is(err, game.ErrTooManyPlayers),
		errors.Is(err, game.ErrInvalidMove),
		errors.Is(err, errUnknownIntent):
		return http.StatusBadRequest
	case errors.Is(err, game.ErrRoundNotFound),
		errors.Is(err, game.ErrPlayerNotFound):
		return http.StatusNotFound
	case errors.Is(err, game.ErrGameNotInProgress),
		errors.Is(err, game.ErrNotInSetup),
		errors.Is(err, game.ErrNoStarsToRemove):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
