package game

import (
	"fmt"

	"github.com/jason-s-yu/scoretracker/internal/models"
)

// EditScore overwrites a historical score and re-checks the threshold.
func (g *GameEngine) EditScore(roundIndex, playerID, score int) error {
	g.Mu.Lock()
	defer g.Mu.Unlock()

	round, p, err := g.historyCell(roundIndex, playerID)
	if err != nil {
		return err
	}
	round.Scores[p.ID] = score
	g.recalculateStatus()

	g.fireEvent(GameEvent{
		Type:    EventScoreUpdated,
		Player:  eventPlayer(p),
		Message: "Score updated",
		Payload: map[string]interface{}{"roundIndex": roundIndex, "roundNum": round.RoundNum, "score": score},
	})
	g.commit(p.ID, "edit_score", map[string]interface{}{"round": round.RoundNum, "score": score})
	return nil
}

// DeleteScore removes a historical score so the player counts as not having played that round.
func (g *GameEngine) DeleteScore(roundIndex, playerID int) error {
	g.Mu.Lock()
	defer g.Mu.Unlock()

	round, p, err := g.historyCell(roundIndex, playerID)
	if err != nil {
		return err
	}
	delete(round.Scores, p.ID)
	g.recalculateStatus()

	g.fireEvent(GameEvent{
		Type:    EventScoreDeleted,
		Player:  eventPlayer(p),
		Message: "Score deleted",
		Payload: map[string]interface{}{"roundIndex": roundIndex, "roundNum": round.RoundNum},
	})
	g.commit(p.ID, "delete_score", map[string]interface{}{"round": round.RoundNum})
	return nil
}

// historyCell resolves an edit target. Assumes lock is held.
func (g *GameEngine) historyCell(roundIndex, playerID int) (*models.Round, *models.Player, error) {
	if roundIndex < 0 || roundIndex >= len(g.state.Rounds) {
		return nil, nil, fmt.Errorf("index %d: %w", roundIndex, ErrRoundNotFound)
	}
	p := g.state.PlayerByID(playerID)
	if p == nil {
		return nil, nil, fmt.Errorf("id %d: %w", playerID, ErrPlayerNotFound)
	}
	return g.state.Rounds[roundIndex], p, nil
}

// recalculateStatus moves between active and finalRound when an edit crosses
// the threshold in either direction. Other statuses are left alone.
// Assumes lock is held.
func (g *GameEngine) recalculateStatus() {
	anyOver := false
	for _, p := range g.state.Players {
		if g.state.CumulativeTotal(p.ID) >= g.Rules.WinThreshold {
			anyOver = true
			break
		}
	}

	switch {
	case anyOver && g.state.GameStatus == models.StatusActive:
		g.state.Threshold10kTriggered = true
		g.state.GameStatus = models.StatusFinalRound
		g.log.Info("edit pushed a player over the threshold, final round")
	case !anyOver && g.state.GameStatus == models.StatusFinalRound:
		g.state.Threshold10kTriggered = false
		g.state.GameStatus = models.StatusActive
		g.log.Info("edit dropped every player below the threshold, back to active")
	}
}
