package game

import (
	"fmt"
	"math"
	"strings"

	"github.com/jason-s-yu/scoretracker/internal/models"
)

// SubmitScore records score for the acting player and passes the turn.
func (g *GameEngine) SubmitScore(score int) error {
	g.Mu.Lock()
	defer g.Mu.Unlock()

	p, err := g.actingPlayer()
	if err != nil {
		return err
	}
	round := g.currentRoundData()
	round.Scores[p.ID] = score
	roundNum := round.RoundNum

	// The threshold only counts in regular play; tie-breakers just accumulate.
	if g.state.GameStatus != models.StatusTieBreaker {
		total := g.state.CumulativeTotal(p.ID)
		if total >= g.Rules.WinThreshold && !g.state.Threshold10kTriggered {
			g.state.Threshold10kTriggered = true
			g.state.GameStatus = models.StatusFinalRound
			g.log.WithField("player", p.ID).Infof("threshold crossed with %d", total)
			g.fireEvent(GameEvent{
				Type:    EventFinalRound,
				Player:  eventPlayer(p),
				Message: fmt.Sprintf("%s crossed %s! Final round!", p.Name, formatPoints(g.Rules.WinThreshold)),
				Payload: map[string]interface{}{"total": total},
			})
		}
	}

	g.advanceTurn()
	g.commit(p.ID, "submit_score", map[string]interface{}{"score": score, "round": roundNum})
	return nil
}

// AwardStar grants the acting player a star worth a zero score. Reaching
// StarsToWin ends the game on this turn.
func (g *GameEngine) AwardStar() error {
	g.Mu.Lock()
	defer g.Mu.Unlock()

	p, err := g.actingPlayer()
	if err != nil {
		return err
	}
	p.Stars++
	round := g.currentRoundData()
	round.StarsAwarded[p.ID]++
	round.Scores[p.ID] = 0
	roundNum := round.RoundNum

	if p.Stars >= g.Rules.StarsToWin {
		g.state.Winner = &models.WinnerResult{
			PlayerID:     p.ID,
			Name:         p.Name,
			WinCondition: models.WinStars,
		}
		g.state.GameStatus = models.StatusFinished
		g.state.TieBreakPlayers = nil
		g.finish()
		g.commit(p.ID, "award_star", map[string]interface{}{"stars": p.Stars, "round": roundNum})
		return nil
	}

	g.fireEvent(GameEvent{
		Type:    EventStarAwarded,
		Player:  eventPlayer(p),
		Message: fmt.Sprintf("Star awarded to %s!", p.Name),
		Payload: map[string]interface{}{"stars": p.Stars},
	})
	g.advanceTurn()
	g.commit(p.ID, "award_star", map[string]interface{}{"stars": p.Stars, "round": roundNum})
	return nil
}

// RevokeStar takes a star back from the acting player without passing the turn.
func (g *GameEngine) RevokeStar() error {
	g.Mu.Lock()
	defer g.Mu.Unlock()

	p, err := g.actingPlayer()
	if err != nil {
		return err
	}
	if p.Stars <= 0 {
		return fmt.Errorf("%s: %w", p.Name, ErrNoStarsToRemove)
	}
	p.Stars--

	if round := g.state.RoundByNum(g.state.CurrentRound); round != nil && round.StarsAwarded[p.ID] > 0 {
		round.StarsAwarded[p.ID]--
		if round.StarsAwarded[p.ID] <= 0 {
			delete(round.StarsAwarded, p.ID)
		}
	}

	g.fireEvent(GameEvent{
		Type:    EventStarRemoved,
		Player:  eventPlayer(p),
		Message: fmt.Sprintf("Star removed from %s", p.Name),
		Payload: map[string]interface{}{"stars": p.Stars},
	})
	g.commit(p.ID, "revoke_star", map[string]interface{}{"stars": p.Stars})
	return nil
}

// EndGameManually closes the game on the scores recorded so far.
func (g *GameEngine) EndGameManually() error {
	g.Mu.Lock()
	defer g.Mu.Unlock()

	if !g.state.GameStatus.InProgress() {
		return ErrGameNotInProgress
	}
	g.determineWinner(models.WinManual)
	g.commit(0, "end_game", nil)
	return nil
}

// actingPlayer returns the canonical record of whoever's turn it is.
// Assumes lock is held.
func (g *GameEngine) actingPlayer() (*models.Player, error) {
	if !g.state.GameStatus.InProgress() {
		return nil, ErrGameNotInProgress
	}
	p := g.state.CurrentPlayer()
	if p == nil {
		return nil, fmt.Errorf("index %d: %w", g.state.CurrentPlayerIndex, ErrPlayerNotFound)
	}
	return p, nil
}

// currentRoundData returns the record for the current round, creating it if absent.
// Assumes lock is held.
func (g *GameEngine) currentRoundData() *models.Round {
	if r := g.state.RoundByNum(g.state.CurrentRound); r != nil {
		return r
	}
	r := models.NewRound(g.state.CurrentRound)
	g.state.Rounds = append(g.state.Rounds, r)
	return r
}

// advanceTurn moves to the next seat in the active roster. Wrapping past the
// last seat completes the round.
// Assumes lock is held.
func (g *GameEngine) advanceTurn() {
	roster := g.state.ActiveRoster()
	g.state.CurrentPlayerIndex++
	if g.state.CurrentPlayerIndex < len(roster) {
		return
	}

	g.state.CurrentPlayerIndex = 0
	switch g.state.GameStatus {
	case models.StatusTieBreaker, models.StatusFinalRound:
		g.determineWinner(models.WinThreshold)
		return
	}

	g.state.CurrentRound++
	g.state.Rounds = append(g.state.Rounds, models.NewRound(g.state.CurrentRound))
	g.log.Debugf("round %d started", g.state.CurrentRound)
}

// determineWinner compares cumulative totals across the active roster.
// A single leader wins. A tie ends the game as a tie when condition is manual,
// otherwise it starts another tie-breaker round among the leaders.
// Assumes lock is held.
func (g *GameEngine) determineWinner(condition models.WinCondition) {
	roster := g.state.ActiveRoster()
	if len(roster) == 0 {
		return
	}

	highest := math.MinInt
	var top []*models.Player
	for _, rp := range roster {
		p := g.state.PlayerByID(rp.ID)
		if p == nil {
			p = rp
		}
		total := g.state.CumulativeTotal(p.ID)
		switch {
		case total > highest:
			highest = total
			top = []*models.Player{p}
		case total == highest:
			top = append(top, p)
		}
	}

	if len(top) > 1 {
		if condition == models.WinManual {
			refs := make([]models.WinnerRef, 0, len(top))
			for _, p := range top {
				refs = append(refs, models.WinnerRef{PlayerID: p.ID, Name: p.Name})
			}
			g.state.Winner = &models.WinnerResult{
				IsTie:        true,
				Players:      refs,
				WinCondition: models.WinTie,
			}
			g.state.TieBreakPlayers = nil
			g.state.GameStatus = models.StatusFinished
			g.finish()
			return
		}
		g.startTieBreaker(top, highest)
		return
	}

	winner := top[0]
	cond := condition
	if g.state.TieBreakPlayers != nil {
		cond = models.WinTieBreaker
	}
	g.state.Winner = &models.WinnerResult{
		PlayerID:     winner.ID,
		Name:         winner.Name,
		WinCondition: cond,
	}
	g.state.TieBreakPlayers = nil
	g.state.GameStatus = models.StatusFinished
	g.finish()
}

// startTieBreaker appends a round restricted to the tied players.
// Assumes lock is held.
func (g *GameEngine) startTieBreaker(tied []*models.Player, total int) {
	g.state.TieBreakPlayers = tied
	g.state.GameStatus = models.StatusTieBreaker
	g.state.CurrentRound++
	g.state.CurrentPlayerIndex = 0
	g.state.Rounds = append(g.state.Rounds, models.NewTieBreakRound(g.state.CurrentRound, tied))

	names := make([]string, 0, len(tied))
	ids := make([]int, 0, len(tied))
	for _, p := range tied {
		names = append(names, p.Name)
		ids = append(ids, p.ID)
	}
	g.log.WithField("players", ids).Infof("tie-breaker round %d at %d", g.state.CurrentRound, total)
	g.fireEvent(GameEvent{
		Type:    EventTieBreaker,
		Message: fmt.Sprintf("Tie breaker round! %s are tied at %s points", strings.Join(names, " & "), formatPoints(total)),
		Payload: map[string]interface{}{"playerIds": ids, "total": total, "round": g.state.CurrentRound},
	})
}
