package game

import (
	"fmt"
	"strings"

	"github.com/jason-s-yu/scoretracker/internal/models"
)

// BuildRoster turns setup input into players with ids 1..count in seat order.
// Blank or missing names become "Player N"; long names are truncated.
func BuildRoster(names []string, count int, rules Rules) ([]*models.Player, error) {
	if count < rules.MinPlayers {
		return nil, fmt.Errorf("%d players: %w", count, ErrNotEnoughPlayers)
	}
	if count > rules.MaxPlayers {
		return nil, fmt.Errorf("%d players, max %d: %w", count, rules.MaxPlayers, ErrTooManyPlayers)
	}

	players := make([]*models.Player, 0, count)
	for i := 0; i < count; i++ {
		name := ""
		if i < len(names) {
			name = strings.TrimSpace(names[i])
		}
		if name == "" {
			name = fmt.Sprintf("Player %d", i+1)
		}
		if r := []rune(name); len(r) > rules.MaxNameLength {
			name = string(r[:rules.MaxNameLength])
		}
		players = append(players, &models.Player{ID: i + 1, Name: name, Order: i})
	}
	return players, nil
}

// ConfigurePlayers sets the roster StartGame will use.
func (g *GameEngine) ConfigurePlayers(names []string, count int) ([]models.Player, error) {
	g.Mu.Lock()
	defer g.Mu.Unlock()

	if g.state.GameStatus != models.StatusSetup {
		return nil, ErrNotInSetup
	}
	players, err := BuildRoster(names, count, g.Rules)
	if err != nil {
		return nil, err
	}
	g.setupPlayers = players
	return g.setupRosterLocked(), nil
}

// MoveSetupPlayer shifts a configured player up (-1) or down (+1) one seat.
// Ids and order follow the new seating.
func (g *GameEngine) MoveSetupPlayer(index, direction int) ([]models.Player, error) {
	g.Mu.Lock()
	defer g.Mu.Unlock()

	if g.state.GameStatus != models.StatusSetup {
		return nil, ErrNotInSetup
	}
	target := index + direction
	if (direction != -1 && direction != 1) || index < 0 || index >= len(g.setupPlayers) ||
		target < 0 || target >= len(g.setupPlayers) {
		return nil, fmt.Errorf("move %d by %d: %w", index, direction, ErrInvalidMove)
	}

	g.setupPlayers[index], g.setupPlayers[target] = g.setupPlayers[target], g.setupPlayers[index]
	for i, p := range g.setupPlayers {
		p.ID = i + 1
		p.Order = i
	}
	return g.setupRosterLocked(), nil
}

// SetupRoster returns the configured but not yet started roster.
func (g *GameEngine) SetupRoster() []models.Player {
	g.Mu.Lock()
	defer g.Mu.Unlock()
	return g.setupRosterLocked()
}

func (g *GameEngine) setupRosterLocked() []models.Player {
	out := make([]models.Player, 0, len(g.setupPlayers))
	for _, p := range g.setupPlayers {
		out = append(out, *p)
	}
	return out
}

// TakePreviousPlayers returns the roster carried over from the last game and
// forgets it, so it prefills exactly one setup.
func (g *GameEngine) TakePreviousPlayers() []models.PlayerSeed {
	g.Mu.Lock()
	defer g.Mu.Unlock()
	seeds := g.previousPlayers
	g.previousPlayers = nil
	return seeds
}

// StartGame finalizes the roster and opens round 1.
func (g *GameEngine) StartGame() error {
	g.Mu.Lock()
	defer g.Mu.Unlock()

	if g.state.GameStatus != models.StatusSetup {
		return ErrNotInSetup
	}
	if len(g.setupPlayers) < g.Rules.MinPlayers {
		return fmt.Errorf("%d configured: %w", len(g.setupPlayers), ErrNotEnoughPlayers)
	}

	g.state.Players = g.setupPlayers
	g.setupPlayers = nil
	g.state.Rounds = []*models.Round{models.NewRound(1)}
	g.state.CurrentRound = 1
	g.state.CurrentPlayerIndex = 0
	g.state.GameStatus = models.StatusActive
	g.state.Winner = nil
	g.state.Threshold10kTriggered = false
	g.state.TieBreakPlayers = nil

	g.log.WithField("players", len(g.state.Players)).Info("game started")
	g.commit(0, "start_game", map[string]interface{}{"players": len(g.state.Players)})
	return nil
}

// NewGame discards the current game, remembering its roster for the next setup.
func (g *GameEngine) NewGame() {
	g.Mu.Lock()
	defer g.Mu.Unlock()

	if len(g.state.Players) > 0 {
		seeds := make([]models.PlayerSeed, 0, len(g.state.Players))
		for _, p := range g.state.Players {
			seeds = append(seeds, models.PlayerSeed{Name: p.Name, Order: p.Order})
		}
		g.previousPlayers = seeds
	}

	old := g.state.GameID
	g.setupPlayers = nil
	g.actionIndex = 0
	g.setState(models.NewGameState())
	g.log.WithField("previous", old).Info("new game")

	g.fireEvent(GameEvent{Type: EventNewGame, Payload: map[string]interface{}{"previousGameId": old}})
	g.commit(0, "new_game", nil)
}
