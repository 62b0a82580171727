// internal/game/game.go
package game

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jason-s-yu/scoretracker/internal/cache"
	"github.com/jason-s-yu/scoretracker/internal/models"
	"github.com/sirupsen/logrus"
)

// Rejections. None of them leave the state modified.
var (
	ErrInvalidScore      = errors.New("score must be a whole number")
	ErrNotEnoughPlayers  = errors.New("need at least 2 players")
	ErrTooManyPlayers    = errors.New("too many players")
	ErrNoStarsToRemove   = errors.New("player has no stars to remove")
	ErrGameNotInProgress = errors.New("game is not in progress")
	ErrNotInSetup        = errors.New("game is not in setup")
	ErrRoundNotFound     = errors.New("round not found")
	ErrPlayerNotFound    = errors.New("player not found")
	ErrInvalidMove       = errors.New("invalid player move")
)

// SnapshotStore loads and saves the whole game state.
type SnapshotStore interface {
	Load(ctx context.Context) (*models.GameState, bool)
	Save(ctx context.Context, state *models.GameState) error
}

// ActionPublisher receives one record per mutation, for the historian.
type ActionPublisher interface {
	PublishGameAction(ctx context.Context, record cache.GameActionRecord) error
}

// GameEngine owns one GameState and is its only mutation surface.
type GameEngine struct {
	Mu sync.Mutex

	Rules Rules

	// BroadcastFn is used to send events to the presentation layer. If nil, no broadcast is done.
	BroadcastFn func(ev GameEvent)

	// OnGameEnd is invoked once when a game reaches finished.
	OnGameEnd OnGameEndFunc

	// Actions is optional; when set every mutation is published as a GameActionRecord.
	Actions ActionPublisher

	state           *models.GameState
	store           SnapshotStore
	logger          *logrus.Logger
	log             *logrus.Entry
	setupPlayers    []*models.Player
	previousPlayers []models.PlayerSeed
	actionIndex     int

	// action records leave through one worker so they reach the queue in order
	actionQueue chan cache.GameActionRecord
	actionDone  chan struct{}
	closed      bool
}

const actionQueueSize = 256

// NewGameEngine rehydrates the last snapshot from store, or starts a fresh setup
// state when there is none or it cannot be used. store and logger may be nil.
func NewGameEngine(store SnapshotStore, rules Rules, logger *logrus.Logger) *GameEngine {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	g := &GameEngine{
		Rules:  rules,
		store:  store,
		logger: logger,
	}

	var state *models.GameState
	if store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		loaded, ok := store.Load(ctx)
		cancel()
		if ok {
			state = loaded
		}
	}
	if state == nil {
		state = models.NewGameState()
	}
	g.setState(state)
	g.log.Debugf("engine ready in status %s", state.GameStatus)
	return g
}

func (g *GameEngine) setState(state *models.GameState) {
	g.state = state
	g.log = g.logger.WithField("game", state.GameID)
}

// State returns a deep copy of the current state.
func (g *GameEngine) State() *models.GameState {
	g.Mu.Lock()
	defer g.Mu.Unlock()
	return g.state.Clone()
}

// Standings returns the leaderboard for the current game.
func (g *GameEngine) Standings() []models.Standing {
	g.Mu.Lock()
	defer g.Mu.Unlock()
	return g.state.Standings()
}

// History returns the round-by-round score sheet.
func (g *GameEngine) History() models.History {
	g.Mu.Lock()
	defer g.Mu.Unlock()
	return g.state.Clone().History()
}

// Attach calls fn with a state_sync event while holding the lock, so a new
// subscriber registered inside fn cannot miss or reorder a concurrent event.
func (g *GameEngine) Attach(fn func(ev GameEvent)) {
	g.Mu.Lock()
	defer g.Mu.Unlock()
	fn(GameEvent{Type: EventStateSync, State: g.state.Clone()})
}

// commit persists the snapshot, publishes the action and broadcasts the new state.
// Assumes lock is held.
func (g *GameEngine) commit(actorID int, actionType string, payload map[string]interface{}) {
	g.persist()
	g.logAction(actorID, actionType, payload)
	g.fireEvent(GameEvent{Type: EventStateSync, State: g.state.Clone()})
}

// persist writes the full snapshot. Failures are logged; memory stays authoritative.
// Assumes lock is held.
func (g *GameEngine) persist() {
	if g.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := g.store.Save(ctx, g.state); err != nil {
		g.log.Warnf("failed to save snapshot: %v", err)
	}
}

// fireEvent broadcasts an event. Assumes lock is held.
func (g *GameEngine) fireEvent(ev GameEvent) {
	if g.BroadcastFn != nil {
		g.BroadcastFn(ev)
	}
}

// finish records the end of the game for listeners. Assumes lock is held.
func (g *GameEngine) finish() {
	w := g.state.Winner
	g.log.WithFields(logrus.Fields{
		"condition": w.WinCondition,
		"tie":       w.IsTie,
		"round":     g.state.CurrentRound,
	}).Info("game finished")

	payload := map[string]interface{}{
		"winner":    w,
		"standings": g.state.Standings(),
	}
	g.fireEvent(GameEvent{Type: EventGameEnd, Message: winMessage(w, g.Rules), Payload: payload})
	if g.OnGameEnd != nil {
		g.OnGameEnd(g.state.Clone())
	}
}

// logAction queues the action details for the historian.
// Assumes lock is held.
func (g *GameEngine) logAction(actorID int, actionType string, payload map[string]interface{}) {
	g.actionIndex++
	if g.Actions == nil || g.closed {
		return
	}
	if payload == nil {
		payload = make(map[string]interface{})
	}
	payload["status"] = string(g.state.GameStatus)
	record := cache.GameActionRecord{
		GameID:        g.state.GameID,
		ActionIndex:   g.actionIndex,
		ActorPlayerID: actorID,
		ActionType:    actionType,
		ActionPayload: payload,
		Timestamp:     time.Now().UnixMilli(),
	}
	if g.actionQueue == nil {
		g.startActionWorker()
	}
	select {
	case g.actionQueue <- record:
	default:
		g.log.Warnf("action queue full, dropping game action %d", record.ActionIndex)
	}
}

// startActionWorker publishes queued records one at a time. Assumes lock is held.
func (g *GameEngine) startActionWorker() {
	queue := make(chan cache.GameActionRecord, actionQueueSize)
	done := make(chan struct{})
	g.actionQueue, g.actionDone = queue, done

	pub, logger := g.Actions, g.logger
	go func() {
		defer close(done)
		for rec := range queue {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			if err := pub.PublishGameAction(ctx, rec); err != nil {
				logger.WithField("game", rec.GameID).Warnf("error publishing game action %d: %v", rec.ActionIndex, err)
			}
			cancel()
		}
	}()
}

// Close publishes any queued action records and stops the worker. The engine
// stays usable but no longer publishes actions.
func (g *GameEngine) Close() {
	g.Mu.Lock()
	queue, done := g.actionQueue, g.actionDone
	g.actionQueue, g.actionDone = nil, nil
	g.closed = true
	g.Mu.Unlock()

	if queue != nil {
		close(queue)
		<-done
	}
}

func winMessage(w *models.WinnerResult, rules Rules) string {
	if w.IsTie {
		names := ""
		for i, p := range w.Players {
			if i > 0 {
				names += " & "
			}
			names += p.Name
		}
		return names + " are tied for first place"
	}
	switch w.WinCondition {
	case models.WinStars:
		return w.Name + " wins! Collected " + formatPoints(rules.StarsToWin) + " stars!"
	case models.WinManual:
		return w.Name + " wins! Game ended - highest score wins!"
	case models.WinTieBreaker:
		return w.Name + " wins the tie breaker!"
	default:
		return w.Name + " wins! Highest score after " + formatPoints(rules.WinThreshold) + " point threshold"
	}
}
