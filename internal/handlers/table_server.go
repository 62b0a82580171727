// internal/handlers/table_server.go
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/scoretracker/internal/game"
	"github.com/jason-s-yu/scoretracker/internal/models"
	"github.com/jason-s-yu/scoretracker/internal/persistence"
	"github.com/sirupsen/logrus"
)

// ResultRecorder archives finished games.
type ResultRecorder interface {
	RecordGameResult(ctx context.Context, state *models.GameState) error
}

// TableServerOptions wires a TableServer to its backends. Only KV is required.
type TableServerOptions struct {
	KV           persistence.KeyValueStore
	SnapshotKey  string
	Rules        game.Rules
	Actions      game.ActionPublisher
	Results      ResultRecorder
	Logger       *logrus.Logger
	SecureCookie bool
}

// TableServer hosts many independent score tables. Each table is one GameEngine
// whose snapshot lives under "<SnapshotKey>:<tableId>".
type TableServer struct {
	Tables *game.TableStore

	kv           persistence.KeyValueStore
	snapshotKey  string
	rules        game.Rules
	actions      game.ActionPublisher
	results      ResultRecorder
	logger       *logrus.Logger
	secureCookie bool
	hubs         *hubRegistry
}

func NewTableServer(opts TableServerOptions) *TableServer {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.SnapshotKey == "" {
		opts.SnapshotKey = persistence.DefaultKey
	}
	if opts.Rules == (game.Rules{}) {
		opts.Rules = game.DefaultRules()
	}
	if opts.KV == nil {
		opts.KV = persistence.NewMemoryStore()
	}
	return &TableServer{
		Tables:       game.NewTableStore(),
		kv:           opts.KV,
		snapshotKey:  opts.SnapshotKey,
		rules:        opts.Rules,
		actions:      opts.Actions,
		results:      opts.Results,
		logger:       opts.Logger,
		secureCookie: opts.SecureCookie,
		hubs:         newHubRegistry(opts.Logger),
	}
}

func (s *TableServer) tableKey(id uuid.UUID) string {
	return fmt.Sprintf("%s:%s", s.snapshotKey, id)
}

func (s *TableServer) rulesKey(id uuid.UUID) string {
	return s.tableKey(id) + ":rules"
}

// CreateTable registers a new table with rules and stores those rules next to
// the snapshot so the table keeps them across restarts.
func (s *TableServer) CreateTable(ctx context.Context, rules game.Rules) (uuid.UUID, *game.GameEngine, error) {
	id := uuid.New()
	data, err := json.Marshal(rules)
	if err != nil {
		return uuid.Nil, nil, fmt.Errorf("marshal rules: %w", err)
	}
	if err := s.kv.Set(ctx, s.rulesKey(id), string(data)); err != nil {
		s.logger.Warnf("failed to store rules for table %s: %v", id, err)
	}
	engine := s.Tables.GetOrCreate(id, func() *game.GameEngine {
		return s.newEngine(id, rules)
	})
	s.logger.WithField("table", id).Info("table created")
	return id, engine, nil
}

// Table returns the live engine for id, rehydrating it from storage if this
// process has not seen the table yet.
func (s *TableServer) Table(ctx context.Context, id uuid.UUID) *game.GameEngine {
	return s.Tables.GetOrCreate(id, func() *game.GameEngine {
		return s.newEngine(id, s.loadRules(ctx, id))
	})
}

func (s *TableServer) loadRules(ctx context.Context, id uuid.UUID) game.Rules {
	raw, ok, err := s.kv.Get(ctx, s.rulesKey(id))
	if err != nil {
		s.logger.Warnf("failed to load rules for table %s: %v", id, err)
		return s.rules
	}
	if !ok {
		return s.rules
	}
	var overrides map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &overrides); err != nil {
		s.logger.Warnf("ignoring malformed rules for table %s: %v", id, err)
		return s.rules
	}
	rules, err := game.ParseRules(overrides, s.rules)
	if err != nil {
		s.logger.Warnf("ignoring invalid rules for table %s: %v", id, err)
		return s.rules
	}
	return rules
}

// newEngine builds an engine and attaches the broadcast, archive and action hooks.
func (s *TableServer) newEngine(id uuid.UUID, rules game.Rules) *game.GameEngine {
	snapshots := persistence.NewSnapshots(s.kv, s.tableKey(id), s.logger)
	engine := game.NewGameEngine(snapshots, rules, s.logger)

	hub := s.hubs.get(id)
	engine.BroadcastFn = hub.broadcast
	if s.actions != nil {
		engine.Actions = s.actions
	}
	if s.results != nil {
		recorder := s.results
		entry := s.logger.WithField("table", id)
		engine.OnGameEnd = func(state *models.GameState) {
			// called under the engine lock
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := recorder.RecordGameResult(ctx, state); err != nil {
					entry.Warnf("failed to record result of game %s: %v", state.GameID, err)
				}
			}()
		}
	}
	return engine
}

// EvictIdle unloads tables nobody used for longer than idle and that have no
// live feed. Their snapshots stay in storage and are reloaded on next use.
func (s *TableServer) EvictIdle(idle time.Duration) int {
	evicted := s.Tables.EvictIdle(idle, s.hubs.hasSubscribers)
	for _, id := range evicted {
		s.hubs.remove(id)
	}
	if len(evicted) > 0 {
		s.logger.Debugf("evicted %d idle tables", len(evicted))
	}
	return len(evicted)
}

// RunJanitor evicts idle tables periodically until ctx is done.
func (s *TableServer) RunJanitor(ctx context.Context, idle time.Duration) {
	interval := idle / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.EvictIdle(idle)
		}
	}
}
