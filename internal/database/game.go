// internal/database/game.go
package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jason-s-yu/scoretracker/internal/cache"
	"github.com/jason-s-yu/scoretracker/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
	key        TEXT PRIMARY KEY,
	payload    JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS games (
	id               TEXT PRIMARY KEY,
	status           TEXT NOT NULL,
	win_condition    TEXT,
	rounds_played    INT,
	final_game_state JSONB,
	start_time       TIMESTAMPTZ,
	end_time         TIMESTAMPTZ
);
CREATE TABLE IF NOT EXISTS game_results (
	game_id   TEXT NOT NULL REFERENCES games(id) ON DELETE CASCADE,
	player_id INT NOT NULL,
	name      TEXT NOT NULL,
	score     INT NOT NULL,
	stars     INT NOT NULL,
	did_win   BOOLEAN NOT NULL,
	PRIMARY KEY (game_id, player_id)
);
CREATE TABLE IF NOT EXISTS game_actions (
	id             BIGSERIAL PRIMARY KEY,
	game_id        TEXT NOT NULL,
	action_index   INT NOT NULL,
	actor_player_id INT NOT NULL,
	action_type    TEXT NOT NULL,
	action_payload JSONB,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// PostgresStore keeps snapshots, finished-game archives and the action log in Postgres.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps an open pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the tables if they do not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Get reads a snapshot payload by key.
func (s *PostgresStore) Get(ctx context.Context, key string) (string, bool, error) {
	var payload string
	err := s.pool.QueryRow(ctx, `SELECT payload::text FROM snapshots WHERE key = $1`, key).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get snapshot %s: %w", key, err)
	}
	return payload, true, nil
}

// Set upserts a snapshot payload.
func (s *PostgresStore) Set(ctx context.Context, key, value string) error {
	q := `
		INSERT INTO snapshots (key, payload, updated_at)
		VALUES ($1, $2::jsonb, NOW())
		ON CONFLICT (key) DO UPDATE SET payload = EXCLUDED.payload, updated_at = NOW()
	`
	if _, err := s.pool.Exec(ctx, q, key, value); err != nil {
		return fmt.Errorf("set snapshot %s: %w", key, err)
	}
	return nil
}

// RecordGameResult persists the final outcome of a game: the games row with the
// full final state and one game_results row per player.
func (s *PostgresStore) RecordGameResult(ctx context.Context, state *models.GameState) error {
	if state.Winner == nil {
		return fmt.Errorf("game %s has no winner", state.GameID)
	}
	finalState, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal final state: %w", err)
	}

	winners := make(map[int]bool)
	if state.Winner.IsTie {
		for _, w := range state.Winner.Players {
			winners[w.PlayerID] = true
		}
	} else {
		winners[state.Winner.PlayerID] = true
	}

	err = pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		upsertGame := `
			INSERT INTO games (id, status, win_condition, rounds_played, final_game_state, end_time)
			VALUES ($1, 'completed', $2, $3, $4, NOW())
			ON CONFLICT (id) DO UPDATE
			SET status = 'completed', win_condition = $2, rounds_played = $3, final_game_state = $4, end_time = NOW()
		`
		if _, e := tx.Exec(ctx, upsertGame, state.GameID, string(state.Winner.WinCondition), state.CurrentRound, finalState); e != nil {
			return e
		}

		for _, p := range state.Players {
			q := `
				INSERT INTO game_results (game_id, player_id, name, score, stars, did_win)
				VALUES ($1, $2, $3, $4, $5, $6)
				ON CONFLICT (game_id, player_id)
				DO UPDATE SET name = $3, score = $4, stars = $5, did_win = $6
			`
			if _, e := tx.Exec(ctx, q, state.GameID, p.ID, p.Name, state.CumulativeTotal(p.ID), p.Stars, winners[p.ID]); e != nil {
				return e
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("tx upsert game or results: %w", err)
	}
	return nil
}

// InsertGameActions writes a batch of action records in a single transaction,
// upserting the owning game row.
func (s *PostgresStore) InsertGameActions(ctx context.Context, records []cache.GameActionRecord) error {
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for _, rec := range records {
			if err := insertGameActionTx(ctx, tx, rec); err != nil {
				return fmt.Errorf("insertGameActionTx: %w", err)
			}
		}
		return nil
	})
}

// MarkGameAbandoned flags a game that stopped producing actions while still in progress.
func (s *PostgresStore) MarkGameAbandoned(ctx context.Context, gameID string) error {
	q := `
		UPDATE games
		SET status = 'abandoned', end_time = NOW()
		WHERE id = $1 AND status = 'in_progress'
	`
	if _, err := s.pool.Exec(ctx, q, gameID); err != nil {
		return fmt.Errorf("mark game %s abandoned: %w", gameID, err)
	}
	return nil
}

func insertGameActionTx(ctx context.Context, tx pgx.Tx, rec cache.GameActionRecord) error {
	upsertGameQ := `
		INSERT INTO games (id, status, start_time)
		VALUES ($1, 'in_progress', NOW())
		ON CONFLICT (id) DO NOTHING
	`
	if _, err := tx.Exec(ctx, upsertGameQ, rec.GameID); err != nil {
		return err
	}

	jsonPayload, err := json.Marshal(rec.ActionPayload)
	if err != nil {
		return err
	}
	actionInsertQ := `
		INSERT INTO game_actions (game_id, action_index, actor_player_id, action_type, action_payload)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err = tx.Exec(ctx, actionInsertQ, rec.GameID, rec.ActionIndex, rec.ActorPlayerID, rec.ActionType, jsonPayload)
	return err
}
