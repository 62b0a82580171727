// Package persistence turns a string-keyed store into the game snapshot adapter.
package persistence

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jason-s-yu/scoretracker/internal/models"
	"github.com/sirupsen/logrus"
)

// DefaultKey is the key the single-table tracker saves under.
const DefaultKey = "scoreTrackerGame"

// KeyValueStore is any durable string-keyed store. Get reports false for a missing key.
type KeyValueStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// Snapshots loads and saves whole GameState values under one key.
type Snapshots struct {
	kv     KeyValueStore
	key    string
	logger *logrus.Entry
}

// NewSnapshots binds a store and key. A nil logger falls back to the standard logrus logger.
func NewSnapshots(kv KeyValueStore, key string, logger *logrus.Logger) *Snapshots {
	if key == "" {
		key = DefaultKey
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Snapshots{
		kv:     kv,
		key:    key,
		logger: logger.WithField("snapshot", key),
	}
}

// Key returns the storage key.
func (s *Snapshots) Key() string {
	return s.key
}

// Load returns the stored state. Missing, unreadable, undecodable or
// inconsistent snapshots all report false; the caller starts fresh.
func (s *Snapshots) Load(ctx context.Context) (*models.GameState, bool) {
	raw, ok, err := s.kv.Get(ctx, s.key)
	if err != nil {
		s.logger.Warnf("snapshot read failed, starting fresh: %v", err)
		return nil, false
	}
	if !ok || raw == "" {
		return nil, false
	}
	state, err := Decode(raw)
	if err != nil {
		s.logger.Warnf("discarding malformed snapshot: %v", err)
		return nil, false
	}
	return state, true
}

// Save overwrites the snapshot with the full state.
func (s *Snapshots) Save(ctx context.Context, state *models.GameState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := s.kv.Set(ctx, s.key, string(data)); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

// Decode parses and validates a snapshot.
func Decode(raw string) (*models.GameState, error) {
	var state models.GameState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	state.Normalize()
	if err := state.Validate(); err != nil {
		return nil, fmt.Errorf("invalid snapshot: %w", err)
	}
	return &state, nil
}
