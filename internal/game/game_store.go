package game

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

type tableEntry struct {
	engine   *GameEngine
	lastUsed time.Time
}

// TableStore holds the live engines of a server, one per table.
type TableStore struct {
	mu     sync.Mutex
	tables map[uuid.UUID]*tableEntry
	loads  singleflight.Group

	now func() time.Time
}

func NewTableStore() *TableStore {
	return &TableStore{
		tables: make(map[uuid.UUID]*tableEntry),
		now:    time.Now,
	}
}

func (s *TableStore) AddTable(id uuid.UUID, engine *GameEngine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[id] = &tableEntry{engine: engine, lastUsed: s.now()}
}

// GetTable returns the engine for id and marks the table as used.
func (s *TableStore) GetTable(id uuid.UUID) (*GameEngine, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, exists := s.tables[id]
	if !exists {
		return nil, false
	}
	e.lastUsed = s.now()
	return e.engine, true
}

// DeleteTable removes the table and closes its engine.
func (s *TableStore) DeleteTable(id uuid.UUID) {
	s.mu.Lock()
	e, exists := s.tables[id]
	delete(s.tables, id)
	s.mu.Unlock()
	if exists {
		e.engine.Close()
	}
}

// GetOrCreate returns the engine for id, building it with create if absent.
// create runs outside the store lock, so a slow snapshot load only holds up
// callers of the same table; concurrent callers for that table share one build.
func (s *TableStore) GetOrCreate(id uuid.UUID, create func() *GameEngine) *GameEngine {
	if g, ok := s.GetTable(id); ok {
		return g
	}
	v, _, _ := s.loads.Do(id.String(), func() (interface{}, error) {
		if g, ok := s.GetTable(id); ok {
			return g, nil
		}
		g := create()

		s.mu.Lock()
		defer s.mu.Unlock()
		if e, ok := s.tables[id]; ok {
			// AddTable got there first
			e.lastUsed = s.now()
			return e.engine, nil
		}
		s.tables[id] = &tableEntry{engine: g, lastUsed: s.now()}
		return g, nil
	})
	return v.(*GameEngine)
}

// EvictIdle drops tables unused for longer than maxIdle, except those keep
// reports as still in use, and closes their engines. It returns the evicted ids.
func (s *TableStore) EvictIdle(maxIdle time.Duration, keep func(id uuid.UUID) bool) []uuid.UUID {
	now := s.now()
	var evicted []uuid.UUID
	var engines []*GameEngine

	s.mu.Lock()
	for id, e := range s.tables {
		if now.Sub(e.lastUsed) <= maxIdle {
			continue
		}
		if keep != nil && keep(id) {
			e.lastUsed = now
			continue
		}
		delete(s.tables, id)
		evicted = append(evicted, id)
		engines = append(engines, e.engine)
	}
	s.mu.Unlock()

	for _, g := range engines {
		g.Close()
	}
	return evicted
}

// Len reports the number of live tables.
func (s *TableStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tables)
}
