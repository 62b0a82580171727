// internal/handlers/hub.go
package handlers

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/jason-s-yu/scoretracker/internal/game"
	"github.com/sirupsen/logrus"
)

const subscriberBuffer = 32

// subscriber is one live feed attached to a table.
type subscriber struct {
	send chan []byte
	once sync.Once
}

func (sub *subscriber) close() {
	sub.once.Do(func() { close(sub.send) })
}

// tableHub fans events of one table out to its subscribers.
type tableHub struct {
	id     uuid.UUID
	logger *logrus.Logger

	mu   sync.Mutex
	subs map[*subscriber]struct{}
}

// broadcast is installed as the engine's BroadcastFn. It runs under the engine
// lock, so it never blocks: a subscriber whose buffer is full is dropped.
func (h *tableHub) broadcast(ev game.GameEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Errorf("Failed to marshal broadcast event (%s) for table %s: %v", ev.Type, h.id, err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		select {
		case sub.send <- data:
		default:
			h.logger.Warnf("dropping slow subscriber on table %s", h.id)
			delete(h.subs, sub)
			sub.close()
		}
	}
}

func (h *tableHub) subscribe() *subscriber {
	sub := &subscriber{send: make(chan []byte, subscriberBuffer)}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

func (h *tableHub) unsubscribe(sub *subscriber) {
	h.mu.Lock()
	delete(h.subs, sub)
	h.mu.Unlock()
	sub.close()
}

type hubRegistry struct {
	logger *logrus.Logger
	mu     sync.Mutex
	hubs   map[uuid.UUID]*tableHub
}

func newHubRegistry(logger *logrus.Logger) *hubRegistry {
	return &hubRegistry{logger: logger, hubs: make(map[uuid.UUID]*tableHub)}
}

func (r *hubRegistry) get(id uuid.UUID) *tableHub {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.hubs[id]
	if !ok {
		h = &tableHub{id: id, logger: r.logger, subs: make(map[*subscriber]struct{})}
		r.hubs[id] = h
	}
	return h
}

// hasSubscribers reports whether any feed is attached to the table.
func (r *hubRegistry) hasSubscribers(id uuid.UUID) bool {
	r.mu.Lock()
	h, ok := r.hubs[id]
	r.mu.Unlock()
	if !ok {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs) > 0
}

// remove forgets the hub of an evicted table.
func (r *hubRegistry) remove(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.hubs, id)
}

func (r *hubRegistry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.hubs)
}
