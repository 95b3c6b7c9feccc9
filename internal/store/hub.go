package store

import (
	"sync"

	"koin/internal/aggregate"
)

// Hub fans committed snapshots out to per-user observers. Stores embed it to
// implement Subscriber.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[int]Observer
	next int
}

// Subscribe registers fn for userID.
func (h *Hub) Subscribe(userID string, fn Observer) (cancel func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs == nil {
		h.subs = make(map[string]map[int]Observer)
	}
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[int]Observer)
	}
	id := h.next
	h.next++
	h.subs[userID][id] = fn
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.subs[userID], id)
	}
}

// Watched reports whether userID has any observer.
func (h *Hub) Watched(userID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[userID]) > 0
}

// Notify calls every observer of userID with snap, outside the hub lock.
// Observers must not modify snap.
func (h *Hub) Notify(userID string, snap aggregate.Snapshot) {
	h.mu.Lock()
	observers := make([]Observer, 0, len(h.subs[userID]))
	for _, fn := range h.subs[userID] {
		observers = append(observers, fn)
	}
	h.mu.Unlock()
	for _, fn := range observers {
		fn(userID, snap)
	}
}
