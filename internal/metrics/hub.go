package metrics

import (
	"log/slog"
	"sync"

	"github.com/coursepulse/telemetry/internal/logging"
)

// SnapshotFunc receives a read-only copy of the current snapshot on each
// evaluation tick.
type SnapshotFunc func(*Snapshot)

// Hub pushes snapshot updates to in-process subscribers. It holds no
// ownership over the snapshot; every subscriber gets its own copy.
type Hub struct {
	mu          sync.Mutex
	subscribers map[int]SnapshotFunc
	nextID      int
	log         *slog.Logger
}

// NewHub creates an empty subscription hub.
func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[int]SnapshotFunc),
		log:         logging.ForServiceSafe("hub"),
	}
}

// Subscribe registers a callback and returns its unsubscribe function.
// The unsubscribe function is idempotent. A nil callback is ignored.
func (h *Hub) Subscribe(fn SnapshotFunc) func() {
	if fn == nil {
		return func() {}
	}

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subscribers[id] = fn
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subscribers, id)
			h.mu.Unlock()
		})
	}
}

// Notify invokes every subscriber with its own copy of the snapshot.
// A panicking subscriber is recovered and logged; the remaining
// subscribers are still notified on the same tick.
func (h *Hub) Notify(snapshot *Snapshot) {
	h.mu.Lock()
	callbacks := make([]SnapshotFunc, 0, len(h.subscribers))
	for _, fn := range h.subscribers {
		callbacks = append(callbacks, fn)
	}
	h.mu.Unlock()

	for _, fn := range callbacks {
		h.notifyOne(fn, snapshot)
	}
}

// Len returns the number of active subscribers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

func (h *Hub) notifyOne(fn SnapshotFunc, snapshot *Snapshot) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error("subscriber panicked", "panic", r)
		}
	}()
	fn(snapshot.Clone())
}
