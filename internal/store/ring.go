package store

import (
	"fmt"
	"log/slog"
	"time"
)

// DefaultRingCapacity caps the durable tail of critical records.
const DefaultRingCapacity = 50

// Ring persists a bounded tail of records under a key prefix. When the
// capacity is exceeded the oldest records are evicted. Keys embed the
// record timestamp so lexical order matches insertion order.
type Ring struct {
	store    Store
	prefix   string
	capacity int
	logger   *slog.Logger
}

// NewRing creates a bounded record tail over the given store. A capacity
// of zero or less falls back to DefaultRingCapacity.
func NewRing(s Store, prefix string, capacity int, logger *slog.Logger) *Ring {
	if capacity <= 0 {
		capacity = DefaultRingCapacity
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ring{store: s, prefix: prefix, capacity: capacity, logger: logger}
}

// Append persists a record and evicts the oldest entries beyond capacity.
// Persistence failures are logged, never returned: the in-memory pipeline
// continues unaffected when the durable store is unavailable.
func (r *Ring) Append(id string, timestamp time.Time, payload []byte) {
	key := fmt.Sprintf("%s/%020d-%s", r.prefix, timestamp.UnixNano(), id)
	if err := r.store.Set(key, payload); err != nil {
		r.logger.Warn("failed to persist record", "key", key, "error", err)
		return
	}

	keys, err := r.store.List(r.prefix + "/")
	if err != nil {
		r.logger.Warn("failed to list persisted records", "prefix", r.prefix, "error", err)
		return
	}

	for len(keys) > r.capacity {
		oldest := keys[0]
		keys = keys[1:]
		if err := r.store.Delete(oldest); err != nil {
			r.logger.Warn("failed to evict record", "key", oldest, "error", err)
			return
		}
	}
}

// Keys returns the persisted record keys, oldest first.
func (r *Ring) Keys() ([]string, error) {
	return r.store.List(r.prefix + "/")
}

// Get retrieves a persisted record payload by key.
func (r *Ring) Get(key string) ([]byte, error) {
	return r.store.Get(key)
}
