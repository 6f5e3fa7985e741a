// Package janitor periodically purges log and alert records older than
// the configured retention horizon from durable storage and from
// in-memory lists.
package janitor

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coursepulse/telemetry/internal/logging"
	"github.com/coursepulse/telemetry/internal/store"
)

// DefaultInterval is how often the janitor sweeps after the initial run.
const DefaultInterval = 24 * time.Hour

// Target describes one class of persisted records to sweep.
type Target struct {
	// Prefix is the store key prefix, e.g. "critical" or "alert".
	Prefix string
	// Retention is the maximum record age before purging.
	Retention time.Duration
}

// MemoryPurger removes in-memory records older than a cutoff and reports
// how many were removed.
type MemoryPurger interface {
	PurgeOlderThan(cutoff time.Time) int
}

// persistedRecord is the minimal envelope the janitor needs from a stored
// payload. Records that fail to parse are treated as expired.
type persistedRecord struct {
	Timestamp time.Time `json:"timestamp"`
}

// Janitor sweeps durable storage and registered in-memory lists on a
// long-period timer and once at process start.
type Janitor struct {
	store    store.Store
	targets  []Target
	purgers  map[string]MemoryPurger // retention keyed by target prefix
	interval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	log    *slog.Logger
}

// New creates a janitor over the given store and sweep targets.
func New(s store.Store, targets []Target, interval time.Duration) *Janitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Janitor{
		store:    s,
		targets:  targets,
		purgers:  make(map[string]MemoryPurger),
		interval: interval,
		ctx:      ctx,
		cancel:   cancel,
		log:      logging.ForServiceSafe("janitor"),
	}
}

// RegisterPurger attaches an in-memory purger to a target prefix so its
// records are purged with the same retention as the durable ones.
func (j *Janitor) RegisterPurger(prefix string, purger MemoryPurger) {
	j.purgers[prefix] = purger
}

// Start runs an immediate sweep and then sweeps on the configured interval.
func (j *Janitor) Start() {
	j.wg.Add(1)
	go func() {
		defer j.wg.Done()

		j.Sweep()

		ticker := time.NewTicker(j.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				j.Sweep()
			case <-j.ctx.Done():
				return
			}
		}
	}()
	j.log.Info("retention janitor started", "interval", j.interval, "targets", len(j.targets))
}

// Stop cancels the sweep loop and waits for it to exit.
func (j *Janitor) Stop() {
	j.cancel()
	j.wg.Wait()
}

// Sweep purges expired and malformed records across all targets. Safe to
// call directly; the periodic loop uses it too.
func (j *Janitor) Sweep() {
	now := time.Now()
	for _, target := range j.targets {
		cutoff := now.Add(-target.Retention)
		removed := j.sweepTarget(target, cutoff)

		memoryRemoved := 0
		if purger, ok := j.purgers[target.Prefix]; ok {
			memoryRemoved = purger.PurgeOlderThan(cutoff)
		}

		if removed > 0 || memoryRemoved > 0 {
			j.log.Info("purged expired records",
				"prefix", target.Prefix,
				"durable_removed", removed,
				"memory_removed", memoryRemoved,
				"cutoff", cutoff,
			)
		}
	}
}

// sweepTarget removes durable records for one target and returns how many
// were deleted. Records that cannot be read or parsed are removed.
func (j *Janitor) sweepTarget(target Target, cutoff time.Time) int {
	keys, err := j.store.List(target.Prefix + "/")
	if err != nil {
		j.log.Warn("failed to list records", "prefix", target.Prefix, "error", err)
		return 0
	}

	removed := 0
	for _, key := range keys {
		if j.expired(key, cutoff) {
			if err := j.store.Delete(key); err != nil {
				j.log.Warn("failed to delete record", "key", key, "error", err)
				continue
			}
			removed++
		}
	}
	return removed
}

func (j *Janitor) expired(key string, cutoff time.Time) bool {
	data, err := j.store.Get(key)
	if err != nil {
		return true
	}

	var record persistedRecord
	if err := json.Unmarshal(data, &record); err != nil || record.Timestamp.IsZero() {
		// Malformed persisted records are treated as expired.
		return true
	}

	return record.Timestamp.Before(cutoff)
}
