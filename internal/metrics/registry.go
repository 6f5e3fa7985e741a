// Package metrics implements the real-time metrics side of the pipeline:
// the live snapshot registry with bounded history, threshold evaluation
// with ratio-based severity and windowed deduplication, best-effort alert
// dispatch, and the in-process subscription hub.
package metrics

import (
	"context"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/coursepulse/telemetry/internal/logging"
	"github.com/coursepulse/telemetry/internal/observability"
)

// Well-known metric names used by the registry's derived fields.
const (
	MetricPageLoadTime    = "pageLoadTime"
	MetricErrorRate       = "errorRate"
	MetricAPIResponseTime = "apiResponseTime"
	MetricCacheHitRate    = "cacheHitRate"
	MetricSatisfaction    = "userSatisfactionScore"
)

// History is capped at maxHistory snapshots; past that the oldest half is
// dropped in one compaction to bound amortized cost.
const maxHistory = 1000

// Derived-field tuning. Cache hit rate is smoothed toward its observed
// value; satisfaction starts at 100 and is penalized per exceeded
// performance threshold.
const (
	cacheHitSmoothing = 0.2

	satisfactionBase       = 100.0
	pageLoadPenaltyLimit   = 3000.0 // ms
	pageLoadPenalty        = 15.0
	errorRatePenaltyLimit  = 5.0 // percent
	errorRatePenalty       = 25.0
	apiLatencyPenaltyLimit = 2000.0 // ms
	apiLatencyPenalty      = 10.0
)

// Snapshot is a timestamped copy of the live metrics state. Instances in
// the history list are immutable after insertion.
type Snapshot struct {
	Timestamp    time.Time          `json:"timestamp"`
	Values       map[string]float64 `json:"values"`
	FeatureUsage map[string]int64   `json:"featureUsage"`
}

// Clone returns a deep copy of the snapshot.
func (s *Snapshot) Clone() *Snapshot {
	clone := &Snapshot{
		Timestamp:    s.Timestamp,
		Values:       make(map[string]float64, len(s.Values)),
		FeatureUsage: make(map[string]int64, len(s.FeatureUsage)),
	}
	maps.Copy(clone.Values, s.Values)
	maps.Copy(clone.FeatureUsage, s.FeatureUsage)
	return clone
}

// Value returns a named metric value, zero when absent.
func (s *Snapshot) Value(name string) float64 {
	return s.Values[name]
}

// Registry owns the live snapshot and its bounded history, and drives the
// evaluation tick: history append, derived fields, threshold checks and
// subscriber notification.
type Registry struct {
	mu      sync.Mutex
	live    *Snapshot
	history []*Snapshot

	evaluator *Evaluator
	hub       *Hub
	metrics   *observability.Metrics

	interval time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	log      *slog.Logger
}

// NewRegistry creates the metrics registry. The evaluator and hub may be
// nil; the corresponding tick stages are then skipped.
func NewRegistry(interval time.Duration, evaluator *Evaluator, hub *Hub, metrics *observability.Metrics) *Registry {
	if interval <= 0 {
		interval = 5 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Registry{
		live: &Snapshot{
			Values:       make(map[string]float64),
			FeatureUsage: make(map[string]int64),
		},
		evaluator: evaluator,
		hub:       hub,
		metrics:   metrics,
		interval:  interval,
		ctx:       ctx,
		cancel:    cancel,
		log:       logging.ForServiceSafe("metrics"),
	}
}

// Start begins the periodic evaluation loop.
func (r *Registry) Start() {
	r.wg.Add(1)
	go r.evalLoop()
	r.log.Info("metrics evaluation started", "interval", r.interval)
}

// Stop cancels the evaluation loop and waits for it to exit.
func (r *Registry) Stop() {
	r.cancel()
	r.wg.Wait()
	r.log.Info("metrics evaluation stopped")
}

// UpdateMetric overwrites the named field in the live snapshot. Safe for
// concurrent producers.
func (r *Registry) UpdateMetric(name string, value float64) {
	r.mu.Lock()
	r.live.Values[name] = value
	r.mu.Unlock()
}

// TrackFeatureUsage increments a counter in the snapshot's feature-usage map.
func (r *Registry) TrackFeatureUsage(feature string) {
	r.mu.Lock()
	r.live.FeatureUsage[feature]++
	r.mu.Unlock()
}

// Current returns a copy of the live snapshot.
func (r *Registry) Current() *Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.live.Clone()
}

// History returns copies of the recorded snapshots, oldest first.
func (r *Registry) History() []*Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Snapshot, len(r.history))
	for i, snap := range r.history {
		out[i] = snap.Clone()
	}
	return out
}

// EvaluateNow runs a single evaluation tick synchronously. Used by the
// periodic loop and by tests.
func (r *Registry) EvaluateNow() {
	r.mu.Lock()
	r.recomputeDerivedLocked()

	snapshot := r.live.Clone()
	snapshot.Timestamp = time.Now()
	r.history = append(r.history, snapshot)
	if len(r.history) > maxHistory {
		// Drop the oldest half in one compaction rather than one-by-one.
		keep := len(r.history) / 2
		compacted := make([]*Snapshot, keep)
		copy(compacted, r.history[len(r.history)-keep:])
		r.history = compacted
	}
	depth := len(r.history)
	r.mu.Unlock()

	r.metrics.SetHistoryDepth(depth)

	if r.evaluator != nil {
		r.evaluator.Evaluate(snapshot)
	}
	if r.hub != nil {
		r.hub.Notify(snapshot)
	}
}

// recomputeDerivedLocked updates cacheHitRate and userSatisfactionScore.
// Callers must hold r.mu.
func (r *Registry) recomputeDerivedLocked() {
	values := r.live.Values

	// Cache hit rate decays toward an optimum and is dragged down by the
	// observed error rate, giving a smoothed pseudo-metric when no
	// producer reports a real one.
	observed := 99.0 - values[MetricErrorRate]
	if observed < 0 {
		observed = 0
	}
	previous, ok := values[MetricCacheHitRate]
	if !ok {
		previous = observed
	}
	values[MetricCacheHitRate] = previous + cacheHitSmoothing*(observed-previous)

	score := satisfactionBase
	if values[MetricPageLoadTime] > pageLoadPenaltyLimit {
		score -= pageLoadPenalty
	}
	if values[MetricErrorRate] > errorRatePenaltyLimit {
		score -= errorRatePenalty
	}
	if values[MetricAPIResponseTime] > apiLatencyPenaltyLimit {
		score -= apiLatencyPenalty
	}
	if score < 0 {
		score = 0
	}
	values[MetricSatisfaction] = score
}

// evalLoop drives the periodic evaluation tick.
func (r *Registry) evalLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.EvaluateNow()
		case <-r.ctx.Done():
			return
		}
	}
}
