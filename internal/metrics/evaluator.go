package metrics

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/coursepulse/telemetry/internal/logging"
	"github.com/coursepulse/telemetry/internal/observability"
	"github.com/coursepulse/telemetry/internal/store"
)

// Severity classifies how far a metric is past its threshold.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Severity ratio boundaries: current/threshold above each bound maps to
// the next severity up.
const (
	criticalRatio = 2.0
	errorRatio    = 1.5
	warningRatio  = 1.2
)

// DefaultDedupWindow suppresses repeat alerts for the same metric.
const DefaultDedupWindow = 5 * time.Minute

// ErrAlertNotFound is returned when resolving an unknown alert ID.
var ErrAlertNotFound = fmt.Errorf("alert not found")

// Alert records a metric crossing its configured threshold.
type Alert struct {
	ID           string    `json:"id"`
	Severity     Severity  `json:"severity"`
	Metric       string    `json:"metric"`
	Threshold    float64   `json:"threshold"`
	CurrentValue float64   `json:"currentValue"`
	Message      string    `json:"message"`
	Timestamp    time.Time `json:"timestamp"`
	Resolved     bool      `json:"resolved"`
}

// classifySeverity maps the current/threshold ratio onto a severity.
func classifySeverity(current, threshold float64) Severity {
	ratio := current / threshold
	switch {
	case ratio > criticalRatio:
		return SeverityCritical
	case ratio > errorRatio:
		return SeverityError
	case ratio > warningRatio:
		return SeverityWarning
	default:
		return SeverityInfo
	}
}

// Evaluator compares snapshots against configured thresholds, creates
// deduplicated alerts and hands them to the dispatcher. Alert creation
// never blocks on network I/O.
type Evaluator struct {
	thresholds  map[string]float64
	dedupWindow time.Duration
	dedup       *gocache.Cache // metric name -> alert ID, expiring after the window

	mu     sync.Mutex
	alerts []*Alert
	byID   map[string]*Alert

	dispatcher *AlertDispatcher
	ring       *store.Ring
	metrics    *observability.Metrics
	log        *slog.Logger
}

// NewEvaluator creates a threshold evaluator. The dispatcher and ring may
// be nil; alerts are then kept in memory only.
func NewEvaluator(thresholds map[string]float64, dedupWindow time.Duration, dispatcher *AlertDispatcher, ring *store.Ring, metrics *observability.Metrics) *Evaluator {
	if dedupWindow <= 0 {
		dedupWindow = DefaultDedupWindow
	}
	return &Evaluator{
		thresholds:  thresholds,
		dedupWindow: dedupWindow,
		dedup:       gocache.New(dedupWindow, time.Minute),
		byID:        make(map[string]*Alert),
		dispatcher:  dispatcher,
		ring:        ring,
		metrics:     metrics,
		log:         logging.ForServiceSafe("evaluator"),
	}
}

// Evaluate checks every configured threshold against the snapshot and
// fires alerts for exceeded metrics.
func (e *Evaluator) Evaluate(snapshot *Snapshot) {
	for metric, threshold := range e.thresholds {
		current := snapshot.Value(metric)
		if current > threshold {
			e.fire(metric, current, threshold)
		}
	}
}

// fire creates an alert unless an unresolved alert for the same metric
// exists within the dedup window.
func (e *Evaluator) fire(metric string, current, threshold float64) {
	if previousID, found := e.dedup.Get(metric); found {
		if e.isUnresolved(previousID.(string)) {
			e.metrics.ObserveSuppressed()
			e.log.Debug("alert suppressed within dedup window",
				"metric", metric,
				"current", current,
				"previous_alert", previousID,
			)
			return
		}
	}

	alert := &Alert{
		ID:           uuid.New().String(),
		Severity:     classifySeverity(current, threshold),
		Metric:       metric,
		Threshold:    threshold,
		CurrentValue: current,
		Message:      fmt.Sprintf("%s exceeded threshold: %.2f > %.2f", metric, current, threshold),
		Timestamp:    time.Now(),
	}

	e.mu.Lock()
	e.alerts = append(e.alerts, alert)
	e.byID[alert.ID] = alert
	e.mu.Unlock()

	e.dedup.Set(metric, alert.ID, e.dedupWindow)
	e.metrics.ObserveAlert(string(alert.Severity))

	e.log.Warn("threshold exceeded",
		"metric", metric,
		"current", current,
		"threshold", threshold,
		"severity", alert.Severity,
	)

	if e.ring != nil {
		if payload, err := json.Marshal(alert); err == nil {
			e.ring.Append(alert.ID, alert.Timestamp, payload)
		}
	}

	// Best-effort dispatch off the evaluation path. Failures are logged
	// by the dispatcher, never retried.
	if e.dispatcher != nil {
		e.dispatcher.Dispatch(alert.clone())
	}
}

// Resolve marks an alert resolved. Resolved alerts are excluded from
// active queries but remain in the full list until retention-expired.
func (e *Evaluator) Resolve(id string) error {
	e.mu.Lock()
	alert, exists := e.byID[id]
	if exists {
		alert.Resolved = true
	}
	e.mu.Unlock()

	if !exists {
		return ErrAlertNotFound
	}

	// Allow the next breach of this metric to alert immediately.
	if cached, found := e.dedup.Get(alert.Metric); found && cached.(string) == id {
		e.dedup.Delete(alert.Metric)
	}

	e.log.Info("alert resolved", "id", id, "metric", alert.Metric)
	return nil
}

// Active returns unresolved alerts, oldest first.
func (e *Evaluator) Active() []*Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	var active []*Alert
	for _, alert := range e.alerts {
		if !alert.Resolved {
			active = append(active, alert.clone())
		}
	}
	return active
}

// All returns every alert still within retention, oldest first.
func (e *Evaluator) All() []*Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]*Alert, len(e.alerts))
	for i, alert := range e.alerts {
		out[i] = alert.clone()
	}
	return out
}

// PurgeOlderThan removes alerts created before the cutoff from the
// in-memory list and returns how many were removed. Called by the
// retention janitor.
func (e *Evaluator) PurgeOlderThan(cutoff time.Time) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	kept := e.alerts[:0]
	removed := 0
	for _, alert := range e.alerts {
		if alert.Timestamp.Before(cutoff) {
			delete(e.byID, alert.ID)
			removed++
			continue
		}
		kept = append(kept, alert)
	}
	e.alerts = kept

	sort.Slice(e.alerts, func(i, j int) bool {
		return e.alerts[i].Timestamp.Before(e.alerts[j].Timestamp)
	})
	return removed
}

func (e *Evaluator) isUnresolved(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	alert, exists := e.byID[id]
	return exists && !alert.Resolved
}

func (a *Alert) clone() *Alert {
	clone := *a
	return &clone
}
