package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/coursepulse/telemetry/internal/logging"
	"github.com/coursepulse/telemetry/internal/sanitize"
)

// Exponential smoothing factor for the rolling API response time.
const responseTimeSmoothing = 0.2

// MetricSink is the narrow registry surface the instrumentor feeds.
type MetricSink interface {
	UpdateMetric(name string, value float64)
	TrackFeatureUsage(feature string)
}

// Metric names the instrumentor maintains in the sink.
const (
	metricAPIResponseTime = "apiResponseTime"
	metricErrorRate       = "errorRate"
)

// Instrumentor is the explicit instrumentation surface application code
// calls instead of patching its HTTP client: API call timing and captured
// client errors flow through here into the log buffer, the metrics
// registry and the auxiliary collector endpoint.
type Instrumentor struct {
	logger *Logger
	client *CollectorClient
	sink   MetricSink

	mu          sync.Mutex
	totalCalls  int64
	failedCalls int64
	avgResponse float64

	log *slog.Logger
}

// NewInstrumentor creates the instrumentation facade. The collector
// client may be nil; auxiliary events are then skipped.
func NewInstrumentor(logger *Logger, client *CollectorClient, sink MetricSink) *Instrumentor {
	return &Instrumentor{
		logger: logger,
		client: client,
		sink:   sink,
		log:    logging.ForServiceSafe("instrument"),
	}
}

// RecordAPICall records the timing and status of one outbound API call.
// It updates the rolling apiResponseTime and errorRate metrics, logs
// failed calls, and ships an auxiliary api_call event best-effort.
func (i *Instrumentor) RecordAPICall(method, url string, duration time.Duration, status int) {
	failed := status >= 400 || status == 0

	i.mu.Lock()
	i.totalCalls++
	if failed {
		i.failedCalls++
	}
	millis := float64(duration.Milliseconds())
	if i.avgResponse == 0 {
		i.avgResponse = millis
	} else {
		i.avgResponse += responseTimeSmoothing * (millis - i.avgResponse)
	}
	avg := i.avgResponse
	errorRate := float64(i.failedCalls) / float64(i.totalCalls) * 100
	i.mu.Unlock()

	if i.sink != nil {
		i.sink.UpdateMetric(metricAPIResponseTime, avg)
		i.sink.UpdateMetric(metricErrorRate, errorRate)
	}

	scrubbed := sanitize.AnonymizeURL(url)

	if failed && i.logger != nil {
		i.logger.Log(LevelError, CategoryAPI, "api call failed", map[string]any{
			"method":      method,
			"url":         scrubbed,
			"status":      status,
			"duration_ms": millis,
		})
	}

	i.sendEvent("api_call", map[string]any{
		"method":      method,
		"url":         scrubbed,
		"status":      status,
		"duration_ms": millis,
	})
}

// RecordClientError records an uncaught application error with an
// optional stack trace.
func (i *Instrumentor) RecordClientError(err error, stackTrace string) {
	if err == nil {
		return
	}

	if i.logger != nil {
		i.logger.LogWithStack(LevelError, CategorySystem, err.Error(), nil, stackTrace)
	}

	i.sendEvent("error", map[string]any{
		"message": sanitize.ScrubMessage(err.Error()),
		"stack":   stackTrace,
	})
}

// sendEvent ships an auxiliary event without blocking the caller.
func (i *Instrumentor) sendEvent(eventType string, data map[string]any) {
	if i.client == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := i.client.SendEvent(ctx, eventType, data); err != nil {
			i.log.Debug("auxiliary event delivery failed", "type", eventType, "error", err)
		}
	}()
}
