package telemetry

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSink struct {
	mu       sync.Mutex
	values   map[string]float64
	features map[string]int
}

func newFakeSink() *fakeSink {
	return &fakeSink{
		values:   make(map[string]float64),
		features: make(map[string]int),
	}
}

func (s *fakeSink) UpdateMetric(name string, value float64) {
	s.mu.Lock()
	s.values[name] = value
	s.mu.Unlock()
}

func (s *fakeSink) TrackFeatureUsage(feature string) {
	s.mu.Lock()
	s.features[feature]++
	s.mu.Unlock()
}

func (s *fakeSink) value(name string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values[name]
}

func TestRecordAPICallUpdatesMetrics(t *testing.T) {
	t.Parallel()

	sink := newFakeSink()
	instr := NewInstrumentor(nil, nil, sink)

	instr.RecordAPICall("GET", "https://app.example.com/api/courses", 100*time.Millisecond, 200)

	assert.InDelta(t, 100, sink.value("apiResponseTime"), 0.001, "first sample seeds the average")
	assert.InDelta(t, 0, sink.value("errorRate"), 0.001)

	instr.RecordAPICall("GET", "https://app.example.com/api/courses", 200*time.Millisecond, 500)

	// 100 + 0.2*(200-100) = 120, and one failure out of two calls.
	assert.InDelta(t, 120, sink.value("apiResponseTime"), 0.001)
	assert.InDelta(t, 50, sink.value("errorRate"), 0.001)
}

func TestRecordAPICallStatusZeroCountsAsFailure(t *testing.T) {
	t.Parallel()

	sink := newFakeSink()
	instr := NewInstrumentor(nil, nil, sink)

	instr.RecordAPICall("POST", "https://app.example.com/api/checkout", 50*time.Millisecond, 0)

	assert.InDelta(t, 100, sink.value("errorRate"), 0.001)
}

func TestRecordAPICallLogsFailures(t *testing.T) {
	t.Parallel()

	fc := newFakeCollector(t)
	logger := newTestLogger(t, &Config{
		Enabled:       true,
		MinLevel:      LevelInfo,
		BufferSize:    100,
		FlushInterval: time.Hour,
		EnableRemote:  true,
	}, fc, nil)
	instr := NewInstrumentor(logger, nil, newFakeSink())

	instr.RecordAPICall("GET", "https://app.example.com/api/courses/42", 50*time.Millisecond, 500)

	// Error-level entries trigger an immediate flush.
	require.Eventually(t, func() bool { return fc.entryCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	fc.mu.Lock()
	entry := fc.batches[0].Logs[0]
	fc.mu.Unlock()

	assert.Equal(t, LevelError, entry.Level)
	assert.Equal(t, CategoryAPI, entry.Category)
	assert.NotContains(t, fmt.Sprint(entry.Context["url"]), "app.example.com")
}

func TestRecordClientError(t *testing.T) {
	t.Parallel()

	fc := newFakeCollector(t)
	logger := newTestLogger(t, &Config{
		Enabled:       true,
		MinLevel:      LevelInfo,
		BufferSize:    100,
		FlushInterval: time.Hour,
		EnableRemote:  true,
	}, fc, nil)
	instr := NewInstrumentor(logger, nil, nil)

	instr.RecordClientError(fmt.Errorf("render failed"), "stack frames here")

	require.Eventually(t, func() bool { return fc.entryCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	fc.mu.Lock()
	entry := fc.batches[0].Logs[0]
	fc.mu.Unlock()

	assert.Equal(t, LevelError, entry.Level)
	assert.Equal(t, "render failed", entry.Message)
	assert.Equal(t, "stack frames here", entry.StackTrace)
}

func TestRecordClientErrorNilIsNoop(t *testing.T) {
	t.Parallel()

	instr := NewInstrumentor(nil, nil, newFakeSink())
	instr.RecordClientError(nil, "")
}
