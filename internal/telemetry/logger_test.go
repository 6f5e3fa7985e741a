package telemetry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coursepulse/telemetry/internal/httpclient"
	"github.com/coursepulse/telemetry/internal/store"
)

// fakeCollector records delivered batches and can be switched to fail.
type fakeCollector struct {
	mu      sync.Mutex
	batches []*LogBatch
	failing bool

	server *httptest.Server
}

func newFakeCollector(t *testing.T) *fakeCollector {
	t.Helper()

	fc := &fakeCollector{}
	fc.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fc.mu.Lock()
		defer fc.mu.Unlock()

		if fc.failing {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		var batch LogBatch
		if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		fc.batches = append(fc.batches, &batch)
		w.WriteHeader(http.StatusAccepted)
	}))
	t.Cleanup(fc.server.Close)

	return fc
}

func (fc *fakeCollector) setFailing(failing bool) {
	fc.mu.Lock()
	fc.failing = failing
	fc.mu.Unlock()
}

func (fc *fakeCollector) batchCount() int {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return len(fc.batches)
}

func (fc *fakeCollector) entryCount() int {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	total := 0
	for _, b := range fc.batches {
		total += len(b.Logs)
	}
	return total
}

func newTestLogger(t *testing.T, cfg *Config, fc *fakeCollector, ring *store.Ring) *Logger {
	t.Helper()

	var client *CollectorClient
	if fc != nil {
		client = NewCollectorClient(httpclient.New(nil), fc.server.URL, fc.server.URL)
	}

	logger := NewLogger(cfg, NewEntryFactory(nil, "A1B2-C3D4-E5F6"), client, ring, nil)
	t.Cleanup(func() { logger.Shutdown(time.Second) })
	return logger
}

func TestLoggerFlushAtBufferCapacity(t *testing.T) {
	t.Parallel()

	fc := newFakeCollector(t)
	logger := newTestLogger(t, &Config{
		Enabled:       true,
		MinLevel:      LevelInfo,
		BufferSize:    3,
		FlushInterval: time.Hour,
		EnableRemote:  true,
	}, fc, nil)

	logger.Log(LevelInfo, CategoryUser, "first", nil)
	logger.Log(LevelInfo, CategoryUser, "second", nil)
	assert.Equal(t, 0, fc.batchCount(), "below capacity, nothing should flush")

	logger.Log(LevelInfo, CategoryUser, "third", nil)

	require.Eventually(t, func() bool { return fc.batchCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 3, fc.entryCount())
	assert.Equal(t, 0, logger.BufferLen())
}

func TestLoggerImmediateFlushOnError(t *testing.T) {
	t.Parallel()

	fc := newFakeCollector(t)
	logger := newTestLogger(t, &Config{
		Enabled:       true,
		MinLevel:      LevelInfo,
		BufferSize:    100,
		FlushInterval: time.Hour,
		EnableRemote:  true,
	}, fc, nil)

	logger.Log(LevelError, CategoryAPI, "timeout calling upstream", map[string]any{
		"endpoint": "/api/courses",
		"token":    "abc123",
	})

	require.Eventually(t, func() bool { return fc.batchCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, 1, fc.entryCount())

	fc.mu.Lock()
	entry := fc.batches[0].Logs[0]
	fc.mu.Unlock()

	assert.Equal(t, LevelError, entry.Level)
	assert.Equal(t, CategoryAPI, entry.Category)
	assert.Equal(t, "[REDACTED]", entry.Context["token"])
	assert.Equal(t, "/api/courses", entry.Context["endpoint"])
	assert.Contains(t, entry.Tags, "error")
	assert.Contains(t, entry.Tags, "api")
	assert.Contains(t, entry.Tags, "timeout")
}

func TestLoggerImmediateFlushOnCritical(t *testing.T) {
	t.Parallel()

	fc := newFakeCollector(t)
	logger := newTestLogger(t, &Config{
		Enabled:       true,
		MinLevel:      LevelInfo,
		BufferSize:    100,
		FlushInterval: time.Hour,
		EnableRemote:  true,
	}, fc, nil)

	logger.Log(LevelCritical, CategorySystem, "storage unavailable", nil)

	require.Eventually(t, func() bool { return fc.batchCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, fc.entryCount())
}

func TestLoggerMinLevelFilter(t *testing.T) {
	t.Parallel()

	fc := newFakeCollector(t)
	logger := newTestLogger(t, &Config{
		Enabled:       true,
		MinLevel:      LevelWarn,
		BufferSize:    10,
		FlushInterval: time.Hour,
		EnableRemote:  true,
	}, fc, nil)

	logger.Log(LevelDebug, CategoryUser, "ignored", nil)
	logger.Log(LevelInfo, CategoryUser, "ignored too", nil)

	assert.Equal(t, 0, logger.BufferLen())
	assert.Equal(t, 0, fc.batchCount())
}

func TestLoggerDisabledDropsEverything(t *testing.T) {
	t.Parallel()

	fc := newFakeCollector(t)
	logger := newTestLogger(t, &Config{
		Enabled:       false,
		MinLevel:      LevelInfo,
		BufferSize:    10,
		FlushInterval: time.Hour,
		EnableRemote:  true,
	}, fc, nil)

	logger.Log(LevelCritical, CategorySystem, "dropped", nil)

	assert.Equal(t, 0, logger.BufferLen())
}

func TestLoggerBatchMetadata(t *testing.T) {
	t.Parallel()

	fc := newFakeCollector(t)
	logger := newTestLogger(t, &Config{
		Enabled:       true,
		MinLevel:      LevelInfo,
		BufferSize:    1,
		FlushInterval: time.Hour,
		EnableRemote:  true,
	}, fc, nil)

	logger.Log(LevelInfo, CategoryUser, "hello", nil)

	require.Eventually(t, func() bool { return fc.batchCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	fc.mu.Lock()
	batch := fc.batches[0]
	fc.mu.Unlock()

	assert.Equal(t, "A1B2-C3D4-E5F6", batch.Meta.SessionID)
	assert.False(t, batch.Meta.Timestamp.IsZero())
	assert.NotEmpty(t, batch.Meta.UserAgent)
}

func TestLoggerRemergeOnDeliveryFailure(t *testing.T) {
	t.Parallel()

	fc := newFakeCollector(t)
	fc.setFailing(true)

	logger := newTestLogger(t, &Config{
		Enabled:       true,
		MinLevel:      LevelInfo,
		BufferSize:    2,
		FlushInterval: time.Hour,
		EnableRemote:  true,
	}, fc, nil)

	logger.Log(LevelInfo, CategoryUser, "one", nil)
	logger.Log(LevelInfo, CategoryUser, "two", nil)

	// The failed batch is re-merged, so nothing is lost yet.
	require.Eventually(t, func() bool { return logger.BufferLen() == 2 }, 2*time.Second, 10*time.Millisecond)

	// Keep producing under sustained failure; the buffer must stay capped
	// at twice its configured capacity.
	for i := 0; i < 10; i++ {
		logger.Log(LevelInfo, CategoryUser, "more", nil)
	}
	require.Eventually(t, func() bool { return logger.BufferLen() <= 4 }, 2*time.Second, 10*time.Millisecond)

	fc.setFailing(false)
	require.NoError(t, logger.Flush(context.Background()))
	assert.Equal(t, 0, logger.BufferLen())
	assert.LessOrEqual(t, fc.entryCount(), 12)
	assert.Positive(t, fc.entryCount())
}

func TestLoggerCriticalPersistsToRing(t *testing.T) {
	t.Parallel()

	ring := store.NewRing(store.NewMemoryStore(), "critical", 50, nil)
	logger := newTestLogger(t, &Config{
		Enabled:          true,
		MinLevel:         LevelInfo,
		BufferSize:       10,
		FlushInterval:    time.Hour,
		EnableLocalStore: true,
	}, nil, ring)

	logger.Log(LevelCritical, CategorySystem, "out of memory", nil)
	logger.Log(LevelError, CategorySystem, "not persisted", nil)

	keys, err := ring.Keys()
	require.NoError(t, err)
	assert.Len(t, keys, 1, "only critical entries are persisted")

	payload, err := ring.Get(keys[0])
	require.NoError(t, err)

	var entry LogEntry
	require.NoError(t, json.Unmarshal(payload, &entry))
	assert.Equal(t, LevelCritical, entry.Level)
	assert.Equal(t, "out of memory", entry.Message)
}

func TestLoggerShutdownFlushesRemaining(t *testing.T) {
	t.Parallel()

	fc := newFakeCollector(t)
	logger := NewLogger(&Config{
		Enabled:       true,
		MinLevel:      LevelInfo,
		BufferSize:    100,
		FlushInterval: time.Hour,
		EnableRemote:  true,
	}, NewEntryFactory(nil, ""), NewCollectorClient(httpclient.New(nil), fc.server.URL, fc.server.URL), nil, nil)

	logger.Log(LevelInfo, CategoryUser, "pending", nil)
	logger.Shutdown(2 * time.Second)

	assert.Equal(t, 1, fc.entryCount())
}
