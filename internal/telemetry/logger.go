package telemetry

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coursepulse/telemetry/internal/logging"
	"github.com/coursepulse/telemetry/internal/observability"
	"github.com/coursepulse/telemetry/internal/store"
)

// Default buffer and flush settings
const (
	DefaultBufferSize    = 100
	DefaultFlushInterval = 30 * time.Second

	// The buffer never grows past reMergeFactor times the configured
	// capacity when flushes keep failing; the oldest entries are dropped.
	reMergeFactor = 2

	flushOutcomeSuccess = "success"
	flushOutcomeFailure = "failure"
)

// Config holds the log capture configuration.
type Config struct {
	// Enabled turns the whole capture pipeline on or off.
	Enabled bool
	// MinLevel is the minimum level recorded into the buffer.
	MinLevel Level
	// BufferSize triggers a flush when reached (default 100).
	BufferSize int
	// FlushInterval triggers a periodic flush when the buffer is non-empty.
	FlushInterval time.Duration
	// EnableConsole mirrors captured entries to the local structured log.
	EnableConsole bool
	// EnableRemote ships batches to the remote collector.
	EnableRemote bool
	// EnableLocalStore persists critical entries to the durable ring.
	EnableLocalStore bool
}

// DefaultLoggerConfig returns the default capture configuration.
func DefaultLoggerConfig() *Config {
	return &Config{
		Enabled:          true,
		MinLevel:         LevelInfo,
		BufferSize:       DefaultBufferSize,
		FlushInterval:    DefaultFlushInterval,
		EnableConsole:    true,
		EnableRemote:     true,
		EnableLocalStore: true,
	}
}

// Logger accumulates log entries and dispatches them to the remote
// collector on size, time and severity triggers. Producers never block on
// network I/O: the buffer is swapped under lock and sent outside it.
type Logger struct {
	config  *Config
	factory *EntryFactory
	client  *CollectorClient
	ring    *store.Ring
	metrics *observability.Metrics

	mu     sync.Mutex
	buffer []*LogEntry

	flushCh chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	meta FlushMeta
	log  *slog.Logger
}

// NewLogger creates the buffer/dispatcher service. The ring may be nil
// when durable storage is disabled; metrics may be nil to run unmetered.
func NewLogger(config *Config, factory *EntryFactory, client *CollectorClient, ring *store.Ring, metrics *observability.Metrics) *Logger {
	if config == nil {
		config = DefaultLoggerConfig()
	}
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultBufferSize
	}
	if config.FlushInterval <= 0 {
		config.FlushInterval = DefaultFlushInterval
	}

	ctx, cancel := context.WithCancel(context.Background())

	l := &Logger{
		config:  config,
		factory: factory,
		client:  client,
		ring:    ring,
		metrics: metrics,
		buffer:  make([]*LogEntry, 0, config.BufferSize),
		flushCh: make(chan struct{}, 1),
		ctx:     ctx,
		cancel:  cancel,
		meta: FlushMeta{
			SessionID: factory.SessionID(),
			UserAgent: "coursepulse-telemetryd",
		},
		log: logging.ForServiceSafe("telemetry"),
	}

	l.wg.Add(1)
	go l.dispatchLoop()

	l.log.Info("log capture started",
		"buffer_size", config.BufferSize,
		"flush_interval", config.FlushInterval,
		"min_level", config.MinLevel,
		"remote", config.EnableRemote,
		"local_store", config.EnableLocalStore,
	)

	return l
}

// Log records an entry. Safe for concurrent use. Entries at error or
// critical level trigger an immediate flush; reaching the configured
// buffer capacity does too. Critical entries are additionally persisted
// to the durable ring regardless of flush outcome.
func (l *Logger) Log(level Level, category Category, message string, context map[string]any) {
	l.LogWithStack(level, category, message, context, "")
}

// LogWithStack is Log with an attached stack trace, used for captured
// client errors.
func (l *Logger) LogWithStack(level Level, category Category, message string, context map[string]any, stackTrace string) {
	if !l.config.Enabled || !level.AtLeast(l.config.MinLevel) {
		return
	}

	entry := l.factory.Make(level, category, message, context, stackTrace)

	if l.config.EnableConsole {
		l.mirrorToConsole(entry)
	}

	if l.config.EnableLocalStore && entry.Level == LevelCritical && l.ring != nil {
		l.persistCritical(entry)
	}

	l.mu.Lock()
	l.buffer = append(l.buffer, entry)
	size := len(l.buffer)
	l.mu.Unlock()

	l.metrics.ObserveEntry(string(level))
	l.metrics.SetBufferDepth(size)

	if entry.Level == LevelError || entry.Level == LevelCritical || size >= l.config.BufferSize {
		l.triggerFlush()
	}
}

// BufferLen returns the current number of buffered entries.
func (l *Logger) BufferLen() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buffer)
}

// Flush performs a synchronous flush of the current buffer contents.
// Used on shutdown and by tests; periodic and triggered flushes go
// through the dispatch loop.
func (l *Logger) Flush(ctx context.Context) error {
	return l.flush(ctx)
}

// Shutdown cancels the periodic dispatcher and attempts a final flush
// within the given timeout. A failed final flush is logged and accepted;
// shutdown never returns an error to the host application.
func (l *Logger) Shutdown(timeout time.Duration) {
	l.cancel()
	l.wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := l.flush(ctx); err != nil {
		l.log.Warn("final flush failed, accepting data loss", "error", err)
	}
	l.log.Info("log capture stopped")
}

// triggerFlush signals the dispatch loop without blocking the producer.
func (l *Logger) triggerFlush() {
	select {
	case l.flushCh <- struct{}{}:
	default:
		// A flush is already pending.
	}
}

// dispatchLoop services the flush ticker and severity/size triggers.
func (l *Logger) dispatchLoop() {
	defer l.wg.Done()

	ticker := time.NewTicker(l.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if l.BufferLen() > 0 {
				if err := l.flush(l.ctx); err != nil {
					l.log.Warn("periodic flush failed", "error", err)
				}
			}
		case <-l.flushCh:
			if err := l.flush(l.ctx); err != nil {
				l.log.Warn("triggered flush failed", "error", err)
			}
		case <-l.ctx.Done():
			return
		}
	}
}

// flush swaps out the buffer under lock and sends the swapped batch with
// the lock released, so concurrent producers are never blocked on I/O.
// On failure the batch is re-merged at the front of the live buffer,
// capped at reMergeFactor times the configured capacity.
func (l *Logger) flush(ctx context.Context) error {
	l.mu.Lock()
	if len(l.buffer) == 0 {
		l.mu.Unlock()
		return nil
	}
	batch := l.buffer
	l.buffer = make([]*LogEntry, 0, l.config.BufferSize)
	l.mu.Unlock()

	if !l.config.EnableRemote || l.client == nil {
		// Remote delivery disabled: the swapped batch is discarded.
		l.metrics.SetBufferDepth(l.BufferLen())
		return nil
	}

	meta := l.meta
	meta.Timestamp = time.Now()

	err := l.client.SendLogs(ctx, &LogBatch{Logs: batch, Meta: meta})
	if err != nil {
		l.metrics.ObserveFlush(flushOutcomeFailure)
		l.remerge(batch)
		return err
	}

	l.metrics.ObserveFlush(flushOutcomeSuccess)
	l.metrics.SetBufferDepth(l.BufferLen())
	l.log.Debug("flushed log batch", "entries", len(batch))
	return nil
}

// remerge puts a failed batch back at the front of the live buffer and
// enforces the growth cap, dropping the oldest entries over the bound.
func (l *Logger) remerge(batch []*LogEntry) {
	l.mu.Lock()
	merged := make([]*LogEntry, 0, len(batch)+len(l.buffer))
	merged = append(merged, batch...)
	merged = append(merged, l.buffer...)

	bound := reMergeFactor * l.config.BufferSize
	dropped := 0
	if len(merged) > bound {
		dropped = len(merged) - bound
		merged = merged[dropped:]
	}
	l.buffer = merged
	size := len(l.buffer)
	l.mu.Unlock()

	l.metrics.ObserveDropped(dropped)
	l.metrics.SetBufferDepth(size)

	if dropped > 0 {
		l.log.Warn("dropped oldest entries under sustained delivery failure",
			"dropped", dropped,
			"buffered", size,
		)
	}
}

// persistCritical writes a critical entry to the durable ring. Failures
// are handled inside the ring; the pipeline continues unaffected.
func (l *Logger) persistCritical(entry *LogEntry) {
	payload, err := json.Marshal(entry)
	if err != nil {
		l.log.Warn("failed to marshal critical entry", "id", entry.ID, "error", err)
		return
	}
	l.ring.Append(entry.ID, entry.Timestamp, payload)
}

// mirrorToConsole writes the entry to the local structured log.
func (l *Logger) mirrorToConsole(entry *LogEntry) {
	attrs := []any{
		"category", entry.Category,
		"tags", entry.Tags,
	}
	if len(entry.Context) > 0 {
		attrs = append(attrs, "context", entry.Context)
	}

	switch entry.Level {
	case LevelDebug:
		l.log.Debug(entry.Message, attrs...)
	case LevelInfo:
		l.log.Info(entry.Message, attrs...)
	case LevelWarn:
		l.log.Warn(entry.Message, attrs...)
	default:
		l.log.Error(entry.Message, attrs...)
	}
}
