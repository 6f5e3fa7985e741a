package telemetry

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/coursepulse/telemetry/internal/httpclient"
)

// FlushMeta is the batch metadata sent alongside flushed entries.
type FlushMeta struct {
	SessionID string    `json:"sessionId"`
	Timestamp time.Time `json:"timestamp"`
	UserAgent string    `json:"userAgent"`
	URL       string    `json:"url"`
}

// LogBatch is the wire payload for POST /api/logs.
type LogBatch struct {
	Logs []*LogEntry `json:"logs"`
	Meta FlushMeta   `json:"meta"`
}

// AuxEvent is the wire payload for POST /api/monitoring/logs, used for
// auxiliary instrumentation events (API call timing, client errors).
type AuxEvent struct {
	Type      string    `json:"type"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// CollectorClient ships log batches and auxiliary events to the remote
// collector. Delivery is fire-and-forget from the producer's perspective;
// any non-2xx response is reported as a failure to the dispatcher.
type CollectorClient struct {
	http      *httpclient.Client
	logsURL   string
	eventsURL string
}

// NewCollectorClient creates a collector client over the shared HTTP client.
func NewCollectorClient(client *httpclient.Client, logsURL, eventsURL string) *CollectorClient {
	if client == nil {
		client = httpclient.New(nil)
	}
	return &CollectorClient{
		http:      client,
		logsURL:   logsURL,
		eventsURL: eventsURL,
	}
}

// SendLogs POSTs a batch of entries to the collector log endpoint.
func (c *CollectorClient) SendLogs(ctx context.Context, batch *LogBatch) error {
	return c.post(ctx, c.logsURL, batch)
}

// SendEvent POSTs an auxiliary instrumentation event to the collector.
func (c *CollectorClient) SendEvent(ctx context.Context, eventType string, data any) error {
	return c.post(ctx, c.eventsURL, &AuxEvent{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now(),
	})
}

func (c *CollectorClient) post(ctx context.Context, url string, body any) error {
	resp, err := c.http.Post(ctx, url, "application/json", body)
	if err != nil {
		return fmt.Errorf("collector request failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("collector returned status %d", resp.StatusCode)
	}
	return nil
}
