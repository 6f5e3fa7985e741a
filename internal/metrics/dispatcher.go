package metrics

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/coursepulse/telemetry/internal/httpclient"
	"github.com/coursepulse/telemetry/internal/logging"
)

// dispatchTimeout bounds a single alert POST.
const dispatchTimeout = 10 * time.Second

// AlertDispatcher ships alerts to the remote collector. Delivery is
// best-effort: failures are logged, never retried, and dispatch never
// blocks metric collection.
type AlertDispatcher struct {
	http *httpclient.Client
	url  string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	log    *slog.Logger
}

// NewAlertDispatcher creates a dispatcher POSTing single alerts to the
// given endpoint.
func NewAlertDispatcher(client *httpclient.Client, url string) *AlertDispatcher {
	if client == nil {
		client = httpclient.New(nil)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &AlertDispatcher{
		http:   client,
		url:    url,
		ctx:    ctx,
		cancel: cancel,
		log:    logging.ForServiceSafe("alert-dispatcher"),
	}
}

// Dispatch sends the alert asynchronously and returns immediately.
func (d *AlertDispatcher) Dispatch(alert *Alert) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.send(alert)
	}()
}

// Close stops accepting work and waits for in-flight dispatches.
func (d *AlertDispatcher) Close() {
	d.cancel()
	d.wg.Wait()
}

func (d *AlertDispatcher) send(alert *Alert) {
	ctx, cancel := context.WithTimeout(d.ctx, dispatchTimeout)
	defer cancel()

	resp, err := d.http.Post(ctx, d.url, "application/json", alert)
	if err != nil {
		d.log.Warn("alert delivery failed",
			"alert_id", alert.ID,
			"metric", alert.Metric,
			"error", err,
		)
		return
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		d.log.Warn("alert delivery rejected",
			"alert_id", alert.ID,
			"metric", alert.Metric,
			"status", resp.StatusCode,
		)
		return
	}

	d.log.Debug("alert delivered", "alert_id", alert.ID, "metric", alert.Metric)
}
