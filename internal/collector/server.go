// Package collector provides a development collector server implementing
// the wire contracts the pipeline ships to: batched logs, single alerts
// and auxiliary monitoring events. Intended for local development and
// integration testing, not production ingestion.
package collector

import (
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/coursepulse/telemetry/internal/logging"
	"github.com/coursepulse/telemetry/internal/observability"
)

// Server is a mock collector accepting the pipeline's POST contracts.
type Server struct {
	echo    *echo.Echo
	metrics *observability.Metrics
	log     *slog.Logger

	logBatches atomic.Uint64
	alertsSeen atomic.Uint64
	eventsSeen atomic.Uint64
}

// logBatchPayload mirrors the POST /api/logs body.
type logBatchPayload struct {
	Logs []map[string]any `json:"logs"`
	Meta map[string]any   `json:"meta"`
}

// auxEventPayload mirrors the POST /api/monitoring/logs body.
type auxEventPayload struct {
	Type      string `json:"type"`
	Data      any    `json:"data"`
	Timestamp any    `json:"timestamp"`
}

// NewServer creates the mock collector. The metrics handler is exposed on
// /metrics when metrics is non-nil. A nil log falls back to the global
// structured logger.
func NewServer(metrics *observability.Metrics, log *slog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	if log == nil {
		log = logging.ForServiceSafe("collector")
	}
	s := &Server{
		echo:    e,
		metrics: metrics,
		log:     log,
	}

	e.POST("/api/logs", s.handleLogs)
	e.POST("/api/monitoring/alerts", s.handleAlert)
	e.POST("/api/monitoring/logs", s.handleEvent)
	if metrics != nil {
		e.GET("/metrics", echo.WrapHandler(metrics.Handler()))
	}

	return s
}

// Start serves on the given address until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.log.Info("mock collector listening", "addr", addr)
	err := s.echo.Start(addr)
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Counts returns how many log batches, alerts and auxiliary events have
// been received. Used by integration tests.
func (s *Server) Counts() (batches, alerts, events uint64) {
	return s.logBatches.Load(), s.alertsSeen.Load(), s.eventsSeen.Load()
}

func (s *Server) handleLogs(c echo.Context) error {
	var payload logBatchPayload
	if err := c.Bind(&payload); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid batch"})
	}

	s.logBatches.Add(1)
	s.log.Info("received log batch",
		"entries", len(payload.Logs),
		"session", payload.Meta["sessionId"],
	)
	return c.NoContent(http.StatusAccepted)
}

func (s *Server) handleAlert(c echo.Context) error {
	var alert map[string]any
	if err := c.Bind(&alert); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid alert"})
	}

	s.alertsSeen.Add(1)
	s.log.Warn("received alert",
		"metric", alert["metric"],
		"severity", alert["severity"],
		"current", alert["currentValue"],
	)
	return c.NoContent(http.StatusAccepted)
}

func (s *Server) handleEvent(c echo.Context) error {
	var event auxEventPayload
	if err := c.Bind(&event); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid event"})
	}

	s.eventsSeen.Add(1)
	s.log.Info("received auxiliary event", "type", event.Type)
	return c.NoContent(http.StatusAccepted)
}
