// Package run implements the daemon subcommand: it assembles the capture
// pipeline, the metrics registry with threshold evaluation, the runtime
// probe and the retention janitor, then blocks until shutdown.
package run

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/coursepulse/telemetry/internal/config"
	"github.com/coursepulse/telemetry/internal/httpclient"
	"github.com/coursepulse/telemetry/internal/janitor"
	"github.com/coursepulse/telemetry/internal/logging"
	"github.com/coursepulse/telemetry/internal/metrics"
	"github.com/coursepulse/telemetry/internal/observability"
	"github.com/coursepulse/telemetry/internal/probe"
	"github.com/coursepulse/telemetry/internal/sanitize"
	"github.com/coursepulse/telemetry/internal/store"
	"github.com/coursepulse/telemetry/internal/telemetry"
)

const shutdownTimeout = 10 * time.Second

// Command returns the run subcommand.
func Command(loadSettings func() (*config.Settings, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the telemetry pipeline daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings()
			if err != nil {
				return err
			}
			return execute(settings)
		},
	}
}

func execute(settings *config.Settings) error {
	logging.Init()
	if settings.Log.Enabled {
		closeLog, err := logging.InitFile(settings.Log.Path, settings.Log.MaxSizeMB)
		if err != nil {
			return fmt.Errorf("failed to set up log file: %w", err)
		}
		defer func() { _ = closeLog() }()
	}
	log := logging.ForService("main")

	obs, err := observability.NewMetrics()
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}

	sessionID, err := sanitize.NewSessionID()
	if err != nil {
		return fmt.Errorf("failed to generate session id: %w", err)
	}
	sanitizer := sanitize.New(settings.SensitiveFields)
	factory := telemetry.NewEntryFactory(sanitizer, sessionID)

	var st store.Store
	if settings.LocalStore.Enabled {
		fileStore, err := store.NewFileStore(settings.LocalStore.Path)
		if err != nil {
			return fmt.Errorf("failed to open local store: %w", err)
		}
		st = fileStore
	} else {
		st = store.NewMemoryStore()
	}
	criticalRing := store.NewRing(st, "critical", store.DefaultRingCapacity, logging.ForService("store"))
	alertRing := store.NewRing(st, "alert", store.DefaultRingCapacity, logging.ForService("store"))

	httpClient := httpclient.New(nil)
	defer httpClient.Close()

	collectorClient := telemetry.NewCollectorClient(httpClient, settings.Remote.LogsURL, settings.Remote.EventsURL)

	logger := telemetry.NewLogger(&telemetry.Config{
		Enabled:          settings.Enabled,
		MinLevel:         telemetry.ParseLevel(settings.Level),
		BufferSize:       settings.BufferSize,
		FlushInterval:    settings.FlushInterval,
		EnableConsole:    settings.Console.Enabled,
		EnableRemote:     settings.Remote.Enabled,
		EnableLocalStore: settings.LocalStore.Enabled,
	}, factory, collectorClient, criticalRing, obs)

	dispatcher := metrics.NewAlertDispatcher(httpClient, settings.Remote.AlertsURL)
	hub := metrics.NewHub()
	evaluator := metrics.NewEvaluator(settings.Thresholds, settings.DedupWindow, dispatcher, alertRing, obs)
	registry := metrics.NewRegistry(settings.EvalInterval, evaluator, hub, obs)

	instrument := telemetry.NewInstrumentor(logger, collectorClient, registry)
	instrumentOutbound(httpClient, instrument,
		settings.Remote.LogsURL, settings.Remote.AlertsURL, settings.Remote.EventsURL)

	unsubscribe := hub.Subscribe(func(s *metrics.Snapshot) {
		log.Debug("metrics snapshot",
			"values", s.Values,
			"active_alerts", len(evaluator.Active()),
		)
	})
	defer unsubscribe()

	registry.Start()

	var runtimeProbe *probe.Probe
	if settings.Probe.Enabled {
		runtimeProbe = probe.New(registry, settings.Probe.Interval)
		runtimeProbe.Start()
	}

	sweeper := janitor.New(st, []janitor.Target{
		{Prefix: "critical", Retention: time.Duration(settings.Retention.LogDays) * 24 * time.Hour},
		{Prefix: "alert", Retention: time.Duration(settings.Retention.AlertDays) * 24 * time.Hour},
	}, janitor.DefaultInterval)
	sweeper.RegisterPurger("alert", evaluator)
	sweeper.Start()

	log.Info("telemetry pipeline running",
		"session", sessionID,
		"remote", settings.Remote.Enabled,
		"probe", settings.Probe.Enabled,
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info("shutting down", "signal", sig.String())

	sweeper.Stop()
	if runtimeProbe != nil {
		runtimeProbe.Stop()
	}
	registry.Stop()
	logger.Shutdown(shutdownTimeout)
	dispatcher.Close()

	return nil
}

// instrumentOutbound feeds outbound call timing into the instrumentor via
// the client hooks. Deliveries to the collector endpoints are excluded so
// instrumenting a delivery cannot generate another delivery.
func instrumentOutbound(client *httpclient.Client, instrument *telemetry.Instrumentor, skipURLs ...string) {
	skip := make(map[string]bool, len(skipURLs))
	for _, u := range skipURLs {
		skip[u] = true
	}

	var inflight sync.Map
	client.SetBeforeRequestHook(func(req *http.Request) {
		if skip[req.URL.String()] {
			return
		}
		inflight.Store(req, time.Now())
	})
	client.SetAfterResponseHook(func(req *http.Request, resp *http.Response, err error) {
		started, ok := inflight.LoadAndDelete(req)
		if !ok {
			return
		}
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		instrument.RecordAPICall(req.Method, req.URL.String(), time.Since(started.(time.Time)), status)
	})
}
