// Package mockcollector implements the subcommand serving a local
// collector for development, accepting the pipeline's delivery contracts.
package mockcollector

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/coursepulse/telemetry/internal/collector"
	"github.com/coursepulse/telemetry/internal/logging"
	"github.com/coursepulse/telemetry/internal/observability"
)

// Command returns the mockcollector subcommand.
func Command() *cobra.Command {
	var addr string
	var logFile string

	cmd := &cobra.Command{
		Use:   "mockcollector",
		Short: "Run a local mock collector for development",
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(addr, logFile)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8090", "Listen address")
	cmd.Flags().StringVar(&logFile, "log-file", "", "Write received traffic to a rotating log file")

	return cmd
}

func execute(addr, logFile string) error {
	logging.Init()

	var log *slog.Logger
	if logFile != "" {
		fileLog, closeLog, err := logging.NewFileLogger(logFile, "collector", 0, slog.LevelDebug)
		if err != nil {
			return fmt.Errorf("failed to set up log file: %w", err)
		}
		defer func() { _ = closeLog() }()
		log = fileLog
	}

	obs, err := observability.NewMetrics()
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}

	server := collector.NewServer(obs, log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(addr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-quit:
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(ctx)
}
