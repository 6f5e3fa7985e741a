package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/coursepulse/telemetry/cmd/mockcollector"
	"github.com/coursepulse/telemetry/cmd/run"
	"github.com/coursepulse/telemetry/internal/config"
)

// RootCommand creates and returns the root command with all subcommands
// attached.
func RootCommand() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "telemetryd",
		Short: "CoursePulse client telemetry pipeline",
		Long:  "Captures application logs and metrics, evaluates alert thresholds and ships batches to the collector.",
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file")
	rootCmd.PersistentFlags().String("level", "info", "Minimum capture level (debug|info|warn|error|critical)")
	rootCmd.PersistentFlags().Int("buffersize", 100, "Entries buffered before a size-triggered flush")

	// Flag names match viper keys, so changed flags override the config file.
	_ = viper.BindPFlags(rootCmd.PersistentFlags())

	loadSettings := func() (*config.Settings, error) {
		return config.Load(configPath)
	}

	rootCmd.AddCommand(
		run.Command(loadSettings),
		mockcollector.Command(),
	)

	return rootCmd
}
