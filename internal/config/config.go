// Package config loads and validates telemetry pipeline settings from YAML
// configuration files and command line flags via viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Viper lowercases configuration keys, but threshold names must match the
// camelCase metric names used throughout the pipeline.
var canonicalMetricNames = map[string]string{
	"pageloadtime":          "pageLoadTime",
	"errorrate":             "errorRate",
	"apiresponsetime":       "apiResponseTime",
	"memoryusage":           "memoryUsage",
	"cpuusage":              "cpuUsage",
	"cachehitrate":          "cacheHitRate",
	"usersatisfactionscore": "userSatisfactionScore",
}

// RemoteSettings holds the collector endpoint configuration.
type RemoteSettings struct {
	Enabled   bool   `mapstructure:"enabled"`
	LogsURL   string `mapstructure:"logsurl"`
	AlertsURL string `mapstructure:"alertsurl"`
	EventsURL string `mapstructure:"eventsurl"`
}

// ConsoleSettings controls mirroring of captured entries to local logs.
type ConsoleSettings struct {
	Enabled bool `mapstructure:"enabled"`
}

// LocalStoreSettings configures the durable local record store.
type LocalStoreSettings struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// RetentionSettings holds per-record-type retention horizons in days.
type RetentionSettings struct {
	LogDays   int `mapstructure:"logdays"`
	AlertDays int `mapstructure:"alertdays"`
}

// ProbeSettings configures the runtime resource probe.
type ProbeSettings struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
}

// LogSettings configures the pipeline's own rotating log file.
type LogSettings struct {
	Enabled   bool   `mapstructure:"enabled"`
	Path      string `mapstructure:"path"`
	MaxSizeMB int    `mapstructure:"maxsize"`
}

// Settings is the root configuration for the telemetry pipeline.
type Settings struct {
	Enabled         bool               `mapstructure:"enabled"`
	Level           string             `mapstructure:"level"`
	BufferSize      int                `mapstructure:"buffersize"`
	FlushInterval   time.Duration      `mapstructure:"flushinterval"`
	EvalInterval    time.Duration      `mapstructure:"evalinterval"`
	DedupWindow     time.Duration      `mapstructure:"dedupwindow"`
	Thresholds      map[string]float64 `mapstructure:"thresholds"`
	SensitiveFields []string           `mapstructure:"sensitivefields"`
	Console         ConsoleSettings    `mapstructure:"console"`
	Remote          RemoteSettings     `mapstructure:"remote"`
	LocalStore      LocalStoreSettings `mapstructure:"localstore"`
	Retention       RetentionSettings  `mapstructure:"retention"`
	Probe           ProbeSettings      `mapstructure:"probe"`
	Log             LogSettings        `mapstructure:"log"`
}

// Load reads configuration from the given file path (or the default search
// paths when path is empty) and returns the unmarshalled settings.
func Load(path string) (*Settings, error) {
	setDefaults()

	if path != "" {
		viper.SetConfigFile(path)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.config/telemetryd")
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
		// Missing config file is fine, defaults apply.
	}

	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}
	settings.Thresholds = normalizeThresholds(settings.Thresholds)

	if err := settings.Validate(); err != nil {
		return nil, err
	}

	return settings, nil
}

// Validate checks settings for values the pipeline cannot run with.
func (s *Settings) Validate() error {
	if s.BufferSize <= 0 {
		return fmt.Errorf("buffersize must be positive, got %d", s.BufferSize)
	}
	if s.FlushInterval <= 0 {
		return fmt.Errorf("flushinterval must be positive, got %s", s.FlushInterval)
	}
	if s.EvalInterval <= 0 {
		return fmt.Errorf("evalinterval must be positive, got %s", s.EvalInterval)
	}
	if s.Remote.Enabled && s.Remote.LogsURL == "" {
		return fmt.Errorf("remote delivery enabled but remote.logsurl is empty")
	}
	for name, limit := range s.Thresholds {
		if limit <= 0 {
			return fmt.Errorf("threshold for %q must be positive, got %g", name, limit)
		}
	}
	return nil
}

func normalizeThresholds(in map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(in))
	for key, value := range in {
		if canonical, ok := canonicalMetricNames[strings.ToLower(key)]; ok {
			key = canonical
		}
		out[key] = value
	}
	return out
}
