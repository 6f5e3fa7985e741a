package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Viper state is global, so config tests run sequentially on a clean slate.
func loadFromYAML(t *testing.T, contents string) (*Settings, error) {
	t.Helper()

	viper.Reset()
	t.Cleanup(viper.Reset)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return Load(path)
}

func TestLoadDefaults(t *testing.T) {
	settings, err := loadFromYAML(t, "")
	require.NoError(t, err)

	assert.True(t, settings.Enabled)
	assert.Equal(t, "info", settings.Level)
	assert.Equal(t, 100, settings.BufferSize)
	assert.Equal(t, 30*time.Second, settings.FlushInterval)
	assert.Equal(t, 5*time.Second, settings.EvalInterval)
	assert.Equal(t, 5*time.Minute, settings.DedupWindow)

	assert.Equal(t, 3000.0, settings.Thresholds["pageLoadTime"])
	assert.Equal(t, 5.0, settings.Thresholds["errorRate"])
	assert.Equal(t, 2000.0, settings.Thresholds["apiResponseTime"])

	assert.Contains(t, settings.SensitiveFields, "password")
	assert.Contains(t, settings.SensitiveFields, "token")

	assert.Equal(t, 7, settings.Retention.LogDays)
	assert.Equal(t, 30, settings.Retention.AlertDays)
}

func TestLoadMissingConfigFileUsesDefaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	// Search paths must not pick up a real config file.
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	settings, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "info", settings.Level)
	assert.Equal(t, 100, settings.BufferSize)
}

func TestLoadOverrides(t *testing.T) {
	settings, err := loadFromYAML(t, `
level: debug
buffersize: 25
flushinterval: 10s
thresholds:
  pageLoadTime: 1500
remote:
  enabled: true
  logsurl: http://collector.internal/api/logs
`)
	require.NoError(t, err)

	assert.Equal(t, "debug", settings.Level)
	assert.Equal(t, 25, settings.BufferSize)
	assert.Equal(t, 10*time.Second, settings.FlushInterval)
	assert.Equal(t, 1500.0, settings.Thresholds["pageLoadTime"])
	assert.True(t, settings.Remote.Enabled)
	assert.Equal(t, "http://collector.internal/api/logs", settings.Remote.LogsURL)
}

func TestLoadRejectsInvalidBufferSize(t *testing.T) {
	_, err := loadFromYAML(t, "buffersize: 0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "buffersize")
}

func TestLoadRejectsRemoteWithoutURL(t *testing.T) {
	_, err := loadFromYAML(t, `
remote:
  enabled: true
  logsurl: ""
`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "logsurl")
}

func TestValidate(t *testing.T) {
	valid := &Settings{
		BufferSize:    100,
		FlushInterval: 30 * time.Second,
		EvalInterval:  5 * time.Second,
	}
	assert.NoError(t, valid.Validate())

	negativeThreshold := &Settings{
		BufferSize:    100,
		FlushInterval: 30 * time.Second,
		EvalInterval:  5 * time.Second,
		Thresholds:    map[string]float64{"errorRate": -1},
	}
	assert.Error(t, negativeThreshold.Validate())

	zeroEval := &Settings{
		BufferSize:    100,
		FlushInterval: 30 * time.Second,
	}
	assert.Error(t, zeroEval.Validate())
}
