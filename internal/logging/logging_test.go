package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests mutate global logger state, so they run sequentially.

func TestForServiceAddsAttribute(t *testing.T) {
	var structured, human bytes.Buffer
	SetOutput(&structured, &human)

	ForService("capture").Info("started")

	var record map[string]any
	require.NoError(t, json.Unmarshal(structured.Bytes(), &record))
	assert.Equal(t, "capture", record["service"])
	assert.Equal(t, "started", record["msg"])
}

func TestForServiceSafeWithoutInit(t *testing.T) {
	structuredLogger = nil
	t.Cleanup(Init)

	assert.Nil(t, ForService("capture"))
	assert.NotNil(t, ForServiceSafe("capture"))
}

func TestNewFileLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "service.log")

	logger, closeFn, err := NewFileLogger(path, "collector", 10, slog.LevelInfo)
	require.NoError(t, err)
	t.Cleanup(func() { _ = closeFn() })

	logger.Info("received batch", "entries", 3)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var record map[string]any
	require.NoError(t, json.Unmarshal(data, &record))
	assert.Equal(t, "collector", record["service"])
	assert.Equal(t, float64(3), record["entries"])
}

func TestInitFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "telemetryd.log")

	closeFn, err := InitFile(path, 10)
	require.NoError(t, err)
	t.Cleanup(func() { _ = closeFn() })
	t.Cleanup(Init)

	Structured().Info("hello")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)
}
