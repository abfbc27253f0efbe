package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestL_BeforeInitIsNop(t *testing.T) {
	ResetForTest()
	require.NotNil(t, L())
	// Must not panic.
	Info("nothing %d", 1)
}

func TestInitWithWriter_Console(t *testing.T) {
	t.Cleanup(ResetForTest)

	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Color = false
	cfg.Level = "debug"
	require.NoError(t, InitWithWriter(cfg, zapcore.AddSync(&buf)))

	Debug("opening %s", "/parabank/index.htm")
	Warn("retrying")

	out := buf.String()
	assert.Contains(t, out, "DEBUG")
	assert.Contains(t, out, "opening /parabank/index.htm")
	assert.Contains(t, out, "WARN")
	assert.Contains(t, out, "parabank-e2e.")
}

func TestInitWithWriter_LevelFilters(t *testing.T) {
	t.Cleanup(ResetForTest)

	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Level = "warn"
	require.NoError(t, InitWithWriter(cfg, zapcore.AddSync(&buf)))

	Info("hidden")
	Error("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestInitWithWriter_InvalidLevel(t *testing.T) {
	t.Cleanup(ResetForTest)

	cfg := DefaultConfig()
	cfg.Level = "loud"
	err := InitWithWriter(cfg, zapcore.AddSync(&bytes.Buffer{}))
	assert.Error(t, err)
}

func TestInitWithWriter_JSONFile(t *testing.T) {
	t.Cleanup(ResetForTest)

	path := filepath.Join(t.TempDir(), "run.log")
	cfg := DefaultConfig()
	cfg.File = path
	require.NoError(t, InitWithWriter(cfg, zapcore.AddSync(&bytes.Buffer{})))

	Named("request").Info("sent")
	Close()

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	line := strings.TrimSpace(strings.Split(string(data), "\n")[0])
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "sent", entry["msg"])
	assert.Equal(t, "parabank-e2e.request", entry["logger"])
}
