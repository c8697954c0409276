package observability

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/cory-johannsen/roomserver/internal/config"
)

func TestNewLogger_Formats(t *testing.T) {
	for _, format := range []string{"json", "console"} {
		logger, err := NewLogger(config.LoggingConfig{Level: "info", Format: format}, "roomserver")
		require.NoError(t, err, format)
		assert.NotNil(t, logger)
	}
}

func TestNewLogger_LevelApplied(t *testing.T) {
	logger, err := NewLogger(config.LoggingConfig{Level: "warn", Format: "json"}, "")
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))
}

func TestNewLogger_InvalidLevel(t *testing.T) {
	_, err := NewLogger(config.LoggingConfig{Level: "trace", Format: "json"}, "roomserver")
	assert.Error(t, err)
}

func TestNewLogger_InvalidFormat(t *testing.T) {
	_, err := NewLogger(config.LoggingConfig{Level: "info", Format: "xml"}, "roomserver")
	assert.Error(t, err)
}

func TestNewLogger_AllLevels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error"} {
		logger, err := NewLogger(config.LoggingConfig{Level: level, Format: "json"}, "roomserver")
		require.NoError(t, err, "level %q should be valid", level)
		assert.NotNil(t, logger)
	}
}

func TestNewLogger_ComponentEntriesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roomserver.log")
	logger, err := NewLogger(config.LoggingConfig{Level: "info", Format: "json", Output: path}, "roomserver")
	require.NoError(t, err)

	logger.Named(ComponentMatchmaker).Info("room started", zap.String("room_id", "lobby"))
	logger.Named(ComponentMatchmaker).Debug("below level")
	require.NoError(t, logger.Sync())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "roomserver", entry["service"])
	assert.Equal(t, ComponentMatchmaker, entry["component"])
	assert.Equal(t, "lobby", entry["room_id"])
	assert.Equal(t, "room started", entry["msg"])
}

func TestNewLogger_BadOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "dir", "roomserver.log")
	_, err := NewLogger(config.LoggingConfig{Level: "info", Format: "json", Output: path}, "")
	assert.Error(t, err)
}
