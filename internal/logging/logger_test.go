// Package logging includes tests for the zap logger helpers.
package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// TestNewDevelopmentLogger confirms the development logger builds and logs.
func TestNewDevelopmentLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger, err := New(Options{Development: true, Output: &buf})
	require.NoError(t, err)
	logger.Info("development logger ready")
	_ = logger.Sync()

	assert.Contains(t, buf.String(), "development logger ready")
}

// TestNewProductionLogger ensures production output is JSON with the ts key.
func TestNewProductionLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger, err := New(Options{Output: &buf})
	require.NoError(t, err)
	logger.Info("production logger ready", zap.String("vendor", "solis"))
	_ = logger.Sync()

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "solis", entry["vendor"])
	assert.Contains(t, entry, "ts")
}

// TestCriticalRendersWithoutPanicking checks DPanic entries are labelled CRITICAL.
func TestCriticalRendersWithoutPanicking(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger, err := New(Options{Output: &buf})
	require.NoError(t, err)

	require.NotPanics(t, func() { Critical(logger, "login failed") })
	_ = logger.Sync()
	assert.Contains(t, buf.String(), `"level":"CRITICAL"`)
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	t.Parallel()

	_, err := New(Options{Level: "chatty"})
	require.Error(t, err)
}

func TestNewWritesRotatingFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	var buf bytes.Buffer
	logger, err := New(Options{Dir: dir, Output: &buf})
	require.NoError(t, err)
	logger.Warn("anomaly detected")
	_ = logger.Sync()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var found bool
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "plantmonitor-") {
			raw, err := os.ReadFile(filepath.Join(dir, e.Name()))
			require.NoError(t, err)
			found = strings.Contains(string(raw), "anomaly detected")
		}
	}
	assert.True(t, found, "expected a rotated log file containing the entry")
}
