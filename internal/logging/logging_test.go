package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMultiHandlerRespectsLevels(t *testing.T) {
	var debugBuf, warnBuf strings.Builder

	logger := slog.New(NewMultiHandler(
		slog.NewTextHandler(&debugBuf, &slog.HandlerOptions{Level: slog.LevelDebug}),
		slog.NewTextHandler(&warnBuf, &slog.HandlerOptions{Level: slog.LevelWarn}),
	)).With(slog.String("component", "test"))

	logger.Debug("noisy")
	logger.Warn("careful")

	assert.Contains(t, debugBuf.String(), "noisy")
	assert.Contains(t, debugBuf.String(), "careful")
	assert.NotContains(t, warnBuf.String(), "noisy")
	assert.Contains(t, warnBuf.String(), "careful")
	assert.Contains(t, warnBuf.String(), "component=test")
}

func TestNewWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.log")

	logger, closer, err := New(path, slog.LevelInfo)
	require.NoError(t, err)

	logger.Info("hello", slog.String("account_name", "S1"))
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "account_name=S1")
}
