package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestInitWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "app.log")
	logger, err := Init(Config{Level: "debug", Format: "json", Path: path})
	require.NoError(t, err)

	logger.Debug("resolve started", zap.String("mode", "scoped"))
	require.NoError(t, Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "resolve started")
	require.Contains(t, string(data), `"mode":"scoped"`)
}

func TestSetLevelFiltersDebug(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	logger, err := Init(Config{Level: "info", Format: "json", Path: path})
	require.NoError(t, err)

	logger.Debug("hidden")
	SetLevel("debug")
	logger.Debug("visible")
	require.NoError(t, Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NotContains(t, string(data), "hidden")
	require.Contains(t, string(data), "visible")
}

func TestOrNop(t *testing.T) {
	require.NotNil(t, OrNop(nil))
	l := zap.NewExample()
	require.Same(t, l, OrNop(l))
}
