package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewWritesToRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seedhook.log")
	logger, cleanup, err := New(path, "INFO")
	require.NoError(t, err)
	logger.Info("hello")
	cleanup()

	data, err := os.ReadFile(path)
	require.NoError(t, err, "expected log file to exist")
	assert.NotEmpty(t, data, "expected log file to contain the emitted entry")
}

func TestParseLevelFallsBackToInfo(t *testing.T) {
	assert.Equal(t, zapcore.InfoLevel, parseLevel("not-a-level"))
	assert.Equal(t, zapcore.DebugLevel, parseLevel("DEBUG"))
}
