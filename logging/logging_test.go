package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"gamewire/config"
)

func TestSetupWritesJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "gamewire.log")
	logger, err := Setup(config.LogConfig{Level: "warn", Format: "json", Outputs: []string{path}})
	require.NoError(t, err)
	defer zap.ReplaceGlobals(zap.NewNop())

	logger.Info("hidden")
	logger.Warn("session dropped", zap.Uint64("session", 9))
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hidden")
	assert.Contains(t, string(data), `"msg":"session dropped"`)
	assert.Contains(t, string(data), `"session":9`)
}

func TestSetupRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rotating.log")
	logger, err := Setup(config.LogConfig{
		Format:   "console",
		Outputs:  []string{path},
		Rotation: config.RotationConfig{Enable: true, MaxSizeMB: 1},
	})
	require.NoError(t, err)
	defer zap.ReplaceGlobals(zap.NewNop())

	logger.Info("rotated line")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "rotated line")
}

func TestSetupRejectsBadConfig(t *testing.T) {
	_, err := Setup(config.LogConfig{Level: "loud", Outputs: []string{"stderr"}})
	assert.Error(t, err)
	_, err = Setup(config.LogConfig{Format: "xml", Outputs: []string{"stderr"}})
	assert.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]zap.AtomicLevel{
		"":        zap.NewAtomicLevelAt(zap.InfoLevel),
		"DEBUG":   zap.NewAtomicLevelAt(zap.DebugLevel),
		"warning": zap.NewAtomicLevelAt(zap.WarnLevel),
		"error":   zap.NewAtomicLevelAt(zap.ErrorLevel),
	} {
		got, err := ParseLevel(in)
		require.NoError(t, err)
		assert.Equal(t, want.Level(), got.Level(), in)
	}
}
