package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestParseOverridesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
server:
  listen: 127.0.0.1:7100
  codec: cbor
  idle_timeout: 45s
registry:
  kind: etcd
  endpoints: [10.0.0.1:2379, 10.0.0.2:2379]
log:
  level: debug
  format: json
limits:
  rate_per_session: 0
`))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:7100", cfg.Server.Listen)
	assert.Equal(t, "127.0.0.1:7100", cfg.Server.Advertise, "advertise follows listen")
	assert.Equal(t, "cbor", cfg.Server.Codec)
	assert.Equal(t, 45*time.Second, cfg.Server.IdleTimeout)
	assert.Equal(t, "game", cfg.Server.Service, "untouched fields keep defaults")
	assert.Equal(t, []string{"10.0.0.1:2379", "10.0.0.2:2379"}, cfg.Registry.Endpoints)
	assert.Equal(t, "/gamewire/", cfg.Registry.Prefix)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Zero(t, cfg.Limits.RatePerSession)
}

func TestParseEmpty(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.Server.Advertise)
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	_, err := Parse([]byte("server:\n  listne: :7000\n"))
	assert.Error(t, err)
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := Default()
	cfg.Server.Codec = "xml"
	cfg.Wire.ByteOrder = "middle"
	cfg.Registry.Kind = "etcd"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.codec")
	assert.Contains(t, err.Error(), "wire.byte_order")
	assert.Contains(t, err.Error(), "registry.endpoints")
}

func TestParseRejectsZeroRequestTimeout(t *testing.T) {
	_, err := Parse([]byte("limits:\n  request_timeout: 0s\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "limits.request_timeout")
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gamewire.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  service: lobby\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "lobby", cfg.Server.Service)

	t.Setenv(EnvVar, path)
	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, "lobby", cfg.Server.Service)

	t.Setenv(EnvVar, "")
	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Server.Service, cfg.Server.Service)
	assert.Equal(t, ":7000", cfg.Server.Advertise)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
