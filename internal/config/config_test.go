package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, "local", cfg.Lock.Backend)
	assert.Equal(t, 8, cfg.Ledger.MaxAttempts)
	assert.Equal(t, 10*time.Millisecond, cfg.Ledger.RetryBase)
	assert.Equal(t, time.Minute, cfg.Ledger.ReconcileInterval)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
server:
  port: "9090"
store:
  backend: remote
  remote:
    base_url: https://artsale.example.firebaseio.com
    timeout: 3s
ledger:
  max_attempts: 4
  reconcile_interval: 0s
`), 0o600))

	t.Setenv("ARTSALE_STORE_REMOTE_AUTH_TOKEN", "token")
	t.Setenv("ARTSALE_LOG_LEVEL", "debug")

	cfg, err := Load(file)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "remote", cfg.Store.Backend)
	assert.Equal(t, "https://artsale.example.firebaseio.com", cfg.Store.Remote.BaseURL)
	assert.Equal(t, 3*time.Second, cfg.Store.Remote.Timeout)
	assert.Equal(t, "token", cfg.Store.Remote.AuthToken)
	assert.Equal(t, 4, cfg.Ledger.MaxAttempts)
	assert.Zero(t, cfg.Ledger.ReconcileInterval)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown store", map[string]string{"ARTSALE_STORE_BACKEND": "mongo"}},
		{"remote without url", map[string]string{"ARTSALE_STORE_BACKEND": "remote"}},
		{"unknown lock", map[string]string{"ARTSALE_LOCK_BACKEND": "zookeeper"}},
		{"no attempts", map[string]string{"ARTSALE_LEDGER_MAX_ATTEMPTS": "0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
