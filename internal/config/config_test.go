package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nervosys/chasm/internal/config"
)

func TestDefaults(t *testing.T) {
	cfg := config.Default()

	require.NotEmpty(t, cfg.Storage.Path)
	require.Equal(t, "127.0.0.1:8377", cfg.Server.Addr)
	require.Equal(t, 30*time.Second, cfg.Server.Heartbeat)
	require.Equal(t, 3, cfg.Harvest.MaxRetries)
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	require.Equal(t, config.Default().Server.Addr, cfg.Server.Addr)
}

func TestLoadLayersOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
storage:
  path: /data/chasm.db
harvest:
  providers: [vscode]
  roots:
    vscode: /custom/Code/User
server:
  addr: 0.0.0.0:9000
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, "/data/chasm.db", cfg.Storage.Path)
	require.Equal(t, []string{"vscode"}, cfg.Harvest.Providers)
	require.Equal(t, "/custom/Code/User", cfg.Harvest.Roots["vscode"])
	require.Equal(t, "0.0.0.0:9000", cfg.Server.Addr)
	// Unset values keep their defaults.
	require.Equal(t, 30*time.Second, cfg.Server.Heartbeat)
	require.Equal(t, 3, cfg.Harvest.MaxRetries)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage: ["), 0o644))

	_, err := config.Load(path)
	require.Error(t, err)
}
