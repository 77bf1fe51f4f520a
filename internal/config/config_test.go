package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	require.Equal(t, 100, cfg.QueueCapacity)
	require.Equal(t, "127.0.0.1:8080", cfg.Addr)
}

func TestLoadYAMLThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat.yaml")
	data := []byte(`
addr: ":7000"
queue_capacity: 8
write_timeout: 3s
log:
  level: debug
  format: text
admin:
  addr: ":9090"
`)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	t.Setenv("CHAT_QUEUE_CAPACITY", "16")
	t.Setenv("CHAT_SSH_ADDR", ":2222")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":7000", cfg.Addr)
	require.Equal(t, 16, cfg.QueueCapacity)
	require.Equal(t, 3*time.Second, cfg.WriteTimeout)
	require.Equal(t, ":9090", cfg.Admin.Addr)
	require.Equal(t, "/ws", cfg.Admin.WebSocketPath)
	require.Equal(t, ":2222", cfg.SSH.Addr)

	level, err := cfg.Log.SlogLevel()
	require.NoError(t, err)
	require.Equal(t, slog.LevelDebug, level)
}

func TestLoadRejectsMalformedEnv(t *testing.T) {
	t.Setenv("CHAT_WRITE_TIMEOUT", "soon")

	_, err := Load("")
	require.ErrorContains(t, err, "CHAT_WRITE_TIMEOUT")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"empty addr":     func(c *Config) { c.Addr = "" },
		"zero capacity":  func(c *Config) { c.QueueCapacity = 0 },
		"zero max line":  func(c *Config) { c.MaxLineLength = 0 },
		"negative write": func(c *Config) { c.WriteTimeout = -time.Second },
		"zero shutdown":  func(c *Config) { c.ShutdownTimeout = 0 },
		"bad level":      func(c *Config) { c.Log.Level = "loud" },
		"bad format":     func(c *Config) { c.Log.Format = "xml" },
		"bad ws path": func(c *Config) {
			c.Admin.Addr = ":9090"
			c.Admin.WebSocketPath = "ws"
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestExampleConfigLoads(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "configs", "chat.example.yaml"))
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}
