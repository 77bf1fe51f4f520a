// Package config loads the chat server configuration from defaults, an
// optional YAML file and CHAT_* environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every runtime setting of the chat server.
type Config struct {
	Addr            string        `yaml:"addr"`
	QueueCapacity   int           `yaml:"queue_capacity"`
	MaxLineLength   int           `yaml:"max_line_length"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	Log   LogConfig   `yaml:"log"`
	Admin AdminConfig `yaml:"admin"`
	SSH   SSHConfig   `yaml:"ssh"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// AdminConfig controls the HTTP side door (metrics, health, WebSocket).
// An empty Addr disables it.
type AdminConfig struct {
	Addr          string `yaml:"addr"`
	WebSocketPath string `yaml:"websocket_path"`
}

// SSHConfig controls the SSH front door. An empty Addr disables it.
type SSHConfig struct {
	Addr        string `yaml:"addr"`
	HostKeyPath string `yaml:"host_key_path"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Addr:            "127.0.0.1:8080",
		QueueCapacity:   100,
		MaxLineLength:   64 * 1024,
		WriteTimeout:    10 * time.Second,
		ShutdownTimeout: 5 * time.Second,
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Admin: AdminConfig{
			WebSocketPath: "/ws",
		},
		SSH: SSHConfig{
			HostKeyPath: "configs/ssh_host_ed25519",
		},
	}
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// path is empty) and the environment, then validates it.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %q: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("config: %s: %w", key, err)
		}
		*dst = n
		return nil
	}
	dur := func(key string, dst *time.Duration) error {
		v, ok := lookup(key)
		if !ok {
			return nil
		}
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("config: %s: %w", key, err)
		}
		*dst = d
		return nil
	}

	str("CHAT_ADDR", &c.Addr)
	str("CHAT_LOG_LEVEL", &c.Log.Level)
	str("CHAT_LOG_FORMAT", &c.Log.Format)
	str("CHAT_ADMIN_ADDR", &c.Admin.Addr)
	str("CHAT_WS_PATH", &c.Admin.WebSocketPath)
	str("CHAT_SSH_ADDR", &c.SSH.Addr)
	str("CHAT_SSH_HOST_KEY", &c.SSH.HostKeyPath)

	return errors.Join(
		num("CHAT_QUEUE_CAPACITY", &c.QueueCapacity),
		num("CHAT_MAX_LINE_LENGTH", &c.MaxLineLength),
		dur("CHAT_WRITE_TIMEOUT", &c.WriteTimeout),
		dur("CHAT_SHUTDOWN_TIMEOUT", &c.ShutdownTimeout),
	)
}

// Validate reports the first setting that cannot be used.
func (c Config) Validate() error {
	switch {
	case c.Addr == "":
		return errors.New("config: addr must not be empty")
	case c.QueueCapacity <= 0:
		return fmt.Errorf("config: queue_capacity must be positive, got %d", c.QueueCapacity)
	case c.MaxLineLength <= 0:
		return fmt.Errorf("config: max_line_length must be positive, got %d", c.MaxLineLength)
	case c.WriteTimeout < 0:
		return fmt.Errorf("config: write_timeout must not be negative, got %s", c.WriteTimeout)
	case c.ShutdownTimeout <= 0:
		return fmt.Errorf("config: shutdown_timeout must be positive, got %s", c.ShutdownTimeout)
	case c.Admin.Addr != "" && !strings.HasPrefix(c.Admin.WebSocketPath, "/"):
		return fmt.Errorf("config: admin.websocket_path must start with '/', got %q", c.Admin.WebSocketPath)
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("config: log.format must be json or text, got %q", c.Log.Format)
	}
	return nil
}

// SlogLevel maps the configured level name onto a slog.Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("config: log.level: %w", err)
	}
	return level, nil
}

// NewLogger builds the process logger described by l.
func (l LogConfig) NewLogger() (*slog.Logger, error) {
	level, err := l.SlogLevel()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(l.Format, "text") {
		return slog.New(slog.NewTextHandler(os.Stdout, opts)), nil
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts)), nil
}
