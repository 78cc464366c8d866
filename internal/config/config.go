package config

import (
	"log/slog"
	"time"

	"github.com/botdesk/botstream/internal/connection"
)

// Config is the root configuration for a botstream client.
type Config struct {
	API        APIConfig        `yaml:"api"`
	Auth       AuthConfig       `yaml:"auth"`
	Connection ConnectionConfig `yaml:"connection"`
	Dispatch   DispatchConfig   `yaml:"dispatch"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Log        LogConfig        `yaml:"log"`
}

// APIConfig holds backend endpoint settings.
type APIConfig struct {
	WSURL string `yaml:"ws_url"` // Stream base URL; "/connect" is appended
}

// AuthConfig locates the bearer token. Empty fields fall back to the
// BOTSTREAM_TOKEN environment variable.
type AuthConfig struct {
	Token     string `yaml:"token"`
	TokenFile string `yaml:"token_file"`
}

// ConnectionConfig holds Connection Manager and transport settings.
type ConnectionConfig struct {
	ReconnectBaseDelay   time.Duration `yaml:"reconnect_base_delay"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
	KeepaliveInterval    time.Duration `yaml:"keepalive_interval"` // 0 disables
	HandshakeTimeout     time.Duration `yaml:"handshake_timeout"`
	WriteTimeout         time.Duration `yaml:"write_timeout"`
}

// DispatchConfig holds consumer settings.
type DispatchConfig struct {
	WidgetBufferSize int `yaml:"widget_buffer_size"` // Max queued messages per buffered widget
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// ManagerConfig converts the connection settings for connection.NewManager.
func (c *Config) ManagerConfig() connection.ManagerConfig {
	return connection.ManagerConfig{
		URL:                  c.API.WSURL,
		ReconnectBaseDelay:   c.Connection.ReconnectBaseDelay,
		MaxReconnectAttempts: c.Connection.MaxReconnectAttempts,
		KeepaliveInterval:    c.Connection.KeepaliveInterval,
	}
}

// WebsocketConfig converts the transport settings for connection.NewWebsocketDialer.
func (c *Config) WebsocketConfig() connection.WebsocketConfig {
	ws := connection.DefaultWebsocketConfig()
	ws.HandshakeTimeout = c.Connection.HandshakeTimeout
	ws.WriteTimeout = c.Connection.WriteTimeout
	return ws
}

// SlogLevel returns the configured log level.
func (l LogConfig) SlogLevel() slog.Level {
	switch l.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
