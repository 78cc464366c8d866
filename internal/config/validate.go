package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/botdesk/botstream/internal/metrics"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if err := validateWSURL(c.API.WSURL); err != nil {
		return err
	}

	if c.Connection.ReconnectBaseDelay <= 0 {
		return errors.New("connection.reconnect_base_delay must be > 0")
	}
	if c.Connection.MaxReconnectAttempts < 1 {
		return errors.New("connection.max_reconnect_attempts must be >= 1")
	}
	if c.Connection.KeepaliveInterval < 0 {
		return errors.New("connection.keepalive_interval must be >= 0")
	}
	if c.Connection.HandshakeTimeout <= 0 {
		return errors.New("connection.handshake_timeout must be > 0")
	}
	if c.Connection.WriteTimeout <= 0 {
		return errors.New("connection.write_timeout must be > 0")
	}

	if c.Dispatch.WidgetBufferSize < 1 {
		return errors.New("dispatch.widget_buffer_size must be >= 1")
	}

	if c.Metrics.Enabled {
		if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
			return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
		}
		if !strings.HasPrefix(c.Metrics.Path, "/") {
			return fmt.Errorf("metrics.path must start with /, got %q", c.Metrics.Path)
		}
		if c.Metrics.Path == metrics.HealthPath {
			return fmt.Errorf("metrics.path %q is reserved for the health check", c.Metrics.Path)
		}
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error, got %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}

	return nil
}

func validateWSURL(raw string) error {
	if raw == "" {
		return errors.New("api.ws_url is required")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("api.ws_url: %w", err)
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return fmt.Errorf("api.ws_url scheme must be http, https, ws or wss, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("api.ws_url has no host: %q", raw)
	}
	return nil
}
