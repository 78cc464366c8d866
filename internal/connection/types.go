package connection

import (
	"errors"
	"time"

	"github.com/jonboulle/clockwork"
)

// Errors
var (
	ErrEmptyCredential   = errors.New("credential is required")
	ErrNotConnected      = errors.New("not connected")
	ErrChannelClosed     = errors.New("channel closed")
	ErrUnsupportedScheme = errors.New("unsupported url scheme")
	ErrEmptyFrame        = errors.New("empty frame")
	ErrMalformedFrame    = errors.New("malformed frame")
	ErrMissingType       = errors.New("frame has no type")
)

// State is the lifecycle state of the Connection Manager.
type State string

const (
	StateIdle         State = "idle"
	StateConnecting   State = "connecting"
	StateOpen         State = "open"
	StateClosing      State = "closing"
	StateReconnecting State = "reconnecting"
)

// States lists every state, in lifecycle order.
var States = []State{StateIdle, StateConnecting, StateOpen, StateClosing, StateReconnecting}

// PingFrame is the application-level liveness probe.
const PingFrame = "ping"

// ManagerConfig configures the Connection Manager.
type ManagerConfig struct {
	URL                  string        // Base URL of the stream endpoint (e.g., http://localhost:8000/api/v1/ws)
	ReconnectBaseDelay   time.Duration // Delay before attempt n is base * n
	MaxReconnectAttempts int           // Consecutive failed attempts before giving up
	KeepaliveInterval    time.Duration // Interval between ping probes while open (0 = disabled)

	// Clock schedules reconnect timers and keepalive ticks. Nil means the real clock.
	Clock clockwork.Clock

	// OnStateChange is called after every transition, outside the Manager's
	// lock, in the order the transitions happened. Calls never overlap but may
	// arrive on a different goroutine from the operation that caused them, and
	// slightly after that operation returns. It may call back into the Manager.
	OnStateChange func(from, to State)
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		URL:                  "http://localhost:8000/api/v1/ws",
		ReconnectBaseDelay:   1 * time.Second,
		MaxReconnectAttempts: 5,
	}
}

// WebsocketConfig configures the gorilla/websocket transport.
type WebsocketConfig struct {
	HandshakeTimeout time.Duration // Max time for the opening handshake
	WriteTimeout     time.Duration // Write deadline for sends
	ReadLimit        int64         // Max inbound frame size in bytes (0 = unlimited)
	UserAgent        string        // Sent with the handshake when set
}

// DefaultWebsocketConfig returns sensible defaults.
func DefaultWebsocketConfig() WebsocketConfig {
	return WebsocketConfig{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		ReadLimit:        1 << 20,
	}
}

// ManagerStats provides statistics about the Connection Manager.
type ManagerStats struct {
	State          State
	Attempts       int   // Consecutive failed attempts since the last open
	Dials          int64 // Channels opened (initial connects and reconnects)
	Opens          int64 // Channels that reached the open state
	Reconnects     int64 // Reconnect attempts started by the backoff timer
	Exhausted      int64 // Times the attempt ceiling was reached
	FramesReceived int64
	DecodeFailures int64
	PingsSent      int64
}
