package connection

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebsocketDialer opens channels over gorilla/websocket.
type WebsocketDialer struct {
	cfg    WebsocketConfig
	logger *slog.Logger
	dialer *websocket.Dialer
}

// NewWebsocketDialer creates a WebSocket transport.
func NewWebsocketDialer(cfg WebsocketConfig, logger *slog.Logger) *WebsocketDialer {
	if logger == nil {
		logger = slog.Default()
	}

	return &WebsocketDialer{
		cfg:    cfg,
		logger: logger,
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
	}
}

// Dial starts opening a channel to rawURL and returns immediately.
func (d *WebsocketDialer) Dial(rawURL string, events Events) Channel {
	ctx, cancel := context.WithCancel(context.Background())

	c := &wsChannel{
		cfg:    d.cfg,
		logger: d.logger.With("url", redactURL(rawURL)),
		cancel: cancel,
	}

	go c.run(ctx, d.dialer, rawURL, events)

	return c
}

// wsChannel is a single WebSocket connection.
type wsChannel struct {
	cfg    WebsocketConfig
	logger *slog.Logger
	cancel context.CancelFunc

	// Write serialization
	writeMu sync.Mutex

	// State
	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

// run dials, then reads until the connection fails or is closed.
func (c *wsChannel) run(ctx context.Context, dialer *websocket.Dialer, rawURL string, events Events) {
	defer c.cancel()

	var header http.Header
	if c.cfg.UserAgent != "" {
		header = http.Header{"User-Agent": []string{c.cfg.UserAgent}}
	}

	conn, _, err := dialer.DialContext(ctx, rawURL, header)
	if err != nil {
		if c.isClosed() {
			err = ErrChannelClosed
		} else {
			c.logger.Debug("websocket dial failed", "error", err)
		}
		events.OnClose(err)
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		events.OnClose(ErrChannelClosed)
		return
	}
	c.conn = conn
	c.mu.Unlock()

	if c.cfg.ReadLimit > 0 {
		conn.SetReadLimit(c.cfg.ReadLimit)
	}

	c.logger.Debug("websocket connected")
	events.OnOpen()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if c.isClosed() {
				err = ErrChannelClosed
			} else if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warn("websocket read error", "error", err)
			}
			events.OnClose(err)
			return
		}

		events.OnMessage(data)
	}
}

// Send writes a text frame.
func (c *wsChannel) Send(data []byte) error {
	c.mu.Lock()
	conn, closed := c.conn, c.closed
	c.mu.Unlock()

	if closed {
		return ErrChannelClosed
	}
	if conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.cfg.WriteTimeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

// Close marks the channel closed and returns without waiting on the network.
// A dial still in progress is cancelled; an open socket gets a normal close
// frame and is then closed in the background.
func (c *wsChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.mu.Unlock()

	c.cancel()

	if conn == nil {
		return nil
	}

	go func() {
		// WriteControl may run concurrently with other writers.
		if err := conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		); err != nil {
			c.logger.Debug("write close frame", "error", err)
		}
		conn.Close()
	}()
	return nil
}

func (c *wsChannel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
