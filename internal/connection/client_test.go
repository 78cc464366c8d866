package connection

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockWSServer creates a test WebSocket server.
func mockWSServer(t *testing.T, handler func(*websocket.Conn, *http.Request)) *httptest.Server {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer conn.Close()
		handler(conn, r)
	}))
	t.Cleanup(server.Close)

	return server
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

// recordingEvents captures channel signals.
type recordingEvents struct {
	opened   chan struct{}
	messages chan string
	closed   chan error
}

func newRecordingEvents() *recordingEvents {
	return &recordingEvents{
		opened:   make(chan struct{}, 1),
		messages: make(chan string, 100),
		closed:   make(chan error, 1),
	}
}

func (e *recordingEvents) OnOpen()               { e.opened <- struct{}{} }
func (e *recordingEvents) OnMessage(data []byte) { e.messages <- string(data) }
func (e *recordingEvents) OnClose(err error)     { e.closed <- err }

func (e *recordingEvents) waitOpen(t *testing.T) {
	t.Helper()
	select {
	case <-e.opened:
	case err := <-e.closed:
		t.Fatalf("channel closed before opening: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for open")
	}
}

func (e *recordingEvents) waitClose(t *testing.T) error {
	t.Helper()
	select {
	case err := <-e.closed:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for close")
		return nil
	}
}

func keepOpen(conn *websocket.Conn, _ *http.Request) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func TestWebsocketDialer_Open(t *testing.T) {
	server := mockWSServer(t, keepOpen)

	events := newRecordingEvents()
	ch := NewWebsocketDialer(DefaultWebsocketConfig(), nil).Dial(wsURL(server), events)

	events.waitOpen(t)
	require.NoError(t, ch.Close())

	assert.ErrorIs(t, events.waitClose(t), ErrChannelClosed)
}

func TestWebsocketDialer_Messages(t *testing.T) {
	frames := []string{
		`{"type":"connection","status":"connected"}`,
		`{"type":"bot_update","bot_id":"b1","data":{},"timestamp":"t1"}`,
		`{"type":"bot_update","bot_id":"b2","data":{},"timestamp":"t2"}`,
	}

	server := mockWSServer(t, func(conn *websocket.Conn, _ *http.Request) {
		for _, f := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		keepOpen(conn, nil)
	})

	events := newRecordingEvents()
	ch := NewWebsocketDialer(DefaultWebsocketConfig(), nil).Dial(wsURL(server), events)
	defer ch.Close()

	events.waitOpen(t)

	for i, want := range frames {
		select {
		case got := <-events.messages:
			assert.Equal(t, want, got, "frame %d", i)
		case <-time.After(2 * time.Second):
			t.Fatalf("timeout waiting for frame %d", i)
		}
	}
}

func TestWebsocketDialer_Send(t *testing.T) {
	var mu sync.Mutex
	var received []string
	got := make(chan struct{}, 1)

	server := mockWSServer(t, func(conn *websocket.Conn, _ *http.Request) {
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			mu.Lock()
			received = append(received, string(msg))
			mu.Unlock()
			got <- struct{}{}
		}
	})

	events := newRecordingEvents()
	ch := NewWebsocketDialer(DefaultWebsocketConfig(), nil).Dial(wsURL(server), events)
	defer ch.Close()

	events.waitOpen(t)
	require.NoError(t, ch.Send([]byte(PingFrame)))

	select {
	case <-got:
	case <-time.After(2 * time.Second):
		t.Fatal("server never received the frame")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"ping"}, received)
}

func TestWebsocketDialer_SendBeforeOpen(t *testing.T) {
	// Nothing listens here; the dial fails but Send is checked first.
	ch := NewWebsocketDialer(DefaultWebsocketConfig(), nil).Dial("ws://127.0.0.1:1/connect", newRecordingEvents())
	defer ch.Close()

	err := ch.Send([]byte("ping"))
	assert.True(t, err == ErrNotConnected || err == ErrChannelClosed, "got %v", err)
}

func TestWebsocketDialer_DialFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer server.Close()

	events := newRecordingEvents()
	NewWebsocketDialer(DefaultWebsocketConfig(), nil).Dial(wsURL(server), events)

	err := events.waitClose(t)
	assert.ErrorIs(t, err, websocket.ErrBadHandshake)

	select {
	case <-events.opened:
		t.Fatal("OnOpen delivered for failed handshake")
	default:
	}
}

func TestWebsocketDialer_ServerClose(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn, _ *http.Request) {
		conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "restarting"),
			time.Now().Add(time.Second),
		)
	})

	events := newRecordingEvents()
	ch := NewWebsocketDialer(DefaultWebsocketConfig(), nil).Dial(wsURL(server), events)
	defer ch.Close()

	events.waitOpen(t)
	err := events.waitClose(t)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseInternalServerErr), "got %v", err)
}

func TestWebsocketDialer_DoubleClose(t *testing.T) {
	server := mockWSServer(t, keepOpen)

	events := newRecordingEvents()
	ch := NewWebsocketDialer(DefaultWebsocketConfig(), nil).Dial(wsURL(server), events)
	events.waitOpen(t)

	assert.NoError(t, ch.Close())
	assert.NoError(t, ch.Close())
	assert.ErrorIs(t, ch.Send([]byte("ping")), ErrChannelClosed)
}

func TestWebsocketDialer_TokenInQuery(t *testing.T) {
	tokens := make(chan string, 1)
	server := mockWSServer(t, func(conn *websocket.Conn, r *http.Request) {
		tokens <- r.URL.Query().Get("token")
		keepOpen(conn, r)
	})

	target, err := BuildURL(server.URL, "secret-token")
	require.NoError(t, err)

	events := newRecordingEvents()
	ch := NewWebsocketDialer(DefaultWebsocketConfig(), nil).Dial(target, events)
	defer ch.Close()

	events.waitOpen(t)
	assert.Equal(t, "secret-token", <-tokens)
}

func TestWebsocketDialer_UserAgent(t *testing.T) {
	agents := make(chan string, 1)
	server := mockWSServer(t, func(conn *websocket.Conn, r *http.Request) {
		agents <- r.Header.Get("User-Agent")
		keepOpen(conn, r)
	})

	cfg := DefaultWebsocketConfig()
	cfg.UserAgent = "botstream/test"

	events := newRecordingEvents()
	ch := NewWebsocketDialer(cfg, nil).Dial(wsURL(server), events)
	defer ch.Close()

	events.waitOpen(t)
	assert.Equal(t, "botstream/test", <-agents)
}
