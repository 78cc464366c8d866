package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/botdesk/botstream/internal/auth"
	"github.com/botdesk/botstream/internal/model"
)

// syncBuffer is a bytes.Buffer safe for concurrent writers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestBuildRootCmdIncludesSubcommands(t *testing.T) {
	cmd := buildRootCmd()
	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}

	for _, name := range []string{"watch", "version"} {
		assert.True(t, names[name], "expected subcommand %q to be registered", name)
	}
}

func TestVersionCmd_JSON(t *testing.T) {
	cmd := buildRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version", "--json"})

	require.NoError(t, cmd.Execute())

	var info map[string]string
	require.NoError(t, json.Unmarshal(out.Bytes(), &info))
	assert.NotEmpty(t, info["version"])
	assert.NotEmpty(t, info["go_version"])
}

func TestFormatMessage(t *testing.T) {
	tests := []struct {
		name string
		msg  model.Message
		want string
	}{
		{
			name: "bot update",
			msg:  model.Message{Type: model.TypeBotUpdate, BotID: "42", UpdateType: model.UpdateStarted, Timestamp: "t1"},
			want: "[BOT 42] started t1",
		},
		{
			name: "bot update without kind",
			msg:  model.Message{Type: model.TypeBotUpdate, BotID: "42", Timestamp: "t1"},
			want: "[BOT 42] update t1",
		},
		{
			name: "connection",
			msg:  model.Message{Type: model.TypeConnection, Data: json.RawMessage(`{"status":"connected"}`), Timestamp: "t0"},
			want: `[CONNECTION] {"status":"connected"} t0`,
		},
		{
			name: "unknown kind",
			msg:  model.Message{Type: "engine_notice", Timestamp: "t2"},
			want: "[engine_notice] {} t2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatMessage(tt.msg, false))
		})
	}
}

func TestFormatMessage_Verbose(t *testing.T) {
	msg := model.Message{Type: model.TypeBotUpdate, BotID: "42", Timestamp: "t1"}
	assert.JSONEq(t, `{"type":"bot_update","bot_id":"42","timestamp":"t1"}`, formatMessage(msg, true))
}

func TestUpdateTally(t *testing.T) {
	tally := newUpdateTally()
	tally.Handle(model.Message{Type: model.TypeBotUpdate, UpdateType: model.UpdateStarted})
	tally.Handle(model.Message{Type: model.TypeBotUpdate, UpdateType: model.UpdateStarted})
	tally.Handle(model.Message{Type: model.TypeBotUpdate})

	assert.Equal(t, map[string]int64{"started": 2, "unspecified": 1}, tally.snapshot())
}

func TestLoadConfig_Overrides(t *testing.T) {
	cfg, err := loadConfig(watchOptions{
		url:     "wss://bots.example.com/api/v1/ws",
		token:   "tok",
		debug:   true,
		metrics: true,
	})
	require.NoError(t, err)

	assert.Equal(t, "wss://bots.example.com/api/v1/ws", cfg.API.WSURL)
	assert.Equal(t, "tok", cfg.Auth.Token)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestLoadConfig_InvalidURL(t *testing.T) {
	_, err := loadConfig(watchOptions{url: "ftp://example.com"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api.ws_url")
}

func TestRunWatch_NoToken(t *testing.T) {
	t.Setenv(auth.EnvToken, "")

	err := runWatch(context.Background(), watchOptions{}, &syncBuffer{}, &syncBuffer{})
	assert.ErrorIs(t, err, auth.ErrNoToken)
}

func TestRunWatch_PrintsUpdates(t *testing.T) {
	tokens := make(chan string, 1)
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		tokens <- r.URL.Query().Get("token")
		conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"type":"bot_update","bot_id":"7","update_type":"started","data":{},"timestamp":"t1"}`))
		conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"type":"bot_update","bot_id":"8","update_type":"stopped","data":{},"timestamp":"t2"}`))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stdout, stderr := &syncBuffer{}, &syncBuffer{}
	done := make(chan error, 1)
	go func() {
		done <- runWatch(ctx, watchOptions{url: server.URL, token: "tok", botID: "7"}, stdout, stderr)
	}()

	require.Eventually(t, func() bool {
		return strings.Contains(stdout.String(), "[BOT 7] started t1")
	}, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, "tok", <-tokens)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}

	assert.NotContains(t, stdout.String(), "[BOT 8]")
	assert.Contains(t, stderr.String(), "connection state")
}

func TestRunWatch_GivesUp(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer server.Close()

	path := filepath.Join(t.TempDir(), "botstream.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
api:
  ws_url: `+server.URL+`
auth:
  token: expired
connection:
  reconnect_base_delay: 5ms
  max_reconnect_attempts: 2
`), 0644))

	done := make(chan error, 1)
	go func() {
		done <- runWatch(context.Background(), watchOptions{configPath: path}, &syncBuffer{}, &syncBuffer{})
	}()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, errGaveUp)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not give up")
	}
}
