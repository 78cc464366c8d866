package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/botdesk/botstream/internal/dispatch"
	"github.com/botdesk/botstream/internal/model"
)

// printMessages drains feed to w until ctx ends or feed is closed and empty.
func printMessages(ctx context.Context, feed *dispatch.Buffered, w io.Writer, verbose bool) {
	for {
		msg, ok := feed.Take(ctx)
		if !ok {
			return
		}
		fmt.Fprintln(w, formatMessage(msg, verbose))
	}
}

// formatMessage renders one console line.
func formatMessage(msg model.Message, verbose bool) string {
	if verbose {
		data, err := json.Marshal(msg)
		if err != nil {
			return fmt.Sprintf("[%s] <unprintable: %v>", msg.Type, err)
		}
		return string(data)
	}

	switch msg.Type {
	case model.TypeBotUpdate:
		kind := msg.UpdateType
		if kind == "" {
			kind = "update"
		}
		return fmt.Sprintf("[BOT %s] %s %s", msg.BotID, kind, msg.Timestamp)
	case model.TypeConnection:
		return fmt.Sprintf("[CONNECTION] %s %s", compact(msg.Data), msg.Timestamp)
	default:
		return fmt.Sprintf("[%s] %s %s", msg.Type, compact(msg.Data), msg.Timestamp)
	}
}

func compact(data json.RawMessage) string {
	if len(data) == 0 {
		return "{}"
	}
	return string(data)
}

// updateTally counts bot updates by update kind.
type updateTally struct {
	mu     sync.Mutex
	counts map[string]int64
}

func newUpdateTally() *updateTally {
	return &updateTally{counts: make(map[string]int64)}
}

func (t *updateTally) Handle(msg model.Message) {
	kind := msg.UpdateType
	if kind == "" {
		kind = "unspecified"
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.counts[kind]++
}

func (t *updateTally) snapshot() map[string]int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]int64, len(t.counts))
	for k, v := range t.counts {
		out[k] = v
	}
	return out
}
