package model

import (
	"encoding/json"
	"errors"
)

// Message kinds sent by the backend.
const (
	TypeConnection = "connection" // sent once after the backend accepts the socket
	TypeBotUpdate  = "bot_update"
)

// Update kinds carried by bot_update messages. The trading engine also emits
// its own notification kinds, so this list is not exhaustive.
const (
	UpdateCreated = "created"
	UpdateStarted = "started"
	UpdateStopped = "stopped"
	UpdateError   = "error"
)

// ErrNoPayload is returned by DecodeData when the message carries no data.
var ErrNoPayload = errors.New("message has no data payload")

// Message is one inbound event from the backend.
type Message struct {
	Type       string          `json:"type"`
	Data       json.RawMessage `json:"data,omitempty"`
	Timestamp  string          `json:"timestamp,omitempty"`
	BotID      string          `json:"bot_id,omitempty"`
	UpdateType string          `json:"update_type,omitempty"`
}

// IsBotUpdate reports whether the message is a per-bot update.
func (m Message) IsBotUpdate() bool {
	return m.Type == TypeBotUpdate
}

// DecodeData unmarshals the payload into v. Interpreting payloads is left to
// subscribers; this is a convenience for them.
func (m Message) DecodeData(v any) error {
	if len(m.Data) == 0 {
		return ErrNoPayload
	}
	return json.Unmarshal(m.Data, v)
}
