package connection

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/botdesk/botstream/internal/model"
)

// DecodeFrame parses one inbound frame into a message envelope. The frame
// must be a JSON object with a non-empty type; the payload is not inspected.
func DecodeFrame(data []byte) (model.Message, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return model.Message{}, ErrEmptyFrame
	}
	// Rejects null, arrays, bare strings and the server's "pong" reply.
	if trimmed[0] != '{' {
		return model.Message{}, ErrMalformedFrame
	}

	var msg model.Message
	if err := json.Unmarshal(trimmed, &msg); err != nil {
		return model.Message{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if msg.Type == "" {
		return model.Message{}, ErrMissingType
	}

	return msg, nil
}
