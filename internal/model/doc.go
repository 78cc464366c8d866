// Package model defines the envelope shared between the Connection Manager
// and dashboard subscribers.
//
// Conventions:
//   - Payloads stay as raw JSON; the stream core never interprets them
//   - Timestamps are the backend's ISO 8601 strings, passed through unchanged
//   - Bot IDs are the backend's UUID strings
package model
