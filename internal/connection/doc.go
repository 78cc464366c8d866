// Package connection implements the Connection Manager component.
//
// The Connection Manager:
//   - Owns one persistent WebSocket channel to the bot backend at a time
//   - Authenticates it with a bearer token carried in the connect URL
//   - Reconnects with linear backoff (base * attempt), up to 5 consecutive attempts
//   - Decodes inbound frames and hands them to the Dispatch Registry
//   - Optionally sends a "ping" liveness probe while open
package connection
