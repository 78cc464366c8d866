// Package metrics exposes Prometheus metrics for the stream client.
//
// Key metrics:
//   - Connection state, dials, reconnects and exhausted retry budgets
//   - Inbound frame and decode failure counts
//   - Dispatch volume and handler panics
//   - State transitions by from/to state
//
// Metrics are registered on a caller-owned registry; nothing touches the
// Prometheus default registry.
package metrics
