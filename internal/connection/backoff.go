package connection

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// linearBackOff waits base * n before attempt n.
type linearBackOff struct {
	base    time.Duration
	attempt int
}

// NextBackOff implements backoff.BackOff.
func (b *linearBackOff) NextBackOff() time.Duration {
	b.attempt++
	return b.base * time.Duration(b.attempt)
}

// Reset implements backoff.BackOff.
func (b *linearBackOff) Reset() {
	b.attempt = 0
}

// newReconnectPolicy returns the reconnection policy: linear delays, stopping
// after maxAttempts consecutive calls until Reset.
func newReconnectPolicy(base time.Duration, maxAttempts int) backoff.BackOff {
	// WithMaxRetries treats zero as unlimited.
	if maxAttempts <= 0 {
		return &backoff.StopBackOff{}
	}
	return backoff.WithMaxRetries(&linearBackOff{base: base}, uint64(maxAttempts))
}
