package connection

// Events receives the lifecycle signals of one channel. A channel delivers
// them sequentially from a single goroutine: at most one OnOpen, any number of
// OnMessage after it, then exactly one OnClose. Signals may be delivered
// from inside Dial or Close, or from another goroutine at any time after
// Dial is called.
type Events interface {
	OnOpen()
	OnMessage(data []byte)
	OnClose(err error)
}

// Channel is one underlying duplex transport instance.
type Channel interface {
	// Send writes one text frame. Returns ErrNotConnected before the channel opens.
	Send(data []byte) error

	// Close tears the channel down without waiting on the peer. OnClose is
	// still delivered. Safe to call more than once.
	Close() error
}

// Dialer opens channels. Dial should return promptly; the outcome arrives
// through events, possibly before Dial returns. The Manager calls Dial and
// Close without holding its state lock but while holding its dial lock, so
// subscribers reached by an OnMessage delivered from inside Dial must not
// call Connect or Disconnect.
type Dialer interface {
	Dial(rawURL string, events Events) Channel
}
