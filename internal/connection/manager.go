package connection

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"

	"github.com/botdesk/botstream/internal/dispatch"
)

// Manager owns the stream connection to the bot backend.
type Manager interface {
	// Connect opens a channel authenticated with credential, replacing any
	// existing one. Returns immediately; progress is observable via State.
	Connect(credential string) error

	// Disconnect closes the channel and cancels any pending reconnect. Idempotent.
	Disconnect()

	// IsConnected reports whether the channel is open.
	IsConnected() bool

	// Subscribe registers a consumer for inbound messages. A nil handler is
	// ignored and yields nil.
	Subscribe(h dispatch.Handler) *dispatch.Subscription

	// Unsubscribe removes a consumer. Handlers that are not comparable, such
	// as dispatch.HandlerFunc, cannot be found by value; remove those through
	// the Subscription returned by Subscribe.
	Unsubscribe(h dispatch.Handler)

	// Ping sends the liveness probe on the open channel.
	Ping() error

	// State returns the current lifecycle state.
	State() State

	// AttemptCount returns consecutive failed attempts since the last open.
	AttemptCount() int

	// Stats returns current connection statistics.
	Stats() ManagerStats
}

type transition struct {
	from, to State
}

// manager implements the Manager interface.
type manager struct {
	cfg      ManagerConfig
	dialer   Dialer
	registry dispatch.Registry
	logger   *slog.Logger
	clock    clockwork.Clock

	// dialMu serializes closing the old channel and dialing the next one, so
	// neither happens under mu and at most one channel is live.
	dialMu sync.Mutex

	mu         sync.Mutex
	state      State
	credential string
	target     string // stream URL carrying the credential
	channel    Channel
	attempts   int
	policy     backoff.BackOff
	timer      clockwork.Timer
	stopPing   chan struct{}

	// gen identifies the live channel or pending timer. Bumped whenever
	// either is superseded so late callbacks can be recognised and dropped.
	gen uint64

	pending   []transition
	notifying bool // a goroutine is delivering pending transitions
	dialing   bool // dialMu is held; its holder flushes pending transitions

	// Stats
	dials          atomic.Int64
	opens          atomic.Int64
	reconnects     atomic.Int64
	exhausted      atomic.Int64
	framesReceived atomic.Int64
	decodeFailures atomic.Int64
	pingsSent      atomic.Int64
}

// NewManager creates a Connection Manager. Inbound messages are delivered to
// registry.
func NewManager(cfg ManagerConfig, dialer Dialer, registry dispatch.Registry, logger *slog.Logger) Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if registry == nil {
		registry = dispatch.NewRegistry(logger)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &manager{
		cfg:      cfg,
		dialer:   dialer,
		registry: registry,
		logger:   logger,
		clock:    clock,
		state:    StateIdle,
		policy:   newReconnectPolicy(cfg.ReconnectBaseDelay, cfg.MaxReconnectAttempts),
	}
}

// Connect opens a new channel with credential.
func (m *manager) Connect(credential string) error {
	if credential == "" {
		return ErrEmptyCredential
	}

	target, err := BuildURL(m.cfg.URL, credential)
	if err != nil {
		return err
	}

	m.dialMu.Lock()
	m.mu.Lock()
	old := m.teardownLocked()
	m.credential = credential
	m.target = target
	m.attempts = 0
	m.policy.Reset()
	gen := m.beginDialLocked()
	m.mu.Unlock()

	m.logger.Info("connecting", "url", redactURL(target))
	m.closeChannel(old)
	m.dial(target, gen)
	m.releaseDial()
	return nil
}

// Disconnect tears down the channel permanently.
func (m *manager) Disconnect() {
	m.dialMu.Lock()
	m.mu.Lock()
	if m.state == StateIdle && m.channel == nil && m.timer == nil {
		m.credential = ""
		m.target = ""
		m.mu.Unlock()
		m.dialMu.Unlock()
		return
	}

	m.setStateLocked(StateClosing)
	old := m.teardownLocked()
	m.credential = ""
	m.target = ""
	m.attempts = 0
	m.setStateLocked(StateIdle)
	m.dialing = true
	m.mu.Unlock()

	m.closeChannel(old)
	m.releaseDial()
	m.logger.Info("disconnected")
}

// IsConnected returns true iff the channel is open.
func (m *manager) IsConnected() bool {
	return m.State() == StateOpen
}

// Subscribe registers a consumer with the Dispatch Registry.
func (m *manager) Subscribe(h dispatch.Handler) *dispatch.Subscription {
	return m.registry.Subscribe(h)
}

// Unsubscribe removes a consumer from the Dispatch Registry.
func (m *manager) Unsubscribe(h dispatch.Handler) {
	m.registry.Unsubscribe(h)
}

// Ping sends the liveness probe. No reply is tracked.
func (m *manager) Ping() error {
	m.mu.Lock()
	ch := m.channel
	open := m.state == StateOpen
	m.mu.Unlock()

	if !open || ch == nil {
		return ErrNotConnected
	}
	if err := ch.Send([]byte(PingFrame)); err != nil {
		return err
	}
	m.pingsSent.Add(1)
	return nil
}

// State returns the lifecycle state.
func (m *manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// AttemptCount returns consecutive failed attempts.
func (m *manager) AttemptCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

// Stats returns current statistics.
func (m *manager) Stats() ManagerStats {
	m.mu.Lock()
	state, attempts := m.state, m.attempts
	m.mu.Unlock()

	return ManagerStats{
		State:          state,
		Attempts:       attempts,
		Dials:          m.dials.Load(),
		Opens:          m.opens.Load(),
		Reconnects:     m.reconnects.Load(),
		Exhausted:      m.exhausted.Load(),
		FramesReceived: m.framesReceived.Load(),
		DecodeFailures: m.decodeFailures.Load(),
		PingsSent:      m.pingsSent.Load(),
	}
}

// beginDialLocked moves to Connecting and reserves the generation of the
// next channel. The caller holds dialMu and mu, and dials after releasing mu.
func (m *manager) beginDialLocked() uint64 {
	m.gen++
	m.dialing = true
	m.setStateLocked(StateConnecting)
	m.dials.Add(1)
	return m.gen
}

// dial opens the channel for gen. Called with dialMu held and mu released,
// so the Dialer may deliver signals before returning.
func (m *manager) dial(target string, gen uint64) {
	ch := m.dialer.Dial(target, &channelEvents{m: m, gen: gen})

	m.mu.Lock()
	if gen == m.gen {
		m.channel = ch
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	// Superseded by a signal delivered from inside Dial.
	m.closeChannel(ch)
}

// teardownLocked cancels the pending timer and detaches the live channel,
// which the caller closes after releasing the lock. Callbacks from either
// become stale.
func (m *manager) teardownLocked() Channel {
	m.gen++

	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.stopKeepaliveLocked()

	ch := m.channel
	m.channel = nil
	return ch
}

func (m *manager) closeChannel(ch Channel) {
	if ch == nil {
		return
	}
	if err := ch.Close(); err != nil {
		m.logger.Debug("close channel", "error", err)
	}
}

// handleOpen processes the opened signal.
func (m *manager) handleOpen(gen uint64) {
	m.mu.Lock()
	if gen != m.gen || m.state != StateConnecting {
		m.mu.Unlock()
		return
	}

	m.attempts = 0
	m.policy.Reset()
	m.setStateLocked(StateOpen)
	m.startKeepaliveLocked()
	m.unlockAndNotify()

	m.opens.Add(1)
	m.logger.Info("connected")
}

// handleMessage decodes a frame and dispatches it. Malformed frames are
// dropped without touching connection state.
func (m *manager) handleMessage(gen uint64, data []byte) {
	m.mu.Lock()
	live := gen == m.gen && m.state == StateOpen
	m.mu.Unlock()

	if !live {
		return
	}

	m.framesReceived.Add(1)

	msg, err := DecodeFrame(data)
	if err != nil {
		m.decodeFailures.Add(1)
		m.logger.Debug("dropping frame", "error", err, "len", len(data))
		return
	}

	m.registry.Dispatch(msg)
}

// handleClose processes the closed/errored signal.
func (m *manager) handleClose(gen uint64, err error) {
	m.mu.Lock()
	if gen != m.gen || (m.state != StateOpen && m.state != StateConnecting) {
		// Superseded channel or explicit disconnect.
		m.mu.Unlock()
		return
	}

	m.channel = nil
	m.stopKeepaliveLocked()
	m.logger.Warn("connection lost", "error", err, "state", m.state)
	m.scheduleReconnectLocked()
	m.unlockAndNotify()
}

// scheduleReconnectLocked applies the backoff policy. Must be called with lock held.
func (m *manager) scheduleReconnectLocked() {
	delay := m.policy.NextBackOff()
	if delay == backoff.Stop {
		m.exhausted.Add(1)
		m.logger.Error("reconnect attempts exhausted", "attempts", m.attempts)
		m.gen++
		m.credential = ""
		m.target = ""
		m.setStateLocked(StateIdle)
		return
	}

	m.attempts++
	m.gen++
	gen := m.gen
	m.setStateLocked(StateReconnecting)
	m.timer = m.clock.AfterFunc(delay, func() { m.handleTimer(gen) })

	m.logger.Info("reconnect scheduled",
		"attempt", m.attempts,
		"max_attempts", m.cfg.MaxReconnectAttempts,
		"delay", delay,
	)
}

// handleTimer fires a scheduled reconnect. A timer that fires after
// Disconnect or Connect finds a newer generation and does nothing.
func (m *manager) handleTimer(gen uint64) {
	m.dialMu.Lock()
	m.mu.Lock()
	if gen != m.gen || m.state != StateReconnecting {
		m.mu.Unlock()
		m.dialMu.Unlock()
		return
	}

	m.timer = nil
	m.reconnects.Add(1)
	target := m.target
	next := m.beginDialLocked()
	m.mu.Unlock()

	m.dial(target, next)
	m.releaseDial()
}

// startKeepaliveLocked starts the ping ticker. Must be called with lock held.
func (m *manager) startKeepaliveLocked() {
	if m.cfg.KeepaliveInterval <= 0 {
		return
	}

	stop := make(chan struct{})
	m.stopPing = stop
	ticker := m.clock.NewTicker(m.cfg.KeepaliveInterval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.Chan():
				if err := m.Ping(); err != nil {
					m.logger.Debug("keepalive ping failed", "error", err)
				}
			}
		}
	}()
}

func (m *manager) stopKeepaliveLocked() {
	if m.stopPing != nil {
		close(m.stopPing)
		m.stopPing = nil
	}
}

func (m *manager) setStateLocked(to State) {
	if m.state == to {
		return
	}
	m.pending = append(m.pending, transition{from: m.state, to: to})
	m.state = to
}

// unlockAndNotify releases the lock and reports queued transitions in the
// order they happened. Only one goroutine delivers at a time; the others
// leave their transitions to it. While dialMu is held its holder delivers
// after releasing it, so observers never run under dialMu.
func (m *manager) unlockAndNotify() {
	if m.notifying || m.dialing {
		m.mu.Unlock()
		return
	}

	m.notifying = true
	for len(m.pending) > 0 {
		batch := m.pending
		m.pending = nil
		m.mu.Unlock()

		for _, t := range batch {
			m.logger.Debug("state change", "from", t.from, "to", t.to)
			if m.cfg.OnStateChange != nil {
				m.cfg.OnStateChange(t.from, t.to)
			}
		}

		m.mu.Lock()
	}
	m.notifying = false
	m.mu.Unlock()
}

// releaseDial ends a dialMu section and delivers transitions queued during it.
func (m *manager) releaseDial() {
	m.mu.Lock()
	m.dialing = false
	m.mu.Unlock()
	m.dialMu.Unlock()

	m.mu.Lock()
	m.unlockAndNotify()
}

// channelEvents binds one channel's signals to the generation it was dialed in.
type channelEvents struct {
	m   *manager
	gen uint64
}

func (e *channelEvents) OnOpen()               { e.m.handleOpen(e.gen) }
func (e *channelEvents) OnMessage(data []byte) { e.m.handleMessage(e.gen, data) }
func (e *channelEvents) OnClose(err error)     { e.m.handleClose(e.gen, err) }

// ReconnectDelays returns the delay before each attempt under cfg, in order.
func ReconnectDelays(cfg ManagerConfig) []time.Duration {
	policy := newReconnectPolicy(cfg.ReconnectBaseDelay, cfg.MaxReconnectAttempts)
	var delays []time.Duration
	for {
		d := policy.NextBackOff()
		if d == backoff.Stop {
			return delays
		}
		delays = append(delays, d)
	}
}
