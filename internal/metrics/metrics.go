package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/botdesk/botstream/internal/connection"
	"github.com/botdesk/botstream/internal/dispatch"
)

const namespace = "botstream"

// ConnectionSource is anything reporting Connection Manager statistics.
type ConnectionSource interface {
	Stats() connection.ManagerStats
}

// DispatchSource is anything reporting Dispatch Registry statistics.
type DispatchSource interface {
	Stats() dispatch.Stats
}

// Metrics holds the push-style metrics. Pull-style counters are read from
// the sources by a Collector at scrape time.
type Metrics struct {
	// Transitions counts state changes.
	// Labels: from, to
	Transitions *prometheus.CounterVec
}

// New creates Metrics and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "connection",
				Name:      "transitions_total",
				Help:      "Connection state transitions",
			},
			[]string{"from", "to"},
		),
	}
	reg.MustRegister(m.Transitions)
	return m
}

// ObserveTransition records a state change. Its signature matches
// connection.ManagerConfig.OnStateChange.
func (m *Metrics) ObserveTransition(from, to connection.State) {
	if m == nil || m.Transitions == nil {
		return
	}
	m.Transitions.WithLabelValues(string(from), string(to)).Inc()
}

// Collector reads Manager and Registry statistics on every scrape.
type Collector struct {
	conn ConnectionSource
	disp DispatchSource

	state          *prometheus.Desc
	attempts       *prometheus.Desc
	dials          *prometheus.Desc
	opens          *prometheus.Desc
	reconnects     *prometheus.Desc
	exhausted      *prometheus.Desc
	frames         *prometheus.Desc
	decodeFailures *prometheus.Desc
	pings          *prometheus.Desc

	subscribers   *prometheus.Desc
	dispatched    *prometheus.Desc
	deliveries    *prometheus.Desc
	handlerPanics *prometheus.Desc
}

// NewCollector creates a Collector. Either source may be nil.
func NewCollector(conn ConnectionSource, disp DispatchSource) *Collector {
	connDesc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "connection", name), help, labels, nil)
	}
	dispDesc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "dispatch", name), help, nil, nil)
	}

	return &Collector{
		conn: conn,
		disp: disp,

		state:          connDesc("state", "1 for the current connection state, 0 otherwise", "state"),
		attempts:       connDesc("reconnect_attempts", "Consecutive failed attempts since the last open"),
		dials:          connDesc("dials_total", "Channels dialed"),
		opens:          connDesc("opens_total", "Channels that reached the open state"),
		reconnects:     connDesc("reconnects_total", "Reconnect attempts started by the backoff timer"),
		exhausted:      connDesc("exhausted_total", "Times the reconnect ceiling was reached"),
		frames:         connDesc("frames_received_total", "Inbound frames received"),
		decodeFailures: connDesc("decode_failures_total", "Inbound frames dropped as malformed"),
		pings:          connDesc("pings_sent_total", "Liveness probes sent"),

		subscribers:   dispDesc("subscribers", "Registered subscribers"),
		dispatched:    dispDesc("messages_total", "Messages dispatched"),
		deliveries:    dispDesc("deliveries_total", "Handler invocations that returned normally"),
		handlerPanics: dispDesc("handler_panics_total", "Handler invocations that panicked"),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	if c.conn != nil {
		for _, d := range []*prometheus.Desc{
			c.state, c.attempts, c.dials, c.opens, c.reconnects,
			c.exhausted, c.frames, c.decodeFailures, c.pings,
		} {
			ch <- d
		}
	}
	if c.disp != nil {
		for _, d := range []*prometheus.Desc{c.subscribers, c.dispatched, c.deliveries, c.handlerPanics} {
			ch <- d
		}
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c.conn != nil {
		s := c.conn.Stats()
		for _, st := range connection.States {
			v := 0.0
			if st == s.State {
				v = 1
			}
			ch <- prometheus.MustNewConstMetric(c.state, prometheus.GaugeValue, v, string(st))
		}
		ch <- prometheus.MustNewConstMetric(c.attempts, prometheus.GaugeValue, float64(s.Attempts))
		ch <- prometheus.MustNewConstMetric(c.dials, prometheus.CounterValue, float64(s.Dials))
		ch <- prometheus.MustNewConstMetric(c.opens, prometheus.CounterValue, float64(s.Opens))
		ch <- prometheus.MustNewConstMetric(c.reconnects, prometheus.CounterValue, float64(s.Reconnects))
		ch <- prometheus.MustNewConstMetric(c.exhausted, prometheus.CounterValue, float64(s.Exhausted))
		ch <- prometheus.MustNewConstMetric(c.frames, prometheus.CounterValue, float64(s.FramesReceived))
		ch <- prometheus.MustNewConstMetric(c.decodeFailures, prometheus.CounterValue, float64(s.DecodeFailures))
		ch <- prometheus.MustNewConstMetric(c.pings, prometheus.CounterValue, float64(s.PingsSent))
	}

	if c.disp != nil {
		s := c.disp.Stats()
		ch <- prometheus.MustNewConstMetric(c.subscribers, prometheus.GaugeValue, float64(s.Subscribers))
		ch <- prometheus.MustNewConstMetric(c.dispatched, prometheus.CounterValue, float64(s.Dispatched))
		ch <- prometheus.MustNewConstMetric(c.deliveries, prometheus.CounterValue, float64(s.Deliveries))
		ch <- prometheus.MustNewConstMetric(c.handlerPanics, prometheus.CounterValue, float64(s.HandlerPanics))
	}
}
