package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"relaybot/internal/eventbus"
	"relaybot/internal/relay"
)

const namespace = "relaybot"

var (
	processedSetDesc = prometheus.NewDesc(
		namespace+"_processed_identifiers",
		"Identifiers in the in-memory processed set",
		nil, nil,
	)
	uptimeDesc = prometheus.NewDesc(
		namespace+"_uptime_seconds",
		"Seconds since the relay started",
		nil, nil,
	)
	lastRelayDesc = prometheus.NewDesc(
		namespace+"_last_relay_timestamp_seconds",
		"Unix time of the last relay attempt (success or failure)",
		nil, nil,
	)
)

// StatusSource is what the status collector reads on each scrape.
type StatusSource interface {
	Snapshot() relay.Status
}

// StatusCollector reads the relay status on each scrape.
type StatusCollector struct {
	status StatusSource
	setLen func() int
	now    func() time.Time
}

func (c *StatusCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- processedSetDesc
	ch <- uptimeDesc
	ch <- lastRelayDesc
}

func (c *StatusCollector) Collect(ch chan<- prometheus.Metric) {
	st := c.status.Snapshot()
	if c.setLen != nil {
		ch <- prometheus.MustNewConstMetric(processedSetDesc, prometheus.GaugeValue, float64(c.setLen()))
	}
	ch <- prometheus.MustNewConstMetric(uptimeDesc, prometheus.GaugeValue, st.Uptime(c.now()).Seconds())
	if !st.LastAt.IsZero() {
		ch <- prometheus.MustNewConstMetric(lastRelayDesc, prometheus.GaugeValue, float64(st.LastAt.Unix()))
	}
}

// Metrics owns a private registry so tests and multiple instances never
// collide on the global one.
type Metrics struct {
	reg *prometheus.Registry

	outcomes      *prometheus.CounterVec
	relayDuration prometheus.Histogram
	dropped       *prometheus.CounterVec
	notifications *prometheus.CounterVec
	reloads       prometheus.Counter
}

// New registers the relay metrics. setLen may be nil.
func New(status StatusSource, setLen func() int) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		&StatusCollector{status: status, setLen: setLen, now: time.Now},
	)
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		outcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_outcomes_total",
			Help:      "Relay results by outcome",
		}, []string{"outcome"}),
		relayDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "relay_duration_seconds",
			Help:      "Time spent dispatching one identifier",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		dropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_ignored_total",
			Help:      "Inbound events that produced no relay work, by reason",
		}, []string{"reason"}),
		notifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notify chat deliveries by result",
		}, []string{"result"}),
		reloads: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "config_reloads_total",
			Help:      "Configuration reloads applied",
		}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

func (m *Metrics) Name() string { return "metrics" }

// Deliver counts one relay result. Metrics sits in the relay fanout so
// outcome counters see every result the loop produces.
func (m *Metrics) Deliver(_ context.Context, n relay.Notification) error {
	r := n.Result
	m.outcomes.WithLabelValues(r.Outcome.String()).Inc()
	if r.Outcome != relay.OutcomeSkippedDuplicate {
		m.relayDuration.Observe(r.Took.Seconds())
	}
	return nil
}

// Observe folds one bus event into the counters. The bus drops events for
// slow subscribers, so these counters are best-effort.
func (m *Metrics) Observe(ev eventbus.Event) {
	switch ev.Type {
	case eventbus.TypeEventDropped:
		if reason, ok := ev.Data.(string); ok {
			m.dropped.WithLabelValues(reason).Inc()
		}
	case eventbus.TypeNotifySent:
		m.notifications.WithLabelValues("sent").Inc()
	case eventbus.TypeNotifyFailed:
		m.notifications.WithLabelValues("failed").Inc()
	case eventbus.TypeNotifyDropped:
		m.notifications.WithLabelValues("dropped").Inc()
	case eventbus.TypeConfigReloaded:
		m.reloads.Inc()
	}
}

// Run consumes the bus until ctx is done.
func (m *Metrics) Run(ctx context.Context, bus eventbus.Bus) {
	ch, unsub := bus.Subscribe(256)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			m.Observe(ev)
		}
	}
}
