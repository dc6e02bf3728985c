package mqtt

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Publish outcomes recorded by Metrics.
const (
	publishSent       = "sent"
	publishSuppressed = "suppressed"
	publishRetried    = "retried"
	publishFailed     = "failed"
)

// Connect reasons recorded by Metrics.
const (
	connectInitial = "initial"
	connectForced  = "forced"
	connectRenewal = "renewal"
	connectLost    = "lost"
)

// Metrics exposes Session counters to Prometheus. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	publishes     *prometheus.CounterVec
	connects      *prometheus.CounterVec
	connectErrors prometheus.Counter
	received      prometheus.Counter
	subscriptions prometheus.Gauge
	connected     prometheus.Gauge
}

// NewMetrics creates Session metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		publishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "neolink",
			Subsystem: "mqtt",
			Name:      "publishes_total",
			Help:      "MQTT publishes by outcome (sent, suppressed, retried, failed).",
		}, []string{"result"}),
		connects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "neolink",
			Subsystem: "mqtt",
			Name:      "connects_total",
			Help:      "Transports established by reason (initial, forced, renewal, lost).",
		}, []string{"reason"}),
		connectErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "neolink",
			Subsystem: "mqtt",
			Name:      "connect_errors_total",
			Help:      "Failed connection attempts.",
		}),
		received: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "neolink",
			Subsystem: "mqtt",
			Name:      "messages_received_total",
			Help:      "Inbound MQTT messages handed to the dispatcher.",
		}),
		subscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "neolink",
			Subsystem: "mqtt",
			Name:      "subscriptions",
			Help:      "Topics currently registered with the dispatcher.",
		}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "neolink",
			Subsystem: "mqtt",
			Name:      "connected",
			Help:      "1 when a broker transport is open.",
		}),
	}

	reg.MustRegister(m.publishes, m.connects, m.connectErrors, m.received, m.subscriptions, m.connected)
	return m
}

func (m *Metrics) publish(result string) {
	if m != nil {
		m.publishes.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) connect(reason string) {
	if m != nil {
		m.connects.WithLabelValues(reason).Inc()
		m.connected.Set(1)
	}
}

func (m *Metrics) connectError() {
	if m != nil {
		m.connectErrors.Inc()
		m.connected.Set(0)
	}
}

func (m *Metrics) disconnected() {
	if m != nil {
		m.connected.Set(0)
	}
}

func (m *Metrics) message() {
	if m != nil {
		m.received.Inc()
	}
}

func (m *Metrics) setSubscriptions(n int) {
	if m != nil {
		m.subscriptions.Set(float64(n))
	}
}
