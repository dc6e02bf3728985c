package process

import "github.com/prometheus/client_golang/prometheus"

// Metrics reports supervisor state. A nil *Metrics records nothing.
type Metrics struct {
	up       *prometheus.GaugeVec
	restarts *prometheus.CounterVec
	exits    *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		up: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "neolink",
			Subsystem: "process",
			Name:      "up",
			Help:      "1 while the supervised process is running.",
		}, []string{"name"}),
		restarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "neolink",
			Subsystem: "process",
			Name:      "restarts_total",
			Help:      "Restart attempts after unexpected exits.",
		}, []string{"name"}),
		exits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "neolink",
			Subsystem: "process",
			Name:      "unexpected_exits_total",
			Help:      "Exits that were not requested by Stop.",
		}, []string{"name"}),
	}
	reg.MustRegister(m.up, m.restarts, m.exits)
	return m
}

func (m *Metrics) setUp(name string, up bool) {
	if m == nil {
		return
	}
	v := 0.0
	if up {
		v = 1
	}
	m.up.WithLabelValues(name).Set(v)
}

func (m *Metrics) restart(name string) {
	if m != nil {
		m.restarts.WithLabelValues(name).Inc()
	}
}

func (m *Metrics) unexpectedExit(name string) {
	if m != nil {
		m.exits.WithLabelValues(name).Inc()
	}
}
