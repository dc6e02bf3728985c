package neolink

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds per-camera Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	motionEvents *prometheus.CounterVec
	motion       *prometheus.GaugeVec
	battery      *prometheus.GaugeVec
	connected    *prometheus.GaugeVec
	decodeErrors *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		motionEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "neolink",
			Subsystem: "camera",
			Name:      "motion_events_total",
			Help:      "Motion detections reported by neolink.",
		}, []string{"camera"}),
		motion: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "neolink",
			Subsystem: "camera",
			Name:      "motion_detected",
			Help:      "1 while motion is active.",
		}, []string{"camera"}),
		battery: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "neolink",
			Subsystem: "camera",
			Name:      "battery_level",
			Help:      "Last reported battery level in percent.",
		}, []string{"camera"}),
		connected: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "neolink",
			Subsystem: "camera",
			Name:      "connected",
			Help:      "1 when neolink reports the camera connected.",
		}, []string{"camera"}),
		decodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "neolink",
			Subsystem: "camera",
			Name:      "decode_errors_total",
			Help:      "Payloads from neolink that could not be decoded.",
		}, []string{"camera", "topic"}),
	}
	reg.MustRegister(m.motionEvents, m.motion, m.battery, m.connected, m.decodeErrors)
	return m
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func (m *Metrics) setMotion(camera string, active bool) {
	if m == nil {
		return
	}
	if active {
		m.motionEvents.WithLabelValues(camera).Inc()
	}
	m.motion.WithLabelValues(camera).Set(boolGauge(active))
}

func (m *Metrics) setBattery(camera string, level *float64) {
	if m == nil {
		return
	}
	if level == nil {
		m.battery.DeleteLabelValues(camera)
		return
	}
	m.battery.WithLabelValues(camera).Set(*level)
}

func (m *Metrics) setConnected(camera string, connected bool) {
	if m == nil {
		return
	}
	m.connected.WithLabelValues(camera).Set(boolGauge(connected))
}

func (m *Metrics) decodeError(camera, topic string) {
	if m == nil {
		return
	}
	m.decodeErrors.WithLabelValues(camera, topic).Inc()
}

// forget drops every series of a removed camera.
func (m *Metrics) forget(camera string) {
	if m == nil {
		return
	}
	m.motionEvents.DeleteLabelValues(camera)
	m.motion.DeleteLabelValues(camera)
	m.battery.DeleteLabelValues(camera)
	m.connected.DeleteLabelValues(camera)
	m.decodeErrors.DeletePartialMatch(prometheus.Labels{"camera": camera})
}
