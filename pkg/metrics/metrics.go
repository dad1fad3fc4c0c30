// Package metrics exposes Prometheus collectors for the monitoring client.
//
// A nil *Metrics is valid and records nothing, so components can be built
// without a registry in tests.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "gaswatch"

// Metrics holds all collectors.
type Metrics struct {
	framesTotal       *prometheus.CounterVec
	parseErrors       prometheus.Counter
	heartbeatsSent    prometheus.Counter
	connectionState   prometheus.Gauge
	reconnectAttempts prometheus.Counter
	resyncsTotal      *prometheus.CounterVec
	resubscribes      prometheus.Counter
	readingsTotal     *prometheus.CounterVec
	trackedSensors    prometheus.Gauge
	staleSensors      prometheus.Gauge
	siteDangerous     prometheus.Gauge
	lampOn            prometheus.Gauge
	actuatorCalls     *prometheus.CounterVec
	fansOn            prometheus.Gauge
}

// New creates the collectors and registers them with reg. A nil reg
// returns nil.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return nil
	}

	m := &Metrics{
		framesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stomp",
			Name:      "frames_total",
			Help:      "STOMP frames sent and received",
		}, []string{"direction", "command"}),

		parseErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stomp",
			Name:      "parse_errors_total",
			Help:      "Inbound frames dropped because they could not be decoded",
		}),

		heartbeatsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stomp",
			Name:      "heartbeats_sent_total",
			Help:      "Heartbeat frames sent",
		}),

		connectionState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "state",
			Help:      "Connection state (0 disconnected, 1 connecting, 2 connected, 3 reconnecting, 4 failed permanently, 5 closed)",
		}),

		reconnectAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "reconnect_attempts_total",
			Help:      "Scheduled reconnect attempts",
		}),

		resyncsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "resyncs_total",
			Help:      "Full resyncs by trigger",
		}, []string{"reason"}),

		resubscribes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "resubscribes_total",
			Help:      "Topics re-subscribed after going silent",
		}),

		readingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sensor",
			Name:      "readings_total",
			Help:      "Readings processed by worst gas status",
		}, []string{"status"}),

		trackedSensors: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sensor",
			Name:      "tracked",
			Help:      "Sensors in the current roster",
		}),

		staleSensors: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sensor",
			Name:      "stale",
			Help:      "Sensors silent beyond the liveness window at the last health check",
		}),

		siteDangerous: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "alarm",
			Name:      "site_dangerous",
			Help:      "1 while the site verdict is dangerous",
		}),

		lampOn: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "alarm",
			Name:      "lamp_on",
			Help:      "1 while the warning lamp is on",
		}),

		actuatorCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alarm",
			Name:      "actuator_calls_total",
			Help:      "Actuator calls by action and result",
		}, []string{"action", "result"}),

		fansOn: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "fan",
			Name:      "on",
			Help:      "Fan ports reporting ON",
		}),
	}

	reg.MustRegister(
		m.framesTotal,
		m.parseErrors,
		m.heartbeatsSent,
		m.connectionState,
		m.reconnectAttempts,
		m.resyncsTotal,
		m.resubscribes,
		m.readingsTotal,
		m.trackedSensors,
		m.staleSensors,
		m.siteDangerous,
		m.lampOn,
		m.actuatorCalls,
		m.fansOn,
	)
	return m
}

// FrameSent counts an outbound frame.
func (m *Metrics) FrameSent(command string) {
	if m == nil {
		return
	}
	m.framesTotal.WithLabelValues("out", command).Inc()
}

// FrameReceived counts an inbound frame.
func (m *Metrics) FrameReceived(command string) {
	if m == nil {
		return
	}
	m.framesTotal.WithLabelValues("in", command).Inc()
}

// ParseError counts a dropped inbound frame.
func (m *Metrics) ParseError() {
	if m == nil {
		return
	}
	m.parseErrors.Inc()
}

// HeartbeatSent counts a heartbeat.
func (m *Metrics) HeartbeatSent() {
	if m == nil {
		return
	}
	m.heartbeatsSent.Inc()
}

// SetConnectionState records the numeric connection state.
func (m *Metrics) SetConnectionState(state int) {
	if m == nil {
		return
	}
	m.connectionState.Set(float64(state))
}

// ReconnectScheduled counts a scheduled reconnect.
func (m *Metrics) ReconnectScheduled() {
	if m == nil {
		return
	}
	m.reconnectAttempts.Inc()
}

// Resync counts a full resync.
func (m *Metrics) Resync(reason string) {
	if m == nil {
		return
	}
	m.resyncsTotal.WithLabelValues(reason).Inc()
}

// Resubscribed counts a re-subscribed topic.
func (m *Metrics) Resubscribed() {
	if m == nil {
		return
	}
	m.resubscribes.Inc()
}

// Reading counts a processed reading.
func (m *Metrics) Reading(status string) {
	if m == nil {
		return
	}
	m.readingsTotal.WithLabelValues(status).Inc()
}

// SetSensors records tracked and stale sensor counts.
func (m *Metrics) SetSensors(tracked, stale int) {
	if m == nil {
		return
	}
	m.trackedSensors.Set(float64(tracked))
	m.staleSensors.Set(float64(stale))
}

// SetTracked records the roster size.
func (m *Metrics) SetTracked(tracked int) {
	if m == nil {
		return
	}
	m.trackedSensors.Set(float64(tracked))
}

// SetDangerous records the site verdict.
func (m *Metrics) SetDangerous(dangerous bool) {
	if m == nil {
		return
	}
	m.siteDangerous.Set(boolValue(dangerous))
}

// SetLamp records the lamp state.
func (m *Metrics) SetLamp(on bool) {
	if m == nil {
		return
	}
	m.lampOn.Set(boolValue(on))
}

// ActuatorCall counts an actuator call.
func (m *Metrics) ActuatorCall(action string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.actuatorCalls.WithLabelValues(action, result).Inc()
}

// SetFansOn records how many fan ports are running.
func (m *Metrics) SetFansOn(n int) {
	if m == nil {
		return
	}
	m.fansOn.Set(float64(n))
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
