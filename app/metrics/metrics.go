// Package metrics exposes the bot's Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry so tests and multiple instances never collide.
type Metrics struct {
	reg *prometheus.Registry

	flowEvents    *prometheus.CounterVec
	sessionsSwept prometheus.Counter
	storeOps      *prometheus.HistogramVec
	updates       *prometheus.CounterVec
	replies       *prometheus.CounterVec
	notifications *prometheus.CounterVec
}

// New registers every collector, including the Go runtime ones.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		flowEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "markerbot_flow_events_total",
				Help: "Flow lifecycle events by flow and event.",
			},
			[]string{"flow", "event"},
		),
		sessionsSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "markerbot_sessions_swept_total",
			Help: "Idle sessions reclaimed by the sweeper.",
		}),
		storeOps: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "markerbot_store_op_duration_seconds",
				Help:    "Duration of marker table operations.",
				Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"op", "status"},
		),
		updates: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "markerbot_updates_total",
				Help: "Handled Telegram updates by kind and status.",
			},
			[]string{"kind", "status"},
		),
		replies: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "markerbot_replies_total",
				Help: "Messages sent in reply to updates, by keyboard presence.",
			},
			[]string{"keyboard"},
		),
		notifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "markerbot_admin_notifications_total",
				Help: "Activity reports delivered to administrators.",
			},
			[]string{"status"},
		),
	}
	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.flowEvents, m.sessionsSwept, m.storeOps, m.updates, m.replies, m.notifications,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// FlowEvent counts one flow lifecycle event.
func (m *Metrics) FlowEvent(flow, event string) {
	m.flowEvents.WithLabelValues(flow, event).Inc()
}

// SessionsSwept counts reclaimed sessions.
func (m *Metrics) SessionsSwept(n int) {
	if n > 0 {
		m.sessionsSwept.Add(float64(n))
	}
}

// ObserveStore records one table operation.
func (m *Metrics) ObserveStore(op string, took time.Duration, err error) {
	m.storeOps.WithLabelValues(op, statusOf(err)).Observe(took.Seconds())
}

// ObserveUpdate counts one handled update.
func (m *Metrics) ObserveUpdate(kind, status string) {
	m.updates.WithLabelValues(kind, status).Inc()
}

// ObserveReplies counts the messages an update produced.
func (m *Metrics) ObserveReplies(n int, keyboard bool) {
	if n <= 0 {
		return
	}
	kb := "false"
	if keyboard {
		kb = "true"
	}
	m.replies.WithLabelValues(kb).Add(float64(n))
}

// ObserveNotification counts one delivery attempt to an administrator.
func (m *Metrics) ObserveNotification(err error) {
	m.notifications.WithLabelValues(statusOf(err)).Inc()
}

func statusOf(err error) string {
	if err != nil {
		return "fail"
	}
	return "ok"
}
