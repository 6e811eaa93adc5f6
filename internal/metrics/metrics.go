// Package metrics holds the prometheus collectors for the real-time layer
// and the HTTP API. All methods are safe on a nil *Metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "socialhub"

type Metrics struct {
	gatherer prometheus.Gatherer

	sessions      *prometheus.GaugeVec
	onlineUsers   prometheus.Gauge
	pushes        *prometheus.CounterVec
	dropped       *prometheus.CounterVec
	notifications *prometheus.CounterVec
	suppressed    prometheus.Counter
	commands      *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
}

// New registers the collectors with reg. Passing a fresh
// prometheus.NewRegistry() keeps tests isolated from each other.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		gatherer: reg,
		sessions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "hub_sessions",
			Help:      "Live websocket sessions per hub channel.",
		}, []string{"channel"}),
		onlineUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "online_users",
			Help:      "Users with at least one live chat session.",
		}),
		pushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "router_pushes_total",
			Help:      "Envelopes queued to live sessions.",
		}, []string{"channel"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "router_dropped_total",
			Help:      "Envelopes dropped because a session's send buffer was full or closed.",
		}, []string{"channel"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification records written by the router, by result.",
		}, []string{"result"}),
		suppressed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "router_self_suppressed_total",
			Help:      "Recipients dropped because they performed the action themselves.",
		}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hub_commands_total",
			Help:      "Client commands handled per channel, by result code.",
		}, []string{"channel", "command", "result"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of REST requests by route and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	reg.MustRegister(
		m.sessions,
		m.onlineUsers,
		m.pushes,
		m.dropped,
		m.notifications,
		m.suppressed,
		m.commands,
		m.httpDuration,
	)
	return m
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) SessionOpened(channel string) {
	if m != nil {
		m.sessions.WithLabelValues(channel).Inc()
	}
}

func (m *Metrics) SessionClosed(channel string) {
	if m != nil {
		m.sessions.WithLabelValues(channel).Dec()
	}
}

func (m *Metrics) UserOnline() {
	if m != nil {
		m.onlineUsers.Inc()
	}
}

func (m *Metrics) UserOffline() {
	if m != nil {
		m.onlineUsers.Dec()
	}
}

func (m *Metrics) Pushed(channel string, n int) {
	if m != nil && n > 0 {
		m.pushes.WithLabelValues(channel).Add(float64(n))
	}
}

func (m *Metrics) Dropped(channel string) {
	if m != nil {
		m.dropped.WithLabelValues(channel).Inc()
	}
}

func (m *Metrics) NotificationPersisted() {
	if m != nil {
		m.notifications.WithLabelValues("persisted").Inc()
	}
}

func (m *Metrics) NotificationFailed() {
	if m != nil {
		m.notifications.WithLabelValues("failed").Inc()
	}
}

func (m *Metrics) Suppressed() {
	if m != nil {
		m.suppressed.Inc()
	}
}

func (m *Metrics) Command(channel, command, result string) {
	if m != nil {
		m.commands.WithLabelValues(channel, command, result).Inc()
	}
}

func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if m != nil {
		m.httpDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
	}
}
