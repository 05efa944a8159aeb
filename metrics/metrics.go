// Package metrics exposes Prometheus instruments for the API, the workflow
// engine and the background scheduler.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "resolveit"

type Metrics struct {
	transitions     *prometheus.CounterVec
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	broadcastDrops  *prometheus.CounterVec
	jobs            *prometheus.CounterVec
	streamClients   prometheus.Gauge
}

// New registers every instrument with reg. A nil reg yields unregistered
// instruments, which is convenient in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "case_transitions_total",
			Help:      "Cases entering each workflow status.",
		}, []string{"status"}),
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"method", "route", "code"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		broadcastDrops: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcast_dropped_total",
			Help:      "Events dropped because a subscriber was not keeping up.",
		}, []string{"topic"}),
		jobs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduled_transitions_total",
			Help:      "Scheduled transitions by final state.",
		}, []string{"state"}),
		streamClients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dashboard_stream_clients",
			Help:      "Connected dashboard event stream clients.",
		}),
	}
}

func (m *Metrics) ObserveTransition(status string) {
	m.transitions.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveRequest(method, route string, code int, elapsed time.Duration) {
	m.requests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	m.requestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func (m *Metrics) IncBroadcastDrop(topic string) {
	m.broadcastDrops.WithLabelValues(topic).Inc()
}

func (m *Metrics) ObserveJob(state string) {
	m.jobs.WithLabelValues(state).Inc()
}

// StreamClientConnected adjusts the stream client gauge and returns the
// matching release function.
func (m *Metrics) StreamClientConnected() func() {
	m.streamClients.Inc()
	return m.streamClients.Dec
}

// Handler serves the registry in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
