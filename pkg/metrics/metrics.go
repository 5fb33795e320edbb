package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "lectern"

// Metrics holds the Prometheus collectors of the service. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	chatTurns        *prometheus.CounterVec
	degradedTurns    prometheus.Counter
	voiceActions     *prometheus.CounterVec
	retrievalSeconds prometheus.Histogram
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
}

// New creates collectors registered on a dedicated registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		chatTurns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "chat_turns_total",
				Help:      "Total number of completed chat turns",
			},
			[]string{"context_used"},
		),
		degradedTurns: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "chat_degraded_turns_total",
				Help:      "Chat turns answered without retrieval because the index was unavailable",
			},
		),
		voiceActions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "voice_actions_total",
				Help:      "Classified voice commands by action type",
			},
			[]string{"type"},
		),
		retrievalSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "retrieval_duration_seconds",
				Help:      "Duration of encode and search in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed",
			},
			[]string{"method", "path", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP requests in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
	}

	m.registry.MustRegister(
		m.chatTurns,
		m.degradedTurns,
		m.voiceActions,
		m.retrievalSeconds,
		m.httpRequests,
		m.httpDuration,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ChatTurn(contextUsed bool) {
	if m == nil {
		return
	}
	m.chatTurns.WithLabelValues(strconv.FormatBool(contextUsed)).Inc()
}

func (m *Metrics) DegradedTurn() {
	if m == nil {
		return
	}
	m.degradedTurns.Inc()
}

func (m *Metrics) VoiceAction(actionType string) {
	if m == nil {
		return
	}
	m.voiceActions.WithLabelValues(actionType).Inc()
}

func (m *Metrics) ObserveRetrieval(d time.Duration) {
	if m == nil {
		return
	}
	m.retrievalSeconds.Observe(d.Seconds())
}

// ObserveHTTP records one request. path must be the route template, not the raw URL.
func (m *Metrics) ObserveHTTP(method, path string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, path).Observe(d.Seconds())
}
