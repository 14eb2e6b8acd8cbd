package metric

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "muxd"

// Request outcomes used as the "outcome" label.
const (
	OutcomeOK          = "ok"
	OutcomeError       = "error"
	OutcomeIgnored     = "ignored"
	OutcomeUnsupported = "unsupported"
)

// TypeUnknown is the "type" label for request tags the server does not know.
const TypeUnknown = "unknown"

// Registry holds all application metrics.
type Registry struct {
	registry *prometheus.Registry

	ConnectionsAccepted prometheus.Counter
	ConnectionsActive   prometheus.Gauge
	AcceptErrors        prometheus.Counter
	AcceptThrottled     prometheus.Counter
	DecodeErrors        *prometheus.CounterVec
	RequestsTotal       *prometheus.CounterVec
	RequestDuration     *prometheus.HistogramVec
	SessionsActive      prometheus.Gauge
	SessionsCreated     prometheus.Counter
}

// NewRegistry creates a registry with every muxd metric registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	r := &Registry{
		registry: reg,
		ConnectionsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_accepted_total",
			Help:      "Connections accepted on the local socket.",
		}),
		ConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_active",
			Help:      "Connections currently owned by a worker or queued.",
		}),
		AcceptErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "accept_errors_total",
			Help:      "Transport errors returned by Accept.",
		}),
		AcceptThrottled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "accept_throttled_total",
			Help:      "Accepts delayed by the rate limiter.",
		}),
		DecodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_errors_total",
			Help:      "Connections that ended with a decode failure, by kind.",
		}, []string{"kind"}),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Decoded requests, by message type and outcome.",
		}, []string{"type", "outcome"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Time from decoded request to written response.",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
		}, []string{"type"}),
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Sessions currently in the registry.",
		}),
		SessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_created_total",
			Help:      "Sessions created since start.",
		}),
	}

	reg.MustRegister(
		r.ConnectionsAccepted,
		r.ConnectionsActive,
		r.AcceptErrors,
		r.AcceptThrottled,
		r.DecodeErrors,
		r.RequestsTotal,
		r.RequestDuration,
		r.SessionsActive,
		r.SessionsCreated,
	)
	return r
}

// Registerer lets other components (the badger registry) add collectors.
func (r *Registry) Registerer() prometheus.Registerer {
	return r.registry
}

// Gatherer returns the underlying gatherer.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// ConnOpened records an accepted connection.
func (r *Registry) ConnOpened() {
	r.ConnectionsAccepted.Inc()
	r.ConnectionsActive.Inc()
}

// ConnClosed records a connection leaving its worker.
func (r *Registry) ConnClosed() {
	r.ConnectionsActive.Dec()
}

// IncAcceptError records a failed Accept.
func (r *Registry) IncAcceptError() {
	r.AcceptErrors.Inc()
}

// IncAcceptThrottled records an accept that waited on the limiter.
func (r *Registry) IncAcceptThrottled() {
	r.AcceptThrottled.Inc()
}

// IncDecodeError records a decode failure of the given kind.
func (r *Registry) IncDecodeError(kind string) {
	r.DecodeErrors.WithLabelValues(kind).Inc()
}

// ObserveRequest records one dispatched request.
func (r *Registry) ObserveRequest(msgType, outcome string, d time.Duration) {
	r.RequestsTotal.WithLabelValues(msgType, outcome).Inc()
	r.RequestDuration.WithLabelValues(msgType).Observe(d.Seconds())
}

// SessionCreated bumps the created counter and the live gauge.
func (r *Registry) SessionCreated() {
	r.SessionsCreated.Inc()
	r.SessionsActive.Inc()
}

// SessionDestroyed lowers the live gauge.
func (r *Registry) SessionDestroyed() {
	r.SessionsActive.Dec()
}

// SetSessionsActive sets the live gauge, used after opening a durable registry.
func (r *Registry) SetSessionsActive(n int) {
	r.SessionsActive.Set(float64(n))
}
