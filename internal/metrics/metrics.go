// Package metrics holds the prometheus counters exported by the client core.
// A nil *Metrics is valid and records nothing, so components can be built
// without a registry in tests.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "lecom"

// Outcome labels for requests_total.
const (
	OutcomeOK          = "ok"
	OutcomeHTTPError   = "http_error"
	OutcomeUnavailable = "unavailable"
	OutcomeAuthFailed  = "auth_failed"
)

// Result labels for refresh_total.
const (
	RefreshSuccess = "success"
	RefreshFailure = "failure"
	RefreshSkipped = "skipped"
)

type Metrics struct {
	requests           *prometheus.CounterVec
	retries            prometheus.Counter
	refreshes          *prometheus.CounterVec
	refreshCoalesced   prometheus.Counter
	realtimeReconnects prometheus.Counter
	realtimeResubs     prometheus.Counter
}

// New creates the counters and registers them with reg. A nil reg leaves
// them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "requests_total",
			Help:      "Requests sent through the pipeline by final outcome.",
		}, []string{"outcome"}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "retries_total",
			Help:      "Requests re-dispatched after a successful credential refresh.",
		}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "refresh",
			Name:      "refresh_total",
			Help:      "Refresh rounds by result.",
		}, []string{"result"}),
		refreshCoalesced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "refresh",
			Name:      "coalesced_total",
			Help:      "Callers that waited on an in-flight refresh instead of starting one.",
		}),
		realtimeReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "reconnects_total",
			Help:      "Successful transport reconnects.",
		}),
		realtimeResubs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "resubscribes_total",
			Help:      "Topic re-subscriptions issued after a reconnect.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.requests,
			m.retries,
			m.refreshes,
			m.refreshCoalesced,
			m.realtimeReconnects,
			m.realtimeResubs,
		)
	}
	return m
}

func (m *Metrics) Request(outcome string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Retry() {
	if m == nil {
		return
	}
	m.retries.Inc()
}

func (m *Metrics) Refresh(result string) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(result).Inc()
}

func (m *Metrics) RefreshCoalesced() {
	if m == nil {
		return
	}
	m.refreshCoalesced.Inc()
}

func (m *Metrics) Reconnect() {
	if m == nil {
		return
	}
	m.realtimeReconnects.Inc()
}

func (m *Metrics) Resubscribe() {
	if m == nil {
		return
	}
	m.realtimeResubs.Inc()
}

// Handler serves the registry in the prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Counter accessors, mainly for assertions with prometheus/testutil.

func (m *Metrics) RequestCounter(outcome string) prometheus.Counter {
	return m.requests.WithLabelValues(outcome)
}

func (m *Metrics) RetryCounter() prometheus.Counter { return m.retries }

func (m *Metrics) RefreshCounter(result string) prometheus.Counter {
	return m.refreshes.WithLabelValues(result)
}

func (m *Metrics) CoalescedCounter() prometheus.Counter { return m.refreshCoalesced }

func (m *Metrics) ReconnectCounter() prometheus.Counter { return m.realtimeReconnects }

func (m *Metrics) ResubscribeCounter() prometheus.Counter { return m.realtimeResubs }
