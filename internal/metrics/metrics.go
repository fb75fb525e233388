// Package metrics exposes Prometheus instruments for wallet sign-in and
// purchase settlement. A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "canvas"

// Metrics tracks authentication and settlement outcomes
type Metrics struct {
	AuthAttempts        *prometheus.CounterVec
	Purchases           *prometheus.CounterVec
	PurchaseStates      *prometheus.CounterVec
	ConfirmationLatency prometheus.Histogram
	Reconciliations     *prometheus.CounterVec
	HTTPRequests        *prometheus.CounterVec
}

// New creates the instruments and registers them with registry
func New(registry prometheus.Registerer) *Metrics {
	m := &Metrics{}

	m.AuthAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "auth",
		Name:      "attempts_total",
		Help:      "Wallet sign-in attempts by scheme and outcome",
	}, []string{"scheme", "outcome"})

	m.Purchases = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "settlement",
		Name:      "purchases_total",
		Help:      "Purchase attempts by terminal state",
	}, []string{"state"})

	m.PurchaseStates = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "settlement",
		Name:      "state_transitions_total",
		Help:      "States entered by the purchase state machine",
	}, []string{"state"})

	m.ConfirmationLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "settlement",
		Name:      "confirmation_seconds",
		Help:      "Time from ledger submission to a conclusive status",
		Buckets:   []float64{1, 2.5, 5, 7.5, 10, 15, 20, 30, 45, 60},
	})

	m.Reconciliations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "settlement",
		Name:      "reconciliations_total",
		Help:      "Reconciled purchase attempts by outcome",
	}, []string{"outcome"})

	m.HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by method and status code",
	}, []string{"method", "code"})

	registry.MustRegister(
		m.AuthAttempts,
		m.Purchases,
		m.PurchaseStates,
		m.ConfirmationLatency,
		m.Reconciliations,
		m.HTTPRequests,
	)

	return m
}

// RecordAuth counts a sign-in attempt
func (m *Metrics) RecordAuth(scheme, outcome string) {
	if m == nil {
		return
	}
	m.AuthAttempts.WithLabelValues(scheme, outcome).Inc()
}

// RecordPurchase counts a purchase by terminal state and every state it visited
func (m *Metrics) RecordPurchase(terminal string, visited []string) {
	if m == nil {
		return
	}
	m.Purchases.WithLabelValues(terminal).Inc()
	for _, s := range visited {
		m.PurchaseStates.WithLabelValues(s).Inc()
	}
}

// RecordConfirmation observes how long consensus took to be observed
func (m *Metrics) RecordConfirmation(d time.Duration) {
	if m == nil {
		return
	}
	m.ConfirmationLatency.Observe(d.Seconds())
}

// RecordReconciliation counts a reconciled attempt
func (m *Metrics) RecordReconciliation(outcome string) {
	if m == nil {
		return
	}
	m.Reconciliations.WithLabelValues(outcome).Inc()
}

// RecordRequest counts a served HTTP request
func (m *Metrics) RecordRequest(method string, code int) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, statusLabel(code)).Inc()
}

func statusLabel(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
