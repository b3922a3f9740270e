// Package metrics exposes Prometheus instrumentation for numbering,
// transactions and the HTTP API.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"opsdesk/internal/core/numbering"
	"opsdesk/internal/domain/sequence"
)

const namespace = "opsdesk"

// Metrics holds every opsdesk collector.
type Metrics struct {
	allocations        *prometheus.CounterVec
	allocationDuration *prometheus.HistogramVec
	overrides          *prometheus.CounterVec
	txRetries          *prometheus.CounterVec
	httpRequests       *prometheus.CounterVec
	httpDuration       *prometheus.HistogramVec

	registerer prometheus.Registerer
}

var _ sequence.Observer = (*Metrics)(nil)

// New creates the collectors and registers them. A nil registerer selects
// prometheus.DefaultRegisterer.
func New(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	allocations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "numbers_allocated_total",
		Help:      "Document number allocations by kind and outcome.",
	}, []string{"kind", "outcome"})

	allocationDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "allocation_duration_seconds",
		Help:      "Latency of a single number allocation.",
		Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"kind"})

	overrides := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "counter_overrides_total",
		Help:      "Operator counter overrides by kind and outcome.",
	}, []string{"kind", "outcome"})

	txRetries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tx_retries_total",
		Help:      "Transactions re-run after a serialization conflict.",
	}, []string{"backend"})

	httpRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests by method, route and status.",
	}, []string{"method", "route", "status"})

	httpDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	registerer.MustRegister(
		allocations,
		allocationDuration,
		overrides,
		txRetries,
		httpRequests,
		httpDuration,
	)

	return &Metrics{
		allocations:        allocations,
		allocationDuration: allocationDuration,
		overrides:          overrides,
		txRetries:          txRetries,
		httpRequests:       httpRequests,
		httpDuration:       httpDuration,
		registerer:         registerer,
	}
}

// ObserveAllocation implements sequence.Observer.
func (m *Metrics) ObserveAllocation(kind numbering.Kind, outcome string, elapsed time.Duration) {
	m.allocations.WithLabelValues(kind.String(), outcome).Inc()
	m.allocationDuration.WithLabelValues(kind.String()).Observe(elapsed.Seconds())
}

// ObserveOverride implements sequence.Observer.
func (m *Metrics) ObserveOverride(kind numbering.Kind, outcome string) {
	m.overrides.WithLabelValues(kind.String(), outcome).Inc()
}

// TxRetryHook returns a callback for a transaction manager's OnRetry.
func (m *Metrics) TxRetryHook(backend string) func() {
	c := m.txRetries.WithLabelValues(backend)
	return c.Inc
}

// ObserveHTTP records one served request. route is the matched pattern,
// not the raw path.
func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// RegisterGauge registers a gauge sampled from fn at scrape time.
func (m *Metrics) RegisterGauge(name, help string, fn func() float64) {
	m.registerer.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, fn))
}
