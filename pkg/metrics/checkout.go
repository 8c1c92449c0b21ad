package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Checkout outcome labels.
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeFatal    = "fatal"
)

// CheckoutMetrics records checkout outcomes and latency.
type CheckoutMetrics struct {
	duration        *prometheus.HistogramVec
	outcomes        *prometheus.CounterVec
	partialFailures prometheus.Counter
}

// NewCheckoutMetrics registers the checkout metrics on the provided registerer.
func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	if reg == nil {
		return &CheckoutMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "checkout_duration_seconds",
		Help:    "Duration of checkout attempts in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_total",
		Help: "Checkout attempts by outcome and error code.",
	}, []string{"outcome", "code"})
	partial := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "checkout_partial_failures_total",
		Help: "Checkouts that left stock and cart out of sync.",
	})
	reg.MustRegister(duration, outcomes, partial)
	return &CheckoutMetrics{
		duration:        duration,
		outcomes:        outcomes,
		partialFailures: partial,
	}
}

// Observe records one checkout attempt. code is empty for successes.
func (c *CheckoutMetrics) Observe(outcome, code string, elapsed time.Duration) {
	if c == nil || c.outcomes == nil {
		return
	}
	outcome = normalizeLabel(outcome)
	c.outcomes.WithLabelValues(outcome, code).Inc()
	c.duration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// IncPartialFailure counts a checkout that needs manual reconciliation.
func (c *CheckoutMetrics) IncPartialFailure() {
	if c == nil || c.partialFailures == nil {
		return
	}
	c.partialFailures.Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
