package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels shared by the payment counters.
const (
	OutcomeSuccess     = "success"
	OutcomeValidation  = "validation_error"
	OutcomeProvider    = "provider_error"
	OutcomeStore       = "store_error"
	OutcomeApplied     = "applied"
	OutcomeDuplicate   = "duplicate"
	OutcomeStale       = "stale"
	OutcomeMismatch    = "amount_mismatch"
	OutcomeBadRequest  = "bad_request"
	OutcomeBadSign     = "bad_signature"
	OutcomeNotFound    = "not_found"
	OutcomeRefMismatch = "ref_mismatch"
	OutcomeReplayed    = "replayed"
	OutcomeRateLimited = "rate_limited"
)

// PaymentMetrics records payment creation, webhook reconciliation and provider
// latency. A nil receiver is a no-op.
type PaymentMetrics struct {
	intents         *prometheus.CounterVec
	webhooks        *prometheus.CounterVec
	providerLatency *prometheus.HistogramVec
	couponFailures  prometheus.Counter
}

// NewPaymentMetrics registers the payment metrics on the provided registerer.
func NewPaymentMetrics(reg prometheus.Registerer) *PaymentMetrics {
	if reg == nil {
		return &PaymentMetrics{}
	}
	intents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_intents_total",
		Help: "Payment intent creation attempts by outcome.",
	}, []string{"outcome"})
	webhooks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_webhooks_total",
		Help: "Wallet webhook deliveries by outcome.",
	}, []string{"outcome"})
	providerLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "wallet_provider_request_duration_seconds",
		Help:    "Latency of payment link requests to the wallet provider.",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})
	couponFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "coupon_redemption_failures_total",
		Help: "Coupon redemptions that failed after the provider issued a link.",
	})
	reg.MustRegister(intents, webhooks, providerLatency, couponFailures)
	return &PaymentMetrics{
		intents:         intents,
		webhooks:        webhooks,
		providerLatency: providerLatency,
		couponFailures:  couponFailures,
	}
}

func (m *PaymentMetrics) IncIntent(outcome string) {
	if m == nil || m.intents == nil {
		return
	}
	m.intents.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *PaymentMetrics) IncWebhook(outcome string) {
	if m == nil || m.webhooks == nil {
		return
	}
	m.webhooks.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// ObserveProvider records how long a provider call took.
func (m *PaymentMetrics) ObserveProvider(outcome string, duration time.Duration) {
	if m == nil || m.providerLatency == nil {
		return
	}
	m.providerLatency.WithLabelValues(normalizeLabel(outcome)).Observe(duration.Seconds())
}

func (m *PaymentMetrics) IncCouponFailure() {
	if m == nil || m.couponFailures == nil {
		return
	}
	m.couponFailures.Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
