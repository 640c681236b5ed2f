package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SettlementMetrics records payout/refund lifecycle outcomes and ledger
// integrity drift.
type SettlementMetrics struct {
	providerDuration *prometheus.HistogramVec
	success          *prometheus.CounterVec
	failure          *prometheus.CounterVec
	integrityIssues  prometheus.Gauge
	ledgerNetCents   prometheus.Gauge
}

// NewSettlementMetrics registers the settlement metrics on the provided
// registerer. A nil registerer yields a no-op recorder.
func NewSettlementMetrics(reg prometheus.Registerer) *SettlementMetrics {
	if reg == nil {
		return &SettlementMetrics{}
	}
	providerDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "settlement_provider_call_duration_seconds",
		Help:    "Duration of external payment provider calls in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
	success := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_operation_success_total",
		Help: "Successful settlement operations.",
	}, []string{"operation"})
	failure := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_operation_failure_total",
		Help: "Failed settlement operations.",
	}, []string{"operation"})
	integrityIssues := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "settlement_integrity_issues",
		Help: "Issues found by the most recent ledger integrity verification.",
	})
	ledgerNetCents := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "settlement_ledger_net_cents",
		Help: "Net ledger balance in cents from the most recent verification.",
	})
	reg.MustRegister(providerDuration, success, failure, integrityIssues, ledgerNetCents)
	return &SettlementMetrics{
		providerDuration: providerDuration,
		success:          success,
		failure:          failure,
		integrityIssues:  integrityIssues,
		ledgerNetCents:   ledgerNetCents,
	}
}

// ObserveProviderCall records the duration of one provider round trip.
func (m *SettlementMetrics) ObserveProviderCall(operation string, duration time.Duration) {
	if m == nil || m.providerDuration == nil {
		return
	}
	m.providerDuration.WithLabelValues(normalizeLabel(operation)).Observe(duration.Seconds())
}

// IncSuccess increments the success counter for the named operation.
func (m *SettlementMetrics) IncSuccess(operation string) {
	if m == nil || m.success == nil {
		return
	}
	m.success.WithLabelValues(normalizeLabel(operation)).Inc()
}

// IncFailure increments the failure counter for the named operation.
func (m *SettlementMetrics) IncFailure(operation string) {
	if m == nil || m.failure == nil {
		return
	}
	m.failure.WithLabelValues(normalizeLabel(operation)).Inc()
}

// SetIntegrityReport publishes the latest verification outcome.
func (m *SettlementMetrics) SetIntegrityReport(issueCount int, netCents int64) {
	if m == nil || m.integrityIssues == nil {
		return
	}
	m.integrityIssues.Set(float64(issueCount))
	m.ledgerNetCents.Set(float64(netCents))
}

func normalizeLabel(operation string) string {
	if operation == "" {
		return "unknown"
	}
	return operation
}
