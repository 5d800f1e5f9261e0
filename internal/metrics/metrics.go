// Package metrics holds the Prometheus collectors for the checkout engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the engine's collectors. A nil *Metrics is valid and records nothing,
// which keeps unit tests free of registry setup.
type Metrics struct {
	bookingsCreated      *prometheus.CounterVec
	bookingFailures      *prometheus.CounterVec
	ledgerMutations      *prometheus.CounterVec
	ledgerConflicts      prometheus.Counter
	reconcileAttempts    *prometheus.CounterVec
	pendingDebitsDead    prometheus.Counter
	pendingDebitsBacklog prometheus.Gauge
}

// New registers the collectors with reg. Pass prometheus.DefaultRegisterer in
// production and prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		bookingsCreated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "salonwise_bookings_created_total",
				Help: "Bookings persisted, by payment mode",
			},
			[]string{"mode"},
		),
		bookingFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "salonwise_booking_failures_total",
				Help: "Rejected or failed booking submissions, by error kind",
			},
			[]string{"kind"},
		),
		ledgerMutations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "salonwise_ledger_mutations_total",
				Help: "Wallet ledger mutations, by transaction kind and result",
			},
			[]string{"kind", "result"},
		),
		ledgerConflicts: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "salonwise_ledger_version_conflicts_total",
				Help: "Optimistic concurrency conflicts on wallet accounts",
			},
		),
		reconcileAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "salonwise_reconciliation_attempts_total",
				Help: "Pending debit settle attempts, by result",
			},
			[]string{"result"},
		),
		pendingDebitsDead: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "salonwise_pending_debits_dead_total",
				Help: "Pending debits that exhausted their retries",
			},
		),
		pendingDebitsBacklog: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "salonwise_pending_debits_due",
				Help: "Pending debits that were due when the last reconciliation pass began",
			},
		),
	}
}

func (m *Metrics) BookingCreated(mode string) {
	if m == nil {
		return
	}
	m.bookingsCreated.WithLabelValues(mode).Inc()
}

func (m *Metrics) BookingFailed(kind string) {
	if m == nil {
		return
	}
	m.bookingFailures.WithLabelValues(kind).Inc()
}

// LedgerMutation records a debit/credit outcome; result is "ok", "replayed" or "error".
func (m *Metrics) LedgerMutation(kind, result string) {
	if m == nil {
		return
	}
	m.ledgerMutations.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) VersionConflict() {
	if m == nil {
		return
	}
	m.ledgerConflicts.Inc()
}

// ReconcileAttempt records one settle attempt; result is "settled", "short",
// "retry", "dead" or "reversed".
func (m *Metrics) ReconcileAttempt(result string) {
	if m == nil {
		return
	}
	m.reconcileAttempts.WithLabelValues(result).Inc()
	if result == "dead" {
		m.pendingDebitsDead.Inc()
	}
}

// PendingDue sets the outbox backlog: every entry due at the start of a pass,
// not just the first batch.
func (m *Metrics) PendingDue(n int) {
	if m == nil {
		return
	}
	m.pendingDebitsBacklog.Set(float64(n))
}
