// Package metrics exposes Prometheus collectors for the ledger and the HTTP surface.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// LedgerMetrics counts recorded transactions and compare-and-swap conflicts.
type LedgerMetrics struct {
	transactions *prometheus.CounterVec
	conflicts    prometheus.Counter
}

// NewLedgerMetrics registers the ledger metrics on the provided registerer.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	if reg == nil {
		return &LedgerMetrics{}
	}
	transactions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chipledger_ledger_transactions_total",
		Help: "Ledger transactions recorded, by type.",
	}, []string{"type"})
	conflicts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chipledger_ledger_cas_conflicts_total",
		Help: "Balance writes retried after a concurrent version change.",
	})
	reg.MustRegister(transactions, conflicts)
	return &LedgerMetrics{
		transactions: transactions,
		conflicts:    conflicts,
	}
}

// TransactionRecorded increments the counter for the transaction type.
func (m *LedgerMetrics) TransactionRecorded(kind string) {
	if m == nil || m.transactions == nil {
		return
	}
	m.transactions.WithLabelValues(normalizeLabel(kind)).Inc()
}

// VersionConflict increments the conflict counter.
func (m *LedgerMetrics) VersionConflict() {
	if m == nil || m.conflicts == nil {
		return
	}
	m.conflicts.Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
