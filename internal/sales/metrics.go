package sales

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the ledger's Prometheus collectors. A nil *Metrics records nothing.
type Metrics struct {
	salesRecorded prometheus.Counter
	ledgerApplies *prometheus.CounterVec
	conflicts     *prometheus.CounterVec
	applyDuration *prometheus.HistogramVec
}

// NewMetrics registers the ledger collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		salesRecorded: factory.NewCounter(prometheus.CounterOpts{
			Name: "artsale_sales_recorded_total",
			Help: "Sales persisted by the ledger.",
		}),
		ledgerApplies: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "artsale_ledger_applies_total",
			Help: "Ledger side applications by beneficiary kind and outcome.",
		}, []string{"kind", "outcome"}),
		conflicts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "artsale_ledger_version_conflicts_total",
			Help: "Compare-and-swap conflicts seen while writing beneficiaries.",
		}, []string{"kind"}),
		applyDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "artsale_ledger_apply_duration_seconds",
			Help:    "Time spent applying one ledger side, retries included.",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
	}
}

func (m *Metrics) saleRecorded() {
	if m == nil {
		return
	}
	m.salesRecorded.Inc()
}

func (m *Metrics) ledgerApplied(kind Kind, outcome string, started time.Time) {
	if m == nil {
		return
	}
	m.ledgerApplies.WithLabelValues(string(kind), outcome).Inc()
	m.applyDuration.WithLabelValues(string(kind)).Observe(time.Since(started).Seconds())
}

func (m *Metrics) versionConflict(kind Kind) {
	if m == nil {
		return
	}
	m.conflicts.WithLabelValues(string(kind)).Inc()
}
