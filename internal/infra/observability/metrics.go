package observability

import (
	"time"

	"github.com/boddenberg/household-ledger/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Settlement operation labels.
const (
	OpCashSettle     = "cash_settle"
	OpPartialSettle  = "partial_settle"
	OpUnsettle       = "unsettle"
	OpCashEvent      = "cash_event"
	OpCashEventEdit  = "cash_event_edit"
	OpLineSettlement = "line_settlement"
	OpAutoOffset     = "auto_offset"
)

// Metrics holds all Prometheus metrics for the ledger.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	operationDuration *prometheus.HistogramVec
	settlements       *prometheus.CounterVec
	settledAmount     *prometheus.CounterVec
	rejected          *prometheus.CounterVec
	anomalies         *prometheus.CounterVec
	storeErrors       *prometheus.CounterVec
	cacheHits         *prometheus.CounterVec
	cacheMisses       *prometheus.CounterVec
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		operationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ledger_operation_duration_seconds",
				Help:    "Duration of ledger operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		settlements: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_settlements_total",
				Help: "Settlement operations applied, by operation.",
			},
			[]string{"operation"},
		),
		settledAmount: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_settled_amount_total",
				Help: "Amount moved by settlement operations, by operation.",
			},
			[]string{"operation"},
		),
		rejected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_rejected_operations_total",
				Help: "Operations rejected before any write, by reason.",
			},
			[]string{"reason"},
		),
		anomalies: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_integrity_anomalies_total",
				Help: "Tolerated data-integrity anomalies, by kind.",
			},
			[]string{"kind"},
		),
		storeErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_store_errors_total",
				Help: "Store failures, by operation.",
			},
			[]string{"operation"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
	}
}

// RecordDuration records the duration of an operation.
func (m *Metrics) RecordDuration(operation string, d time.Duration) {
	m.operationDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// RecordSettlement counts one applied settlement operation and the amount it moved.
func (m *Metrics) RecordSettlement(operation string, amount int64) {
	m.settlements.WithLabelValues(operation).Inc()
	if amount > 0 {
		m.settledAmount.WithLabelValues(operation).Add(float64(amount))
	}
}

// IncrRejected counts an operation rejected before any write.
func (m *Metrics) IncrRejected(reason string) {
	m.rejected.WithLabelValues(reason).Inc()
}

// IncrAnomaly counts a tolerated integrity anomaly.
func (m *Metrics) IncrAnomaly(kind domain.AnomalyKind) {
	m.anomalies.WithLabelValues(string(kind)).Inc()
}

// IncrStoreError counts a failed store operation.
func (m *Metrics) IncrStoreError(operation string) {
	m.storeErrors.WithLabelValues(operation).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// Snapshot returns the counters served by GET /v1/metrics/ledger.
func (m *Metrics) Snapshot() *domain.LedgerMetrics {
	cashSettles := getCounterValue(m.settlements, OpCashSettle) + getCounterValue(m.settlements, OpPartialSettle)
	cashAmount := getCounterValue(m.settledAmount, OpCashSettle) + getCounterValue(m.settledAmount, OpPartialSettle)

	var rejected float64
	for _, reason := range []string{"validation", "insufficient_pool", "precondition", "conflict"} {
		rejected += getCounterValue(m.rejected, reason)
	}

	anomalies := make(map[string]int64)
	for _, kind := range []domain.AnomalyKind{
		domain.AnomalyEmptyTransaction,
		domain.AnomalyUnknownCategory,
		domain.AnomalyLegacySettled,
	} {
		anomalies[string(kind)] = int64(getCounterValue(m.anomalies, string(kind)))
	}

	hits := getCounterValue(m.cacheHits, "categories")
	misses := getCounterValue(m.cacheMisses, "categories")
	hitRate := float64(0)
	if hits+misses > 0 {
		hitRate = hits / (hits + misses)
	}

	return &domain.LedgerMetrics{
		CashSettlements:         int64(cashSettles),
		CashSettledAmount:       int64(cashAmount),
		CounterpartySettlements: int64(getCounterValue(m.settlements, OpLineSettlement)),
		AutoOffsets:             int64(getCounterValue(m.settlements, OpAutoOffset)),
		AutoOffsetAmount:        int64(getCounterValue(m.settledAmount, OpAutoOffset)),
		RejectedOperations:      int64(rejected),
		IntegrityAnomalies:      anomalies,
		CacheHitRate:            hitRate,
	}
}

// getCounterValue extracts the current float64 value from a CounterVec for a given label.
func getCounterValue(cv *prometheus.CounterVec, label string) float64 {
	counter := cv.WithLabelValues(label)
	m := &dto.Metric{}
	if err := counter.(prometheus.Metric).Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
