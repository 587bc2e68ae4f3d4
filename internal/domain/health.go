package domain

// ============================================================
// Health & Metrics API Responses
// ============================================================

// HealthStatus is returned by GET /healthz.
type HealthStatus struct {
	Status   string          `json:"status"` // healthy, degraded, unhealthy
	Services []ServiceHealth `json:"services"`
}

// ServiceHealth represents the health of an individual dependency.
type ServiceHealth struct {
	Name        string `json:"name"`
	Status      string `json:"status"`
	LatencyMs   int64  `json:"latencyMs"`
	LastChecked string `json:"lastChecked"`
}

// LedgerMetrics is returned by GET /v1/metrics/ledger.
type LedgerMetrics struct {
	CashSettlements         int64            `json:"cashSettlements"`
	CashSettledAmount       int64            `json:"cashSettledAmount"`
	CounterpartySettlements int64            `json:"counterpartySettlements"`
	AutoOffsets             int64            `json:"autoOffsets"`
	AutoOffsetAmount        int64            `json:"autoOffsetAmount"`
	RejectedOperations      int64            `json:"rejectedOperations"`
	IntegrityAnomalies      map[string]int64 `json:"integrityAnomalies"`
	CacheHitRate            float64          `json:"cacheHitRate"`
}

// ============================================================
// Generic API Response wrappers
// ============================================================

// ListResponse wraps list results.
type ListResponse[T any] struct {
	Data  []T `json:"data"`
	Total int `json:"total"`
}

// SuccessResponse wraps a successful single-entity response.
type SuccessResponse struct {
	Message string `json:"message"`
	ID      string `json:"id,omitempty"`
}
