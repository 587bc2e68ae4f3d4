package handler

import (
	"net/http"
	"time"

	"github.com/boddenberg/household-ledger/internal/domain"
	"github.com/boddenberg/household-ledger/internal/infra/observability"
	"github.com/boddenberg/household-ledger/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

// NewRouter creates the HTTP router with all routes and middleware.
// Every /v1 route except the metrics snapshot requires a Supabase access token;
// the token subject scopes all data.
func NewRouter(svc *service.LedgerService, authSvc *service.AuthService, metrics *observability.Metrics, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(svc, logger))
	r.Get("/readyz", readyzHandler())
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {
		r.Get("/metrics/ledger", ledgerMetricsHandler(metrics))

		r.Group(func(r chi.Router) {
			r.Use(JWTAuthMiddleware(authSvc, logger))

			// Accounts & categories
			r.Get("/accounts", listAccountsHandler(svc, logger))
			r.Post("/accounts", createAccountHandler(svc, logger))
			r.Get("/accounts/{accountId}", getAccountHandler(svc, logger))
			r.Patch("/accounts/{accountId}", updateAccountHandler(svc, logger))
			r.Put("/accounts/{accountId}/balance", overrideBalanceHandler(svc, logger))
			r.Get("/accounts/{accountId}/reconciliation", reconcileAccountHandler(svc, logger))
			r.Get("/categories", listCategoriesHandler(svc, logger))
			r.Post("/categories", createCategoryHandler(svc, logger))

			// Transactions
			r.Post("/transactions", createTransactionHandler(svc, logger))
			r.Get("/transactions/{transactionId}", getTransactionHandler(svc, logger))
			r.Put("/transactions/{transactionId}", updateTransactionHandler(svc, logger))
			r.Delete("/transactions/{transactionId}", deleteTransactionHandler(svc, logger))
			r.Get("/transactions/{transactionId}/classification", classifyTransactionHandler(svc, logger))

			// Cash settlement
			r.Get("/settlement/cash/worklist", cashWorklistHandler(svc, logger))
			r.Get("/settlement/cash/settled", listSettledHandler(svc, logger))
			r.Post("/settlement/cash/settle", settleHandler(svc, logger))
			r.Post("/settlement/cash/transactions/{transactionId}/partial", partialSettleHandler(svc, logger))
			r.Post("/settlement/cash/unsettle", unsettleHandler(svc, logger))

			// Counterparty ledger
			r.Get("/counterparties", counterpartyWorklistHandler(svc, logger))
			r.Get("/counterparties/{name}/lines", counterpartyLinesHandler(svc, logger))
			r.Get("/counterparties/{name}/balance", settlementBalanceHandler(svc, logger))
			r.Post("/counterparties/cash-events", recordCashEventHandler(svc, logger))
			r.Post("/counterparties/settle-lines", settleLinesHandler(svc, logger))
			r.Get("/settlements", listSettlementsHandler(svc, logger))
			r.Get("/settlements/{settlementId}", getSettlementHandler(svc, logger))
			r.Patch("/settlements/{settlementId}", editCashEventHandler(svc, logger))
			r.Delete("/settlements/{settlementId}", deleteSettlementHandler(svc, logger))

			// Reports
			r.Get("/reports/pl", profitAndLossHandler(svc, logger))
		})
	})

	return r
}

// ============================================================
// Operational
// ============================================================

func healthzHandler(svc *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		now := time.Now().Format(time.RFC3339)
		services := []domain.ServiceHealth{
			{Name: "ledger-api", Status: "healthy", LastChecked: now},
		}

		start := time.Now()
		status := "healthy"
		if err := svc.Ping(r.Context()); err != nil {
			logger.Warn("health check: store unreachable", zap.Error(err))
			status = "degraded"
		}
		services = append(services, domain.ServiceHealth{
			Name: "store", Status: status, LatencyMs: time.Since(start).Milliseconds(), LastChecked: now,
		})

		overallStatus := "healthy"
		for _, s := range services {
			if s.Status == "unhealthy" {
				overallStatus = "unhealthy"
				break
			}
			if s.Status == "degraded" {
				overallStatus = "degraded"
			}
		}

		writeJSON(w, http.StatusOK, domain.HealthStatus{
			Status:   overallStatus,
			Services: services,
		})
	}
}

func readyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func ledgerMetricsHandler(metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, metrics.Snapshot())
	}
}
