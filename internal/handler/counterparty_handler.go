package handler

import (
	"net/http"

	"github.com/boddenberg/household-ledger/internal/domain"
	"github.com/boddenberg/household-ledger/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ============================================================
// Counterparty Ledger Handlers
// ============================================================

func counterpartyWorklistHandler(svc *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /counterparties")
		defer span.End()
		rows, err := svc.CounterpartyWorklist(ctx, UserIDFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, domain.ListResponse[domain.CounterpartySummary]{Data: rows, Total: len(rows)})
	}
}

func counterpartyLinesHandler(svc *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /counterparties/{name}/lines")
		defer span.End()
		lines, err := svc.CounterpartyLines(ctx, UserIDFromContext(ctx), chi.URLParam(r, "name"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, domain.ListResponse[domain.TransactionLine]{Data: lines, Total: len(lines)})
	}
}

func settlementBalanceHandler(svc *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /counterparties/{name}/balance")
		defer span.End()
		b, err := svc.GetSettlementBalance(ctx, UserIDFromContext(ctx), chi.URLParam(r, "name"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, b)
	}
}

func recordCashEventHandler(svc *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /counterparties/cash-events")
		defer span.End()
		var req domain.CashEventRequest
		if err := decodeJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		rec, err := svc.RecordCashEvent(ctx, UserIDFromContext(ctx), req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, rec)
	}
}

func settleLinesHandler(svc *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /counterparties/settle-lines")
		defer span.End()
		var req domain.SettleLinesRequest
		if err := decodeJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		rec, err := svc.SettleLines(ctx, UserIDFromContext(ctx), req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, rec)
	}
}

func listSettlementsHandler(svc *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /settlements")
		defer span.End()
		records, err := svc.ListSettlements(ctx, UserIDFromContext(ctx), r.URL.Query().Get("counterparty"), parseLimit(r))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, domain.ListResponse[domain.Settlement]{Data: records, Total: len(records)})
	}
}

func getSettlementHandler(svc *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /settlements/{settlementId}")
		defer span.End()
		rec, err := svc.GetSettlement(ctx, UserIDFromContext(ctx), chi.URLParam(r, "settlementId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

func editCashEventHandler(svc *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PATCH /settlements/{settlementId}")
		defer span.End()
		var req domain.EditCashEventRequest
		if err := decodeJSON(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		rec, err := svc.EditCashEvent(ctx, UserIDFromContext(ctx), chi.URLParam(r, "settlementId"), req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

func deleteSettlementHandler(svc *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /settlements/{settlementId}")
		defer span.End()
		id := chi.URLParam(r, "settlementId")
		if err := svc.DeleteSettlement(ctx, UserIDFromContext(ctx), id); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, domain.SuccessResponse{Message: "settlement record deleted; balances unchanged", ID: id})
	}
}
