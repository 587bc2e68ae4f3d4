package service

import (
	"context"
	"fmt"

	"github.com/boddenberg/household-ledger/internal/domain"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// amortizationLookbackMonths bounds how far back ProfitAndLoss looks for
// expenses whose amortization window reaches into the requested range.
const amortizationLookbackMonths = 120

// ============================================================
// Profit & loss
// ============================================================

// ProfitAndLoss reports income and expense per month and category for the
// inclusive month range from..to (YYYY-MM).
func (s *LedgerService) ProfitAndLoss(ctx context.Context, userID, from, to string) (*domain.ProfitAndLoss, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.ProfitAndLoss")
	defer span.End()
	defer s.track("profit_and_loss")()
	span.SetAttributes(
		attribute.String("user.id", userID),
		attribute.String("pl.from", from),
		attribute.String("pl.to", to),
	)

	first, err := domain.ParseMonth("from", from)
	if err != nil {
		return nil, s.reject("profit_and_loss", err)
	}
	last, err := domain.ParseMonth("to", to)
	if err != nil {
		return nil, s.reject("profit_and_loss", err)
	}
	if last.Before(first) {
		return nil, s.reject("profit_and_loss", &domain.ErrValidation{Field: "to", Message: "must not be before from"})
	}

	var (
		txs        []domain.Transaction
		categories map[string]domain.Category
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		txs, err = s.store.ListTransactionsBetween(gctx, userID,
			first.AddDate(0, -amortizationLookbackMonths, 0),
			last.AddDate(0, 1, -1),
		)
		if err != nil {
			return fmt.Errorf("list transactions: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		categories, err = s.categoryIndex(gctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	pl := domain.BuildProfitAndLoss(txs, categories, first, last)
	s.logger.Debug("profit and loss computed",
		zap.String("user_id", userID),
		zap.String("from", pl.From),
		zap.String("to", pl.To),
		zap.Int("transactions", len(txs)),
	)
	return &pl, nil
}
