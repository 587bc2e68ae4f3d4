package service

import (
	"context"
	"fmt"

	"github.com/boddenberg/household-ledger/internal/domain"
	"github.com/boddenberg/household-ledger/internal/infra/observability"
	"github.com/boddenberg/household-ledger/internal/port"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const defaultSettlementsLimit = 100

// lockOptionalAccount locks the account a cash event moves through, if any.
func lockOptionalAccount(ctx context.Context, tx port.LedgerTx, userID, accountID string) (*domain.Account, error) {
	if accountID == "" {
		return nil, nil
	}
	if err := checkID("account", accountID); err != nil {
		return nil, err
	}
	acct, err := tx.LockAccount(ctx, userID, accountID)
	if err != nil {
		return nil, err
	}
	if !acct.IsActive {
		return nil, &domain.ErrValidation{Field: "cash_account_id", Message: "account is inactive"}
	}
	return acct, nil
}

// RecordCashEvent books money received from or paid to a counterparty into
// its pool, appends the history record and, when an account is named, moves
// the account balance. All of it commits together.
func (s *LedgerService) RecordCashEvent(ctx context.Context, userID string, req domain.CashEventRequest) (*domain.Settlement, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.RecordCashEvent")
	defer span.End()
	defer s.track(observability.OpCashEvent)()

	name := domain.NormalizeCounterparty(req.Counterparty)
	if name == "" {
		return nil, s.reject(observability.OpCashEvent, &domain.ErrValidation{Field: "counterparty", Message: "required"})
	}
	typ, err := domain.ParseCashEventType(req.Type)
	if err != nil {
		return nil, s.reject(observability.OpCashEvent, err)
	}
	if req.Amount <= 0 {
		return nil, s.reject(observability.OpCashEvent, &domain.ErrValidation{Field: "amount", Message: "must be positive"})
	}
	date := s.dateOr(req.Date)
	span.SetAttributes(attribute.String("counterparty", name), attribute.String("type", string(typ)))

	var rec *domain.Settlement
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx port.LedgerTx) error {
		acct, err := lockOptionalAccount(ctx, tx, userID, req.CashAccountID)
		if err != nil {
			return err
		}

		bal, err := tx.LockSettlementBalance(ctx, userID, name)
		if err != nil {
			return fmt.Errorf("lock settlement balance: %w", err)
		}
		if err := bal.Adjust(typ.Pool(), req.Amount); err != nil {
			return err
		}
		if err := tx.UpsertSettlementBalance(ctx, bal); err != nil {
			return fmt.Errorf("update settlement balance: %w", err)
		}

		rec = &domain.Settlement{
			UserID:       userID,
			Date:         date,
			Counterparty: name,
			Amount:       typ.Sign() * req.Amount,
			Kind:         domain.SettlementCashEvent,
			Note:         req.Note,
		}
		if acct != nil {
			rec.CashAccountID = acct.ID
		}
		if err := tx.InsertSettlement(ctx, rec); err != nil {
			return fmt.Errorf("insert settlement: %w", err)
		}

		if acct == nil {
			return nil
		}
		return s.postMovements(ctx, tx, acct, []domain.AccountMovement{{
			UserID:       userID,
			AccountID:    acct.ID,
			SettlementID: rec.ID,
			Kind:         domain.MovementCashEvent,
			Amount:       typ.Sign() * req.Amount,
			Date:         date,
		}})
	})
	if err != nil {
		return nil, s.reject(observability.OpCashEvent, err)
	}

	s.metrics.RecordSettlement(observability.OpCashEvent, req.Amount)
	s.logger.Info("cash event recorded",
		zap.String("user_id", userID),
		zap.String("counterparty", name),
		zap.String("type", string(typ)),
		zap.Int64("amount", req.Amount),
		zap.String("cash_account_id", rec.CashAccountID),
	)
	return rec, nil
}

// EditCashEvent corrects a recorded settlement. A new amount on a cash event
// propagates its difference to the pool and to the recorded cash account;
// netting records only accept date and note changes.
func (s *LedgerService) EditCashEvent(ctx context.Context, userID, settlementID string, req domain.EditCashEventRequest) (*domain.Settlement, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.EditCashEvent")
	defer span.End()
	defer s.track(observability.OpCashEventEdit)()

	if err := checkID("settlement", settlementID); err != nil {
		return nil, err
	}
	if req.Amount != nil && *req.Amount <= 0 {
		return nil, s.reject(observability.OpCashEventEdit, &domain.ErrValidation{Field: "amount", Message: "must be positive"})
	}

	var (
		rec   *domain.Settlement
		delta int64
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx port.LedgerTx) error {
		delta = 0
		cur, err := tx.GetSettlement(ctx, userID, settlementID)
		if err != nil {
			return err
		}
		if req.Amount != nil && cur.Amount == 0 {
			return &domain.ErrValidation{Field: "amount", Message: "netting records carry no amount; only date and note can change"}
		}

		var acct *domain.Account
		if req.Amount != nil && cur.CashAccountID != "" {
			if acct, err = tx.LockAccount(ctx, userID, cur.CashAccountID); err != nil {
				return err
			}
		}
		bal, err := tx.LockSettlementBalance(ctx, userID, cur.Counterparty)
		if err != nil {
			return fmt.Errorf("lock settlement balance: %w", err)
		}
		// Every writer of this counterparty's history holds the pool lock; re-read under it.
		if cur, err = tx.GetSettlement(ctx, userID, settlementID); err != nil {
			return err
		}

		if req.Date != nil {
			cur.Date = domain.DateOnly(*req.Date)
		}
		if req.Note != nil {
			cur.Note = *req.Note
		}

		if req.Amount != nil {
			typ := domain.CashReceive
			if cur.Amount < 0 {
				typ = domain.CashPay
			}
			old := typ.Sign() * cur.Amount
			delta = *req.Amount - old

			if delta != 0 {
				if err := bal.Adjust(typ.Pool(), delta); err != nil {
					return err
				}
				if err := tx.UpsertSettlementBalance(ctx, bal); err != nil {
					return fmt.Errorf("update settlement balance: %w", err)
				}
				if acct != nil {
					err := s.postMovements(ctx, tx, acct, []domain.AccountMovement{{
						UserID:       userID,
						AccountID:    acct.ID,
						SettlementID: cur.ID,
						Kind:         domain.MovementCashEventEdit,
						Amount:       typ.Sign() * delta,
						Date:         cur.Date,
					}})
					if err != nil {
						return err
					}
				}
			}
			cur.Amount = typ.Sign() * *req.Amount
		}

		if err := tx.UpdateSettlement(ctx, cur); err != nil {
			return fmt.Errorf("update settlement: %w", err)
		}
		rec = cur
		return nil
	})
	if err != nil {
		return nil, s.reject(observability.OpCashEventEdit, err)
	}

	s.metrics.RecordSettlement(observability.OpCashEventEdit, abs(delta))
	s.logger.Info("settlement edited",
		zap.String("user_id", userID),
		zap.String("settlement_id", settlementID),
		zap.String("counterparty", rec.Counterparty),
		zap.Int64("delta", delta),
	)
	return rec, nil
}

// SettleLines applies the counterparty pool to the selected lines: the
// receive pool settles asset lines, the pay pool settles liability lines.
// Nothing is written when the pool cannot cover the total.
func (s *LedgerService) SettleLines(ctx context.Context, userID string, req domain.SettleLinesRequest) (*domain.Settlement, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.SettleLines")
	defer span.End()
	defer s.track(observability.OpLineSettlement)()

	name := domain.NormalizeCounterparty(req.Counterparty)
	if name == "" {
		return nil, s.reject(observability.OpLineSettlement, &domain.ErrValidation{Field: "counterparty", Message: "required"})
	}
	lineType, err := domain.ParseLineType(req.LineType)
	if err != nil {
		return nil, s.reject(observability.OpLineSettlement, err)
	}
	pool, err := domain.PoolForLineType(lineType)
	if err != nil {
		return nil, s.reject(observability.OpLineSettlement, err)
	}
	ids := domain.UniqueIDs(req.LineIDs)
	if len(ids) == 0 {
		return nil, s.reject(observability.OpLineSettlement, &domain.ErrValidation{Field: "line_ids", Message: "at least one line is required"})
	}
	if err := checkIDs("transaction line", ids); err != nil {
		return nil, err
	}
	date := s.dateOr(req.Date)

	var rec *domain.Settlement
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx port.LedgerTx) error {
		bal, err := tx.LockSettlementBalance(ctx, userID, name)
		if err != nil {
			return fmt.Errorf("lock settlement balance: %w", err)
		}
		lines, err := tx.LockLines(ctx, userID, ids)
		if err != nil {
			return err
		}

		var total int64
		for _, l := range lines {
			switch {
			case l.Counterparty != name:
				return &domain.ErrValidation{Field: "line_ids", Message: fmt.Sprintf("line %s belongs to another counterparty", l.ID)}
			case l.LineType != lineType:
				return &domain.ErrValidation{Field: "line_ids", Message: fmt.Sprintf("line %s is not a %s line", l.ID, lineType)}
			case l.Unsettled() <= 0:
				return &domain.ErrValidation{Field: "line_ids", Message: fmt.Sprintf("line %s is already settled", l.ID)}
			}
			total += l.Unsettled()
		}

		if err := bal.Adjust(pool, -total); err != nil {
			return err
		}

		rec = &domain.Settlement{
			UserID:       userID,
			Date:         date,
			Counterparty: name,
			Kind:         domain.SettlementLineSettlement,
			Note:         req.Note,
		}
		if err := tx.InsertSettlement(ctx, rec); err != nil {
			return fmt.Errorf("insert settlement: %w", err)
		}

		items := make([]domain.SettlementItem, 0, len(lines))
		for i := range lines {
			l := &lines[i]
			open := l.Unsettled()
			items = append(items, domain.SettlementItem{SettlementID: rec.ID, TransactionLineID: l.ID, Amount: open})
			l.ApplySettlement(open)
			if err := tx.UpdateLineSettlement(ctx, l.ID, l.SettledAmount, l.IsSettled); err != nil {
				return fmt.Errorf("update line %s: %w", l.ID, err)
			}
		}
		if err := tx.InsertSettlementItems(ctx, items); err != nil {
			return fmt.Errorf("insert settlement items: %w", err)
		}
		rec.Items = items

		if err := tx.UpsertSettlementBalance(ctx, bal); err != nil {
			return fmt.Errorf("update settlement balance: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, s.reject(observability.OpLineSettlement, err)
	}

	var total int64
	for _, it := range rec.Items {
		total += it.Amount
	}
	s.metrics.RecordSettlement(observability.OpLineSettlement, total)
	s.logger.Info("counterparty lines settled",
		zap.String("user_id", userID),
		zap.String("counterparty", name),
		zap.String("pool", string(pool)),
		zap.Int("lines", len(rec.Items)),
		zap.Int64("total", total),
	)
	return rec, nil
}

// CounterpartyWorklist groups open counterparty lines by name, largest net first.
func (s *LedgerService) CounterpartyWorklist(ctx context.Context, userID string) ([]domain.CounterpartySummary, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.CounterpartyWorklist")
	defer span.End()

	var (
		lines    []domain.TransactionLine
		balances []domain.SettlementBalance
	)
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		lines, err = s.store.ListCounterpartyLines(gCtx, userID, "")
		if err != nil {
			return fmt.Errorf("list counterparty lines: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		balances, err = s.store.ListSettlementBalances(gCtx, userID)
		if err != nil {
			return fmt.Errorf("list settlement balances: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return domain.SummarizeCounterparties(lines, balances), nil
}

// CounterpartyLines returns the open lines of one counterparty.
func (s *LedgerService) CounterpartyLines(ctx context.Context, userID, counterparty string) ([]domain.TransactionLine, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.CounterpartyLines")
	defer span.End()

	name := domain.NormalizeCounterparty(counterparty)
	if name == "" {
		return nil, &domain.ErrValidation{Field: "counterparty", Message: "required"}
	}
	lines, err := s.store.ListCounterpartyLines(ctx, userID, name)
	if err != nil {
		return nil, fmt.Errorf("list counterparty lines: %w", err)
	}
	open := make([]domain.TransactionLine, 0, len(lines))
	for _, l := range lines {
		if l.Unsettled() > 0 {
			open = append(open, l)
		}
	}
	return open, nil
}

func (s *LedgerService) GetSettlementBalance(ctx context.Context, userID, counterparty string) (*domain.SettlementBalance, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.GetSettlementBalance")
	defer span.End()

	name := domain.NormalizeCounterparty(counterparty)
	if name == "" {
		return nil, &domain.ErrValidation{Field: "counterparty", Message: "required"}
	}
	return s.store.GetSettlementBalance(ctx, userID, name)
}

func (s *LedgerService) ListSettlements(ctx context.Context, userID, counterparty string, limit int) ([]domain.Settlement, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.ListSettlements")
	defer span.End()

	if limit <= 0 || limit > defaultSettlementsLimit {
		limit = defaultSettlementsLimit
	}
	return s.store.ListSettlements(ctx, userID, domain.NormalizeCounterparty(counterparty), limit)
}

func (s *LedgerService) GetSettlement(ctx context.Context, userID, settlementID string) (*domain.Settlement, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.GetSettlement")
	defer span.End()

	if err := checkID("settlement", settlementID); err != nil {
		return nil, err
	}
	return s.store.GetSettlement(ctx, userID, settlementID)
}

// DeleteSettlement removes a history record and its items. Pools, line
// settled amounts and account balances are left as they are.
func (s *LedgerService) DeleteSettlement(ctx context.Context, userID, settlementID string) error {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.DeleteSettlement")
	defer span.End()

	if err := checkID("settlement", settlementID); err != nil {
		return err
	}
	var rec *domain.Settlement
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx port.LedgerTx) error {
		cur, err := tx.GetSettlement(ctx, userID, settlementID)
		if err != nil {
			return err
		}
		if _, err := tx.LockSettlementBalance(ctx, userID, cur.Counterparty); err != nil {
			return fmt.Errorf("lock settlement balance: %w", err)
		}
		rec = cur
		return tx.DeleteSettlement(ctx, userID, settlementID)
	})
	if err != nil {
		return err
	}

	s.logger.Warn("settlement record deleted; balances left unchanged",
		zap.String("user_id", userID),
		zap.String("settlement_id", settlementID),
		zap.String("counterparty", rec.Counterparty),
		zap.String("kind", string(rec.Kind)),
		zap.Int64("amount", rec.Amount),
		zap.Int("items", len(rec.Items)),
	)
	return nil
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
