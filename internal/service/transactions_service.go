package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/boddenberg/household-ledger/internal/domain"
	"github.com/boddenberg/household-ledger/internal/infra/observability"
	"github.com/boddenberg/household-ledger/internal/port"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

func datePtr(t *time.Time) *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	d := domain.DateOnly(*t)
	return &d
}

// buildLine turns a validated input into a line of transaction t.
func buildLine(t *domain.Transaction, in domain.LineInput, lt domain.LineType) domain.TransactionLine {
	l := domain.TransactionLine{
		ID:                 in.ID,
		UserID:             t.UserID,
		TransactionID:      t.ID,
		Amount:             in.Amount,
		LineType:           lt,
		CategoryID:         in.CategoryID,
		Counterparty:       domain.NormalizeCounterparty(in.Counterparty),
		AmortizationMonths: in.AmortizationMonths,
		Note:               in.Note,
	}
	l.AmortizationStart, l.AmortizationEnd = domain.AmortizationWindow(t.Date, datePtr(in.AmortizationStart), in.AmortizationMonths)
	return l
}

// detachCategory clears l's category when it names none of the user's
// categories and returns the anomaly to report once l has an id.
func detachCategory(l *domain.TransactionLine, categories map[string]domain.Category) *domain.Anomaly {
	if l.CategoryID == "" {
		return nil
	}
	if _, ok := categories[l.CategoryID]; ok {
		return nil
	}
	a := &domain.Anomaly{Kind: domain.AnomalyUnknownCategory, Detail: l.CategoryID}
	l.CategoryID = ""
	return a
}

// applyHeader copies the request header onto t.
func applyHeader(t *domain.Transaction, req domain.TransactionRequest) {
	t.Date = domain.DateOnly(req.Date)
	t.PaymentDate = datePtr(req.PaymentDate)
	t.Description = strings.TrimSpace(req.Description)
	t.PaidByOther = req.PaidByOther
}

// settleAtSave marks t fully cash-settled when the save-time rule says so.
func (s *LedgerService) settleAtSave(t *domain.Transaction) bool {
	if !domain.CashSettledAtSave(t.PaidByOther, t.Date, t.PaymentDate, s.today()) {
		return false
	}
	t.ApplyCashSettlement(t.TotalAmount)
	date := t.Date
	if t.PaymentDate != nil {
		date = *t.PaymentDate
	}
	t.SettlementDate = &date
	return true
}

// runAutoOffsets offsets every liability line of t that carries a counterparty and is listed in fresh.
func (s *LedgerService) runAutoOffsets(ctx context.Context, tx port.LedgerTx, t *domain.Transaction, fresh map[string]bool) ([]*domain.Settlement, error) {
	var out []*domain.Settlement
	for i := range t.Lines {
		l := &t.Lines[i]
		if !fresh[l.ID] {
			continue
		}
		rec, err := s.autoOffset(ctx, tx, t, l)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *LedgerService) reportOffsets(userID string, offsets []*domain.Settlement) {
	for _, rec := range offsets {
		amount := offsetAmount(rec)
		s.metrics.RecordSettlement(observability.OpAutoOffset, amount)
		s.logger.Info("auto-offset applied",
			zap.String("user_id", userID),
			zap.String("counterparty", rec.Counterparty),
			zap.String("settlement_id", rec.ID),
			zap.Int64("amount", amount),
			zap.Int("items", len(rec.Items)),
		)
	}
}

// CreateTransaction saves a transaction with its lines. The save-time cash
// rule and auto-offset run in the same store transaction.
func (s *LedgerService) CreateTransaction(ctx context.Context, userID string, req domain.TransactionRequest) (*domain.Transaction, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.CreateTransaction")
	defer span.End()
	defer s.track("create_transaction")()
	span.SetAttributes(attribute.String("user.id", userID), attribute.Int("lines", len(req.Lines)))

	types, err := req.Validate()
	if err != nil {
		return nil, s.reject("create_transaction", err)
	}
	categories, err := s.categoryIndexFor(ctx, userID, req.Lines)
	if err != nil {
		return nil, err
	}

	var (
		saved    *domain.Transaction
		offsets  []*domain.Settlement
		detached []domain.Anomaly
	)
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx port.LedgerTx) error {
		detached = nil
		t := &domain.Transaction{UserID: userID}
		applyHeader(t, req)
		lines := make([]domain.TransactionLine, len(req.Lines))
		unknown := make([]*domain.Anomaly, len(req.Lines))
		for i, in := range req.Lines {
			in.ID = ""
			lines[i] = buildLine(t, in, types[i])
			unknown[i] = detachCategory(&lines[i], categories)
		}
		t.TotalAmount = domain.TotalAmount(lines)
		s.settleAtSave(t)

		if err := tx.InsertTransaction(ctx, t); err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}
		fresh := make(map[string]bool, len(lines))
		for i := range lines {
			lines[i].TransactionID = t.ID
			if err := tx.InsertLine(ctx, &lines[i]); err != nil {
				return fmt.Errorf("insert line: %w", err)
			}
			fresh[lines[i].ID] = true
			if a := unknown[i]; a != nil {
				a.TransactionID, a.LineID = t.ID, lines[i].ID
				detached = append(detached, *a)
			}
		}
		t.Lines = lines

		var err error
		if offsets, err = s.runAutoOffsets(ctx, tx, t, fresh); err != nil {
			return err
		}
		saved, err = tx.GetTransaction(ctx, userID, t.ID)
		return err
	})
	if err != nil {
		return nil, s.reject("create_transaction", err)
	}

	s.reportAnomalies(userID, detached)
	s.reportAnomalies(userID, domain.ClassifyTransaction(*saved, categories).Warnings)
	s.reportOffsets(userID, offsets)
	s.logger.Info("transaction created",
		zap.String("user_id", userID),
		zap.String("transaction_id", saved.ID),
		zap.Int64("total", saved.TotalAmount),
		zap.Bool("cash_settled", saved.IsCashSettled),
	)
	return saved, nil
}

// UpdateTransaction replaces the header and reconciles lines by id. Lines
// with settlement progress can be edited but not removed, and never below
// what is already settled. The total cannot drop below the amount already
// moved through an account. New liability lines are auto-offset.
func (s *LedgerService) UpdateTransaction(ctx context.Context, userID, transactionID string, req domain.TransactionRequest) (*domain.Transaction, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.UpdateTransaction")
	defer span.End()
	defer s.track("update_transaction")()

	if err := checkID("transaction", transactionID); err != nil {
		return nil, err
	}
	types, err := req.Validate()
	if err != nil {
		return nil, s.reject("update_transaction", err)
	}
	for _, in := range req.Lines {
		if in.ID == "" {
			continue
		}
		if err := checkID("transaction line", in.ID); err != nil {
			return nil, err
		}
	}
	categories, err := s.categoryIndexFor(ctx, userID, req.Lines)
	if err != nil {
		return nil, err
	}

	var (
		saved    *domain.Transaction
		offsets  []*domain.Settlement
		detached []domain.Anomaly
	)
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx port.LedgerTx) error {
		detached = nil
		t, err := tx.LockTransaction(ctx, userID, transactionID)
		if err != nil {
			return err
		}
		existing := make(map[string]domain.TransactionLine, len(t.Lines))
		for _, l := range t.Lines {
			existing[l.ID] = l
		}
		prevSettled := t.SettledAmount
		prevAtSave := domain.CashSettledAtSave(t.PaidByOther, t.Date, t.PaymentDate, s.today())
		applyHeader(t, req)

		kept := make(map[string]bool, len(req.Lines))
		fresh := make(map[string]bool)
		lines := make([]domain.TransactionLine, 0, len(req.Lines))
		for i, in := range req.Lines {
			next := buildLine(t, in, types[i])
			unknown := detachCategory(&next, categories)
			if in.ID == "" {
				if err := tx.InsertLine(ctx, &next); err != nil {
					return fmt.Errorf("insert line: %w", err)
				}
				fresh[next.ID] = true
			} else {
				prev, ok := existing[in.ID]
				if !ok {
					return &domain.ErrNotFound{Resource: "transaction line", ID: in.ID}
				}
				if kept[in.ID] {
					return &domain.ErrValidation{Field: fmt.Sprintf("lines[%d].id", i), Message: "line listed twice"}
				}
				kept[in.ID] = true

				if prev.HasSettlementProgress() {
					settled := prev.SettledAmount
					if prev.IsLegacySettled() {
						settled = prev.Amount
					}
					switch {
					case next.Amount < settled:
						return &domain.ErrConflict{Message: fmt.Sprintf("line %s: amount %d is below the settled amount %d", prev.ID, next.Amount, settled)}
					case next.LineType != prev.LineType || next.Counterparty != prev.Counterparty:
						return &domain.ErrConflict{Message: fmt.Sprintf("line %s: type and counterparty of a settled line cannot change", prev.ID)}
					}
					next.SettledAmount = settled
					next.IsSettled = settled >= next.Amount
				}
				next.CreatedAt = prev.CreatedAt
				if err := tx.UpdateLine(ctx, &next); err != nil {
					return fmt.Errorf("update line %s: %w", next.ID, err)
				}
			}
			if unknown != nil {
				unknown.TransactionID, unknown.LineID = t.ID, next.ID
				detached = append(detached, *unknown)
			}
			lines = append(lines, next)
		}

		for id, prev := range existing {
			if kept[id] {
				continue
			}
			if prev.HasSettlementProgress() {
				return &domain.ErrConflict{Message: fmt.Sprintf("line %s has settlement progress and cannot be removed", id)}
			}
			if err := tx.DeleteLine(ctx, id); err != nil {
				return fmt.Errorf("delete line %s: %w", id, err)
			}
		}

		t.Lines = lines
		t.TotalAmount = domain.TotalAmount(lines)

		moves, err := tx.ListTransactionMovements(ctx, userID, t.ID)
		if err != nil {
			return fmt.Errorf("list movements: %w", err)
		}
		if len(moves) > 0 && t.TotalAmount < prevSettled {
			return &domain.ErrConflict{Message: fmt.Sprintf(
				"transaction %s: total %d is below the cash-settled amount %d; unsettle it first", t.ID, t.TotalAmount, prevSettled)}
		}
		if err := tx.UpdateTransactionHeader(ctx, t); err != nil {
			return fmt.Errorf("update transaction: %w", err)
		}

		if !s.settleAtSave(t) {
			// Only a settlement that came from the save-time rule alone is
			// withdrawn when that rule stops holding.
			if prevSettled > 0 && (len(moves) > 0 || !prevAtSave) {
				t.ApplyCashSettlement(min(prevSettled, t.TotalAmount))
			} else {
				t.ApplyCashSettlement(0)
			}
			if t.SettledAmount == 0 {
				t.SettlementAccountID = ""
				t.SettlementDate = nil
			}
		}
		if err := tx.UpdateTransactionSettlement(ctx, t); err != nil {
			return fmt.Errorf("update transaction settlement: %w", err)
		}

		if offsets, err = s.runAutoOffsets(ctx, tx, t, fresh); err != nil {
			return err
		}
		saved, err = tx.GetTransaction(ctx, userID, t.ID)
		return err
	})
	if err != nil {
		return nil, s.reject("update_transaction", err)
	}

	s.reportAnomalies(userID, detached)
	s.reportAnomalies(userID, domain.ClassifyTransaction(*saved, categories).Warnings)
	s.reportOffsets(userID, offsets)
	s.logger.Info("transaction updated",
		zap.String("user_id", userID),
		zap.String("transaction_id", saved.ID),
		zap.Int64("total", saved.TotalAmount),
		zap.Int64("settled", saved.SettledAmount),
	)
	return saved, nil
}

// DeleteTransaction removes a transaction, its lines and their settlement
// items. Account movements stay in the journal so balances remain reproducible,
// and lines of other transactions settled together with the removed ones keep
// their settled amounts.
func (s *LedgerService) DeleteTransaction(ctx context.Context, userID, transactionID string) error {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.DeleteTransaction")
	defer span.End()

	if err := checkID("transaction", transactionID); err != nil {
		return err
	}

	var (
		removed  *domain.Transaction
		orphaned []string
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx port.LedgerTx) error {
		t, err := tx.LockTransaction(ctx, userID, transactionID)
		if err != nil {
			return err
		}
		removed = t
		if orphaned, err = offsetCounterparts(ctx, tx, t); err != nil {
			return err
		}
		return tx.DeleteTransaction(ctx, userID, transactionID)
	})
	if err != nil {
		return s.reject("delete_transaction", err)
	}

	fields := []zap.Field{
		zap.String("user_id", userID),
		zap.String("transaction_id", transactionID),
		zap.Int64("settled", removed.SettledAmount),
	}
	if len(orphaned) > 0 {
		s.logger.Warn("auto-offset counterpart lines left settled without their offsetting line",
			append(fields, zap.Strings("line_ids", orphaned))...)
	}
	if removed.SettledAmount > 0 {
		s.logger.Warn("settled transaction deleted; account balance left unchanged", fields...)
		return nil
	}
	s.logger.Info("transaction deleted", fields...)
	return nil
}

// offsetCounterparts returns the lines of other transactions that an
// auto-offset settled against a line of t.
func offsetCounterparts(ctx context.Context, tx port.LedgerTx, t *domain.Transaction) ([]string, error) {
	own := make(map[string]bool, len(t.Lines))
	ids := make([]string, 0, len(t.Lines))
	for _, l := range t.Lines {
		own[l.ID] = true
		ids = append(ids, l.ID)
	}
	recs, err := tx.ListLineSettlements(ctx, t.UserID, ids)
	if err != nil {
		return nil, fmt.Errorf("list line settlements: %w", err)
	}
	var out []string
	for _, rec := range recs {
		if rec.Kind != domain.SettlementAutoOffset {
			continue
		}
		for _, it := range rec.Items {
			if !own[it.TransactionLineID] {
				out = append(out, it.TransactionLineID)
			}
		}
	}
	return out, nil
}

func (s *LedgerService) GetTransaction(ctx context.Context, userID, transactionID string) (*domain.Transaction, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.GetTransaction")
	defer span.End()

	if err := checkID("transaction", transactionID); err != nil {
		return nil, err
	}
	return s.store.GetTransaction(ctx, userID, transactionID)
}

// ClassifyTransaction reports the bucket and flows of one transaction.
func (s *LedgerService) ClassifyTransaction(ctx context.Context, userID, transactionID string) (*domain.Classification, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.ClassifyTransaction")
	defer span.End()

	if err := checkID("transaction", transactionID); err != nil {
		return nil, err
	}
	t, err := s.store.GetTransaction(ctx, userID, transactionID)
	if err != nil {
		return nil, err
	}
	categories, err := s.categoryIndex(ctx, userID)
	if err != nil {
		return nil, err
	}
	c := domain.ClassifyTransaction(*t, categories)
	s.reportAnomalies(userID, c.Warnings)
	return &c, nil
}
