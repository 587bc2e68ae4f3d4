package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/boddenberg/household-ledger/internal/domain"
	"github.com/boddenberg/household-ledger/internal/infra/observability"
	"github.com/boddenberg/household-ledger/internal/port"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultSettledLimit = 50
	maxSettledLimit     = 500
)

// resolveCashAccount locks the account a settlement moves money through.
// An empty id is only accepted while the user has no active account; then
// the settlement proceeds without touching any balance and nil is returned.
func (s *LedgerService) resolveCashAccount(ctx context.Context, tx port.LedgerTx, userID, accountID string) (*domain.Account, error) {
	if accountID == "" {
		accounts, err := tx.ListAccounts(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("list accounts: %w", err)
		}
		for _, a := range accounts {
			if a.IsActive {
				return nil, &domain.ErrPrecondition{Message: "select the cash account the money moved through"}
			}
		}
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

// lockTransactions locks ids in sorted order and returns them by id.
func lockTransactions(ctx context.Context, tx port.LedgerTx, userID string, ids []string) (map[string]*domain.Transaction, error) {
	if err := checkIDs("transaction", ids); err != nil {
		return nil, err
	}
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)

	out := make(map[string]*domain.Transaction, len(ids))
	for _, id := range sorted {
		t, err := tx.LockTransaction(ctx, userID, id)
		if err != nil {
			return nil, err
		}
		out[id] = t
	}
	return out, nil
}

func balanceOf(acct *domain.Account) (string, *int64) {
	if acct == nil {
		return "", nil
	}
	b := acct.CurrentBalance
	return acct.ID, &b
}

// Settle fully settles every listed transaction against one cash account.
// Duplicates are ignored and input order is kept. The account balance moves
// once by the sum of the remaining amounts; already settled transactions move nothing.
func (s *LedgerService) Settle(ctx context.Context, userID string, req domain.SettleRequest) (*domain.SettleResult, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.Settle")
	defer span.End()
	defer s.track(observability.OpCashSettle)()

	ids := domain.UniqueIDs(req.TransactionIDs)
	if len(ids) == 0 {
		return nil, s.reject(observability.OpCashSettle, &domain.ErrValidation{Field: "transaction_ids", Message: "at least one transaction is required"})
	}
	var direction domain.Bucket
	if req.Direction != "" {
		d, err := domain.ParseBucket(req.Direction)
		if err != nil {
			return nil, s.reject(observability.OpCashSettle, err)
		}
		direction = d
	}
	date := s.dateOr(req.Date)
	span.SetAttributes(attribute.String("user.id", userID), attribute.Int("transactions", len(ids)))

	var (
		result  domain.SettleResult
		account *domain.Account
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx port.LedgerTx) error {
		result = domain.SettleResult{Transactions: make([]domain.Transaction, 0, len(ids))}

		acct, err := s.resolveCashAccount(ctx, tx, userID, req.CashAccountID)
		if err != nil {
			return err
		}
		locked, err := lockTransactions(ctx, tx, userID, ids)
		if err != nil {
			return err
		}

		var moves []domain.AccountMovement
		for _, id := range ids {
			t := locked[id]
			remaining := t.Remaining()
			if remaining == 0 && t.IsCashSettled {
				result.Transactions = append(result.Transactions, *t)
				continue
			}

			bucket := domain.Classify(t.Lines)
			if direction != "" && bucket != direction {
				s.logger.Warn("settle direction differs from classification",
					zap.String("transaction_id", t.ID),
					zap.String("requested", string(direction)),
					zap.String("classified", string(bucket)),
				)
				bucket = direction
			}

			t.ApplyCashSettlement(t.TotalAmount)
			t.SettlementDate = &date
			if acct != nil {
				t.SettlementAccountID = acct.ID
			}
			if err := tx.UpdateTransactionSettlement(ctx, t); err != nil {
				return fmt.Errorf("update transaction %s: %w", t.ID, err)
			}

			if remaining > 0 {
				result.TotalSettled += remaining
				if acct != nil {
					moves = append(moves, domain.AccountMovement{
						UserID:        userID,
						AccountID:     acct.ID,
						TransactionID: t.ID,
						Kind:          domain.MovementSettle,
						Amount:        bucket.Sign() * remaining,
						Date:          date,
					})
				}
			}
			result.Transactions = append(result.Transactions, *t)
		}

		if acct != nil {
			if err := s.postMovements(ctx, tx, acct, moves); err != nil {
				return err
			}
		}
		account = acct
		return nil
	})
	if err != nil {
		return nil, s.reject(observability.OpCashSettle, err)
	}

	result.CashAccountID, result.AccountBalance = balanceOf(account)
	s.metrics.RecordSettlement(observability.OpCashSettle, result.TotalSettled)
	s.logger.Info("cash settlement applied",
		zap.String("user_id", userID),
		zap.Int("transactions", len(ids)),
		zap.Int64("total_settled", result.TotalSettled),
		zap.String("cash_account_id", result.CashAccountID),
	)
	return &result, nil
}

// PartialSettle settles part of one transaction. The amount must not exceed
// what remains; the direction follows the transaction's classification.
func (s *LedgerService) PartialSettle(ctx context.Context, userID, transactionID string, req domain.PartialSettleRequest) (*domain.SettleResult, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.PartialSettle")
	defer span.End()
	defer s.track(observability.OpPartialSettle)()

	if err := checkID("transaction", transactionID); err != nil {
		return nil, err
	}
	if req.Amount <= 0 {
		return nil, s.reject(observability.OpPartialSettle, &domain.ErrValidation{Field: "amount", Message: "must be positive"})
	}
	date := s.dateOr(req.Date)

	var (
		result  domain.SettleResult
		account *domain.Account
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx port.LedgerTx) error {
		acct, err := s.resolveCashAccount(ctx, tx, userID, req.CashAccountID)
		if err != nil {
			return err
		}
		t, err := tx.LockTransaction(ctx, userID, transactionID)
		if err != nil {
			return err
		}

		remaining := t.Remaining()
		if req.Amount > remaining {
			return &domain.ErrValidation{
				Field:   "amount",
				Message: fmt.Sprintf("exceeds the remaining amount %d", remaining),
			}
		}

		bucket := domain.Classify(t.Lines)
		t.ApplyCashSettlement(t.SettledAmount + req.Amount)
		t.SettlementDate = &date
		if acct != nil {
			t.SettlementAccountID = acct.ID
		}
		if err := tx.UpdateTransactionSettlement(ctx, t); err != nil {
			return fmt.Errorf("update transaction %s: %w", t.ID, err)
		}

		if acct != nil {
			err := s.postMovements(ctx, tx, acct, []domain.AccountMovement{{
				UserID:        userID,
				AccountID:     acct.ID,
				TransactionID: t.ID,
				Kind:          domain.MovementPartialSettle,
				Amount:        bucket.Sign() * req.Amount,
				Date:          date,
			}})
			if err != nil {
				return err
			}
		}

		account = acct
		result = domain.SettleResult{Transactions: []domain.Transaction{*t}, TotalSettled: req.Amount}
		return nil
	})
	if err != nil {
		return nil, s.reject(observability.OpPartialSettle, err)
	}

	result.CashAccountID, result.AccountBalance = balanceOf(account)
	s.metrics.RecordSettlement(observability.OpPartialSettle, req.Amount)
	s.logger.Info("partial cash settlement applied",
		zap.String("user_id", userID),
		zap.String("transaction_id", transactionID),
		zap.Int64("amount", req.Amount),
		zap.Bool("fully_settled", result.Transactions[0].IsCashSettled),
	)
	return &result, nil
}

type reversalKey struct {
	accountID string
	date      time.Time
}

// Unsettle clears the cash settlement of the listed transactions and reverses
// every balance movement previously posted for them.
func (s *LedgerService) Unsettle(ctx context.Context, userID string, req domain.UnsettleRequest) (*domain.SettleResult, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.Unsettle")
	defer span.End()
	defer s.track(observability.OpUnsettle)()

	ids := domain.UniqueIDs(req.TransactionIDs)
	if len(ids) == 0 {
		return nil, s.reject(observability.OpUnsettle, &domain.ErrValidation{Field: "transaction_ids", Message: "at least one transaction is required"})
	}

	var result domain.SettleResult
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx port.LedgerTx) error {
		result = domain.SettleResult{Transactions: make([]domain.Transaction, 0, len(ids))}

		// Accounts are locked before transactions, as in Settle.
		accounts := make(map[string]*domain.Account)
		lockAccounts := func(moves []domain.AccountMovement) error {
			var pending []string
			for _, m := range moves {
				if _, ok := accounts[m.AccountID]; !ok {
					pending = append(pending, m.AccountID)
					accounts[m.AccountID] = nil
				}
			}
			sort.Strings(pending)
			for _, id := range pending {
				a, err := tx.LockAccount(ctx, userID, id)
				if err != nil {
					return err
				}
				accounts[id] = a
			}
			return nil
		}

		for _, id := range ids {
			moves, err := tx.ListTransactionMovements(ctx, userID, id)
			if err != nil {
				return fmt.Errorf("list movements: %w", err)
			}
			if err := lockAccounts(moves); err != nil {
				return err
			}
		}

		locked, err := lockTransactions(ctx, tx, userID, ids)
		if err != nil {
			return err
		}

		net := make(map[reversalKey]int64)
		var keys []reversalKey
		for _, id := range ids {
			// Re-read under the transaction lock; a settle may have committed meanwhile.
			moves, err := tx.ListTransactionMovements(ctx, userID, id)
			if err != nil {
				return fmt.Errorf("list movements: %w", err)
			}
			if err := lockAccounts(moves); err != nil {
				return err
			}
			for _, m := range moves {
				k := reversalKey{m.AccountID, domain.DateOnly(m.Date)}
				if _, ok := net[k]; !ok {
					keys = append(keys, k)
				}
				net[k] += m.Amount
			}

			t := locked[id]
			result.TotalSettled += t.SettledAmount
			t.SettledAmount = 0
			t.IsCashSettled = false
			t.SettlementAccountID = ""
			t.SettlementDate = nil
			if err := tx.UpdateTransactionSettlement(ctx, t); err != nil {
				return fmt.Errorf("update transaction %s: %w", t.ID, err)
			}
			result.Transactions = append(result.Transactions, *t)

			reversals := make(map[string][]domain.AccountMovement)
			for _, k := range keys {
				if net[k] == 0 {
					continue
				}
				reversals[k.accountID] = append(reversals[k.accountID], domain.AccountMovement{
					UserID:        userID,
					AccountID:     k.accountID,
					TransactionID: id,
					Kind:          domain.MovementUnsettle,
					Amount:        -net[k],
					Date:          k.date,
				})
			}
			for accountID, rev := range reversals {
				if err := s.postMovements(ctx, tx, accounts[accountID], rev); err != nil {
					return err
				}
			}
			clear(net)
			keys = keys[:0]
		}
		return nil
	})
	if err != nil {
		return nil, s.reject(observability.OpUnsettle, err)
	}

	s.metrics.RecordSettlement(observability.OpUnsettle, result.TotalSettled)
	s.logger.Info("cash settlement reverted",
		zap.String("user_id", userID),
		zap.Int("transactions", len(ids)),
		zap.Int64("total_reverted", result.TotalSettled),
	)
	return &result, nil
}

// CashWorklist lists unsettled transactions split into payables and receivables.
func (s *LedgerService) CashWorklist(ctx context.Context, userID string) (*domain.CashWorklist, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.CashWorklist")
	defer span.End()

	var (
		txs        []domain.Transaction
		categories map[string]domain.Category
	)
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		txs, err = s.store.ListUnsettledTransactions(gCtx, userID)
		if err != nil {
			return fmt.Errorf("list unsettled transactions: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		categories, err = s.categoryIndex(gCtx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	w := domain.BuildCashWorklist(txs, categories)
	s.reportAnomalies(userID, w.Warnings)
	return &w, nil
}

// ListSettled returns cash-settled transactions, most recently settled first.
func (s *LedgerService) ListSettled(ctx context.Context, userID string, limit int) ([]domain.Transaction, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.ListSettled")
	defer span.End()

	switch {
	case limit <= 0:
		limit = defaultSettledLimit
	case limit > maxSettledLimit:
		limit = maxSettledLimit
	}
	return s.store.ListSettledTransactions(ctx, userID, limit)
}
