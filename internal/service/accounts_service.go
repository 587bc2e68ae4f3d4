package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/boddenberg/household-ledger/internal/domain"
	"github.com/boddenberg/household-ledger/internal/port"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Accounts
// ============================================================

func (s *LedgerService) ListAccounts(ctx context.Context, userID string) ([]domain.Account, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.ListAccounts")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	return s.store.ListAccounts(ctx, userID)
}

func (s *LedgerService) GetAccount(ctx context.Context, userID, accountID string) (*domain.Account, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.GetAccount")
	defer span.End()

	if err := checkID("account", accountID); err != nil {
		return nil, err
	}

	return s.store.GetAccount(ctx, userID, accountID)
}

// CreateAccount opens an account whose balance starts at the opening balance.
func (s *LedgerService) CreateAccount(ctx context.Context, userID string, req domain.CreateAccountRequest) (*domain.Account, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.CreateAccount")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, s.reject("create_account", &domain.ErrValidation{Field: "name", Message: "required"})
	}
	typ, err := domain.ParseAccountType(req.Type)
	if err != nil {
		return nil, s.reject("create_account", err)
	}
	owner, err := domain.ParseAccountOwner(req.Owner)
	if err != nil {
		return nil, s.reject("create_account", err)
	}

	acct := &domain.Account{
		UserID:         userID,
		Name:           name,
		Type:           typ,
		Owner:          owner,
		OpeningBalance: req.OpeningBalance,
		OpeningDate:    s.dateOr(req.OpeningDate),
		CurrentBalance: req.OpeningBalance,
		IsActive:       true,
	}
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx port.LedgerTx) error {
		return tx.InsertAccount(ctx, acct)
	})
	if err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}

	s.logger.Info("account created",
		zap.String("user_id", userID),
		zap.String("account_id", acct.ID),
		zap.String("type", string(typ)),
	)
	return acct, nil
}

// UpdateAccount changes name, owner or active flag. Balances are never touched here.
func (s *LedgerService) UpdateAccount(ctx context.Context, userID, accountID string, req domain.UpdateAccountRequest) (*domain.Account, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.UpdateAccount")
	defer span.End()

	if err := checkID("account", accountID); err != nil {
		return nil, err
	}

	var acct *domain.Account
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx port.LedgerTx) error {
		a, err := tx.LockAccount(ctx, userID, accountID)
		if err != nil {
			return err
		}
		if req.Name != nil {
			name := strings.TrimSpace(*req.Name)
			if name == "" {
				return &domain.ErrValidation{Field: "name", Message: "must not be empty"}
			}
			a.Name = name
		}
		if req.Owner != nil {
			owner, err := domain.ParseAccountOwner(*req.Owner)
			if err != nil {
				return err
			}
			a.Owner = owner
		}
		if req.IsActive != nil {
			a.IsActive = *req.IsActive
		}
		acct = a
		return tx.UpdateAccount(ctx, a)
	})
	if err != nil {
		return nil, s.reject("update_account", err)
	}
	return acct, nil
}

// OverrideBalance forces the cached balance to req.Balance and journals the
// difference as an adjustment so the balance stays reproducible.
func (s *LedgerService) OverrideBalance(ctx context.Context, userID, accountID string, req domain.OverrideBalanceRequest) (*domain.Account, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.OverrideBalance")
	defer span.End()

	if err := checkID("account", accountID); err != nil {
		return nil, err
	}

	var acct *domain.Account
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx port.LedgerTx) error {
		a, err := tx.LockAccount(ctx, userID, accountID)
		if err != nil {
			return err
		}
		date := s.dateOr(req.Date)
		if !a.Counts(date) {
			return &domain.ErrValidation{Field: "date", Message: "must not be before the account opening date"}
		}
		acct = a
		delta := req.Balance - a.CurrentBalance
		if delta == 0 {
			return nil
		}
		return s.postMovements(ctx, tx, a, []domain.AccountMovement{{
			UserID:    userID,
			AccountID: a.ID,
			Kind:      domain.MovementAdjustment,
			Amount:    delta,
			Date:      date,
		}})
	})
	if err != nil {
		return nil, s.reject("override_balance", err)
	}

	s.logger.Info("account balance overridden",
		zap.String("user_id", userID),
		zap.String("account_id", accountID),
		zap.Int64("balance", acct.CurrentBalance),
	)
	return acct, nil
}

// ReconcileAccount recomputes the balance from the journal and reports drift.
// It never writes.
func (s *LedgerService) ReconcileAccount(ctx context.Context, userID, accountID string) (*domain.AccountReconciliation, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.ReconcileAccount")
	defer span.End()

	if err := checkID("account", accountID); err != nil {
		return nil, err
	}

	acct, err := s.store.GetAccount(ctx, userID, accountID)
	if err != nil {
		return nil, err
	}
	moves, err := s.store.ListAccountMovements(ctx, userID, accountID)
	if err != nil {
		return nil, fmt.Errorf("list movements: %w", err)
	}

	expected := acct.ExpectedBalance(moves)
	rec := &domain.AccountReconciliation{
		AccountID:       acct.ID,
		CurrentBalance:  acct.CurrentBalance,
		ExpectedBalance: expected,
		Drift:           acct.CurrentBalance - expected,
		Movements:       len(moves),
	}
	if rec.Drift != 0 {
		s.logger.Warn("account balance drift",
			zap.String("user_id", userID),
			zap.String("account_id", accountID),
			zap.Int64("current", rec.CurrentBalance),
			zap.Int64("expected", rec.ExpectedBalance),
		)
	}
	return rec, nil
}

// postMovements journals moves against a locked account and applies their
// net effect with a single balance update. acct.CurrentBalance is updated in place.
func (s *LedgerService) postMovements(ctx context.Context, tx port.LedgerTx, acct *domain.Account, moves []domain.AccountMovement) error {
	var delta int64
	for i := range moves {
		m := &moves[i]
		if m.Amount == 0 {
			continue
		}
		if err := tx.InsertAccountMovement(ctx, m); err != nil {
			return fmt.Errorf("insert movement: %w", err)
		}
		if acct.Counts(m.Date) {
			delta += m.Amount
		}
	}
	if delta == 0 {
		return nil
	}
	acct.CurrentBalance += delta
	return tx.UpdateAccountBalance(ctx, acct.ID, acct.CurrentBalance)
}

// ============================================================
// Categories
// ============================================================

func (s *LedgerService) ListCategories(ctx context.Context, userID string) ([]domain.Category, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.ListCategories")
	defer span.End()

	return s.listCategories(ctx, userID)
}

func (s *LedgerService) CreateCategory(ctx context.Context, userID string, req domain.CreateCategoryRequest) (*domain.Category, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.CreateCategory")
	defer span.End()

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, s.reject("create_category", &domain.ErrValidation{Field: "name", Message: "required"})
	}
	kind, err := domain.ParseCategoryKind(req.Kind)
	if err != nil {
		return nil, s.reject("create_category", err)
	}

	cat := &domain.Category{UserID: userID, Name: name, Kind: kind}
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx port.LedgerTx) error {
		return tx.InsertCategory(ctx, cat)
	})
	if err != nil {
		return nil, fmt.Errorf("create category: %w", err)
	}
	s.invalidateCategories(userID)
	return cat, nil
}
