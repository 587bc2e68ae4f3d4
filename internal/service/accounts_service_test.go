package service_test

import (
	"testing"
	"time"

	"github.com/boddenberg/household-ledger/internal/domain"
)

func TestCreateAccount(t *testing.T) {
	f := newFixture(t)
	acct := f.account(t, 25000)
	if acct.CurrentBalance != 25000 || !acct.IsActive || acct.Owner != domain.OwnerSelf {
		t.Errorf("unexpected account: %+v", acct)
	}

	_, err := f.svc.CreateAccount(background, userID, domain.CreateAccountRequest{Name: "x", Type: "crypto"})
	expectError[*domain.ErrValidation](t, err)
	_, err = f.svc.CreateAccount(background, userID, domain.CreateAccountRequest{Name: " ", Type: "cash"})
	expectError[*domain.ErrValidation](t, err)

	accounts, err := f.svc.ListAccounts(background, userID)
	if err != nil {
		t.Fatalf("list accounts: %v", err)
	}
	if len(accounts) != 1 {
		t.Errorf("expected 1 account, got %d", len(accounts))
	}
	if other, _ := f.svc.ListAccounts(background, "someone-else"); len(other) != 0 {
		t.Error("expected accounts scoped to their owner")
	}
}

func TestOverrideBalance_JournalsAdjustment(t *testing.T) {
	f := newFixture(t)
	acct := f.account(t, 10000)

	updated, err := f.svc.OverrideBalance(background, userID, acct.ID, domain.OverrideBalanceRequest{Balance: 8500, Date: settledOn})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if updated.CurrentBalance != 8500 {
		t.Errorf("expected balance 8500, got %d", updated.CurrentBalance)
	}
	f.assertReconciled(t, acct.ID)

	_, err = f.svc.OverrideBalance(background, userID, acct.ID, domain.OverrideBalanceRequest{
		Balance: 1, Date: openedOn.AddDate(0, 0, -1),
	})
	expectError[*domain.ErrValidation](t, err)
}

func TestSettlementBeforeOpeningDateLeavesBalance(t *testing.T) {
	f := newFixture(t)
	acct := f.account(t, 10000)
	old := f.create(t, domain.TransactionRequest{
		Date:        time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC),
		Description: "last year's bill",
		Lines:       []domain.LineInput{{Amount: 700, LineType: "expense"}},
	})

	if _, err := f.svc.Settle(background, userID, domain.SettleRequest{
		TransactionIDs: []string{old.ID},
		CashAccountID:  acct.ID,
		Date:           time.Date(2023, 12, 20, 0, 0, 0, 0, time.UTC),
	}); err != nil {
		t.Fatalf("settle: %v", err)
	}
	if got := f.balance(t, acct.ID); got != 10000 {
		t.Errorf("expected opening balance to already reflect it, got %d", got)
	}
	f.assertReconciled(t, acct.ID)
}

func TestCategories_CachedPerUser(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.CreateCategory(background, userID, domain.CreateCategoryRequest{Name: "Food", Kind: "expense"}); err != nil {
		t.Fatalf("create category: %v", err)
	}
	_, err := f.svc.CreateCategory(background, userID, domain.CreateCategoryRequest{Name: "Food", Kind: "asset"})
	expectError[*domain.ErrValidation](t, err)

	for i := 0; i < 2; i++ {
		cats, err := f.svc.ListCategories(background, userID)
		if err != nil {
			t.Fatalf("list categories: %v", err)
		}
		if len(cats) != 1 {
			t.Fatalf("expected 1 category, got %d", len(cats))
		}
	}
	if m := f.metrics.Snapshot(); m.CacheHitRate != 0.5 {
		t.Errorf("expected hit rate 0.5, got %f", m.CacheHitRate)
	}

	if _, err := f.svc.CreateCategory(background, userID, domain.CreateCategoryRequest{Name: "Pay", Kind: "income"}); err != nil {
		t.Fatalf("create category: %v", err)
	}
	cats, _ := f.svc.ListCategories(background, userID)
	if len(cats) != 2 {
		t.Errorf("expected cache invalidated on create, got %d categories", len(cats))
	}
}
