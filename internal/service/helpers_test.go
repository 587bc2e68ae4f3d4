package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/boddenberg/household-ledger/internal/domain"
	"github.com/boddenberg/household-ledger/internal/infra/cache"
	"github.com/boddenberg/household-ledger/internal/infra/memstore"
	"github.com/boddenberg/household-ledger/internal/infra/observability"
	"github.com/boddenberg/household-ledger/internal/port"
	"github.com/boddenberg/household-ledger/internal/service"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

const userID = "user-1"

var (
	today      = time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)
	openedOn   = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	accruedOn  = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	settledOn  = time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	background = context.Background()
)

type fixture struct {
	svc     *service.LedgerService
	store   *memstore.Store
	metrics *observability.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithLogger(t, zap.NewNop())
}

// newObservedFixture records warnings and errors logged by the service.
func newObservedFixture(t *testing.T) (*fixture, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zap.WarnLevel)
	return newFixtureWithLogger(t, zap.New(core)), logs
}

func newFixtureWithLogger(t *testing.T, logger *zap.Logger) *fixture {
	t.Helper()
	categories := cache.New[[]domain.Category](time.Minute)
	t.Cleanup(categories.Close)

	store := memstore.New()
	metrics := observability.NewMetrics()
	svc := service.NewLedgerService(store, categories, metrics, logger).
		WithClock(func() time.Time { return today.Add(9 * time.Hour) })
	return &fixture{svc: svc, store: store, metrics: metrics}
}

func (f *fixture) account(t *testing.T, opening int64) *domain.Account {
	t.Helper()
	acct, err := f.svc.CreateAccount(background, userID, domain.CreateAccountRequest{
		Name:           "Checking",
		Type:           string(domain.AccountBank),
		OpeningBalance: opening,
		OpeningDate:    openedOn,
	})
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	return acct
}

func (f *fixture) balance(t *testing.T, accountID string) int64 {
	t.Helper()
	acct, err := f.svc.GetAccount(background, userID, accountID)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	return acct.CurrentBalance
}

// assertReconciled fails when the cached balance drifted from the movement journal.
func (f *fixture) assertReconciled(t *testing.T, accountID string) {
	t.Helper()
	rec, err := f.svc.ReconcileAccount(background, userID, accountID)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if rec.Drift != 0 {
		t.Errorf("expected no drift, got %d (current %d, expected %d)", rec.Drift, rec.CurrentBalance, rec.ExpectedBalance)
	}
}

func (f *fixture) create(t *testing.T, req domain.TransactionRequest) *domain.Transaction {
	t.Helper()
	if req.Date.IsZero() {
		req.Date = accruedOn
	}
	tx, err := f.svc.CreateTransaction(background, userID, req)
	if err != nil {
		t.Fatalf("create transaction: %v", err)
	}
	return tx
}

func (f *fixture) expense(t *testing.T, amount int64) *domain.Transaction {
	t.Helper()
	return f.create(t, domain.TransactionRequest{
		Description: "groceries",
		Lines:       []domain.LineInput{{Amount: amount, LineType: string(domain.LineExpense)}},
	})
}

func (f *fixture) income(t *testing.T, amount int64) *domain.Transaction {
	t.Helper()
	return f.create(t, domain.TransactionRequest{
		Description: "salary",
		Lines:       []domain.LineInput{{Amount: amount, LineType: string(domain.LineIncome)}},
	})
}

// advance records money the user fronted for counterparty.
func (f *fixture) advance(t *testing.T, counterparty string, amount int64) *domain.Transaction {
	t.Helper()
	return f.create(t, domain.TransactionRequest{
		Description: "advance to " + counterparty,
		Lines: []domain.LineInput{
			{Amount: amount, LineType: string(domain.LineAsset), Counterparty: counterparty},
		},
	})
}

// borrow records an expense counterparty paid on the user's behalf.
func (f *fixture) borrow(t *testing.T, counterparty string, amount int64) *domain.Transaction {
	t.Helper()
	return f.create(t, domain.TransactionRequest{
		Description: "dinner paid by " + counterparty,
		PaidByOther: true,
		Lines: []domain.LineInput{
			{Amount: amount, LineType: string(domain.LineExpense)},
			{Amount: amount, LineType: string(domain.LineLiability), Counterparty: counterparty},
		},
	})
}

func (f *fixture) transaction(t *testing.T, id string) *domain.Transaction {
	t.Helper()
	tx, err := f.svc.GetTransaction(background, userID, id)
	if err != nil {
		t.Fatalf("get transaction: %v", err)
	}
	return tx
}

func (f *fixture) line(t *testing.T, transactionID string, lt domain.LineType) domain.TransactionLine {
	t.Helper()
	for _, l := range f.transaction(t, transactionID).Lines {
		if l.LineType == lt {
			return l
		}
	}
	t.Fatalf("transaction %s has no %s line", transactionID, lt)
	return domain.TransactionLine{}
}

func (f *fixture) pool(t *testing.T, counterparty string) *domain.SettlementBalance {
	t.Helper()
	bal, err := f.svc.GetSettlementBalance(background, userID, counterparty)
	if err != nil {
		t.Fatalf("get settlement balance: %v", err)
	}
	return bal
}

// markLegacySettled rewrites a line the way old rows were stored: flagged
// settled with no settled amount.
func markLegacySettled(t *testing.T, f *fixture, lineID string) {
	t.Helper()
	err := f.store.WithinTx(background, func(ctx context.Context, tx port.LedgerTx) error {
		return tx.UpdateLineSettlement(ctx, lineID, 0, true)
	})
	if err != nil {
		t.Fatalf("mark legacy: %v", err)
	}
}

func expectError[E error](t *testing.T, err error) E {
	t.Helper()
	var target E
	if err == nil {
		t.Fatalf("expected %T, got nil", target)
	}
	if !errors.As(err, &target) {
		t.Fatalf("expected %T, got %T: %v", target, err, err)
	}
	return target
}

func ptr[T any](v T) *T { return &v }
