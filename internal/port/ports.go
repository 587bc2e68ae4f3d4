// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations.
package port

import (
	"context"
	"time"

	"github.com/boddenberg/household-ledger/internal/domain"
)

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}

// LedgerReader holds the read side of the ledger store. Every call is scoped
// to the owning user.
type LedgerReader interface {
	// Accounts
	ListAccounts(ctx context.Context, userID string) ([]domain.Account, error)
	GetAccount(ctx context.Context, userID, accountID string) (*domain.Account, error)
	ListAccountMovements(ctx context.Context, userID, accountID string) ([]domain.AccountMovement, error)
	ListTransactionMovements(ctx context.Context, userID, transactionID string) ([]domain.AccountMovement, error)

	// Categories
	ListCategories(ctx context.Context, userID string) ([]domain.Category, error)

	// Transactions (with lines)
	GetTransaction(ctx context.Context, userID, transactionID string) (*domain.Transaction, error)
	ListUnsettledTransactions(ctx context.Context, userID string) ([]domain.Transaction, error)
	ListSettledTransactions(ctx context.Context, userID string, limit int) ([]domain.Transaction, error)
	ListTransactionsBetween(ctx context.Context, userID string, from, to time.Time) ([]domain.Transaction, error)

	// Counterparty ledger
	ListCounterpartyLines(ctx context.Context, userID, counterparty string) ([]domain.TransactionLine, error)
	GetSettlementBalance(ctx context.Context, userID, counterparty string) (*domain.SettlementBalance, error)
	ListSettlementBalances(ctx context.Context, userID string) ([]domain.SettlementBalance, error)
	GetSettlement(ctx context.Context, userID, settlementID string) (*domain.Settlement, error)
	ListSettlements(ctx context.Context, userID, counterparty string, limit int) ([]domain.Settlement, error)
	// ListLineSettlements returns every settlement with an item on one of lineIDs, oldest first.
	ListLineSettlements(ctx context.Context, userID string, lineIDs []string) ([]domain.Settlement, error)
}

// LedgerTx is a unit of work against the store. Lock* methods take row locks
// held until the unit of work ends.
type LedgerTx interface {
	LedgerReader

	LockAccount(ctx context.Context, userID, accountID string) (*domain.Account, error)
	LockTransaction(ctx context.Context, userID, transactionID string) (*domain.Transaction, error)
	LockLines(ctx context.Context, userID string, lineIDs []string) ([]domain.TransactionLine, error)
	// LockUnsettledAssetLines returns the counterparty's open asset lines, oldest first.
	LockUnsettledAssetLines(ctx context.Context, userID, counterparty string) ([]domain.TransactionLine, error)
	// LockSettlementBalance returns the pool row, or a zero row if none exists yet.
	LockSettlementBalance(ctx context.Context, userID, counterparty string) (*domain.SettlementBalance, error)

	InsertAccount(ctx context.Context, a *domain.Account) error
	UpdateAccount(ctx context.Context, a *domain.Account) error
	UpdateAccountBalance(ctx context.Context, accountID string, balance int64) error
	InsertAccountMovement(ctx context.Context, m *domain.AccountMovement) error

	InsertCategory(ctx context.Context, c *domain.Category) error

	InsertTransaction(ctx context.Context, tx *domain.Transaction) error
	UpdateTransactionHeader(ctx context.Context, tx *domain.Transaction) error
	UpdateTransactionSettlement(ctx context.Context, tx *domain.Transaction) error
	DeleteTransaction(ctx context.Context, userID, transactionID string) error

	InsertLine(ctx context.Context, l *domain.TransactionLine) error
	UpdateLine(ctx context.Context, l *domain.TransactionLine) error
	UpdateLineSettlement(ctx context.Context, lineID string, settledAmount int64, isSettled bool) error
	DeleteLine(ctx context.Context, lineID string) error

	UpsertSettlementBalance(ctx context.Context, b *domain.SettlementBalance) error
	InsertSettlement(ctx context.Context, s *domain.Settlement) error
	UpdateSettlement(ctx context.Context, s *domain.Settlement) error
	InsertSettlementItems(ctx context.Context, items []domain.SettlementItem) error
	DeleteSettlement(ctx context.Context, userID, settlementID string) error
}

// LedgerStore is the durable ledger. WithinTx runs fn as one atomic unit:
// every write made through tx is committed together or not at all.
type LedgerStore interface {
	LedgerReader
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx LedgerTx) error) error
	Ping(ctx context.Context) error
}
