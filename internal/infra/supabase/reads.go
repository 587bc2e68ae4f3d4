package supabase

import (
	"context"
	"time"

	"github.com/boddenberg/household-ledger/internal/domain"
)

// query runs one read on the pool through the breaker and retry policy.
func query[T any](ctx context.Context, s *Store, op string, fn func(ctx context.Context, q queries) (T, error)) (T, error) {
	var out T
	err := s.read(ctx, op, func(ctx context.Context, q queries) error {
		var err error
		out, err = fn(ctx, q)
		return err
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

func (s *Store) ListAccounts(ctx context.Context, userID string) ([]domain.Account, error) {
	return query(ctx, s, "ListAccounts", func(ctx context.Context, q queries) ([]domain.Account, error) {
		return q.ListAccounts(ctx, userID)
	})
}

func (s *Store) GetAccount(ctx context.Context, userID, accountID string) (*domain.Account, error) {
	return query(ctx, s, "GetAccount", func(ctx context.Context, q queries) (*domain.Account, error) {
		return q.GetAccount(ctx, userID, accountID)
	})
}

func (s *Store) ListAccountMovements(ctx context.Context, userID, accountID string) ([]domain.AccountMovement, error) {
	return query(ctx, s, "ListAccountMovements", func(ctx context.Context, q queries) ([]domain.AccountMovement, error) {
		return q.ListAccountMovements(ctx, userID, accountID)
	})
}

func (s *Store) ListTransactionMovements(ctx context.Context, userID, transactionID string) ([]domain.AccountMovement, error) {
	return query(ctx, s, "ListTransactionMovements", func(ctx context.Context, q queries) ([]domain.AccountMovement, error) {
		return q.ListTransactionMovements(ctx, userID, transactionID)
	})
}

func (s *Store) ListCategories(ctx context.Context, userID string) ([]domain.Category, error) {
	return query(ctx, s, "ListCategories", func(ctx context.Context, q queries) ([]domain.Category, error) {
		return q.ListCategories(ctx, userID)
	})
}

func (s *Store) GetTransaction(ctx context.Context, userID, transactionID string) (*domain.Transaction, error) {
	return query(ctx, s, "GetTransaction", func(ctx context.Context, q queries) (*domain.Transaction, error) {
		return q.GetTransaction(ctx, userID, transactionID)
	})
}

func (s *Store) ListUnsettledTransactions(ctx context.Context, userID string) ([]domain.Transaction, error) {
	return query(ctx, s, "ListUnsettledTransactions", func(ctx context.Context, q queries) ([]domain.Transaction, error) {
		return q.ListUnsettledTransactions(ctx, userID)
	})
}

func (s *Store) ListSettledTransactions(ctx context.Context, userID string, limit int) ([]domain.Transaction, error) {
	return query(ctx, s, "ListSettledTransactions", func(ctx context.Context, q queries) ([]domain.Transaction, error) {
		return q.ListSettledTransactions(ctx, userID, limit)
	})
}

func (s *Store) ListTransactionsBetween(ctx context.Context, userID string, from, to time.Time) ([]domain.Transaction, error) {
	return query(ctx, s, "ListTransactionsBetween", func(ctx context.Context, q queries) ([]domain.Transaction, error) {
		return q.ListTransactionsBetween(ctx, userID, from, to)
	})
}

func (s *Store) ListCounterpartyLines(ctx context.Context, userID, counterparty string) ([]domain.TransactionLine, error) {
	return query(ctx, s, "ListCounterpartyLines", func(ctx context.Context, q queries) ([]domain.TransactionLine, error) {
		return q.ListCounterpartyLines(ctx, userID, counterparty)
	})
}

func (s *Store) GetSettlementBalance(ctx context.Context, userID, counterparty string) (*domain.SettlementBalance, error) {
	return query(ctx, s, "GetSettlementBalance", func(ctx context.Context, q queries) (*domain.SettlementBalance, error) {
		return q.GetSettlementBalance(ctx, userID, counterparty)
	})
}

func (s *Store) ListSettlementBalances(ctx context.Context, userID string) ([]domain.SettlementBalance, error) {
	return query(ctx, s, "ListSettlementBalances", func(ctx context.Context, q queries) ([]domain.SettlementBalance, error) {
		return q.ListSettlementBalances(ctx, userID)
	})
}

func (s *Store) GetSettlement(ctx context.Context, userID, settlementID string) (*domain.Settlement, error) {
	return query(ctx, s, "GetSettlement", func(ctx context.Context, q queries) (*domain.Settlement, error) {
		return q.GetSettlement(ctx, userID, settlementID)
	})
}

func (s *Store) ListSettlements(ctx context.Context, userID, counterparty string, limit int) ([]domain.Settlement, error) {
	return query(ctx, s, "ListSettlements", func(ctx context.Context, q queries) ([]domain.Settlement, error) {
		return q.ListSettlements(ctx, userID, counterparty, limit)
	})
}

func (s *Store) ListLineSettlements(ctx context.Context, userID string, lineIDs []string) ([]domain.Settlement, error) {
	return query(ctx, s, "ListLineSettlements", func(ctx context.Context, q queries) ([]domain.Settlement, error) {
		return q.ListLineSettlements(ctx, userID, lineIDs)
	})
}
