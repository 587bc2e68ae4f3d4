package supabase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/boddenberg/household-ledger/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// queries implements port.LedgerReader over a pool or a transaction.
type queries struct {
	q querier
}

const (
	accountColumns     = `id, user_id, name, type, owner, opening_balance, opening_date, current_balance, is_active, created_at`
	movementColumns    = `id, user_id, account_id, transaction_id, settlement_id, kind, amount, date, created_at`
	categoryColumns    = `id, user_id, name, kind, created_at`
	transactionColumns = `id, user_id, date, payment_date, description, total_amount, is_cash_settled, settled_amount,
		settlement_account_id, settlement_date, paid_by_other, created_at`
	lineColumns = `id, user_id, transaction_id, amount, line_type, category_id, counterparty, amortization_months,
		amortization_start, amortization_end, is_settled, settled_amount, note, created_at`
	balanceColumns    = `user_id, counterparty, receive_balance, pay_balance, updated_at`
	settlementColumns = `id, user_id, date, counterparty, amount, kind, cash_account_id, note, created_at`
	itemColumns       = `id, settlement_id, transaction_line_id, amount`

	// unsettledLine matches lines with Unsettled() > 0; flag-only legacy rows are closed.
	unsettledLine = `amount > settled_amount AND NOT (is_settled AND settled_amount = 0)`
)

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullableInt(n int) *int {
	if n == 0 {
		return nil
	}
	return &n
}

// notFound turns pgx.ErrNoRows into a domain error.
func notFound(err error, resource, id string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return &domain.ErrNotFound{Resource: resource, ID: id}
	}
	return err
}

// ============================================================
// Row scanners
// ============================================================

func scanAccount(row pgx.CollectableRow) (domain.Account, error) {
	var a domain.Account
	err := row.Scan(&a.ID, &a.UserID, &a.Name, &a.Type, &a.Owner, &a.OpeningBalance,
		&a.OpeningDate, &a.CurrentBalance, &a.IsActive, &a.CreatedAt)
	return a, err
}

func scanMovement(row pgx.CollectableRow) (domain.AccountMovement, error) {
	var (
		m             domain.AccountMovement
		transactionID *string
		settlementID  *string
	)
	err := row.Scan(&m.ID, &m.UserID, &m.AccountID, &transactionID, &settlementID,
		&m.Kind, &m.Amount, &m.Date, &m.CreatedAt)
	m.TransactionID = deref(transactionID)
	m.SettlementID = deref(settlementID)
	return m, err
}

func scanCategory(row pgx.CollectableRow) (domain.Category, error) {
	var c domain.Category
	err := row.Scan(&c.ID, &c.UserID, &c.Name, &c.Kind, &c.CreatedAt)
	return c, err
}

func scanTransaction(row pgx.CollectableRow) (domain.Transaction, error) {
	var (
		t         domain.Transaction
		accountID *string
	)
	err := row.Scan(&t.ID, &t.UserID, &t.Date, &t.PaymentDate, &t.Description, &t.TotalAmount,
		&t.IsCashSettled, &t.SettledAmount, &accountID, &t.SettlementDate, &t.PaidByOther, &t.CreatedAt)
	t.SettlementAccountID = deref(accountID)
	return t, err
}

func scanLine(row pgx.CollectableRow) (domain.TransactionLine, error) {
	var (
		l            domain.TransactionLine
		categoryID   *string
		counterparty *string
		months       *int
	)
	err := row.Scan(&l.ID, &l.UserID, &l.TransactionID, &l.Amount, &l.LineType, &categoryID,
		&counterparty, &months, &l.AmortizationStart, &l.AmortizationEnd, &l.IsSettled,
		&l.SettledAmount, &l.Note, &l.CreatedAt)
	l.CategoryID = deref(categoryID)
	l.Counterparty = deref(counterparty)
	if months != nil {
		l.AmortizationMonths = *months
	}
	return l, err
}

func scanBalance(row pgx.CollectableRow) (domain.SettlementBalance, error) {
	var b domain.SettlementBalance
	err := row.Scan(&b.UserID, &b.Counterparty, &b.ReceiveBalance, &b.PayBalance, &b.UpdatedAt)
	return b, err
}

func scanSettlement(row pgx.CollectableRow) (domain.Settlement, error) {
	var (
		s         domain.Settlement
		accountID *string
	)
	err := row.Scan(&s.ID, &s.UserID, &s.Date, &s.Counterparty, &s.Amount, &s.Kind,
		&accountID, &s.Note, &s.CreatedAt)
	s.CashAccountID = deref(accountID)
	return s, err
}

func scanItem(row pgx.CollectableRow) (domain.SettlementItem, error) {
	var it domain.SettlementItem
	err := row.Scan(&it.ID, &it.SettlementID, &it.TransactionLineID, &it.Amount)
	return it, err
}

func collect[T any](ctx context.Context, q querier, scan pgx.RowToFunc[T], sql string, args ...any) ([]T, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	out, err := pgx.CollectRows(rows, scan)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []T{}
	}
	return out, nil
}

func one[T any](ctx context.Context, q querier, scan pgx.RowToFunc[T], sql string, args ...any) (T, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		var zero T
		return zero, err
	}
	return pgx.CollectExactlyOneRow(rows, scan)
}

// ============================================================
// Accounts
// ============================================================

func (r queries) ListAccounts(ctx context.Context, userID string) ([]domain.Account, error) {
	return collect(ctx, r.q, scanAccount,
		`SELECT `+accountColumns+` FROM accounts WHERE user_id = $1 ORDER BY created_at, id`, userID)
}

func (r queries) GetAccount(ctx context.Context, userID, accountID string) (*domain.Account, error) {
	return r.account(ctx, userID, accountID, "")
}

func (r queries) account(ctx context.Context, userID, accountID, lock string) (*domain.Account, error) {
	a, err := one(ctx, r.q, scanAccount,
		`SELECT `+accountColumns+` FROM accounts WHERE user_id = $1 AND id = $2`+lock, userID, accountID)
	if err != nil {
		return nil, notFound(err, "account", accountID)
	}
	return &a, nil
}

func (r queries) ListAccountMovements(ctx context.Context, userID, accountID string) ([]domain.AccountMovement, error) {
	return collect(ctx, r.q, scanMovement,
		`SELECT `+movementColumns+` FROM account_movements WHERE user_id = $1 AND account_id = $2 ORDER BY seq`,
		userID, accountID)
}

func (r queries) ListTransactionMovements(ctx context.Context, userID, transactionID string) ([]domain.AccountMovement, error) {
	return collect(ctx, r.q, scanMovement,
		`SELECT `+movementColumns+` FROM account_movements WHERE user_id = $1 AND transaction_id = $2 ORDER BY seq`,
		userID, transactionID)
}

// ============================================================
// Categories
// ============================================================

func (r queries) ListCategories(ctx context.Context, userID string) ([]domain.Category, error) {
	return collect(ctx, r.q, scanCategory,
		`SELECT `+categoryColumns+` FROM categories WHERE user_id = $1 ORDER BY created_at, id`, userID)
}

// ============================================================
// Transactions
// ============================================================

// attachLines loads the lines of txs in one round trip.
func (r queries) attachLines(ctx context.Context, txs []domain.Transaction) ([]domain.Transaction, error) {
	if len(txs) == 0 {
		return txs, nil
	}
	ids := make([]string, len(txs))
	byID := make(map[string]int, len(txs))
	for i := range txs {
		ids[i] = txs[i].ID
		byID[txs[i].ID] = i
		txs[i].Lines = []domain.TransactionLine{}
	}

	lines, err := collect(ctx, r.q, scanLine,
		`SELECT `+lineColumns+` FROM transaction_lines WHERE transaction_id = ANY($1::uuid[]) ORDER BY seq`, ids)
	if err != nil {
		return nil, fmt.Errorf("load lines: %w", err)
	}
	for _, l := range lines {
		i := byID[l.TransactionID]
		txs[i].Lines = append(txs[i].Lines, l)
	}
	return txs, nil
}

func (r queries) GetTransaction(ctx context.Context, userID, transactionID string) (*domain.Transaction, error) {
	return r.transaction(ctx, userID, transactionID, "")
}

func (r queries) transaction(ctx context.Context, userID, transactionID, lock string) (*domain.Transaction, error) {
	t, err := one(ctx, r.q, scanTransaction,
		`SELECT `+transactionColumns+` FROM transactions WHERE user_id = $1 AND id = $2`+lock, userID, transactionID)
	if err != nil {
		return nil, notFound(err, "transaction", transactionID)
	}
	txs, err := r.attachLines(ctx, []domain.Transaction{t})
	if err != nil {
		return nil, err
	}
	return &txs[0], nil
}

func (r queries) listTransactions(ctx context.Context, sql string, args ...any) ([]domain.Transaction, error) {
	txs, err := collect(ctx, r.q, scanTransaction, sql, args...)
	if err != nil {
		return nil, err
	}
	return r.attachLines(ctx, txs)
}

func (r queries) ListUnsettledTransactions(ctx context.Context, userID string) ([]domain.Transaction, error) {
	return r.listTransactions(ctx,
		`SELECT `+transactionColumns+` FROM transactions
		 WHERE user_id = $1 AND NOT is_cash_settled
		 ORDER BY date, created_at, id`, userID)
}

func (r queries) ListSettledTransactions(ctx context.Context, userID string, limit int) ([]domain.Transaction, error) {
	if limit <= 0 {
		limit = 100
	}
	return r.listTransactions(ctx,
		`SELECT `+transactionColumns+` FROM transactions
		 WHERE user_id = $1 AND is_cash_settled
		 ORDER BY COALESCE(settlement_date, date) DESC, created_at DESC, id DESC
		 LIMIT $2`, userID, limit)
}

func (r queries) ListTransactionsBetween(ctx context.Context, userID string, from, to time.Time) ([]domain.Transaction, error) {
	return r.listTransactions(ctx,
		`SELECT `+transactionColumns+` FROM transactions
		 WHERE user_id = $1 AND date >= $2 AND date <= $3
		 ORDER BY date, created_at, id`, userID, from, to)
}

// ============================================================
// Counterparty ledger
// ============================================================

func (r queries) ListCounterpartyLines(ctx context.Context, userID, counterparty string) ([]domain.TransactionLine, error) {
	return collect(ctx, r.q, scanLine,
		`SELECT `+lineColumns+` FROM transaction_lines
		 WHERE user_id = $1 AND counterparty IS NOT NULL AND counterparty <> ''
		   AND NOT is_settled
		   AND ($2 = '' OR counterparty = $2)
		 ORDER BY seq`, userID, counterparty)
}

func (r queries) GetSettlementBalance(ctx context.Context, userID, counterparty string) (*domain.SettlementBalance, error) {
	return r.balance(ctx, userID, counterparty, "")
}

func (r queries) balance(ctx context.Context, userID, counterparty, lock string) (*domain.SettlementBalance, error) {
	b, err := one(ctx, r.q, scanBalance,
		`SELECT `+balanceColumns+` FROM settlement_balances WHERE user_id = $1 AND counterparty = $2`+lock,
		userID, counterparty)
	if errors.Is(err, pgx.ErrNoRows) {
		return &domain.SettlementBalance{UserID: userID, Counterparty: counterparty}, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r queries) ListSettlementBalances(ctx context.Context, userID string) ([]domain.SettlementBalance, error) {
	return collect(ctx, r.q, scanBalance,
		`SELECT `+balanceColumns+` FROM settlement_balances WHERE user_id = $1 ORDER BY counterparty`, userID)
}

func (r queries) attachItems(ctx context.Context, ss []domain.Settlement) ([]domain.Settlement, error) {
	if len(ss) == 0 {
		return ss, nil
	}
	ids := make([]string, len(ss))
	byID := make(map[string]int, len(ss))
	for i := range ss {
		ids[i] = ss[i].ID
		byID[ss[i].ID] = i
		ss[i].Items = []domain.SettlementItem{}
	}

	items, err := collect(ctx, r.q, scanItem,
		`SELECT `+itemColumns+` FROM settlement_items WHERE settlement_id = ANY($1::uuid[]) ORDER BY seq`, ids)
	if err != nil {
		return nil, fmt.Errorf("load settlement items: %w", err)
	}
	for _, it := range items {
		i := byID[it.SettlementID]
		ss[i].Items = append(ss[i].Items, it)
	}
	return ss, nil
}

func (r queries) GetSettlement(ctx context.Context, userID, settlementID string) (*domain.Settlement, error) {
	return r.settlement(ctx, userID, settlementID, "")
}

func (r queries) settlement(ctx context.Context, userID, settlementID, lock string) (*domain.Settlement, error) {
	s, err := one(ctx, r.q, scanSettlement,
		`SELECT `+settlementColumns+` FROM settlements WHERE user_id = $1 AND id = $2`+lock, userID, settlementID)
	if err != nil {
		return nil, notFound(err, "settlement", settlementID)
	}
	ss, err := r.attachItems(ctx, []domain.Settlement{s})
	if err != nil {
		return nil, err
	}
	return &ss[0], nil
}

func (r queries) ListSettlements(ctx context.Context, userID, counterparty string, limit int) ([]domain.Settlement, error) {
	if limit <= 0 {
		limit = 100
	}
	ss, err := collect(ctx, r.q, scanSettlement,
		`SELECT `+settlementColumns+` FROM settlements
		 WHERE user_id = $1 AND ($2 = '' OR counterparty = $2)
		 ORDER BY date DESC, seq DESC
		 LIMIT $3`, userID, counterparty, limit)
	if err != nil {
		return nil, err
	}
	return r.attachItems(ctx, ss)
}

func (r queries) ListLineSettlements(ctx context.Context, userID string, lineIDs []string) ([]domain.Settlement, error) {
	if len(lineIDs) == 0 {
		return []domain.Settlement{}, nil
	}
	ss, err := collect(ctx, r.q, scanSettlement,
		`SELECT `+settlementColumns+` FROM settlements s
		 WHERE s.user_id = $1 AND EXISTS (
		   SELECT 1 FROM settlement_items i
		    WHERE i.settlement_id = s.id AND i.transaction_line_id = ANY($2::uuid[]))
		 ORDER BY s.date, s.seq`, userID, lineIDs)
	if err != nil {
		return nil, err
	}
	return r.attachItems(ctx, ss)
}
