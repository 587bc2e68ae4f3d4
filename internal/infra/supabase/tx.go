package supabase

import (
	"context"

	"github.com/boddenberg/household-ledger/internal/domain"
	"github.com/boddenberg/household-ledger/internal/port"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const forUpdate = ` FOR UPDATE`

// Tx is one SQL transaction. Lock methods use SELECT ... FOR UPDATE.
type Tx struct {
	queries
	tx pgx.Tx
}

var _ port.LedgerTx = (*Tx)(nil)

func newID(id *string) {
	if *id == "" {
		*id = uuid.New().String()
	}
}

// expectOne reports a missing row when an UPDATE or DELETE touched nothing.
func (t *Tx) expectOne(ctx context.Context, resource, id, sql string, args ...any) error {
	tag, err := t.q.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &domain.ErrNotFound{Resource: resource, ID: id}
	}
	return nil
}

// ============================================================
// Locks
// ============================================================

func (t *Tx) LockAccount(ctx context.Context, userID, accountID string) (*domain.Account, error) {
	return t.account(ctx, userID, accountID, forUpdate)
}

func (t *Tx) LockTransaction(ctx context.Context, userID, transactionID string) (*domain.Transaction, error) {
	return t.transaction(ctx, userID, transactionID, forUpdate)
}

// LockLines locks in id order and returns lines in the order requested.
func (t *Tx) LockLines(ctx context.Context, userID string, lineIDs []string) ([]domain.TransactionLine, error) {
	lines, err := collect(ctx, t.q, scanLine,
		`SELECT `+lineColumns+` FROM transaction_lines
		 WHERE user_id = $1 AND id = ANY($2::uuid[])
		 ORDER BY id`+forUpdate, userID, lineIDs)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]domain.TransactionLine, len(lines))
	for _, l := range lines {
		byID[l.ID] = l
	}
	out := make([]domain.TransactionLine, 0, len(lineIDs))
	for _, id := range lineIDs {
		l, ok := byID[id]
		if !ok {
			return nil, &domain.ErrNotFound{Resource: "transaction line", ID: id}
		}
		out = append(out, l)
	}
	return out, nil
}

func (t *Tx) LockUnsettledAssetLines(ctx context.Context, userID, counterparty string) ([]domain.TransactionLine, error) {
	lines, err := collect(ctx, t.q, scanLine,
		`SELECT `+lineColumns+` FROM transaction_lines
		 WHERE user_id = $1 AND counterparty = $2 AND line_type = 'asset' AND `+unsettledLine+`
		 ORDER BY created_at, seq`+forUpdate, userID, counterparty)
	if err != nil {
		return nil, err
	}
	return lines, nil
}

// LockSettlementBalance creates the pool row when missing so the lock always
// has a row to hold.
func (t *Tx) LockSettlementBalance(ctx context.Context, userID, counterparty string) (*domain.SettlementBalance, error) {
	if _, err := t.q.Exec(ctx,
		`INSERT INTO settlement_balances (user_id, counterparty) VALUES ($1, $2)
		 ON CONFLICT (user_id, counterparty) DO NOTHING`, userID, counterparty); err != nil {
		return nil, err
	}
	return t.balance(ctx, userID, counterparty, forUpdate)
}

// ============================================================
// Accounts
// ============================================================

func (t *Tx) InsertAccount(ctx context.Context, a *domain.Account) error {
	newID(&a.ID)
	return t.q.QueryRow(ctx,
		`INSERT INTO accounts (id, user_id, name, type, owner, opening_balance, opening_date, current_balance, is_active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING created_at`,
		a.ID, a.UserID, a.Name, a.Type, a.Owner, a.OpeningBalance, a.OpeningDate, a.CurrentBalance, a.IsActive,
	).Scan(&a.CreatedAt)
}

func (t *Tx) UpdateAccount(ctx context.Context, a *domain.Account) error {
	return t.expectOne(ctx, "account", a.ID,
		`UPDATE accounts SET name = $2, owner = $3, is_active = $4 WHERE id = $1`,
		a.ID, a.Name, a.Owner, a.IsActive)
}

func (t *Tx) UpdateAccountBalance(ctx context.Context, accountID string, balance int64) error {
	return t.expectOne(ctx, "account", accountID,
		`UPDATE accounts SET current_balance = $2 WHERE id = $1`, accountID, balance)
}

func (t *Tx) InsertAccountMovement(ctx context.Context, m *domain.AccountMovement) error {
	newID(&m.ID)
	return t.q.QueryRow(ctx,
		`INSERT INTO account_movements (id, user_id, account_id, transaction_id, settlement_id, kind, amount, date)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING created_at`,
		m.ID, m.UserID, m.AccountID, nullable(m.TransactionID), nullable(m.SettlementID), m.Kind, m.Amount, m.Date,
	).Scan(&m.CreatedAt)
}

// ============================================================
// Categories
// ============================================================

func (t *Tx) InsertCategory(ctx context.Context, c *domain.Category) error {
	newID(&c.ID)
	return t.q.QueryRow(ctx,
		`INSERT INTO categories (id, user_id, name, kind) VALUES ($1, $2, $3, $4) RETURNING created_at`,
		c.ID, c.UserID, c.Name, c.Kind,
	).Scan(&c.CreatedAt)
}

// ============================================================
// Transactions
// ============================================================

func (t *Tx) InsertTransaction(ctx context.Context, tx *domain.Transaction) error {
	newID(&tx.ID)
	return t.q.QueryRow(ctx,
		`INSERT INTO transactions (id, user_id, date, payment_date, description, total_amount, is_cash_settled,
		     settled_amount, settlement_account_id, settlement_date, paid_by_other)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING created_at`,
		tx.ID, tx.UserID, tx.Date, tx.PaymentDate, tx.Description, tx.TotalAmount, tx.IsCashSettled,
		tx.SettledAmount, nullable(tx.SettlementAccountID), tx.SettlementDate, tx.PaidByOther,
	).Scan(&tx.CreatedAt)
}

func (t *Tx) UpdateTransactionHeader(ctx context.Context, tx *domain.Transaction) error {
	return t.expectOne(ctx, "transaction", tx.ID,
		`UPDATE transactions
		 SET date = $2, payment_date = $3, description = $4, total_amount = $5, paid_by_other = $6
		 WHERE id = $1`,
		tx.ID, tx.Date, tx.PaymentDate, tx.Description, tx.TotalAmount, tx.PaidByOther)
}

func (t *Tx) UpdateTransactionSettlement(ctx context.Context, tx *domain.Transaction) error {
	return t.expectOne(ctx, "transaction", tx.ID,
		`UPDATE transactions
		 SET settled_amount = $2, is_cash_settled = $3, settlement_account_id = $4, settlement_date = $5
		 WHERE id = $1`,
		tx.ID, tx.SettledAmount, tx.IsCashSettled, nullable(tx.SettlementAccountID), tx.SettlementDate)
}

// DeleteTransaction removes the header; lines and their settlement items
// cascade, movements keep their amounts with the reference cleared.
func (t *Tx) DeleteTransaction(ctx context.Context, userID, transactionID string) error {
	return t.expectOne(ctx, "transaction", transactionID,
		`DELETE FROM transactions WHERE user_id = $1 AND id = $2`, userID, transactionID)
}

// ============================================================
// Lines
// ============================================================

func (t *Tx) InsertLine(ctx context.Context, l *domain.TransactionLine) error {
	newID(&l.ID)
	return t.q.QueryRow(ctx,
		`INSERT INTO transaction_lines (id, user_id, transaction_id, amount, line_type, category_id, counterparty,
		     amortization_months, amortization_start, amortization_end, is_settled, settled_amount, note)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 RETURNING created_at`,
		l.ID, l.UserID, l.TransactionID, l.Amount, l.LineType, nullable(l.CategoryID), nullable(l.Counterparty),
		nullableInt(l.AmortizationMonths), l.AmortizationStart, l.AmortizationEnd, l.IsSettled, l.SettledAmount, l.Note,
	).Scan(&l.CreatedAt)
}

func (t *Tx) UpdateLine(ctx context.Context, l *domain.TransactionLine) error {
	return t.expectOne(ctx, "transaction line", l.ID,
		`UPDATE transaction_lines
		 SET amount = $2, line_type = $3, category_id = $4, counterparty = $5, amortization_months = $6,
		     amortization_start = $7, amortization_end = $8, is_settled = $9, settled_amount = $10, note = $11
		 WHERE id = $1`,
		l.ID, l.Amount, l.LineType, nullable(l.CategoryID), nullable(l.Counterparty), nullableInt(l.AmortizationMonths),
		l.AmortizationStart, l.AmortizationEnd, l.IsSettled, l.SettledAmount, l.Note)
}

func (t *Tx) UpdateLineSettlement(ctx context.Context, lineID string, settledAmount int64, isSettled bool) error {
	return t.expectOne(ctx, "transaction line", lineID,
		`UPDATE transaction_lines SET settled_amount = $2, is_settled = $3 WHERE id = $1`,
		lineID, settledAmount, isSettled)
}

func (t *Tx) DeleteLine(ctx context.Context, lineID string) error {
	return t.expectOne(ctx, "transaction line", lineID,
		`DELETE FROM transaction_lines WHERE id = $1`, lineID)
}

// ============================================================
// Counterparty ledger
// ============================================================

func (t *Tx) UpsertSettlementBalance(ctx context.Context, b *domain.SettlementBalance) error {
	return t.q.QueryRow(ctx,
		`INSERT INTO settlement_balances (user_id, counterparty, receive_balance, pay_balance, updated_at)
		 VALUES ($1, $2, $3, $4, now())
		 ON CONFLICT (user_id, counterparty)
		 DO UPDATE SET receive_balance = EXCLUDED.receive_balance,
		               pay_balance = EXCLUDED.pay_balance,
		               updated_at = EXCLUDED.updated_at
		 RETURNING updated_at`,
		b.UserID, b.Counterparty, b.ReceiveBalance, b.PayBalance,
	).Scan(&b.UpdatedAt)
}

func (t *Tx) InsertSettlement(ctx context.Context, s *domain.Settlement) error {
	newID(&s.ID)
	return t.q.QueryRow(ctx,
		`INSERT INTO settlements (id, user_id, date, counterparty, amount, kind, cash_account_id, note)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING created_at`,
		s.ID, s.UserID, s.Date, s.Counterparty, s.Amount, s.Kind, nullable(s.CashAccountID), s.Note,
	).Scan(&s.CreatedAt)
}

func (t *Tx) UpdateSettlement(ctx context.Context, s *domain.Settlement) error {
	return t.expectOne(ctx, "settlement", s.ID,
		`UPDATE settlements SET date = $2, amount = $3, note = $4 WHERE id = $1`,
		s.ID, s.Date, s.Amount, s.Note)
}

// InsertSettlementItems writes all items in one batch round trip.
func (t *Tx) InsertSettlementItems(ctx context.Context, items []domain.SettlementItem) error {
	if len(items) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for i := range items {
		newID(&items[i].ID)
		batch.Queue(
			`INSERT INTO settlement_items (id, settlement_id, transaction_line_id, amount) VALUES ($1, $2, $3, $4)`,
			items[i].ID, items[i].SettlementID, items[i].TransactionLineID, items[i].Amount)
	}
	br := t.tx.SendBatch(ctx, batch)
	for range items {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return err
		}
	}
	return br.Close()
}

// DeleteSettlement removes the record and its items only.
func (t *Tx) DeleteSettlement(ctx context.Context, userID, settlementID string) error {
	return t.expectOne(ctx, "settlement", settlementID,
		`DELETE FROM settlements WHERE user_id = $1 AND id = $2`, userID, settlementID)
}
