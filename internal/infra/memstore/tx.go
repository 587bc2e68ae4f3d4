package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/boddenberg/household-ledger/internal/domain"
	"github.com/boddenberg/household-ledger/internal/port"

	"github.com/google/uuid"
)

// Tx is a unit of work over a private copy of the store data.
// Locks are implicit: the store runs one unit of work at a time.
type Tx struct {
	reader
	now func() time.Time
}

var _ port.LedgerTx = (*Tx)(nil)

func (t *Tx) stamp(id *string, createdAt *time.Time) {
	if *id == "" {
		*id = uuid.New().String()
	}
	if createdAt.IsZero() {
		*createdAt = t.now().UTC()
	}
	t.d.track(*id)
}

// --- Locks ---

func (t *Tx) LockAccount(ctx context.Context, userID, accountID string) (*domain.Account, error) {
	return t.GetAccount(ctx, userID, accountID)
}

func (t *Tx) LockTransaction(ctx context.Context, userID, transactionID string) (*domain.Transaction, error) {
	return t.GetTransaction(ctx, userID, transactionID)
}

func (t *Tx) LockLines(_ context.Context, userID string, lineIDs []string) ([]domain.TransactionLine, error) {
	out := make([]domain.TransactionLine, 0, len(lineIDs))
	for _, id := range lineIDs {
		l, ok := t.d.lines[id]
		if !ok || l.UserID != userID {
			return nil, &domain.ErrNotFound{Resource: "transaction line", ID: id}
		}
		out = append(out, t.copyLine(l))
	}
	return out, nil
}

func (t *Tx) LockUnsettledAssetLines(_ context.Context, userID, counterparty string) ([]domain.TransactionLine, error) {
	out := []domain.TransactionLine{}
	for _, l := range t.d.lines {
		if l.UserID != userID || l.Counterparty != counterparty || l.LineType != domain.LineAsset {
			continue
		}
		if l.Unsettled() <= 0 {
			continue
		}
		out = append(out, t.copyLine(l))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return t.before(out[i].ID, out[j].ID)
	})
	return out, nil
}

func (t *Tx) LockSettlementBalance(ctx context.Context, userID, counterparty string) (*domain.SettlementBalance, error) {
	return t.GetSettlementBalance(ctx, userID, counterparty)
}

// --- Accounts ---

func (t *Tx) InsertAccount(_ context.Context, a *domain.Account) error {
	t.stamp(&a.ID, &a.CreatedAt)
	t.d.accounts[a.ID] = *a
	return nil
}

func (t *Tx) UpdateAccount(_ context.Context, a *domain.Account) error {
	cur, ok := t.d.accounts[a.ID]
	if !ok {
		return &domain.ErrNotFound{Resource: "account", ID: a.ID}
	}
	cur.Name = a.Name
	cur.Owner = a.Owner
	cur.IsActive = a.IsActive
	t.d.accounts[a.ID] = cur
	return nil
}

func (t *Tx) UpdateAccountBalance(_ context.Context, accountID string, balance int64) error {
	cur, ok := t.d.accounts[accountID]
	if !ok {
		return &domain.ErrNotFound{Resource: "account", ID: accountID}
	}
	cur.CurrentBalance = balance
	t.d.accounts[accountID] = cur
	return nil
}

func (t *Tx) InsertAccountMovement(_ context.Context, m *domain.AccountMovement) error {
	if _, ok := t.d.accounts[m.AccountID]; !ok {
		return &domain.ErrNotFound{Resource: "account", ID: m.AccountID}
	}
	t.stamp(&m.ID, &m.CreatedAt)
	t.d.movements = append(t.d.movements, *m)
	return nil
}

// --- Categories ---

func (t *Tx) InsertCategory(_ context.Context, c *domain.Category) error {
	t.stamp(&c.ID, &c.CreatedAt)
	t.d.categories[c.ID] = *c
	return nil
}

// --- Transactions ---

func (t *Tx) InsertTransaction(_ context.Context, tx *domain.Transaction) error {
	t.stamp(&tx.ID, &tx.CreatedAt)
	row := *tx
	row.Lines = nil
	t.d.transactions[tx.ID] = row
	return nil
}

func (t *Tx) UpdateTransactionHeader(_ context.Context, tx *domain.Transaction) error {
	cur, ok := t.d.transactions[tx.ID]
	if !ok {
		return &domain.ErrNotFound{Resource: "transaction", ID: tx.ID}
	}
	cur.Date = tx.Date
	cur.PaymentDate = copyTime(tx.PaymentDate)
	cur.Description = tx.Description
	cur.TotalAmount = tx.TotalAmount
	cur.PaidByOther = tx.PaidByOther
	t.d.transactions[tx.ID] = cur
	return nil
}

func (t *Tx) UpdateTransactionSettlement(_ context.Context, tx *domain.Transaction) error {
	cur, ok := t.d.transactions[tx.ID]
	if !ok {
		return &domain.ErrNotFound{Resource: "transaction", ID: tx.ID}
	}
	cur.SettledAmount = tx.SettledAmount
	cur.IsCashSettled = tx.IsCashSettled
	cur.SettlementAccountID = tx.SettlementAccountID
	cur.SettlementDate = copyTime(tx.SettlementDate)
	t.d.transactions[tx.ID] = cur
	return nil
}

func (t *Tx) DeleteTransaction(_ context.Context, userID, transactionID string) error {
	tx, ok := t.d.transactions[transactionID]
	if !ok || tx.UserID != userID {
		return &domain.ErrNotFound{Resource: "transaction", ID: transactionID}
	}
	for id, l := range t.d.lines {
		if l.TransactionID == transactionID {
			t.removeLine(id)
		}
	}
	for i := range t.d.movements {
		if t.d.movements[i].TransactionID == transactionID {
			t.d.movements[i].TransactionID = ""
		}
	}
	delete(t.d.transactions, transactionID)
	return nil
}

// --- Lines ---

func (t *Tx) InsertLine(_ context.Context, l *domain.TransactionLine) error {
	if _, ok := t.d.transactions[l.TransactionID]; !ok {
		return &domain.ErrNotFound{Resource: "transaction", ID: l.TransactionID}
	}
	t.stamp(&l.ID, &l.CreatedAt)
	t.d.lines[l.ID] = t.copyLine(*l)
	return nil
}

func (t *Tx) UpdateLine(_ context.Context, l *domain.TransactionLine) error {
	cur, ok := t.d.lines[l.ID]
	if !ok {
		return &domain.ErrNotFound{Resource: "transaction line", ID: l.ID}
	}
	cur.Amount = l.Amount
	cur.LineType = l.LineType
	cur.CategoryID = l.CategoryID
	cur.Counterparty = l.Counterparty
	cur.AmortizationMonths = l.AmortizationMonths
	cur.AmortizationStart = copyTime(l.AmortizationStart)
	cur.AmortizationEnd = copyTime(l.AmortizationEnd)
	cur.SettledAmount = l.SettledAmount
	cur.IsSettled = l.IsSettled
	cur.Note = l.Note
	t.d.lines[l.ID] = cur
	return nil
}

func (t *Tx) UpdateLineSettlement(_ context.Context, lineID string, settledAmount int64, isSettled bool) error {
	cur, ok := t.d.lines[lineID]
	if !ok {
		return &domain.ErrNotFound{Resource: "transaction line", ID: lineID}
	}
	cur.SettledAmount = settledAmount
	cur.IsSettled = isSettled
	t.d.lines[lineID] = cur
	return nil
}

func (t *Tx) DeleteLine(_ context.Context, lineID string) error {
	if _, ok := t.d.lines[lineID]; !ok {
		return &domain.ErrNotFound{Resource: "transaction line", ID: lineID}
	}
	t.removeLine(lineID)
	return nil
}

// removeLine deletes a line and the settlement items pointing at it.
func (t *Tx) removeLine(lineID string) {
	kept := t.d.items[:0]
	for _, it := range t.d.items {
		if it.TransactionLineID != lineID {
			kept = append(kept, it)
		}
	}
	t.d.items = kept
	delete(t.d.lines, lineID)
}

// --- Counterparty ledger ---

func (t *Tx) UpsertSettlementBalance(_ context.Context, b *domain.SettlementBalance) error {
	b.UpdatedAt = t.now().UTC()
	t.d.balances[balanceKey{b.UserID, b.Counterparty}] = *b
	return nil
}

func (t *Tx) InsertSettlement(_ context.Context, s *domain.Settlement) error {
	t.stamp(&s.ID, &s.CreatedAt)
	row := *s
	row.Items = nil
	t.d.settlements[s.ID] = row
	return nil
}

func (t *Tx) UpdateSettlement(_ context.Context, s *domain.Settlement) error {
	cur, ok := t.d.settlements[s.ID]
	if !ok {
		return &domain.ErrNotFound{Resource: "settlement", ID: s.ID}
	}
	cur.Date = s.Date
	cur.Amount = s.Amount
	cur.Note = s.Note
	t.d.settlements[s.ID] = cur
	return nil
}

func (t *Tx) InsertSettlementItems(_ context.Context, items []domain.SettlementItem) error {
	for i := range items {
		it := &items[i]
		if _, ok := t.d.settlements[it.SettlementID]; !ok {
			return &domain.ErrNotFound{Resource: "settlement", ID: it.SettlementID}
		}
		if _, ok := t.d.lines[it.TransactionLineID]; !ok {
			return &domain.ErrNotFound{Resource: "transaction line", ID: it.TransactionLineID}
		}
		if it.ID == "" {
			it.ID = uuid.New().String()
		}
		t.d.track(it.ID)
		t.d.items = append(t.d.items, *it)
	}
	return nil
}

func (t *Tx) DeleteSettlement(_ context.Context, userID, settlementID string) error {
	s, ok := t.d.settlements[settlementID]
	if !ok || s.UserID != userID {
		return &domain.ErrNotFound{Resource: "settlement", ID: settlementID}
	}
	kept := t.d.items[:0]
	for _, it := range t.d.items {
		if it.SettlementID != settlementID {
			kept = append(kept, it)
		}
	}
	t.d.items = kept
	for i := range t.d.movements {
		if t.d.movements[i].SettlementID == settlementID {
			t.d.movements[i].SettlementID = ""
		}
	}
	delete(t.d.settlements, settlementID)
	return nil
}
