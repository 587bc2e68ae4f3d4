package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/boddenberg/household-ledger/internal/domain"
)

// reader implements port.LedgerReader over one version of the data.
// Every value handed out is a copy.
type reader struct {
	d *data
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func (r reader) before(a, b string) bool {
	return r.d.order[a] < r.d.order[b]
}

func (r reader) ListAccounts(_ context.Context, userID string) ([]domain.Account, error) {
	out := []domain.Account{}
	for _, a := range r.d.accounts {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return r.before(out[i].ID, out[j].ID) })
	return out, nil
}

func (r reader) GetAccount(_ context.Context, userID, accountID string) (*domain.Account, error) {
	a, ok := r.d.accounts[accountID]
	if !ok || a.UserID != userID {
		return nil, &domain.ErrNotFound{Resource: "account", ID: accountID}
	}
	return &a, nil
}

func (r reader) ListAccountMovements(_ context.Context, userID, accountID string) ([]domain.AccountMovement, error) {
	out := []domain.AccountMovement{}
	for _, m := range r.d.movements {
		if m.UserID == userID && m.AccountID == accountID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r reader) ListTransactionMovements(_ context.Context, userID, transactionID string) ([]domain.AccountMovement, error) {
	out := []domain.AccountMovement{}
	for _, m := range r.d.movements {
		if m.UserID == userID && m.TransactionID == transactionID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r reader) ListCategories(_ context.Context, userID string) ([]domain.Category, error) {
	out := []domain.Category{}
	for _, c := range r.d.categories {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return r.before(out[i].ID, out[j].ID) })
	return out, nil
}

func (r reader) withLines(tx domain.Transaction) domain.Transaction {
	tx.PaymentDate = copyTime(tx.PaymentDate)
	tx.SettlementDate = copyTime(tx.SettlementDate)
	tx.Lines = []domain.TransactionLine{}
	for _, l := range r.d.lines {
		if l.TransactionID == tx.ID {
			tx.Lines = append(tx.Lines, r.copyLine(l))
		}
	}
	sort.Slice(tx.Lines, func(i, j int) bool { return r.before(tx.Lines[i].ID, tx.Lines[j].ID) })
	return tx
}

func (r reader) copyLine(l domain.TransactionLine) domain.TransactionLine {
	l.AmortizationStart = copyTime(l.AmortizationStart)
	l.AmortizationEnd = copyTime(l.AmortizationEnd)
	return l
}

func (r reader) GetTransaction(_ context.Context, userID, transactionID string) (*domain.Transaction, error) {
	tx, ok := r.d.transactions[transactionID]
	if !ok || tx.UserID != userID {
		return nil, &domain.ErrNotFound{Resource: "transaction", ID: transactionID}
	}
	full := r.withLines(tx)
	return &full, nil
}

func (r reader) filterTransactions(userID string, keep func(domain.Transaction) bool) []domain.Transaction {
	out := []domain.Transaction{}
	for _, tx := range r.d.transactions {
		if tx.UserID == userID && keep(tx) {
			out = append(out, r.withLines(tx))
		}
	}
	return out
}

func (r reader) ListUnsettledTransactions(_ context.Context, userID string) ([]domain.Transaction, error) {
	out := r.filterTransactions(userID, func(tx domain.Transaction) bool { return !tx.IsCashSettled })
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return r.before(out[i].ID, out[j].ID)
	})
	return out, nil
}

func (r reader) ListSettledTransactions(_ context.Context, userID string, limit int) ([]domain.Transaction, error) {
	out := r.filterTransactions(userID, func(tx domain.Transaction) bool { return tx.IsCashSettled })
	settledOn := func(tx domain.Transaction) time.Time {
		if tx.SettlementDate != nil {
			return *tx.SettlementDate
		}
		return tx.Date
	}
	sort.Slice(out, func(i, j int) bool {
		di, dj := settledOn(out[i]), settledOn(out[j])
		if !di.Equal(dj) {
			return di.After(dj)
		}
		return r.before(out[j].ID, out[i].ID)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r reader) ListTransactionsBetween(_ context.Context, userID string, from, to time.Time) ([]domain.Transaction, error) {
	out := r.filterTransactions(userID, func(tx domain.Transaction) bool {
		return !tx.Date.Before(from) && !tx.Date.After(to)
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return r.before(out[i].ID, out[j].ID)
	})
	return out, nil
}

func (r reader) ListCounterpartyLines(_ context.Context, userID, counterparty string) ([]domain.TransactionLine, error) {
	out := []domain.TransactionLine{}
	for _, l := range r.d.lines {
		if l.UserID != userID || l.Counterparty == "" || l.IsSettled {
			continue
		}
		if counterparty != "" && l.Counterparty != counterparty {
			continue
		}
		out = append(out, r.copyLine(l))
	}
	sort.Slice(out, func(i, j int) bool { return r.before(out[i].ID, out[j].ID) })
	return out, nil
}

func (r reader) GetSettlementBalance(_ context.Context, userID, counterparty string) (*domain.SettlementBalance, error) {
	b, ok := r.d.balances[balanceKey{userID, counterparty}]
	if !ok {
		b = domain.SettlementBalance{UserID: userID, Counterparty: counterparty}
	}
	return &b, nil
}

func (r reader) ListSettlementBalances(_ context.Context, userID string) ([]domain.SettlementBalance, error) {
	out := []domain.SettlementBalance{}
	for k, b := range r.d.balances {
		if k.userID == userID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Counterparty < out[j].Counterparty })
	return out, nil
}

func (r reader) withItems(s domain.Settlement) domain.Settlement {
	s.Items = []domain.SettlementItem{}
	for _, it := range r.d.items {
		if it.SettlementID == s.ID {
			s.Items = append(s.Items, it)
		}
	}
	return s
}

func (r reader) GetSettlement(_ context.Context, userID, settlementID string) (*domain.Settlement, error) {
	s, ok := r.d.settlements[settlementID]
	if !ok || s.UserID != userID {
		return nil, &domain.ErrNotFound{Resource: "settlement", ID: settlementID}
	}
	full := r.withItems(s)
	return &full, nil
}

func (r reader) ListSettlements(_ context.Context, userID, counterparty string, limit int) ([]domain.Settlement, error) {
	out := []domain.Settlement{}
	for _, s := range r.d.settlements {
		if s.UserID != userID {
			continue
		}
		if counterparty != "" && s.Counterparty != counterparty {
			continue
		}
		out = append(out, r.withItems(s))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return r.before(out[j].ID, out[i].ID)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r reader) ListLineSettlements(_ context.Context, userID string, lineIDs []string) ([]domain.Settlement, error) {
	want := make(map[string]bool, len(lineIDs))
	for _, id := range lineIDs {
		want[id] = true
	}
	seen := make(map[string]bool)
	out := []domain.Settlement{}
	for _, it := range r.d.items {
		if !want[it.TransactionLineID] || seen[it.SettlementID] {
			continue
		}
		s, ok := r.d.settlements[it.SettlementID]
		if !ok || s.UserID != userID {
			continue
		}
		seen[s.ID] = true
		out = append(out, r.withItems(s))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return r.before(out[i].ID, out[j].ID)
	})
	return out, nil
}
