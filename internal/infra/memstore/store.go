// Package memstore is an in-memory implementation of port.LedgerStore.
// It is safe for concurrent use and serializes units of work: WithinTx runs
// against a private copy of the data that replaces the live copy only when
// the callback succeeds. Data is lost on restart; use the supabase adapter
// for persistence.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/boddenberg/household-ledger/internal/domain"
	"github.com/boddenberg/household-ledger/internal/port"
)

type balanceKey struct {
	userID       string
	counterparty string
}

type data struct {
	seq          int64
	accounts     map[string]domain.Account
	movements    []domain.AccountMovement
	categories   map[string]domain.Category
	transactions map[string]domain.Transaction // Lines kept in lines
	lines        map[string]domain.TransactionLine
	balances     map[balanceKey]domain.SettlementBalance
	settlements  map[string]domain.Settlement // Items kept in items
	items        []domain.SettlementItem
	order        map[string]int64 // insertion order of every row id
}

func newData() *data {
	return &data{
		accounts:     make(map[string]domain.Account),
		categories:   make(map[string]domain.Category),
		transactions: make(map[string]domain.Transaction),
		lines:        make(map[string]domain.TransactionLine),
		balances:     make(map[balanceKey]domain.SettlementBalance),
		settlements:  make(map[string]domain.Settlement),
		order:        make(map[string]int64),
	}
}

func (d *data) clone() *data {
	c := &data{
		seq:          d.seq,
		accounts:     make(map[string]domain.Account, len(d.accounts)),
		movements:    append([]domain.AccountMovement(nil), d.movements...),
		categories:   make(map[string]domain.Category, len(d.categories)),
		transactions: make(map[string]domain.Transaction, len(d.transactions)),
		lines:        make(map[string]domain.TransactionLine, len(d.lines)),
		balances:     make(map[balanceKey]domain.SettlementBalance, len(d.balances)),
		settlements:  make(map[string]domain.Settlement, len(d.settlements)),
		items:        append([]domain.SettlementItem(nil), d.items...),
		order:        make(map[string]int64, len(d.order)),
	}
	for k, v := range d.accounts {
		c.accounts[k] = v
	}
	for k, v := range d.categories {
		c.categories[k] = v
	}
	for k, v := range d.transactions {
		c.transactions[k] = v
	}
	for k, v := range d.lines {
		c.lines[k] = v
	}
	for k, v := range d.balances {
		c.balances[k] = v
	}
	for k, v := range d.settlements {
		c.settlements[k] = v
	}
	for k, v := range d.order {
		c.order[k] = v
	}
	return c
}

func (d *data) track(id string) {
	d.seq++
	d.order[id] = d.seq
}

// Store is the in-memory ledger store.
type Store struct {
	mu  sync.RWMutex
	d   *data
	now func() time.Time
}

var _ port.LedgerStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{d: newData(), now: time.Now}
}

// WithinTx runs fn against a snapshot and publishes it only if fn succeeds.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx port.LedgerTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.d.clone()
	if err := fn(ctx, &Tx{reader: reader{d: work}, now: s.now}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.d = work
	return nil
}

// Ping always succeeds.
func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) view() (reader, func()) {
	s.mu.RLock()
	return reader{d: s.d}, s.mu.RUnlock
}

func (s *Store) ListAccounts(ctx context.Context, userID string) ([]domain.Account, error) {
	r, done := s.view()
	defer done()
	return r.ListAccounts(ctx, userID)
}

func (s *Store) GetAccount(ctx context.Context, userID, accountID string) (*domain.Account, error) {
	r, done := s.view()
	defer done()
	return r.GetAccount(ctx, userID, accountID)
}

func (s *Store) ListAccountMovements(ctx context.Context, userID, accountID string) ([]domain.AccountMovement, error) {
	r, done := s.view()
	defer done()
	return r.ListAccountMovements(ctx, userID, accountID)
}

func (s *Store) ListTransactionMovements(ctx context.Context, userID, transactionID string) ([]domain.AccountMovement, error) {
	r, done := s.view()
	defer done()
	return r.ListTransactionMovements(ctx, userID, transactionID)
}

func (s *Store) ListCategories(ctx context.Context, userID string) ([]domain.Category, error) {
	r, done := s.view()
	defer done()
	return r.ListCategories(ctx, userID)
}

func (s *Store) GetTransaction(ctx context.Context, userID, transactionID string) (*domain.Transaction, error) {
	r, done := s.view()
	defer done()
	return r.GetTransaction(ctx, userID, transactionID)
}

func (s *Store) ListUnsettledTransactions(ctx context.Context, userID string) ([]domain.Transaction, error) {
	r, done := s.view()
	defer done()
	return r.ListUnsettledTransactions(ctx, userID)
}

func (s *Store) ListSettledTransactions(ctx context.Context, userID string, limit int) ([]domain.Transaction, error) {
	r, done := s.view()
	defer done()
	return r.ListSettledTransactions(ctx, userID, limit)
}

func (s *Store) ListTransactionsBetween(ctx context.Context, userID string, from, to time.Time) ([]domain.Transaction, error) {
	r, done := s.view()
	defer done()
	return r.ListTransactionsBetween(ctx, userID, from, to)
}

func (s *Store) ListCounterpartyLines(ctx context.Context, userID, counterparty string) ([]domain.TransactionLine, error) {
	r, done := s.view()
	defer done()
	return r.ListCounterpartyLines(ctx, userID, counterparty)
}

func (s *Store) GetSettlementBalance(ctx context.Context, userID, counterparty string) (*domain.SettlementBalance, error) {
	r, done := s.view()
	defer done()
	return r.GetSettlementBalance(ctx, userID, counterparty)
}

func (s *Store) ListSettlementBalances(ctx context.Context, userID string) ([]domain.SettlementBalance, error) {
	r, done := s.view()
	defer done()
	return r.ListSettlementBalances(ctx, userID)
}

func (s *Store) GetSettlement(ctx context.Context, userID, settlementID string) (*domain.Settlement, error) {
	r, done := s.view()
	defer done()
	return r.GetSettlement(ctx, userID, settlementID)
}

func (s *Store) ListSettlements(ctx context.Context, userID, counterparty string, limit int) ([]domain.Settlement, error) {
	r, done := s.view()
	defer done()
	return r.ListSettlements(ctx, userID, counterparty, limit)
}

func (s *Store) ListLineSettlements(ctx context.Context, userID string, lineIDs []string) ([]domain.Settlement, error) {
	r, done := s.view()
	defer done()
	return r.ListLineSettlements(ctx, userID, lineIDs)
}
