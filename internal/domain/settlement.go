package domain

import (
	"sort"
	"time"
)

// ============================================================
// Counterparty settlement
// ============================================================

// Pool identifies one of the two liquidity pools kept per counterparty.
type Pool string

const (
	PoolReceive Pool = "receive" // money received from the counterparty, applied to asset lines
	PoolPay     Pool = "pay"     // money paid to the counterparty, applied to liability lines
)

func (p Pool) label() string {
	switch p {
	case PoolReceive:
		return "receivable"
	case PoolPay:
		return "payable"
	}
	return string(p)
}

// PoolForLineType returns the pool that settles lines of the given type.
func PoolForLineType(t LineType) (Pool, error) {
	switch t {
	case LineAsset:
		return PoolReceive, nil
	case LineLiability:
		return PoolPay, nil
	case LineIncome, LineExpense:
		return "", &ErrValidation{Field: "line_type", Message: "only asset or liability lines can be settled against a counterparty"}
	}
	panic("domain: unknown line type " + string(t))
}

// CashEventType is the direction of a recorded deposit or payment.
type CashEventType string

const (
	CashReceive CashEventType = "receive"
	CashPay     CashEventType = "pay"
)

// ParseCashEventType validates a raw cash event type.
func ParseCashEventType(s string) (CashEventType, error) {
	switch t := CashEventType(s); t {
	case CashReceive, CashPay:
		return t, nil
	}
	return "", &ErrValidation{Field: "type", Message: "unknown cash event type " + quote(s)}
}

// Pool returns the pool a cash event feeds.
func (t CashEventType) Pool() Pool {
	switch t {
	case CashReceive:
		return PoolReceive
	case CashPay:
		return PoolPay
	}
	panic("domain: unknown cash event type " + string(t))
}

// Sign is +1 for money received and -1 for money paid.
func (t CashEventType) Sign() int64 {
	switch t {
	case CashReceive:
		return 1
	case CashPay:
		return -1
	}
	panic("domain: unknown cash event type " + string(t))
}

// SettlementBalance holds the undedicated liquidity per counterparty.
type SettlementBalance struct {
	UserID         string    `json:"user_id"`
	Counterparty   string    `json:"counterparty"`
	ReceiveBalance int64     `json:"receive_balance"`
	PayBalance     int64     `json:"pay_balance"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Available returns the balance of the given pool.
func (b SettlementBalance) Available(p Pool) int64 {
	switch p {
	case PoolReceive:
		return b.ReceiveBalance
	case PoolPay:
		return b.PayBalance
	}
	panic("domain: unknown pool " + string(p))
}

// Adjust adds delta to the given pool. It refuses to drive the pool negative.
func (b *SettlementBalance) Adjust(p Pool, delta int64) error {
	have := b.Available(p)
	if have+delta < 0 {
		return &ErrInsufficientPool{Pool: p, Need: -delta, Have: have}
	}
	switch p {
	case PoolReceive:
		b.ReceiveBalance += delta
	case PoolPay:
		b.PayBalance += delta
	}
	return nil
}

// SettlementKind tells what produced a settlement history record.
type SettlementKind string

const (
	SettlementCashEvent      SettlementKind = "cash_event"
	SettlementLineSettlement SettlementKind = "line_settlement"
	SettlementAutoOffset     SettlementKind = "auto_offset"
)

// Settlement is an append-only history record of counterparty money changing hands
// (Amount != 0) or of lines being netted against the pool or each other (Amount == 0).
type Settlement struct {
	ID            string           `json:"id"`
	UserID        string           `json:"user_id"`
	Date          time.Time        `json:"date"`
	Counterparty  string           `json:"counterparty"`
	Amount        int64            `json:"amount"`
	Kind          SettlementKind   `json:"kind"`
	CashAccountID string           `json:"cash_account_id,omitempty"`
	Note          string           `json:"note,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	Items         []SettlementItem `json:"items,omitempty"`
}

// SettlementItem links a settlement to the part of a line it settled.
type SettlementItem struct {
	ID                string `json:"id"`
	SettlementID      string `json:"settlement_id"`
	TransactionLineID string `json:"transaction_line_id"`
	Amount            int64  `json:"amount"`
}

// CashEventRequest records a deposit received from or a payment made to a counterparty.
type CashEventRequest struct {
	Counterparty  string    `json:"counterparty"`
	Type          string    `json:"type"`
	Amount        int64     `json:"amount"`
	Date          time.Time `json:"date"`
	CashAccountID string    `json:"cash_account_id,omitempty"`
	Note          string    `json:"note,omitempty"`
}

// EditCashEventRequest corrects a recorded cash event. Amount is unsigned;
// the direction of the original record is kept.
type EditCashEventRequest struct {
	Amount *int64     `json:"amount,omitempty"`
	Date   *time.Time `json:"date,omitempty"`
	Note   *string    `json:"note,omitempty"`
}

// SettleLinesRequest applies a counterparty pool to selected lines.
type SettleLinesRequest struct {
	Counterparty string    `json:"counterparty"`
	LineType     string    `json:"line_type"`
	LineIDs      []string  `json:"line_ids"`
	Date         time.Time `json:"date"`
	Note         string    `json:"note,omitempty"`
}

// CounterpartySummary is one row of the counterparty worklist.
type CounterpartySummary struct {
	Counterparty   string            `json:"counterparty"`
	TheyOwe        int64             `json:"they_owe"`
	UserOwes       int64             `json:"user_owes"`
	Net            int64             `json:"net"`
	ReceiveBalance int64             `json:"receive_balance"`
	PayBalance     int64             `json:"pay_balance"`
	Lines          []TransactionLine `json:"lines"`
}

// SummarizeCounterparties groups open counterparty lines by name. Net is only
// used to order the worklist; it is never settled as such.
func SummarizeCounterparties(lines []TransactionLine, balances []SettlementBalance) []CounterpartySummary {
	byName := make(map[string]*CounterpartySummary)
	get := func(name string) *CounterpartySummary {
		s, ok := byName[name]
		if !ok {
			s = &CounterpartySummary{Counterparty: name}
			byName[name] = s
		}
		return s
	}

	for _, l := range lines {
		if l.Counterparty == "" || !l.LineType.IsCounterparty() {
			continue
		}
		open := l.Unsettled()
		if open <= 0 {
			continue
		}
		s := get(l.Counterparty)
		switch l.LineType {
		case LineAsset:
			s.TheyOwe += open
		case LineLiability:
			s.UserOwes += open
		}
		s.Lines = append(s.Lines, l)
	}
	for _, b := range balances {
		if b.ReceiveBalance == 0 && b.PayBalance == 0 {
			if _, ok := byName[b.Counterparty]; !ok {
				continue
			}
		}
		s := get(b.Counterparty)
		s.ReceiveBalance = b.ReceiveBalance
		s.PayBalance = b.PayBalance
	}

	out := make([]CounterpartySummary, 0, len(byName))
	for _, s := range byName {
		s.Net = s.TheyOwe - s.UserOwes
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		ai, aj := abs(out[i].Net), abs(out[j].Net)
		if ai != aj {
			return ai > aj
		}
		return out[i].Counterparty < out[j].Counterparty
	})
	return out
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
