package domain

import (
	"fmt"
	"strings"
	"time"
)

// ============================================================
// Transactions & lines
// ============================================================

// LineType is the economic role of a transaction line.
type LineType string

const (
	LineIncome    LineType = "income"
	LineExpense   LineType = "expense"
	LineAsset     LineType = "asset"     // advance: the counterparty owes the user
	LineLiability LineType = "liability" // borrowed: the user owes the counterparty
)

// ParseLineType validates a raw line type.
func ParseLineType(s string) (LineType, error) {
	switch t := LineType(s); t {
	case LineIncome, LineExpense, LineAsset, LineLiability:
		return t, nil
	}
	return "", &ErrValidation{Field: "line_type", Message: "unknown line type " + quote(s)}
}

// Flow is the direction money moves relative to the user.
type Flow int

const (
	FlowIn Flow = iota + 1
	FlowOut
)

// Flow reports whether the line brings money toward the user or away from them.
// Line types are validated when they enter the system, so an unknown value is a bug.
func (t LineType) Flow() Flow {
	switch t {
	case LineIncome, LineLiability:
		return FlowIn
	case LineExpense, LineAsset:
		return FlowOut
	}
	panic("domain: unknown line type " + string(t))
}

// IsProfitAndLoss reports whether lines of this type feed category P&L totals.
func (t LineType) IsProfitAndLoss() bool {
	switch t {
	case LineIncome, LineExpense:
		return true
	case LineAsset, LineLiability:
		return false
	}
	panic("domain: unknown line type " + string(t))
}

// IsCounterparty reports whether lines of this type feed the counterparty ledger.
func (t LineType) IsCounterparty() bool {
	return !t.IsProfitAndLoss()
}

// Transaction is one economic event made of one or more lines.
type Transaction struct {
	ID                  string            `json:"id"`
	UserID              string            `json:"user_id"`
	Date                time.Time         `json:"date"`
	PaymentDate         *time.Time        `json:"payment_date,omitempty"`
	Description         string            `json:"description"`
	TotalAmount         int64             `json:"total_amount"`
	IsCashSettled       bool              `json:"is_cash_settled"`
	SettledAmount       int64             `json:"settled_amount"`
	SettlementAccountID string            `json:"settlement_account_id,omitempty"`
	SettlementDate      *time.Time        `json:"settlement_date,omitempty"`
	PaidByOther         bool              `json:"paid_by_other"`
	CreatedAt           time.Time         `json:"created_at"`
	Lines               []TransactionLine `json:"lines"`
}

// Remaining is the amount still to be cash-settled.
func (t Transaction) Remaining() int64 {
	if r := t.TotalAmount - t.SettledAmount; r > 0 {
		return r
	}
	return 0
}

// ApplyCashSettlement sets the settled amount, clamped to the total, and keeps
// the cash-settled flag consistent with it.
func (t *Transaction) ApplyCashSettlement(settled int64) {
	switch {
	case settled < 0:
		settled = 0
	case settled > t.TotalAmount:
		settled = t.TotalAmount
	}
	t.SettledAmount = settled
	t.IsCashSettled = settled >= t.TotalAmount
}

// TransactionLine is one component of a transaction's economic effect.
type TransactionLine struct {
	ID                 string     `json:"id"`
	UserID             string     `json:"user_id"`
	TransactionID      string     `json:"transaction_id"`
	Amount             int64      `json:"amount"`
	LineType           LineType   `json:"line_type"`
	CategoryID         string     `json:"category_id,omitempty"`
	Counterparty       string     `json:"counterparty,omitempty"`
	AmortizationMonths int        `json:"amortization_months,omitempty"`
	AmortizationStart  *time.Time `json:"amortization_start,omitempty"`
	AmortizationEnd    *time.Time `json:"amortization_end,omitempty"`
	IsSettled          bool       `json:"is_settled"`
	SettledAmount      int64      `json:"settled_amount"`
	Note               string     `json:"note,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

// IsLegacySettled reports the flag-only marking used by old rows: settled
// without any recorded settled amount.
func (l TransactionLine) IsLegacySettled() bool {
	return l.IsSettled && l.SettledAmount == 0
}

// Unsettled is the amount of the line still open against its counterparty.
// Legacy flag-only rows count as fully settled.
func (l TransactionLine) Unsettled() int64 {
	if l.IsLegacySettled() {
		return 0
	}
	if r := l.Amount - l.SettledAmount; r > 0 {
		return r
	}
	return 0
}

// ApplySettlement adds amount to the settled total and keeps IsSettled consistent.
func (l *TransactionLine) ApplySettlement(amount int64) {
	settled := l.SettledAmount + amount
	if l.IsLegacySettled() {
		settled = l.Amount
	}
	if settled > l.Amount {
		settled = l.Amount
	}
	l.SettledAmount = settled
	l.IsSettled = settled >= l.Amount
}

// HasSettlementProgress reports whether any part of the line was settled.
func (l TransactionLine) HasSettlementProgress() bool {
	return l.SettledAmount > 0 || l.IsSettled
}

// TotalAmount sums the line amounts of a transaction.
func TotalAmount(lines []TransactionLine) int64 {
	var total int64
	for _, l := range lines {
		total += l.Amount
	}
	return total
}

// ============================================================
// Requests
// ============================================================

// LineInput describes a line in a create or update request.
// ID is only set when updating an existing line.
type LineInput struct {
	ID                 string     `json:"id,omitempty"`
	Amount             int64      `json:"amount"`
	LineType           string     `json:"line_type"`
	CategoryID         string     `json:"category_id,omitempty"`
	Counterparty       string     `json:"counterparty,omitempty"`
	AmortizationMonths int        `json:"amortization_months,omitempty"`
	AmortizationStart  *time.Time `json:"amortization_start,omitempty"`
	Note               string     `json:"note,omitempty"`
}

// TransactionRequest is the payload for creating or editing a transaction.
type TransactionRequest struct {
	Date        time.Time   `json:"date"`
	PaymentDate *time.Time  `json:"payment_date,omitempty"`
	Description string      `json:"description"`
	PaidByOther bool        `json:"paid_by_other"`
	Lines       []LineInput `json:"lines"`
}

// Validate checks the request header and every line, returning the parsed
// line types in request order.
func (r TransactionRequest) Validate() ([]LineType, error) {
	if r.Date.IsZero() {
		return nil, &ErrValidation{Field: "date", Message: "required"}
	}
	if len(r.Lines) == 0 {
		return nil, &ErrValidation{Field: "lines", Message: "at least one line is required"}
	}
	types := make([]LineType, 0, len(r.Lines))
	for i, in := range r.Lines {
		lt, err := ParseLineType(in.LineType)
		if err != nil {
			return nil, &ErrValidation{Field: fmt.Sprintf("lines[%d].line_type", i), Message: "unknown line type " + quote(in.LineType)}
		}
		if in.Amount <= 0 {
			return nil, &ErrValidation{Field: fmt.Sprintf("lines[%d].amount", i), Message: "must be positive"}
		}
		if lt.IsCounterparty() && NormalizeCounterparty(in.Counterparty) == "" {
			return nil, &ErrValidation{Field: fmt.Sprintf("lines[%d].counterparty", i), Message: "required for " + string(lt) + " lines"}
		}
		if in.AmortizationMonths < 0 {
			return nil, &ErrValidation{Field: fmt.Sprintf("lines[%d].amortization_months", i), Message: "must not be negative"}
		}
		if in.AmortizationMonths > 0 && lt != LineExpense {
			return nil, &ErrValidation{Field: fmt.Sprintf("lines[%d].amortization_months", i), Message: "only expense lines can be amortized"}
		}
		types = append(types, lt)
	}
	return types, nil
}

// AmortizationWindow returns the first and last month an amortized expense is
// spread over. The window starts at start, or at the accrual month when start is nil.
func AmortizationWindow(accrual time.Time, start *time.Time, months int) (*time.Time, *time.Time) {
	if months <= 0 {
		return nil, nil
	}
	first := MonthStart(accrual)
	if start != nil && !start.IsZero() {
		first = MonthStart(*start)
	}
	last := first.AddDate(0, months-1, 0)
	return &first, &last
}

// NormalizeCounterparty trims a counterparty name; empty means none.
func NormalizeCounterparty(name string) string {
	return strings.TrimSpace(name)
}
