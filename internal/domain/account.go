package domain

import "time"

// ============================================================
// Accounts
// ============================================================

// AccountType identifies what kind of cash or credit holding point an account is.
type AccountType string

const (
	AccountBank   AccountType = "bank"
	AccountCard   AccountType = "card"
	AccountCash   AccountType = "cash"
	AccountPoints AccountType = "points"
)

// ParseAccountType validates a raw account type.
func ParseAccountType(s string) (AccountType, error) {
	switch t := AccountType(s); t {
	case AccountBank, AccountCard, AccountCash, AccountPoints:
		return t, nil
	}
	return "", &ErrValidation{Field: "type", Message: "unknown account type " + quote(s)}
}

// AccountOwner tells whether the account belongs to the user or is shared by the household.
type AccountOwner string

const (
	OwnerSelf   AccountOwner = "self"
	OwnerShared AccountOwner = "shared"
)

// ParseAccountOwner validates a raw owner value. Empty means self.
func ParseAccountOwner(s string) (AccountOwner, error) {
	switch o := AccountOwner(s); o {
	case "":
		return OwnerSelf, nil
	case OwnerSelf, OwnerShared:
		return o, nil
	}
	return "", &ErrValidation{Field: "owner", Message: "unknown owner " + quote(s)}
}

// Account is a cash or credit holding point.
// CurrentBalance is a running cache of OpeningBalance plus every movement
// dated on or after OpeningDate.
type Account struct {
	ID             string       `json:"id"`
	UserID         string       `json:"user_id"`
	Name           string       `json:"name"`
	Type           AccountType  `json:"type"`
	Owner          AccountOwner `json:"owner"`
	OpeningBalance int64        `json:"opening_balance"`
	OpeningDate    time.Time    `json:"opening_date"`
	CurrentBalance int64        `json:"current_balance"`
	IsActive       bool         `json:"is_active"`
	CreatedAt      time.Time    `json:"created_at"`
}

// MovementKind names the operation that produced an account movement.
type MovementKind string

const (
	MovementSettle        MovementKind = "settle"
	MovementPartialSettle MovementKind = "partial_settle"
	MovementUnsettle      MovementKind = "unsettle"
	MovementCashEvent     MovementKind = "cash_event"
	MovementCashEventEdit MovementKind = "cash_event_edit"
	MovementAdjustment    MovementKind = "adjustment"
)

// AccountMovement is one signed change applied to an account balance.
type AccountMovement struct {
	ID            string       `json:"id"`
	UserID        string       `json:"user_id"`
	AccountID     string       `json:"account_id"`
	TransactionID string       `json:"transaction_id,omitempty"`
	SettlementID  string       `json:"settlement_id,omitempty"`
	Kind          MovementKind `json:"kind"`
	Amount        int64        `json:"amount"`
	Date          time.Time    `json:"date"`
	CreatedAt     time.Time    `json:"created_at"`
}

// Counts reports whether a movement dated d affects the balance: only
// movements on or after the opening date do.
func (a Account) Counts(d time.Time) bool {
	return !DateOnly(d).Before(DateOnly(a.OpeningDate))
}

// ExpectedBalance recomputes what CurrentBalance should be from the movement journal.
// Movements dated before the opening date are ignored.
func (a Account) ExpectedBalance(movements []AccountMovement) int64 {
	balance := a.OpeningBalance
	for _, m := range movements {
		if m.AccountID != a.ID || !a.Counts(m.Date) {
			continue
		}
		balance += m.Amount
	}
	return balance
}

// CreateAccountRequest is the payload for creating an account.
type CreateAccountRequest struct {
	Name           string    `json:"name"`
	Type           string    `json:"type"`
	Owner          string    `json:"owner"`
	OpeningBalance int64     `json:"opening_balance"`
	OpeningDate    time.Time `json:"opening_date"`
}

// UpdateAccountRequest changes account metadata. Nil fields are left untouched.
type UpdateAccountRequest struct {
	Name     *string `json:"name,omitempty"`
	Owner    *string `json:"owner,omitempty"`
	IsActive *bool   `json:"is_active,omitempty"`
}

// OverrideBalanceRequest forces the cached balance to a value.
type OverrideBalanceRequest struct {
	Balance int64     `json:"balance"`
	Date    time.Time `json:"date"`
}

// AccountReconciliation compares the cached balance with the journal.
type AccountReconciliation struct {
	AccountID       string `json:"account_id"`
	CurrentBalance  int64  `json:"current_balance"`
	ExpectedBalance int64  `json:"expected_balance"`
	Drift           int64  `json:"drift"`
	Movements       int    `json:"movements"`
}
