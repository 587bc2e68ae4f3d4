package domain

import "time"

// SettleRequest fully settles a batch of transactions against one cash account.
type SettleRequest struct {
	TransactionIDs []string  `json:"transaction_ids"`
	CashAccountID  string    `json:"cash_account_id,omitempty"`
	Date           time.Time `json:"date"`
	Direction      string    `json:"direction"`
}

// PartialSettleRequest settles part of one transaction.
type PartialSettleRequest struct {
	Amount        int64     `json:"amount"`
	CashAccountID string    `json:"cash_account_id,omitempty"`
	Date          time.Time `json:"date"`
}

// UnsettleRequest reverts the cash settlement of one or more transactions.
type UnsettleRequest struct {
	TransactionIDs []string `json:"transaction_ids"`
}

// SettleResult reports what a cash settlement operation moved.
type SettleResult struct {
	Transactions   []Transaction `json:"transactions"`
	TotalSettled   int64         `json:"total_settled"`
	CashAccountID  string        `json:"cash_account_id,omitempty"`
	AccountBalance *int64        `json:"account_balance,omitempty"`
}

// UniqueIDs drops empty and repeated ids, keeping first-seen order.
func UniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
