package domain

import "time"

// Bucket groups transactions for settlement worklists.
type Bucket string

const (
	Payable    Bucket = "payable"    // net money the user owes
	Receivable Bucket = "receivable" // net money owed to the user
)

// ParseBucket validates a raw bucket value.
func ParseBucket(s string) (Bucket, error) {
	switch b := Bucket(s); b {
	case Payable, Receivable:
		return b, nil
	}
	return "", &ErrValidation{Field: "direction", Message: "unknown direction " + quote(s)}
}

// Sign is the sign applied to a cash account when settling a transaction of this bucket.
func (b Bucket) Sign() int64 {
	switch b {
	case Payable:
		return -1
	case Receivable:
		return 1
	}
	panic("domain: unknown bucket " + string(b))
}

// Classify puts a line set in a bucket by comparing inflow with outflow.
// Ties are payable.
func Classify(lines []TransactionLine) Bucket {
	in, out := flows(lines)
	if in > out {
		return Receivable
	}
	return Payable
}

func flows(lines []TransactionLine) (in, out int64) {
	for _, l := range lines {
		switch l.LineType.Flow() {
		case FlowIn:
			in += l.Amount
		case FlowOut:
			out += l.Amount
		}
	}
	return in, out
}

// AnomalyKind names a tolerated data-integrity problem.
type AnomalyKind string

const (
	AnomalyEmptyTransaction AnomalyKind = "empty_transaction"
	AnomalyUnknownCategory  AnomalyKind = "unknown_category"
	AnomalyLegacySettled    AnomalyKind = "legacy_settled_line"
)

// Anomaly is a data-integrity warning surfaced to the caller instead of an error.
type Anomaly struct {
	Kind          AnomalyKind `json:"kind"`
	TransactionID string      `json:"transaction_id,omitempty"`
	LineID        string      `json:"line_id,omitempty"`
	Detail        string      `json:"detail,omitempty"`
}

// Classification is the outcome of classifying one transaction.
type Classification struct {
	Bucket   Bucket    `json:"bucket"`
	Inflow   int64     `json:"inflow"`
	Outflow  int64     `json:"outflow"`
	Warnings []Anomaly `json:"warnings,omitempty"`
}

// ClassifyTransaction classifies a transaction and collects integrity warnings.
// A nil category index skips the category check. It never fails.
func ClassifyTransaction(tx Transaction, categories map[string]Category) Classification {
	in, out := flows(tx.Lines)
	c := Classification{Bucket: Payable, Inflow: in, Outflow: out}
	if in > out {
		c.Bucket = Receivable
	}

	if len(tx.Lines) == 0 {
		c.Warnings = append(c.Warnings, Anomaly{Kind: AnomalyEmptyTransaction, TransactionID: tx.ID})
	}
	for _, l := range tx.Lines {
		if categories != nil && l.CategoryID != "" {
			if _, ok := categories[l.CategoryID]; !ok {
				c.Warnings = append(c.Warnings, Anomaly{
					Kind:          AnomalyUnknownCategory,
					TransactionID: tx.ID,
					LineID:        l.ID,
					Detail:        l.CategoryID,
				})
			}
		}
		if l.LineType.IsCounterparty() && l.IsLegacySettled() {
			c.Warnings = append(c.Warnings, Anomaly{Kind: AnomalyLegacySettled, TransactionID: tx.ID, LineID: l.ID})
		}
	}
	return c
}

// CashSettledAtSave decides whether a transaction is cash-settled when saved:
// paid by a third party, or paid on or before both the accrual date and today.
func CashSettledAtSave(paidByOther bool, accrual time.Time, payment *time.Time, today time.Time) bool {
	if paidByOther {
		return true
	}
	if payment == nil || payment.IsZero() {
		return false
	}
	p := DateOnly(*payment)
	return !p.After(DateOnly(accrual)) && !p.After(DateOnly(today))
}

// DateOnly drops the clock part of t, keeping its calendar date.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
