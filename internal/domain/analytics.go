package domain

import (
	"sort"
	"time"
)

// ============================================================
// Cash settlement worklist
// ============================================================

// CashWorklistItem is an unsettled transaction with its bucket and remaining amount.
type CashWorklistItem struct {
	Transaction
	Bucket    Bucket `json:"bucket"`
	Remaining int64  `json:"remaining"`
}

// CashWorklist groups the open transactions a user still has to pay or collect.
type CashWorklist struct {
	Payables        []CashWorklistItem `json:"payables"`
	Receivables     []CashWorklistItem `json:"receivables"`
	TotalPayable    int64              `json:"total_payable"`
	TotalReceivable int64              `json:"total_receivable"`
	Warnings        []Anomaly          `json:"warnings,omitempty"`
}

// BuildCashWorklist classifies unsettled transactions. It is a pure function of its input.
func BuildCashWorklist(txs []Transaction, categories map[string]Category) CashWorklist {
	w := CashWorklist{Payables: []CashWorklistItem{}, Receivables: []CashWorklistItem{}}
	for _, tx := range txs {
		c := ClassifyTransaction(tx, categories)
		w.Warnings = append(w.Warnings, c.Warnings...)
		if tx.IsCashSettled {
			continue
		}
		item := CashWorklistItem{Transaction: tx, Bucket: c.Bucket, Remaining: tx.Remaining()}
		switch c.Bucket {
		case Payable:
			w.Payables = append(w.Payables, item)
			w.TotalPayable += item.Remaining
		case Receivable:
			w.Receivables = append(w.Receivables, item)
			w.TotalReceivable += item.Remaining
		}
	}
	return w
}

// ============================================================
// Profit & loss
// ============================================================

const monthLayout = "2006-01"

// ParseMonth parses a YYYY-MM month into the first day of that month.
func ParseMonth(field, s string) (time.Time, error) {
	t, err := time.Parse(monthLayout, s)
	if err != nil {
		return time.Time{}, &ErrValidation{Field: field, Message: "expected YYYY-MM"}
	}
	return t, nil
}

// MonthStart returns the first day of t's month.
func MonthStart(t time.Time) time.Time {
	y, m, _ := t.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
}

// CategoryTotal is the P&L amount of one category in one month.
type CategoryTotal struct {
	CategoryID   string   `json:"category_id"`
	CategoryName string   `json:"category_name"`
	LineType     LineType `json:"line_type"`
	Amount       int64    `json:"amount"`
}

// MonthlyPL is the profit and loss of one month.
type MonthlyPL struct {
	Month      string          `json:"month"`
	Income     int64           `json:"income"`
	Expense    int64           `json:"expense"`
	Net        int64           `json:"net"`
	Categories []CategoryTotal `json:"categories"`
}

// ProfitAndLoss aggregates income and expense lines over a range of months.
type ProfitAndLoss struct {
	From         string      `json:"from"`
	To           string      `json:"to"`
	Months       []MonthlyPL `json:"months"`
	TotalIncome  int64       `json:"total_income"`
	TotalExpense int64       `json:"total_expense"`
	Net          int64       `json:"net"`
}

// BuildProfitAndLoss sums income and expense lines per month and category between
// from and to (inclusive months). Amortized expenses are spread evenly over their
// window with the remainder on the first month. Asset and liability lines are skipped.
func BuildProfitAndLoss(txs []Transaction, categories map[string]Category, from, to time.Time) ProfitAndLoss {
	from, to = MonthStart(from), MonthStart(to)
	type key struct {
		month    string
		category string
		lineType LineType
	}
	sums := make(map[key]int64)

	add := func(month time.Time, l TransactionLine, amount int64) {
		if month.Before(from) || month.After(to) {
			return
		}
		sums[key{month.Format(monthLayout), l.CategoryID, l.LineType}] += amount
	}

	for _, tx := range txs {
		for _, l := range tx.Lines {
			if !l.LineType.IsProfitAndLoss() {
				continue
			}
			n := l.AmortizationMonths
			if l.LineType != LineExpense || n <= 1 {
				add(MonthStart(tx.Date), l, l.Amount)
				continue
			}
			start := tx.Date
			if l.AmortizationStart != nil {
				start = *l.AmortizationStart
			}
			start = MonthStart(start)
			per, rem := l.Amount/int64(n), l.Amount%int64(n)
			for i := 0; i < n; i++ {
				amount := per
				if i == 0 {
					amount += rem
				}
				add(start.AddDate(0, i, 0), l, amount)
			}
		}
	}

	pl := ProfitAndLoss{From: from.Format(monthLayout), To: to.Format(monthLayout), Months: []MonthlyPL{}}
	byMonth := make(map[string]*MonthlyPL)
	for m := from; !m.After(to); m = m.AddDate(0, 1, 0) {
		label := m.Format(monthLayout)
		pl.Months = append(pl.Months, MonthlyPL{Month: label, Categories: []CategoryTotal{}})
		byMonth[label] = &pl.Months[len(pl.Months)-1]
	}

	for k, amount := range sums {
		mp := byMonth[k.month]
		name := "uncategorized"
		if k.category != "" {
			name = categories[k.category].Name
		}
		mp.Categories = append(mp.Categories, CategoryTotal{
			CategoryID:   k.category,
			CategoryName: name,
			LineType:     k.lineType,
			Amount:       amount,
		})
		switch k.lineType {
		case LineIncome:
			mp.Income += amount
		case LineExpense:
			mp.Expense += amount
		}
	}

	for i := range pl.Months {
		mp := &pl.Months[i]
		mp.Net = mp.Income - mp.Expense
		sort.Slice(mp.Categories, func(a, b int) bool {
			ca, cb := mp.Categories[a], mp.Categories[b]
			if ca.LineType != cb.LineType {
				return ca.LineType == LineIncome
			}
			if ca.Amount != cb.Amount {
				return ca.Amount > cb.Amount
			}
			return ca.CategoryID < cb.CategoryID
		})
		pl.TotalIncome += mp.Income
		pl.TotalExpense += mp.Expense
	}
	pl.Net = pl.TotalIncome - pl.TotalExpense
	return pl
}
