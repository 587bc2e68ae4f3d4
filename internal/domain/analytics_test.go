package domain_test

import (
	"testing"
	"time"

	"github.com/boddenberg/household-ledger/internal/domain"
)

func month(y int, m time.Month) time.Time {
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
}

func TestBuildProfitAndLoss_SpreadsAmortizedExpenses(t *testing.T) {
	txs := []domain.Transaction{
		{
			ID:   "insurance",
			Date: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
			Lines: []domain.TransactionLine{
				{LineType: domain.LineExpense, Amount: 1000, AmortizationMonths: 3, CategoryID: "ins"},
			},
		},
		{
			ID:   "mixed",
			Date: time.Date(2024, 2, 3, 0, 0, 0, 0, time.UTC),
			Lines: []domain.TransactionLine{
				{LineType: domain.LineIncome, Amount: 4000},
				{LineType: domain.LineAsset, Amount: 700, Counterparty: "Alex"},
				{LineType: domain.LineLiability, Amount: 300, Counterparty: "Sam"},
			},
		},
	}
	categories := map[string]domain.Category{"ins": {ID: "ins", Name: "Insurance"}}

	pl := domain.BuildProfitAndLoss(txs, categories, month(2024, 1), month(2024, 4))
	if len(pl.Months) != 4 {
		t.Fatalf("expected 4 months, got %d", len(pl.Months))
	}
	wantExpense := []int64{334, 333, 333, 0}
	for i, m := range pl.Months {
		if m.Expense != wantExpense[i] {
			t.Errorf("%s: expected expense %d, got %d", m.Month, wantExpense[i], m.Expense)
		}
	}
	if pl.Months[1].Income != 4000 {
		t.Errorf("expected February income 4000, got %d", pl.Months[1].Income)
	}
	if pl.TotalExpense != 1000 || pl.TotalIncome != 4000 || pl.Net != 3000 {
		t.Errorf("unexpected totals %d/%d/%d", pl.TotalIncome, pl.TotalExpense, pl.Net)
	}
	feb := pl.Months[1]
	if len(feb.Categories) != 2 || feb.Categories[0].LineType != domain.LineIncome {
		t.Errorf("expected income first and no counterparty lines, got %+v", feb.Categories)
	}
	if pl.Months[0].Categories[0].CategoryName != "Insurance" {
		t.Errorf("expected category name resolved, got %q", pl.Months[0].Categories[0].CategoryName)
	}
}

func TestBuildProfitAndLoss_ClipsToRange(t *testing.T) {
	txs := []domain.Transaction{{
		Date:  time.Date(2023, 11, 1, 0, 0, 0, 0, time.UTC),
		Lines: []domain.TransactionLine{{LineType: domain.LineExpense, Amount: 1200, AmortizationMonths: 12}},
	}}
	pl := domain.BuildProfitAndLoss(txs, nil, month(2024, 3), month(2024, 3))
	if pl.TotalExpense != 100 {
		t.Errorf("expected one month share of 100, got %d", pl.TotalExpense)
	}
}

func TestBuildCashWorklist(t *testing.T) {
	txs := []domain.Transaction{
		{ID: "rent", TotalAmount: 3000, SettledAmount: 1000, Lines: []domain.TransactionLine{{LineType: domain.LineExpense, Amount: 3000}}},
		{ID: "pay", TotalAmount: 5000, Lines: []domain.TransactionLine{{LineType: domain.LineIncome, Amount: 5000}}},
		{ID: "done", TotalAmount: 100, SettledAmount: 100, IsCashSettled: true, Lines: []domain.TransactionLine{{LineType: domain.LineExpense, Amount: 100}}},
	}
	w := domain.BuildCashWorklist(txs, nil)
	if len(w.Payables) != 1 || w.TotalPayable != 2000 {
		t.Errorf("expected payable remaining 2000, got %d across %d", w.TotalPayable, len(w.Payables))
	}
	if len(w.Receivables) != 1 || w.TotalReceivable != 5000 {
		t.Errorf("expected receivable 5000, got %d across %d", w.TotalReceivable, len(w.Receivables))
	}
}

func TestParseMonth(t *testing.T) {
	if _, err := domain.ParseMonth("from", "2024-13"); err == nil {
		t.Error("expected invalid month rejected")
	}
	got, err := domain.ParseMonth("from", "2024-02")
	if err != nil || !got.Equal(month(2024, 2)) {
		t.Errorf("expected 2024-02-01, got %s (%v)", got, err)
	}
}
