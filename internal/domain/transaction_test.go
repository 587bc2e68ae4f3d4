package domain_test

import (
	"testing"
	"time"

	"github.com/boddenberg/household-ledger/internal/domain"
)

func TestTransactionLine_Settlement(t *testing.T) {
	tests := []struct {
		name        string
		line        domain.TransactionLine
		apply       int64
		wantSettled int64
		wantFlag    bool
		wantOpen    int64
	}{
		{"partial", domain.TransactionLine{Amount: 1000}, 400, 400, false, 600},
		{"exact", domain.TransactionLine{Amount: 1000, SettledAmount: 400}, 600, 1000, true, 0},
		{"clamped", domain.TransactionLine{Amount: 1000, SettledAmount: 900}, 500, 1000, true, 0},
		{"legacy stays full", domain.TransactionLine{Amount: 1000, IsSettled: true}, 0, 1000, true, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := tt.line
			l.ApplySettlement(tt.apply)
			if l.SettledAmount != tt.wantSettled || l.IsSettled != tt.wantFlag {
				t.Errorf("expected %d/%v, got %d/%v", tt.wantSettled, tt.wantFlag, l.SettledAmount, l.IsSettled)
			}
			if got := l.Unsettled(); got != tt.wantOpen {
				t.Errorf("expected %d open, got %d", tt.wantOpen, got)
			}
		})
	}

	legacy := domain.TransactionLine{Amount: 700, IsSettled: true}
	if !legacy.IsLegacySettled() || legacy.Unsettled() != 0 || !legacy.HasSettlementProgress() {
		t.Error("expected a flag-only row to read as fully settled")
	}
}

func TestTransaction_ApplyCashSettlement(t *testing.T) {
	tx := domain.Transaction{TotalAmount: 10000}
	tx.ApplyCashSettlement(4000)
	if tx.IsCashSettled || tx.Remaining() != 6000 {
		t.Errorf("expected 6000 remaining, got %d settled=%v", tx.Remaining(), tx.IsCashSettled)
	}
	tx.ApplyCashSettlement(12000)
	if !tx.IsCashSettled || tx.SettledAmount != 10000 || tx.Remaining() != 0 {
		t.Errorf("expected clamp to total, got %d", tx.SettledAmount)
	}
	tx.ApplyCashSettlement(-5)
	if tx.SettledAmount != 0 || tx.IsCashSettled {
		t.Errorf("expected clamp to zero, got %d", tx.SettledAmount)
	}
}

func TestTransactionRequest_Validate(t *testing.T) {
	date := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		lines   []domain.LineInput
		wantErr string
	}{
		{"ok", []domain.LineInput{{Amount: 1, LineType: "expense"}, {Amount: 1, LineType: "liability", Counterparty: "Sam"}}, ""},
		{"negative amount", []domain.LineInput{{Amount: -1, LineType: "expense"}}, "lines[0].amount"},
		{"unknown type", []domain.LineInput{{Amount: 1, LineType: "expense"}, {Amount: 1, LineType: "gift"}}, "lines[1].line_type"},
		{"blank counterparty", []domain.LineInput{{Amount: 1, LineType: "liability", Counterparty: "  "}}, "lines[0].counterparty"},
		{"amortized asset", []domain.LineInput{{Amount: 1, LineType: "asset", Counterparty: "Sam", AmortizationMonths: 2}}, "lines[0].amortization_months"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			types, err := domain.TransactionRequest{Date: date, Lines: tt.lines}.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				if len(types) != len(tt.lines) {
					t.Errorf("expected %d types, got %d", len(tt.lines), len(types))
				}
				return
			}
			v, ok := err.(*domain.ErrValidation)
			if !ok {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
			if v.Field != tt.wantErr {
				t.Errorf("expected field %s, got %s", tt.wantErr, v.Field)
			}
		})
	}
}

func TestAmortizationWindow(t *testing.T) {
	accrual := time.Date(2024, 11, 20, 0, 0, 0, 0, time.UTC)
	if start, end := domain.AmortizationWindow(accrual, nil, 0); start != nil || end != nil {
		t.Error("expected no window without months")
	}
	start, end := domain.AmortizationWindow(accrual, nil, 3)
	if !start.Equal(time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC)) || !end.Equal(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected window %s..%s", start, end)
	}
	from := time.Date(2025, 2, 14, 0, 0, 0, 0, time.UTC)
	start, _ = domain.AmortizationWindow(accrual, &from, 2)
	if !start.Equal(time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("expected explicit start month, got %s", start)
	}
}
