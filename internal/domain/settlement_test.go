package domain_test

import (
	"errors"
	"testing"
	"time"

	"github.com/boddenberg/household-ledger/internal/domain"
)

func TestSettlementBalance_Adjust(t *testing.T) {
	b := domain.SettlementBalance{ReceiveBalance: 2000}

	err := b.Adjust(domain.PoolReceive, -3000)
	var insufficient *domain.ErrInsufficientPool
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected ErrInsufficientPool, got %v", err)
	}
	if insufficient.Need != 3000 || insufficient.Have != 2000 {
		t.Errorf("unexpected error detail: %+v", insufficient)
	}
	if b.ReceiveBalance != 2000 {
		t.Errorf("expected pool untouched, got %d", b.ReceiveBalance)
	}

	if err := b.Adjust(domain.PoolReceive, -2000); err != nil {
		t.Fatalf("expected exact drain to pass, got %v", err)
	}
	if err := b.Adjust(domain.PoolPay, 700); err != nil || b.PayBalance != 700 {
		t.Errorf("expected pay pool 700, got %d (%v)", b.PayBalance, err)
	}
}

func TestPoolForLineType(t *testing.T) {
	if p, _ := domain.PoolForLineType(domain.LineAsset); p != domain.PoolReceive {
		t.Errorf("expected asset lines on the receive pool, got %s", p)
	}
	if p, _ := domain.PoolForLineType(domain.LineLiability); p != domain.PoolPay {
		t.Errorf("expected liability lines on the pay pool, got %s", p)
	}
	if _, err := domain.PoolForLineType(domain.LineIncome); err == nil {
		t.Error("expected income lines rejected")
	}
}

func TestSummarizeCounterparties(t *testing.T) {
	lines := []domain.TransactionLine{
		{ID: "a1", LineType: domain.LineAsset, Counterparty: "Alex", Amount: 3000, SettledAmount: 1000},
		{ID: "l1", LineType: domain.LineLiability, Counterparty: "Alex", Amount: 500},
		{ID: "s1", LineType: domain.LineLiability, Counterparty: "Sam", Amount: 4000},
		{ID: "old", LineType: domain.LineAsset, Counterparty: "Sam", Amount: 900, IsSettled: true},
	}
	balances := []domain.SettlementBalance{
		{Counterparty: "Alex", ReceiveBalance: 200},
		{Counterparty: "Kim"},
	}

	got := domain.SummarizeCounterparties(lines, balances)
	if len(got) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(got))
	}
	sam, alex := got[0], got[1]
	if sam.Counterparty != "Sam" || sam.UserOwes != 4000 || sam.Net != -4000 || len(sam.Lines) != 1 {
		t.Errorf("unexpected Sam row: %+v", sam)
	}
	if alex.TheyOwe != 2000 || alex.UserOwes != 500 || alex.Net != 1500 || alex.ReceiveBalance != 200 {
		t.Errorf("unexpected Alex row: %+v", alex)
	}
}

func TestCashEventType(t *testing.T) {
	if _, err := domain.ParseCashEventType("refund"); err == nil {
		t.Error("expected unknown type rejected")
	}
	if domain.CashReceive.Sign() != 1 || domain.CashPay.Sign() != -1 {
		t.Error("expected receive positive and pay negative")
	}
}

func TestAccount_ExpectedBalance(t *testing.T) {
	opened := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	a := domain.Account{ID: "acc", OpeningBalance: 1000, OpeningDate: opened}
	moves := []domain.AccountMovement{
		{AccountID: "acc", Amount: -300, Date: opened},
		{AccountID: "acc", Amount: 50, Date: opened.AddDate(0, 0, -1)},
		{AccountID: "other", Amount: 999, Date: opened},
		{AccountID: "acc", Amount: 200, Date: opened.AddDate(0, 2, 0)},
	}
	if got := a.ExpectedBalance(moves); got != 900 {
		t.Errorf("expected 900, got %d", got)
	}
}

func TestUniqueIDs(t *testing.T) {
	got := domain.UniqueIDs([]string{"b", "", "a", "b", "c", "a"})
	want := []string{"b", "a", "c"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}
