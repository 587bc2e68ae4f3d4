package service_test

import (
	"testing"

	"github.com/boddenberg/household-ledger/internal/domain"
)

func TestRecordCashEvent_FeedsPoolAndAccount(t *testing.T) {
	f := newFixture(t)
	acct := f.account(t, 10000)

	rec, err := f.svc.RecordCashEvent(background, userID, domain.CashEventRequest{
		Counterparty:  "  Alex ",
		Type:          string(domain.CashReceive),
		Amount:        2000,
		Date:          settledOn,
		CashAccountID: acct.ID,
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if rec.Counterparty != "Alex" || rec.Amount != 2000 || rec.Kind != domain.SettlementCashEvent {
		t.Errorf("unexpected record: %+v", rec)
	}
	if bal := f.pool(t, "Alex"); bal.ReceiveBalance != 2000 || bal.PayBalance != 0 {
		t.Errorf("expected receive pool 2000, got %+v", bal)
	}
	if got := f.balance(t, acct.ID); got != 12000 {
		t.Errorf("expected balance 12000, got %d", got)
	}

	if _, err := f.svc.RecordCashEvent(background, userID, domain.CashEventRequest{
		Counterparty: "Alex", Type: string(domain.CashPay), Amount: 500,
	}); err != nil {
		t.Fatalf("pay event: %v", err)
	}
	if bal := f.pool(t, "Alex"); bal.PayBalance != 500 {
		t.Errorf("expected pay pool 500, got %d", bal.PayBalance)
	}
	if got := f.balance(t, acct.ID); got != 12000 {
		t.Errorf("expected event without account to leave balance, got %d", got)
	}
	f.assertReconciled(t, acct.ID)
}

func TestRecordCashEvent_Validation(t *testing.T) {
	tests := []struct {
		name string
		req  domain.CashEventRequest
	}{
		{"missing counterparty", domain.CashEventRequest{Type: "receive", Amount: 1}},
		{"unknown type", domain.CashEventRequest{Counterparty: "Alex", Type: "gift", Amount: 1}},
		{"zero amount", domain.CashEventRequest{Counterparty: "Alex", Type: "pay"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.svc.RecordCashEvent(background, userID, tt.req)
			expectError[*domain.ErrValidation](t, err)
		})
	}
}

func TestSettleLines_InsufficientPoolWritesNothing(t *testing.T) {
	f := newFixture(t)
	adv := f.advance(t, "Alex", 3000)
	asset := f.line(t, adv.ID, domain.LineAsset)

	if _, err := f.svc.RecordCashEvent(background, userID, domain.CashEventRequest{
		Counterparty: "Alex", Type: "receive", Amount: 2000,
	}); err != nil {
		t.Fatalf("record: %v", err)
	}

	_, err := f.svc.SettleLines(background, userID, domain.SettleLinesRequest{
		Counterparty: "Alex",
		LineType:     string(domain.LineAsset),
		LineIDs:      []string{asset.ID},
	})
	insufficient := expectError[*domain.ErrInsufficientPool](t, err)
	if insufficient.Need != 3000 || insufficient.Have != 2000 {
		t.Errorf("expected need 3000 have 2000, got %+v", insufficient)
	}

	if bal := f.pool(t, "Alex"); bal.ReceiveBalance != 2000 {
		t.Errorf("expected pool untouched, got %d", bal.ReceiveBalance)
	}
	if l := f.line(t, adv.ID, domain.LineAsset); l.SettledAmount != 0 || l.IsSettled {
		t.Errorf("expected line untouched, got %+v", l)
	}
	history, err := f.svc.ListSettlements(background, userID, "Alex", 0)
	if err != nil {
		t.Fatalf("list settlements: %v", err)
	}
	if len(history) != 1 {
		t.Errorf("expected only the cash event in history, got %d", len(history))
	}
}

func TestSettleLines_ConsumesPool(t *testing.T) {
	f := newFixture(t)
	a := f.advance(t, "Alex", 1200)
	b := f.advance(t, "Alex", 800)
	lineA := f.line(t, a.ID, domain.LineAsset)
	lineB := f.line(t, b.ID, domain.LineAsset)

	if _, err := f.svc.RecordCashEvent(background, userID, domain.CashEventRequest{
		Counterparty: "Alex", Type: "receive", Amount: 2500,
	}); err != nil {
		t.Fatalf("record: %v", err)
	}

	rec, err := f.svc.SettleLines(background, userID, domain.SettleLinesRequest{
		Counterparty: "Alex",
		LineType:     "asset",
		LineIDs:      []string{lineA.ID, lineB.ID},
		Date:         settledOn,
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if rec.Amount != 0 || rec.Kind != domain.SettlementLineSettlement || len(rec.Items) != 2 {
		t.Errorf("unexpected settlement record: %+v", rec)
	}
	if bal := f.pool(t, "Alex"); bal.ReceiveBalance != 500 {
		t.Errorf("expected pool 500 left, got %d", bal.ReceiveBalance)
	}
	for _, id := range []string{a.ID, b.ID} {
		if l := f.line(t, id, domain.LineAsset); !l.IsSettled || l.SettledAmount != l.Amount {
			t.Errorf("expected line of %s settled, got %+v", id, l)
		}
	}

	stored, err := f.svc.GetSettlement(background, userID, rec.ID)
	if err != nil {
		t.Fatalf("get settlement: %v", err)
	}
	if len(stored.Items) != 2 {
		t.Errorf("expected 2 stored items, got %d", len(stored.Items))
	}
	if m := f.metrics.Snapshot(); m.CounterpartySettlements != 1 {
		t.Errorf("expected one counterparty settlement, got %d", m.CounterpartySettlements)
	}
}

func TestSettleLines_RejectsMismatchedLines(t *testing.T) {
	f := newFixture(t)
	adv := f.advance(t, "Alex", 1000)
	other := f.advance(t, "Sam", 1000)
	f.svc.RecordCashEvent(background, userID, domain.CashEventRequest{Counterparty: "Alex", Type: "receive", Amount: 5000})

	tests := []struct {
		name string
		req  domain.SettleLinesRequest
	}{
		{"wrong pool for line", domain.SettleLinesRequest{Counterparty: "Alex", LineType: "liability", LineIDs: []string{f.line(t, adv.ID, domain.LineAsset).ID}}},
		{"other counterparty", domain.SettleLinesRequest{Counterparty: "Alex", LineType: "asset", LineIDs: []string{f.line(t, other.ID, domain.LineAsset).ID}}},
		{"p&l line type", domain.SettleLinesRequest{Counterparty: "Alex", LineType: "expense", LineIDs: []string{"x"}}},
		{"no lines", domain.SettleLinesRequest{Counterparty: "Alex", LineType: "asset"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.SettleLines(background, userID, tt.req)
			expectError[*domain.ErrValidation](t, err)
		})
	}
	if bal := f.pool(t, "Alex"); bal.ReceiveBalance != 5000 {
		t.Errorf("expected pool untouched, got %d", bal.ReceiveBalance)
	}
}

func TestEditCashEvent_PropagatesDelta(t *testing.T) {
	f := newFixture(t)
	acct := f.account(t, 10000)
	rec, err := f.svc.RecordCashEvent(background, userID, domain.CashEventRequest{
		Counterparty: "Alex", Type: "pay", Amount: 5000, CashAccountID: acct.ID, Date: settledOn,
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	edited, err := f.svc.EditCashEvent(background, userID, rec.ID, domain.EditCashEventRequest{
		Amount: ptr(int64(3000)),
		Note:   ptr("typo"),
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if edited.Amount != -3000 || edited.Note != "typo" {
		t.Errorf("expected pay of 3000 with note, got %+v", edited)
	}
	if bal := f.pool(t, "Alex"); bal.PayBalance != 3000 {
		t.Errorf("expected pay pool 3000, got %d", bal.PayBalance)
	}
	if got := f.balance(t, acct.ID); got != 7000 {
		t.Errorf("expected balance 7000, got %d", got)
	}
	f.assertReconciled(t, acct.ID)
}

func TestEditCashEvent_CannotDrainConsumedPool(t *testing.T) {
	f := newFixture(t)
	adv := f.advance(t, "Alex", 2000)
	rec, _ := f.svc.RecordCashEvent(background, userID, domain.CashEventRequest{Counterparty: "Alex", Type: "receive", Amount: 2000})
	if _, err := f.svc.SettleLines(background, userID, domain.SettleLinesRequest{
		Counterparty: "Alex", LineType: "asset", LineIDs: []string{f.line(t, adv.ID, domain.LineAsset).ID},
	}); err != nil {
		t.Fatalf("settle lines: %v", err)
	}

	_, err := f.svc.EditCashEvent(background, userID, rec.ID, domain.EditCashEventRequest{Amount: ptr(int64(1000))})
	expectError[*domain.ErrInsufficientPool](t, err)

	stored, _ := f.svc.GetSettlement(background, userID, rec.ID)
	if stored.Amount != 2000 {
		t.Errorf("expected record unchanged, got %d", stored.Amount)
	}
}

func TestEditCashEvent_NettingRecordsKeepAmount(t *testing.T) {
	f := newFixture(t)
	adv := f.advance(t, "Sam", 1000)
	f.borrow(t, "Sam", 400)

	history, err := f.svc.ListSettlements(background, userID, "Sam", 10)
	if err != nil || len(history) != 1 {
		t.Fatalf("expected one auto-offset record, got %d (%v)", len(history), err)
	}
	offset := history[0]

	_, err = f.svc.EditCashEvent(background, userID, offset.ID, domain.EditCashEventRequest{Amount: ptr(int64(1))})
	expectError[*domain.ErrValidation](t, err)

	edited, err := f.svc.EditCashEvent(background, userID, offset.ID, domain.EditCashEventRequest{Date: ptr(settledOn)})
	if err != nil {
		t.Fatalf("date edit: %v", err)
	}
	if !edited.Date.Equal(settledOn) {
		t.Errorf("expected date %s, got %s", settledOn, edited.Date)
	}
	if l := f.line(t, adv.ID, domain.LineAsset); l.SettledAmount != 400 {
		t.Errorf("expected line untouched by edit, got %d", l.SettledAmount)
	}
}

func TestDeleteSettlement_IsHistoryOnly(t *testing.T) {
	f := newFixture(t)
	adv := f.advance(t, "Alex", 1000)
	f.svc.RecordCashEvent(background, userID, domain.CashEventRequest{Counterparty: "Alex", Type: "receive", Amount: 1500})
	rec, err := f.svc.SettleLines(background, userID, domain.SettleLinesRequest{
		Counterparty: "Alex", LineType: "asset", LineIDs: []string{f.line(t, adv.ID, domain.LineAsset).ID},
	})
	if err != nil {
		t.Fatalf("settle lines: %v", err)
	}

	if err := f.svc.DeleteSettlement(background, userID, rec.ID); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	_, err = f.svc.GetSettlement(background, userID, rec.ID)
	expectError[*domain.ErrNotFound](t, err)

	if bal := f.pool(t, "Alex"); bal.ReceiveBalance != 500 {
		t.Errorf("expected pool left at 500, got %d", bal.ReceiveBalance)
	}
	if l := f.line(t, adv.ID, domain.LineAsset); !l.IsSettled {
		t.Error("expected line to stay settled")
	}
}

func TestCounterpartyWorklist(t *testing.T) {
	f := newFixture(t)
	f.advance(t, "Alex", 3000)
	f.advance(t, "Sam", 500)
	f.create(t, domain.TransactionRequest{
		Description: "loan from Sam",
		Lines:       []domain.LineInput{{Amount: 200, LineType: "liability", Counterparty: "Sam"}},
	})
	f.svc.RecordCashEvent(background, userID, domain.CashEventRequest{Counterparty: "Kim", Type: "pay", Amount: 100})

	rows, err := f.svc.CounterpartyWorklist(background, userID)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 counterparties, got %d", len(rows))
	}
	if rows[0].Counterparty != "Alex" || rows[0].TheyOwe != 3000 {
		t.Errorf("expected Alex first owing 3000, got %+v", rows[0])
	}
	if rows[1].Counterparty != "Sam" || rows[1].TheyOwe != 300 || rows[1].UserOwes != 0 {
		t.Errorf("expected Sam netted by auto-offset, got %+v", rows[1])
	}
	if rows[2].Counterparty != "Kim" || rows[2].PayBalance != 100 {
		t.Errorf("expected Kim with pay pool, got %+v", rows[2])
	}

	lines, err := f.svc.CounterpartyLines(background, userID, "Sam")
	if err != nil {
		t.Fatalf("counterparty lines: %v", err)
	}
	if len(lines) != 1 || lines[0].Unsettled() != 300 {
		t.Errorf("expected one open Sam line of 300, got %d", len(lines))
	}
}
