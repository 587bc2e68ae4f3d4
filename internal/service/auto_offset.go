package service

import (
	"context"
	"fmt"

	"github.com/boddenberg/household-ledger/internal/domain"
	"github.com/boddenberg/household-ledger/internal/port"
)

const autoOffsetNotePrefix = "auto-offset: "

// autoOffset nets a freshly saved liability line against what the same
// counterparty already owes the user. Open asset lines are consumed oldest
// first; the offset is min(liability, open assets). Pools are not touched:
// no money changes hands. Returns nil when nothing was offset.
func (s *LedgerService) autoOffset(ctx context.Context, tx port.LedgerTx, t *domain.Transaction, line *domain.TransactionLine) (*domain.Settlement, error) {
	if line.LineType != domain.LineLiability || line.Counterparty == "" {
		return nil, nil
	}
	owed := line.Unsettled()
	if owed <= 0 {
		return nil, nil
	}

	assets, err := tx.LockUnsettledAssetLines(ctx, t.UserID, line.Counterparty)
	if err != nil {
		return nil, fmt.Errorf("lock asset lines: %w", err)
	}
	var open int64
	for _, a := range assets {
		open += a.Unsettled()
	}
	offset := min(owed, open)
	if offset <= 0 {
		return nil, nil
	}

	rec := &domain.Settlement{
		UserID:       t.UserID,
		Date:         t.Date,
		Counterparty: line.Counterparty,
		Kind:         domain.SettlementAutoOffset,
		Note:         autoOffsetNotePrefix + t.Description,
	}
	if err := tx.InsertSettlement(ctx, rec); err != nil {
		return nil, fmt.Errorf("insert settlement: %w", err)
	}

	items := make([]domain.SettlementItem, 0, len(assets)+1)
	left := offset
	for i := range assets {
		if left == 0 {
			break
		}
		a := &assets[i]
		take := min(left, a.Unsettled())
		if take <= 0 {
			continue
		}
		a.ApplySettlement(take)
		if err := tx.UpdateLineSettlement(ctx, a.ID, a.SettledAmount, a.IsSettled); err != nil {
			return nil, fmt.Errorf("update asset line %s: %w", a.ID, err)
		}
		items = append(items, domain.SettlementItem{SettlementID: rec.ID, TransactionLineID: a.ID, Amount: take})
		left -= take
	}

	line.ApplySettlement(offset)
	if err := tx.UpdateLineSettlement(ctx, line.ID, line.SettledAmount, line.IsSettled); err != nil {
		return nil, fmt.Errorf("update liability line %s: %w", line.ID, err)
	}
	items = append(items, domain.SettlementItem{SettlementID: rec.ID, TransactionLineID: line.ID, Amount: offset})

	if err := tx.InsertSettlementItems(ctx, items); err != nil {
		return nil, fmt.Errorf("insert settlement items: %w", err)
	}
	rec.Items = items
	return rec, nil
}

// offsetAmount is the amount netted by an auto-offset record: the item on the liability line.
func offsetAmount(rec *domain.Settlement) int64 {
	if len(rec.Items) == 0 {
		return 0
	}
	return rec.Items[len(rec.Items)-1].Amount
}
