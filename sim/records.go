package sim

import (
	"github.com/rustyeddy/perptrader/broker"
	"github.com/rustyeddy/perptrader/journal"
)

func fillRecord(f broker.Fill) journal.FillRecord {
	return journal.FillRecord{
		OrderID:  f.OrderID,
		Symbol:   f.Symbol,
		Side:     f.Side.String(),
		Type:     string(f.Type),
		Role:     string(f.Role),
		Quantity: f.Quantity,
		Price:    f.Price,
		Fee:      f.Fee,
		Maker:    f.Maker,
		Realized: f.Realized,
		Time:     f.Time,
	}
}

func positionRecord(p broker.Position) journal.PositionRecord {
	return journal.PositionRecord{
		Symbol:         p.Symbol,
		Side:           p.Side.String(),
		Quantity:       p.Quantity,
		EntryPrice:     p.EntryPrice,
		ClosePrice:     p.ClosePrice,
		Leverage:       p.Leverage,
		RealizedProfit: p.RealizedProfit,
		Fees:           p.Fees,
		Adjustments:    p.Adjustments,
		Liquidated:     p.Liquidated,
		OpenedAt:       p.OpenedAt,
		ClosedAt:       p.ClosedAt,
	}
}

func balanceRecord(b broker.Balance) journal.BalanceSnapshot {
	return journal.BalanceSnapshot{
		Time:      b.Time,
		Asset:     b.Asset,
		Total:     b.Total,
		Available: b.Available,
	}
}
