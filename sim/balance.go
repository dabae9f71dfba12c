package sim

import (
	"fmt"
	"time"

	"github.com/rustyeddy/perptrader/broker"
)

// BalanceLedger tracks cash per settlement asset. Every mutation appends a
// new snapshot; snapshots are never modified afterwards.
type BalanceLedger struct {
	current map[string]broker.Balance
	history []broker.Balance
}

func NewBalanceLedger() *BalanceLedger {
	return &BalanceLedger{current: make(map[string]broker.Balance)}
}

// Init sets the starting balance of an asset.
func (l *BalanceLedger) Init(asset string, amount float64, at time.Time) (broker.Balance, error) {
	if asset == "" {
		return broker.Balance{}, fmt.Errorf("%w: asset is required", broker.ErrBalance)
	}
	if amount < 0 {
		return broker.Balance{}, fmt.Errorf("%w: %s: negative starting balance %g", broker.ErrBalance, asset, amount)
	}
	return l.push(broker.Balance{Asset: asset, Total: amount, Available: amount, Time: at}), nil
}

func (l *BalanceLedger) Get(asset string) (broker.Balance, error) {
	b, ok := l.current[asset]
	if !ok {
		return broker.Balance{}, fmt.Errorf("%w: unknown asset %q", broker.ErrBalance, asset)
	}
	return b, nil
}

// History returns every snapshot in the order it was taken.
func (l *BalanceLedger) History() []broker.Balance {
	return append([]broker.Balance(nil), l.history...)
}

// Reserve moves margin out of the available balance.
func (l *BalanceLedger) Reserve(asset string, margin float64, at time.Time) (broker.Balance, error) {
	b, err := l.Get(asset)
	if err != nil {
		return broker.Balance{}, err
	}
	if margin < 0 {
		return broker.Balance{}, fmt.Errorf("%w: %s: cannot reserve %g", broker.ErrBalance, asset, margin)
	}
	if margin > b.Available {
		return broker.Balance{}, fmt.Errorf("%w: %s: insufficient margin: need %.8g, available %.8g", broker.ErrBalance, asset, margin, b.Available)
	}
	b.Available -= margin
	b.Time = at
	return l.push(b), nil
}

// Release gives reserved margin back.
func (l *BalanceLedger) Release(asset string, margin float64, at time.Time) (broker.Balance, error) {
	b, err := l.Get(asset)
	if err != nil {
		return broker.Balance{}, err
	}
	if margin < 0 {
		return broker.Balance{}, fmt.Errorf("%w: %s: cannot release %g", broker.ErrBalance, asset, margin)
	}
	b.Available += margin
	if b.Available > b.Total {
		b.Available = b.Total
	}
	b.Time = at
	return l.push(b), nil
}

// Settle books a fill: realized P&L and fee move the total, and margin the
// fill freed returns to the available balance.
func (l *BalanceLedger) Settle(asset string, realized, fee, released float64, at time.Time) (broker.Balance, error) {
	b, err := l.Get(asset)
	if err != nil {
		return broker.Balance{}, err
	}
	delta := realized - fee
	b.Total += delta
	b.Available += delta + released
	if b.Available > b.Total {
		b.Available = b.Total
	}
	b.Time = at
	return l.push(b), nil
}

func (l *BalanceLedger) push(b broker.Balance) broker.Balance {
	l.current[b.Asset] = b
	l.history = append(l.history, b)
	return b
}
