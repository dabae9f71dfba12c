package strategies

import (
	"context"
	"fmt"
	"strings"

	"github.com/rustyeddy/perptrader/broker"
	"github.com/rustyeddy/perptrader/market"
	"github.com/rustyeddy/perptrader/risk"
)

// Strategy is called once per closed candle, after the exchange has
// processed it. Orders it places can fill from the next candle on.
type Strategy interface {
	Name() string
	OnCandle(ctx context.Context, b broker.Broker, symbol string, c market.Candle) error
}

// Params holds the knobs shared by the built-in strategies. Each strategy
// reads the ones it needs.
type Params struct {
	Side          broker.Side
	Quantity      float64
	Percent       float64 // fraction of available balance
	RiskPct       float64 // fraction of available balance lost at the stop
	Asset         string  // margin asset, needed by RiskPct sizing
	TakeProfitPct float64
	StopLossPct   float64
	Leverage      int

	FastPeriod  int
	SlowPeriod  int
	ATRPeriod   int
	ATRMultiple float64
	TrendPeriod int     // SMA trend filter, 0 disables it
	RR          float64 // take-profit distance as a multiple of the stop distance
}

// ByName builds a strategy from its configured name.
func ByName(name string, p Params) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "noop", "none":
		return Noop{}, nil

	case "bracket":
		return &Bracket{Params: p, Once: true}, nil

	case "ema-cross", "emacross":
		return NewEMACross(p)

	default:
		return nil, fmt.Errorf("unknown strategy %q (supported: noop, bracket, ema-cross)", name)
	}
}

// bracketPrices places the take-profit and stop-loss dist and rr*dist away
// from ref on the losing and winning side of side.
func bracketPrices(side broker.Side, ref, stopDist, tpDist float64) (takeProfit, stopLoss float64) {
	if stopDist > 0 {
		stopLoss = ref - side.Sign()*stopDist
	}
	if tpDist > 0 {
		takeProfit = ref + side.Sign()*tpDist
	}
	return takeProfit, stopLoss
}

// enter sets leverage when asked and places a market entry with its bracket.
// A fixed quantity wins over RiskPct, which wins over Percent. RiskPct needs
// a stop-loss.
func enter(ctx context.Context, b broker.Broker, symbol string, side broker.Side, p Params, ref, takeProfit, stopLoss float64) error {
	if p.Leverage > 0 {
		if err := b.SetLeverage(ctx, symbol, p.Leverage); err != nil {
			return err
		}
	}
	req := broker.EntryRequest{
		Symbol:     symbol,
		Side:       side,
		Quantity:   p.Quantity,
		TakeProfit: takeProfit,
		StopLoss:   stopLoss,
	}
	switch {
	case req.Quantity > 0:
	case p.RiskPct > 0 && stopLoss > 0:
		qty, err := riskQuantity(ctx, b, p, ref, stopLoss)
		if err != nil {
			return err
		}
		req.Quantity = qty
	default:
		req.Percent = p.Percent
	}
	_, err := b.EnterPosition(ctx, req)
	return err
}

// riskQuantity sizes an entry at ref so that the stop loses RiskPct of the
// available balance.
func riskQuantity(ctx context.Context, b broker.Broker, p Params, ref, stopLoss float64) (float64, error) {
	bal, err := b.GetBalance(ctx, p.Asset)
	if err != nil {
		return 0, err
	}
	res := risk.Calculate(risk.Inputs{
		Available: bal.Available,
		RiskPct:   p.RiskPct,
		Entry:     ref,
		Stop:      stopLoss,
		Leverage:  p.Leverage,
	})
	if res.Quantity <= 0 {
		return 0, fmt.Errorf("risking %g%% of %g %s buys nothing", p.RiskPct*100, bal.Available, p.Asset)
	}
	return res.Quantity, nil
}

// busy reports whether symbol has a position or working orders.
func busy(ctx context.Context, b broker.Broker, symbol string) (bool, error) {
	pos, err := b.GetPosition(ctx, symbol)
	if err != nil {
		return false, err
	}
	if pos != nil {
		return true, nil
	}
	open, err := b.GetOpenOrders(ctx, symbol)
	if err != nil {
		return false, err
	}
	return len(open) > 0, nil
}
