package backtest

import (
	"context"
	"fmt"
	"time"

	"github.com/rustyeddy/perptrader/journal"
	"github.com/rustyeddy/perptrader/market"
	"github.com/rustyeddy/perptrader/sim"
	"github.com/rustyeddy/perptrader/strategies"
)

// RunnerOptions controls how the backtest runner behaves.
type RunnerOptions struct {
	// If true, cancel open orders and close open positions at the last
	// close once the feed is exhausted.
	CloseAtEnd bool

	// Progress, when set, is called after every candle.
	Progress func(n int, c market.Candle)
}

// warmer is a strategy that needs a number of candles before it can signal.
type warmer interface {
	Warmup() int
}

// Runner drives an engine forward using a feed and strategy.
type Runner struct {
	Engine   *sim.Engine
	Feed     CandleFeed
	Strategy strategies.Strategy
	Symbol   string
	Options  RunnerOptions
}

// Run executes the backtest loop:
//  1. read next candle
//  2. engine.Step(candle)
//  3. strategy.OnCandle(ctx, engine, symbol, candle)
//
// and summarizes the positions closed during the run.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	if r.Engine == nil {
		return Result{}, fmt.Errorf("backtest: Engine is required")
	}
	if r.Feed == nil {
		return Result{}, fmt.Errorf("backtest: Feed is required")
	}
	if r.Strategy == nil {
		return Result{}, fmt.Errorf("backtest: Strategy is required")
	}
	if r.Symbol == "" {
		return Result{}, fmt.Errorf("backtest: Symbol is required")
	}
	defer r.Feed.Close()

	asset := r.Engine.Config().Asset
	bal, err := r.Engine.GetBalance(ctx, asset)
	if err != nil {
		return Result{}, err
	}

	res := Result{
		Symbol:       r.Symbol,
		Strategy:     r.Strategy.Name(),
		StartBalance: bal.Total,
	}
	if w, ok := r.Strategy.(warmer); ok {
		res.Warmup = w.Warmup()
	}
	closedBefore := len(r.Engine.PositionHistory())
	peak := bal.Total

	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		c, ok, err := r.Feed.Next()
		if err != nil {
			return res, err
		}
		if !ok {
			break
		}

		if res.Start.IsZero() {
			res.Start = c.Time
		}
		res.End = c.Time
		res.Candles++

		if err := r.Engine.Step(ctx, r.Symbol, c); err != nil {
			return res, err
		}
		if err := r.Strategy.OnCandle(ctx, r.Engine, r.Symbol, c); err != nil {
			return res, fmt.Errorf("%s at %s: %w", r.Strategy.Name(), c.Time.Format(time.RFC3339), err)
		}

		eq, err := r.equity(ctx, asset, c.Close)
		if err != nil {
			return res, err
		}
		peak = max(peak, eq)
		if peak > 0 {
			res.MaxDDPct = max(res.MaxDDPct, (peak-eq)/peak*100)
		}

		if r.Options.Progress != nil {
			r.Options.Progress(res.Candles, c)
		}
	}

	if r.Options.CloseAtEnd {
		if err := r.Engine.CloseAll(ctx); err != nil {
			return res, err
		}
	}

	bal, err = r.Engine.GetBalance(ctx, asset)
	if err != nil {
		return res, err
	}
	res.EndBalance = bal.Total
	res.NetPL = res.EndBalance - res.StartBalance
	if res.StartBalance > 0 {
		res.ReturnPct = res.NetPL / res.StartBalance * 100
	}

	var recs []journal.PositionRecord
	for _, p := range r.Engine.PositionHistory()[closedBefore:] {
		recs = append(recs, journal.PositionRecord{
			RealizedProfit: p.RealizedProfit,
			Fees:           p.Fees,
			Liquidated:     p.Liquidated,
		})
	}
	sum := journal.Summarize(recs)
	res.Trades = sum.Trades
	res.Wins = sum.Wins
	res.Losses = sum.Losses
	res.Liquidations = sum.Liquidations
	res.Fees = sum.Fees

	return res, nil
}

// equity is the wallet total plus the open position's unrealized profit at
// mark.
func (r *Runner) equity(ctx context.Context, asset string, mark float64) (float64, error) {
	bal, err := r.Engine.GetBalance(ctx, asset)
	if err != nil {
		return 0, err
	}
	pos, err := r.Engine.GetPosition(ctx, r.Symbol)
	if err != nil {
		return 0, err
	}
	if pos == nil {
		return bal.Total, nil
	}
	return bal.Total + sim.UnrealizedProfit(*pos, mark), nil
}
