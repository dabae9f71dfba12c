package backtest

import (
	"fmt"
	"io"
	"time"

	"github.com/rustyeddy/perptrader/journal"
)

// Result is a summary of a backtest run.
type Result struct {
	Symbol   string
	Strategy string

	Start   time.Time
	End     time.Time
	Candles int
	Warmup  int // candles the strategy needs before it can trade

	StartBalance float64
	EndBalance   float64
	NetPL        float64
	ReturnPct    float64
	MaxDDPct     float64

	Trades       int
	Wins         int
	Losses       int
	Liquidations int
	Fees         float64
}

// WinRate is wins over trades as a fraction.
func (r Result) WinRate() float64 {
	if r.Trades == 0 {
		return 0
	}
	return float64(r.Wins) / float64(r.Trades)
}

// Run converts the result to the journal's run record.
func (r Result) Run(runID, dataset string, created time.Time) journal.BacktestRun {
	run := journal.BacktestRun{
		RunID:        runID,
		Created:      created,
		Symbol:       r.Symbol,
		Strategy:     r.Strategy,
		Dataset:      dataset,
		Start:        r.Start,
		End:          r.End,
		Trades:       r.Trades,
		Wins:         r.Wins,
		Losses:       r.Losses,
		Liquidations: r.Liquidations,
		Fees:         r.Fees,
		StartBalance: r.StartBalance,
		EndBalance:   r.EndBalance,
		NetPL:        r.NetPL,
		ReturnPct:    r.ReturnPct,
		WinRate:      r.WinRate(),
		MaxDDPct:     r.MaxDDPct,
	}
	if r.Warmup > r.Candles {
		run.Notes = append(run.Notes, fmt.Sprintf("%d candles, strategy needs %d to warm up", r.Candles, r.Warmup))
	}
	return run
}

func PrintBacktestRun(w io.Writer, r journal.BacktestRun) {
	fmt.Fprintln(w, "==================================================")
	fmt.Fprintln(w, " Backtest Result")
	fmt.Fprintln(w, "==================================================")

	fmt.Fprintf(w, "Run ID:        %s\n", r.RunID)
	fmt.Fprintf(w, "Created:       %s\n", r.Created.Format(time.RFC3339))
	fmt.Fprintf(w, "Strategy:      %s\n", r.Strategy)
	fmt.Fprintf(w, "Symbol:        %s\n", r.Symbol)
	fmt.Fprintf(w, "Dataset:       %s\n", r.Dataset)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Period")
	fmt.Fprintln(w, "--------------------------------------------------")
	fmt.Fprintf(w, "Start:         %s\n", r.Start.Format(time.RFC3339))
	fmt.Fprintf(w, "End:           %s\n", r.End.Format(time.RFC3339))

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Trade Statistics")
	fmt.Fprintln(w, "--------------------------------------------------")
	fmt.Fprintf(w, "Trades:        %d\n", r.Trades)
	fmt.Fprintf(w, "Wins:          %d\n", r.Wins)
	fmt.Fprintf(w, "Losses:        %d\n", r.Losses)
	fmt.Fprintf(w, "Liquidations:  %d\n", r.Liquidations)
	fmt.Fprintf(w, "Win Rate:      %.2f%%\n", r.WinRate*100)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Account Performance")
	fmt.Fprintln(w, "--------------------------------------------------")
	fmt.Fprintf(w, "Start Balance: %.2f\n", r.StartBalance)
	fmt.Fprintf(w, "End Balance:   %.2f\n", r.EndBalance)
	fmt.Fprintf(w, "Net P/L:       %.2f\n", r.NetPL)
	fmt.Fprintf(w, "Return:        %.2f%%\n", r.ReturnPct)
	fmt.Fprintf(w, "Fees:          %.4f\n", r.Fees)

	if r.MaxDDPct > 0 {
		fmt.Fprintf(w, "Max Drawdown:  %.2f%%\n", r.MaxDDPct)
	}

	if len(r.Notes) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Observations")
		fmt.Fprintln(w, "--------------------------------------------------")
		for _, note := range r.Notes {
			fmt.Fprintf(w, "- %s\n", note)
		}
	}

	fmt.Fprintln(w)
}
