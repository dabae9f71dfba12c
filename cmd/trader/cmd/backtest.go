package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/rustyeddy/perptrader/backtest"
	"github.com/rustyeddy/perptrader/config"
	"github.com/rustyeddy/perptrader/journal"
	"github.com/rustyeddy/perptrader/market"
	"github.com/rustyeddy/perptrader/risk"
	"github.com/rustyeddy/perptrader/sim"
)

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Replay candles through the simulated exchange with a strategy",
	Long: `Backtest replays a candle CSV (time,open,high,low,close[,volume]) through
the simulated futures exchange and trades it with the configured strategy.

Supported strategies:
  - noop:      does nothing (baseline test)
  - bracket:   enters at market with a take-profit and stop-loss
  - ema-cross: EMA crossover with ATR based stops

Example:
  trader backtest --config backtest.yaml
  trader backtest --candles data/BTCUSDT-1h.csv --symbol BTCUSDT --strategy noop`,
	RunE: runBacktest,
}

var (
	btCandles    string
	btSymbol     string
	btStrategy   string
	btOrgPath    string
	btNoProgress bool
)

func init() {
	rootCmd.AddCommand(backtestCmd)

	backtestCmd.Flags().StringVar(&btCandles, "candles", "", "candle CSV path (overrides backtest.candles)")
	backtestCmd.Flags().StringVar(&btSymbol, "symbol", "", "symbol (overrides backtest.symbol)")
	backtestCmd.Flags().StringVarP(&btStrategy, "strategy", "s", "", "strategy name (overrides strategy.name)")
	backtestCmd.Flags().StringVar(&btOrgPath, "org", "", "write an org-mode report to this path")
	backtestCmd.Flags().BoolVar(&btNoProgress, "no-progress", false, "disable the progress spinner")
}

func runBacktest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if btCandles != "" {
		cfg.Backtest.Candles = btCandles
	}
	if btSymbol != "" {
		cfg.Backtest.Symbol = btSymbol
	}
	if btStrategy != "" {
		cfg.Strategy.Name = btStrategy
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	j, runs, err := openJournal(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer j.Close()

	engine, err := sim.NewEngine(cfg.EngineConfig(logger), j)
	if err != nil {
		return err
	}
	strat, err := cfg.NewStrategy()
	if err != nil {
		return fmt.Errorf("strategy: %w", err)
	}
	from, to, err := cfg.TimeRange()
	if err != nil {
		return err
	}
	feed, err := backtest.NewCSVCandleFeed(cfg.Backtest.Candles, from, to)
	if err != nil {
		return fmt.Errorf("open candles: %w", err)
	}

	opts := backtest.RunnerOptions{CloseAtEnd: cfg.Backtest.CloseAtEnd}
	if !btNoProgress {
		bar := newSpinner("Backtesting " + cfg.Backtest.Symbol)
		defer bar.Finish()
		opts.Progress = func(n int, c market.Candle) { bar.Add(1) }
	}

	runner := &backtest.Runner{
		Engine:   engine,
		Feed:     feed,
		Strategy: strat,
		Symbol:   cfg.Backtest.Symbol,
		Options:  opts,
	}
	res, err := runner.Run(ctx)
	if err != nil {
		return fmt.Errorf("backtest: %w", err)
	}

	run := res.Run(ulid.Make().String(), filepath.Base(cfg.Backtest.Candles), time.Now().UTC())
	if sc := cfg.Strategy; sc.Name == "bracket" && sc.StopLossPct > 0 && sc.TakeProfitPct > 0 {
		run.Notes = append(run.Notes, fmt.Sprintf("planned reward/risk %.2f", risk.RR(1, 1-sc.StopLossPct, 1+sc.TakeProfitPct)))
	}
	for _, liq := range engine.Liquidations() {
		run.Notes = append(run.Notes, liq.Error())
	}
	if runs != nil {
		if err := runs.RecordRun(run); err != nil {
			return fmt.Errorf("record run: %w", err)
		}
	}
	if btOrgPath != "" {
		if err := run.WriteOrg(btOrgPath); err != nil {
			return err
		}
	}

	fmt.Fprintln(os.Stderr)
	backtest.PrintBacktestRun(os.Stdout, run)
	return nil
}

// openJournal opens the configured journal. The SQLite journal is also
// returned as the run store.
func openJournal(ctx context.Context, cfg *config.Config) (journal.Journal, *journal.SQLiteJournal, error) {
	switch cfg.Journal.Type {
	case "", "none":
		return journal.Discard{}, nil, nil
	case "csv":
		j, err := journal.NewCSV(cfg.Journal.Dir)
		return j, nil, err
	case "sqlite":
		j, err := journal.NewSQLite(cfg.Journal.DBPath)
		if err != nil {
			return nil, nil, err
		}
		return j, j, nil
	case "postgres":
		j, err := journal.NewPostgres(ctx, cfg.Journal.DSN)
		return j, nil, err
	}
	return nil, nil, errors.New("unknown journal type " + cfg.Journal.Type)
}

func newSpinner(desc string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetElapsedTime(true),
		progressbar.OptionShowCount(),
		progressbar.OptionSetItsString("candles"),
		progressbar.OptionShowIts(),
		progressbar.OptionSetDescription(desc),
		progressbar.OptionThrottle(100*time.Millisecond),
	)
}
