package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/perptrader/backtest"
	"github.com/rustyeddy/perptrader/market"
	"github.com/rustyeddy/perptrader/market/data"
)

var dataCmd = &cobra.Command{
	Use:   "data",
	Short: "Download and check market data",
}

var dataDownloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download futures klines from Binance into a candle CSV",
	Long: `Download USDⓈ-M futures klines for [from, to) and write them in the
layout the backtest command reads. API keys are optional and read from
BINANCE_API_KEY and BINANCE_SECRET_KEY (or a .env file).

Example:
  trader data download --symbol BTCUSDT --interval 1h --from 2024-01-01 --to 2024-02-01 -o data/BTCUSDT-1h.csv`,
	RunE: runDataDownload,
}

var dataCheckCmd = &cobra.Command{
	Use:   "check <candles.csv>",
	Short: "Report gaps, duplicates and out of order rows in a candle CSV",
	Args:  cobra.ExactArgs(1),
	RunE:  runDataCheck,
}

var (
	checkInterval string
	checkVerbose  bool
)

var (
	dlSymbol   string
	dlInterval string
	dlFrom     string
	dlTo       string
	dlOutput   string
)

func init() {
	rootCmd.AddCommand(dataCmd)
	dataCmd.AddCommand(dataDownloadCmd)
	dataCmd.AddCommand(dataCheckCmd)

	dataCheckCmd.Flags().StringVar(&checkInterval, "interval", "1h", "expected kline interval")
	dataCheckCmd.Flags().BoolVarP(&checkVerbose, "verbose", "v", false, "list every gap")

	dataDownloadCmd.Flags().StringVar(&dlSymbol, "symbol", "BTCUSDT", "futures symbol")
	dataDownloadCmd.Flags().StringVar(&dlInterval, "interval", "1h", "kline interval (1m, 5m, 1h, 4h, 1d, ...)")
	dataDownloadCmd.Flags().StringVar(&dlFrom, "from", "", "start date, YYYY-MM-DD or RFC3339 (required)")
	dataDownloadCmd.Flags().StringVar(&dlTo, "to", "", "end date, exclusive (default now)")
	dataDownloadCmd.Flags().StringVarP(&dlOutput, "output", "o", "", "output CSV (default stdout)")
	dataDownloadCmd.MarkFlagRequired("from")
}

func runDataDownload(cmd *cobra.Command, args []string) error {
	if _, err := market.ParseInterval(dlInterval); err != nil {
		return err
	}
	from, err := parseDate(dlFrom)
	if err != nil {
		return fmt.Errorf("from: %w", err)
	}
	to := time.Now().UTC()
	if dlTo != "" {
		if to, err = parseDate(dlTo); err != nil {
			return fmt.Errorf("to: %w", err)
		}
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client := data.NewBinanceClient(cfg.Binance.APIKey, cfg.Binance.SecretKey, logger)

	bar := newSpinner("Downloading " + strings.ToUpper(dlSymbol))
	candles, err := client.Download(cmd.Context(), strings.ToUpper(dlSymbol), dlInterval, from, to,
		func(n int) { bar.Set(n) })
	bar.Finish()
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return err
	}

	out := os.Stdout
	if dlOutput != "" {
		f, err := os.Create(dlOutput)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}
	if err := data.WriteCandlesCSV(out, candles); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "✓ %d candles\n", len(candles))
	return nil
}

func runDataCheck(cmd *cobra.Command, args []string) error {
	interval, err := market.ParseInterval(checkInterval)
	if err != nil {
		return err
	}
	feed, err := backtest.NewCSVCandleFeed(args[0], time.Time{}, time.Time{})
	if err != nil {
		return err
	}
	defer feed.Close()

	var candles []market.Candle
	for {
		c, ok, err := feed.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		candles = append(candles, c)
	}

	gaps, s := market.FindGaps(candles, interval)
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: %d candles, %d expected, %d missing in %d gaps (%d suspicious)\n",
		args[0], s.Candles, s.Expected, s.Missing, s.GapCount, s.SuspiciousGaps)
	if s.LongestGap > 0 {
		fmt.Fprintf(out, "longest gap: %d x %s at %s\n", s.LongestGap, checkInterval, s.LongestGapAt.Format(time.RFC3339))
	}
	if s.Duplicates+s.OutOfOrder+s.Misaligned > 0 {
		fmt.Fprintf(out, "duplicates: %d  out of order: %d  misaligned: %d\n", s.Duplicates, s.OutOfOrder, s.Misaligned)
	}
	if checkVerbose {
		for _, g := range gaps {
			fmt.Fprintf(out, "  %s  %4d  %s\n", g.Start.Format(time.RFC3339), g.Missing, g.Kind)
		}
	}
	return nil
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}
