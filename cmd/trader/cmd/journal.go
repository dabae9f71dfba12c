package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/perptrader/journal"
	"github.com/rustyeddy/perptrader/market"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Query journal data",
	Long: `Query and display journal records.

Subcommands:
  summary    - Trades, wins, losses, liquidations, fees and net P/L
  positions  - Closed positions, optionally for one symbol
  day        - Positions closed on a specific day
  fills      - Executed orders of a symbol
  balances   - Balance history of an asset
  run        - A recorded backtest run as org-mode

Examples:
  trader journal summary --db ./perptrader.sqlite
  trader journal summary --dsn postgres://localhost/perptrader
  trader journal positions --symbol BTCUSDT
  trader journal day 2024-01-15
  trader journal fills BTCUSDT
  trader journal balances USDT
  trader journal run 01HN3...`,
}

var journalSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Summarize closed positions",
	Args:  cobra.NoArgs,
	RunE:  runJournalSummary,
}

var journalPositionsCmd = &cobra.Command{
	Use:   "positions",
	Short: "List closed positions",
	Args:  cobra.NoArgs,
	RunE:  runJournalPositions,
}

var journalDayCmd = &cobra.Command{
	Use:   "day <YYYY-MM-DD>",
	Short: "List positions closed on a specific day (UTC)",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalDay,
}

var journalFillsCmd = &cobra.Command{
	Use:   "fills <symbol>",
	Short: "List fills of a symbol",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalFills,
}

var journalBalancesCmd = &cobra.Command{
	Use:   "balances <asset>",
	Short: "List the balance history of an asset",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalBalances,
}

var journalRunCmd = &cobra.Command{
	Use:   "run <run-id>",
	Short: "Print a recorded backtest run",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalRun,
}

var (
	journalDBPath string
	journalDSN    string
	journalSymbol string
)

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalSummaryCmd)
	journalCmd.AddCommand(journalPositionsCmd)
	journalCmd.AddCommand(journalDayCmd)
	journalCmd.AddCommand(journalRunCmd)
	journalCmd.AddCommand(journalFillsCmd)
	journalCmd.AddCommand(journalBalancesCmd)

	journalCmd.PersistentFlags().StringVarP(&journalDBPath, "db", "d", "./perptrader.sqlite", "path to SQLite journal DB")
	journalSummaryCmd.Flags().StringVar(&journalDSN, "dsn", "", "read from Postgres instead of SQLite")
	journalPositionsCmd.Flags().StringVar(&journalSymbol, "symbol", "", "only this symbol")
}

func runJournalSummary(cmd *cobra.Command, args []string) error {
	s, err := loadSummary(cmd)
	if err != nil {
		return err
	}

	fmt.Printf("Trades:        %d\n", s.Trades)
	fmt.Printf("Wins:          %d\n", s.Wins)
	fmt.Printf("Losses:        %d\n", s.Losses)
	fmt.Printf("Liquidations:  %d\n", s.Liquidations)
	fmt.Printf("Win Rate:      %.2f%%\n", s.WinRate()*100)
	fmt.Printf("Fees:          %.4f\n", s.Fees)
	fmt.Printf("Net P/L:       %.4f\n", s.Net)
	return nil
}

func loadSummary(cmd *cobra.Command) (journal.Summary, error) {
	if journalDSN != "" {
		pg, err := journal.NewPostgres(cmd.Context(), journalDSN)
		if err != nil {
			return journal.Summary{}, fmt.Errorf("open postgres: %w", err)
		}
		defer pg.Close()
		return pg.Summary(cmd.Context())
	}

	j, err := journal.NewSQLite(journalDBPath)
	if err != nil {
		return journal.Summary{}, fmt.Errorf("open db: %w", err)
	}
	defer j.Close()
	return j.Summary()
}

func runJournalPositions(cmd *cobra.Command, args []string) error {
	j, err := journal.NewSQLite(journalDBPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer j.Close()

	recs, err := j.ListPositions(journalSymbol)
	if err != nil {
		return fmt.Errorf("query positions: %w", err)
	}
	return printPositions(cmd, recs)
}

func runJournalDay(cmd *cobra.Command, args []string) error {
	j, err := journal.NewSQLite(journalDBPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer j.Close()

	start, err := time.ParseInLocation("2006-01-02", args[0], time.UTC)
	if err != nil {
		return fmt.Errorf("date: %w", err)
	}
	recs, err := j.ListPositionsClosedBetween(start, start.AddDate(0, 0, 1))
	if err != nil {
		return fmt.Errorf("query positions: %w", err)
	}
	return printPositions(cmd, recs)
}

func runJournalRun(cmd *cobra.Command, args []string) error {
	j, err := journal.NewSQLite(journalDBPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer j.Close()

	run, err := j.GetRun(args[0])
	if err != nil {
		return err
	}
	b, err := run.RenderOrg()
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(b)
	return err
}

func runJournalFills(cmd *cobra.Command, args []string) error {
	j, err := journal.NewSQLite(journalDBPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer j.Close()

	fills, err := j.ListFills(strings.ToUpper(args[0]))
	if err != nil {
		return fmt.Errorf("query fills: %w", err)
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tORDER\tSIDE\tTYPE\tROLE\tQTY\tPRICE\tFEE\tREALIZED")
	for _, f := range fills {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%.4f\t%.4f\n",
			f.Time.UTC().Format(time.RFC3339), f.OrderID, f.Side, f.Type, f.Role,
			formatQuantity(f.Symbol, f.Quantity), formatPrice(f.Symbol, f.Price), f.Fee, f.Realized)
	}
	return w.Flush()
}

func runJournalBalances(cmd *cobra.Command, args []string) error {
	j, err := journal.NewSQLite(journalDBPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer j.Close()

	bals, err := j.ListBalances(strings.ToUpper(args[0]))
	if err != nil {
		return fmt.Errorf("query balances: %w", err)
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tASSET\tTOTAL\tAVAILABLE")
	for _, b := range bals {
		fmt.Fprintf(w, "%s\t%s\t%.4f\t%.4f\n", b.Time.UTC().Format(time.RFC3339), b.Asset, b.Total, b.Available)
	}
	return w.Flush()
}

func printPositions(cmd *cobra.Command, recs []journal.PositionRecord) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CLOSED\tSYMBOL\tSIDE\tQTY\tENTRY\tCLOSE\tLEV\tFEES\tNET\tLIQ")
	for _, p := range recs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%dx\t%.4f\t%.4f\t%t\n",
			p.ClosedAt.UTC().Format(time.RFC3339), p.Symbol, p.Side, formatQuantity(p.Symbol, p.Quantity),
			formatPrice(p.Symbol, p.EntryPrice), formatPrice(p.Symbol, p.ClosePrice),
			p.Leverage, p.Fees, p.RealizedProfit, p.Liquidated)
	}
	return w.Flush()
}

var instruments = market.DefaultInstruments()

// formatPrice prints at the contract's tick precision, or %g for symbols
// without one.
func formatPrice(symbol string, x float64) string {
	inst, err := instruments.Lookup(symbol)
	if err != nil {
		return strconv.FormatFloat(x, 'g', -1, 64)
	}
	return inst.FormatPrice(x)
}

func formatQuantity(symbol string, x float64) string {
	inst, err := instruments.Lookup(symbol)
	if err != nil {
		return strconv.FormatFloat(x, 'g', -1, 64)
	}
	return inst.FormatQuantity(x)
}
