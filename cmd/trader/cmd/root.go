package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/perptrader/config"
)

var (
	cfgPath  string
	envPath  string
	logLevel string

	logger = slog.New(slog.DiscardHandler)
)

var rootCmd = &cobra.Command{
	Use:   "trader",
	Short: "A leveraged perpetual futures backtesting exchange",
	Long: `Trader replays OHLCV candles through a simulated USDⓈ-M futures exchange.

It provides tools for:
  - Backtesting strategies with market, limit, stop and bracket orders
  - Leverage, margin, maker/taker fees and liquidation
  - Journaling fills, positions and balances to CSV, SQLite or Postgres
  - Downloading klines from Binance`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var level slog.Level
		if err := level.UnmarshalText([]byte(strings.ToUpper(logLevel))); err != nil {
			return fmt.Errorf("log-level: %w", err)
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

		if envPath != "" {
			return config.LoadEnv(envPath)
		}
		return config.LoadEnv()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (YAML or JSON); defaults apply when empty")
	rootCmd.PersistentFlags().StringVar(&envPath, "env", "", ".env file to load (default ./.env when present)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level: debug|info|warn|error")
}

// loadConfig reads --config, or the defaults with the environment applied.
func loadConfig() (*config.Config, error) {
	if cfgPath != "" {
		return config.LoadFromFile(cfgPath)
	}
	cfg := config.Default()
	cfg.ApplyEnv()
	return cfg, nil
}
