package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/perptrader/broker"
	"github.com/rustyeddy/perptrader/market"
	"github.com/rustyeddy/perptrader/sim"
	"github.com/rustyeddy/perptrader/strategies"
)

// Config represents a complete backtest setup.
type Config struct {
	Account  AccountConfig  `json:"account" yaml:"account"`
	Exchange ExchangeConfig `json:"exchange" yaml:"exchange"`
	Backtest BacktestConfig `json:"backtest" yaml:"backtest"`
	Strategy StrategyConfig `json:"strategy" yaml:"strategy"`
	Journal  JournalConfig  `json:"journal" yaml:"journal"`
	Binance  BinanceConfig  `json:"binance" yaml:"binance"`
}

// AccountConfig contains account initialization parameters
type AccountConfig struct {
	ID      string  `json:"id" yaml:"id"`
	Asset   string  `json:"asset" yaml:"asset"`
	Balance float64 `json:"balance" yaml:"balance"`
}

// ExchangeConfig holds the fee schedule and leverage limits.
type ExchangeConfig struct {
	MakerFee        float64 `json:"maker_fee" yaml:"maker_fee"`
	TakerFee        float64 `json:"taker_fee" yaml:"taker_fee"`
	DefaultLeverage int     `json:"default_leverage" yaml:"default_leverage"`
	MaxLeverage     int     `json:"max_leverage" yaml:"max_leverage"`

	// Instruments adds to or overrides the built-in contract table.
	Instruments []market.Instrument `json:"instruments,omitempty" yaml:"instruments,omitempty"`
}

// BacktestConfig selects the data to replay.
type BacktestConfig struct {
	Symbol     string `json:"symbol" yaml:"symbol"`
	Candles    string `json:"candles" yaml:"candles"`             // CSV path
	From       string `json:"from,omitempty" yaml:"from,omitempty"` // RFC3339 or 2006-01-02
	To         string `json:"to,omitempty" yaml:"to,omitempty"`
	CloseAtEnd bool   `json:"close_at_end" yaml:"close_at_end"`
}

// StrategyConfig contains strategy parameters
type StrategyConfig struct {
	Name          string  `json:"name" yaml:"name"` // "noop", "bracket" or "ema-cross"
	Side          string  `json:"side,omitempty" yaml:"side,omitempty"`
	Quantity      float64 `json:"quantity,omitempty" yaml:"quantity,omitempty"`
	Percent       float64 `json:"percent,omitempty" yaml:"percent,omitempty"`
	RiskPct       float64 `json:"risk_pct,omitempty" yaml:"risk_pct,omitempty"`
	TakeProfitPct float64 `json:"take_profit_pct,omitempty" yaml:"take_profit_pct,omitempty"`
	StopLossPct   float64 `json:"stop_loss_pct,omitempty" yaml:"stop_loss_pct,omitempty"`
	Leverage      int     `json:"leverage,omitempty" yaml:"leverage,omitempty"`

	FastPeriod  int     `json:"fast_period,omitempty" yaml:"fast_period,omitempty"`
	SlowPeriod  int     `json:"slow_period,omitempty" yaml:"slow_period,omitempty"`
	ATRPeriod   int     `json:"atr_period,omitempty" yaml:"atr_period,omitempty"`
	ATRMultiple float64 `json:"atr_multiple,omitempty" yaml:"atr_multiple,omitempty"`
	TrendPeriod int     `json:"trend_period,omitempty" yaml:"trend_period,omitempty"`
	RR          float64 `json:"risk_reward,omitempty" yaml:"risk_reward,omitempty"`
}

// JournalConfig contains journaling parameters
type JournalConfig struct {
	Type   string `json:"type" yaml:"type"` // "none", "csv", "sqlite" or "postgres"
	Dir    string `json:"dir,omitempty" yaml:"dir,omitempty"`
	DBPath string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
	DSN    string `json:"dsn,omitempty" yaml:"dsn,omitempty"`
}

// BinanceConfig holds API credentials for downloading klines. Public
// market data works without them.
type BinanceConfig struct {
	APIKey    string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	SecretKey string `json:"secret_key,omitempty" yaml:"secret_key,omitempty"`
}

// Environment variables read by ApplyEnv.
const (
	EnvBinanceAPIKey    = "BINANCE_API_KEY"
	EnvBinanceSecretKey = "BINANCE_SECRET_KEY"
	EnvPostgresDSN      = "PERPTRADER_PG_DSN"
)

// LoadEnv loads variables from the given .env files, or ./.env when none
// are given. A missing default file is not an error.
func LoadEnv(paths ...string) error {
	if len(paths) == 0 {
		err := godotenv.Load()
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	return godotenv.Load(paths...)
}

// ApplyEnv fills secrets that the file left empty from the environment.
func (c *Config) ApplyEnv() {
	if c.Binance.APIKey == "" {
		c.Binance.APIKey = os.Getenv(EnvBinanceAPIKey)
	}
	if c.Binance.SecretKey == "" {
		c.Binance.SecretKey = os.Getenv(EnvBinanceSecretKey)
	}
	if c.Journal.DSN == "" {
		c.Journal.DSN = os.Getenv(EnvPostgresDSN)
	}
}

// LoadFromFile loads configuration from a file (YAML or JSON)
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}

	// Try YAML first, fall back to JSON
	err = yaml.Unmarshal(data, cfg)
	if err != nil {
		err = json.Unmarshal(data, cfg)
		if err != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// SaveToFile saves configuration to a file (JSON or YAML based on extension)
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Account.Asset == "" {
		return fmt.Errorf("account.asset is required")
	}
	if c.Account.Balance <= 0 {
		return fmt.Errorf("account.balance must be positive")
	}

	if c.Exchange.MakerFee < 0 || c.Exchange.MakerFee >= 1 || c.Exchange.TakerFee < 0 || c.Exchange.TakerFee >= 1 {
		return fmt.Errorf("exchange fees must be in [0, 1)")
	}
	if c.Exchange.MaxLeverage < 1 {
		return fmt.Errorf("exchange.max_leverage must be at least 1")
	}
	if c.Exchange.DefaultLeverage < 1 || c.Exchange.DefaultLeverage > c.Exchange.MaxLeverage {
		return fmt.Errorf("exchange.default_leverage must be between 1 and max_leverage")
	}

	if c.Backtest.Symbol == "" {
		return fmt.Errorf("backtest.symbol is required")
	}
	if _, err := c.Instruments().Lookup(c.Backtest.Symbol); err != nil {
		return fmt.Errorf("backtest.symbol: %w", err)
	}
	if _, _, err := c.TimeRange(); err != nil {
		return err
	}

	switch c.Strategy.Name {
	case "noop":
	case "bracket", "ema-cross":
		if c.Strategy.Name == "bracket" {
			if _, err := broker.ParseSide(c.Strategy.Side); err != nil {
				return fmt.Errorf("strategy.side must be 'long' or 'short'")
			}
		} else if c.Strategy.FastPeriod <= 0 || c.Strategy.SlowPeriod <= c.Strategy.FastPeriod {
			return fmt.Errorf("strategy needs 0 < fast_period < slow_period")
		}
		if c.Strategy.RiskPct < 0 || c.Strategy.RiskPct > 1 {
			return fmt.Errorf("strategy.risk_pct must be in [0, 1]")
		}
		if c.Strategy.RiskPct > 0 && c.Strategy.StopLossPct <= 0 && c.Strategy.Name == "bracket" {
			return fmt.Errorf("strategy.risk_pct needs a stop_loss_pct")
		}
		if c.Strategy.Quantity <= 0 && c.Strategy.RiskPct <= 0 && (c.Strategy.Percent <= 0 || c.Strategy.Percent > 1) {
			return fmt.Errorf("strategy needs a positive quantity or a percent in (0, 1]")
		}
		if c.Strategy.TakeProfitPct < 0 || c.Strategy.TakeProfitPct >= 1 || c.Strategy.StopLossPct < 0 || c.Strategy.StopLossPct >= 1 {
			return fmt.Errorf("strategy take_profit_pct and stop_loss_pct must be in [0, 1)")
		}
		if c.Strategy.Leverage < 0 || c.Strategy.Leverage > c.Exchange.MaxLeverage {
			return fmt.Errorf("strategy.leverage must be between 1 and max_leverage")
		}
	default:
		return fmt.Errorf("strategy.name must be 'noop', 'bracket' or 'ema-cross'")
	}

	switch c.Journal.Type {
	case "", "none":
	case "csv":
		if c.Journal.Dir == "" {
			return fmt.Errorf("journal dir required for CSV type")
		}
	case "sqlite":
		if c.Journal.DBPath == "" {
			return fmt.Errorf("journal db_path required for SQLite type")
		}
	case "postgres":
		if c.Journal.DSN == "" {
			return fmt.Errorf("journal dsn (or %s) required for Postgres type", EnvPostgresDSN)
		}
	default:
		return fmt.Errorf("journal.type must be 'none', 'csv', 'sqlite' or 'postgres'")
	}
	return nil
}

// Instruments is the built-in table with the configured overrides applied.
func (c *Config) Instruments() market.Instruments {
	m := market.DefaultInstruments()
	for _, inst := range c.Exchange.Instruments {
		inst.Symbol = strings.ToUpper(inst.Symbol)
		m[inst.Symbol] = inst
	}
	return m
}

// TimeRange parses backtest.from and backtest.to. Zero values mean open
// ended.
func (c *Config) TimeRange() (from, to time.Time, err error) {
	if from, err = parseTime(c.Backtest.From); err != nil {
		return from, to, fmt.Errorf("backtest.from: %w", err)
	}
	if to, err = parseTime(c.Backtest.To); err != nil {
		return from, to, fmt.Errorf("backtest.to: %w", err)
	}
	if !from.IsZero() && !to.IsZero() && !to.After(from) {
		return from, to, fmt.Errorf("backtest.to must be after backtest.from")
	}
	return from, to, nil
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

// EngineConfig builds the exchange configuration.
func (c *Config) EngineConfig(logger *slog.Logger) sim.Config {
	cfg := sim.DefaultConfig()
	cfg.Asset = c.Account.Asset
	cfg.StartingBalance = c.Account.Balance
	cfg.MakerFee = c.Exchange.MakerFee
	cfg.TakerFee = c.Exchange.TakerFee
	cfg.DefaultLeverage = c.Exchange.DefaultLeverage
	cfg.MaxLeverage = c.Exchange.MaxLeverage
	cfg.Instruments = c.Instruments()
	cfg.Logger = logger
	if from, _, err := c.TimeRange(); err == nil {
		cfg.StartTime = from
	}
	return cfg
}

// NewStrategy builds the configured strategy.
func (c *Config) NewStrategy() (strategies.Strategy, error) {
	p := strategies.Params{
		Quantity:      c.Strategy.Quantity,
		Percent:       c.Strategy.Percent,
		RiskPct:       c.Strategy.RiskPct,
		Asset:         c.Account.Asset,
		TakeProfitPct: c.Strategy.TakeProfitPct,
		StopLossPct:   c.Strategy.StopLossPct,
		Leverage:      c.Strategy.Leverage,
		FastPeriod:    c.Strategy.FastPeriod,
		SlowPeriod:    c.Strategy.SlowPeriod,
		ATRPeriod:     c.Strategy.ATRPeriod,
		ATRMultiple:   c.Strategy.ATRMultiple,
		TrendPeriod:   c.Strategy.TrendPeriod,
		RR:            c.Strategy.RR,
	}
	if c.Strategy.Side != "" {
		side, err := broker.ParseSide(c.Strategy.Side)
		if err != nil {
			return nil, err
		}
		p.Side = side
	}
	return strategies.ByName(c.Strategy.Name, p)
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Account: AccountConfig{
			ID:      "SIM-001",
			Asset:   "USDT",
			Balance: 10000,
		},
		Exchange: ExchangeConfig{
			MakerFee:        0.0002,
			TakerFee:        0.0004,
			DefaultLeverage: 1,
			MaxLeverage:     125,
		},
		Backtest: BacktestConfig{
			Symbol:     "BTCUSDT",
			Candles:    "./data/BTCUSDT-1h.csv",
			CloseAtEnd: true,
		},
		Strategy: StrategyConfig{
			Name:          "bracket",
			Side:          "long",
			Percent:       0.1,
			TakeProfitPct: 0.02,
			StopLossPct:   0.01,
			Leverage:      3,
		},
		Journal: JournalConfig{
			Type: "csv",
			Dir:  "./journal",
		},
	}
}
