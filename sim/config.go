package sim

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/rustyeddy/perptrader/market"
)

// Config holds everything the engine needs. There are no package level
// settings.
type Config struct {
	Asset           string
	StartingBalance float64

	MakerFee float64 // e.g. 0.0002
	TakerFee float64 // e.g. 0.0004

	DefaultLeverage int
	MaxLeverage     int

	Instruments market.Instruments
	Logger      *slog.Logger

	// IDSeed makes order IDs reproducible. Zero uses crypto/rand.
	IDSeed int64
	// StartTime stamps the initial balance and orders placed before the
	// first candle.
	StartTime time.Time
}

func DefaultConfig() Config {
	return Config{
		Asset:           "USDT",
		StartingBalance: 1000,
		MakerFee:        0.0002,
		TakerFee:        0.0004,
		DefaultLeverage: 1,
		MaxLeverage:     125,
		Instruments:     market.DefaultInstruments(),
	}
}

func (c Config) Validate() error {
	if c.Asset == "" {
		return fmt.Errorf("config: asset is required")
	}
	if c.StartingBalance < 0 {
		return fmt.Errorf("config: starting balance must be >= 0, got %g", c.StartingBalance)
	}
	if c.MakerFee < 0 || c.MakerFee >= 1 || c.TakerFee < 0 || c.TakerFee >= 1 {
		return fmt.Errorf("config: fees must be in [0,1), got maker=%g taker=%g", c.MakerFee, c.TakerFee)
	}
	if c.MaxLeverage < 1 {
		return fmt.Errorf("config: max leverage must be >= 1, got %d", c.MaxLeverage)
	}
	if c.DefaultLeverage < 1 || c.DefaultLeverage > c.MaxLeverage {
		return fmt.Errorf("config: default leverage %d outside [1, %d]", c.DefaultLeverage, c.MaxLeverage)
	}
	if len(c.Instruments) == 0 {
		return fmt.Errorf("config: no instruments")
	}
	return nil
}

func (c Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.New(slog.DiscardHandler)
}
