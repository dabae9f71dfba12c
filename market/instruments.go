package market

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Instrument describes a USDⓈ-margined perpetual contract.
type Instrument struct {
	Symbol            string  `json:"symbol" yaml:"symbol"`
	BaseAsset         string  `json:"base_asset" yaml:"base_asset"`
	QuoteAsset        string  `json:"quote_asset" yaml:"quote_asset"`
	PricePrecision    int32   `json:"price_precision" yaml:"price_precision"`
	QuantityPrecision int32   `json:"quantity_precision" yaml:"quantity_precision"`
	MinQuantity       float64 `json:"min_quantity" yaml:"min_quantity"`
	MaxLeverage       int     `json:"max_leverage" yaml:"max_leverage"`
}

// FloorQuantity truncates toward zero so a sized order never exceeds what
// was budgeted for it.
func (i Instrument) FloorQuantity(x float64) float64 {
	f, _ := decimal.NewFromFloat(x).Truncate(i.QuantityPrecision).Float64()
	return f
}

// FormatPrice renders x at the instrument's tick precision. Presentation
// only: the exchange engine keeps full precision.
func (i Instrument) FormatPrice(x float64) string {
	return decimal.NewFromFloat(x).StringFixed(i.PricePrecision)
}

func (i Instrument) FormatQuantity(x float64) string {
	return decimal.NewFromFloat(x).StringFixed(i.QuantityPrecision)
}

// Instruments maps symbol to contract metadata.
type Instruments map[string]Instrument

// DefaultInstruments returns a fresh copy of the built-in contract table.
func DefaultInstruments() Instruments {
	return Instruments{
		"BTCUSDT": {
			Symbol: "BTCUSDT", BaseAsset: "BTC", QuoteAsset: "USDT",
			PricePrecision: 1, QuantityPrecision: 3, MinQuantity: 0.001, MaxLeverage: 125,
		},
		"ETHUSDT": {
			Symbol: "ETHUSDT", BaseAsset: "ETH", QuoteAsset: "USDT",
			PricePrecision: 2, QuantityPrecision: 3, MinQuantity: 0.001, MaxLeverage: 100,
		},
		"SOLUSDT": {
			Symbol: "SOLUSDT", BaseAsset: "SOL", QuoteAsset: "USDT",
			PricePrecision: 3, QuantityPrecision: 0, MinQuantity: 1, MaxLeverage: 50,
		},
		"BNBUSDT": {
			Symbol: "BNBUSDT", BaseAsset: "BNB", QuoteAsset: "USDT",
			PricePrecision: 2, QuantityPrecision: 2, MinQuantity: 0.01, MaxLeverage: 75,
		},
		"XRPUSDT": {
			Symbol: "XRPUSDT", BaseAsset: "XRP", QuoteAsset: "USDT",
			PricePrecision: 4, QuantityPrecision: 1, MinQuantity: 0.1, MaxLeverage: 75,
		},
	}
}

// Lookup finds an instrument by symbol, case-insensitively.
func (m Instruments) Lookup(symbol string) (Instrument, error) {
	inst, ok := m[strings.ToUpper(strings.TrimSpace(symbol))]
	if !ok {
		return Instrument{}, fmt.Errorf("unknown instrument: %q", symbol)
	}
	return inst, nil
}
