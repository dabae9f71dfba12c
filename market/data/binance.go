package data

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/rustyeddy/perptrader/market"
)

// MaxKlinesPerRequest is the largest page the futures klines endpoint serves.
const MaxKlinesPerRequest = 1500

type klineFetcher func(ctx context.Context, symbol, interval string, start, end int64, limit int) ([]*futures.Kline, error)

// BinanceClient downloads USDⓈ-M futures klines.
type BinanceClient struct {
	client      *futures.Client
	rateLimiter *rate.Limiter
	fetch       klineFetcher
	log         *slog.Logger

	MaxRetries int
	Backoff    time.Duration
	PageSize   int
}

// NewBinanceClient creates a client. Public market data needs no keys, so
// both may be empty.
func NewBinanceClient(apiKey, secretKey string, logger *slog.Logger) *BinanceClient {
	httpClient := &http.Client{
		Timeout: time.Second * 10,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 100,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	futuresClient := futures.NewClient(apiKey, secretKey)
	futuresClient.HTTPClient = httpClient

	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	c := &BinanceClient{
		client: futuresClient,
		// 10 requests per second with burst of 20
		rateLimiter: rate.NewLimiter(rate.Limit(10), 20),
		log:         logger,
		MaxRetries:  3,
		Backoff:     100 * time.Millisecond,
		PageSize:    MaxKlinesPerRequest,
	}
	c.fetch = c.doFetch
	return c
}

func (c *BinanceClient) doFetch(ctx context.Context, symbol, interval string, start, end int64, limit int) ([]*futures.Kline, error) {
	return c.client.NewKlinesService().
		Symbol(symbol).
		Interval(interval).
		StartTime(start).
		EndTime(end).
		Limit(limit).
		Do(ctx)
}

// GetKlines fetches one page, retrying with exponential backoff.
func (c *BinanceClient) GetKlines(ctx context.Context, symbol, interval string, start, end int64) ([]*futures.Kline, error) {
	var lastErr error
	for attempt := 0; attempt <= c.MaxRetries; attempt++ {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, err
		}

		klines, err := c.fetch(ctx, symbol, interval, start, end, c.PageSize)
		if err == nil {
			return klines, nil
		}
		lastErr = err
		if attempt == c.MaxRetries {
			break
		}

		waitTime := time.Duration(math.Pow(2, float64(attempt))) * c.Backoff
		c.log.Warn("klines request failed, retrying",
			"symbol", symbol, "interval", interval, "attempt", attempt+1, "wait", waitTime, "error", err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(waitTime):
		}
	}
	return nil, fmt.Errorf("klines %s %s: %w", symbol, interval, lastErr)
}

// Download pages through [from, to) and returns the candles in time order.
// Progress, when set, is called with the candle count after every page.
func (c *BinanceClient) Download(ctx context.Context, symbol, interval string, from, to time.Time, progress func(n int)) ([]market.Candle, error) {
	if !to.After(from) {
		return nil, fmt.Errorf("download %s: end %s is not after start %s", symbol,
			to.Format(time.RFC3339), from.Format(time.RFC3339))
	}
	start, end := from.UnixMilli(), to.UnixMilli()-1

	var out []market.Candle
	for start <= end {
		klines, err := c.GetKlines(ctx, symbol, interval, start, end)
		if err != nil {
			return nil, err
		}
		if len(klines) == 0 {
			break
		}
		for _, k := range klines {
			if k.OpenTime < start || k.OpenTime > end {
				continue
			}
			candle, err := KlineToCandle(k)
			if err != nil {
				return nil, err
			}
			out = append(out, candle)
		}
		if progress != nil {
			progress(len(out))
		}

		last := klines[len(klines)-1]
		if len(klines) < c.PageSize || last.CloseTime >= end {
			break
		}
		start = last.OpenTime + 1
	}
	c.log.Info("downloaded klines", "symbol", symbol, "interval", interval, "candles", len(out))
	return out, nil
}

// KlineToCandle converts the exchange's string encoded kline.
func KlineToCandle(k *futures.Kline) (market.Candle, error) {
	c := market.Candle{Time: time.UnixMilli(k.OpenTime).UTC()}
	fields := []struct {
		name string
		s    string
		dst  *float64
	}{
		{"open", k.Open, &c.Open},
		{"high", k.High, &c.High},
		{"low", k.Low, &c.Low},
		{"close", k.Close, &c.Close},
		{"volume", k.Volume, &c.Volume},
	}
	for _, f := range fields {
		v, err := strconv.ParseFloat(f.s, 64)
		if err != nil {
			return market.Candle{}, fmt.Errorf("kline %d: bad %s %q: %w", k.OpenTime, f.name, f.s, err)
		}
		*f.dst = v
	}
	return c, nil
}

// WriteCandlesCSV writes candles in the layout the backtest feed reads.
func WriteCandlesCSV(w io.Writer, candles []market.Candle) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"time", "open", "high", "low", "close", "volume"}); err != nil {
		return err
	}
	for _, c := range candles {
		rec := []string{
			c.Time.UTC().Format(time.RFC3339),
			decimal.NewFromFloat(c.Open).String(),
			decimal.NewFromFloat(c.High).String(),
			decimal.NewFromFloat(c.Low).String(),
			decimal.NewFromFloat(c.Close).String(),
			decimal.NewFromFloat(c.Volume).String(),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
