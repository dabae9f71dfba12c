package backtest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rustyeddy/perptrader/market"
)

// CandleFeed yields candles one at a time in time order.
// Implementations return (ok=false, err=nil) at EOF.
type CandleFeed interface {
	Next() (c market.Candle, ok bool, err error)
	Close() error
}

// CSVCandleFeed reads candle CSV rows:
//
//	time,open,high,low,close[,volume]
//
// where time is RFC3339, RFC3339Nano or unix milliseconds.
//
// It optionally filters candles to [From, To) if provided.
// A header row ("time,..." or "open_time,...") is allowed.
// Empty/short rows are skipped.
type CSVCandleFeed struct {
	f    *os.File
	r    *csv.Reader
	from time.Time
	to   time.Time

	sawFirst bool
}

func NewCSVCandleFeed(path string, from, to time.Time) (*CSVCandleFeed, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.ReuseRecord = true

	return &CSVCandleFeed{f: f, r: r, from: from, to: to}, nil
}

func (f *CSVCandleFeed) Close() error {
	if f.f != nil {
		return f.f.Close()
	}
	return nil
}

func (f *CSVCandleFeed) Next() (market.Candle, bool, error) {
	for {
		row, err := f.r.Read()
		if err == io.EOF {
			return market.Candle{}, false, nil
		}
		if err != nil {
			return market.Candle{}, false, err
		}
		if len(row) == 0 {
			continue
		}

		// Allow a single header row
		if !f.sawFirst {
			f.sawFirst = true
			head := strings.ToLower(strings.TrimSpace(row[0]))
			if head == "time" || head == "open_time" || head == "timestamp" {
				continue
			}
		}

		c, ok, err := parseCandleRow(row)
		if err != nil {
			line, _ := f.r.FieldPos(0)
			return market.Candle{}, false, fmt.Errorf("line %d: %w", line, err)
		}
		if !ok {
			continue
		}
		if !inRange(c.Time, f.from, f.to) {
			continue
		}
		return c, true, nil
	}
}

func parseCandleRow(row []string) (market.Candle, bool, error) {
	// Need at least: time,open,high,low,close
	if len(row) < 5 {
		return market.Candle{}, false, nil
	}

	ts := strings.TrimSpace(row[0])
	if ts == "" {
		return market.Candle{}, false, nil
	}
	t, err := parseTime(ts)
	if err != nil {
		return market.Candle{}, false, err
	}

	names := [...]string{"open", "high", "low", "close", "volume"}
	var v [5]float64
	for i := range names {
		if i+1 >= len(row) {
			break
		}
		s := strings.TrimSpace(row[i+1])
		if s == "" && names[i] == "volume" {
			break
		}
		x, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return market.Candle{}, false, fmt.Errorf("bad %s %q: %w", names[i], row[i+1], err)
		}
		v[i] = x
	}

	return market.Candle{
		Time:   t,
		Open:   v[0],
		High:   v[1],
		Low:    v[2],
		Close:  v[3],
		Volume: v[4],
	}, true, nil
}

// parseTime accepts RFC3339, RFC3339Nano or integer unix milliseconds.
func parseTime(s string) (time.Time, error) {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t2, err2 := time.Parse(time.RFC3339Nano, s)
		if err2 != nil {
			return time.Time{}, fmt.Errorf("bad time %q: %w", s, err)
		}
		t = t2
	}
	return t, nil
}

func inRange(t, from, to time.Time) bool {
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !to.IsZero() && !t.Before(to) {
		return false
	}
	return true
}

// SliceFeed replays candles held in memory.
type SliceFeed struct {
	Candles []market.Candle

	i      int
	closed bool
}

func NewSliceFeed(candles []market.Candle) *SliceFeed {
	return &SliceFeed{Candles: candles}
}

func (f *SliceFeed) Next() (market.Candle, bool, error) {
	if f.closed || f.i >= len(f.Candles) {
		return market.Candle{}, false, nil
	}
	c := f.Candles[f.i]
	f.i++
	return c, true, nil
}

func (f *SliceFeed) Close() error {
	f.closed = true
	return nil
}
