package market

import (
	"fmt"
	"strconv"
	"time"
)

// ParseInterval maps a kline interval such as "15m", "4h", "1d" or "1w" to
// its duration.
func ParseInterval(s string) (time.Duration, error) {
	if len(s) < 2 {
		return 0, fmt.Errorf("unsupported interval: %q", s)
	}
	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("unsupported interval: %q", s)
	}
	unit := map[byte]time.Duration{
		'm': time.Minute,
		'h': time.Hour,
		'd': 24 * time.Hour,
		'w': 7 * 24 * time.Hour,
	}[s[len(s)-1]]
	if unit == 0 {
		return 0, fmt.Errorf("unsupported interval: %q", s)
	}
	return time.Duration(n) * unit, nil
}

// Gap is a run of missing candles.
type Gap struct {
	Start   time.Time // open time of the first missing candle
	Missing int       // number of missing intervals
	Kind    string    // "minor" for a single candle, else "suspicious"
}

type GapStats struct {
	Candles        int
	Expected       int
	Missing        int
	GapCount       int
	SuspiciousGaps int
	LongestGap     int
	LongestGapAt   time.Time

	// Duplicates and out of order candles are not counted as present.
	Duplicates int
	OutOfOrder int
	Misaligned int
}

// FindGaps scans candles that should be interval apart. Perpetuals trade
// around the clock, so every missing interval is a gap.
func FindGaps(candles []Candle, interval time.Duration) ([]Gap, GapStats) {
	var (
		gaps []Gap
		s    GapStats
	)
	s.Candles = len(candles)
	if len(candles) == 0 || interval <= 0 {
		return nil, s
	}

	prev := candles[0].Time
	if prev.Truncate(interval) != prev {
		s.Misaligned++
	}
	for _, c := range candles[1:] {
		switch {
		case c.Time.Equal(prev):
			s.Duplicates++
			continue
		case c.Time.Before(prev):
			s.OutOfOrder++
			continue
		}
		if c.Time.Truncate(interval) != c.Time {
			s.Misaligned++
		}

		missing := int(c.Time.Sub(prev)/interval) - 1
		if missing > 0 {
			kind := "minor"
			if missing > 1 {
				kind = "suspicious"
				s.SuspiciousGaps++
			}
			gaps = append(gaps, Gap{Start: prev.Add(interval), Missing: missing, Kind: kind})
			s.GapCount++
			s.Missing += missing
			if missing > s.LongestGap {
				s.LongestGap = missing
				s.LongestGapAt = prev.Add(interval)
			}
		}
		prev = c.Time
	}
	s.Expected = int(prev.Sub(candles[0].Time)/interval) + 1
	return gaps, s
}
