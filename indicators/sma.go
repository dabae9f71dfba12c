package indicators

import (
	"fmt"

	"github.com/rustyeddy/perptrader/market"
)

// SMA is the mean of the last n closes, kept as a running sum over a ring.
type SMA struct {
	ring []float64
	next int
	n    int
	sum  float64
}

func NewSMA(period int) *SMA {
	return &SMA{ring: make([]float64, max(period, 1))}
}

func (s *SMA) Name() string { return fmt.Sprintf("SMA(%d)", len(s.ring)) }
func (s *SMA) Warmup() int  { return len(s.ring) }
func (s *SMA) Ready() bool  { return s.n == len(s.ring) }

func (s *SMA) Update(c market.Candle) {
	if s.Ready() {
		s.sum -= s.ring[s.next]
	} else {
		s.n++
	}
	s.ring[s.next] = c.Close
	s.sum += c.Close
	s.next = (s.next + 1) % len(s.ring)
}

func (s *SMA) Value() float64 {
	if !s.Ready() {
		return 0
	}
	return s.sum / float64(len(s.ring))
}
