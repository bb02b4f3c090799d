package indicator

import (
	"fmt"
	"math"

	"signalperf/internal/model"
)

// MACD is the dual-EMA divergence calculator.
//
// line   = EMA(close, fast) - EMA(close, slow), defined from bar slow-1
// signal = EMA(line, signal),                   defined from bar slow+signal-2
//
// BUY on a strict upward crossing of line over signal, SELL on a strict
// downward crossing. Levels are the rolling high/low over the slow window.
type MACD struct {
	fast, slow, signal int
}

// NewMACD validates periods: all >= 1 and fast < slow.
func NewMACD(fast, slow, signal int) (*MACD, error) {
	if err := requirePositive("MACD", []string{"fast", "slow", "signal"}, fast, slow, signal); err != nil {
		return nil, err
	}
	if fast >= slow {
		return nil, fmt.Errorf("MACD: fast (%d) must be < slow (%d): %w", fast, slow, ErrInvalidParam)
	}
	return &MACD{fast: fast, slow: slow, signal: signal}, nil
}

func (m *MACD) Name() string { return "MACD" }

// Lookback returns the minimum series length that yields a signal line value.
func (m *MACD) Lookback() int { return m.slow + m.signal - 1 }

func (m *MACD) Compute(s *model.PriceSeries) (*model.Frame, error) {
	n := s.Len()
	if n < m.slow+m.signal {
		return undefinedFrame(s, m.Name(), "macd", "signal", "histogram"), nil
	}

	closes := s.Closes()
	fastEMA := Smooth(closes, KFromPeriod(m.fast), SeedFirst)
	slowEMA := Smooth(closes, KFromPeriod(m.slow), SeedFirst)

	line := model.NaNs(n)
	for i := m.slow - 1; i < n; i++ {
		line[i] = fastEMA[i] - slowEMA[i]
	}
	sig := Smooth(line, KFromPeriod(m.signal), SeedFirst)
	hist := model.NaNs(n)
	for i := 0; i < n; i++ {
		if i < m.slow+m.signal-2 {
			sig[i] = math.NaN()
			continue
		}
		hist[i] = line[i] - sig[i]
	}

	f := model.NewFrame(s, m.Name())
	for i := 1; i < n; i++ {
		switch {
		case crossAbove(line, sig, i):
			f.Direction[i] = model.Buy
		case crossBelow(line, sig, i):
			f.Direction[i] = model.Sell
		}
	}
	f.SetLevels(Highest(s.Highs(), m.slow), Lowest(s.Lows(), m.slow))
	f.AddColumn("macd", line)
	f.AddColumn("signal", sig)
	f.AddColumn("histogram", hist)
	return f, nil
}
