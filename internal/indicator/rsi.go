package indicator

import (
	"fmt"

	"signalperf/internal/model"
)

// RSI calculates the Relative Strength Index using Wilder's smoothing method.
// Update is O(1) per value, no history scans.
type RSI struct {
	period    int
	count     int
	prevClose float64
	avgGain   float64
	avgLoss   float64
	current   float64
}

// NewRSI creates a streaming RSI with the given period (typically 14).
func NewRSI(period int) *RSI {
	return &RSI{period: period}
}

func (r *RSI) Update(price float64) {
	r.count++

	if r.count == 1 {
		// First value: just record price, no delta yet
		r.prevClose = price
		return
	}

	gain, loss := splitDelta(price - r.prevClose)
	r.prevClose = price

	if r.count <= r.period+1 {
		// Accumulation phase: build initial averages
		r.avgGain += gain
		r.avgLoss += loss

		if r.count == r.period+1 {
			r.avgGain /= float64(r.period)
			r.avgLoss /= float64(r.period)
			r.current = rsiValue(r.avgGain, r.avgLoss)
		}
		return
	}

	p := float64(r.period)
	r.avgGain = (r.avgGain*(p-1) + gain) / p
	r.avgLoss = (r.avgLoss*(p-1) + loss) / p
	r.current = rsiValue(r.avgGain, r.avgLoss)
}

func (r *RSI) Value() float64 { return r.current }
func (r *RSI) Ready() bool    { return r.count > r.period }

// Reset clears the RSI state for reuse.
func (r *RSI) Reset() {
	r.count = 0
	r.prevClose = 0
	r.avgGain = 0
	r.avgLoss = 0
	r.current = 0
}

func splitDelta(delta float64) (gain, loss float64) {
	if delta > 0 {
		return delta, 0
	}
	return 0, -delta
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100.0
	}
	rs := avgGain / avgLoss
	return 100.0 - (100.0 / (1.0 + rs))
}

// RSIOscillator signals on threshold crossings of the RSI:
// BUY when RSI crosses up through oversold, SELL when it crosses down
// through overbought. Levels are the rolling high/low over the period.
type RSIOscillator struct {
	period               int
	overbought, oversold float64
}

// NewRSIOscillator validates period >= 1 and oversold < overbought.
func NewRSIOscillator(period int, overbought, oversold float64) (*RSIOscillator, error) {
	if err := requirePositive("RSI", []string{"period"}, period); err != nil {
		return nil, err
	}
	if oversold >= overbought {
		return nil, fmt.Errorf("RSI: oversold (%g) must be < overbought (%g): %w", oversold, overbought, ErrInvalidParam)
	}
	return &RSIOscillator{period: period, overbought: overbought, oversold: oversold}, nil
}

func (o *RSIOscillator) Name() string { return "RSI" }

func (o *RSIOscillator) Compute(s *model.PriceSeries) (*model.Frame, error) {
	n := s.Len()
	if n <= o.period {
		return undefinedFrame(s, o.Name(), "rsi"), nil
	}
	rsi := runSeries(NewRSI(o.period), s.Closes())
	f := model.NewFrame(s, o.Name())
	thresholdSignals(f.Direction, rsi, o.overbought, o.oversold)
	f.SetLevels(Highest(s.Highs(), o.period), Lowest(s.Lows(), o.period))
	f.AddColumn("rsi", rsi)
	return f, nil
}

// thresholdSignals marks BUY where osc crosses up through oversold and
// SELL where it crosses down through overbought.
func thresholdSignals(dir []model.Signal, osc []float64, overbought, oversold float64) {
	for i := 1; i < len(osc); i++ {
		prev, cur := osc[i-1], osc[i]
		if !defined(prev, cur) {
			continue
		}
		switch {
		case prev <= oversold && cur > oversold:
			dir[i] = model.Buy
		case prev >= overbought && cur < overbought:
			dir[i] = model.Sell
		}
	}
}
