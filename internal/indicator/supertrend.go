package indicator

import (
	"fmt"

	"signalperf/internal/model"
)

// SuperTrend follows an ATR band around the bar midpoint.
//
// The lower band only rises while the trend is up and the upper band only
// falls while the trend is down. A close through the active band flips the
// trend; the newly active band restarts from this bar's basic band.
type SuperTrend struct {
	period     int
	multiplier float64
	band       float64 // level band, percent
}

// NewSuperTrend validates period >= 1 and multiplier > 0.
func NewSuperTrend(period int, multiplier, band float64) (*SuperTrend, error) {
	if err := requirePositive("SuperTrend", []string{"period"}, period); err != nil {
		return nil, err
	}
	if multiplier <= 0 || band < 0 {
		return nil, fmt.Errorf("SuperTrend: multiplier (%g) must be > 0 and band (%g) >= 0: %w", multiplier, band, ErrInvalidParam)
	}
	return &SuperTrend{period: period, multiplier: multiplier, band: band}, nil
}

func (t *SuperTrend) Name() string { return "SuperTrend" }

func (t *SuperTrend) Compute(s *model.PriceSeries) (*model.Frame, error) {
	n := s.Len()
	if n < t.period+1 {
		return undefinedFrame(s, t.Name(), "supertrend", "trend", "atr"), nil
	}
	high, low, closes := s.Highs(), s.Lows(), s.Closes()
	atr := ATR(high, low, closes, t.period)

	stop := model.NaNs(n)
	trend := model.NaNs(n)
	f := model.NewFrame(s, t.Name())

	var upper, lower float64
	up := true
	started := false
	for i := 0; i < n; i++ {
		if atr[i] != atr[i] {
			continue
		}
		mid := (high[i] + low[i]) / 2
		basicUpper := mid + t.multiplier*atr[i]
		basicLower := mid - t.multiplier*atr[i]

		if !started {
			upper, lower = basicUpper, basicLower
			up = closes[i] >= mid
			started = true
		} else {
			if basicUpper < upper || closes[i-1] > upper {
				upper = basicUpper
			}
			if basicLower > lower || closes[i-1] < lower {
				lower = basicLower
			}
			switch {
			case up && closes[i] < lower:
				up = false
				upper = basicUpper
				f.Direction[i] = model.Sell
			case !up && closes[i] > upper:
				up = true
				lower = basicLower
				f.Direction[i] = model.Buy
			}
		}

		if up {
			stop[i] = lower
		} else {
			stop[i] = upper
		}
		trend[i] = trendSign(up)
	}

	f.SetLevels(scaleBy(stop, 1+t.band/100), scaleBy(stop, 1-t.band/100))
	f.AddColumn("supertrend", stop)
	f.AddColumn("trend", trend)
	f.AddColumn("atr", atr)
	return f, nil
}
