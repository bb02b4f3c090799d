package indicator

import (
	"fmt"
	"math"

	"signalperf/internal/model"
)

// sarState is the fold state carried bar to bar.
type sarState struct {
	up  bool    // trend sign
	sar float64 // stop level
	ep  float64 // extreme point
	af  float64 // acceleration factor
	// first bar of the current trend; the clamp only looks at bars from here on
	start int
}

// SAR is the Parabolic Stop-and-Reverse trend follower.
//
// While the trend holds, the stop accelerates toward the extreme point and
// is clamped by the previous two bars' lows (uptrend) or highs (downtrend)
// within the current trend, so it never recedes. When price pierces the stop the trend flips, the stop
// resets to the flip bar's opposite extreme (its high for a new downtrend,
// its low for a new uptrend) and the acceleration resets. BUY/SELL fire only on flip bars.
type SAR struct {
	step, maxAF float64
	band      float64 // level band, percent
}

// NewSAR validates 0 < step <= max.
func NewSAR(step, maxAF, band float64) (*SAR, error) {
	if step <= 0 || maxAF < step {
		return nil, fmt.Errorf("SAR: need 0 < step (%g) <= max (%g): %w", step, maxAF, ErrInvalidParam)
	}
	if band < 0 {
		return nil, fmt.Errorf("SAR: band must be >= 0, got %g: %w", band, ErrInvalidParam)
	}
	return &SAR{step: step, maxAF: maxAF, band: band}, nil
}

func (p *SAR) Name() string { return "SAR" }

func (p *SAR) Compute(s *model.PriceSeries) (*model.Frame, error) {
	n := s.Len()
	if n < 3 {
		return undefinedFrame(s, p.Name(), "sar", "trend"), nil
	}
	high, low, closes := s.Highs(), s.Lows(), s.Closes()

	sar := model.NaNs(n)
	trend := model.NaNs(n)
	f := model.NewFrame(s, p.Name())

	st := sarState{up: closes[1] >= closes[0], af: p.step}
	if st.up {
		st.sar = math.Min(low[0], low[1])
		st.ep = math.Max(high[0], high[1])
	} else {
		st.sar = math.Max(high[0], high[1])
		st.ep = math.Min(low[0], low[1])
	}
	sar[1], trend[1] = st.sar, trendSign(st.up)

	for i := 2; i < n; i++ {
		flipped := p.step1(&st, high, low, i)
		sar[i], trend[i] = st.sar, trendSign(st.up)
		if flipped {
			if st.up {
				f.Direction[i] = model.Buy
			} else {
				f.Direction[i] = model.Sell
			}
		}
	}

	f.SetLevels(scaleBy(sar, 1+p.band/100), scaleBy(sar, 1-p.band/100))
	f.AddColumn("sar", sar)
	f.AddColumn("trend", trend)
	return f, nil
}

// step1 advances the state to bar i and reports whether the trend flipped.
func (p *SAR) step1(st *sarState, high, low []float64, i int) bool {
	next := st.sar + st.af*(st.ep-st.sar)
	if st.up {
		for _, j := range [2]int{i - 1, i - 2} {
			if j >= st.start {
				next = math.Min(next, low[j])
			}
		}
		if low[i] < next {
			st.up = false
			st.sar = high[i]
			st.ep = low[i]
			st.af = p.step
			st.start = i
			return true
		}
		st.sar = next
		if high[i] > st.ep {
			st.ep = high[i]
			st.af = math.Min(st.af+p.step, p.maxAF)
		}
		return false
	}

	for _, j := range [2]int{i - 1, i - 2} {
		if j >= st.start {
			next = math.Max(next, high[j])
		}
	}
	if high[i] > next {
		st.up = true
		st.sar = low[i]
		st.ep = high[i]
		st.af = p.step
		st.start = i
		return true
	}
	st.sar = next
	if low[i] < st.ep {
		st.ep = low[i]
		st.af = math.Min(st.af+p.step, p.maxAF)
	}
	return false
}

func trendSign(up bool) float64 {
	if up {
		return 1
	}
	return -1
}

// scaleBy multiplies every defined value by m.
func scaleBy(in []float64, m float64) []float64 {
	out := make([]float64, len(in))
	for i, v := range in {
		out[i] = v * m
	}
	return out
}
