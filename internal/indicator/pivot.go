package indicator

import "signalperf/internal/model"

// Pivot is a rolling floor-pivot breakout.
// Over the previous period bars: P = (HH + LL + C)/3, R1 = 2P - LL, S1 = 2P - HH.
// BUY when close crosses above R1, SELL when close crosses below S1.
type Pivot struct {
	period int
}

func NewPivot(period int) (*Pivot, error) {
	if err := requirePositive("Pivot", []string{"period"}, period); err != nil {
		return nil, err
	}
	return &Pivot{period: period}, nil
}

func (p *Pivot) Name() string { return "Pivot" }

func (p *Pivot) Compute(s *model.PriceSeries) (*model.Frame, error) {
	n := s.Len()
	if n < p.period+2 {
		return undefinedFrame(s, p.Name(), "pivot", "r1", "s1"), nil
	}
	high, low, closes := s.Highs(), s.Lows(), s.Closes()
	hh := Highest(high, p.period)
	ll := Lowest(low, p.period)

	pivot := model.NaNs(n)
	r1 := model.NaNs(n)
	s1 := model.NaNs(n)
	for i := p.period; i < n; i++ {
		// levels for bar i come from the window ending at i-1
		pp := (hh[i-1] + ll[i-1] + closes[i-1]) / 3
		pivot[i] = pp
		r1[i] = 2*pp - ll[i-1]
		s1[i] = 2*pp - hh[i-1]
	}

	f := model.NewFrame(s, p.Name())
	for i := p.period + 1; i < n; i++ {
		switch {
		case crossAbove(closes, r1, i):
			f.Direction[i] = model.Buy
		case crossBelow(closes, s1, i):
			f.Direction[i] = model.Sell
		}
	}
	f.SetLevels(r1, s1)
	f.AddColumn("pivot", pivot)
	f.AddColumn("r1", r1)
	f.AddColumn("s1", s1)
	return f, nil
}
