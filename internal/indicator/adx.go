package indicator

import (
	"fmt"
	"math"

	"signalperf/internal/model"
)

// ADX is the directional movement system (+DI/-DI with ADX strength filter).
// +DM, -DM and TR are Wilder-smoothed over period; ADX is the Wilder average
// of DX. BUY when +DI crosses above -DI with ADX >= threshold, SELL on the
// mirror crossing.
type ADX struct {
	period    int
	threshold float64
}

// NewADX validates period >= 1 and threshold in [0, 100].
func NewADX(period int, threshold float64) (*ADX, error) {
	if err := requirePositive("ADX", []string{"period"}, period); err != nil {
		return nil, err
	}
	if threshold < 0 || threshold > 100 {
		return nil, fmt.Errorf("ADX: threshold must be within [0,100], got %g: %w", threshold, ErrInvalidParam)
	}
	return &ADX{period: period, threshold: threshold}, nil
}

func (a *ADX) Name() string { return "ADX" }

func (a *ADX) Compute(s *model.PriceSeries) (*model.Frame, error) {
	n := s.Len()
	if n < 2*a.period {
		return undefinedFrame(s, a.Name(), "plus_di", "minus_di", "adx"), nil
	}
	high, low := s.Highs(), s.Lows()
	tr := TrueRange(high, low, s.Closes())

	plusDI := model.NaNs(n)
	minusDI := model.NaNs(n)
	adx := model.NaNs(n)

	smPlus, smMinus, smTR := NewWilder(a.period), NewWilder(a.period), NewWilder(a.period)
	smDX := NewWilder(a.period)
	for i := 1; i < n; i++ {
		upMove := high[i] - high[i-1]
		downMove := low[i-1] - low[i]
		plusDM, minusDM := 0.0, 0.0
		if upMove > downMove && upMove > 0 {
			plusDM = upMove
		}
		if downMove > upMove && downMove > 0 {
			minusDM = downMove
		}
		smPlus.Update(plusDM)
		smMinus.Update(minusDM)
		smTR.Update(tr[i])
		if !smTR.Ready() || smTR.Value() == 0 {
			continue
		}

		plusDI[i] = 100 * smPlus.Value() / smTR.Value()
		minusDI[i] = 100 * smMinus.Value() / smTR.Value()
		dx := 0.0
		if sum := plusDI[i] + minusDI[i]; sum > 0 {
			dx = 100 * math.Abs(plusDI[i]-minusDI[i]) / sum
		}
		smDX.Update(dx)
		if smDX.Ready() {
			adx[i] = smDX.Value()
		}
	}

	f := model.NewFrame(s, a.Name())
	for i := 1; i < n; i++ {
		if adx[i] != adx[i] || adx[i] < a.threshold {
			continue
		}
		switch {
		case crossAbove(plusDI, minusDI, i):
			f.Direction[i] = model.Buy
		case crossBelow(plusDI, minusDI, i):
			f.Direction[i] = model.Sell
		}
	}
	f.SetLevels(Highest(high, a.period), Lowest(low, a.period))
	f.AddColumn("plus_di", plusDI)
	f.AddColumn("minus_di", minusDI)
	f.AddColumn("adx", adx)
	return f, nil
}
