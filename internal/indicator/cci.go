package indicator

import (
	"fmt"

	"signalperf/internal/model"
)

// cciConstant scales the mean deviation so ~75% of values fall in ±100.
const cciConstant = 0.015

// CCI is the rolling-window statistic oscillator over typical price:
//
//	cci = (tp - SMA(tp, p)) / (0.015 * MAD(tp, p))
//
// A zero mean deviation yields NaN and no signal.
type CCI struct {
	period               int
	overbought, oversold float64
}

// NewCCI validates period >= 1 and oversold < overbought.
func NewCCI(period int, overbought, oversold float64) (*CCI, error) {
	if err := requirePositive("CCI", []string{"period"}, period); err != nil {
		return nil, err
	}
	if oversold >= overbought {
		return nil, fmt.Errorf("CCI: oversold (%g) must be < overbought (%g): %w", oversold, overbought, ErrInvalidParam)
	}
	return &CCI{period: period, overbought: overbought, oversold: oversold}, nil
}

func (c *CCI) Name() string { return "CCI" }

func (c *CCI) Compute(s *model.PriceSeries) (*model.Frame, error) {
	n := s.Len()
	if n < c.period {
		return undefinedFrame(s, c.Name(), "cci"), nil
	}

	tp := s.Typical()
	mean := RollingMean(tp, c.period)
	md := MeanAbsDev(tp, mean, c.period)

	cci := model.NaNs(n)
	for i := range cci {
		if !defined(mean[i], md[i]) || md[i] == 0 {
			continue
		}
		cci[i] = (tp[i] - mean[i]) / (cciConstant * md[i])
	}

	f := model.NewFrame(s, c.Name())
	thresholdSignals(f.Direction, cci, c.overbought, c.oversold)
	f.SetLevels(Highest(s.Highs(), c.period), Lowest(s.Lows(), c.period))
	f.AddColumn("cci", cci)
	f.AddColumn("mean_dev", md)
	return f, nil
}
