package indicator

import (
	"fmt"
	"math"
	"strings"

	"signalperf/internal/model"
)

// schrK is the fixed transform constant applied to the log volume ratio.
var schrK = 0.5 * math.Log(math.Pi)

// SCHRMode selects how a band break is detected.
type SCHRMode int

const (
	// SCHRNormal breaks when the close exceeds the previous band.
	SCHRNormal SCHRMode = iota
	// SCHRStrong breaks only when the whole bar clears the previous band.
	SCHRStrong
)

func ParseSCHRMode(s string) (SCHRMode, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "normal", "":
		return SCHRNormal, true
	case "strong":
		return SCHRStrong, true
	}
	return SCHRNormal, false
}

func (m SCHRMode) String() string {
	if m == SCHRStrong {
		return "strong"
	}
	return "normal"
}

// SCHRDir is the volume/price-ratio direction engine.
//
// Per bar the volume-to-range ratio is normalised by its rolling mean and
// widens a band around the bar midpoint:
//
//	width = mid * grow/100 * (1 + 0.5·ln(π)·ln(1 + ratio/mean(ratio)))
//
// The upper band only falls and the lower band only rises until price breaks
// it; a break sets the direction and restarts that band from the raw value.
// Direction holds between breaks.
type SCHRDir struct {
	period int
	grow   float64
	mode   SCHRMode
}

func NewSCHRDir(period int, grow float64, mode SCHRMode) (*SCHRDir, error) {
	if err := requirePositive("SCHR_Dir", []string{"period"}, period); err != nil {
		return nil, err
	}
	if grow <= 0 {
		return nil, fmt.Errorf("SCHR_Dir: grow must be > 0, got %g: %w", grow, ErrInvalidParam)
	}
	return &SCHRDir{period: period, grow: grow, mode: mode}, nil
}

func (d *SCHRDir) Name() string { return "SCHR_Dir" }

func (d *SCHRDir) Compute(s *model.PriceSeries) (*model.Frame, error) {
	if !s.HasVolume() {
		return nil, fmt.Errorf("%s %s: %w", d.Name(), s.Key(), model.ErrVolumeRequired)
	}
	n := s.Len()
	if n < d.period+1 {
		return undefinedFrame(s, d.Name(), "ratio", "norm_ratio", "upper", "lower"), nil
	}

	high, low, closes, vol := s.Highs(), s.Lows(), s.Closes(), s.Volumes()
	point := s.Point()

	ratio := make([]float64, n)
	for i := range ratio {
		ratio[i] = vol[i] / math.Max(high[i]-low[i], point)
	}
	mean := RollingMean(ratio, d.period)
	norm := model.NaNs(n)
	upper := model.NaNs(n)
	lower := model.NaNs(n)
	f := model.NewFrame(s, d.Name())

	dir := model.NoTrade
	started := false // a band gap restarts both bands
	for i := 0; i < n; i++ {
		if mean[i] != mean[i] || mean[i] <= 0 {
			continue
		}
		norm[i] = ratio[i] / mean[i]
		mid := (high[i] + low[i]) / 2
		width := math.Max(mid*d.grow/100*(1+schrK*math.Log1p(norm[i])), point)
		rawUp, rawLo := mid+width, mid-width

		if !started || upper[i-1] != upper[i-1] {
			upper[i], lower[i] = rawUp, rawLo
			started = true
			continue
		}

		prevUp, prevLo := upper[i-1], lower[i-1]
		breakUp, breakDn := d.breaks(high[i], low[i], closes[i], prevUp, prevLo)

		if breakUp {
			upper[i] = rawUp
		} else {
			upper[i] = math.Min(rawUp, prevUp)
		}
		if breakDn {
			lower[i] = rawLo
		} else {
			lower[i] = math.Max(rawLo, prevLo)
		}

		switch {
		case breakUp && !breakDn:
			dir = model.Buy
		case breakDn && !breakUp:
			dir = model.Sell
		}
		f.Direction[i] = dir
	}

	f.SetLevels(upper, lower)
	f.AddColumn("ratio", ratio)
	f.AddColumn("norm_ratio", norm)
	f.AddColumn("upper", upper)
	f.AddColumn("lower", lower)
	return f, nil
}

func (d *SCHRDir) breaks(high, low, closePx, up, lo float64) (breakUp, breakDn bool) {
	if d.mode == SCHRStrong {
		return low > up, high < lo
	}
	return closePx > up, closePx < lo
}
