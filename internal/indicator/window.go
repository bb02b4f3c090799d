package indicator

import (
	"math"
	"strings"

	"signalperf/internal/model"
)

// SMA calculates Simple Moving Average over a rolling window.
// Uses a preallocated circular buffer for zero-allocation hot path.
type SMA struct {
	period  int
	buf     []float64 // preallocated circular buffer
	idx     int       // current write position
	count   int       // total values received
	sum     float64
	current float64
}

// NewSMA creates a new SMA with the given period.
func NewSMA(period int) *SMA {
	return &SMA{
		period: period,
		buf:    make([]float64, period),
	}
}

func (s *SMA) Update(v float64) {
	if s.count >= s.period {
		// Subtract the oldest value being overwritten
		s.sum -= s.buf[s.idx]
	}

	s.buf[s.idx] = v
	s.sum += v
	s.idx = (s.idx + 1) % s.period
	s.count++

	if s.count >= s.period {
		s.current = s.sum / float64(s.period)
	}
}

func (s *SMA) Value() float64 { return s.current }
func (s *SMA) Ready() bool    { return s.count >= s.period }

// Reset clears the SMA state for reuse.
func (s *SMA) Reset() {
	s.idx = 0
	s.count = 0
	s.sum = 0
	s.current = 0
	for i := range s.buf {
		s.buf[i] = 0
	}
}

// RollingMean returns the simple moving average of in over p bars.
// out[i] is defined once p consecutive defined inputs end at i.
func RollingMean(in []float64, p int) []float64 {
	return runSeries(NewSMA(p), in)
}

// EMASeries returns the SMA-seeded exponential average of in.
func EMASeries(in []float64, p int) []float64 {
	return runSeries(NewEMA(p), in)
}

// WMA returns the linearly weighted moving average (weights 1..p, newest heaviest).
func WMA(in []float64, p int) []float64 {
	out := model.NaNs(len(in))
	if p < 1 {
		return out
	}
	denom := float64(p*(p+1)) / 2
	for i := p - 1; i < len(in); i++ {
		sum := 0.0
		ok := true
		for j := 0; j < p; j++ {
			v := in[i-p+1+j]
			if v != v {
				ok = false
				break
			}
			sum += v * float64(j+1)
		}
		if ok {
			out[i] = sum / denom
		}
	}
	return out
}

// HMA returns the Hull moving average: WMA(2·WMA(p/2) − WMA(p), √p).
func HMA(in []float64, p int) []float64 {
	half := p / 2
	if half < 1 {
		half = 1
	}
	sq := int(math.Round(math.Sqrt(float64(p))))
	if sq < 1 {
		sq = 1
	}
	wh := WMA(in, half)
	wf := WMA(in, p)
	diff := make([]float64, len(in))
	for i := range in {
		diff[i] = 2*wh[i] - wf[i]
	}
	return WMA(diff, sq)
}

// MAType selects the display moving average.
type MAType int

const (
	MASimple MAType = iota
	MAExponential
	MAHull
)

// ParseMAType maps "sma", "ema" or "hma" (any case); anything else is sma.
func ParseMAType(s string) (MAType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sma", "":
		return MASimple, true
	case "ema":
		return MAExponential, true
	case "hma", "hull":
		return MAHull, true
	}
	return MASimple, false
}

func (t MAType) String() string {
	switch t {
	case MAExponential:
		return "ema"
	case MAHull:
		return "hma"
	}
	return "sma"
}

// MovingAverage dispatches on t.
func MovingAverage(in []float64, p int, t MAType) []float64 {
	switch t {
	case MAExponential:
		return EMASeries(in, p)
	case MAHull:
		return HMA(in, p)
	}
	return RollingMean(in, p)
}

// MeanAbsDev returns the mean absolute deviation of in from mean[i] over
// the p bars ending at i.
func MeanAbsDev(in, mean []float64, p int) []float64 {
	out := model.NaNs(len(in))
	for i := p - 1; i < len(in); i++ {
		if mean[i] != mean[i] {
			continue
		}
		sum := 0.0
		for j := i - p + 1; j <= i; j++ {
			sum += math.Abs(in[j] - mean[i])
		}
		out[i] = sum / float64(p)
	}
	return out
}

// Highest returns the rolling maximum of in over p bars.
func Highest(in []float64, p int) []float64 {
	return rollingExtreme(in, p, func(a, b float64) bool { return a > b })
}

// Lowest returns the rolling minimum of in over p bars.
func Lowest(in []float64, p int) []float64 {
	return rollingExtreme(in, p, func(a, b float64) bool { return a < b })
}

func rollingExtreme(in []float64, p int, better func(a, b float64) bool) []float64 {
	out := model.NaNs(len(in))
	if p < 1 {
		return out
	}
	for i := p - 1; i < len(in); i++ {
		best := in[i-p+1]
		for j := i - p + 2; j <= i; j++ {
			if better(in[j], best) {
				best = in[j]
			}
		}
		out[i] = best
	}
	return out
}

// PctChange returns the bar-over-bar change of in, in percent.
// out[0] and any change from a zero base are NaN.
func PctChange(in []float64) []float64 {
	out := model.NaNs(len(in))
	for i := 1; i < len(in); i++ {
		if in[i-1] == 0 {
			continue
		}
		out[i] = (in[i] - in[i-1]) / in[i-1] * 100
	}
	return out
}
