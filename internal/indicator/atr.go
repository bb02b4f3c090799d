package indicator

import (
	"math"

	"signalperf/internal/model"
)

// TrueRange returns max(high-low, |high-prevClose|, |low-prevClose|).
// The first bar has no previous close and uses high-low.
func TrueRange(high, low, closes []float64) []float64 {
	out := make([]float64, len(high))
	for i := range high {
		tr := high[i] - low[i]
		if i > 0 {
			tr = math.Max(tr, math.Max(math.Abs(high[i]-closes[i-1]), math.Abs(low[i]-closes[i-1])))
		}
		out[i] = tr
	}
	return out
}

// ATR returns Wilder's average true range, seeded with the simple average
// of the first p true ranges. Defined from bar p-1.
func ATR(high, low, closes []float64, p int) []float64 {
	if p < 1 {
		return model.NaNs(len(high))
	}
	return runSeries(NewWilder(p), TrueRange(high, low, closes))
}
