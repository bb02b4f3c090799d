// Package indicator turns a price series into per-bar trading signals.
//
// Every calculator is built once from a validated parameter set and then
// evaluated as a pure function of a PriceSeries. Calculators never fail on
// short input: a series shorter than the required lookback yields a frame
// where every value is undefined (NaN) and every direction is NOTRADE.
package indicator

import (
	"errors"

	"signalperf/internal/model"
)

var (
	// ErrInvalidParam is returned when a calculator is constructed with
	// a non-positive period or an inconsistent period ordering.
	ErrInvalidParam = errors.New("invalid indicator parameter")

	// ErrUnknownIndicator is returned by New for an unregistered indicator name.
	ErrUnknownIndicator = errors.New("unknown indicator")
)

// Calculator is the interface for all signal calculators.
type Calculator interface {
	// Name returns the indicator family name (e.g. "MACD", "Wave").
	Name() string

	// Compute evaluates the indicator over s. The only error a calculator
	// returns from Compute is a missing input column (see model.ErrVolumeRequired).
	Compute(s *model.PriceSeries) (*model.Frame, error)
}

// Streaming is a single-value accumulator fed one observation at a time.
type Streaming interface {
	// Update feeds the next value.
	Update(v float64)

	// Value returns the current value. Meaningful only when Ready.
	Value() float64

	// Ready returns true when enough data has been accumulated.
	Ready() bool

	// Reset clears the accumulator for reuse.
	Reset()
}

// crossAbove reports a strict upward crossing of a over b at bar i.
func crossAbove(a, b []float64, i int) bool {
	if i < 1 || !defined(a[i], b[i], a[i-1], b[i-1]) {
		return false
	}
	return a[i] > b[i] && a[i-1] <= b[i-1]
}

// crossBelow reports a strict downward crossing of a under b at bar i.
func crossBelow(a, b []float64, i int) bool {
	if i < 1 || !defined(a[i], b[i], a[i-1], b[i-1]) {
		return false
	}
	return a[i] < b[i] && a[i-1] >= b[i-1]
}

func defined(vs ...float64) bool {
	for _, v := range vs {
		if v != v {
			return false
		}
	}
	return true
}

// undefinedFrame returns the all-undefined result for short input, with the
// named diagnostic columns present and NaN-filled.
func undefinedFrame(s *model.PriceSeries, name string, columns ...string) *model.Frame {
	f := model.NewFrame(s, name)
	for _, c := range columns {
		f.AddColumn(c, model.NaNs(s.Len()))
	}
	return f
}
