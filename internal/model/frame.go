package model

import "math"

// Column is a named diagnostic series produced by a calculator.
type Column struct {
	Name   string    `json:"name"`
	Values []float64 `json:"values"`
}

// Frame is a PriceSeries augmented with the calculator output.
//
// Direction is aligned 1:1 with the series. PPrice1/PPrice2 are the generic
// resistance/support levels with their paired colors; NaN means undefined.
type Frame struct {
	Series    *PriceSeries `json:"-"`
	Indicator string       `json:"indicator"`
	Direction []Signal     `json:"direction"`
	PPrice1   []float64    `json:"pprice1"`
	PPrice2   []float64    `json:"pprice2"`
	PColor1   []Signal     `json:"pcolor1"`
	PColor2   []Signal     `json:"pcolor2"`
	Columns   []Column     `json:"columns"`
}

// NewFrame allocates a frame with every value undefined.
func NewFrame(s *PriceSeries, indicator string) *Frame {
	n := s.Len()
	return &Frame{
		Series:    s,
		Indicator: indicator,
		Direction: make([]Signal, n),
		PPrice1:   NaNs(n),
		PPrice2:   NaNs(n),
		PColor1:   make([]Signal, n),
		PColor2:   make([]Signal, n),
	}
}

// Len returns the number of bars.
func (f *Frame) Len() int { return len(f.Direction) }

// AddColumn appends a diagnostic column.
func (f *Frame) AddColumn(name string, values []float64) {
	f.Columns = append(f.Columns, Column{Name: name, Values: values})
}

// Column returns the named diagnostic column, or nil.
func (f *Frame) Column(name string) []float64 {
	for _, c := range f.Columns {
		if c.Name == name {
			return c.Values
		}
	}
	return nil
}

// SetLevels fills PPrice1/PPrice2 and marks defined levels with
// Sell (resistance) and Buy (support) colors.
func (f *Frame) SetLevels(upper, lower []float64) {
	for i := range f.Direction {
		if i < len(upper) {
			f.PPrice1[i] = upper[i]
			if !math.IsNaN(upper[i]) {
				f.PColor1[i] = Sell
			}
		}
		if i < len(lower) {
			f.PPrice2[i] = lower[i]
			if !math.IsNaN(lower[i]) {
				f.PColor2[i] = Buy
			}
		}
	}
}

// Defined reports whether the frame carries any non-NoTrade direction or level.
func (f *Frame) Defined() bool {
	for i := range f.Direction {
		if f.Direction[i] != NoTrade || !math.IsNaN(f.PPrice1[i]) || !math.IsNaN(f.PPrice2[i]) {
			return true
		}
	}
	return false
}

// NaNs returns a slice of n NaN values.
func NaNs(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
