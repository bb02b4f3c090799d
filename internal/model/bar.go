package model

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"
)

// ErrUnsortedSeries is returned when bar timestamps are not strictly increasing.
var ErrUnsortedSeries = errors.New("bar timestamps must be strictly increasing")

// ErrVolumeRequired is returned by volume-based calculators when the series carries no volume.
var ErrVolumeRequired = errors.New("series has no volume column")

// Bar is one row of the price table.
// high >= max(open, close) and low <= min(open, close) are expected but not enforced.
type Bar struct {
	TS     time.Time `json:"ts"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// PriceSeries is an immutable, time-ordered OHLCV table.
// Accessors return fresh slices; the underlying bars are never handed out.
type PriceSeries struct {
	symbol string
	tf     int
	point  float64
	bars   []Bar
}

// NewPriceSeries validates ordering and copies bars into a new series.
// point is the tick size; a non-positive point defaults to 0.01.
func NewPriceSeries(symbol string, tf int, point float64, bars []Bar) (*PriceSeries, error) {
	for i := 1; i < len(bars); i++ {
		if !bars[i].TS.After(bars[i-1].TS) {
			return nil, fmt.Errorf("bar %d (%s): %w", i, bars[i].TS.Format(time.RFC3339), ErrUnsortedSeries)
		}
	}
	if point <= 0 {
		point = 0.01
	}
	cp := make([]Bar, len(bars))
	copy(cp, bars)
	return &PriceSeries{symbol: symbol, tf: tf, point: point, bars: cp}, nil
}

func (s *PriceSeries) Symbol() string { return s.symbol }
func (s *PriceSeries) TF() int        { return s.tf }
func (s *PriceSeries) Point() float64 { return s.point }
func (s *PriceSeries) Len() int       { return len(s.bars) }

// Bar returns a copy of bar i.
func (s *PriceSeries) Bar(i int) Bar { return s.bars[i] }

// Bars returns a copy of all bars.
func (s *PriceSeries) Bars() []Bar {
	cp := make([]Bar, len(s.bars))
	copy(cp, s.bars)
	return cp
}

func (s *PriceSeries) Opens() []float64   { return s.column(func(b Bar) float64 { return b.Open }) }
func (s *PriceSeries) Highs() []float64   { return s.column(func(b Bar) float64 { return b.High }) }
func (s *PriceSeries) Lows() []float64    { return s.column(func(b Bar) float64 { return b.Low }) }
func (s *PriceSeries) Closes() []float64  { return s.column(func(b Bar) float64 { return b.Close }) }
func (s *PriceSeries) Volumes() []float64 { return s.column(func(b Bar) float64 { return b.Volume }) }

// Typical returns (high+low+close)/3 per bar.
func (s *PriceSeries) Typical() []float64 {
	return s.column(func(b Bar) float64 { return (b.High + b.Low + b.Close) / 3 })
}

// HasVolume reports whether any bar carries a positive, finite volume.
func (s *PriceSeries) HasVolume() bool {
	for _, b := range s.bars {
		if b.Volume > 0 && !math.IsInf(b.Volume, 0) {
			return true
		}
	}
	return false
}

// Times returns the bar timestamps.
func (s *PriceSeries) Times() []time.Time {
	ts := make([]time.Time, len(s.bars))
	for i, b := range s.bars {
		ts[i] = b.TS
	}
	return ts
}

// Key returns "symbol:tf", used for cache and stream keys.
func (s *PriceSeries) Key() string {
	return s.symbol + ":" + strconv.Itoa(s.tf)
}

func (s *PriceSeries) column(f func(Bar) float64) []float64 {
	out := make([]float64, len(s.bars))
	for i, b := range s.bars {
		out[i] = f(b)
	}
	return out
}
