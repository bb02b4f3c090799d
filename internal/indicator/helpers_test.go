package indicator

import (
	"bytes"
	"log/slog"
	"math"
	"testing"
	"time"

	"signalperf/internal/model"
)

// makeSeries builds a series where open is the previous close and the
// high/low extend spread beyond the body. Volume cycles so it is never flat.
func makeSeries(t *testing.T, closes []float64, spread float64) *model.PriceSeries {
	t.Helper()
	base := time.Date(2024, 1, 15, 9, 15, 0, 0, time.UTC)
	bars := make([]model.Bar, len(closes))
	for i, c := range closes {
		open := c
		if i > 0 {
			open = closes[i-1]
		}
		bars[i] = model.Bar{
			TS:     base.Add(time.Duration(i) * time.Minute),
			Open:   open,
			High:   math.Max(open, c) + spread,
			Low:    math.Min(open, c) - spread,
			Close:  c,
			Volume: 1000 + float64(i%7)*150,
		}
	}
	s, err := model.NewPriceSeries("TEST", 60, 0.01, bars)
	if err != nil {
		t.Fatalf("NewPriceSeries: %v", err)
	}
	return s
}

func sine(n int, mid, amp, period float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = mid + amp*math.Sin(float64(i)/period)
	}
	return out
}

func vShape(n, turn int, base float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = base + math.Abs(float64(i-turn))
	}
	return out
}

// captureLogger returns a debug-level text logger writing into buf.
func captureLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func signalsOf(f *model.Frame) (buys, sells []int) {
	for i, d := range f.Direction {
		switch {
		case d.IsBuy():
			buys = append(buys, i)
		case d.IsSell():
			sells = append(sells, i)
		}
	}
	return buys, sells
}

func assertAllUndefined(t *testing.T, f *model.Frame) {
	t.Helper()
	for i := 0; i < f.Len(); i++ {
		if f.Direction[i] != model.NoTrade {
			t.Errorf("%s: direction[%d] = %s, want NOTRADE", f.Indicator, i, f.Direction[i])
		}
		if !math.IsNaN(f.PPrice1[i]) || !math.IsNaN(f.PPrice2[i]) {
			t.Errorf("%s: levels[%d] defined on short input", f.Indicator, i)
		}
	}
	for _, c := range f.Columns {
		for i, v := range c.Values {
			if !math.IsNaN(v) {
				t.Errorf("%s: column %s[%d] = %v, want NaN", f.Indicator, c.Name, i, v)
			}
		}
	}
}
