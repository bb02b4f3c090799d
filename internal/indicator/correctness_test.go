package indicator

import (
	"math"
	"testing"
)

// ────────────────────────────────────────────────────────────
// Helper
// ────────────────────────────────────────────────────────────

func assertClose(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: got %.6f, want %.6f (tol=%.6f, diff=%.6f)", label, got, want, tol, math.Abs(got-want))
	}
}

func assertNaN(t *testing.T, label string, got float64) {
	t.Helper()
	if !math.IsNaN(got) {
		t.Errorf("%s: got %.6f, want NaN", label, got)
	}
}

// ────────────────────────────────────────────────────────────
// Recursive smoother
// ────────────────────────────────────────────────────────────

func TestSmooth_ConstantConverges(t *testing.T) {
	in := make([]float64, 300)
	for i := range in {
		in[i] = 5
	}
	out := Smooth(in, 0.1, SeedZero)
	assertClose(t, "Smooth constant", out[len(out)-1], 5, 1e-9)

	out = Smooth(in, KFromPeriod(20), SeedFirst)
	for _, v := range out {
		assertClose(t, "Smooth seeded constant", v, 5, 1e-12)
	}
}

func TestSmooth_KOneTracksInput(t *testing.T) {
	in := []float64{3, 7, -2, 11, 4.5}
	out := Smooth(in, 1, SeedZero)
	if out[0] != 0 {
		t.Errorf("SeedZero out[0] = %v, want 0", out[0])
	}
	for i := 1; i < len(in); i++ {
		if out[i] != in[i] {
			t.Errorf("k=1 out[%d] = %v, want %v", i, out[i], in[i])
		}
	}
}

func TestSmooth_Recursion(t *testing.T) {
	// k=0.5: 10 → 10, 12 → 11, 14 → 12.5, 10 → 11.25
	out := Smooth([]float64{10, 12, 14, 10}, 0.5, SeedFirst)
	want := []float64{10, 11, 12.5, 11.25}
	for i := range want {
		assertClose(t, "Smooth k=0.5", out[i], want[i], 1e-12)
	}
}

func TestSmooth_ShortInputIsUndefined(t *testing.T) {
	for _, in := range [][]float64{nil, {42}} {
		out := Smooth(in, 0.5, SeedFirst)
		if len(out) != len(in) {
			t.Fatalf("len = %d, want %d", len(out), len(in))
		}
		for i := range out {
			assertNaN(t, "short input", out[i])
		}
	}
}

func TestSmooth_UndefinedInputs(t *testing.T) {
	nan := math.NaN()
	out := Smooth([]float64{nan, 4, nan, 8}, 0.5, SeedFirst)
	assertNaN(t, "leading NaN", out[0])
	assertClose(t, "seed at first defined", out[1], 4, 0)
	assertClose(t, "NaN carries previous", out[2], 4, 0)
	assertClose(t, "resume after NaN", out[3], 6, 1e-12)
}

func TestSmoothingFactors(t *testing.T) {
	assertClose(t, "KFromPeriod(3)", KFromPeriod(3), 0.5, 1e-12)
	assertClose(t, "KFromPeriod(9)", KFromPeriod(9), 0.2, 1e-12)
	assertClose(t, "WilderK(14)", WilderK(14), 1.0/14, 1e-12)
}

// ────────────────────────────────────────────────────────────
// SMA Correctness
// ────────────────────────────────────────────────────────────

func TestSMA_Correctness_Period3(t *testing.T) {
	// Prices: 100, 102, 104, 103, 105
	// SMA after value 3: (100+102+104)/3 = 102.0
	// SMA after value 4: (102+104+103)/3 = 103.0
	// SMA after value 5: (104+103+105)/3 = 104.0
	sma := NewSMA(3)
	prices := []float64{100, 102, 104, 103, 105}
	expected := []float64{0, 0, 102.0, 103.0, 104.0}
	ready := []bool{false, false, true, true, true}

	for i, p := range prices {
		sma.Update(p)
		if sma.Ready() != ready[i] {
			t.Errorf("value %d: Ready()=%v, want %v", i, sma.Ready(), ready[i])
		}
		if ready[i] {
			assertClose(t, "SMA(3)", sma.Value(), expected[i], 0.0001)
		}
	}
}

func TestRollingMean_PrefixUndefined(t *testing.T) {
	out := RollingMean([]float64{1, 2, 3, 4, 5}, 3)
	assertNaN(t, "rolling[0]", out[0])
	assertNaN(t, "rolling[1]", out[1])
	assertClose(t, "rolling[2]", out[2], 2, 1e-12)
	assertClose(t, "rolling[4]", out[4], 4, 1e-12)
}

func TestRollingMean_ShorterThanPeriod(t *testing.T) {
	out := RollingMean([]float64{1, 2, 3}, 5)
	for i := range out {
		assertNaN(t, "short rolling", out[i])
	}
}

// ────────────────────────────────────────────────────────────
// EMA / Wilder Correctness
// ────────────────────────────────────────────────────────────

func TestEMA_Correctness_Period3(t *testing.T) {
	// EMA(3): multiplier = 2/(3+1) = 0.5
	// Seed = (100+102+104)/3 = 102.0
	// Value 4: 102 + 0.5*(103-102) = 102.5
	// Value 5: 102.5 + 0.5*(105-102.5) = 103.75
	ema := NewEMA(3)
	prices := []float64{100, 102, 104, 103, 105}
	expected := []float64{0, 0, 102.0, 102.5, 103.75}
	ready := []bool{false, false, true, true, true}

	for i, p := range prices {
		ema.Update(p)
		if ema.Ready() != ready[i] {
			t.Errorf("value %d: Ready()=%v, want %v", i, ema.Ready(), ready[i])
		}
		if ready[i] {
			assertClose(t, "EMA(3)", ema.Value(), expected[i], 0.0001)
		}
	}
}

func TestWilder_Correctness_Period3(t *testing.T) {
	// Seed: (100+102+104)/3 = 102.0
	// Value 4: (102*2 + 103)/3 = 102.3333
	// Value 5: (102.3333*2 + 105)/3 = 103.2222
	w := NewWilder(3)
	prices := []float64{100, 102, 104, 103, 105}
	expected := []float64{0, 0, 102.0, 102.3333, 103.2222}

	for i, p := range prices {
		w.Update(p)
		if w.Ready() {
			assertClose(t, "Wilder(3)", w.Value(), expected[i], 0.001)
		}
	}
	w.Reset()
	if w.Ready() {
		t.Error("Ready() after Reset")
	}
}

// ────────────────────────────────────────────────────────────
// RSI Correctness (Wilder's Method)
// ────────────────────────────────────────────────────────────

func TestRSI_Correctness_Period5(t *testing.T) {
	// Prices: 44, 44.34, 44.09, 43.61, 44.33, 44.83, 45.10, 45.42, 45.84
	//
	// First RSI after 6 values:
	//   avgGain = (0.34+0.72+0.50)/5 = 0.312
	//   avgLoss = (0.25+0.48)/5      = 0.146
	//   RSI = 100 - 100/(1+2.13699) = 68.112
	// Value 7 (45.10): RSI = 72.219
	// Value 8 (45.42): RSI = 76.658
	// Value 9 (45.84): RSI = 81.509
	prices := []float64{44, 44.34, 44.09, 43.61, 44.33, 44.83, 45.10, 45.42, 45.84}

	rsi := NewRSI(5)
	for i := 0; i <= 5; i++ {
		rsi.Update(prices[i])
	}
	assertClose(t, "RSI(5) value 6", rsi.Value(), 68.112, 0.1)

	rsi.Update(prices[6])
	assertClose(t, "RSI(5) value 7", rsi.Value(), 72.219, 0.1)

	rsi.Update(prices[7])
	assertClose(t, "RSI(5) value 8", rsi.Value(), 76.658, 0.1)

	rsi.Update(prices[8])
	assertClose(t, "RSI(5) value 9", rsi.Value(), 81.509, 0.2)
}

func TestRSI_AllUp_Is100(t *testing.T) {
	rsi := NewRSI(5)
	for i := 0; i < 10; i++ {
		rsi.Update(100 + float64(i))
	}
	assertClose(t, "RSI all up", rsi.Value(), 100.0, 0.001)
}

func TestRSI_AllDown_Is0(t *testing.T) {
	rsi := NewRSI(5)
	for i := 0; i < 10; i++ {
		rsi.Update(200 - float64(i))
	}
	assertClose(t, "RSI all down", rsi.Value(), 0.0, 0.001)
}

func TestWMA_Weights(t *testing.T) {
	// WMA(3) of 1,2,3 = (1*1 + 2*2 + 3*3)/6 = 14/6
	out := WMA([]float64{1, 2, 3, 4}, 3)
	assertNaN(t, "wma[1]", out[1])
	assertClose(t, "wma[2]", out[2], 14.0/6, 1e-12)
	assertClose(t, "wma[3]", out[3], 20.0/6, 1e-12)
}

func TestHMA_LagsLessThanWMA(t *testing.T) {
	// On a line with slope b: WMA(16) lags 5b, HMA(16) lags 2b/3.
	in := make([]float64, 40)
	for i := range in {
		in[i] = 10 + 0.5*float64(i)
	}
	last := len(in) - 1
	hma := HMA(in, 16)
	wma := WMA(in, 16)
	assertClose(t, "HMA lag", in[last]-hma[last], 0.5*2/3, 1e-9)
	assertClose(t, "WMA lag", in[last]-wma[last], 0.5*5, 1e-9)
}

func TestHighestLowest(t *testing.T) {
	in := []float64{3, 1, 4, 1, 5, 9, 2}
	hi := Highest(in, 3)
	lo := Lowest(in, 3)
	assertNaN(t, "hi[1]", hi[1])
	assertClose(t, "hi[2]", hi[2], 4, 0)
	assertClose(t, "hi[6]", hi[6], 9, 0)
	assertClose(t, "lo[4]", lo[4], 1, 0)
	assertClose(t, "lo[6]", lo[6], 2, 0)
}

func TestPctChange(t *testing.T) {
	out := PctChange([]float64{100, 110, 99, 0, 5})
	assertNaN(t, "pct[0]", out[0])
	assertClose(t, "pct[1]", out[1], 10, 1e-12)
	assertClose(t, "pct[2]", out[2], -10, 1e-12)
	assertNaN(t, "pct from zero", out[4])
}

func TestATR_Wilder(t *testing.T) {
	// Constant 2-point range with no gaps → ATR = 2
	high := []float64{11, 11, 11, 11, 11}
	low := []float64{9, 9, 9, 9, 9}
	closes := []float64{10, 10, 10, 10, 10}
	atr := ATR(high, low, closes, 3)
	assertNaN(t, "atr[1]", atr[1])
	assertClose(t, "atr[2]", atr[2], 2, 1e-12)
	assertClose(t, "atr[4]", atr[4], 2, 1e-12)
}

func TestIndicators_TrendingUp_Ordering(t *testing.T) {
	// With steadily rising prices, faster MAs should be above slower MAs
	sma5 := NewSMA(5)
	sma20 := NewSMA(20)
	ema5 := NewEMA(5)

	for i := 0; i < 30; i++ {
		p := 100 + float64(i)
		sma5.Update(p)
		sma20.Update(p)
		ema5.Update(p)
	}

	if sma5.Value() <= sma20.Value() {
		t.Errorf("SMA(5) should be > SMA(20) in uptrend: SMA5=%.2f, SMA20=%.2f", sma5.Value(), sma20.Value())
	}
	if ema5.Value() <= sma20.Value() {
		t.Errorf("EMA(5) should be > SMA(20) in uptrend: EMA5=%.2f, SMA20=%.2f", ema5.Value(), sma20.Value())
	}
}
