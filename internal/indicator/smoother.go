package indicator

import "signalperf/internal/model"

// KFromPeriod converts an EMA period to its smoothing factor 2/(p+1).
func KFromPeriod(p int) float64 { return 2.0 / float64(p+1) }

// WilderK converts a period to Wilder's smoothing factor 1/p.
func WilderK(p int) float64 { return 1.0 / float64(p) }

// Seed selects how Smooth initialises its accumulator.
type Seed int

const (
	// SeedFirst starts the output at the first defined input value.
	SeedFirst Seed = iota
	// SeedZero starts the output at 0 on the first bar.
	SeedZero
)

// Smooth is the recursive smoother shared by every indicator:
//
//	out[i] = out[i-1] + k*(in[i]-out[i-1])
//
// An undefined input carries the previous output forward. Inputs shorter
// than two values produce an all-NaN series.
func Smooth(in []float64, k float64, seed Seed) []float64 {
	n := len(in)
	out := model.NaNs(n)
	if n < 2 {
		return out
	}

	start := 0
	switch seed {
	case SeedZero:
		out[0] = 0
	default:
		for start < n && in[start] != in[start] {
			start++
		}
		if start == n {
			return out
		}
		out[start] = in[start]
	}

	for i := start + 1; i < n; i++ {
		prev := out[i-1]
		if in[i] != in[i] {
			out[i] = prev
			continue
		}
		out[i] = prev + k*(in[i]-prev)
	}
	return out
}

// Smoother is the streaming form of Smooth, seeded with the simple average
// of the first period values. With NewEMA it is a classic EMA; with
// NewWilder it is Wilder's running average (SMMA).
// O(1) per update, no window storage.
type Smoother struct {
	period  int
	k       float64
	current float64
	count   int
	sum     float64
}

// NewEMA creates an exponential smoother with k = 2/(period+1).
func NewEMA(period int) *Smoother {
	return &Smoother{period: period, k: KFromPeriod(period)}
}

// NewWilder creates a Wilder smoother with k = 1/period.
func NewWilder(period int) *Smoother {
	return &Smoother{period: period, k: WilderK(period)}
}

func (s *Smoother) Update(v float64) {
	s.count++
	if s.count <= s.period {
		// Accumulate for initial SMA seed
		s.sum += v
		if s.count == s.period {
			s.current = s.sum / float64(s.period)
		}
		return
	}
	s.current += s.k * (v - s.current)
}

func (s *Smoother) Value() float64 { return s.current }
func (s *Smoother) Ready() bool    { return s.count >= s.period }

// Reset clears the smoother state for reuse.
func (s *Smoother) Reset() {
	s.current = 0
	s.count = 0
	s.sum = 0
}

// runSeries feeds in through a fresh streaming accumulator, emitting NaN
// until it is ready. An undefined input restarts the accumulator.
func runSeries(st Streaming, in []float64) []float64 {
	out := model.NaNs(len(in))
	for i, v := range in {
		if v != v {
			st.Reset()
			continue
		}
		st.Update(v)
		if st.Ready() {
			out[i] = st.Value()
		}
	}
	return out
}
