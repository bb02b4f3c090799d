package indicator

import (
	"log/slog"

	"signalperf/internal/model"
)

// WaveSet is one (long, fast, trend) parameter triple with its trading rule.
type WaveSet struct {
	Long, Fast, Trend int
	Rule              TradingRule
}

// WaveConfig configures the dual-wave predictive engine.
type WaveConfig struct {
	First, Second WaveSet
	Global        GlobalRule
	MAPeriod      int
	MAType        MAType
}

// DefaultWaveConfig returns the reference parameterisation.
func DefaultWaveConfig() WaveConfig {
	return WaveConfig{
		First:    WaveSet{Long: 339, Fast: 10, Trend: 2, Rule: RuleFast},
		Second:   WaveSet{Long: 22, Fast: 11, Trend: 4, Rule: RuleFast},
		Global:   GlobalPrime,
		MAPeriod: 22,
		MAType:   MASimple,
	}
}

// Wave is the dual-wave predictive engine. Each parameter set drives
//
//	ecore = Smooth(pct_change(close), 2/(long+1))   seeded at 0
//	wave  = Smooth(ecore, 2/(fast+1))
//	fast  = Smooth(wave, 2/(trend+1))
//
// and its own trading rule; the two colors are merged by the global rule.
// Direction is a per-bar state. The display MA follows the fast line of
// the set that agrees with the combined direction and is not used for trading.
type Wave struct {
	cfg WaveConfig
	log *slog.Logger
}

// NewWave validates every period >= 1.
func NewWave(cfg WaveConfig, log *slog.Logger) (*Wave, error) {
	err := requirePositive("Wave",
		[]string{"long1", "fast1", "trend1", "long2", "fast2", "trend2", "ma_period"},
		cfg.First.Long, cfg.First.Fast, cfg.First.Trend,
		cfg.Second.Long, cfg.Second.Fast, cfg.Second.Trend, cfg.MAPeriod)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	return &Wave{cfg: cfg, log: log}, nil
}

func (w *Wave) Name() string { return "Wave" }

// Config returns the resolved configuration.
func (w *Wave) Config() WaveConfig { return w.cfg }

// Lookback is the longest period plus one bar of price change.
func (w *Wave) Lookback() int {
	m := 0
	for _, p := range []int{w.cfg.First.Long, w.cfg.First.Fast, w.cfg.First.Trend,
		w.cfg.Second.Long, w.cfg.Second.Fast, w.cfg.Second.Trend, w.cfg.MAPeriod} {
		if p > m {
			m = p
		}
	}
	return m + 1
}

var waveColumns = []string{"ecore1", "wave1", "fast1", "color1", "ecore2", "wave2", "fast2", "color2", "ma"}

func (w *Wave) Compute(s *model.PriceSeries) (*model.Frame, error) {
	n := s.Len()
	if n < w.Lookback() {
		w.log.Debug("wave: insufficient history",
			slog.Int("bars", n), slog.Int("lookback", w.Lookback()))
		return undefinedFrame(s, w.Name(), waveColumns...), nil
	}

	pct := PctChange(s.Closes())
	ecore1, wave1, fast1 := waveLines(pct, w.cfg.First)
	ecore2, wave2, fast2 := waveLines(pct, w.cfg.Second)

	f := model.NewFrame(s, w.Name())
	color1 := make([]float64, n)
	color2 := make([]float64, n)
	winner := make([]float64, n)
	opens := s.Opens()
	upper := model.NaNs(n)
	lower := model.NaNs(n)

	prev := model.NoTrade
	for i := 0; i < n; i++ {
		c1 := w.cfg.First.Rule.Apply(wave1[i], fast1[i])
		c2 := w.cfg.Second.Rule.Apply(wave2[i], fast2[i])
		dir := w.cfg.Global.Combine(c1, c2, wave1[i])
		f.Direction[i] = dir
		color1[i], color2[i] = c1.Float(), c2.Float()

		winner[i] = fast1[i]
		if norm := dir.Normalize(); norm != model.NoTrade && c1.Normalize() != norm && c2.Normalize() == norm {
			winner[i] = fast2[i]
		}

		// levels mark the open of bars where a new direction fires
		if norm := dir.Normalize(); norm != prev {
			switch norm {
			case model.Sell:
				upper[i] = opens[i]
			case model.Buy:
				lower[i] = opens[i]
			}
			prev = norm
		}
	}

	f.SetLevels(upper, lower)
	f.AddColumn("ecore1", ecore1)
	f.AddColumn("wave1", wave1)
	f.AddColumn("fast1", fast1)
	f.AddColumn("color1", color1)
	f.AddColumn("ecore2", ecore2)
	f.AddColumn("wave2", wave2)
	f.AddColumn("fast2", fast2)
	f.AddColumn("color2", color2)
	f.AddColumn("ma", MovingAverage(winner, w.cfg.MAPeriod, w.cfg.MAType))
	return f, nil
}

// waveLines runs the three chained smoothers for one parameter set.
func waveLines(pct []float64, set WaveSet) (ecore, wave, fast []float64) {
	ecore = Smooth(pct, KFromPeriod(set.Long), SeedZero)
	wave = Smooth(ecore, KFromPeriod(set.Fast), SeedFirst)
	fast = Smooth(wave, KFromPeriod(set.Trend), SeedFirst)
	return ecore, wave, fast
}
