package indicator

import (
	"fmt"
	"log/slog"
	"sort"

	"signalperf/internal/model"
)

type factory func(p params, log *slog.Logger) (Calculator, error)

var registry = map[string]factory{
	"macd":       newMACDFromParams,
	"rsi":        newRSIFromParams,
	"cci":        newCCIFromParams,
	"sar":        newSARFromParams,
	"supertrend": newSuperTrendFromParams,
	"adx":        newADXFromParams,
	"dmi":        newADXFromParams,
	"pivot":      newPivotFromParams,
	"wave":       newWaveFromParams,
	"schrdir":    newSCHRFromParams,
	"schr":       newSCHRFromParams,
}

// Names returns the registered indicator names, sorted.
func Names() []string {
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// New binds a RuleIdentity to its calculator. Name lookup is case-insensitive
// and ignores "_" and "-". Parameters are parsed and validated here, once;
// enum-valued parameters fall back to their documented default with a warning.
func New(rule model.RuleIdentity, log *slog.Logger) (Calculator, error) {
	if log == nil {
		log = slog.Default()
	}
	key := normalizeRuleName(rule.Name)
	f, ok := registry[key]
	if !ok {
		return nil, fmt.Errorf("%q: %w", rule.Name, ErrUnknownIndicator)
	}
	calc, err := f(params{rule: rule}, log.With(slog.String("indicator", rule.String())))
	if err != nil {
		return nil, fmt.Errorf("indicator %s: %w", rule, err)
	}
	return calc, nil
}

func newMACDFromParams(p params, _ *slog.Logger) (Calculator, error) {
	fast, err := p.intOr("fast", 12)
	if err != nil {
		return nil, err
	}
	slow, err := p.intOr("slow", 26)
	if err != nil {
		return nil, err
	}
	signal, err := p.intOr("signal", 9)
	if err != nil {
		return nil, err
	}
	return NewMACD(fast, slow, signal)
}

func newRSIFromParams(p params, _ *slog.Logger) (Calculator, error) {
	period, err := p.intOr("period", 14)
	if err != nil {
		return nil, err
	}
	ob, err := p.floatOr("overbought", 70)
	if err != nil {
		return nil, err
	}
	oversold, err := p.floatOr("oversold", 30)
	if err != nil {
		return nil, err
	}
	return NewRSIOscillator(period, ob, oversold)
}

func newCCIFromParams(p params, _ *slog.Logger) (Calculator, error) {
	period, err := p.intOr("period", 20)
	if err != nil {
		return nil, err
	}
	ob, err := p.floatOr("overbought", 100)
	if err != nil {
		return nil, err
	}
	oversold, err := p.floatOr("oversold", -100)
	if err != nil {
		return nil, err
	}
	return NewCCI(period, ob, oversold)
}

func newSARFromParams(p params, _ *slog.Logger) (Calculator, error) {
	step, err := p.floatOr("step", 0.02)
	if err != nil {
		return nil, err
	}
	maxAF, err := p.floatOr("max", 0.2)
	if err != nil {
		return nil, err
	}
	band, err := p.floatOr("band", 0.5)
	if err != nil {
		return nil, err
	}
	return NewSAR(step, maxAF, band)
}

func newSuperTrendFromParams(p params, _ *slog.Logger) (Calculator, error) {
	period, err := p.intOr("period", 10)
	if err != nil {
		return nil, err
	}
	mult, err := p.floatOr("multiplier", 3)
	if err != nil {
		return nil, err
	}
	band, err := p.floatOr("band", 0.5)
	if err != nil {
		return nil, err
	}
	return NewSuperTrend(period, mult, band)
}

func newADXFromParams(p params, _ *slog.Logger) (Calculator, error) {
	period, err := p.intOr("period", 14)
	if err != nil {
		return nil, err
	}
	threshold, err := p.floatOr("threshold", 20)
	if err != nil {
		return nil, err
	}
	return NewADX(period, threshold)
}

func newPivotFromParams(p params, _ *slog.Logger) (Calculator, error) {
	period, err := p.intOr("period", 5)
	if err != nil {
		return nil, err
	}
	return NewPivot(period)
}

func newWaveFromParams(p params, log *slog.Logger) (Calculator, error) {
	cfg := DefaultWaveConfig()
	ints := []struct {
		key string
		dst *int
	}{
		{"long1", &cfg.First.Long}, {"fast1", &cfg.First.Fast}, {"trend1", &cfg.First.Trend},
		{"long2", &cfg.Second.Long}, {"fast2", &cfg.Second.Fast}, {"trend2", &cfg.Second.Trend},
		{"ma_period", &cfg.MAPeriod},
	}
	for _, it := range ints {
		v, err := p.intOr(it.key, *it.dst)
		if err != nil {
			return nil, err
		}
		*it.dst = v
	}
	if raw, ok := p.rule.Param("tr1"); ok {
		cfg.First.Rule = ParseTradingRule(raw, log)
	}
	if raw, ok := p.rule.Param("tr2"); ok {
		cfg.Second.Rule = ParseTradingRule(raw, log)
	}
	if raw, ok := p.rule.Param("global"); ok {
		cfg.Global = ParseGlobalRule(raw, log)
	}
	if raw, ok := p.rule.Param("ma_type"); ok {
		t, known := ParseMAType(raw)
		if !known {
			log.Warn("unrecognized MA type, using default",
				slog.String("ma_type", raw), slog.String("default", t.String()))
		}
		cfg.MAType = t
	}
	return NewWave(cfg, log)
}

func newSCHRFromParams(p params, log *slog.Logger) (Calculator, error) {
	period, err := p.intOr("period", 22)
	if err != nil {
		return nil, err
	}
	grow, err := p.floatOr("grow", 1.0)
	if err != nil {
		return nil, err
	}
	raw := p.stringOr("mode", "normal")
	mode, known := ParseSCHRMode(raw)
	if !known {
		log.Warn("unrecognized SCHR_Dir mode, using default",
			slog.String("mode", raw), slog.String("default", mode.String()))
	}
	return NewSCHRDir(period, grow, mode)
}
