package indicator

import (
	"log/slog"
	"strings"

	"signalperf/internal/model"
)

// TradingRule is the per-bar decision applied to one wave/fast-line pair.
type TradingRule int

const (
	RuleFast TradingRule = iota
	RuleZone
	RuleStrongTrend
	RuleWeakTrend
	RuleFastZoneReverse
)

var tradingRuleNames = map[TradingRule]string{
	RuleFast:            "Fast",
	RuleZone:            "Zone",
	RuleStrongTrend:     "StrongTrend",
	RuleWeakTrend:       "WeakTrend",
	RuleFastZoneReverse: "FastZoneReverse",
}

func (r TradingRule) String() string {
	if s, ok := tradingRuleNames[r]; ok {
		return s
	}
	return "Fast"
}

// ParseTradingRule resolves a case-insensitive rule name. Separators
// ("_", "-", " ") are ignored. Unknown names fall back to RuleFast and
// log a warning.
func ParseTradingRule(s string, log *slog.Logger) TradingRule {
	key := normalizeRuleName(s)
	for r, name := range tradingRuleNames {
		if strings.ToLower(name) == key {
			return r
		}
	}
	if log != nil {
		log.Warn("unrecognized trading rule, using default",
			slog.String("rule", s), slog.String("default", RuleFast.String()))
	}
	return RuleFast
}

// Apply evaluates the rule for one bar. Undefined inputs yield NoTrade.
func (r TradingRule) Apply(wave, fast float64) model.Signal {
	if !defined(wave, fast) {
		return model.NoTrade
	}
	switch r {
	case RuleZone:
		switch {
		case wave > 0:
			return model.Buy
		case wave < 0:
			return model.Sell
		}
	case RuleStrongTrend:
		switch {
		case wave > 0 && wave > fast:
			return model.Buy
		case wave < 0 && wave < fast:
			return model.Sell
		}
	case RuleWeakTrend:
		switch {
		case wave > 0 && wave < fast:
			return model.Buy
		case wave < 0 && wave > fast:
			return model.Sell
		}
	case RuleFastZoneReverse:
		// Weakening above zero reads as a sell, recovering below zero as a buy.
		switch {
		case wave > 0 && wave < fast:
			return model.Sell
		case wave < 0 && wave > fast:
			return model.Buy
		}
	default:
		switch {
		case wave > fast:
			return model.Buy
		case wave < fast:
			return model.Sell
		}
	}
	return model.NoTrade
}

// GlobalRule merges two independent color streams into one direction.
type GlobalRule int

const (
	GlobalPrime GlobalRule = iota
	GlobalReverse
	GlobalPrimeZone
	GlobalReverseZone
	GlobalLongZone
)

var globalRuleNames = map[GlobalRule]string{
	GlobalPrime:       "Prime",
	GlobalReverse:     "Reverse",
	GlobalPrimeZone:   "PrimeZone",
	GlobalReverseZone: "ReverseZone",
	GlobalLongZone:    "LongZone",
}

func (g GlobalRule) String() string {
	if s, ok := globalRuleNames[g]; ok {
		return s
	}
	return "Prime"
}

// ParseGlobalRule resolves a case-insensitive global rule name, falling
// back to GlobalPrime with a warning.
func ParseGlobalRule(s string, log *slog.Logger) GlobalRule {
	key := normalizeRuleName(s)
	for g, name := range globalRuleNames {
		if strings.ToLower(name) == key {
			return g
		}
	}
	if log != nil {
		log.Warn("unrecognized global rule, using default",
			slog.String("rule", s), slog.String("default", GlobalPrime.String()))
	}
	return GlobalPrime
}

// Combine merges color1 and color2 for one bar. wave1 is the first wave's
// value, used by the zone-filtered variants.
func (g GlobalRule) Combine(color1, color2 model.Signal, wave1 float64) model.Signal {
	agree := color1 == color2 && color1 != model.NoTrade
	switch g {
	case GlobalReverse:
		if agree {
			return color1.Opposite()
		}
	case GlobalPrimeZone:
		if agree && zoneAllows(color1, wave1) {
			return color1
		}
	case GlobalReverseZone:
		if agree {
			if out := color1.Opposite(); zoneAllows(out, wave1) {
				return out
			}
		}
	case GlobalLongZone:
		switch {
		case agree:
			return color1.Double()
		case color1 != model.NoTrade && color2 == model.NoTrade:
			return color1
		}
	default:
		if agree {
			return color1
		}
	}
	return model.NoTrade
}

// zoneAllows admits BUY only below the zero line and SELL only above it.
func zoneAllows(sig model.Signal, wave1 float64) bool {
	switch {
	case sig.IsBuy():
		return wave1 < 0
	case sig.IsSell():
		return wave1 > 0
	}
	return false
}

func normalizeRuleName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer("_", "", "-", "", " ", "").Replace(s)
}
