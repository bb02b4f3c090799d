package indicator

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"signalperf/internal/model"
)

func TestTradingRule_Apply(t *testing.T) {
	tests := []struct {
		rule       TradingRule
		wave, fast float64
		want       model.Signal
	}{
		{RuleFast, 1, 0.5, model.Buy},
		{RuleFast, -1, -0.5, model.Sell},
		{RuleFast, 1, 1, model.NoTrade},

		{RuleZone, 0.1, 5, model.Buy},
		{RuleZone, -0.1, -5, model.Sell},
		{RuleZone, 0, 1, model.NoTrade},

		{RuleStrongTrend, 2, 1, model.Buy},
		{RuleStrongTrend, 1, 2, model.NoTrade},
		{RuleStrongTrend, -2, -1, model.Sell},
		{RuleStrongTrend, -1, -2, model.NoTrade},

		{RuleWeakTrend, 1, 2, model.Buy},
		{RuleWeakTrend, 2, 1, model.NoTrade},
		{RuleWeakTrend, -1, -2, model.Sell},

		{RuleFastZoneReverse, 1, 2, model.Sell},
		{RuleFastZoneReverse, -1, -2, model.Buy},
		{RuleFastZoneReverse, 2, 1, model.NoTrade},
		{RuleFastZoneReverse, -2, -1, model.NoTrade},

		{RuleFast, math.NaN(), 1, model.NoTrade},
	}
	for _, tt := range tests {
		if got := tt.rule.Apply(tt.wave, tt.fast); got != tt.want {
			t.Errorf("%s.Apply(%v, %v) = %s, want %s", tt.rule, tt.wave, tt.fast, got, tt.want)
		}
	}
}

func TestGlobalRule_Combine(t *testing.T) {
	tests := []struct {
		rule           GlobalRule
		color1, color2 model.Signal
		wave1          float64
		want           model.Signal
	}{
		{GlobalPrime, model.Buy, model.Buy, 1, model.Buy},
		{GlobalPrime, model.Sell, model.Sell, 1, model.Sell},
		{GlobalPrime, model.NoTrade, model.NoTrade, 1, model.NoTrade},

		{GlobalReverse, model.Buy, model.Buy, 1, model.Sell},
		{GlobalReverse, model.Sell, model.Sell, -1, model.Buy},
		{GlobalReverse, model.Buy, model.Sell, 1, model.NoTrade},

		{GlobalPrimeZone, model.Buy, model.Buy, -0.5, model.Buy},
		{GlobalPrimeZone, model.Buy, model.Buy, 0.5, model.NoTrade},
		{GlobalPrimeZone, model.Sell, model.Sell, 0.5, model.Sell},
		{GlobalPrimeZone, model.Sell, model.Sell, -0.5, model.NoTrade},

		{GlobalReverseZone, model.Sell, model.Sell, -0.5, model.Buy},
		{GlobalReverseZone, model.Sell, model.Sell, 0.5, model.NoTrade},
		{GlobalReverseZone, model.Buy, model.Buy, 0.5, model.Sell},

		{GlobalLongZone, model.Buy, model.Buy, 0, model.DblBuy},
		{GlobalLongZone, model.Sell, model.Sell, 0, model.DblSell},
		{GlobalLongZone, model.Buy, model.NoTrade, 0, model.Buy},
		{GlobalLongZone, model.Buy, model.Sell, 0, model.NoTrade},
		{GlobalLongZone, model.NoTrade, model.Sell, 0, model.NoTrade},
	}
	for _, tt := range tests {
		if got := tt.rule.Combine(tt.color1, tt.color2, tt.wave1); got != tt.want {
			t.Errorf("%s.Combine(%s, %s, %v) = %s, want %s",
				tt.rule, tt.color1, tt.color2, tt.wave1, got, tt.want)
		}
	}
}

func TestGlobalPrime_DisagreementIsNoTrade(t *testing.T) {
	signals := []model.Signal{model.NoTrade, model.Buy, model.Sell}
	for _, c1 := range signals {
		for _, c2 := range signals {
			if c1 == c2 {
				continue
			}
			for _, w := range []float64{-3, 0, 3, math.NaN()} {
				if got := GlobalPrime.Combine(c1, c2, w); got != model.NoTrade {
					t.Errorf("Prime(%s, %s, %v) = %s, want NOTRADE", c1, c2, w, got)
				}
			}
		}
	}
}

func TestParseTradingRule(t *testing.T) {
	cases := map[string]TradingRule{
		"fast":              RuleFast,
		"ZONE":              RuleZone,
		"StrongTrend":       RuleStrongTrend,
		"weak_trend":        RuleWeakTrend,
		"fast-zone-reverse": RuleFastZoneReverse,
	}
	for in, want := range cases {
		var buf bytes.Buffer
		if got := ParseTradingRule(in, captureLogger(&buf)); got != want {
			t.Errorf("ParseTradingRule(%q) = %s, want %s", in, got, want)
		}
		if buf.Len() != 0 {
			t.Errorf("ParseTradingRule(%q) logged %q", in, buf.String())
		}
	}
}

func TestParseRules_FallbackWarns(t *testing.T) {
	var buf bytes.Buffer
	log := captureLogger(&buf)

	if got := ParseTradingRule("sideways", log); got != RuleFast {
		t.Errorf("fallback trading rule = %s, want Fast", got)
	}
	if got := ParseGlobalRule("everything", log); got != GlobalPrime {
		t.Errorf("fallback global rule = %s, want Prime", got)
	}
	out := buf.String()
	if strings.Count(out, "level=WARN") != 2 {
		t.Errorf("expected two warnings, got %q", out)
	}
	if !strings.Contains(out, "sideways") || !strings.Contains(out, "everything") {
		t.Errorf("warnings should name the rejected input: %q", out)
	}
}
