// Package perf computes the performance report of a backtest from its trade
// list and per-bar return stream.
//
// Every statistic is best-effort: empty or degenerate input (no trades, no
// losers, zero variance) yields 0 instead of an error or an infinity.
package perf

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// TradeStats summarizes a list of trade returns in percent.
type TradeStats struct {
	Total       int
	Winners     int
	Losers      int
	GrossWin    float64 // sum of positive returns
	GrossLoss   float64 // |sum of negative returns|
	AvgWin      float64
	AvgLoss     float64 // positive magnitude
	LargestWin  float64
	LargestLoss float64 // most negative return, 0 with no losers
}

// Summarize splits trade returns into winners and losers.
// A return of exactly 0 counts as neither.
func Summarize(trades []float64) TradeStats {
	s := TradeStats{Total: len(trades)}
	for _, t := range trades {
		switch {
		case t > 0:
			s.Winners++
			s.GrossWin += t
			if t > s.LargestWin {
				s.LargestWin = t
			}
		case t < 0:
			s.Losers++
			s.GrossLoss -= t
			if t < s.LargestLoss {
				s.LargestLoss = t
			}
		}
	}
	if s.Winners > 0 {
		s.AvgWin = s.GrossWin / float64(s.Winners)
	}
	if s.Losers > 0 {
		s.AvgLoss = s.GrossLoss / float64(s.Losers)
	}
	return s
}

// WinRatio is the share of winning trades in percent.
func (s TradeStats) WinRatio() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Winners) / float64(s.Total) * 100
}

// ProfitFactor is gross win over gross loss, 0 with no losers.
func (s TradeStats) ProfitFactor() float64 {
	if s.GrossLoss == 0 {
		return 0
	}
	return s.GrossWin / s.GrossLoss
}

// Expectancy is the average return per trade implied by the win rate and
// the average win/loss sizes.
func (s TradeStats) Expectancy() float64 {
	if s.Total == 0 {
		return 0
	}
	p := float64(s.Winners) / float64(s.Total)
	return p*s.AvgWin - (1-p)*s.AvgLoss
}

// Kelly returns the Kelly fraction clamped to [0,1].
func (s TradeStats) Kelly() float64 {
	if s.Total == 0 || s.AvgWin == 0 {
		return 0
	}
	p := float64(s.Winners) / float64(s.Total)
	k := (p*s.AvgWin - (1-p)*s.AvgLoss) / s.AvgWin
	return math.Max(0, math.Min(1, k))
}

// BreakEvenWinRate is the win rate, as a fraction in [0,1], at which the
// average win and average loss cancel out.
func (s TradeStats) BreakEvenWinRate() float64 {
	d := s.AvgWin + s.AvgLoss
	if d == 0 {
		return 0
	}
	return s.AvgLoss / d
}

// RiskOfRuin approximates the ruin probability from the Kelly fraction.
func (s TradeStats) RiskOfRuin() float64 {
	if s.Total == 0 {
		return 0
	}
	if k := s.Kelly(); k > 0 {
		return 100 * (1 - k)
	}
	return 100
}

// Compound returns Π(1+t/100) − 1 in percent.
func Compound(trades []float64) float64 {
	if len(trades) == 0 {
		return 0
	}
	acc := 1.0
	for _, t := range trades {
		acc *= 1 + t/100
	}
	return (acc - 1) * 100
}

// Sharpe is the annualized Sharpe ratio of per-bar returns. riskFree is the
// annual rate as a fraction.
func Sharpe(r []float64, riskFree float64, periodsPerYear int) float64 {
	if len(r) < 2 || periodsPerYear <= 0 {
		return 0
	}
	sd := stat.StdDev(r, nil)
	if sd == 0 || math.IsNaN(sd) {
		return 0
	}
	excess := stat.Mean(r, nil) - riskFree/float64(periodsPerYear)
	return excess / sd * math.Sqrt(float64(periodsPerYear))
}

// Sortino is Sharpe with the standard deviation of the negative returns only.
func Sortino(r []float64, riskFree float64, periodsPerYear int) float64 {
	if len(r) < 2 || periodsPerYear <= 0 {
		return 0
	}
	var down []float64
	for _, v := range r {
		if v < 0 {
			down = append(down, v)
		}
	}
	if len(down) < 2 {
		return 0
	}
	sd := stat.StdDev(down, nil)
	if sd == 0 || math.IsNaN(sd) {
		return 0
	}
	excess := stat.Mean(r, nil) - riskFree/float64(periodsPerYear)
	return excess / sd * math.Sqrt(float64(periodsPerYear))
}

// Volatility is the annualized standard deviation of per-bar returns in percent.
func Volatility(r []float64, periodsPerYear int) float64 {
	if len(r) < 2 || periodsPerYear <= 0 {
		return 0
	}
	return stat.StdDev(r, nil) * math.Sqrt(float64(periodsPerYear)) * 100
}

// Equity returns the cumulative product of (1+r).
func Equity(r []float64) []float64 {
	eq := make([]float64, len(r))
	acc := 1.0
	for i, v := range r {
		acc *= 1 + v
		eq[i] = acc
	}
	return eq
}

// MaxDrawdown is the deepest peak-to-trough fall of the equity curve in
// percent, reported as a positive magnitude.
func MaxDrawdown(r []float64) float64 {
	if len(r) == 0 {
		return 0
	}
	eq := Equity(r)
	peak := math.Inf(-1)
	worst := 0.0
	for _, c := range eq {
		if c > peak {
			peak = c
		}
		if peak <= 0 {
			continue
		}
		if dd := (c - peak) / peak * 100; dd < worst {
			worst = dd
		}
	}
	return -worst
}

// AnnualizedReturn compounds the per-bar returns to a yearly rate in percent.
func AnnualizedReturn(r []float64, periodsPerYear int) float64 {
	if len(r) == 0 || periodsPerYear <= 0 {
		return 0
	}
	final := floats.Prod(addOne(r))
	if final <= 0 {
		return -100
	}
	years := float64(len(r)) / float64(periodsPerYear)
	return (math.Pow(final, 1/years) - 1) * 100
}

// Calmar is annualized return over max drawdown, 0 without a drawdown.
func Calmar(annualized, maxDD float64) float64 {
	if maxDD == 0 {
		return 0
	}
	return annualized / maxDD
}

func addOne(r []float64) []float64 {
	out := make([]float64, len(r))
	for i, v := range r {
		out[i] = 1 + v
	}
	return out
}
