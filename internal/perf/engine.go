package perf

import (
	"context"
	"log/slog"
	"math"
	"time"

	"signalperf/internal/logger"
	"signalperf/internal/metrics"
	"signalperf/internal/model"

	"gonum.org/v1/gonum/floats"
)

// Report keys.
const (
	KeyTotalTrades      = "total_trades"
	KeyWinningTrades    = "winning_trades"
	KeyLosingTrades     = "losing_trades"
	KeyWinRatio         = "win_ratio"
	KeyProfitFactor     = "profit_factor"
	KeyAvgWin           = "avg_win"
	KeyAvgLoss          = "avg_loss"
	KeyLargestWin       = "largest_win"
	KeyLargestLoss      = "largest_loss"
	KeyExpectancy       = "expectancy"
	KeyGrossReturn      = "gross_return"
	KeyNetReturn        = "net_return"
	KeyEfficiency       = "strategy_efficiency"
	KeyTotalReturn      = "total_return"
	KeySharpe           = "sharpe"
	KeySortino          = "sortino"
	KeyVolatility       = "volatility"
	KeyMaxDrawdown      = "max_drawdown"
	KeyAnnualizedReturn = "annualized_return"
	KeyCalmar           = "calmar"
	KeyKelly            = "kelly_fraction"
	KeyBreakEvenWinRate = "break_even_win_rate"
	KeyRiskOfRuin       = "risk_of_ruin"
	KeyMCExpected       = "mc_expected_return"
	KeyMCStd            = "mc_std"
	KeyMCVaR95          = "mc_var_95"
	KeyMCCVaR95         = "mc_cvar_95"
	KeyMCProbPositive   = "mc_prob_positive"
	KeyMCMin            = "mc_min"
	KeyMCMax            = "mc_max"
	KeyMCRobustness     = "mc_robustness"
	KeyExposure         = "exposure"
	KeyBars             = "bars"
	KeyMCIterations     = "mc_iterations"
	KeyAvgBarsInTrade   = "avg_bars_in_trade"
)

// Config holds the report parameters.
type Config struct {
	RiskFree       float64 // annual, fraction
	PeriodsPerYear int
	FeePerTrade    float64 // percent per round trip
	MonteCarlo     MonteCarloConfig
}

// DefaultConfig returns 252 periods per year, no risk-free rate or fees and
// 1000 Monte Carlo iterations on 4 workers.
func DefaultConfig() Config {
	return Config{
		PeriodsPerYear: 252,
		MonteCarlo: MonteCarloConfig{
			Iterations: 1000,
			Workers:    4,
			Seed:       1,
		},
	}
}

// Engine assembles reports. Safe for concurrent use.
type Engine struct {
	cfg     Config
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewEngine creates a report engine. log and m may be nil.
func NewEngine(cfg Config, log *slog.Logger, m *metrics.Metrics) *Engine {
	if cfg.PeriodsPerYear <= 0 {
		cfg.PeriodsPerYear = 252
	}
	return &Engine{cfg: cfg, log: logger.OrDiscard(log), metrics: m}
}

// Config returns the engine configuration.
func (e *Engine) Config() Config { return e.cfg }

// Input is what a report is computed from.
type Input struct {
	Trades     []model.Trade
	BarReturns []float64 // fractions, one per bar
	Exposure   float64   // share of bars spent long, percent
}

// Report computes the flat metric map. It only fails when ctx is cancelled
// during the Monte Carlo study.
func (e *Engine) Report(ctx context.Context, in Input) (model.Report, error) {
	returns := model.TradeReturns(in.Trades)
	s := Summarize(returns)
	log := e.log.With(logger.Attrs(ctx)...)

	if s.Total == 0 {
		log.Debug("no trades, trade statistics default to zero")
	} else if s.Losers == 0 {
		log.Debug("no losing trades, profit_factor defaults to zero", slog.Int("trades", s.Total))
	}
	if s.Winners == 0 && s.Total > 0 {
		log.Debug("no winning trades, kelly_fraction defaults to zero", slog.Int("trades", s.Total))
	}

	gross := floats.Sum(returns)
	net := gross - float64(s.Total)*e.cfg.FeePerTrade
	eff := 0.0
	if gross != 0 {
		eff = net / math.Abs(gross) * 100
	}

	ppy := e.cfg.PeriodsPerYear
	maxDD := MaxDrawdown(in.BarReturns)
	ann := AnnualizedReturn(in.BarReturns, ppy)

	holding := 0
	for i := range in.Trades {
		holding += in.Trades[i].Bars()
	}
	avgBars := 0.0
	if s.Total > 0 {
		avgBars = float64(holding) / float64(s.Total)
	}

	r := model.Report{
		KeyTotalTrades:      float64(s.Total),
		KeyWinningTrades:    float64(s.Winners),
		KeyLosingTrades:     float64(s.Losers),
		KeyWinRatio:         s.WinRatio(),
		KeyProfitFactor:     s.ProfitFactor(),
		KeyAvgWin:           s.AvgWin,
		KeyAvgLoss:          s.AvgLoss,
		KeyLargestWin:       s.LargestWin,
		KeyLargestLoss:      s.LargestLoss,
		KeyExpectancy:       s.Expectancy(),
		KeyGrossReturn:      gross,
		KeyNetReturn:        net,
		KeyEfficiency:       eff,
		KeyTotalReturn:      Compound(returns),
		KeySharpe:           Sharpe(in.BarReturns, e.cfg.RiskFree, ppy),
		KeySortino:          Sortino(in.BarReturns, e.cfg.RiskFree, ppy),
		KeyVolatility:       Volatility(in.BarReturns, ppy),
		KeyMaxDrawdown:      maxDD,
		KeyAnnualizedReturn: ann,
		KeyCalmar:           Calmar(ann, maxDD),
		KeyKelly:            s.Kelly(),
		KeyBreakEvenWinRate: s.BreakEvenWinRate(),
		KeyRiskOfRuin:       s.RiskOfRuin(),
		KeyExposure:         in.Exposure,
		KeyBars:             float64(len(in.BarReturns)),
		KeyAvgBarsInTrade:   avgBars,
	}

	start := time.Now()
	mc, err := MonteCarlo(ctx, returns, e.cfg.MonteCarlo)
	if err != nil {
		return nil, err
	}
	if s.Total > 0 {
		e.metrics.ObserveMonteCarlo(time.Since(start))
	}

	r[KeyMCIterations] = float64(len(mc.Outcomes))
	r[KeyMCExpected] = mc.Expected
	r[KeyMCStd] = mc.Std
	r[KeyMCVaR95] = mc.VaR95
	r[KeyMCCVaR95] = mc.CVaR95
	r[KeyMCProbPositive] = mc.ProbPositive
	r[KeyMCMin] = mc.Min
	r[KeyMCMax] = mc.Max
	r[KeyMCRobustness] = mc.Robustness

	log.Debug("report computed",
		slog.Int("trades", s.Total),
		slog.Float64("win_ratio", r[KeyWinRatio]),
		slog.Float64("sharpe", r[KeySharpe]))
	return r, nil
}
