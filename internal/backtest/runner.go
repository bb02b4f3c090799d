package backtest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"signalperf/internal/indicator"
	"signalperf/internal/logger"
	"signalperf/internal/metrics"
	"signalperf/internal/model"
	"signalperf/internal/perf"

	"golang.org/x/sync/errgroup"
)

// Config holds the runner settings.
type Config struct {
	Extractor ExtractorConfig
	Workers   int // sweep parallelism, at least 1
}

// Run is the outcome of evaluating one rule over one series.
type Run struct {
	Rule       model.RuleIdentity
	Frame      *model.Frame
	Trades     []model.Trade
	BarReturns []float64
	Report     model.Report
	Err        error
	Elapsed    time.Duration
}

// Record converts the run into its persisted form.
func (r *Run) Record(runID string, s *model.PriceSeries) *model.RunRecord {
	rec := &model.RunRecord{
		RunID:  runID,
		Symbol: s.Symbol(),
		TF:     s.TF(),
		Rule:   r.Rule,
		Report: r.Report,
		Trades: r.Trades,
	}
	if r.Err != nil {
		rec.Err = r.Err.Error()
	}
	return rec
}

// Runner evaluates rules: series → frame → fires → trades → report.
type Runner struct {
	cfg     Config
	perf    *perf.Engine
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewRunner creates a runner. log and m may be nil.
func NewRunner(cfg Config, engine *perf.Engine, log *slog.Logger, m *metrics.Metrics) *Runner {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	log = logger.OrDiscard(log)
	if engine == nil {
		engine = perf.NewEngine(perf.DefaultConfig(), log, m)
	}
	return &Runner{cfg: cfg, perf: engine, log: log, metrics: m}
}

// Run evaluates a single rule. Invalid parameters and unknown indicators
// fail before any computation.
func (r *Runner) Run(ctx context.Context, s *model.PriceSeries, rule model.RuleIdentity) (*Run, error) {
	start := time.Now()
	log := r.log.With(logger.Attrs(ctx)...)

	calc, err := indicator.New(rule, log)
	if err != nil {
		r.metrics.ObserveRun(rule.Name, "error", 0, time.Since(start))
		return nil, err
	}

	computeStart := time.Now()
	frame, err := calc.Compute(s)
	r.metrics.ObserveCompute(calc.Name(), time.Since(computeStart))
	if err != nil {
		r.metrics.ObserveRun(calc.Name(), "error", 0, time.Since(start))
		return nil, fmt.Errorf("compute %s: %w", rule, err)
	}
	if !frame.Defined() {
		log.Debug("insufficient history, no signals",
			slog.String("rule", rule.String()), slog.Int("bars", s.Len()))
	}

	run, err := r.Evaluate(ctx, frame.Direction, s)
	if err != nil {
		r.metrics.ObserveRun(calc.Name(), "error", 0, time.Since(start))
		return nil, err
	}
	run.Rule = rule
	run.Frame = frame
	run.Elapsed = time.Since(start)
	r.metrics.ObserveRun(calc.Name(), "ok", len(run.Trades), run.Elapsed)

	log.Info("run finished",
		slog.String("symbol", s.Symbol()),
		slog.String("rule", rule.String()),
		slog.Int("trades", len(run.Trades)),
		slog.Float64("win_ratio", run.Report[perf.KeyWinRatio]),
		slog.Duration("elapsed", run.Elapsed))
	return run, nil
}

// Evaluate extracts trades from a direction series aligned with s and
// computes the report. State-like directions are reduced to fires first.
func (r *Runner) Evaluate(ctx context.Context, dir []model.Signal, s *model.PriceSeries) (*Run, error) {
	res, err := Extract(Fires(dir), s.Closes(), s.Times(), r.cfg.Extractor)
	if err != nil {
		return nil, err
	}
	report, err := r.perf.Report(ctx, perf.Input{
		Trades:     res.Trades,
		BarReturns: res.BarReturns,
		Exposure:   res.Exposure,
	})
	if err != nil {
		return nil, err
	}
	return &Run{
		Trades:     res.Trades,
		BarReturns: res.BarReturns,
		Report:     report,
	}, nil
}

// Sweep runs every rule over s with at most cfg.Workers in flight. Results
// keep the order of rules. A failing rule is recorded in its Run.Err and does
// not stop the others; only cancellation of ctx aborts the sweep.
func (r *Runner) Sweep(ctx context.Context, s *model.PriceSeries, rules []model.RuleIdentity) ([]*Run, error) {
	runs := make([]*Run, len(rules))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)
	for i, rule := range rules {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			run, err := r.Run(gctx, s, rule)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				r.log.Warn("rule failed", slog.String("rule", rule.String()), slog.Any("error", err))
				run = &Run{Rule: rule, Err: err}
			}
			runs[i] = run
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	r.metrics.ObserveSweep(time.Now())
	return runs, nil
}
