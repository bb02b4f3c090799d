// Package scheduler re-runs configured rule sweeps on a cron schedule and
// hands the finished records to the stores and the live feed.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"signalperf/internal/backtest"
	"signalperf/internal/logger"
	"signalperf/internal/model"

	"github.com/robfig/cron/v3"
)

// Job is one series plus the rules swept over it.
type Job struct {
	Symbol string
	TF     int
	Point  float64
	Rules  []model.RuleIdentity
}

// Sinks receive every finished record. Nil sinks are skipped.
type Sinks struct {
	Writer    model.ReportWriter
	Cache     model.ReportCache
	Publisher model.ReportPublisher
}

// Scheduler owns the cron instance and the refresh task.
type Scheduler struct {
	cron   *cron.Cron
	bars   model.BarReader
	runner *backtest.Runner
	sinks  Sinks
	jobs   []Job

	mu   sync.Mutex
	last time.Time

	// OnRefresh is called after every refresh with its finish time and
	// the joined error of all failed steps (nil on full success).
	OnRefresh func(t time.Time, err error)
}

// New creates a scheduler. Cron specs take a leading seconds field,
// e.g. "0 */15 * * * *".
func New(bars model.BarReader, runner *backtest.Runner, sinks Sinks, jobs []Job) *Scheduler {
	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DefaultLogger)),
		),
		bars:   bars,
		runner: runner,
		sinks:  sinks,
		jobs:   jobs,
	}
}

// Register adds the refresh task. ctx bounds every scheduled run.
func (s *Scheduler) Register(ctx context.Context, spec string) error {
	if _, err := s.cron.AddFunc(spec, func() {
		if err := s.Refresh(ctx); err != nil {
			log.Printf("[scheduler] refresh: %v", err)
		}
	}); err != nil {
		return fmt.Errorf("register refresh %q: %w", spec, err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	log.Printf("[scheduler] started with %d jobs", len(s.jobs))
}

// Stop stops the scheduler and waits for a running refresh to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	log.Println("[scheduler] stopped")
}

// LastRefresh returns the finish time of the latest refresh.
func (s *Scheduler) LastRefresh() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Refresh runs every job once. A failing job or sink does not stop the
// others; their errors are joined into the result.
func (s *Scheduler) Refresh(ctx context.Context) error {
	start := time.Now()
	var errs []error
	records := 0
	for _, job := range s.jobs {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		n, err := s.runJob(ctx, job)
		records += n
		if err != nil {
			errs = append(errs, fmt.Errorf("%s/%ds: %w", job.Symbol, job.TF, err))
		}
	}
	err := errors.Join(errs...)

	now := time.Now()
	s.mu.Lock()
	s.last = now
	s.mu.Unlock()
	if s.OnRefresh != nil {
		s.OnRefresh(now, err)
	}
	log.Printf("[scheduler] refresh done: %d records in %s (%d errors)", records, time.Since(start).Round(time.Millisecond), len(errs))
	return err
}

func (s *Scheduler) runJob(ctx context.Context, job Job) (int, error) {
	series, err := s.bars.ReadSeries(job.Symbol, job.TF, job.Point, time.Time{})
	if err != nil {
		return 0, fmt.Errorf("read series: %w", err)
	}
	if series.Len() == 0 {
		return 0, nil
	}

	runID := logger.NewRunID(job.Symbol, time.Now())
	ctx = logger.WithRunID(ctx, runID)
	runs, err := s.runner.Sweep(ctx, series, job.Rules)
	if err != nil {
		return 0, err
	}

	var errs []error
	for _, run := range runs {
		rec := run.Record(runID, series)
		if s.sinks.Writer != nil {
			if err := s.sinks.Writer.SaveRun(ctx, rec); err != nil {
				errs = append(errs, fmt.Errorf("save %s: %w", rec.CacheKey(), err))
			}
		}
		if s.sinks.Cache != nil {
			if err := s.sinks.Cache.Put(ctx, rec); err != nil {
				errs = append(errs, fmt.Errorf("cache %s: %w", rec.CacheKey(), err))
			}
		}
		if s.sinks.Publisher != nil {
			s.sinks.Publisher.Publish(rec)
		}
	}
	return len(runs), errors.Join(errs...)
}
