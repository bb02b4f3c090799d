package scheduler

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"signalperf/internal/backtest"
	"signalperf/internal/model"
)

type fakeBars struct {
	series map[string]*model.PriceSeries
}

func (f *fakeBars) ReadSeries(symbol string, tf int, point float64, _ time.Time) (*model.PriceSeries, error) {
	s, ok := f.series[symbol]
	if !ok {
		return nil, errors.New("no such table")
	}
	return s, nil
}

func (f *fakeBars) Close() error { return nil }

type sink struct {
	mu      sync.Mutex
	saved   []*model.RunRecord
	cached  []*model.RunRecord
	pub     []*model.RunRecord
	saveErr error
}

func (s *sink) SaveRun(_ context.Context, rec *model.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saved = append(s.saved, rec)
	return nil
}

func (s *sink) Put(_ context.Context, rec *model.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cached = append(s.cached, rec)
	return nil
}

func (s *sink) Get(context.Context, string) (model.Report, error) { return nil, nil }

func (s *sink) Publish(rec *model.RunRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pub = append(s.pub, rec)
}

func wave(t *testing.T, symbol string, n int) *model.PriceSeries {
	t.Helper()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]model.Bar, n)
	for i := range bars {
		c := 100 + 10*math.Sin(float64(i)/6)
		bars[i] = model.Bar{TS: base.Add(time.Duration(i) * time.Hour), Open: c, High: c + 1, Low: c - 1, Close: c}
	}
	s, err := model.NewPriceSeries(symbol, 3600, 0.01, bars)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func newTestScheduler(t *testing.T, out *sink) *Scheduler {
	bars := &fakeBars{series: map[string]*model.PriceSeries{"EURUSD": wave(t, "EURUSD", 120)}}
	runner := backtest.NewRunner(backtest.Config{Workers: 2}, nil, nil, nil)
	jobs := []Job{{
		Symbol: "EURUSD",
		TF:     3600,
		Rules: []model.RuleIdentity{
			model.ParseRuleIdentity("MACD:fast=3,slow=6,signal=3"),
			{Name: "Ichimoku"},
		},
	}}
	return New(bars, runner, Sinks{Writer: out, Cache: out, Publisher: out}, jobs)
}

func TestRefresh_DeliversEveryRecord(t *testing.T) {
	out := &sink{}
	s := newTestScheduler(t, out)

	var gotErr error
	called := false
	s.OnRefresh = func(_ time.Time, err error) { called, gotErr = true, err }

	if err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if !called || gotErr != nil {
		t.Errorf("OnRefresh called=%v err=%v", called, gotErr)
	}
	if len(out.saved) != 2 || len(out.cached) != 2 || len(out.pub) != 2 {
		t.Fatalf("saved/cached/published = %d/%d/%d, want 2 each", len(out.saved), len(out.cached), len(out.pub))
	}
	if out.saved[0].Err != "" || out.saved[0].Report == nil {
		t.Errorf("MACD record = %+v", out.saved[0])
	}
	if out.saved[1].Err == "" {
		t.Error("unknown rule should be recorded with its error")
	}
	if !strings.HasPrefix(out.saved[0].RunID, "EURUSD-") || out.saved[0].RunID != out.saved[1].RunID {
		t.Errorf("run ids = %q, %q", out.saved[0].RunID, out.saved[1].RunID)
	}
	if s.LastRefresh().IsZero() {
		t.Error("LastRefresh not set")
	}
}

func TestRefresh_SinkErrorDoesNotStopDelivery(t *testing.T) {
	boom := errors.New("disk full")
	out := &sink{saveErr: boom}
	s := newTestScheduler(t, out)
	s.jobs = append(s.jobs, Job{Symbol: "GBPUSD", TF: 3600, Rules: s.jobs[0].Rules})

	var gotErr error
	s.OnRefresh = func(_ time.Time, err error) { gotErr = err }

	err := s.Refresh(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want disk full", err)
	}
	if !strings.Contains(err.Error(), "GBPUSD/3600s: read series") {
		t.Errorf("missing series error in %v", err)
	}
	if gotErr == nil {
		t.Error("OnRefresh should receive the error")
	}
	if len(out.pub) != 2 {
		t.Errorf("published = %d, want 2", len(out.pub))
	}
}

func TestRefresh_Cancelled(t *testing.T) {
	out := &sink{}
	s := newTestScheduler(t, out)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.Refresh(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if len(out.pub) != 0 {
		t.Errorf("published = %d after cancel", len(out.pub))
	}
}

func TestRegister_BadSpec(t *testing.T) {
	s := newTestScheduler(t, &sink{})
	if err := s.Register(context.Background(), "not a cron spec"); err == nil {
		t.Error("expected a parse error")
	}
}

func TestScheduledRefresh(t *testing.T) {
	out := &sink{}
	s := newTestScheduler(t, out)
	done := make(chan struct{}, 1)
	s.OnRefresh = func(time.Time, error) {
		select {
		case done <- struct{}{}:
		default:
		}
	}
	if err := s.Register(context.Background(), "@every 1s"); err != nil {
		t.Fatal(err)
	}
	s.Start()
	defer s.Stop()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("scheduled refresh did not run")
	}
}
