package sqlite

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"signalperf/internal/model"
)

func openPair(t *testing.T) (*Writer, *Reader) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	w, err := New(WriterConfig{DBPath: path})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { w.Close() })
	r, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return w, r
}

func testBars(n int, start time.Time) []model.Bar {
	bars := make([]model.Bar, n)
	for i := range bars {
		c := 100 + float64(i)
		bars[i] = model.Bar{
			TS:     start.Add(time.Duration(i) * time.Minute),
			Open:   c - 0.5,
			High:   c + 1,
			Low:    c - 1,
			Close:  c,
			Volume: float64(1000 + i),
		}
	}
	return bars
}

func TestWriteAndReadSeries(t *testing.T) {
	w, r := openPair(t)
	start := time.Date(2024, 1, 15, 9, 15, 0, 0, time.UTC)

	var commits int
	w.OnCommit = func(time.Duration) { commits++ }

	if err := w.WriteBars("NIFTY", 60, testBars(10, start)); err != nil {
		t.Fatal(err)
	}
	// upsert: rewriting the same bars must not duplicate them
	if err := w.WriteBars("NIFTY", 60, testBars(10, start)); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteBars("BANKNIFTY", 60, testBars(3, start)); err != nil {
		t.Fatal(err)
	}
	if commits != 3 {
		t.Errorf("commits = %d, want 3", commits)
	}

	s, err := r.ReadSeries("NIFTY", 60, 0.05, time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if s.Len() != 10 {
		t.Fatalf("len = %d, want 10", s.Len())
	}
	if s.Point() != 0.05 || s.Symbol() != "NIFTY" || s.TF() != 60 {
		t.Errorf("series meta = %s/%d/%v", s.Symbol(), s.TF(), s.Point())
	}
	b := s.Bar(3)
	if !b.TS.Equal(start.Add(3*time.Minute)) || b.Close != 103 || b.Volume != 1003 {
		t.Errorf("bar 3 = %+v", b)
	}

	tail, err := r.ReadSeries("NIFTY", 60, 0.05, start.Add(7*time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if tail.Len() != 2 {
		t.Errorf("bars after cutoff = %d, want 2", tail.Len())
	}

	syms, err := r.Symbols(60)
	if err != nil {
		t.Fatal(err)
	}
	if len(syms) != 2 || syms[0] != "BANKNIFTY" || syms[1] != "NIFTY" {
		t.Errorf("symbols = %v", syms)
	}
}

func TestSaveRunAndLatestReport(t *testing.T) {
	w, r := openPair(t)
	ctx := context.Background()
	entry := time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)

	rule := model.ParseRuleIdentity("MACD:fast=3,slow=6")
	older := &model.RunRecord{
		RunID: "NIFTY-1", Symbol: "NIFTY", TF: 60, Rule: rule,
		Report: model.Report{"total_trades": 0},
	}
	newer := &model.RunRecord{
		RunID: "NIFTY-2", Symbol: "NIFTY", TF: 60, Rule: rule,
		Report: model.Report{"total_trades": 2, "win_ratio": 50},
		Trades: []model.Trade{
			{EntryIndex: 1, ExitIndex: 4, EntryTime: entry, ExitTime: entry.Add(3 * time.Minute),
				EntryPrice: 100, ExitPrice: 110, ReturnPct: 10, Reason: model.ExitSignal},
			{EntryIndex: 6, ExitIndex: 8, EntryPrice: 110, ExitPrice: 99, ReturnPct: -10, Reason: model.ExitReentry},
		},
	}
	for _, rec := range []*model.RunRecord{older, newer} {
		if err := w.SaveRun(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}

	got, err := r.LatestReport(ctx, "NIFTY", 60, rule.String())
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.RunID != "NIFTY-2" {
		t.Fatalf("latest = %+v", got)
	}
	if got.Rule.String() != rule.String() {
		t.Errorf("rule = %s, want %s", got.Rule, rule)
	}
	if got.Report["win_ratio"] != 50 {
		t.Errorf("report = %v", got.Report)
	}
	if len(got.Trades) != 2 {
		t.Fatalf("trades = %d, want 2", len(got.Trades))
	}
	if !got.Trades[0].EntryTime.Equal(entry) || got.Trades[0].ReturnPct != 10 {
		t.Errorf("trade 0 = %+v", got.Trades[0])
	}
	if !got.Trades[1].EntryTime.IsZero() || got.Trades[1].Reason != model.ExitReentry {
		t.Errorf("trade 1 = %+v", got.Trades[1])
	}

	missing, err := r.LatestReport(ctx, "NIFTY", 60, "RSI")
	if err != nil || missing != nil {
		t.Errorf("missing report = %+v, %v", missing, err)
	}
}

func TestRunBatchesAndPrunes(t *testing.T) {
	w, r := openPair(t)
	ctx, cancel := context.WithCancel(context.Background())

	ch := make(chan *model.RunRecord, 8)
	done := make(chan struct{})
	go func() {
		w.Run(ctx, ch)
		close(done)
	}()

	rule := model.RuleIdentity{Name: "RSI"}
	for i := 0; i < 5; i++ {
		ch <- &model.RunRecord{RunID: "r", Symbol: "X", TF: 300, Rule: rule, Report: model.Report{"n": float64(i)}}
	}
	close(ch)
	<-done
	cancel()

	got, err := r.LatestReport(context.Background(), "X", 300, "RSI")
	if err != nil || got == nil {
		t.Fatalf("latest = %v, %v", got, err)
	}
	if got.Report["n"] != 4 {
		t.Errorf("latest n = %v, want 4", got.Report["n"])
	}

	n, err := w.PruneReports(context.Background(), 2)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("pruned = %d, want 3", n)
	}
}

func TestSaveRunRejectsNaN(t *testing.T) {
	w, _ := openPair(t)
	err := w.SaveRun(context.Background(), &model.RunRecord{
		Symbol: "X", TF: 60, Rule: model.RuleIdentity{Name: "RSI"},
		Report: model.Report{"bad": math.NaN()},
	})
	if err == nil {
		t.Fatal("expected a marshal error for NaN report values")
	}
}

func TestRunSkipsUnencodableRecord(t *testing.T) {
	w, r := openPair(t)
	ch := make(chan *model.RunRecord, 4)
	done := make(chan struct{})
	go func() {
		w.Run(context.Background(), ch)
		close(done)
	}()

	ch <- &model.RunRecord{RunID: "r", Symbol: "X", TF: 60, Rule: model.RuleIdentity{Name: "RSI"}, Report: model.Report{"n": 1}}
	ch <- &model.RunRecord{RunID: "r", Symbol: "X", TF: 60, Rule: model.RuleIdentity{Name: "CCI"}, Report: model.Report{"n": math.Inf(1)}}
	ch <- &model.RunRecord{RunID: "r", Symbol: "X", TF: 60, Rule: model.RuleIdentity{Name: "MACD"}, Report: model.Report{"n": 3}}
	close(ch)
	<-done

	for rule, want := range map[string]float64{"RSI": 1, "MACD": 3} {
		got, err := r.LatestReport(context.Background(), "X", 60, rule)
		if err != nil || got == nil {
			t.Fatalf("%s: latest = %v, %v", rule, got, err)
		}
		if got.Report["n"] != want {
			t.Errorf("%s: n = %v, want %v", rule, got.Report["n"], want)
		}
	}
	if got, _ := r.LatestReport(context.Background(), "X", 60, "CCI"); got != nil {
		t.Errorf("unencodable record was stored: %+v", got)
	}
}
