// cmd/backtest runs one or more signal rules over bars stored in SQLite and
// prints the performance report of each.
//
// Usage:
//
//	go run ./cmd/backtest --symbol=EURUSD --tf=3600 --rules="MACD:fast=12,slow=26,signal=9;Wave"
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"signalperf/config"
	"signalperf/internal/backtest"
	"signalperf/internal/logger"
	"signalperf/internal/model"
	"signalperf/internal/perf"
	sqlitestore "signalperf/internal/store/sqlite"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	cfgPath := flag.String("config", os.Getenv("CONFIG_PATH"), "Optional YAML config file")
	dbPath := flag.String("db", "", "Path to SQLite database (default from config)")
	symbol := flag.String("symbol", "", "Symbol to test")
	tf := flag.Int("tf", 3600, "Timeframe in seconds")
	point := flag.Float64("point", 0.01, "Tick size of the symbol")
	fromTS := flag.Int64("from", 0, "Unix timestamp to start from (0=all)")
	rulesStr := flag.String("rules", "MACD", `Rules separated by ";", e.g. "MACD:fast=12,slow=26;RSI:period=14"`)
	iterations := flag.Int("mc-iter", 0, "Monte Carlo iterations (default from config)")
	seed := flag.Uint64("seed", 0, "Monte Carlo seed (default from config)")
	closeAtEnd := flag.Bool("close-at-end", false, "Close a trade still open on the last bar")
	save := flag.Bool("save", false, "Persist the reports to SQLite")
	asJSON := flag.Bool("json", false, "Print run records as JSON instead of a summary")
	flag.Parse()

	if *symbol == "" {
		log.Fatal("[backtest] --symbol is required")
	}
	rules := parseRules(*rulesStr)
	if len(rules) == 0 {
		log.Fatal("[backtest] no valid rules specified")
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("[backtest] config: %v", err)
	}
	if *dbPath != "" {
		cfg.SQLitePath = *dbPath
	}
	if *iterations > 0 {
		cfg.Backtest.MCIterations = *iterations
	}
	if *seed > 0 {
		cfg.Backtest.MCSeed = *seed
	}
	if *closeAtEnd {
		cfg.Backtest.CloseAtEnd = true
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("[backtest] config validation: %v", err)
	}

	slogger := logger.Init("backtest", logger.ParseLevel(cfg.LogLevel))

	reader, err := sqlitestore.NewReader(cfg.SQLitePath)
	if err != nil {
		log.Fatalf("[backtest] sqlite open failed: %v", err)
	}
	defer reader.Close()

	var after time.Time
	if *fromTS > 0 {
		after = time.Unix(*fromTS, 0).UTC()
	}
	series, err := reader.ReadSeries(*symbol, *tf, *point, after)
	if err != nil {
		log.Fatalf("[backtest] read series: %v", err)
	}
	if series.Len() == 0 {
		log.Fatalf("[backtest] no bars for %s tf=%ds", *symbol, *tf)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	engine := perf.NewEngine(cfg.PerfConfig(), slogger, nil)
	runner := backtest.NewRunner(cfg.RunnerConfig(), engine, slogger, nil)

	runID := logger.NewRunID(*symbol, time.Now())
	ctx = logger.WithRunID(ctx, runID)

	start := time.Now()
	runs, err := runner.Sweep(ctx, series, rules)
	if err != nil {
		log.Fatalf("[backtest] sweep: %v", err)
	}
	elapsed := time.Since(start)

	records := make([]*model.RunRecord, len(runs))
	for i, run := range runs {
		records[i] = run.Record(runID, series)
	}

	if *save {
		writer, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: cfg.SQLitePath})
		if err != nil {
			log.Fatalf("[backtest] sqlite writer: %v", err)
		}
		for _, rec := range records {
			if err := writer.SaveRun(ctx, rec); err != nil {
				log.Printf("[backtest] save %s: %v", rec.CacheKey(), err)
			}
		}
		writer.Close()
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(records); err != nil {
			log.Fatalf("[backtest] encode: %v", err)
		}
		return
	}

	for _, run := range runs {
		printRun(run)
	}

	fmt.Println()
	fmt.Println("╔══════════════════════════════════════╗")
	fmt.Println("║        BACKTEST COMPLETE             ║")
	fmt.Println("╠══════════════════════════════════════╣")
	fmt.Printf("║  Symbol:            %-16s ║\n", *symbol)
	fmt.Printf("║  Bars:              %-16d ║\n", series.Len())
	fmt.Printf("║  Rules:             %-16d ║\n", len(runs))
	fmt.Printf("║  Elapsed:           %-16s ║\n", elapsed.Round(time.Millisecond))
	fmt.Println("╚══════════════════════════════════════╝")
}

var summaryKeys = []string{
	perf.KeyTotalTrades,
	perf.KeyWinRatio,
	perf.KeyProfitFactor,
	perf.KeyTotalReturn,
	perf.KeySharpe,
	perf.KeyMaxDrawdown,
	perf.KeyKelly,
	perf.KeyMCExpected,
	perf.KeyMCVaR95,
	perf.KeyMCRobustness,
}

func printRun(run *backtest.Run) {
	fmt.Printf("\n── %s ──\n", run.Rule)
	if run.Err != nil {
		fmt.Printf("  error: %v\n", run.Err)
		return
	}
	for _, k := range summaryKeys {
		fmt.Printf("  %-22s %12.4f\n", k, run.Report[k])
	}
}

func parseRules(s string) []model.RuleIdentity {
	var rules []model.RuleIdentity
	for _, part := range strings.Split(s, ";") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		if r := model.ParseRuleIdentity(part); r.Name != "" {
			rules = append(rules, r)
		}
	}
	return rules
}
