// cmd/importbars loads OHLCV bars from a CSV file into the SQLite bar store.
//
// Usage:
//
//	go run ./cmd/importbars --file=eurusd_h1.csv --symbol=EURUSD --tf=3600
package main

import (
	"flag"
	"log"
	"os"
	"path/filepath"

	"signalperf/internal/model"
	sqlitestore "signalperf/internal/store/sqlite"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	file := flag.String("file", "", "CSV file: time,open,high,low,close[,volume]")
	symbol := flag.String("symbol", "", "Symbol to store the bars under")
	tf := flag.Int("tf", 3600, "Timeframe in seconds")
	dbPath := flag.String("db", "data/signalperf.db", "Path to SQLite database")
	flag.Parse()

	if *file == "" || *symbol == "" {
		log.Fatal("[importbars] --file and --symbol are required")
	}

	f, err := os.Open(*file)
	if err != nil {
		log.Fatalf("[importbars] open: %v", err)
	}
	defer f.Close()

	bars, err := parseBars(f)
	if err != nil {
		log.Fatalf("[importbars] parse %s: %v", *file, err)
	}
	// Validates ordering before anything is written.
	series, err := model.NewPriceSeries(*symbol, *tf, 0, bars)
	if err != nil {
		log.Fatalf("[importbars] %v", err)
	}

	if dir := filepath.Dir(*dbPath); dir != "." {
		os.MkdirAll(dir, 0o755)
	}
	w, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: *dbPath})
	if err != nil {
		log.Fatalf("[importbars] sqlite init failed: %v", err)
	}
	defer w.Close()

	var bw model.BarWriter = w
	if err := bw.WriteBars(*symbol, *tf, series.Bars()); err != nil {
		log.Fatalf("[importbars] write: %v", err)
	}
	log.Printf("[importbars] stored %d bars for %s tf=%ds in %s", series.Len(), *symbol, *tf, *dbPath)
}
