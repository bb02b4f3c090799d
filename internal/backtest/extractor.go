// Package backtest turns a direction series into trades and per-bar returns
// and drives indicator evaluation and reporting for one or many rules.
package backtest

import (
	"errors"
	"fmt"
	"time"

	"signalperf/internal/model"
)

// ErrLengthMismatch is returned when the direction and price series are not aligned.
var ErrLengthMismatch = errors.New("direction and price series lengths differ")

// ExtractorConfig tunes trade extraction.
type ExtractorConfig struct {
	// CloseAtEnd marks a leg still open on the last bar to the last price.
	CloseAtEnd bool
}

// Result is the output of Extract.
type Result struct {
	Trades     []model.Trade
	BarReturns []float64 // fraction per bar, 0 while flat
	Exposure   float64   // percent of bars held long
}

// position is the FLAT/LONG state carried through the fold.
type position struct {
	long       bool
	entryIndex int
	entryPrice float64
}

// Extract folds the direction series into long trades priced at the bar close.
//
// BUY while flat opens a leg. BUY while long closes the leg and reopens at the
// same price. SELL while long closes it. Everything else holds. A leading SELL
// is ignored: only long positions are modeled.
//
// The return of bar i uses the position held coming into bar i, so the bar
// that opens a leg earns nothing and the bar that closes it earns its move.
func Extract(dir []model.Signal, prices []float64, times []time.Time, cfg ExtractorConfig) (*Result, error) {
	n := len(dir)
	if len(prices) != n {
		return nil, fmt.Errorf("%d directions, %d prices: %w", n, len(prices), ErrLengthMismatch)
	}
	if len(times) != 0 && len(times) != n {
		return nil, fmt.Errorf("%d directions, %d timestamps: %w", n, len(times), ErrLengthMismatch)
	}

	res := &Result{BarReturns: make([]float64, n)}
	var pos position
	held := 0

	closeLeg := func(i int, reason model.ExitReason) {
		t := model.Trade{
			EntryIndex: pos.entryIndex,
			ExitIndex:  i,
			EntryPrice: pos.entryPrice,
			ExitPrice:  prices[i],
			Reason:     reason,
		}
		if pos.entryPrice != 0 {
			t.ReturnPct = (prices[i] - pos.entryPrice) / pos.entryPrice * 100
		}
		if len(times) != 0 {
			t.EntryTime = times[pos.entryIndex]
			t.ExitTime = times[i]
		}
		res.Trades = append(res.Trades, t)
		pos = position{}
	}
	open := func(i int) {
		pos = position{long: true, entryIndex: i, entryPrice: prices[i]}
	}

	for i := 0; i < n; i++ {
		if pos.long && i > 0 {
			held++
			if prev := prices[i-1]; prev != 0 {
				res.BarReturns[i] = (prices[i] - prev) / prev
			}
		}

		switch dir[i].Normalize() {
		case model.Buy:
			if pos.long {
				closeLeg(i, model.ExitReentry)
			}
			open(i)
		case model.Sell:
			if pos.long {
				closeLeg(i, model.ExitSignal)
			}
		}
	}

	if cfg.CloseAtEnd && pos.long && pos.entryIndex < n-1 {
		closeLeg(n-1, model.ExitEndOfRun)
	}
	if n > 0 {
		res.Exposure = float64(held) / float64(n) * 100
	}
	return res, nil
}
