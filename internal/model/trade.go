package model

import (
	"encoding/json"
	"time"
)

// ExitReason explains why a trade was closed.
type ExitReason string

const (
	ExitSignal   ExitReason = "signal"   // SELL while long
	ExitReentry  ExitReason = "reentry"  // BUY while long: close and reopen
	ExitEndOfRun ExitReason = "end_of_run"
)

// Trade is one closed long leg. Immutable once recorded.
type Trade struct {
	EntryIndex int        `json:"entry_index"`
	ExitIndex  int        `json:"exit_index"`
	EntryTime  time.Time  `json:"entry_time"`
	ExitTime   time.Time  `json:"exit_time"`
	EntryPrice float64    `json:"entry_price"`
	ExitPrice  float64    `json:"exit_price"`
	ReturnPct  float64    `json:"return_pct"`
	Reason     ExitReason `json:"reason"`
}

// Bars returns the holding length of the trade in bars.
func (t *Trade) Bars() int { return t.ExitIndex - t.EntryIndex }

// JSON returns the JSON-encoded trade.
func (t *Trade) JSON() []byte {
	b, _ := json.Marshal(t)
	return b
}

// TradeReturns extracts return_pct from a trade list, preserving order.
func TradeReturns(trades []Trade) []float64 {
	out := make([]float64, len(trades))
	for i, t := range trades {
		out[i] = t.ReturnPct
	}
	return out
}
