package backtest

import "signalperf/internal/model"

// Fires keeps a direction only on the bar where it changes. Double-strength
// signals fold into BUY/SELL first, so BUY followed by DBL_BUY is one fire.
// Event-style series pass through unchanged.
func Fires(dir []model.Signal) []model.Signal {
	out := make([]model.Signal, len(dir))
	prev := model.NoTrade
	for i, d := range dir {
		cur := d.Normalize()
		if cur != prev {
			out[i] = cur
		}
		prev = cur
	}
	return out
}

// FireCount returns the number of BUY and SELL fires.
func FireCount(dir []model.Signal) (buys, sells int) {
	for _, d := range Fires(dir) {
		switch d {
		case model.Buy:
			buys++
		case model.Sell:
			sells++
		}
	}
	return buys, sells
}
