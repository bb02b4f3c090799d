package model

// Signal is the per-bar directional decision.
// DblBuy/DblSell carry extra strength for display and trade like Buy/Sell.
type Signal int8

const (
	NoTrade Signal = 0
	Buy     Signal = 1
	Sell    Signal = 2
	DblBuy  Signal = 3
	DblSell Signal = 4
)

func (s Signal) String() string {
	switch s {
	case NoTrade:
		return "NOTRADE"
	case Buy:
		return "BUY"
	case Sell:
		return "SELL"
	case DblBuy:
		return "DBL_BUY"
	case DblSell:
		return "DBL_SELL"
	default:
		return "UNKNOWN"
	}
}

// Normalize folds the double-strength variants into Buy/Sell.
func (s Signal) Normalize() Signal {
	switch s {
	case DblBuy:
		return Buy
	case DblSell:
		return Sell
	case Buy, Sell:
		return s
	default:
		return NoTrade
	}
}

func (s Signal) IsBuy() bool  { return s.Normalize() == Buy }
func (s Signal) IsSell() bool { return s.Normalize() == Sell }

// Opposite swaps Buy and Sell (keeping strength). NoTrade stays NoTrade.
func (s Signal) Opposite() Signal {
	switch s {
	case Buy:
		return Sell
	case Sell:
		return Buy
	case DblBuy:
		return DblSell
	case DblSell:
		return DblBuy
	default:
		return NoTrade
	}
}

// Double promotes Buy/Sell to their double-strength variant.
func (s Signal) Double() Signal {
	switch s.Normalize() {
	case Buy:
		return DblBuy
	case Sell:
		return DblSell
	default:
		return NoTrade
	}
}

// Float returns the signal as a float column value.
func (s Signal) Float() float64 { return float64(s) }
