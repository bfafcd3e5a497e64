package market

import (
	"math"
	"time"
)

// Side is the direction of an open position.
type Side int

const (
	Flat Side = iota
	Long
	Short
)

func (s Side) String() string {
	switch s {
	case Long:
		return "LONG"
	case Short:
		return "SHORT"
	default:
		return "FLAT"
	}
}

// Position is the per-instrument position state. Amount is signed:
// positive is long, negative is short and zero is flat.
type Position struct {
	Symbol         string    `json:"symbol"`
	AvgEntryPrice  float64   `json:"avg_entry_price"`
	Amount         float64   `json:"position_amount"`
	Leverage       float64   `json:"leverage"`
	UnrealizedPnL  float64   `json:"unrealized_pnl"`
	BreakEvenPrice float64   `json:"breakeven_price"`
	Regime         string    `json:"regime"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Normalize enforces AvgEntryPrice == 0 if and only if Amount == 0.
func (p *Position) Normalize() {
	if p.Amount == 0 || p.AvgEntryPrice == 0 {
		p.Amount = 0
		p.AvgEntryPrice = 0
		p.UnrealizedPnL = 0
		p.BreakEvenPrice = 0
	}
}

func (p Position) Side() Side {
	switch {
	case p.Amount > 0:
		return Long
	case p.Amount < 0:
		return Short
	default:
		return Flat
	}
}

func (p Position) IsFlat() bool { return p.Amount == 0 }

// Notional is the entry value of the position, unsigned.
func (p Position) Notional() float64 {
	return p.AvgEntryPrice * math.Abs(p.Amount)
}

// Account holds the USDT futures wallet state.
type Account struct {
	WalletBalance      float64   `json:"wallet_balance"`
	FreeMargin         float64   `json:"free_margin"`
	UsedMargin         float64   `json:"used_margin"`
	TotalMarginBalance float64   `json:"total_margin_balance"`
	TotalUnrealizedPnL float64   `json:"total_unrealized_pnl"`
	UpdatedAt          time.Time `json:"updated_at"`
}
