package strategies

import (
	"fmt"
	"time"
)

// Action is what a Signal asks the execution layer to do.
type Action int

const (
	Hold Action = iota
	EnterLong
	EnterShort
	ExitLong
	ExitShort
)

func (a Action) String() string {
	switch a {
	case EnterLong:
		return "ENTER_LONG"
	case EnterShort:
		return "ENTER_SHORT"
	case ExitLong:
		return "EXIT_LONG"
	case ExitShort:
		return "EXIT_SHORT"
	default:
		return "HOLD"
	}
}

// Buy reports whether the action is executed with a BUY order.
func (a Action) Buy() bool {
	return a == EnterLong || a == ExitShort
}

// Opens reports whether the action opens or adds to a position.
func (a Action) Opens() bool {
	return a == EnterLong || a == EnterShort
}

// Signal is the decision of one tick for one instrument. Price is the
// limit price and Size the base quantity.
type Signal struct {
	Symbol    string     `json:"symbol"`
	Action    Action     `json:"action"`
	Price     float64    `json:"price"`
	Size      float64    `json:"size"`
	Strategy  StrategyID `json:"strategy"`
	Reason    string     `json:"reason"`
	Regime    Regime     `json:"regime"`
	CreatedAt time.Time  `json:"created_at"`
}

func (s Signal) String() string {
	if s.Action == Hold {
		return fmt.Sprintf("%s HOLD", s.Symbol)
	}
	return fmt.Sprintf("%s %s %g@%g by %s (%s)", s.Symbol, s.Action, s.Size, s.Price, s.Strategy, s.Reason)
}

// MarshalText lets Action appear by name in JSON output.
func (a Action) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}
