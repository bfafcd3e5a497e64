package risk

import (
	"fmt"
	"math"

	"github.com/rustyeddy/perps/market"
)

const (
	// FreeMarginBuffer is how much free margin must exceed the order margin.
	FreeMarginBuffer = 1.1

	// AverageInBelow is the return on margin, in percent, under which an
	// existing position may be added to.
	AverageInBelow = -5.0

	TakeProfitAbove = 0.2
	StopLossBelow   = -5.0
)

type Violation struct {
	Code string
	Msg  string
}

type Decision struct {
	Allowed    bool
	Violations []Violation

	OrderMargin    float64
	ReturnOnMargin float64
}

func (d *Decision) add(code, msg string) {
	d.Violations = append(d.Violations, Violation{Code: code, Msg: msg})
	d.Allowed = false
}

// CanOpen is the open gate. Free margin must exceed FreeMarginBuffer times
// the order margin, and the instrument must either be flat or be losing
// more than AverageInBelow with an order margin no larger than the
// position's marked margin.
func CanOpen(p market.Position, acct market.Account, tradeRate float64) Decision {
	d := Decision{Allowed: true}

	d.OrderMargin = OrderMargin(acct.WalletBalance, tradeRate)
	d.ReturnOnMargin = ReturnOnMargin(p)

	if acct.FreeMargin <= d.OrderMargin*FreeMarginBuffer {
		d.add("FREE_MARGIN_LOW",
			fmt.Sprintf("free margin %.4f not above %.4f", acct.FreeMargin, d.OrderMargin*FreeMarginBuffer))
	}

	if p.AvgEntryPrice == 0 {
		return d
	}

	if d.ReturnOnMargin >= AverageInBelow {
		d.add("POSITION_OPEN",
			fmt.Sprintf("return on margin %.4f%% not below %.2f%%", d.ReturnOnMargin, AverageInBelow))
	}
	if marked := MarkedMargin(p); d.OrderMargin > marked {
		d.add("ORDER_EXCEEDS_POSITION",
			fmt.Sprintf("order margin %.4f exceeds position margin %.4f", d.OrderMargin, marked))
	}
	return d
}

// CanClose is the close gate: take profit above TakeProfitAbove or stop
// loss below StopLossBelow. Both bounds are strict.
func CanClose(p market.Position) bool {
	if math.Abs(p.Amount) == 0 {
		return false
	}
	g := ReturnOnMargin(p)
	return g > TakeProfitAbove || g < StopLossBelow
}
