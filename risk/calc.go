package risk

import (
	"math"

	"github.com/rustyeddy/perps/market"
)

// ReturnOnMargin is the leverage-adjusted unrealized return of a position,
// in percent. It is 0 for a flat position or one without an entry price.
func ReturnOnMargin(p market.Position) float64 {
	if p.AvgEntryPrice == 0 || p.Amount == 0 {
		return 0
	}
	return p.UnrealizedPnL / (p.AvgEntryPrice * math.Abs(p.Amount)) * 100 * p.Leverage
}

// OrderMargin is the margin committed by one new order.
func OrderMargin(wallet, tradeRate float64) float64 {
	return wallet * tradeRate
}

// MarkedMargin is the margin value of the open position at its marked
// price.
func MarkedMargin(p market.Position) float64 {
	if p.Leverage <= 0 {
		return 0
	}
	return (p.Notional() + p.UnrealizedPnL) / p.Leverage
}

// OpenSize is the base quantity for a new order:
// round(wallet * tradeRate * leverage / price).
func OpenSize(wallet, tradeRate, leverage, price float64) float64 {
	if price <= 0 || math.IsNaN(price) {
		return 0
	}
	return math.Round(wallet * tradeRate * leverage / price)
}

// CloseSize always flattens the whole position.
func CloseSize(p market.Position) float64 {
	return math.Abs(p.Amount)
}
