package binance

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/rustyeddy/perps/market"
)

// AccountInfo is the /fapi/v2/account response.
type AccountInfo struct {
	TotalWalletBalance    Float             `json:"totalWalletBalance"`
	AvailableBalance      Float             `json:"availableBalance"`
	TotalInitialMargin    Float             `json:"totalInitialMargin"`
	TotalMarginBalance    Float             `json:"totalMarginBalance"`
	TotalUnrealizedProfit Float             `json:"totalUnrealizedProfit"`
	Positions             []AccountPosition `json:"positions"`
}

type AccountPosition struct {
	Symbol           string `json:"symbol"`
	EntryPrice       Float  `json:"entryPrice"`
	PositionAmt      Float  `json:"positionAmt"`
	Leverage         Float  `json:"leverage"`
	UnrealizedProfit Float  `json:"unrealizedProfit"`
	BreakEvenPrice   Float  `json:"breakEvenPrice"`
}

// Account converts the balance fields.
func (a AccountInfo) Account(at time.Time) market.Account {
	return market.Account{
		WalletBalance:      a.TotalWalletBalance.Float64(),
		FreeMargin:         a.AvailableBalance.Float64(),
		UsedMargin:         a.TotalInitialMargin.Float64(),
		TotalMarginBalance: a.TotalMarginBalance.Float64(),
		TotalUnrealizedPnL: a.TotalUnrealizedProfit.Float64(),
		UpdatedAt:          at,
	}
}

func (p AccountPosition) Position(at time.Time) market.Position {
	pos := market.Position{
		Symbol:         p.Symbol,
		AvgEntryPrice:  p.EntryPrice.Float64(),
		Amount:         p.PositionAmt.Float64(),
		Leverage:       p.Leverage.Float64(),
		UnrealizedPnL:  p.UnrealizedProfit.Float64(),
		BreakEvenPrice: p.BreakEvenPrice.Float64(),
		UpdatedAt:      at,
	}
	pos.Normalize()
	return pos
}

// PositionRisk is one row of /fapi/v2/positionRisk.
type PositionRisk struct {
	Symbol           string `json:"symbol"`
	EntryPrice       Float  `json:"entryPrice"`
	PositionAmt      Float  `json:"positionAmt"`
	Leverage         Float  `json:"leverage"`
	UnrealizedProfit Float  `json:"unRealizedProfit"`
	BreakEvenPrice   Float  `json:"breakEvenPrice"`
	MarkPrice        Float  `json:"markPrice"`
}

func (p PositionRisk) Position(at time.Time) market.Position {
	return AccountPosition{
		Symbol:           p.Symbol,
		EntryPrice:       p.EntryPrice,
		PositionAmt:      p.PositionAmt,
		Leverage:         p.Leverage,
		UnrealizedProfit: p.UnrealizedProfit,
		BreakEvenPrice:   p.BreakEvenPrice,
	}.Position(at)
}

func (c *Client) Account(ctx context.Context) (AccountInfo, error) {
	var out AccountInfo
	err := c.do(ctx, http.MethodGet, "/fapi/v2/account", nil, signed, &out)
	return out, err
}

// PositionRisk fetches positions; an empty symbol returns all of them.
func (c *Client) PositionRisk(ctx context.Context, symbol string) ([]PositionRisk, error) {
	q := url.Values{}
	if symbol != "" {
		q.Set("symbol", symbol)
	}
	var out []PositionRisk
	err := c.do(ctx, http.MethodGet, "/fapi/v2/positionRisk", q, signed, &out)
	return out, err
}
