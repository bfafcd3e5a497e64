package indicators

import "github.com/rustyeddy/perps/market"

// BookMetrics are aggregate pressure metrics over an order book snapshot.
type BookMetrics struct {
	Symbol    string  `json:"symbol"`
	BestBid   float64 `json:"best_bid"`
	BestAsk   float64 `json:"best_ask"`
	Spread    float64 `json:"spread"`
	LowBid    float64 `json:"low_bid"`
	HighAsk   float64 `json:"high_ask"`
	TotalBid  float64 `json:"total_bid"`
	TotalAsk  float64 `json:"total_ask"`
	Imbalance float64 `json:"order_imbalance"`
	Pressure  float64 `json:"pressure_ratio"`
	BidDepth  float64 `json:"bid_depth"`
	AskDepth  float64 `json:"ask_depth"`
}

// DepthBand is the distance from mid, as a fraction, counted into
// BidDepth and AskDepth.
const DepthBand = 0.01

// Book derives BookMetrics from a snapshot. LowBid and HighAsk are the
// deepest levels on each side, which are the prices used for resting
// limit orders. An empty book has zero imbalance and a pressure of 0.5.
func Book(ob market.OrderBook) BookMetrics {
	m := BookMetrics{Symbol: ob.Symbol, Pressure: 0.5}

	if len(ob.Bids) > 0 {
		m.BestBid = ob.Bids[0].Price
		m.LowBid = ob.Bids[len(ob.Bids)-1].Price
	}
	if len(ob.Asks) > 0 {
		m.BestAsk = ob.Asks[0].Price
		m.HighAsk = ob.Asks[len(ob.Asks)-1].Price
	}
	m.Spread = m.BestAsk - m.BestBid

	for _, l := range ob.Bids {
		m.TotalBid += l.Qty
	}
	for _, l := range ob.Asks {
		m.TotalAsk += l.Qty
	}
	if total := m.TotalBid + m.TotalAsk; total > 0 {
		m.Imbalance = (m.TotalBid - m.TotalAsk) / total
		m.Pressure = m.TotalBid / total
	}

	mid := (m.BestBid + m.BestAsk) / 2
	band := mid * DepthBand
	for _, l := range ob.Bids {
		if l.Price >= mid-band && l.Price <= mid {
			m.BidDepth += l.Qty
		}
	}
	for _, l := range ob.Asks {
		if l.Price >= mid && l.Price <= mid+band {
			m.AskDepth += l.Qty
		}
	}
	return m
}
