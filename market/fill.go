package market

import "time"

// Fill is a terminal execution report for one order.
type Fill struct {
	Symbol        string    `json:"symbol"`
	OrderID       int64     `json:"order_id"`
	ClientOrderID string    `json:"client_order_id"`
	Side          string    `json:"side"`
	Status        string    `json:"status"`
	AvgPrice      float64   `json:"avg_price"`
	Quantity      float64   `json:"quantity"`
	FilledQty     float64   `json:"filled_qty"`
	RealizedPnL   float64   `json:"realized_pnl"`
	Commission    float64   `json:"commission"`
	Time          time.Time `json:"time"`
}

// Value is the filled quantity at the average price.
func (f Fill) Value() float64 {
	return f.FilledQty * f.AvgPrice
}
