package market

import "time"

// Level is a single price level of an order book side.
type Level struct {
	Price float64 `json:"price"`
	Qty   float64 `json:"qty"`
}

// OrderBook is a top-N snapshot of both book sides. It is replaced
// wholesale on every depth message and never merged.
type OrderBook struct {
	Symbol    string    `json:"symbol"`
	Bids      []Level   `json:"bids"`
	Asks      []Level   `json:"asks"`
	EventTime time.Time `json:"event_time"`
}

// Clone returns a deep copy of the book.
func (ob OrderBook) Clone() OrderBook {
	out := ob
	out.Bids = append([]Level(nil), ob.Bids...)
	out.Asks = append([]Level(nil), ob.Asks...)
	return out
}

func (ob OrderBook) Empty() bool {
	return len(ob.Bids) == 0 && len(ob.Asks) == 0
}
