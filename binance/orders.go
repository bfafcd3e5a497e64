package binance

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// Order statuses reported by REST and ORDER_TRADE_UPDATE.
const (
	StatusNew             = "NEW"
	StatusPartiallyFilled = "PARTIALLY_FILLED"
	StatusFilled          = "FILLED"
	StatusCanceled        = "CANCELED"
	StatusExpired         = "EXPIRED"
	StatusRejected        = "REJECTED"
)

// LimitOrder is a GTC limit order request.
type LimitOrder struct {
	Symbol        string
	Side          OrderSide
	Quantity      float64
	Price         float64
	ClientOrderID string
}

func (o LimitOrder) validate() error {
	switch {
	case o.Symbol == "":
		return fmt.Errorf("symbol is required")
	case o.Side != Buy && o.Side != Sell:
		return fmt.Errorf("invalid side %q", o.Side)
	case o.Quantity <= 0:
		return fmt.Errorf("quantity must be positive")
	case o.Price <= 0:
		return fmt.Errorf("price must be positive")
	}
	return nil
}

// Order is the order shape returned by the order endpoints.
type Order struct {
	OrderID       int64     `json:"orderId"`
	ClientOrderID string    `json:"clientOrderId"`
	Symbol        string    `json:"symbol"`
	Side          OrderSide `json:"side"`
	Type          string    `json:"type"`
	TimeInForce   string    `json:"timeInForce"`
	Status        string    `json:"status"`
	Price         Float     `json:"price"`
	AvgPrice      Float     `json:"avgPrice"`
	OrigQty       Float     `json:"origQty"`
	ExecutedQty   Float     `json:"executedQty"`
	UpdateTime    int64     `json:"updateTime"`
}

func (c *Client) PlaceLimitOrder(ctx context.Context, o LimitOrder) (Order, error) {
	if err := o.validate(); err != nil {
		return Order{}, fmt.Errorf("place order: %w", err)
	}
	q := url.Values{}
	q.Set("symbol", o.Symbol)
	q.Set("side", string(o.Side))
	q.Set("type", "LIMIT")
	q.Set("timeInForce", "GTC")
	q.Set("quantity", formatFloat(o.Quantity))
	q.Set("price", formatFloat(o.Price))
	if o.ClientOrderID != "" {
		q.Set("newClientOrderId", o.ClientOrderID)
	}

	var out Order
	err := c.do(ctx, http.MethodPost, "/fapi/v1/order", q, signed, &out)
	return out, err
}

func (c *Client) CancelAllOpenOrders(ctx context.Context, symbol string) error {
	if symbol == "" {
		return fmt.Errorf("cancel orders: symbol is required")
	}
	q := url.Values{}
	q.Set("symbol", symbol)
	return c.do(ctx, http.MethodDelete, "/fapi/v1/allOpenOrders", q, signed, nil)
}

func (c *Client) OpenOrders(ctx context.Context, symbol string) ([]Order, error) {
	q := url.Values{}
	if symbol != "" {
		q.Set("symbol", symbol)
	}
	var out []Order
	err := c.do(ctx, http.MethodGet, "/fapi/v1/openOrders", q, signed, &out)
	return out, err
}

func (c *Client) GetOrder(ctx context.Context, symbol string, orderID int64) (Order, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("orderId", strconv.FormatInt(orderID, 10))
	var out Order
	err := c.do(ctx, http.MethodGet, "/fapi/v1/order", q, signed, &out)
	return out, err
}

func (c *Client) ChangeLeverage(ctx context.Context, symbol string, leverage int) error {
	if leverage < 1 || leverage > 125 {
		return fmt.Errorf("leverage %d out of range", leverage)
	}
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("leverage", strconv.Itoa(leverage))
	return c.do(ctx, http.MethodPost, "/fapi/v1/leverage", q, signed, nil)
}
