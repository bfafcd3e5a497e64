package binance

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rustyeddy/perps/market"
)

// ErrUnhandledEvent is returned for user data events the engine ignores.
var ErrUnhandledEvent = errors.New("unhandled event")

// KlineEvent is a <symbol>@kline_<interval> message.
type KlineEvent struct {
	EventType string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	Kline     struct {
		StartTime int64  `json:"t"`
		Interval  string `json:"i"`
		Open      Float  `json:"o"`
		High      Float  `json:"h"`
		Low       Float  `json:"l"`
		Close     Float  `json:"c"`
		Volume    Float  `json:"v"`
		Closed    bool   `json:"x"`
	} `json:"k"`
}

func (e KlineEvent) Candle() market.Candle {
	return market.Candle{
		OpenTime: time.UnixMilli(e.Kline.StartTime).UTC(),
		Open:     e.Kline.Open.Float64(),
		High:     e.Kline.High.Float64(),
		Low:      e.Kline.Low.Float64(),
		Close:    e.Kline.Close.Float64(),
		Volume:   e.Kline.Volume.Float64(),
	}
}

func DecodeKline(b []byte) (KlineEvent, error) {
	var ev KlineEvent
	if err := json.Unmarshal(b, &ev); err != nil {
		return ev, fmt.Errorf("decode kline: %w", err)
	}
	if ev.Symbol == "" || ev.Kline.StartTime == 0 {
		return ev, fmt.Errorf("decode kline: missing symbol or start time")
	}
	return ev, nil
}

// DepthEvent is a <symbol>@depth<levels> partial book message.
type DepthEvent struct {
	EventTime int64      `json:"E"`
	Symbol    string     `json:"s"`
	Bids      [][2]Float `json:"b"`
	Asks      [][2]Float `json:"a"`
}

func (e DepthEvent) OrderBook() market.OrderBook {
	ob := market.OrderBook{
		Symbol:    e.Symbol,
		Bids:      make([]market.Level, 0, len(e.Bids)),
		Asks:      make([]market.Level, 0, len(e.Asks)),
		EventTime: time.UnixMilli(e.EventTime).UTC(),
	}
	for _, l := range e.Bids {
		ob.Bids = append(ob.Bids, market.Level{Price: l[0].Float64(), Qty: l[1].Float64()})
	}
	for _, l := range e.Asks {
		ob.Asks = append(ob.Asks, market.Level{Price: l[0].Float64(), Qty: l[1].Float64()})
	}
	return ob
}

func DecodeDepth(b []byte) (DepthEvent, error) {
	var ev DepthEvent
	if err := json.Unmarshal(b, &ev); err != nil {
		return ev, fmt.Errorf("decode depth: %w", err)
	}
	if ev.Symbol == "" {
		return ev, fmt.Errorf("decode depth: missing symbol")
	}
	return ev, nil
}

// Balance and position deltas carry pointers so that absent fields can be
// told apart from zero values.
type BalanceDelta struct {
	Asset         string `json:"a"`
	WalletBalance *Float `json:"wb"`
	CrossWallet   *Float `json:"cw"`
	BalanceChange *Float `json:"bc"`
}

type PositionDelta struct {
	Symbol         string `json:"s"`
	Amount         *Float `json:"pa"`
	EntryPrice     *Float `json:"ep"`
	UnrealizedPnL  *Float `json:"up"`
	BreakEvenPrice *Float `json:"bep"`
	PositionSide   string `json:"ps"`
}

type AccountUpdateEvent struct {
	EventTime int64 `json:"E"`
	Update    struct {
		Reason    string          `json:"m"`
		Balances  []BalanceDelta  `json:"B"`
		Positions []PositionDelta `json:"P"`
	} `json:"a"`
}

// AccountConfigEvent reports a leverage change.
type AccountConfigEvent struct {
	EventTime int64 `json:"E"`
	Config    struct {
		Symbol   string `json:"s"`
		Leverage int    `json:"l"`
	} `json:"ac"`
}

type OrderTradeUpdateEvent struct {
	EventTime int64 `json:"E"`
	Order     struct {
		Symbol        string    `json:"s"`
		ClientOrderID string    `json:"c"`
		Side          OrderSide `json:"S"`
		Type          string    `json:"o"`
		Status        string    `json:"X"`
		OrderID       int64     `json:"i"`
		AvgPrice      Float     `json:"ap"`
		Quantity      Float     `json:"q"`
		FilledQty     Float     `json:"z"`
		RealizedPnL   Float     `json:"rp"`
		Commission    Float     `json:"n"`
		CommissionAs  string    `json:"N"`
	} `json:"o"`
}

func (e OrderTradeUpdateEvent) Fill() market.Fill {
	o := e.Order
	return market.Fill{
		Symbol:        o.Symbol,
		OrderID:       o.OrderID,
		ClientOrderID: o.ClientOrderID,
		Side:          string(o.Side),
		Status:        o.Status,
		AvgPrice:      o.AvgPrice.Float64(),
		Quantity:      o.Quantity.Float64(),
		FilledQty:     o.FilledQty.Float64(),
		RealizedPnL:   o.RealizedPnL.Float64(),
		Commission:    o.Commission.Float64(),
		Time:          time.UnixMilli(e.EventTime).UTC(),
	}
}

// ListenKeyExpiredEvent means the stream must be reopened with a new key.
type ListenKeyExpiredEvent struct {
	EventTime int64 `json:"E"`
}

// DecodeUserEvent decodes a user data stream message into one of the
// *Event types above, or returns ErrUnhandledEvent.
func DecodeUserEvent(b []byte) (any, error) {
	var head struct {
		Type string `json:"e"`
	}
	if err := json.Unmarshal(b, &head); err != nil {
		return nil, fmt.Errorf("decode user event: %w", err)
	}

	var ev any
	switch head.Type {
	case "ACCOUNT_UPDATE":
		ev = &AccountUpdateEvent{}
	case "ACCOUNT_CONFIG_UPDATE":
		ev = &AccountConfigEvent{}
	case "ORDER_TRADE_UPDATE":
		ev = &OrderTradeUpdateEvent{}
	case "listenKeyExpired":
		ev = &ListenKeyExpiredEvent{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnhandledEvent, head.Type)
	}
	if err := json.Unmarshal(b, ev); err != nil {
		return nil, fmt.Errorf("decode %s: %w", head.Type, err)
	}
	return ev, nil
}

// DepthStream and KlineStream build stream names for symbol.
func DepthStream(symbol string) string {
	return strings.ToLower(symbol) + "@depth20@500ms"
}

func KlineStream(symbol, interval string) string {
	return strings.ToLower(symbol) + "@kline_" + interval
}

// StreamEndpoint joins a stream name or listen key onto base.
func StreamEndpoint(base, name string) string {
	return strings.TrimRight(base, "/") + "/" + name
}
