package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rustyeddy/perps/market"
)

// MaxKlines is the largest limit the klines endpoint accepts.
const MaxKlines = 1500

// Klines fetches the most recent candles of symbol, oldest first. The last
// candle is usually still forming.
func (c *Client) Klines(ctx context.Context, symbol, interval string, limit int) ([]market.Candle, error) {
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	if limit <= 0 || limit > MaxKlines {
		return nil, fmt.Errorf("limit must be between 1 and %d", MaxKlines)
	}

	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("interval", interval)
	q.Set("limit", strconv.Itoa(limit))

	var rows [][]json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/fapi/v1/klines", q, public, &rows); err != nil {
		return nil, err
	}

	candles := make([]market.Candle, 0, len(rows))
	for i, row := range rows {
		cd, err := parseKlineRow(row)
		if err != nil {
			return nil, fmt.Errorf("kline %d: %w", i, err)
		}
		candles = append(candles, cd)
	}
	return candles, nil
}

// parseKlineRow reads [openTime, open, high, low, close, volume, ...].
func parseKlineRow(row []json.RawMessage) (market.Candle, error) {
	if len(row) < 6 {
		return market.Candle{}, fmt.Errorf("expected at least 6 fields, got %d", len(row))
	}
	var openTime int64
	if err := json.Unmarshal(row[0], &openTime); err != nil {
		return market.Candle{}, fmt.Errorf("open time: %w", err)
	}
	var v [5]Float
	for i := range v {
		if err := json.Unmarshal(row[i+1], &v[i]); err != nil {
			return market.Candle{}, fmt.Errorf("field %d: %w", i+1, err)
		}
	}
	return market.Candle{
		OpenTime: time.UnixMilli(openTime).UTC(),
		Open:     v[0].Float64(),
		High:     v[1].Float64(),
		Low:      v[2].Float64(),
		Close:    v[3].Float64(),
		Volume:   v[4].Float64(),
	}, nil
}

func (c *Client) ServerTime(ctx context.Context) (time.Time, error) {
	var out struct {
		ServerTime int64 `json:"serverTime"`
	}
	if err := c.do(ctx, http.MethodGet, "/fapi/v1/time", nil, public, &out); err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(out.ServerTime).UTC(), nil
}

// ClockOffset is local time minus server time, measured at the midpoint of
// the round trip.
func (c *Client) ClockOffset(ctx context.Context) (time.Duration, error) {
	start := c.now()
	server, err := c.ServerTime(ctx)
	if err != nil {
		return 0, err
	}
	end := c.now()
	local := start.Add(end.Sub(start) / 2)
	return local.Sub(server), nil
}
