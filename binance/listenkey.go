package binance

import (
	"context"
	"net/http"
)

// StartListenKey leases a user data stream key. An existing key is
// returned and extended if one is active.
func (c *Client) StartListenKey(ctx context.Context) (string, error) {
	var out struct {
		ListenKey string `json:"listenKey"`
	}
	if err := c.do(ctx, http.MethodPost, "/fapi/v1/listenKey", nil, keyed, &out); err != nil {
		return "", err
	}
	return out.ListenKey, nil
}

// KeepAliveListenKey extends the active key by 60 minutes.
func (c *Client) KeepAliveListenKey(ctx context.Context) error {
	return c.do(ctx, http.MethodPut, "/fapi/v1/listenKey", nil, keyed, nil)
}

func (c *Client) CloseListenKey(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/fapi/v1/listenKey", nil, keyed, nil)
}
