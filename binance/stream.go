package binance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/rustyeddy/perps/metrics"
)

// ErrReconnect may be returned by a Stream handler to drop the connection
// and go through the reconnect path.
var ErrReconnect = errors.New("reconnect requested")

const (
	DefaultReconnectDelay = 5 * time.Second

	readLimit    = 1 << 20
	readTimeout  = 60 * time.Second
	pingInterval = 15 * time.Second
)

// Stream describes one supervised websocket connection.
type Stream struct {
	// Name labels logs and metrics.
	Name string
	// URL resolves the endpoint before every connect.
	URL func(ctx context.Context) (string, error)
	// BeforeConnect runs before every connect attempt. An error is logged
	// and counts as a failed attempt.
	BeforeConnect func(ctx context.Context) error
	// Handle processes one message. Errors other than ErrReconnect are
	// logged and the message dropped.
	Handle func(msg []byte) error
	// Delay between attempts. Zero means DefaultReconnectDelay.
	Delay time.Duration
}

// StaticURL returns a URL resolver for a fixed endpoint.
func StaticURL(u string) func(context.Context) (string, error) {
	return func(context.Context) (string, error) { return u, nil }
}

// Supervise runs s until ctx is cancelled: connect, read until error, log,
// sleep a fixed delay, reconnect. There is no retry ceiling.
func Supervise(ctx context.Context, s Stream, log zerolog.Logger) error {
	delay := s.Delay
	if delay <= 0 {
		delay = DefaultReconnectDelay
	}
	log = log.With().Str("stream", s.Name).Logger()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err := s.run(ctx, log)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn().Err(err).Dur("delay", delay).Msg("stream disconnected, reconnecting")
		metrics.Reconnects.WithLabelValues(s.Name).Inc()

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s Stream) run(ctx context.Context, log zerolog.Logger) error {
	if s.BeforeConnect != nil {
		if err := s.BeforeConnect(ctx); err != nil {
			return fmt.Errorf("before connect: %w", err)
		}
	}
	u, err := s.URL(ctx)
	if err != nil {
		return fmt.Errorf("resolve url: %w", err)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	log.Info().Msg("stream connected")

	conn.SetReadLimit(readLimit)
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})
	// Binance pings every few minutes and expects the payload echoed.
	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(5*time.Second))
	})

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
					log.Warn().Err(err).Msg("ping failed")
					return
				}
			case <-connCtx.Done():
				// unblocks ReadMessage on shutdown
				_ = conn.Close()
				return
			}
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		metrics.StreamMessages.WithLabelValues(s.Name).Inc()

		if err := s.Handle(msg); err != nil {
			if errors.Is(err, ErrReconnect) {
				return err
			}
			metrics.StreamErrors.WithLabelValues(s.Name).Inc()
			log.Warn().Err(err).Msg("dropping message")
		}
	}
}
