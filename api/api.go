// Package api is the read-only HTTP control surface over synchronized
// state and the latest trade cycle results.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/rustyeddy/perps/internal/logging"
	"github.com/rustyeddy/perps/market"
	"github.com/rustyeddy/perps/orchestrator"
)

const (
	ServiceName         = "perps"
	RequestIDContextKey = "request_id"
	RequestIDHeaderKey  = "X-Request-ID"
)

// State is the synchronized state served by the api.
type State interface {
	Symbols() []string
	Account() market.Account
	Position(symbol string) market.Position
	Positions() []market.Position
	Candles(symbol string, tf market.Timeframe) ([]market.Candle, error)
}

// Signals exposes the latest trade cycle results.
type Signals interface {
	Latest() []orchestrator.Status
}

type Server struct {
	state      State
	signals    Signals
	statusFile string
	version    string
	started    time.Time
	log        zerolog.Logger
}

type Option func(*Server)

func WithStatusFile(path string) Option { return func(s *Server) { s.statusFile = path } }

func WithVersion(v string) Option { return func(s *Server) { s.version = v } }

func WithLogger(log zerolog.Logger) Option {
	return func(s *Server) { s.log = logging.Component(log, "api") }
}

func New(state State, signals Signals, opts ...Option) *Server {
	s := &Server{
		state:   state,
		signals: signals,
		version: "dev",
		started: time.Now(),
		log:     zerolog.Nop(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Routes configures all API routes
func (s *Server) Routes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(requestID())
	router.Use(accessLog(s.log))
	router.Use(gin.Recovery())

	router.GET("/health", s.Health)
	router.GET("/status", s.Status)
	router.GET("/balance", s.Balance)
	router.GET("/positions", s.Positions)
	router.GET("/positions/:symbol", s.Position)
	router.GET("/candles/:symbol", s.Candles)
	router.GET("/signals", s.Signals)
	router.GET("/metrics", s.Metrics)
	return router
}

// Serve listens on addr until ctx is cancelled, then shuts down within
// timeout.
func (s *Server) Serve(ctx context.Context, addr string, timeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("api listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	return srv.Shutdown(sctx)
}
