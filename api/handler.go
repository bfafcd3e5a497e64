package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rustyeddy/perps/internal/status"
	"github.com/rustyeddy/perps/market"
	"github.com/rustyeddy/perps/marketdata"
	"github.com/rustyeddy/perps/metrics"
)

// Health handles GET /health requests
func (s *Server) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "OK",
		"service":   ServiceName,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   s.version,
	})
}

// Status handles GET /status requests. It reports the process status file
// when one is configured.
func (s *Server) Status(c *gin.Context) {
	out := gin.H{
		"service": ServiceName,
		"version": s.version,
		"uptime":  time.Since(s.started).Round(time.Second).String(),
		"symbols": s.state.Symbols(),
	}
	if s.statusFile != "" {
		doc, err := status.Read(s.statusFile)
		if err != nil {
			s.fail(c, err, http.StatusServiceUnavailable, "status unavailable")
			return
		}
		out["status"] = doc.Status
		out["pid"] = doc.PID
		out["updated_at"] = doc.UpdatedAt
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) Balance(c *gin.Context) {
	c.JSON(http.StatusOK, s.state.Account())
}

func (s *Server) Positions(c *gin.Context) {
	c.JSON(http.StatusOK, s.state.Positions())
}

func (s *Server) symbol(c *gin.Context) (string, bool) {
	sym := strings.ToUpper(c.Param("symbol"))
	for _, known := range s.state.Symbols() {
		if known == sym {
			return sym, true
		}
	}
	s.fail(c, marketdata.ErrUnknownSymbol, http.StatusNotFound, "unknown symbol "+sym)
	return "", false
}

func (s *Server) Position(c *gin.Context) {
	sym, ok := s.symbol(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.state.Position(sym))
}

// Candles handles GET /candles/:symbol?tf=fast|slow&limit=N
func (s *Server) Candles(c *gin.Context) {
	sym, ok := s.symbol(c)
	if !ok {
		return
	}

	var tf market.Timeframe
	switch c.DefaultQuery("tf", "fast") {
	case "fast":
		tf = market.Fast
	case "slow":
		tf = market.Slow
	default:
		s.fail(c, errors.New("bad timeframe"), http.StatusBadRequest, "tf must be fast or slow")
		return
	}

	limit := 0
	if q := c.Query("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n <= 0 {
			s.fail(c, errors.New("bad limit"), http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	candles, err := s.state.Candles(sym, tf)
	if err != nil {
		if errors.Is(err, marketdata.ErrUnknownSymbol) {
			s.fail(c, err, http.StatusNotFound, err.Error())
			return
		}
		s.fail(c, err, http.StatusInternalServerError, "Internal server error")
		return
	}
	if limit > 0 && len(candles) > limit {
		candles = candles[len(candles)-limit:]
	}
	c.JSON(http.StatusOK, candles)
}

func (s *Server) Signals(c *gin.Context) {
	c.JSON(http.StatusOK, s.signals.Latest())
}

func (s *Server) Metrics(c *gin.Context) {
	metrics.Handler().ServeHTTP(c.Writer, c.Request)
}

// fail logs the error and sends the response
func (s *Server) fail(c *gin.Context, err error, code int, msg string) {
	rid := c.GetString(RequestIDContextKey)
	s.log.Warn().
		Err(err).
		Str("request_id", rid).
		Str("path", c.Request.URL.Path).
		Int("status_code", code).
		Msg("api error")
	c.JSON(code, gin.H{"error": msg, "request_id": rid})
}
