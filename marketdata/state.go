// Package marketdata keeps the authoritative in-memory view of candles,
// order books, balances and positions, fed by exchange streams and polls.
package marketdata

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rustyeddy/perps/binance"
	"github.com/rustyeddy/perps/market"
)

var ErrUnknownSymbol = errors.New("unknown symbol")

// Snapshot is a copy of one instrument's state. It shares no memory with
// the synchronizer.
type Snapshot struct {
	Symbol   string
	Fast     []market.Candle
	Slow     []market.Candle
	Book     market.OrderBook
	Position market.Position
}

// instrumentState is guarded by its own mutex so writers of one symbol
// never block readers of another.
type instrumentState struct {
	mu   sync.Mutex
	fast *market.CandleWindow
	slow *market.CandleWindow
	book market.OrderBook
}

func (s *instrumentState) window(tf market.Timeframe) *market.CandleWindow {
	if tf == market.Slow {
		return s.slow
	}
	return s.fast
}

func (s *Synchronizer) instrument(symbol string) (*instrumentState, error) {
	st, ok := s.instruments[strings.ToUpper(symbol)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
	}
	return st, nil
}

// Symbols returns the configured instruments in configuration order.
func (s *Synchronizer) Symbols() []string {
	return append([]string(nil), s.cfg.Symbols...)
}

func (s *Synchronizer) Snapshot(symbol string) (Snapshot, error) {
	st, err := s.instrument(symbol)
	if err != nil {
		return Snapshot{}, err
	}
	snap := Snapshot{Symbol: strings.ToUpper(symbol)}

	st.mu.Lock()
	snap.Fast = st.fast.Candles()
	snap.Slow = st.slow.Candles()
	snap.Book = st.book.Clone()
	st.mu.Unlock()

	snap.Position = s.Position(symbol)
	return snap, nil
}

func (s *Synchronizer) Book(symbol string) (market.OrderBook, error) {
	st, err := s.instrument(symbol)
	if err != nil {
		return market.OrderBook{}, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.book.Clone(), nil
}

func (s *Synchronizer) Candles(symbol string, tf market.Timeframe) ([]market.Candle, error) {
	st, err := s.instrument(symbol)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.window(tf).Candles(), nil
}

func (s *Synchronizer) Account() market.Account {
	s.acctMu.RLock()
	defer s.acctMu.RUnlock()
	return s.account
}

// Position returns the position for symbol; unknown symbols are flat.
func (s *Synchronizer) Position(symbol string) market.Position {
	symbol = strings.ToUpper(symbol)
	s.acctMu.RLock()
	defer s.acctMu.RUnlock()
	p, ok := s.positions[symbol]
	if !ok {
		return market.Position{Symbol: symbol}
	}
	return p
}

// Positions returns the positions of all configured symbols.
func (s *Synchronizer) Positions() []market.Position {
	out := make([]market.Position, 0, len(s.cfg.Symbols))
	for _, sym := range s.cfg.Symbols {
		out = append(out, s.Position(sym))
	}
	return out
}

// ApplyKline merges one kline update into the window of tf. It reports
// whether the window changed.
func (s *Synchronizer) ApplyKline(symbol string, tf market.Timeframe, c market.Candle, closed bool) (bool, error) {
	st, err := s.instrument(symbol)
	if err != nil {
		return false, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.window(tf).Apply(c, closed), nil
}

// ResetCandles replaces the window of tf with candles.
func (s *Synchronizer) ResetCandles(symbol string, tf market.Timeframe, candles []market.Candle) error {
	st, err := s.instrument(symbol)
	if err != nil {
		return err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	st.window(tf).Reset(candles)
	return nil
}

// ApplyDepth replaces the book wholesale. The last message to arrive wins.
func (s *Synchronizer) ApplyDepth(book market.OrderBook) error {
	st, err := s.instrument(book.Symbol)
	if err != nil {
		return err
	}
	book = book.Clone()
	st.mu.Lock()
	st.book = book
	st.mu.Unlock()
	return nil
}

// ApplyAccountUpdate merges a pushed delta. Only the fields present in the
// event are written and positions of unconfigured symbols are ignored. It
// returns the USDT balance change, if any.
func (s *Synchronizer) ApplyAccountUpdate(ev *binance.AccountUpdateEvent) float64 {
	at := time.UnixMilli(ev.EventTime).UTC()
	change := 0.0

	s.acctMu.Lock()
	defer s.acctMu.Unlock()

	for _, b := range ev.Update.Balances {
		if b.Asset != "USDT" {
			continue
		}
		if b.WalletBalance != nil {
			s.account.WalletBalance = b.WalletBalance.Float64()
		}
		if b.BalanceChange != nil {
			change = b.BalanceChange.Float64()
		}
		s.account.UpdatedAt = at
	}

	for _, d := range ev.Update.Positions {
		if d.PositionSide != "" && d.PositionSide != "BOTH" {
			continue
		}
		sym := strings.ToUpper(d.Symbol)
		if _, ok := s.instruments[sym]; !ok {
			continue
		}
		p := s.positions[sym]
		if d.Amount != nil {
			p.Amount = d.Amount.Float64()
		}
		if d.EntryPrice != nil {
			p.AvgEntryPrice = d.EntryPrice.Float64()
		}
		if d.UnrealizedPnL != nil {
			p.UnrealizedPnL = d.UnrealizedPnL.Float64()
		}
		if d.BreakEvenPrice != nil {
			p.BreakEvenPrice = d.BreakEvenPrice.Float64()
		}
		p.UpdatedAt = at
		p.Normalize()
		s.positions[sym] = p
	}
	return change
}

func (s *Synchronizer) ApplyLeverage(symbol string, leverage int) {
	symbol = strings.ToUpper(symbol)
	if _, ok := s.instruments[symbol]; !ok {
		return
	}
	s.acctMu.Lock()
	defer s.acctMu.Unlock()
	p := s.positions[symbol]
	p.Leverage = float64(leverage)
	s.positions[symbol] = p
}

// ApplyAccountSnapshot overwrites balances and the positions the snapshot
// carries. Positions of unconfigured symbols are ignored.
func (s *Synchronizer) ApplyAccountSnapshot(info binance.AccountInfo) {
	at := s.now()

	s.acctMu.Lock()
	defer s.acctMu.Unlock()

	regimes := make(map[string]string, len(s.positions))
	for sym, p := range s.positions {
		regimes[sym] = p.Regime
	}

	s.account = info.Account(at)
	for _, ap := range info.Positions {
		sym := strings.ToUpper(ap.Symbol)
		if _, ok := s.instruments[sym]; !ok {
			continue
		}
		p := ap.Position(at)
		p.Regime = regimes[sym]
		s.positions[sym] = p
	}
}

// ApplyPositionRisk overwrites positions from /fapi/v2/positionRisk rows.
func (s *Synchronizer) ApplyPositionRisk(rows []binance.PositionRisk) {
	at := s.now()

	s.acctMu.Lock()
	defer s.acctMu.Unlock()

	for _, r := range rows {
		sym := strings.ToUpper(r.Symbol)
		if _, ok := s.instruments[sym]; !ok {
			continue
		}
		p := r.Position(at)
		p.Regime = s.positions[sym].Regime
		s.positions[sym] = p
	}
}

// SetRegime records the last regime seen for symbol.
func (s *Synchronizer) SetRegime(symbol, regime string) {
	symbol = strings.ToUpper(symbol)
	s.acctMu.Lock()
	defer s.acctMu.Unlock()
	p, ok := s.positions[symbol]
	if !ok {
		p = market.Position{Symbol: symbol}
	}
	p.Regime = regime
	s.positions[symbol] = p
}
