package execution

import (
	"context"
	"fmt"
	"strings"

	"github.com/rustyeddy/perps/binance"
	"github.com/rustyeddy/perps/journal"
	"github.com/rustyeddy/perps/market"
	"github.com/rustyeddy/perps/metrics"
	"github.com/rustyeddy/perps/pkg/id"
	"github.com/rustyeddy/perps/strategies"
)

// claim marks the order as reconciled and returns the signal it is
// attributed to. ok is false when the order was already reconciled.
func (e *Executor) claim(f market.Fill) (sig strategies.Signal, found, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, dup := e.seen[f.OrderID]; dup {
		return sig, false, false
	}
	e.seen[f.OrderID] = struct{}{}
	e.seenOrder = append(e.seenOrder, f.OrderID)
	if len(e.seenOrder) > seenLimit {
		delete(e.seen, e.seenOrder[0])
		e.seenOrder = e.seenOrder[1:]
	}

	if p, hit := e.placed[f.ClientOrderID]; hit && f.ClientOrderID != "" {
		delete(e.placed, f.ClientOrderID)
		return p.sig, true, true
	}
	sig, found = e.lastPlaced[f.Symbol]
	return sig, found, true
}

// HandleFill takes one order report from the account stream. Cancelled,
// expired and rejected orders are forgotten. A FILLED report is claimed
// once per order id and reconciled in the background; see Wait.
func (e *Executor) HandleFill(ctx context.Context, f market.Fill) {
	switch f.Status {
	case binance.StatusFilled:
	case binance.StatusCanceled, binance.StatusExpired, binance.StatusRejected:
		e.forget(f.ClientOrderID)
		return
	default:
		return
	}

	sig, found, ok := e.claim(f)
	if !ok {
		e.log.Debug().Int64("order_id", f.OrderID).Msg("duplicate fill ignored")
		return
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.reconcile(context.WithoutCancel(ctx), f, sig, found)
	}()
}

// Wait blocks until every claimed fill is reconciled or ctx is done.
func (e *Executor) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Executor) reconcile(ctx context.Context, f market.Fill, sig strategies.Signal, found bool) {
	rctx, cancel := context.WithTimeout(ctx, e.cfg.RefreshTimeout)
	if err := e.refresh.Refresh(rctx); err != nil {
		e.log.Warn().Err(err).Str("symbol", f.Symbol).Msg("refresh after fill failed")
	}
	cancel()

	acct := e.view.Account()
	pos := e.view.Position(f.Symbol)

	t := Trade{
		Fill:     f,
		Wallet:   acct.WalletBalance,
		Action:   f.Side,
		Leverage: pos.Leverage,
		Position: pos.Amount * pos.AvgEntryPrice,
	}
	if t.Leverage <= 0 {
		t.Leverage = e.cfg.Leverage
	}
	if found && sig.Action != strategies.Hold {
		t.Action = sig.Action.String()
		t.Reason = sig.Reason
	}
	text := t.Text()

	e.alert.Send(text)
	metrics.FillsTotal.WithLabelValues(f.Symbol, f.Side).Inc()

	log := e.log.Info().
		Str("symbol", f.Symbol).
		Int64("order_id", f.OrderID).
		Str("client_order_id", f.ClientOrderID).
		Str("action", t.Action).
		Float64("avg_price", f.AvgPrice).
		Float64("qty", f.FilledQty).
		Float64("realized_pnl", f.RealizedPnL)
	if found {
		log = log.Str("strategy", sig.Strategy.String())
	}
	log.Msg("order filled")

	if e.journal == nil {
		return
	}
	at := f.Time
	if at.IsZero() {
		at = e.now()
	}
	rec := journal.TradeRecord{
		ID:          id.New(),
		Time:        at,
		Symbol:      f.Symbol,
		OrderID:     f.OrderID,
		Side:        f.Side,
		Action:      t.Action,
		Price:       f.AvgPrice,
		Qty:         f.FilledQty,
		Notional:    f.Value(),
		Leverage:    t.Leverage,
		RealizedPnL: f.RealizedPnL,
		PnLPct:      t.PnLPct(),
		Commission:  f.Commission,
		Wallet:      acct.WalletBalance,
		Reason:      t.Reason,
		Text:        text,
	}
	if found {
		rec.Strategy = sig.Strategy.String()
		rec.Regime = sig.Regime.String()
	}
	if err := e.journal.RecordTrade(rec); err != nil {
		e.log.Error().Err(err).Msg("journal trade")
	}
	if err := e.journal.RecordEquity(journal.EquitySnapshot{
		Time:          at,
		WalletBalance: acct.WalletBalance,
		MarginBalance: acct.TotalMarginBalance,
		UsedMargin:    acct.UsedMargin,
		FreeMargin:    acct.FreeMargin,
		UnrealizedPnL: acct.TotalUnrealizedPnL,
	}); err != nil {
		e.log.Error().Err(err).Msg("journal equity")
	}
}

// Trade is a reconciled fill with the account context it is reported in.
type Trade struct {
	market.Fill
	Wallet   float64
	Action   string
	Leverage float64
	// Position is the signed entry value of the position after the fill.
	Position float64
	Reason   string
}

// InitialMargin is the fill value divided by leverage.
func (t Trade) InitialMargin() float64 {
	if t.Leverage <= 0 {
		return 0
	}
	return t.Value() / t.Leverage
}

// PnLPct is realized PnL as a percentage of the initial margin.
func (t Trade) PnLPct() float64 {
	m := t.InitialMargin()
	if m == 0 {
		return 0
	}
	return t.RealizedPnL / m * 100
}

// Text renders the operator alert for the trade.
func (t Trade) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Wallet : %.4f USDT\n", t.Wallet)
	fmt.Fprintf(&b, "Action:\t %s - %s\n", t.Symbol, t.Action)
	fmt.Fprintf(&b, "Price:\t %.5f\n", t.AvgPrice)
	fmt.Fprintf(&b, "Volume:\t %.4f USDT \t%gx\n", t.Value(), t.Leverage)
	if t.Position != 0 {
		fmt.Fprintf(&b, "Position:\t %.4f USDT\n", t.Position)
	}
	if t.RealizedPnL != 0 {
		fmt.Fprintf(&b, "PnL:\t %.4f USDT, %.4f %%\n", t.RealizedPnL, t.PnLPct())
	}
	if t.Commission != 0 {
		fmt.Fprintf(&b, "Fee:\t %.4f USDT\n", t.Commission)
	}
	if t.Reason != "" {
		fmt.Fprintf(&b, "Reason:\t %s\n", t.Reason)
	}
	return b.String()
}
