package journal

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

func scanTrade(s interface{ Scan(...any) error }) (TradeRecord, error) {
	var rec TradeRecord
	err := s.Scan(
		&rec.ID, &rec.Time, &rec.Symbol, &rec.OrderID, &rec.Side, &rec.Action, &rec.Strategy, &rec.Regime,
		&rec.Price, &rec.Qty, &rec.Notional, &rec.Leverage, &rec.RealizedPnL, &rec.PnLPct, &rec.Commission, &rec.Wallet,
		&rec.Reason, &rec.Text,
	)
	return rec, err
}

// GetTrade returns a single trade record by ID.
func (j *SQLite) GetTrade(id string) (TradeRecord, error) {
	row := j.db.QueryRow(`SELECT `+tradeColumns+` FROM trades WHERE trade_id = ?`, id)
	rec, err := scanTrade(row)
	if errors.Is(err, sql.ErrNoRows) {
		return TradeRecord{}, fmt.Errorf("trade %q not found", id)
	}
	return rec, err
}

// TradeFilter narrows ListTrades. Zero fields match everything.
type TradeFilter struct {
	Symbol string
	Since  time.Time
	Limit  int
}

// ListTrades returns matching trades, newest first.
func (j *SQLite) ListTrades(flt TradeFilter) ([]TradeRecord, error) {
	q := `SELECT ` + tradeColumns + ` FROM trades WHERE time >= ?`
	args := []any{flt.Since.UTC()}
	if flt.Symbol != "" {
		q += ` AND symbol = ?`
		args = append(args, flt.Symbol)
	}
	q += ` ORDER BY time DESC`
	if flt.Limit > 0 {
		q += ` LIMIT ?`
		args = append(args, flt.Limit)
	}

	rows, err := j.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TradeRecord
	for rows.Next() {
		rec, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Summary aggregates realized results over a set of trades.
type Summary struct {
	Trades      int
	Wins        int
	Losses      int
	GrossProfit float64
	GrossLoss   float64
	Commission  float64
}

func (s Summary) Net() float64 { return s.GrossProfit - s.GrossLoss - s.Commission }

// ProfitFactor is gross profit over gross loss, or 0 without losses.
func (s Summary) ProfitFactor() float64 {
	if s.GrossLoss == 0 {
		return 0
	}
	return s.GrossProfit / s.GrossLoss
}

func Summarize(trades []TradeRecord) Summary {
	var s Summary
	for _, t := range trades {
		s.Trades++
		s.Commission += t.Commission
		switch {
		case t.RealizedPnL > 0:
			s.Wins++
			s.GrossProfit += t.RealizedPnL
		case t.RealizedPnL < 0:
			s.Losses++
			s.GrossLoss -= t.RealizedPnL
		}
	}
	return s
}

func (j *SQLite) ListEquityBetween(start, end time.Time) ([]EquitySnapshot, error) {
	rows, err := j.db.Query(`
		SELECT time, wallet_balance, margin_balance, used_margin, free_margin, unrealized_pnl
		FROM equity
		WHERE time >= ? AND time < ?
		ORDER BY time ASC`, start.UTC(), end.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EquitySnapshot
	for rows.Next() {
		var e EquitySnapshot
		if err := rows.Scan(&e.Time, &e.WalletBalance, &e.MarginBalance, &e.UsedMargin, &e.FreeMargin, &e.UnrealizedPnL); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
