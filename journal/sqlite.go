package journal

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

type SQLite struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("journal schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

const tradeColumns = `trade_id, time, symbol, order_id, side, action, strategy, regime,
	price, qty, notional, leverage, realized_pnl, pnl_pct, commission, wallet, reason, text`

func (j *SQLite) RecordTrade(t TradeRecord) error {
	_, err := j.db.Exec(`INSERT INTO trades (`+tradeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Time.UTC(), t.Symbol, t.OrderID, t.Side, t.Action, t.Strategy, t.Regime,
		t.Price, t.Qty, t.Notional, t.Leverage, t.RealizedPnL, t.PnLPct, t.Commission, t.Wallet,
		t.Reason, t.Text,
	)
	if err != nil {
		return fmt.Errorf("record trade %s: %w", t.ID, err)
	}
	return nil
}

func (j *SQLite) RecordEquity(e EquitySnapshot) error {
	_, err := j.db.Exec(`
		INSERT INTO equity
		(time, wallet_balance, margin_balance, used_margin, free_margin, unrealized_pnl)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.Time.UTC(), e.WalletBalance, e.MarginBalance, e.UsedMargin, e.FreeMargin, e.UnrealizedPnL,
	)
	return err
}

func (j *SQLite) Close() error {
	return j.db.Close()
}
