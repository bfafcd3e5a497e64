// Package store persists the synchronized state shown by the control
// panel: candles, balance, positions and regimes. Every write deletes the
// rows of its key and inserts the new ones in a single transaction.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/rustyeddy/perps/market"
)

const Schema = `
CREATE TABLE IF NOT EXISTS coin_data (
	symbol TEXT NOT NULL,
	interval TEXT NOT NULL,
	open_time DATETIME NOT NULL,
	open REAL NOT NULL,
	high REAL NOT NULL,
	low REAL NOT NULL,
	close REAL NOT NULL,
	volume REAL NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_coin_data ON coin_data(symbol, interval, open_time);

CREATE TABLE IF NOT EXISTS balance_data (
	wallet_balance REAL NOT NULL,
	free_margin REAL NOT NULL,
	used_margin REAL NOT NULL,
	margin_balance REAL NOT NULL,
	unrealized_pnl REAL NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS position_data (
	symbol TEXT NOT NULL,
	avg_price REAL NOT NULL,
	position_amount REAL NOT NULL,
	leverage REAL NOT NULL,
	unrealized_pnl REAL NOT NULL,
	breakeven_price REAL NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS market_status (
	symbol TEXT NOT NULL,
	fast_regime TEXT NOT NULL,
	slow_regime TEXT NOT NULL,
	updated_at DATETIME NOT NULL
);
`

type Store struct {
	db  *sql.DB
	now func() time.Time
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	// sqlite allows a single writer
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) tx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

const insertCandle = `INSERT INTO coin_data (symbol, interval, open_time, open, high, low, close, volume)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

// ReplaceCandles replaces every stored candle of (symbol, interval).
func (s *Store) ReplaceCandles(ctx context.Context, symbol, interval string, candles []market.Candle) error {
	return s.tx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM coin_data WHERE symbol = ? AND interval = ?`, symbol, interval); err != nil {
			return fmt.Errorf("delete candles: %w", err)
		}
		stmt, err := tx.PrepareContext(ctx, insertCandle)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, c := range candles {
			if _, err := stmt.ExecContext(ctx, symbol, interval, c.OpenTime.UTC(), c.Open, c.High, c.Low, c.Close, c.Volume); err != nil {
				return fmt.Errorf("insert candle: %w", err)
			}
		}
		return nil
	})
}

// UpsertCandle replaces the candle of (symbol, interval, open time).
func (s *Store) UpsertCandle(ctx context.Context, symbol, interval string, c market.Candle) error {
	return s.tx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM coin_data WHERE symbol = ? AND interval = ? AND open_time = ?`,
			symbol, interval, c.OpenTime.UTC()); err != nil {
			return fmt.Errorf("delete candle: %w", err)
		}
		_, err := tx.ExecContext(ctx, insertCandle, symbol, interval, c.OpenTime.UTC(), c.Open, c.High, c.Low, c.Close, c.Volume)
		return err
	})
}

// Candles returns up to limit of the newest stored candles, oldest first.
func (s *Store) Candles(ctx context.Context, symbol, interval string, limit int) ([]market.Candle, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `SELECT open_time, open, high, low, close, volume
		FROM coin_data WHERE symbol = ? AND interval = ?
		ORDER BY open_time DESC LIMIT ?`, symbol, interval, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []market.Candle
	for rows.Next() {
		var c market.Candle
		if err := rows.Scan(&c.OpenTime, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// SaveBalance replaces the single balance row.
func (s *Store) SaveBalance(ctx context.Context, a market.Account) error {
	at := a.UpdatedAt
	if at.IsZero() {
		at = s.now()
	}
	return s.tx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM balance_data`); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `INSERT INTO balance_data
			(wallet_balance, free_margin, used_margin, margin_balance, unrealized_pnl, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			a.WalletBalance, a.FreeMargin, a.UsedMargin, a.TotalMarginBalance, a.TotalUnrealizedPnL, at.UTC())
		return err
	})
}

func (s *Store) Balance(ctx context.Context) (market.Account, error) {
	var a market.Account
	err := s.db.QueryRowContext(ctx, `SELECT wallet_balance, free_margin, used_margin, margin_balance, unrealized_pnl, updated_at
		FROM balance_data LIMIT 1`).
		Scan(&a.WalletBalance, &a.FreeMargin, &a.UsedMargin, &a.TotalMarginBalance, &a.TotalUnrealizedPnL, &a.UpdatedAt)
	return a, err
}

// SavePositions replaces the row of each given symbol.
func (s *Store) SavePositions(ctx context.Context, positions []market.Position) error {
	return s.tx(ctx, func(tx *sql.Tx) error {
		for _, p := range positions {
			at := p.UpdatedAt
			if at.IsZero() {
				at = s.now()
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM position_data WHERE symbol = ?`, p.Symbol); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `INSERT INTO position_data
				(symbol, avg_price, position_amount, leverage, unrealized_pnl, breakeven_price, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				p.Symbol, p.AvgEntryPrice, p.Amount, p.Leverage, p.UnrealizedPnL, p.BreakEvenPrice, at.UTC()); err != nil {
				return fmt.Errorf("insert position %s: %w", p.Symbol, err)
			}
		}
		return nil
	})
}

func (s *Store) Positions(ctx context.Context) ([]market.Position, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT symbol, avg_price, position_amount, leverage, unrealized_pnl, breakeven_price, updated_at
		FROM position_data ORDER BY symbol`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []market.Position
	for rows.Next() {
		var p market.Position
		if err := rows.Scan(&p.Symbol, &p.AvgEntryPrice, &p.Amount, &p.Leverage, &p.UnrealizedPnL, &p.BreakEvenPrice, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Regimes is the persisted market status of one symbol.
type Regimes struct {
	Symbol    string
	Fast      string
	Slow      string
	UpdatedAt time.Time
}

func (s *Store) SaveRegime(ctx context.Context, symbol, fast, slow string) error {
	return s.tx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM market_status WHERE symbol = ?`, symbol); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `INSERT INTO market_status (symbol, fast_regime, slow_regime, updated_at) VALUES (?, ?, ?, ?)`,
			symbol, fast, slow, s.now().UTC())
		return err
	})
}

func (s *Store) Regime(ctx context.Context, symbol string) (Regimes, error) {
	r := Regimes{Symbol: symbol}
	err := s.db.QueryRowContext(ctx, `SELECT fast_regime, slow_regime, updated_at FROM market_status WHERE symbol = ?`, symbol).
		Scan(&r.Fast, &r.Slow, &r.UpdatedAt)
	return r, err
}
