package journal

const Schema = `
CREATE TABLE IF NOT EXISTS trades (
	trade_id TEXT PRIMARY KEY,
	time DATETIME NOT NULL,
	symbol TEXT NOT NULL,
	order_id INTEGER NOT NULL,
	side TEXT NOT NULL,
	action TEXT NOT NULL,
	strategy TEXT NOT NULL,
	regime TEXT NOT NULL,
	price REAL NOT NULL,
	qty REAL NOT NULL,
	notional REAL NOT NULL,
	leverage REAL NOT NULL,
	realized_pnl REAL NOT NULL,
	pnl_pct REAL NOT NULL,
	commission REAL NOT NULL,
	wallet REAL NOT NULL,
	reason TEXT NOT NULL,
	text TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trades_time ON trades(time);
CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol, time);

CREATE TABLE IF NOT EXISTS equity (
	time DATETIME NOT NULL,
	wallet_balance REAL NOT NULL,
	margin_balance REAL NOT NULL,
	used_margin REAL NOT NULL,
	free_margin REAL NOT NULL,
	unrealized_pnl REAL NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_equity_time ON equity(time);
`
