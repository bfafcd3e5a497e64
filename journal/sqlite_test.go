package journal

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLite(t *testing.T) (*SQLite, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	j, err := NewSQLite(path)
	require.NoError(t, err)
	return j, path
}

func sampleTrade(id string, at time.Time, pnl float64) TradeRecord {
	return TradeRecord{
		ID:          id,
		Time:        at,
		Symbol:      "XRPUSDT",
		OrderID:     8886774,
		Side:        "SELL",
		Action:      "EXIT_LONG",
		Strategy:    "trend_momentum",
		Regime:      "Rising",
		Price:       0.5123,
		Qty:         20,
		Notional:    10.246,
		Leverage:    5,
		RealizedPnL: pnl,
		PnLPct:      pnl / 2.0492 * 100,
		Commission:  0.004,
		Wallet:      1000.5,
		Reason:      "uptrend fading",
		Text:        "Action: XRPUSDT - EXIT_LONG",
	}
}

func TestSQLiteSchemaCreated(t *testing.T) {
	t.Parallel()

	j, path := newTestSQLite(t)
	assert.NoError(t, j.Close())

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	rows, err := db.Query(`SELECT name FROM sqlite_master WHERE type='table' AND name IN ('trades','equity')`)
	require.NoError(t, err)
	defer rows.Close()

	found := map[string]bool{}
	for rows.Next() {
		var name string
		assert.NoError(t, rows.Scan(&name))
		found[name] = true
	}
	assert.NoError(t, rows.Err())

	assert.True(t, found["trades"])
	assert.True(t, found["equity"])
}

func TestSQLiteRecordTrade(t *testing.T) {
	t.Parallel()

	j, path := newTestSQLite(t)
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, j.RecordTrade(sampleTrade("T1", at, 0.2)))
	require.NoError(t, j.Close())

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	var (
		symbol, action, strategy string
		orderID                  int64
		qty, pnl                 float64
	)
	err = db.QueryRow(`SELECT symbol, action, strategy, order_id, qty, realized_pnl FROM trades WHERE trade_id = ?`, "T1").
		Scan(&symbol, &action, &strategy, &orderID, &qty, &pnl)
	require.NoError(t, err)

	assert.Equal(t, "XRPUSDT", symbol)
	assert.Equal(t, "EXIT_LONG", action)
	assert.Equal(t, "trend_momentum", strategy)
	assert.Equal(t, int64(8886774), orderID)
	assert.Equal(t, 20.0, qty)
	assert.Equal(t, 0.2, pnl)
}

func TestSQLiteDuplicateTradeRejected(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	t.Cleanup(func() { _ = j.Close() })

	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, j.RecordTrade(sampleTrade("T1", at, 0)))
	assert.Error(t, j.RecordTrade(sampleTrade("T1", at, 0)))
}

func TestSQLiteRecordEquity(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	t.Cleanup(func() { _ = j.Close() })

	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, j.RecordEquity(EquitySnapshot{
			Time:          t0.Add(time.Duration(i) * time.Hour),
			WalletBalance: 1000 + float64(i),
			FreeMargin:    500,
		}))
	}

	got, err := j.ListEquityBetween(t0, t0.Add(2*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 1001.0, got[1].WalletBalance)
	assert.True(t, got[0].Time.Equal(t0))
}
