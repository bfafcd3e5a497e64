package journal

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	fh, err := os.Open(path)
	require.NoError(t, err)
	defer fh.Close()
	rows, err := csv.NewReader(fh).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestCSVJournalHeaders(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	tradesPath := filepath.Join(dir, "trades.csv")
	equityPath := filepath.Join(dir, "equity.csv")

	j, err := NewCSV(tradesPath, equityPath)
	require.NoError(t, err)
	require.NoError(t, j.Close())

	assert.Equal(t, [][]string{tradeHeader}, readCSV(t, tradesPath))
	assert.Equal(t, [][]string{equityHeader}, readCSV(t, equityPath))
}

func TestCSVJournalAppendsAcrossOpens(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	tradesPath := filepath.Join(dir, "trades.csv")
	equityPath := filepath.Join(dir, "equity.csv")
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	for _, id := range []string{"T1", "T2"} {
		j, err := NewCSV(tradesPath, equityPath)
		require.NoError(t, err)
		require.NoError(t, j.RecordTrade(sampleTrade(id, at, 0.2)))
		require.NoError(t, j.RecordEquity(EquitySnapshot{Time: at, WalletBalance: 1000}))
		require.NoError(t, j.Close())
	}

	rows := readCSV(t, tradesPath)
	require.Len(t, rows, 3)
	assert.Equal(t, "T1", rows[1][0])
	assert.Equal(t, "2024-01-02T03:04:05Z", rows[1][1])
	assert.Equal(t, "XRPUSDT", rows[1][2])
	assert.Equal(t, "0.200000", rows[2][12])

	eq := readCSV(t, equityPath)
	require.Len(t, eq, 3)
	assert.Equal(t, "1000.000000", eq[2][1])
}

func TestMultiWritesAll(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	db, err := NewSQLite(filepath.Join(dir, "j.db"))
	require.NoError(t, err)
	c, err := NewCSV(filepath.Join(dir, "t.csv"), filepath.Join(dir, "e.csv"))
	require.NoError(t, err)

	j := Multi(db, c)
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, j.RecordTrade(sampleTrade("M1", at, 1)))

	got, err := db.GetTrade("M1")
	require.NoError(t, err)
	assert.Equal(t, "XRPUSDT", got.Symbol)

	require.NoError(t, j.Close())
	assert.Len(t, readCSV(t, filepath.Join(dir, "t.csv")), 2)
}
