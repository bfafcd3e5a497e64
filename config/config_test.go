package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NotNil(t, cfg)
	assert.Equal(t, []string{"XRPUSDT", "HBARUSDT", "ADAUSDT", "WIFUSDT"}, cfg.Trading.Symbols)
	assert.Equal(t, 0.2, cfg.Trading.TradeRate)
	assert.Equal(t, 5, cfg.Trading.Leverage)
	assert.Equal(t, 500*time.Millisecond, cfg.Trading.TickInterval.Duration)
	assert.Equal(t, time.Second, cfg.Trading.InstrumentDelay.Duration)
	assert.Equal(t, "1m", cfg.Sync.FastInterval)
	assert.Equal(t, "15m", cfg.Sync.SlowInterval)
	assert.Equal(t, 260, cfg.Sync.Window)
	assert.Equal(t, 30*time.Minute, cfg.Sync.KeepAlive.Duration)
	assert.Equal(t, "Asia/Seoul", cfg.Location().String())
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		errMsg string
	}{
		{"valid config", func(*Config) {}, ""},
		{"no symbols", func(c *Config) { c.Trading.Symbols = nil }, "trading.symbols is required"},
		{"non usdt symbol", func(c *Config) { c.Trading.Symbols = []string{"BTCBUSD"} }, "not a USDT contract"},
		{"duplicate symbol", func(c *Config) { c.Trading.Symbols = []string{"XRPUSDT", "xrpusdt"} }, "duplicate"},
		{"trade rate", func(c *Config) { c.Trading.TradeRate = 1.5 }, "trading.trade_rate must be between 0 and 1"},
		{"leverage", func(c *Config) { c.Trading.Leverage = 0 }, "trading.leverage must be between 1 and 125"},
		{"tick", func(c *Config) { c.Trading.TickInterval = Duration{} }, "trading.tick_interval must be positive"},
		{"interval", func(c *Config) { c.Sync.FastInterval = "7m" }, "sync.fast_interval"},
		{"window", func(c *Config) { c.Sync.Window = 10 }, "sync.window"},
		{"keepalive", func(c *Config) { c.Sync.KeepAlive = Duration{time.Hour} }, "sync.keepalive"},
		{"journal type", func(c *Config) { c.Journal.Type = "xml" }, "journal.type"},
		{"csv files", func(c *Config) { c.Journal.Type = "csv"; c.Journal.TradesFile = "" }, "trades_file and equity_file"},
		{"sqlite path", func(c *Config) { c.Journal.Type = "sqlite"; c.Journal.DBPath = "" }, "db_path required"},
		{"api addr", func(c *Config) { c.API.Addr = "" }, "api.addr"},
		{"timezone", func(c *Config) { c.Log.Timezone = "Mars/Olympus" }, "log.timezone"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestLoadYAMLOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trader.yaml")
	yml := `
trading:
  symbols: [XRPUSDT, ADAUSDT]
  leverage: 3
  tick_interval: 250ms
sync:
  poll_interval: 20s
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"XRPUSDT", "ADAUSDT"}, cfg.Trading.Symbols)
	assert.Equal(t, 3, cfg.Trading.Leverage)
	assert.Equal(t, 250*time.Millisecond, cfg.Trading.TickInterval.Duration)
	assert.Equal(t, 20*time.Second, cfg.Sync.PollInterval.Duration)
	// untouched sections keep defaults
	assert.Equal(t, 0.2, cfg.Trading.TradeRate)
	assert.Equal(t, "15m", cfg.Sync.SlowInterval)
}

func TestLoadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trader.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"trading":{"trade_rate":0.1,"instrument_delay":"2s"}}`), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 0.1, cfg.Trading.TradeRate)
	assert.Equal(t, 2*time.Second, cfg.Trading.InstrumentDelay.Duration)
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadFromFile(filepath.Join(dir, "missing.yaml"))
	assert.ErrorContains(t, err, "read config file")

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("trading: [unclosed"), 0644))
	_, err = LoadFromFile(bad)
	assert.ErrorContains(t, err, "parse config")

	invalid := filepath.Join(dir, "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte("trading:\n  leverage: 500\n"), 0644))
	_, err = LoadFromFile(invalid)
	assert.ErrorContains(t, err, "invalid config")
}

func TestSaveRoundTripWithoutSecrets(t *testing.T) {
	for _, name := range []string{"trader.yaml", "trader.json"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			cfg := Default()
			cfg.Exchange.APIKey = "key"
			cfg.Exchange.SecretKey = "secret"
			cfg.Trading.Leverage = 7
			require.NoError(t, cfg.SaveToFile(path))

			raw, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.NotContains(t, string(raw), "secret")

			got, err := LoadFromFile(path)
			require.NoError(t, err)
			assert.Equal(t, 7, got.Trading.Leverage)
			assert.Equal(t, cfg.Sync.KeepAlive, got.Sync.KeepAlive)
			assert.Empty(t, got.Exchange.APIKey)
		})
	}
}

func TestApplyEnv(t *testing.T) {
	dir := t.TempDir()
	env := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(env, []byte("BINANCE_API_KEY=from-file\nBINANCE_SECRET_KEY=s3\nTELEGRAM_CHAT_ID=99\n"), 0600))

	t.Setenv(EnvAPIKey, "from-env")
	t.Setenv(EnvSecretKey, "")
	t.Setenv(EnvTelegramToken, "tok")
	t.Setenv(EnvTelegramChatID, "")
	// empty values count as set, so unset them before loading
	require.NoError(t, os.Unsetenv(EnvSecretKey))
	require.NoError(t, os.Unsetenv(EnvTelegramChatID))

	cfg := Default()
	require.NoError(t, cfg.ApplyEnv(env, filepath.Join(dir, "missing.env")))
	assert.Equal(t, "from-env", cfg.Exchange.APIKey)
	assert.Equal(t, "s3", cfg.Exchange.SecretKey)
	assert.Equal(t, "tok", cfg.Alert.TelegramToken)
	assert.Equal(t, "99", cfg.Alert.TelegramChatID)
	assert.NoError(t, cfg.RequireCredentials())

	cfg.Exchange.SecretKey = ""
	assert.ErrorContains(t, cfg.RequireCredentials(), EnvSecretKey)
}
