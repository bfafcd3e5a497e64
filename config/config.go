// Package config holds the trader configuration. Files may be YAML or JSON;
// secrets come from the environment.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the complete trader configuration
type Config struct {
	Exchange ExchangeConfig `json:"exchange" yaml:"exchange"`
	Trading  TradingConfig  `json:"trading" yaml:"trading"`
	Sync     SyncConfig     `json:"sync" yaml:"sync"`
	Store    StoreConfig    `json:"store" yaml:"store"`
	Journal  JournalConfig  `json:"journal" yaml:"journal"`
	Alert    AlertConfig    `json:"alert" yaml:"alert"`
	API      APIConfig      `json:"api" yaml:"api"`
	Log      LogConfig      `json:"log" yaml:"log"`
	Status   StatusConfig   `json:"status" yaml:"status"`
}

// ExchangeConfig holds endpoints and credentials. Credentials are never
// written back to disk.
type ExchangeConfig struct {
	RestURL    string   `json:"rest_url" yaml:"rest_url"`
	StreamURL  string   `json:"stream_url" yaml:"stream_url"`
	RecvWindow Duration `json:"recv_window" yaml:"recv_window"`
	// MaxClockSkew is the local to server time difference that is warned about.
	MaxClockSkew Duration `json:"max_clock_skew" yaml:"max_clock_skew"`

	APIKey    string `json:"-" yaml:"-"`
	SecretKey string `json:"-" yaml:"-"`
}

type TradingConfig struct {
	Symbols         []string `json:"symbols" yaml:"symbols"`
	TradeRate       float64  `json:"trade_rate" yaml:"trade_rate"`
	Leverage        int      `json:"leverage" yaml:"leverage"`
	TickInterval    Duration `json:"tick_interval" yaml:"tick_interval"`
	InstrumentDelay Duration `json:"instrument_delay" yaml:"instrument_delay"`
	ClientIDPrefix  string   `json:"client_id_prefix" yaml:"client_id_prefix"`
}

type SyncConfig struct {
	FastInterval    string   `json:"fast_interval" yaml:"fast_interval"`
	SlowInterval    string   `json:"slow_interval" yaml:"slow_interval"`
	Window          int      `json:"window" yaml:"window"`
	ReconnectDelay  Duration `json:"reconnect_delay" yaml:"reconnect_delay"`
	PollInterval    Duration `json:"poll_interval" yaml:"poll_interval"`
	KeepAlive       Duration `json:"keepalive" yaml:"keepalive"`
	ShutdownTimeout Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`
}

type StoreConfig struct {
	DBPath string `json:"db_path" yaml:"db_path"`
}

// JournalConfig contains journaling parameters
type JournalConfig struct {
	Type       string `json:"type" yaml:"type"` // "csv", "sqlite" or "both"
	TradesFile string `json:"trades_file,omitempty" yaml:"trades_file,omitempty"`
	EquityFile string `json:"equity_file,omitempty" yaml:"equity_file,omitempty"`
	DBPath     string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
}

type AlertConfig struct {
	QueueSize int `json:"queue_size" yaml:"queue_size"`

	TelegramToken  string `json:"-" yaml:"-"`
	TelegramChatID string `json:"-" yaml:"-"`
}

type APIConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
	// MetricsAddr serves /metrics alone when the api is disabled.
	MetricsAddr string `json:"metrics_addr,omitempty" yaml:"metrics_addr,omitempty"`
}

type LogConfig struct {
	Level    string `json:"level" yaml:"level"`
	Format   string `json:"format" yaml:"format"` // "json" or "console"
	Timezone string `json:"timezone" yaml:"timezone"`
}

type StatusConfig struct {
	File string `json:"file" yaml:"file"`
}

// Duration reads and writes as a Go duration string such as "500ms".
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Exchange: ExchangeConfig{
			RestURL:      "https://fapi.binance.com",
			StreamURL:    "wss://fstream.binance.com/ws",
			RecvWindow:   Duration{5 * time.Second},
			MaxClockSkew: Duration{500 * time.Millisecond},
		},
		Trading: TradingConfig{
			Symbols:         []string{"XRPUSDT", "HBARUSDT", "ADAUSDT", "WIFUSDT"},
			TradeRate:       0.2,
			Leverage:        5,
			TickInterval:    Duration{500 * time.Millisecond},
			InstrumentDelay: Duration{time.Second},
			ClientIDPrefix:  "perps",
		},
		Sync: SyncConfig{
			FastInterval:    "1m",
			SlowInterval:    "15m",
			Window:          260,
			ReconnectDelay:  Duration{5 * time.Second},
			PollInterval:    Duration{10 * time.Second},
			KeepAlive:       Duration{30 * time.Minute},
			ShutdownTimeout: Duration{10 * time.Second},
		},
		Store: StoreConfig{DBPath: "./data/state.db"},
		Journal: JournalConfig{
			Type:       "both",
			TradesFile: "./data/trades.csv",
			EquityFile: "./data/equity.csv",
			DBPath:     "./data/journal.db",
		},
		Alert: AlertConfig{QueueSize: 64},
		API:   APIConfig{Enabled: true, Addr: "127.0.0.1:8080"},
		Log:   LogConfig{Level: "info", Format: "json", Timezone: "Asia/Seoul"},
		Status: StatusConfig{File: "./data/status.json"},
	}
}

// LoadFromFile loads configuration from a file over the defaults. YAML is
// tried first, then JSON.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		cfg = Default()
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// SaveToFile saves configuration to a file (JSON or YAML based on extension)
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

var intervals = map[string]bool{
	"1m": true, "3m": true, "5m": true, "15m": true, "30m": true,
	"1h": true, "2h": true, "4h": true, "6h": true, "8h": true, "12h": true, "1d": true,
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	if len(c.Trading.Symbols) == 0 {
		add("trading.symbols is required")
	}
	seen := map[string]bool{}
	for _, s := range c.Trading.Symbols {
		u := strings.ToUpper(s)
		if !strings.HasSuffix(u, "USDT") {
			add("trading.symbols: %s is not a USDT contract", s)
		}
		if seen[u] {
			add("trading.symbols: duplicate %s", s)
		}
		seen[u] = true
	}
	if c.Trading.TradeRate <= 0 || c.Trading.TradeRate > 1 {
		add("trading.trade_rate must be between 0 and 1")
	}
	if c.Trading.Leverage < 1 || c.Trading.Leverage > 125 {
		add("trading.leverage must be between 1 and 125")
	}
	if c.Trading.TickInterval.Duration <= 0 {
		add("trading.tick_interval must be positive")
	}
	if c.Trading.InstrumentDelay.Duration < 0 {
		add("trading.instrument_delay must not be negative")
	}
	if !intervals[c.Sync.FastInterval] {
		add("sync.fast_interval %q is not a kline interval", c.Sync.FastInterval)
	}
	if !intervals[c.Sync.SlowInterval] {
		add("sync.slow_interval %q is not a kline interval", c.Sync.SlowInterval)
	}
	if c.Sync.Window < 60 || c.Sync.Window > 1500 {
		add("sync.window must be between 60 and 1500")
	}
	if c.Sync.KeepAlive.Duration <= 0 || c.Sync.KeepAlive.Duration >= 60*time.Minute {
		add("sync.keepalive must be positive and under 60m")
	}
	if c.Store.DBPath == "" {
		add("store.db_path is required")
	}
	switch c.Journal.Type {
	case "csv", "sqlite", "both":
	default:
		add("journal.type must be 'csv', 'sqlite' or 'both'")
	}
	if c.Journal.Type != "sqlite" && (c.Journal.TradesFile == "" || c.Journal.EquityFile == "") {
		add("journal trades_file and equity_file required for CSV type")
	}
	if c.Journal.Type != "csv" && c.Journal.DBPath == "" {
		add("journal db_path required for SQLite type")
	}
	if c.API.Enabled && c.API.Addr == "" {
		add("api.addr is required when the api is enabled")
	}
	if _, err := time.LoadLocation(c.Log.Timezone); err != nil {
		add("log.timezone: %v", err)
	}
	return errors.Join(errs...)
}

// Environment variables read by ApplyEnv.
const (
	EnvAPIKey         = "BINANCE_API_KEY"
	EnvSecretKey      = "BINANCE_SECRET_KEY"
	EnvTelegramToken  = "TELEGRAM_TOKEN"
	EnvTelegramChatID = "TELEGRAM_CHAT_ID"
)

// ApplyEnv loads the given dotenv files, if present, then copies secrets
// from the environment into c. Variables already set in the environment
// win over dotenv values.
func (c *Config) ApplyEnv(files ...string) error {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	c.Exchange.APIKey = os.Getenv(EnvAPIKey)
	c.Exchange.SecretKey = os.Getenv(EnvSecretKey)
	c.Alert.TelegramToken = os.Getenv(EnvTelegramToken)
	c.Alert.TelegramChatID = os.Getenv(EnvTelegramChatID)
	return nil
}

// RequireCredentials reports missing exchange credentials.
func (c *Config) RequireCredentials() error {
	var missing []string
	if c.Exchange.APIKey == "" {
		missing = append(missing, EnvAPIKey)
	}
	if c.Exchange.SecretKey == "" {
		missing = append(missing, EnvSecretKey)
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing credentials: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Location returns the display timezone, UTC when it cannot be loaded.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Log.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
