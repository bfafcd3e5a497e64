package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rustyeddy/perps/alert"
	"github.com/rustyeddy/perps/api"
	"github.com/rustyeddy/perps/binance"
	"github.com/rustyeddy/perps/config"
	"github.com/rustyeddy/perps/execution"
	"github.com/rustyeddy/perps/internal/status"
	"github.com/rustyeddy/perps/journal"
	"github.com/rustyeddy/perps/marketdata"
	"github.com/rustyeddy/perps/metrics"
	"github.com/rustyeddy/perps/orchestrator"
	"github.com/rustyeddy/perps/store"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the live trader",
	Long: `Start market data synchronization, the trade loop and the control api.

Credentials are read from BINANCE_API_KEY and BINANCE_SECRET_KEY, optionally
through the dotenv file. Telegram alerts are sent when TELEGRAM_TOKEN and
TELEGRAM_CHAT_ID are set; otherwise alerts are logged.

Example:
  trader run -c trader.yaml`,
	RunE: runTrader,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func ensureDir(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		return os.MkdirAll(dir, 0o755)
	}
	return nil
}

func openJournal(cfg config.JournalConfig) (journal.Journal, error) {
	var js []journal.Journal
	if cfg.Type == "csv" || cfg.Type == "both" {
		if err := ensureDir(cfg.TradesFile); err != nil {
			return nil, err
		}
		if err := ensureDir(cfg.EquityFile); err != nil {
			return nil, err
		}
		j, err := journal.NewCSV(cfg.TradesFile, cfg.EquityFile)
		if err != nil {
			return nil, err
		}
		js = append(js, j)
	}
	if cfg.Type == "sqlite" || cfg.Type == "both" {
		if err := ensureDir(cfg.DBPath); err != nil {
			return nil, err
		}
		j, err := journal.NewSQLite(cfg.DBPath)
		if err != nil {
			for _, open := range js {
				_ = open.Close()
			}
			return nil, err
		}
		js = append(js, j)
	}
	if len(js) == 1 {
		return js[0], nil
	}
	return journal.Multi(js...), nil
}

func newNotifier(cfg *config.Config, log zerolog.Logger) alert.Notifier {
	if cfg.Alert.TelegramToken == "" || cfg.Alert.TelegramChatID == "" {
		log.Warn().Msg("telegram not configured, alerts go to the log")
		return alert.LogNotifier{Log: log}
	}
	return alert.NewTelegram(cfg.Alert.TelegramToken, cfg.Alert.TelegramChatID)
}

func newClient(cfg *config.Config) *binance.Client {
	return binance.NewClient(cfg.Exchange.APIKey, cfg.Exchange.SecretKey,
		binance.WithBaseURL(cfg.Exchange.RestURL),
		binance.WithRecvWindow(cfg.Exchange.RecvWindow.Milliseconds()),
	)
}

// checkClock logs the local to server clock offset, warning above skew.
func checkClock(ctx context.Context, c *binance.Client, skew time.Duration, log zerolog.Logger) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	off, err := c.ClockOffset(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("time check failed")
		return
	}
	ev := log.Info()
	if off > skew || off < -skew {
		ev = log.Warn()
	}
	ev.Dur("offset", off).Dur("max", skew).Msg("time check")
}

func runTrader(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.RequireCredentials(); err != nil {
		return err
	}
	log := newLogger(cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := newClient(cfg)
	checkClock(ctx, client, cfg.Exchange.MaxClockSkew.Duration, log)

	if err := ensureDir(cfg.Store.DBPath); err != nil {
		return fmt.Errorf("store dir: %w", err)
	}
	st, err := store.Open(cfg.Store.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	j, err := openJournal(cfg.Journal)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer j.Close()

	queue := alert.NewQueue(newNotifier(cfg, log), cfg.Alert.QueueSize, log)

	md := marketdata.New(marketdata.Config{
		Symbols:         cfg.Trading.Symbols,
		FastInterval:    cfg.Sync.FastInterval,
		SlowInterval:    cfg.Sync.SlowInterval,
		Window:          cfg.Sync.Window,
		Leverage:        cfg.Trading.Leverage,
		StreamURL:       cfg.Exchange.StreamURL,
		ReconnectDelay:  cfg.Sync.ReconnectDelay.Duration,
		PollInterval:    cfg.Sync.PollInterval.Duration,
		KeepAlive:       cfg.Sync.KeepAlive.Duration,
		ShutdownTimeout: cfg.Sync.ShutdownTimeout.Duration,
	}, client, log, marketdata.WithStore(st), marketdata.WithNotifier(queue))

	exec := execution.New(execution.Config{
		Leverage:       float64(cfg.Trading.Leverage),
		ClientIDPrefix: cfg.Trading.ClientIDPrefix,
	}, client, md, md, log, execution.WithJournal(j), execution.WithNotifier(queue))
	md.SetFillHandler(exec)

	if err := md.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize market data: %w", err)
	}

	trader := orchestrator.New(orchestrator.Config{
		TickInterval:    cfg.Trading.TickInterval.Duration,
		InstrumentDelay: cfg.Trading.InstrumentDelay.Duration,
		TradeRate:       cfg.Trading.TradeRate,
		Leverage:        float64(cfg.Trading.Leverage),
	}, md, exec, log, orchestrator.WithRegimeStore(st))

	if err := status.Write(cfg.Status.File, status.Running, os.Getpid()); err != nil {
		log.Warn().Err(err).Msg("write status")
	}
	log.Info().Strs("symbols", cfg.Trading.Symbols).Str("version", version).Msg("trader started")

	var wg sync.WaitGroup
	goRun := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}

	goRun(func() {
		if err := md.Run(ctx); err != nil {
			log.Error().Err(err).Msg("market data stopped")
		}
	})
	goRun(func() { _ = trader.Run(ctx) })
	goRun(func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				checkClock(ctx, client, cfg.Exchange.MaxClockSkew.Duration, log)
			}
		}
	})

	shutdown := cfg.Sync.ShutdownTimeout.Duration
	switch {
	case cfg.API.Enabled:
		srv := api.New(md, trader,
			api.WithStatusFile(cfg.Status.File),
			api.WithVersion(version),
			api.WithLogger(log))
		goRun(func() {
			if err := srv.Serve(ctx, cfg.API.Addr, shutdown); err != nil {
				log.Error().Err(err).Msg("api stopped")
			}
		})
	case cfg.API.MetricsAddr != "":
		msrv := metrics.Serve(cfg.API.MetricsAddr)
		goRun(func() {
			<-ctx.Done()
			sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdown)
			defer cancel()
			_ = msrv.Shutdown(sctx)
		})
	}

	<-ctx.Done()
	log.Info().Msg("shutting down")

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(shutdown):
		log.Warn().Dur("timeout", shutdown).Msg("workers did not stop in time")
	}

	qctx, cancel := context.WithTimeout(context.Background(), shutdown)
	defer cancel()
	if err := exec.Wait(qctx); err != nil {
		log.Warn().Err(err).Msg("fills not reconciled")
	}
	if err := queue.Close(qctx); err != nil {
		log.Warn().Err(err).Msg("alert queue not drained")
	}

	if err := status.Write(cfg.Status.File, status.Stopped, 0); err != nil {
		log.Warn().Err(err).Msg("write status")
	}
	log.Info().Msg("trader stopped cleanly")
	return nil
}
