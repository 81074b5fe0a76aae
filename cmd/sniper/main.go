package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/alejandrodnm/polysniper/config"
	"github.com/alejandrodnm/polysniper/internal/adapters/binance"
	"github.com/alejandrodnm/polysniper/internal/adapters/notify"
	"github.com/alejandrodnm/polysniper/internal/adapters/polymarket"
	"github.com/alejandrodnm/polysniper/internal/adapters/storage"
	"github.com/alejandrodnm/polysniper/internal/application/engine"
	"github.com/alejandrodnm/polysniper/internal/domain"
	"github.com/alejandrodnm/polysniper/internal/ledger"
	"github.com/alejandrodnm/polysniper/internal/metrics"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	mode := flag.String("mode", "", "paper|live (overrides config)")
	status := flag.Bool("status", false, "print the persisted ledger and exit")
	once := flag.Bool("once", false, "run one cycle of every loop after warm-up and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}
	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	if *mode != "" {
		cfg.Mode = *mode
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "err", err)
		os.Exit(1)
	}
	runID := uuid.NewString()[:8]
	setupLogger(cfg.Log, runID)

	store, err := storage.Open(cfg.Storage.Backend, cfg.Storage.Path)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "backend", cfg.Storage.Backend, "path", cfg.Storage.Path)
		os.Exit(1)
	}
	defer store.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *status {
		if err := printStatus(ctx, store, cfg.Paper.InitialBalance); err != nil {
			slog.Error("status failed", "err", err)
			os.Exit(1)
		}
		return
	}

	slog.Info("polysniper starting",
		"config", *configPath,
		"mode", cfg.Mode,
		"assets", cfg.Strategy.Assets,
		"market_types", cfg.Strategy.MarketTypes,
		"buy_threshold", cfg.Strategy.BuyThreshold,
		"trade_size", fmt.Sprintf("$%.2f", cfg.Strategy.TradeSizeUSDC),
		"storage", cfg.Storage.Backend,
		"once", *once,
	)

	client := polymarket.NewClient(cfg.API.CLOBBase, cfg.API.GammaBase)
	v, err := buildExchange(ctx, cfg, client)
	if err != nil {
		slog.Error("failed to set up exchange", "err", err, "mode", cfg.Mode)
		os.Exit(1)
	}
	defer v.close()

	l, err := loadLedger(ctx, cfg, store, v)
	if err != nil {
		slog.Error("failed to load ledger", "err", err)
		os.Exit(1)
	}

	dispatcher := buildDispatcher(cfg)
	dispatcher.Start()
	defer func() {
		closeCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if err := dispatcher.Close(closeCtx); err != nil {
			slog.Warn("notify: pending events not delivered", "err", err)
		}
	}()

	tracker := binance.NewTracker()
	feed := binance.NewFeed(cfg.API.BinanceWS, cfg.Strategy.Assets, tracker)
	catalog := polymarket.NewCatalog(client, cfg.Strategy.Assets, marketTypes(cfg.Strategy.MarketTypes))
	m := metrics.New()

	e := engine.New(engineConfig(cfg), catalog, v.exchange, tracker, l, dispatcher, engine.WithMetrics(m))
	e.Restore()

	if err := probeCatalog(ctx, catalog, cfg.Loops.CallTimeout); err != nil {
		slog.Error("market catalog unavailable", "err", err)
		os.Exit(1)
	}

	stats := l.Stats()
	dispatcher.Notify(ctx, domain.Event{
		Kind: domain.EventStartup,
		Fields: map[string]any{
			"mode":          cfg.Mode,
			"assets":        cfg.Strategy.Assets,
			"markets":       cfg.Strategy.MarketTypes,
			"buy_threshold": fmt.Sprintf("%.0f¢", cfg.Strategy.BuyThreshold*100),
			"trade_size":    fmt.Sprintf("$%.2f", cfg.Strategy.TradeSizeUSDC),
			"balance":       fmt.Sprintf("$%.2f", stats.Balance),
			"open":          stats.Open,
			"run":           runID,
		},
	})

	if *once {
		runOnce(ctx, cfg, feed, e)
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return feed.Run(gctx) })
	if cfg.Metrics.Addr != "" {
		g.Go(func() error { return m.Serve(gctx, cfg.Metrics.Addr) })
	}
	if cfg.Loops.StopFile != "" {
		g.Go(func() error { return watchStopFile(gctx, cfg.Loops.StopFile, cancel) })
	}
	g.Go(func() error { return e.Run(gctx) })

	err = g.Wait()
	final := l.Stats()
	dispatcher.Notify(context.Background(), domain.Event{
		Kind:  domain.EventStopped,
		Stats: &final,
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("polysniper exited with error", "err", err)
		os.Exit(1)
	}
	slog.Info("polysniper stopped cleanly",
		"trades", final.Total,
		"open", final.Open,
		"pnl", fmt.Sprintf("$%.4f", final.TotalPnL),
		"balance", fmt.Sprintf("$%.2f", final.Balance),
	)
}

// runOnce arranca el feed, espera el warm-up y ejecuta un ciclo de cada loop.
func runOnce(ctx context.Context, cfg *config.Config, feed *binance.Feed, e *engine.Engine) {
	feedCtx, stopFeed := context.WithCancel(ctx)
	defer stopFeed()
	go func() {
		if err := feed.Run(feedCtx); err != nil {
			slog.Warn("feed stopped", "err", err)
		}
	}()

	select {
	case <-ctx.Done():
		return
	case <-time.After(config.Seconds(cfg.Loops.Warmup)):
	}

	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{engine.LoopScan, e.Scan},
		{engine.LoopMonitor, e.Monitor},
		{engine.LoopOutcome, e.Outcomes},
		{engine.LoopReport, e.Report},
	}
	for _, s := range steps {
		if err := s.fn(ctx); err != nil {
			slog.Warn(s.name+": cycle failed", "err", err)
		}
	}
}

// watchStopFile cancela el proceso si aparece el fichero de parada.
func watchStopFile(ctx context.Context, path string, cancel context.CancelFunc) error {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := os.Stat(path); err == nil {
				slog.Info("stop file detected, shutting down", "file", path)
				_ = os.Remove(path)
				cancel()
				return nil
			}
		}
	}
}

func printStatus(ctx context.Context, store storage.Backend, initialBalance float64) error {
	l, err := ledger.Load(ctx, store, initialBalance)
	if err != nil {
		return err
	}
	recent, err := store.Recent(ctx, 20)
	if err != nil {
		return err
	}
	console := notify.NewConsole()
	console.PrintStatus(l.Stats(), recent, 20)
	if sc, ok := store.(storage.StatusCounter); ok {
		counts, err := sc.CountByStatus(ctx)
		if err != nil {
			return err
		}
		console.PrintStoredCounts(counts)
	}
	return nil
}

func setupLogger(cfg config.LogConfig, runID string) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler).With("run", runID))
}
