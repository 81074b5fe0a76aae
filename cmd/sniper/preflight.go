package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/polysniper/config"
	"github.com/alejandrodnm/polysniper/internal/adapters/notify"
	"github.com/alejandrodnm/polysniper/internal/adapters/onchain"
	"github.com/alejandrodnm/polysniper/internal/adapters/paper"
	"github.com/alejandrodnm/polysniper/internal/adapters/polymarket"
	"github.com/alejandrodnm/polysniper/internal/adapters/storage"
	"github.com/alejandrodnm/polysniper/internal/application/engine"
	"github.com/alejandrodnm/polysniper/internal/domain"
	"github.com/alejandrodnm/polysniper/internal/ledger"
	"github.com/alejandrodnm/polysniper/internal/ports"
)

// venue es el exchange elegido más su limpieza.
type venue struct {
	exchange ports.Exchange
	live     bool
	close    func()
}

// buildExchange monta el exchange de paper o el live (auth L1/L2, RPC y approvals).
func buildExchange(ctx context.Context, cfg *config.Config, client *polymarket.Client) (*venue, error) {
	if cfg.Mode != config.ModeLive {
		slog.Info("paper: simulated fills against live books",
			"initial_balance", fmt.Sprintf("$%.2f", cfg.Paper.InitialBalance))
		return &venue{
			exchange: paper.NewExchange(client, cfg.Paper.InitialBalance),
			close:    func() {},
		}, nil
	}

	if err := confirmLive(ctx, cfg); err != nil {
		return nil, err
	}

	auth, err := polymarket.NewAuthClient(client, cfg.Wallet.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("auth client: %w", err)
	}
	if err := auth.EnsureCreds(ctx); err != nil {
		return nil, fmt.Errorf("derive API credentials (check POLY_PRIVATE_KEY): %w", err)
	}
	slog.Info("live: authenticated with Polymarket CLOB", "address", auth.Address().Hex())

	trading, err := polymarket.NewTradingClient(auth, cfg.Wallet.RPCURL)
	if err != nil {
		return nil, err
	}

	if cfg.Wallet.EnsureApprovals {
		approver, err := onchain.NewApprover(trading.RPC(), cfg.Wallet.PrivateKey)
		if err != nil {
			trading.Close()
			return nil, err
		}
		slog.Info("live: checking on-chain approvals...")
		if err := approver.EnsureApprovals(ctx); err != nil {
			trading.Close()
			return nil, fmt.Errorf("on-chain approvals: %w", err)
		}
		slog.Info("live: all approvals verified")
	}

	return &venue{
		exchange: polymarket.NewExchange(client, trading),
		live:     true,
		close:    trading.Close,
	}, nil
}

// confirmLive da 5 segundos para abortar antes de operar con dinero real.
func confirmLive(ctx context.Context, cfg *config.Config) error {
	fmt.Printf("\n⚠️  LIVE TRADING MODE - REAL MONEY WILL BE SPENT\n")
	fmt.Printf("   Trade size: $%.2f | Buy threshold: %.0f¢ | Cut-loss floor: %.0f¢\n",
		cfg.Strategy.TradeSizeUSDC, cfg.Strategy.BuyThreshold*100, cfg.Strategy.CutlossPrice*100)
	fmt.Printf("   Press Ctrl+C within 5 seconds to abort...\n\n")

	timer := time.NewTimer(5 * time.Second)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("live trading aborted by user")
	}
}

// loadLedger carga el ledger persistido. Un ledger nuevo arranca con el saldo
// del venue; en live el saldo se resincroniza con el on-chain en cada arranque.
func loadLedger(ctx context.Context, cfg *config.Config, store storage.Backend, v *venue) (*ledger.Ledger, error) {
	callCtx, cancel := context.WithTimeout(ctx, config.Seconds(cfg.Loops.CallTimeout))
	balance, err := v.exchange.Balance(callCtx)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("balance: %w", err)
	}
	slog.Info("venue balance", "usdc", fmt.Sprintf("$%.2f", balance))

	l, err := ledger.Load(ctx, store, balance)
	if err != nil {
		return nil, err
	}
	if v.live && l.Balance() != balance {
		slog.Info("live: syncing ledger balance with chain",
			"ledger", fmt.Sprintf("$%.2f", l.Balance()),
			"chain", fmt.Sprintf("$%.2f", balance))
		if err := l.SetBalance(ctx, balance); err != nil {
			return nil, err
		}
	}
	if l.Balance() < cfg.Strategy.TradeSizeUSDC {
		slog.Warn("balance below trade size, no entries until it is topped up",
			"balance", fmt.Sprintf("$%.2f", l.Balance()),
			"trade_size", fmt.Sprintf("$%.2f", cfg.Strategy.TradeSizeUSDC))
	}
	return l, nil
}

// buildDispatcher elige los senders: Telegram si hay credenciales, si no el log.
func buildDispatcher(cfg *config.Config) *notify.Dispatcher {
	var senders []notify.Sender
	if cfg.TelegramEnabled() {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	} else {
		slog.Info("notify: telegram not configured, events go to the log")
		senders = append(senders, notify.LogSender{})
	}
	if cfg.Notify.Console {
		senders = append(senders, notify.NewConsole())
	}
	return notify.NewDispatcher(senders,
		notify.WithEvents(cfg.Notify.Events),
		notify.WithQueueSize(cfg.Notify.QueueSize),
		notify.WithSendTimeout(config.Seconds(cfg.Loops.CallTimeout)),
	)
}

func engineConfig(cfg *config.Config) engine.Config {
	s := cfg.Strategy
	ec := engine.DefaultConfig()
	ec.TradeSize = s.TradeSizeUSDC
	ec.ScanInterval = config.Seconds(cfg.Loops.Scan)
	ec.MonitorInterval = config.Seconds(cfg.Loops.Monitor)
	ec.OutcomeInterval = config.Seconds(cfg.Loops.Outcome)
	ec.ReportInterval = config.Seconds(cfg.Loops.Report)
	ec.CallTimeout = config.Seconds(cfg.Loops.CallTimeout)
	ec.Warmup = config.Seconds(cfg.Loops.Warmup)
	ec.ReviewAfter = config.Seconds(s.ReviewAfter)
	ec.Entry = engine.EntryConfig{
		BuyThreshold: s.BuyThreshold,
		EntryWindows: map[domain.MarketType]time.Duration{
			domain.MarketType5m:  config.Seconds(s.EntryWindow5m),
			domain.MarketType15m: config.Seconds(s.EntryWindow15m),
		},
		MinTimeToClose: config.Seconds(s.MinSecondsToClose),
		MaxSpread:      s.MaxSpread,
		TrendTolerance: s.TrendTolerance,
	}
	ec.Exit = engine.ExitConfig{
		FloorPrice:    s.CutlossPrice,
		FeedThreshold: s.CutlossFeedPct,
		Grace:         config.Seconds(s.CutlossGrace),
		MinSellPrice:  s.MinSellPrice,
	}
	return ec
}

func marketTypes(names []string) []domain.MarketType {
	out := make([]domain.MarketType, 0, len(names))
	for _, n := range names {
		out = append(out, domain.MarketType(n))
	}
	return out
}

// probeCatalog comprueba que Gamma responde antes de arrancar los loops.
func probeCatalog(ctx context.Context, catalog ports.MarketCatalog, timeoutSeconds int) error {
	callCtx, cancel := context.WithTimeout(ctx, config.Seconds(timeoutSeconds))
	defer cancel()
	candidates, err := catalog.Candidates(callCtx)
	if err != nil {
		return err
	}
	slog.Info("catalog: probe ok", "candidates", len(candidates))
	return nil
}
