package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polysniper/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, config.ModePaper, cfg.Mode)
	assert.InDelta(t, 0.97, cfg.Strategy.BuyThreshold, 1e-9)
	assert.InDelta(t, 0.80, cfg.Strategy.CutlossPrice, 1e-9)
	assert.InDelta(t, 0.003, cfg.Strategy.CutlossFeedPct, 1e-9)
	assert.InDelta(t, 10, cfg.Strategy.TradeSizeUSDC, 1e-9)
	assert.Equal(t, 120, cfg.Strategy.EntryWindow5m)
	assert.Equal(t, 300, cfg.Strategy.EntryWindow15m)
	assert.Equal(t, []string{"BTC", "ETH", "SOL"}, cfg.Strategy.Assets)
	assert.Equal(t, []string{"5m", "15m"}, cfg.Strategy.MarketTypes)
	assert.Equal(t, 20, cfg.Loops.Scan)
	assert.Equal(t, 5, cfg.Loops.Monitor)
	assert.Equal(t, 10, cfg.Loops.Outcome)
	assert.Equal(t, 3600, cfg.Loops.Report)
	assert.Equal(t, "json", cfg.Storage.Backend)
	assert.Equal(t, "trades.json", cfg.Storage.Path)
	assert.InDelta(t, 100, cfg.Paper.InitialBalance, 1e-9)
	assert.Equal(t, "wss://stream.binance.com:9443/ws", cfg.API.BinanceWS)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_YAMLAndNormalization(t *testing.T) {
	path := writeConfig(t, `
mode: LIVE
strategy:
  buy_threshold: 0.95
  assets: [btc, sol]
  market_types: [15M]
storage:
  backend: sqlite
wallet:
  rpc_url: https://polygon.example
loops:
  scan: 7
`)
	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, config.ModeLive, cfg.Mode)
	assert.InDelta(t, 0.95, cfg.Strategy.BuyThreshold, 1e-9)
	assert.Equal(t, []string{"BTC", "SOL"}, cfg.Strategy.Assets)
	assert.Equal(t, []string{"15m"}, cfg.Strategy.MarketTypes)
	assert.Equal(t, "sniper.db", cfg.Storage.Path)
	assert.Equal(t, 7, cfg.Loops.Scan)
	assert.Equal(t, 7*time.Second, config.Seconds(cfg.Loops.Scan))
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("BUY_THRESHOLD", "0.96")
	t.Setenv("TRADE_SIZE_USDC", "25")
	t.Setenv("CUTLOSS_PM_PRICE", "0.75")
	t.Setenv("CUTLOSS_BINANCE_PCT", "0.005")
	t.Setenv("ASSETS", "eth, btc ,")
	t.Setenv("MARKET_TYPES", "5m")
	t.Setenv("TRADES_FILE", "/tmp/x.json")
	t.Setenv("TELEGRAM_BOT_TOKEN", "tok")
	t.Setenv("TELEGRAM_CHAT_ID", "42")

	cfg, err := config.Load(writeConfig(t, "strategy:\n  buy_threshold: 0.90\n"))
	require.NoError(t, err)

	assert.InDelta(t, 0.96, cfg.Strategy.BuyThreshold, 1e-9)
	assert.InDelta(t, 25, cfg.Strategy.TradeSizeUSDC, 1e-9)
	assert.InDelta(t, 0.75, cfg.Strategy.CutlossPrice, 1e-9)
	assert.InDelta(t, 0.005, cfg.Strategy.CutlossFeedPct, 1e-9)
	assert.Equal(t, []string{"ETH", "BTC"}, cfg.Strategy.Assets)
	assert.Equal(t, []string{"5m"}, cfg.Strategy.MarketTypes)
	assert.Equal(t, "/tmp/x.json", cfg.Storage.Path)
	assert.True(t, cfg.TelegramEnabled())
}

func TestLoad_BadEnvNumber(t *testing.T) {
	t.Setenv("BUY_THRESHOLD", "ninety")

	_, err := config.Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BUY_THRESHOLD")
}

func TestLoad_BadYAML(t *testing.T) {
	_, err := config.Load(writeConfig(t, "strategy: [unclosed"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{"threshold at 1", func(c *config.Config) { c.Strategy.BuyThreshold = 1 }, "buy_threshold"},
		{"negative threshold", func(c *config.Config) { c.Strategy.BuyThreshold = -0.1 }, "buy_threshold"},
		{"zero trade size", func(c *config.Config) { c.Strategy.TradeSizeUSDC = 0 }, "trade_size_usdc"},
		{"floor above threshold", func(c *config.Config) { c.Strategy.CutlossPrice = 0.98 }, "cutloss_price"},
		{"unknown market type", func(c *config.Config) { c.Strategy.MarketTypes = []string{"1h"} }, "market type"},
		{"unknown backend", func(c *config.Config) { c.Storage.Backend = "redis" }, "storage backend"},
		{"unknown mode", func(c *config.Config) { c.Mode = "demo" }, "mode"},
		{"live without key", func(c *config.Config) {
			c.Mode = config.ModeLive
			c.Wallet.RPCURL = "https://rpc"
		}, "POLY_PRIVATE_KEY"},
		{"live without rpc", func(c *config.Config) {
			c.Mode = config.ModeLive
			c.Wallet.PrivateKey = "abc"
		}, "POLYGON_RPC_URL"},
		{"telegram half configured", func(c *config.Config) { c.Notify.TelegramToken = "tok" }, "TELEGRAM_CHAT_ID"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := config.Load("")
			require.NoError(t, err)
			cfg.Wallet = config.WalletConfig{}
			cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID = "", ""

			tc.mutate(cfg)
			err = cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}
