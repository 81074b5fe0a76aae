package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Modos de ejecución.
const (
	ModePaper = "paper"
	ModeLive  = "live"
)

// Config es la configuración completa del sniper.
type Config struct {
	Mode     string         `yaml:"mode"` // paper | live
	Strategy StrategyConfig `yaml:"strategy"`
	Loops    LoopsConfig    `yaml:"loops"`
	API      APIConfig      `yaml:"api"`
	Wallet   WalletConfig   `yaml:"wallet"`
	Paper    PaperConfig    `yaml:"paper"`
	Storage  StorageConfig  `yaml:"storage"`
	Notify   NotifyConfig   `yaml:"notify"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Log      LogConfig      `yaml:"log"`
}

// StrategyConfig son los umbrales de entrada y de cut-loss.
type StrategyConfig struct {
	BuyThreshold      float64  `yaml:"buy_threshold"`    // ask mínimo del YES
	EntryWindow5m     int      `yaml:"entry_window_5m"`  // segundos antes del cierre
	EntryWindow15m    int      `yaml:"entry_window_15m"` // segundos antes del cierre
	MinSecondsToClose int      `yaml:"min_seconds_to_close"`
	MaxSpread         float64  `yaml:"max_spread"`
	TrendTolerance    float64  `yaml:"trend_tolerance"` // veto de momentum, fracción
	TradeSizeUSDC     float64  `yaml:"trade_size_usdc"`
	CutlossPrice      float64  `yaml:"cutloss_price"`    // suelo del bid del YES
	CutlossFeedPct    float64  `yaml:"cutloss_feed_pct"` // movimiento adverso del spot, fracción
	CutlossGrace      int      `yaml:"cutloss_grace"`    // segundos tras el cierre
	MinSellPrice      float64  `yaml:"min_sell_price"`
	ReviewAfter       int      `yaml:"review_after"` // segundos sin resolver tras el cierre antes de avisar
	Assets            []string `yaml:"assets"`
	MarketTypes       []string `yaml:"market_types"`
}

// LoopsConfig son los intervalos en segundos de cada loop.
type LoopsConfig struct {
	Scan        int    `yaml:"scan"`
	Monitor     int    `yaml:"monitor"`
	Outcome     int    `yaml:"outcome"`
	Report      int    `yaml:"report"`
	CallTimeout int    `yaml:"call_timeout"`
	Warmup      int    `yaml:"warmup"`
	StopFile    string `yaml:"stop_file"` // si existe, el bot se para
}

// APIConfig contiene los base URLs de las APIs.
type APIConfig struct {
	CLOBBase  string `yaml:"clob_base"`
	GammaBase string `yaml:"gamma_base"`
	BinanceWS string `yaml:"binance_ws"`
}

// WalletConfig solo aplica en modo live. Los secretos vienen del entorno.
type WalletConfig struct {
	PrivateKey      string `yaml:"private_key"`
	RPCURL          string `yaml:"rpc_url"`
	EnsureApprovals bool   `yaml:"ensure_approvals"`
}

// PaperConfig controla el exchange simulado.
type PaperConfig struct {
	InitialBalance float64 `yaml:"initial_balance"`
}

// StorageConfig controla dónde se persiste el ledger.
type StorageConfig struct {
	Backend string `yaml:"backend"` // json | sqlite
	Path    string `yaml:"path"`
}

// NotifyConfig controla las notificaciones al operador.
type NotifyConfig struct {
	TelegramToken  string   `yaml:"telegram_token"`
	TelegramChatID string   `yaml:"telegram_chat_id"`
	Events         []string `yaml:"events"` // vacío = todos
	QueueSize      int      `yaml:"queue_size"`
	Console        bool     `yaml:"console"`
}

// MetricsConfig controla el endpoint Prometheus. Addr vacío lo desactiva.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load carga .env si existe, el YAML de path, los overrides de entorno y los defaults.
// Un path vacío o inexistente deja solo defaults + entorno.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
			}
		case os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	setDefaults(&cfg)
	return &cfg, nil
}

// Validate rechaza configuraciones con las que el bot no debe arrancar.
func (c *Config) Validate() error {
	s := c.Strategy
	switch {
	case c.Mode != ModePaper && c.Mode != ModeLive:
		return fmt.Errorf("config: unknown mode %q", c.Mode)
	case s.BuyThreshold <= 0 || s.BuyThreshold >= 1:
		return fmt.Errorf("config: buy_threshold %.4f outside (0, 1)", s.BuyThreshold)
	case s.TradeSizeUSDC <= 0:
		return fmt.Errorf("config: trade_size_usdc must be positive")
	case s.CutlossPrice >= s.BuyThreshold:
		return fmt.Errorf("config: cutloss_price %.2f must be below buy_threshold %.2f", s.CutlossPrice, s.BuyThreshold)
	case s.CutlossFeedPct <= 0:
		return fmt.Errorf("config: cutloss_feed_pct must be positive")
	case s.MaxSpread < 0:
		return fmt.Errorf("config: max_spread must not be negative")
	case len(s.Assets) == 0:
		return fmt.Errorf("config: no assets configured")
	}
	for _, t := range s.MarketTypes {
		if t != "5m" && t != "15m" {
			return fmt.Errorf("config: unknown market type %q", t)
		}
	}
	if c.Storage.Backend != "json" && c.Storage.Backend != "sqlite" {
		return fmt.Errorf("config: unknown storage backend %q", c.Storage.Backend)
	}
	if c.Mode == ModeLive {
		if c.Wallet.PrivateKey == "" {
			return fmt.Errorf("config: live mode requires POLY_PRIVATE_KEY")
		}
		if c.Wallet.RPCURL == "" {
			return fmt.Errorf("config: live mode requires POLYGON_RPC_URL")
		}
	}
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		return fmt.Errorf("config: telegram needs both TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID")
	}
	return nil
}

// TelegramEnabled indica si hay credenciales de Telegram.
func (c *Config) TelegramEnabled() bool {
	return c.Notify.TelegramToken != "" && c.Notify.TelegramChatID != ""
}

// Seconds convierte un entero de segundos de la config.
func Seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) error {
	str := map[string]*string{
		"LOG_LEVEL":          &cfg.Log.Level,
		"LOG_FORMAT":         &cfg.Log.Format,
		"SNIPER_MODE":        &cfg.Mode,
		"TRADES_FILE":        &cfg.Storage.Path,
		"POLY_PRIVATE_KEY":   &cfg.Wallet.PrivateKey,
		"POLYGON_RPC_URL":    &cfg.Wallet.RPCURL,
		"TELEGRAM_BOT_TOKEN": &cfg.Notify.TelegramToken,
		"TELEGRAM_CHAT_ID":   &cfg.Notify.TelegramChatID,
	}
	for key, dst := range str {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	floats := map[string]*float64{
		"BUY_THRESHOLD":       &cfg.Strategy.BuyThreshold,
		"TRADE_SIZE_USDC":     &cfg.Strategy.TradeSizeUSDC,
		"CUTLOSS_PM_PRICE":    &cfg.Strategy.CutlossPrice,
		"CUTLOSS_BINANCE_PCT": &cfg.Strategy.CutlossFeedPct,
	}
	for key, dst := range floats {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return fmt.Errorf("env %s=%q: %w", key, v, err)
		}
		*dst = f
	}

	if v := os.Getenv("ASSETS"); v != "" {
		cfg.Strategy.Assets = splitList(v)
	}
	if v := os.Getenv("MARKET_TYPES"); v != "" {
		cfg.Strategy.MarketTypes = splitList(v)
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	if cfg.Mode == "" {
		cfg.Mode = ModePaper
	}
	cfg.Mode = strings.ToLower(cfg.Mode)

	s := &cfg.Strategy
	if s.BuyThreshold == 0 {
		s.BuyThreshold = 0.97
	}
	if s.EntryWindow5m <= 0 {
		s.EntryWindow5m = 120
	}
	if s.EntryWindow15m <= 0 {
		s.EntryWindow15m = 300
	}
	if s.MinSecondsToClose <= 0 {
		s.MinSecondsToClose = 5
	}
	if s.MaxSpread == 0 {
		s.MaxSpread = 0.05
	}
	if s.TrendTolerance <= 0 {
		s.TrendTolerance = 0.002
	}
	if s.TradeSizeUSDC == 0 {
		s.TradeSizeUSDC = 10
	}
	if s.CutlossPrice == 0 {
		s.CutlossPrice = 0.80
	}
	if s.CutlossFeedPct == 0 {
		s.CutlossFeedPct = 0.003
	}
	if s.CutlossGrace <= 0 {
		s.CutlossGrace = 30
	}
	if s.MinSellPrice <= 0 {
		s.MinSellPrice = 0.01
	}
	if s.ReviewAfter <= 0 {
		s.ReviewAfter = 30 * 60
	}
	if len(s.Assets) == 0 {
		s.Assets = []string{"BTC", "ETH", "SOL"}
	}
	for i, a := range s.Assets {
		s.Assets[i] = strings.ToUpper(a)
	}
	if len(s.MarketTypes) == 0 {
		s.MarketTypes = []string{"5m", "15m"}
	}
	for i, t := range s.MarketTypes {
		s.MarketTypes[i] = strings.ToLower(t)
	}

	l := &cfg.Loops
	if l.Scan <= 0 {
		l.Scan = 20
	}
	if l.Monitor <= 0 {
		l.Monitor = 5
	}
	if l.Outcome <= 0 {
		l.Outcome = 10
	}
	if l.Report <= 0 {
		l.Report = 3600
	}
	if l.CallTimeout <= 0 {
		l.CallTimeout = 10
	}
	if l.Warmup < 0 {
		l.Warmup = 0
	}

	if cfg.API.CLOBBase == "" {
		cfg.API.CLOBBase = "https://clob.polymarket.com"
	}
	if cfg.API.GammaBase == "" {
		cfg.API.GammaBase = "https://gamma-api.polymarket.com"
	}
	if cfg.API.BinanceWS == "" {
		cfg.API.BinanceWS = "wss://stream.binance.com:9443/ws"
	}

	if cfg.Paper.InitialBalance <= 0 {
		cfg.Paper.InitialBalance = 100
	}

	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "json"
	}
	if cfg.Storage.Path == "" {
		if cfg.Storage.Backend == "sqlite" {
			cfg.Storage.Path = "sniper.db"
		} else {
			cfg.Storage.Path = "trades.json"
		}
	}

	if cfg.Notify.QueueSize <= 0 {
		cfg.Notify.QueueSize = 64
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
