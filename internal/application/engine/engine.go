// Package engine contiene la máquina de estados de trading: el evaluador de
// entrada, el supervisor de salida y los cuatro loops que los ejecutan contra
// el ledger compartido.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alejandrodnm/polysniper/internal/domain"
	"github.com/alejandrodnm/polysniper/internal/ledger"
	"github.com/alejandrodnm/polysniper/internal/metrics"
	"github.com/alejandrodnm/polysniper/internal/ports"
)

// Nombres de los loops (logs y métricas).
const (
	LoopScan    = "scan"
	LoopMonitor = "monitor"
	LoopOutcome = "outcome"
	LoopReport  = "report"
)

// Config controla los intervalos, tamaños y umbrales del engine.
type Config struct {
	TradeSize       float64
	ScanInterval    time.Duration
	MonitorInterval time.Duration
	OutcomeInterval time.Duration
	ReportInterval  time.Duration
	CallTimeout     time.Duration // presupuesto por llamada a un colaborador externo
	Warmup          time.Duration // espera antes del primer scan (feed caliente)
	ReviewAfter     time.Duration // aviso único si un mercado sigue sin resolver tras el cierre
	Entry           EntryConfig
	Exit            ExitConfig
}

// DefaultConfig devuelve los valores de producción.
func DefaultConfig() Config {
	return Config{
		TradeSize:       10,
		ScanInterval:    20 * time.Second,
		MonitorInterval: 5 * time.Second,
		OutcomeInterval: 10 * time.Second,
		ReportInterval:  time.Hour,
		CallTimeout:     10 * time.Second,
		Warmup:          10 * time.Second,
		ReviewAfter:     30 * time.Minute,
		Entry: EntryConfig{
			BuyThreshold: 0.97,
			EntryWindows: map[domain.MarketType]time.Duration{
				domain.MarketType5m:  120 * time.Second,
				domain.MarketType15m: 300 * time.Second,
			},
			MinTimeToClose: 5 * time.Second,
			MaxSpread:      0.05,
			TrendTolerance: 0.002,
		},
		Exit: ExitConfig{
			FloorPrice:    0.80,
			FeedThreshold: 0.003,
			Grace:         30 * time.Second,
			MinSellPrice:  0.01,
		},
	}
}

// Engine ejecuta los cuatro loops contra el ledger y los colaboradores inyectados.
type Engine struct {
	cfg        Config
	catalog    ports.MarketCatalog
	exchange   ports.Exchange
	prices     ports.PriceSource
	ledger     *ledger.Ledger
	notifier   ports.Notifier
	metrics    *metrics.Metrics
	evaluator  *Evaluator
	supervisor *Supervisor
	now        func() time.Time

	// estado de iteración: caché reconstruible desde el ledger
	mu      sync.Mutex
	watched int
	overdue map[string]bool
}

// Option configura un Engine.
type Option func(*Engine)

// WithClock reemplaza el reloj (tests).
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithMetrics conecta los collectors Prometheus.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// New crea un Engine con todas las dependencias inyectadas.
func New(
	cfg Config,
	catalog ports.MarketCatalog,
	exchange ports.Exchange,
	prices ports.PriceSource,
	l *ledger.Ledger,
	notifier ports.Notifier,
	opts ...Option,
) *Engine {
	e := &Engine{
		cfg:      cfg,
		catalog:  catalog,
		exchange: exchange,
		prices:   prices,
		ledger:   l,
		notifier: notifier,
		now:      time.Now,
		overdue:  make(map[string]bool),
	}
	for _, o := range opts {
		o(e)
	}
	e.evaluator = NewEvaluator(cfg.Entry, exchange, prices, l, e.now)
	e.supervisor = NewSupervisor(cfg.Exit, exchange, prices, e.now)
	return e
}

// Restore vuelve a fijar el precio de referencia de los assets con posiciones
// OPEN cargadas del ledger, para que cada Unpin posterior tenga su Pin.
func (e *Engine) Restore() int {
	open := e.ledger.OpenPositions()
	for _, p := range open {
		e.prices.Pin(p.Asset)
	}
	e.metrics.SetLedger(e.ledger.Balance(), len(open))
	if len(open) > 0 {
		slog.Info("engine: restored open positions", "count", len(open))
	}
	return len(open)
}

// Run arranca los cuatro loops y bloquea hasta que ctx se cancele.
// Cada loop termina el ciclo en curso antes de salir.
func (e *Engine) Run(ctx context.Context) error {
	slog.Info("engine: starting",
		"scan", e.cfg.ScanInterval,
		"monitor", e.cfg.MonitorInterval,
		"outcome", e.cfg.OutcomeInterval,
		"report", e.cfg.ReportInterval,
		"warmup", e.cfg.Warmup,
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if !sleepCtx(ctx, e.cfg.Warmup) {
			return nil
		}
		return e.loop(ctx, LoopScan, e.cfg.ScanInterval, true, e.Scan)
	})
	g.Go(func() error { return e.loop(ctx, LoopMonitor, e.cfg.MonitorInterval, true, e.Monitor) })
	g.Go(func() error { return e.loop(ctx, LoopOutcome, e.cfg.OutcomeInterval, true, e.Outcomes) })
	g.Go(func() error { return e.loop(ctx, LoopReport, e.cfg.ReportInterval, false, e.Report) })

	err := g.Wait()
	slog.Info("engine: stopped")
	return err
}

// loop repite fn cada interval hasta que ctx se cancele. Un ciclo fallido
// nunca detiene el loop.
func (e *Engine) loop(ctx context.Context, name string, interval time.Duration, immediate bool, fn func(context.Context) error) error {
	if immediate {
		e.cycle(ctx, name, fn)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Debug(name + ": loop stopped")
			return nil
		case <-ticker.C:
			e.cycle(ctx, name, fn)
		}
	}
}

// cycle ejecuta un ciclo protegido. El ciclo no se cancela a medias con el
// shutdown: cada llamada externa ya tiene su propio timeout.
func (e *Engine) cycle(ctx context.Context, name string, fn func(context.Context) error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			e.metrics.LoopError(name)
			slog.Error(name+": cycle panicked", "panic", r, "stack", string(debug.Stack()))
		}
		e.metrics.ObserveCycle(name, time.Since(start))
	}()

	if err := fn(context.WithoutCancel(ctx)); err != nil {
		e.metrics.LoopError(name)
		slog.Error(name+": cycle failed", "err", err)
	}
}

// call acota una llamada a un colaborador externo.
func (e *Engine) call(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.cfg.CallTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.cfg.CallTimeout)
}

// notify envía un evento sin bloquear. El notifier es opcional.
func (e *Engine) notify(ctx context.Context, ev domain.Event) {
	if e.notifier == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = e.now().UTC()
	}
	if ev.Position != nil {
		fields := make(map[string]any, len(ev.Fields)+1)
		for k, v := range ev.Fields {
			fields[k] = v
		}
		fields["balance"] = e.ledger.Balance()
		ev.Fields = fields
	}
	e.notifier.Notify(ctx, ev)
}

// Watched devuelve cuántos candidatos devolvió el último scan.
func (e *Engine) Watched() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.watched
}

func (e *Engine) setWatched(n int) {
	e.mu.Lock()
	e.watched = n
	e.mu.Unlock()
}

// markOverdue marca la posición como avisada. Devuelve false si ya lo estaba.
func (e *Engine) markOverdue(tradeID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.overdue[tradeID] {
		return false
	}
	e.overdue[tradeID] = true
	return true
}

func (e *Engine) clearOverdue(tradeID string) {
	e.mu.Lock()
	delete(e.overdue, tradeID)
	e.mu.Unlock()
}

func (e *Engine) refreshGauges() {
	e.metrics.SetLedger(e.ledger.Balance(), len(e.ledger.OpenPositions()))
}

// sleepCtx espera d o hasta que ctx se cancele. Devuelve false si se canceló.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func money(v float64) string {
	return fmt.Sprintf("$%.2f", v)
}
