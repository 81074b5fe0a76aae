// Package metrics expone las métricas Prometheus del bot:
//
//	sniper_entries_total                  posiciones abiertas
//	sniper_skips_total{check}             candidatos rechazados por check de entrada
//	sniper_closes_total{status}           posiciones cerradas por estado terminal
//	sniper_cutloss_triggers_total{source} disparos de cut-loss (market | feed)
//	sniper_loop_errors_total{loop}        ciclos fallidos (error o panic)
//	sniper_balance_usdc                   saldo del ledger
//	sniper_open_positions                 posiciones OPEN
//	sniper_cycle_seconds{loop}            duración de cada ciclo
//
// Todos los métodos aceptan un receptor nil, así el engine funciona sin métricas.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics agrupa los collectors en un registry propio.
type Metrics struct {
	registry *prometheus.Registry

	entries         prometheus.Counter
	skips           *prometheus.CounterVec
	closes          *prometheus.CounterVec
	cutlossTriggers *prometheus.CounterVec
	loopErrors      *prometheus.CounterVec
	balance         prometheus.Gauge
	openPositions   prometheus.Gauge
	cycleSeconds    *prometheus.HistogramVec
}

// New crea y registra todos los collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		entries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sniper_entries_total",
			Help: "Positions opened",
		}),
		skips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sniper_skips_total",
			Help: "Candidates rejected by the entry evaluator, by failed check",
		}, []string{"check"}),
		closes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sniper_closes_total",
			Help: "Positions closed, by terminal status",
		}, []string{"status"}),
		cutlossTriggers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sniper_cutloss_triggers_total",
			Help: "Cut-loss triggers, by source",
		}, []string{"source"}),
		loopErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sniper_loop_errors_total",
			Help: "Failed loop cycles (error or panic)",
		}, []string{"loop"}),
		balance: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sniper_balance_usdc",
			Help: "Ledger balance in USDC",
		}),
		openPositions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sniper_open_positions",
			Help: "Positions currently OPEN",
		}),
		cycleSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sniper_cycle_seconds",
			Help:    "Duration of each loop cycle",
			Buckets: prometheus.DefBuckets,
		}, []string{"loop"}),
	}

	m.registry.MustRegister(
		m.entries, m.skips, m.closes, m.cutlossTriggers, m.loopErrors,
		m.balance, m.openPositions, m.cycleSeconds,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry devuelve el registry (tests y handlers).
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Entry() {
	if m == nil {
		return
	}
	m.entries.Inc()
}

func (m *Metrics) Skip(check string) {
	if m == nil {
		return
	}
	m.skips.WithLabelValues(check).Inc()
}

func (m *Metrics) Close(status string) {
	if m == nil {
		return
	}
	m.closes.WithLabelValues(status).Inc()
}

func (m *Metrics) CutlossTrigger(source string) {
	if m == nil {
		return
	}
	m.cutlossTriggers.WithLabelValues(source).Inc()
}

func (m *Metrics) LoopError(loop string) {
	if m == nil {
		return
	}
	m.loopErrors.WithLabelValues(loop).Inc()
}

// SetLedger actualiza los gauges de saldo y posiciones abiertas.
func (m *Metrics) SetLedger(balance float64, open int) {
	if m == nil {
		return
	}
	m.balance.Set(balance)
	m.openPositions.Set(float64(open))
}

func (m *Metrics) ObserveCycle(loop string, d time.Duration) {
	if m == nil {
		return
	}
	m.cycleSeconds.WithLabelValues(loop).Observe(d.Seconds())
}

// Handler devuelve el handler HTTP de exposición.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve sirve /metrics en addr hasta que ctx se cancele.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("metrics: listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
