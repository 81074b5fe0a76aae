package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alejandrodnm/polysniper/internal/domain"
	"github.com/alejandrodnm/polysniper/internal/ports"
)

// spreadEpsilon evita rechazar un spread de exactamente 5¢ por redondeo float.
const spreadEpsilon = 1e-9

// EntryConfig son los umbrales del evaluador de entrada.
type EntryConfig struct {
	BuyThreshold   float64                              // ask mínimo del YES, p.ej. 0.97
	EntryWindows   map[domain.MarketType]time.Duration // tiempo máximo hasta el cierre por tipo
	MinTimeToClose time.Duration                        // margen de seguridad, p.ej. 5s
	MaxSpread      float64                              // spread máximo, p.ej. 0.05
	TrendTolerance float64                              // veto de momentum, p.ej. 0.002
}

// attemptChecker es lo que el evaluador necesita del ledger.
type attemptChecker interface {
	AlreadyAttempted(marketID string) bool
}

// Evaluator decide si entrar en un candidato. Solo lee: nunca muta el ledger
// ni envía órdenes.
type Evaluator struct {
	cfg    EntryConfig
	quotes ports.MarketData
	prices ports.PriceSource
	ledger attemptChecker
	now    func() time.Time
}

// NewEvaluator crea un evaluador con las dependencias inyectadas.
func NewEvaluator(cfg EntryConfig, quotes ports.MarketData, prices ports.PriceSource, ledger attemptChecker, now func() time.Time) *Evaluator {
	if now == nil {
		now = time.Now
	}
	return &Evaluator{cfg: cfg, quotes: quotes, prices: prices, ledger: ledger, now: now}
}

// Evaluate aplica los seis checks en orden y corta en el primero que falla.
//
// Un error solo se devuelve si no se pudo leer el book por un fallo del
// colaborador; un book inválido es un rechazo, no un error.
func (e *Evaluator) Evaluate(ctx context.Context, c domain.Candidate) (domain.Decision, error) {
	// 1. ventana de entrada
	window, ok := e.cfg.EntryWindows[c.MarketType]
	if !ok {
		return domain.Skip(domain.CheckWindow, fmt.Sprintf("unknown market type %q", c.MarketType)), nil
	}
	ttc := c.TimeToClose(e.now())
	if ttc > window {
		return domain.Skip(domain.CheckWindow, fmt.Sprintf("too early: %.0fs to close > window %.0fs", ttc.Seconds(), window.Seconds())), nil
	}
	if ttc <= e.cfg.MinTimeToClose {
		return domain.Skip(domain.CheckWindow, fmt.Sprintf("too late: %.0fs to close <= %.0fs", ttc.Seconds(), e.cfg.MinTimeToClose.Seconds())), nil
	}

	// 2. un solo intento por mercado
	if e.ledger.AlreadyAttempted(c.MarketID) {
		return domain.Skip(domain.CheckAttempted, "market already attempted"), nil
	}

	// 3. ask del YES en [threshold, 1.0)
	book, err := e.quotes.Book(ctx, c.YesTokenID)
	if errors.Is(err, domain.ErrInvalidQuote) {
		return domain.Skip(domain.CheckAsk, err.Error()), nil
	}
	if err != nil {
		return domain.Decision{}, fmt.Errorf("engine.Evaluate %s: book: %w", c.MarketID, err)
	}
	ask, ok := book.BestAsk()
	if !ok {
		return domain.Skip(domain.CheckAsk, "no ask"), nil
	}
	if ask >= 1.0 {
		return domain.Skip(domain.CheckAsk, fmt.Sprintf("ask %.4f >= 1.0 (resolved or corrupt quote)", ask)), nil
	}
	if ask < e.cfg.BuyThreshold {
		return domain.Skip(domain.CheckAsk, fmt.Sprintf("ask %.4f < threshold %.2f", ask, e.cfg.BuyThreshold)), nil
	}

	// 4. liquidez
	if spread, ok := book.Spread(); ok && spread > e.cfg.MaxSpread+spreadEpsilon {
		return domain.Skip(domain.CheckSpread, fmt.Sprintf("spread %.4f > %.2f", spread, e.cfg.MaxSpread)), nil
	}

	// 5. veto de momentum
	if trend, ok := e.prices.Trend1m(c.Asset); ok {
		switch c.Direction {
		case domain.DirectionUp:
			if trend < -e.cfg.TrendTolerance {
				return domain.Skip(domain.CheckTrend, fmt.Sprintf("1m trend %+.3f%% against UP", trend*100)), nil
			}
		case domain.DirectionDown:
			if trend > e.cfg.TrendTolerance {
				return domain.Skip(domain.CheckTrend, fmt.Sprintf("1m trend %+.3f%% against DOWN", trend*100)), nil
			}
		}
	}

	// 6. feed caliente
	spot, ok := e.prices.Latest(c.Asset)
	if !ok || spot <= 0 {
		return domain.Skip(domain.CheckSpot, "no spot price for "+c.Asset), nil
	}

	return domain.Decision{
		Enter:  true,
		Reason: fmt.Sprintf("ask %.4f, %.0fs to close", ask, ttc.Seconds()),
		Ask:    ask,
		Spot:   spot,
	}, nil
}
