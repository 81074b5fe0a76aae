package engine

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/alejandrodnm/polysniper/internal/domain"
	"github.com/alejandrodnm/polysniper/internal/ports"
)

// pctEpsilon absorbe el error de redondeo al comparar cambios porcentuales
// contra el umbral (49850/50000-1 no es exactamente -0.003).
const pctEpsilon = 1e-12

// Fuentes de disparo del cut-loss.
const (
	SourceMarket = "market"
	SourceFeed   = "feed"
)

// ExitConfig son los umbrales del supervisor de salida.
type ExitConfig struct {
	FloorPrice    float64       // bid mínimo del YES, p.ej. 0.80
	FeedThreshold float64       // movimiento adverso del spot, p.ej. 0.003
	Grace         time.Duration // tras el cierre se deja de vigilar el cut-loss
	MinSellPrice  float64       // precio de venta si no hay bid, p.ej. 0.01
}

// CutlossSignal es el resultado del check de cut-loss de una posición.
type CutlossSignal struct {
	Fire      bool
	Source    string
	Reason    string
	SellPrice float64
}

// Supervisor decide, por posición abierta, si cortar pérdidas o si ya resolvió.
type Supervisor struct {
	cfg    ExitConfig
	quotes ports.MarketData
	prices ports.PriceSource
	now    func() time.Time
}

// NewSupervisor crea un supervisor con las dependencias inyectadas.
func NewSupervisor(cfg ExitConfig, quotes ports.MarketData, prices ports.PriceSource, now func() time.Time) *Supervisor {
	if now == nil {
		now = time.Now
	}
	return &Supervisor{cfg: cfg, quotes: quotes, prices: prices, now: now}
}

// Monitored indica si la posición sigue dentro de la ventana de cut-loss
// (now < close + grace).
func (s *Supervisor) Monitored(p domain.Position) bool {
	return s.now().Before(p.CloseAt.Add(s.cfg.Grace))
}

// FeedChange devuelve el cambio del spot contra el precio fijado en la entrada.
// Usa el ReferencePrice persistido en la posición; si falta, cae al pin del feed.
func (s *Supervisor) FeedChange(p domain.Position) (float64, bool) {
	if p.ReferencePrice > 0 {
		latest, ok := s.prices.Latest(p.Asset)
		if !ok || latest <= 0 {
			return 0, false
		}
		return (latest - p.ReferencePrice) / p.ReferencePrice, true
	}
	return s.prices.ChangeSincePinned(p.Asset)
}

// adverse indica si change va contra la dirección de la posición más allá del umbral.
// Un movimiento favorable de la misma magnitud nunca dispara.
func (s *Supervisor) adverse(dir domain.Direction, change float64) bool {
	switch dir {
	case domain.DirectionUp:
		return change <= -s.cfg.FeedThreshold+pctEpsilon
	case domain.DirectionDown:
		return change >= s.cfg.FeedThreshold-pctEpsilon
	}
	return false
}

// CheckCutloss evalúa los dos disparadores independientes: bid del YES bajo
// el suelo (market) o spot en contra más allá del umbral (feed).
//
// Si el bid no se puede leer pero el feed dispara, se vende al precio mínimo.
func (s *Supervisor) CheckCutloss(ctx context.Context, p domain.Position) (CutlossSignal, error) {
	var feedReason string
	if change, ok := s.FeedChange(p); ok && s.adverse(p.Direction, change) {
		feedReason = fmt.Sprintf("%s spot %+.2f%% vs entry, threshold %.2f%%", p.Asset, change*100, s.cfg.FeedThreshold*100)
	}

	bid, hasBid, err := s.quotes.BestBid(ctx, p.YesTokenID)
	if err != nil {
		if feedReason != "" {
			return CutlossSignal{Fire: true, Source: SourceFeed, Reason: feedReason, SellPrice: s.cfg.MinSellPrice}, nil
		}
		return CutlossSignal{}, fmt.Errorf("engine.CheckCutloss %s: best bid: %w", p.TradeID, err)
	}

	sellPrice := s.cfg.MinSellPrice
	if hasBid {
		sellPrice = math.Max(bid, s.cfg.MinSellPrice)
	}

	if hasBid && bid < s.cfg.FloorPrice {
		return CutlossSignal{
			Fire:      true,
			Source:    SourceMarket,
			Reason:    fmt.Sprintf("YES bid %.4f < floor %.2f", bid, s.cfg.FloorPrice),
			SellPrice: sellPrice,
		}, nil
	}
	if feedReason != "" {
		return CutlossSignal{Fire: true, Source: SourceFeed, Reason: feedReason, SellPrice: sellPrice}, nil
	}
	return CutlossSignal{}, nil
}

// CheckOutcome consulta la resolución de una posición cuyo mercado ya cerró.
// Devuelve StatusOpen mientras el venue no resuelva (sin límite de reintentos).
func (s *Supervisor) CheckOutcome(ctx context.Context, p domain.Position) (domain.PositionStatus, error) {
	if !p.PastClose(s.now()) {
		return domain.StatusOpen, nil
	}
	outcome, err := s.quotes.ResolutionOf(ctx, p.MarketID)
	if err != nil {
		return domain.StatusOpen, fmt.Errorf("engine.CheckOutcome %s: %w", p.TradeID, err)
	}
	switch outcome {
	case domain.OutcomeYes:
		return domain.StatusWin, nil
	case domain.OutcomeNo:
		return domain.StatusLoss, nil
	}
	return domain.StatusOpen, nil
}
