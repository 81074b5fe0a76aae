package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/alejandrodnm/polysniper/internal/domain"
)

// Scan refresca los candidatos, evalúa los no vencidos y no operados, y entra
// en los aceptados.
func (e *Engine) Scan(ctx context.Context) error {
	callCtx, cancel := e.call(ctx)
	candidates, err := e.catalog.Candidates(callCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("scan: candidates: %w", err)
	}
	e.setWatched(len(candidates))

	var evaluated, entered int
	for _, c := range candidates {
		if c.Expired(e.now()) || e.ledger.AlreadyAttempted(c.MarketID) {
			continue
		}
		evaluated++

		callCtx, cancel := e.call(ctx)
		decision, err := e.evaluator.Evaluate(callCtx, c)
		cancel()
		if err != nil {
			slog.Warn("scan: evaluate failed", "market", c.Label(), "market_id", c.MarketID, "err", err)
			continue
		}
		if !decision.Enter {
			e.metrics.Skip(decision.Check)
			slog.Debug("scan: skip", "market", c.Label(), "check", decision.Check, "reason", decision.Reason)
			continue
		}

		if err := e.enter(ctx, c, decision); err != nil {
			slog.Warn("scan: entry failed", "market", c.Label(), "market_id", c.MarketID, "err", err)
			continue
		}
		entered++
	}

	slog.Debug("scan: cycle complete", "candidates", len(candidates), "evaluated", evaluated, "entered", entered)
	return nil
}

// enter compra el YES al ask evaluado y registra la posición.
func (e *Engine) enter(ctx context.Context, c domain.Candidate, d domain.Decision) error {
	if balance := e.ledger.Balance(); balance < e.cfg.TradeSize {
		return fmt.Errorf("insufficient balance %s < trade size %s", money(balance), money(e.cfg.TradeSize))
	}

	callCtx, cancel := e.call(ctx)
	order, err := e.exchange.Buy(callCtx, c.YesTokenID, d.Ask, e.cfg.TradeSize)
	cancel()
	if err != nil {
		return fmt.Errorf("buy: %w", err)
	}

	shares := order.FilledShares
	if shares <= 0 {
		shares = math.Floor(e.cfg.TradeSize/d.Ask*100) / 100
	}
	// lo comprometido es lo pagado por las shares: así pnl = payout - size
	size := shares * d.Ask

	pos, err := e.ledger.Open(ctx, domain.OpenParams{
		MarketID:       c.MarketID,
		OrderID:        order.OrderID,
		Asset:          c.Asset,
		Direction:      c.Direction,
		MarketType:     c.MarketType,
		Label:          c.Label(),
		YesTokenID:     c.YesTokenID,
		NoTokenID:      c.NoTokenID,
		EntryPrice:     d.Ask,
		Shares:         shares,
		Size:           size,
		CloseAt:        c.CloseAt,
		EntryAt:        e.now().UTC(),
		ReferencePrice: d.Spot,
	})
	switch {
	case errors.Is(err, domain.ErrPersistence):
		slog.Error("scan: ledger not persisted, in-memory state kept", "severity", "critical", "trade", pos.TradeID, "err", err)
		e.notify(ctx, domain.Event{Kind: domain.EventError, Message: "ledger persistence failure: " + err.Error()})
	case err != nil:
		// la orden ya salió: queda en logs para reconciliar a mano
		slog.Error("scan: order placed but position not recorded", "order_id", order.OrderID, "market_id", c.MarketID, "err", err)
		return fmt.Errorf("ledger open: %w", err)
	}

	e.prices.Pin(c.Asset)
	e.metrics.Entry()
	e.refreshGauges()

	slog.Info("scan: entered",
		"trade", pos.TradeID,
		"market", pos.Label,
		"direction", pos.Direction,
		"ask", fmt.Sprintf("%.4f", pos.EntryPrice),
		"shares", fmt.Sprintf("%.2f", pos.Shares),
		"size", money(pos.Size),
		"spot", fmt.Sprintf("%.2f", pos.ReferencePrice),
		"reason", d.Reason,
	)
	e.notify(ctx, domain.Event{Kind: domain.EventEntered, Position: &pos})
	return nil
}
