package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/polysniper/internal/domain"
)

// Monitor corre el check de cut-loss sobre cada posición OPEN dentro de su
// ventana de vigilancia.
func (e *Engine) Monitor(ctx context.Context) error {
	for _, p := range e.ledger.OpenPositions() {
		if !e.supervisor.Monitored(p) {
			continue
		}

		callCtx, cancel := e.call(ctx)
		signal, err := e.supervisor.CheckCutloss(callCtx, p)
		cancel()
		if err != nil {
			slog.Warn("monitor: check failed", "trade", p.TradeID, "err", err)
			continue
		}
		if !signal.Fire {
			continue
		}

		e.metrics.CutlossTrigger(signal.Source)
		slog.Warn("monitor: cutloss triggered", "trade", p.TradeID, "source", signal.Source, "reason", signal.Reason)
		e.cutloss(ctx, p, signal)
	}
	return nil
}

// cutloss vende la posición entera con una orden FOK y la cierra como CUTLOSS.
// Si la venta falla, o el exchange informa un llenado menor que la posición,
// la posición sigue OPEN y se reintenta en el próximo ciclo.
func (e *Engine) cutloss(ctx context.Context, p domain.Position, signal CutlossSignal) {
	callCtx, cancel := e.call(ctx)
	order, err := e.exchange.Sell(callCtx, p.YesTokenID, signal.SellPrice, p.Shares, domain.UrgencyFOK)
	cancel()
	if err == nil && order.FilledShares > 0 && order.FilledShares < p.Shares-domain.SellDust-1e-9 {
		err = fmt.Errorf("partial fill %.2f of %.2f shares (order %s)", order.FilledShares, p.Shares, order.OrderID)
	}
	if err != nil {
		slog.Error("monitor: cutloss sell failed, retrying next cycle", "trade", p.TradeID, "price", signal.SellPrice, "err", err)
		e.notify(ctx, domain.Event{
			Kind:     domain.EventError,
			Message:  fmt.Sprintf("cutloss sell failed for %s: %v", p.TradeID, err),
			Position: &p,
		})
		return
	}

	closed, err := e.ledger.ResolveCutloss(ctx, p.TradeID, signal.SellPrice, order.FilledShares, signal.Reason)
	if !e.handleResolveErr(ctx, LoopMonitor, p, err) {
		return
	}
	slog.Info("monitor: position cut",
		"trade", closed.TradeID,
		"order_id", order.OrderID,
		"sell", fmt.Sprintf("%.4f", signal.SellPrice),
		"pnl", money(closed.RealizedPnL()),
	)
	e.closed(ctx, closed, domain.EventCutloss)
}

// Outcomes consulta la resolución de cada posición OPEN cuyo mercado ya cerró.
func (e *Engine) Outcomes(ctx context.Context) error {
	now := e.now()
	for _, p := range e.ledger.OpenPositions() {
		if !p.PastClose(now) {
			continue
		}

		callCtx, cancel := e.call(ctx)
		status, err := e.supervisor.CheckOutcome(callCtx, p)
		cancel()
		if err != nil {
			slog.Warn("outcome: check failed", "trade", p.TradeID, "err", err)
			continue
		}

		var closed domain.Position
		var kind domain.EventKind
		switch status {
		case domain.StatusWin:
			closed, err = e.ledger.ResolveWin(ctx, p.TradeID)
			kind = domain.EventWin
		case domain.StatusLoss:
			closed, err = e.ledger.ResolveLoss(ctx, p.TradeID)
			kind = domain.EventLoss
		default:
			e.checkOverdue(ctx, p, now)
			continue
		}
		if !e.handleResolveErr(ctx, LoopOutcome, p, err) {
			continue
		}
		slog.Info("outcome: resolved", "trade", closed.TradeID, "status", closed.Status, "pnl", money(closed.RealizedPnL()))
		e.closed(ctx, closed, kind)
	}
	return nil
}

// checkOverdue avisa una sola vez si un mercado sigue sin resolver pasado
// ReviewAfter desde el cierre. La posición sigue OPEN y se sigue consultando.
func (e *Engine) checkOverdue(ctx context.Context, p domain.Position, now time.Time) {
	if e.cfg.ReviewAfter <= 0 {
		return
	}
	late := now.Sub(p.CloseAt)
	if late < e.cfg.ReviewAfter || !e.markOverdue(p.TradeID) {
		return
	}
	slog.Warn("outcome: market still unresolved, needs manual review",
		"trade", p.TradeID,
		"market_id", p.MarketID,
		"since_close", late.Round(time.Second),
	)
	e.notify(ctx, domain.Event{
		Kind:     domain.EventResolutionOverdue,
		Position: &p,
		Fields:   map[string]any{"since_close": late.Round(time.Second).String()},
	})
}

// handleResolveErr clasifica el error de una transición del ledger.
// Devuelve true si la posición quedó cerrada (aunque no se haya persistido).
func (e *Engine) handleResolveErr(ctx context.Context, loop string, p domain.Position, err error) bool {
	switch {
	case err == nil:
		return true
	case errors.Is(err, domain.ErrUnknownPosition):
		// otro loop la resolvió primero
		slog.Warn(loop+": position already resolved", "trade", p.TradeID)
		return false
	case errors.Is(err, domain.ErrPersistence):
		slog.Error(loop+": ledger not persisted, in-memory state kept", "severity", "critical", "trade", p.TradeID, "err", err)
		e.notify(ctx, domain.Event{Kind: domain.EventError, Message: "ledger persistence failure: " + err.Error()})
		return true
	default:
		slog.Error(loop+": resolve failed", "trade", p.TradeID, "err", err)
		return false
	}
}

// closed hace el bookkeeping común a toda transición terminal.
func (e *Engine) closed(ctx context.Context, p domain.Position, kind domain.EventKind) {
	e.prices.Unpin(p.Asset)
	e.clearOverdue(p.TradeID)
	e.metrics.Close(string(p.Status))
	e.refreshGauges()
	e.notify(ctx, domain.Event{Kind: kind, Position: &p})
}
