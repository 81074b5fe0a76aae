package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alejandrodnm/polysniper/internal/domain"
)

// Report emite el resumen agregado del ledger. Solo lectura.
func (e *Engine) Report(ctx context.Context) error {
	stats := e.ledger.Stats()
	watched := e.Watched()

	e.metrics.SetLedger(stats.Balance, stats.Open)
	slog.Info("report: status",
		"trades", stats.Total,
		"open", stats.Open,
		"wins", stats.Wins,
		"losses", stats.Losses,
		"cutlosses", stats.Cutlosses,
		"win_rate", fmt.Sprintf("%.1f%%", stats.WinRate*100),
		"pnl", money(stats.TotalPnL),
		"balance", money(stats.Balance),
		"watched", watched,
	)
	e.notify(ctx, domain.Event{
		Kind:   domain.EventStatus,
		Stats:  &stats,
		Fields: map[string]any{"watched": watched},
	})
	return nil
}
