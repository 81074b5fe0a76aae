package notify

import (
	"context"
	"log/slog"

	"github.com/alejandrodnm/polysniper/internal/domain"
)

// LogSender escribe los eventos en el log. Se usa cuando Telegram no está configurado.
type LogSender struct{}

// Send loguea el evento en una línea.
func (LogSender) Send(ctx context.Context, ev domain.Event) error {
	level := slog.LevelInfo
	if ev.Kind == domain.EventError || ev.Kind == domain.EventResolutionOverdue {
		level = slog.LevelWarn
	}
	slog.Log(ctx, level, "notify: "+string(ev.Kind), "text", Plain(ev))
	return nil
}

func (LogSender) Name() string { return "log" }
