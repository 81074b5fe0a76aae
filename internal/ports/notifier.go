package ports

import (
	"context"

	"github.com/alejandrodnm/polysniper/internal/domain"
)

// Notifier envía eventos al operador. Es fire-and-forget: nunca bloquea al
// loop que llama y los fallos solo se loguean.
type Notifier interface {
	Notify(ctx context.Context, event domain.Event)
}
