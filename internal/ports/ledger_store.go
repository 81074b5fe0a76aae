package ports

import (
	"context"

	"github.com/alejandrodnm/polysniper/internal/domain"
)

// LedgerStore persiste el documento completo del ledger.
type LedgerStore interface {
	// Load devuelve ok=false si todavía no existe ningún documento.
	Load(ctx context.Context) (doc domain.LedgerDocument, ok bool, err error)

	// Save reemplaza el documento completo.
	Save(ctx context.Context, doc domain.LedgerDocument) error
}

// TradeHistory lista los trades más recientes, del más nuevo al más viejo.
type TradeHistory interface {
	Recent(ctx context.Context, limit int) ([]domain.Position, error)
}
