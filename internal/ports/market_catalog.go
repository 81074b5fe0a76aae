package ports

import (
	"context"

	"github.com/alejandrodnm/polysniper/internal/domain"
)

// MarketCatalog descubre los mercados "Up or Down" de corto plazo activos.
type MarketCatalog interface {
	Candidates(ctx context.Context) ([]domain.Candidate, error)
}
