package polymarket

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/polysniper/internal/domain"
)

// Catalog implementa ports.MarketCatalog sobre Gamma: filtra los mercados
// activos a los Up/Down de los assets y tipos configurados.
type Catalog struct {
	client *Client
	assets []string
	types  []domain.MarketType
	now    func() time.Time
}

// NewCatalog crea un catálogo para los assets y tipos de mercado dados.
func NewCatalog(client *Client, assets []string, types []domain.MarketType) *Catalog {
	return &Catalog{client: client, assets: assets, types: types, now: time.Now}
}

// Candidates devuelve los mercados candidatos con cierre en el futuro,
// deduplicados por condition id y con token YES conocido.
func (c *Catalog) Candidates(ctx context.Context) ([]domain.Candidate, error) {
	raw, err := c.client.activeMarkets(ctx)
	if err != nil {
		return nil, fmt.Errorf("catalog.Candidates: %w", err)
	}

	now := c.now()
	seen := make(map[string]bool, len(raw))
	out := make([]domain.Candidate, 0)
	for _, gm := range raw {
		cand, ok := classify(gm, c.assets, c.types, now)
		if !ok || seen[cand.MarketID] || cand.YesTokenID == "" {
			continue
		}
		seen[cand.MarketID] = true
		out = append(out, cand)
	}

	slog.Debug("polymarket: candidates classified", "markets", len(raw), "candidates", len(out))
	return out, nil
}
