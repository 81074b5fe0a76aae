package polymarket

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/alejandrodnm/polysniper/internal/domain"
)

const (
	gammaMarketsPath = "/markets"
	gammaPageLimit   = 200
)

// activeMarkets devuelve los mercados activos de Gamma ordenados por cierre ascendente.
func (c *Client) activeMarkets(ctx context.Context) ([]gammaMarket, error) {
	q := url.Values{}
	q.Set("active", "true")
	q.Set("closed", "false")
	q.Set("archived", "false")
	q.Set("limit", fmt.Sprint(gammaPageLimit))
	q.Set("_order", "endDate")
	q.Set("_asc", "true")

	var resp []gammaMarket
	if err := c.get(ctx, c.gammaLimiter, c.gammaBase+gammaMarketsPath+"?"+q.Encode(), &resp); err != nil {
		return nil, fmt.Errorf("gamma.activeMarkets: %w", err)
	}
	slog.Debug("polymarket: gamma markets fetched", "count", len(resp))
	return resp, nil
}

// ResolutionOf consulta Gamma por el condition id y devuelve el lado ganador.
// Un mercado ausente de la respuesta, no cerrado, o cerrado sin token a
// >= 0.99, es pendiente.
func (c *Client) ResolutionOf(ctx context.Context, conditionID string) (domain.Outcome, error) {
	u := fmt.Sprintf("%s%s?condition_ids=%s", c.gammaBase, gammaMarketsPath, url.QueryEscape(conditionID))

	var resp []gammaMarket
	if err := c.get(ctx, c.gammaLimiter, u, &resp); err != nil {
		return domain.OutcomePending, fmt.Errorf("gamma.ResolutionOf %s: %w", conditionID, err)
	}
	// si Gamma ignora el filtro, una fila de otro mercado no decide nada
	for _, gm := range resp {
		if gm.ConditionID == conditionID {
			return outcomeOf(gm), nil
		}
	}
	return domain.OutcomePending, nil
}
