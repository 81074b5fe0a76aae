package ports

import (
	"context"

	"github.com/alejandrodnm/polysniper/internal/domain"
)

// MarketData expone las cotizaciones y resoluciones públicas de un venue.
type MarketData interface {
	// Book devuelve el orderbook (top 5 niveles por lado) de un token.
	// Devuelve un error que envuelve domain.ErrInvalidQuote si el book está mal formado.
	Book(ctx context.Context, tokenID string) (domain.OrderBook, error)

	// BestAsk devuelve el menor ask del token. ok=false si no hay asks.
	BestAsk(ctx context.Context, tokenID string) (price float64, ok bool, err error)

	// BestBid devuelve el mayor bid del token. ok=false si no hay bids.
	BestBid(ctx context.Context, tokenID string) (price float64, ok bool, err error)

	// ResolutionOf devuelve YES, NO o pending (domain.OutcomePending).
	ResolutionOf(ctx context.Context, marketID string) (domain.Outcome, error)
}

// Exchange es el venue donde se compran y venden los tokens YES.
type Exchange interface {
	MarketData

	// Buy compra el token por usdcSize USDC a precio límite price.
	Buy(ctx context.Context, tokenID string, price, usdcSize float64) (domain.OrderResult, error)

	// Sell vende shares del token a precio límite price con la urgencia dada.
	Sell(ctx context.Context, tokenID string, price, shares float64, urgency domain.Urgency) (domain.OrderResult, error)

	// Balance devuelve el saldo USDC disponible según el venue.
	Balance(ctx context.Context) (float64, error)
}
