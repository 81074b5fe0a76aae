package polymarket

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/alejandrodnm/polysniper/internal/domain"
)

// Exchange implementa ports.Exchange contra el CLOB real: quotes y
// resoluciones vía Client, órdenes firmadas vía TradingClient.
type Exchange struct {
	*Client
	trading *TradingClient

	mu      sync.Mutex
	negRisk map[string]bool
}

// NewExchange crea el exchange live.
func NewExchange(client *Client, trading *TradingClient) *Exchange {
	return &Exchange{Client: client, trading: trading, negRisk: make(map[string]bool)}
}

// Buy compra shares del token a price por usdcSize dólares (orden GTC).
// shares = floor(usdcSize/price, 2 decimales).
func (e *Exchange) Buy(ctx context.Context, tokenID string, price, usdcSize float64) (domain.OrderResult, error) {
	if price <= 0 || price >= 1 {
		return domain.OrderResult{}, fmt.Errorf("exchange.Buy: %w: price %.4f", domain.ErrInvalidQuote, price)
	}
	shares := math.Floor(usdcSize/price*100) / 100

	negRisk, err := e.isNegRisk(ctx, tokenID)
	if err != nil {
		return domain.OrderResult{}, fmt.Errorf("exchange.Buy: %w", err)
	}

	res, err := e.trading.PlaceOrder(ctx, domain.OrderRequest{
		TokenID: tokenID,
		Side:    domain.SideBuy,
		Price:   price,
		Shares:  shares,
		Urgency: domain.UrgencyResting,
		NegRisk: negRisk,
	})
	if err != nil {
		return domain.OrderResult{}, fmt.Errorf("exchange.Buy: %w", err)
	}
	slog.Debug("polymarket: buy placed", "order_id", res.OrderID, "status", res.Status, "shares", shares, "filled", res.FilledShares)
	return res, nil
}

// Sell vende shares del token a price. Con RPC configurado, las shares se
// ajustan al saldo on-chain solo si la diferencia es redondeo (SellDust);
// un saldo claramente menor es un error y no se envía orden.
func (e *Exchange) Sell(ctx context.Context, tokenID string, price, shares float64, urgency domain.Urgency) (domain.OrderResult, error) {
	if e.trading.RPC() != nil {
		held, err := e.trading.TokenBalance(ctx, tokenID)
		switch {
		case err != nil:
			slog.Warn("polymarket: token balance unavailable, selling recorded shares", "token", tokenID, "err", err)
		case held < shares-domain.SellDust:
			return domain.OrderResult{}, fmt.Errorf("exchange.Sell: on-chain balance %.4f below %.2f shares", held, shares)
		case held < shares:
			shares = math.Floor(held*100) / 100
		}
	}

	negRisk, err := e.isNegRisk(ctx, tokenID)
	if err != nil {
		return domain.OrderResult{}, fmt.Errorf("exchange.Sell: %w", err)
	}

	res, err := e.trading.PlaceOrder(ctx, domain.OrderRequest{
		TokenID: tokenID,
		Side:    domain.SideSell,
		Price:   price,
		Shares:  shares,
		Urgency: urgency,
		NegRisk: negRisk,
	})
	if err != nil {
		return domain.OrderResult{}, fmt.Errorf("exchange.Sell: %w", err)
	}
	slog.Debug("polymarket: sell placed", "order_id", res.OrderID, "status", res.Status, "shares", shares)
	return res, nil
}

// Balance devuelve el saldo USDC.e on-chain.
func (e *Exchange) Balance(ctx context.Context) (float64, error) {
	return e.trading.USDCBalance(ctx)
}

// isNegRisk consulta (y cachea) si el token usa el NegRisk exchange.
func (e *Exchange) isNegRisk(ctx context.Context, tokenID string) (bool, error) {
	e.mu.Lock()
	v, ok := e.negRisk[tokenID]
	e.mu.Unlock()
	if ok {
		return v, nil
	}

	v, err := e.Client.IsNegRisk(ctx, tokenID)
	if err != nil {
		return false, err
	}
	e.mu.Lock()
	e.negRisk[tokenID] = v
	e.mu.Unlock()
	return v, nil
}
