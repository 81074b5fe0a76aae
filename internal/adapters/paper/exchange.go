// Package paper simula ejecución de órdenes sobre datos de mercado reales:
// books y resoluciones vienen del venue, los fills son instantáneos al precio pedido.
package paper

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/google/uuid"

	"github.com/alejandrodnm/polysniper/internal/domain"
	"github.com/alejandrodnm/polysniper/internal/ports"
)

// Exchange implementa ports.Exchange sin enviar órdenes.
type Exchange struct {
	ports.MarketData

	mu   sync.Mutex
	cash float64
}

// NewExchange crea un exchange paper sobre data con un saldo inicial simulado.
func NewExchange(data ports.MarketData, initialBalance float64) *Exchange {
	return &Exchange{MarketData: data, cash: initialBalance}
}

// Buy llena al instante shares = floor(usdcSize/price, 2 decimales) al precio pedido.
func (e *Exchange) Buy(_ context.Context, tokenID string, price, usdcSize float64) (domain.OrderResult, error) {
	if price <= 0 || price >= 1 {
		return domain.OrderResult{}, fmt.Errorf("paper.Buy: %w: price %.4f", domain.ErrInvalidQuote, price)
	}
	shares := math.Floor(usdcSize/price*100) / 100
	if shares <= 0 {
		return domain.OrderResult{}, fmt.Errorf("paper.Buy: size %.2f too small at price %.4f", usdcSize, price)
	}

	// el saldo operativo lo lleva el ledger; aquí solo se sigue el flujo de caja
	e.mu.Lock()
	e.cash -= shares * price
	e.mu.Unlock()

	id := "paper-" + uuid.NewString()
	slog.Debug("paper: buy filled", "order_id", id, "token", tokenID, "price", price, "shares", shares)
	return domain.OrderResult{OrderID: id, Status: "matched", FilledShares: shares}, nil
}

// Sell llena al instante todas las shares al precio pedido.
func (e *Exchange) Sell(_ context.Context, tokenID string, price, shares float64, urgency domain.Urgency) (domain.OrderResult, error) {
	if price < 0 || price > 1 {
		return domain.OrderResult{}, fmt.Errorf("paper.Sell: %w: price %.4f", domain.ErrInvalidQuote, price)
	}
	if shares <= 0 {
		return domain.OrderResult{}, fmt.Errorf("paper.Sell: no shares")
	}

	e.mu.Lock()
	e.cash += shares * price
	e.mu.Unlock()

	id := "paper-" + uuid.NewString()
	slog.Debug("paper: sell filled", "order_id", id, "token", tokenID, "price", price, "shares", shares, "urgency", urgency)
	return domain.OrderResult{OrderID: id, Status: "matched", FilledShares: shares}, nil
}

// Balance devuelve el efectivo simulado (saldo inicial menos compras más ventas).
func (e *Exchange) Balance(_ context.Context) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cash, nil
}
