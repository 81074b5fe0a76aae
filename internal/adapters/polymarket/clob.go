package polymarket

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/alejandrodnm/polysniper/internal/domain"
)

const (
	bookPath    = "/book"
	negRiskPath = "/neg-risk"
)

// Book obtiene el orderbook de un token (top domain.BookDepth niveles por lado).
// Un book mal formado devuelve domain.ErrInvalidQuote.
func (c *Client) Book(ctx context.Context, tokenID string) (domain.OrderBook, error) {
	u := fmt.Sprintf("%s%s?token_id=%s", c.clobBase, bookPath, url.QueryEscape(tokenID))

	var resp bookResponse
	if err := c.get(ctx, c.bookLimiter, u, &resp); err != nil {
		if errors.Is(err, errDecode) {
			return domain.OrderBook{}, fmt.Errorf("clob.Book %s: %w: %v", tokenID, domain.ErrInvalidQuote, err)
		}
		return domain.OrderBook{}, fmt.Errorf("clob.Book %s: %w", tokenID, err)
	}

	ob, err := mapBook(tokenID, resp)
	if err != nil {
		return domain.OrderBook{}, fmt.Errorf("clob.Book %s: %w", tokenID, err)
	}
	return ob, nil
}

// BestAsk devuelve el mejor ask del token. ok=false si el lado está vacío.
func (c *Client) BestAsk(ctx context.Context, tokenID string) (float64, bool, error) {
	ob, err := c.Book(ctx, tokenID)
	if err != nil {
		return 0, false, err
	}
	ask, ok := ob.BestAsk()
	return ask, ok, nil
}

// BestBid devuelve el mejor bid del token. ok=false si el lado está vacío.
func (c *Client) BestBid(ctx context.Context, tokenID string) (float64, bool, error) {
	ob, err := c.Book(ctx, tokenID)
	if err != nil {
		return 0, false, err
	}
	bid, ok := ob.BestBid()
	return bid, ok, nil
}

// IsNegRisk consulta si el token opera contra el NegRisk exchange.
func (c *Client) IsNegRisk(ctx context.Context, tokenID string) (bool, error) {
	u := fmt.Sprintf("%s%s?token_id=%s", c.clobBase, negRiskPath, url.QueryEscape(tokenID))

	var resp negRiskResponse
	if err := c.get(ctx, c.clobLimiter, u, &resp); err != nil {
		return false, fmt.Errorf("clob.IsNegRisk: %w", err)
	}
	return resp.NegRisk, nil
}
