package domain

import "fmt"

// BookDepth es el número de niveles por lado que se conservan del orderbook.
const BookDepth = 5

// OrderBook representa el libro de órdenes de un token.
type OrderBook struct {
	TokenID string
	Bids    []BookEntry // ordenados mayor a menor precio
	Asks    []BookEntry // ordenados menor a mayor precio
}

// BookEntry es un nivel de precio en el orderbook.
type BookEntry struct {
	Price float64
	Size  float64
}

// BestBid devuelve el mejor precio de compra (mayor bid).
// ok=false si no hay bids.
func (ob OrderBook) BestBid() (float64, bool) {
	if len(ob.Bids) == 0 {
		return 0, false
	}
	return ob.Bids[0].Price, true
}

// BestAsk devuelve el mejor precio de venta (menor ask).
// ok=false si no hay asks.
func (ob OrderBook) BestAsk() (float64, bool) {
	if len(ob.Asks) == 0 {
		return 0, false
	}
	return ob.Asks[0].Price, true
}

// Spread devuelve ask - bid. ok=false si falta alguno de los dos lados.
func (ob OrderBook) Spread() (float64, bool) {
	bid, okBid := ob.BestBid()
	ask, okAsk := ob.BestAsk()
	if !okBid || !okAsk {
		return 0, false
	}
	return ask - bid, true
}

// Validate rechaza books con precios fuera de (0, 1] o cruzados.
func (ob OrderBook) Validate() error {
	for _, e := range ob.Bids {
		if e.Price <= 0 || e.Price > 1 {
			return fmt.Errorf("%w: bid %.4f out of range", ErrInvalidQuote, e.Price)
		}
	}
	for _, e := range ob.Asks {
		if e.Price <= 0 || e.Price > 1 {
			return fmt.Errorf("%w: ask %.4f out of range", ErrInvalidQuote, e.Price)
		}
	}
	if spread, ok := ob.Spread(); ok && spread < 0 {
		return fmt.Errorf("%w: crossed book (spread %.4f)", ErrInvalidQuote, spread)
	}
	return nil
}
