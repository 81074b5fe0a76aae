package domain

import (
	"fmt"
	"time"
)

// Direction es el sentido del mercado "Up or Down" sobre el que se entra.
type Direction string

const (
	DirectionUp   Direction = "UP"
	DirectionDown Direction = "DOWN"
)

// MarketType es la clase de duración del mercado.
type MarketType string

const (
	MarketType5m  MarketType = "5m"
	MarketType15m MarketType = "15m"
)

// Minutes devuelve la duración nominal del mercado en minutos.
func (t MarketType) Minutes() int {
	switch t {
	case MarketType5m:
		return 5
	case MarketType15m:
		return 15
	}
	return 0
}

// PositionStatus es el estado de la máquina de estados de una posición.
// OPEN es el único estado no terminal.
type PositionStatus string

const (
	StatusOpen    PositionStatus = "OPEN"
	StatusWin     PositionStatus = "WIN"
	StatusLoss    PositionStatus = "LOSS"
	StatusCutloss PositionStatus = "CUTLOSS"
)

// Terminal indica si no hay transición posible desde este estado.
func (s PositionStatus) Terminal() bool {
	return s == StatusWin || s == StatusLoss || s == StatusCutloss
}

// Position es un trade abierto contra un único mercado, seguido desde la
// entrada hasta su estado terminal.
//
// SellPrice, PnL y ResolvedAt son nil mientras Status == OPEN y se fijan
// juntos en la resolución.
type Position struct {
	TradeID        string         `json:"trade_id"`
	MarketID       string         `json:"market_id"`
	OrderID        string         `json:"order_id,omitempty"`
	Asset          string         `json:"asset"`
	Direction      Direction      `json:"direction"`
	MarketType     MarketType     `json:"market_type"`
	Label          string         `json:"label,omitempty"`
	YesTokenID     string         `json:"yes_token_id"`
	NoTokenID      string         `json:"no_token_id,omitempty"`
	EntryPrice     float64        `json:"entry_price"`
	Shares         float64        `json:"shares"`
	Size           float64        `json:"size_usdc"`
	CloseAt        time.Time      `json:"close_at"`
	EntryAt        time.Time      `json:"entry_at"`
	ReferencePrice float64        `json:"reference_price"`
	Status         PositionStatus `json:"status"`
	SellPrice      *float64       `json:"sell_price,omitempty"`
	PnL            *float64       `json:"pnl,omitempty"`
	ResolvedAt     *time.Time     `json:"resolved_at,omitempty"`
	CutlossReason  string         `json:"cutloss_reason,omitempty"`
}

// IsOpen indica si la posición sigue abierta.
func (p Position) IsOpen() bool {
	return p.Status == StatusOpen
}

// RealizedPnL devuelve el PnL realizado, o 0 si la posición sigue abierta.
func (p Position) RealizedPnL() float64 {
	if p.PnL == nil {
		return 0
	}
	return *p.PnL
}

// PastClose indica si el mercado de la posición ya cerró.
func (p Position) PastClose(now time.Time) bool {
	return !now.Before(p.CloseAt)
}

// OpenParams son los datos de entrada para abrir una posición en el ledger.
type OpenParams struct {
	MarketID       string
	OrderID        string
	Asset          string
	Direction      Direction
	MarketType     MarketType
	Label          string
	YesTokenID     string
	NoTokenID      string
	EntryPrice     float64
	Shares         float64
	Size           float64
	CloseAt        time.Time
	EntryAt        time.Time
	ReferencePrice float64
}

// Validate comprueba que los datos de entrada son coherentes.
func (p OpenParams) Validate() error {
	switch {
	case p.MarketID == "":
		return fmt.Errorf("open params: empty market id")
	case p.EntryPrice <= 0 || p.EntryPrice > 1:
		return fmt.Errorf("open params: entry price %.4f outside (0, 1]", p.EntryPrice)
	case p.Shares <= 0:
		return fmt.Errorf("open params: non-positive shares %.4f", p.Shares)
	case p.Size <= 0:
		return fmt.Errorf("open params: non-positive size %.4f", p.Size)
	}
	return nil
}
