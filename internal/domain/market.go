package domain

import (
	"fmt"
	"time"
)

// Candidate es la vista de solo lectura de un mercado "Up or Down" descubierto
// por el catálogo. Su ciclo de vida es externo: se lee una vez por scan.
type Candidate struct {
	MarketID   string
	Question   string
	Slug       string
	Asset      string
	Direction  Direction
	MarketType MarketType
	CloseAt    time.Time
	YesTokenID string
	NoTokenID  string
}

// TimeToClose devuelve el tiempo restante hasta el cierre (negativo si ya cerró).
func (c Candidate) TimeToClose(now time.Time) time.Duration {
	return c.CloseAt.Sub(now)
}

// Expired indica si el mercado ya cerró.
func (c Candidate) Expired(now time.Time) bool {
	return !now.Before(c.CloseAt)
}

// Label devuelve el nombre corto del mercado, p.ej. "BTC Up or Down - 5 Minutes".
func (c Candidate) Label() string {
	return fmt.Sprintf("%s Up or Down - %d Minutes", c.Asset, c.MarketType.Minutes())
}
