package domain

// LedgerDocument es el estado persistido del ledger, reescrito completo en
// cada mutación.
type LedgerDocument struct {
	Balance   float64    `json:"balance"`
	Counter   int        `json:"counter"`
	Positions []Position `json:"positions"`
}
