package domain

// Stats es el resumen agregado del ledger.
type Stats struct {
	Total     int
	Open      int
	Wins      int
	Losses    int // LOSS + CUTLOSS
	Cutlosses int
	WinRate   float64
	TotalPnL  float64
	Balance   float64
}

// Closed devuelve el número de posiciones en estado terminal.
func (s Stats) Closed() int {
	return s.Wins + s.Losses
}
