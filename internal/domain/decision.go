package domain

// Nombres de los checks de entrada, usados como etiqueta en métricas.
const (
	CheckWindow    = "window"
	CheckAttempted = "attempted"
	CheckAsk       = "ask"
	CheckSpread    = "spread"
	CheckTrend     = "trend"
	CheckSpot      = "spot"
)

// Decision es el veredicto del evaluador de entrada para un candidato.
// Reason es solo para logs; nunca se parsea.
type Decision struct {
	Enter  bool
	Check  string
	Reason string
	Ask    float64
	Spot   float64
}

// Skip construye una decisión de rechazo.
func Skip(check, reason string) Decision {
	return Decision{Check: check, Reason: reason}
}
