package domain

// Side es el lado de una orden en el CLOB.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Urgency controla cuánto vive una orden en el book.
type Urgency string

const (
	// UrgencyResting: la orden queda en el book hasta llenarse (GTC).
	UrgencyResting Urgency = "GTC"
	// UrgencyFOK: se llena entera al instante o se cancela entera.
	UrgencyFOK Urgency = "FOK"
)

// SellDust es la diferencia en shares que se atribuye a redondeo (2 decimales)
// entre lo registrado y lo que realmente se vende.
const SellDust = 0.01

// Outcome es el resultado de resolución de un mercado binario.
type Outcome string

const (
	OutcomePending Outcome = ""
	OutcomeYes     Outcome = "YES"
	OutcomeNo      Outcome = "NO"
)

// OrderRequest es una orden límite a firmar y enviar.
type OrderRequest struct {
	TokenID string
	Side    Side
	Price   float64
	Shares  float64
	Urgency Urgency
	NegRisk bool
}

// OrderResult es la respuesta del exchange a una orden.
// FilledShares es 0 si el exchange no informa el llenado.
type OrderResult struct {
	OrderID      string
	Status       string
	FilledShares float64
}
