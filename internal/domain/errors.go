package domain

import "errors"

var (
	// ErrUnknownPosition: la posición no existe o ya no está OPEN.
	ErrUnknownPosition = errors.New("unknown position")
	// ErrDuplicateMarket: ya existe una posición para ese mercado.
	ErrDuplicateMarket = errors.New("market already attempted")
	// ErrInvalidQuote: precio >= 1.0 o orderbook mal formado. Se salta el ciclo.
	ErrInvalidQuote = errors.New("invalid quote")
	// ErrPersistence: el ledger no pudo escribirse. El estado en memoria sigue siendo válido.
	ErrPersistence = errors.New("ledger persistence failure")
	// ErrTransient: fallo de red/timeout de un colaborador. Se reintenta en el próximo ciclo.
	ErrTransient = errors.New("transient collaborator error")
)
