package ports

// PriceSource es el feed de precio spot de referencia por asset (BTC, ETH, SOL).
// Todas las lecturas son locales y no bloquean.
type PriceSource interface {
	// Latest devuelve el último precio conocido. ok=false durante el warm-up.
	Latest(asset string) (price float64, ok bool)

	// Pin fija el precio de referencia del asset (una vez por posición abierta).
	Pin(asset string)

	// Unpin libera la referencia fijada por Pin.
	Unpin(asset string)

	// ChangeSincePinned devuelve (latest - pinned) / pinned.
	ChangeSincePinned(asset string) (pct float64, ok bool)

	// Trend1m devuelve el cambio porcentual del último minuto.
	Trend1m(asset string) (pct float64, ok bool)
}
