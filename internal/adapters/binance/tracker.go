package binance

import (
	"strings"
	"sync"
	"time"
)

const (
	// historySize es la capacidad del ring de ticks por asset.
	historySize = 120
	// minTrendTicks es el mínimo de ticks para calcular la tendencia de 1 minuto.
	minTrendTicks = 10
	trendWindow   = time.Minute
)

type tick struct {
	at    time.Time
	price float64
}

// series guarda el histórico reciente y la referencia fijada de un asset.
type series struct {
	ring   [historySize]tick
	next   int // posición del próximo write
	n      int // ticks válidos en el ring
	pinned float64
	pins   int
}

func (s *series) push(t tick) {
	s.ring[s.next] = t
	s.next = (s.next + 1) % historySize
	if s.n < historySize {
		s.n++
	}
}

// at devuelve el i-ésimo tick desde el más antiguo (0 ≤ i < n).
func (s *series) at(i int) tick {
	start := (s.next - s.n + historySize) % historySize
	return s.ring[(start+i)%historySize]
}

func (s *series) latest() (tick, bool) {
	if s.n == 0 {
		return tick{}, false
	}
	return s.at(s.n - 1), true
}

// Tracker implementa ports.PriceSource sobre los ticks del feed.
// Es seguro para uso concurrente: el feed escribe y los loops leen.
type Tracker struct {
	mu     sync.RWMutex
	assets map[string]*series
	now    func() time.Time
}

// TrackerOption configura un Tracker.
type TrackerOption func(*Tracker)

// WithTrackerClock reemplaza el reloj (tests).
func WithTrackerClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) { t.now = now }
}

// NewTracker crea un tracker vacío.
func NewTracker(opts ...TrackerOption) *Tracker {
	t := &Tracker{assets: make(map[string]*series), now: time.Now}
	for _, o := range opts {
		o(t)
	}
	return t
}

func (t *Tracker) seriesFor(asset string) *series {
	key := strings.ToUpper(asset)
	s, ok := t.assets[key]
	if !ok {
		s = &series{}
		t.assets[key] = s
	}
	return s
}

// Record añade un tick. Los precios no positivos se ignoran.
func (t *Tracker) Record(asset string, price float64) {
	if price <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.seriesFor(asset)
	s.push(tick{at: t.now(), price: price})
	// un Pin hecho antes del primer tick toma este precio como referencia
	if s.pins > 0 && s.pinned == 0 {
		s.pinned = price
	}
}

// Latest devuelve el último precio del asset.
func (t *Tracker) Latest(asset string) (float64, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.assets[strings.ToUpper(asset)]
	if !ok {
		return 0, false
	}
	last, ok := s.latest()
	return last.price, ok
}

// Pin fija el precio actual como referencia. Las llamadas se cuentan: la
// referencia se fija en el primer Pin y se libera con el último Unpin.
func (t *Tracker) Pin(asset string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.seriesFor(asset)
	if s.pins == 0 {
		s.pinned = 0
		if last, ok := s.latest(); ok {
			s.pinned = last.price
		}
	}
	s.pins++
}

// Unpin libera una referencia de Pin.
func (t *Tracker) Unpin(asset string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.assets[strings.ToUpper(asset)]
	if !ok || s.pins == 0 {
		return
	}
	s.pins--
	if s.pins == 0 {
		s.pinned = 0
	}
}

// Pins devuelve cuántas referencias activas tiene el asset.
func (t *Tracker) Pins(asset string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if s, ok := t.assets[strings.ToUpper(asset)]; ok {
		return s.pins
	}
	return 0
}

// ChangeSincePinned devuelve (latest - pinned) / pinned.
func (t *Tracker) ChangeSincePinned(asset string) (float64, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.assets[strings.ToUpper(asset)]
	if !ok || s.pins == 0 || s.pinned <= 0 {
		return 0, false
	}
	last, ok := s.latest()
	if !ok {
		return 0, false
	}
	return (last.price - s.pinned) / s.pinned, true
}

// Trend1m devuelve el cambio del último minuto. La base es el tick más
// reciente anterior a now-60s o, si el ring no llega tan atrás, el más antiguo.
// Requiere al menos minTrendTicks ticks.
func (t *Tracker) Trend1m(asset string) (float64, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.assets[strings.ToUpper(asset)]
	if !ok || s.n < minTrendTicks {
		return 0, false
	}

	cutoff := t.now().Add(-trendWindow)
	base := s.at(0)
	for i := 0; i < s.n; i++ {
		tk := s.at(i)
		if tk.at.After(cutoff) {
			break
		}
		base = tk
	}

	last, _ := s.latest()
	if base.price <= 0 {
		return 0, false
	}
	return (last.price - base.price) / base.price, true
}
