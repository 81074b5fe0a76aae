// Package ledger es la fuente de verdad del saldo y de todas las posiciones.
//
// Cada mutación es una transición atómica que incluye la persistencia del
// documento completo: cuando Open o Resolve* devuelven, el estado ya está en
// disco (o el error envuelve domain.ErrPersistence y el estado en memoria
// sigue siendo el autoritativo).
package ledger

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/alejandrodnm/polysniper/internal/domain"
	"github.com/alejandrodnm/polysniper/internal/ports"
)

// Ledger guarda las posiciones por trade ID y el saldo. Es seguro para uso concurrente.
type Ledger struct {
	mu        sync.Mutex
	store     ports.LedgerStore
	balance   float64
	counter   int
	positions map[string]*domain.Position
	byMarket  map[string]string // marketID → tradeID
	now       func() time.Time
}

// Option configura un Ledger.
type Option func(*Ledger)

// WithClock reemplaza el reloj (tests).
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// Load reconstruye el ledger desde el store. Si no hay documento persistido,
// arranca vacío con initialBalance (p.ej. el saldo on-chain).
func Load(ctx context.Context, store ports.LedgerStore, initialBalance float64, opts ...Option) (*Ledger, error) {
	l := &Ledger{
		store:     store,
		positions: make(map[string]*domain.Position),
		byMarket:  make(map[string]string),
		now:       time.Now,
	}
	for _, o := range opts {
		o(l)
	}

	doc, ok, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("ledger.Load: %w", err)
	}
	if !ok {
		l.balance = initialBalance
		return l, nil
	}

	l.balance = doc.Balance
	l.counter = doc.Counter
	for i := range doc.Positions {
		p := doc.Positions[i]
		if p.TradeID == "" {
			return nil, fmt.Errorf("ledger.Load: position %d without trade id", i)
		}
		l.positions[p.TradeID] = &p
		l.byMarket[p.MarketID] = p.TradeID
		// el contador nunca retrocede respecto a los IDs ya emitidos
		if n := tradeNumber(p.TradeID); n > l.counter {
			l.counter = n
		}
	}
	return l, nil
}

// Open registra una posición nueva en estado OPEN y descuenta Size del saldo.
//
// Si el guardado falla, la posición ya existe en memoria y se devuelve junto
// con un error que envuelve domain.ErrPersistence.
func (l *Ledger) Open(ctx context.Context, params domain.OpenParams) (domain.Position, error) {
	if err := params.Validate(); err != nil {
		return domain.Position{}, fmt.Errorf("ledger.Open: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if id, exists := l.byMarket[params.MarketID]; exists {
		return domain.Position{}, fmt.Errorf("ledger.Open: market %s (trade %s): %w", params.MarketID, id, domain.ErrDuplicateMarket)
	}

	entryAt := params.EntryAt
	if entryAt.IsZero() {
		entryAt = l.now().UTC()
	}

	l.counter++
	p := &domain.Position{
		TradeID:        formatTradeID(l.counter),
		MarketID:       params.MarketID,
		OrderID:        params.OrderID,
		Asset:          params.Asset,
		Direction:      params.Direction,
		MarketType:     params.MarketType,
		Label:          params.Label,
		YesTokenID:     params.YesTokenID,
		NoTokenID:      params.NoTokenID,
		EntryPrice:     params.EntryPrice,
		Shares:         params.Shares,
		Size:           params.Size,
		CloseAt:        params.CloseAt,
		EntryAt:        entryAt,
		ReferencePrice: params.ReferencePrice,
		Status:         domain.StatusOpen,
	}
	l.positions[p.TradeID] = p
	l.byMarket[p.MarketID] = p.TradeID
	l.balance -= p.Size

	if err := l.persist(ctx); err != nil {
		return *p, fmt.Errorf("ledger.Open %s: %w", p.TradeID, err)
	}
	return *p, nil
}

// ResolveWin cierra la posición como WIN: cada share paga 1.0 USDC.
func (l *Ledger) ResolveWin(ctx context.Context, tradeID string) (domain.Position, error) {
	return l.resolve(ctx, tradeID, domain.StatusWin, 1.0, 0, "")
}

// ResolveLoss cierra la posición como LOSS: el payout es 0.
func (l *Ledger) ResolveLoss(ctx context.Context, tradeID string) (domain.Position, error) {
	return l.resolve(ctx, tradeID, domain.StatusLoss, 0, 0, "")
}

// ResolveCutloss cierra la posición como CUTLOSS: se acreditan soldShares a
// sellPrice. soldShares <= 0 significa que el exchange no informó el llenado
// y se asume la posición entera.
func (l *Ledger) ResolveCutloss(ctx context.Context, tradeID string, sellPrice, soldShares float64, reason string) (domain.Position, error) {
	if sellPrice < 0 || sellPrice > 1 {
		return domain.Position{}, fmt.Errorf("ledger.ResolveCutloss %s: sell price %.4f outside [0, 1]", tradeID, sellPrice)
	}
	return l.resolve(ctx, tradeID, domain.StatusCutloss, sellPrice, soldShares, reason)
}

// resolve aplica la transición OPEN → status. Falla con domain.ErrUnknownPosition
// si el trade no existe o ya es terminal, lo que también resuelve la carrera
// entre el loop de monitor y el de outcomes: solo el primero gana.
func (l *Ledger) resolve(ctx context.Context, tradeID string, status domain.PositionStatus, sellPrice, soldShares float64, reason string) (domain.Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.positions[tradeID]
	if !ok || p.Status != domain.StatusOpen {
		return domain.Position{}, fmt.Errorf("ledger.resolve %s → %s: %w", tradeID, status, domain.ErrUnknownPosition)
	}

	if soldShares <= 0 || soldShares > p.Shares {
		soldShares = p.Shares
	}
	payout := soldShares * sellPrice
	pnl := payout - p.Size
	resolvedAt := l.now().UTC()

	p.Status = status
	p.SellPrice = &sellPrice
	p.PnL = &pnl
	p.ResolvedAt = &resolvedAt
	p.CutlossReason = reason
	l.balance += payout

	if err := l.persist(ctx); err != nil {
		return *p, fmt.Errorf("ledger.resolve %s: %w", tradeID, err)
	}
	return *p, nil
}

// SetBalance sobreescribe el saldo (sincronización con el saldo on-chain al arrancar).
func (l *Ledger) SetBalance(ctx context.Context, balance float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.balance = balance
	if err := l.persist(ctx); err != nil {
		return fmt.Errorf("ledger.SetBalance: %w", err)
	}
	return nil
}

// AlreadyAttempted indica si existe alguna posición (abierta o terminal) para el mercado.
func (l *Ledger) AlreadyAttempted(marketID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.byMarket[marketID]
	return ok
}

// Get devuelve una copia de la posición.
func (l *Ledger) Get(tradeID string) (domain.Position, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.positions[tradeID]
	if !ok {
		return domain.Position{}, false
	}
	return *p, true
}

// Balance devuelve el saldo actual.
func (l *Ledger) Balance() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance
}

// OpenPositions devuelve copias de las posiciones OPEN ordenadas por trade ID.
func (l *Ledger) OpenPositions() []domain.Position {
	l.mu.Lock()
	defer l.mu.Unlock()

	var open []domain.Position
	for _, p := range l.positions {
		if p.Status == domain.StatusOpen {
			open = append(open, *p)
		}
	}
	sortByTradeID(open)
	return open
}

// Positions devuelve copias de todas las posiciones ordenadas por trade ID.
func (l *Ledger) Positions() []domain.Position {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshotLocked()
}

// Stats calcula el resumen agregado.
func (l *Ledger) Stats() domain.Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := domain.Stats{Total: len(l.positions), Balance: l.balance}
	for _, p := range l.positions {
		switch p.Status {
		case domain.StatusOpen:
			s.Open++
		case domain.StatusWin:
			s.Wins++
		case domain.StatusLoss:
			s.Losses++
		case domain.StatusCutloss:
			s.Losses++
			s.Cutlosses++
		}
		s.TotalPnL += p.RealizedPnL()
	}
	if closed := s.Closed(); closed > 0 {
		s.WinRate = float64(s.Wins) / float64(closed)
	}
	return s
}

// persist guarda el documento completo. Se llama con l.mu tomado.
func (l *Ledger) persist(ctx context.Context) error {
	doc := domain.LedgerDocument{
		Balance:   l.balance,
		Counter:   l.counter,
		Positions: l.snapshotLocked(),
	}
	if err := l.store.Save(ctx, doc); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	return nil
}

func (l *Ledger) snapshotLocked() []domain.Position {
	out := make([]domain.Position, 0, len(l.positions))
	for _, p := range l.positions {
		out = append(out, *p)
	}
	sortByTradeID(out)
	return out
}

func sortByTradeID(ps []domain.Position) {
	sort.Slice(ps, func(i, j int) bool {
		ni, nj := tradeNumber(ps[i].TradeID), tradeNumber(ps[j].TradeID)
		if ni != nj {
			return ni < nj
		}
		return ps[i].TradeID < ps[j].TradeID
	})
}

func formatTradeID(n int) string {
	return fmt.Sprintf("T%04d", n)
}

// tradeNumber extrae el número de un ID "T0042". Devuelve 0 si no tiene ese formato.
func tradeNumber(id string) int {
	n, err := strconv.Atoi(strings.TrimPrefix(id, "T"))
	if err != nil {
		return 0
	}
	return n
}
