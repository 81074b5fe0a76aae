package engine_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/alejandrodnm/polysniper/internal/domain"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

var errNetwork = errors.New("dial tcp: i/o timeout")

// clock es un reloj manual compartido por ledger, engine y tests.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock { return &clock{now: t0} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type buyCall struct {
	TokenID string
	Price   float64
	Size    float64
}

type sellCall struct {
	TokenID string
	Price   float64
	Shares  float64
	Urgency domain.Urgency
}

type fakeExchange struct {
	mu       sync.Mutex
	books    map[string]domain.OrderBook
	bookErr  error
	outcomes map[string]domain.Outcome
	filled   float64
	buyErr   error
	sellErr  error
	sold     float64
	buys     []buyCall
	sells    []sellCall
	resolves int
}

func newFakeExchange() *fakeExchange {
	return &fakeExchange{
		books:    make(map[string]domain.OrderBook),
		outcomes: make(map[string]domain.Outcome),
	}
}

func (f *fakeExchange) setBook(tokenID string, bid, ask float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ob := domain.OrderBook{TokenID: tokenID}
	if bid > 0 {
		ob.Bids = []domain.BookEntry{{Price: bid, Size: 100}}
	}
	if ask > 0 {
		ob.Asks = []domain.BookEntry{{Price: ask, Size: 100}}
	}
	f.books[tokenID] = ob
}

func (f *fakeExchange) setOutcome(marketID string, o domain.Outcome) {
	f.mu.Lock()
	f.outcomes[marketID] = o
	f.mu.Unlock()
}

func (f *fakeExchange) Book(_ context.Context, tokenID string) (domain.OrderBook, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.bookErr != nil {
		return domain.OrderBook{}, f.bookErr
	}
	return f.books[tokenID], nil
}

func (f *fakeExchange) BestAsk(ctx context.Context, tokenID string) (float64, bool, error) {
	ob, err := f.Book(ctx, tokenID)
	if err != nil {
		return 0, false, err
	}
	p, ok := ob.BestAsk()
	return p, ok, nil
}

func (f *fakeExchange) BestBid(ctx context.Context, tokenID string) (float64, bool, error) {
	ob, err := f.Book(ctx, tokenID)
	if err != nil {
		return 0, false, err
	}
	p, ok := ob.BestBid()
	return p, ok, nil
}

func (f *fakeExchange) ResolutionOf(_ context.Context, marketID string) (domain.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolves++
	return f.outcomes[marketID], nil
}

func (f *fakeExchange) Buy(_ context.Context, tokenID string, price, size float64) (domain.OrderResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.buyErr != nil {
		return domain.OrderResult{}, f.buyErr
	}
	f.buys = append(f.buys, buyCall{TokenID: tokenID, Price: price, Size: size})
	return domain.OrderResult{OrderID: "order-buy", FilledShares: f.filled}, nil
}

func (f *fakeExchange) Sell(_ context.Context, tokenID string, price, shares float64, urgency domain.Urgency) (domain.OrderResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sellErr != nil {
		return domain.OrderResult{}, f.sellErr
	}
	f.sells = append(f.sells, sellCall{TokenID: tokenID, Price: price, Shares: shares, Urgency: urgency})
	return domain.OrderResult{OrderID: "order-sell", FilledShares: f.sold}, nil
}

func (f *fakeExchange) Balance(_ context.Context) (float64, error) {
	return 100, nil
}

func (f *fakeExchange) sellCalls() []sellCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sellCall(nil), f.sells...)
}

// fakePrices implementa ports.PriceSource con valores fijos.
type fakePrices struct {
	mu     sync.Mutex
	latest map[string]float64
	trend  map[string]float64
	pinned map[string]float64
	pins   map[string]int
}

func newFakePrices() *fakePrices {
	return &fakePrices{
		latest: make(map[string]float64),
		trend:  make(map[string]float64),
		pinned: make(map[string]float64),
		pins:   make(map[string]int),
	}
}

func (p *fakePrices) set(asset string, price float64) {
	p.mu.Lock()
	p.latest[asset] = price
	p.mu.Unlock()
}

func (p *fakePrices) setTrend(asset string, pct float64) {
	p.mu.Lock()
	p.trend[asset] = pct
	p.mu.Unlock()
}

func (p *fakePrices) Latest(asset string) (float64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.latest[asset]
	return v, ok
}

func (p *fakePrices) Pin(asset string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pins[asset] == 0 {
		p.pinned[asset] = p.latest[asset]
	}
	p.pins[asset]++
}

func (p *fakePrices) Unpin(asset string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pins[asset] > 0 {
		p.pins[asset]--
	}
}

func (p *fakePrices) ChangeSincePinned(asset string) (float64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ref, ok := p.pinned[asset]
	if !ok || ref == 0 || p.pins[asset] == 0 {
		return 0, false
	}
	return (p.latest[asset] - ref) / ref, true
}

func (p *fakePrices) Trend1m(asset string) (float64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.trend[asset]
	return v, ok
}

func (p *fakePrices) pinCount(asset string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pins[asset]
}

type fakeCatalog struct {
	mu         sync.Mutex
	candidates []domain.Candidate
	err        error
	panics     bool
	calls      int
}

func (c *fakeCatalog) Candidates(_ context.Context) ([]domain.Candidate, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.panics {
		panic("catalog exploded")
	}
	return c.candidates, c.err
}

func (c *fakeCatalog) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []domain.Event
}

func (n *fakeNotifier) Notify(_ context.Context, ev domain.Event) {
	n.mu.Lock()
	n.events = append(n.events, ev)
	n.mu.Unlock()
}

func (n *fakeNotifier) kinds() []domain.EventKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]domain.EventKind, 0, len(n.events))
	for _, e := range n.events {
		out = append(out, e.Kind)
	}
	return out
}

// memStore es un LedgerStore en memoria.
type memStore struct {
	mu  sync.Mutex
	doc domain.LedgerDocument
	has bool
}

func (m *memStore) Load(_ context.Context) (domain.LedgerDocument, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.doc, m.has, nil
}

func (m *memStore) Save(_ context.Context, doc domain.LedgerDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.doc, m.has = doc, true
	return nil
}

// attempts implementa el checker de intentos del evaluador.
type attempts map[string]bool

func (a attempts) AlreadyAttempted(marketID string) bool { return a[marketID] }

func candidate(id string, dir domain.Direction, mt domain.MarketType, closeIn time.Duration) domain.Candidate {
	return domain.Candidate{
		MarketID:   id,
		Asset:      "BTC",
		Direction:  dir,
		MarketType: mt,
		CloseAt:    t0.Add(closeIn),
		YesTokenID: "yes-" + id,
		NoTokenID:  "no-" + id,
	}
}
