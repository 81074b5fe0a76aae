package engine_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alejandrodnm/polysniper/internal/application/engine"
	"github.com/alejandrodnm/polysniper/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type evalFixture struct {
	exchange *fakeExchange
	prices   *fakePrices
	attempts attempts
	eval     *engine.Evaluator
}

// newEvalFixture arma un escenario donde los seis checks pasan.
func newEvalFixture() *evalFixture {
	f := &evalFixture{
		exchange: newFakeExchange(),
		prices:   newFakePrices(),
		attempts: attempts{},
	}
	f.exchange.setBook("yes-m1", 0.96, 0.98)
	f.prices.set("BTC", 50000)
	f.prices.setTrend("BTC", 0.001)
	f.eval = engine.NewEvaluator(engine.DefaultConfig().Entry, f.exchange, f.prices, f.attempts, func() time.Time { return t0 })
	return f
}

func TestEvaluate_AllChecksPass(t *testing.T) {
	f := newEvalFixture()

	d, err := f.eval.Evaluate(context.Background(), candidate("m1", domain.DirectionUp, domain.MarketType5m, 60*time.Second))
	require.NoError(t, err)
	assert.True(t, d.Enter, d.Reason)
	assert.InDelta(t, 0.98, d.Ask, 1e-9)
	assert.InDelta(t, 50000, d.Spot, 1e-9)
}

func TestEvaluate_RejectsEachCheck(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(f *evalFixture)
		cand    domain.Candidate
		check   string
		reasons []string
	}{
		{
			name:    "too early for 5m",
			cand:    candidate("m1", domain.DirectionUp, domain.MarketType5m, 121*time.Second),
			check:   domain.CheckWindow,
			reasons: []string{"too early"},
		},
		{
			name:    "too late",
			cand:    candidate("m1", domain.DirectionUp, domain.MarketType5m, 5*time.Second),
			check:   domain.CheckWindow,
			reasons: []string{"too late"},
		},
		{
			name:  "unknown market type",
			cand:  candidate("m1", domain.DirectionUp, domain.MarketType("1h"), 30*time.Second),
			check: domain.CheckWindow,
		},
		{
			name:  "already attempted",
			setup: func(f *evalFixture) { f.attempts["m1"] = true },
			cand:  candidate("m1", domain.DirectionUp, domain.MarketType5m, 60*time.Second),
			check: domain.CheckAttempted,
		},
		{
			name:    "ask below threshold",
			setup:   func(f *evalFixture) { f.exchange.setBook("yes-m1", 0.93, 0.95) },
			cand:    candidate("m1", domain.DirectionUp, domain.MarketType5m, 60*time.Second),
			check:   domain.CheckAsk,
			reasons: []string{"0.9500", "threshold 0.97"},
		},
		{
			name:    "ask at 1.0",
			setup:   func(f *evalFixture) { f.exchange.setBook("yes-m1", 0.99, 1.0) },
			cand:    candidate("m1", domain.DirectionUp, domain.MarketType5m, 60*time.Second),
			check:   domain.CheckAsk,
			reasons: []string{">= 1.0"},
		},
		{
			name:    "no ask",
			setup:   func(f *evalFixture) { f.exchange.setBook("yes-m1", 0.96, 0) },
			cand:    candidate("m1", domain.DirectionUp, domain.MarketType5m, 60*time.Second),
			check:   domain.CheckAsk,
			reasons: []string{"no ask"},
		},
		{
			name:  "invalid quote",
			setup: func(f *evalFixture) { f.exchange.bookErr = fmt.Errorf("book: %w", domain.ErrInvalidQuote) },
			cand:  candidate("m1", domain.DirectionUp, domain.MarketType5m, 60*time.Second),
			check: domain.CheckAsk,
		},
		{
			name:    "spread above 5 cents",
			setup:   func(f *evalFixture) { f.exchange.setBook("yes-m1", 0.92, 0.98) },
			cand:    candidate("m1", domain.DirectionUp, domain.MarketType5m, 60*time.Second),
			check:   domain.CheckSpread,
			reasons: []string{"spread 0.0600"},
		},
		{
			name:    "trend against UP",
			setup:   func(f *evalFixture) { f.prices.setTrend("BTC", -0.0025) },
			cand:    candidate("m1", domain.DirectionUp, domain.MarketType5m, 60*time.Second),
			check:   domain.CheckTrend,
			reasons: []string{"against UP"},
		},
		{
			name:    "trend against DOWN",
			setup:   func(f *evalFixture) { f.prices.setTrend("BTC", 0.0025) },
			cand:    candidate("m1", domain.DirectionDown, domain.MarketType15m, 200*time.Second),
			check:   domain.CheckTrend,
			reasons: []string{"against DOWN"},
		},
		{
			name: "no spot price",
			setup: func(f *evalFixture) {
				f.prices = newFakePrices()
				f.eval = engine.NewEvaluator(engine.DefaultConfig().Entry, f.exchange, f.prices, f.attempts, func() time.Time { return t0 })
			},
			cand:  candidate("m1", domain.DirectionUp, domain.MarketType5m, 60*time.Second),
			check: domain.CheckSpot,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newEvalFixture()
			if tt.setup != nil {
				tt.setup(f)
			}

			d, err := f.eval.Evaluate(context.Background(), tt.cand)
			require.NoError(t, err)
			assert.False(t, d.Enter)
			assert.Equal(t, tt.check, d.Check)
			assert.NotEmpty(t, d.Reason)
			for _, r := range tt.reasons {
				assert.Contains(t, d.Reason, r)
			}
		})
	}
}

func TestEvaluate_BoundaryValuesAccepted(t *testing.T) {
	tests := []struct {
		name  string
		setup func(f *evalFixture)
		cand  domain.Candidate
	}{
		{
			name:  "ask exactly at threshold",
			setup: func(f *evalFixture) { f.exchange.setBook("yes-m1", 0.95, 0.97) },
			cand:  candidate("m1", domain.DirectionUp, domain.MarketType5m, 60*time.Second),
		},
		{
			name:  "spread exactly 5 cents",
			setup: func(f *evalFixture) { f.exchange.setBook("yes-m1", 0.93, 0.98) },
			cand:  candidate("m1", domain.DirectionUp, domain.MarketType5m, 60*time.Second),
		},
		{
			name:  "no bids means no spread check",
			setup: func(f *evalFixture) { f.exchange.setBook("yes-m1", 0, 0.98) },
			cand:  candidate("m1", domain.DirectionUp, domain.MarketType5m, 60*time.Second),
		},
		{
			name: "window edge for 15m",
			cand: candidate("m1", domain.DirectionUp, domain.MarketType15m, 300*time.Second),
		},
		{
			name:  "trend within tolerance",
			setup: func(f *evalFixture) { f.prices.setTrend("BTC", -0.0015) },
			cand:  candidate("m1", domain.DirectionUp, domain.MarketType5m, 60*time.Second),
		},
		{
			name:  "favorable trend for DOWN",
			setup: func(f *evalFixture) { f.prices.setTrend("BTC", -0.01) },
			cand:  candidate("m1", domain.DirectionDown, domain.MarketType5m, 60*time.Second),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newEvalFixture()
			if tt.setup != nil {
				tt.setup(f)
			}
			d, err := f.eval.Evaluate(context.Background(), tt.cand)
			require.NoError(t, err)
			assert.True(t, d.Enter, d.Reason)
		})
	}
}

func TestEvaluate_TransientBookErrorIsReturned(t *testing.T) {
	f := newEvalFixture()
	f.exchange.bookErr = fmt.Errorf("%w: %v", domain.ErrTransient, errNetwork)

	_, err := f.eval.Evaluate(context.Background(), candidate("m1", domain.DirectionUp, domain.MarketType5m, 60*time.Second))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrTransient)
}
