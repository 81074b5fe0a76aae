package domain_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polysniper/internal/domain"
)

func TestOrderBook_BestAndSpread(t *testing.T) {
	ob := domain.OrderBook{
		Bids: []domain.BookEntry{{Price: 0.95, Size: 10}, {Price: 0.94, Size: 5}},
		Asks: []domain.BookEntry{{Price: 0.97, Size: 20}, {Price: 0.98, Size: 1}},
	}

	bid, ok := ob.BestBid()
	require.True(t, ok)
	assert.InDelta(t, 0.95, bid, 1e-9)
	ask, ok := ob.BestAsk()
	require.True(t, ok)
	assert.InDelta(t, 0.97, ask, 1e-9)
	spread, ok := ob.Spread()
	require.True(t, ok)
	assert.InDelta(t, 0.02, spread, 1e-9)
	assert.NoError(t, ob.Validate())
}

func TestOrderBook_OneSided(t *testing.T) {
	ob := domain.OrderBook{Asks: []domain.BookEntry{{Price: 0.99, Size: 1}}}

	_, ok := ob.BestBid()
	assert.False(t, ok)
	_, ok = ob.Spread()
	assert.False(t, ok)
	assert.NoError(t, ob.Validate())
}

func TestOrderBook_Validate(t *testing.T) {
	tests := []struct {
		name string
		ob   domain.OrderBook
	}{
		{"ask above one", domain.OrderBook{Asks: []domain.BookEntry{{Price: 1.01}}}},
		{"zero bid", domain.OrderBook{Bids: []domain.BookEntry{{Price: 0}}}},
		{"crossed", domain.OrderBook{
			Bids: []domain.BookEntry{{Price: 0.98}},
			Asks: []domain.BookEntry{{Price: 0.97}},
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.ob.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrInvalidQuote))
		})
	}
}

func TestCandidate_TimeAndLabel(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := domain.Candidate{Asset: "SOL", MarketType: domain.MarketType15m, CloseAt: now.Add(90 * time.Second)}

	assert.Equal(t, 90*time.Second, c.TimeToClose(now))
	assert.False(t, c.Expired(now))
	assert.True(t, c.Expired(c.CloseAt))
	assert.Equal(t, "SOL Up or Down - 15 Minutes", c.Label())
}

func TestPosition_Helpers(t *testing.T) {
	closeAt := time.Date(2026, 3, 1, 12, 5, 0, 0, time.UTC)
	p := domain.Position{Status: domain.StatusOpen, CloseAt: closeAt}

	assert.True(t, p.IsOpen())
	assert.Zero(t, p.RealizedPnL())
	assert.False(t, p.PastClose(closeAt.Add(-time.Second)))
	assert.True(t, p.PastClose(closeAt))

	pnl := -1.5
	p.Status, p.PnL = domain.StatusCutloss, &pnl
	assert.True(t, p.Status.Terminal())
	assert.False(t, domain.StatusOpen.Terminal())
	assert.InDelta(t, -1.5, p.RealizedPnL(), 1e-9)
}

func TestOpenParams_Validate(t *testing.T) {
	ok := domain.OpenParams{MarketID: "m", EntryPrice: 0.97, Shares: 10.3, Size: 9.991}
	assert.NoError(t, ok.Validate())

	bad := ok
	bad.EntryPrice = 1.2
	assert.Error(t, bad.Validate())
	bad = ok
	bad.MarketID = ""
	assert.Error(t, bad.Validate())
	bad = ok
	bad.Shares = 0
	assert.Error(t, bad.Validate())
}

func TestStats_Closed(t *testing.T) {
	assert.Equal(t, 5, domain.Stats{Wins: 3, Losses: 2, Cutlosses: 1}.Closed())
}
