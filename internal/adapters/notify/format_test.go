package notify_test

import (
	"strings"
	"testing"
	"time"

	"github.com/alejandrodnm/polysniper/internal/adapters/notify"
	"github.com/alejandrodnm/polysniper/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestFormat_Entered(t *testing.T) {
	pos := domain.Position{
		TradeID: "T0001", Asset: "ETH", Direction: domain.DirectionDown, MarketType: domain.MarketType15m,
		Label: "ETH Up or Down - 15 Minutes", EntryPrice: 0.975, Shares: 10.25, Size: 9.99375,
		CloseAt: time.Date(2026, 3, 1, 12, 15, 0, 0, time.UTC), Status: domain.StatusOpen,
	}
	text := notify.Format(domain.Event{
		Kind:     domain.EventEntered,
		Position: &pos,
		Fields:   map[string]any{"balance": 90.00625},
	})

	assert.Contains(t, text, "<b>BUY</b>")
	assert.Contains(t, text, "DOWN ETH Up or Down - 15 Minutes")
	assert.Contains(t, text, "97.5¢")
	assert.Contains(t, text, "$9.99")
	assert.Contains(t, text, "12:15:00 UTC")
	assert.Contains(t, text, "Balance: <b>$90.01</b>")
}

func TestFormat_CutlossShowsReasonAndPrices(t *testing.T) {
	pos := closedPosition(domain.StatusCutloss, 0.78, -1.957)
	pos.CutlossReason = "market bid 0.78 < floor 0.80"
	text := notify.Format(domain.Event{Kind: domain.EventCutloss, Position: &pos})

	assert.Contains(t, text, "CUT LOSS")
	assert.Contains(t, text, "bid 0.78 &lt; floor 0.80")
	assert.Contains(t, text, "97.0¢ → Sell 78.0¢")
	assert.Contains(t, text, "-$1.9570")
}

func TestFormat_StatusUsesStats(t *testing.T) {
	stats := domain.Stats{Total: 4, Open: 1, Wins: 2, Losses: 1, Cutlosses: 1, WinRate: 2.0 / 3, TotalPnL: -0.5, Balance: 99.5}
	text := notify.Format(domain.Event{Kind: domain.EventStatus, Stats: &stats, Fields: map[string]any{"watched": 6}})

	assert.Contains(t, text, "Watching: 6 markets")
	assert.Contains(t, text, "66.7%")
	assert.Contains(t, text, "-$0.5000")
	assert.Contains(t, text, "$99.50")
}

func TestFormat_ErrorMessageEscapedAndTruncated(t *testing.T) {
	text := notify.Format(domain.Event{Kind: domain.EventError, Message: "<x>" + strings.Repeat("a", 600)})

	assert.Contains(t, text, "ERROR")
	assert.Contains(t, text, "&lt;x&gt;")
	assert.True(t, strings.HasSuffix(text, "..."))
	assert.Less(t, len(text), 600)
}

func TestPlain(t *testing.T) {
	pos := closedPosition(domain.StatusLoss, 0, -9.991)
	line := notify.Plain(domain.Event{Kind: domain.EventLoss, Position: &pos})

	assert.Equal(t, "loss | T0007 | UP BTC Up or Down - 5 Minutes | pnl=-$9.9910", line)
}
