package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"github.com/alejandrodnm/polysniper/internal/domain"
	"github.com/olekukonko/tablewriter"
)

// Console imprime eventos y tablas de estado en una terminal.
type Console struct {
	mu  sync.Mutex
	out io.Writer
}

// NewConsole escribe a stdout.
func NewConsole() *Console {
	return &Console{out: os.Stdout}
}

// NewConsoleWriter escribe al writer dado (tests).
func NewConsoleWriter(w io.Writer) *Console {
	return &Console{out: w}
}

// Send implementa Sender: los status se pintan como tabla, el resto en una línea.
func (c *Console) Send(_ context.Context, ev domain.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ev.Kind == domain.EventStatus && ev.Stats != nil {
		watched := -1
		if w, ok := ev.Fields["watched"].(int); ok {
			watched = w
		}
		fmt.Fprintf(c.out, "[%s] status\n", ev.At.Format("15:04:05"))
		c.statsTable(*ev.Stats, watched)
		return nil
	}
	fmt.Fprintf(c.out, "[%s] %s\n", ev.At.Format("15:04:05"), Plain(ev))
	return nil
}

func (c *Console) Name() string { return "console" }

// PrintStatus imprime el resumen y los últimos trades del ledger persistido.
func (c *Console) PrintStatus(stats domain.Stats, positions []domain.Position, recent int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintf(c.out, "\n=== SNIPER STATUS ===\n\n")
	c.statsTable(stats, -1)

	if len(positions) == 0 {
		fmt.Fprintln(c.out, "\n  (no trades yet)")
		return
	}

	sorted := make([]domain.Position, len(positions))
	copy(sorted, positions)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].EntryAt.After(sorted[j].EntryAt)
	})
	if recent > 0 && len(sorted) > recent {
		sorted = sorted[:recent]
	}

	fmt.Fprintf(c.out, "\n── LAST %d TRADES ──\n", len(sorted))
	table := tablewriter.NewWriter(c.out)
	table.Header("ID", "Market", "Dir", "Entry", "Shares", "Size$", "Status", "Sell", "PnL", "Entered")
	for _, p := range sorted {
		sell, pnl := "-", "-"
		if p.SellPrice != nil {
			sell = fmt.Sprintf("%.3f", *p.SellPrice)
		}
		if p.PnL != nil {
			pnl = signedMoney(*p.PnL)
		}
		table.Append(
			p.TradeID,
			fmt.Sprintf("%s %s", p.Asset, p.MarketType),
			string(p.Direction),
			fmt.Sprintf("%.3f", p.EntryPrice),
			fmt.Sprintf("%.2f", p.Shares),
			fmt.Sprintf("$%.2f", p.Size),
			string(p.Status),
			sell,
			pnl,
			p.EntryAt.UTC().Format("01-02 15:04"),
		)
	}
	table.Render()
}

// PrintStoredCounts imprime el recuento por estado del historial guardado.
func (c *Console) PrintStoredCounts(counts map[domain.PositionStatus]int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintf(c.out, "\n── STORED TRADES ──\n")
	table := tablewriter.NewWriter(c.out)
	table.Header("Status", "Trades")
	for _, s := range []domain.PositionStatus{domain.StatusOpen, domain.StatusWin, domain.StatusLoss, domain.StatusCutloss} {
		table.Append(string(s), fmt.Sprintf("%d", counts[s]))
	}
	table.Render()
}

func (c *Console) statsTable(s domain.Stats, watched int) {
	table := tablewriter.NewWriter(c.out)
	table.Header("Metric", "Value")
	if watched >= 0 {
		table.Append("Watching", fmt.Sprintf("%d markets", watched))
	}
	table.Append("Trades", fmt.Sprintf("%d", s.Total))
	table.Append("Open", fmt.Sprintf("%d", s.Open))
	table.Append("Wins", fmt.Sprintf("%d", s.Wins))
	table.Append("Losses", fmt.Sprintf("%d (%d cut)", s.Losses, s.Cutlosses))
	table.Append("Win rate", fmt.Sprintf("%.1f%%", s.WinRate*100))
	table.Append("PnL", signedMoney(s.TotalPnL))
	table.Append("Balance", fmt.Sprintf("$%.2f", s.Balance))
	table.Render()
}
