package notify

import (
	"fmt"
	"html"
	"sort"
	"strings"

	"github.com/alejandrodnm/polysniper/internal/domain"
)

const maxMessageLen = 500

// Format renderiza un evento como texto HTML para Telegram.
func Format(ev domain.Event) string {
	var sb strings.Builder
	p := ev.Position

	switch ev.Kind {
	case domain.EventStartup:
		sb.WriteString("🤖 <b>Sniper started</b>\n")
		writeFields(&sb, ev.Fields)
	case domain.EventEntered:
		if p != nil {
			fmt.Fprintf(&sb, "🟢 <b>BUY</b> | %s\n", esc(positionTitle(*p)))
			fmt.Fprintf(&sb, "⏰ closes %s\n", p.CloseAt.UTC().Format("15:04:05 UTC"))
			fmt.Fprintf(&sb, "💰 %s / share | %.2f shares | Size: <b>$%.2f</b>\n", cents(p.EntryPrice), p.Shares, p.Size)
		}
	case domain.EventCutloss:
		if p != nil {
			fmt.Fprintf(&sb, "🔴 <b>CUT LOSS</b> | %s\n", esc(positionTitle(*p)))
			if p.CutlossReason != "" {
				fmt.Fprintf(&sb, "📉 %s\n", esc(p.CutlossReason))
			}
			if p.SellPrice != nil {
				fmt.Fprintf(&sb, "💸 Buy %s → Sell %s\n", cents(p.EntryPrice), cents(*p.SellPrice))
			}
			fmt.Fprintf(&sb, "❌ PnL: <b>%s</b>\n", signedMoney(p.RealizedPnL()))
		}
	case domain.EventWin, domain.EventLoss:
		if p != nil {
			icon, word := "✅", "WIN"
			if ev.Kind == domain.EventLoss {
				icon, word = "❌", "LOSS"
			}
			fmt.Fprintf(&sb, "%s <b>%s</b> | %s\n", icon, word, esc(positionTitle(*p)))
			fmt.Fprintf(&sb, "💰 Paid %s | PnL: <b>%s</b>\n", cents(p.EntryPrice), signedMoney(p.RealizedPnL()))
		}
	case domain.EventResolutionOverdue:
		sb.WriteString("⏳ <b>Resolution overdue</b>\n")
		if p != nil {
			fmt.Fprintf(&sb, "%s (%s) needs manual review\n", esc(positionTitle(*p)), esc(p.TradeID))
		}
	case domain.EventStatus:
		sb.WriteString("📊 <b>Status</b>\n")
		if s := ev.Stats; s != nil {
			if w, ok := ev.Fields["watched"]; ok {
				fmt.Fprintf(&sb, "👁 Watching: %v markets\n", w)
			}
			fmt.Fprintf(&sb, "📂 Open: %d | Trades: %d\n", s.Open, s.Total)
			fmt.Fprintf(&sb, "🏆 Win rate: %.1f%% (%dW / %dL, %d cut)\n", s.WinRate*100, s.Wins, s.Losses, s.Cutlosses)
			fmt.Fprintf(&sb, "💹 PnL: <b>%s</b>\n", signedMoney(s.TotalPnL))
			fmt.Fprintf(&sb, "💼 Balance: <b>$%.2f</b>\n", s.Balance)
		}
	case domain.EventStopped:
		sb.WriteString("🛑 <b>Sniper stopped</b>\n")
	case domain.EventError:
		sb.WriteString("⚠️ <b>ERROR</b>\n")
	default:
		fmt.Fprintf(&sb, "<b>%s</b>\n", esc(string(ev.Kind)))
	}

	if ev.Message != "" {
		sb.WriteString(esc(truncate(ev.Message, maxMessageLen)))
		sb.WriteString("\n")
	}
	if ev.Kind != domain.EventStartup && ev.Kind != domain.EventStatus {
		if b, ok := ev.Fields["balance"].(float64); ok {
			fmt.Fprintf(&sb, "💼 Balance: <b>$%.2f</b>\n", b)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

// Plain devuelve una línea sin HTML, usada por el log y la consola.
func Plain(ev domain.Event) string {
	parts := []string{string(ev.Kind)}
	if p := ev.Position; p != nil {
		parts = append(parts, p.TradeID, positionTitle(*p))
		if p.Status.Terminal() {
			parts = append(parts, fmt.Sprintf("pnl=%s", signedMoney(p.RealizedPnL())))
		}
	}
	if ev.Message != "" {
		parts = append(parts, ev.Message)
	}
	return strings.Join(parts, " | ")
}

func positionTitle(p domain.Position) string {
	title := p.Label
	if title == "" {
		title = fmt.Sprintf("%s %s %s", p.Asset, p.Direction, p.MarketType)
	}
	return fmt.Sprintf("%s %s", p.Direction, title)
}

// writeFields escribe los campos ordenados por clave para que la salida sea estable.
func writeFields(sb *strings.Builder, fields map[string]any) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(sb, "%s: %s\n", esc(k), esc(fmt.Sprint(fields[k])))
	}
}

func cents(price float64) string {
	return fmt.Sprintf("%.1f¢", price*100)
}

func signedMoney(v float64) string {
	if v >= 0 {
		return fmt.Sprintf("+$%.4f", v)
	}
	return fmt.Sprintf("-$%.4f", -v)
}

func esc(s string) string {
	return html.EscapeString(s)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
