package alert

import (
	"fmt"
	"html"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/polysentry/polysentry/internal/events"
	"github.com/polysentry/polysentry/internal/paper"
)

// paperContext is the portfolio view rendered into the alert when an entry
// was taken.
type paperContext struct {
	position *paper.Position
	balance  decimal.Decimal
	open     int
}

// formatMessage renders one qualified anomaly as a Telegram HTML message.
func formatMessage(a events.AnomalyDetected, question string, pc paperContext) string {
	score := a.Details.Float(events.DetailQualityScore)

	var b strings.Builder
	fmt.Fprintf(&b, "%s <b>%s</b> [%.0f/100]\n", qualityEmoji(score), a.Type, score)
	fmt.Fprintf(&b, "<b>%s</b>\n\n", html.EscapeString(question))

	if mt := a.Details.String(events.DetailMarketType); mt != "" {
		fmt.Fprintf(&b, "📁 %s", mt)
		if hrs, ok := a.Details.FloatOK(events.DetailHoursToRes); ok {
			fmt.Fprintf(&b, " · resolves in %s", formatHours(hrs))
		}
		b.WriteString("\n")
	}

	writeEdgeContext(&b, a.Details)

	if breakdown := a.Details.String(events.DetailBreakdown); breakdown != "" {
		b.WriteString("📊 Score breakdown:\n")
		for _, part := range strings.Split(breakdown, "|") {
			fmt.Fprintf(&b, "  • %s\n", html.EscapeString(strings.TrimSpace(part)))
		}
	}
	if catalyst := a.Details.String(events.DetailCatalyst); catalyst != "" {
		fmt.Fprintf(&b, "📰 Catalyst: %s\n", html.EscapeString(catalyst))
	}

	fmt.Fprintf(&b, "\n🎯 Signal: <b>%s</b>", a.Details.String(events.DetailSignal))
	if roi, ok := a.Details.FloatOK(events.DetailExpectedROI); ok && roi > 0 {
		fmt.Fprintf(&b, " (ROI: +%.0f%%)", roi*100)
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "%s\n", html.EscapeString(a.Description))

	if pc.position != nil {
		p := pc.position
		portfolio := pc.balance.Add(p.Size)
		pct := 0.0
		if portfolio.IsPositive() {
			pct = p.Size.Div(portfolio).InexactFloat64() * 100
		}
		fmt.Fprintf(&b, "\n🧾 Paper trade: %s @ %s · $%s (%.1f%% of portfolio)\n",
			p.Direction, p.EntryPrice.String(), p.Size.StringFixed(2), pct)
		fmt.Fprintf(&b, "💰 Balance: $%s · open %d/%d\n",
			pc.balance.StringFixed(2), pc.open, paper.MaxOpenPositions)
	}

	if url := a.Details.String(events.DetailURL); url != "" {
		fmt.Fprintf(&b, "\n🔗 <a href=\"%s\">View market</a>", url)
	}
	return b.String()
}

// writeEdgeContext renders the fair-value context carried by arbitrage and
// crypto divergence anomalies.
func writeEdgeContext(b *strings.Builder, d events.Details) {
	symbol := d.String("symbol")
	if symbol == "" {
		return
	}
	fmt.Fprintf(b, "💎 %s $%.0f → target $%.0f\n", symbol, d.Float("spotPrice"), d.Float("targetPrice"))
	if _, ok := d.FloatOK("fairValue"); ok {
		fmt.Fprintf(b, "⚖️ Fair %.3f vs market %.3f · edge %.3f\n",
			d.Float("fairValue"), d.Float("marketPrice"), d.Float("edge"))
		fmt.Fprintf(b, "🌪 Volatility %.0f%% · %.0f days to expiry\n",
			d.Float("volatility")*100, d.Float("daysToExpiry"))
	}
}

func qualityEmoji(score float64) string {
	switch {
	case score >= 85:
		return "⚡"
	case score >= 70:
		return "🟢"
	default:
		return "🟡"
	}
}

func formatHours(hrs float64) string {
	if hrs < 48 {
		return fmt.Sprintf("%.0fh", hrs)
	}
	return fmt.Sprintf("%.0fd", hrs/24)
}
