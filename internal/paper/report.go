package paper

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// DailyReport is the end-of-day portfolio summary.
type DailyReport struct {
	Balance     decimal.Decimal
	TotalPnL    decimal.Decimal
	TodayTrades []Trade
	TodayWins   int
	WinRate     float64 // over all closed trades
	AvgWinPct   float64
	AvgLossPct  float64
	Open        []Position
	LossStreak  int
	Paused      bool
}

// GetDailyReport aggregates the portfolio as of now. "Today" is the UTC date
// of the trade's exit time.
func (e *Engine) GetDailyReport() DailyReport {
	e.mu.Lock()
	defer e.mu.Unlock()

	today := e.now().UTC().Format("2006-01-02")

	r := DailyReport{
		Balance:    e.balance,
		TotalPnL:   decimal.Zero,
		LossStreak: e.lossStreak,
		Paused:     e.paused,
		Open:       make([]Position, len(e.open)),
	}
	copy(r.Open, e.open)

	var wins int
	var winPctSum, lossPctSum float64
	var losses int
	for _, t := range e.closed {
		r.TotalPnL = r.TotalPnL.Add(t.PnLDollars)
		if t.IsWin {
			wins++
			winPctSum += t.PnLPercent
		} else {
			losses++
			lossPctSum += t.PnLPercent
		}
		if t.ExitTime.UTC().Format("2006-01-02") == today {
			r.TodayTrades = append(r.TodayTrades, t)
			if t.IsWin {
				r.TodayWins++
			}
		}
	}
	if len(e.closed) > 0 {
		r.WinRate = float64(wins) / float64(len(e.closed))
	}
	if wins > 0 {
		r.AvgWinPct = winPctSum / float64(wins)
	}
	if losses > 0 {
		r.AvgLossPct = lossPctSum / float64(losses)
	}
	return r
}

// Format renders the report as a Telegram HTML message.
func (r DailyReport) Format() string {
	var b strings.Builder
	b.WriteString("📊 <b>Daily Paper Trading Report</b>\n\n")
	fmt.Fprintf(&b, "💰 Balance: $%s (PnL %s$%s)\n",
		r.Balance.StringFixed(2), pnlSign(r.TotalPnL), r.TotalPnL.Abs().StringFixed(2))
	fmt.Fprintf(&b, "📅 Today: %d trades, %d wins\n", len(r.TodayTrades), r.TodayWins)
	fmt.Fprintf(&b, "🎯 Win rate: %.0f%% (avg win %+.1f%%, avg loss %+.1f%%)\n",
		r.WinRate*100, r.AvgWinPct, r.AvgLossPct)
	fmt.Fprintf(&b, "📂 Open positions: %d\n", len(r.Open))
	for _, p := range r.Open {
		fmt.Fprintf(&b, "  • %s %s @ %s ($%s)\n",
			p.Direction, p.MarketID, p.EntryPrice.String(), p.Size.StringFixed(2))
	}
	if r.LossStreak > 0 {
		fmt.Fprintf(&b, "⚠️ Loss streak: %d\n", r.LossStreak)
	}
	if r.Paused {
		b.WriteString("⏸️ Trading is paused\n")
	}
	return b.String()
}

func pnlSign(d decimal.Decimal) string {
	if d.IsNegative() {
		return "-"
	}
	return "+"
}
