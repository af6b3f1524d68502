package paper

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, starting string) *Engine {
	t.Helper()
	e := NewEngine(filepath.Join(t.TempDir(), "paper_trades.json"), dec(starting))
	e.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return e
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func enter(e *Engine, marketID string, score int) *Position {
	return e.TryEnter(marketID, "Will it happen?", "YES", dec("0.40"), score, "", nil)
}

func TestTryEnterSizing(t *testing.T) {
	e := newTestEngine(t, "1000")

	pos := enter(e, "m1", 85)
	require.NotNil(t, pos)
	assert.True(t, pos.Size.Equal(dec("50")), "5%% of 1000 hits the $50 cap: got %s", pos.Size)
	assert.True(t, pos.Shares.Equal(dec("125")))
	assert.True(t, e.Balance().Equal(dec("950")))
}

func TestTryEnterMinimumSize(t *testing.T) {
	e := newTestEngine(t, "100")
	pos := enter(e, "m1", 50)
	require.NotNil(t, pos)
	// 2% of $100 is $2, clamped up to the $5 floor.
	assert.True(t, pos.Size.Equal(dec("5")))
}

func TestPositionLimitAndReEntry(t *testing.T) {
	e := newTestEngine(t, "1000")

	require.NotNil(t, enter(e, "m1", 85))
	require.NotNil(t, enter(e, "m2", 85))
	require.NotNil(t, enter(e, "m3", 85))

	// Fourth market: the 3-position limit rejects it.
	assert.Nil(t, enter(e, "m4", 85))
	// Same market while open: rejected.
	assert.Nil(t, enter(e, "m1", 85))

	// Close one at take-profit; a new market is accepted again.
	tr := e.CheckAndClose("m1", dec("0.60"), "")
	require.NotNil(t, tr)
	assert.Equal(t, ExitTakeProfit, tr.ExitReason)
	require.NotNil(t, enter(e, "m5", 85))

	// A traded market is never re-entered, even after it closed.
	assert.Nil(t, enter(e, "m1", 85))
}

func TestRiskCapShrinksThenRejects(t *testing.T) {
	e := newTestEngine(t, "1000")

	require.NotNil(t, enter(e, "m1", 85)) // $50, balance 950
	require.NotNil(t, enter(e, "m2", 85)) // $47.50, balance 902.50

	// 5% of 902.50 is 45.13, but only 135.38 - 97.50 = 37.88 of risk budget
	// remains, so the size shrinks.
	pos := enter(e, "m3", 85)
	require.NotNil(t, pos)
	assert.True(t, pos.Size.Equal(dec("37.88")), "got %s", pos.Size)
}

func TestRiskCapRejectsTinyRemainder(t *testing.T) {
	e := newTestEngine(t, "100")
	require.NotNil(t, enter(e, "m1", 85)) // $5
	require.NotNil(t, enter(e, "m2", 85)) // $5
	// Remaining risk budget is 13.50 - 10 = 3.50, under the $5 floor.
	assert.Nil(t, enter(e, "m3", 85))
}

func TestCheckAndCloseThresholds(t *testing.T) {
	e := newTestEngine(t, "1000")
	require.NotNil(t, e.TryEnter("m1", "q", "YES", dec("0.50"), 85, "", nil)) // 100 shares, $50

	// -20% is inside the band: hold.
	assert.Nil(t, e.CheckAndClose("m1", dec("0.40"), ""))

	// -40% exactly triggers the stop.
	tr := e.CheckAndClose("m1", dec("0.30"), "")
	require.NotNil(t, tr)
	assert.Equal(t, ExitStopLoss, tr.ExitReason)
	assert.True(t, tr.PnLDollars.Equal(dec("-20")))
	assert.False(t, tr.IsWin)
	// Reserved $50 comes back minus the $20 loss.
	assert.True(t, e.Balance().Equal(dec("980")))
}

func TestCloseAtResolution(t *testing.T) {
	e := newTestEngine(t, "1000")
	require.NotNil(t, e.TryEnter("m1", "q", "YES", dec("0.40"), 85, "", nil)) // 125 shares, $50

	tr := e.CloseAtResolution("m1", true)
	require.NotNil(t, tr)
	assert.Equal(t, ExitResolution, tr.ExitReason)
	assert.True(t, tr.ExitPrice.Equal(dec("1")))
	assert.True(t, tr.PnLDollars.Equal(dec("75"))) // 125·1 − 50
	assert.True(t, e.Balance().Equal(dec("1075")))

	assert.Nil(t, e.CloseAtResolution("m1", true), "already closed")
}

func TestLossStreakThenDrawdownPauses(t *testing.T) {
	e := newTestEngine(t, "1000")
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return now }

	// Five straight resolution losses. Balance walks 1000 → 773.78.
	for i, id := range []string{"m1", "m2", "m3", "m4", "m5"} {
		require.NotNil(t, enter(e, id, 85), "entry %d", i)
		require.NotNil(t, e.CloseAtResolution(id, false))
	}

	// Streak gate pauses for a day.
	assert.Nil(t, enter(e, "m6", 85))
	now = now.Add(2 * time.Hour)
	assert.Nil(t, enter(e, "m7", 85), "still paused")

	// The pause lapses, but the streak only clears on a win, so the
	// streak gate re-pauses immediately.
	now = now.Add(25 * time.Hour)
	assert.Nil(t, enter(e, "m8", 85))
}

func TestBalanceInvariantAcrossOperations(t *testing.T) {
	e := newTestEngine(t, "1000")
	require.NotNil(t, enter(e, "m1", 85))
	require.NotNil(t, enter(e, "m2", 72))
	require.NotNil(t, e.CloseAtResolution("m1", true))
	require.NotNil(t, e.CheckAndClose("m2", dec("0.10"), ""))

	// Σopen.size + balance = starting + Σclosed.pnl
	open := decimal.Zero
	for _, p := range e.OpenPositions() {
		open = open.Add(p.Size)
	}
	pnl := decimal.Zero
	for _, tr := range e.ClosedTrades() {
		pnl = pnl.Add(tr.PnLDollars)
	}
	lhs := open.Add(e.Balance())
	rhs := dec("1000").Add(pnl)
	assert.True(t, lhs.Equal(rhs), "%s != %s", lhs, rhs)
}

func TestPersistenceRoundTrip(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "paper_trades.json")

	e1 := NewEngine(file, dec("1000"))
	e1.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	require.NotNil(t, e1.TryEnter("m1", "q1", "YES", dec("0.40"), 85, "news", nil))
	require.NotNil(t, e1.TryEnter("m2", "q2", "NO", dec("0.30"), 72, "", nil))
	require.NotNil(t, e1.CloseAtResolution("m1", true))

	e2 := NewEngine(file, dec("1000"))
	assert.True(t, e2.Balance().Equal(e1.Balance()))
	require.Len(t, e2.OpenPositions(), 1)
	assert.Equal(t, "m2", e2.OpenPositions()[0].MarketID)
	require.Len(t, e2.ClosedTrades(), 1)
	assert.Equal(t, ExitResolution, e2.ClosedTrades()[0].ExitReason)

	// The traded set survives the reload.
	assert.Nil(t, e2.TryEnter("m1", "q1", "YES", dec("0.40"), 85, "", nil))
}

func TestLoadMigratesInflatedBalance(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "paper_trades.json")

	// A legacy state: one closed $20 loss but the full starting balance.
	state := `{
		"balance": "1000",
		"openPositions": [],
		"closedTrades": [{
			"marketId": "m1", "question": "q", "direction": "YES",
			"entryPrice": "0.5", "size": "50", "shares": "100",
			"qualityScore": 85, "entryTime": "2026-02-28T10:00:00Z",
			"exitPrice": "0.3", "exitReason": "STOP_LOSS (-40%)",
			"exitTime": "2026-03-01T10:00:00Z",
			"pnlDollars": "-20", "pnlPercent": -40, "isWin": false,
			"balanceAfter": "980"
		}],
		"tradedMarketIds": ["m1"],
		"lossStreak": 1,
		"paused": false
	}`
	require.NoError(t, os.WriteFile(file, []byte(state), 0o644))

	e := NewEngine(file, dec("1000"))
	assert.True(t, e.Balance().Equal(dec("980")), "got %s", e.Balance())
}

func TestLoadMigrationNoOpWhenConsistent(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "paper_trades.json")

	e1 := NewEngine(file, dec("1000"))
	require.NotNil(t, e1.TryEnter("m1", "q", "YES", dec("0.50"), 85, "", nil))
	require.NotNil(t, e1.CheckAndClose("m1", dec("0.30"), ""))
	want := e1.Balance()

	e2 := NewEngine(file, dec("1000"))
	assert.True(t, e2.Balance().Equal(want))
}

func TestDailyReport(t *testing.T) {
	e := newTestEngine(t, "1000")
	require.NotNil(t, e.TryEnter("m1", "q", "YES", dec("0.40"), 85, "", nil))
	require.NotNil(t, e.CloseAtResolution("m1", true)) // +75
	require.NotNil(t, e.TryEnter("m2", "q", "YES", dec("0.50"), 85, "", nil))

	r := e.GetDailyReport()
	assert.True(t, r.TotalPnL.Equal(dec("75")))
	assert.Len(t, r.TodayTrades, 1)
	assert.Equal(t, 1, r.TodayWins)
	assert.Equal(t, 1.0, r.WinRate)
	assert.Len(t, r.Open, 1)
	assert.Contains(t, r.Format(), "Daily Paper Trading Report")
}
