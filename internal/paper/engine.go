// Package paper implements the simulated portfolio that signals are traded
// against. All mutations run under one lock and every mutation persists the
// full state to disk.
package paper

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

const (
	MaxOpenPositions     = 3
	MaxRiskPercent       = 0.15
	MaxLossStreak        = 5
	PauseDrawdownPercent = 0.20

	lossStreakPause = 24 * time.Hour
	drawdownPause   = 72 * time.Hour

	ExitStopLoss   = "STOP_LOSS (-40%)"
	ExitTakeProfit = "TAKE_PROFIT (+50%)"
	ExitResolution = "RESOLUTION"

	stopLossPct   = -0.40
	takeProfitPct = 0.50
)

var (
	minPositionSize = decimal.NewFromInt(5)
	maxPositionSize = decimal.NewFromInt(50)
	maxRiskFraction = decimal.NewFromFloat(MaxRiskPercent)
)

// Position is one open simulated position. Size is the dollars reserved.
type Position struct {
	MarketID          string          `json:"marketId"`
	Question          string          `json:"question"`
	Direction         string          `json:"direction"` // YES or NO
	EntryPrice        decimal.Decimal `json:"entryPrice"`
	Size              decimal.Decimal `json:"size"`
	Shares            decimal.Decimal `json:"shares"`
	QualityScore      int             `json:"qualityScore"`
	Catalyst          string          `json:"catalyst,omitempty"`
	HoursToResolution *float64        `json:"hoursToResolution,omitempty"`
	EntryTime         time.Time       `json:"entryTime"`
}

// Trade is a closed position with its outcome.
type Trade struct {
	Position
	ExitPrice    decimal.Decimal `json:"exitPrice"`
	ExitReason   string          `json:"exitReason"`
	ExitTime     time.Time       `json:"exitTime"`
	PnLDollars   decimal.Decimal `json:"pnlDollars"`
	PnLPercent   float64         `json:"pnlPercent"`
	IsWin        bool            `json:"isWin"`
	BalanceAfter decimal.Decimal `json:"balanceAfter"`
}

// persistedState is the on-disk shape of the engine.
type persistedState struct {
	Balance         decimal.Decimal `json:"balance"`
	OpenPositions   []Position      `json:"openPositions"`
	ClosedTrades    []Trade         `json:"closedTrades"`
	TradedMarketIDs []string        `json:"tradedMarketIds"`
	LossStreak      int             `json:"lossStreak"`
	Paused          bool            `json:"paused"`
	PausedUntil     *time.Time      `json:"pausedUntil,omitempty"`
}

// Engine is the paper-trading portfolio.
type Engine struct {
	mu sync.Mutex

	filePath string
	starting decimal.Decimal

	balance     decimal.Decimal
	open        []Position
	closed      []Trade
	traded      map[string]struct{}
	lossStreak  int
	paused      bool
	pausedUntil time.Time

	now func() time.Time
}

// NewEngine loads persisted state from filePath if present; otherwise starts
// fresh with the given balance.
func NewEngine(filePath string, startingBalance decimal.Decimal) *Engine {
	e := &Engine{
		filePath: filePath,
		starting: startingBalance,
		balance:  startingBalance,
		traded:   make(map[string]struct{}),
		now:      time.Now,
	}
	e.load()
	return e
}

// TryEnter opens a position for a qualified signal. A nil return means some
// policy gate rejected the entry; that is normal operation, not an error.
func (e *Engine) TryEnter(marketID, question, direction string, entryPrice decimal.Decimal, qualityScore int, catalyst string, hoursToResolution *float64) *Position {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()

	if e.paused {
		if now.Before(e.pausedUntil) {
			log.Info().Str("market", marketID).Time("until", e.pausedUntil).Msg("⏸️ Paper trading paused, skipping entry")
			return nil
		}
		e.paused = false
	}

	if len(e.open) >= MaxOpenPositions {
		log.Info().Str("market", marketID).Int("open", len(e.open)).Msg("Paper entry skipped: position limit")
		return nil
	}
	for _, p := range e.open {
		if p.MarketID == marketID {
			return nil
		}
	}
	if _, ok := e.traded[marketID]; ok {
		log.Info().Str("market", marketID).Msg("Paper entry skipped: market already traded")
		return nil
	}

	if e.lossStreak >= MaxLossStreak {
		e.pause(now, lossStreakPause, fmt.Sprintf("loss streak %d", e.lossStreak))
		return nil
	}
	drawdown := e.starting.Sub(e.balance).Div(e.starting)
	if drawdown.InexactFloat64() >= PauseDrawdownPercent {
		e.pause(now, drawdownPause, fmt.Sprintf("drawdown %.0f%%", drawdown.InexactFloat64()*100))
		return nil
	}

	if !entryPrice.IsPositive() {
		return nil
	}

	size := e.balance.Mul(sizePercent(qualityScore)).Round(2)
	if size.LessThan(minPositionSize) {
		size = minPositionSize
	} else if size.GreaterThan(maxPositionSize) {
		size = maxPositionSize
	}

	openSize := decimal.Zero
	for _, p := range e.open {
		openSize = openSize.Add(p.Size)
	}
	riskCap := e.balance.Mul(maxRiskFraction)
	if openSize.Add(size).GreaterThan(riskCap) {
		size = riskCap.Sub(openSize).Round(2)
		if size.LessThan(minPositionSize) {
			log.Info().Str("market", marketID).Msg("Paper entry skipped: risk cap")
			return nil
		}
	}

	pos := Position{
		MarketID:          marketID,
		Question:          question,
		Direction:         direction,
		EntryPrice:        entryPrice,
		Size:              size,
		Shares:            size.Div(entryPrice).Round(2),
		QualityScore:      qualityScore,
		Catalyst:          catalyst,
		HoursToResolution: hoursToResolution,
		EntryTime:         now,
	}
	e.balance = e.balance.Sub(size)
	e.open = append(e.open, pos)
	e.traded[marketID] = struct{}{}
	e.persist()

	log.Info().
		Str("market", marketID).
		Str("direction", direction).
		Str("size", size.StringFixed(2)).
		Str("entry", entryPrice.String()).
		Str("balance", e.balance.StringFixed(2)).
		Msg("📈 Paper position opened")
	return &pos
}

// CheckAndClose closes the market's open position when the unrealized PnL
// crosses the stop-loss or take-profit threshold. An explicit reason forces
// the close regardless of PnL.
func (e *Engine) CheckAndClose(marketID string, currentPrice decimal.Decimal, reason string) *Trade {
	e.mu.Lock()
	defer e.mu.Unlock()

	idx := e.findOpen(marketID)
	if idx < 0 {
		return nil
	}

	if reason == "" {
		p := e.open[idx]
		pnlPct := p.Shares.Mul(currentPrice).Sub(p.Size).Div(p.Size).InexactFloat64()
		switch {
		case pnlPct <= stopLossPct:
			reason = ExitStopLoss
		case pnlPct >= takeProfitPct:
			reason = ExitTakeProfit
		default:
			return nil
		}
	}

	tr := e.closeLocked(idx, currentPrice, reason)
	return &tr
}

// CloseAtResolution settles the position at 1.0 or 0.0 when the market
// resolves.
func (e *Engine) CloseAtResolution(marketID string, wonBet bool) *Trade {
	e.mu.Lock()
	defer e.mu.Unlock()

	idx := e.findOpen(marketID)
	if idx < 0 {
		return nil
	}
	exit := decimal.Zero
	if wonBet {
		exit = decimal.NewFromInt(1)
	}
	tr := e.closeLocked(idx, exit, ExitResolution)
	return &tr
}

func (e *Engine) findOpen(marketID string) int {
	for i, p := range e.open {
		if p.MarketID == marketID {
			return i
		}
	}
	return -1
}

func (e *Engine) closeLocked(idx int, exitPrice decimal.Decimal, reason string) Trade {
	p := e.open[idx]
	pnl := p.Shares.Mul(exitPrice).Sub(p.Size)
	e.balance = e.balance.Add(p.Size).Add(pnl)

	tr := Trade{
		Position:     p,
		ExitPrice:    exitPrice,
		ExitReason:   reason,
		ExitTime:     e.now(),
		PnLDollars:   pnl,
		PnLPercent:   pnl.Div(p.Size).InexactFloat64() * 100,
		IsWin:        pnl.IsPositive(),
		BalanceAfter: e.balance,
	}
	if tr.IsWin {
		e.lossStreak = 0
	} else {
		e.lossStreak++
	}

	e.open = append(e.open[:idx], e.open[idx+1:]...)
	e.closed = append(e.closed, tr)
	e.persist()

	emoji := "🟢"
	if !tr.IsWin {
		emoji = "🔴"
	}
	log.Info().
		Str("market", p.MarketID).
		Str("reason", reason).
		Str("pnl", pnl.StringFixed(2)).
		Str("balance", e.balance.StringFixed(2)).
		Msgf("%s Paper position closed", emoji)
	return tr
}

func (e *Engine) pause(now time.Time, d time.Duration, why string) {
	e.paused = true
	e.pausedUntil = now.Add(d)
	e.persist()
	log.Warn().Str("reason", why).Time("until", e.pausedUntil).Msg("⏸️ Paper trading paused")
}

func sizePercent(score int) decimal.Decimal {
	switch {
	case score >= 85:
		return decimal.NewFromFloat(0.05)
	case score >= 70:
		return decimal.NewFromFloat(0.03)
	default:
		return decimal.NewFromFloat(0.02)
	}
}

// Balance returns the current free balance.
func (e *Engine) Balance() decimal.Decimal {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.balance
}

// OpenPositions returns a snapshot copy of the open positions.
func (e *Engine) OpenPositions() []Position {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Position, len(e.open))
	copy(out, e.open)
	return out
}

// ClosedTrades returns a snapshot copy of the closed trades.
func (e *Engine) ClosedTrades() []Trade {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Trade, len(e.closed))
	copy(out, e.closed)
	return out
}

func (e *Engine) persist() {
	st := persistedState{
		Balance:         e.balance,
		OpenPositions:   e.open,
		ClosedTrades:    e.closed,
		TradedMarketIDs: make([]string, 0, len(e.traded)),
		LossStreak:      e.lossStreak,
		Paused:          e.paused,
	}
	if e.paused {
		until := e.pausedUntil
		st.PausedUntil = &until
	}
	for id := range e.traded {
		st.TradedMarketIDs = append(st.TradedMarketIDs, id)
	}

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		log.Warn().Err(err).Msg("Failed to encode paper state")
		return
	}
	if err := os.MkdirAll(filepath.Dir(e.filePath), 0o755); err != nil {
		log.Warn().Err(err).Msg("Failed to create paper state dir")
		return
	}
	tmp := e.filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		log.Warn().Err(err).Msg("Failed to write paper state")
		return
	}
	if err := os.Rename(tmp, e.filePath); err != nil {
		log.Warn().Err(err).Msg("Failed to replace paper state file")
	}
}

func (e *Engine) load() {
	data, err := os.ReadFile(e.filePath)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Msg("Failed to read paper state")
		}
		return
	}
	var st persistedState
	if err := json.Unmarshal(data, &st); err != nil {
		log.Warn().Err(err).Msg("Failed to decode paper state, starting fresh")
		return
	}

	e.balance = st.Balance
	e.open = st.OpenPositions
	e.closed = st.ClosedTrades
	e.lossStreak = st.LossStreak
	e.paused = st.Paused
	if st.PausedUntil != nil {
		e.pausedUntil = *st.PausedUntil
	}

	// tradedMarketIds is rebuilt as the union of the persisted set and every
	// market seen in open or closed positions.
	for _, id := range st.TradedMarketIDs {
		e.traded[id] = struct{}{}
	}
	for _, p := range e.open {
		e.traded[p.MarketID] = struct{}{}
	}
	for _, t := range e.closed {
		e.traded[t.MarketID] = struct{}{}
	}

	e.migrate()

	log.Info().
		Str("balance", e.balance.StringFixed(2)).
		Int("open", len(e.open)).
		Int("closed", len(e.closed)).
		Msg("💾 Paper state loaded")
}

// migrate repairs balances written by versions that did not deduct the
// reserved size on entry. With no open positions the balance must equal
// starting plus the sum of closed PnL; anything above that is corrected.
func (e *Engine) migrate() {
	if len(e.open) > 0 {
		return
	}
	sumPnl := decimal.Zero
	for _, t := range e.closed {
		sumPnl = sumPnl.Add(t.PnLDollars)
	}
	derived := e.starting.Add(sumPnl)
	if e.balance.Sub(derived).GreaterThan(decimal.NewFromFloat(0.01)) {
		log.Warn().
			Str("stored", e.balance.StringFixed(2)).
			Str("derived", derived.StringFixed(2)).
			Msg("Correcting paper balance from closed trade history")
		e.balance = derived
		e.persist()
	}
}
