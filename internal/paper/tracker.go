package paper

import (
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/polysentry/polysentry/internal/marketcache"
)

// Markets this close to 0 or 1 are treated as resolved.
var (
	resolvedHigh = decimal.NewFromFloat(0.995)
	resolvedLow  = decimal.NewFromFloat(0.005)
)

// Tracker re-prices open positions against the latest snapshots and closes
// them on stop-loss, take-profit, or resolution.
type Tracker struct {
	engine    *Engine
	snapshots *marketcache.SnapshotCache
	interval  time.Duration
	stopCh    chan struct{}
}

func NewTracker(engine *Engine, snapshots *marketcache.SnapshotCache, interval time.Duration) *Tracker {
	return &Tracker{
		engine:    engine,
		snapshots: snapshots,
		interval:  interval,
		stopCh:    make(chan struct{}),
	}
}

func (t *Tracker) Start() {
	go t.loop()
	log.Info().Dur("interval", t.interval).Msg("👀 Position tracker started")
}

func (t *Tracker) Stop() {
	close(t.stopCh)
}

func (t *Tracker) loop() {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			t.Scan()
		case <-t.stopCh:
			return
		}
	}
}

// Scan runs one pass over the open positions.
func (t *Tracker) Scan() {
	for _, pos := range t.engine.OpenPositions() {
		snap, ok := t.snapshots.Get(pos.MarketID)
		if !ok {
			continue
		}

		yes := snap.YesPrice
		if yes.GreaterThanOrEqual(resolvedHigh) {
			t.engine.CloseAtResolution(pos.MarketID, pos.Direction == "YES")
			continue
		}
		if yes.LessThanOrEqual(resolvedLow) {
			t.engine.CloseAtResolution(pos.MarketID, pos.Direction == "NO")
			continue
		}

		current := yes
		if pos.Direction == "NO" {
			current = decimal.NewFromInt(1).Sub(yes)
		}
		t.engine.CheckAndClose(pos.MarketID, current, "")
	}
}
