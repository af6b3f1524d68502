package detector

import (
	"fmt"
	"sync"
	"time"

	"github.com/polysentry/polysentry/internal/events"
)

// SpreadDetector flags books whose bid/ask spread is either wide in absolute
// terms or a multiple of the market's own running baseline.
type SpreadDetector struct {
	mu    sync.Mutex
	state map[string]*spreadBaseline
	now   func() time.Time
}

type spreadBaseline struct {
	avgSpread    float64
	observations int
}

const (
	spreadAlpha         = 0.1
	spreadWideThreshold = 0.10
	spreadWideScale     = 0.15
	spreadSpikeMultiple = 3.0
	spreadSpikeScale    = 10.0
	spreadMinObs        = 3
)

func NewSpread() *SpreadDetector {
	return &SpreadDetector{state: make(map[string]*spreadBaseline), now: time.Now}
}

func (d *SpreadDetector) Process(ob events.OrderBook) *events.AnomalyDetected {
	spread := ob.Spread.InexactFloat64()

	d.mu.Lock()
	defer d.mu.Unlock()

	st, ok := d.state[ob.MarketID]
	if !ok {
		st = &spreadBaseline{}
		d.state[ob.MarketID] = st
	}

	anomaly := d.detect(ob, st, spread)

	if st.observations == 0 {
		st.avgSpread = spread
	} else {
		st.avgSpread = (1-spreadAlpha)*st.avgSpread + spreadAlpha*spread
	}
	st.observations++

	return anomaly
}

func (d *SpreadDetector) detect(ob events.OrderBook, st *spreadBaseline, spread float64) *events.AnomalyDetected {
	if st.observations < spreadMinObs {
		return nil
	}

	var severity float64
	var kind string
	switch {
	case spread >= spreadWideThreshold:
		kind = "wide"
		severity = clampSeverity(spread / spreadWideScale)
	case st.avgSpread > 0 && spread/st.avgSpread >= spreadSpikeMultiple:
		kind = "spike"
		severity = clampSeverity(spread / st.avgSpread / spreadSpikeScale)
	default:
		return nil
	}

	return &events.AnomalyDetected{
		Type:     events.AnomalySpread,
		MarketID: ob.MarketID,
		Description: fmt.Sprintf("Spread %s: %.3f (avg %.3f, bid %.2f / ask %.2f)",
			kind, spread, st.avgSpread, ob.BestBid.InexactFloat64(), ob.BestAsk.InexactFloat64()),
		Severity: severity,
		Details: events.Details{
			"spread":        spread,
			"averageSpread": st.avgSpread,
			"kind":          kind,
		},
		Timestamp: d.now(),
	}
}
