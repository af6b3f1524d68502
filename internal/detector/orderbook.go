package detector

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/polysentry/polysentry/internal/events"
)

// OrderBookImbalanceDetector flags books where nearly all resting depth sits
// on one side. A per-market EWMA of |imbalance| filters out books that are
// chronically lopsided rather than newly pressured.
type OrderBookImbalanceDetector struct {
	mu    sync.Mutex
	state map[string]*bookBaseline
	now   func() time.Time
}

type bookBaseline struct {
	avgAbsImbalance float64
	observations    int
}

const (
	imbalanceAlpha        = 0.15
	imbalanceMinAbs       = 0.9
	imbalanceMinDepth     = 500.0
	imbalanceMaxBaseline  = 0.7
	imbalanceMinObs       = 3
	imbalanceMinROI       = 0.40
)

func NewOrderBookImbalance() *OrderBookImbalanceDetector {
	return &OrderBookImbalanceDetector{state: make(map[string]*bookBaseline), now: time.Now}
}

func (d *OrderBookImbalanceDetector) Process(ob events.OrderBook) *events.AnomalyDetected {
	absImb := math.Abs(ob.ImbalanceRatio)
	depth := ob.BidDepth.Add(ob.AskDepth).InexactFloat64()

	d.mu.Lock()
	defer d.mu.Unlock()

	st, ok := d.state[ob.MarketID]
	if !ok {
		st = &bookBaseline{}
		d.state[ob.MarketID] = st
	}

	anomaly := d.detect(ob, st, absImb, depth)

	if st.observations == 0 {
		st.avgAbsImbalance = absImb
	} else {
		st.avgAbsImbalance = (1-imbalanceAlpha)*st.avgAbsImbalance + imbalanceAlpha*absImb
	}
	st.observations++

	return anomaly
}

func (d *OrderBookImbalanceDetector) detect(ob events.OrderBook, st *bookBaseline, absImb, depth float64) *events.AnomalyDetected {
	if st.observations < imbalanceMinObs ||
		absImb < imbalanceMinAbs ||
		depth < imbalanceMinDepth ||
		st.avgAbsImbalance > imbalanceMaxBaseline {
		return nil
	}

	mid := ob.BestBid.Add(ob.BestAsk).InexactFloat64() / 2

	var signal string
	var buyPrice float64
	var pressure string
	if ob.ImbalanceRatio > 0 {
		// Bid-heavy book: buying pressure on YES.
		signal, buyPrice, pressure = events.SignalBuyYes, mid, "BUY"
	} else {
		signal, buyPrice, pressure = events.SignalBuyNo, 1-mid, "SELL"
	}

	if !inZone(buyPrice) {
		return nil
	}
	roi := maxROI(buyPrice)
	if roi < imbalanceMinROI {
		return nil
	}

	return &events.AnomalyDetected{
		Type:     events.AnomalyOrderBookImbalance,
		MarketID: ob.MarketID,
		Description: fmt.Sprintf("%s pressure: imbalance %+.2f with $%.0f depth",
			pressure, ob.ImbalanceRatio, depth),
		Severity: clampSeverity(absImb),
		Details: events.Details{
			events.DetailSignal:      signal,
			events.DetailBuyPrice:    buyPrice,
			events.DetailExpectedROI: roi,
			"imbalanceRatio":         ob.ImbalanceRatio,
			"depth":                  depth,
			"midPrice":               mid,
		},
		Timestamp: d.now(),
	}
}
