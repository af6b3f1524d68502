package detector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polysentry/polysentry/internal/events"
)

func book(id string, bid, ask string, bidDepth, askDepth string, imbalance float64) events.OrderBook {
	return events.OrderBook{
		MarketID:       id,
		BestBid:        dec(bid),
		BestAsk:        dec(ask),
		Spread:         dec(ask).Sub(dec(bid)),
		BidDepth:       dec(bidDepth),
		AskDepth:       dec(askDepth),
		ImbalanceRatio: imbalance,
	}
}

func calmBook(id string) events.OrderBook {
	return book(id, "0.48", "0.52", "550", "450", 0.1)
}

func TestImbalanceNeedsHistory(t *testing.T) {
	d := NewOrderBookImbalance()
	// Strong imbalance on the first observations is not actionable yet.
	assert.Nil(t, d.Process(book("m1", "0.28", "0.32", "950", "50", 0.95)))
	assert.Nil(t, d.Process(book("m1", "0.28", "0.32", "950", "50", 0.95)))
}

func TestImbalanceBidHeavyBook(t *testing.T) {
	d := NewOrderBookImbalance()
	for i := 0; i < 3; i++ {
		d.Process(calmBook("m1"))
	}

	a := d.Process(book("m1", "0.28", "0.32", "950", "50", 0.95))
	require.NotNil(t, a)
	assert.Equal(t, events.AnomalyOrderBookImbalance, a.Type)
	assert.Equal(t, events.SignalBuyYes, a.Details.String(events.DetailSignal))
	assert.InDelta(t, 0.30, a.Details.Float(events.DetailBuyPrice), 1e-9)
	assert.InDelta(t, 0.95, a.Severity, 1e-9)
}

func TestImbalanceAskHeavyBook(t *testing.T) {
	d := NewOrderBookImbalance()
	for i := 0; i < 3; i++ {
		d.Process(calmBook("m1"))
	}

	a := d.Process(book("m1", "0.58", "0.62", "40", "960", -0.92))
	require.NotNil(t, a)
	assert.Equal(t, events.SignalBuyNo, a.Details.String(events.DetailSignal))
	assert.InDelta(t, 0.40, a.Details.Float(events.DetailBuyPrice), 1e-9)
}

func TestImbalanceThinBookIgnored(t *testing.T) {
	d := NewOrderBookImbalance()
	for i := 0; i < 3; i++ {
		d.Process(calmBook("m1"))
	}
	assert.Nil(t, d.Process(book("m1", "0.28", "0.32", "280", "20", 0.93)))
}

func TestImbalanceChronicallyLopsidedMarket(t *testing.T) {
	d := NewOrderBookImbalance()
	// Three lopsided observations push the baseline above 0.7; after that
	// the same imbalance is the market's normal state, not a signal.
	for i := 0; i < 3; i++ {
		d.Process(book("m1", "0.28", "0.32", "950", "50", 0.95))
	}
	assert.Nil(t, d.Process(book("m1", "0.28", "0.32", "950", "50", 0.95)))
}

func TestImbalanceROIGate(t *testing.T) {
	d := NewOrderBookImbalance()
	for i := 0; i < 3; i++ {
		d.Process(calmBook("m1"))
	}
	// Mid at 0.73 puts the YES entry outside the zone.
	assert.Nil(t, d.Process(book("m1", "0.71", "0.75", "950", "50", 0.95)))
	// Mid at 0.65 is in zone but offers only ~54% to resolution — fine for
	// the 0.40 floor, so this one does fire.
	a := d.Process(book("m1", "0.63", "0.67", "950", "50", 0.95))
	require.NotNil(t, a)
	assert.InDelta(t, (1-0.65)/0.65, a.Details.Float(events.DetailExpectedROI), 1e-6)
}
