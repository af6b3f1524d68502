package detector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polysentry/polysentry/internal/events"
)

func spreadBook(id, bid, ask string) events.OrderBook {
	return events.OrderBook{
		MarketID: id,
		BestBid:  dec(bid),
		BestAsk:  dec(ask),
		Spread:   dec(ask).Sub(dec(bid)),
	}
}

func TestSpreadNeedsHistory(t *testing.T) {
	d := NewSpread()
	assert.Nil(t, d.Process(spreadBook("m1", "0.40", "0.55")))
	assert.Nil(t, d.Process(spreadBook("m1", "0.40", "0.55")))
}

func TestSpreadWide(t *testing.T) {
	d := NewSpread()
	for i := 0; i < 3; i++ {
		d.Process(spreadBook("m1", "0.49", "0.51"))
	}
	a := d.Process(spreadBook("m1", "0.44", "0.56"))
	require.NotNil(t, a)
	assert.Equal(t, events.AnomalySpread, a.Type)
	assert.Equal(t, "wide", a.Details.String("kind"))
	assert.InDelta(t, 0.12/0.15, a.Severity, 1e-9)
}

func TestSpreadSpikeAgainstBaseline(t *testing.T) {
	d := NewSpread()
	for i := 0; i < 3; i++ {
		d.Process(spreadBook("m1", "0.495", "0.505")) // 0.01
	}
	// 0.04 is under the absolute threshold but 4x the baseline.
	a := d.Process(spreadBook("m1", "0.48", "0.52"))
	require.NotNil(t, a)
	assert.Equal(t, "spike", a.Details.String("kind"))
	assert.InDelta(t, 0.4, a.Severity, 1e-6)
}

func TestSpreadNormalBookQuiet(t *testing.T) {
	d := NewSpread()
	for i := 0; i < 3; i++ {
		d.Process(spreadBook("m1", "0.49", "0.51"))
	}
	assert.Nil(t, d.Process(spreadBook("m1", "0.48", "0.52")))
}
