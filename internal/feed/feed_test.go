package feed

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decimalFromString(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

func TestToSnapshotParsesGammaRecord(t *testing.T) {
	gm := gammaMarket{
		ConditionID:   "0xabc",
		Question:      "Will BTC be above $110,000 on March 31, 2026?",
		OutcomePrices: `["0.35", "0.65"]`,
		ClobTokenIDs:  `["111", "222"]`,
		Volume24h:     "125000.50",
		Liquidity:     "40000",
		EndDate:       "2026-03-31T12:00:00Z",
		Category:      "Crypto",
		Events:        []struct{ Slug string `json:"slug"` }{{Slug: "btc-110k"}},
	}

	snap, ok := toSnapshot(gm)
	require.True(t, ok)
	assert.Equal(t, "0xabc", snap.MarketID)
	assert.True(t, snap.YesPrice.Equal(decimalFromString(t, "0.35")))
	assert.True(t, snap.NoPrice.Equal(decimalFromString(t, "0.65")))
	assert.True(t, snap.Volume24h.Equal(decimalFromString(t, "125000.50")))
	assert.Equal(t, "111", snap.YesTokenID)
	assert.Equal(t, "222", snap.NoTokenID)
	assert.Equal(t, "btc-110k", snap.EventSlug)
	require.NotNil(t, snap.EndDate)
	assert.Equal(t, 2026, snap.EndDate.Year())
}

func TestToSnapshotSkipsMalformed(t *testing.T) {
	_, ok := toSnapshot(gammaMarket{ConditionID: "0xabc", Question: "q", OutcomePrices: "not json"})
	assert.False(t, ok)

	_, ok = toSnapshot(gammaMarket{Question: "missing id", OutcomePrices: `["0.5","0.5"]`})
	assert.False(t, ok)
}

func TestDeriveBook(t *testing.T) {
	book := &clobBook{
		Bids: []clobLevel{{Price: "0.48", Size: "1000"}, {Price: "0.45", Size: "500"}},
		Asks: []clobLevel{{Price: "0.52", Size: "100"}, {Price: "0.55", Size: "50"}},
	}
	ev, ok := deriveBook("m1", book)
	require.True(t, ok)
	assert.True(t, ev.BestBid.Equal(decimalFromString(t, "0.48")))
	assert.True(t, ev.BestAsk.Equal(decimalFromString(t, "0.52")))
	assert.True(t, ev.Spread.Equal(decimalFromString(t, "0.04")))
	// Bid depth 0.48·1000 + 0.45·500 = 705; ask depth 0.52·100 + 0.55·50 = 79.5
	assert.True(t, ev.BidDepth.Equal(decimalFromString(t, "705")))
	assert.True(t, ev.AskDepth.Equal(decimalFromString(t, "79.5")))
	assert.InDelta(t, (705.0-79.5)/(705.0+79.5), ev.ImbalanceRatio, 1e-9)
}

func TestDeriveBookEmptySide(t *testing.T) {
	_, ok := deriveBook("m1", &clobBook{Bids: []clobLevel{{Price: "0.5", Size: "10"}}})
	assert.False(t, ok)
}

func TestAnnualVolatility(t *testing.T) {
	// A 5% daily range gives roughly 56% annualised.
	got := annualVolatility("105000", "100000")
	r := math.Log(1.05)
	want := math.Sqrt(r*r/(4*math.Ln2)) * math.Sqrt(365)
	assert.InDelta(t, want, got, 1e-9)

	assert.Zero(t, annualVolatility("100", "0"))
	assert.Zero(t, annualVolatility("bad", "100"))
	assert.Zero(t, annualVolatility("100", "100"))
}

func TestQuestionKeywords(t *testing.T) {
	kws := questionKeywords("Will Bitcoin be above $110,000 before March 2026?")
	assert.Contains(t, kws, "bitcoin")
	assert.Contains(t, kws, "110")
	assert.Contains(t, kws, "march")
	assert.NotContains(t, kws, "will")
	assert.NotContains(t, kws, "be")
}
