package fairvalue

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var parseNow = time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

func TestParseQuestionFull(t *testing.T) {
	m := ParseQuestion("Will Bitcoin be above $110,000 on March 31, 2026?", parseNow)
	require.NotNil(t, m)
	assert.Equal(t, "BTC", m.Symbol)
	assert.Equal(t, "110000", m.TargetPrice.String())
	assert.True(t, m.IsAbove)
	require.NotNil(t, m.ExpiryDate)
	assert.Equal(t, time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC), *m.ExpiryDate)
}

func TestParseQuestionSuffixAndBy(t *testing.T) {
	m := ParseQuestion("ETH hit $4k by June 30, 2025", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NotNil(t, m)
	assert.Equal(t, "ETH", m.Symbol)
	assert.Equal(t, "4000", m.TargetPrice.String())
	assert.True(t, m.IsAbove)
	require.NotNil(t, m.ExpiryDate)
	assert.Equal(t, time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC), *m.ExpiryDate)
}

func TestParseQuestionBelowAndYearlessBump(t *testing.T) {
	now := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)
	m := ParseQuestion("Will BTC dip to $80,000 before Feb 28?", now)
	require.NotNil(t, m)
	assert.Equal(t, "BTC", m.Symbol)
	assert.Equal(t, "80000", m.TargetPrice.String())
	assert.False(t, m.IsAbove)
	require.NotNil(t, m.ExpiryDate)
	// Feb 28 already passed this year, so next occurrence.
	assert.Equal(t, time.Date(2027, 2, 28, 0, 0, 0, 0, time.UTC), *m.ExpiryDate)
}

func TestParseQuestionUnknownSymbol(t *testing.T) {
	assert.Nil(t, ParseQuestion("Will the S&P close above 6000 this year?", parseNow))
}

func TestParseQuestionNoTarget(t *testing.T) {
	assert.Nil(t, ParseQuestion("Will Bitcoin outperform gold in 2026?", parseNow))
}

func TestParseQuestionAliases(t *testing.T) {
	cases := map[string]string{
		"Will Ether reach $5,000?":        "ETH",
		"Will Solana be above $300?":      "SOL",
		"Dogecoin to hit $1 this cycle?":  "DOGE",
		"Will Ripple exceed $5?":          "XRP",
		"Will MATIC be over $2?":          "MATIC",
		"Will sui reach $10 by June 1?":   "SUI",
		"Will bitcoin crash to $50k?":     "BTC",
	}
	for q, sym := range cases {
		m := ParseQuestion(q, parseNow)
		require.NotNil(t, m, q)
		assert.Equal(t, sym, m.Symbol, q)
	}
}

func TestParseQuestionDirectionKeywords(t *testing.T) {
	below := []string{
		"Will ETH be under $2000?",
		"Will ETH fall to $2,000?",
		"Will ETH be beneath $2000 on July 4?",
		"Will ETH trade lower than $2000?",
	}
	for _, q := range below {
		m := ParseQuestion(q, parseNow)
		require.NotNil(t, m, q)
		assert.False(t, m.IsAbove, q)
	}

	// No directional keyword defaults to above.
	m := ParseQuestion("ETH $4,000 by December 31, 2026?", parseNow)
	require.NotNil(t, m)
	assert.True(t, m.IsAbove)
}

func TestParseQuestionOrdinalDate(t *testing.T) {
	m := ParseQuestion("Will BTC reach $150k by March 1st, 2027?", parseNow)
	require.NotNil(t, m)
	require.NotNil(t, m.ExpiryDate)
	assert.Equal(t, time.Date(2027, 3, 1, 0, 0, 0, 0, time.UTC), *m.ExpiryDate)
}

func TestParseQuestionMillionSuffix(t *testing.T) {
	m := ParseQuestion("Will Bitcoin surpass $1m?", parseNow)
	require.NotNil(t, m)
	assert.Equal(t, "1000000", m.TargetPrice.String())
}

// Parsing a match's own canonical rendering reproduces the match.
func TestCanonicalRoundTrip(t *testing.T) {
	expiry := time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)
	for _, m := range []*Match{
		{Symbol: "BTC", TargetPrice: dec("110000"), IsAbove: true, ExpiryDate: &expiry},
		{Symbol: "ETH", TargetPrice: dec("4000"), IsAbove: false, ExpiryDate: &expiry},
		{Symbol: "SOL", TargetPrice: dec("300"), IsAbove: true},
	} {
		got := ParseQuestion(m.Canonical(), parseNow)
		require.NotNil(t, got, m.Canonical())
		assert.Equal(t, m.Symbol, got.Symbol)
		assert.True(t, m.TargetPrice.Equal(got.TargetPrice))
		assert.Equal(t, m.IsAbove, got.IsAbove)
		if m.ExpiryDate == nil {
			assert.Nil(t, got.ExpiryDate)
		} else {
			require.NotNil(t, got.ExpiryDate)
			assert.Equal(t, *m.ExpiryDate, *got.ExpiryDate)
		}
	}
}
