package detector

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polysentry/polysentry/internal/events"
)

func TestNewsRelevanceGate(t *testing.T) {
	d := NewNewsImpact()
	assert.Nil(t, d.Process(events.NewsItem{MarketID: "m1", Headline: "Minor note", Relevance: 0.3}))

	a := d.Process(events.NewsItem{
		MarketID:  "m1",
		Headline:  "Fed announces emergency rate cut",
		Source:    "reuters",
		Relevance: 0.6,
	})
	require.NotNil(t, a)
	assert.Equal(t, events.AnomalyNewsImpact, a.Type)
	assert.InDelta(t, 0.6, a.Severity, 1e-9)
	assert.Contains(t, a.Description, "reuters")
}

func TestNewsHeadlineTruncatedInDescription(t *testing.T) {
	d := NewNewsImpact()
	long := strings.Repeat("breaking news ", 20)
	a := d.Process(events.NewsItem{MarketID: "m1", Headline: long, Source: "x", Relevance: 0.5})
	require.NotNil(t, a)
	assert.Contains(t, a.Description, long[:80])
	assert.NotContains(t, a.Description, long[:100])
	// The full headline still rides along in the details.
	assert.Equal(t, long, a.Details.String("headline"))
}
