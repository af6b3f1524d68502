package detector

import (
	"fmt"
	"time"

	"github.com/polysentry/polysentry/internal/events"
)

// NewsImpactDetector forwards headlines relevant enough to move a market.
type NewsImpactDetector struct {
	now func() time.Time
}

const (
	newsMinRelevance   = 0.4
	newsHeadlineMaxLen = 80
)

func NewNewsImpact() *NewsImpactDetector {
	return &NewsImpactDetector{now: time.Now}
}

func (d *NewsImpactDetector) Process(item events.NewsItem) *events.AnomalyDetected {
	if item.Relevance < newsMinRelevance {
		return nil
	}

	headline := item.Headline
	if len(headline) > newsHeadlineMaxLen {
		headline = headline[:newsHeadlineMaxLen]
	}

	return &events.AnomalyDetected{
		Type:        events.AnomalyNewsImpact,
		MarketID:    item.MarketID,
		Description: fmt.Sprintf("News (%s): %s", item.Source, headline),
		Severity:    clampSeverity(item.Relevance),
		Details: events.Details{
			"headline":  item.Headline,
			"source":    item.Source,
			"relevance": item.Relevance,
			events.DetailURL: item.URL,
		},
		Timestamp: d.now(),
	}
}
