package detector

import (
	"fmt"
	"math"
	"time"

	"github.com/polysentry/polysentry/internal/events"
)

// MarketDivergenceDetector covers the snapshot-level sanity checks: markets
// drifting into near-certain territory, YES/NO sums breaking the ≈1.0
// invariant, and related markets quoting materially different odds.
type MarketDivergenceDetector struct {
	now func() time.Time
}

const (
	nearResolutionHigh     = 0.95
	nearResolutionLow      = 0.05
	nearResolutionMinSev   = 0.3
	priceSumMinDeviation   = 0.10
	priceSumSeverityScale  = 0.30
	crossMarketMinGap      = 0.10
)

func NewMarketDivergence() *MarketDivergenceDetector {
	return &MarketDivergenceDetector{now: time.Now}
}

// CheckNearResolution fires when a market trades as near-decided.
func (d *MarketDivergenceDetector) CheckNearResolution(snap events.MarketSnapshot) *events.AnomalyDetected {
	yes := snap.YesPrice.InexactFloat64()
	if yes < nearResolutionHigh && yes > nearResolutionLow {
		return nil
	}

	extreme := math.Max(yes, 1-yes)
	severity := math.Max(nearResolutionMinSev,
		clampSeverity((extreme-nearResolutionHigh)/(1-nearResolutionHigh)))

	side := "YES"
	if yes <= nearResolutionLow {
		side = "NO"
	}
	return &events.AnomalyDetected{
		Type:        events.AnomalyNearResolution,
		MarketID:    snap.MarketID,
		Description: fmt.Sprintf("Market near resolution: %s at %.2f", side, extreme),
		Severity:    severity,
		Details: events.Details{
			"yesPrice":            yes,
			"leadingSide":         side,
			events.DetailQuestion: snap.Question,
		},
		Timestamp: d.now(),
	}
}

// CheckPriceSum fires when YES+NO drifts away from 1.0.
func (d *MarketDivergenceDetector) CheckPriceSum(snap events.MarketSnapshot) *events.AnomalyDetected {
	sum := snap.YesPrice.Add(snap.NoPrice).InexactFloat64()
	deviation := math.Abs(sum - 1)
	if deviation < priceSumMinDeviation {
		return nil
	}
	return &events.AnomalyDetected{
		Type:        events.AnomalyMarketDivergence,
		MarketID:    snap.MarketID,
		Description: fmt.Sprintf("YES+NO = %.2f, off by %.2f", sum, deviation),
		Severity:    clampSeverity(deviation / priceSumSeverityScale),
		Details: events.Details{
			"priceSum":            sum,
			"deviation":           deviation,
			events.DetailQuestion: snap.Question,
		},
		Timestamp: d.now(),
	}
}

// CompareMarkets fires when two related markets quote YES prices at least
// 0.10 apart.
func (d *MarketDivergenceDetector) CompareMarkets(a, b events.MarketSnapshot) *events.AnomalyDetected {
	gap := math.Abs(a.YesPrice.Sub(b.YesPrice).InexactFloat64())
	if gap < crossMarketMinGap {
		return nil
	}
	return &events.AnomalyDetected{
		Type:     events.AnomalyMarketDivergence,
		MarketID: a.MarketID,
		Description: fmt.Sprintf("Related markets %.2f apart (%s vs %s)",
			gap, a.MarketID, b.MarketID),
		Severity: clampSeverity(gap / priceSumSeverityScale),
		Details: events.Details{
			"relatedMarketId": b.MarketID,
			"priceGap":        gap,
		},
		Timestamp: d.now(),
	}
}
