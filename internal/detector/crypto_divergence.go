package detector

import (
	"fmt"
	"math"
	"time"

	"github.com/polysentry/polysentry/internal/events"
	"github.com/polysentry/polysentry/internal/fairvalue"
	"github.com/polysentry/polysentry/internal/marketcache"
)

// CryptoDivergenceDetector compares a crypto price market's YES quote against
// the model fair value implied by the underlying spot and its volatility.
type CryptoDivergenceDetector struct {
	now func() time.Time
}

const (
	cryptoMinYesPrice   = 0.05
	cryptoMaxYesPrice   = 0.90
	cryptoMinDaysLeft   = 2.0
	cryptoMinEdge       = 0.05
	cryptoStrongEdge    = 0.10
	cryptoMinROI        = 0.15
	cryptoSeverityScale = 0.15
)

func NewCryptoDivergence() *CryptoDivergenceDetector {
	return &CryptoDivergenceDetector{now: time.Now}
}

// Process evaluates one cached market against a fresh spot update.
func (d *CryptoDivergenceDetector) Process(price events.CryptoPrice, entry marketcache.CryptoMarket) *events.AnomalyDetected {
	match := entry.Match
	if match.ExpiryDate == nil {
		return nil
	}

	now := d.now()
	daysLeft := match.ExpiryDate.Sub(now).Hours() / 24
	if daysLeft < cryptoMinDaysLeft {
		return nil
	}

	yes := entry.Snapshot.YesPrice.InexactFloat64()
	if yes < cryptoMinYesPrice || yes > cryptoMaxYesPrice {
		return nil
	}

	sigma := fairvalue.ClampVolatility(price.AnnualVolatility)
	spot := price.CurrentPrice.InexactFloat64()
	target := match.TargetPrice.InexactFloat64()

	fair := fairvalue.CrossProbability(spot, target, sigma, now, *match.ExpiryDate)
	if !match.IsAbove {
		fair = 1 - fair
	}

	edge := fair - yes
	absEdge := math.Abs(edge)
	if absEdge < cryptoMinEdge {
		return nil
	}

	signal := events.SignalBuyYes
	buyPrice := yes
	if edge < 0 {
		signal = events.SignalBuyNo
		buyPrice = 1 - yes
	}
	roi := absEdge / buyPrice
	if roi < cryptoMinROI {
		return nil
	}

	dir := "above"
	if !match.IsAbove {
		dir = "below"
	}
	return &events.AnomalyDetected{
		Type:     events.AnomalyArbitrageOpportunity,
		MarketID: entry.Snapshot.MarketID,
		Description: fmt.Sprintf("%s %s $%.0f: fair %.3f vs market %.3f (edge %+.3f)",
			match.Symbol, dir, target, fair, yes, edge),
		Severity: clampSeverity(absEdge / cryptoSeverityScale),
		Details: events.Details{
			events.DetailSignal:      signal,
			events.DetailBuyPrice:    buyPrice,
			events.DetailExpectedROI: roi,
			events.DetailQuestion:    entry.Snapshot.Question,
			"symbol":                 match.Symbol,
			"spotPrice":              spot,
			"targetPrice":            target,
			"fairValue":              fair,
			"marketPrice":            yes,
			"edge":                   edge,
			"volatility":             sigma,
			"daysToExpiry":           daysLeft,
			"strongEdge":             absEdge >= cryptoStrongEdge,
		},
		Timestamp: d.now(),
	}
}
