package detector

import (
	"fmt"
	"math"
	"time"

	"github.com/polysentry/polysentry/internal/events"
)

// PriceSpikeDetector turns large single-interval YES moves into one of two
// entry strategies: buying the dip on a crash (reversal) or riding a cheap
// breakout (momentum).
type PriceSpikeDetector struct {
	now func() time.Time
}

const (
	priceSpikeMinChangePct = 15.0
	priceSpikeSeverityScale = 20.0

	reversalMinROI   = 0.20
	reversalBounce   = 0.5
	reversalZoneHigh = 0.70

	momentumMinROI   = 0.50
	momentumZoneLow  = 0.10
	momentumZoneHigh = 0.60
)

func NewPriceSpike() *PriceSpikeDetector {
	return &PriceSpikeDetector{now: time.Now}
}

// Process returns an anomaly when the move is large enough and the post-move
// price leaves an attractive entry, nil otherwise.
func (d *PriceSpikeDetector) Process(pc events.PriceChange) *events.AnomalyDetected {
	changePct := math.Abs(pc.ChangePercent)
	if changePct < priceSpikeMinChangePct {
		return nil
	}

	oldP := pc.OldPrice.InexactFloat64()
	newP := pc.NewPrice.InexactFloat64()
	severity := clampSeverity(changePct / priceSpikeSeverityScale)

	if newP < oldP {
		// Reversal: buy the crashed YES expecting half the drop back.
		if newP < zoneMin || newP > reversalZoneHigh {
			return nil
		}
		drop := oldP - newP
		bounce := reversalBounce * drop
		roi := bounce / newP
		if roi < reversalMinROI {
			return nil
		}
		return &events.AnomalyDetected{
			Type:     events.AnomalyPriceSpike,
			MarketID: pc.MarketID,
			Description: fmt.Sprintf("YES crashed %.2f → %.2f (%.1f%%), reversal entry",
				oldP, newP, pc.ChangePercent),
			Severity: severity,
			Details: events.Details{
				events.DetailSignal:      events.SignalBuyYes,
				events.DetailBuyPrice:    newP,
				events.DetailTargetPrice: newP + bounce,
				events.DetailExpectedROI: roi,
				events.DetailQuestion:    pc.Question,
				"strategy":               "reversal",
				"changePercent":          pc.ChangePercent,
			},
			Timestamp: d.now(),
		}
	}

	// Momentum: a sharp up-move from a still-cheap base.
	if newP < momentumZoneLow || newP > momentumZoneHigh {
		return nil
	}
	roi := maxROI(newP)
	if roi < momentumMinROI {
		return nil
	}
	return &events.AnomalyDetected{
		Type:     events.AnomalyPriceSpike,
		MarketID: pc.MarketID,
		Description: fmt.Sprintf("YES surged %.2f → %.2f (+%.1f%%), momentum entry",
			oldP, newP, pc.ChangePercent),
		Severity: severity,
		Details: events.Details{
			events.DetailSignal:      events.SignalBuyYes,
			events.DetailBuyPrice:    newP,
			events.DetailExpectedROI: roi,
			events.DetailQuestion:    pc.Question,
			"strategy":               "momentum",
			"changePercent":          pc.ChangePercent,
		},
		Timestamp: d.now(),
	}
}
