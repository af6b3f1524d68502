package detector

import (
	"fmt"
	"sync"
	"time"

	"github.com/polysentry/polysentry/internal/events"
)

// VolumeSpikeDetector keeps a per-market EWMA of 24h volume and flags
// snapshots running well ahead of the baseline. Comparison uses the
// pre-update average; the first observation only seeds it.
type VolumeSpikeDetector struct {
	mu  sync.Mutex
	avg map[string]float64
	now func() time.Time
}

const (
	volumeAlpha         = 0.1
	volumeSpikeMultiple = 3.0
	volumeSeverityScale = 10.0
)

func NewVolumeSpike() *VolumeSpikeDetector {
	return &VolumeSpikeDetector{avg: make(map[string]float64), now: time.Now}
}

func (d *VolumeSpikeDetector) Process(snap events.MarketSnapshot) *events.AnomalyDetected {
	x := snap.Volume24h.InexactFloat64()

	d.mu.Lock()
	defer d.mu.Unlock()

	avg, seen := d.avg[snap.MarketID]
	if !seen || avg == 0 {
		d.avg[snap.MarketID] = x
		return nil
	}

	var anomaly *events.AnomalyDetected
	multiplier := x / avg
	if multiplier >= volumeSpikeMultiple {
		anomaly = &events.AnomalyDetected{
			Type:     events.AnomalyVolumeSpike,
			MarketID: snap.MarketID,
			Description: fmt.Sprintf("24h volume $%.0f is %.1fx the running average $%.0f",
				x, multiplier, avg),
			Severity: clampSeverity(multiplier / volumeSeverityScale),
			Details: events.Details{
				"volume24h":        x,
				"averageVolume":    avg,
				"volumeMultiplier": multiplier,
				events.DetailQuestion: snap.Question,
			},
			Timestamp: d.now(),
		}
	}

	d.avg[snap.MarketID] = (1-volumeAlpha)*avg + volumeAlpha*x
	return anomaly
}
