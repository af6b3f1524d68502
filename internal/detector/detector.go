// Package detector holds the per-stream stateful anomaly detectors. Each
// detector exposes a single Process method that first evaluates the incoming
// event against the pre-update state, then folds the event into the running
// baselines, so callers cannot reorder detect and observe.
package detector

// Value zone shared by the directional strategies: the band in which the
// bought side's reward-to-risk is considered attractive.
const (
	zoneMin = 0.08
	zoneMax = 0.70
)

// clampSeverity normalises a raw ratio into [0,1].
func clampSeverity(raw float64) float64 {
	if raw < 0 {
		return 0
	}
	if raw > 1 {
		return 1
	}
	return raw
}

// inZone reports whether a buy price sits inside the standard value zone.
func inZone(price float64) bool {
	return price >= zoneMin && price <= zoneMax
}

// maxROI is the return of a binary share bought at price and resolving at $1.
func maxROI(price float64) float64 {
	if price <= 0 {
		return 0
	}
	return (1 - price) / price
}
