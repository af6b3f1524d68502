package events

// Details carries the heterogeneous per-anomaly payload. It survives a JSON
// round trip through the broker, so numeric values read back as float64;
// the accessors below normalise that.
type Details map[string]any

// Detail keys used across detectors, the quality enricher and the alerter.
const (
	DetailSignal       = "signal"
	DetailQualityScore = "qualityScore"
	DetailBreakdown    = "breakdown"
	DetailMarketType   = "marketType"
	DetailHoursToRes   = "hoursToResolution"
	DetailCatalyst     = "catalyst"
	DetailBuyPrice     = "buyPrice"
	DetailTargetPrice  = "targetPrice"
	DetailExpectedROI  = "expectedRoi"
	DetailQuestion     = "question"
	DetailURL          = "url"
)

// Float reads a numeric detail, accepting the types JSON decoding produces.
// Missing or non-numeric values read as 0.
func (d Details) Float(key string) float64 {
	f, _ := d.FloatOK(key)
	return f
}

// FloatOK is Float with an explicit presence flag.
func (d Details) FloatOK(key string) (float64, bool) {
	v, ok := d[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// String reads a string detail; missing or non-string values read as "".
func (d Details) String(key string) string {
	if v, ok := d[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// Bool reads a boolean detail.
func (d Details) Bool(key string) bool {
	if v, ok := d[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return false
}
