// Package fairvalue prices binary crypto markets with a driftless log-normal
// model and parses market questions into (symbol, target, direction, expiry).
package fairvalue

import (
	"math"
	"time"
)

const yearDays = 365.25

// Volatility clamp bounds for incoming annualised estimates.
const (
	MinVolatility = 0.10
	MaxVolatility = 2.0
)

// CrossProbability returns P(S_T > K) under a log-normal model with zero
// drift. spot and target are in the same currency, sigma is annualised,
// expiry is measured against now with a 365.25-day year.
//
// At or past expiry the market is effectively decided: 0.98 if spot is
// already at or above target, 0.02 otherwise.
func CrossProbability(spot, target, sigma float64, now, expiry time.Time) float64 {
	years := expiry.Sub(now).Hours() / 24 / yearDays
	return CrossProbabilityT(spot, target, sigma, years)
}

// CrossProbabilityT is CrossProbability with the horizon given in years.
func CrossProbabilityT(spot, target, sigma, years float64) float64 {
	if years <= 0 {
		if spot >= target {
			return 0.98
		}
		return 0.02
	}
	if spot <= 0 || target <= 0 || sigma <= 0 {
		return 0.02
	}

	// d2 = (ln(S/K) - σ²T/2) / (σ√T), drift μ = 0.
	d2 := (math.Log(spot/target) - sigma*sigma*years/2) / (sigma * math.Sqrt(years))
	p := normCDF(d2)

	if p < 0.01 {
		return 0.01
	}
	if p > 0.99 {
		return 0.99
	}
	return p
}

// ClampVolatility bounds an annualised volatility estimate to [0.10, 2.0].
func ClampVolatility(sigma float64) float64 {
	if sigma < MinVolatility {
		return MinVolatility
	}
	if sigma > MaxVolatility {
		return MaxVolatility
	}
	return sigma
}

// Abramowitz & Stegun 26.2.17 error-function approximation, |ε| < 1.5e-7.
const (
	asA1 = 0.254829592
	asA2 = -0.284496736
	asA3 = 1.421413741
	asA4 = -1.453152027
	asA5 = 1.061405429
	asP  = 0.3275911
)

// normCDF is the standard normal CDF Φ(x).
func normCDF(x float64) float64 {
	sign := 1.0
	if x < 0 {
		sign = -1.0
		x = -x
	}
	z := x / math.Sqrt2

	t := 1.0 / (1.0 + asP*z)
	poly := ((((asA5*t+asA4)*t+asA3)*t+asA2)*t + asA1) * t
	erf := 1.0 - poly*math.Exp(-z*z)

	return 0.5 * (1.0 + sign*erf)
}
