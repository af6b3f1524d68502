package fairvalue

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormCDFReferencePoints(t *testing.T) {
	cases := []struct {
		x    float64
		want float64
	}{
		{0, 0.5},
		{1, 0.8413},
		{-1, 0.1587},
		{1.96, 0.9750},
		{-1.96, 0.0250},
		{3, 0.99865},
	}
	for _, c := range cases {
		assert.InDelta(t, c.want, normCDF(c.x), 0.0005, "x=%v", c.x)
	}
}

func TestCrossProbabilityAtExpiry(t *testing.T) {
	assert.Equal(t, 0.98, CrossProbabilityT(110000, 100000, 0.5, 0))
	assert.Equal(t, 0.98, CrossProbabilityT(100000, 100000, 0.5, -1))
	assert.Equal(t, 0.02, CrossProbabilityT(90000, 100000, 0.5, 0))
}

func TestCrossProbabilityBounds(t *testing.T) {
	// Deep in/out of the money still stays inside [0.01, 0.99].
	assert.Equal(t, 0.99, CrossProbabilityT(200000, 1000, 0.2, 0.1))
	assert.Equal(t, 0.01, CrossProbabilityT(1000, 200000, 0.2, 0.1))
}

func TestCrossProbabilityKnownValue(t *testing.T) {
	// S=108000, K=110000, σ=0.65, T=60/365.25:
	// d2 = (ln(108/110) - 0.65²·T/2)/(0.65·√T) ≈ -0.2014, Φ(d2) ≈ 0.4202.
	years := 60.0 / 365.25
	p := CrossProbabilityT(108000, 110000, 0.65, years)
	assert.InDelta(t, 0.4202, p, 0.001)
}

func TestCrossProbabilityMonotonicInSpot(t *testing.T) {
	years := 30.0 / 365.25
	prev := 0.0
	for spot := 80000.0; spot <= 140000; spot += 5000 {
		p := CrossProbabilityT(spot, 110000, 0.6, years)
		assert.GreaterOrEqual(t, p, prev)
		prev = p
	}
}

func TestCrossProbabilityATMNearHalf(t *testing.T) {
	// At the money with small σ²T/2 drag, probability sits just under 0.5.
	p := CrossProbabilityT(100000, 100000, 0.3, 7.0/365.25)
	assert.Less(t, p, 0.5)
	assert.Greater(t, p, 0.45)
}

func TestClampVolatility(t *testing.T) {
	assert.Equal(t, 0.10, ClampVolatility(0.01))
	assert.Equal(t, 2.0, ClampVolatility(5))
	assert.Equal(t, 0.65, ClampVolatility(0.65))
}

func TestNormCDFSymmetry(t *testing.T) {
	for _, x := range []float64{0.1, 0.7, 1.3, 2.2} {
		assert.InDelta(t, 1.0, normCDF(x)+normCDF(-x), 1e-9)
	}
	assert.False(t, math.IsNaN(normCDF(40)))
}
