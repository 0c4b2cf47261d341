package numeric

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSafeNumber(t *testing.T) {
	assert.Equal(t, 1.5, SafeNumber(1.5, 0), "finite values pass through")
	assert.Equal(t, -3.0, SafeNumber(-3.0, 0), "negative finite values pass through")
	assert.Equal(t, 7.0, SafeNumber(math.NaN(), 7.0), "NaN yields fallback")
	assert.Equal(t, 7.0, SafeNumber(math.Inf(1), 7.0), "+Inf yields fallback")
	assert.Equal(t, 7.0, SafeNumber(math.Inf(-1), 7.0), "-Inf yields fallback")
}

func TestSafeDivide(t *testing.T) {
	assert.Equal(t, 2.0, SafeDivide(10, 5, 0), "normal division")
	assert.Equal(t, 9.0, SafeDivide(10, 0, 9.0), "zero denominator yields fallback")
	assert.Equal(t, 9.0, SafeDivide(math.NaN(), 5, 9.0), "NaN numerator yields fallback")
	assert.Equal(t, 9.0, SafeDivide(10, math.Inf(1), 9.0), "Inf denominator yields fallback")
	assert.Equal(t, 9.0, SafeDivide(math.Inf(1), math.Inf(1), 9.0), "Inf/Inf yields fallback")
}

func TestSafePercent(t *testing.T) {
	assert.InDelta(t, 110.0, SafePercent(2.1, 1.0, 0), 1e-9, "+110% move")
	assert.InDelta(t, -20.0, SafePercent(0.8, 1.0, 0), 1e-9, "-20% move")
	assert.Equal(t, 0.0, SafePercent(1.0, 0, 0), "zero base yields fallback")
	assert.Equal(t, 0.0, SafePercent(math.NaN(), 1.0, 0), "NaN part yields fallback")
}

func TestClampSlippage(t *testing.T) {
	assert.Equal(t, 0.05, ClampSlippage(0.05, 0.01), "in-range value passes through")
	assert.Equal(t, 0.5, ClampSlippage(0.9, 0.01), "above max clamps to max")
	assert.Equal(t, 0.01, ClampSlippage(0, 0.01), "zero yields default, not a boundary clamp")
	assert.Equal(t, 0.01, ClampSlippage(-0.2, 0.01), "negative yields default")
	assert.Equal(t, 0.01, ClampSlippage(0.00005, 0.01), "sub-epsilon yields default")
	assert.Equal(t, 0.01, ClampSlippage(math.NaN(), 0.01), "NaN yields default")
	assert.Equal(t, 0.01, ClampSlippage(math.Inf(1), 0.01), "Inf yields default")
}
