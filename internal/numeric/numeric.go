// Package numeric coerces untrusted numeric input into finite, bounded
// values. Every price, amount, and percentage computed by the engine routes
// through these helpers so NaN and Inf never propagate into stored state or
// exit decisions.
package numeric

import "math"

const (
	// slippageEpsilon is the smallest slippage fraction considered meaningful.
	slippageEpsilon = 0.0001
	// slippageMax is the largest slippage fraction we will ever apply (50%).
	slippageMax = 0.5
)

// SafeNumber returns value if it is finite, fallback otherwise.
func SafeNumber(value, fallback float64) float64 {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return fallback
	}
	return value
}

// SafeDivide returns numerator/denominator, or fallback when the denominator
// is zero or either operand is non-finite.
func SafeDivide(numerator, denominator, fallback float64) float64 {
	if denominator == 0 {
		return fallback
	}
	if math.IsNaN(numerator) || math.IsInf(numerator, 0) ||
		math.IsNaN(denominator) || math.IsInf(denominator, 0) {
		return fallback
	}
	return SafeNumber(numerator/denominator, fallback)
}

// SafePercent returns (part-whole)/whole*100 bounded to finite values, with
// fallback when whole is zero or inputs are non-finite.
func SafePercent(part, whole, fallback float64) float64 {
	return SafeNumber(SafeDivide(part-whole, whole, fallback/100)*100, fallback)
}

// ClampSlippage validates a slippage fraction. Values inside
// (epsilon, max] pass through, values above the max clamp to the max, and
// everything else (non-positive, sub-epsilon, non-finite) yields def rather
// than a clamp to a boundary the caller never asked for.
func ClampSlippage(value, def float64) float64 {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return def
	}
	if value > slippageMax {
		return slippageMax
	}
	if value <= slippageEpsilon {
		return def
	}
	return value
}
