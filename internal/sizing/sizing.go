// Package sizing derives the follower's order size from a whale fill.
//
// Money math uses github.com/shopspring/decimal rather than raw floats so the
// two-decimal lot rounding is exact, matching how the rest of this pack
// handles percentage/price arithmetic (see the whale-strategy position sizing
// in the reference pack).
package sizing

import "github.com/shopspring/decimal"

// Type classifies the outcome of calculating a safe order size.
type Type string

const (
	Full     Type = "Full"     // baseline size used unchanged
	Scaled   Type = "Scaled"   // baseline size scaled up by a tier size multiplier above 1
	Minimum  Type = "Minimum"  // baseline size rounds to the minimum threshold
	Rejected Type = "Rejected" // baseline falls short of both minimum thresholds
)

// CalculateSafeSize computes the follower's order size for a whale fill of
// whaleShares at the given limit price, scaled by the tier's size
// multiplier. minShareCount and minCashValue are the configured minimum-order
// thresholds (spec.md §3's MIN_SHARE_COUNT / MIN_CASH_VALUE).
func CalculateSafeSize(whaleShares, price, sizeMultiplier, scalingRatio, minShareCount, minCashValue float64) (float64, Type) {
	baseline := decimal.NewFromFloat(whaleShares).
		Mul(decimal.NewFromFloat(scalingRatio)).
		Mul(decimal.NewFromFloat(sizeMultiplier)).
		Round(2)

	if price <= 0 {
		return 0, Rejected
	}

	minByCash := decimal.NewFromFloat(minCashValue).Div(decimal.NewFromFloat(price))
	minByShares := decimal.NewFromFloat(minShareCount)
	threshold := minByCash
	if minByShares.GreaterThan(threshold) {
		threshold = minByShares
	}

	if baseline.LessThan(threshold) {
		return 0, Rejected
	}

	final, _ := baseline.Float64()
	if baseline.Equal(threshold) {
		return final, Minimum
	}
	if sizeMultiplier > 1.0 {
		return final, Scaled
	}
	return final, Full
}

// Round2 rounds a share or price quantity to exchange lot precision (two
// decimals), matching the rounding step `calculate_safe_size` applies before
// classification.
func Round2(x float64) float64 {
	v, _ := decimal.NewFromFloat(x).Round(2).Float64()
	return v
}
