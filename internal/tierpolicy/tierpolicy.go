// Package tierpolicy derives per-whale resubmit tuning from share count.
//
// The two-tier cliff at 4000 whale shares separates "retail noise" (no
// chase, no buffer) from "size trades worth chasing one tick" (chase once,
// one-tick ceiling). Every function here is pure and side-effect free so the
// resubmit engine can call it synchronously without suspension.
package tierpolicy

const (
	largeWhaleThreshold = 4000.0

	// RESUBMIT_PRICE_INCREMENT: a single chase tick.
	PriceIncrement = 0.01

	// Absolute price bounds shared by every tier.
	MinPrice = 0.01
	MaxPrice = 0.99
)

// Action is the initial order action a tier policy prescribes. GTD is never
// the initial action — it is reserved for the resubmit engine's last attempt.
type Action string

const ActionFAK Action = "FAK"

// Params is the full set of tier-derived tuning for one whale fill.
type Params struct {
	TierBuffer     float64
	ResubmitBuffer float64
	MaxAttempts    int
	SizeMultiplier float64
	Action         Action
}

// TierParams returns the tuning for a whale fill of the given share count.
// side_is_buy and token_id are accepted to match the external contract
// (spec.md §4.1) but do not affect the table in this core: sell-side and
// per-token tiering are not exercised here.
func TierParams(whaleShares float64, sideIsBuy bool, tokenID string) Params {
	if whaleShares >= largeWhaleThreshold {
		return Params{
			TierBuffer:     0.01,
			ResubmitBuffer: 0.01,
			MaxAttempts:    5,
			SizeMultiplier: 1.25,
			Action:         ActionFAK,
		}
	}
	return Params{
		TierBuffer:     0.00,
		ResubmitBuffer: 0.00,
		MaxAttempts:    4,
		SizeMultiplier: 1.00,
		Action:         ActionFAK,
	}
}

// ShouldIncrementPrice encodes the chase rule: only large whales chase, and
// only on their very first resubmit attempt.
func ShouldIncrementPrice(whaleShares float64, attempt int) bool {
	return whaleShares >= largeWhaleThreshold && attempt == 1
}

// MaxResubmitAttempts returns the total FAK+GTD attempt budget for a whale
// fill of the given share count.
func MaxResubmitAttempts(whaleShares float64) int {
	return TierParams(whaleShares, true, "").MaxAttempts
}

// ResubmitMaxBuffer returns the resubmit_buffer component for a whale fill
// of the given share count (added on top of the initial limit, which already
// includes the class buffer, to form max_price before the 0.99 absolute cap).
func ResubmitMaxBuffer(whaleShares float64) float64 {
	return TierParams(whaleShares, true, "").ResubmitBuffer
}
