// Package orderintent composes the initial FAK order for a whale fill,
// combining tier policy, market-cache class buffer, and sizing into a single
// submission-ready intent.
package orderintent

import (
	"whale-follower/internal/sizing"
	"whale-follower/internal/tierpolicy"
	"whale-follower/pkg/types"
)

// ClassBufferSource is the market-metadata cache's contribution to the
// initial limit price (tennis/soccer/ATP tokens get +0.01). Defined here as
// the minimal interface orderintent needs, so it does not import the full
// marketcache package.
type ClassBufferSource interface {
	ClassBuffer(tokenID string) float64
}

// SizingConfig carries the configured sizing knobs (spec.md §6).
type SizingConfig struct {
	ScalingRatio  float64
	MinShareCount float64
	MinCashValue  float64
}

// Intent is the fully-composed initial order plus the bookkeeping the
// resubmit engine needs if this intent's FAK fails or underfills.
type Intent struct {
	TokenID        string
	LimitPrice     float64
	MaxPrice       float64
	Size           float64
	SizeType       sizing.Type
	WhaleShares    float64
	TierParams     tierpolicy.Params
	OriginalSize   float64
}

// Build composes an Intent from a validated whale fill event.
func Build(event types.WhaleFillEvent, classBuf ClassBufferSource, sizingCfg SizingConfig) Intent {
	tp := tierpolicy.TierParams(event.Shares, event.SideIsBuy, event.TokenID)

	classBuffer := 0.0
	if classBuf != nil {
		classBuffer = classBuf.ClassBuffer(event.TokenID)
	}

	limitPrice := event.Price + tp.TierBuffer + classBuffer
	if limitPrice > tierpolicy.MaxPrice {
		limitPrice = tierpolicy.MaxPrice
	}

	maxPrice := limitPrice + tp.ResubmitBuffer
	if maxPrice > tierpolicy.MaxPrice {
		maxPrice = tierpolicy.MaxPrice
	}

	size, sizeType := sizing.CalculateSafeSize(
		event.Shares, limitPrice, tp.SizeMultiplier,
		sizingCfg.ScalingRatio, sizingCfg.MinShareCount, sizingCfg.MinCashValue,
	)
	size = sizing.Round2(size)

	return Intent{
		TokenID:      event.TokenID,
		LimitPrice:   limitPrice,
		MaxPrice:     maxPrice,
		Size:         size,
		SizeType:     sizeType,
		WhaleShares:  event.Shares,
		TierParams:   tp,
		OriginalSize: size,
	}
}

// InitialOrder renders the Intent as the UserOrder the CLOB client submits:
// always an FAK at LimitPrice for Size.
func (i Intent) InitialOrder(tick types.TickSize) types.UserOrder {
	return types.UserOrder{
		TokenID:   i.TokenID,
		Price:     i.LimitPrice,
		Size:      i.Size,
		Side:      types.BUY,
		OrderType: types.OrderTypeFAK,
		TickSize:  tick,
	}
}
