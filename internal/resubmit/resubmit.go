// Package resubmit implements the bounded FAK-chase-then-GTD state machine
// that is the heart of the follower: given an initial order that failed or
// underfilled, it escalates through a tier-bounded number of attempts and
// ends every chain as Filled, Aborted, Rejected, or GTDPosted (a resting GTD
// order placed on the final attempt).
package resubmit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"whale-follower/internal/tierpolicy"
	"whale-follower/pkg/types"
)

// Outcome is the terminal state of a ResubmitRequest's chain.
type Outcome string

const (
	Filled          Outcome = "Filled"
	Rejected        Outcome = "Rejected"
	Aborted         Outcome = "Aborted"
	GTDPosted       Outcome = "GTDPosted"
)

// Sentinel errors for the terminal-but-not-exceptional outcomes that the
// caller (order worker / dashboard) may want to distinguish with errors.Is.
var (
	ErrCeilingExceeded = errors.New("resubmit: new price exceeds max_price before the last attempt")
	ErrMaxAttempts     = errors.New("resubmit: exhausted max resubmit attempts")
)

// fullyFilledSlop is the hard-coded "close enough to filled" threshold after
// a partial FAK fill (spec.md §4.4 step 9; its relation to MIN_SHARE_COUNT is
// not specified upstream, so it is kept as its own constant here).
const fullyFilledSlop = 1.0

// Request is the core entity the engine owns for the lifetime of one resubmit
// chain. It is never shared across chains and never mutated concurrently.
type Request struct {
	TokenID           string
	WhalePrice        float64
	FailedPrice       float64
	Size              float64
	WhaleShares       float64
	SideIsBuy         bool
	Attempt           int
	MaxPrice          float64
	CumulativeFilled  float64
	OriginalSize      float64
	IsLive            bool
}

// Submitter is the blocking CLOB collaborator. Implementations must perform
// synchronous HTTP I/O; ProcessChain calls SubmitOrder directly on the
// caller's goroutine (in the engine, a resubmit worker goroutine).
type Submitter interface {
	SubmitOrder(ctx context.Context, order types.UserOrder) (types.OrderResponse, error)
}

// ExpiryPolicy returns the GTD expiration window in seconds, longer when the
// underlying market is not in its live event window (spec.md §6,
// gtd_expiry_secs(is_live)).
type ExpiryPolicy interface {
	GTDExpirySecs(isLive bool) int64
}

// Clock abstracts time for GTD expiration stamping and the small-whale sleep,
// so tests can run the state machine without real delays.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type systemClock struct{}

func (systemClock) Now() time.Time     { return time.Now() }
func (systemClock) Sleep(d time.Duration) { time.Sleep(d) }

// SystemClock is the production Clock.
var SystemClock Clock = systemClock{}

// Config carries the tunables the resubmit engine needs beyond tier policy.
type Config struct {
	PriceIncrement      float64
	TickSize            types.TickSize
	SmallWhaleThreshold float64
	SmallWhaleSleep     time.Duration
	MinShareCount       float64
	MinCashValue        float64
}

// Engine drives one or more resubmit chains. It holds no per-request state;
// a single Engine value may be shared across concurrently running chains.
type Engine struct {
	Submitter Submitter
	Expiry    ExpiryPolicy
	Clock     Clock
	Cfg       Config
	OnOutcome func(req Request, outcome Outcome, err error) // optional, for logging/tradelog
}

// MeetsMinimumThreshold reports whether remainingSize clears the
// configured minimum-order thresholds at the given limit price
// (spec.md §3: remaining_size ≥ max(MIN_SHARE_COUNT, MIN_CASH_VALUE / limit_price)).
func MeetsMinimumThreshold(remainingSize, limitPrice, minShareCount, minCashValue float64) bool {
	if limitPrice <= 0 {
		return false
	}
	threshold := minCashValue / limitPrice
	if minShareCount > threshold {
		threshold = minShareCount
	}
	return remainingSize >= threshold
}

// SeedFromFAKFailure builds the attempt=1 Request for a CLOB non-success
// response or a success with taking_amount=0 (spec.md §4.4).
func SeedFromFAKFailure(tokenID string, whalePrice, initialLimitPrice, requestedSize, whaleShares, maxPrice float64, sideIsBuy, isLive bool) Request {
	return Request{
		TokenID:          tokenID,
		WhalePrice:       whalePrice,
		FailedPrice:      initialLimitPrice,
		Size:             roundMicro(requestedSize),
		WhaleShares:      whaleShares,
		SideIsBuy:        sideIsBuy,
		Attempt:          1,
		MaxPrice:         maxPrice,
		CumulativeFilled: 0,
		OriginalSize:     roundMicro(requestedSize),
		IsLive:           isLive,
	}
}

// SeedFromUnderfill builds the attempt=1 Request for a CLOB success with
// 0 < filled < requested (spec.md §4.4). Returns ok=false if the remainder
// does not clear the minimum-order threshold, in which case the caller must
// treat the fill as final success and not invoke the engine.
func SeedFromUnderfill(tokenID string, whalePrice, initialLimitPrice, requested, filled, whaleShares, maxPrice float64, sideIsBuy, isLive bool, minShareCount, minCashValue float64) (Request, bool) {
	remaining := roundMicro(requested - filled)
	if !MeetsMinimumThreshold(remaining, initialLimitPrice, minShareCount, minCashValue) {
		return Request{}, false
	}
	return Request{
		TokenID:          tokenID,
		WhalePrice:       whalePrice,
		FailedPrice:      initialLimitPrice,
		Size:             remaining,
		WhaleShares:      whaleShares,
		SideIsBuy:        sideIsBuy,
		Attempt:          1,
		MaxPrice:         maxPrice,
		CumulativeFilled: roundMicro(filled),
		OriginalSize:     roundMicro(requested),
		IsLive:           isLive,
	}, true
}

// roundMicro rounds a price or size quantity to 6 decimal "micro-units" and
// back to float64, neutralising representation drift (spec.md §4.4 step 6,
// invariant 10). Idempotent: roundMicro(roundMicro(x)) == roundMicro(x).
func roundMicro(x float64) float64 {
	v, _ := decimal.NewFromFloat(x).Round(6).Float64()
	return v
}

// ProcessChain runs the state machine for req to a terminal outcome,
// iterating in place rather than recursing so arbitrarily long chains do not
// grow the call stack. This is the canonical implementation; RunWorker (in
// worker.go) is a thin channel adapter over the same function, which is how both
// variants named in spec.md §4.4 guarantee identical observable outcomes.
func (e *Engine) ProcessChain(ctx context.Context, req Request) (Outcome, Request, error) {
	for {
		max := tierpolicy.MaxResubmitAttempts(req.WhaleShares)
		isLast := req.Attempt >= max

		increment := 0.0
		if tierpolicy.ShouldIncrementPrice(req.WhaleShares, req.Attempt) {
			increment = e.Cfg.PriceIncrement
		}

		newPrice := req.FailedPrice + increment
		if req.SideIsBuy {
			if newPrice > tierpolicy.MaxPrice {
				newPrice = tierpolicy.MaxPrice
			}
		} else {
			if newPrice < tierpolicy.MinPrice {
				newPrice = tierpolicy.MinPrice
			}
		}
		newPrice = roundMicro(newPrice)

		if !isLast && newPrice > req.MaxPrice {
			e.emit(req, Aborted, ErrCeilingExceeded)
			return Aborted, req, ErrCeilingExceeded
		}

		order := types.UserOrder{
			TokenID:  req.TokenID,
			Price:    newPrice,
			Size:     roundMicro(req.Size),
			Side:     types.BUY,
			TickSize: e.Cfg.TickSize,
		}
		if isLast {
			order.OrderType = types.OrderTypeGTD
			order.Expiration = e.Clock.Now().Unix() + e.Expiry.GTDExpirySecs(req.IsLive)
		} else {
			order.OrderType = types.OrderTypeFAK
		}

		resp, submitErr := e.Submitter.SubmitOrder(ctx, order)

		if isLast {
			if submitErr == nil && resp.Success {
				e.emit(req, GTDPosted, nil)
				return GTDPosted, req, nil
			}
			err := fmt.Errorf("gtd submission failed: %w", coalesce(submitErr, errors.New(resp.ErrorMsg)))
			e.emit(req, Rejected, err)
			return Rejected, req, err
		}

		filledThisAttempt := 0.0
		success := submitErr == nil && resp.Success
		if success {
			filledThisAttempt = ParseFilled(resp.TakingAmount)
		}

		if success && filledThisAttempt > 0 {
			remaining := req.Size - filledThisAttempt
			if remaining <= fullyFilledSlop {
				req.CumulativeFilled = roundMicro(req.CumulativeFilled + filledThisAttempt)
				req.FailedPrice = newPrice
				e.emit(req, Filled, nil)
				return Filled, req, nil
			}
			req.CumulativeFilled = roundMicro(req.CumulativeFilled + filledThisAttempt)
			req.Size = roundMicro(remaining)
			req.FailedPrice = newPrice
			req.Attempt++
			if req.Attempt > max {
				e.emit(req, Rejected, ErrMaxAttempts)
				return Rejected, req, ErrMaxAttempts
			}
			continue
		}

		// FAK failure (non-success, or success with zero fill).
		req.CumulativeFilled = roundMicro(req.CumulativeFilled + filledThisAttempt)
		req.FailedPrice = newPrice
		req.Attempt++
		if req.Attempt > max {
			e.emit(req, Rejected, ErrMaxAttempts)
			return Rejected, req, ErrMaxAttempts
		}
		if req.WhaleShares < e.Cfg.SmallWhaleThreshold {
			e.Clock.Sleep(e.Cfg.SmallWhaleSleep)
		}
	}
}

func (e *Engine) emit(req Request, outcome Outcome, err error) {
	if e.OnOutcome != nil {
		e.OnOutcome(req, outcome, err)
	}
}

func coalesce(err error, fallback error) error {
	if err != nil {
		return err
	}
	return fallback
}
