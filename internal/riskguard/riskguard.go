// Package riskguard is the external collaborator the order worker consults
// before every initial submission. It is narrowed from a full portfolio risk
// manager to a single gating call — this follower does not reconcile
// positions or track PnL, it only decides allow/deny/adjust for one intent
// at a time — but it keeps the exposure-tracking and kill-switch discipline
// a standalone goroutine needs to stay consistent under concurrent callers.
package riskguard

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"whale-follower/internal/config"
)

// Decision is the risk guard's verdict on one order intent.
type Decision int

const (
	Allow Decision = iota
	Deny
	AdjustSize
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "Allow"
	case Deny:
		return "Deny"
	case AdjustSize:
		return "AdjustSize"
	default:
		return "Unknown"
	}
}

// Intent is the minimal shape the guard needs to evaluate an order: how much
// USD it would commit, which token it targets, and the price it would rest
// at if the book needs consulting for depth. The order worker computes
// NotionalUSD as price*size before calling Evaluate.
type Intent struct {
	TokenID     string
	NotionalUSD float64
	LimitPrice  float64
}

// Result carries the verdict and, for AdjustSize, the USD headroom the
// caller should scale its size down to.
type Result struct {
	Decision   Decision
	AllowedUSD float64
	Reason     string
}

// BookReader is the minimal order-book lookup the guard uses for liquidity
// depth checks. A ParseError/NetworkError here degrades to "no liquidity
// known" rather than aborting the submission (spec.md §7).
type BookReader interface {
	// BestDepthUSD returns the USD value resting at or better than price. It
	// takes no side; marketcache.DepthReader reads the ask side.
	// Implementations should apply their own BOOK_REQ_TIMEOUT.
	BestDepthUSD(ctx context.Context, tokenID string, price float64) (float64, error)
}

// Guard tracks aggregate exposure and a kill switch across concurrently
// evaluated intents, adapted from a full risk manager's exposure bookkeeping
// but narrowed to the single Evaluate call this follower needs.
type Guard struct {
	cfg         config.RiskConfig
	bookTimeout time.Duration
	logger      *slog.Logger
	books       BookReader

	mu              sync.Mutex
	exposureByToken map[string]float64
	totalExposure   float64
	killSwitchUntil time.Time
}

// New creates a risk guard. bookTimeout bounds every depth lookup Evaluate
// makes against books (spec.md §5/§6's BOOK_REQ_TIMEOUT).
func New(cfg config.RiskConfig, bookTimeout time.Duration, books BookReader, logger *slog.Logger) *Guard {
	return &Guard{
		cfg:             cfg,
		bookTimeout:     bookTimeout,
		logger:          logger.With("component", "riskguard"),
		books:           books,
		exposureByToken: make(map[string]float64),
	}
}

// Evaluate decides whether an intent may proceed. Called once per whale
// event, before the initial FAK submission, with the intent's token, notional
// and limit price (liquidity depth is looked up here through the BookReader);
// a Deny is terminal (no resubmit). The depth check
// and the exposure reservation happen under the same lock so two concurrent
// intents against the same book can never both reserve against depth that
// only supports one of them.
func (g *Guard) Evaluate(ctx context.Context, intent Intent) Result {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.killSwitchActiveLocked() {
		return Result{Decision: Deny, Reason: "kill switch active"}
	}

	perTokenHeadroom := g.cfg.MaxPositionPerMarket - g.exposureByToken[intent.TokenID]
	globalHeadroom := g.cfg.MaxGlobalExposure - g.totalExposure

	headroom := perTokenHeadroom
	if globalHeadroom < headroom {
		headroom = globalHeadroom
	}
	if headroom <= 0 {
		return Result{Decision: Deny, Reason: "exposure limit exhausted"}
	}

	decision := Allow
	allowedUSD := intent.NotionalUSD
	reason := ""
	if intent.NotionalUSD > headroom {
		decision = AdjustSize
		allowedUSD = headroom
		reason = "intent exceeds remaining headroom"
	}

	if intent.LimitPrice > 0 && !g.depthOK(ctx, intent.TokenID, intent.LimitPrice, allowedUSD) {
		return Result{Decision: Deny, Reason: "insufficient book depth"}
	}

	g.exposureByToken[intent.TokenID] += allowedUSD
	g.totalExposure += allowedUSD
	return Result{Decision: decision, AllowedUSD: allowedUSD, Reason: reason}
}

// Release gives back exposure booked by Evaluate once a chain terminates
// without consuming the full notional (abort, reject, or partial fill below
// what was reserved). Not idempotent: every call subtracts usd from both the
// per-token and the global exposure.
func (g *Guard) Release(tokenID string, usd float64) {
	if usd <= 0 {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.exposureByToken[tokenID] -= usd
	g.totalExposure -= usd
}

// TriggerKillSwitch activates the cooldown, e.g. after detecting a burst of
// CLOB rejections upstream. Exposed for the dashboard/ops surface.
func (g *Guard) TriggerKillSwitch(reason string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.killSwitchUntil = time.Now().Add(g.cfg.CooldownAfterKill)
	g.logger.Error("KILL SWITCH", "reason", reason, "cooldown_until", g.killSwitchUntil)
}

func (g *Guard) killSwitchActiveLocked() bool {
	return time.Now().Before(g.killSwitchUntil)
}

// Snapshot reports the guard's current aggregate state for the dashboard.
type Snapshot struct {
	TotalExposure     float64
	MaxGlobalExposure float64
	KillSwitchActive  bool
	KillSwitchUntil   time.Time
}

// Snapshot returns a point-in-time view of guard state.
func (g *Guard) Snapshot() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	return Snapshot{
		TotalExposure:     g.totalExposure,
		MaxGlobalExposure: g.cfg.MaxGlobalExposure,
		KillSwitchActive:  g.killSwitchActiveLocked(),
		KillSwitchUntil:   g.killSwitchUntil,
	}
}

// DepthOK reports whether the configured book reader sees enough resting
// liquidity at price to justify the intent's size. Exported for tests and
// standalone callers; Evaluate calls depthOK directly since it already
// holds g.mu.
func (g *Guard) DepthOK(ctx context.Context, tokenID string, price, minDepthUSD float64) bool {
	return g.depthOK(ctx, tokenID, price, minDepthUSD)
}

// depthOK looks up resting liquidity at price, bounded by bookTimeout.
// Parse/network failures degrade to true (unknown depth does not block a
// submission), per spec.md §7's ParseError/NetworkError handling.
func (g *Guard) depthOK(ctx context.Context, tokenID string, price, minDepthUSD float64) bool {
	if g.books == nil {
		return true
	}
	bctx, cancel := context.WithTimeout(ctx, g.bookTimeout)
	defer cancel()
	depth, err := g.books.BestDepthUSD(bctx, tokenID, price)
	if err != nil {
		g.logger.Warn("book depth lookup failed, degrading to allow", "token_id", tokenID, "error", err)
		return true
	}
	return depth >= minDepthUSD
}
