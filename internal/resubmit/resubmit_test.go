package resubmit

import (
	"context"
	"testing"
	"time"

	"whale-follower/pkg/types"
)

// scriptedSubmitter replays a fixed sequence of responses, one per call, and
// records every order it was asked to submit.
type scriptedSubmitter struct {
	responses []types.OrderResponse
	calls     []types.UserOrder
	i         int
}

func (s *scriptedSubmitter) SubmitOrder(ctx context.Context, order types.UserOrder) (types.OrderResponse, error) {
	s.calls = append(s.calls, order)
	if s.i >= len(s.responses) {
		return types.OrderResponse{Success: false, ErrorMsg: "FAK order not filled"}, nil
	}
	resp := s.responses[s.i]
	s.i++
	return resp, nil
}

type fixedExpiry struct{ live, nonLive int64 }

func (f fixedExpiry) GTDExpirySecs(isLive bool) int64 {
	if isLive {
		return f.live
	}
	return f.nonLive
}

// noSleepClock never actually sleeps, so tests run instantly.
type noSleepClock struct{ t time.Time }

func (c noSleepClock) Now() time.Time          { return c.t }
func (c noSleepClock) Sleep(d time.Duration)   {}

func testEngine(sub *scriptedSubmitter) *Engine {
	return &Engine{
		Submitter: sub,
		Expiry:    fixedExpiry{live: 30, nonLive: 300},
		Clock:     noSleepClock{t: time.Unix(1700000000, 0)},
		Cfg: Config{
			PriceIncrement:      0.01,
			TickSize:            types.Tick01,
			SmallWhaleThreshold: 1000,
			SmallWhaleSleep:     50 * time.Millisecond,
			MinShareCount:       5,
			MinCashValue:        1,
		},
	}
}

func fail() types.OrderResponse { return types.OrderResponse{Success: false, ErrorMsg: "FAK order not filled"} }
func gtdOK() types.OrderResponse { return types.OrderResponse{Success: true, TakingAmount: "0"} }

// S1 — Large whale full chase.
func TestProcessChain_S1_LargeWhaleFullChase(t *testing.T) {
	t.Parallel()

	sub := &scriptedSubmitter{responses: []types.OrderResponse{fail(), fail(), fail(), fail(), gtdOK()}}
	e := testEngine(sub)
	req := SeedFromFAKFailure("tok", 0.50, 0.51, 100, 10000, 0.52, true, false)

	outcome, _, _ := e.ProcessChain(context.Background(), req)

	if outcome != GTDPosted {
		t.Fatalf("outcome = %v, want GTDPosted", outcome)
	}
	if len(sub.calls) != 5 {
		t.Fatalf("submissions = %d, want 5", len(sub.calls))
	}
	wantPrices := []float64{0.52, 0.52, 0.52, 0.52, 0.52}
	for i, want := range wantPrices {
		if sub.calls[i].Price != want {
			t.Errorf("call[%d].Price = %v, want %v", i, sub.calls[i].Price, want)
		}
	}
	if sub.calls[4].OrderType != types.OrderTypeGTD {
		t.Errorf("final order type = %v, want GTD", sub.calls[4].OrderType)
	}
}

// S2 — Sub-4000 whale, no chase.
func TestProcessChain_S2_SmallWhaleNoChase(t *testing.T) {
	t.Parallel()

	sub := &scriptedSubmitter{responses: []types.OrderResponse{fail(), fail(), fail(), gtdOK()}}
	e := testEngine(sub)
	req := SeedFromFAKFailure("tok", 0.50, 0.50, 20, 800, 0.50, true, false)

	outcome, _, _ := e.ProcessChain(context.Background(), req)

	if outcome != GTDPosted {
		t.Fatalf("outcome = %v, want GTDPosted", outcome)
	}
	if len(sub.calls) != 4 {
		t.Fatalf("submissions = %d, want 4", len(sub.calls))
	}
	for i, call := range sub.calls {
		if call.Price != 0.50 {
			t.Errorf("call[%d].Price = %v, want 0.50", i, call.Price)
		}
	}
}

// S3 — Underfill chain.
func TestProcessChain_S3_UnderfillChain(t *testing.T) {
	t.Parallel()

	req, ok := SeedFromUnderfill("tok", 0.50, 0.50, 100, 60, 10000, 0.52, true, false, 5, 1)
	if !ok {
		t.Fatal("expected seed to pass minimum threshold")
	}
	if req.Size != 40 {
		t.Fatalf("seeded size = %v, want 40", req.Size)
	}

	req2, ok := SeedFromUnderfill("tok", 0.50, 0.51, 40, 25, 10000, 0.52, true, false, 1, 1)
	if !ok {
		t.Fatal("expected second seed to pass minimum threshold")
	}
	if req2.Size != 15 {
		t.Fatalf("seeded size = %v, want 15", req2.Size)
	}

	if MeetsMinimumThreshold(1, 0.52, 1, 1) {
		t.Error("remainder of 1 at price 0.52 should fail the minimum-cash threshold (1 < 1/0.52)")
	}
}

// S4 — Ceiling abort.
func TestProcessChain_S4_CeilingAbort(t *testing.T) {
	t.Parallel()

	sub := &scriptedSubmitter{}
	e := testEngine(sub)
	req := Request{
		TokenID: "tok", FailedPrice: 0.53, MaxPrice: 0.53, Size: 50,
		WhaleShares: 8000, SideIsBuy: true, Attempt: 1, OriginalSize: 50,
	}

	outcome, _, err := e.ProcessChain(context.Background(), req)

	if outcome != Aborted {
		t.Fatalf("outcome = %v, want Aborted", outcome)
	}
	if err != ErrCeilingExceeded {
		t.Errorf("err = %v, want ErrCeilingExceeded", err)
	}
	if len(sub.calls) != 0 {
		t.Errorf("expected no submission on ceiling abort, got %d", len(sub.calls))
	}
}

// S5 — ATP buffer stacking.
func TestProcessChain_S5_ATPBufferStacking(t *testing.T) {
	t.Parallel()

	sub := &scriptedSubmitter{responses: []types.OrderResponse{fail(), fail(), fail(), fail(), gtdOK()}}
	e := testEngine(sub)
	req := SeedFromFAKFailure("tok", 0.50, 0.52, 100, 10000, 0.53, true, false)

	outcome, _, _ := e.ProcessChain(context.Background(), req)

	if outcome != GTDPosted {
		t.Fatalf("outcome = %v, want GTDPosted", outcome)
	}
	for i, call := range sub.calls {
		if call.Price != 0.53 {
			t.Errorf("call[%d].Price = %v, want 0.53", i, call.Price)
		}
	}
}

// S6 — Near-cap clamp.
func TestProcessChain_S6_NearCapClamp(t *testing.T) {
	t.Parallel()

	sub := &scriptedSubmitter{responses: []types.OrderResponse{fail(), fail(), fail(), fail(), gtdOK()}}
	e := testEngine(sub)
	req := SeedFromFAKFailure("tok", 0.96, 0.98, 100, 10000, 0.99, true, false)

	outcome, _, _ := e.ProcessChain(context.Background(), req)

	if outcome != GTDPosted {
		t.Fatalf("outcome = %v, want GTDPosted (chase lands exactly at cap, no abort)", outcome)
	}
	for i, call := range sub.calls {
		if call.Price != 0.99 {
			t.Errorf("call[%d].Price = %v, want 0.99", i, call.Price)
		}
	}
}

func TestProcessChain_PartialFillUnderSlopCountsAsFilled(t *testing.T) {
	t.Parallel()

	sub := &scriptedSubmitter{responses: []types.OrderResponse{
		{Success: true, TakingAmount: "99.5"},
	}}
	e := testEngine(sub)
	req := SeedFromFAKFailure("tok", 0.50, 0.51, 100, 800, 0.51, true, false)

	outcome, final, _ := e.ProcessChain(context.Background(), req)

	if outcome != Filled {
		t.Fatalf("outcome = %v, want Filled (remaining 0.5 <= 1 share slop)", outcome)
	}
	if final.CumulativeFilled != 99.5 {
		t.Errorf("CumulativeFilled = %v, want 99.5", final.CumulativeFilled)
	}
}

func TestProcessChain_MaxAttemptsRejected(t *testing.T) {
	t.Parallel()

	// Simulate a GTD submission itself failing -> terminal Rejected.
	sub := &scriptedSubmitter{responses: []types.OrderResponse{fail(), fail(), fail(), {Success: false, ErrorMsg: "gtd rejected"}}}
	e := testEngine(sub)
	req := SeedFromFAKFailure("tok", 0.50, 0.50, 20, 800, 0.50, true, false)

	outcome, _, err := e.ProcessChain(context.Background(), req)

	if outcome != Rejected {
		t.Fatalf("outcome = %v, want Rejected", outcome)
	}
	if err == nil {
		t.Error("expected non-nil error on GTD rejection")
	}
}

func TestRoundMicroIdempotent(t *testing.T) {
	t.Parallel()

	x := 40.7999999
	once := roundMicro(x)
	twice := roundMicro(once)
	if once != twice {
		t.Errorf("roundMicro not idempotent: %v != %v", once, twice)
	}
	if once != 40.8 {
		t.Errorf("roundMicro(%v) = %v, want 40.8", x, once)
	}
}

func TestRunWorker_MatchesInlineProcessChain(t *testing.T) {
	t.Parallel()

	sub1 := &scriptedSubmitter{responses: []types.OrderResponse{fail(), fail(), fail(), gtdOK()}}
	e1 := testEngine(sub1)
	req := SeedFromFAKFailure("tok", 0.50, 0.50, 20, 800, 0.50, true, false)
	wantOutcome, _, _ := e1.ProcessChain(context.Background(), req)

	sub2 := &scriptedSubmitter{responses: []types.OrderResponse{fail(), fail(), fail(), gtdOK()}}
	e2 := testEngine(sub2)
	jobs := make(chan ChainJob, 1)
	reply := make(chan ChainResult, 1)
	go RunWorker(context.Background(), e2, jobs)
	jobs <- ChainJob{Request: req, ReplyTo: reply}
	result := <-reply
	close(jobs)

	if result.Outcome != wantOutcome {
		t.Errorf("RunWorker outcome = %v, want %v (must match inline ProcessChain)", result.Outcome, wantOutcome)
	}
}
