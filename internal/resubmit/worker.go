package resubmit

import "context"

// ChainJob is one resubmit chain handed to the top-level worker. ReplyTo, if
// non-nil, receives exactly one result before the job is discarded.
type ChainJob struct {
	Request Request
	ReplyTo chan<- ChainResult
}

// ChainResult is the terminal state of a processed ChainJob.
type ChainResult struct {
	Outcome Outcome
	Final   Request
	Err     error
}

// RunWorker drains jobs from an unbounded channel (the order worker → resubmit
// worker boundary from spec.md §4.5) and runs each to completion via
// ProcessChain. It is the channel-driven counterpart to calling ProcessChain
// directly inline; both paths share the same state machine implementation so
// their observable outcomes are identical by construction, which is how this
// follower resolves the two-implementations question spec.md leaves open.
//
// RunWorker processes jobs sequentially. Concurrent chains are achieved by
// running multiple RunWorker goroutines over the same jobs channel — the
// engine does not serialise by token (spec.md §5), so any number of workers
// may share one queue safely.
func RunWorker(ctx context.Context, e *Engine, jobs <-chan ChainJob) {
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-jobs:
			if !ok {
				return
			}
			outcome, final, err := e.ProcessChain(ctx, job.Request)
			if job.ReplyTo != nil {
				job.ReplyTo <- ChainResult{Outcome: outcome, Final: final, Err: err}
			}
		}
	}
}
