// Package engine is the central orchestrator of the whale-follower bot. It
// wires ingest → dispatch → (orderintent + riskguard + clob) → resubmit →
// (tradelog + dashboard), adapted from the teacher's engine.go which wired
// scanner → strategy → exchange for a market maker — the lifecycle shape
// (New → Start → run until signal → Stop) and the worker-pool-over-a-channel
// pattern survive, the domain wiring is entirely new.
package engine

import (
	"container/ring"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"whale-follower/internal/clob"
	"whale-follower/internal/config"
	"whale-follower/internal/dashboard"
	"whale-follower/internal/dispatch"
	"whale-follower/internal/ingest"
	"whale-follower/internal/marketcache"
	"whale-follower/internal/orderintent"
	"whale-follower/internal/resubmit"
	"whale-follower/internal/riskguard"
	"whale-follower/internal/sizing"
	"whale-follower/internal/tradelog"
	"whale-follower/pkg/types"
)

const (
	orderWorkers    = 8
	resubmitWorkers = 8
	marketCachePoll = 30 * time.Second
	recentTradesCap = 200
)

// gtdExpiryPolicy implements resubmit.ExpiryPolicy from the two configured
// windows (spec.md §6's gtd_expiry_secs(is_live)).
type gtdExpiryPolicy struct {
	liveSecs, nonLiveSecs int64
}

func (p gtdExpiryPolicy) GTDExpirySecs(isLive bool) int64 {
	if isLive {
		return p.liveSecs
	}
	return p.nonLiveSecs
}

// Engine owns the lifecycle of every background goroutine in the follower.
type Engine struct {
	cfg    config.Config
	logger *slog.Logger

	auth        *clob.Auth
	client      *clob.Client
	feed        *ingest.Feed
	marketCache *marketcache.Cache
	riskGuard   *riskguard.Guard
	resubmitEng *resubmit.Engine
	tradeLog    *tradelog.Log
	dashSrv     *dashboard.Server

	eventQueue    *dispatch.EventQueue
	resubmitQueue *dispatch.ResubmitQueue

	activeChains atomic.Int64

	tradesMu sync.Mutex
	trades   *ring.Ring

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New wires every component. If L2 API credentials aren't configured, it
// derives them via L1 (EIP-712) auth, exactly as the teacher's engine.New does.
func New(cfg config.Config, logger *slog.Logger) (*Engine, error) {
	auth, err := clob.NewAuth(cfg)
	if err != nil {
		return nil, fmt.Errorf("new auth: %w", err)
	}

	client := clob.NewClient(cfg, auth, logger)

	if !auth.HasL2Credentials() {
		logger.Info("no L2 credentials configured, deriving API key via L1")
		creds, err := client.DeriveAPIKey(context.Background())
		if err != nil {
			return nil, fmt.Errorf("derive api key: %w", err)
		}
		auth.SetCredentials(*creds)
	}

	feed := ingest.New(cfg.API.FillFeedURL, cfg.Whales.Addresses, cfg.API.WSPingTimeout, cfg.API.WSReconnectDelay, logger)
	mc := marketcache.New(cfg.API.GammaBaseURL, logger)
	depthReader := mc.WithBookClient(client)
	guard := riskguard.New(cfg.Risk, cfg.API.BookTimeout, depthReader, logger)

	tlog, err := tradelog.Open(cfg.TradeLog.Path)
	if err != nil {
		return nil, fmt.Errorf("open trade log: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	e := &Engine{
		cfg:           cfg,
		logger:        logger.With("component", "engine"),
		auth:          auth,
		client:        client,
		feed:          feed,
		marketCache:   mc,
		riskGuard:     guard,
		tradeLog:      tlog,
		eventQueue:    dispatch.NewEventQueue(cfg.Whales.QueueCapacity),
		resubmitQueue: dispatch.NewResubmitQueue(),
		trades:        ring.New(recentTradesCap),
		ctx:           ctx,
		cancel:        cancel,
	}

	e.resubmitEng = &resubmit.Engine{
		Submitter: client,
		Expiry:    gtdExpiryPolicy{cfg.Resubmit.GTDExpiryLiveSecs, cfg.Resubmit.GTDExpiryNonLiveSecs},
		Clock:     resubmit.SystemClock,
		Cfg: resubmit.Config{
			PriceIncrement:      cfg.Resubmit.PriceIncrement,
			TickSize:            types.Tick001,
			SmallWhaleThreshold: cfg.Resubmit.SmallWhaleThreshold,
			SmallWhaleSleep:     cfg.Resubmit.SmallWhaleSleep,
			MinShareCount:       cfg.Sizing.MinShareCount,
			MinCashValue:        cfg.Sizing.MinCashValue,
		},
	}

	if cfg.Dashboard.Enabled {
		e.dashSrv = dashboard.NewServer(cfg.Dashboard, e, logger)
	}

	return e, nil
}

// Start launches ingestion, the order worker pool, the resubmit worker pool,
// the market cache refresher, and (if enabled) the dashboard server.
func (e *Engine) Start() error {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if err := e.feed.Run(e.ctx); err != nil && e.ctx.Err() == nil {
			e.logger.Error("ingest feed error", "error", err)
		}
	}()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.pumpEvents()
	}()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.marketCache.Run(e.ctx, marketCachePoll)
	}()

	for i := 0; i < orderWorkers; i++ {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.runOrderWorker()
		}()
	}

	for i := 0; i < resubmitWorkers; i++ {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.runResubmitWorker()
		}()
	}

	if e.dashSrv != nil {
		go func() {
			if err := e.dashSrv.Start(); err != nil {
				e.logger.Error("dashboard server failed", "error", err)
			}
		}()
	}

	return nil
}

// Stop cancels every goroutine, waits for the workers to exit, closes the
// resubmit queue's input, and closes resources. Resubmit requests still
// queued when the workers exit are not processed. Stop cancels no orders:
// FAK orders terminate on their own, and a posted GTD stays on the book
// until its expiration.
func (e *Engine) Stop() {
	e.logger.Info("shutting down")
	e.cancel()

	if e.dashSrv != nil {
		if err := e.dashSrv.Stop(); err != nil {
			e.logger.Error("failed to stop dashboard", "error", err)
		}
	}

	e.wg.Wait()
	e.resubmitQueue.Stop()
	e.feed.Close()
	if err := e.tradeLog.Close(); err != nil {
		e.logger.Error("failed to close trade log", "error", err)
	}

	e.logger.Info("shutdown complete")
}

// pumpEvents drains validated whale fill events from ingest and enqueues
// them on the bounded event queue, dropping (never blocking) on overflow
// per spec.md §4.5. Each job carries a one-shot reply channel so a
// background goroutine can await the order worker's verdict within
// ORDER_REPLY_TIMEOUT, purely for observability — pumpEvents itself never
// waits on it, so a slow or hung order worker can't back up ingestion.
func (e *Engine) pumpEvents() {
	for {
		select {
		case <-e.ctx.Done():
			return
		case event, ok := <-e.feed.Events():
			if !ok {
				return
			}
			reply := make(chan dispatch.Reply, 1)
			err := e.eventQueue.TrySend(dispatch.Job{Event: event, ReplyTo: reply})
			if err != nil {
				e.logger.Warn("event queue full, dropping whale fill", "token_id", event.TokenID, "tx_hash", event.TxHash)
				continue
			}
			e.wg.Add(1)
			go e.awaitOrderReply(event, reply)
		}
	}
}

// awaitOrderReply waits for the order worker's terminal verdict on one
// event, logging a warning if it never arrives within
// Whales.OrderReplyTimeout (spec.md §4.5's ORDER_REPLY_TIMEOUT).
func (e *Engine) awaitOrderReply(event types.WhaleFillEvent, reply <-chan dispatch.Reply) {
	defer e.wg.Done()
	result, err := dispatch.Await(e.ctx, reply, e.cfg.Whales.OrderReplyTimeout)
	if err != nil {
		e.logger.Warn("order worker reply timed out", "token_id", event.TokenID, "tx_hash", event.TxHash, "error", err)
		return
	}
	if result.Err != nil {
		e.logger.Debug("order worker outcome", "token_id", event.TokenID, "outcome", result.Outcome, "error", e.errorForLog(result.Err))
	}
}

func (e *Engine) runOrderWorker() {
	for {
		select {
		case <-e.ctx.Done():
			return
		case job, ok := <-e.eventQueue.Jobs():
			if !ok {
				return
			}
			e.handleEvent(job)
		}
	}
}

// replyTo delivers the order worker's terminal verdict to the awaiting
// dispatch.Await call, if any. The send is non-blocking: the reply channel
// is always buffered by one slot, but if the awaiter already gave up on
// ORDER_REPLY_TIMEOUT there is nobody left to receive it.
func replyTo(job dispatch.Job, outcome string, err error) {
	if job.ReplyTo == nil {
		return
	}
	select {
	case job.ReplyTo <- dispatch.Reply{Outcome: outcome, Err: err}:
	default:
	}
}

func (e *Engine) handleEvent(job dispatch.Job) {
	event := job.Event
	intent := orderintent.Build(event, e.marketCache, orderintent.SizingConfig{
		ScalingRatio:  e.cfg.Sizing.ScalingRatio,
		MinShareCount: e.cfg.Sizing.MinShareCount,
		MinCashValue:  e.cfg.Sizing.MinCashValue,
	})

	notional := intent.LimitPrice * intent.Size
	result := e.riskGuard.Evaluate(e.ctx, riskguard.Intent{
		TokenID:     intent.TokenID,
		NotionalUSD: notional,
		LimitPrice:  intent.LimitPrice,
	})

	switch result.Decision {
	case riskguard.Deny:
		e.logger.Info("risk guard denied intent", "token_id", intent.TokenID, "reason", result.Reason)
		replyTo(job, "Denied", nil)
		return
	case riskguard.AdjustSize:
		if intent.LimitPrice <= 0 {
			e.riskGuard.Release(intent.TokenID, result.AllowedUSD)
			replyTo(job, "Skipped", nil)
			return
		}
		intent.Size = sizing.Round2(result.AllowedUSD / intent.LimitPrice)
		intent.OriginalSize = intent.Size
		notional = result.AllowedUSD
		if intent.Size <= 0 {
			e.riskGuard.Release(intent.TokenID, result.AllowedUSD)
			replyTo(job, "Skipped", nil)
			return
		}
	}

	tick := e.marketCache.TickSize(intent.TokenID)
	order := intent.InitialOrder(tick)

	resp, err := e.client.SubmitOrder(e.ctx, order)
	if err != nil {
		e.logger.Warn("initial submission transport error", "token_id", intent.TokenID, "error", err)
		e.riskGuard.Release(intent.TokenID, notional)
		e.seedChain(resubmit.SeedFromFAKFailure(
			intent.TokenID, event.Price, intent.LimitPrice, intent.Size, intent.WhaleShares, intent.MaxPrice,
			event.SideIsBuy, e.marketCache.IsLive(intent.TokenID),
		), event.Whale)
		replyTo(job, "Rejected", err)
		return
	}

	if !resp.Success {
		e.riskGuard.Release(intent.TokenID, notional)
		e.seedChain(resubmit.SeedFromFAKFailure(
			intent.TokenID, event.Price, intent.LimitPrice, intent.Size, intent.WhaleShares, intent.MaxPrice,
			event.SideIsBuy, e.marketCache.IsLive(intent.TokenID),
		), event.Whale)
		replyTo(job, "Rejected", fmt.Errorf("initial submission rejected: %s", resp.ErrorMsg))
		return
	}

	filled := resubmit.ParseFilled(resp.TakingAmount)
	switch {
	case filled <= 0:
		e.riskGuard.Release(intent.TokenID, notional)
		e.seedChain(resubmit.SeedFromFAKFailure(
			intent.TokenID, event.Price, intent.LimitPrice, intent.Size, intent.WhaleShares, intent.MaxPrice,
			event.SideIsBuy, e.marketCache.IsLive(intent.TokenID),
		), event.Whale)
		replyTo(job, "Resubmitting", nil)
	case filled >= intent.Size:
		e.riskGuard.Release(intent.TokenID, notional-filled*intent.LimitPrice)
		e.recordTrade(tradelog.Row{
			Timestamp: time.Now(), TokenID: intent.TokenID, Whale: event.Whale,
			Attempt: 1, Outcome: string(resubmit.Filled), Price: intent.LimitPrice,
			Size: intent.Size, CumulativeFilled: filled, OriginalSize: intent.Size,
		})
		replyTo(job, string(resubmit.Filled), nil)
	default:
		req, ok := resubmit.SeedFromUnderfill(
			intent.TokenID, event.Price, intent.LimitPrice, intent.Size, filled, intent.WhaleShares, intent.MaxPrice,
			event.SideIsBuy, e.marketCache.IsLive(intent.TokenID), e.cfg.Sizing.MinShareCount, e.cfg.Sizing.MinCashValue,
		)
		if !ok {
			e.riskGuard.Release(intent.TokenID, notional-filled*intent.LimitPrice)
			e.recordTrade(tradelog.Row{
				Timestamp: time.Now(), TokenID: intent.TokenID, Whale: event.Whale,
				Attempt: 1, Outcome: string(resubmit.Filled), Price: intent.LimitPrice,
				Size: intent.Size, CumulativeFilled: filled, OriginalSize: intent.Size,
			})
			replyTo(job, string(resubmit.Filled), nil)
			return
		}
		e.seedChain(req, event.Whale)
		replyTo(job, "Resubmitting", nil)
	}
}

// seedChain hands a resubmit request to the unbounded resubmit queue so the
// order worker that produced it never blocks on resubmit backpressure
// (spec.md §4.5).
func (e *Engine) seedChain(req resubmit.Request, whale string) {
	e.activeChains.Add(1)
	e.resubmitQueue.Send(chainJobWithWhale{req: req, whale: whale})
}

type chainJobWithWhale struct {
	req   resubmit.Request
	whale string
}

func (e *Engine) runResubmitWorker() {
	for {
		select {
		case <-e.ctx.Done():
			return
		case item, ok := <-e.resubmitQueue.Out():
			if !ok {
				return
			}
			job, ok := item.(chainJobWithWhale)
			if !ok {
				continue
			}
			eng := e.resubmitEngineFor(job.whale)
			_, _, _ = eng.ProcessChain(e.ctx, job.req)
			e.activeChains.Add(-1)
		}
	}
}

// resubmitEngineFor returns a shallow copy of the shared resubmit engine
// configuration with an OnOutcome closure bound to this chain's whale
// address. Each resubmit worker runs its chain on its own copy so
// concurrent chains (spec.md §5: chains are not serialised by token) never
// share mutable per-chain state through the engine value.
func (e *Engine) resubmitEngineFor(whale string) *resubmit.Engine {
	eng := *e.resubmitEng
	eng.OnOutcome = func(req resubmit.Request, outcome resubmit.Outcome, err error) {
		e.onOutcome(req, outcome, err, whale)
	}
	return &eng
}

func (e *Engine) onOutcome(req resubmit.Request, outcome resubmit.Outcome, err error, whale string) {
	e.recordTrade(tradelog.Row{
		Timestamp:        time.Now(),
		TokenID:          req.TokenID,
		Whale:            whale,
		Attempt:          req.Attempt,
		Outcome:          string(outcome),
		Price:            req.FailedPrice,
		Size:             req.Size,
		CumulativeFilled: req.CumulativeFilled,
		OriginalSize:     req.OriginalSize,
	})
	if err != nil {
		e.logger.Info("resubmit chain terminated", "token_id", req.TokenID, "outcome", outcome, "error", e.errorForLog(err))
	}
}

// errorForLog truncates an error's message to a short body unless
// TradeLog.DebugFullErrors is set, matching the terminal outcome line's own
// truncation behavior (internal/logcolor) for this engine's own log stream.
func (e *Engine) errorForLog(err error) string {
	msg := err.Error()
	if e.cfg.TradeLog.DebugFullErrors || len(msg) <= 200 {
		return msg
	}
	return msg[:200] + "..."
}

func (e *Engine) recordTrade(row tradelog.Row) {
	if err := e.tradeLog.Append(row); err != nil {
		e.logger.Error("failed to append trade log row", "error", err)
	}

	e.tradesMu.Lock()
	e.trades.Value = row
	e.trades = e.trades.Next()
	e.tradesMu.Unlock()

	if e.dashSrv != nil {
		e.dashSrv.BroadcastTrade(dashboardRowFrom(row))
	}
}

func dashboardRowFrom(r tradelog.Row) dashboard.TradeRow {
	return dashboard.TradeRow{
		Timestamp: r.Timestamp, TokenID: r.TokenID, Whale: r.Whale, Attempt: r.Attempt,
		Outcome: r.Outcome, Price: r.Price, Size: r.Size,
		CumulativeFilled: r.CumulativeFilled, OriginalSize: r.OriginalSize, FillPct: r.FillPct(),
	}
}

// ———————————————————————————————————————————————————————————————————————
// dashboard.Provider implementation
// ———————————————————————————————————————————————————————————————————————

func (e *Engine) EventQueueDepth() int    { return e.eventQueue.Depth() }
func (e *Engine) EventQueueCapacity() int { return e.eventQueue.Capacity() }
func (e *Engine) ActiveChains() int       { return int(e.activeChains.Load()) }
func (e *Engine) RiskSnapshot() riskguard.Snapshot { return e.riskGuard.Snapshot() }
func (e *Engine) DryRun() bool            { return e.cfg.DryRun }

func (e *Engine) RecentTrades() []dashboard.TradeRow {
	e.tradesMu.Lock()
	defer e.tradesMu.Unlock()

	var out []dashboard.TradeRow
	e.trades.Do(func(v any) {
		if row, ok := v.(tradelog.Row); ok {
			out = append(out, dashboardRowFrom(row))
		}
	})
	return out
}
