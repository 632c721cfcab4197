package dashboard

import (
	"time"

	"whale-follower/internal/riskguard"
	"whale-follower/internal/tradelog"
)

// Snapshot is the complete point-in-time dashboard state, narrowed from the
// teacher's per-market bid/ask/PnL view to this follower's own operational
// state: queue depths, active chain count, risk-guard exposure, and a
// rolling window of recent terminal trade outcomes.
type Snapshot struct {
	Timestamp time.Time `json:"timestamp"`

	EventQueueDepth    int `json:"event_queue_depth"`
	EventQueueCapacity int `json:"event_queue_capacity"`
	ActiveChains       int `json:"active_chains"`

	Risk RiskSnapshot `json:"risk"`

	RecentTrades []TradeRow `json:"recent_trades"`

	DryRun bool `json:"dry_run"`
}

// RiskSnapshot mirrors riskguard.Snapshot for JSON serving.
type RiskSnapshot struct {
	TotalExposure     float64   `json:"total_exposure"`
	MaxGlobalExposure float64   `json:"max_global_exposure"`
	KillSwitchActive  bool      `json:"kill_switch_active"`
	KillSwitchUntil   time.Time `json:"kill_switch_until,omitempty"`
}

func fromRiskguardSnapshot(s riskguard.Snapshot) RiskSnapshot {
	return RiskSnapshot{
		TotalExposure:     s.TotalExposure,
		MaxGlobalExposure: s.MaxGlobalExposure,
		KillSwitchActive:  s.KillSwitchActive,
		KillSwitchUntil:   s.KillSwitchUntil,
	}
}

// TradeRow mirrors tradelog.Row for JSON serving over the dashboard.
type TradeRow struct {
	Timestamp        time.Time `json:"timestamp"`
	TokenID          string    `json:"token_id"`
	Whale            string    `json:"whale_address"`
	Attempt          int       `json:"attempt"`
	Outcome          string    `json:"outcome"`
	Price            float64   `json:"price"`
	Size             float64   `json:"size"`
	CumulativeFilled float64   `json:"cumulative_filled"`
	OriginalSize     float64   `json:"original_size"`
	FillPct          float64   `json:"fill_pct"`
}

func fromTradeLogRow(r tradelog.Row) TradeRow {
	return TradeRow{
		Timestamp:        r.Timestamp,
		TokenID:          r.TokenID,
		Whale:            r.Whale,
		Attempt:          r.Attempt,
		Outcome:          r.Outcome,
		Price:            r.Price,
		Size:             r.Size,
		CumulativeFilled: r.CumulativeFilled,
		OriginalSize:     r.OriginalSize,
		FillPct:          r.FillPct(),
	}
}

// Event is the envelope broadcast to every connected WebSocket client, same
// shape as the teacher's DashboardEvent: a type tag plus an arbitrary
// payload.
type Event struct {
	Type      string      `json:"type"` // "snapshot" or "trade"
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}
