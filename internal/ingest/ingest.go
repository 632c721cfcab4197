// Package ingest connects to the whale-fill event WebSocket feed and
// produces validated types.WhaleFillEvent values, dropping anything that
// fails the core invariant (shares > 0, 0 < price < 1) before it ever
// reaches dispatch.
//
// Adapted from the teacher's internal/exchange WSFeed: same connect/
// reconnect/ping/read-deadline shape, narrowed to a single feed with a
// single typed output channel since this follower watches one external
// event stream, not the teacher's separate market/user channels.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"whale-follower/pkg/types"
)

const (
	readTimeout      = 90 * time.Second
	maxReconnectWait = 30 * time.Second
	writeTimeout     = 10 * time.Second
	eventBufferSize  = 256
)

// Feed connects to the whale-fill event WebSocket and emits validated
// WhaleFillEvent values on Events(). Invalid or non-qualifying events are
// dropped at the source and never reach a consumer.
type Feed struct {
	url            string
	whales         map[string]bool // lowercased whale addresses to track
	pingInterval   time.Duration
	reconnectDelay time.Duration
	conn           *websocket.Conn
	connMu         sync.Mutex
	eventCh        chan types.WhaleFillEvent
	logger         *slog.Logger
}

// New creates a whale-fill event feed against wsURL, tracking only events
// from the given whale addresses (case-insensitive). pingInterval governs
// how often the feed pings the socket to keep it alive (WS_PING_TIMEOUT);
// reconnectDelay is the initial backoff delay on disconnect, doubling up to
// maxReconnectWait (WS_RECONNECT_DELAY).
func New(wsURL string, whaleAddresses []string, pingInterval, reconnectDelay time.Duration, logger *slog.Logger) *Feed {
	whales := make(map[string]bool, len(whaleAddresses))
	for _, a := range whaleAddresses {
		whales[normalizeAddr(a)] = true
	}
	return &Feed{
		url:            wsURL,
		whales:         whales,
		pingInterval:   pingInterval,
		reconnectDelay: reconnectDelay,
		eventCh:        make(chan types.WhaleFillEvent, eventBufferSize),
		logger:         logger.With("component", "ingest"),
	}
}

func normalizeAddr(a string) string {
	// Addresses arrive mixed-case on the wire; compare lowercased.
	out := make([]byte, len(a))
	for i := 0; i < len(a); i++ {
		c := a[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}

// Events returns the read-only channel of validated, tracked whale fills.
func (f *Feed) Events() <-chan types.WhaleFillEvent { return f.eventCh }

// Run connects and maintains the WebSocket connection with exponential
// backoff reconnect (reconnectDelay doubling to a 30s cap), blocking until
// ctx is cancelled.
func (f *Feed) Run(ctx context.Context) error {
	backoff := f.reconnectDelay

	for {
		err := f.connectAndRead(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		f.logger.Warn("ingest websocket disconnected, reconnecting", "error", err, "backoff", backoff)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxReconnectWait {
			backoff = maxReconnectWait
		}
	}
}

// Close closes the active connection, if any.
func (f *Feed) Close() error {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn != nil {
		return f.conn.Close()
	}
	return nil
}

func (f *Feed) connectAndRead(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	f.connMu.Lock()
	f.conn = conn
	f.connMu.Unlock()

	defer func() {
		f.connMu.Lock()
		conn.Close()
		f.conn = nil
		f.connMu.Unlock()
	}()

	f.logger.Info("ingest websocket connected")

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go f.pingLoop(pingCtx)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		f.dispatchMessage(msg)
	}
}

func (f *Feed) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(f.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.connMu.Lock()
			if f.conn != nil {
				f.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := f.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					f.logger.Warn("ingest ping failed", "error", err)
				}
			}
			f.connMu.Unlock()
		}
	}
}

func (f *Feed) dispatchMessage(data []byte) {
	var parsed types.ParsedEvent
	if err := json.Unmarshal(data, &parsed); err != nil {
		f.logger.Debug("ignoring malformed ingest message", "error", err)
		return
	}

	if !f.whales[normalizeAddr(parsed.Whale)] {
		return
	}

	event, ok := ToWhaleFillEvent(parsed)
	if !ok {
		return
	}

	select {
	case f.eventCh <- event:
	default:
		f.logger.Warn("ingest event channel full, dropping event", "tx_hash", event.TxHash)
	}
}

// ToWhaleFillEvent converts a raw ParsedEvent into a validated
// WhaleFillEvent, filtering non-fill order types and anything that fails
// the core shares>0, 0<price<1 invariant. ok is false for anything that
// should never reach dispatch.
func ToWhaleFillEvent(parsed types.ParsedEvent) (types.WhaleFillEvent, bool) {
	var sideIsBuy bool
	switch parsed.Order.OrderType {
	case types.RawBuyFill:
		sideIsBuy = true
	case types.RawSellFill:
		sideIsBuy = false
	default:
		return types.WhaleFillEvent{}, false
	}

	event := types.WhaleFillEvent{
		BlockNumber: parsed.BlockNumber,
		TxHash:      parsed.TxHash,
		Whale:       parsed.Whale,
		TokenID:     parsed.Order.ClobTokenID,
		SideIsBuy:   sideIsBuy,
		Shares:      parsed.Order.Shares,
		USDNotional: parsed.Order.USDValue,
		Price:       parsed.Order.PricePerShare,
	}

	if !event.Valid() {
		return types.WhaleFillEvent{}, false
	}
	return event, true
}
