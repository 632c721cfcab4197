// Package marketcache is the process-wide market-metadata cache the order
// intent builder consults for the per-token class buffer (tennis/soccer/ATP
// tokens get an extra tick of room) and the live/non-live flag the resubmit
// engine uses to size a GTD order's expiration.
//
// The cache is initialised at startup, refreshed on its own ticker task, and
// read through an RWMutex-guarded snapshot swap — readers never block a
// writer mid-refresh and never see a partially-updated map.
package marketcache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"whale-follower/pkg/types"
)

// classBufferSports get an extra tick of buffer room (spec.md §3).
var classBufferSports = map[string]bool{
	"tennis": true,
	"soccer": true,
	"atp":    true,
}

const classBufferAmount = 0.01

// gammaMarket is the subset of the Gamma API's market shape this cache needs.
type gammaMarket struct {
	ConditionID  string `json:"conditionId"`
	Slug         string `json:"slug"`
	Active       bool   `json:"active"`
	Closed       bool   `json:"closed"`
	EndDate      string `json:"endDate"`
	ClobTokenIds string `json:"clobTokenIds"`
	TickSize     string `json:"orderPriceMinTickSize"`
	Sport        string `json:"sportsMarketType"`
}

// Cache serves per-token metadata snapshots. Safe for concurrent use.
type Cache struct {
	http   *resty.Client
	logger *slog.Logger

	mu     sync.RWMutex
	tokens map[string]types.TokenMeta // tokenID -> metadata
}

// New creates a market-metadata cache against the given Gamma API base URL.
func New(gammaBaseURL string, logger *slog.Logger) *Cache {
	return &Cache{
		http: resty.New().
			SetBaseURL(gammaBaseURL).
			SetTimeout(10 * time.Second),
		logger: logger.With("component", "marketcache"),
		tokens: make(map[string]types.TokenMeta),
	}
}

// ClassBuffer returns the extra price buffer this token's market class
// warrants (tennis/soccer/ATP → 0.01), or 0 for an unclassified or unknown
// token. Unknown tokens degrade to 0, never an error — a cache miss must not
// block an order intent from being composed.
func (c *Cache) ClassBuffer(tokenID string) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	meta, ok := c.tokens[tokenID]
	if !ok || !classBufferSports[strings.ToLower(meta.Sport)] {
		return 0
	}
	return classBufferAmount
}

// IsLive reports whether the token's underlying market is in its live event
// window. Unknown tokens are conservatively treated as non-live, which
// lengthens the GTD expiry rather than shortening it.
func (c *Cache) IsLive(tokenID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	meta, ok := c.tokens[tokenID]
	return ok && meta.Live
}

// TickSize returns the token's price granularity, defaulting to the
// standard two-decimal tick when the token is unknown.
func (c *Cache) TickSize(tokenID string) types.TickSize {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if meta, ok := c.tokens[tokenID]; ok {
		return meta.TickSize
	}
	return types.Tick001
}

// Run polls the Gamma API on the given interval until ctx is cancelled,
// swapping in a fresh snapshot after each successful poll. A failed poll
// logs and keeps serving the previous snapshot.
func (c *Cache) Run(ctx context.Context, interval time.Duration) {
	c.refresh(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.refresh(ctx)
		}
	}
}

func (c *Cache) refresh(ctx context.Context) {
	var markets []gammaMarket
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{"active": "true", "closed": "false", "limit": "1000"}).
		SetResult(&markets).
		Get("/markets")
	if err != nil {
		c.logger.Warn("market cache refresh failed", "error", err)
		return
	}
	if resp.StatusCode() != http.StatusOK {
		c.logger.Warn("market cache refresh failed", "status", resp.StatusCode())
		return
	}

	next := make(map[string]types.TokenMeta, len(markets)*2)
	for _, m := range markets {
		var tokenIDs []string
		if err := json.Unmarshal([]byte(m.ClobTokenIds), &tokenIDs); err != nil {
			continue
		}
		tick := parseTickSize(m.TickSize)
		endDate, _ := time.Parse(time.RFC3339, m.EndDate)
		live := m.Active && !m.Closed && time.Until(endDate) < 24*time.Hour && time.Until(endDate) > 0

		for _, tokenID := range tokenIDs {
			next[tokenID] = types.TokenMeta{
				TokenID:     tokenID,
				ConditionID: m.ConditionID,
				Slug:        m.Slug,
				Sport:       m.Sport,
				Live:        live,
				TickSize:    tick,
				EndDate:     endDate,
			}
		}
	}

	c.mu.Lock()
	c.tokens = next
	c.mu.Unlock()

	c.logger.Info("market cache refreshed", "tokens", len(next))
}

func parseTickSize(raw string) types.TickSize {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return types.Tick001
	}
	switch {
	case v >= 0.1:
		return types.Tick01
	case v >= 0.01:
		return types.Tick001
	case v >= 0.001:
		return types.Tick0001
	default:
		return types.Tick00001
	}
}

// bookClient is the order-book source behind DepthReader.BestDepthUSD,
// attached through WithBookClient. A Cache has no BestDepthUSD of its own;
// only the DepthReader that WithBookClient returns implements
// riskguard.BookReader.
type bookClient interface {
	GetOrderBook(ctx context.Context, tokenID string) (*types.BookResponse, error)
}

// WithBookClient attaches a CLOB book reader so the cache can also serve
// riskguard.BookReader's BestDepthUSD without the risk guard importing clob
// directly.
func (c *Cache) WithBookClient(bc bookClient) *DepthReader {
	return &DepthReader{cache: c, books: bc}
}

// DepthReader adapts a bookClient + Cache into riskguard.BookReader.
type DepthReader struct {
	cache *Cache
	books bookClient
}

// BestDepthUSD sums ask-side resting USD value at or better than price. This
// follower only ever submits BUY orders, so the liquidity it consumes is
// resting sell-side size, not resting bids.
func (d *DepthReader) BestDepthUSD(ctx context.Context, tokenID string, price float64) (float64, error) {
	book, err := d.books.GetOrderBook(ctx, tokenID)
	if err != nil {
		return 0, fmt.Errorf("get order book: %w", err)
	}

	var total float64
	for _, lvl := range book.Asks {
		p, err := strconv.ParseFloat(lvl.Price, 64)
		if err != nil || p > price {
			continue
		}
		s, err := strconv.ParseFloat(lvl.Size, 64)
		if err != nil {
			continue
		}
		total += p * s
	}
	return total, nil
}
