package clob

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"whale-follower/internal/config"
	"whale-follower/pkg/types"
)

// Client is the Polymarket CLOB REST API client this follower uses to submit
// FAK/GTD orders and to read order-book depth for the risk guard. Order
// submissions and book reads are rate-limited via per-category TokenBuckets;
// order submissions carry L2 HMAC headers, book reads carry none, and
// DeriveAPIKey uses L1 headers and bypasses the rate limiter.
//
// Client satisfies resubmit.Submitter. Its GetOrderBook backs
// marketcache.DepthReader, which is the riskguard.BookReader implementation.
type Client struct {
	http   *resty.Client
	auth   *Auth
	rl     *RateLimiter
	dryRun bool
	logger *slog.Logger
}

// NewClient creates a REST client with rate limiting and retry.
func NewClient(cfg config.Config, auth *Auth, logger *slog.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(cfg.API.CLOBBaseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		}).
		SetHeader("Content-Type", "application/json")

	return &Client{
		http:   httpClient,
		auth:   auth,
		rl:     NewRateLimiter(),
		dryRun: cfg.DryRun,
		logger: logger,
	}
}

// GetOrderBook fetches the order book for a single token (risk-guard depth
// lookup). Callers should apply their own timeout via ctx (BOOK_REQ_TIMEOUT).
func (c *Client) GetOrderBook(ctx context.Context, tokenID string) (*types.BookResponse, error) {
	if err := c.rl.Book.Wait(ctx); err != nil {
		return nil, err
	}

	var result types.BookResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("token_id", tokenID).
		SetResult(&result).
		Get("/book")
	if err != nil {
		return nil, fmt.Errorf("get book: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("get book: status %d: %s", resp.StatusCode(), resp.String())
	}
	return &result, nil
}

// buildOrderPayload converts a high-level UserOrder into the on-chain
// SignedOrder + metadata the REST API expects, scaling price/size to the
// market's tick precision, setting maker to the funder wallet (proxy-aware),
// signer to the EOA, and taker to the zero address (open order).
func (c *Client) buildOrderPayload(order types.UserOrder) types.OrderPayload {
	tickSize := order.TickSize
	if tickSize == "" {
		tickSize = types.Tick001
	}
	makerAmt, takerAmt := PriceToAmounts(order.Price, order.Size, order.Side, tickSize)

	expiration := ""
	if order.Expiration > 0 {
		expiration = fmt.Sprintf("%d", order.Expiration)
	}

	return types.OrderPayload{
		Order: types.SignedOrder{
			Maker:         c.auth.FunderAddress().Hex(),
			Signer:        c.auth.Address().Hex(),
			Taker:         "0x0000000000000000000000000000000000000000",
			TokenID:       order.TokenID,
			MakerAmount:   makerAmt,
			TakerAmount:   takerAmt,
			Side:          order.Side,
			Expiration:    expiration,
			Nonce:         "0",
			FeeRateBps:    fmt.Sprintf("%d", order.FeeRateBps),
			SignatureType: c.auth.sigType,
		},
		Owner:     c.auth.creds.ApiKey,
		OrderType: order.OrderType,
	}
}

// SubmitOrder places a single FAK or GTD order. It satisfies
// resubmit.Submitter; the engine's order and resubmit workers call it
// synchronously on their own goroutines.
func (c *Client) SubmitOrder(ctx context.Context, order types.UserOrder) (types.OrderResponse, error) {
	if c.dryRun {
		c.logger.Info("DRY-RUN: would submit order",
			"token_id", order.TokenID, "price", order.Price, "size", order.Size, "type", order.OrderType)
		return types.OrderResponse{Success: true, OrderID: "dry-run", Status: "live", TakingAmount: fmt.Sprintf("%.2f", order.Size)}, nil
	}
	if err := c.rl.Order.Wait(ctx); err != nil {
		return types.OrderResponse{}, err
	}

	payload := c.buildOrderPayload(order)
	body, err := json.Marshal(payload)
	if err != nil {
		return types.OrderResponse{}, fmt.Errorf("marshal order: %w", err)
	}
	headers, err := c.auth.L2Headers("POST", "/order", string(body))
	if err != nil {
		return types.OrderResponse{}, fmt.Errorf("l2 headers: %w", err)
	}

	var result types.OrderResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetBody(payload).
		SetResult(&result).
		Post("/order")
	if err != nil {
		return types.OrderResponse{}, fmt.Errorf("submit order: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return types.OrderResponse{Success: false, ErrorMsg: resp.String(), Status: fmt.Sprintf("http_%d", resp.StatusCode())}, nil
	}
	return result, nil
}

// DeriveAPIKey derives L2 API credentials via L1 authentication, for startup
// bootstrap when no pre-derived credentials are configured.
func (c *Client) DeriveAPIKey(ctx context.Context) (*Credentials, error) {
	headers, err := c.auth.L1Headers(0)
	if err != nil {
		return nil, fmt.Errorf("l1 headers: %w", err)
	}

	var result Credentials
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetResult(&result).
		Get("/auth/derive-api-key")
	if err != nil {
		return nil, fmt.Errorf("derive api key: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("derive api key: status %d: %s", resp.StatusCode(), resp.String())
	}

	c.auth.SetCredentials(result)
	c.logger.Info("API key derived", "api_key", result.ApiKey)
	return &result, nil
}
