// Package types defines shared data structures used across all packages.
//
// This package is the common vocabulary for the follower — whale fill
// events, order intents, CLOB wire types, and order book snapshots. It has
// no dependencies on internal packages, so it can be imported by any layer.
package types

import (
	"math/big"
	"time"
)

// ————————————————————————————————————————————————————————————————————————
// Core enums
// ————————————————————————————————————————————————————————————————————————

// Side represents the direction of an order: BUY or SELL.
type Side string

const (
	BUY  Side = "BUY"
	SELL Side = "SELL"
)

// OrderType enumerates the order lifecycles this follower ever submits.
// Unlike a market maker, the follower never rests a GTC order: every
// logical intent is a bounded chain of FAK retries terminated by at most
// one GTD resting order.
type OrderType string

const (
	OrderTypeFAK OrderType = "FAK" // Fill-And-Kill: immediate, unfilled remainder discarded
	OrderTypeGTD OrderType = "GTD" // Good-Til-Date: resting order with an expiration
)

// SignatureType identifies the signing scheme for the CTF exchange contract.
type SignatureType int

const (
	SigEOA        SignatureType = 0 // externally-owned account (standard wallet)
	SigProxy      SignatureType = 1 // Polymarket proxy / Magic wallet
	SigGnosisSafe SignatureType = 2 // Gnosis Safe multisig
)

// TickSize represents the price granularity for a market. Polymarket supports
// four tick sizes; each market has a fixed tick size that determines the
// minimum price increment and USDC amount rounding precision.
type TickSize string

const (
	Tick01    TickSize = "0.1"    // 1 decimal  — coarse markets
	Tick001   TickSize = "0.01"   // 2 decimals — standard markets (most common)
	Tick0001  TickSize = "0.001"  // 3 decimals — fine-grained markets
	Tick00001 TickSize = "0.0001" // 4 decimals — ultra-precise markets
)

// Decimals returns the number of decimal places for a tick size.
func (t TickSize) Decimals() int {
	switch t {
	case Tick01:
		return 1
	case Tick001:
		return 2
	case Tick0001:
		return 3
	case Tick00001:
		return 4
	default:
		return 2
	}
}

// AmountDecimals returns the rounding precision for USDC amounts.
func (t TickSize) AmountDecimals() int {
	switch t {
	case Tick01:
		return 3
	case Tick001:
		return 4
	case Tick0001:
		return 5
	case Tick00001:
		return 6
	default:
		return 4
	}
}

// ————————————————————————————————————————————————————————————————————————
// Whale fill ingestion (external WS intake contract)
// ————————————————————————————————————————————————————————————————————————

// RawOrderType is the order-direction tag used on the wire by the fill-event
// feed. BUY_FILL/SELL_FILL mark a taker fill against a resting order; BUY/SELL
// mark the resting order's own side. The follower only ever mirrors fills.
type RawOrderType string

const (
	RawBuy      RawOrderType = "BUY"
	RawSell     RawOrderType = "SELL"
	RawBuyFill  RawOrderType = "BUY_FILL"
	RawSellFill RawOrderType = "SELL_FILL"
)

// ParsedOrder is the inner payload of a ParsedEvent as delivered by the
// whale-fill WebSocket intake (external collaborator, specified at its
// interface boundary only).
type ParsedOrder struct {
	OrderType     RawOrderType `json:"order_type"`
	ClobTokenID   string       `json:"clob_token_id"` // decimal-string encoded big integer
	USDValue      float64      `json:"usd_value"`
	Shares        float64      `json:"shares"`
	PricePerShare float64      `json:"price_per_share"`
}

// ParsedEvent is a decoded on-chain fill event for one monitored whale
// address, as delivered by the WebSocket intake.
type ParsedEvent struct {
	BlockNumber uint64      `json:"block_number"`
	TxHash      string      `json:"tx_hash"`
	Whale       string      `json:"whale_address"`
	Order       ParsedOrder `json:"order"`
}

// WhaleFillEvent is the validated, internal representation of a qualifying
// whale fill — the core input to the sizing and order-intent machinery.
// Invariant: Shares > 0 and 0 < Price < 1.
type WhaleFillEvent struct {
	BlockNumber uint64
	TxHash      string
	Whale       string
	TokenID     string // decimal-string big integer
	SideIsBuy   bool
	Shares      float64
	USDNotional float64
	Price       float64
}

// Valid reports whether the event satisfies the core invariants.
func (e WhaleFillEvent) Valid() bool {
	return e.Shares > 0 && e.Price > 0 && e.Price < 1
}

// ————————————————————————————————————————————————————————————————————————
// Orders
// ————————————————————————————————————————————————————————————————————————

// UserOrder is the high-level order representation produced by the order
// intent / resubmit engine. The CLOB client converts it to a SignedOrder.
type UserOrder struct {
	TokenID    string    // which outcome token to trade
	Price      float64   // limit price (0.01 to 0.99)
	Size       float64   // quantity in shares
	Side       Side      // always BUY in this core
	OrderType  OrderType // FAK or GTD
	TickSize   TickSize  // market's price granularity (for amount rounding)
	Expiration int64     // unix timestamp, 0 = no expiry (FAK)
	FeeRateBps int       // fee rate in basis points
}

// SignedOrder is the on-chain order format the CLOB API expects.
// MakerAmount and TakerAmount are in 6-decimal USDC units (1e6 = $1).
//
// For BUY: maker gives MakerAmount USDC, receives TakerAmount tokens.
type SignedOrder struct {
	Salt          string        `json:"salt"`
	Maker         string        `json:"maker"`
	Signer        string        `json:"signer"`
	Taker         string        `json:"taker"`
	TokenID       string        `json:"tokenId"`
	MakerAmount   *big.Int      `json:"makerAmount"`
	TakerAmount   *big.Int      `json:"takerAmount"`
	Side          Side          `json:"side"`
	Expiration    string        `json:"expiration"` // unix timestamp as string, "" = none
	Nonce         string        `json:"nonce"`
	FeeRateBps    string        `json:"feeRateBps"`
	SignatureType SignatureType `json:"signatureType"`
	Signature     string        `json:"signature"`
}

// OrderPayload is the REST API request body for POST /order.
type OrderPayload struct {
	Order     SignedOrder `json:"order"`
	Owner     string      `json:"owner"` // API key of the order owner
	OrderType OrderType   `json:"orderType"`
}

// OrderResponse is the REST API response for an order submission.
// TakingAmount is the decimal-string share count the CLOB actually took on
// an FAK fill; it is always "0" for a resting GTD order (spec.md §6).
type OrderResponse struct {
	Success      bool   `json:"success"`
	ErrorMsg     string `json:"errorMsg"`
	OrderID      string `json:"orderID"`
	Status       string `json:"status"`
	TakingAmount string `json:"takingAmount"`
}

// ————————————————————————————————————————————————————————————————————————
// Order book (for risk-guard liquidity depth)
// ————————————————————————————————————————————————————————————————————————

// PriceLevel is a single bid or ask level in the order book.
type PriceLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// OrderBookSnapshot is a point-in-time view of one token's order book.
type OrderBookSnapshot struct {
	AssetID   string       // token ID this book belongs to
	Bids      []PriceLevel // sorted descending by price (best bid first)
	Asks      []PriceLevel // sorted ascending by price (best ask first)
	Hash      string       // server-provided hash for staleness detection
	Timestamp time.Time
}

// BookResponse is the REST response from GET /book for a single token.
type BookResponse struct {
	Market       string       `json:"market"`
	AssetID      string       `json:"asset_id"`
	Bids         []PriceLevel `json:"bids"`
	Asks         []PriceLevel `json:"asks"`
	Hash         string       `json:"hash"`
	Timestamp    string       `json:"timestamp"`
	MinOrderSize string       `json:"min_order_size"`
	TickSize     string       `json:"tick_size"`
	NegRisk      bool         `json:"neg_risk"`
}

// ————————————————————————————————————————————————————————————————————————
// Market metadata (for the market cache's class buffer / live-flag lookup)
// ————————————————————————————————————————————————————————————————————————

// TokenMeta is the per-token snapshot the market-metadata cache serves to
// the order-intent builder. Sport classifies the underlying market so the
// cache can add a class buffer (tennis/soccer/ATP → +0.01, per spec.md §3).
type TokenMeta struct {
	TokenID     string
	ConditionID string
	Slug        string
	Sport       string // "tennis", "soccer", "atp", or "" for unclassified
	Live        bool   // market is currently in its event window
	TickSize    TickSize
	EndDate     time.Time
}
