package ingest

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"whale-follower/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestToWhaleFillEventAcceptsBuyFill(t *testing.T) {
	t.Parallel()
	parsed := types.ParsedEvent{
		BlockNumber: 100,
		TxHash:      "0xabc",
		Whale:       "0xWhale",
		Order: types.ParsedOrder{
			OrderType:     types.RawBuyFill,
			ClobTokenID:   "123",
			USDValue:      50,
			Shares:        100,
			PricePerShare: 0.5,
		},
	}

	event, ok := ToWhaleFillEvent(parsed)
	if !ok {
		t.Fatal("expected ok=true for valid BUY_FILL")
	}
	if !event.SideIsBuy {
		t.Error("expected SideIsBuy=true")
	}
	if event.TokenID != "123" {
		t.Errorf("TokenID = %q, want 123", event.TokenID)
	}
}

func TestToWhaleFillEventAcceptsSellFill(t *testing.T) {
	t.Parallel()
	parsed := types.ParsedEvent{
		Order: types.ParsedOrder{
			OrderType:     types.RawSellFill,
			ClobTokenID:   "123",
			Shares:        10,
			PricePerShare: 0.4,
		},
	}
	event, ok := ToWhaleFillEvent(parsed)
	if !ok {
		t.Fatal("expected ok=true for valid SELL_FILL")
	}
	if event.SideIsBuy {
		t.Error("expected SideIsBuy=false")
	}
}

func TestToWhaleFillEventRejectsNonFillOrderTypes(t *testing.T) {
	t.Parallel()
	for _, ot := range []types.RawOrderType{types.RawBuy, types.RawSell} {
		parsed := types.ParsedEvent{Order: types.ParsedOrder{
			OrderType: ot, Shares: 10, PricePerShare: 0.5,
		}}
		if _, ok := ToWhaleFillEvent(parsed); ok {
			t.Errorf("order type %v should not qualify as a fill", ot)
		}
	}
}

func TestToWhaleFillEventRejectsInvalidShares(t *testing.T) {
	t.Parallel()
	parsed := types.ParsedEvent{Order: types.ParsedOrder{
		OrderType: types.RawBuyFill, Shares: 0, PricePerShare: 0.5,
	}}
	if _, ok := ToWhaleFillEvent(parsed); ok {
		t.Error("zero shares should be rejected")
	}
}

func TestToWhaleFillEventRejectsOutOfRangePrice(t *testing.T) {
	t.Parallel()
	for _, price := range []float64{0, 1, 1.5, -0.1} {
		parsed := types.ParsedEvent{Order: types.ParsedOrder{
			OrderType: types.RawBuyFill, Shares: 10, PricePerShare: price,
		}}
		if _, ok := ToWhaleFillEvent(parsed); ok {
			t.Errorf("price %v should be rejected", price)
		}
	}
}

func TestNormalizeAddrLowercases(t *testing.T) {
	t.Parallel()
	if got := normalizeAddr("0xABCdef"); got != "0xabcdef" {
		t.Errorf("normalizeAddr = %q, want 0xabcdef", got)
	}
}

func TestFeedFiltersUntrackedWhales(t *testing.T) {
	t.Parallel()
	f := New("ws://localhost", []string{"0xTracked"}, 50*time.Second, time.Second, testLogger())

	trackedMsg := []byte(`{"whale_address":"0xTracked","order":{"order_type":"BUY_FILL","clob_token_id":"1","shares":10,"price_per_share":0.5}}`)
	untrackedMsg := []byte(`{"whale_address":"0xOther","order":{"order_type":"BUY_FILL","clob_token_id":"1","shares":10,"price_per_share":0.5}}`)

	f.dispatchMessage(trackedMsg)
	f.dispatchMessage(untrackedMsg)

	select {
	case evt := <-f.Events():
		if evt.Whale != "0xTracked" {
			t.Errorf("got event from %q, want 0xTracked", evt.Whale)
		}
	default:
		t.Fatal("expected one event from tracked whale")
	}

	select {
	case evt := <-f.Events():
		t.Fatalf("unexpected second event: %+v", evt)
	default:
	}
}

func TestFeedDropsMalformedMessages(t *testing.T) {
	t.Parallel()
	f := New("ws://localhost", []string{"0xTracked"}, 50*time.Second, time.Second, testLogger())
	f.dispatchMessage([]byte("not json"))

	select {
	case evt := <-f.Events():
		t.Fatalf("unexpected event from malformed message: %+v", evt)
	default:
	}
}
