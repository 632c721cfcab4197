package clob

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"testing"

	"whale-follower/internal/config"
	"whale-follower/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newDryRunClient() *Client {
	return &Client{dryRun: true, rl: NewRateLimiter(), logger: testLogger(), auth: &Auth{}}
}

func TestDryRunSubmitOrder(t *testing.T) {
	t.Parallel()
	c := newDryRunClient()

	resp, err := c.SubmitOrder(context.Background(), types.UserOrder{
		TokenID: "tok1", Price: 0.51, Size: 100, Side: types.BUY, OrderType: types.OrderTypeFAK, TickSize: types.Tick01,
	})
	if err != nil {
		t.Fatalf("SubmitOrder: %v", err)
	}
	if !resp.Success {
		t.Error("resp.Success = false, want true")
	}
	if resp.TakingAmount != "100.00" {
		t.Errorf("resp.TakingAmount = %q, want 100.00", resp.TakingAmount)
	}
}

func TestNewClientDryRunFromConfig(t *testing.T) {
	t.Parallel()

	cfg := config.Config{DryRun: true, API: config.APIConfig{CLOBBaseURL: "http://localhost"}}
	c := NewClient(cfg, &Auth{}, testLogger())

	if !c.dryRun {
		t.Error("client.dryRun should be true when config.DryRun is true")
	}
}

func TestBuildOrderPayload(t *testing.T) {
	t.Parallel()

	cfg := config.Config{
		Wallet: config.WalletConfig{
			PrivateKey:    "0x1111111111111111111111111111111111111111111111111111111111111111",
			ChainID:       137,
			SignatureType: 0,
		},
		API: config.APIConfig{
			CLOBBaseURL: "http://localhost",
			ApiKey:      "test-key",
			Secret:      "test-secret",
			Passphrase:  "test-pass",
		},
	}

	auth, err := NewAuth(cfg)
	if err != nil {
		t.Fatalf("NewAuth: %v", err)
	}

	c := NewClient(cfg, auth, testLogger())
	payload := c.buildOrderPayload(types.UserOrder{
		TokenID:    "12345678901234567890",
		Price:      0.55,
		Size:       10,
		Side:       types.BUY,
		OrderType:  types.OrderTypeFAK,
		TickSize:   types.Tick001,
		Expiration: 0,
	})

	if payload.Order.Nonce != "0" {
		t.Errorf("nonce = %q, want 0", payload.Order.Nonce)
	}
	if payload.Owner != "test-key" {
		t.Errorf("owner = %q, want test-key", payload.Owner)
	}
	if payload.Order.Expiration != "" {
		t.Errorf("expiration = %q, want empty for FAK", payload.Order.Expiration)
	}
	if !strings.EqualFold(payload.Order.Signer, auth.Address().Hex()) {
		t.Errorf("signer = %q, want %q", payload.Order.Signer, auth.Address().Hex())
	}
}

func TestBuildOrderPayloadGTDSetsExpiration(t *testing.T) {
	t.Parallel()

	cfg := config.Config{
		Wallet: config.WalletConfig{PrivateKey: "0x1111111111111111111111111111111111111111111111111111111111111111", ChainID: 137},
		API:    config.APIConfig{ApiKey: "k", Secret: "s", Passphrase: "p"},
	}
	auth, err := NewAuth(cfg)
	if err != nil {
		t.Fatalf("NewAuth: %v", err)
	}
	c := NewClient(cfg, auth, testLogger())

	payload := c.buildOrderPayload(types.UserOrder{
		TokenID: "1", Price: 0.5, Size: 1, Side: types.BUY, OrderType: types.OrderTypeGTD,
		TickSize: types.Tick01, Expiration: 1700000300,
	})

	if payload.Order.Expiration != "1700000300" {
		t.Errorf("expiration = %q, want 1700000300", payload.Order.Expiration)
	}
}
