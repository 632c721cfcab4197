package marketcache

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"whale-follower/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestClassBufferUnknownTokenDefaultsToZero(t *testing.T) {
	t.Parallel()
	c := New("http://localhost", testLogger())

	if got := c.ClassBuffer("unknown-token"); got != 0 {
		t.Errorf("ClassBuffer(unknown) = %v, want 0", got)
	}
}

func TestClassBufferSportMatch(t *testing.T) {
	t.Parallel()
	c := New("http://localhost", testLogger())
	c.tokens["tennis-token"] = types.TokenMeta{TokenID: "tennis-token", Sport: "tennis"}
	c.tokens["nba-token"] = types.TokenMeta{TokenID: "nba-token", Sport: "basketball"}

	if got := c.ClassBuffer("tennis-token"); got != classBufferAmount {
		t.Errorf("ClassBuffer(tennis) = %v, want %v", got, classBufferAmount)
	}
	if got := c.ClassBuffer("nba-token"); got != 0 {
		t.Errorf("ClassBuffer(basketball) = %v, want 0", got)
	}
}

func TestIsLiveUnknownTokenDefaultsFalse(t *testing.T) {
	t.Parallel()
	c := New("http://localhost", testLogger())

	if c.IsLive("unknown-token") {
		t.Error("IsLive(unknown) should default to false (longer GTD expiry)")
	}
}

func TestTickSizeDefaultsToStandard(t *testing.T) {
	t.Parallel()
	c := New("http://localhost", testLogger())

	if got := c.TickSize("unknown-token"); got != types.Tick001 {
		t.Errorf("TickSize(unknown) = %v, want Tick001", got)
	}
}

func TestParseTickSize(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw  string
		want types.TickSize
	}{
		{"0.1", types.Tick01},
		{"0.01", types.Tick001},
		{"0.001", types.Tick0001},
		{"0.0001", types.Tick00001},
		{"garbage", types.Tick001},
	}
	for _, tt := range tests {
		if got := parseTickSize(tt.raw); got != tt.want {
			t.Errorf("parseTickSize(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

type fakeBooks struct{ resp *types.BookResponse }

func (f fakeBooks) GetOrderBook(ctx context.Context, tokenID string) (*types.BookResponse, error) {
	return f.resp, nil
}

func TestDepthReaderSumsQualifyingAsks(t *testing.T) {
	t.Parallel()
	c := New("http://localhost", testLogger())
	reader := c.WithBookClient(fakeBooks{resp: &types.BookResponse{
		Asks: []types.PriceLevel{
			{Price: "0.49", Size: "100"},
			{Price: "0.51", Size: "200"}, // above price, excluded
		},
	}})

	depth, err := reader.BestDepthUSD(context.Background(), "tok", 0.50)
	if err != nil {
		t.Fatalf("BestDepthUSD: %v", err)
	}
	if depth != 49.0 {
		t.Errorf("depth = %v, want 49.0", depth)
	}
}
