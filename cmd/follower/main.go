// Whale Follower — a copy-trading bot that watches a configured set of
// Polymarket wallet addresses for large fills and mirrors them with a
// scaled-down order of its own, chasing unfilled remainder through a
// bounded FAK-then-GTD resubmit chain.
//
// Architecture:
//
//	main.go                    — entry point: loads config, starts engine, waits for SIGINT/SIGTERM
//	internal/engine            — orchestrator: wires ingest → dispatch → order/resubmit workers
//	internal/ingest            — WebSocket feed of whale fills, with auto-reconnect
//	internal/orderintent       — turns a whale fill event into a sized, priced order
//	internal/tierpolicy        — whale-size tiers: resubmit attempt budget and price-increment cadence
//	internal/sizing            — follower order sizing from whale shares and configured ratio
//	internal/resubmit          — the FAK-chase-then-GTD state machine
//	internal/riskguard         — per-market and global exposure limits, kill switch
//	internal/marketcache       — market metadata cache (live flag, class buffer, tick size) polled from the Gamma API, plus book-depth reads via the CLOB client
//	internal/clob              — REST client for the Polymarket CLOB API (auth, submit, book)
//	internal/dispatch          — bounded event queue and unbounded resubmit queue
//	internal/tradelog          — append-only CSV log of every terminal resubmit outcome
//	internal/dashboard         — optional read-only status server (snapshot + WebSocket push)
//
// The bot never quotes or makes a market of its own; every order it places
// is a reaction to an observed whale fill.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"whale-follower/internal/config"
	"whale-follower/internal/engine"
)

func main() {
	cfgPath := "configs/config.yaml"
	if p := os.Getenv("WHALE_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", cfgPath)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Logging.Level)}
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)

	eng, err := engine.New(*cfg, logger)
	if err != nil {
		logger.Error("failed to create engine", "error", err)
		os.Exit(1)
	}

	if err := eng.Start(); err != nil {
		logger.Error("failed to start engine", "error", err)
		os.Exit(1)
	}

	if cfg.Dashboard.Enabled {
		logger.Info("dashboard started", "url", fmt.Sprintf("http://localhost:%d", cfg.Dashboard.Port))
	}

	if cfg.DryRun {
		logger.Warn("DRY-RUN MODE — no real orders will be placed")
	}

	logger.Info("whale follower started",
		"whales", len(cfg.Whales.Addresses),
		"scaling_ratio", cfg.Sizing.ScalingRatio,
		"max_exposure", cfg.Risk.MaxGlobalExposure,
		"dry_run", cfg.DryRun,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig.String())

	eng.Stop()
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
