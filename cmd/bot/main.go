// Odds Maximizer — an automated maker bot for a peer-to-peer sports
// betting exchange.
//
// Architecture:
//
//	main.go                 — entry point: loads config, wires components, waits for SIGINT/SIGTERM
//	engine/engine.go        — operator surface: create/list/edit/close positions, shutdown
//	engine/monitor.go       — per-market glue: mirror updates → fill + market-data events
//	engine/serializer.go    — per-position FIFO operation queues
//	strategy/controller.go  — quoting policy: premium over best taker odds, risk pauses, fills
//	market/mirror.go        — local order book mirror with derived metrics
//	market/recent_cancels.go— TTL map crediting fills that race our cancels
//	exchange/client.go      — REST gateway (post/cancel orders, snapshots, catalogue)
//	exchange/ws.go          — order book push feed with auto-reconnect
//	exchange/stream.go      — push transport with poll-snapshot fallback
//	risk/gate.go            — vig and liquidity thresholds per position
//	store/store.go          — in-memory position set
//
// How it makes money:
//
//	The bot rests a maker order on the operator's chosen outcome at a
//	configurable premium below the going taker price. Takers who want
//	immediate execution cross it, handing the bot better-than-market
//	odds on every fill. Risk gates pull the quote whenever the market's
//	overround or depth moves against the position.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/declansx/odds-maximizer-betting-bot/internal/api"
	"github.com/declansx/odds-maximizer-betting-bot/internal/config"
	"github.com/declansx/odds-maximizer-betting-bot/internal/engine"
	"github.com/declansx/odds-maximizer-betting-bot/internal/exchange"
	"github.com/declansx/odds-maximizer-betting-bot/internal/market"
	"github.com/declansx/odds-maximizer-betting-bot/internal/store"
	"github.com/declansx/odds-maximizer-betting-bot/internal/strategy"
	"github.com/declansx/odds-maximizer-betting-bot/pkg/odds"
	"github.com/declansx/odds-maximizer-betting-bot/pkg/stake"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// .env is optional; real deployments export the variables directly
	_ = godotenv.Load()

	cfgPath := "configs/config.yaml"
	if p := os.Getenv("SX_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config %s: %w", cfgPath, err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Set up logger
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Logging.Level)}
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)

	oddsUnit, ladderStep, stakeUnit, err := cfg.Venue.Constants()
	if err != nil {
		return err
	}
	ladder, err := odds.NewLadder(oddsUnit, ladderStep)
	if err != nil {
		return err
	}
	scale, err := stake.NewScale(stakeUnit)
	if err != nil {
		return err
	}

	auth, err := exchange.NewAuth(*cfg)
	if err != nil {
		return fmt.Errorf("init signer: %w", err)
	}
	self := auth.Address().Hex()
	logger.Info("starting odds maximizer",
		"maker", self,
		"dryRun", cfg.DryRun,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := exchange.NewClient(*cfg, auth, ladder, logger)
	feed := exchange.NewWSFeed(cfg.API.WSURL, cfg.API.ApiKey, logger)
	stream := exchange.NewStream(feed, client, cfg.Trading.PollFallbackInterval, logger)

	positions := store.New()
	cancels := market.NewRecentCancels(cfg.Trading.RecentCancelTTL)
	serializer := engine.NewSerializer(ctx, logger)
	bus := engine.NewBus()

	controller := strategy.NewController(
		positions, client, cancels, ladder,
		cfg.Trading.CompleteFraction,
		cfg.Trading.MinOrderUpdateInterval,
		logger,
	)
	controller.SetNotifier(func(eventType, positionID string, data interface{}) {
		bus.Publish(engine.Event{Type: eventType, PositionID: positionID, Data: data})
	})

	monitor := engine.NewMonitor(stream, positions, serializer, controller, cancels, self, oddsUnit, logger)
	eng := engine.New(positions, serializer, monitor, controller, client, bus, logger)

	go func() {
		if err := feed.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("push feed stopped", "error", err)
		}
	}()
	go func() {
		if err := stream.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("stream stopped", "error", err)
		}
	}()

	if !feed.WaitReady(ctx, 5*time.Second) {
		logger.Warn("push channel not ready, running on poll fallback",
			"interval", cfg.Trading.PollFallbackInterval)
	}

	var apiServer *api.Server
	if cfg.Operator.Enabled {
		apiServer = api.NewServer(cfg.Operator.Port, eng, client, bus, scale, logger)
		go func() {
			if err := apiServer.Start(); err != nil {
				logger.Error("operator api stopped", "error", err)
			}
		}()
	}

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := eng.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown cancel-all failed", "error", err)
	}
	if apiServer != nil {
		if err := apiServer.Stop(); err != nil {
			logger.Error("api stop failed", "error", err)
		}
	}
	cancel()
	feed.Close()
	logger.Info("shutdown complete")
	return nil
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
