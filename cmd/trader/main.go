// cmd/trader runs the live paper-trading bot: it warms the strategy up from
// exchange history, follows the kline and trade streams and routes every
// decision to execution, notification and storage.
//
// Usage:
//
//	go run ./cmd/trader --env=.env --strategy=configs/strategy.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"trendbot/config"
	"trendbot/internal/logger"
	"trendbot/internal/trader"
)

func main() {
	envFile := flag.String("env", ".env", "Path to the env file (optional)")
	strategyPath := flag.String("strategy", "", "Strategy YAML, overrides STRATEGY_PATH")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *strategyPath != "" {
		cfg.StrategyPath = *strategyPath
	}

	log := logger.Init("trader", cfg.LogLevel)

	strat, err := config.LoadStrategy(cfg.StrategyPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.StrategyPath).Msg("invalid strategy config")
	}

	svc, err := trader.New(cfg, strat, log)
	if err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := svc.Run(ctx); err != nil {
		log.Error().Err(err).Msg("trader stopped")
	}
	if err := svc.Close(); err != nil {
		log.Warn().Err(err).Msg("close")
	}
	log.Info().Msg("bye")
}
