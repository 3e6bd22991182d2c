// cmd/backtest replays stored bars from SQLite through the strategy engine
// and paper execution, then prints the round-trip summary. With --fetch the
// bars are first downloaded from the exchange into the database.
//
// Usage:
//
//	go run ./cmd/backtest --symbol=BTCUSDT --interval=1h --fetch --from=2024-01-01
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"trendbot/config"
	"trendbot/internal/execution"
	"trendbot/internal/logger"
	"trendbot/internal/marketdata/binance"
	"trendbot/internal/marketdata/replay"
	"trendbot/internal/model"
	"trendbot/internal/portfolio"
	sqlitestore "trendbot/internal/store/sqlite"
	"trendbot/internal/strategy"
)

func main() {
	dbPath := flag.String("db", "data/backtest.db", "Path to SQLite database")
	symbol := flag.String("symbol", "BTCUSDT", "Symbol to replay")
	interval := flag.String("interval", "1h", "Kline interval")
	fromStr := flag.String("from", "", "Replay bars opening after this date (YYYY-MM-DD, empty = all)")
	fetch := flag.Bool("fetch", false, "Download bars since --from before replaying")
	restURL := flag.String("rest", "https://api.binance.com", "Exchange REST base URL for --fetch")
	strategyPath := flag.String("strategy", "", "Strategy YAML (default parameters when empty)")
	qty := flag.Float64("qty", 0.001, "Paper quantity per order")
	speed := flag.Float64("speed", 0, "Playback speed multiplier (0=max, 1=realtime, 100=100x)")
	level := flag.String("log", "warn", "Log level")
	flag.Parse()

	log := logger.Init("backtest", *level)

	var from time.Time
	if *fromStr != "" {
		t, err := time.Parse("2006-01-02", *fromStr)
		if err != nil {
			log.Fatal().Err(err).Msg("invalid --from")
		}
		from = t.UTC()
	}
	if _, err := config.IntervalDuration(*interval); err != nil {
		log.Fatal().Err(err).Msg("invalid --interval")
	}
	strat, err := config.LoadStrategy(*strategyPath)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid strategy config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	writer, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: *dbPath, Logger: log})
	if err != nil {
		log.Fatal().Err(err).Msg("sqlite open failed")
	}
	defer writer.Close()

	if *fetch {
		client := binance.NewClient(binance.RESTConfig{BaseURL: *restURL})
		start := from
		if start.IsZero() {
			start = time.Now().AddDate(0, -3, 0)
		}
		bars, err := client.History(ctx, *symbol, *interval, start, time.Now())
		if err != nil {
			log.Fatal().Err(err).Msg("fetching history failed")
		}
		if err := writer.InsertBars(bars); err != nil {
			log.Fatal().Err(err).Msg("storing history failed")
		}
		fmt.Printf("fetched %d bars\n", len(bars))
	}

	reader, err := sqlitestore.NewReader(*dbPath)
	if err != nil {
		log.Fatal().Err(err).Msg("sqlite reader open failed")
	}
	defer reader.Close()

	engine, err := strategy.NewEngine(strat, strategy.Options{Symbol: *symbol, Interval: *interval, Logger: log})
	if err != nil {
		log.Fatal().Err(err).Msg("engine init failed")
	}

	var clock time.Time
	placer := execution.NewPaperPlacer(decimal.NewFromFloat(*qty))
	placer.Now = func() time.Time { return clock }
	tracker := portfolio.NewPnLTracker()
	exec := execution.NewDispatcher(execution.Options{Placer: placer, Tracker: tracker, Logger: log})

	events := make(chan model.Event, 1024)
	var replayErr error
	var emitted int
	go func() {
		defer close(events)
		emitted, replayErr = replay.New(reader, log).Run(ctx, *symbol, *interval, from, *speed, events)
	}()

	var first, last time.Time
	intents := 0
	for ev := range events {
		bar := ev.Bar
		if first.IsZero() {
			first = bar.OpenTime
		}
		last = bar.OpenTime
		clock = bar.CloseTime

		intent, err := engine.OnBarClosed(bar)
		if err != nil {
			log.Warn().Err(err).Time("open_time", bar.OpenTime).Msg("bar rejected")
			continue
		}
		if intent == nil {
			continue
		}
		intents++
		if res := exec.Execute(ctx, *intent); res.RoundTrip != nil {
			rt := res.RoundTrip
			fmt.Printf("  %s  %-5s %s -> %s  %-14s %7s%%\n",
				rt.ExitTime.Format("2006-01-02 15:04"), rt.Side,
				rt.EntryPrice.StringFixed(2), rt.ExitPrice.StringFixed(2),
				rt.Reason, rt.PnLPct.StringFixed(2))
		}
	}
	if replayErr != nil && !errors.Is(replayErr, context.Canceled) {
		log.Error().Err(replayErr).Msg("replay failed")
		os.Exit(1)
	}

	s := tracker.Summary()
	fmt.Println()
	fmt.Println("╔══════════════════════════════════════╗")
	fmt.Println("║        BACKTEST COMPLETE             ║")
	fmt.Println("╠══════════════════════════════════════╣")
	fmt.Printf("║  Bars replayed:     %-16d ║\n", emitted)
	fmt.Printf("║  From:              %-16s ║\n", first.Format("2006-01-02"))
	fmt.Printf("║  To:                %-16s ║\n", last.Format("2006-01-02"))
	fmt.Printf("║  Intents:           %-16d ║\n", intents)
	fmt.Printf("║  Round trips:       %-16d ║\n", s.Trades)
	fmt.Printf("║  Win rate:          %-16s ║\n", s.WinRate.StringFixed(1)+"%")
	fmt.Printf("║  Total return:      %-16s ║\n", s.TotalPct.StringFixed(2)+"%")
	fmt.Printf("║  Max drawdown:      %-16s ║\n", s.MaxDrawdown.StringFixed(2)+"%")
	fmt.Printf("║  Realized PnL:      %-16s ║\n", s.TotalPnL.StringFixed(4))
	fmt.Printf("║  Open positions:    %-16d ║\n", s.Open)
	fmt.Println("╚══════════════════════════════════════╝")
}
