// Package trader wires the live trading process: exchange feed, engine,
// execution, notification, persistence and scheduled jobs.
package trader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"trendbot/config"
	"trendbot/internal/execution"
	"trendbot/internal/marketdata/binance"
	"trendbot/internal/marketdata/bus"
	"trendbot/internal/metrics"
	"trendbot/internal/model"
	"trendbot/internal/notification"
	"trendbot/internal/portfolio"
	redisstore "trendbot/internal/store/redis"
	sqlitestore "trendbot/internal/store/sqlite"
	"trendbot/internal/strategy"
)

const (
	eventQueueSize = 4096
	outputBufSize  = 256
	probeInterval  = 30 * time.Second
)

// Service owns every component of one trading process.
type Service struct {
	cfg    *config.Config
	log    zerolog.Logger
	prom   *metrics.Metrics
	health *metrics.HealthStatus

	engine  *strategy.Engine
	source  model.BarSource
	stream  *binance.Stream
	sqlW    *sqlitestore.Writer
	sqlR    *sqlitestore.Reader
	redisW  *redisstore.Writer
	redisBW *redisstore.BufferedWriter
	journal *execution.Journal
	tracker *portfolio.PnLTracker
	exec    *execution.Dispatcher
	relay   *notification.Relay
	server  *metrics.Server
	sched   *gocron.Scheduler

	// redisCancel stops background Redis flushes.
	redisCancel context.CancelFunc
}

// New builds a Service. Redis and the notification backends are optional;
// SQLite and the exchange endpoints are not.
func New(cfg *config.Config, strat strategy.Config, logger zerolog.Logger) (*Service, error) {
	s := &Service{
		cfg:     cfg,
		log:     logger.With().Str("component", "trader").Logger(),
		prom:    metrics.NewMetrics(),
		health:  metrics.NewHealthStatus(),
		tracker: portfolio.NewPnLTracker(),
	}

	engine, err := strategy.NewEngine(strat, strategy.Options{
		Symbol:   cfg.Symbol,
		Interval: cfg.Interval,
		Logger:   logger,
		Metrics:  s.prom,
	})
	if err != nil {
		return nil, err
	}
	s.engine = engine

	s.source = binance.NewClient(binance.RESTConfig{BaseURL: cfg.RESTURL})
	s.stream, err = binance.NewStream(binance.StreamConfig{
		BaseURL:  cfg.StreamURL,
		Symbol:   cfg.Symbol,
		Interval: cfg.Interval,
		Trades:   cfg.TickExits,
	}, logger)
	if err != nil {
		return nil, err
	}
	s.stream.OnConnect = s.health.SetWSConnected
	s.stream.OnReconnect = s.prom.WSReconnects.Inc

	if err := s.openStores(logger); err != nil {
		s.Close()
		return nil, err
	}

	s.exec = execution.NewDispatcher(execution.Options{
		Placer:  execution.NewPaperPlacer(decimal.NewFromFloat(cfg.PaperQty)),
		Journal: s.journal,
		Tracker: s.tracker,
		Metrics: s.prom,
		Logger:  logger,
	})
	s.relay = notification.NewRelay(s.notifier(logger), notification.RelayOptions{
		Size:     decimal.NewFromFloat(cfg.PaperQty).String(),
		Location: cfg.Location(),
		Metrics:  s.prom,
		Logger:   logger,
	})

	s.server = metrics.NewServer(cfg.MetricsAddr, s.health, logger)
	if s.sched, err = s.schedule(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Service) openStores(logger zerolog.Logger) error {
	if dir := filepath.Dir(s.cfg.SQLitePath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating data dir: %w", err)
		}
	}

	var err error
	s.sqlW, err = sqlitestore.New(sqlitestore.WriterConfig{DBPath: s.cfg.SQLitePath, Logger: logger, Metrics: s.prom})
	if err != nil {
		return err
	}
	s.health.SetSQLiteOK(true)
	if s.sqlR, err = sqlitestore.NewReader(s.cfg.SQLitePath); err != nil {
		return err
	}
	if s.journal, err = execution.NewJournal(s.cfg.SQLitePath); err != nil {
		return err
	}

	if s.cfg.RedisAddr == "" {
		return nil
	}
	s.health.SetRedisEnabled(true)
	s.redisW, err = redisstore.New(redisstore.WriterConfig{
		Addr:     s.cfg.RedisAddr,
		Password: s.cfg.RedisPassword,
	}, logger, s.prom)
	if err != nil {
		// Redis only feeds dashboards; trade without it.
		s.log.Warn().Err(err).Msg("redis unavailable, continuing without it")
		s.health.SetRedisConnected(false)
		return nil
	}
	s.health.SetRedisConnected(true)

	cb := redisstore.NewCircuitBreaker(5, 10*time.Second)
	cb.Instrument(s.prom)
	ctx, cancel := context.WithCancel(context.Background())
	s.redisCancel = cancel
	s.redisBW = redisstore.NewBufferedWriter(ctx, s.redisW, cb, 0, logger)
	s.redisBW.OnBuffer = s.prom.RedisBufferedWrites.Inc
	return nil
}

func (s *Service) notifier(logger zerolog.Logger) notification.Notifier {
	n := notification.Multi{notification.NewLogNotifier(logger)}
	if s.cfg.TelegramToken != "" {
		n = append(n, notification.NewTelegramNotifier(s.cfg.TelegramToken, s.cfg.TelegramChatID))
	}
	if s.cfg.WebhookURL != "" {
		n = append(n, notification.NewWebhookNotifier(s.cfg.WebhookURL))
	}
	return n
}

// schedule registers the daily PnL report and the periodic health probe.
// Jobs start with Run.
func (s *Service) schedule() (*gocron.Scheduler, error) {
	sched := gocron.NewScheduler(s.cfg.Location())
	sched.SingletonModeAll()

	if _, err := sched.Every(1).Day().At(s.cfg.ReportAt).Do(s.DailyReport); err != nil {
		return nil, fmt.Errorf("scheduling daily report: %w", err)
	}
	if _, err := sched.Every(probeInterval).Do(s.probe); err != nil {
		return nil, fmt.Errorf("scheduling health probe: %w", err)
	}
	return sched, nil
}

func (s *Service) probe() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sqlDB := s.sqlW.DB()
	if s.redisW != nil {
		s.health.Probe(ctx, s.redisW.Client(), sqlDB)
	} else {
		s.health.Probe(ctx, nil, sqlDB)
	}
}

// DailyReport notifies a summary of the round trips closed in the last day.
func (s *Service) DailyReport() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	since := time.Now().Add(-24 * time.Hour)
	summary := s.tracker.SummarySince(since)
	if trips, err := s.journal.RoundTrips(ctx, since); err == nil && len(trips) > summary.Trades {
		// The journal also holds trips from before a restart.
		open := summary.Open
		summary = portfolio.Summarize(trips)
		summary.Open = open
	}

	title := fmt.Sprintf("DAILY REPORT %s", s.cfg.Symbol)
	s.relay.Notify(ctx, notification.ReportAlert(title, summary))
}

// Warmup preloads the engine with recent closed bars. Bars come from the
// exchange and are stored; stored bars are the fallback when the exchange is
// unreachable.
func (s *Service) Warmup(ctx context.Context) error {
	bars, err := s.source.Klines(ctx, s.cfg.Symbol, s.cfg.Interval, s.cfg.WarmupLimit, time.Time{})
	if err != nil {
		s.log.Warn().Err(err).Msg("warm-up fetch failed, using stored bars")
		if bars, err = s.sqlR.LatestBars(s.cfg.Symbol, s.cfg.Interval, s.cfg.WarmupLimit); err != nil {
			return fmt.Errorf("reading stored bars: %w", err)
		}
	} else if err := s.sqlW.InsertBars(bars); err != nil {
		s.log.Warn().Err(err).Msg("storing warm-up bars failed")
	}

	n := s.engine.Warmup(bars)
	need := s.engine.Config().WarmupBars()
	ev := s.log.Info()
	if n < need {
		ev = s.log.Warn()
	}
	ev.Int("accepted", n).Int("needed", need).Msg("warm-up done")
	if n > 0 {
		s.health.SetLastBarTime(s.engine.LastBarTime())
	}
	return nil
}

// Run starts every component and blocks until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	if err := s.Warmup(ctx); err != nil {
		return err
	}
	s.server.Start()
	s.sched.StartAsync()
	s.health.SetEngineOK(true)

	var wg sync.WaitGroup
	goRun := func(f func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f()
		}()
	}

	raw := make(chan model.Event, eventQueueSize)
	events := make(chan model.Event, eventQueueSize)
	decisions := make(chan model.Decision, outputBufSize)
	bars := make(chan model.Bar, outputBufSize)

	decisionBus := bus.New[model.Decision](outputBufSize, s.log)
	barBus := bus.New[model.Bar](outputBufSize, s.log)
	onDrop := func(name string) { s.prom.FanoutDropsTotal.WithLabelValues(name).Inc() }
	decisionBus.OnDrop = onDrop
	barBus.OnDrop = onDrop

	execIn := decisionBus.Subscribe("execution")
	notifyIn := decisionBus.Subscribe("notification")
	sqlDecisions := decisionBus.Subscribe("sqlite-decisions")
	sqlBars := barBus.Subscribe("sqlite-bars")
	goRun(func() { s.exec.Run(ctx, execIn) })
	goRun(func() { s.relay.Run(ctx, notifyIn) })
	goRun(func() { s.sqlW.RunDecisions(ctx, sqlDecisions) })
	goRun(func() { s.sqlW.RunBars(ctx, sqlBars) })
	if s.redisBW != nil {
		redisDecisions := decisionBus.Subscribe("redis-decisions")
		redisBars := barBus.Subscribe("redis-bars")
		goRun(func() { s.redisBW.RunDecisions(ctx, redisDecisions) })
		goRun(func() { s.redisBW.RunBars(ctx, redisBars) })
	}
	goRun(func() { decisionBus.Run(ctx, decisions) })
	goRun(func() { barBus.Run(ctx, bars) })

	goRun(func() {
		err := s.engine.Run(ctx, events, strategy.Outputs{Decisions: decisions, Bars: bars})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.log.Error().Err(err).Msg("engine stopped")
		}
		s.health.SetEngineOK(false)
	})
	goRun(func() { s.tap(ctx, raw, events) })
	goRun(func() {
		if err := s.stream.Start(ctx, raw); err != nil {
			s.log.Error().Err(err).Msg("stream stopped")
		}
	})

	s.log.Info().Str("symbol", s.cfg.Symbol).Str("interval", s.cfg.Interval).Msg("trader running")
	<-ctx.Done()
	s.log.Info().Msg("shutting down")

	s.sched.Stop()
	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.server.Stop(stopCtx)

	wg.Wait()
	return nil
}

// tap records feed liveness and forwards events to the engine in order.
func (s *Service) tap(ctx context.Context, in <-chan model.Event, out chan<- model.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-in:
			switch ev.Kind {
			case model.EventBar:
				s.health.SetLastBarTime(ev.Bar.OpenTime)
			case model.EventTick:
				s.health.SetLastTickTime(ev.Tick.TS)
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}
}

// Close releases every store. Safe to call on a partially built Service.
func (s *Service) Close() error {
	if s.redisCancel != nil {
		s.redisCancel()
	}
	var errs []error
	if s.redisBW != nil {
		errs = append(errs, s.redisBW.Close())
	}
	if s.journal != nil {
		errs = append(errs, s.journal.Close())
	}
	if s.sqlR != nil {
		errs = append(errs, s.sqlR.Close())
	}
	if s.sqlW != nil {
		errs = append(errs, s.sqlW.Close())
	}
	return errors.Join(errs...)
}
