package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"ticklake/internal/api"
	"ticklake/internal/config"
	"ticklake/internal/domain"
	"ticklake/internal/gather/ticks"
	"ticklake/internal/metrics"
	"ticklake/internal/notify"
	"ticklake/internal/queue"
	"ticklake/internal/source"
	"ticklake/internal/util"
	"ticklake/internal/warehouse"
)

func main() {
	once := flag.Bool("once", false, "exit once the todo queue is drained")
	flag.Parse()

	cfgPath := "config/ticklake.yaml"
	if p := os.Getenv("TICKLAKE_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.File)
	util.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	m := metrics.New()

	store, err := queue.Open(ctx, cfg.Queue)
	if err != nil {
		log.Fatalf("opening queue: %v", err)
	}
	defer store.Close()

	wh, err := warehouse.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("opening warehouse: %v", err)
	}
	defer wh.Close()

	notifier, err := notify.Open(ctx, cfg.Notify)
	if err != nil {
		log.Fatalf("opening notifier: %v", err)
	}
	defer notifier.Close()

	// Source stack: rate-limited Alpaca adapter, wrapped with same-window retries.
	limiter := util.NewRateLimiter(cfg.Source.RateLimitPerMin)
	upstream := source.NewAlpacaSource(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.DataURL, cfg.Alpaca.Feed, limiter)
	src := ticks.NewRetryingSource(upstream, cfg.Retrieval.FetchMaxElapsed, m)
	resolver := source.NewAssetResolver(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.BaseURL, cfg.Source.AssetCacheTTL)

	client := queue.NewClient(store, queue.Worker{
		User:       cfg.Instance.User,
		Account:    cfg.Instance.Account,
		Resolution: cfg.Instance.Resolution,
	})
	srv := api.NewServer(cfg, client, m)

	r := cfg.Retrieval
	hour, minute, _ := config.ParseClock(r.RestartTime)
	loc, _ := time.LoadLocation(r.RestartLocation)
	calendar := util.NewRestartCalendar(hour, minute, loc, r.RestartBefore, r.RestartAfter)
	guard := ticks.NewRestartGuard(calendar, r.RestartPause, upstream, srv.SetServing, m)

	locator := ticks.NewLocator(src, cfg.Source.ProbeSize, r.HorizonYears)
	retriever := ticks.NewRetriever(src, wh, locator, guard, ticks.RetrieverConfig{
		PageSize:       cfg.Source.PageSize,
		FlushThreshold: r.FlushThreshold,
		GapSkip:        r.GapSkip,
	}, m)

	machine := queue.NewStateMachine(client,
		queue.WithLogger(logger),
		queue.WithObserver(func(t queue.Transition) {
			m.Transition(string(t.From), string(t.To))
		}),
	)

	idle := r.IdleWait
	if *once {
		idle = 0
	}
	collector := ticks.NewCollector(machine, resolver, retriever, notifier, m, ticks.CollectorConfig{
		Kinds:             domain.RetrievalKinds,
		IdleWait:          idle,
		ErrorCooldown:     r.ErrorCooldown,
		MaxTickerFailures: r.MaxFailures,
	})

	slog.Info("starting tick collector",
		"worker", client.Field(queue.Doing),
		"queue", cfg.Queue.Backend,
		"warehouse", cfg.Warehouse.Backend,
		"notify", cfg.Notify.Backend,
		"next_restart", calendar.Next(time.Now()),
		"once", *once,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.ListenAndServe(gctx) })
	g.Go(func() error {
		// Stop the listeners once the collector is done.
		defer cancel()
		err := collector.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("collector error: %v", err)
	}
	slog.Info("tick collector stopped")
}
