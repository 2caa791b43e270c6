package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"pcdealtracker/config"
	"pcdealtracker/internal/api"
	"pcdealtracker/internal/catalog"
	"pcdealtracker/internal/collector"
	"pcdealtracker/internal/deals"
	"pcdealtracker/internal/ingest"
	"pcdealtracker/internal/ledger"
	"pcdealtracker/internal/matcher"
	"pcdealtracker/internal/scheduler"
	"pcdealtracker/internal/store"
	"pcdealtracker/logger"
	"pcdealtracker/services/cache"
	"pcdealtracker/services/publisher"
)

func main() {
	_ = godotenv.Load()
	logger.Init()

	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(cfg)
	if err != nil {
		logger.Fatal("Store initialization failed: %v", err)
	}

	retailers, collectors, err := seed(st, cfg)
	if err != nil {
		logger.Fatal("Seeding reference data failed: %v", err)
	}

	pub := publisher.NewRedisPublisher(ctx, cfg.RedisAddr, cfg.RedisDB, cfg.RedisStream, cfg.RedisStreamMaxLen)
	defer pub.Close()

	ing := ingest.New(st, matcher.New(st, matcher.DefaultOptions()), ledger.New(st), deals.New(st), pub)

	sched := scheduler.New(scheduler.Config{
		Interval:             cfg.ScrapeInterval,
		Timeout:              cfg.CollectorTimeout,
		MaxConcurrent:        cfg.MaxConcurrentScrapers,
		RetryMaxAttempts:     cfg.RetryMaxAttempts,
		BreakerFailureCycles: cfg.BreakerFailureCycles,
	}, ing, retailers, collectors)

	opts := []api.Option{api.WithSchedulerStates(sched.States)}
	if cfg.MemcacheAddr != "" {
		opts = append(opts, api.WithCache(cache.NewMemcacheService(cfg.MemcacheAddr), cfg.APICacheTTL))
	}
	server := api.New(st, ledger.New(st), opts...)

	schedDone := make(chan struct{})
	go func() {
		sched.Run(ctx)
		close(schedDone)
	}()

	if err := server.Run(ctx, cfg.APIAddr); err != nil {
		logger.Error("API server: %v", err)
	}

	// The scheduler drains in-flight scrape cycles; give it a hard deadline.
	select {
	case <-schedDone:
	case <-time.After(30 * time.Second):
		logger.Warn("Scheduler did not drain in time, exiting")
	}
	logger.Info("Shutdown complete")
}

// openStore selects Postgres when DATABASE_URL is set and falls back to the
// in-memory store otherwise.
func openStore(cfg config.Config) (store.Store, error) {
	if cfg.DatabaseURL == "" {
		logger.Info("DATABASE_URL not set, using in-memory store")
		return store.NewMemoryStore(), nil
	}
	ps, err := store.OpenPostgres(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	logger.Info("Connected to Postgres")
	return ps, nil
}

// seed upserts the category taxonomy and the retailer roster, and builds one
// collector per retailer. Upserts keep IDs stable across restarts.
func seed(st store.Store, cfg config.Config) ([]*catalog.Retailer, []collector.Collector, error) {
	for _, c := range catalog.DefaultCategories() {
		cat := c
		if err := st.UpsertCategory(&cat); err != nil {
			return nil, nil, err
		}
	}

	var retailers []*catalog.Retailer
	var collectors []collector.Collector
	for _, cc := range collector.DefaultConfigs() {
		r := &catalog.Retailer{Name: cc.Name, BaseURL: cc.BaseURL}
		if err := st.UpsertRetailer(r); err != nil {
			return nil, nil, err
		}
		retailers = append(retailers, r)
		collectors = append(collectors, collector.New(cc, cfg.RequestDelay))
	}
	return retailers, collectors, nil
}
