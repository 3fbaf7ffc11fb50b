package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/skysched/flightwx/internal/config"
	"github.com/skysched/flightwx/internal/db"
	"github.com/skysched/flightwx/internal/detector"
	"github.com/skysched/flightwx/internal/logger"
	"github.com/skysched/flightwx/internal/minimums"
	"github.com/skysched/flightwx/internal/monitor"
	"github.com/skysched/flightwx/internal/nats"
	"github.com/skysched/flightwx/internal/redis"
	"github.com/skysched/flightwx/internal/reschedule"
	"github.com/skysched/flightwx/internal/stats"
	"github.com/skysched/flightwx/internal/weather"
)

// clients bundles the external connections the monitor owns.
type clients struct {
	db    *db.Client
	redis *redis.Client
	nats  *nats.Client
}

func createClients(cfg *config.Config) (*clients, error) {
	dbClient, err := db.New(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	redisClient, err := redis.New(cfg.RedisAddr)
	if err != nil {
		dbClient.Close()
		return nil, err
	}
	natsClient, err := nats.New(cfg.NATSURL)
	if err != nil {
		dbClient.Close()
		redisClient.Close()
		return nil, err
	}
	return &clients{db: dbClient, redis: redisClient, nats: natsClient}, nil
}

func (c *clients) close(log *logger.Logger) {
	c.nats.Close()
	if err := c.redis.Close(); err != nil {
		log.Warn("redis close failed", "error", err)
	}
	if err := c.db.Close(); err != nil {
		log.Warn("database close failed", "error", err)
	}
}

// buildMonitor assembles the scan pipeline: gateway -> validator ->
// detector/engine -> monitor.
func buildMonitor(ctx context.Context, cfg *config.Config, cl *clients, st *stats.Stats, log *logger.Logger) *monitor.Monitor {
	cache := weather.NewCache(cfg.CacheTTL, cfg.CacheMaxEntries)
	cache.StartSweeper(ctx, cfg.CacheTTL/2)

	gateway := weather.NewGateway([]weather.Provider{
		weather.NewOpenMeteoProvider(cfg.OpenMeteoURL, cfg.ProviderTimeout),
		weather.NewAviationWxProvider(cfg.AviationWxURL, cfg.ProviderTimeout),
	}, cache, log.With("component", "weather-gateway"))

	validator := minimums.NewValidator(gateway)
	det := detector.New(validator)
	engine := reschedule.New(cl.db, cl.db, validator, log.With("component", "reschedule"))

	mcfg := monitor.DefaultConfig()
	mcfg.Lookahead = time.Duration(cfg.LookaheadHours) * time.Hour
	mcfg.Interval = cfg.ScanInterval
	mcfg.Concurrency = cfg.ScanConcurrency
	mcfg.BookingTimeout = cfg.BookingTimeout

	return monitor.New(mcfg, cl.db, cl.redis, cl.nats, det, engine, st, log.With("component", "monitor"))
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	cl, err := createClients(cfg)
	if err != nil {
		log.Fatal("failed to initialize clients", "error", err)
	}
	defer cl.close(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st := stats.New()
	mon := buildMonitor(ctx, cfg, cl, st, log)

	go mon.Start(ctx)
	log.Info("conflict monitor running",
		"lookahead_hours", cfg.LookaheadHours, "interval", cfg.ScanInterval.String())

	waitForShutdown(cancel, log)
}

func waitForShutdown(cancel context.CancelFunc, log *logger.Logger) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Info("shutting down conflict monitor")
	cancel()
	// give in-flight booking work a moment to release its locks
	time.Sleep(time.Second)
}
