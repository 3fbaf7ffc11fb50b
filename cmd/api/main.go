package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/skysched/flightwx/internal/api"
	"github.com/skysched/flightwx/internal/config"
	"github.com/skysched/flightwx/internal/db"
	"github.com/skysched/flightwx/internal/detector"
	"github.com/skysched/flightwx/internal/logger"
	"github.com/skysched/flightwx/internal/minimums"
	"github.com/skysched/flightwx/internal/monitor"
	"github.com/skysched/flightwx/internal/nats"
	"github.com/skysched/flightwx/internal/preference"
	"github.com/skysched/flightwx/internal/redis"
	"github.com/skysched/flightwx/internal/reschedule"
	"github.com/skysched/flightwx/internal/stats"
	"github.com/skysched/flightwx/internal/weather"
)

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

	dbClient, err := db.New(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("failed to connect to database", "error", err)
	}
	defer dbClient.Close()

	redisClient, err := redis.New(cfg.RedisAddr)
	if err != nil {
		log.Fatal("failed to connect to redis", "error", err)
	}
	defer redisClient.Close()

	natsClient, err := nats.New(cfg.NATSURL)
	if err != nil {
		log.Fatal("failed to connect to NATS", "error", err)
	}
	defer natsClient.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cache := weather.NewCache(cfg.CacheTTL, cfg.CacheMaxEntries)
	cache.StartSweeper(ctx, cfg.CacheTTL/2)

	gateway := weather.NewGateway([]weather.Provider{
		weather.NewOpenMeteoProvider(cfg.OpenMeteoURL, cfg.ProviderTimeout),
		weather.NewAviationWxProvider(cfg.AviationWxURL, cfg.ProviderTimeout),
	}, cache, log.With("component", "weather-gateway"))

	validator := minimums.NewValidator(gateway)
	engine := reschedule.New(dbClient, dbClient, validator, log.With("component", "reschedule"))
	resolver := preference.New(dbClient, validator, log.With("component", "preference"))

	mcfg := monitor.DefaultConfig()
	mcfg.Lookahead = time.Duration(cfg.LookaheadHours) * time.Hour
	mcfg.Concurrency = cfg.ScanConcurrency
	mcfg.BookingTimeout = cfg.BookingTimeout
	mon := monitor.New(mcfg, dbClient, redisClient, natsClient,
		detector.New(validator), engine, stats.New(), log.With("component", "monitor"))

	feed := api.NewAlertFeed(50)
	if err := natsClient.SubscribeWeatherAlerts(feed.Record); err != nil {
		log.Warn("alert feed subscription failed", "error", err)
	}

	server := api.New(mon, engine, resolver, dbClient, feed, log.With("component", "api"))

	go func() {
		if err := server.Listen(cfg.APIAddr); err != nil {
			log.Fatal("api server failed", "error", err)
		}
	}()
	log.Info("api listening", "addr", cfg.APIAddr)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("shutting down api server")
	if err := server.Shutdown(); err != nil {
		log.Warn("shutdown failed", "error", err)
	}
}
