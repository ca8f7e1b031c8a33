package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/torresline/eventgate/api/controllers"
	"github.com/torresline/eventgate/api/routes"
	"github.com/torresline/eventgate/internal/dispatch"
	"github.com/torresline/eventgate/internal/pools"
	"github.com/torresline/eventgate/internal/subscriptions"
	"github.com/torresline/eventgate/pkg/config"
	"github.com/torresline/eventgate/pkg/db"
	"github.com/torresline/eventgate/pkg/logger"
	"github.com/torresline/eventgate/pkg/metrics"
	"github.com/torresline/eventgate/pkg/migrate"
	"github.com/torresline/eventgate/pkg/pubsub"
	"github.com/torresline/eventgate/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap pubsub", err)
		os.Exit(1)
	}
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing pubsub client", err)
		}
	}()

	dispatchMetrics := metrics.NewDispatchMetrics(prometheus.DefaultRegisterer)

	dispatchRepo := dispatch.NewRepository(dbClient.DB())
	matcher := dispatch.NewMatcher(dispatch.AnchorAuthorizer{}, "", cfg.Dispatch.DefaultTimeout)
	notifier := dispatch.NewNotifier(dispatch.NewGCPPublisher(pubsubClient.DispatchPublisher()), logg, 0)

	outbox, err := dispatch.NewOutbox(dispatch.OutboxParams{
		DB:             dbClient,
		Store:          dispatchRepo,
		Matcher:        matcher,
		Notifier:       notifier,
		Logger:         logg,
		Metrics:        dispatchMetrics,
		MaxBatchEvents: cfg.Dispatch.MaxBatchEvents,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create outbox writer", err)
		os.Exit(1)
	}

	poolsRepo := pools.NewRepository(dbClient.DB())
	poolsService := pools.NewService(poolsRepo)
	subscriptionsRepo := subscriptions.NewRepository(dbClient.DB())
	subscriptionsService := subscriptions.NewService(subscriptionsRepo, poolsRepo, cfg.Dispatch.DefaultPoolCode)

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Config:        cfg,
			Logger:        logg,
			Outbox:        outbox,
			Subscriptions: subscriptionsService,
			Pools:         poolsService,
			Jobs:          dispatchRepo,
			Limiter:       redisClient,
			Pingers: map[string]controllers.Pinger{
				"db":     dbClient,
				"redis":  redisClient,
				"pubsub": pubsubClient,
			},
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
