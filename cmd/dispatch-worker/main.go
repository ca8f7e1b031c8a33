package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/torresline/eventgate/internal/dispatch"
	"github.com/torresline/eventgate/pkg/config"
	"github.com/torresline/eventgate/pkg/db"
	"github.com/torresline/eventgate/pkg/logger"
	"github.com/torresline/eventgate/pkg/metrics"
	"github.com/torresline/eventgate/pkg/migrate"
	"github.com/torresline/eventgate/pkg/pubsub"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "dispatch-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "dispatch-worker"

	logg = logger.New(logger.Options{
		ServiceName: "dispatch-worker",
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
	repo := dispatch.NewRepository(dbClient.DB())
	budgeter := dispatch.NewBudgeter(repo, cfg.Dispatch.PoolRefreshTTL).WithMetrics(dispatchMetrics)
	deliverer := dispatch.NewHTTPDeliverer(nil, cfg.Dispatch.ResponseBodyLimit, cfg.Dispatch.DefaultTimeout)
	notifier := dispatch.NewNotifier(dispatch.NewGCPPublisher(pubsubClient.DispatchPublisher()), logg, 0)

	worker, err := dispatch.NewWorker(dispatch.WorkerParams{
		Subscription:   pubsubClient.DispatchSubscription(),
		Store:          repo,
		Budget:         budgeter,
		Deliverer:      deliverer,
		Notifier:       notifier,
		Logger:         logg,
		Metrics:        dispatchMetrics,
		RetryBaseDelay: cfg.Dispatch.RetryBaseDelay,
		RetryMaxDelay:  cfg.Dispatch.RetryMaxDelay,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create delivery worker", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting dispatch worker")

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return worker.Run(groupCtx)
	})

	group.Go(func() error {
		return runOpsServer(groupCtx, cfg, logg)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "dispatch worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "dispatch worker shutting down gracefully")
}

// runOpsServer serves /metrics and a liveness probe next to the receive loop.
func runOpsServer(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	server := &http.Server{Addr: ":" + cfg.App.Port, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "ops server shutdown", err)
		}
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
