package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/couchcryptid/safe-speed-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/safe-speed-service/internal/adapter/kafka"
	"github.com/couchcryptid/safe-speed-service/internal/adapter/openmeteo"
	"github.com/couchcryptid/safe-speed-service/internal/config"
	"github.com/couchcryptid/safe-speed-service/internal/domain"
	"github.com/couchcryptid/safe-speed-service/internal/observability"
	"github.com/couchcryptid/safe-speed-service/internal/service"
	"github.com/couchcryptid/safe-speed-service/internal/store"
	"github.com/couchcryptid/safe-speed-service/internal/store/memory"
	"github.com/couchcryptid/safe-speed-service/internal/store/postgres"
	"github.com/couchcryptid/safe-speed-service/internal/store/sqlite"
	"github.com/couchcryptid/storm-data-shared/retry"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open store", "backend", cfg.StoreBackend, "error", err)
		os.Exit(1)
	}
	kv := store.NewKV(backend, metrics, logger)

	// Weather provider (feature-flagged via WEATHER_ENABLED).
	var weather domain.WeatherProvider
	if cfg.WeatherEnabled {
		client := openmeteo.NewClient(cfg.WeatherBaseURL, cfg.WeatherTimeout, metrics, logger)
		weather = openmeteo.NewCachedProvider(client, cfg.WeatherCacheSize, cfg.WeatherCacheTTL, metrics)
		metrics.WeatherEnabled.Set(1)
		logger.Info("open-meteo weather enabled",
			"cache_size", cfg.WeatherCacheSize, "cache_ttl", cfg.WeatherCacheTTL, "timeout", cfg.WeatherTimeout)
	} else {
		logger.Info("open-meteo weather disabled")
	}

	// History publishing (feature-flagged via KAFKA_ENABLED / KAFKA_BROKERS).
	var (
		publisher     service.HistoryPublisher
		kafkaProducer *kafkaadapter.Publisher
	)
	if cfg.KafkaEnabled {
		kafkaProducer = kafkaadapter.NewPublisher(cfg, logger)
		publisher = kafkaProducer
		logger.Info("history publishing enabled", "topic", cfg.KafkaHistoryTopic, "brokers", cfg.KafkaBrokers)
	} else {
		logger.Info("history publishing disabled")
	}

	speed := service.NewSpeedService(kv, weather, publisher, cfg, metrics, logger)
	auth := service.NewAuthService(kv, cfg, logger)

	if _, err := auth.SeedAdmin(ctx, cfg.AdminEmail, cfg.AdminPassword); err != nil {
		logger.Error("failed to seed admin account", "error", err)
		os.Exit(1)
	}
	metrics.HistoryEntries.Set(float64(len(speed.History(ctx))))

	srv := httpadapter.NewServer(cfg.HTTPAddr, speed, auth, metrics, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("http server error", "error", err)
	}

	if kafkaProducer != nil {
		if err := kafkaProducer.Close(); err != nil {
			logger.Error("kafka publisher close error", "error", err)
		}
	}
	if err := backend.Close(); err != nil {
		logger.Error("store close error", "error", err)
	}

	logger.Info("shutdown complete")
}

// openStore connects the configured backend. Postgres is retried with
// backoff so the service can start alongside its database.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Store, error) {
	switch cfg.StoreBackend {
	case config.StoreMemory:
		logger.Warn("using in-memory store, data will not survive a restart")
		return memory.New(), nil
	case config.StorePostgres:
		return connectPostgres(ctx, cfg.PostgresDSN, logger)
	default:
		logger.Info("using sqlite store", "path", cfg.SQLitePath)
		return sqlite.New(ctx, cfg.SQLitePath)
	}
}

func connectPostgres(ctx context.Context, dsn string, logger *slog.Logger) (store.Store, error) {
	const attempts = 5
	wait := 500 * time.Millisecond

	var err error
	for i := 1; ; i++ {
		var s *postgres.Store
		if s, err = postgres.New(ctx, dsn); err == nil {
			logger.Info("using postgres store")
			return s, nil
		}
		if i == attempts {
			return nil, err
		}
		logger.Warn("postgres not reachable, retrying", "attempt", i, "wait", wait, "error", err)
		if !retry.SleepWithContext(ctx, wait) {
			return nil, ctx.Err()
		}
		wait = retry.NextBackoff(wait, 5*time.Second)
	}
}
