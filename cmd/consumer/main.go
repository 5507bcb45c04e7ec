package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/V4T54L/pii-stream-filter/internal/adapter/metrics"
	"github.com/V4T54L/pii-stream-filter/internal/adapter/pii"
	"github.com/V4T54L/pii-stream-filter/internal/adapter/repository/postgres"
	redisrepo "github.com/V4T54L/pii-stream-filter/internal/adapter/repository/redis"
	"github.com/V4T54L/pii-stream-filter/internal/pkg/config"
	"github.com/V4T54L/pii-stream-filter/internal/pkg/logger"
	"github.com/V4T54L/pii-stream-filter/internal/usecase"
)

const (
	processingInterval = 1 * time.Second
	reclaimInterval    = 1 * time.Minute
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if cfg.PostgresURL == "" {
		slog.Error("POSTGRES_URL is required for the consumer")
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel)
	slog.SetDefault(log)
	log.Info("starting delivery consumer")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.NewPipelineMetrics(prometheus.DefaultRegisterer)

	// Connect to Redis
	redisOpts, err := redis.ParseURL(cfg.RedisAddr)
	if err != nil {
		log.Error("failed to parse redis url", "error", err)
		os.Exit(1)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	log.Info("connected to redis")

	// Connect to PostgreSQL
	db, err := sql.Open("postgres", cfg.PostgresURL)
	if err != nil {
		log.Error("failed to open postgres connection", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		log.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	log.Info("connected to postgres")

	// Create a unique consumer name for this instance
	consumerName, err := os.Hostname()
	if err != nil {
		log.Warn("could not get hostname for consumer name, using default", "error", err)
		consumerName = "consumer-default"
	}

	stream := redisrepo.NewRecordStream(redisClient, log, cfg.StreamName, cfg.RedisDLQStream, nil, m)
	if err := stream.EnsureGroup(ctx, cfg.ConsumerGroup); err != nil {
		log.Error("failed to create consumer group", "error", err)
		os.Exit(1)
	}
	sink := postgres.NewRecordRepository(db, log)
	if err := sink.EnsureSchema(ctx); err != nil {
		log.Error("failed to prepare sink schema", "error", err)
		os.Exit(1)
	}

	transformer := usecase.NewTransformRecordsUseCase(pii.NewRedactor(), log, m)
	delivery := usecase.NewDeliverRecordsUseCase(stream, transformer, sink, log, m, cfg.ConsumerGroup, consumerName, usecase.DeliveryOptions{
		BatchSize:    cfg.ConsumerBatchSize,
		RetryCount:   cfg.SinkRetryCount,
		RetryBackoff: cfg.SinkRetryBackoff,
		ClaimMinIdle: cfg.ConsumerClaimMinIdle,
	})

	adminMux := http.NewServeMux()
	adminMux.Handle("/metrics", promhttp.Handler())
	adminServer := &http.Server{Addr: cfg.AdminServerAddr, Handler: adminMux}

	log.Info("delivery consumer started", "group", cfg.ConsumerGroup, "consumer", consumerName, "stream", cfg.StreamName)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		runEvery(gctx, processingInterval, func() {
			if _, err := delivery.DeliverBatch(gctx); err != nil && gctx.Err() == nil {
				log.Error("error delivering batch", "error", err)
			}
		})
		return nil
	})
	g.Go(func() error {
		runEvery(gctx, reclaimInterval, func() {
			if _, err := delivery.ReclaimStale(gctx); err != nil && gctx.Err() == nil {
				log.Error("error reclaiming stale entries", "error", err)
			}
		})
		return nil
	})
	g.Go(func() error {
		if err := adminServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return adminServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("consumer exited with error", "error", err)
		os.Exit(1)
	}
	log.Info("delivery consumer shut down gracefully")
}

func runEvery(ctx context.Context, interval time.Duration, fn func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			fn()
		case <-ctx.Done():
			return
		}
	}
}
