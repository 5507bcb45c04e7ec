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

	awslambda "github.com/aws/aws-lambda-go/lambda"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/V4T54L/pii-stream-filter/internal/adapter/lambda"
	"github.com/V4T54L/pii-stream-filter/internal/adapter/metrics"
	redisrepo "github.com/V4T54L/pii-stream-filter/internal/adapter/repository/redis"
	"github.com/V4T54L/pii-stream-filter/internal/adapter/repository/wal"
	"github.com/V4T54L/pii-stream-filter/internal/adapter/stream/kinesis"
	"github.com/V4T54L/pii-stream-filter/internal/adapter/synth"
	"github.com/V4T54L/pii-stream-filter/internal/domain"
	"github.com/V4T54L/pii-stream-filter/internal/pkg/config"
	"github.com/V4T54L/pii-stream-filter/internal/pkg/logger"
	"github.com/V4T54L/pii-stream-filter/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logger.New(cfg.LogLevel)
	slog.SetDefault(logger)

	m := metrics.NewPipelineMetrics(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	publisher, cleanup, err := newPublisher(ctx, cfg, logger, m)
	if err != nil {
		logger.Error("failed to initialize publisher", "backend", cfg.StreamBackend, "error", err)
		os.Exit(1)
	}
	defer cleanup()

	var limiter *rate.Limiter
	if cfg.ProducerRatePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.ProducerRatePerSec), 1)
	}
	generator := synth.NewGenerator(synth.WithAgeMax(cfg.ProducerAgeMax))
	producer := usecase.NewProduceRecordsUseCase(publisher, generator, limiter, cfg.ProducerSafetyMargin, logger, m)

	if os.Getenv("AWS_LAMBDA_RUNTIME_API") != "" {
		logger.Info("starting producer lambda", "stream", cfg.StreamName, "backend", cfg.StreamBackend)
		awslambda.Start(lambda.NewProducerHandler(producer, cfg.ProducerTimeBudget, logger).Handle)
		return
	}

	// --- Metrics server for local runs ---
	adminMux := http.NewServeMux()
	adminMux.Handle("/metrics", promhttp.Handler())
	adminServer := &http.Server{Addr: cfg.AdminServerAddr, Handler: adminMux}
	go func() {
		logger.Info("starting metrics server", "addr", adminServer.Addr)
		if err := adminServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()

	logger.Info("starting producer run", "stream", cfg.StreamName, "backend", cfg.StreamBackend, "budget", cfg.ProducerTimeBudget)
	result := producer.Run(ctx, usecase.NewDeadlineBudget(time.Now().Add(cfg.ProducerTimeBudget)))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := adminServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown failed", "error", err)
	}

	if !result.Status {
		logger.Error("producer run failed", "record_count", result.RecordCount, "error_message", result.ErrorMessage)
		os.Exit(1)
	}
}

// newPublisher wires the configured transport. The returned cleanup is always non-nil.
func newPublisher(ctx context.Context, cfg *config.Config, logger *slog.Logger, m *metrics.PipelineMetrics) (domain.RecordPublisher, func(), error) {
	noop := func() {}

	if cfg.StreamBackend == config.BackendKinesis {
		client, err := kinesis.NewClient(ctx, cfg.AWSRegion)
		if err != nil {
			return nil, noop, err
		}
		return kinesis.NewPublisher(client, cfg.StreamName, logger), noop, nil
	}

	redisOpts, err := redis.ParseURL(cfg.RedisAddr)
	if err != nil {
		return nil, noop, err
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("could not connect to redis, records will be spooled to the WAL", "error", err)
	}

	var walRepo *wal.Log
	var walIface domain.WALRepository
	if cfg.WALPath != "" {
		walRepo, err = wal.Open(cfg.WALPath, cfg.WALSegmentSize, cfg.WALMaxDiskSize, logger)
		if err != nil {
			redisClient.Close()
			return nil, noop, err
		}
		walIface = walRepo
	}

	stream := redisrepo.NewRecordStream(redisClient, logger, cfg.StreamName, cfg.RedisDLQStream, walIface, m)
	if walRepo != nil {
		if err := stream.ReplayWAL(ctx); err != nil {
			logger.Warn("startup WAL replay failed, will retry after health check", "error", err)
		}
	}
	go stream.StartHealthCheck(ctx, 5*time.Second)

	cleanup := func() {
		if walRepo != nil {
			if n := walRepo.Size(); n > 0 {
				logger.Warn("exiting with records still spooled", "wal_bytes", n)
			}
			walRepo.Close()
		}
		redisClient.Close()
	}
	return stream, cleanup, nil
}
