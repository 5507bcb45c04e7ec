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

	awslambda "github.com/aws/aws-lambda-go/lambda"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/V4T54L/pii-stream-filter/internal/adapter/api"
	"github.com/V4T54L/pii-stream-filter/internal/adapter/api/middleware"
	"github.com/V4T54L/pii-stream-filter/internal/adapter/lambda"
	"github.com/V4T54L/pii-stream-filter/internal/adapter/metrics"
	"github.com/V4T54L/pii-stream-filter/internal/adapter/pii"
	"github.com/V4T54L/pii-stream-filter/internal/adapter/repository/postgres"
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
	transformUseCase := usecase.NewTransformRecordsUseCase(pii.NewRedactor(), logger, m)

	if os.Getenv("AWS_LAMBDA_RUNTIME_API") != "" {
		logger.Info("starting transformer lambda")
		awslambda.Start(lambda.NewTransformHandler(transformUseCase, logger).Handle)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Optional API key store ---
	var apiKeyRepo domain.APIKeyRepository
	if cfg.PostgresURL != "" {
		db, err := sql.Open("postgres", cfg.PostgresURL)
		if err != nil {
			logger.Error("failed to open postgres connection", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		repo := postgres.NewAPIKeyRepository(db, logger, cfg.APIKeyCacheTTL, m)
		if err := repo.EnsureSchema(ctx); err != nil {
			logger.Error("failed to prepare api key schema", "error", err)
			os.Exit(1)
		}
		apiKeyRepo = repo
	} else {
		logger.Warn("POSTGRES_URL not set, transform endpoint is unauthenticated")
	}

	adminMux := http.NewServeMux()
	adminMux.Handle("/metrics", promhttp.Handler())
	adminServer := &http.Server{Addr: cfg.AdminServerAddr, Handler: adminMux}

	router := api.NewRouter(cfg, logger, apiKeyRepo, transformUseCase, m)
	transformServer := &http.Server{
		Addr:         cfg.TransformServerAddr,
		Handler:      middleware.Logging(logger)(router),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	for name, srv := range map[string]*http.Server{"admin": adminServer, "transform": transformServer} {
		g.Go(func() error {
			logger.Info("starting server", "server", name, "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down servers...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return errors.Join(
			transformServer.Shutdown(shutdownCtx),
			adminServer.Shutdown(shutdownCtx),
		)
	})

	if err := g.Wait(); err != nil {
		logger.Error("transformer exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("servers shut down gracefully")
}
