package api

import (
	"log/slog"
	"net/http"

	"github.com/V4T54L/pii-stream-filter/internal/adapter/api/handler"
	"github.com/V4T54L/pii-stream-filter/internal/adapter/api/middleware"
	"github.com/V4T54L/pii-stream-filter/internal/adapter/metrics"
	"github.com/V4T54L/pii-stream-filter/internal/domain"
	"github.com/V4T54L/pii-stream-filter/internal/pkg/config"
)

// NewRouter creates the HTTP router for the transform service.
// When apiKeyRepo is nil the transform endpoint is served without authentication.
func NewRouter(
	cfg *config.Config,
	logger *slog.Logger,
	apiKeyRepo domain.APIKeyRepository,
	transformUseCase handler.Transformer,
	m *metrics.PipelineMetrics,
) http.Handler {
	mux := http.NewServeMux()

	var transformHandler http.Handler = handler.NewTransformHandler(transformUseCase, logger, m, cfg.MaxBatchSize)
	if apiKeyRepo != nil {
		transformHandler = middleware.Auth(apiKeyRepo, logger)(transformHandler)
	}

	mux.Handle("POST /transform", transformHandler)

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	return mux
}
