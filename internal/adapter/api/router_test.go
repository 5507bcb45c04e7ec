package api

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/V4T54L/pii-stream-filter/internal/adapter/pii"
	"github.com/V4T54L/pii-stream-filter/internal/domain/mocks"
	"github.com/V4T54L/pii-stream-filter/internal/pkg/config"
	"github.com/V4T54L/pii-stream-filter/internal/usecase"
)

func TestNewRouter(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := &config.Config{MaxBatchSize: 1 << 20}
	uc := usecase.NewTransformRecordsUseCase(pii.NewRedactor(), logger, nil)
	body := `{"records":[{"recordId":"1","data":"e30="}]}`

	t.Run("Health", func(t *testing.T) {
		rr := httptest.NewRecorder()
		NewRouter(cfg, logger, nil, uc, nil).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
		if rr.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", rr.Code)
		}
	})

	t.Run("Transform Without Auth", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/transform", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		rr := httptest.NewRecorder()
		NewRouter(cfg, logger, nil, uc, nil).ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", rr.Code)
		}
	})

	t.Run("Transform Requires Key When Configured", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/transform", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		rr := httptest.NewRecorder()
		NewRouter(cfg, logger, &mocks.MockAPIKeyRepository{}, uc, nil).ServeHTTP(rr, req)
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rr.Code)
		}
	})
}
