package middleware

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/V4T54L/pii-stream-filter/internal/domain/mocks"
)

func TestAuth(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })

	tests := []struct {
		name           string
		repo           *mocks.MockAPIKeyRepository
		headers        map[string]string
		expectedStatus int
	}{
		{"Missing key", &mocks.MockAPIKeyRepository{}, nil, http.StatusUnauthorized},
		{"Invalid key", &mocks.MockAPIKeyRepository{ValidKeys: map[string]bool{"good": true}}, map[string]string{APIKeyHeader: "bad"}, http.StatusUnauthorized},
		{"Valid key", &mocks.MockAPIKeyRepository{ValidKeys: map[string]bool{"good": true}}, map[string]string{APIKeyHeader: "good"}, http.StatusNoContent},
		{"Delivery stream access key", &mocks.MockAPIKeyRepository{ValidKeys: map[string]bool{"good": true}}, map[string]string{FirehoseKeyHeader: "good"}, http.StatusNoContent},
		{"Repository error", &mocks.MockAPIKeyRepository{Err: errors.New("db down")}, map[string]string{APIKeyHeader: "good"}, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/transform", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			rr := httptest.NewRecorder()

			Auth(tt.repo, logger)(ok).ServeHTTP(rr, req)

			if rr.Code != tt.expectedStatus {
				t.Errorf("expected status %d, got %d", tt.expectedStatus, rr.Code)
			}
		})
	}
}

func TestLogging_SetsRequestID(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("hi"))
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Header().Get(RequestIDHeader) == "" {
		t.Error("expected a generated request id")
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "abc")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if got := rr.Header().Get(RequestIDHeader); got != "abc" {
		t.Errorf("expected request id to be echoed, got %q", got)
	}
}
