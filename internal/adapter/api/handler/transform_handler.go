package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"

	"github.com/V4T54L/pii-stream-filter/internal/adapter/metrics"
	"github.com/V4T54L/pii-stream-filter/internal/domain"
)

// Transformer is the subset of the transform use case the handler needs.
type Transformer interface {
	Transform(ctx context.Context, req domain.TransformRequest) (*domain.TransformResponse, error)
}

// TransformHandler serves the batch transformation endpoint. The request and
// response bodies are the batch envelope used by the delivery stream.
type TransformHandler struct {
	useCase      Transformer
	logger       *slog.Logger
	metrics      *metrics.PipelineMetrics
	maxBatchSize int64
}

// NewTransformHandler creates a new TransformHandler.
func NewTransformHandler(uc Transformer, logger *slog.Logger, m *metrics.PipelineMetrics, maxBatchSize int64) *TransformHandler {
	return &TransformHandler{
		useCase:      uc,
		logger:       logger,
		metrics:      m,
		maxBatchSize: maxBatchSize,
	}
}

func (h *TransformHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		h.count("error_media_type")
		http.Error(w, "Unsupported Media Type: "+r.Header.Get("Content-Type"), http.StatusUnsupportedMediaType)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBatchSize)

	var req domain.TransformRequest
	dec := json.NewDecoder(r.Body)
	err = dec.Decode(&req)
	if err == nil {
		err = expectEOF(dec)
	}
	if err == nil {
		err = req.Validate()
	}
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			h.count("error_size")
			http.Error(w, "Payload Too Large", http.StatusRequestEntityTooLarge)
			return
		}
		h.count("error_decode")
		h.logger.Warn("failed to decode batch envelope", "error", err)
		http.Error(w, "Bad Request: Failed to decode batch envelope", http.StatusBadRequest)
		return
	}
	if h.metrics != nil && r.ContentLength > 0 {
		h.metrics.BytesTotal.Add(float64(r.ContentLength))
	}

	resp, err := h.useCase.Transform(r.Context(), req)
	if err != nil {
		if errors.Is(err, domain.ErrMalformedRecord) {
			http.Error(w, "Unprocessable Entity: "+err.Error(), http.StatusUnprocessableEntity)
			return
		}
		h.logger.Error("failed to transform batch", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("failed to write transform response", "error", err)
	}
}

func (h *TransformHandler) count(status string) {
	if h.metrics != nil {
		h.metrics.BatchesTotal.WithLabelValues(status).Inc()
	}
}

// expectEOF fails when anything but whitespace follows the envelope.
func expectEOF(dec *json.Decoder) error {
	if _, err := dec.Token(); err != io.EOF {
		if err == nil {
			err = errors.New("unexpected data after batch envelope")
		}
		return err
	}
	return nil
}
