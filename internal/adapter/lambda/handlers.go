// Package lambda adapts the use cases to AWS Lambda invocations.
package lambda

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aws/aws-lambda-go/lambdacontext"

	"github.com/V4T54L/pii-stream-filter/internal/domain"
	"github.com/V4T54L/pii-stream-filter/internal/usecase"
)

// TransformHandler serves delivery-stream transformation invocations.
type TransformHandler struct {
	useCase usecase.RecordTransformer
	logger  *slog.Logger
}

// NewTransformHandler wraps the transform use case for lambda.Start.
func NewTransformHandler(uc usecase.RecordTransformer, logger *slog.Logger) *TransformHandler {
	return &TransformHandler{useCase: uc, logger: logger}
}

// Handle transforms one batch. A returned error fails the invocation, which
// makes the delivery stream retry the whole batch.
func (h *TransformHandler) Handle(ctx context.Context, req domain.TransformRequest) (*domain.TransformResponse, error) {
	logger := withRequestID(ctx, h.logger)
	resp, err := h.useCase.Transform(ctx, req)
	if err != nil {
		logger.Error("transform invocation failed", "invocation_id", req.InvocationID, "error", err)
		return nil, err
	}
	return resp, nil
}

// ProducerResponse mirrors the API Gateway proxy response shape.
type ProducerResponse struct {
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body"`
}

// Producer runs a producer session.
type Producer interface {
	Run(ctx context.Context, budget usecase.TimeBudget) usecase.ProduceResult
}

// ProducerHandler serves scheduled producer invocations.
type ProducerHandler struct {
	producer Producer
	fallback time.Duration
	logger   *slog.Logger
}

// NewProducerHandler creates a handler. fallback bounds the run when the
// invocation context carries no deadline.
func NewProducerHandler(p Producer, fallback time.Duration, logger *slog.Logger) *ProducerHandler {
	return &ProducerHandler{producer: p, fallback: fallback, logger: logger}
}

// Handle ignores the triggering event and produces until the invocation deadline nears.
// Failures are reported inside the body; the status code is always 200.
func (h *ProducerHandler) Handle(ctx context.Context, _ json.RawMessage) (ProducerResponse, error) {
	result := h.producer.Run(ctx, usecase.ContextBudget(ctx, h.fallback))

	body, err := json.Marshal(struct {
		Message usecase.ProduceResult `json:"message"`
	}{result})
	if err != nil {
		return ProducerResponse{}, fmt.Errorf("encode producer response: %w", err)
	}

	withRequestID(ctx, h.logger).Info("producer invocation finished", "status", result.Status, "record_count", result.RecordCount)
	return ProducerResponse{StatusCode: http.StatusOK, Body: string(body)}, nil
}

func withRequestID(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if lc, ok := lambdacontext.FromContext(ctx); ok {
		return logger.With("aws_request_id", lc.AwsRequestID)
	}
	return logger
}
