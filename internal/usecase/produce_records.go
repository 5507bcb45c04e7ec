package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/V4T54L/pii-stream-filter/internal/adapter/metrics"
	"github.com/V4T54L/pii-stream-filter/internal/domain"
)

// DefaultSafetyMargin is the remaining time below which no further record is submitted.
const DefaultSafetyMargin = 100 * time.Millisecond

// RecordSource yields synthetic records.
type RecordSource interface {
	Next() domain.Record
}

// ProduceResult summarises a producer run. Failures are reported here rather
// than returned as errors.
type ProduceResult struct {
	Status       bool   `json:"status"`
	RecordCount  int    `json:"record_count"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// ProduceRecordsUseCase generates records and submits them one by one until
// the time budget runs out.
type ProduceRecordsUseCase struct {
	publisher    domain.RecordPublisher
	source       RecordSource
	limiter      *rate.Limiter
	safetyMargin time.Duration
	logger       *slog.Logger
	metrics      *metrics.PipelineMetrics
	newKey       func() string
}

// NewProduceRecordsUseCase creates a producer. A nil limiter means no cadence limit;
// a non-positive margin means DefaultSafetyMargin. Metrics may be nil.
func NewProduceRecordsUseCase(publisher domain.RecordPublisher, source RecordSource, limiter *rate.Limiter, safetyMargin time.Duration, logger *slog.Logger, m *metrics.PipelineMetrics) *ProduceRecordsUseCase {
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	if safetyMargin <= 0 {
		safetyMargin = DefaultSafetyMargin
	}
	return &ProduceRecordsUseCase{
		publisher:    publisher,
		source:       source,
		limiter:      limiter,
		safetyMargin: safetyMargin,
		logger:       logger.With("component", "producer"),
		metrics:      m,
		newKey:       uuid.NewString,
	}
}

// Run submits records while budget.RemainingMillis() exceeds the safety margin.
// The budget is polled exactly once per iteration. Run never returns an error:
// the first failure ends the loop and is reported in the result.
func (uc *ProduceRecordsUseCase) Run(ctx context.Context, budget TimeBudget) ProduceResult {
	var result ProduceResult
	margin := uc.safetyMargin.Milliseconds()

	for {
		remaining := budget.RemainingMillis()
		if remaining <= margin {
			break
		}
		if err := uc.limiter.Wait(ctx); err != nil {
			return uc.fail(result, fmt.Errorf("wait for send slot: %w", err))
		}
		if err := uc.send(ctx); err != nil {
			return uc.fail(result, err)
		}
		result.RecordCount++
		uc.logger.Debug("record submitted", "remaining_time_ms", remaining, "record_count", result.RecordCount)
	}

	result.Status = true
	uc.logger.Info("producer run complete", "status", result.Status, "record_count", result.RecordCount)
	return result
}

func (uc *ProduceRecordsUseCase) send(ctx context.Context) error {
	data, err := json.Marshal(uc.source.Next())
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	record := domain.PartitionedRecord{PartitionKey: uc.newKey(), Data: data}
	if err := uc.publisher.PutRecord(ctx, record); err != nil {
		return fmt.Errorf("submit record %s: %w", record.PartitionKey, err)
	}
	if uc.metrics != nil {
		uc.metrics.RecordsProduced.Inc()
	}
	return nil
}

func (uc *ProduceRecordsUseCase) fail(result ProduceResult, err error) ProduceResult {
	uc.logger.Error("producer run failed", "error", err, "record_count", result.RecordCount)
	if uc.metrics != nil {
		uc.metrics.ProduceErrors.Inc()
	}
	result.Status = false
	result.ErrorMessage = err.Error()
	return result
}
