package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/V4T54L/pii-stream-filter/internal/adapter/codec"
	"github.com/V4T54L/pii-stream-filter/internal/adapter/metrics"
	"github.com/V4T54L/pii-stream-filter/internal/adapter/pii"
	"github.com/V4T54L/pii-stream-filter/internal/domain"
)

// RecordTransformer turns a batch envelope into a transformed batch.
type RecordTransformer interface {
	Transform(ctx context.Context, req domain.TransformRequest) (*domain.TransformResponse, error)
}

// TransformRecordsUseCase decodes a batch of records, applies the consent
// redaction policy and re-encodes them. A batch either succeeds as a whole or
// fails as a whole.
type TransformRecordsUseCase struct {
	redactor *pii.Redactor
	logger   *slog.Logger
	metrics  *metrics.PipelineMetrics
}

// NewTransformRecordsUseCase creates a new TransformRecordsUseCase. Metrics may be nil.
func NewTransformRecordsUseCase(redactor *pii.Redactor, logger *slog.Logger, m *metrics.PipelineMetrics) *TransformRecordsUseCase {
	return &TransformRecordsUseCase{
		redactor: redactor,
		logger:   logger.With("component", "transformer"),
		metrics:  m,
	}
}

// Transform processes every record of req in order. Any record that cannot be
// decoded, parsed or re-encoded aborts the batch: the error is logged and
// returned wrapped in domain.ErrMalformedRecord, and no partial output is produced.
// An envelope without records fails with domain.ErrInvalidEnvelope.
func (uc *TransformRecordsUseCase) Transform(ctx context.Context, req domain.TransformRequest) (*domain.TransformResponse, error) {
	uc.logger.Debug("received transform batch", "invocation_id", req.InvocationID, "total_records", len(req.Records))
	if err := req.Validate(); err != nil {
		return nil, uc.reject(req, err)
	}

	out := make([]domain.TransformedRecord, 0, len(req.Records))
	redacted := 0
	for _, in := range req.Records {
		if err := ctx.Err(); err != nil {
			return nil, uc.reject(req, err)
		}

		data, wasRedacted, err := uc.transformOne(in.Data)
		if err != nil {
			return nil, uc.reject(req, fmt.Errorf("record %s: %w: %w", in.RecordID, domain.ErrMalformedRecord, err))
		}
		if wasRedacted {
			redacted++
		}
		out = append(out, domain.TransformedRecord{
			RecordID: in.RecordID,
			Result:   domain.StatusOk,
			Data:     data,
		})
	}

	uc.logger.Info("transform batch complete",
		"invocation_id", req.InvocationID,
		"total_records", len(req.Records),
		"processed_records", len(out),
		"redacted_records", redacted,
	)
	if uc.metrics != nil {
		uc.metrics.BatchesTotal.WithLabelValues("ok").Inc()
		uc.metrics.RecordsTransformed.Add(float64(len(out)))
		uc.metrics.RecordsRedacted.Add(float64(redacted))
	}

	return &domain.TransformResponse{Records: out}, nil
}

// transformOne returns records that need no redaction as their source bytes,
// re-terminated, so passthrough output is byte-identical to the input.
func (uc *TransformRecordsUseCase) transformOne(data string) (string, bool, error) {
	raw, err := codec.DecodePayload(data)
	if err != nil {
		return "", false, err
	}
	rec, err := codec.ParseRecord(raw)
	if err != nil {
		return "", false, err
	}
	rec, redacted := uc.redactor.Redact(rec)
	if !redacted {
		return codec.EncodePayload(codec.Terminate(raw)), false, nil
	}
	encoded, err := codec.EncodeRecord(rec)
	if err != nil {
		return "", false, err
	}
	return encoded, true, nil
}

func (uc *TransformRecordsUseCase) reject(req domain.TransformRequest, err error) error {
	uc.logger.Error("transform batch rejected", "invocation_id", req.InvocationID, "total_records", len(req.Records), "error", err)
	if uc.metrics != nil {
		uc.metrics.BatchesTotal.WithLabelValues("rejected").Inc()
	}
	return err
}
