package usecase

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/V4T54L/pii-stream-filter/internal/adapter/codec"
	"github.com/V4T54L/pii-stream-filter/internal/adapter/metrics"
	"github.com/V4T54L/pii-stream-filter/internal/domain"
)

const (
	defaultBatchSize    = 500
	defaultRetryCount   = 3
	defaultRetryBackoff = 1 * time.Second
	defaultClaimMinIdle = 5 * time.Minute
)

// DeliveryOptions tunes DeliverRecordsUseCase. Zero values fall back to defaults.
type DeliveryOptions struct {
	BatchSize    int
	RetryCount   int
	RetryBackoff time.Duration
	ClaimMinIdle time.Duration
}

// DeliverRecordsUseCase drains the record stream through the transformer and
// into the sink, playing the role of the delivery stream.
type DeliverRecordsUseCase struct {
	stream      domain.RecordStreamRepository
	transformer RecordTransformer
	sink        domain.RecordSinkRepository
	logger      *slog.Logger
	metrics     *metrics.PipelineMetrics
	group       string
	consumer    string
	opts        DeliveryOptions
	now         func() time.Time
}

// NewDeliverRecordsUseCase creates a new delivery use case. Metrics may be nil.
func NewDeliverRecordsUseCase(stream domain.RecordStreamRepository, transformer RecordTransformer, sink domain.RecordSinkRepository, logger *slog.Logger, m *metrics.PipelineMetrics, group, consumer string, opts DeliveryOptions) *DeliverRecordsUseCase {
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.RetryCount <= 0 {
		opts.RetryCount = defaultRetryCount
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = defaultRetryBackoff
	}
	if opts.ClaimMinIdle <= 0 {
		opts.ClaimMinIdle = defaultClaimMinIdle
	}
	return &DeliverRecordsUseCase{
		stream:      stream,
		transformer: transformer,
		sink:        sink,
		logger:      logger.With("component", "delivery", "consumer", consumer),
		metrics:     m,
		group:       group,
		consumer:    consumer,
		opts:        opts,
		now:         time.Now,
	}
}

// DeliverBatch reads a batch of new entries and delivers it.
func (uc *DeliverRecordsUseCase) DeliverBatch(ctx context.Context) (int, error) {
	entries, err := uc.stream.ReadBatch(ctx, uc.group, uc.consumer, uc.opts.BatchSize)
	if err != nil {
		uc.logger.Error("failed to read record batch from stream", "error", err)
		return 0, err
	}
	return uc.deliver(ctx, entries)
}

// ReclaimStale takes over entries abandoned by other consumers and delivers them.
func (uc *DeliverRecordsUseCase) ReclaimStale(ctx context.Context) (int, error) {
	entries, err := uc.stream.ReclaimStale(ctx, uc.group, uc.consumer, uc.opts.ClaimMinIdle, uc.opts.BatchSize)
	if err != nil {
		uc.logger.Error("failed to reclaim stale entries", "error", err)
		return 0, err
	}
	if len(entries) > 0 {
		uc.logger.Info("reclaimed stale entries", "count", len(entries))
	}
	return uc.deliver(ctx, entries)
}

// deliver transforms entries as one batch, writes the result to the sink and
// acknowledges the entries. A rejected batch or an exhausted sink sends every
// entry to the dead-letter stream before acknowledging it.
func (uc *DeliverRecordsUseCase) deliver(ctx context.Context, entries []domain.StreamEntry) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}
	uc.logger.Debug("delivering batch", "count", len(entries))

	records, err := uc.transform(ctx, entries)
	if err != nil {
		return 0, uc.deadLetter(ctx, entries, "transform_failed", err)
	}

	if err := uc.writeWithRetry(ctx, records); err != nil {
		return 0, uc.deadLetter(ctx, entries, "sink_failed", err)
	}

	if err := uc.stream.Acknowledge(ctx, uc.group, messageIDs(entries)...); err != nil {
		// The sink upserts on record_id, so redelivery is harmless.
		uc.logger.Error("failed to acknowledge delivered entries", "error", err)
		return 0, err
	}

	if uc.metrics != nil {
		uc.metrics.RecordsDelivered.Add(float64(len(records)))
	}
	uc.logger.Info("delivered record batch", "count", len(records))
	return len(records), nil
}

func (uc *DeliverRecordsUseCase) transform(ctx context.Context, entries []domain.StreamEntry) ([]domain.DeliveredRecord, error) {
	req := domain.TransformRequest{
		InvocationID: uc.consumer + "/" + entries[0].MessageID,
		Records:      make([]domain.EncodedRecord, len(entries)),
	}
	for i, e := range entries {
		req.Records[i] = domain.EncodedRecord{RecordID: e.MessageID, Data: codec.EncodePayload(e.Data)}
	}

	resp, err := uc.transformer.Transform(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(resp.Records) != len(entries) {
		return nil, fmt.Errorf("transformer returned %d records for %d inputs", len(resp.Records), len(entries))
	}

	deliveredAt := uc.now().UTC()
	records := make([]domain.DeliveredRecord, len(entries))
	for i, out := range resp.Records {
		raw, err := codec.DecodePayload(out.Data)
		if err != nil {
			return nil, fmt.Errorf("record %s: %w", out.RecordID, err)
		}
		rec, err := codec.ParseRecord(raw)
		if err != nil {
			return nil, fmt.Errorf("record %s: %w", out.RecordID, err)
		}
		dr := domain.DeliveredRecord{
			RecordID:     out.RecordID,
			PartitionKey: entries[i].PartitionKey,
			Redacted:     rec.DataRedacted != nil && *rec.DataRedacted,
			Payload:      bytes.TrimSpace(raw),
			DeliveredAt:  deliveredAt,
		}
		if rec.Name != nil {
			dr.Name = *rec.Name
		}
		records[i] = dr
	}
	return records, nil
}

func (uc *DeliverRecordsUseCase) deadLetter(ctx context.Context, entries []domain.StreamEntry, reason string, cause error) error {
	uc.logger.Error("moving batch to dead-letter stream", "reason", reason, "count", len(entries), "error", cause)
	if err := uc.stream.MoveToDLQ(ctx, entries, reason+": "+cause.Error()); err != nil {
		// Leave the entries pending so they are reclaimed later.
		return fmt.Errorf("%s: %w (dead-letter failed: %w)", reason, cause, err)
	}
	if uc.metrics != nil {
		uc.metrics.RecordsDeadLetter.Add(float64(len(entries)))
	}
	if err := uc.stream.Acknowledge(ctx, uc.group, messageIDs(entries)...); err != nil {
		return fmt.Errorf("%s: %w (acknowledge failed: %w)", reason, cause, err)
	}
	return fmt.Errorf("%s: %w", reason, cause)
}

func (uc *DeliverRecordsUseCase) writeWithRetry(ctx context.Context, records []domain.DeliveredRecord) error {
	var lastErr error
	for i := 0; i < uc.opts.RetryCount; i++ {
		err := uc.sink.WriteBatch(ctx, records)
		if err == nil {
			return nil
		}
		lastErr = err
		uc.logger.Warn("failed to write batch to sink, retrying", "attempt", i+1, "error", err)
		if i == uc.opts.RetryCount-1 {
			break
		}
		select {
		case <-time.After(uc.opts.RetryBackoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}

func messageIDs(entries []domain.StreamEntry) []string {
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.MessageID
	}
	return ids
}
