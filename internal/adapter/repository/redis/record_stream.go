package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/V4T54L/pii-stream-filter/internal/adapter/metrics"
	"github.com/V4T54L/pii-stream-filter/internal/domain"
)

// Stream entry fields.
const (
	fieldPartitionKey = "partition_key"
	fieldData         = "data"
)

const (
	readBlock         = 2 * time.Second
	reclaimStart      = "0-0"
	reasonMissingData = "missing data field"
)

// RecordStream implements domain.RecordPublisher and domain.RecordStreamRepository
// on top of a Redis Stream. Publishing falls back to the WAL while Redis is unreachable.
type RecordStream struct {
	client       *redis.Client
	logger       *slog.Logger
	streamKey    string
	dlqStreamKey string
	wal          domain.WALRepository
	metrics      *metrics.PipelineMetrics
	isAvailable  atomic.Bool

	cursorMu sync.Mutex
	cursors  map[string]string // XAUTOCLAIM cursor per consumer group
}

// NewRecordStream creates a Redis-backed record stream.
// The WAL is optional; pass nil if not needed (e.g., for consumers).
func NewRecordStream(client *redis.Client, logger *slog.Logger, streamKey, dlqStreamKey string, wal domain.WALRepository, m *metrics.PipelineMetrics) *RecordStream {
	s := &RecordStream{
		client:       client,
		logger:       logger.With("component", "redis_record_stream", "stream", streamKey),
		streamKey:    streamKey,
		dlqStreamKey: dlqStreamKey,
		wal:          wal,
		metrics:      m,
		cursors:      make(map[string]string),
	}
	s.isAvailable.Store(true) // Assume available initially
	return s
}

// EnsureGroup creates the consumer group (and the stream) if it does not exist yet.
func (s *RecordStream) EnsureGroup(ctx context.Context, group string) error {
	err := s.client.XGroupCreateMkStream(ctx, s.streamKey, group, "0").Err()
	if err != nil && !isBusyGroupError(err) {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}
	return nil
}

// StartHealthCheck monitors Redis connectivity and replays the WAL once it recovers.
// It blocks until ctx is cancelled.
func (s *RecordStream) StartHealthCheck(ctx context.Context, interval time.Duration) {
	if s.wal == nil {
		s.logger.Info("WAL is not configured, skipping health check/replayer")
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("Starting Redis health check and WAL replayer")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Stopping Redis health check")
			return
		case <-ticker.C:
			s.checkHealth(ctx)
		}
	}
}

func (s *RecordStream) checkHealth(ctx context.Context) {
	if err := s.client.Ping(ctx).Err(); err != nil {
		if s.isAvailable.CompareAndSwap(true, false) {
			s.logger.Error("Redis connection lost", "error", err)
			s.setWALActive(true)
		}
		return
	}
	if s.isAvailable.CompareAndSwap(false, true) {
		s.logger.Info("Redis connection recovered")
		if err := s.ReplayWAL(ctx); err != nil {
			s.logger.Error("Failed to replay WAL after Redis recovery", "error", err)
			s.isAvailable.Store(false)
			return
		}
		s.setWALActive(false)
	}
}

// ReplayWAL re-submits spooled records to Redis and truncates the WAL on success.
func (s *RecordStream) ReplayWAL(ctx context.Context) error {
	s.logger.Info("Attempting to replay WAL to Redis")
	replayHandler := func(record domain.PartitionedRecord) error {
		return s.add(ctx, record)
	}

	if err := s.wal.Replay(ctx, replayHandler); err != nil {
		return fmt.Errorf("WAL replay failed: %w", err)
	}

	if err := s.wal.Truncate(ctx); err != nil {
		return fmt.Errorf("failed to truncate WAL after successful replay: %w", err)
	}

	s.logger.Info("WAL replay to Redis completed successfully")
	return nil
}

// PutRecord appends a record to the stream, falling back to the WAL if Redis is unavailable.
func (s *RecordStream) PutRecord(ctx context.Context, record domain.PartitionedRecord) error {
	if !s.isAvailable.Load() {
		if s.wal == nil {
			return errors.New("redis is unavailable and WAL is not configured")
		}
		s.logger.Warn("Redis is unavailable, writing to WAL", "partition_key", record.PartitionKey)
		return s.wal.Write(ctx, record)
	}

	err := s.add(ctx, record)
	if err == nil || !isNetworkError(err) {
		return err
	}

	if s.isAvailable.CompareAndSwap(true, false) {
		s.logger.Error("Redis connection lost during write", "error", err)
		s.setWALActive(true)
	}
	if s.wal == nil {
		return fmt.Errorf("redis became unavailable and WAL is not configured: %w", err)
	}
	s.logger.Warn("Redis became unavailable, writing to WAL", "partition_key", record.PartitionKey)
	return s.wal.Write(ctx, record)
}

func (s *RecordStream) add(ctx context.Context, record domain.PartitionedRecord) error {
	args := &redis.XAddArgs{
		Stream: s.streamKey,
		Values: map[string]interface{}{
			fieldPartitionKey: record.PartitionKey,
			fieldData:         record.Data,
		},
	}

	id, err := s.client.XAdd(ctx, args).Result()
	if err != nil {
		return fmt.Errorf("failed to XADD to redis stream: %w", err)
	}
	s.logger.Debug("record added to stream", "message_id", id, "partition_key", record.PartitionKey)
	return nil
}

// ReadBatch reads new entries from the stream for a consumer group member.
func (s *RecordStream) ReadBatch(ctx context.Context, group, consumer string, count int) ([]domain.StreamEntry, error) {
	args := &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{s.streamKey, ">"},
		Count:    int64(count),
		Block:    readBlock,
	}

	streams, err := s.client.XReadGroup(ctx, args).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to XREADGROUP from redis: %w", err)
	}

	if len(streams) == 0 {
		return nil, nil
	}
	return s.toEntries(ctx, group, streams[0].Messages), nil
}

// ReclaimStale transfers ownership of entries idle for at least minIdle to consumer.
// Successive calls walk the pending list from where the previous call stopped,
// wrapping around once the end is reached.
func (s *RecordStream) ReclaimStale(ctx context.Context, group, consumer string, minIdle time.Duration, count int) ([]domain.StreamEntry, error) {
	start := s.reclaimCursor(group)
	messages, next, err := s.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   s.streamKey,
		Group:    group,
		Consumer: consumer,
		MinIdle:  minIdle,
		Start:    start,
		Count:    int64(count),
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to XAUTOCLAIM from redis: %w", err)
	}
	s.setReclaimCursor(group, next)
	return s.toEntries(ctx, group, messages), nil
}

func (s *RecordStream) reclaimCursor(group string) string {
	s.cursorMu.Lock()
	defer s.cursorMu.Unlock()
	if cursor, ok := s.cursors[group]; ok {
		return cursor
	}
	return reclaimStart
}

func (s *RecordStream) setReclaimCursor(group, next string) {
	if next == "" {
		next = reclaimStart
	}
	s.cursorMu.Lock()
	defer s.cursorMu.Unlock()
	s.cursors[group] = next
}

// toEntries converts stream messages to entries. Messages without a data
// field cannot be transformed: they are dead-lettered and acknowledged so they
// leave the pending list. If that fails they stay pending for a later reclaim.
func (s *RecordStream) toEntries(ctx context.Context, group string, messages []redis.XMessage) []domain.StreamEntry {
	entries := make([]domain.StreamEntry, 0, len(messages))
	var invalid []redis.XMessage
	for _, msg := range messages {
		data, ok := msg.Values[fieldData].(string)
		if !ok {
			invalid = append(invalid, msg)
			continue
		}
		key, _ := msg.Values[fieldPartitionKey].(string)
		entries = append(entries, domain.StreamEntry{
			MessageID:    msg.ID,
			PartitionKey: key,
			Data:         []byte(data),
		})
	}

	if len(invalid) > 0 {
		if err := s.quarantine(ctx, group, invalid); err != nil {
			s.logger.Error("Failed to dead-letter invalid stream messages", "count", len(invalid), "error", err)
		}
	}
	return entries
}

// quarantine moves messages lacking a data field to the DLQ and acknowledges them.
func (s *RecordStream) quarantine(ctx context.Context, group string, messages []redis.XMessage) error {
	failedAt := time.Now().UTC().Format(time.RFC3339)
	ids := make([]string, len(messages))
	pipe := s.client.Pipeline()
	for i, msg := range messages {
		ids[i] = msg.ID
		values := make(map[string]interface{}, len(msg.Values)+4)
		for k, v := range msg.Values {
			values[k] = v
		}
		values["original_stream"] = s.streamKey
		values["original_msg_id"] = msg.ID
		values["reason"] = reasonMissingData
		values["failed_at"] = failedAt
		pipe.XAdd(ctx, &redis.XAddArgs{Stream: s.dlqStreamKey, Values: values})
	}
	pipe.XAck(ctx, s.streamKey, group, ids...)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to execute quarantine pipeline: %w", err)
	}
	s.logger.Warn("Dead-lettered stream messages without a data field", "count", len(messages), "dlq_stream", s.dlqStreamKey)
	if s.metrics != nil {
		s.metrics.RecordsDeadLetter.Add(float64(len(messages)))
	}
	return nil
}

// Acknowledge acknowledges processed entries.
func (s *RecordStream) Acknowledge(ctx context.Context, group string, messageIDs ...string) error {
	if len(messageIDs) == 0 {
		return nil
	}
	if err := s.client.XAck(ctx, s.streamKey, group, messageIDs...).Err(); err != nil {
		return fmt.Errorf("failed to XACK messages in redis: %w", err)
	}
	return nil
}

// MoveToDLQ copies entries to the dead-letter stream.
func (s *RecordStream) MoveToDLQ(ctx context.Context, entries []domain.StreamEntry, reason string) error {
	if len(entries) == 0 {
		return nil
	}

	failedAt := time.Now().UTC().Format(time.RFC3339)
	pipe := s.client.Pipeline()
	for _, entry := range entries {
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: s.dlqStreamKey,
			Values: map[string]interface{}{
				fieldPartitionKey: entry.PartitionKey,
				fieldData:         entry.Data,
				"original_stream": s.streamKey,
				"original_msg_id": entry.MessageID,
				"reason":          reason,
				"failed_at":       failedAt,
			},
		})
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to execute DLQ pipeline: %w", err)
	}
	s.logger.Warn("Moved records to DLQ", "count", len(entries), "dlq_stream", s.dlqStreamKey)
	return nil
}

func (s *RecordStream) setWALActive(active bool) {
	if s.metrics == nil {
		return
	}
	if active {
		s.metrics.WALActive.Set(1)
	} else {
		s.metrics.WALActive.Set(0)
	}
}

func isBusyGroupError(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP")
}

func isNetworkError(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) || errors.Is(err, redis.ErrClosed) || errors.Is(err, context.DeadlineExceeded)
}
