package domain

import (
	"context"
	"time"
)

// RecordPublisher submits individual records to an ingestion transport
// (e.g. a Kinesis data stream or a Redis stream).
type RecordPublisher interface {
	// PutRecord submits one record and blocks until the transport acknowledges it.
	PutRecord(ctx context.Context, record PartitionedRecord) error
}

// RecordStreamRepository reads buffered records for a consumer group.
type RecordStreamRepository interface {
	// ReadBatch reads up to count new entries for the consumer.
	ReadBatch(ctx context.Context, group, consumer string, count int) ([]StreamEntry, error)

	// ReclaimStale takes ownership of entries left pending by other consumers for longer than minIdle.
	ReclaimStale(ctx context.Context, group, consumer string, minIdle time.Duration, count int) ([]StreamEntry, error)

	// Acknowledge marks entries as processed.
	Acknowledge(ctx context.Context, group string, messageIDs ...string) error

	// MoveToDLQ copies entries to the dead-letter stream together with the failure reason.
	MoveToDLQ(ctx context.Context, entries []StreamEntry, reason string) error
}

// RecordSinkRepository persists transformed records.
type RecordSinkRepository interface {
	// WriteBatch stores the records. Writes are idempotent on RecordID.
	WriteBatch(ctx context.Context, records []DeliveredRecord) error
}

// APIKeyRepository defines the interface for validating API keys.
type APIKeyRepository interface {
	// IsValid checks if the provided API key is valid and active.
	// Implementations should handle caching to reduce database load.
	IsValid(ctx context.Context, key string) (bool, error)
}

// WALRepository defines the interface for the Write-Ahead Log failover mechanism.
type WALRepository interface {
	// Write appends a record to the local WAL file.
	Write(ctx context.Context, record PartitionedRecord) error

	// Replay reads records from the WAL and sends them to a handler function.
	// The handler is responsible for re-submitting the record (e.g., to Redis).
	Replay(ctx context.Context, handler func(record PartitionedRecord) error) error

	// Truncate removes WAL segments that have been successfully replayed.
	Truncate(ctx context.Context) error
}
