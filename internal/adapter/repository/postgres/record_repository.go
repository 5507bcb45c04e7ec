package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/lib/pq"

	"github.com/V4T54L/pii-stream-filter/internal/domain"
)

const (
	recordsTableName = "delivered_records"
	stagingTableName = "delivered_records_staging"
)

// Schema creates the sink table. It is safe to run repeatedly.
const Schema = `
CREATE TABLE IF NOT EXISTS delivered_records (
	record_id     TEXT PRIMARY KEY,
	partition_key TEXT NOT NULL DEFAULT '',
	name          TEXT NOT NULL DEFAULT '',
	data_redacted BOOLEAN NOT NULL DEFAULT FALSE,
	payload       JSONB NOT NULL,
	delivered_at  TIMESTAMPTZ NOT NULL
);`

// RecordRepository implements domain.RecordSinkRepository for PostgreSQL.
type RecordRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewRecordRepository creates a new PostgreSQL record sink.
func NewRecordRepository(db *sql.DB, logger *slog.Logger) *RecordRepository {
	return &RecordRepository{db: db, logger: logger.With("component", "postgres_record_repository")}
}

// EnsureSchema creates the sink table if it is missing.
func (r *RecordRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("create %s: %w", recordsTableName, err)
	}
	return nil
}

// WriteBatch writes records using the COPY protocol into a staging table and
// upserts them on record_id, so redelivered batches do not duplicate rows.
func (r *RecordRepository) WriteBatch(ctx context.Context, records []domain.DeliveredRecord) error {
	if len(records) == 0 {
		return nil
	}

	txn, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer txn.Rollback() // Rollback is a no-op if Commit() is called

	_, err = txn.ExecContext(ctx, `CREATE TEMP TABLE `+stagingTableName+` (LIKE `+recordsTableName+` INCLUDING DEFAULTS) ON COMMIT DROP;`)
	if err != nil {
		return fmt.Errorf("create staging table: %w", err)
	}

	stmt, err := txn.PrepareContext(ctx, pq.CopyIn(stagingTableName, "record_id", "partition_key", "name", "data_redacted", "payload", "delivered_at"))
	if err != nil {
		return fmt.Errorf("prepare copy: %w", err)
	}

	for _, rec := range records {
		_, err = stmt.ExecContext(ctx, rec.RecordID, rec.PartitionKey, rec.Name, rec.Redacted, string(rec.Payload), rec.DeliveredAt)
		if err != nil {
			// Close the statement to avoid connection issues
			_ = stmt.Close()
			return fmt.Errorf("copy record %s: %w", rec.RecordID, err)
		}
	}

	// Flush buffered COPY data.
	if _, err := stmt.ExecContext(ctx); err != nil {
		_ = stmt.Close()
		return fmt.Errorf("flush copy: %w", err)
	}
	if err := stmt.Close(); err != nil {
		return err
	}

	upsertQuery := `
		INSERT INTO ` + recordsTableName + ` (record_id, partition_key, name, data_redacted, payload, delivered_at)
		SELECT record_id, partition_key, name, data_redacted, payload, delivered_at FROM ` + stagingTableName + `
		ON CONFLICT (record_id) DO UPDATE SET
			partition_key = EXCLUDED.partition_key,
			name = EXCLUDED.name,
			data_redacted = EXCLUDED.data_redacted,
			payload = EXCLUDED.payload,
			delivered_at = EXCLUDED.delivered_at;
	`
	if _, err = txn.ExecContext(ctx, upsertQuery); err != nil {
		return fmt.Errorf("upsert records: %w", err)
	}

	if err := txn.Commit(); err != nil {
		return err
	}
	r.logger.Debug("wrote record batch", "count", len(records))
	return nil
}
