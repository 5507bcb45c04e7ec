package domain

import (
	"encoding/json"
	"time"
)

// PartitionedRecord is a raw record submitted to the ingestion transport.
type PartitionedRecord struct {
	PartitionKey string `json:"partition_key"`
	Data         []byte `json:"data"`
}

// StreamEntry is a record read back from the buffering stream.
type StreamEntry struct {
	MessageID    string
	PartitionKey string
	Data         []byte
}

// DeliveredRecord is a transformed record as persisted by the sink.
type DeliveredRecord struct {
	RecordID     string          `json:"record_id"`
	PartitionKey string          `json:"partition_key,omitempty"`
	Name         string          `json:"name,omitempty"`
	Redacted     bool            `json:"data_redacted"`
	Payload      json.RawMessage `json:"payload"`
	DeliveredAt  time.Time       `json:"delivered_at"`
}
