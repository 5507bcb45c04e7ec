// Package kinesis submits records to an Amazon Kinesis data stream.
package kinesis

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kinesis"
	"github.com/aws/aws-sdk-go-v2/service/kinesis/types"

	"github.com/V4T54L/pii-stream-filter/internal/domain"
)

// PutRecordsAPI is the subset of the Kinesis client used by Publisher.
type PutRecordsAPI interface {
	PutRecords(ctx context.Context, params *kinesis.PutRecordsInput, optFns ...func(*kinesis.Options)) (*kinesis.PutRecordsOutput, error)
}

// NewClient builds a Kinesis client for region from the default credential chain.
func NewClient(ctx context.Context, region string) (*kinesis.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return kinesis.NewFromConfig(cfg), nil
}

// Publisher implements domain.RecordPublisher for a single named stream.
type Publisher struct {
	client     PutRecordsAPI
	streamName string
	logger     *slog.Logger
}

// NewPublisher creates a Publisher writing to streamName.
func NewPublisher(client PutRecordsAPI, streamName string, logger *slog.Logger) *Publisher {
	return &Publisher{
		client:     client,
		streamName: streamName,
		logger:     logger.With("component", "kinesis_publisher", "stream", streamName),
	}
}

// PutRecord sends one record in its own PutRecords call. The response is
// only logged; per-entry failures are not retried.
func (p *Publisher) PutRecord(ctx context.Context, record domain.PartitionedRecord) error {
	out, err := p.client.PutRecords(ctx, &kinesis.PutRecordsInput{
		StreamName: aws.String(p.streamName),
		Records: []types.PutRecordsRequestEntry{
			{Data: record.Data, PartitionKey: aws.String(record.PartitionKey)},
		},
	})
	if err != nil {
		return fmt.Errorf("kinesis PutRecords: %w", err)
	}

	attrs := []any{"partition_key", record.PartitionKey, "failed_record_count", aws.ToInt32(out.FailedRecordCount)}
	if len(out.Records) > 0 {
		entry := out.Records[0]
		attrs = append(attrs,
			"shard_id", aws.ToString(entry.ShardId),
			"sequence_number", aws.ToString(entry.SequenceNumber),
			"error_code", aws.ToString(entry.ErrorCode),
		)
	}
	p.logger.Info("put records response", attrs...)
	return nil
}
