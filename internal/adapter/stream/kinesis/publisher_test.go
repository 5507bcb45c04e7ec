package kinesis

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kinesis"
	"github.com/aws/aws-sdk-go-v2/service/kinesis/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/V4T54L/pii-stream-filter/internal/domain"
)

type fakeKinesis struct {
	inputs []*kinesis.PutRecordsInput
	out    *kinesis.PutRecordsOutput
	err    error
}

func (f *fakeKinesis) PutRecords(_ context.Context, params *kinesis.PutRecordsInput, _ ...func(*kinesis.Options)) (*kinesis.PutRecordsOutput, error) {
	f.inputs = append(f.inputs, params)
	if f.err != nil {
		return nil, f.err
	}
	return f.out, nil
}

func TestPublisher_PutRecord(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	fake := &fakeKinesis{out: &kinesis.PutRecordsOutput{
		FailedRecordCount: aws.Int32(0),
		Records:           []types.PutRecordsResultEntry{{ShardId: aws.String("shardId-000000000000"), SequenceNumber: aws.String("1")}},
	}}
	p := NewPublisher(fake, "data_pipe", logger)

	err := p.PutRecord(context.Background(), domain.PartitionedRecord{PartitionKey: "pk-1", Data: []byte(`{"name":"Drow"}`)})
	require.NoError(t, err)

	require.Len(t, fake.inputs, 1)
	in := fake.inputs[0]
	assert.Equal(t, "data_pipe", aws.ToString(in.StreamName))
	require.Len(t, in.Records, 1, "each record is submitted on its own")
	assert.Equal(t, "pk-1", aws.ToString(in.Records[0].PartitionKey))
	assert.Equal(t, `{"name":"Drow"}`, string(in.Records[0].Data))
}

func TestPublisher_PutRecordError(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cause := errors.New("ResourceNotFoundException")
	p := NewPublisher(&fakeKinesis{err: cause}, "missing", logger)

	err := p.PutRecord(context.Background(), domain.PartitionedRecord{PartitionKey: "pk", Data: []byte(`{}`)})
	assert.ErrorIs(t, err, cause)
}

func TestPublisher_PartialFailureIsOnlyLogged(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	fake := &fakeKinesis{out: &kinesis.PutRecordsOutput{
		FailedRecordCount: aws.Int32(1),
		Records:           []types.PutRecordsResultEntry{{ErrorCode: aws.String("ProvisionedThroughputExceededException")}},
	}}
	p := NewPublisher(fake, "data_pipe", logger)

	assert.NoError(t, p.PutRecord(context.Background(), domain.PartitionedRecord{PartitionKey: "pk", Data: []byte(`{}`)}))
}
