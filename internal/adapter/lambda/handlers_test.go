package lambda

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/V4T54L/pii-stream-filter/internal/adapter/pii"
	"github.com/V4T54L/pii-stream-filter/internal/domain"
	"github.com/V4T54L/pii-stream-filter/internal/usecase"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestTransformHandler_Handle(t *testing.T) {
	uc := usecase.NewTransformRecordsUseCase(pii.NewRedactor(), discard(), nil)
	h := NewTransformHandler(uc, discard())
	ctx := lambdacontext.NewContext(context.Background(), &lambdacontext.LambdaContext{AwsRequestID: "req-1"})

	// The delivery stream's own event type must decode into our envelope.
	event := events.KinesisFirehoseEvent{
		InvocationID: "inv-1",
		Records: []events.KinesisFirehoseEventRecord{
			{RecordID: "r1", Data: []byte(`{"name":"Drow","ssn_no":"1","dob":"2000-01-01","data_share_consent":false}`)},
		},
	}
	raw, err := json.Marshal(event)
	require.NoError(t, err)
	var req domain.TransformRequest
	require.NoError(t, json.Unmarshal(raw, &req))

	resp, err := h.Handle(ctx, req)
	require.NoError(t, err)

	out, err := json.Marshal(resp)
	require.NoError(t, err)
	var firehose events.KinesisFirehoseResponse
	require.NoError(t, json.Unmarshal(out, &firehose))
	require.Len(t, firehose.Records, 1)
	assert.Equal(t, "r1", firehose.Records[0].RecordID)
	assert.Equal(t, events.KinesisFirehoseTransformedStateOk, firehose.Records[0].Result)
	assert.Contains(t, string(firehose.Records[0].Data), `"ssn_no":"REDACTED_CONTENT"`)
}

func TestTransformHandler_FailsInvocation(t *testing.T) {
	uc := usecase.NewTransformRecordsUseCase(pii.NewRedactor(), discard(), nil)
	h := NewTransformHandler(uc, discard())

	resp, err := h.Handle(context.Background(), domain.TransformRequest{
		Records: []domain.EncodedRecord{{RecordID: "r1", Data: base64.StdEncoding.EncodeToString([]byte("nope"))}},
	})

	assert.ErrorIs(t, err, domain.ErrMalformedRecord)
	assert.Nil(t, resp)
}

func TestTransformHandler_MissingRecordsFailsInvocation(t *testing.T) {
	uc := usecase.NewTransformRecordsUseCase(pii.NewRedactor(), discard(), nil)
	h := NewTransformHandler(uc, discard())

	var req domain.TransformRequest
	require.NoError(t, json.Unmarshal([]byte(`{"invocationId":"inv-2"}`), &req))
	resp, err := h.Handle(context.Background(), req)

	assert.ErrorIs(t, err, domain.ErrInvalidEnvelope)
	assert.Nil(t, resp)
}

func TestRecordStatus_MatchesDeliveryStreamStates(t *testing.T) {
	assert.Equal(t, events.KinesisFirehoseTransformedStateOk, string(domain.StatusOk))
	assert.Equal(t, events.KinesisFirehoseTransformedStateProcessingFailed, string(domain.StatusProcessingFailed))
}

type stubProducer struct {
	result    usecase.ProduceResult
	remaining int64
}

func (s *stubProducer) Run(ctx context.Context, budget usecase.TimeBudget) usecase.ProduceResult {
	s.remaining = budget.RemainingMillis()
	return s.result
}

func TestProducerHandler_Handle(t *testing.T) {
	stub := &stubProducer{result: usecase.ProduceResult{Status: true, RecordCount: 7}}
	h := NewProducerHandler(stub, time.Minute, discard())
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	resp, err := h.Handle(ctx, json.RawMessage(`{"source":"aws.events"}`))

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"message":{"status":true,"record_count":7}}`, resp.Body)
	assert.LessOrEqual(t, stub.remaining, int64(3000), "budget must follow the invocation deadline")
}

func TestProducerHandler_ReportsFailureInBody(t *testing.T) {
	stub := &stubProducer{result: usecase.ProduceResult{RecordCount: 2, ErrorMessage: "throttled"}}
	h := NewProducerHandler(stub, time.Second, discard())

	resp, err := h.Handle(context.Background(), nil)

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"message":{"status":false,"record_count":2,"error_message":"throttled"}}`, resp.Body)
}
