package domain

import (
	"errors"
	"fmt"
)

// ErrMalformedRecord marks a record that could not be decoded, parsed or re-encoded.
// A single malformed record rejects the whole batch.
var ErrMalformedRecord = errors.New("malformed record")

// ErrInvalidEnvelope marks a batch envelope without a records array.
var ErrInvalidEnvelope = errors.New("invalid batch envelope")

// TransformStatus is the per-record result reported back to the delivery stream.
// Only StatusOk is emitted: a failing record fails the whole batch instead.
type TransformStatus string

const (
	StatusOk               TransformStatus = "Ok"
	StatusProcessingFailed TransformStatus = "ProcessingFailed"
)

// TransformRequest is the batch envelope handed to the transformer by the
// delivery stream. Field names are part of the wire contract.
type TransformRequest struct {
	InvocationID      string          `json:"invocationId,omitempty"`
	DeliveryStreamArn string          `json:"deliveryStreamArn,omitempty"`
	Region            string          `json:"region,omitempty"`
	Records           []EncodedRecord `json:"records"`
}

// Validate reports ErrInvalidEnvelope when the records key is missing or null.
// An empty array is a valid, empty batch.
func (r TransformRequest) Validate() error {
	if r.Records == nil {
		return fmt.Errorf("%w: missing records", ErrInvalidEnvelope)
	}
	return nil
}

// EncodedRecord is one input entry: an opaque id and a base64 payload.
type EncodedRecord struct {
	RecordID string `json:"recordId"`
	Data     string `json:"data"`
}

// TransformResponse is returned for a fully processed batch.
type TransformResponse struct {
	Records []TransformedRecord `json:"records"`
}

// TransformedRecord is one output entry, matched to its input by RecordID.
type TransformedRecord struct {
	RecordID string          `json:"recordId"`
	Result   TransformStatus `json:"result"`
	Data     string          `json:"data"`
}
