// Package codec implements the record wire format used between the delivery
// stream and the transformer: base64 of UTF-8 JSON, with a trailing newline
// on transformed output.
package codec

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/V4T54L/pii-stream-filter/internal/domain"
)

// ErrInvalidUTF8 is returned when a decoded payload is not valid UTF-8 text.
var ErrInvalidUTF8 = errors.New("payload is not valid UTF-8")

// DecodePayload base64-decodes data and checks that the result is UTF-8.
func DecodePayload(data string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}
	if !utf8.Valid(raw) {
		return nil, ErrInvalidUTF8
	}
	return raw, nil
}

// EncodePayload base64-encodes raw bytes.
func EncodePayload(raw []byte) string {
	return base64.StdEncoding.EncodeToString(raw)
}

// DecodeRecord decodes a base64 JSON payload into a Record.
// Surrounding whitespace, including the newline terminator, is ignored.
func DecodeRecord(data string) (domain.Record, error) {
	raw, err := DecodePayload(data)
	if err != nil {
		return domain.Record{}, err
	}
	return ParseRecord(raw)
}

// ParseRecord parses a raw JSON payload into a Record.
func ParseRecord(raw []byte) (domain.Record, error) {
	var rec domain.Record
	if err := json.Unmarshal(bytes.TrimSpace(raw), &rec); err != nil {
		return domain.Record{}, fmt.Errorf("parse JSON: %w", err)
	}
	return rec, nil
}

// MarshalRecord serialises a record followed by a newline terminator.
// HTML characters are written as is.
func MarshalRecord(rec domain.Record) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(rec); err != nil {
		return nil, fmt.Errorf("serialize record: %w", err)
	}
	return buf.Bytes(), nil
}

// Terminate returns raw without surrounding whitespace and with a single newline terminator.
func Terminate(raw []byte) []byte {
	trimmed := bytes.TrimSpace(raw)
	out := make([]byte, len(trimmed)+1)
	copy(out, trimmed)
	out[len(trimmed)] = '\n'
	return out
}

// EncodeRecord serialises a record, appends the newline terminator and base64-encodes the result.
func EncodeRecord(rec domain.Record) (string, error) {
	payload, err := MarshalRecord(rec)
	if err != nil {
		return "", err
	}
	return EncodePayload(payload), nil
}
