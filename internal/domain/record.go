package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
)

// Wire keys of a personal-data record.
const (
	FieldName         = "name"
	FieldDateOfBirth  = "dob"
	FieldGender       = "gender"
	FieldSSN          = "ssn_no"
	FieldConsent      = "data_share_consent"
	FieldEventTime    = "evnt_time"
	FieldDataRedacted = "data_redacted"
)

// ErrNotJSONObject is returned when a record payload decodes to something other than a JSON object.
var ErrNotJSONObject = errors.New("record payload is not a JSON object")

// Gender is the subject's recorded gender.
type Gender string

const (
	GenderMale   Gender = "M"
	GenderFemale Gender = "F"
)

// Record is a single personal-data record as it travels through the stream.
//
// Known fields are typed. A known key whose value does not fit its type, and
// every unknown key, is kept verbatim in Extra. A decoded record remembers the
// key order of its source document and re-encodes in that order.
type Record struct {
	Name         *string
	DateOfBirth  *string
	Gender       *Gender
	SSN          *string
	Consent      json.RawMessage // kept raw: only the literal false has meaning
	EventTime    *string
	DataRedacted *bool
	Extra        map[string]json.RawMessage

	order []string
}

// canonicalOrder is the key order of records built in code.
var canonicalOrder = []string{FieldName, FieldDateOfBirth, FieldGender, FieldSSN, FieldConsent, FieldEventTime}

// appendOrder is the order in which keys missing from a decoded document are
// appended. Redaction adds ssn_no then dob.
var appendOrder = []string{FieldSSN, FieldDateOfBirth, FieldName, FieldGender, FieldConsent, FieldEventTime}

// ConsentDenied reports whether data_share_consent is present and exactly the boolean false.
// A missing flag, true, or any non-boolean value does not count as denial.
func (r Record) ConsentDenied() bool {
	return bytes.Equal(bytes.TrimSpace(r.Consent), []byte("false"))
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	out := Record{
		Name:         clonePtr(r.Name),
		DateOfBirth:  clonePtr(r.DateOfBirth),
		Gender:       clonePtr(r.Gender),
		SSN:          clonePtr(r.SSN),
		EventTime:    clonePtr(r.EventTime),
		DataRedacted: clonePtr(r.DataRedacted),
		order:        slices.Clone(r.order),
	}
	if r.Consent != nil {
		out.Consent = slices.Clone(r.Consent)
	}
	if r.Extra != nil {
		out.Extra = make(map[string]json.RawMessage, len(r.Extra))
		for k, v := range r.Extra {
			out.Extra[k] = slices.Clone(v)
		}
	}
	return out
}

// UnmarshalJSON decodes a JSON object into the record. A repeated key keeps
// its first position and its last value.
func (r *Record) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return ErrNotJSONObject
	}

	*r = Record{order: []string{}}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected object key %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("decode field %q: %w", key, err)
		}
		if !slices.Contains(r.order, key) {
			r.order = append(r.order, key)
		}
		r.set(key, raw)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	if _, err := dec.Token(); err != io.EOF {
		return errors.New("unexpected data after record object")
	}
	return nil
}

func (r *Record) set(key string, raw json.RawMessage) {
	delete(r.Extra, key)
	var fits bool
	switch key {
	case FieldName:
		r.Name, fits = decodeTyped[string](raw)
	case FieldDateOfBirth:
		r.DateOfBirth, fits = decodeTyped[string](raw)
	case FieldGender:
		r.Gender, fits = decodeTyped[Gender](raw)
	case FieldSSN:
		r.SSN, fits = decodeTyped[string](raw)
	case FieldEventTime:
		r.EventTime, fits = decodeTyped[string](raw)
	case FieldDataRedacted:
		r.DataRedacted, fits = decodeTyped[bool](raw)
	case FieldConsent:
		r.Consent, fits = slices.Clone(raw), true
	}
	if !fits {
		r.setExtra(key, raw)
	}
}

// MarshalJSON encodes the record as a JSON object without HTML escaping.
// A decoded record keeps its source key order and gets added keys appended.
// A record built in code uses the canonical order. Extra keys missing from
// the source order follow sorted, and a new data_redacted comes last.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	written := make(map[string]bool, len(r.order)+len(canonicalOrder))
	write := func(key string) error {
		if written[key] {
			return nil
		}
		value, ok := r.value(key)
		if !ok {
			return nil
		}
		written[key] = true
		k, err := encodeValue(key)
		if err != nil {
			return err
		}
		v, err := encodeValue(value)
		if err != nil {
			return fmt.Errorf("encode field %q: %w", key, err)
		}
		if buf.Len() > 1 {
			buf.WriteByte(',')
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
		return nil
	}

	tail := canonicalOrder
	if r.order != nil {
		tail = appendOrder
	}
	keys := slices.Concat(r.order, tail, slices.Sorted(maps.Keys(r.Extra)), []string{FieldDataRedacted})
	for _, key := range keys {
		if err := write(key); err != nil {
			return nil, err
		}
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// value returns the value stored under key, typed field first.
func (r Record) value(key string) (any, bool) {
	switch key {
	case FieldName:
		if r.Name != nil {
			return r.Name, true
		}
	case FieldDateOfBirth:
		if r.DateOfBirth != nil {
			return r.DateOfBirth, true
		}
	case FieldGender:
		if r.Gender != nil {
			return r.Gender, true
		}
	case FieldSSN:
		if r.SSN != nil {
			return r.SSN, true
		}
	case FieldConsent:
		if r.Consent != nil {
			return r.Consent, true
		}
	case FieldEventTime:
		if r.EventTime != nil {
			return r.EventTime, true
		}
	case FieldDataRedacted:
		if r.DataRedacted != nil {
			return r.DataRedacted, true
		}
	}
	raw, ok := r.Extra[key]
	return raw, ok
}

func encodeValue(v any) ([]byte, error) {
	if raw, ok := v.(json.RawMessage); ok {
		return raw, nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

func (r *Record) setExtra(key string, raw json.RawMessage) {
	if r.Extra == nil {
		r.Extra = make(map[string]json.RawMessage)
	}
	r.Extra[key] = slices.Clone(raw)
}

// decodeTyped decodes raw into a T. It reports false for null or a value of another JSON type.
func decodeTyped[T any](raw json.RawMessage) (*T, bool) {
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, false
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, false
	}
	return &v, true
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
