package pii

import (
	"github.com/V4T54L/pii-stream-filter/internal/domain"
)

// RedactedPlaceholder replaces the value of every redacted field.
const RedactedPlaceholder = "REDACTED_CONTENT"

// Redactor applies the consent policy to personal-data records: when the
// subject has explicitly refused data sharing, the SSN and date of birth are
// replaced by RedactedPlaceholder and the record is marked as redacted.
type Redactor struct {
	placeholder string
}

// NewRedactor creates a Redactor using RedactedPlaceholder.
func NewRedactor() *Redactor {
	return &Redactor{placeholder: RedactedPlaceholder}
}

// Redact returns the record after policy application and whether it was redacted.
// The input is never modified. Only a consent flag equal to the boolean false
// triggers redaction; a missing flag leaves the record untouched.
func (r *Redactor) Redact(rec domain.Record) (domain.Record, bool) {
	if !rec.ConsentDenied() {
		return rec, false
	}

	out := rec.Clone()
	ssn, dob, redacted := r.placeholder, r.placeholder, true
	out.SSN = &ssn
	out.DateOfBirth = &dob
	out.DataRedacted = &redacted

	// Drop verbatim copies of the same keys kept for untyped values.
	for _, key := range []string{domain.FieldSSN, domain.FieldDateOfBirth, domain.FieldDataRedacted} {
		delete(out.Extra, key)
	}
	return out, true
}
