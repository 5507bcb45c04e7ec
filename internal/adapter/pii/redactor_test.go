package pii

import (
	"encoding/json"
	"testing"

	"github.com/V4T54L/pii-stream-filter/internal/domain"
)

func TestRedactor(t *testing.T) {
	redactor := NewRedactor()

	tests := []struct {
		name           string
		input          string
		expected       string
		expectRedacted bool
	}{
		{
			name:           "Consent refused",
			input:          `{"name":"Drow","dob":"1990-01-01","gender":"F","ssn_no":"123456789","data_share_consent":false,"evnt_time":"2021-01-01T00:00:00"}`,
			expected:       `{"name":"Drow","dob":"REDACTED_CONTENT","gender":"F","ssn_no":"REDACTED_CONTENT","data_share_consent":false,"evnt_time":"2021-01-01T00:00:00","data_redacted":true}`,
			expectRedacted: true,
		},
		{
			name:           "Consent granted",
			input:          `{"name":"Elf","dob":"1980-05-05","ssn_no":"987654321","data_share_consent":true}`,
			expected:       `{"name":"Elf","dob":"1980-05-05","ssn_no":"987654321","data_share_consent":true}`,
			expectRedacted: false,
		},
		{
			name:           "Consent missing",
			input:          `{"name":"Orc","dob":"1980-05-05","ssn_no":"987654321"}`,
			expected:       `{"name":"Orc","dob":"1980-05-05","ssn_no":"987654321"}`,
			expectRedacted: false,
		},
		{
			name:           "Consent is a string",
			input:          `{"ssn_no":"987654321","data_share_consent":"false"}`,
			expected:       `{"ssn_no":"987654321","data_share_consent":"false"}`,
			expectRedacted: false,
		},
		{
			name:           "Consent is zero",
			input:          `{"ssn_no":"987654321","data_share_consent":0}`,
			expected:       `{"ssn_no":"987654321","data_share_consent":0}`,
			expectRedacted: false,
		},
		{
			name:           "Source key order is kept",
			input:          `{"evnt_time":"2021-01-01T00:00:00","ssn_no":"123456789","name":"Drow","data_share_consent":false,"dob":"1990-01-01"}`,
			expected:       `{"evnt_time":"2021-01-01T00:00:00","ssn_no":"REDACTED_CONTENT","name":"Drow","data_share_consent":false,"dob":"REDACTED_CONTENT","data_redacted":true}`,
			expectRedacted: true,
		},
		{
			name:           "Sensitive fields absent are still set",
			input:          `{"name":"Hag","data_share_consent":false}`,
			expected:       `{"name":"Hag","data_share_consent":false,"ssn_no":"REDACTED_CONTENT","dob":"REDACTED_CONTENT","data_redacted":true}`,
			expectRedacted: true,
		},
		{
			name:           "Untyped sensitive values are overwritten",
			input:          `{"ssn_no":123456789,"dob":null,"data_redacted":"no","data_share_consent":false}`,
			expected:       `{"ssn_no":"REDACTED_CONTENT","dob":"REDACTED_CONTENT","data_redacted":true,"data_share_consent":false}`,
			expectRedacted: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var rec domain.Record
			if err := json.Unmarshal([]byte(tt.input), &rec); err != nil {
				t.Fatalf("failed to unmarshal input: %v", err)
			}

			out, redacted := redactor.Redact(rec)
			if redacted != tt.expectRedacted {
				t.Errorf("redacted got = %v, want %v", redacted, tt.expectRedacted)
			}

			got, err := json.Marshal(out)
			if err != nil {
				t.Fatalf("failed to marshal output: %v", err)
			}
			if string(got) != tt.expected {
				t.Errorf("output mismatch:\n got: %s\nwant: %s", got, tt.expected)
			}
		})
	}
}

func TestRedactor_DoesNotMutateInput(t *testing.T) {
	var rec domain.Record
	if err := json.Unmarshal([]byte(`{"ssn_no":"123456789","dob":"1990-01-01","data_share_consent":false}`), &rec); err != nil {
		t.Fatal(err)
	}

	NewRedactor().Redact(rec)

	if *rec.SSN != "123456789" || *rec.DateOfBirth != "1990-01-01" || rec.DataRedacted != nil {
		t.Errorf("input record was modified: %+v", rec)
	}
}

func TestRedactor_Idempotent(t *testing.T) {
	redactor := NewRedactor()
	var rec domain.Record
	if err := json.Unmarshal([]byte(`{"name":"Kenku","ssn_no":"123456789","dob":"1990-01-01","data_share_consent":false}`), &rec); err != nil {
		t.Fatal(err)
	}

	once, _ := redactor.Redact(rec)
	twice, _ := redactor.Redact(once)

	a, _ := json.Marshal(once)
	b, _ := json.Marshal(twice)
	if string(a) != string(b) {
		t.Errorf("redaction is not idempotent:\n once: %s\ntwice: %s", a, b)
	}
}
