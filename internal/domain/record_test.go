package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
)

// marshal encodes rec the way the codec does, without HTML escaping.
func marshal(t *testing.T, rec Record) []byte {
	t.Helper()
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(rec); err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n"))
}

func TestRecord_JSONRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "Full record keeps source order",
			input: `{"evnt_time":"2021-01-01T00:00:00","name":"Drow","dob":"1990-01-01","gender":"F","ssn_no":"123456789","data_share_consent":false}`,
			want:  `{"evnt_time":"2021-01-01T00:00:00","name":"Drow","dob":"1990-01-01","gender":"F","ssn_no":"123456789","data_share_consent":false}`,
		},
		{
			name:  "HTML characters are not escaped",
			input: `{"name":"Tom & <Jerry>","zone":"a<b"}`,
			want:  `{"name":"Tom & <Jerry>","zone":"a<b"}`,
		},
		{
			name:  "Repeated key keeps first position and last value",
			input: `{"name":"A","zone":1,"name":"B"}`,
			want:  `{"name":"B","zone":1}`,
		},
		{
			name:  "Unknown keys are preserved",
			input: `{"name":"Orc","region":"north","score":12.5}`,
			want:  `{"name":"Orc","region":"north","score":12.5}`,
		},
		{
			name:  "Known key with unexpected type is preserved verbatim",
			input: `{"ssn_no":123456789,"dob":null}`,
			want:  `{"ssn_no":123456789,"dob":null}`,
		},
		{
			name:  "Non-boolean consent is kept raw",
			input: `{"data_share_consent":"false"}`,
			want:  `{"data_share_consent":"false"}`,
		},
		{
			name:  "Redaction marker keeps its position",
			input: `{"zone":1,"data_redacted":true,"data_share_consent":true}`,
			want:  `{"zone":1,"data_redacted":true,"data_share_consent":true}`,
		},
		{
			name:  "Empty object",
			input: `{}`,
			want:  `{}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var rec Record
			if err := json.Unmarshal([]byte(tt.input), &rec); err != nil {
				t.Fatalf("unmarshal failed: %v", err)
			}
			got := marshal(t, rec)
			if string(got) != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}

			var again Record
			if err := json.Unmarshal(got, &again); err != nil {
				t.Fatalf("second unmarshal failed: %v", err)
			}
			regot := marshal(t, again)
			if string(regot) != string(got) {
				t.Errorf("round trip not stable: %s != %s", regot, got)
			}
		})
	}
}

func TestRecord_UnmarshalRejectsNonObjects(t *testing.T) {
	for _, input := range []string{`null`, `[1,2]`, `"text"`, `42`, `{"name":`, `{"name":"x"} {}`} {
		var rec Record
		err := json.Unmarshal([]byte(input), &rec)
		if err == nil {
			t.Errorf("expected error for %s", input)
		}
	}

	for _, input := range []string{`null`, `[1,2]`, `"text"`} {
		var rec Record
		if err := rec.UnmarshalJSON([]byte(input)); !errors.Is(err, ErrNotJSONObject) {
			t.Errorf("%s: expected ErrNotJSONObject, got %v", input, err)
		}
	}
}

func TestRecord_AddedKeysAppendAfterSourceKeys(t *testing.T) {
	var rec Record
	if err := json.Unmarshal([]byte(`{"name":"Hag","data_share_consent":false}`), &rec); err != nil {
		t.Fatal(err)
	}
	placeholder, redacted := "X", true
	rec.DateOfBirth = &placeholder
	rec.SSN = &placeholder
	rec.DataRedacted = &redacted

	want := `{"name":"Hag","data_share_consent":false,"ssn_no":"X","dob":"X","data_redacted":true}`
	if got := marshal(t, rec); string(got) != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestRecord_BuiltRecordUsesCanonicalOrder(t *testing.T) {
	name, dob, ssn, evnt := "Elf", "1990-01-01", "123456789", "2021-01-01T00:00:00.000000"
	gender := GenderFemale
	rec := Record{
		EventTime:   &evnt,
		SSN:         &ssn,
		Name:        &name,
		Consent:     json.RawMessage(`true`),
		DateOfBirth: &dob,
		Gender:      &gender,
		Extra:       map[string]json.RawMessage{"b": json.RawMessage(`2`), "a": json.RawMessage(`1`)},
	}

	want := `{"name":"Elf","dob":"1990-01-01","gender":"F","ssn_no":"123456789","data_share_consent":true,"evnt_time":"2021-01-01T00:00:00.000000","a":1,"b":2}`
	if got := marshal(t, rec); string(got) != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestRecord_ConsentDenied(t *testing.T) {
	tests := []struct {
		consent string
		want    bool
	}{
		{`false`, true},
		{` false `, true},
		{`true`, false},
		{`"false"`, false},
		{`0`, false},
		{`null`, false},
		{``, false},
	}
	for _, tt := range tests {
		rec := Record{}
		if tt.consent != "" {
			rec.Consent = json.RawMessage(tt.consent)
		}
		if got := rec.ConsentDenied(); got != tt.want {
			t.Errorf("ConsentDenied(%q) = %v, want %v", tt.consent, got, tt.want)
		}
	}
}

func TestRecord_CloneIsDeep(t *testing.T) {
	ssn := "123456789"
	orig := Record{
		SSN:     &ssn,
		Consent: json.RawMessage(`false`),
		Extra:   map[string]json.RawMessage{"k": json.RawMessage(`1`)},
	}
	clone := orig.Clone()
	*clone.SSN = "000000000"
	clone.Consent[0] = 'x'
	clone.Extra["k"] = json.RawMessage(`2`)

	if *orig.SSN != "123456789" {
		t.Error("clone shares SSN pointer")
	}
	if string(orig.Consent) != "false" {
		t.Error("clone shares consent bytes")
	}
	if string(orig.Extra["k"]) != "1" {
		t.Error("clone shares extra map")
	}

	var decoded Record
	if err := json.Unmarshal([]byte(`{"zone":1,"name":"Elf"}`), &decoded); err != nil {
		t.Fatal(err)
	}
	if got := marshal(t, decoded.Clone()); string(got) != `{"zone":1,"name":"Elf"}` {
		t.Errorf("clone lost key order: %s", got)
	}
}
