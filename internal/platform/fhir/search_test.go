package fhir

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/fhirsearch/internal/platform/search"
)

func TestParseSearchValue(t *testing.T) {
	tests := []struct {
		input  string
		prefix search.Prefix
		value  string
	}{
		{"2023-01-01", search.PrefixEq, "2023-01-01"},
		{"gt2023-01-01", search.PrefixGt, "2023-01-01"},
		{"lt2023-12-31", search.PrefixLt, "2023-12-31"},
		{"ge100", search.PrefixGe, "100"},
		{"le200", search.PrefixLe, "200"},
		{"ne50", search.PrefixNe, "50"},
		{"sa2023-06-01", search.PrefixSa, "2023-06-01"},
		{"eb2023-06-30", search.PrefixEb, "2023-06-30"},
		{"ap2023-06-15", search.PrefixAp, "2023-06-15"},
		{"eq2023-01-01", search.PrefixEq, "2023-01-01"},
		{"abc", search.PrefixEq, "abc"},
		{"", search.PrefixEq, ""},
		{"g", search.PrefixEq, "g"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := ParseSearchValue(tt.input)
			if result.Prefix != tt.prefix {
				t.Errorf("ParseSearchValue(%q).Prefix = %q, want %q", tt.input, result.Prefix, tt.prefix)
			}
			if result.Value != tt.value {
				t.Errorf("ParseSearchValue(%q).Value = %q, want %q", tt.input, result.Value, tt.value)
			}
		})
	}
}

func TestParseParamModifier(t *testing.T) {
	tests := []struct {
		input    string
		param    string
		modifier SearchModifier
	}{
		{"name:exact", "name", ModifierExact},
		{"name:contains", "name", ModifierContains},
		{"code:not", "code", ModifierNot},
		{"name", "name", ""},
		{"status:above", "status", ModifierAbove},
		{"subject:Patient.name", "subject", "Patient.name"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			param, mod := ParseParamModifier(tt.input)
			if param != tt.param {
				t.Errorf("ParseParamModifier(%q) param = %q, want %q", tt.input, param, tt.param)
			}
			if mod != tt.modifier {
				t.Errorf("ParseParamModifier(%q) modifier = %q, want %q", tt.input, mod, tt.modifier)
			}
		})
	}
}

func TestParseToken(t *testing.T) {
	tests := []struct {
		input string
		want  search.Token
	}{
		{"http://loinc.org|1234-5", search.Token{System: "http://loinc.org", Code: "1234-5"}},
		{"|1234-5", search.Token{Code: "1234-5"}},
		{"http://loinc.org|", search.Token{System: "http://loinc.org"}},
		{"1234-5", search.Token{Code: "1234-5"}},
	}
	for _, tt := range tests {
		if got := ParseToken(tt.input); got != tt.want {
			t.Errorf("ParseToken(%q) = %+v, want %+v", tt.input, got, tt.want)
		}
	}
}

func TestParseReference(t *testing.T) {
	tests := []struct {
		input string
		rt    string
		id    string
	}{
		{"Patient/123", "Patient", "123"},
		{"123", "", "123"},
		{"http://example.org/fhir/Patient/abc", "Patient", "abc"},
		{"Patient/123/", "Patient", "123"},
	}
	for _, tt := range tests {
		got := ParseReference(tt.input)
		if got.ResourceType != tt.rt || got.ID != tt.id {
			t.Errorf("ParseReference(%q) = %+v, want %s/%s", tt.input, got, tt.rt, tt.id)
		}
	}
}

func TestParseQuantity(t *testing.T) {
	tests := []struct {
		input string
		want  search.Quantity
	}{
		{"5.4", search.Quantity{Prefix: search.PrefixEq, Value: 5.4}},
		{"gt5.4|http://unitsofmeasure.org|mg", search.Quantity{Prefix: search.PrefixGt, Value: 5.4, System: "http://unitsofmeasure.org", Unit: "mg"}},
		{"le100|mmHg", search.Quantity{Prefix: search.PrefixLe, Value: 100, Unit: "mmHg"}},
		{"ap10||kg", search.Quantity{Prefix: search.PrefixAp, Value: 10, Unit: "kg"}},
	}
	for _, tt := range tests {
		got, err := ParseQuantity(tt.input)
		if err != nil {
			t.Errorf("ParseQuantity(%q): %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseQuantity(%q) = %+v, want %+v", tt.input, got, tt.want)
		}
	}

	if _, err := ParseQuantity("gtabc"); err == nil {
		t.Error("expected error for non-numeric quantity")
	}
}

func TestParseDateBound(t *testing.T) {
	tests := []struct {
		input     string
		prefix    search.Prefix
		time      time.Time
		precision search.DatePrecision
	}{
		{"2023", search.PrefixEq, time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), search.PrecisionYear},
		{"ge2023-06", search.PrefixGe, time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC), search.PrecisionMonth},
		{"lt2023-06-15", search.PrefixLt, time.Date(2023, 6, 15, 0, 0, 0, 0, time.UTC), search.PrecisionDay},
		{"2023-06-15T10:30", search.PrefixEq, time.Date(2023, 6, 15, 10, 30, 0, 0, time.UTC), search.PrecisionSecond},
		{"gt2023-06-15T10:30:00Z", search.PrefixGt, time.Date(2023, 6, 15, 10, 30, 0, 0, time.UTC), search.PrecisionSecond},
		{"2023-06-15T12:30:00+02:00", search.PrefixEq, time.Date(2023, 6, 15, 10, 30, 0, 0, time.UTC), search.PrecisionSecond},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			b, err := ParseDateBound(tt.input)
			if err != nil {
				t.Fatalf("ParseDateBound(%q): %v", tt.input, err)
			}
			if b.Prefix != tt.prefix {
				t.Errorf("Prefix = %q, want %q", b.Prefix, tt.prefix)
			}
			if !b.Time.Equal(tt.time) {
				t.Errorf("Time = %v, want %v", b.Time, tt.time)
			}
			if b.Precision != tt.precision {
				t.Errorf("Precision = %v, want %v", b.Precision, tt.precision)
			}
		})
	}

	for _, bad := range []string{"yesterday", "2023-13-01", "gt"} {
		if _, err := ParseDateBound(bad); err == nil {
			t.Errorf("ParseDateBound(%q) expected error", bad)
		}
	}
}

func TestParseSort(t *testing.T) {
	s := ParseSort("-date, status,,-")
	if len(s.Fields) != 2 {
		t.Fatalf("fields = %+v", s.Fields)
	}
	if s.Fields[0] != (search.SortField{Name: "date", Descending: true}) {
		t.Errorf("first field = %+v", s.Fields[0])
	}
	if s.Fields[1] != (search.SortField{Name: "status"}) {
		t.Errorf("second field = %+v", s.Fields[1])
	}
	if !ParseSort("").IsEmpty() {
		t.Error("empty sort should be empty")
	}
}

func TestReferenceColumn(t *testing.T) {
	got := ReferenceColumn("observation", "patient_id", "patient")
	want := "COALESCE((SELECT ref.fhir_id FROM patient ref WHERE ref.id = observation.patient_id), observation.patient_id::text)"
	if got != want {
		t.Errorf("ReferenceColumn() =\n%s\nwant\n%s", got, want)
	}
}

func TestReferenceID(t *testing.T) {
	id := uuid.MustParse("5f0c1a52-7d8e-4d7e-9a55-3f1d1c2b9e01")
	if got := ReferenceID("pat-1", id); got != "pat-1" {
		t.Errorf("ReferenceID(fhir id) = %q", got)
	}
	if got := ReferenceID("", id); got != id.String() {
		t.Errorf("ReferenceID(no fhir id) = %q", got)
	}
}

func TestFormatReference(t *testing.T) {
	if got := FormatReference("Patient", "123"); got != "Patient/123" {
		t.Errorf("FormatReference() = %q", got)
	}
}
