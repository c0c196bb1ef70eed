package fhir

import "testing"

func TestParsePreferHandling(t *testing.T) {
	tests := []struct {
		prefer string
		want   HandlingPreference
	}{
		{"", HandlingStrict},
		{"handling=lenient", HandlingLenient},
		{"handling=strict", HandlingStrict},
		{"return=minimal; handling=lenient", HandlingLenient},
		{"respond-async,handling=lenient", HandlingLenient},
		{"handling=sloppy", HandlingStrict},
	}
	for _, tt := range tests {
		t.Run(tt.prefer, func(t *testing.T) {
			if got := ParsePreferHandling(tt.prefer); got != tt.want {
				t.Errorf("ParsePreferHandling(%q) = %q, want %q", tt.prefer, got, tt.want)
			}
		})
	}
}
