package fhir

import (
	"strings"
)

// HandlingPreference represents the FHIR Prefer handling directive value.
// Under strict handling unknown search parameters are rejected; under lenient
// handling they are dropped and reported back.
type HandlingPreference string

const (
	HandlingStrict  HandlingPreference = "strict"
	HandlingLenient HandlingPreference = "lenient"
)

// ParsePreferHandling extracts the handling preference from a Prefer header
// value. Directives may be separated by semicolons or commas. Searches are
// strict unless the client asks otherwise.
func ParsePreferHandling(prefer string) HandlingPreference {
	for _, part := range strings.FieldsFunc(prefer, func(r rune) bool { return r == ',' || r == ';' }) {
		part = strings.TrimSpace(part)
		if !strings.HasPrefix(part, "handling=") {
			continue
		}
		switch HandlingPreference(strings.TrimSpace(part[len("handling="):])) {
		case HandlingLenient:
			return HandlingLenient
		case HandlingStrict:
			return HandlingStrict
		}
	}
	return HandlingStrict
}
