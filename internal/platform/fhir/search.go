package fhir

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/fhirsearch/internal/platform/search"
)

// SearchModifier represents a FHIR search modifier.
type SearchModifier string

const (
	ModifierExact    SearchModifier = "exact"
	ModifierContains SearchModifier = "contains"
	ModifierText     SearchModifier = "text"
	ModifierNot      SearchModifier = "not"
	ModifierMissing  SearchModifier = "missing"
	ModifierAbove    SearchModifier = "above"
	ModifierBelow    SearchModifier = "below"
)

// ParsedSearch holds a parsed search parameter value with its prefix.
type ParsedSearch struct {
	Prefix search.Prefix
	Value  string
}

// ParseSearchValue extracts the prefix from a FHIR search value.
// Examples: "gt2023-01-01" -> (gt, "2023-01-01"), "100" -> (eq, "100")
func ParseSearchValue(raw string) ParsedSearch {
	if len(raw) >= 2 {
		prefix := search.Prefix(strings.ToLower(raw[:2]))
		switch prefix {
		case search.PrefixEq, search.PrefixNe, search.PrefixGt, search.PrefixLt, search.PrefixGe,
			search.PrefixLe, search.PrefixSa, search.PrefixEb, search.PrefixAp:
			return ParsedSearch{Prefix: prefix, Value: raw[2:]}
		}
	}
	return ParsedSearch{Prefix: search.PrefixEq, Value: raw}
}

// ParseParamModifier splits a parameter name from its modifier.
// Examples: "name:exact" -> ("name", "exact"), "code" -> ("code", "")
func ParseParamModifier(paramName string) (string, SearchModifier) {
	parts := strings.SplitN(paramName, ":", 2)
	if len(parts) == 2 {
		return parts[0], SearchModifier(parts[1])
	}
	return parts[0], ""
}

// ParseToken parses "system|code", "|code", "system|" or "code".
func ParseToken(raw string) search.Token {
	if i := strings.Index(raw, "|"); i >= 0 {
		return search.Token{System: raw[:i], Code: raw[i+1:]}
	}
	return search.Token{Code: raw}
}

// ParseReference parses "Type/id" or "id". Absolute URLs keep only their last
// two path segments.
func ParseReference(raw string) search.Reference {
	parts := strings.Split(strings.TrimSuffix(raw, "/"), "/")
	if len(parts) >= 2 {
		return search.Reference{ResourceType: parts[len(parts)-2], ID: parts[len(parts)-1]}
	}
	return search.Reference{ID: raw}
}

// ParseQuantity parses "[prefix]number[|system|unit]".
func ParseQuantity(raw string) (search.Quantity, error) {
	parsed := ParseSearchValue(raw)
	parts := strings.SplitN(parsed.Value, "|", 3)
	v, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return search.Quantity{}, fmt.Errorf("invalid number %q", parts[0])
	}
	q := search.Quantity{Prefix: parsed.Prefix, Value: v}
	if len(parts) == 3 {
		q.System, q.Unit = parts[1], parts[2]
	} else if len(parts) == 2 {
		q.Unit = parts[1]
	}
	return q, nil
}

// ParseDateBound parses a prefixed FHIR date and records the precision it was
// written with.
func ParseDateBound(raw string) (*search.DateBound, error) {
	parsed := ParseSearchValue(raw)
	t, precision, err := parseFlexDate(parsed.Value)
	if err != nil {
		return nil, err
	}
	return &search.DateBound{Prefix: parsed.Prefix, Time: t, Precision: precision}, nil
}

var dateLayouts = []struct {
	layout    string
	precision search.DatePrecision
}{
	{time.RFC3339, search.PrecisionSecond},
	{"2006-01-02T15:04:05", search.PrecisionSecond},
	{"2006-01-02T15:04", search.PrecisionSecond},
	{"2006-01-02", search.PrecisionDay},
	{"2006-01", search.PrecisionMonth},
	{"2006", search.PrecisionYear},
}

// parseFlexDate parses a date string in multiple FHIR-supported formats.
func parseFlexDate(s string) (time.Time, search.DatePrecision, error) {
	for _, f := range dateLayouts {
		if t, err := time.Parse(f.layout, s); err == nil {
			return t.UTC(), f.precision, nil
		}
	}
	return time.Time{}, 0, fmt.Errorf("unable to parse date: %s", s)
}

// ParseSort parses the _sort query parameter value.
// Format: "-date,status" means date DESC, status ASC.
func ParseSort(sortParam string) search.Sort {
	var s search.Sort
	for _, part := range strings.Split(sortParam, ",") {
		part = strings.TrimSpace(part)
		desc := strings.HasPrefix(part, "-")
		part = strings.TrimPrefix(part, "-")
		if part == "" {
			continue
		}
		s.Fields = append(s.Fields, search.SortField{Name: part, Descending: desc})
	}
	return s
}

// FormatReference creates a FHIR reference string.
func FormatReference(resourceType, id string) string {
	return fmt.Sprintf("%s/%s", resourceType, id)
}

// ReferenceColumn is a select expression yielding the fhir_id of the target
// row that table.column points at. It falls back to the key as text when the
// target row is missing, and is NULL when the key is.
func ReferenceColumn(table, column, target string) string {
	return fmt.Sprintf("COALESCE((SELECT ref.fhir_id FROM %s ref WHERE ref.id = %s.%s), %s.%s::text)",
		target, table, column, table, column)
}

// ReferenceID is the id to render in a reference: the resolved fhir_id when
// one was selected, otherwise the key.
func ReferenceID(fhirID string, id uuid.UUID) string {
	if fhirID != "" {
		return fhirID
	}
	return id.String()
}
