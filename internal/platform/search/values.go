package search

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ValueKind tags the concrete type behind a Value.
type ValueKind int

const (
	KindToken ValueKind = iota
	KindTokenOr
	KindTokenAnd
	KindReference
	KindReferenceOr
	KindReferenceAnd
	KindDateRange
	KindQuantity
	KindString
	KindHas
	KindSort
)

var kindNames = map[ValueKind]string{
	KindToken:        "token",
	KindTokenOr:      "token-or",
	KindTokenAnd:     "token-and",
	KindReference:    "reference",
	KindReferenceOr:  "reference-or",
	KindReferenceAnd: "reference-and",
	KindDateRange:    "date-range",
	KindQuantity:     "quantity",
	KindString:       "string",
	KindHas:          "has",
	KindSort:         "sort",
}

func (k ValueKind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return "unknown"
}

// Value is a single search criterion value. Implementations are immutable.
type Value interface {
	Kind() ValueKind
	// IsEmpty reports whether the value carries no constraint at all. Empty
	// values are dropped by ParameterMap.Prune.
	IsEmpty() bool
	// String renders the value in query-string form for logs and errors.
	String() string
}

// compactor is implemented by values that can drop empty members, directly
// or inside a nested value.
type compactor interface {
	compact() Value
}

func compactValue(v Value) Value {
	if c, ok := v.(compactor); ok {
		return c.compact()
	}
	return v
}

// Prefix is a FHIR comparison prefix for ordered values.
type Prefix string

const (
	PrefixEq Prefix = "eq"
	PrefixNe Prefix = "ne"
	PrefixGt Prefix = "gt"
	PrefixLt Prefix = "lt"
	PrefixGe Prefix = "ge"
	PrefixLe Prefix = "le"
	PrefixSa Prefix = "sa" // starts after
	PrefixEb Prefix = "eb" // ends before
	PrefixAp Prefix = "ap" // approximately
)

// ---------------------------------------------------------------------------
// Token
// ---------------------------------------------------------------------------

// Token is a coded value, optionally qualified by its code system.
type Token struct {
	System string
	Code   string
	Not    bool
}

func (t Token) Kind() ValueKind { return KindToken }
func (t Token) IsEmpty() bool   { return t.System == "" && t.Code == "" }

func (t Token) String() string {
	s := t.Code
	if t.System != "" {
		s = t.System + "|" + t.Code
	}
	if t.Not {
		return "!" + s
	}
	return s
}

// TokenOr matches when any member matches.
type TokenOr []Token

func (o TokenOr) Kind() ValueKind { return KindTokenOr }

func (o TokenOr) IsEmpty() bool {
	for _, t := range o {
		if !t.IsEmpty() {
			return false
		}
	}
	return true
}

func (o TokenOr) String() string {
	parts := make([]string, len(o))
	for i, t := range o {
		parts[i] = t.String()
	}
	return "(" + strings.Join(parts, ",") + ")"
}

func (o TokenOr) compact() Value {
	out := make(TokenOr, 0, len(o))
	for _, t := range o {
		if !t.IsEmpty() {
			out = append(out, t)
		}
	}
	return out
}

// TokenAnd matches when every OR group matches.
type TokenAnd []TokenOr

func (a TokenAnd) Kind() ValueKind { return KindTokenAnd }

func (a TokenAnd) IsEmpty() bool {
	for _, o := range a {
		if !o.IsEmpty() {
			return false
		}
	}
	return true
}

func (a TokenAnd) String() string {
	parts := make([]string, len(a))
	for i, o := range a {
		parts[i] = o.String()
	}
	return strings.Join(parts, "&")
}

func (a TokenAnd) compact() Value {
	out := make(TokenAnd, 0, len(a))
	for _, o := range a {
		if !o.IsEmpty() {
			out = append(out, o.compact().(TokenOr))
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Reference
// ---------------------------------------------------------------------------

// Reference points at another resource by id, or, when Chain is set, at any
// resource of ResourceType whose Chain property matches ChainValue.
type Reference struct {
	ResourceType string
	ID           string
	Chain        string
	ChainValue   Value
}

func (r Reference) Kind() ValueKind { return KindReference }

func (r Reference) IsEmpty() bool {
	if r.Chain != "" {
		return r.ChainValue == nil || r.ChainValue.IsEmpty()
	}
	return r.ID == ""
}

// IsChained reports whether the reference filters on a property of the target.
func (r Reference) IsChained() bool { return r.Chain != "" }

func (r Reference) String() string {
	if r.IsChained() {
		cv := ""
		if r.ChainValue != nil {
			cv = r.ChainValue.String()
		}
		return fmt.Sprintf("%s.%s=%s", r.ResourceType, r.Chain, cv)
	}
	if r.ResourceType != "" {
		return r.ResourceType + "/" + r.ID
	}
	return r.ID
}

func (r Reference) compact() Value {
	if r.ChainValue != nil {
		r.ChainValue = compactValue(r.ChainValue)
	}
	return r
}

// ReferenceOr matches when any member matches.
type ReferenceOr []Reference

func (o ReferenceOr) Kind() ValueKind { return KindReferenceOr }

func (o ReferenceOr) IsEmpty() bool {
	for _, r := range o {
		if !r.IsEmpty() {
			return false
		}
	}
	return true
}

func (o ReferenceOr) String() string {
	parts := make([]string, len(o))
	for i, r := range o {
		parts[i] = r.String()
	}
	return "(" + strings.Join(parts, ",") + ")"
}

func (o ReferenceOr) compact() Value {
	out := make(ReferenceOr, 0, len(o))
	for _, r := range o {
		if !r.IsEmpty() {
			out = append(out, r.compact().(Reference))
		}
	}
	return out
}

// ReferenceAnd matches when every OR group matches.
type ReferenceAnd []ReferenceOr

func (a ReferenceAnd) Kind() ValueKind { return KindReferenceAnd }

func (a ReferenceAnd) IsEmpty() bool {
	for _, o := range a {
		if !o.IsEmpty() {
			return false
		}
	}
	return true
}

func (a ReferenceAnd) String() string {
	parts := make([]string, len(a))
	for i, o := range a {
		parts[i] = o.String()
	}
	return strings.Join(parts, "&")
}

func (a ReferenceAnd) compact() Value {
	out := make(ReferenceAnd, 0, len(a))
	for _, o := range a {
		if !o.IsEmpty() {
			out = append(out, o.compact().(ReferenceOr))
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Date range
// ---------------------------------------------------------------------------

// DatePrecision is the granularity a date was written with.
type DatePrecision int

const (
	PrecisionYear DatePrecision = iota
	PrecisionMonth
	PrecisionDay
	PrecisionSecond
)

// DateBound is one end of a date range.
type DateBound struct {
	Prefix    Prefix
	Time      time.Time
	Precision DatePrecision
}

// End returns the exclusive end of the period the bound denotes.
func (b DateBound) End() time.Time {
	switch b.Precision {
	case PrecisionYear:
		return b.Time.AddDate(1, 0, 0)
	case PrecisionMonth:
		return b.Time.AddDate(0, 1, 0)
	case PrecisionDay:
		return b.Time.AddDate(0, 0, 1)
	default:
		return b.Time.Add(time.Second)
	}
}

func (b DateBound) String() string {
	return string(b.Prefix) + b.Time.UTC().Format(time.RFC3339) + "/" + strconv.Itoa(int(b.Precision))
}

// DateRange constrains a date to lie between Lower and Upper. Either bound may
// be nil. Bounds are handed to the DAO exactly as given.
type DateRange struct {
	Lower *DateBound
	Upper *DateBound
}

func (d DateRange) Kind() ValueKind { return KindDateRange }
func (d DateRange) IsEmpty() bool   { return d.Lower == nil && d.Upper == nil }

func (d DateRange) String() string {
	lo, hi := "*", "*"
	if d.Lower != nil {
		lo = d.Lower.String()
	}
	if d.Upper != nil {
		hi = d.Upper.String()
	}
	return "[" + lo + ";" + hi + "]"
}

// ---------------------------------------------------------------------------
// Quantity
// ---------------------------------------------------------------------------

// Quantity is a numeric comparison, optionally with a unit. Number parameters
// use it with an empty System and Unit.
type Quantity struct {
	Prefix Prefix
	Value  float64
	System string
	Unit   string
}

func (q Quantity) Kind() ValueKind { return KindQuantity }
func (q Quantity) IsEmpty() bool   { return false }

func (q Quantity) String() string {
	s := string(q.Prefix) + strconv.FormatFloat(q.Value, 'g', -1, 64)
	if q.System != "" || q.Unit != "" {
		s += "|" + q.System + "|" + q.Unit
	}
	return s
}

// ---------------------------------------------------------------------------
// String
// ---------------------------------------------------------------------------

// StringMatch selects how a string criterion is compared.
type StringMatch int

const (
	MatchStartsWith StringMatch = iota
	MatchExact
	MatchContains
	MatchFuzzy
)

// String is a textual criterion.
type String struct {
	Value string
	Match StringMatch
}

func (s String) Kind() ValueKind { return KindString }
func (s String) IsEmpty() bool   { return strings.TrimSpace(s.Value) == "" }
func (s String) String() string  { return strconv.Itoa(int(s.Match)) + ":" + s.Value }

// ---------------------------------------------------------------------------
// Has (reverse chain)
// ---------------------------------------------------------------------------

// Has matches resources that are referenced, through ReferenceParam, by at
// least one ResourceType resource whose Property satisfies Value.
type Has struct {
	ResourceType   string
	ReferenceParam string
	Property       string
	Value          Value
}

func (h Has) Kind() ValueKind { return KindHas }
func (h Has) IsEmpty() bool   { return h.Value == nil || h.Value.IsEmpty() }

func (h Has) String() string {
	v := ""
	if h.Value != nil {
		v = h.Value.String()
	}
	return fmt.Sprintf("_has:%s:%s:%s=%s", h.ResourceType, h.ReferenceParam, h.Property, v)
}

func (h Has) compact() Value {
	if h.Value != nil {
		h.Value = compactValue(h.Value)
	}
	return h
}

// ---------------------------------------------------------------------------
// Sort
// ---------------------------------------------------------------------------

// SortHandler is the handler name a Sort value is registered under.
const SortHandler = "_sort"

// SortField is a single sort directive.
type SortField struct {
	Name       string
	Descending bool
}

// Sort orders the result set. Fields are applied left to right.
type Sort struct {
	Fields []SortField
}

func (s Sort) Kind() ValueKind { return KindSort }
func (s Sort) IsEmpty() bool   { return len(s.Fields) == 0 }

func (s Sort) String() string {
	parts := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		if f.Descending {
			parts[i] = "-" + f.Name
		} else {
			parts[i] = f.Name
		}
	}
	return strings.Join(parts, ",")
}
