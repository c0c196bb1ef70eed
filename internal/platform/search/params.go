package search

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// Param is one criterion: a value registered under a handler name and an
// optional property (used by handlers that cover several columns).
type Param struct {
	Handler  string
	Property string
	Value    Value
}

// ParameterMap is an immutable, ordered multimap of search criteria. The same
// handler may appear several times; insertion order is preserved and is part
// of the map's identity. A nil or empty map matches everything.
type ParameterMap struct {
	params []Param
}

// MapBuilder accumulates criteria and yields an immutable ParameterMap.
type MapBuilder struct {
	params []Param
}

// NewMapBuilder returns an empty builder.
func NewMapBuilder() *MapBuilder {
	return &MapBuilder{}
}

// AddParameter appends a criterion under handler.
func (b *MapBuilder) AddParameter(handler string, value Value) *MapBuilder {
	b.params = append(b.params, Param{Handler: handler, Value: value})
	return b
}

// AddPropertyParameter appends a criterion under handler for a specific property.
func (b *MapBuilder) AddPropertyParameter(handler, property string, value Value) *MapBuilder {
	b.params = append(b.params, Param{Handler: handler, Property: property, Value: value})
	return b
}

// Build returns a ParameterMap holding a copy of the accumulated criteria.
// The builder may keep being used afterwards without affecting the result.
func (b *MapBuilder) Build() *ParameterMap {
	out := make([]Param, len(b.params))
	copy(out, b.params)
	return &ParameterMap{params: out}
}

// Parameters returns every criterion registered under handler, in insertion order.
func (m *ParameterMap) Parameters(handler string) []Param {
	if m == nil {
		return nil
	}
	var out []Param
	for _, p := range m.params {
		if p.Handler == handler {
			out = append(out, p)
		}
	}
	return out
}

// All returns a copy of every criterion in insertion order.
func (m *ParameterMap) All() []Param {
	if m == nil {
		return nil
	}
	out := make([]Param, len(m.params))
	copy(out, m.params)
	return out
}

// Handlers returns the distinct handler names in first-seen order.
func (m *ParameterMap) Handlers() []string {
	if m == nil {
		return nil
	}
	seen := make(map[string]bool, len(m.params))
	var out []string
	for _, p := range m.params {
		if !seen[p.Handler] {
			seen[p.Handler] = true
			out = append(out, p.Handler)
		}
	}
	return out
}

// Len returns the number of criteria.
func (m *ParameterMap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.params)
}

// IsEmpty reports whether the map holds no criteria.
func (m *ParameterMap) IsEmpty() bool { return m.Len() == 0 }

// SortSpec returns the sort directive carried under SortHandler, if any. When
// several are present the last one wins.
func (m *ParameterMap) SortSpec() (Sort, bool) {
	params := m.Parameters(SortHandler)
	for i := len(params) - 1; i >= 0; i-- {
		if s, ok := params[i].Value.(Sort); ok && !s.IsEmpty() {
			return s, true
		}
	}
	return Sort{}, false
}

// Prune returns a copy without empty criteria. List values are compacted so
// that only their non-empty members remain.
func (m *ParameterMap) Prune() *ParameterMap {
	if m == nil {
		return &ParameterMap{}
	}
	out := make([]Param, 0, len(m.params))
	for _, p := range m.params {
		if p.Value == nil || p.Value.IsEmpty() {
			continue
		}
		p.Value = compactValue(p.Value)
		out = append(out, p)
	}
	return &ParameterMap{params: out}
}

// canonical renders the map as a deterministic string. Every field is quoted
// and every value is tagged with its kind, so distinct maps never render alike.
func (m *ParameterMap) canonical() string {
	if m == nil {
		return ""
	}
	var sb strings.Builder
	for _, p := range m.params {
		sb.WriteString(strconv.Quote(p.Handler))
		sb.WriteByte(' ')
		sb.WriteString(strconv.Quote(p.Property))
		sb.WriteByte(' ')
		writeCanonical(&sb, p.Value)
		sb.WriteByte(';')
	}
	return sb.String()
}

func writeCanonical(sb *strings.Builder, v Value) {
	if v == nil {
		sb.WriteString("nil")
		return
	}
	sb.WriteString(v.Kind().String())
	sb.WriteByte('(')
	switch val := v.(type) {
	case Token:
		quoted(sb, val.System, val.Code, strconv.FormatBool(val.Not))
	case TokenOr:
		for _, t := range val {
			writeCanonical(sb, t)
		}
	case TokenAnd:
		for _, o := range val {
			writeCanonical(sb, o)
		}
	case Reference:
		quoted(sb, val.ResourceType, val.ID, val.Chain)
		if val.Chain != "" {
			writeCanonical(sb, val.ChainValue)
		}
	case ReferenceOr:
		for _, r := range val {
			writeCanonical(sb, r)
		}
	case ReferenceAnd:
		for _, o := range val {
			writeCanonical(sb, o)
		}
	case DateRange:
		writeBound(sb, val.Lower)
		writeBound(sb, val.Upper)
	case Quantity:
		quoted(sb, string(val.Prefix), strconv.FormatFloat(val.Value, 'g', -1, 64), val.System, val.Unit)
	case String:
		quoted(sb, strconv.Itoa(int(val.Match)), val.Value)
	case Has:
		quoted(sb, val.ResourceType, val.ReferenceParam, val.Property)
		writeCanonical(sb, val.Value)
	case Sort:
		for _, f := range val.Fields {
			quoted(sb, f.Name, strconv.FormatBool(f.Descending))
		}
	default:
		quoted(sb, v.String())
	}
	sb.WriteByte(')')
}

func writeBound(sb *strings.Builder, b *DateBound) {
	if b == nil {
		sb.WriteString("nil ")
		return
	}
	quoted(sb, string(b.Prefix), b.Time.UTC().Format(time.RFC3339Nano), strconv.Itoa(int(b.Precision)))
}

func quoted(sb *strings.Builder, fields ...string) {
	for _, f := range fields {
		sb.WriteString(strconv.Quote(f))
		sb.WriteByte(' ')
	}
}

// Key returns a structural identity for the map: two maps holding the same
// handler/property/value sequence produce the same key.
func (m *ParameterMap) Key() string {
	sum := sha256.Sum256([]byte(m.canonical()))
	return hex.EncodeToString(sum[:])
}

// Equal reports structural equality.
func (m *ParameterMap) Equal(other *ParameterMap) bool {
	return m.canonical() == other.canonical()
}
