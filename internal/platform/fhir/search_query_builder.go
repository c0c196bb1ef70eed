package fhir

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/fhirsearch/internal/platform/search"
)

// SQLBuilder compiles a ParameterMap into SQL against one table of a Schema.
// Placeholders are numbered in the order arguments are added, so nested
// subqueries for chains and _has share the argument list.
type SQLBuilder struct {
	schema  *Schema
	def     *TableDef
	where   []string
	args    []interface{}
	orderBy string
}

// NewSQLBuilder creates a builder for resourceType.
func NewSQLBuilder(schema *Schema, resourceType string) (*SQLBuilder, error) {
	def, ok := schema.Table(resourceType)
	if !ok {
		return nil, fmt.Errorf("no table for resource type %s", resourceType)
	}
	b := &SQLBuilder{schema: schema, def: def}
	if def.Visibility != "" {
		b.where = append(b.where, def.Visibility)
	}
	return b, nil
}

func invalid(param, format string, args ...interface{}) error {
	return &search.InvalidRequestError{Param: param, Reason: fmt.Sprintf(format, args...)}
}

// arg binds v and returns its placeholder.
func (b *SQLBuilder) arg(v interface{}) string {
	b.args = append(b.args, v)
	return fmt.Sprintf("$%d", len(b.args))
}

// Idx returns the next available parameter index.
func (b *SQLBuilder) Idx() int { return len(b.args) + 1 }

// Add appends a raw WHERE clause fragment (without leading "AND"). The clause
// must number its placeholders starting at Idx().
func (b *SQLBuilder) Add(clause string, args ...interface{}) {
	b.where = append(b.where, clause)
	b.args = append(b.args, args...)
}

// Apply compiles every criterion of params. Criteria are ANDed.
func (b *SQLBuilder) Apply(params *search.ParameterMap) error {
	for _, p := range params.All() {
		if p.Handler == search.SortHandler {
			continue
		}
		if p.Value == nil || p.Value.IsEmpty() {
			continue
		}
		if h, ok := p.Value.(search.Has); ok {
			clause, err := b.hasClause(b.def, p.Handler, h)
			if err != nil {
				return err
			}
			b.where = append(b.where, clause)
			continue
		}
		cfg, ok := b.def.Param(p.Handler)
		if !ok {
			return invalid(p.Handler, "not supported for %s", b.def.ResourceType)
		}
		clause, err := b.valueClause(cfg, p.Property, p.Value)
		if err != nil {
			return err
		}
		b.where = append(b.where, clause)
	}
	if s, ok := params.SortSpec(); ok {
		return b.applySort(s)
	}
	return nil
}

func (b *SQLBuilder) valueClause(cfg SearchParamConfig, property string, v search.Value) (string, error) {
	switch val := v.(type) {
	case search.Token:
		return b.tokenClause(cfg, val), nil
	case search.TokenOr:
		parts := make([]string, len(val))
		for i, t := range val {
			parts[i] = b.tokenClause(cfg, t)
		}
		return joinOr(parts), nil
	case search.TokenAnd:
		parts := make([]string, len(val))
		for i, or := range val {
			c, err := b.valueClause(cfg, property, or)
			if err != nil {
				return "", err
			}
			parts[i] = c
		}
		return joinAnd(parts), nil
	case search.Reference:
		return b.referenceClause(cfg, val)
	case search.ReferenceOr:
		return b.referenceOrClause(cfg, val)
	case search.ReferenceAnd:
		parts := make([]string, len(val))
		for i, or := range val {
			c, err := b.referenceOrClause(cfg, or)
			if err != nil {
				return "", err
			}
			parts[i] = c
		}
		return joinAnd(parts), nil
	case search.DateRange:
		if cfg.Type != search.ParamDate {
			return "", invalid(cfg.Name, "date value not allowed")
		}
		return b.dateClause(cfg.Column, val), nil
	case search.Quantity:
		if cfg.Type != search.ParamNumber && cfg.Type != search.ParamQuantity {
			return "", invalid(cfg.Name, "numeric value not allowed")
		}
		return b.quantityClause(cfg, val), nil
	case search.String:
		if cfg.Type != search.ParamString {
			return "", invalid(cfg.Name, "string value not allowed")
		}
		return b.stringClause(cfg, property, val)
	}
	return "", invalid(cfg.Name, "%s value not supported", v.Kind())
}

// tokenClause handles tokens in the format "system|code", "|code", "system|", or just "code".
func (b *SQLBuilder) tokenClause(cfg SearchParamConfig, t search.Token) string {
	var parts []string
	if t.System != "" && cfg.SysColumn != "" {
		parts = append(parts, fmt.Sprintf("%s = %s", cfg.SysColumn, b.arg(t.System)))
	}
	if t.Code != "" {
		parts = append(parts, fmt.Sprintf("%s = %s", cfg.Column, b.arg(t.Code)))
	}
	clause := "TRUE"
	if len(parts) > 0 {
		clause = joinAnd(parts)
	}
	if t.Not {
		return fmt.Sprintf("NOT COALESCE(%s, FALSE)", clause)
	}
	return clause
}

func (b *SQLBuilder) referenceOrClause(cfg SearchParamConfig, refs search.ReferenceOr) (string, error) {
	var ids []uuid.UUID
	var parts []string
	for _, r := range refs {
		if !r.IsChained() {
			if id, err := uuid.Parse(r.ID); err == nil {
				ids = append(ids, id)
				continue
			}
		}
		c, err := b.referenceClause(cfg, r)
		if err != nil {
			return "", err
		}
		parts = append(parts, c)
	}
	switch len(ids) {
	case 0:
	case 1:
		parts = append(parts, fmt.Sprintf("%s = %s", cfg.Column, b.arg(ids[0])))
	default:
		parts = append(parts, fmt.Sprintf("%s = ANY(%s)", cfg.Column, b.arg(ids)))
	}
	return joinOr(parts), nil
}

// referenceClause matches a reference by uuid, by fhir_id through the target
// table, or through a chained criterion on the target.
func (b *SQLBuilder) referenceClause(cfg SearchParamConfig, r search.Reference) (string, error) {
	if cfg.Type != search.ParamReference {
		return "", invalid(cfg.Name, "reference value not allowed")
	}
	targets := cfg.Targets
	if r.ResourceType != "" {
		targets = []string{r.ResourceType}
	}

	if r.IsChained() {
		if len(targets) != 1 {
			return "", invalid(cfg.Name, "chain %q needs an explicit target type", r.Chain)
		}
		target, ok := b.schema.Table(targets[0])
		if !ok {
			return "", invalid(cfg.Name, "cannot chain into %s", targets[0])
		}
		chained, ok := target.Param(r.Chain)
		if !ok || chained.Type == search.ParamReference {
			return "", invalid(cfg.Name, "%s has no chainable property %q", target.ResourceType, r.Chain)
		}
		inner, err := b.valueClause(chained, "", r.ChainValue)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s IN (SELECT id FROM %s WHERE %s)", cfg.Column, target.Table, withVisibility(target, inner)), nil
	}

	if id, err := uuid.Parse(r.ID); err == nil {
		return fmt.Sprintf("%s = %s", cfg.Column, b.arg(id)), nil
	}

	// Not a uuid: resolve through the fhir_id of each candidate table.
	var subs []string
	ph := ""
	for _, t := range targets {
		target, ok := b.schema.Table(t)
		if !ok {
			continue
		}
		if ph == "" {
			ph = b.arg(r.ID)
		}
		subs = append(subs, fmt.Sprintf("SELECT id FROM %s WHERE fhir_id = %s", target.Table, ph))
	}
	if len(subs) == 0 {
		return "FALSE", nil
	}
	return fmt.Sprintf("%s IN (%s)", cfg.Column, strings.Join(subs, " UNION ALL ")), nil
}

// dateClause restricts column to each bound of the range. Bounds are compared
// against the period their precision denotes.
func (b *SQLBuilder) dateClause(column string, dr search.DateRange) string {
	var parts []string
	for _, bound := range []*search.DateBound{dr.Lower, dr.Upper} {
		if bound != nil {
			parts = append(parts, b.boundClause(column, *bound))
		}
	}
	return joinAnd(parts)
}

func (b *SQLBuilder) boundClause(column string, bound search.DateBound) string {
	start, end := bound.Time, bound.End()
	switch bound.Prefix {
	case search.PrefixGt, search.PrefixSa:
		return fmt.Sprintf("%s >= %s", column, b.arg(end))
	case search.PrefixGe:
		return fmt.Sprintf("%s >= %s", column, b.arg(start))
	case search.PrefixLt, search.PrefixEb:
		return fmt.Sprintf("%s < %s", column, b.arg(start))
	case search.PrefixLe:
		return fmt.Sprintf("%s < %s", column, b.arg(end))
	case search.PrefixNe:
		return fmt.Sprintf("(%s < %s OR %s >= %s)", column, b.arg(start), column, b.arg(end))
	case search.PrefixAp:
		day := 24 * time.Hour
		return fmt.Sprintf("(%s >= %s AND %s < %s)", column, b.arg(start.Add(-day)), column, b.arg(end.Add(day)))
	default:
		return fmt.Sprintf("(%s >= %s AND %s < %s)", column, b.arg(start), column, b.arg(end))
	}
}

func (b *SQLBuilder) quantityClause(cfg SearchParamConfig, q search.Quantity) string {
	col := cfg.Column
	var clause string
	switch q.Prefix {
	case search.PrefixGt, search.PrefixSa:
		clause = fmt.Sprintf("%s > %s", col, b.arg(q.Value))
	case search.PrefixLt, search.PrefixEb:
		clause = fmt.Sprintf("%s < %s", col, b.arg(q.Value))
	case search.PrefixGe:
		clause = fmt.Sprintf("%s >= %s", col, b.arg(q.Value))
	case search.PrefixLe:
		clause = fmt.Sprintf("%s <= %s", col, b.arg(q.Value))
	case search.PrefixNe:
		clause = fmt.Sprintf("%s <> %s", col, b.arg(q.Value))
	case search.PrefixAp:
		lo, hi := q.Value*0.9, q.Value*1.1
		if lo > hi {
			lo, hi = hi, lo
		}
		clause = fmt.Sprintf("%s BETWEEN %s AND %s", col, b.arg(lo), b.arg(hi))
	default:
		clause = fmt.Sprintf("%s = %s", col, b.arg(q.Value))
	}
	if q.Unit != "" && cfg.UnitColumn != "" {
		clause = joinAnd([]string{clause, fmt.Sprintf("%s = %s", cfg.UnitColumn, b.arg(q.Unit))})
	}
	return clause
}

func (b *SQLBuilder) stringClause(cfg SearchParamConfig, property string, s search.String) (string, error) {
	cols, ok := cfg.stringColumns(property)
	if !ok {
		return "", invalid(cfg.Name, "unknown property %q", property)
	}
	op, pattern := "ILIKE", ""
	switch s.Match {
	case search.MatchExact:
		op, pattern = "=", s.Value
	case search.MatchContains:
		pattern = "%" + escapeLike(s.Value) + "%"
	case search.MatchFuzzy:
		terms := strings.Fields(s.Value)
		for i, t := range terms {
			terms[i] = escapeLike(t)
		}
		pattern = "%" + strings.Join(terms, "%") + "%"
	default:
		pattern = escapeLike(s.Value) + "%"
	}
	ph := b.arg(pattern)
	parts := make([]string, len(cols))
	for i, col := range cols {
		parts[i] = fmt.Sprintf("%s %s %s", col, op, ph)
	}
	return joinOr(parts), nil
}

// hasClause matches rows referenced by at least one row of the _has source
// whose property satisfies the value.
func (b *SQLBuilder) hasClause(def *TableDef, handler string, h search.Has) (string, error) {
	source, ok := b.schema.Table(h.ResourceType)
	if !ok {
		return "", invalid(handler, "unknown resource type %s", h.ResourceType)
	}
	ref, ok := source.Param(h.ReferenceParam)
	if !ok || ref.Type != search.ParamReference {
		return "", invalid(handler, "%s has no reference parameter %q", h.ResourceType, h.ReferenceParam)
	}
	prop, ok := source.Param(h.Property)
	if !ok {
		return "", invalid(handler, "%s has no searchable property %q", h.ResourceType, h.Property)
	}
	inner, err := b.valueClause(prop, "", h.Value)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s.id IN (SELECT %s FROM %s WHERE %s IS NOT NULL AND %s)",
		def.Table, ref.Column, source.Table, ref.Column, withVisibility(source, inner)), nil
}

// applySort processes a _sort value and sets ORDER BY using config column mappings.
func (b *SQLBuilder) applySort(s search.Sort) error {
	var parts []string
	for _, f := range s.Fields {
		var col string
		switch f.Name {
		case "_id":
			col = "fhir_id"
		case "_lastUpdated":
			col = b.def.LastUpdated
		default:
			cfg, ok := b.def.Param(f.Name)
			if !ok || cfg.Type == search.ParamReference {
				return invalid(search.SortHandler, "cannot sort %s by %q", b.def.ResourceType, f.Name)
			}
			col = cfg.Column
			if col == "" && len(cfg.Columns) > 0 {
				col = cfg.Columns[0]
			}
		}
		if col == "" {
			return invalid(search.SortHandler, "cannot sort %s by %q", b.def.ResourceType, f.Name)
		}
		if f.Descending {
			parts = append(parts, col+" DESC NULLS LAST")
		} else {
			parts = append(parts, col+" ASC")
		}
	}
	b.orderBy = strings.Join(parts, ", ")
	return nil
}

// OrderBy returns the ORDER BY list. The primary key is always the last key.
func (b *SQLBuilder) OrderBy() string {
	order := b.orderBy
	if order == "" {
		order = b.def.DefaultOrder
	}
	if order == "" {
		return "id ASC"
	}
	return order + ", id ASC"
}

func (b *SQLBuilder) whereSQL() string {
	if len(b.where) == 0 {
		return ""
	}
	return " AND " + strings.Join(b.where, " AND ")
}

// IDsSQL returns the query for the ordered id list.
func (b *SQLBuilder) IDsSQL() string {
	return fmt.Sprintf("SELECT id::text FROM %s WHERE 1=1%s ORDER BY %s", b.def.Table, b.whereSQL(), b.OrderBy())
}

// CountSQL returns the count query SQL.
func (b *SQLBuilder) CountSQL() string {
	return fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE 1=1%s", b.def.Table, b.whereSQL())
}

// Args returns the bound arguments.
func (b *SQLBuilder) Args() []interface{} {
	return b.args
}

func withVisibility(def *TableDef, clause string) string {
	if def.Visibility == "" {
		return clause
	}
	return def.Visibility + " AND " + clause
}

func joinAnd(parts []string) string {
	switch len(parts) {
	case 0:
		return "TRUE"
	case 1:
		return parts[0]
	}
	return "(" + strings.Join(parts, " AND ") + ")"
}

func joinOr(parts []string) string {
	switch len(parts) {
	case 0:
		return "FALSE"
	case 1:
		return parts[0]
	}
	return "(" + strings.Join(parts, " OR ") + ")"
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
