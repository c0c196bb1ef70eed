package fhir

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/fhirsearch/internal/platform/db"
	"github.com/ehr/fhirsearch/internal/platform/search"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// RowScanner scans one row of a table's SelectCols.
type RowScanner[D search.Entity] func(row pgx.Row) (D, error)

// PGTable is a search.DAO over one Postgres table. Queries run on the
// tenant-scoped connection of the request when there is one.
type PGTable[D search.Entity] struct {
	pool   *pgxpool.Pool
	schema *Schema
	def    *TableDef
	scan   RowScanner[D]
}

// NewPGTable creates a DAO for def, which must be part of schema.
func NewPGTable[D search.Entity](pool *pgxpool.Pool, schema *Schema, def *TableDef, scan RowScanner[D]) *PGTable[D] {
	return &PGTable[D]{pool: pool, schema: schema, def: def, scan: scan}
}

func (t *PGTable[D]) conn(ctx context.Context) queryable {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return t.pool
}

func (t *PGTable[D]) ResourceType() string { return t.def.ResourceType }

func (t *PGTable[D]) PreferredPageSize() int { return t.def.PageSize }

func (t *PGTable[D]) builder(params *search.ParameterMap) (*SQLBuilder, error) {
	b, err := NewSQLBuilder(t.schema, t.def.ResourceType)
	if err != nil {
		return nil, err
	}
	if err := b.Apply(params); err != nil {
		return nil, err
	}
	return b, nil
}

func (t *PGTable[D]) SearchIdentifiers(ctx context.Context, params *search.ParameterMap) ([]string, error) {
	b, err := t.builder(params)
	if err != nil {
		return nil, err
	}
	rows, err := t.conn(ctx).Query(ctx, b.IDsSQL(), b.Args()...)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", t.def.Table, err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", t.def.Table, err)
	}
	return ids, nil
}

func (t *PGTable[D]) ResultCount(ctx context.Context, params *search.ParameterMap) (int, error) {
	b, err := t.builder(params)
	if err != nil {
		return 0, err
	}
	var n int
	if err := t.conn(ctx).QueryRow(ctx, b.CountSQL(), b.Args()...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", t.def.Table, err)
	}
	return n, nil
}

func (t *PGTable[D]) GetByIdentifiers(ctx context.Context, ids []string) ([]D, error) {
	keys := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if u, err := uuid.Parse(id); err == nil {
			keys = append(keys, u)
		}
	}
	if len(keys) == 0 {
		return nil, nil
	}
	q := fmt.Sprintf("SELECT %s FROM %s WHERE %s", t.def.SelectCols, t.def.Table, withVisibility(t.def, "id = ANY($1)"))
	rows, err := t.conn(ctx).Query(ctx, q, keys)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", t.def.Table, err)
	}
	defer rows.Close()
	var items []D
	for rows.Next() {
		item, err := t.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", t.def.Table, err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// GetByFHIRID reads one visible row by its FHIR id. It returns pgx.ErrNoRows
// when there is none.
func (t *PGTable[D]) GetByFHIRID(ctx context.Context, fhirID string) (D, error) {
	q := fmt.Sprintf("SELECT %s FROM %s WHERE %s", t.def.SelectCols, t.def.Table, withVisibility(t.def, "fhir_id = $1"))
	return t.scan(t.conn(ctx).QueryRow(ctx, q, fhirID))
}

var _ search.DAO[search.Entity] = (*PGTable[search.Entity])(nil)
