package provider

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/hurou927/dbmeta/internal/dialect"
	"github.com/hurou927/dbmeta/internal/schema"
)

// SQL introspects any database/sql driver through a set of catalog
// statements.
type SQL struct {
	db *sql.DB
	q  Queries

	mu      sync.Mutex
	current string
}

// NewSQL wraps db with the statements registered for the dialect.
func NewSQL(db *sql.DB, id dialect.ID) *SQL {
	return NewSQLWithQueries(db, QueriesFor(id))
}

// NewSQLWithQueries wraps db with explicit statements.
func NewSQLWithQueries(db *sql.DB, q Queries) *SQL {
	return &SQL{db: db, q: q}
}

// DB returns the underlying handle.
func (p *SQL) DB() *sql.DB { return p.db }

func (p *SQL) Product(ctx context.Context) (ProductInfo, error) {
	info := ProductInfo{
		Name:            p.q.Product,
		IdentifierQuote: p.q.Quote,
		SearchEscape:    p.q.SearchEscape,
		StoresCase:      p.q.StoresCase,
		SchemaTerm:      "schema",
		CatalogTerm:     "catalog",
		TableTypes:      []string{"TABLE", "VIEW"},
	}
	if p.q.CatalogIsSchema {
		info.CatalogTerm = "database"
	}

	if p.q.Version != "" {
		v, err := p.scalar(ctx, p.q.Version)
		if err != nil {
			return info, fmt.Errorf("querying version: %w", err)
		}
		info.Version = v
		ver := dialect.ParseVersion(v)
		info.Major, info.Minor = ver.Major, ver.Minor
		if strings.Contains(strings.ToLower(v), "mariadb") {
			info.Name = "MariaDB"
		}
	}
	if p.q.CurrentCatalog != "" {
		info.CurrentCatalog, _ = p.scalar(ctx, p.q.CurrentCatalog)
	}
	if p.q.CurrentSchema != "" && !p.q.CatalogIsSchema {
		info.CurrentSchema, _ = p.scalar(ctx, p.q.CurrentSchema)
	}
	return info, nil
}

func (p *SQL) Objects(ctx context.Context, catalog, schemaPattern, namePattern string, types []string) ([]ObjectRow, error) {
	if p.q.Objects == "" {
		return nil, fmt.Errorf("listing objects: %w", ErrUnsupported)
	}
	ns := schemaPattern
	if p.q.CatalogIsSchema && catalog != "" && ns == "" {
		ns = catalog
	}
	rows, err := p.query(ctx, p.q.Objects, likeOrAll(ns), likeOrAll(namePattern))
	if err != nil {
		return nil, fmt.Errorf("querying objects: %w", err)
	}

	var out []ObjectRow
	for _, r := range rows {
		o := ObjectRow{
			Catalog: col(r, 0),
			Schema:  col(r, 1),
			Name:    col(r, 2),
			Type:    normalizeObjectType(col(r, 3)),
			Remarks: col(r, 4),
		}
		if p.q.CatalogIsSchema {
			o.Catalog, o.Schema = o.Schema, ""
		}
		if !MatchType(types, o.Type) {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

func (p *SQL) Columns(ctx context.Context, table schema.QualifiedName) ([]ColumnRow, error) {
	rows, err := p.tableQuery(ctx, "columns", p.q.Columns, table)
	if err != nil {
		return nil, err
	}
	out := make([]ColumnRow, 0, len(rows))
	for _, r := range rows {
		c := ColumnRow{
			Name:     col(r, 0),
			TypeName: col(r, 1),
			Size:     atoi(col(r, 2)),
			Digits:   atoi(col(r, 3)),
			Nullable: truthy(col(r, 4)),
			Position: atoi(col(r, 5)),
			Default:  col(r, 6),
			Remarks:  col(r, 7),
			Computed: col(r, 8),
		}
		c.TypeCode = schema.TypeFromName(c.TypeName)
		out = append(out, c)
	}
	return out, nil
}

func (p *SQL) Indexes(ctx context.Context, table schema.QualifiedName) ([]IndexRow, error) {
	rows, err := p.tableQuery(ctx, "indexes", p.q.Indexes, table)
	if err != nil {
		return nil, err
	}
	out := make([]IndexRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, IndexRow{
			Catalog:   table.Catalog,
			Schema:    table.Schema,
			Table:     table.Name,
			IndexName: col(r, 0),
			NonUnique: truthy(col(r, 1)),
			Ordinal:   atoi(col(r, 2)),
			Column:    col(r, 3),
			Direction: normalizeDirection(col(r, 4)),
			Type:      col(r, 5),
		})
	}
	return out, nil
}

func (p *SQL) PrimaryKeys(ctx context.Context, table schema.QualifiedName) ([]PrimaryKeyRow, error) {
	rows, err := p.tableQuery(ctx, "primary key", p.q.PrimaryKeys, table)
	if err != nil {
		return nil, err
	}
	out := make([]PrimaryKeyRow, 0, len(rows))
	for i, r := range rows {
		seq := atoi(col(r, 2))
		if seq == 0 {
			seq = i + 1
		}
		out = append(out, PrimaryKeyRow{Name: col(r, 0), Column: col(r, 1), Seq: seq})
	}
	return out, nil
}

func (p *SQL) ImportedKeys(ctx context.Context, table schema.QualifiedName) ([]ForeignKeyRow, error) {
	return p.foreignKeys(ctx, "imported keys", p.q.ImportedKeys, table)
}

func (p *SQL) ExportedKeys(ctx context.Context, table schema.QualifiedName) ([]ForeignKeyRow, error) {
	return p.foreignKeys(ctx, "exported keys", p.q.ExportedKeys, table)
}

func (p *SQL) foreignKeys(ctx context.Context, what, query string, table schema.QualifiedName) ([]ForeignKeyRow, error) {
	rows, err := p.tableQuery(ctx, what, query, table)
	if err != nil {
		return nil, err
	}
	out := make([]ForeignKeyRow, 0, len(rows))
	for _, r := range rows {
		fk := ForeignKeyRow{
			Name:       col(r, 0),
			PKSchema:   col(r, 1),
			PKTable:    col(r, 2),
			PKColumn:   col(r, 3),
			FKSchema:   col(r, 4),
			FKTable:    col(r, 5),
			FKColumn:   col(r, 6),
			Seq:        atoi(col(r, 7)),
			UpdateRule: strings.ReplaceAll(col(r, 8), "_", " "),
			DeleteRule: strings.ReplaceAll(col(r, 9), "_", " "),
		}
		if p.q.CatalogIsSchema {
			fk.PKCatalog, fk.PKSchema = fk.PKSchema, ""
			fk.FKCatalog, fk.FKSchema = fk.FKSchema, ""
		}
		out = append(out, fk)
	}
	return out, nil
}

func (p *SQL) Grants(ctx context.Context, table schema.QualifiedName) ([]GrantRow, error) {
	rows, err := p.tableQuery(ctx, "grants", p.q.Grants, table)
	if err != nil {
		return nil, err
	}
	out := make([]GrantRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, GrantRow{
			Grantor:   col(r, 0),
			Grantee:   col(r, 1),
			Privilege: col(r, 2),
			Grantable: truthy(col(r, 3)),
		})
	}
	return out, nil
}

func (p *SQL) Constraints(ctx context.Context, table schema.QualifiedName) ([]ConstraintRow, error) {
	rows, err := p.tableQuery(ctx, "constraints", p.q.Constraints, table)
	if err != nil {
		return nil, err
	}
	out := make([]ConstraintRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, ConstraintRow{Name: col(r, 0), Type: "CHECK", Expression: col(r, 1)})
	}
	return out, nil
}

func (p *SQL) Schemas(ctx context.Context) ([]string, error) {
	return p.names(ctx, "schemas", p.q.Schemas)
}

func (p *SQL) Catalogs(ctx context.Context) ([]string, error) {
	return p.names(ctx, "catalogs", p.q.Catalogs)
}

func (p *SQL) names(ctx context.Context, what, query string) ([]string, error) {
	if query == "" {
		return nil, fmt.Errorf("listing %s: %w", what, ErrUnsupported)
	}
	rows, err := p.query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", what, err)
	}
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, col(r, 0))
	}
	return out, nil
}

func (p *SQL) Query(ctx context.Context, query string, args ...any) ([][]string, error) {
	return queryText(ctx, p.db, query, args...)
}

func (p *SQL) Close() error {
	return p.db.Close()
}

// tableQuery runs a per-table statement bound to (namespace, table).
func (p *SQL) tableQuery(ctx context.Context, what, query string, table schema.QualifiedName) ([][]string, error) {
	if query == "" {
		return nil, fmt.Errorf("reading %s: %w", what, ErrUnsupported)
	}
	ns, err := p.namespace(ctx, table)
	if err != nil {
		return nil, err
	}
	rows, err := p.query(ctx, query, ns, table.Name)
	if err != nil {
		return nil, fmt.Errorf("querying %s of %s: %w", what, table.Expression(), err)
	}
	return rows, nil
}

// namespace picks the schema argument for a table, falling back to the
// session's current schema.
func (p *SQL) namespace(ctx context.Context, table schema.QualifiedName) (string, error) {
	ns := table.Schema
	if p.q.CatalogIsSchema && table.Catalog != "" {
		ns = table.Catalog
	}
	if ns != "" {
		return ns, nil
	}
	if p.q.DefaultSchema != "" {
		return p.q.DefaultSchema, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current != "" {
		return p.current, nil
	}
	if p.q.CurrentSchema == "" {
		return "", nil
	}
	cur, err := p.scalar(ctx, p.q.CurrentSchema)
	if err != nil {
		return "", fmt.Errorf("querying current schema: %w", err)
	}
	p.current = cur
	return cur, nil
}

func (p *SQL) query(ctx context.Context, query string, args ...any) ([][]string, error) {
	args = cycleArgs(countPlaceholders(query), args)
	return queryText(ctx, p.db, Rebind(p.q.Placeholder, query), args...)
}

func (p *SQL) scalar(ctx context.Context, query string) (string, error) {
	rows, err := p.query(ctx, query)
	if err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return "", nil
	}
	return col(rows[0], 0), nil
}

// queryText runs query and converts every value to text.
func queryText(ctx context.Context, db *sql.DB, query string, args ...any) ([][]string, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}

	var out [][]string
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make([]string, len(cols))
		for i, v := range values {
			row[i] = Text(v)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func col(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}

// atoi parses integers and integral floats; anything else is 0.
func atoi(s string) int {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int(f)
	}
	return 0
}

func truthy(s string) bool {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "YES", "Y", "1", "TRUE", "T":
		return true
	}
	return false
}

func normalizeObjectType(t string) string {
	switch u := strings.ToUpper(strings.TrimSpace(t)); u {
	case "BASE TABLE":
		return "TABLE"
	case "LOCAL TEMPORARY", "GLOBAL TEMPORARY":
		return "TEMPORARY TABLE"
	default:
		return u
	}
}

func normalizeDirection(d string) string {
	switch strings.ToUpper(strings.TrimSpace(d)) {
	case "A", "ASC", "TRUE":
		return "ASC"
	case "D", "DESC", "FALSE":
		return "DESC"
	}
	return ""
}
