package provider

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/hurou927/dbmeta/internal/dialect"
	"github.com/hurou927/dbmeta/internal/schema"
)

// SQLite introspects SQLite files through sqlite_master and the table
// pragmas.
type SQLite struct {
	db *sql.DB
}

// NewSQLite wraps an open database handle.
func NewSQLite(db *sql.DB) *SQLite {
	return &SQLite{db: db}
}

func (p *SQLite) Product(ctx context.Context) (ProductInfo, error) {
	info := ProductInfo{
		Name:            "SQLite",
		IdentifierQuote: `"`,
		SearchEscape:    `\`,
		StoresCase:      "mixed",
		TableTypes:      []string{"TABLE", "VIEW"},
	}
	var v string
	if err := p.db.QueryRowContext(ctx, `SELECT sqlite_version()`).Scan(&v); err != nil {
		return info, fmt.Errorf("querying version: %w", err)
	}
	info.Version = v
	ver := dialect.ParseVersion(v)
	info.Major, info.Minor = ver.Major, ver.Minor
	return info, nil
}

func (p *SQLite) Objects(ctx context.Context, _, _, namePattern string, types []string) ([]ObjectRow, error) {
	rows, err := queryText(ctx, p.db, `
		SELECT name, upper(type)
		FROM sqlite_master
		WHERE type IN ('table', 'view')
			AND name NOT LIKE 'sqlite\_%' ESCAPE '\'
			AND name LIKE ? ESCAPE '\'
		ORDER BY name`, likeOrAll(namePattern))
	if err != nil {
		return nil, fmt.Errorf("querying objects: %w", err)
	}
	var out []ObjectRow
	for _, r := range rows {
		o := ObjectRow{Name: col(r, 0), Type: col(r, 1)}
		if MatchType(types, o.Type) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (p *SQLite) Columns(ctx context.Context, table schema.QualifiedName) ([]ColumnRow, error) {
	rows, err := queryText(ctx, p.db, `
		SELECT cid, name, type, "notnull", dflt_value, hidden
		FROM pragma_table_xinfo(?)
		ORDER BY cid`, table.Name)
	if err != nil {
		return nil, fmt.Errorf("querying columns of %s: %w", table.Name, err)
	}
	out := make([]ColumnRow, 0, len(rows))
	for _, r := range rows {
		hidden := atoi(col(r, 5))
		if hidden == 1 {
			// Hidden columns of virtual tables.
			continue
		}
		name, size, digits := splitTypeName(col(r, 2))
		c := ColumnRow{
			Name:     col(r, 1),
			TypeName: name,
			TypeCode: schema.TypeFromName(name),
			Size:     size,
			Digits:   digits,
			Nullable: !truthy(col(r, 3)),
			Position: atoi(col(r, 0)) + 1,
			Default:  col(r, 4),
		}
		out = append(out, c)
	}
	return out, nil
}

func (p *SQLite) Indexes(ctx context.Context, table schema.QualifiedName) ([]IndexRow, error) {
	list, err := queryText(ctx, p.db, `SELECT name, "unique", origin FROM pragma_index_list(?) ORDER BY name`, table.Name)
	if err != nil {
		return nil, fmt.Errorf("querying indexes of %s: %w", table.Name, err)
	}
	var out []IndexRow
	for _, idx := range list {
		name := col(idx, 0)
		cols, err := queryText(ctx, p.db, `
			SELECT seqno, name, "desc"
			FROM pragma_index_xinfo(?)
			WHERE key = 1
			ORDER BY seqno`, name)
		if err != nil {
			return nil, fmt.Errorf("querying columns of index %s: %w", name, err)
		}
		for _, c := range cols {
			dir := "ASC"
			if truthy(col(c, 2)) {
				dir = "DESC"
			}
			out = append(out, IndexRow{
				Table:     table.Name,
				IndexName: name,
				NonUnique: !truthy(col(idx, 1)),
				Ordinal:   atoi(col(c, 0)) + 1,
				Column:    col(c, 1),
				Direction: dir,
			})
		}
	}
	return out, nil
}

func (p *SQLite) PrimaryKeys(ctx context.Context, table schema.QualifiedName) ([]PrimaryKeyRow, error) {
	rows, err := queryText(ctx, p.db, `SELECT name, pk FROM pragma_table_info(?) WHERE pk > 0 ORDER BY pk`, table.Name)
	if err != nil {
		return nil, fmt.Errorf("querying primary key of %s: %w", table.Name, err)
	}
	out := make([]PrimaryKeyRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, PrimaryKeyRow{Column: col(r, 0), Seq: atoi(col(r, 1))})
	}
	return out, nil
}

func (p *SQLite) ImportedKeys(ctx context.Context, table schema.QualifiedName) ([]ForeignKeyRow, error) {
	rows, err := queryText(ctx, p.db, `
		SELECT id, seq, "table", "from", "to", on_update, on_delete
		FROM pragma_foreign_key_list(?)
		ORDER BY id, seq`, table.Name)
	if err != nil {
		return nil, fmt.Errorf("querying foreign keys of %s: %w", table.Name, err)
	}

	out := make([]ForeignKeyRow, 0, len(rows))
	for _, r := range rows {
		fk := ForeignKeyRow{
			PKTable:    col(r, 2),
			PKColumn:   col(r, 4),
			FKTable:    table.Name,
			FKColumn:   col(r, 3),
			Seq:        atoi(col(r, 1)) + 1,
			UpdateRule: col(r, 5),
			DeleteRule: col(r, 6),
		}
		// Unnamed constraints get a stable synthetic name per table.
		fk.Name = fmt.Sprintf("fk_%s_%s", table.Name, col(r, 0))
		if fk.PKColumn == "" {
			pk, err := p.PrimaryKeys(ctx, schema.QualifiedName{Name: fk.PKTable})
			if err != nil {
				return nil, err
			}
			if i := fk.Seq - 1; i < len(pk) {
				fk.PKColumn = pk[i].Column
			}
		}
		out = append(out, fk)
	}
	return out, nil
}

func (p *SQLite) ExportedKeys(ctx context.Context, table schema.QualifiedName) ([]ForeignKeyRow, error) {
	tables, err := p.Objects(ctx, "", "", "", []string{"TABLE"})
	if err != nil {
		return nil, err
	}
	var out []ForeignKeyRow
	for _, t := range tables {
		fks, err := p.ImportedKeys(ctx, schema.QualifiedName{Name: t.Name})
		if err != nil {
			return nil, err
		}
		for _, fk := range fks {
			if strings.EqualFold(fk.PKTable, table.Name) {
				out = append(out, fk)
			}
		}
	}
	return out, nil
}

func (p *SQLite) Grants(context.Context, schema.QualifiedName) ([]GrantRow, error) {
	return nil, fmt.Errorf("reading grants: %w", ErrUnsupported)
}

func (p *SQLite) Constraints(context.Context, schema.QualifiedName) ([]ConstraintRow, error) {
	return nil, fmt.Errorf("reading constraints: %w", ErrUnsupported)
}

func (p *SQLite) Schemas(context.Context) ([]string, error) {
	return nil, fmt.Errorf("listing schemas: %w", ErrUnsupported)
}

func (p *SQLite) Catalogs(context.Context) ([]string, error) {
	return nil, fmt.Errorf("listing catalogs: %w", ErrUnsupported)
}

func (p *SQLite) Query(ctx context.Context, query string, args ...any) ([][]string, error) {
	return queryText(ctx, p.db, query, args...)
}

func (p *SQLite) Close() error {
	return p.db.Close()
}

// splitTypeName splits "DECIMAL(10,2)" into ("DECIMAL", 10, 2).
func splitTypeName(t string) (string, int, int) {
	t = strings.TrimSpace(t)
	open := strings.IndexByte(t, '(')
	if open < 0 || !strings.HasSuffix(t, ")") {
		return t, 0, 0
	}
	name := strings.TrimSpace(t[:open])
	args := strings.Split(t[open+1:len(t)-1], ",")
	size := atoi(args[0])
	digits := 0
	if len(args) > 1 {
		digits = atoi(args[1])
	}
	return name, size, digits
}
