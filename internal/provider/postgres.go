package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hurou927/dbmeta/internal/schema"
)

// Postgres introspects PostgreSQL and compatible servers through the
// system catalogs.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wraps an open pool. Close closes the pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

var relkindTypes = map[string]string{
	"r": "TABLE",
	"p": "TABLE",
	"v": "VIEW",
	"m": "MATERIALIZED VIEW",
	"S": "SEQUENCE",
	"f": "FOREIGN TABLE",
	"i": "INDEX",
	"c": "TYPE",
}

func (p *Postgres) Product(ctx context.Context) (ProductInfo, error) {
	info := ProductInfo{
		Name:            "PostgreSQL",
		IdentifierQuote: `"`,
		SearchEscape:    `\`,
		StoresCase:      "lower",
		SchemaTerm:      "schema",
		CatalogTerm:     "database",
		TableTypes:      []string{"TABLE", "VIEW", "MATERIALIZED VIEW", "SEQUENCE", "FOREIGN TABLE", "TYPE"},
	}

	var num int
	err := p.pool.QueryRow(ctx, `
		SELECT current_setting('server_version'),
			current_setting('server_version_num')::int,
			current_database(),
			coalesce(current_schema(), '')
	`).Scan(&info.Version, &num, &info.CurrentCatalog, &info.CurrentSchema)
	if err != nil {
		return info, fmt.Errorf("querying server version: %w", err)
	}
	info.Major = num / 10000
	info.Minor = num % 10000 / 100

	rows, err := p.pool.Query(ctx, `SELECT upper(word) FROM pg_get_keywords() WHERE catcode IN ('R', 'T')`)
	if err != nil {
		return info, fmt.Errorf("querying keywords: %w", err)
	}
	words, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return info, fmt.Errorf("reading keywords: %w", err)
	}
	info.Keywords = words

	return info, nil
}

func (p *Postgres) Objects(ctx context.Context, catalog, schemaPattern, namePattern string, types []string) ([]ObjectRow, error) {
	query := `
		SELECT
			current_database(),
			n.nspname,
			c.relname,
			c.relkind::text,
			coalesce(obj_description(c.oid, 'pg_class'), '')
		FROM pg_class c
		JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE c.relkind IN ('r', 'p', 'v', 'm', 'S', 'f', 'c')
			AND NOT c.relispartition
			AND n.nspname LIKE $1
			AND c.relname LIKE $2
			AND n.nspname NOT IN ('pg_toast')
		ORDER BY n.nspname, c.relname
	`
	rows, err := p.pool.Query(ctx, query, likeOrAll(schemaPattern), likeOrAll(namePattern))
	if err != nil {
		return nil, fmt.Errorf("querying objects: %w", err)
	}
	defer rows.Close()

	var out []ObjectRow
	for rows.Next() {
		var r ObjectRow
		var kind string
		if err := rows.Scan(&r.Catalog, &r.Schema, &r.Name, &kind, &r.Remarks); err != nil {
			return nil, err
		}
		r.Type = relkindTypes[kind]
		if !MatchType(types, r.Type) {
			continue
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *Postgres) Columns(ctx context.Context, table schema.QualifiedName) ([]ColumnRow, error) {
	query := `
		SELECT
			a.attname,
			format_type(a.atttypid, NULL),
			format_type(a.atttypid, a.atttypmod),
			CASE
				WHEN a.atttypmod > 4 AND t.typname IN ('varchar', 'bpchar') THEN a.atttypmod - 4
				WHEN a.atttypmod > 4 AND t.typname = 'numeric' THEN ((a.atttypmod - 4) >> 16) & 65535
				ELSE 0
			END,
			CASE
				WHEN a.atttypmod > 4 AND t.typname = 'numeric' THEN (a.atttypmod - 4) & 65535
				ELSE 0
			END,
			NOT a.attnotnull,
			a.attnum,
			coalesce(pg_get_expr(d.adbin, d.adrelid), ''),
			coalesce(col_description(c.oid, a.attnum), ''),
			a.attgenerated::text
		FROM pg_class c
		JOIN pg_namespace n ON n.oid = c.relnamespace
		JOIN pg_attribute a ON a.attrelid = c.oid
		JOIN pg_type t ON t.oid = a.atttypid
		LEFT JOIN pg_attrdef d ON d.adrelid = c.oid AND d.adnum = a.attnum
		WHERE n.nspname = $1
			AND c.relname = $2
			AND a.attnum > 0
			AND NOT a.attisdropped
		ORDER BY a.attnum
	`
	rows, err := p.pool.Query(ctx, query, p.schemaOf(table), table.Name)
	if err != nil {
		return nil, fmt.Errorf("querying columns of %s: %w", table.Expression(), err)
	}
	defer rows.Close()

	var out []ColumnRow
	for rows.Next() {
		var r ColumnRow
		var baseType, generated string
		if err := rows.Scan(&r.Name, &baseType, &r.TypeName, &r.Size, &r.Digits,
			&r.Nullable, &r.Position, &r.Default, &r.Remarks, &generated); err != nil {
			return nil, err
		}
		r.TypeCode = schema.TypeFromName(baseType)
		// Size and scale are re-added by the display logic.
		if i := strings.IndexByte(r.TypeName, '('); i > 0 && r.Size > 0 {
			r.TypeName = r.TypeName[:i]
		}
		if generated == "s" {
			r.Computed = r.Default
			r.Default = ""
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *Postgres) Indexes(ctx context.Context, table schema.QualifiedName) ([]IndexRow, error) {
	query := `
		SELECT
			ic.relname,
			NOT ix.indisunique,
			k.ord,
			coalesce(a.attname, pg_get_indexdef(ix.indexrelid, k.ord::int, true)),
			CASE WHEN ix.indoption[k.ord - 1] & 1 = 1 THEN 'DESC' ELSE 'ASC' END,
			am.amname,
			coalesce(ts.spcname, ''),
			coalesce(con.conname, '')
		FROM pg_index ix
		JOIN pg_class tc ON tc.oid = ix.indrelid
		JOIN pg_namespace n ON n.oid = tc.relnamespace
		JOIN pg_class ic ON ic.oid = ix.indexrelid
		JOIN pg_am am ON am.oid = ic.relam
		LEFT JOIN pg_tablespace ts ON ts.oid = ic.reltablespace
		LEFT JOIN pg_constraint con ON con.conindid = ix.indexrelid AND con.contype = 'u'
		CROSS JOIN LATERAL unnest(ix.indkey) WITH ORDINALITY AS k(attnum, ord)
		LEFT JOIN pg_attribute a ON a.attrelid = tc.oid AND a.attnum = k.attnum AND k.attnum > 0
		WHERE n.nspname = $1
			AND tc.relname = $2
			AND k.ord <= ix.indnkeyatts
		ORDER BY ic.relname, k.ord
	`
	rows, err := p.pool.Query(ctx, query, p.schemaOf(table), table.Name)
	if err != nil {
		return nil, fmt.Errorf("querying indexes of %s: %w", table.Expression(), err)
	}
	defer rows.Close()

	var out []IndexRow
	for rows.Next() {
		r := IndexRow{Catalog: table.Catalog, Schema: table.Schema, Table: table.Name}
		var ord int64
		if err := rows.Scan(&r.IndexName, &r.NonUnique, &ord, &r.Column, &r.Direction,
			&r.Type, &r.Tablespace, &r.ConstraintName); err != nil {
			return nil, err
		}
		r.Ordinal = int(ord)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *Postgres) PrimaryKeys(ctx context.Context, table schema.QualifiedName) ([]PrimaryKeyRow, error) {
	query := `
		SELECT
			con.conname,
			a.attname,
			u.ord,
			coalesce(ic.relname, '')
		FROM pg_constraint con
		JOIN pg_class c ON c.oid = con.conrelid
		JOIN pg_namespace n ON n.oid = c.relnamespace
		LEFT JOIN pg_class ic ON ic.oid = con.conindid
		CROSS JOIN LATERAL unnest(con.conkey) WITH ORDINALITY AS u(attnum, ord)
		JOIN pg_attribute a ON a.attrelid = c.oid AND a.attnum = u.attnum
		WHERE con.contype = 'p'
			AND n.nspname = $1
			AND c.relname = $2
		ORDER BY u.ord
	`
	rows, err := p.pool.Query(ctx, query, p.schemaOf(table), table.Name)
	if err != nil {
		return nil, fmt.Errorf("querying primary key of %s: %w", table.Expression(), err)
	}
	defer rows.Close()

	var out []PrimaryKeyRow
	for rows.Next() {
		var r PrimaryKeyRow
		var ord int64
		if err := rows.Scan(&r.Name, &r.Column, &ord, &r.IndexName); err != nil {
			return nil, err
		}
		r.Seq = int(ord)
		out = append(out, r)
	}
	return out, rows.Err()
}

const pgForeignKeyQuery = `
	SELECT
		con.conname,
		pn.nspname,
		pc.relname,
		pa.attname,
		cn.nspname,
		cc.relname,
		ca.attname,
		u.ord,
		con.confupdtype::text,
		con.confdeltype::text,
		con.condeferrable,
		con.condeferred
	FROM pg_constraint con
	JOIN pg_class cc ON cc.oid = con.conrelid
	JOIN pg_namespace cn ON cn.oid = cc.relnamespace
	JOIN pg_class pc ON pc.oid = con.confrelid
	JOIN pg_namespace pn ON pn.oid = pc.relnamespace
	CROSS JOIN LATERAL unnest(con.conkey, con.confkey) WITH ORDINALITY AS u(child_attnum, parent_attnum, ord)
	JOIN pg_attribute ca ON ca.attrelid = cc.oid AND ca.attnum = u.child_attnum
	JOIN pg_attribute pa ON pa.attrelid = pc.oid AND pa.attnum = u.parent_attnum
	WHERE con.contype = 'f'
		AND %s
	ORDER BY con.conname, u.ord
`

func (p *Postgres) ImportedKeys(ctx context.Context, table schema.QualifiedName) ([]ForeignKeyRow, error) {
	return p.foreignKeys(ctx, table, "cn.nspname = $1 AND cc.relname = $2")
}

func (p *Postgres) ExportedKeys(ctx context.Context, table schema.QualifiedName) ([]ForeignKeyRow, error) {
	return p.foreignKeys(ctx, table, "pn.nspname = $1 AND pc.relname = $2")
}

func (p *Postgres) foreignKeys(ctx context.Context, table schema.QualifiedName, filter string) ([]ForeignKeyRow, error) {
	rows, err := p.pool.Query(ctx, fmt.Sprintf(pgForeignKeyQuery, filter), p.schemaOf(table), table.Name)
	if err != nil {
		return nil, fmt.Errorf("querying foreign keys of %s: %w", table.Expression(), err)
	}
	defer rows.Close()

	var out []ForeignKeyRow
	for rows.Next() {
		var r ForeignKeyRow
		var ord int64
		var upd, del string
		var deferrable, deferred bool
		if err := rows.Scan(&r.Name, &r.PKSchema, &r.PKTable, &r.PKColumn,
			&r.FKSchema, &r.FKTable, &r.FKColumn, &ord, &upd, &del, &deferrable, &deferred); err != nil {
			return nil, err
		}
		r.Seq = int(ord)
		r.UpdateRule = schema.ParseRule(upd).SQL()
		r.DeleteRule = schema.ParseRule(del).SQL()
		switch {
		case deferrable && deferred:
			r.Deferrability = schema.InitiallyDeferred
		case deferrable:
			r.Deferrability = schema.InitiallyImmediate
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *Postgres) Grants(ctx context.Context, table schema.QualifiedName) ([]GrantRow, error) {
	query := `
		SELECT grantor, grantee, privilege_type, is_grantable = 'YES'
		FROM information_schema.table_privileges
		WHERE table_schema = $1
			AND table_name = $2
		ORDER BY grantee, privilege_type
	`
	rows, err := p.pool.Query(ctx, query, p.schemaOf(table), table.Name)
	if err != nil {
		return nil, fmt.Errorf("querying grants of %s: %w", table.Expression(), err)
	}
	defer rows.Close()

	var out []GrantRow
	for rows.Next() {
		var r GrantRow
		if err := rows.Scan(&r.Grantor, &r.Grantee, &r.Privilege, &r.Grantable); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *Postgres) Constraints(ctx context.Context, table schema.QualifiedName) ([]ConstraintRow, error) {
	query := `
		SELECT con.conname, pg_get_constraintdef(con.oid, true)
		FROM pg_constraint con
		JOIN pg_class c ON c.oid = con.conrelid
		JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE con.contype = 'c'
			AND n.nspname = $1
			AND c.relname = $2
		ORDER BY con.conname
	`
	rows, err := p.pool.Query(ctx, query, p.schemaOf(table), table.Name)
	if err != nil {
		return nil, fmt.Errorf("querying constraints of %s: %w", table.Expression(), err)
	}
	defer rows.Close()

	var out []ConstraintRow
	for rows.Next() {
		r := ConstraintRow{Type: "CHECK"}
		if err := rows.Scan(&r.Name, &r.Expression); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *Postgres) Schemas(ctx context.Context) ([]string, error) {
	rows, err := p.pool.Query(ctx, `SELECT nspname FROM pg_namespace WHERE nspname NOT LIKE 'pg_toast%' ORDER BY nspname`)
	if err != nil {
		return nil, fmt.Errorf("querying schemas: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (p *Postgres) Catalogs(ctx context.Context) ([]string, error) {
	rows, err := p.pool.Query(ctx, `SELECT datname FROM pg_database WHERE NOT datistemplate ORDER BY datname`)
	if err != nil {
		return nil, fmt.Errorf("querying databases: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (p *Postgres) Query(ctx context.Context, sql string, args ...any) ([][]string, error) {
	rows, err := p.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out [][]string
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		row := make([]string, len(values))
		for i, v := range values {
			row[i] = Text(v)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

// schemaOf defaults to "public" for unqualified names.
func (p *Postgres) schemaOf(table schema.QualifiedName) string {
	if table.Schema == "" {
		return "public"
	}
	return table.Schema
}
