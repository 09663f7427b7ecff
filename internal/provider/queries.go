package provider

import (
	"strconv"
	"strings"

	"github.com/hurou927/dbmeta/internal/dialect"
)

// Placeholder is the bind parameter style of a driver.
type Placeholder int

const (
	// Question binds with "?".
	Question Placeholder = iota
	// Dollar binds with "$1", "$2", ...
	Dollar
	// AtP binds with "@p1", "@p2", ...
	AtP
)

// Queries holds the catalog statements for one dialect. Statements are
// written with "?" placeholders and rebound for the driver. An empty
// statement makes the matching call return ErrUnsupported.
//
// Column contracts:
//
//	Objects      catalog, schema, name, type, remarks       (schema pattern, name pattern)
//	Columns      name, type, size, digits, nullable, position, default, remarks, computed
//	Indexes      index, non_unique, ordinal, column, direction, type
//	PrimaryKeys  constraint, column, seq
//	Imported/ExportedKeys
//	             name, pk_schema, pk_table, pk_column, fk_schema, fk_table, fk_column,
//	             seq, update_rule, delete_rule
//	Grants       grantor, grantee, privilege, grantable
//	Constraints  name, expression
//
// Per-table statements take (namespace, table); arguments are repeated
// when a statement has more placeholders than arguments.
type Queries struct {
	Product     string
	Quote       string
	StoresCase  string
	Placeholder Placeholder
	// SearchEscape is the LIKE escape the product honours without an
	// ESCAPE clause; "" disables pattern escaping.
	SearchEscape string
	// CatalogIsSchema moves the namespace column into the catalog slot for
	// products where databases play the schema role.
	CatalogIsSchema bool
	DefaultSchema   string

	Version        string
	CurrentCatalog string
	CurrentSchema  string
	Objects        string
	Columns        string
	Indexes        string
	PrimaryKeys    string
	ImportedKeys   string
	ExportedKeys   string
	Grants         string
	Constraints    string
	Schemas        string
	Catalogs       string
}

// Rebind rewrites "?" placeholders into the given style. Question marks
// inside single-quoted literals are kept.
func Rebind(p Placeholder, query string) string {
	if p == Question {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	inString := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'':
			inString = !inString
			b.WriteByte(c)
		case c == '?' && !inString:
			n++
			if p == Dollar {
				b.WriteByte('$')
			} else {
				b.WriteString("@p")
			}
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// countPlaceholders counts "?" outside single-quoted literals.
func countPlaceholders(query string) int {
	n := 0
	inString := false
	for i := 0; i < len(query); i++ {
		switch query[i] {
		case '\'':
			inString = !inString
		case '?':
			if !inString {
				n++
			}
		}
	}
	return n
}

// cycleArgs repeats args until there is one per placeholder.
func cycleArgs(n int, args []any) []any {
	if len(args) == 0 || n <= len(args) {
		return args
	}
	out := make([]any, n)
	for i := range out {
		out[i] = args[i%len(args)]
	}
	return out
}

// QueriesFor returns the catalog statements for a dialect. Unknown
// dialects get the information_schema set.
func QueriesFor(id dialect.ID) Queries {
	switch id {
	case dialect.MySQL, dialect.MariaDB:
		return mysqlQueries(id)
	case dialect.SQLServer:
		return sqlServerQueries()
	case dialect.HANA:
		return hanaQueries()
	case dialect.ClickHouse:
		return clickHouseQueries()
	case dialect.DuckDB:
		q := ansiQueries()
		q.Product = "DuckDB"
		q.StoresCase = "lower"
		q.DefaultSchema = "main"
		q.Catalogs = `SELECT database_name FROM duckdb_databases() ORDER BY 1`
		q.CurrentCatalog = `SELECT current_database()`
		return q
	case dialect.Redshift:
		q := ansiQueries()
		q.Product = "Redshift"
		q.StoresCase = "lower"
		q.Placeholder = Dollar
		q.SearchEscape = `\`
		q.DefaultSchema = "public"
		q.CurrentCatalog = `SELECT current_database()`
		q.Catalogs = `SELECT datname FROM pg_database WHERE NOT datistemplate ORDER BY 1`
		// Redshift has no information_schema.check_constraints.
		q.Constraints = ""
		return q
	}
	q := ansiQueries()
	q.Product = string(id)
	return q
}

func ansiQueries() Queries {
	return Queries{
		Quote:         `"`,
		Placeholder:   Question,
		Version:       `SELECT version()`,
		CurrentSchema: `SELECT current_schema()`,
		Objects: `
			SELECT table_catalog, table_schema, table_name, table_type, ''
			FROM information_schema.tables
			WHERE table_schema LIKE ?
				AND table_name LIKE ?
			ORDER BY table_schema, table_name`,
		Columns: `
			SELECT column_name, data_type,
				COALESCE(character_maximum_length, numeric_precision, 0),
				COALESCE(numeric_scale, 0),
				is_nullable, ordinal_position, COALESCE(column_default, ''), '', ''
			FROM information_schema.columns
			WHERE table_schema = ?
				AND table_name = ?
			ORDER BY ordinal_position`,
		PrimaryKeys: `
			SELECT tc.constraint_name, kcu.column_name, kcu.ordinal_position
			FROM information_schema.table_constraints tc
			JOIN information_schema.key_column_usage kcu
				ON kcu.constraint_schema = tc.constraint_schema
				AND kcu.constraint_name = tc.constraint_name
				AND kcu.table_name = tc.table_name
			WHERE tc.constraint_type = 'PRIMARY KEY'
				AND tc.table_schema = ?
				AND tc.table_name = ?
			ORDER BY kcu.ordinal_position`,
		ImportedKeys: ansiForeignKeys("fk"),
		ExportedKeys: ansiForeignKeys("pk"),
		Grants: `
			SELECT grantor, grantee, privilege_type, is_grantable
			FROM information_schema.table_privileges
			WHERE table_schema = ?
				AND table_name = ?
			ORDER BY grantee, privilege_type`,
		Constraints: `
			SELECT cc.constraint_name, cc.check_clause
			FROM information_schema.check_constraints cc
			JOIN information_schema.table_constraints tc
				ON tc.constraint_schema = cc.constraint_schema
				AND tc.constraint_name = cc.constraint_name
			WHERE tc.constraint_type = 'CHECK'
				AND tc.table_schema = ?
				AND tc.table_name = ?
			ORDER BY 1`,
		Schemas: `SELECT schema_name FROM information_schema.schemata ORDER BY 1`,
	}
}

func ansiForeignKeys(side string) string {
	return `
		SELECT rc.constraint_name, pk.table_schema, pk.table_name, pk.column_name,
			fk.table_schema, fk.table_name, fk.column_name, fk.ordinal_position,
			rc.update_rule, rc.delete_rule
		FROM information_schema.referential_constraints rc
		JOIN information_schema.key_column_usage fk
			ON fk.constraint_schema = rc.constraint_schema
			AND fk.constraint_name = rc.constraint_name
		JOIN information_schema.key_column_usage pk
			ON pk.constraint_schema = rc.unique_constraint_schema
			AND pk.constraint_name = rc.unique_constraint_name
			AND pk.ordinal_position = fk.position_in_unique_constraint
		WHERE ` + side + `.table_schema = ?
			AND ` + side + `.table_name = ?
		ORDER BY rc.constraint_name, fk.ordinal_position`
}

func mysqlQueries(id dialect.ID) Queries {
	product := "MySQL"
	if id == dialect.MariaDB {
		product = "MariaDB"
	}
	fk := func(filter string) string {
		return `
			SELECT k.CONSTRAINT_NAME, k.REFERENCED_TABLE_SCHEMA, k.REFERENCED_TABLE_NAME,
				k.REFERENCED_COLUMN_NAME, k.TABLE_SCHEMA, k.TABLE_NAME, k.COLUMN_NAME,
				k.ORDINAL_POSITION, r.UPDATE_RULE, r.DELETE_RULE
			FROM information_schema.KEY_COLUMN_USAGE k
			JOIN information_schema.REFERENTIAL_CONSTRAINTS r
				ON r.CONSTRAINT_SCHEMA = k.CONSTRAINT_SCHEMA
				AND r.CONSTRAINT_NAME = k.CONSTRAINT_NAME
			WHERE ` + filter + `
				AND k.REFERENCED_TABLE_NAME IS NOT NULL
			ORDER BY k.CONSTRAINT_NAME, k.ORDINAL_POSITION`
	}
	return Queries{
		Product:         product,
		Quote:           "`",
		StoresCase:      "mixed",
		Placeholder:     Question,
		SearchEscape:    `\`,
		CatalogIsSchema: true,
		Version:         `SELECT VERSION()`,
		CurrentCatalog:  `SELECT DATABASE()`,
		CurrentSchema:   `SELECT DATABASE()`,
		Objects: `
			SELECT '', TABLE_SCHEMA, TABLE_NAME, TABLE_TYPE, TABLE_COMMENT
			FROM information_schema.TABLES
			WHERE TABLE_SCHEMA LIKE ?
				AND TABLE_NAME LIKE ?
			ORDER BY TABLE_SCHEMA, TABLE_NAME`,
		Columns: `
			SELECT COLUMN_NAME, DATA_TYPE,
				COALESCE(CHARACTER_MAXIMUM_LENGTH, NUMERIC_PRECISION, 0),
				COALESCE(NUMERIC_SCALE, 0),
				IS_NULLABLE, ORDINAL_POSITION, COALESCE(COLUMN_DEFAULT, ''),
				COLUMN_COMMENT, COALESCE(GENERATION_EXPRESSION, '')
			FROM information_schema.COLUMNS
			WHERE TABLE_SCHEMA = ?
				AND TABLE_NAME = ?
			ORDER BY ORDINAL_POSITION`,
		Indexes: `
			SELECT INDEX_NAME, NON_UNIQUE, SEQ_IN_INDEX, COLUMN_NAME,
				CASE COLLATION WHEN 'D' THEN 'DESC' WHEN 'A' THEN 'ASC' ELSE '' END,
				INDEX_TYPE
			FROM information_schema.STATISTICS
			WHERE TABLE_SCHEMA = ?
				AND TABLE_NAME = ?
			ORDER BY INDEX_NAME, SEQ_IN_INDEX`,
		PrimaryKeys: `
			SELECT CONSTRAINT_NAME, COLUMN_NAME, ORDINAL_POSITION
			FROM information_schema.KEY_COLUMN_USAGE
			WHERE TABLE_SCHEMA = ?
				AND TABLE_NAME = ?
				AND CONSTRAINT_NAME = 'PRIMARY'
			ORDER BY ORDINAL_POSITION`,
		ImportedKeys: fk("k.TABLE_SCHEMA = ? AND k.TABLE_NAME = ?"),
		ExportedKeys: fk("k.REFERENCED_TABLE_SCHEMA = ? AND k.REFERENCED_TABLE_NAME = ?"),
		Grants: `
			SELECT '', GRANTEE, PRIVILEGE_TYPE, IS_GRANTABLE
			FROM information_schema.TABLE_PRIVILEGES
			WHERE TABLE_SCHEMA = ?
				AND TABLE_NAME = ?
			ORDER BY GRANTEE, PRIVILEGE_TYPE`,
		Constraints: `
			SELECT cc.CONSTRAINT_NAME, cc.CHECK_CLAUSE
			FROM information_schema.CHECK_CONSTRAINTS cc
			JOIN information_schema.TABLE_CONSTRAINTS tc
				ON tc.CONSTRAINT_SCHEMA = cc.CONSTRAINT_SCHEMA
				AND tc.CONSTRAINT_NAME = cc.CONSTRAINT_NAME
			WHERE tc.TABLE_SCHEMA = ?
				AND tc.TABLE_NAME = ?
			ORDER BY 1`,
		Catalogs: `SELECT SCHEMA_NAME FROM information_schema.SCHEMATA ORDER BY 1`,
	}
}

// objectID resolves a (schema, table) pair on SQL Server.
const objectID = `OBJECT_ID(QUOTENAME(?) + '.' + QUOTENAME(?))`

func sqlServerQueries() Queries {
	fk := func(filter string) string {
		return `
			SELECT fk.name, ps.name, pt.name, pc.name, cs.name, ct.name, cc.name,
				fkc.constraint_column_id,
				fk.update_referential_action_desc, fk.delete_referential_action_desc
			FROM sys.foreign_keys fk
			JOIN sys.foreign_key_columns fkc ON fkc.constraint_object_id = fk.object_id
			JOIN sys.tables ct ON ct.object_id = fk.parent_object_id
			JOIN sys.schemas cs ON cs.schema_id = ct.schema_id
			JOIN sys.columns cc ON cc.object_id = fkc.parent_object_id AND cc.column_id = fkc.parent_column_id
			JOIN sys.tables pt ON pt.object_id = fk.referenced_object_id
			JOIN sys.schemas ps ON ps.schema_id = pt.schema_id
			JOIN sys.columns pc ON pc.object_id = fkc.referenced_object_id AND pc.column_id = fkc.referenced_column_id
			WHERE ` + filter + `
			ORDER BY fk.name, fkc.constraint_column_id`
	}
	return Queries{
		Product:        "Microsoft SQL Server",
		Quote:          "[",
		StoresCase:     "mixed",
		Placeholder:    AtP,
		DefaultSchema:  "dbo",
		Version:        `SELECT CAST(SERVERPROPERTY('ProductVersion') AS nvarchar(128))`,
		CurrentCatalog: `SELECT DB_NAME()`,
		CurrentSchema:  `SELECT SCHEMA_NAME()`,
		Objects: `
			SELECT DB_NAME(), s.name, o.name,
				CASE o.type WHEN 'U' THEN 'TABLE' WHEN 'V' THEN 'VIEW' ELSE 'SYNONYM' END,
				CAST(COALESCE(ep.value, '') AS nvarchar(4000))
			FROM sys.objects o
			JOIN sys.schemas s ON s.schema_id = o.schema_id
			LEFT JOIN sys.extended_properties ep
				ON ep.major_id = o.object_id AND ep.minor_id = 0 AND ep.name = 'MS_Description'
			WHERE o.type IN ('U', 'V', 'SN')
				AND s.name LIKE ?
				AND o.name LIKE ?
			ORDER BY s.name, o.name`,
		Columns: `
			SELECT c.name, t.name,
				CASE
					WHEN t.name IN ('nvarchar', 'nchar') AND c.max_length > 0 THEN c.max_length / 2
					WHEN t.name IN ('decimal', 'numeric') THEN c.precision
					ELSE c.max_length
				END,
				c.scale, c.is_nullable, c.column_id,
				COALESCE(dc.definition, ''),
				CAST(COALESCE(ep.value, '') AS nvarchar(4000)),
				COALESCE(cc.definition, '')
			FROM sys.columns c
			JOIN sys.types t ON t.user_type_id = c.user_type_id
			LEFT JOIN sys.default_constraints dc ON dc.object_id = c.default_object_id
			LEFT JOIN sys.computed_columns cc ON cc.object_id = c.object_id AND cc.column_id = c.column_id
			LEFT JOIN sys.extended_properties ep
				ON ep.major_id = c.object_id AND ep.minor_id = c.column_id AND ep.name = 'MS_Description'
			WHERE c.object_id = ` + objectID + `
			ORDER BY c.column_id`,
		Indexes: `
			SELECT i.name, CASE WHEN i.is_unique = 1 THEN 0 ELSE 1 END, ic.key_ordinal, c.name,
				CASE WHEN ic.is_descending_key = 1 THEN 'DESC' ELSE 'ASC' END,
				i.type_desc
			FROM sys.indexes i
			JOIN sys.index_columns ic ON ic.object_id = i.object_id AND ic.index_id = i.index_id
			JOIN sys.columns c ON c.object_id = ic.object_id AND c.column_id = ic.column_id
			WHERE i.object_id = ` + objectID + `
				AND i.name IS NOT NULL
				AND ic.key_ordinal > 0
			ORDER BY i.name, ic.key_ordinal`,
		PrimaryKeys: `
			SELECT kc.name, c.name, ic.key_ordinal
			FROM sys.key_constraints kc
			JOIN sys.index_columns ic ON ic.object_id = kc.parent_object_id AND ic.index_id = kc.unique_index_id
			JOIN sys.columns c ON c.object_id = ic.object_id AND c.column_id = ic.column_id
			WHERE kc.type = 'PK'
				AND kc.parent_object_id = ` + objectID + `
			ORDER BY ic.key_ordinal`,
		ImportedKeys: fk("cs.name = ? AND ct.name = ?"),
		ExportedKeys: fk("ps.name = ? AND pt.name = ?"),
		Grants: `
			SELECT USER_NAME(p.grantor_principal_id), USER_NAME(p.grantee_principal_id),
				p.permission_name, CASE WHEN p.state = 'W' THEN 1 ELSE 0 END
			FROM sys.database_permissions p
			WHERE p.class = 1
				AND p.minor_id = 0
				AND p.state IN ('G', 'W')
				AND p.major_id = ` + objectID + `
			ORDER BY 2, 3`,
		Constraints: `
			SELECT name, definition
			FROM sys.check_constraints
			WHERE parent_object_id = ` + objectID + `
			ORDER BY name`,
		Schemas:  `SELECT name FROM sys.schemas ORDER BY name`,
		Catalogs: `SELECT name FROM sys.databases ORDER BY name`,
	}
}

func hanaQueries() Queries {
	fk := func(filter string) string {
		return `
			SELECT CONSTRAINT_NAME, REFERENCED_SCHEMA_NAME, REFERENCED_TABLE_NAME, REFERENCED_COLUMN_NAME,
				SCHEMA_NAME, TABLE_NAME, COLUMN_NAME, POSITION, UPDATE_RULE, DELETE_RULE
			FROM SYS.REFERENTIAL_CONSTRAINTS
			WHERE ` + filter + `
			ORDER BY CONSTRAINT_NAME, POSITION`
	}
	return Queries{
		Product:       "HDB",
		Quote:         `"`,
		StoresCase:    "upper",
		Placeholder:   Question,
		Version:       `SELECT VERSION FROM SYS.M_DATABASE`,
		CurrentSchema: `SELECT CURRENT_SCHEMA FROM DUMMY`,
		Objects: `
			SELECT '', SCHEMA_NAME, TABLE_NAME, 'TABLE', COALESCE(COMMENTS, '')
			FROM SYS.TABLES
			WHERE SCHEMA_NAME LIKE ? AND TABLE_NAME LIKE ?
			UNION ALL
			SELECT '', SCHEMA_NAME, VIEW_NAME, 'VIEW', COALESCE(COMMENTS, '')
			FROM SYS.VIEWS
			WHERE SCHEMA_NAME LIKE ? AND VIEW_NAME LIKE ?
			ORDER BY 2, 3`,
		Columns: `
			SELECT COLUMN_NAME, DATA_TYPE_NAME, LENGTH, COALESCE(SCALE, 0), IS_NULLABLE, POSITION,
				COALESCE(DEFAULT_VALUE, ''), COALESCE(COMMENTS, ''), ''
			FROM SYS.TABLE_COLUMNS
			WHERE SCHEMA_NAME = ? AND TABLE_NAME = ?
			ORDER BY POSITION`,
		Indexes: `
			SELECT INDEX_NAME,
				CASE WHEN CONSTRAINT IN ('UNIQUE', 'PRIMARY KEY') THEN 0 ELSE 1 END,
				POSITION, COLUMN_NAME, ASCENDING_ORDER, ''
			FROM SYS.INDEX_COLUMNS
			WHERE SCHEMA_NAME = ? AND TABLE_NAME = ?
			ORDER BY INDEX_NAME, POSITION`,
		PrimaryKeys: `
			SELECT CONSTRAINT_NAME, COLUMN_NAME, POSITION
			FROM SYS.CONSTRAINTS
			WHERE SCHEMA_NAME = ? AND TABLE_NAME = ? AND IS_PRIMARY_KEY = 'TRUE'
			ORDER BY POSITION`,
		ImportedKeys: fk("SCHEMA_NAME = ? AND TABLE_NAME = ?"),
		ExportedKeys: fk("REFERENCED_SCHEMA_NAME = ? AND REFERENCED_TABLE_NAME = ?"),
		Grants: `
			SELECT GRANTOR, GRANTEE, PRIVILEGE, IS_GRANTABLE
			FROM SYS.GRANTED_PRIVILEGES
			WHERE SCHEMA_NAME = ? AND OBJECT_NAME = ?
			ORDER BY GRANTEE, PRIVILEGE`,
		Constraints: `
			SELECT CONSTRAINT_NAME, CHECK_CONDITION
			FROM SYS.CONSTRAINTS
			WHERE SCHEMA_NAME = ? AND TABLE_NAME = ? AND CHECK_CONDITION IS NOT NULL
			ORDER BY 1`,
		Schemas: `SELECT SCHEMA_NAME FROM SYS.SCHEMAS ORDER BY 1`,
	}
}

func clickHouseQueries() Queries {
	return Queries{
		Product:       "ClickHouse",
		Quote:         "`",
		StoresCase:    "mixed",
		Placeholder:   Question,
		SearchEscape:  `\`,
		DefaultSchema: "default",
		Version:       `SELECT version()`,
		CurrentSchema: `SELECT currentDatabase()`,
		Objects: `
			SELECT '', database, name, if(engine LIKE '%View', 'VIEW', 'TABLE'), comment
			FROM system.tables
			WHERE database LIKE ? AND name LIKE ?
			ORDER BY database, name`,
		Columns: `
			SELECT name, type, 0, 0, if(type LIKE 'Nullable(%', 'YES', 'NO'), position,
				if(default_kind = 'DEFAULT', default_expression, ''), comment,
				if(default_kind IN ('MATERIALIZED', 'ALIAS'), default_expression, '')
			FROM system.columns
			WHERE database = ? AND table = ?
			ORDER BY position`,
		PrimaryKeys: `
			SELECT 'PRIMARY', name, 0
			FROM system.columns
			WHERE database = ? AND table = ? AND is_in_primary_key = 1
			ORDER BY position`,
		Schemas: `SELECT name FROM system.databases ORDER BY name`,
	}
}
