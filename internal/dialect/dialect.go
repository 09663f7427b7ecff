package dialect

import (
	"strings"
)

// ID identifies a database product's SQL and metadata behaviour.
// It is the prefix used for capability keys (workbench.db.<ID>.<property>).
type ID string

// Known dialects. Products not listed here are classified with Normalize.
const (
	Generic     ID = "generic"
	PostgreSQL  ID = "postgresql"
	Oracle      ID = "oracle"
	SQLServer   ID = "microsoft_sql_server"
	MySQL       ID = "mysql"
	MariaDB     ID = "mariadb"
	DB2         ID = "db2"
	DB2i        ID = "db2i"
	DB2h        ID = "db2h"
	H2          ID = "h2"
	HSQLDB      ID = "hsql_database_engine"
	SQLite      ID = "sqlite"
	Derby       ID = "apache_derby"
	Firebird    ID = "firebird"
	Informix    ID = "informix_dynamic_server"
	HANA        ID = "hdb"
	Vertica     ID = "vertica_database"
	ClickHouse  ID = "clickhouse"
	DuckDB      ID = "duckdb"
	Redshift    ID = "redshift"
	CockroachDB ID = "cockroachdb"
	Snowflake   ID = "snowflake"
)

// rule maps a product-name fragment to a dialect. Rules are evaluated in
// order, so more specific fragments must come before generic ones.
type rule struct {
	contains string
	prefix   bool
	id       ID
}

var rules = []rule{
	{contains: "redshift", id: Redshift},
	{contains: "cockroach", id: CockroachDB},
	{contains: "postgres", id: PostgreSQL},
	{contains: "oracle", id: Oracle},
	{contains: "microsoft sql server", id: SQLServer},
	{contains: "sql server", id: SQLServer},
	{contains: "mariadb", id: MariaDB},
	{contains: "mysql", id: MySQL},
	{contains: "db2 for i", id: DB2i},
	{contains: "as/400", id: DB2i},
	{contains: "db2 for z/os", id: DB2h},
	{contains: "dsn", prefix: true, id: DB2h},
	{contains: "db2", id: DB2},
	{contains: "h2", prefix: true, id: H2},
	{contains: "hsql", id: HSQLDB},
	{contains: "sqlite", id: SQLite},
	{contains: "derby", id: Derby},
	{contains: "firebird", id: Firebird},
	{contains: "informix", id: Informix},
	{contains: "hdb", prefix: true, id: HANA},
	{contains: "sap hana", id: HANA},
	{contains: "vertica", id: Vertica},
	{contains: "clickhouse", id: ClickHouse},
	{contains: "duckdb", id: DuckDB},
	{contains: "snowflake", id: Snowflake},
}

// Classify maps the product name reported by a driver to a dialect ID.
// Unknown products are normalized so that their capability keys remain
// stable and human-editable.
func Classify(product string) ID {
	p := strings.ToLower(strings.TrimSpace(product))
	if p == "" {
		return Generic
	}
	for _, r := range rules {
		if r.prefix {
			if strings.HasPrefix(p, r.contains) {
				return r.id
			}
			continue
		}
		if strings.Contains(p, r.contains) {
			return r.id
		}
	}
	return Normalize(product)
}

var punctuation = strings.NewReplacer(
	" ", "_", "(", "_", ")", "_", "[", "_", "]", "_", "/", "_",
	"$", "_", ",", "_", ".", "_", "'", "_", "=", "_", "\"", "_",
	"-", "_", ":", "_",
)

// Normalize turns an arbitrary product name into a capability key prefix:
// lower case, punctuation replaced with underscores.
func Normalize(product string) ID {
	p := strings.TrimSpace(product)
	if p == "" {
		return Generic
	}
	return ID(punctuation.Replace(strings.ToLower(p)))
}

// Known reports whether id is one of the dialects this package classifies.
func Known(id ID) bool {
	for _, k := range All() {
		if k == id {
			return true
		}
	}
	return false
}

// All returns every known dialect ID.
func All() []ID {
	return []ID{
		Generic, PostgreSQL, Oracle, SQLServer, MySQL, MariaDB, DB2, DB2i, DB2h,
		H2, HSQLDB, SQLite, Derby, Firebird, Informix, HANA, Vertica,
		ClickHouse, DuckDB, Redshift, CockroachDB, Snowflake,
	}
}

// PostgresFamily reports whether id speaks the PostgreSQL catalog.
func (id ID) PostgresFamily() bool {
	return id == PostgreSQL || id == Redshift || id == CockroachDB
}

func (id ID) String() string {
	return string(id)
}
