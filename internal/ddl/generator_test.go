package ddl

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hurou927/dbmeta/internal/capability"
	"github.com/hurou927/dbmeta/internal/dialect"
	"github.com/hurou927/dbmeta/internal/schema"
)

func newSettings(t *testing.T, id dialect.ID, overrides map[string]string) *capability.Settings {
	t.Helper()
	reg, err := capability.New(capability.WithEnvPrefix(""))
	require.NoError(t, err)
	for k, v := range overrides {
		reg.Set(k, v)
	}
	return reg.Settings(id, dialect.Version{})
}

func pgNaming() schema.Naming {
	n := schema.DefaultNaming()
	n.StoreCase = schema.CaseLower
	n.SupportsCatalogs = false
	n.IgnoreSchemas = []string{"public"}
	return n
}

// squash collapses all runs of whitespace to one blank.
func squash(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// assertOrder checks that every part occurs in s, in the given order.
func assertOrder(t *testing.T, s string, parts ...string) {
	t.Helper()
	pos := -1
	for _, p := range parts {
		i := strings.Index(s, p)
		if !assert.GreaterOrEqual(t, i, 0, "missing %q in\n%s", p, s) {
			return
		}
		assert.Greater(t, i, pos, "%q out of order in\n%s", p, s)
		pos = i
	}
}

func TestTableSource_InlinePrimaryKey(t *testing.T) {
	name := schema.NewName("", "", "orders", "TABLE")
	name.Options.InlinePK = true
	table := &schema.Table{
		Name: name,
		Columns: []schema.Column{
			{Name: "id", DataType: schema.TypeInteger, DbmsType: "INTEGER", Nullable: true, IsPK: true},
			{Name: "total", DataType: schema.TypeDecimal, DbmsType: "DECIMAL", Size: 10, Digits: 2, Nullable: true},
		},
	}

	gen := NewGenerator(newSettings(t, dialect.Generic, nil), schema.DefaultNaming())
	got := gen.TableSource(table, DefaultOptions())

	assert.Equal(t, `CREATE TABLE "orders" ( "id" INTEGER, "total" DECIMAL(10,2), PRIMARY KEY ("id") );`, squash(got))
}

func pgOrders() *schema.Table {
	name := schema.NewName("", "app", "orders", "TABLE")
	name.PrimaryKey = &schema.PkDefinition{Name: "orders_pkey", Columns: []string{"id"}, IndexName: "orders_pkey"}
	name.Comment = "Customer's orders"
	return &schema.Table{
		Name: name,
		Columns: []schema.Column{
			{Name: "id", DataType: schema.TypeInteger, DbmsType: "integer", IsPK: true},
			{Name: "customer_id", DataType: schema.TypeInteger, DbmsType: "integer"},
			{Name: "total", DataType: schema.TypeNumeric, DbmsType: "numeric", Size: 10, Digits: 2, Nullable: true, Default: "0", Comment: "gross"},
			{Name: "status", DataType: schema.TypeVarchar, DbmsType: "varchar", Size: 10, Nullable: true},
		},
		Indexes: []schema.Index{
			{Name: "orders_pkey", Unique: true, PrimaryKeyIndex: true, Type: "btree", Columns: []schema.IndexColumn{{Column: "id"}}},
			{Name: "ix_orders_customer", Type: "btree", Columns: []schema.IndexColumn{{Column: "customer_id"}, {Column: "total", Direction: "DESC"}}},
			{Name: "ix_orders_status", Type: "hash", Columns: []schema.IndexColumn{{Column: "status", Direction: "ASC"}}},
		},
		ForeignKeys: []schema.ForeignKey{{
			Name:          "orders_customer_id_fkey",
			Child:         schema.NewName("", "app", "orders", "TABLE"),
			Parent:        schema.NewName("", "app", "customer", "TABLE"),
			ChildColumns:  []string{"customer_id"},
			ParentColumns: []string{"id"},
			UpdateRule:    schema.RuleNoAction,
			DeleteRule:    schema.RuleCascade,
		}},
		Constraints: []schema.TableConstraint{
			{Name: "orders_status_check", Type: "CHECK", Expression: "CHECK (status IN ('new', 'done'))", Columns: []string{"status"}},
		},
		Grants: []schema.Grant{
			{Grantee: "reporting", Privilege: "SELECT"},
			{Grantee: "admin", Privilege: "UPDATE", Grantable: true},
		},
	}
}

func TestTableSource_Postgres(t *testing.T) {
	gen := NewGenerator(newSettings(t, dialect.PostgreSQL, nil), pgNaming())
	got := gen.TableSource(pgOrders(), DefaultOptions())

	assert.Contains(t, got, "CREATE TABLE app.orders\n(\n")
	assert.Contains(t, got, "  id          integer       NOT NULL,\n")
	assert.Contains(t, got, "  total       numeric(10,2) DEFAULT 0,\n")
	assert.Contains(t, got, "  status      varchar(10),\n")
	assert.Contains(t, got, "  CONSTRAINT orders_status_check CHECK (status IN ('new', 'done'))\n);")

	assertOrder(t, got,
		"CREATE TABLE app.orders",
		"ALTER TABLE app.orders\n  ADD PRIMARY KEY (id);",
		"ALTER TABLE app.orders\n  ADD FOREIGN KEY (customer_id)\n  REFERENCES app.customer (id) ON DELETE CASCADE;",
		"CREATE INDEX ix_orders_customer ON app.orders (customer_id, total DESC);",
		"CREATE INDEX ix_orders_status ON app.orders USING HASH (status);",
		"COMMENT ON TABLE app.orders IS 'Customer''s orders';",
		"COMMENT ON COLUMN app.orders.total IS 'gross';",
		"GRANT SELECT ON app.orders TO reporting;",
		"GRANT UPDATE ON app.orders TO admin WITH GRANT OPTION;",
	)
	assert.NotContains(t, got, "orders_pkey")
	assert.NotContains(t, got, "DROP")
	assert.True(t, strings.HasSuffix(got, ";\n"))
}

func TestTableSource_PostgresOptions(t *testing.T) {
	gen := NewGenerator(newSettings(t, dialect.PostgreSQL, nil), pgNaming())

	got := gen.TableSource(pgOrders(), Options{IncludeDrop: true})
	assert.True(t, strings.HasPrefix(got, "DROP TABLE app.orders CASCADE;\n\nCREATE TABLE"), got)
	assert.NotContains(t, got, "FOREIGN KEY")
	assert.NotContains(t, got, "GRANT")

	table := pgOrders()
	table.ForeignKeys[0].Name = "fk_customer"
	table.ForeignKeys[0].Deferrability = schema.InitiallyDeferred
	table.ForeignKeys[0].UpdateRule = schema.RuleSetNull
	assert.Equal(t,
		"ALTER TABLE app.orders\n  ADD CONSTRAINT fk_customer FOREIGN KEY (customer_id)\n  REFERENCES app.customer (id) ON UPDATE SET NULL ON DELETE CASCADE DEFERRABLE INITIALLY DEFERRED;",
		gen.ForeignKeySource(table, table.ForeignKeys[0]))
}

func TestTableSource_Oracle(t *testing.T) {
	name := schema.NewName("", "HR", "EMP", "TABLE")
	name.PrimaryKey = &schema.PkDefinition{Name: "SYS_C0042", Columns: []string{"ID"}}
	table := &schema.Table{
		Name: name,
		Columns: []schema.Column{
			{Name: "ID", DataType: schema.TypeNumeric, DbmsType: "NUMBER", Size: 10, IsPK: true},
			{Name: "NAME", DataType: schema.TypeVarchar, DbmsType: "VARCHAR2", Size: 50, Nullable: true},
			{Name: "STATUS", DataType: schema.TypeChar, DbmsType: "CHAR", Size: 1, Nullable: true},
			{Name: "DEPT_ID", DataType: schema.TypeNumeric, DbmsType: "NUMBER", Size: 10, Nullable: true},
		},
		Indexes: []schema.Index{
			{Name: "SYS_C0042", Unique: true, Type: "NORMAL", Columns: []schema.IndexColumn{{Column: "ID"}}},
			{Name: "UX_EMP_NAME", Unique: true, Type: "NORMAL", Tablespace: "USERS", Columns: []schema.IndexColumn{{Column: "NAME"}}},
			{Name: "BX_EMP_STATUS", Type: "BITMAP", Columns: []schema.IndexColumn{{Column: "STATUS"}}},
		},
		ForeignKeys: []schema.ForeignKey{{
			Name:          "FK_EMP_DEPT",
			Parent:        schema.NewName("", "HR", "DEPT", "TABLE"),
			ChildColumns:  []string{"DEPT_ID"},
			ParentColumns: []string{"ID"},
			UpdateRule:    schema.RuleCascade,
			DeleteRule:    schema.RuleSetNull,
			Deferrability: schema.InitiallyDeferred,
		}},
		Constraints: []schema.TableConstraint{
			{Name: "CHK_STATUS", Type: "CHECK", Expression: "STATUS IN ('A', 'I')", Columns: []string{"STATUS"}},
		},
	}
	naming := schema.DefaultNaming()
	naming.SupportsCatalogs = false

	gen := NewGenerator(newSettings(t, dialect.Oracle, nil), naming)
	got := gen.TableSource(table, Options{IncludeDrop: true, IncludeFK: true})

	assert.Contains(t, got, "STATUS  CHAR(1)      CONSTRAINT CHK_STATUS CHECK (STATUS IN ('A', 'I')),")
	assertOrder(t, got,
		"DROP TABLE HR.EMP CASCADE CONSTRAINTS;",
		"CREATE TABLE HR.EMP",
		"ALTER TABLE HR.EMP\n  ADD PRIMARY KEY (ID);",
		"ADD CONSTRAINT FK_EMP_DEPT FOREIGN KEY (DEPT_ID)\n  REFERENCES HR.DEPT (ID) ON DELETE SET NULL DEFERRABLE INITIALLY DEFERRED;",
		"CREATE UNIQUE INDEX UX_EMP_NAME ON HR.EMP (NAME) TABLESPACE USERS;",
		"CREATE BITMAP INDEX BX_EMP_STATUS ON HR.EMP (STATUS);",
	)
	assert.NotContains(t, got, "ON UPDATE")
	assert.NotContains(t, got, "SYS_C0042")

	// The input table is left untouched by constraint folding.
	assert.Len(t, table.Constraints, 1)
	assert.Empty(t, table.Columns[2].Constraint)
}

func TestTableSource_MySQL(t *testing.T) {
	name := schema.NewName("", "", "orders", "TABLE")
	name.PrimaryKey = &schema.PkDefinition{Name: "PRIMARY", Columns: []string{"id"}}
	name.Options.TableOption = "ENGINE=InnoDB"
	name.Comment = "Orders"
	table := &schema.Table{
		Name: name,
		Columns: []schema.Column{
			{Name: "id", DataType: schema.TypeInteger, DbmsType: "int", IsPK: true, Comment: "key"},
			{Name: "customer_id", DataType: schema.TypeInteger, DbmsType: "int"},
		},
		Indexes: []schema.Index{
			{Name: "PRIMARY", Unique: true, PrimaryKeyIndex: true, Columns: []schema.IndexColumn{{Column: "id"}}},
			{Name: "fk_customer", Type: "BTREE", Columns: []schema.IndexColumn{{Column: "customer_id"}}},
			{Name: "ix_both", Type: "HASH", Columns: []schema.IndexColumn{{Column: "customer_id"}, {Column: "id"}}},
		},
		ForeignKeys: []schema.ForeignKey{{
			Name:          "fk_customer",
			Parent:        schema.NewName("", "", "customer", "TABLE"),
			ChildColumns:  []string{"customer_id"},
			ParentColumns: []string{"id"},
		}},
	}
	naming := schema.DefaultNaming()
	naming.SetQuote("`")
	naming.StoreCase = schema.CaseMixed
	naming.SupportsSchemas = false

	gen := NewGenerator(newSettings(t, dialect.MySQL, nil), naming)
	got := gen.TableSource(table, DefaultOptions())

	assert.Contains(t, squash(got),
		"CREATE TABLE orders ( id int NOT NULL COMMENT 'key', customer_id int NOT NULL, PRIMARY KEY (id) ) ENGINE=InnoDB COMMENT = 'Orders';")
	assert.Contains(t, got, "ALTER TABLE orders\n  ADD CONSTRAINT fk_customer FOREIGN KEY (customer_id)\n  REFERENCES customer (id);")
	assert.Contains(t, got, "CREATE INDEX ix_both ON orders (customer_id, id) USING HASH;")
	assert.NotContains(t, got, "CREATE INDEX fk_customer")
	assert.NotContains(t, got, "COMMENT ON")
}

func TestPrimaryKeyName(t *testing.T) {
	settings := newSettings(t, dialect.Generic, map[string]string{
		"workbench.db.ddl.pk.autoname":      "true",
		"workbench.db.max.identifier.length": "8",
	})
	gen := NewGenerator(settings, schema.DefaultNaming())

	table := &schema.Table{Name: schema.NewName("", "", "ORDERS", "TABLE")}
	assert.Equal(t, "pk_order", gen.PrimaryKeyName(table, &schema.PkDefinition{Columns: []string{"ID"}}))
	assert.Equal(t, "PK_X", gen.PrimaryKeyName(table, &schema.PkDefinition{Name: "PK_X"}))

	table.Columns = []schema.Column{{Name: "ID", DbmsType: "INTEGER", IsPK: true}}
	assert.Equal(t, "ALTER TABLE ORDERS\n  ADD CONSTRAINT \"pk_order\" PRIMARY KEY (ID);", gen.PrimaryKeySource(table))
}

func TestPrimaryKeyName_MultiByteTruncation(t *testing.T) {
	settings := newSettings(t, dialect.Generic, map[string]string{
		"workbench.db.ddl.pk.autoname":      "true",
		"workbench.db.max.identifier.length": "63",
	})
	gen := NewGenerator(settings, schema.DefaultNaming())

	table := &schema.Table{Name: schema.NewName("", "", "a"+strings.Repeat("é", 40), "TABLE")}
	name := gen.PrimaryKeyName(table, &schema.PkDefinition{Columns: []string{"id"}})
	assert.True(t, utf8.ValidString(name), "%q", name)
	assert.Equal(t, "pk_a"+strings.Repeat("é", 29), name)
	assert.LessOrEqual(t, len(name), 63)
}

func TestPrimaryKeySource_NoKey(t *testing.T) {
	gen := NewGenerator(newSettings(t, dialect.Generic, nil), schema.DefaultNaming())
	table := &schema.Table{
		Name:    schema.NewName("", "", "LOG", "TABLE"),
		Columns: []schema.Column{{Name: "MSG", DbmsType: "CLOB", Nullable: true}},
	}
	assert.Empty(t, gen.PrimaryKeySource(table))
	assert.Equal(t, "CREATE TABLE LOG\n(\n  MSG CLOB\n);\n", gen.TableSource(table, DefaultOptions()))
}

func TestColumnDefinitions(t *testing.T) {
	cols := []schema.Column{
		{Name: "id", DbmsType: "integer"},
		{Name: "created_at", DbmsType: "timestamp", Nullable: true, DefaultClause: "DEFAULT now()"},
		{Name: "amount", DbmsType: "numeric", Nullable: true, Computed: "price * qty"},
		{Name: "note", DbmsType: "text", Nullable: true},
	}

	t.Run("aligned", func(t *testing.T) {
		gen := NewGenerator(newSettings(t, dialect.PostgreSQL, nil), pgNaming())
		assert.Equal(t, []string{
			"id         integer   NOT NULL",
			"created_at timestamp DEFAULT now()",
			"amount     numeric   GENERATED ALWAYS AS (price * qty)",
			"note       text",
		}, gen.ColumnDefinitions(cols))
	})

	t.Run("unaligned", func(t *testing.T) {
		settings := newSettings(t, dialect.PostgreSQL, map[string]string{"workbench.db.postgresql.ddl.column.align": "false"})
		gen := NewGenerator(settings, pgNaming())
		assert.Equal(t, []string{
			"id integer NOT NULL",
			"created_at timestamp DEFAULT now()",
			"amount numeric GENERATED ALWAYS AS (price * qty)",
			"note text",
		}, gen.ColumnDefinitions(cols))
	})

	t.Run("quoted names", func(t *testing.T) {
		gen := NewGenerator(newSettings(t, dialect.PostgreSQL, map[string]string{"workbench.db.postgresql.ddl.column.align": "false"}), pgNaming())
		got := gen.ColumnDefinitions([]schema.Column{
			{Name: "Mixed", DbmsType: "int", Nullable: true},
			{Name: "plain", DbmsType: "int", Nullable: true, Quoted: true},
		})
		assert.Equal(t, []string{`"Mixed" int`, `"plain" int`}, got)
	})
}

func TestIndexSource(t *testing.T) {
	table := &schema.Table{Name: schema.NewName("", "app", "t", "TABLE")}
	idx := schema.Index{Name: "ix", Columns: []schema.IndexColumn{{Column: "a", Direction: "ASC"}, {Column: "b", Direction: "desc"}}}

	gen := NewGenerator(newSettings(t, dialect.PostgreSQL, nil), pgNaming())
	assert.Equal(t, "CREATE INDEX ix ON app.t (a, b DESC);", gen.IndexSource(table, idx))

	explicit := NewGenerator(newSettings(t, dialect.PostgreSQL, map[string]string{
		"workbench.db.postgresql.ddl.index.direction.explicit": "true",
	}), pgNaming())
	assert.Equal(t, "CREATE INDEX ix ON app.t (a ASC, b DESC);", explicit.IndexSource(table, idx))
}

func TestUniqueConstraintSource(t *testing.T) {
	table := pgOrders()
	table.Indexes = append(table.Indexes, schema.Index{
		Name:                 "orders_status_key",
		Unique:               true,
		UniqueConstraintName: "uq_status",
		Columns:              []schema.IndexColumn{{Column: "status"}},
	})

	gen := NewGenerator(newSettings(t, dialect.PostgreSQL, nil), pgNaming())
	got := gen.TableSource(table, DefaultOptions())

	assert.Contains(t, got, "ALTER TABLE app.orders\n  ADD CONSTRAINT uq_status UNIQUE (status);")
	assert.NotContains(t, got, "INDEX orders_status_key")
}

func TestDropStatement(t *testing.T) {
	table := &schema.Table{Name: schema.NewName("", "main", "v_orders", "VIEW")}

	sqlite := NewGenerator(newSettings(t, dialect.SQLite, nil), pgNaming())
	assert.Equal(t, "DROP VIEW main.v_orders;", sqlite.DropStatement(table))

	generic := NewGenerator(newSettings(t, dialect.Generic, nil), pgNaming())
	assert.Equal(t, "DROP VIEW main.v_orders;", generic.DropStatement(table))
}

func TestGrantAndCommentSource_Disabled(t *testing.T) {
	settings := newSettings(t, dialect.PostgreSQL, map[string]string{
		"workbench.db.postgresql.ddl.include.comments": "false",
		"workbench.db.postgresql.ddl.include.grants":   "false",
		"workbench.db.postgresql.ddl.include.indexes":  "false",
	})
	got := NewGenerator(settings, pgNaming()).TableSource(pgOrders(), DefaultOptions())

	assert.NotContains(t, got, "COMMENT ON")
	assert.NotContains(t, got, "GRANT")
	assert.NotContains(t, got, "CREATE INDEX")
	assert.Contains(t, got, "ADD FOREIGN KEY")
}
