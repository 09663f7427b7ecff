package deletescript

import (
	"bytes"
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hurou927/dbmeta/internal/capability"
	"github.com/hurou927/dbmeta/internal/config"
	"github.com/hurou927/dbmeta/internal/graph"
	"github.com/hurou927/dbmeta/internal/metadata"
	"github.com/hurou927/dbmeta/internal/provider"
	"github.com/hurou927/dbmeta/internal/schema"
	"github.com/hurou927/dbmeta/internal/testutil"
)

func naming() schema.Naming {
	n := schema.DefaultNaming()
	n.StoreCase = schema.CaseLower
	n.IgnoreSchemas = []string{"app"}
	return n
}

func table(name string, pk []string, cols []string, fks ...schema.ForeignKey) *schema.Table {
	t := &schema.Table{Name: schema.NewName("", "app", name, "TABLE")}
	if pk != nil {
		t.Name.PrimaryKey = &schema.PkDefinition{Columns: pk}
	}
	for _, c := range cols {
		t.Columns = append(t.Columns, schema.Column{Name: c, DbmsType: "int", Nullable: true})
	}
	for _, fk := range fks {
		fk.Child = t.Name
		t.ForeignKeys = append(t.ForeignKeys, fk)
	}
	return t
}

func ref(parent string, childCols, parentCols []string) schema.ForeignKey {
	return schema.ForeignKey{
		Name:          "fk_" + parent,
		Parent:        schema.NewName("", "app", parent, "TABLE"),
		ChildColumns:  childCols,
		ParentColumns: parentCols,
	}
}

func TestStatements(t *testing.T) {
	tables := []*schema.Table{
		table("account", []string{"id"}, []string{"id"}),
		table("invoice", []string{"id"}, []string{"id", "account_id"},
			ref("account", []string{"account_id"}, []string{"id"})),
		table("invoice_line", []string{"invoice_id", "line_no"}, []string{"invoice_id", "line_no"},
			ref("invoice", []string{"invoice_id"}, []string{"id"})),
		table("line_note", nil, []string{"invoice_id", "line_no"},
			ref("invoice_line", []string{"invoice_id", "line_no"}, []string{"invoice_id", "line_no"})),
		table("unrelated", []string{"id"}, []string{"id"}),
	}
	gen := New(graph.Build(tables, nil, nil), naming(), nil)

	stmts, err := gen.Statements([]config.Root{{Table: "account", Keys: []any{7, 8}}})
	require.NoError(t, err)
	require.Len(t, stmts, 4)

	account := "SELECT id FROM account WHERE id IN (7, 8)"
	invoice := "SELECT id FROM invoice WHERE account_id IN (" + account + ")"
	line := "SELECT invoice_id, line_no FROM invoice_line WHERE invoice_id IN (" + invoice + ")"

	assert.Equal(t, Statement{Table: "app.line_note", Level: 3,
		SQL: "DELETE FROM line_note WHERE (invoice_id, line_no) IN (" + line + ")"}, stmts[0])
	assert.Equal(t, Statement{Table: "app.invoice_line", Level: 2,
		SQL: "DELETE FROM invoice_line WHERE invoice_id IN (" + invoice + ")"}, stmts[1])
	assert.Equal(t, Statement{Table: "app.invoice", Level: 1,
		SQL: "DELETE FROM invoice WHERE account_id IN (" + account + ")"}, stmts[2])
	assert.Equal(t, Statement{Table: "app.account", Level: 0,
		SQL: "DELETE FROM account WHERE id IN (7, 8)"}, stmts[3])
}

func TestStatements_WhereAllAndVirtual(t *testing.T) {
	tables := []*schema.Table{
		table("account", []string{"id"}, []string{"id", "region"}),
		table("audit", nil, []string{"account_ref"}),
	}
	g := graph.Build(tables, nil, []config.VirtualRelation{
		{ChildTable: "audit", ChildColumn: "account_ref", ParentTable: "account", ParentColumn: "id"},
	})
	gen := New(g, naming(), nil)

	stmts, err := gen.Statements([]config.Root{{Table: "account", Where: "region = 'EU'", Keys: []any{"a'b"}}})
	require.NoError(t, err)
	require.Len(t, stmts, 2)
	assert.Equal(t, "DELETE FROM audit WHERE account_ref IN (SELECT id FROM account WHERE (region = 'EU') AND id IN ('a''b'))", stmts[0].SQL)

	// A root without conditions deletes everything, and so do its children.
	stmts, err = gen.Statements([]config.Root{{Table: "app.account"}})
	require.NoError(t, err)
	assert.Equal(t, "DELETE FROM audit WHERE account_ref IN (SELECT id FROM account)", stmts[0].SQL)
	assert.Equal(t, "DELETE FROM account", stmts[1].SQL)
}

func TestStatements_Errors(t *testing.T) {
	tables := []*schema.Table{
		table("pair", []string{"a", "b"}, []string{"a", "b"}),
	}
	gen := New(graph.Build(tables, nil, nil), naming(), nil)

	_, err := gen.Statements([]config.Root{{Table: "missing"}})
	assert.ErrorContains(t, err, `root table "missing" not found`)

	_, err = gen.Statements([]config.Root{{Table: "pair", Keys: []any{1}}})
	assert.ErrorContains(t, err, "single-column primary key")
}

func TestStatements_SelfReferenceAndCycle(t *testing.T) {
	tables := []*schema.Table{
		table("node", []string{"id"}, []string{"id", "parent_id"},
			ref("node", []string{"parent_id"}, []string{"id"})),
		table("a", []string{"id"}, []string{"id", "node_id", "b_id"},
			ref("node", []string{"node_id"}, []string{"id"}), ref("b", []string{"b_id"}, []string{"id"})),
		table("b", []string{"id"}, []string{"id", "a_id"}, ref("a", []string{"a_id"}, []string{"id"})),
	}
	gen := New(graph.Build(tables, nil, nil), naming(), testutil.NewTestLogger(t))

	stmts, err := gen.Statements([]config.Root{{Table: "node", Where: "id = 1"}})
	require.NoError(t, err)
	require.Len(t, stmts, 3)

	assert.True(t, stmts[0].Skipped)
	assert.Equal(t, "app.a", stmts[0].Table)
	assert.True(t, stmts[1].Skipped)
	assert.Equal(t, "app.b", stmts[1].Table)
	assert.Equal(t,
		"DELETE FROM node WHERE id IN (WITH RECURSIVE tree AS (SELECT id FROM node WHERE (id = 1) UNION SELECT c.id FROM node c JOIN tree p ON c.parent_id = p.id) SELECT id FROM tree)",
		stmts[2].SQL)
}

func TestWrite(t *testing.T) {
	tables := []*schema.Table{
		table("account", []string{"id"}, []string{"id"}),
		table("invoice", []string{"id"}, []string{"id", "account_id"},
			ref("account", []string{"account_id"}, []string{"id"})),
	}
	gen := New(graph.Build(tables, nil, nil), naming(), nil)

	var buf bytes.Buffer
	require.NoError(t, gen.Write(&buf, []config.Root{{Table: "account", Keys: []any{1}}}, WriteOptions{Transactional: true}))

	assert.Equal(t, "-- Delete script for account\n"+
		"BEGIN;\n\n"+
		"DELETE FROM invoice WHERE account_id IN (SELECT id FROM account WHERE id IN (1));\n\n"+
		"DELETE FROM account WHERE id IN (1);\n\n"+
		"COMMIT;\n", buf.String())
}

func TestDeleteScript_SQLite(t *testing.T) {
	db := testutil.OpenSQLite(t, testutil.ShopSchema+`
INSERT INTO customer (id, name, referred_by) VALUES (1, 'ann', NULL), (2, 'bob', 1), (3, 'cid', NULL), (4, 'dan', 2);
INSERT INTO orders (id, customer_id, total) VALUES (10, 1, 5), (11, 4, 7), (12, 3, 9);
INSERT INTO order_line (order_id, line_no, sku) VALUES (10, 1, 'a'), (11, 1, 'b'), (12, 1, 'c'), (12, 2, 'd');
`)
	_, err := db.Exec(`PRAGMA foreign_keys = ON`)
	require.NoError(t, err)

	reg, err := capability.New(capability.WithEnvPrefix(""))
	require.NoError(t, err)
	ctx := context.Background()
	svc, err := metadata.New(ctx, provider.NewSQLite(db), reg)
	require.NoError(t, err)

	var tables []*schema.Table
	for _, name := range svc.ListTables(ctx, "", "") {
		def, err := svc.TableDefinition(ctx, name)
		require.NoError(t, err)
		tables = append(tables, def)
	}

	gen := New(graph.Build(tables, nil, nil), svc.Naming(), nil)
	stmts, err := gen.Statements([]config.Root{{Table: "customer", Keys: []any{1}}})
	require.NoError(t, err)
	require.Len(t, stmts, 3)
	assert.Equal(t, []string{"order_line", "orders", "customer"},
		[]string{stmts[0].Table, stmts[1].Table, stmts[2].Table})

	for _, s := range stmts {
		_, err := db.Exec(s.SQL)
		require.NoError(t, err, s.SQL)
	}

	assert.Equal(t, []int{3}, ids(t, db, `SELECT id FROM customer ORDER BY id`))
	assert.Equal(t, []int{12}, ids(t, db, `SELECT id FROM orders ORDER BY id`))
	assert.Equal(t, []int{1, 2}, ids(t, db, `SELECT line_no FROM order_line ORDER BY line_no`))
}

func ids(t *testing.T, db *sql.DB, query string) []int {
	t.Helper()
	rows, err := db.Query(query)
	require.NoError(t, err)
	defer rows.Close()
	var out []int
	for rows.Next() {
		var id int
		require.NoError(t, rows.Scan(&id))
		out = append(out, id)
	}
	require.NoError(t, rows.Err())
	return out
}
