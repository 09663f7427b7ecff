package ddl

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hurou927/dbmeta/internal/capability"
	"github.com/hurou927/dbmeta/internal/dialect"
	"github.com/hurou927/dbmeta/internal/metadata"
	"github.com/hurou927/dbmeta/internal/provider"
	"github.com/hurou927/dbmeta/internal/schema"
	"github.com/hurou927/dbmeta/internal/testutil"
)

func newShopBuilder(t *testing.T) (*Builder, *metadata.Service) {
	t.Helper()
	reg, err := capability.New(capability.WithEnvPrefix(""))
	require.NoError(t, err)
	logger := testutil.NewTestLogger(t)

	p := provider.NewSQLite(testutil.OpenSQLite(t, testutil.ShopSchema))
	svc, err := metadata.New(context.Background(), p, reg, metadata.WithLogger(logger))
	require.NoError(t, err)
	return NewBuilder(svc, logger), svc
}

func TestBuilder_NativeSource(t *testing.T) {
	b, svc := newShopBuilder(t)
	ctx := context.Background()

	got, err := b.TableSource(ctx, svc.ParseName("orders"), Options{IncludeDrop: true})
	require.NoError(t, err)

	assertOrder(t, got,
		"DROP TABLE orders;",
		"CREATE TABLE orders (",
		"FOREIGN KEY (customer_id) REFERENCES customer(id) ON DELETE CASCADE\n);",
		"CREATE INDEX ix_orders_customer ON orders (customer_id);",
	)

	got, err = b.TableSource(ctx, svc.ParseName("customer"), DefaultOptions())
	require.NoError(t, err)
	assert.Contains(t, got, "CREATE UNIQUE INDEX ux_customer_name ON customer (name DESC);")
	assert.NotContains(t, got, "DROP")
	assert.NotContains(t, got, "GRANT")
}

func TestBuilder_GeneratedSource(t *testing.T) {
	b, svc := newShopBuilder(t)
	ctx := context.Background()
	// Without a native query the statement is generated from metadata.
	svc.Settings().Registry().Set("workbench.db.sqlite.ddl.table.retrieve.sql", "")

	got, err := b.TableSource(ctx, svc.ParseName("order_line"), DefaultOptions())
	require.NoError(t, err)

	assert.Contains(t, squash(got), "CREATE TABLE order_line ( order_id INTEGER NOT NULL, line_no INTEGER NOT NULL, sku VARCHAR(20),")
	assert.Contains(t, got, "PRIMARY KEY (order_id, line_no)")
	assert.Contains(t, got, "FOREIGN KEY (order_id) REFERENCES orders (id)")
	assert.NotContains(t, got, "sqlite_autoindex")
	assert.NotContains(t, got, "ALTER TABLE")
}

func TestBuilder_Script(t *testing.T) {
	b, svc := newShopBuilder(t)
	ctx := context.Background()

	names := []schema.QualifiedName{
		svc.ParseName("order_line"),
		svc.ParseName("customer"),
		svc.ParseName("orders"),
	}
	got, err := b.Script(ctx, names, Options{IncludeDrop: true, IncludeFK: true})
	require.NoError(t, err)

	assertOrder(t, got,
		"DROP TABLE order_line;",
		"DROP TABLE orders;",
		"DROP TABLE customer;",
		"CREATE TABLE customer",
		"CREATE TABLE orders",
		"CREATE TABLE order_line",
	)
	assert.Contains(t, got, "FOREIGN KEY (customer_id) REFERENCES customer (id) ON DELETE CASCADE")
}

func TestBuilder_IndexAndForeignKeySource(t *testing.T) {
	b, svc := newShopBuilder(t)
	ctx := context.Background()

	idx, err := b.IndexSource(ctx, svc.ParseName("orders"))
	require.NoError(t, err)
	assert.Equal(t, "CREATE INDEX ix_orders_customer ON orders (customer_id);\n", idx)

	fks, err := b.ForeignKeySource(ctx, svc.ParseName("order_line"))
	require.NoError(t, err)
	assert.Contains(t, fks, "ALTER TABLE order_line\n")
	assert.Contains(t, fks, "FOREIGN KEY (order_id)\n  REFERENCES orders (id)")
}

func TestBuilder_NotFound(t *testing.T) {
	b, svc := newShopBuilder(t)

	_, err := b.TableSource(context.Background(), svc.ParseName("nope"), DefaultOptions())
	assert.ErrorIs(t, err, metadata.ErrNotFound)
}

type failingSource struct {
	settings *capability.Settings
}

func (f failingSource) TableDefinition(context.Context, schema.QualifiedName) (*schema.Table, error) {
	return &schema.Table{
		Name:    schema.NewName("", "", "t", "TABLE"),
		Columns: []schema.Column{{Name: "a", DbmsType: "int", Nullable: true}},
	}, nil
}

func (f failingSource) Query(context.Context, string, ...any) ([][]string, error) {
	return nil, errors.New("boom")
}

func (f failingSource) Settings() *capability.Settings { return f.settings }
func (f failingSource) Naming() schema.Naming          { return pgNaming() }

func TestBuilder_RetrieveErrorFallsBack(t *testing.T) {
	src := failingSource{settings: newSettings(t, dialect.Generic, map[string]string{
		"workbench.db.generic.ddl.table.retrieve.sql": "SHOW CREATE TABLE %fq_table_name%",
	})}
	b := NewBuilder(src, nil)

	got, err := b.TableSource(context.Background(), schema.NewName("", "", "t", "TABLE"), DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, "CREATE TABLE t\n(\n  a int\n);\n", got)

	mysql := NewBuilder(failingSource{settings: newSettings(t, dialect.MySQL, nil)}, nil)
	got, err = mysql.TableSource(context.Background(), schema.NewName("", "", "t", "TABLE"), DefaultOptions())
	require.NoError(t, err)
	assert.Contains(t, got, "CREATE TABLE t")
}

func TestBuilder_RetrieveEmptyFallsBack(t *testing.T) {
	src := failingSource{settings: newSettings(t, dialect.Generic, map[string]string{
		"workbench.db.generic.ddl.table.retrieve.sql": "SELECT 1 WHERE 1 = 0",
	})}
	b := NewBuilder(emptySource{src}, nil)

	got, err := b.TableSource(context.Background(), schema.NewName("", "", "t", "TABLE"), DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, "CREATE TABLE t\n(\n  a int\n);\n", got)
}

type emptySource struct{ failingSource }

func (emptySource) Query(context.Context, string, ...any) ([][]string, error) { return nil, nil }
