package metadata

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hurou927/dbmeta/internal/provider"
	"github.com/hurou927/dbmeta/internal/schema"
)

func TestFindTable_RetriesWithRawCase(t *testing.T) {
	p := &fakeProvider{
		product: provider.ProductInfo{StoresCase: "upper", CurrentSchema: "APP"},
		objects: []provider.ObjectRow{
			{Schema: "APP", Name: "Orders", Type: "TABLE"},
		},
	}
	svc := newService(t, p)

	found, err := svc.FindTable(context.Background(), schema.NewName("", "", "Orders", ""))
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "Orders", found.Name)
	require.Len(t, p.objectCalls, 2)
	assert.Equal(t, "ORDERS", p.objectCalls[0].Name)
	assert.Equal(t, "Orders", p.objectCalls[1].Name)
}

func TestFindTable_ExactMatchDisambiguates(t *testing.T) {
	p := &fakeProvider{
		product: provider.ProductInfo{StoresCase: "mixed", SearchEscape: `\`},
		objects: []provider.ObjectRow{
			{Schema: "app", Name: "order_line", Type: "TABLE"},
			{Schema: "app", Name: "order_line", Type: "VIEW"},
		},
	}
	svc := newService(t, p)

	found, err := svc.FindObject(context.Background(), schema.NewName("", "app", "order_line", ""), "view")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "VIEW", found.Type)
	assert.Equal(t, `order\_line`, p.objectCalls[0].Name)
}

func TestFindTable_AmbiguousIsNotFound(t *testing.T) {
	p := &fakeProvider{
		product: provider.ProductInfo{StoresCase: "mixed"},
		objects: []provider.ObjectRow{
			{Schema: "hr", Name: "Foo", Type: "TABLE"},
			{Schema: "sales", Name: "Foo", Type: "TABLE"},
		},
	}
	svc := newService(t, p)

	// No current schema: both rows match and neither wins.
	found, err := svc.FindTable(context.Background(), schema.NewName("", "", "Foo", ""))
	require.NoError(t, err)
	assert.Nil(t, found)

	found, err = svc.FindTable(context.Background(), schema.NewName("", "", "Bar", ""))
	require.NoError(t, err)
	assert.Nil(t, found)

	found, err = svc.FindTable(context.Background(), schema.NewName("", "hr", "Foo", ""))
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "hr", found.Schema)
}

func TestFindTable_ProviderError(t *testing.T) {
	p := &fakeProvider{objectsErr: errors.New("broken pipe")}
	svc := newService(t, p)

	_, err := svc.FindTable(context.Background(), schema.NewName("", "", "orders", ""))
	assert.ErrorContains(t, err, "broken pipe")
}

func TestTableColumns(t *testing.T) {
	p := &fakeProvider{
		product: provider.ProductInfo{StoresCase: "lower", CurrentSchema: "public"},
		objects: []provider.ObjectRow{{Schema: "public", Name: "orders", Type: "TABLE"}},
		columns: map[string][]provider.ColumnRow{
			"orders": {
				{Name: "total", TypeCode: schema.TypeDecimal, TypeName: "numeric", Size: 10, Digits: 2, Nullable: true, Position: 2, Default: "0"},
				{Name: "id", TypeCode: schema.TypeInteger, TypeName: "int4", Position: 1},
			},
		},
		pks: map[string][]provider.PrimaryKeyRow{"orders": {{Name: "orders_pkey", Column: "id", Seq: 1}}},
	}
	svc := newService(t, p)

	cols, err := svc.TableColumns(context.Background(), schema.NewName("", "", "ORDERS", ""))
	require.NoError(t, err)
	require.Len(t, cols, 2)
	assert.Equal(t, "id", cols[0].Name)
	assert.True(t, cols[0].IsPK)
	assert.Equal(t, "numeric(10,2)", cols[1].DisplayType())
	assert.False(t, cols[1].IsPK)
	assert.Equal(t, "0", cols[1].Default)
}

func TestTableColumns_Errors(t *testing.T) {
	p := &fakeProvider{
		product: provider.ProductInfo{StoresCase: "mixed"},
		objects: []provider.ObjectRow{{Name: "orders", Type: "TABLE"}},
	}
	svc := newService(t, p)

	_, err := svc.TableColumns(context.Background(), schema.NewName("", "", "missing", ""))
	assert.ErrorIs(t, err, ErrNotFound)

	p.columnsErr = errors.New("permission denied")
	_, err = svc.TableColumns(context.Background(), schema.NewName("", "", "orders", ""))
	assert.ErrorContains(t, err, "reading columns of orders")
	assert.ErrorContains(t, err, "permission denied")
}

func TestMarkPrimaryKeyIndex(t *testing.T) {
	idx := func(name string, unique bool, cols ...string) schema.Index {
		i := schema.Index{Name: name, Unique: unique}
		for _, c := range cols {
			i.Columns = append(i.Columns, schema.IndexColumn{Column: c})
		}
		return i
	}

	t.Run("name wins over columns", func(t *testing.T) {
		indexes := []schema.Index{idx("ux_a", true, "id"), idx("pk_orders", true, "id"), idx("ux_b", true, "id")}
		got := MarkPrimaryKeyIndex(&schema.PkDefinition{Name: "pk_orders", Columns: []string{"id"}}, indexes)
		assert.Equal(t, 1, got)
		assertMarked(t, indexes, "pk_orders")
	})

	t.Run("index name before constraint name", func(t *testing.T) {
		indexes := []schema.Index{idx("pk_orders", true, "id"), idx("sys_idx_1", true, "id")}
		MarkPrimaryKeyIndex(&schema.PkDefinition{Name: "pk_orders", IndexName: "SYS_IDX_1", Columns: []string{"id"}}, indexes)
		assertMarked(t, indexes, "sys_idx_1")
	})

	t.Run("columns mark exactly one", func(t *testing.T) {
		indexes := []schema.Index{idx("ix_plain", false, "a", "b"), idx("ux_1", true, "a", "b"), idx("ux_2", true, "A", "B")}
		MarkPrimaryKeyIndex(&schema.PkDefinition{Columns: []string{"a", "b"}}, indexes)
		assertMarked(t, indexes, "ux_1")
	})

	t.Run("stale marks are cleared", func(t *testing.T) {
		indexes := []schema.Index{idx("ux_1", true, "a"), idx("ux_2", true, "b")}
		indexes[1].PrimaryKeyIndex = true
		assert.Equal(t, -1, MarkPrimaryKeyIndex(&schema.PkDefinition{Columns: []string{"c"}}, indexes))
		assertMarked(t, indexes)
	})

	t.Run("no primary key", func(t *testing.T) {
		indexes := []schema.Index{idx("ux_1", true, "a")}
		assert.Equal(t, -1, MarkPrimaryKeyIndex(nil, indexes))
		assertMarked(t, indexes)
	})
}

func assertMarked(t *testing.T, indexes []schema.Index, want ...string) {
	t.Helper()
	var marked []string
	for _, i := range indexes {
		if i.PrimaryKeyIndex {
			marked = append(marked, i.Name)
		}
	}
	assert.Equal(t, want, marked)
}

func TestIndexes_GroupedAndMarked(t *testing.T) {
	p := &fakeProvider{
		indexes: map[string][]provider.IndexRow{
			"orders": {
				{IndexName: "ix_orders_customer", NonUnique: true, Ordinal: 2, Column: "created_at", Direction: "DESC"},
				{IndexName: "ix_orders_customer", NonUnique: true, Ordinal: 1, Column: "customer_id", Direction: "ASC"},
				{IndexName: "orders_pkey", Ordinal: 1, Column: "id", Type: "btree"},
				{IndexName: "orders_id_key", Ordinal: 1, Column: "id", ConstraintName: "orders_id_key"},
			},
		},
		pks: map[string][]provider.PrimaryKeyRow{"orders": {{Name: "orders_pkey", Column: "id", Seq: 1}}},
	}
	svc := newService(t, p)

	got := svc.Indexes(context.Background(), schema.NewName("", "public", "orders", "TABLE"))
	require.Len(t, got, 3)

	assert.Equal(t, "ix_orders_customer", got[0].Name)
	assert.False(t, got[0].Unique)
	assert.Equal(t, []string{"customer_id", "created_at"}, got[0].ColumnNames())
	assert.Equal(t, "DESC", got[0].Columns[1].Direction)
	assert.Equal(t, "orders", got[0].Table.Name)

	assert.Equal(t, "orders_id_key", got[1].Name)
	assert.Equal(t, "orders_id_key", got[1].UniqueConstraintName)
	assert.False(t, got[1].PrimaryKeyIndex)

	assert.Equal(t, "orders_pkey", got[2].Name)
	assert.True(t, got[2].PrimaryKeyIndex)
}

func TestIndexes_Unsupported(t *testing.T) {
	svc := newService(t, &fakeProvider{})
	assert.Nil(t, svc.Indexes(context.Background(), schema.NewName("", "", "orders", "TABLE")))
}

func TestForeignKeys_Grouped(t *testing.T) {
	p := &fakeProvider{
		imported: map[string][]provider.ForeignKeyRow{
			"order_line": {
				{Name: "fk_line_order", PKSchema: "app", PKTable: "orders", PKColumn: "region", FKSchema: "app", FKTable: "order_line", FKColumn: "order_region", Seq: 2, DeleteRule: "CASCADE"},
				{Name: "fk_line_order", PKSchema: "app", PKTable: "orders", PKColumn: "id", FKSchema: "app", FKTable: "order_line", FKColumn: "order_id", Seq: 1, DeleteRule: "CASCADE"},
				{Name: "fk_line_product", PKSchema: "app", PKTable: "product", PKColumn: "id", FKSchema: "app", FKTable: "order_line", FKColumn: "product_id", Seq: 1, UpdateRule: "SET NULL", Deferrability: schema.InitiallyDeferred},
			},
		},
		exported: map[string][]provider.ForeignKeyRow{
			"orders": {
				{Name: "fk_line_order", PKSchema: "app", PKTable: "orders", PKColumn: "id", FKSchema: "app", FKTable: "order_line", FKColumn: "order_id", Seq: 1},
			},
		},
	}
	svc := newService(t, p)
	ctx := context.Background()

	fks := svc.ForeignKeys(ctx, schema.NewName("", "app", "order_line", "TABLE"))
	require.Len(t, fks, 2)
	assert.Equal(t, "fk_line_order", fks[0].Name)
	assert.Equal(t, []string{"order_id", "order_region"}, fks[0].ChildColumns)
	assert.Equal(t, []string{"id", "region"}, fks[0].ParentColumns)
	assert.Equal(t, "app.orders", fks[0].ParentKey())
	assert.Equal(t, schema.RuleCascade, fks[0].DeleteRule)
	assert.Equal(t, schema.RuleSetNull, fks[1].UpdateRule)
	assert.Equal(t, schema.InitiallyDeferred, fks[1].Deferrability)

	refs := svc.ReferencingKeys(ctx, schema.NewName("", "app", "orders", "TABLE"))
	require.Len(t, refs, 1)
	assert.Equal(t, "app.order_line", refs[0].ChildKey())
}

func TestTableDefinition(t *testing.T) {
	p := &fakeProvider{
		product: provider.ProductInfo{StoresCase: "lower", CurrentSchema: "app"},
		objects: []provider.ObjectRow{{Schema: "app", Name: "orders", Type: "TABLE", Remarks: "orders placed"}},
		columns: map[string][]provider.ColumnRow{
			"orders": {{Name: "id", TypeCode: schema.TypeInteger, TypeName: "integer", Position: 1}},
		},
		indexes: map[string][]provider.IndexRow{"orders": {{IndexName: "orders_pkey", Column: "id", Ordinal: 1}}},
		pks:     map[string][]provider.PrimaryKeyRow{"orders": {{Name: "orders_pkey", Column: "id", Seq: 1}}},
		grants:  map[string][]provider.GrantRow{"orders": {{Grantee: "reporting", Privilege: "SELECT"}}},
	}
	svc := newService(t, p)

	tbl, err := svc.TableDefinition(context.Background(), schema.NewName("", "", "orders", ""))
	require.NoError(t, err)

	assert.Equal(t, "app.orders", tbl.FullName())
	assert.Equal(t, "orders placed", tbl.Name.Comment)
	require.NotNil(t, tbl.PrimaryKey())
	assert.Equal(t, "orders_pkey", tbl.PrimaryKey().IndexName)
	assert.Equal(t, []string{"id"}, tbl.PKColumnNames())
	assert.True(t, tbl.Columns[0].IsPK)
	require.Len(t, tbl.Indexes, 1)
	assert.True(t, tbl.Indexes[0].PrimaryKeyIndex)
	assert.Equal(t, []schema.Grant{{Grantee: "reporting", Privilege: "SELECT"}}, tbl.Grants)
	assert.Empty(t, tbl.Constraints)

	_, err = svc.TableDefinition(context.Background(), schema.NewName("", "", "nope", ""))
	assert.ErrorIs(t, err, ErrNotFound)
}
