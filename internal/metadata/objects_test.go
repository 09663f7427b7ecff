package metadata

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hurou927/dbmeta/internal/provider"
	"github.com/hurou927/dbmeta/internal/schema"
)

func TestCleanPattern(t *testing.T) {
	upper := schema.DefaultNaming()
	mixed := schema.DefaultNaming()
	mixed.StoreCase = schema.CaseMixed

	tests := []struct {
		name    string
		naming  schema.Naming
		pattern string
		escape  string
		want    string
	}{
		{"empty", upper, "", `\`, ""},
		{"star", upper, "*", `\`, ""},
		{"percent", upper, "%", `\`, ""},
		{"fold case", upper, "orders", `\`, "ORDERS"},
		{"star wildcard", upper, "ord*", `\`, "ORD%"},
		{"escape underscore", upper, "order_line", `\`, `ORDER\_LINE`},
		{"no escape with wildcard", upper, "order_*", `\`, "ORDER_%"},
		{"no escape without escape char", upper, "order_line", "", "ORDER_LINE"},
		{"quoted keeps case", upper, `"Order_Line"`, `\`, `Order\_Line`},
		{"mixed case untouched", mixed, "Foo", `\`, "Foo"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cleanPattern(tt.naming, tt.pattern, tt.escape))
		})
	}
}

func TestCleanTypes(t *testing.T) {
	assert.Nil(t, cleanTypes(nil))
	assert.Nil(t, cleanTypes([]string{"table", "*"}))
	assert.Equal(t, []string{"TABLE", "VIEW"}, cleanTypes([]string{" table", "VIEW", "Table", ""}))
}

func TestListObjects_PatternsReachProvider(t *testing.T) {
	p := &fakeProvider{product: provider.ProductInfo{StoresCase: "upper", SearchEscape: `\`}}
	svc := newService(t, p)

	svc.ListObjects(context.Background(), "*", "app", "order_line", []string{"table"})
	require.Len(t, p.objectCalls, 1)
	call := p.objectCalls[0]
	assert.Empty(t, call.Catalog)
	assert.Equal(t, "APP", call.Schema)
	assert.Equal(t, `ORDER\_LINE`, call.Name)
	// The vendor spelling of TABLE is requested as well.
	assert.Equal(t, []string{"TABLE", "BASE TABLE"}, call.Types)
}

func TestListObjects_WildcardsDisabled(t *testing.T) {
	reg := newRegistry(t)
	reg.Set("workbench.db.generic.metadata.wildcards", "false")
	p := &fakeProvider{product: provider.ProductInfo{StoresCase: "mixed", SearchEscape: `\`}}
	svc := newServiceWithRegistry(t, p, reg)

	svc.ListObjects(context.Background(), "", "", "order_line", nil)
	require.Len(t, p.objectCalls, 1)
	assert.Equal(t, "order_line", p.objectCalls[0].Name)
}

func TestListObjects_AlternateAndIndexTypes(t *testing.T) {
	p := &fakeProvider{
		product: provider.ProductInfo{StoresCase: "mixed"},
		objects: []provider.ObjectRow{
			{Schema: "app", Name: "orders", Type: "BASE TABLE", Remarks: "all orders"},
			{Schema: "app", Name: "orders_pk", Type: "INDEX"},
			{Schema: "app", Name: "v_orders", Type: "VIEW"},
		},
	}
	svc := newService(t, p)

	got := svc.ListObjects(context.Background(), "", "", "", nil)
	assert.Equal(t, []string{"TABLE:app.orders", "VIEW:app.v_orders"}, names(got))
	assert.Equal(t, "all orders", got[0].Comment)

	got = svc.ListObjects(context.Background(), "", "", "", []string{"TABLE"})
	assert.Equal(t, []string{"TABLE:app.orders"}, names(got))
}

func TestListObjects_NativeTypesCleaned(t *testing.T) {
	p := &fakeProvider{product: provider.ProductInfo{TableTypes: []string{"TABLE", "VIEW"}}}
	svc := newService(t, p)

	svc.ListObjects(context.Background(), "", "", "", []string{"TABLE", "INDEX", "FOO"})
	require.Len(t, p.objectCalls, 1)
	assert.Equal(t, []string{"TABLE"}, p.objectCalls[0].Types)

	// Nothing the provider knows: no call at all.
	svc.ListObjects(context.Background(), "", "", "", []string{"FOO"})
	assert.Len(t, p.objectCalls, 1)
}

// recorder is a plugin that records when each stage runs.
type recorder struct {
	log *[]string
}

func (r recorder) Sequences(context.Context, Env, Filter) ([]schema.QualifiedName, error) {
	*r.log = append(*r.log, "sequences")
	return []schema.QualifiedName{schema.NewName("", "app", "seq_orders", TypeSequence)}, nil
}

func (r recorder) Synonyms(context.Context, Env, Filter) ([]schema.QualifiedName, error) {
	*r.log = append(*r.log, "synonyms")
	return []schema.QualifiedName{schema.NewName("", "app", "syn_orders", TypeSynonym)}, nil
}

func (r recorder) Append(context.Context, Env, Filter) ([]schema.QualifiedName, error) {
	*r.log = append(*r.log, "appender")
	return []schema.QualifiedName{
		schema.NewName("", "app", "orders", TypeTable),
		schema.NewName("", "app", "ext_orders", TypeTable),
	}, nil
}

func (r recorder) Types() []string { return []string{TypeDomain} }

func (r recorder) Extend(context.Context, Env, Filter) ([]schema.QualifiedName, error) {
	*r.log = append(*r.log, "extender")
	return []schema.QualifiedName{schema.NewName("", "app", "money", TypeDomain)}, nil
}

func (r recorder) Enhance(_ context.Context, _ Env, objects []schema.QualifiedName) error {
	*r.log = append(*r.log, "enhancer")
	for i := range objects {
		if objects[i].Name == "ext_orders" {
			objects[i].Type = TypeMaterializedView
		}
	}
	return nil
}

func (r recorder) Clean(_ context.Context, _ Env, objects []schema.QualifiedName) ([]schema.QualifiedName, error) {
	*r.log = append(*r.log, "cleaner")
	return slices.DeleteFunc(objects, func(q schema.QualifiedName) bool { return q.Name == "tmp_orders" }), nil
}

type recordingProvider struct {
	*fakeProvider
	log *[]string
}

func (p recordingProvider) Objects(ctx context.Context, catalog, schemaPattern, namePattern string, types []string) ([]provider.ObjectRow, error) {
	*p.log = append(*p.log, "native")
	return p.fakeProvider.Objects(ctx, catalog, schemaPattern, namePattern, types)
}

func TestListObjects_PipelineOrder(t *testing.T) {
	var log []string
	rec := recorder{log: &log}
	fake := &fakeProvider{
		product: provider.ProductInfo{StoresCase: "mixed"},
		objects: []provider.ObjectRow{
			{Schema: "app", Name: "orders", Type: "TABLE"},
			{Schema: "app", Name: "tmp_orders", Type: "TABLE"},
			{Schema: "app", Name: "seq_orders", Type: "SEQUENCE"},
		},
	}
	plugins := Plugins{
		Sequences: rec,
		Synonyms:  rec,
		Appenders: []Appender{rec},
		Extenders: []Extender{rec},
		Enhancer:  rec,
		Cleaners:  []Cleaner{rec},
	}
	svc, err := New(context.Background(), recordingProvider{fake, &log}, newRegistry(t), WithPlugins(plugins))
	require.NoError(t, err)

	got := svc.ListObjects(context.Background(), "", "", "", nil)

	assert.Equal(t, []string{"native", "sequences", "synonyms", "appender", "extender", "enhancer", "cleaner"}, log)
	assert.Equal(t, []string{
		"DOMAIN:app.money",
		"MATERIALIZED VIEW:app.ext_orders",
		"SEQUENCE:app.seq_orders",
		"SYNONYM:app.syn_orders",
		"TABLE:app.orders",
	}, names(got))
}

func TestListObjects_ExtenderOnlySkipsProvider(t *testing.T) {
	var log []string
	rec := recorder{log: &log}
	p := &fakeProvider{objects: []provider.ObjectRow{{Name: "t", Type: "TABLE"}}}
	svc := newService(t, p, WithPlugins(Plugins{Sequences: rec, Extenders: []Extender{rec}}))

	got := svc.ListObjects(context.Background(), "", "", "", []string{"sequence", "domain"})
	assert.Empty(t, p.objectCalls)
	assert.Equal(t, []string{"DOMAIN:app.money", "SEQUENCE:app.seq_orders"}, names(got))

	// Asking for a native type as well brings the provider back in.
	svc.ListObjects(context.Background(), "", "", "", []string{"sequence", "table"})
	require.Len(t, p.objectCalls, 1)
	assert.Equal(t, []string{"TABLE", "BASE TABLE"}, p.objectCalls[0].Types)
}

func TestListObjects_DegradesOnFailure(t *testing.T) {
	var log []string
	rec := recorder{log: &log}
	p := &fakeProvider{objectsErr: errors.New("timeout")}
	svc := newService(t, p, WithPlugins(Plugins{Extenders: []Extender{rec}}))

	got := svc.ListObjects(context.Background(), "", "", "", nil)
	assert.Equal(t, []string{"DOMAIN:app.money"}, names(got))
}

func TestListObjects_FailingPluginIsSkipped(t *testing.T) {
	p := &fakeProvider{
		product:  provider.ProductInfo{Name: "PostgreSQL", Major: 16},
		objects:  []provider.ObjectRow{{Catalog: "db", Schema: "public", Name: "orders", Type: "TABLE"}},
		queryErr: errors.New("permission denied"),
	}
	svc := newService(t, p)

	got := svc.ListObjects(context.Background(), "", "", "", nil)
	assert.Equal(t, []string{"TABLE:db.public.orders"}, names(got))
}

func TestListObjects_Sorted(t *testing.T) {
	p := &fakeProvider{
		product: provider.ProductInfo{StoresCase: "mixed"},
		objects: []provider.ObjectRow{
			{Schema: "b", Name: "z", Type: "VIEW"},
			{Schema: "b", Name: "a", Type: "TABLE"},
			{Schema: "a", Name: "z", Type: "TABLE"},
		},
	}
	svc := newService(t, p)
	got := svc.ListObjects(context.Background(), "", "", "", nil)
	assert.Equal(t, []string{"TABLE:a.z", "TABLE:b.a", "VIEW:b.z"}, names(got))
}

func TestListObjects_TwoFooTablesMixedCase(t *testing.T) {
	p := &fakeProvider{
		product: provider.ProductInfo{StoresCase: "mixed", CurrentSchema: "sales"},
		objects: []provider.ObjectRow{
			{Schema: "hr", Name: "Foo", Type: "TABLE"},
			{Schema: "sales", Name: "Foo", Type: "TABLE"},
		},
	}
	svc := newService(t, p)

	got := svc.ListObjects(context.Background(), "", "", "Foo", []string{"TABLE"})
	require.Len(t, got, 2)
	assert.False(t, got[0].Equal(got[1]))

	found, err := svc.FindTable(context.Background(), schema.NewName("", "", "Foo", ""))
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "sales", found.Schema)
	assert.Equal(t, "Foo", found.Name)
}
