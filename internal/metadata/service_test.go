package metadata

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hurou927/dbmeta/internal/dialect"
	"github.com/hurou927/dbmeta/internal/provider"
	"github.com/hurou927/dbmeta/internal/schema"
)

func TestNew_DialectAndVersion(t *testing.T) {
	p := &fakeProvider{product: provider.ProductInfo{Name: "PostgreSQL", Version: "16.2", Major: 16, Minor: 2}}
	svc := newService(t, p)
	assert.Equal(t, dialect.PostgreSQL, svc.Dialect())
	assert.Equal(t, dialect.Version{Major: 16, Minor: 2}, svc.Settings().Version())

	p = &fakeProvider{product: provider.ProductInfo{Name: "Acme DB", Version: "Acme 3.1 build 7"}}
	svc = newService(t, p)
	assert.Equal(t, dialect.ID("acme_db"), svc.Dialect())
	assert.Equal(t, dialect.Version{Major: 3, Minor: 1}, svc.Settings().Version())

	svc = newService(t, p, WithDialect(dialect.MySQL), WithVersion(dialect.Version{Major: 8}))
	assert.Equal(t, dialect.MySQL, svc.Dialect())
	assert.Equal(t, 8, svc.Settings().Version().Major)
}

func TestNew_ProductFailureDegrades(t *testing.T) {
	p := &fakeProvider{productErr: errors.New("connection reset")}
	svc := newService(t, p)
	assert.Equal(t, dialect.Generic, svc.Dialect())
	assert.Equal(t, `"`, svc.Naming().QuoteOpen)
}

func TestNew_NilArguments(t *testing.T) {
	_, err := New(context.Background(), nil, newRegistry(t))
	assert.Error(t, err)
	_, err = New(context.Background(), &fakeProvider{}, nil)
	assert.Error(t, err)
}

func TestNew_QuoteCharPrecedence(t *testing.T) {
	reg := newRegistry(t)

	// Provider value is used when no capability is set.
	p := &fakeProvider{product: provider.ProductInfo{Name: "Acme", IdentifierQuote: "`"}}
	assert.Equal(t, "`", newServiceWithRegistry(t, p, reg).Naming().QuoteOpen)

	// A capability override wins over the provider.
	reg.Set("workbench.db.acme.quote.char", "[")
	n := newServiceWithRegistry(t, p, reg).Naming()
	assert.Equal(t, "[", n.QuoteOpen)
	assert.Equal(t, "]", n.QuoteClose)

	// Blank on both sides falls back to double quotes.
	reg.Unset("workbench.db.acme.quote.char")
	p.product.IdentifierQuote = " "
	assert.Equal(t, `"`, newServiceWithRegistry(t, p, reg).Naming().QuoteOpen)
}

func TestNew_NamingFromCapabilities(t *testing.T) {
	p := &fakeProvider{product: provider.ProductInfo{Name: "MySQL", IdentifierQuote: `"`, CurrentCatalog: "shop"}}
	n := newService(t, p).Naming()
	assert.Equal(t, "`", n.QuoteOpen)
	assert.Equal(t, schema.CaseMixed, n.StoreCase)
	assert.True(t, n.SupportsCatalogs)
	assert.False(t, n.SupportsSchemas)
	assert.Equal(t, "shop", n.CurrentCatalog)

	p = &fakeProvider{product: provider.ProductInfo{Name: "PostgreSQL", StoresCase: "upper"}}
	n = newService(t, p).Naming()
	assert.Equal(t, schema.CaseLower, n.StoreCase)
	assert.Contains(t, n.IgnoreSchemas, "public")
}

func TestService_CurrentSchema(t *testing.T) {
	p := &fakeProvider{product: provider.ProductInfo{CurrentSchema: "app", CurrentCatalog: "db"}}
	svc := newService(t, p)
	assert.Equal(t, "app", svc.CurrentSchema())
	assert.Equal(t, "db", svc.CurrentCatalog())

	svc.SetCurrentSchema("audit")
	svc.SetCurrentCatalog("other")
	assert.Equal(t, "audit", svc.CurrentSchema())
	assert.Equal(t, "other", svc.Naming().CurrentCatalog)
}

func TestService_Keywords(t *testing.T) {
	p := &fakeProvider{product: provider.ProductInfo{Name: "PostgreSQL", Keywords: []string{"analyse"}}}
	svc := newService(t, p)

	assert.True(t, svc.IsReservedWord("order"))
	assert.True(t, svc.IsReservedWord("ANALYSE"))
	assert.True(t, svc.IsReservedWord("returning"), "capability reserved.words")
	assert.False(t, svc.IsReservedWord("customer"))

	assert.True(t, svc.IsKeyword("cascade"))
	assert.True(t, svc.IsKeyword("select"))
	assert.False(t, svc.IsKeyword("customer"))

	assert.True(t, svc.NeedsQuotes("order"))
	assert.True(t, svc.NeedsQuotes("Customer"))
	assert.False(t, svc.NeedsQuotes("customer"))
	assert.Equal(t, `"order"`, svc.QuoteObjectName("order"))
	assert.Equal(t, `"order"`, svc.QuoteObjectName(svc.QuoteObjectName("order")))
}

func TestService_AdjustCase(t *testing.T) {
	p := &fakeProvider{product: provider.ProductInfo{StoresCase: "upper"}}
	svc := newService(t, p)

	q := svc.ParseName(`app."MixedCase"`)
	adjusted := svc.AdjustCase(q)
	assert.Equal(t, "APP", adjusted.Schema)
	assert.Equal(t, "MixedCase", adjusted.Name)
	assert.Equal(t, "app", q.Schema, "input is not modified")
	assert.Equal(t, adjusted, svc.AdjustCase(adjusted))
	assert.Equal(t, `APP."MixedCase"`, svc.Render(adjusted))
}

func TestService_CloseRunsHooksOnce(t *testing.T) {
	p := &fakeProvider{}
	svc := newService(t, p)

	calls := 0
	svc.OnClose(func() { calls++ })
	require.NoError(t, svc.Close())
	require.NoError(t, svc.Close())
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, p.closed)
}

func TestService_SchemasDegrade(t *testing.T) {
	p := &fakeProvider{}
	svc := newService(t, p)
	assert.Empty(t, svc.Schemas(context.Background()))
	assert.Empty(t, svc.Catalogs(context.Background()))

	p.schemas = []string{"sales", "app"}
	assert.Equal(t, []string{"app", "sales"}, svc.Schemas(context.Background()))
}
