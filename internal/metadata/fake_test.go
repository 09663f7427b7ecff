package metadata

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hurou927/dbmeta/internal/capability"
	"github.com/hurou927/dbmeta/internal/provider"
	"github.com/hurou927/dbmeta/internal/schema"
	"github.com/hurou927/dbmeta/internal/testutil"
)

type objectCall struct {
	Catalog string
	Schema  string
	Name    string
	Types   []string
}

// fakeProvider serves canned rows. Per-table maps are keyed by table name.
type fakeProvider struct {
	mu sync.Mutex

	product    provider.ProductInfo
	productErr error

	objects    []provider.ObjectRow
	objectsErr error
	columns    map[string][]provider.ColumnRow
	columnsErr error
	indexes    map[string][]provider.IndexRow
	pks        map[string][]provider.PrimaryKeyRow
	imported   map[string][]provider.ForeignKeyRow
	exported   map[string][]provider.ForeignKeyRow
	grants     map[string][]provider.GrantRow
	schemas    []string

	// queryRows answers Query calls whose text contains the key.
	queryRows map[string][][]string
	queryErr  error

	objectCalls []objectCall
	queries     []string
	closed      int
}

func (f *fakeProvider) Product(context.Context) (provider.ProductInfo, error) {
	return f.product, f.productErr
}

func (f *fakeProvider) Objects(_ context.Context, catalog, schemaPattern, namePattern string, types []string) ([]provider.ObjectRow, error) {
	f.mu.Lock()
	f.objectCalls = append(f.objectCalls, objectCall{catalog, schemaPattern, namePattern, types})
	f.mu.Unlock()
	if f.objectsErr != nil {
		return nil, f.objectsErr
	}
	var out []provider.ObjectRow
	for _, o := range f.objects {
		if !like(schemaPattern, o.Schema, f.product.SearchEscape) || !like(namePattern, o.Name, f.product.SearchEscape) {
			continue
		}
		if !provider.MatchType(types, o.Type) {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

func (f *fakeProvider) Columns(_ context.Context, t schema.QualifiedName) ([]provider.ColumnRow, error) {
	if f.columnsErr != nil {
		return nil, f.columnsErr
	}
	return f.columns[t.Name], nil
}

func (f *fakeProvider) Indexes(_ context.Context, t schema.QualifiedName) ([]provider.IndexRow, error) {
	if f.indexes == nil {
		return nil, fmt.Errorf("indexes: %w", provider.ErrUnsupported)
	}
	return f.indexes[t.Name], nil
}

func (f *fakeProvider) PrimaryKeys(_ context.Context, t schema.QualifiedName) ([]provider.PrimaryKeyRow, error) {
	return f.pks[t.Name], nil
}

func (f *fakeProvider) ImportedKeys(_ context.Context, t schema.QualifiedName) ([]provider.ForeignKeyRow, error) {
	return f.imported[t.Name], nil
}

func (f *fakeProvider) ExportedKeys(_ context.Context, t schema.QualifiedName) ([]provider.ForeignKeyRow, error) {
	return f.exported[t.Name], nil
}

func (f *fakeProvider) Grants(_ context.Context, t schema.QualifiedName) ([]provider.GrantRow, error) {
	if f.grants == nil {
		return nil, fmt.Errorf("grants: %w", provider.ErrUnsupported)
	}
	return f.grants[t.Name], nil
}

func (f *fakeProvider) Constraints(context.Context, schema.QualifiedName) ([]provider.ConstraintRow, error) {
	return nil, fmt.Errorf("constraints: %w", provider.ErrUnsupported)
}

func (f *fakeProvider) Schemas(context.Context) ([]string, error) {
	if f.schemas == nil {
		return nil, fmt.Errorf("schemas: %w", provider.ErrUnsupported)
	}
	return append([]string(nil), f.schemas...), nil
}

func (f *fakeProvider) Catalogs(context.Context) ([]string, error) {
	return nil, fmt.Errorf("catalogs: %w", provider.ErrUnsupported)
}

func (f *fakeProvider) Query(_ context.Context, sql string, _ ...any) ([][]string, error) {
	f.mu.Lock()
	f.queries = append(f.queries, sql)
	f.mu.Unlock()
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	for key, rows := range f.queryRows {
		if strings.Contains(sql, key) {
			return rows, nil
		}
	}
	return nil, nil
}

func (f *fakeProvider) Close() error {
	f.closed++
	return nil
}

// like matches a LIKE pattern with % and _ wildcards and an optional
// escape character.
func like(pattern, value, escape string) bool {
	if pattern == "" || pattern == "%" {
		return true
	}
	return likeRunes([]rune(pattern), []rune(value), escape)
}

func likeRunes(p, v []rune, escape string) bool {
	for len(p) > 0 {
		switch {
		case escape != "" && string(p[0]) == escape && len(p) > 1:
			if len(v) == 0 || v[0] != p[1] {
				return false
			}
			p, v = p[2:], v[1:]
		case p[0] == '%':
			for i := 0; i <= len(v); i++ {
				if likeRunes(p[1:], v[i:], escape) {
					return true
				}
			}
			return false
		case p[0] == '_':
			if len(v) == 0 {
				return false
			}
			p, v = p[1:], v[1:]
		default:
			if len(v) == 0 || p[0] != v[0] {
				return false
			}
			p, v = p[1:], v[1:]
		}
	}
	return len(v) == 0
}

func newRegistry(t *testing.T) *capability.Registry {
	t.Helper()
	reg, err := capability.New(capability.WithEnvPrefix(""))
	require.NoError(t, err)
	return reg
}

func newService(t *testing.T, p *fakeProvider, opts ...Option) *Service {
	t.Helper()
	return newServiceWithRegistry(t, p, newRegistry(t), opts...)
}

func newServiceWithRegistry(t *testing.T, p *fakeProvider, reg *capability.Registry, opts ...Option) *Service {
	t.Helper()
	opts = append([]Option{WithLogger(testutil.NewTestLogger(t))}, opts...)
	svc, err := New(context.Background(), p, reg, opts...)
	require.NoError(t, err)
	return svc
}

func names(objects []schema.QualifiedName) []string {
	out := make([]string, len(objects))
	for i, o := range objects {
		out[i] = o.Type + ":" + o.Expression()
	}
	return out
}
