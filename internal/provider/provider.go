// Package provider defines the introspection interface the metadata service
// consumes and ships implementations for the supported drivers.
package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hurou927/dbmeta/internal/schema"
)

// ErrUnsupported is returned by optional calls a driver cannot answer.
var ErrUnsupported = errors.New("not supported by this provider")

// ProductInfo is what a provider reports about the connected database.
type ProductInfo struct {
	Name    string
	Version string
	Major   int
	Minor   int

	// IdentifierQuote is the driver's quote string; "" when unknown.
	IdentifierQuote string
	// SearchEscape escapes wildcard characters in LIKE patterns.
	SearchEscape string
	// StoresCase is "upper", "lower", "mixed" or "" when unknown.
	StoresCase string

	Keywords   []string
	TableTypes []string

	CurrentCatalog string
	CurrentSchema  string
	SchemaTerm     string
	CatalogTerm    string
}

// ObjectRow is one row of a "list objects" call.
type ObjectRow struct {
	Catalog string
	Schema  string
	Name    string
	Type    string
	Remarks string
}

// ColumnRow is one row of a "list columns" call.
type ColumnRow struct {
	Name     string
	TypeCode schema.SQLType
	TypeName string
	Size     int
	Digits   int
	Nullable bool
	Position int
	Default  string
	Remarks  string
	Computed string
}

// IndexRow is one column of one index.
type IndexRow struct {
	Catalog    string
	Schema     string
	Table      string
	NonUnique  bool
	IndexName  string
	Ordinal    int
	Column     string
	Direction  string
	Type       string
	Tablespace string
	// ConstraintName is set when the index backs a unique constraint.
	ConstraintName string
}

// PrimaryKeyRow is one column of a primary key.
type PrimaryKeyRow struct {
	Name      string
	Column    string
	Seq       int
	IndexName string
}

// ForeignKeyRow is one column pair of a foreign key.
type ForeignKeyRow struct {
	Name          string
	PKCatalog     string
	PKSchema      string
	PKTable       string
	PKColumn      string
	FKCatalog     string
	FKSchema      string
	FKTable       string
	FKColumn      string
	Seq           int
	UpdateRule    string
	DeleteRule    string
	Deferrability schema.Deferrability
}

// GrantRow is one table privilege.
type GrantRow struct {
	Grantor   string
	Grantee   string
	Privilege string
	Grantable bool
}

// ConstraintRow is a table-level check constraint.
type ConstraintRow struct {
	Name       string
	Type       string
	Expression string
	Columns    []string
}

// Provider answers raw introspection questions. Implementations return
// ErrUnsupported (possibly wrapped) for optional calls they cannot serve.
type Provider interface {
	Product(ctx context.Context) (ProductInfo, error)
	Objects(ctx context.Context, catalog, schemaPattern, namePattern string, types []string) ([]ObjectRow, error)
	Columns(ctx context.Context, table schema.QualifiedName) ([]ColumnRow, error)
	Indexes(ctx context.Context, table schema.QualifiedName) ([]IndexRow, error)
	PrimaryKeys(ctx context.Context, table schema.QualifiedName) ([]PrimaryKeyRow, error)
	ImportedKeys(ctx context.Context, table schema.QualifiedName) ([]ForeignKeyRow, error)
	ExportedKeys(ctx context.Context, table schema.QualifiedName) ([]ForeignKeyRow, error)
	Grants(ctx context.Context, table schema.QualifiedName) ([]GrantRow, error)
	Constraints(ctx context.Context, table schema.QualifiedName) ([]ConstraintRow, error)
	Schemas(ctx context.Context) ([]string, error)
	Catalogs(ctx context.Context) ([]string, error)
	// Query runs an arbitrary statement and returns all rows as text.
	// NULL values are returned as "".
	Query(ctx context.Context, sql string, args ...any) ([][]string, error)
	Close() error
}

var (
	_ Provider = (*Postgres)(nil)
	_ Provider = (*SQL)(nil)
	_ Provider = (*SQLite)(nil)
)

// IsUnsupported reports whether err means the call is not available.
func IsUnsupported(err error) bool {
	return errors.Is(err, ErrUnsupported)
}

// MatchType reports whether objectType is in types. An empty list matches
// everything.
func MatchType(types []string, objectType string) bool {
	if len(types) == 0 {
		return true
	}
	for _, t := range types {
		if strings.EqualFold(t, objectType) {
			return true
		}
	}
	return false
}

// likeOrAll turns an empty pattern into "%".
func likeOrAll(p string) string {
	if p == "" {
		return "%"
	}
	return p
}

// Text converts a scanned driver value to its text form.
func Text(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case time.Time:
		return t.Format("2006-01-02 15:04:05.999999999Z07:00")
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprintf("%v", t)
	}
}
