package schema

import (
	"slices"
	"strings"
)

// NewTablePlaceholder is rendered for identifiers of tables that have not
// been named yet.
const NewTablePlaceholder = "(new table)"

// SourceOptions carries dialect specific DDL extras for a table.
type SourceOptions struct {
	// TypeModifier is inserted between CREATE and TABLE, e.g. "GLOBAL TEMPORARY".
	TypeModifier string
	// TableOption is appended verbatim after the closing parenthesis.
	TableOption string
	// InlinePK and InlineFK force inline constraints for this table.
	InlinePK bool
	InlineFK bool
	// Extra holds free-form per-dialect values.
	Extra map[string]string
}

func (o SourceOptions) copy() SourceOptions {
	if o.Extra == nil {
		return o
	}
	extra := make(map[string]string, len(o.Extra))
	for k, v := range o.Extra {
		extra[k] = v
	}
	o.Extra = extra
	return o
}

// QualifiedName identifies a table, view, sequence or synonym.
// Empty Catalog or Schema means the part is absent.
type QualifiedName struct {
	Server  string
	Catalog string
	Schema  string
	Name    string
	Type    string

	CatalogQuoted bool
	SchemaQuoted  bool
	NameQuoted    bool

	// CaseLocked names are never re-cased by AdjustCase.
	CaseLocked bool
	// NewTable marks a placeholder for a table without a name yet.
	NewTable bool

	PrimaryKey *PkDefinition
	Comment    string
	Options    SourceOptions
}

// NewName builds an unquoted identifier.
func NewName(catalog, schemaName, name, objectType string) QualifiedName {
	return QualifiedName{Catalog: catalog, Schema: schemaName, Name: name, Type: objectType}
}

// Expression returns the unquoted catalog.schema.name text used for
// equality and ordering.
func (q QualifiedName) Expression() string {
	parts := make([]string, 0, 3)
	if q.Catalog != "" {
		parts = append(parts, q.Catalog)
	}
	if q.Schema != "" {
		parts = append(parts, q.Schema)
	}
	parts = append(parts, q.Name)
	return strings.Join(parts, ".")
}

// String implements fmt.Stringer.
func (q QualifiedName) String() string {
	if q.NewTable {
		return NewTablePlaceholder
	}
	return q.Expression()
}

// Equal reports whether both identifiers name the same object, ignoring
// quoting.
func (q QualifiedName) Equal(o QualifiedName) bool {
	return q.Expression() == o.Expression()
}

// Compare orders identifiers by their unquoted expression.
func (q QualifiedName) Compare(o QualifiedName) int {
	return strings.Compare(q.Expression(), o.Expression())
}

// IsEmpty reports whether the identifier carries no name.
func (q QualifiedName) IsEmpty() bool {
	return q.Name == "" && !q.NewTable
}

// Copy returns a deep copy so callers can adjust case or quoting locally.
func (q QualifiedName) Copy() QualifiedName {
	if q.PrimaryKey != nil {
		pk := q.PrimaryKey.Copy()
		q.PrimaryKey = &pk
	}
	q.Options = q.Options.copy()
	return q
}

// WithoutNamespace returns the identifier with catalog and schema removed.
func (q QualifiedName) WithoutNamespace() QualifiedName {
	c := q.Copy()
	c.Catalog, c.CatalogQuoted = "", false
	c.Schema, c.SchemaQuoted = "", false
	c.Server = ""
	return c
}

// SortNames orders identifiers by type, catalog, schema and name.
func SortNames(names []QualifiedName) {
	slices.SortStableFunc(names, func(a, b QualifiedName) int {
		if c := strings.Compare(a.Type, b.Type); c != 0 {
			return c
		}
		if c := strings.Compare(a.Catalog, b.Catalog); c != 0 {
			return c
		}
		if c := strings.Compare(a.Schema, b.Schema); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})
}
