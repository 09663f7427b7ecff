package schema

import (
	"strings"
)

// PkDefinition describes a primary key.
type PkDefinition struct {
	Name      string
	Columns   []string
	IndexName string
	Enabled   bool
	Validated bool
}

// Copy returns a deep copy.
func (p PkDefinition) Copy() PkDefinition {
	p.Columns = append([]string(nil), p.Columns...)
	return p
}

// IndexColumn is one column of an index with its sort direction
// ("ASC", "DESC" or "").
type IndexColumn struct {
	Column    string
	Direction string
}

// Index describes an index. PrimaryKeyIndex is derived by the metadata
// service and is set on at most one index per table.
type Index struct {
	Name                 string
	Table                QualifiedName
	Unique               bool
	PrimaryKeyIndex      bool
	Columns              []IndexColumn
	Type                 string
	Tablespace           string
	Status               string
	Comment              string
	UniqueConstraintName string
}

// ColumnNames returns the indexed column names in order.
func (i Index) ColumnNames() []string {
	names := make([]string, len(i.Columns))
	for n, c := range i.Columns {
		names[n] = c.Column
	}
	return names
}

// SameColumns reports whether the index covers exactly the given columns in
// order, compared case-insensitively.
func (i Index) SameColumns(cols []string) bool {
	if len(i.Columns) != len(cols) {
		return false
	}
	for n, c := range i.Columns {
		if !strings.EqualFold(c.Column, cols[n]) {
			return false
		}
	}
	return true
}

// Rule is a referential action.
type Rule int

const (
	RuleNone Rule = iota
	RuleNoAction
	RuleRestrict
	RuleCascade
	RuleSetNull
	RuleSetDefault
)

// SQL returns the action text, or "" for RuleNone.
func (r Rule) SQL() string {
	switch r {
	case RuleNoAction:
		return "NO ACTION"
	case RuleRestrict:
		return "RESTRICT"
	case RuleCascade:
		return "CASCADE"
	case RuleSetNull:
		return "SET NULL"
	case RuleSetDefault:
		return "SET DEFAULT"
	}
	return ""
}

// IsDefault reports whether the rule is the implicit NO ACTION/RESTRICT.
func (r Rule) IsDefault() bool {
	return r == RuleNone || r == RuleNoAction || r == RuleRestrict
}

// RuleFromJDBC maps DatabaseMetaData importedKey* codes.
func RuleFromJDBC(code int) Rule {
	switch code {
	case 0:
		return RuleCascade
	case 1:
		return RuleRestrict
	case 2:
		return RuleSetNull
	case 3:
		return RuleNoAction
	case 4:
		return RuleSetDefault
	}
	return RuleNone
}

// ParseRule maps action text such as "SET NULL" to a Rule.
func ParseRule(s string) Rule {
	switch strings.ToUpper(strings.Join(strings.Fields(s), " ")) {
	case "NO ACTION", "A":
		return RuleNoAction
	case "RESTRICT", "R":
		return RuleRestrict
	case "CASCADE", "C":
		return RuleCascade
	case "SET NULL", "N":
		return RuleSetNull
	case "SET DEFAULT", "D":
		return RuleSetDefault
	}
	return RuleNone
}

// Deferrability of a constraint.
type Deferrability int

const (
	NotDeferrable Deferrability = iota
	InitiallyDeferred
	InitiallyImmediate
)

// SQL returns the deferrability clause, or "" when not deferrable.
func (d Deferrability) SQL() string {
	switch d {
	case InitiallyDeferred:
		return "DEFERRABLE INITIALLY DEFERRED"
	case InitiallyImmediate:
		return "DEFERRABLE INITIALLY IMMEDIATE"
	}
	return ""
}

// DeferrabilityFromJDBC maps importedKeyInitiallyDeferred (5),
// importedKeyInitiallyImmediate (6) and importedKeyNotDeferrable (7).
func DeferrabilityFromJDBC(code int) Deferrability {
	switch code {
	case 5:
		return InitiallyDeferred
	case 6:
		return InitiallyImmediate
	}
	return NotDeferrable
}

// ForeignKey is a dependency edge from a child table to the parent table it
// references. ChildColumns[i] references ParentColumns[i].
type ForeignKey struct {
	Name          string
	Child         QualifiedName
	Parent        QualifiedName
	ChildColumns  []string
	ParentColumns []string
	UpdateRule    Rule
	DeleteRule    Rule
	Deferrability Deferrability
	Disabled      bool
	// Virtual marks relations declared in configuration rather than the
	// database catalog.
	Virtual bool
}

// IsSelfRef reports whether the key references its own table.
func (fk ForeignKey) IsSelfRef() bool {
	return fk.Child.Equal(fk.Parent)
}

// ChildKey and ParentKey return graph node keys.
func (fk ForeignKey) ChildKey() string  { return fk.Child.Expression() }
func (fk ForeignKey) ParentKey() string { return fk.Parent.Expression() }

// ColumnMap returns the child→parent column pairs.
func (fk ForeignKey) ColumnMap() map[string]string {
	m := make(map[string]string, len(fk.ChildColumns))
	for i, c := range fk.ChildColumns {
		if i < len(fk.ParentColumns) {
			m[c] = fk.ParentColumns[i]
		}
	}
	return m
}

// TableConstraint is a table-level check or other constraint.
type TableConstraint struct {
	Name       string
	Type       string
	Expression string
	Columns    []string
}

// Grant is a table privilege granted to a user or role.
type Grant struct {
	Grantor   string
	Grantee   string
	Privilege string
	Grantable bool
}

// Table aggregates everything known about one table.
type Table struct {
	Name        QualifiedName
	Columns     []Column
	Indexes     []Index
	ForeignKeys []ForeignKey
	Constraints []TableConstraint
	Grants      []Grant
}

// FullName returns the unquoted qualified name.
func (t *Table) FullName() string {
	return t.Name.Expression()
}

// PrimaryKey returns the table's primary key, or nil.
func (t *Table) PrimaryKey() *PkDefinition {
	return t.Name.PrimaryKey
}

// ColumnNames returns column names in order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// PKColumnNames returns the primary key column names.
func (t *Table) PKColumnNames() []string {
	if pk := t.PrimaryKey(); pk != nil {
		return pk.Columns
	}
	var names []string
	for _, c := range t.Columns {
		if c.IsPK {
			names = append(names, c.Name)
		}
	}
	return names
}

// Column finds a column by case-insensitive name.
func (t *Table) Column(name string) *Column {
	for i := range t.Columns {
		if strings.EqualFold(t.Columns[i].Name, name) {
			return &t.Columns[i]
		}
	}
	return nil
}

// Copy returns a deep copy of the table.
func (t *Table) Copy() *Table {
	c := &Table{
		Name:        t.Name.Copy(),
		Columns:     append([]Column(nil), t.Columns...),
		Indexes:     make([]Index, len(t.Indexes)),
		ForeignKeys: make([]ForeignKey, len(t.ForeignKeys)),
		Constraints: make([]TableConstraint, len(t.Constraints)),
		Grants:      append([]Grant(nil), t.Grants...),
	}
	for i, idx := range t.Indexes {
		idx.Columns = append([]IndexColumn(nil), idx.Columns...)
		idx.Table = idx.Table.Copy()
		c.Indexes[i] = idx
	}
	for i, fk := range t.ForeignKeys {
		fk.ChildColumns = append([]string(nil), fk.ChildColumns...)
		fk.ParentColumns = append([]string(nil), fk.ParentColumns...)
		c.ForeignKeys[i] = fk
	}
	for i, tc := range t.Constraints {
		tc.Columns = append([]string(nil), tc.Columns...)
		c.Constraints[i] = tc
	}
	return c
}
