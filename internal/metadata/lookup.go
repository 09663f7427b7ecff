package metadata

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/hurou927/dbmeta/internal/provider"
	"github.com/hurou927/dbmeta/internal/schema"
)

// tableTypes are the object types FindTable accepts.
var tableTypes = []string{TypeTable, TypeView, TypeMaterializedView, "FOREIGN TABLE", "SYSTEM TABLE", "TEMPORARY TABLE"}

// FindTable resolves name to exactly one table-like object. A missing or
// ambiguous name returns nil without an error.
func (s *Service) FindTable(ctx context.Context, name schema.QualifiedName) (*schema.QualifiedName, error) {
	return s.FindObject(ctx, name, tableTypes...)
}

// FindObject resolves name to exactly one object of the given types.
// Missing namespaces default to the current catalog and schema. When the
// case-adjusted lookup is not conclusive it is retried with the name as
// given, and remaining candidates are filtered by exact match. Unresolved
// ambiguity returns nil, nil.
func (s *Service) FindObject(ctx context.Context, name schema.QualifiedName, types ...string) (*schema.QualifiedName, error) {
	if name.Name == "" {
		return nil, nil
	}
	n := s.Naming()
	types = cleanTypes(types)

	adjusted := n.AdjustCase(name)
	raw := name.Copy()
	if n.SupportsSchemas && raw.Schema == "" {
		adjusted.Schema, raw.Schema = n.CurrentSchema, n.CurrentSchema
	}
	if n.SupportsCatalogs && raw.Catalog == "" {
		adjusted.Catalog, raw.Catalog = n.CurrentCatalog, n.CurrentCatalog
	}

	found, err := s.collect(ctx, s.exactFilter(adjusted, types))
	if err != nil {
		return nil, fmt.Errorf("looking up %s: %w", name.Expression(), err)
	}
	if len(found) != 1 && !sameParts(adjusted, raw) {
		retry, err := s.collect(ctx, s.exactFilter(raw, types))
		if err != nil {
			return nil, fmt.Errorf("looking up %s: %w", name.Expression(), err)
		}
		if len(retry) > 0 {
			found = retry
		}
	}
	if len(found) > 1 {
		matches := exactMatches(found, adjusted, types)
		if len(matches) != 1 {
			matches = exactMatches(found, raw, types)
		}
		found = matches
	}
	if len(found) != 1 {
		if len(found) > 1 {
			s.logger.Debug("ambiguous object name", "name", name.Expression(), "matches", len(found))
		}
		return nil, nil
	}
	obj := found[0]
	obj.Options = name.Copy().Options
	obj.CaseLocked = name.CaseLocked
	return &obj, nil
}

// exactFilter builds a request for one literal name.
func (s *Service) exactFilter(q schema.QualifiedName, types []string) Filter {
	return Filter{
		Catalog: q.Catalog,
		Schema:  s.literal(q.Schema),
		Name:    s.literal(q.Name),
		Types:   types,
	}
}

// literal escapes LIKE wildcards in v when the provider honours an escape.
func (s *Service) literal(v string) string {
	esc := s.product.SearchEscape
	if v == "" || esc == "" || !s.settings.Bool("metadata.wildcards", true) {
		return v
	}
	v = strings.ReplaceAll(v, esc, esc+esc)
	v = strings.ReplaceAll(v, "_", esc+"_")
	return strings.ReplaceAll(v, "%", esc+"%")
}

func sameParts(a, b schema.QualifiedName) bool {
	return a.Catalog == b.Catalog && a.Schema == b.Schema && a.Name == b.Name
}

// exactMatches keeps objects whose name, namespace and type match target.
func exactMatches(objects []schema.QualifiedName, target schema.QualifiedName, types []string) []schema.QualifiedName {
	var out []schema.QualifiedName
	for _, o := range objects {
		if o.Name != target.Name {
			continue
		}
		if target.Schema != "" && o.Schema != target.Schema {
			continue
		}
		if target.Catalog != "" && o.Catalog != "" && !strings.EqualFold(o.Catalog, target.Catalog) {
			continue
		}
		if !provider.MatchType(types, o.Type) {
			continue
		}
		out = append(out, o)
	}
	return out
}

// resolveTable returns table with missing namespaces and type filled in.
// Names that cannot be resolved yield ErrNotFound.
func (s *Service) resolveTable(ctx context.Context, table schema.QualifiedName) (schema.QualifiedName, error) {
	if table.Name == "" {
		return table, fmt.Errorf("%w: empty table name", ErrNotFound)
	}
	n := s.Naming()
	missingNamespace := (n.SupportsSchemas && table.Schema == "") ||
		(n.SupportsCatalogs && !n.SupportsSchemas && table.Catalog == "")
	if !missingNamespace && table.Type != "" {
		return n.AdjustCase(table), nil
	}
	found, err := s.FindTable(ctx, table)
	if err != nil {
		return table, err
	}
	if found == nil {
		return table, fmt.Errorf("%w: %s", ErrNotFound, table.Expression())
	}
	if table.PrimaryKey != nil {
		pk := table.PrimaryKey.Copy()
		found.PrimaryKey = &pk
	}
	return *found, nil
}

// TableColumns returns the columns of a table ordered by position, with
// primary key columns flagged. Failures are returned to the caller.
func (s *Service) TableColumns(ctx context.Context, table schema.QualifiedName) ([]schema.Column, error) {
	t, err := s.resolveTable(ctx, table)
	if err != nil {
		return nil, err
	}
	return s.columns(ctx, t, s.PrimaryKey(ctx, t))
}

func (s *Service) columns(ctx context.Context, t schema.QualifiedName, pk *schema.PkDefinition) ([]schema.Column, error) {
	rows, err := s.prov.Columns(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("reading columns of %s: %w", t.Expression(), err)
	}
	cols := make([]schema.Column, 0, len(rows))
	for _, r := range rows {
		cols = append(cols, schema.Column{
			Name:     r.Name,
			DataType: r.TypeCode,
			DbmsType: r.TypeName,
			Size:     r.Size,
			Digits:   r.Digits,
			Nullable: r.Nullable,
			Position: r.Position,
			Default:  r.Default,
			Computed: r.Computed,
			Comment:  r.Remarks,
		})
	}
	if pk != nil {
		for i := range cols {
			cols[i].IsPK = containsFold(pk.Columns, cols[i].Name)
		}
	}
	schema.SortByPosition(cols)
	return cols, nil
}

// PrimaryKey returns the table's primary key, or nil when it has none or
// the provider cannot tell.
func (s *Service) PrimaryKey(ctx context.Context, table schema.QualifiedName) *schema.PkDefinition {
	rows, err := s.prov.PrimaryKeys(ctx, table)
	if err != nil {
		s.degrade("reading primary key", err, "table", table.Expression())
		return nil
	}
	if len(rows) == 0 {
		return nil
	}
	slices.SortStableFunc(rows, func(a, b provider.PrimaryKeyRow) int { return cmp.Compare(a.Seq, b.Seq) })
	pk := &schema.PkDefinition{
		Name:      rows[0].Name,
		IndexName: rows[0].IndexName,
		Enabled:   true,
		Validated: true,
	}
	for _, r := range rows {
		pk.Columns = append(pk.Columns, r.Column)
	}
	return pk
}

// Indexes returns the table's indexes with the primary key index marked.
func (s *Service) Indexes(ctx context.Context, table schema.QualifiedName) []schema.Index {
	return s.indexes(ctx, table, s.PrimaryKey(ctx, table))
}

func (s *Service) indexes(ctx context.Context, table schema.QualifiedName, pk *schema.PkDefinition) []schema.Index {
	rows, err := s.prov.Indexes(ctx, table)
	if err != nil {
		s.degrade("reading indexes", err, "table", table.Expression())
		return nil
	}
	slices.SortStableFunc(rows, func(a, b provider.IndexRow) int {
		if c := strings.Compare(a.IndexName, b.IndexName); c != 0 {
			return c
		}
		return cmp.Compare(a.Ordinal, b.Ordinal)
	})

	var out []schema.Index
	pos := make(map[string]int)
	owner := table.Copy()
	owner.PrimaryKey = nil
	for _, r := range rows {
		i, ok := pos[r.IndexName]
		if !ok {
			i = len(out)
			pos[r.IndexName] = i
			out = append(out, schema.Index{
				Name:                 r.IndexName,
				Table:                owner,
				Unique:               !r.NonUnique,
				Type:                 r.Type,
				Tablespace:           r.Tablespace,
				UniqueConstraintName: r.ConstraintName,
			})
		}
		if r.Column != "" {
			out[i].Columns = append(out[i].Columns, schema.IndexColumn{Column: r.Column, Direction: r.Direction})
		}
	}

	if marked := MarkPrimaryKeyIndex(pk, out); marked >= 0 && pk.IndexName == "" {
		pk.IndexName = out[marked].Name
	}
	return out
}

// MarkPrimaryKeyIndex flags the index that implements pk and returns its
// position, or -1. The index is matched by name first; only when no name
// matches is a unique index on the same columns chosen. At most one index
// is ever marked.
func MarkPrimaryKeyIndex(pk *schema.PkDefinition, indexes []schema.Index) int {
	for i := range indexes {
		indexes[i].PrimaryKeyIndex = false
	}
	if pk == nil || len(indexes) == 0 {
		return -1
	}
	for _, name := range []string{pk.IndexName, pk.Name} {
		if name == "" {
			continue
		}
		for i := range indexes {
			if strings.EqualFold(indexes[i].Name, name) {
				indexes[i].PrimaryKeyIndex = true
				return i
			}
		}
	}
	if len(pk.Columns) == 0 {
		return -1
	}
	for i := range indexes {
		if indexes[i].Unique && indexes[i].SameColumns(pk.Columns) {
			indexes[i].PrimaryKeyIndex = true
			return i
		}
	}
	return -1
}

// ForeignKeys returns the keys declared on table (its outgoing edges).
func (s *Service) ForeignKeys(ctx context.Context, table schema.QualifiedName) []schema.ForeignKey {
	rows, err := s.prov.ImportedKeys(ctx, table)
	if err != nil {
		s.degrade("reading foreign keys", err, "table", table.Expression())
		return nil
	}
	return groupForeignKeys(rows)
}

// ReferencingKeys returns the keys of other tables that reference table.
func (s *Service) ReferencingKeys(ctx context.Context, table schema.QualifiedName) []schema.ForeignKey {
	rows, err := s.prov.ExportedKeys(ctx, table)
	if err != nil {
		s.degrade("reading referencing keys", err, "table", table.Expression())
		return nil
	}
	return groupForeignKeys(rows)
}

// groupForeignKeys folds per-column rows into keys, ordered by name.
func groupForeignKeys(rows []provider.ForeignKeyRow) []schema.ForeignKey {
	slices.SortStableFunc(rows, func(a, b provider.ForeignKeyRow) int {
		return cmp.Compare(a.Seq, b.Seq)
	})
	var out []schema.ForeignKey
	pos := make(map[string]int)
	for _, r := range rows {
		child := schema.NewName(r.FKCatalog, r.FKSchema, r.FKTable, TypeTable)
		parent := schema.NewName(r.PKCatalog, r.PKSchema, r.PKTable, TypeTable)
		key := r.Name + "\x00" + child.Expression() + "\x00" + parent.Expression()
		i, ok := pos[key]
		if !ok {
			i = len(out)
			pos[key] = i
			out = append(out, schema.ForeignKey{
				Name:          r.Name,
				Child:         child,
				Parent:        parent,
				UpdateRule:    schema.ParseRule(r.UpdateRule),
				DeleteRule:    schema.ParseRule(r.DeleteRule),
				Deferrability: r.Deferrability,
			})
		}
		out[i].ChildColumns = append(out[i].ChildColumns, r.FKColumn)
		out[i].ParentColumns = append(out[i].ParentColumns, r.PKColumn)
	}
	slices.SortStableFunc(out, func(a, b schema.ForeignKey) int {
		if c := strings.Compare(a.Child.Expression(), b.Child.Expression()); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})
	return out
}

// Grants returns the privileges granted on table.
func (s *Service) Grants(ctx context.Context, table schema.QualifiedName) []schema.Grant {
	rows, err := s.prov.Grants(ctx, table)
	if err != nil {
		s.degrade("reading grants", err, "table", table.Expression())
		return nil
	}
	out := make([]schema.Grant, 0, len(rows))
	for _, r := range rows {
		out = append(out, schema.Grant{Grantor: r.Grantor, Grantee: r.Grantee, Privilege: r.Privilege, Grantable: r.Grantable})
	}
	return out
}

// TableConstraints returns the table-level check constraints of table.
func (s *Service) TableConstraints(ctx context.Context, table schema.QualifiedName) []schema.TableConstraint {
	rows, err := s.prov.Constraints(ctx, table)
	if err != nil {
		s.degrade("reading constraints", err, "table", table.Expression())
		return nil
	}
	out := make([]schema.TableConstraint, 0, len(rows))
	for _, r := range rows {
		out = append(out, schema.TableConstraint{Name: r.Name, Type: r.Type, Expression: r.Expression, Columns: r.Columns})
	}
	return out
}

// TableDefinition loads everything known about one table. The table must
// exist and its columns must be readable; the other parts degrade to
// empty.
func (s *Service) TableDefinition(ctx context.Context, table schema.QualifiedName) (*schema.Table, error) {
	t, err := s.resolveTable(ctx, table)
	if err != nil {
		return nil, err
	}
	pk := t.PrimaryKey
	if pk == nil {
		pk = s.PrimaryKey(ctx, t)
	}
	cols, err := s.columns(ctx, t, pk)
	if err != nil {
		return nil, err
	}
	indexes := s.indexes(ctx, t, pk)
	t.PrimaryKey = pk

	return &schema.Table{
		Name:        t,
		Columns:     cols,
		Indexes:     indexes,
		ForeignKeys: s.ForeignKeys(ctx, t),
		Constraints: s.TableConstraints(ctx, t),
		Grants:      s.Grants(ctx, t),
	}, nil
}

// Schemas lists the schemas of the connection.
func (s *Service) Schemas(ctx context.Context) []string {
	names, err := s.prov.Schemas(ctx)
	if err != nil {
		s.degrade("listing schemas", err)
		return nil
	}
	slices.Sort(names)
	return names
}

// Catalogs lists the catalogs of the connection.
func (s *Service) Catalogs(ctx context.Context) []string {
	names, err := s.prov.Catalogs(ctx)
	if err != nil {
		s.degrade("listing catalogs", err)
		return nil
	}
	slices.Sort(names)
	return names
}

// Query runs a statement through the provider, e.g. a dialect's native
// DDL retrieval template.
func (s *Service) Query(ctx context.Context, sql string, args ...any) ([][]string, error) {
	return s.prov.Query(ctx, sql, args...)
}
