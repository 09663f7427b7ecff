package ddl

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/hurou927/dbmeta/internal/capability"
	"github.com/hurou927/dbmeta/internal/output"
	"github.com/hurou927/dbmeta/internal/schema"
)

// Options select the optional parts of a table script.
type Options struct {
	IncludeDrop   bool
	IncludeFK     bool
	IncludeGrants bool
}

// DefaultOptions returns the options used when the caller has no
// preference: foreign keys and grants on, no DROP.
func DefaultOptions() Options {
	return Options{IncludeFK: true, IncludeGrants: true}
}

// Built-in templates, used when the capability store has no value.
const (
	defaultCreateTable   = "CREATE %typemodifier% TABLE %fq_table_name%"
	defaultPKInline      = "CONSTRAINT %constraint_name% PRIMARY KEY (%columnlist%)"
	defaultPKAdd         = "ALTER TABLE %fq_table_name%\n  ADD CONSTRAINT %constraint_name% PRIMARY KEY (%columnlist%);"
	defaultFKInline      = "CONSTRAINT %constraint_name% FOREIGN KEY (%columnlist%) REFERENCES %targettable% (%targetcolumnlist%) %fk_update_rule% %fk_delete_rule% %deferrable%"
	defaultFKAdd         = "ALTER TABLE %fq_table_name%\n  ADD CONSTRAINT %constraint_name% FOREIGN KEY (%columnlist%)\n  REFERENCES %targettable% (%targetcolumnlist%) %fk_update_rule% %fk_delete_rule% %deferrable%;"
	defaultUniqueAdd     = "ALTER TABLE %fq_table_name%\n  ADD CONSTRAINT %constraint_name% UNIQUE (%columnlist%);"
	defaultIndexCreate   = "CREATE %unique_key% INDEX %index_name% ON %fq_table_name% (%columnlist%) TABLESPACE %tablespace%;"
	defaultTableComment  = "COMMENT ON TABLE %fq_table_name% IS '%comment%';"
	defaultColumnComment = "COMMENT ON COLUMN %fq_table_name%.%column% IS '%comment%';"
	defaultGrant         = "GRANT %privilege% ON %fq_table_name% TO %grantee% %grant_option%;"
	defaultDrop          = "DROP %object_type% %fq_table_name% %cascade%;"
)

// Generator renders DDL for one dialect. It only reads its inputs, so one
// Generator may be shared between goroutines.
type Generator struct {
	settings *capability.Settings
	naming   schema.Naming
}

// NewGenerator creates a generator from a dialect's capabilities and
// identifier rules.
func NewGenerator(settings *capability.Settings, naming schema.Naming) *Generator {
	return &Generator{settings: settings, naming: naming}
}

// Naming returns the identifier rules used for rendering.
func (g *Generator) Naming() schema.Naming { return g.naming }

// TableSource returns the complete script for one table: optional DROP,
// CREATE TABLE, standalone primary and foreign keys, indexes, comments and
// grants.
func (g *Generator) TableSource(table *schema.Table, opts Options) string {
	return joinStatements(g.tableStatements(g.prepare(table), opts, true))
}

// tableStatements lists the statements for one table. Standalone foreign
// keys are left out when withStandaloneFK is false so a multi-table script
// can add them after every table exists.
func (g *Generator) tableStatements(t *schema.Table, opts Options, withStandaloneFK bool) []string {
	var parts []string
	if opts.IncludeDrop {
		parts = append(parts, g.DropStatement(t))
	}
	parts = append(parts, g.createTable(t, opts.IncludeFK && g.inlineFK(t)))
	if !g.inlinePK(t) {
		parts = append(parts, g.PrimaryKeySource(t))
	}
	if withStandaloneFK && opts.IncludeFK && !g.inlineFK(t) {
		for _, fk := range t.ForeignKeys {
			parts = append(parts, g.ForeignKeySource(t, fk))
		}
	}
	parts = append(parts, g.extraStatements(t, opts)...)
	return parts
}

// extraStatements returns index, comment and grant statements.
func (g *Generator) extraStatements(t *schema.Table, opts Options) []string {
	parts := g.indexSources(t)
	if g.settings.Bool("ddl.include.comments", true) && g.commentStyle() == commentStatement {
		parts = append(parts, g.CommentSource(t))
	}
	if opts.IncludeGrants && g.settings.Bool("ddl.include.grants", true) {
		parts = append(parts, g.GrantSource(t))
	}
	return parts
}

// CreateTable returns the CREATE TABLE statement alone. Inline constraints
// are part of it when the dialect or the table asks for them.
func (g *Generator) CreateTable(table *schema.Table, includeFK bool) string {
	t := g.prepare(table)
	return g.createTable(t, includeFK && g.inlineFK(t))
}

// prepare copies the table and folds single-column check constraints into
// their columns when the dialect reports them at table level.
func (g *Generator) prepare(table *schema.Table) *schema.Table {
	t := table.Copy()
	if !g.settings.Bool("ddl.constraints.fold.single", false) {
		return t
	}
	kept := t.Constraints[:0]
	for _, c := range t.Constraints {
		if len(c.Columns) == 1 && isCheck(c) {
			if col := t.Column(c.Columns[0]); col != nil {
				col.Constraint = strings.TrimSpace(col.Constraint + " " + g.constraintText(c))
				continue
			}
		}
		kept = append(kept, c)
	}
	t.Constraints = kept
	return t
}

func (g *Generator) createTable(t *schema.Table, withFK bool) string {
	var b strings.Builder
	b.WriteString(Apply(g.settings.Template("sql.create.table", defaultCreateTable), Values{
		PlaceholderTypeModifier: t.Name.Options.TypeModifier,
		PlaceholderFQTableName:  g.tableName(t.Name),
		PlaceholderTableName:    g.naming.QuoteName(t.Name.Name, t.Name.NameQuoted),
	}))
	b.WriteString("\n(\n")

	lines := g.ColumnDefinitions(t.Columns)
	for _, c := range t.Constraints {
		lines = append(lines, g.constraintText(c))
	}
	if g.inlinePK(t) {
		if pk := g.primaryKey(t); pk != nil {
			lines = append(lines, Apply(g.settings.Template("sql.pk.inline", defaultPKInline), g.pkValues(t, pk)))
		}
	}
	if withFK {
		for _, fk := range t.ForeignKeys {
			lines = append(lines, Apply(g.settings.Template("sql.fk.inline", defaultFKInline), g.fkValues(t, fk)))
		}
	}
	for i, l := range lines {
		b.WriteString("  ")
		b.WriteString(strings.ReplaceAll(l, "\n", "\n  "))
		if i < len(lines)-1 {
			b.WriteByte(',')
		}
		b.WriteByte('\n')
	}
	b.WriteByte(')')

	var options []string
	if opt := strings.TrimSpace(t.Name.Options.TableOption); opt != "" {
		options = append(options, opt)
	}
	if t.Name.Comment != "" && g.commentStyle() == commentInline && g.settings.Bool("ddl.include.comments", true) {
		options = append(options, "COMMENT = "+output.Quote(t.Name.Comment))
	}
	if len(options) > 0 {
		b.WriteByte(' ')
		b.WriteString(strings.Join(options, " "))
	}
	b.WriteByte(';')
	return b.String()
}

// ColumnDefinitions renders one definition per column. With
// ddl.column.align the names and types are padded into columns.
func (g *Generator) ColumnDefinitions(cols []schema.Column) []string {
	align := g.settings.Bool("ddl.column.align", true)
	names := make([]string, len(cols))
	types := make([]string, len(cols))
	nameWidth, typeWidth := 0, 0
	for i, c := range cols {
		names[i] = g.naming.QuoteColumn(c)
		types[i] = c.DisplayType()
		nameWidth = max(nameWidth, len(names[i]))
		typeWidth = max(typeWidth, len(types[i]))
	}

	keyword := g.settings.String("ddl.default.keyword", "DEFAULT")
	inlineComments := g.commentStyle() == commentInline && g.settings.Bool("ddl.include.comments", true)
	out := make([]string, len(cols))
	for i, c := range cols {
		var attrs []string
		if def := c.DefaultText(keyword); def != "" {
			attrs = append(attrs, def)
		}
		if expr := strings.TrimSpace(c.Computed); expr != "" {
			attrs = append(attrs, computedClause(expr))
		}
		if !c.Nullable {
			attrs = append(attrs, "NOT NULL")
		}
		if cons := strings.TrimSpace(c.Constraint); cons != "" {
			attrs = append(attrs, cons)
		}
		if inlineComments && c.Comment != "" {
			attrs = append(attrs, "COMMENT "+output.Quote(c.Comment))
		}

		name, typ := names[i], types[i]
		if align {
			name = fmt.Sprintf("%-*s", nameWidth, name)
			if len(attrs) > 0 {
				typ = fmt.Sprintf("%-*s", typeWidth, typ)
			}
		}
		out[i] = strings.TrimRight(strings.Join(append([]string{name, typ}, attrs...), " "), " ")
	}
	return out
}

func computedClause(expr string) string {
	upper := strings.ToUpper(expr)
	if strings.HasPrefix(upper, "GENERATED") || strings.HasPrefix(upper, "AS ") || strings.HasPrefix(upper, "AS(") {
		return expr
	}
	return "GENERATED ALWAYS AS (" + expr + ")"
}

func isCheck(c schema.TableConstraint) bool {
	return c.Type == "" || strings.EqualFold(c.Type, "CHECK")
}

// constraintText renders a table constraint, naming it unless the name
// looks generated.
func (g *Generator) constraintText(c schema.TableConstraint) string {
	expr := strings.TrimSpace(c.Expression)
	if isCheck(c) && !strings.HasPrefix(strings.ToUpper(expr), "CHECK") {
		expr = "CHECK (" + expr + ")"
	}
	if c.Name == "" || g.generated("ddl.constraint.generated.pattern", c.Name) {
		return expr
	}
	return "CONSTRAINT " + g.naming.QuoteObjectName(c.Name) + " " + expr
}

func (g *Generator) inlinePK(t *schema.Table) bool {
	return t.Name.Options.InlinePK || g.settings.Bool("ddl.pk.inline", false)
}

func (g *Generator) inlineFK(t *schema.Table) bool {
	return t.Name.Options.InlineFK || g.settings.Bool("ddl.fk.inline", false)
}

// primaryKey returns the table's key, derived from the column flags when
// no definition was loaded.
func (g *Generator) primaryKey(t *schema.Table) *schema.PkDefinition {
	if pk := t.PrimaryKey(); pk != nil && len(pk.Columns) > 0 {
		return pk
	}
	cols := t.PKColumnNames()
	if len(cols) == 0 {
		return nil
	}
	return &schema.PkDefinition{Columns: cols}
}

// PrimaryKeyName returns the constraint name to emit: "" for generated
// names, pk_<table> when auto-naming is on and the key has no name.
func (g *Generator) PrimaryKeyName(t *schema.Table, pk *schema.PkDefinition) string {
	name := pk.Name
	if g.generated("ddl.pk.generated.pattern", name) {
		name = ""
	}
	if name == "" && g.settings.Bool("ddl.pk.autoname", false) {
		name = "pk_" + strings.ToLower(t.Name.Name)
		if limit := g.settings.Int("max.identifier.length", 128); limit > 0 && len(name) > limit {
			for limit > 0 && !utf8.RuneStart(name[limit]) {
				limit--
			}
			name = name[:limit]
		}
	}
	return name
}

func (g *Generator) pkValues(t *schema.Table, pk *schema.PkDefinition) Values {
	name := g.PrimaryKeyName(t, pk)
	if name != "" {
		name = g.naming.QuoteObjectName(name)
	}
	return Values{
		PlaceholderFQTableName:    g.tableName(t.Name),
		PlaceholderTableName:      g.naming.QuoteName(t.Name.Name, t.Name.NameQuoted),
		PlaceholderConstraintName: name,
		PlaceholderColumnList:     g.columnList(t, pk.Columns),
	}
}

// PrimaryKeySource returns the standalone ALTER TABLE ... ADD PRIMARY KEY
// statement, or "" when the table has no primary key.
func (g *Generator) PrimaryKeySource(t *schema.Table) string {
	pk := g.primaryKey(t)
	if pk == nil {
		return ""
	}
	return Apply(g.settings.Template("sql.pk.add", defaultPKAdd), g.pkValues(t, pk))
}

func (g *Generator) fkValues(t *schema.Table, fk schema.ForeignKey) Values {
	name := fk.Name
	if g.generated("ddl.fk.generated.pattern", name) {
		name = ""
	}
	if name != "" {
		name = g.naming.QuoteObjectName(name)
	}

	v := Values{
		PlaceholderFQTableName:      g.tableName(t.Name),
		PlaceholderTableName:        g.naming.QuoteName(t.Name.Name, t.Name.NameQuoted),
		PlaceholderConstraintName:   name,
		PlaceholderColumnList:       g.columnList(t, fk.ChildColumns),
		PlaceholderTargetTable:      g.tableName(fk.Parent),
		PlaceholderTargetColumnList: g.columnList(nil, fk.ParentColumns),
		PlaceholderFKUpdateRule:     "",
		PlaceholderFKDeleteRule:     "",
		PlaceholderDeferrable:       "",
	}
	omitDefault := g.settings.Bool("ddl.fk.omit.default.rules", true)
	if g.settings.Bool("ddl.fk.update.supported", true) && fk.UpdateRule != schema.RuleNone &&
		!(omitDefault && fk.UpdateRule.IsDefault()) {
		v[PlaceholderFKUpdateRule] = "ON UPDATE " + fk.UpdateRule.SQL()
	}
	if fk.DeleteRule != schema.RuleNone && !(omitDefault && fk.DeleteRule.IsDefault()) {
		v[PlaceholderFKDeleteRule] = "ON DELETE " + fk.DeleteRule.SQL()
	}
	if g.settings.Bool("ddl.fk.deferrable.supported", false) {
		v[PlaceholderDeferrable] = fk.Deferrability.SQL()
	}
	return v
}

// ForeignKeySource returns the standalone ALTER TABLE ... ADD FOREIGN KEY
// statement for fk.
func (g *Generator) ForeignKeySource(t *schema.Table, fk schema.ForeignKey) string {
	return Apply(g.settings.Template("sql.fk.add", defaultFKAdd), g.fkValues(t, fk))
}

// indexSources renders the indexes that are not implied by the table:
// the primary key index, generated indexes and, where the dialect creates
// them itself, indexes backing foreign keys are skipped.
func (g *Generator) indexSources(t *schema.Table) []string {
	if !g.settings.Bool("ddl.include.indexes", true) {
		return nil
	}
	skipFK := g.settings.Bool("ddl.index.skip.fk", false)
	pk := g.primaryKey(t)

	var out []string
	for _, idx := range t.Indexes {
		if idx.PrimaryKeyIndex || g.generated("ddl.index.generated.pattern", idx.Name) {
			continue
		}
		if pk != nil && pk.IndexName != "" && strings.EqualFold(pk.IndexName, idx.Name) {
			continue
		}
		if skipFK && backsForeignKey(t, idx) {
			continue
		}
		if idx.UniqueConstraintName != "" {
			out = append(out, g.UniqueConstraintSource(t, idx))
			continue
		}
		out = append(out, g.IndexSource(t, idx))
	}
	return out
}

func backsForeignKey(t *schema.Table, idx schema.Index) bool {
	for _, fk := range t.ForeignKeys {
		if idx.SameColumns(fk.ChildColumns) {
			return true
		}
	}
	return false
}

// IndexSource returns the CREATE INDEX statement for idx.
func (g *Generator) IndexSource(t *schema.Table, idx schema.Index) string {
	explicit := g.settings.Bool("ddl.index.direction.explicit", false)
	cols := make([]string, len(idx.Columns))
	for i, c := range idx.Columns {
		col := g.quoteColumnName(t, c.Column)
		switch dir := strings.ToUpper(strings.TrimSpace(c.Direction)); {
		case dir == "DESC":
			col += " DESC"
		case dir == "ASC" && explicit:
			col += " ASC"
		}
		cols[i] = col
	}

	unique := ""
	if idx.Unique {
		unique = "UNIQUE"
	}
	owner := idx.Table
	if owner.Name == "" {
		owner = t.Name
	}
	return Apply(g.settings.Template("sql.index.create", defaultIndexCreate), Values{
		PlaceholderUniqueKey:   unique,
		PlaceholderIndexName:   g.naming.QuoteObjectName(idx.Name),
		PlaceholderIndexType:   g.indexType(idx.Type),
		PlaceholderFQTableName: g.tableName(owner),
		PlaceholderTableName:   g.naming.QuoteName(owner.Name, owner.NameQuoted),
		PlaceholderColumnList:  strings.Join(cols, ", "),
		PlaceholderTablespace:  idx.Tablespace,
	})
}

// indexType normalizes the reported type and drops the dialect's default.
func (g *Generator) indexType(t string) string {
	t = strings.ToUpper(strings.TrimSpace(t))
	if t == "" || slices.ContainsFunc(g.settings.List("ddl.index.type.ignore", nil), func(s string) bool {
		return strings.EqualFold(s, t)
	}) {
		return ""
	}
	return t
}

// UniqueConstraintSource returns ALTER TABLE ... ADD CONSTRAINT ... UNIQUE
// for an index that backs a unique constraint.
func (g *Generator) UniqueConstraintSource(t *schema.Table, idx schema.Index) string {
	name := idx.UniqueConstraintName
	if name == "" {
		name = idx.Name
	}
	if g.generated("ddl.index.generated.pattern", name) {
		name = ""
	}
	if name != "" {
		name = g.naming.QuoteObjectName(name)
	}
	return Apply(g.settings.Template("sql.unique.add", defaultUniqueAdd), Values{
		PlaceholderFQTableName:    g.tableName(t.Name),
		PlaceholderTableName:      g.naming.QuoteName(t.Name.Name, t.Name.NameQuoted),
		PlaceholderConstraintName: name,
		PlaceholderColumnList:     g.columnList(t, idx.ColumnNames()),
	})
}

type commentStyle int

const (
	commentStatement commentStyle = iota
	commentInline
)

func (g *Generator) commentStyle() commentStyle {
	if strings.EqualFold(g.settings.String("ddl.comment.style", "statement"), "inline") {
		return commentInline
	}
	return commentStatement
}

// CommentSource returns COMMENT statements for the table and its columns.
func (g *Generator) CommentSource(t *schema.Table) string {
	base := Values{
		PlaceholderFQTableName: g.tableName(t.Name),
		PlaceholderTableName:   t.Name.Name,
		PlaceholderSchema:      t.Name.Schema,
	}
	var parts []string
	if t.Name.Comment != "" {
		v := maps.Clone(base)
		v[PlaceholderComment] = output.EscapeString(t.Name.Comment)
		parts = append(parts, Apply(g.settings.Template("sql.table.comment", defaultTableComment), v))
	}
	for _, c := range t.Columns {
		if c.Comment == "" {
			continue
		}
		v := maps.Clone(base)
		v[PlaceholderColumn] = g.naming.QuoteColumn(c)
		v[PlaceholderComment] = output.EscapeString(c.Comment)
		parts = append(parts, Apply(g.settings.Template("sql.column.comment", defaultColumnComment), v))
	}
	return strings.Join(parts, "\n")
}

// GrantSource returns one GRANT statement per grant.
func (g *Generator) GrantSource(t *schema.Table) string {
	var parts []string
	for _, gr := range t.Grants {
		option := ""
		if gr.Grantable {
			option = "WITH GRANT OPTION"
		}
		parts = append(parts, Apply(g.settings.Template("sql.grant", defaultGrant), Values{
			PlaceholderPrivilege:   gr.Privilege,
			PlaceholderFQTableName: g.tableName(t.Name),
			PlaceholderGrantee:     g.naming.QuoteObjectName(gr.Grantee),
			PlaceholderGrantOption: option,
		}))
	}
	return strings.Join(parts, "\n")
}

// DropStatement returns DROP TABLE with the dialect's cascade clause.
func (g *Generator) DropStatement(t *schema.Table) string {
	objectType := strings.ToUpper(t.Name.Type)
	if objectType == "" {
		objectType = "TABLE"
	}
	return Apply(g.settings.Template("sql.drop", defaultDrop), Values{
		PlaceholderObjectType:  objectType,
		PlaceholderFQTableName: g.tableName(t.Name),
		PlaceholderTableName:   g.naming.QuoteName(t.Name.Name, t.Name.NameQuoted),
		PlaceholderCascade:     g.settings.String("ddl.drop.cascade", ""),
	})
}

func (g *Generator) tableName(q schema.QualifiedName) string {
	return g.naming.Render(q)
}

// columnList quotes column names, keeping the quoting of known columns.
func (g *Generator) columnList(t *schema.Table, names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = g.quoteColumnName(t, n)
	}
	return strings.Join(quoted, ", ")
}

func (g *Generator) quoteColumnName(t *schema.Table, name string) string {
	if t != nil {
		if c := t.Column(name); c != nil && c.Name == name {
			return g.naming.QuoteColumn(*c)
		}
	}
	return g.naming.QuoteObjectName(name)
}

// generated reports whether name matches the dialect's pattern for
// system generated names of the given kind.
func (g *Generator) generated(prop, name string) bool {
	if name == "" {
		return false
	}
	re := g.settings.Regexp(prop)
	return re != nil && re.MatchString(name)
}

func joinStatements(parts []string) string {
	var kept []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	if len(kept) == 0 {
		return ""
	}
	return strings.Join(kept, "\n\n") + "\n"
}
