package ddl

import (
	"context"
	"log/slog"
	"strings"

	"github.com/hurou927/dbmeta/internal/capability"
	"github.com/hurou927/dbmeta/internal/output"
	"github.com/hurou927/dbmeta/internal/schema"
)

// Source is the metadata a Builder reads. *metadata.Service and
// *cache.Cache both satisfy it.
type Source interface {
	TableDefinition(ctx context.Context, table schema.QualifiedName) (*schema.Table, error)
	Query(ctx context.Context, sql string, args ...any) ([][]string, error)
	Settings() *capability.Settings
	Naming() schema.Naming
}

// Builder produces DDL for live tables. Where the dialect can return a
// table's own DDL (ddl.table.retrieve.sql) that text is used, otherwise the
// statement is generated from the loaded definition.
type Builder struct {
	src    Source
	logger *slog.Logger
}

// NewBuilder creates a builder over src. A nil logger discards output.
func NewBuilder(src Source, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Builder{src: src, logger: logger}
}

// Generator returns a generator for the source's current dialect and
// naming rules.
func (b *Builder) Generator() *Generator {
	return NewGenerator(b.src.Settings(), b.src.Naming())
}

// TableSource returns the DDL script of one table.
func (b *Builder) TableSource(ctx context.Context, name schema.QualifiedName, opts Options) (string, error) {
	table, err := b.src.TableDefinition(ctx, name)
	if err != nil {
		return "", err
	}
	gen := b.Generator()

	native, ok, err := b.retrieve(ctx, gen, table)
	if err != nil {
		return "", err
	}
	if !ok {
		return gen.TableSource(table, opts), nil
	}

	settings := b.src.Settings()
	t := gen.prepare(table)
	var parts []string
	if opts.IncludeDrop {
		parts = append(parts, gen.DropStatement(t))
	}
	parts = append(parts, native)
	if !settings.Bool("ddl.table.retrieve.indexes", false) {
		parts = append(parts, gen.indexSources(t)...)
	}
	if !settings.Bool("ddl.table.retrieve.comments", false) &&
		settings.Bool("ddl.include.comments", true) && gen.commentStyle() == commentStatement {
		parts = append(parts, gen.CommentSource(t))
	}
	if opts.IncludeGrants && settings.Bool("ddl.include.grants", true) {
		parts = append(parts, gen.GrantSource(t))
	}
	return joinStatements(parts), nil
}

// retrieve runs the dialect's native DDL query. ok is false when the dialect
// has none or the query returned nothing usable.
func (b *Builder) retrieve(ctx context.Context, gen *Generator, t *schema.Table) (string, bool, error) {
	settings := b.src.Settings()
	tmpl := settings.Template("ddl.table.retrieve.sql", "")
	if strings.TrimSpace(tmpl) == "" {
		return "", false, nil
	}

	query := Apply(tmpl, Values{
		PlaceholderFQTableName: gen.tableName(t.Name),
		PlaceholderTableName:   output.EscapeString(t.Name.Name),
		PlaceholderSchema:      output.EscapeString(t.Name.Schema),
	})
	rows, err := b.src.Query(ctx, query)
	if err != nil {
		b.logger.Warn("native table source failed, generating", "table", t.FullName(), "error", err)
		return "", false, nil
	}

	col := settings.Int("ddl.table.retrieve.column", 1)
	if len(rows) == 0 || col < 1 || col > len(rows[0]) || strings.TrimSpace(rows[0][col-1]) == "" {
		b.logger.Debug("native table source empty, generating", "table", t.FullName(), "query", query)
		return "", false, nil
	}

	text := strings.TrimSpace(rows[0][col-1])
	if !strings.HasSuffix(text, ";") {
		text += ";"
	}
	return text, true, nil
}

// Script loads every named table and renders them as one ordered script.
func (b *Builder) Script(ctx context.Context, names []schema.QualifiedName, opts Options) (string, error) {
	tables := make([]*schema.Table, 0, len(names))
	for _, n := range names {
		t, err := b.src.TableDefinition(ctx, n)
		if err != nil {
			return "", err
		}
		tables = append(tables, t)
	}
	return b.Generator().Script(tables, opts), nil
}

// IndexSource returns the CREATE INDEX statements of one table.
func (b *Builder) IndexSource(ctx context.Context, name schema.QualifiedName) (string, error) {
	table, err := b.src.TableDefinition(ctx, name)
	if err != nil {
		return "", err
	}
	gen := b.Generator()
	return joinStatements(gen.indexSources(gen.prepare(table))), nil
}

// ForeignKeySource returns standalone ALTER TABLE statements for every
// foreign key of one table.
func (b *Builder) ForeignKeySource(ctx context.Context, name schema.QualifiedName) (string, error) {
	table, err := b.src.TableDefinition(ctx, name)
	if err != nil {
		return "", err
	}
	gen := b.Generator()
	parts := make([]string, 0, len(table.ForeignKeys))
	for _, fk := range table.ForeignKeys {
		parts = append(parts, gen.ForeignKeySource(table, fk))
	}
	return joinStatements(parts), nil
}
