package ddl

import (
	"slices"

	"github.com/hurou927/dbmeta/internal/graph"
	"github.com/hurou927/dbmeta/internal/schema"
)

// Script renders several tables as one script. Tables are created parents
// first and dropped children first. Standalone foreign keys follow the
// last CREATE TABLE so that circular references still apply.
func (g *Generator) Script(tables []*schema.Table, opts Options) string {
	order := CreationOrder(tables)

	byName := make(map[string]*schema.Table, len(tables))
	for _, t := range tables {
		byName[t.Name.Expression()] = g.prepare(t)
	}

	var parts []string
	if opts.IncludeDrop {
		for _, name := range slices.Backward(order) {
			parts = append(parts, g.DropStatement(byName[name]))
		}
	}

	create := opts
	create.IncludeDrop = false
	var fks []string
	for _, name := range order {
		t := byName[name]
		parts = append(parts, g.tableStatements(t, create, false)...)
		if opts.IncludeFK && !g.inlineFK(t) {
			for _, fk := range t.ForeignKeys {
				fks = append(fks, g.ForeignKeySource(t, fk))
			}
		}
	}
	return joinStatements(append(parts, fks...))
}

// CreationOrder returns table expressions with every parent before its
// children. Tables on a foreign key cycle come last, sorted by name.
func CreationOrder(tables []*schema.Table) []string {
	res := graph.TopoSortAll(graph.Build(tables, nil, nil))
	return append(res.Order, res.CycleTables...)
}
