// Package deletescript builds DELETE statements that remove root rows
// together with every row that references them, children first.
package deletescript

import (
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"

	"github.com/hurou927/dbmeta/internal/config"
	"github.com/hurou927/dbmeta/internal/graph"
	"github.com/hurou927/dbmeta/internal/output"
	"github.com/hurou927/dbmeta/internal/schema"
)

// Statement is one step of a delete script.
type Statement struct {
	// Table is the table expression.
	Table string
	// Level is the table's distance from the roots in creation order;
	// statements run from the highest level down.
	Level int
	SQL   string
	// Skipped tables sit on a foreign key cycle and get no statement.
	Skipped bool
}

// condition selects rows of one table. all means every row.
type condition struct {
	all  bool
	expr string
}

func (c condition) where() string {
	if c.all {
		return ""
	}
	return " WHERE " + c.expr
}

// Generator derives delete scripts from a foreign key graph.
type Generator struct {
	g      *graph.Graph
	naming schema.Naming
	logger *slog.Logger
}

// New creates a generator. Virtual relations must already be part of g.
func New(g *graph.Graph, naming schema.Naming, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Generator{g: g, naming: naming, logger: logger}
}

// Statements returns the DELETE statements for the given roots in
// execution order.
func (gen *Generator) Statements(roots []config.Root) ([]Statement, error) {
	rootConds := make(map[string]condition, len(roots))
	for _, r := range roots {
		key := gen.g.Lookup(r.Table)
		if key == "" {
			return nil, fmt.Errorf("root table %q not found", r.Table)
		}
		cond, err := gen.rootCondition(gen.g.Tables[key], r)
		if err != nil {
			return nil, fmt.Errorf("root %s: %w", key, err)
		}
		if prev, ok := rootConds[key]; ok {
			cond = or(prev, cond)
		}
		rootConds[key] = cond
	}

	affected := gen.affected(rootConds)
	res := graph.TopoSort(gen.g, affected)
	if res.HasCycle {
		gen.logger.Warn("tables on a foreign key cycle are skipped", slog.Any("tables", res.CycleTables))
	}

	conds := make(map[string]condition, len(affected))
	for _, name := range res.Order {
		cond, ok := gen.tableCondition(name, rootConds, conds)
		if !ok {
			continue
		}
		conds[name] = gen.expandSelfRefs(gen.g.Tables[name], cond)
	}

	var out []Statement
	for _, name := range res.CycleTables {
		out = append(out, Statement{Table: name, Level: len(res.Levels), Skipped: true})
	}
	for level, tables := range slices.Backward(res.Levels) {
		for _, name := range tables {
			cond, ok := conds[name]
			if !ok {
				continue
			}
			out = append(out, Statement{
				Table: name,
				Level: level,
				SQL:   "DELETE FROM " + gen.naming.Render(gen.g.Tables[name].Name) + cond.where(),
			})
		}
	}
	return out, nil
}

// affected returns the roots and every table that reaches them through
// foreign keys, sorted.
func (gen *Generator) affected(roots map[string]condition) []string {
	seen := make(map[string]bool)
	var queue []string
	for name := range roots {
		seen[name] = true
		queue = append(queue, name)
	}
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		for _, child := range gen.g.Children[name] {
			if !seen[child] {
				seen[child] = true
				queue = append(queue, child)
			}
		}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}

func (gen *Generator) rootCondition(t *schema.Table, r config.Root) (condition, error) {
	var parts []string
	if w := strings.TrimSpace(r.Where); w != "" {
		parts = append(parts, "("+w+")")
	}
	if len(r.Keys) > 0 {
		pk := t.PKColumnNames()
		if len(pk) != 1 {
			return condition{}, fmt.Errorf("keys need a single-column primary key, table has %d columns", len(pk))
		}
		values := make([]string, len(r.Keys))
		for i, k := range r.Keys {
			values[i] = output.Literal(k)
		}
		parts = append(parts, gen.column(t, pk[0])+" IN ("+strings.Join(values, ", ")+")")
	}
	if len(parts) == 0 {
		return condition{all: true}, nil
	}
	return condition{expr: strings.Join(parts, " AND ")}, nil
}

// tableCondition combines the table's own root condition with one
// subselect per parent edge whose parent rows are being deleted.
func (gen *Generator) tableCondition(name string, roots, parents map[string]condition) (condition, bool) {
	cond, isRoot := roots[name]
	found := isRoot
	for _, e := range gen.g.Edges {
		if e.ChildTable != name {
			continue
		}
		pc, ok := parents[e.ParentTable]
		if !ok {
			continue
		}
		term := condition{expr: gen.inSubselect(gen.g.Tables[name], e.FK, gen.g.Tables[e.ParentTable], pc)}
		if found {
			cond = or(cond, term)
		} else {
			cond, found = term, true
		}
	}
	return cond, found
}

func (gen *Generator) inSubselect(child *schema.Table, fk schema.ForeignKey, parent *schema.Table, pc condition) string {
	return fmt.Sprintf("%s IN (SELECT %s FROM %s%s)",
		tuple(gen.columns(child, fk.ChildColumns)),
		strings.Join(gen.columns(parent, fk.ParentColumns), ", "),
		gen.naming.Render(parent.Name),
		pc.where())
}

// expandSelfRefs widens cond to the rows that reference selected rows of
// the same table, at any depth, using a recursive query.
func (gen *Generator) expandSelfRefs(t *schema.Table, cond condition) condition {
	refs := gen.g.SelfRefs[t.FullName()]
	if len(refs) == 0 || cond.all {
		return cond
	}

	key := t.PKColumnNames()
	if len(key) == 0 {
		key = refs[0].ParentColumns
	}
	cols := slices.Clone(key)
	for _, fk := range refs {
		for _, c := range fk.ParentColumns {
			if !slices.ContainsFunc(cols, func(s string) bool { return strings.EqualFold(s, c) }) {
				cols = append(cols, c)
			}
		}
	}

	var joins []string
	for _, fk := range refs {
		var on []string
		for i, c := range fk.ChildColumns {
			on = append(on, "c."+gen.column(t, c)+" = p."+gen.column(t, fk.ParentColumns[i]))
		}
		joins = append(joins, strings.Join(on, " AND "))
	}
	joinCond := joins[0]
	if len(joins) > 1 {
		joinCond = "(" + strings.Join(joins, ") OR (") + ")"
	}

	table := gen.naming.Render(t.Name)
	quoted := gen.columns(t, cols)
	prefixed := make([]string, len(quoted))
	for i, c := range quoted {
		prefixed[i] = "c." + c
	}
	keyList := strings.Join(gen.columns(t, key), ", ")

	return condition{expr: fmt.Sprintf(
		"%s IN (WITH RECURSIVE tree AS (SELECT %s FROM %s WHERE %s UNION SELECT %s FROM %s c JOIN tree p ON %s) SELECT %s FROM tree)",
		tuple(gen.columns(t, key)),
		strings.Join(quoted, ", "), table, cond.expr,
		strings.Join(prefixed, ", "), table, joinCond,
		keyList,
	)}
}

func or(a, b condition) condition {
	if a.all || b.all {
		return condition{all: true}
	}
	return condition{expr: "(" + a.expr + ") OR (" + b.expr + ")"}
}

// tuple renders a single column bare and several as a row value.
func tuple(cols []string) string {
	if len(cols) == 1 {
		return cols[0]
	}
	return "(" + strings.Join(cols, ", ") + ")"
}

func (gen *Generator) columns(t *schema.Table, names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = gen.column(t, n)
	}
	return out
}

func (gen *Generator) column(t *schema.Table, name string) string {
	if c := t.Column(name); c != nil && c.Name == name {
		return gen.naming.QuoteColumn(*c)
	}
	return gen.naming.QuoteObjectName(name)
}

// WriteOptions control script output.
type WriteOptions struct {
	Transactional bool
	Delimiter     string
}

// Write renders the delete script for roots to w.
func (gen *Generator) Write(w io.Writer, roots []config.Root, opts WriteOptions) error {
	stmts, err := gen.Statements(roots)
	if err != nil {
		return err
	}

	sw := output.NewWriter(w)
	sw.SetDelimiter(opts.Delimiter)
	rootNames := make([]string, len(roots))
	for i, r := range roots {
		rootNames[i] = r.Table
	}
	if err := sw.WriteHeader("Delete script for "+strings.Join(rootNames, ", "), opts.Transactional); err != nil {
		return err
	}
	for _, s := range stmts {
		if s.Skipped {
			if err := sw.WriteComment("skipped, circular foreign keys: " + s.Table); err != nil {
				return err
			}
			continue
		}
		if err := sw.WriteStatement(s.SQL); err != nil {
			return fmt.Errorf("writing %s: %w", s.Table, err)
		}
	}
	return sw.WriteFooter()
}
