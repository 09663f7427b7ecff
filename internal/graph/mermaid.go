package graph

import (
	"fmt"
	"io"
	"strings"

	"github.com/hurou927/dbmeta/internal/schema"
)

var mermaidIDReplacer = strings.NewReplacer(".", "_", " ", "_", "$", "_", "\"", "_", "-", "_")

// WriteMermaid writes the graph as a Mermaid flowchart with one subgraph
// per component. Edges point from child to parent; virtual relations are
// dashed.
func WriteMermaid(w io.Writer, g *Graph) error {
	var b strings.Builder
	b.WriteString("graph TD\n")

	for i, comp := range FindComponents(g) {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "    subgraph component_%d [\"%s\"]\n", i+1, componentTitle(comp))
		for _, t := range comp.Tables {
			fmt.Fprintf(&b, "        %s[\"%s\"]\n", mermaidID(t), strings.ReplaceAll(t, "\"", "#quot;"))
		}

		members := make(map[string]bool, len(comp.Tables))
		for _, t := range comp.Tables {
			members[t] = true
		}
		for _, e := range g.Edges {
			if members[e.ChildTable] {
				writeMermaidEdge(&b, e.ChildTable, e.ParentTable, e.FK)
			}
		}
		for _, t := range comp.Tables {
			for _, fk := range g.SelfRefs[t] {
				writeMermaidEdge(&b, t, t, fk)
			}
		}
		b.WriteString("    end\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func componentTitle(c Component) string {
	title := fmt.Sprintf("%d tables", len(c.Tables))
	if len(c.Tables) == 1 {
		title = "1 table"
	}
	if c.Cyclic {
		title += ", cyclic"
	}
	return title
}

func writeMermaidEdge(b *strings.Builder, child, parent string, fk schema.ForeignKey) {
	arrow := "-->"
	if fk.Virtual {
		arrow = "-.->"
	}
	fmt.Fprintf(b, "        %s %s|%s| %s\n", mermaidID(child), arrow, strings.Join(fk.ChildColumns, ", "), mermaidID(parent))
}

// mermaidID turns a table expression into a node id.
func mermaidID(name string) string {
	return mermaidIDReplacer.Replace(name)
}

// WriteText writes a summary of the graph: counts, creation levels,
// problem tables and one line per table grouped by component.
func WriteText(w io.Writer, g *Graph) error {
	components := FindComponents(g)
	order := TopoSortAll(g)
	level := make(map[string]int, len(order.Order))
	for l, tables := range order.Levels {
		for _, t := range tables {
			level[t] = l
		}
	}

	selfRefs, virtual := 0, 0
	var selfRefTables, noPK []string
	for _, name := range g.Names() {
		if n := len(g.SelfRefs[name]); n > 0 {
			selfRefs += n
			selfRefTables = append(selfRefTables, name)
		}
		for _, fk := range g.Tables[name].ForeignKeys {
			if fk.Virtual {
				virtual++
			}
		}
		if len(g.Tables[name].PKColumnNames()) == 0 {
			noPK = append(noPK, name)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Tables: %d\n", len(g.Tables))
	fmt.Fprintf(&b, "Foreign Keys: %d (%d self-referencing, %d virtual)\n", len(g.Edges)+selfRefs, selfRefs, virtual)
	fmt.Fprintf(&b, "Connected Components: %d\n\n", len(components))

	b.WriteString("Creation order:\n")
	for l, tables := range order.Levels {
		fmt.Fprintf(&b, "  level %d: %s\n", l, strings.Join(tables, ", "))
	}
	b.WriteString("\n")

	if order.HasCycle {
		fmt.Fprintf(&b, "WARNING: Circular dependencies detected: %v\n\n", order.CycleTables)
	}
	if len(noPK) > 0 {
		fmt.Fprintf(&b, "WARNING: Tables without primary key: %v\n\n", noPK)
	}
	if len(selfRefTables) > 0 {
		fmt.Fprintf(&b, "Self-referencing tables: %v\n\n", selfRefTables)
	}

	for i, comp := range components {
		fmt.Fprintf(&b, "=== Component %d (%s, %d foreign keys) ===\n", i+1, componentTitle(comp), comp.ForeignKeys)
		for _, t := range comp.Tables {
			b.WriteString("  " + tableLine(g, t, level))
		}
		b.WriteString("\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func tableLine(g *Graph, name string, level map[string]int) string {
	tbl := g.Tables[name]
	pk := "no PK"
	if cols := tbl.PKColumnNames(); len(cols) > 0 {
		pk = "PK (" + strings.Join(cols, ", ") + ")"
	}
	lvl := "cycle"
	if l, ok := level[name]; ok {
		lvl = fmt.Sprintf("level %d", l)
	}
	line := fmt.Sprintf("%s [%s, %d cols, %s]", name, lvl, len(tbl.Columns), pk)
	if parents := g.Parents[name]; len(parents) > 0 {
		line += " -> " + strings.Join(parents, ", ")
	}
	return line + "\n"
}
