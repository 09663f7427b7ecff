package graph

import (
	"cmp"
	"slices"
	"strings"
)

// Component is a set of tables linked by foreign keys in either direction.
type Component struct {
	// Tables is sorted by name.
	Tables []string
	// ForeignKeys counts the keys inside the component, self-references
	// included.
	ForeignKeys int
	Cyclic      bool
}

// FindComponents splits the graph into weakly connected components,
// largest first. Components of equal size are ordered by their first table.
func FindComponents(g *Graph) []Component {
	root := make(map[string]string, len(g.Tables))
	for name := range g.Tables {
		root[name] = name
	}
	find := func(x string) string {
		for root[x] != x {
			root[x] = root[root[x]]
			x = root[x]
		}
		return x
	}
	for _, e := range g.Edges {
		if a, b := find(e.ChildTable), find(e.ParentTable); a != b {
			root[a] = b
		}
	}

	byRoot := make(map[string]*Component)
	var comps []*Component
	for _, name := range g.Names() {
		r := find(name)
		c := byRoot[r]
		if c == nil {
			c = &Component{}
			byRoot[r] = c
			comps = append(comps, c)
		}
		c.Tables = append(c.Tables, name)
	}
	for _, e := range g.Edges {
		byRoot[find(e.ChildTable)].ForeignKeys++
	}
	for name, fks := range g.SelfRefs {
		byRoot[find(name)].ForeignKeys += len(fks)
	}

	out := make([]Component, len(comps))
	for i, c := range comps {
		c.Cyclic = TopoSort(g, c.Tables).HasCycle
		out[i] = *c
	}
	slices.SortStableFunc(out, func(a, b Component) int {
		if n := cmp.Compare(len(b.Tables), len(a.Tables)); n != 0 {
			return n
		}
		return strings.Compare(a.Tables[0], b.Tables[0])
	})
	return out
}
