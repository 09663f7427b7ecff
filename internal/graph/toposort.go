package graph

import (
	"fmt"
	"slices"
)

// TopoResult is a creation order for a set of tables.
type TopoResult struct {
	// Order lists parents before their children.
	Order []string
	// Levels splits Order into layers: every table's in-scope parents sit
	// in an earlier layer. Each layer is sorted by name.
	Levels [][]string
	// HasCycle reports tables that could not be placed.
	HasCycle    bool
	CycleTables []string
}

// TopoSort orders the given tables level by level. Only parents inside
// tables count. Tables on a cycle, and tables depending on one, are never
// placed and end up in CycleTables.
func TopoSort(g *Graph, tables []string) TopoResult {
	pending := make(map[string]int, len(tables))
	for _, t := range tables {
		pending[t] = 0
	}
	for t := range pending {
		for _, p := range g.Parents[t] {
			if _, ok := pending[p]; ok {
				pending[t]++
			}
		}
	}

	var res TopoResult
	for {
		var level []string
		for t, n := range pending {
			if n == 0 {
				level = append(level, t)
			}
		}
		if len(level) == 0 {
			break
		}
		slices.Sort(level)
		for _, t := range level {
			delete(pending, t)
		}
		for _, t := range level {
			for _, c := range g.Children[t] {
				if _, ok := pending[c]; ok {
					pending[c]--
				}
			}
		}
		res.Levels = append(res.Levels, level)
		res.Order = append(res.Order, level...)
	}

	if len(pending) > 0 {
		res.HasCycle = true
		for t := range pending {
			res.CycleTables = append(res.CycleTables, t)
		}
		slices.Sort(res.CycleTables)
	}
	return res
}

// TopoSortAll orders every table of the graph.
func TopoSortAll(g *Graph) TopoResult {
	return TopoSort(g, g.Names())
}

// ValidateCycles returns an error naming the unplaced tables, if any.
func ValidateCycles(res TopoResult) error {
	if !res.HasCycle {
		return nil
	}
	return fmt.Errorf("circular dependency detected among tables: %v", res.CycleTables)
}
