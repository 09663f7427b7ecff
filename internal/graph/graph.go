package graph

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/hurou927/dbmeta/internal/config"
	"github.com/hurou927/dbmeta/internal/schema"
)

// Edge is one foreign key between two different tables.
type Edge struct {
	FK          schema.ForeignKey
	ChildTable  string
	ParentTable string
}

// Graph holds the dependency nodes of a set of tables: which table
// references which through real or virtual foreign keys. Keys are unquoted
// table expressions.
type Graph struct {
	Tables map[string]*schema.Table

	// Edges point from child to parent. Self-references are kept apart in
	// SelfRefs.
	Edges    []Edge
	SelfRefs map[string][]schema.ForeignKey

	Children map[string][]string
	Parents  map[string][]string
}

// Build links the given tables. Tables whose lower-cased name or
// expression is in excludeSet are left out, as are foreign keys to tables
// outside the set. Virtual relations are added to their child tables as
// foreign keys marked Virtual.
func Build(tables []*schema.Table, excludeSet map[string]bool, virtualRelations []config.VirtualRelation) *Graph {
	g := &Graph{
		Tables:   make(map[string]*schema.Table),
		SelfRefs: make(map[string][]schema.ForeignKey),
		Children: make(map[string][]string),
		Parents:  make(map[string][]string),
	}

	for _, tbl := range tables {
		name := tbl.FullName()
		if excludeSet[strings.ToLower(tbl.Name.Name)] || excludeSet[strings.ToLower(name)] {
			continue
		}
		// Virtual relations are added to the copy, never to the caller's table.
		c := *tbl
		c.ForeignKeys = slices.Clip(tbl.ForeignKeys)
		g.Tables[name] = &c
	}

	for _, vr := range virtualRelations {
		childKey := findTableKey(g.Tables, vr.ChildTable)
		parentKey := findTableKey(g.Tables, vr.ParentTable)
		if childKey == "" || parentKey == "" {
			continue
		}
		child := g.Tables[childKey]
		parent := g.Tables[parentKey]
		fk := schema.ForeignKey{
			Name:          fmt.Sprintf("virtual_%s_%s_%s", child.Name.Name, vr.ChildColumn, parent.Name.Name),
			Child:         schema.NewName(child.Name.Catalog, child.Name.Schema, child.Name.Name, child.Name.Type),
			Parent:        schema.NewName(parent.Name.Catalog, parent.Name.Schema, parent.Name.Name, parent.Name.Type),
			ChildColumns:  []string{vr.ChildColumn},
			ParentColumns: []string{vr.ParentColumn},
			Virtual:       true,
		}
		child.ForeignKeys = append(child.ForeignKeys, fk)
	}

	for _, name := range g.Names() {
		tbl := g.Tables[name]
		for _, fk := range tbl.ForeignKeys {
			parentKey := findTableKey(g.Tables, fk.ParentKey())
			if parentKey == "" {
				continue
			}

			if parentKey == name {
				g.SelfRefs[name] = append(g.SelfRefs[name], fk)
				continue
			}

			g.Edges = append(g.Edges, Edge{
				FK:          fk,
				ChildTable:  name,
				ParentTable: parentKey,
			})
			if !slices.Contains(g.Children[parentKey], name) {
				g.Children[parentKey] = append(g.Children[parentKey], name)
			}
			if !slices.Contains(g.Parents[name], parentKey) {
				g.Parents[name] = append(g.Parents[name], parentKey)
			}
		}
	}

	return g
}

func findTableKey(tables map[string]*schema.Table, name string) string {
	if _, ok := tables[name]; ok {
		return name
	}
	unqualified := name
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		unqualified = name[i+1:]
	}
	var found string
	for key, tbl := range tables {
		if !strings.EqualFold(tbl.Name.Name, unqualified) {
			continue
		}
		if found != "" {
			return ""
		}
		found = key
	}
	return found
}

// Lookup returns the key of the table called name, qualified or not, or
// "" when there is no such table or the unqualified name is ambiguous.
func (g *Graph) Lookup(name string) string {
	return findTableKey(g.Tables, name)
}

// Names returns the table keys, sorted.
func (g *Graph) Names() []string {
	return slices.Sorted(maps.Keys(g.Tables))
}
