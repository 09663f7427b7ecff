package metadata

import (
	"context"
	"slices"
	"strings"

	"github.com/hurou927/dbmeta/internal/provider"
	"github.com/hurou927/dbmeta/internal/schema"
)

// ListObjects lists objects matching the given patterns. "*" and "" match
// everything; quoted patterns are taken literally. types restricts the
// object types, nil means all. Failing sources are logged and skipped, so
// the result may be partial but is never an error.
func (s *Service) ListObjects(ctx context.Context, catalogPattern, schemaPattern, namePattern string, types []string) []schema.QualifiedName {
	objects, err := s.collect(ctx, s.filter(catalogPattern, schemaPattern, namePattern, types))
	if err != nil {
		s.degrade("listing objects", err)
	}
	return objects
}

// ListTables lists tables matching the patterns.
func (s *Service) ListTables(ctx context.Context, schemaPattern, namePattern string) []schema.QualifiedName {
	return s.ListObjects(ctx, "", schemaPattern, namePattern, []string{TypeTable})
}

// filter normalizes user patterns into a provider request.
func (s *Service) filter(catalogPattern, schemaPattern, namePattern string, types []string) Filter {
	n := s.Naming()
	escape := ""
	if s.settings.Bool("metadata.wildcards", true) {
		escape = s.product.SearchEscape
	}
	return Filter{
		Catalog: cleanPattern(n, catalogPattern, ""),
		Schema:  cleanPattern(n, schemaPattern, escape),
		Name:    cleanPattern(n, namePattern, escape),
		Types:   cleanTypes(types),
	}
}

// cleanPattern turns "*" into "%", strips quotes and folds unquoted input
// to the storage case. When escape is set, underscores are escaped unless
// the pattern already uses wildcards.
func cleanPattern(n schema.Naming, p, escape string) string {
	p = strings.TrimSpace(p)
	if p == "" || p == "*" || p == "%" {
		return ""
	}
	if n.IsQuoted(p) {
		p = n.Unquote(p)
	} else {
		p = n.FoldCase(p)
	}
	p = strings.ReplaceAll(p, "*", "%")
	if escape != "" && !strings.Contains(p, "%") && !strings.Contains(p, escape) {
		p = strings.ReplaceAll(p, "_", escape+"_")
	}
	return p
}

// cleanTypes upper-cases the requested types and drops blanks. A "*"
// entry requests everything.
func cleanTypes(types []string) []string {
	out := make([]string, 0, len(types))
	for _, t := range types {
		t = strings.ToUpper(strings.TrimSpace(t))
		if t == "*" || t == "%" {
			return nil
		}
		if t != "" && !slices.Contains(out, t) {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func (s *Service) env() Env {
	return Env{Provider: s.prov, Settings: s.settings, Logger: s.logger}
}

// extenderOnly reports whether every requested type is served by a reader
// or an extender, which makes the provider call unnecessary.
func (s *Service) extenderOnly(types []string) bool {
	if len(types) == 0 {
		return false
	}
	owned := s.plugins.ownedTypes()
	for _, t := range types {
		if !containsFold(owned, t) {
			return false
		}
	}
	return true
}

// nativeTypes removes the types the provider cannot answer: types owned by
// plugins, index pseudo-types and, when the provider reports its table
// types, anything it does not know. Vendor names that map onto a
// requested type are added so the provider can match its own spelling.
func (s *Service) nativeTypes(types []string) []string {
	owned := s.plugins.ownedTypes()
	indexTypes := s.settings.List("metadata.types.index", nil)
	known := s.product.TableTypes
	alternates := s.settings.Map("metadata.types.alternate")
	vendorNames := make([]string, 0, len(alternates))
	for from := range alternates {
		vendorNames = append(vendorNames, from)
	}
	slices.Sort(vendorNames)

	var out []string
	for _, t := range types {
		if containsFold(owned, t) || containsFold(indexTypes, t) {
			continue
		}
		if len(known) > 0 && !containsFold(known, t) && !isAlternateTarget(alternates, known, t) {
			continue
		}
		out = append(out, t)
		for _, from := range vendorNames {
			if !strings.EqualFold(alternates[from], t) || containsFold(out, from) {
				continue
			}
			if len(known) > 0 && !containsFold(known, from) {
				continue
			}
			out = append(out, from)
		}
	}
	return out
}

// isAlternateTarget reports whether t is the canonical type of a native
// type the provider knows under a different name.
func isAlternateTarget(alternates map[string]string, known []string, t string) bool {
	for from, to := range alternates {
		if strings.EqualFold(to, t) && containsFold(known, from) {
			return true
		}
	}
	return false
}

// collect runs the listing pipeline: native rows, sequences, synonyms,
// appenders, extenders, enhancer, cleaners, then sorting. The returned
// error is the provider's own failure; plugin failures are logged.
func (s *Service) collect(ctx context.Context, f Filter) ([]schema.QualifiedName, error) {
	var (
		objects   []schema.QualifiedName
		nativeErr error
	)
	env := s.env()
	owned := s.plugins.ownedTypes()

	if !s.extenderOnly(f.Types) {
		native := s.nativeTypes(f.Types)
		if len(f.Types) == 0 || len(native) > 0 {
			rows, err := s.prov.Objects(ctx, f.Catalog, f.Schema, f.Name, native)
			if err != nil {
				nativeErr = err
			}
			objects = s.nativeObjects(rows, owned, f.Types)
		}
	}

	if s.plugins.Sequences != nil && f.Wants(TypeSequence) {
		seqs, err := s.plugins.Sequences.Sequences(ctx, env, f)
		if err != nil {
			s.degrade("reading sequences", err)
		}
		objects = appendUnique(objects, seqs)
	}
	if s.plugins.Synonyms != nil && f.Wants(TypeSynonym) {
		syns, err := s.plugins.Synonyms.Synonyms(ctx, env, f)
		if err != nil {
			s.degrade("reading synonyms", err)
		}
		objects = appendUnique(objects, syns)
	}
	for _, a := range s.plugins.Appenders {
		rows, err := a.Append(ctx, env, f)
		if err != nil {
			s.degrade("appending objects", err)
			continue
		}
		rows = slices.DeleteFunc(rows, func(q schema.QualifiedName) bool { return !f.Wants(q.Type) })
		objects = appendUnique(objects, rows)
	}
	for _, e := range s.plugins.Extenders {
		if !wantsAny(f, e.Types()) {
			continue
		}
		rows, err := e.Extend(ctx, env, f)
		if err != nil {
			s.degrade("extending objects", err, "types", e.Types())
			continue
		}
		objects = appendUnique(objects, rows)
	}
	if s.plugins.Enhancer != nil && len(objects) > 0 {
		if err := s.plugins.Enhancer.Enhance(ctx, env, objects); err != nil {
			s.degrade("enhancing objects", err)
		}
		objects = slices.DeleteFunc(objects, func(q schema.QualifiedName) bool { return !f.Wants(q.Type) })
	}
	for _, c := range s.plugins.Cleaners {
		cleaned, err := c.Clean(ctx, env, objects)
		if err != nil {
			s.degrade("cleaning objects", err)
			continue
		}
		objects = cleaned
	}

	schema.SortNames(objects)
	return objects, nativeErr
}

// nativeObjects converts provider rows: alternate type names are mapped
// to their canonical type, index pseudo-types and plugin-owned types are
// skipped.
func (s *Service) nativeObjects(rows []provider.ObjectRow, owned, types []string) []schema.QualifiedName {
	if len(rows) == 0 {
		return nil
	}
	alternates := s.settings.Map("metadata.types.alternate")
	indexTypes := s.settings.List("metadata.types.index", nil)

	out := make([]schema.QualifiedName, 0, len(rows))
	for _, r := range rows {
		t := strings.ToUpper(strings.TrimSpace(r.Type))
		if canonical, ok := alternates[t]; ok && canonical != "" {
			t = strings.ToUpper(canonical)
		}
		if containsFold(indexTypes, t) || containsFold(owned, t) {
			continue
		}
		if !provider.MatchType(types, t) {
			continue
		}
		q := schema.NewName(r.Catalog, r.Schema, r.Name, t)
		q.Comment = r.Remarks
		out = append(out, q)
	}
	return out
}

// appendUnique appends rows whose type and expression are not present yet.
func appendUnique(objects, rows []schema.QualifiedName) []schema.QualifiedName {
	if len(rows) == 0 {
		return objects
	}
	seen := make(map[string]bool, len(objects))
	for _, o := range objects {
		seen[o.Type+"\x00"+o.Expression()] = true
	}
	for _, r := range rows {
		key := r.Type + "\x00" + r.Expression()
		if seen[key] {
			continue
		}
		seen[key] = true
		objects = append(objects, r)
	}
	return objects
}

func wantsAny(f Filter, types []string) bool {
	for _, t := range types {
		if f.Wants(t) {
			return true
		}
	}
	return false
}

func containsFold(list []string, v string) bool {
	for _, s := range list {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}
