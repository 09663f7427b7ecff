package metadata

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/hurou927/dbmeta/internal/schema"
)

// mariaDBSequences lists sequences, which MariaDB stores as tables.
type mariaDBSequences struct{}

func (mariaDBSequences) Sequences(ctx context.Context, env Env, f Filter) ([]schema.QualifiedName, error) {
	ns := f.Schema
	if ns == "" {
		ns = f.Catalog
	}
	rows, err := env.Provider.Query(ctx, `
		SELECT table_schema, table_name, table_comment
		FROM information_schema.tables
		WHERE table_type = 'SEQUENCE'
			AND table_schema LIKE ?
			AND table_name LIKE ?
		ORDER BY 1, 2`, likeAll(ns), likeAll(f.Name))
	if err != nil {
		return nil, fmt.Errorf("querying sequences: %w", err)
	}
	out := make([]schema.QualifiedName, 0, len(rows))
	for _, r := range rows {
		if len(r) < 2 {
			continue
		}
		// Databases play the catalog role.
		q := schema.NewName(r[0], "", r[1], TypeSequence)
		if len(r) > 2 {
			q.Comment = r[2]
		}
		out = append(out, q)
	}
	return out, nil
}

func informationSchemaDomainPlugins() Plugins {
	return Plugins{Extenders: []Extender{infoSchemaDomains{}}}
}

// infoSchemaDomains lists domains from information_schema.domains.
type infoSchemaDomains struct{}

func (infoSchemaDomains) Types() []string { return []string{TypeDomain} }

func (infoSchemaDomains) Extend(ctx context.Context, env Env, f Filter) ([]schema.QualifiedName, error) {
	rows, err := env.Provider.Query(ctx, `
		SELECT domain_catalog, domain_schema, domain_name
		FROM information_schema.domains
		WHERE domain_schema LIKE ?
			AND domain_name LIKE ?
		ORDER BY 2, 3`, likeAll(f.Schema), likeAll(f.Name))
	if err != nil {
		return nil, fmt.Errorf("querying domains: %w", err)
	}
	return namesFromRows(rows, TypeDomain), nil
}

// sqliteInternalCleaner drops sqlite_* bookkeeping tables.
type sqliteInternalCleaner struct{}

func (sqliteInternalCleaner) Clean(_ context.Context, _ Env, objects []schema.QualifiedName) ([]schema.QualifiedName, error) {
	return slices.DeleteFunc(objects, func(q schema.QualifiedName) bool {
		return strings.HasPrefix(strings.ToLower(q.Name), "sqlite_")
	}), nil
}

// clickHouseDictionaries appends external dictionaries, which older
// servers leave out of system.tables.
type clickHouseDictionaries struct{}

func (clickHouseDictionaries) Append(ctx context.Context, env Env, f Filter) ([]schema.QualifiedName, error) {
	if !f.Wants(TypeDictionary) {
		return nil, nil
	}
	ns := f.Schema
	if ns == "" {
		ns = f.Catalog
	}
	rows, err := env.Provider.Query(ctx, `
		SELECT '', database, name, comment
		FROM system.dictionaries
		WHERE database LIKE ? AND name LIKE ?
		ORDER BY 2, 3`, likeAll(ns), likeAll(f.Name))
	if err != nil {
		return nil, fmt.Errorf("querying dictionaries: %w", err)
	}
	return namesFromRows(rows, TypeDictionary), nil
}
