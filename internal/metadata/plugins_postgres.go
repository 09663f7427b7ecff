package metadata

import (
	"context"
	"fmt"
	"slices"

	"github.com/hurou927/dbmeta/internal/schema"
)

func postgresPlugins() Plugins {
	return Plugins{
		Extenders: []Extender{pgDomainExtender{}, pgEnumExtender{}},
		Cleaners:  []Cleaner{pgPartitionCleaner{}},
	}
}

// pgDomainExtender lists domains from pg_type.
type pgDomainExtender struct{}

func (pgDomainExtender) Types() []string { return []string{TypeDomain} }

func (pgDomainExtender) Extend(ctx context.Context, env Env, f Filter) ([]schema.QualifiedName, error) {
	rows, err := env.Provider.Query(ctx, `
		SELECT current_database(), n.nspname, t.typname, coalesce(obj_description(t.oid, 'pg_type'), '')
		FROM pg_type t
		JOIN pg_namespace n ON n.oid = t.typnamespace
		WHERE t.typtype = 'd'
			AND n.nspname LIKE $1
			AND t.typname LIKE $2
		ORDER BY 2, 3`, likeAll(f.Schema), likeAll(f.Name))
	if err != nil {
		return nil, fmt.Errorf("querying domains: %w", err)
	}
	return namesFromRows(rows, TypeDomain), nil
}

// pgEnumExtender lists enum types from pg_type.
type pgEnumExtender struct{}

func (pgEnumExtender) Types() []string { return []string{TypeEnum} }

func (pgEnumExtender) Extend(ctx context.Context, env Env, f Filter) ([]schema.QualifiedName, error) {
	rows, err := env.Provider.Query(ctx, `
		SELECT current_database(), n.nspname, t.typname, coalesce(obj_description(t.oid, 'pg_type'), '')
		FROM pg_type t
		JOIN pg_namespace n ON n.oid = t.typnamespace
		WHERE t.typtype = 'e'
			AND n.nspname LIKE $1
			AND t.typname LIKE $2
		ORDER BY 2, 3`, likeAll(f.Schema), likeAll(f.Name))
	if err != nil {
		return nil, fmt.Errorf("querying enums: %w", err)
	}
	return namesFromRows(rows, TypeEnum), nil
}

// pgPartitionCleaner removes partitions, which otherwise show up next to
// the partitioned table they belong to.
type pgPartitionCleaner struct{}

func (pgPartitionCleaner) Clean(ctx context.Context, env Env, objects []schema.QualifiedName) ([]schema.QualifiedName, error) {
	if !env.Settings.Version().AtLeast(10, 0) {
		return objects, nil
	}
	if !slices.ContainsFunc(objects, func(q schema.QualifiedName) bool { return q.Type == TypeTable }) {
		return objects, nil
	}
	rows, err := env.Provider.Query(ctx, `
		SELECT n.nspname, c.relname
		FROM pg_class c
		JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE c.relispartition`)
	if err != nil {
		return objects, fmt.Errorf("querying partitions: %w", err)
	}
	if len(rows) == 0 {
		return objects, nil
	}
	partitions := make(map[string]bool, len(rows))
	for _, r := range rows {
		if len(r) == 2 {
			partitions[r[0]+"."+r[1]] = true
		}
	}
	return slices.DeleteFunc(objects, func(q schema.QualifiedName) bool {
		return q.Type == TypeTable && partitions[q.Schema+"."+q.Name]
	}), nil
}
