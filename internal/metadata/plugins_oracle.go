package metadata

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/hurou927/dbmeta/internal/schema"
)

func oraclePlugins() Plugins {
	return Plugins{
		Sequences: oracleSequences{},
		Synonyms:  oracleSynonyms{},
		Enhancer:  oracleMViewEnhancer{},
		Cleaners:  []Cleaner{oracleRecycleBinCleaner{}},
	}
}

type oracleSequences struct{}

func (oracleSequences) Sequences(ctx context.Context, env Env, f Filter) ([]schema.QualifiedName, error) {
	rows, err := env.Provider.Query(ctx, `
		SELECT NULL, sequence_owner, sequence_name
		FROM all_sequences
		WHERE sequence_owner LIKE :1 ESCAPE '\'
			AND sequence_name LIKE :2 ESCAPE '\'
		ORDER BY 2, 3`, likeAll(f.Schema), likeAll(f.Name))
	if err != nil {
		return nil, fmt.Errorf("querying sequences: %w", err)
	}
	return namesFromRows(rows, TypeSequence), nil
}

type oracleSynonyms struct{}

func (oracleSynonyms) Synonyms(ctx context.Context, env Env, f Filter) ([]schema.QualifiedName, error) {
	rows, err := env.Provider.Query(ctx, `
		SELECT NULL, owner, synonym_name
		FROM all_synonyms
		WHERE owner LIKE :1 ESCAPE '\'
			AND synonym_name LIKE :2 ESCAPE '\'
		ORDER BY 2, 3`, likeAll(f.Schema), likeAll(f.Name))
	if err != nil {
		return nil, fmt.Errorf("querying synonyms: %w", err)
	}
	return namesFromRows(rows, TypeSynonym), nil
}

// oracleMViewEnhancer reclassifies the container tables of materialized
// views, which the catalog reports as plain tables.
type oracleMViewEnhancer struct{}

func (oracleMViewEnhancer) Enhance(ctx context.Context, env Env, objects []schema.QualifiedName) error {
	if !slices.ContainsFunc(objects, func(q schema.QualifiedName) bool { return q.Type == TypeTable }) {
		return nil
	}
	rows, err := env.Provider.Query(ctx, `SELECT owner, mview_name FROM all_mviews`)
	if err != nil {
		return fmt.Errorf("querying materialized views: %w", err)
	}
	mviews := make(map[string]bool, len(rows))
	for _, r := range rows {
		if len(r) == 2 {
			mviews[r[0]+"."+r[1]] = true
		}
	}
	for i := range objects {
		if objects[i].Type == TypeTable && mviews[objects[i].Schema+"."+objects[i].Name] {
			objects[i].Type = TypeMaterializedView
		}
	}
	return nil
}

// oracleRecycleBinCleaner drops tables that live in the recycle bin.
type oracleRecycleBinCleaner struct{}

func (oracleRecycleBinCleaner) Clean(_ context.Context, _ Env, objects []schema.QualifiedName) ([]schema.QualifiedName, error) {
	return slices.DeleteFunc(objects, func(q schema.QualifiedName) bool {
		return strings.HasPrefix(q.Name, "BIN$")
	}), nil
}
