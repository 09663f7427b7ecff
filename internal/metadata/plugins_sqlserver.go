package metadata

import (
	"context"
	"fmt"

	"github.com/hurou927/dbmeta/internal/schema"
)

func sqlServerPlugins() Plugins {
	return Plugins{
		Sequences: sqlServerSequences{},
		Synonyms:  sqlServerSynonyms{},
		Extenders: []Extender{sqlServerTableTypes{}},
	}
}

type sqlServerSequences struct{}

func (sqlServerSequences) Sequences(ctx context.Context, env Env, f Filter) ([]schema.QualifiedName, error) {
	rows, err := env.Provider.Query(ctx, `
		SELECT db_name(), s.name, q.name
		FROM sys.sequences q
		JOIN sys.schemas s ON s.schema_id = q.schema_id
		WHERE s.name LIKE @p1 AND q.name LIKE @p2
		ORDER BY 2, 3`, likeAll(f.Schema), likeAll(f.Name))
	if err != nil {
		return nil, fmt.Errorf("querying sequences: %w", err)
	}
	return namesFromRows(rows, TypeSequence), nil
}

type sqlServerSynonyms struct{}

func (sqlServerSynonyms) Synonyms(ctx context.Context, env Env, f Filter) ([]schema.QualifiedName, error) {
	rows, err := env.Provider.Query(ctx, `
		SELECT db_name(), s.name, y.name
		FROM sys.synonyms y
		JOIN sys.schemas s ON s.schema_id = y.schema_id
		WHERE s.name LIKE @p1 AND y.name LIKE @p2
		ORDER BY 2, 3`, likeAll(f.Schema), likeAll(f.Name))
	if err != nil {
		return nil, fmt.Errorf("querying synonyms: %w", err)
	}
	return namesFromRows(rows, TypeSynonym), nil
}

// sqlServerTableTypes lists user-defined table types.
type sqlServerTableTypes struct{}

func (sqlServerTableTypes) Types() []string { return []string{TypeTableType} }

func (sqlServerTableTypes) Extend(ctx context.Context, env Env, f Filter) ([]schema.QualifiedName, error) {
	rows, err := env.Provider.Query(ctx, `
		SELECT db_name(), s.name, t.name
		FROM sys.table_types t
		JOIN sys.schemas s ON s.schema_id = t.schema_id
		WHERE t.is_user_defined = 1
			AND s.name LIKE @p1 AND t.name LIKE @p2
		ORDER BY 2, 3`, likeAll(f.Schema), likeAll(f.Name))
	if err != nil {
		return nil, fmt.Errorf("querying table types: %w", err)
	}
	return namesFromRows(rows, TypeTableType), nil
}
