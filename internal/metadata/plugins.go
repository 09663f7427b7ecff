package metadata

import (
	"context"
	"log/slog"
	"sync"

	"github.com/hurou927/dbmeta/internal/capability"
	"github.com/hurou927/dbmeta/internal/dialect"
	"github.com/hurou927/dbmeta/internal/provider"
	"github.com/hurou927/dbmeta/internal/schema"
)

// Object types produced by the service and its plugins.
const (
	TypeTable            = "TABLE"
	TypeView             = "VIEW"
	TypeMaterializedView = "MATERIALIZED VIEW"
	TypeSequence         = "SEQUENCE"
	TypeSynonym          = "SYNONYM"
	TypeDomain           = "DOMAIN"
	TypeEnum             = "ENUM"
	TypeTableType        = "TABLE TYPE"
	TypeDictionary       = "DICTIONARY"
)

// Filter is a cleaned object-list request. Schema and Name are LIKE
// patterns; "" matches everything. An empty Types list requests all types.
type Filter struct {
	Catalog string
	Schema  string
	Name    string
	Types   []string
}

// Wants reports whether objects of type t were requested.
func (f Filter) Wants(t string) bool {
	return provider.MatchType(f.Types, t)
}

// Env is what plugins may use from the service.
type Env struct {
	Provider provider.Provider
	Settings *capability.Settings
	Logger   *slog.Logger
}

// SequenceReader lists sequences for dialects whose provider does not
// report them as objects.
type SequenceReader interface {
	Sequences(ctx context.Context, env Env, f Filter) ([]schema.QualifiedName, error)
}

// SynonymReader lists synonyms.
type SynonymReader interface {
	Synonyms(ctx context.Context, env Env, f Filter) ([]schema.QualifiedName, error)
}

// Appender adds rows the provider missed. Appended rows are filtered by the
// requested types.
type Appender interface {
	Append(ctx context.Context, env Env, f Filter) ([]schema.QualifiedName, error)
}

// Extender owns object types the provider does not know about and lists
// them on request.
type Extender interface {
	Types() []string
	Extend(ctx context.Context, env Env, f Filter) ([]schema.QualifiedName, error)
}

// Enhancer mutates the collected rows in place.
type Enhancer interface {
	Enhance(ctx context.Context, env Env, objects []schema.QualifiedName) error
}

// Cleaner removes rows from the collected list.
type Cleaner interface {
	Clean(ctx context.Context, env Env, objects []schema.QualifiedName) ([]schema.QualifiedName, error)
}

// Plugins is the set of list-objects plugins of one dialect. ListObjects
// runs them in this order: sequences, synonyms, appenders, extenders,
// enhancer, cleaners.
type Plugins struct {
	Sequences SequenceReader
	Synonyms  SynonymReader
	Appenders []Appender
	Extenders []Extender
	Enhancer  Enhancer
	Cleaners  []Cleaner
}

// ownedTypes returns the object types served by readers and extenders.
func (p Plugins) ownedTypes() []string {
	var types []string
	if p.Sequences != nil {
		types = append(types, TypeSequence)
	}
	if p.Synonyms != nil {
		types = append(types, TypeSynonym)
	}
	for _, e := range p.Extenders {
		types = append(types, e.Types()...)
	}
	return types
}

var (
	pluginMu  sync.RWMutex
	factories = map[dialect.ID]func() Plugins{}
)

// RegisterPlugins installs the plugin factory for a dialect, replacing any
// previous registration.
func RegisterPlugins(id dialect.ID, factory func() Plugins) {
	pluginMu.Lock()
	defer pluginMu.Unlock()
	factories[id] = factory
}

// PluginsFor builds the plugin set of a dialect. Dialects without a
// registration get an empty set.
func PluginsFor(id dialect.ID) Plugins {
	pluginMu.RLock()
	factory, ok := factories[id]
	pluginMu.RUnlock()
	if !ok {
		return Plugins{}
	}
	return factory()
}

func init() {
	RegisterPlugins(dialect.PostgreSQL, postgresPlugins)
	RegisterPlugins(dialect.CockroachDB, func() Plugins {
		return Plugins{Extenders: []Extender{pgEnumExtender{}}}
	})
	RegisterPlugins(dialect.Oracle, oraclePlugins)
	RegisterPlugins(dialect.SQLServer, sqlServerPlugins)
	RegisterPlugins(dialect.MariaDB, func() Plugins {
		return Plugins{Sequences: mariaDBSequences{}}
	})
	RegisterPlugins(dialect.H2, informationSchemaDomainPlugins)
	RegisterPlugins(dialect.HSQLDB, informationSchemaDomainPlugins)
	RegisterPlugins(dialect.SQLite, func() Plugins {
		return Plugins{Cleaners: []Cleaner{sqliteInternalCleaner{}}}
	})
	RegisterPlugins(dialect.ClickHouse, func() Plugins {
		return Plugins{Appenders: []Appender{clickHouseDictionaries{}}}
	})
}

// namesFromRows turns (catalog, schema, name[, remarks]) rows into
// identifiers of the given type.
func namesFromRows(rows [][]string, objectType string) []schema.QualifiedName {
	out := make([]schema.QualifiedName, 0, len(rows))
	for _, r := range rows {
		if len(r) < 3 {
			continue
		}
		q := schema.NewName(r[0], r[1], r[2], objectType)
		if len(r) > 3 {
			q.Comment = r[3]
		}
		out = append(out, q)
	}
	return out
}

// likeAll turns an empty pattern into "%".
func likeAll(p string) string {
	if p == "" {
		return "%"
	}
	return p
}
