// Package cache keeps table names, columns and definitions that were
// already read from the metadata service, per schema, for the lifetime of
// one connection.
package cache

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/hurou927/dbmeta/internal/capability"
	"github.com/hurou927/dbmeta/internal/schema"
)

// noSchema is the key for tables of dialects without schemas.
const noSchema = "\x00"

// Source is the part of the metadata service the cache reads through.
type Source interface {
	ListTables(ctx context.Context, schemaPattern, namePattern string) []schema.QualifiedName
	TableColumns(ctx context.Context, table schema.QualifiedName) ([]schema.Column, error)
	TableDefinition(ctx context.Context, table schema.QualifiedName) (*schema.Table, error)
	Query(ctx context.Context, sql string, args ...any) ([][]string, error)
	Settings() *capability.Settings
	Naming() schema.Naming
	CurrentSchema() string
	OnClose(fn func())
}

type entry struct {
	name    schema.QualifiedName
	columns []schema.Column
	def     *schema.Table
}

// Cache serves repeated metadata requests from memory. It is safe for
// concurrent use; concurrent requests for the same data share one call to
// the source.
type Cache struct {
	src    Source
	logger *slog.Logger

	mu     sync.Mutex
	tables map[string]map[string]*entry
	loaded map[string]bool

	group singleflight.Group
}

// New creates a cache over src and clears it when src closes.
func New(src Source, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	c := &Cache{
		src:    src,
		logger: logger,
		tables: make(map[string]map[string]*entry),
		loaded: make(map[string]bool),
	}
	src.OnClose(c.Clear)
	return c
}

// schemaKey normalizes a schema name. "" means the connection's current
// schema, or no schema at all when there is none.
func (c *Cache) schemaKey(name string) string {
	if name == "" {
		name = c.src.CurrentSchema()
	}
	if name == "" || !c.src.Naming().SupportsSchemas {
		return noSchema
	}
	return strings.ToLower(name)
}

// Tables returns the tables of one schema. The first request per schema
// lists them through the source; later requests are answered from memory.
// Schemas that listed no tables are not remembered.
func (c *Cache) Tables(ctx context.Context, schemaName string) []schema.QualifiedName {
	key := c.schemaKey(schemaName)

	c.mu.Lock()
	if c.loaded[key] {
		names := c.namesLocked(key)
		c.mu.Unlock()
		return names
	}
	c.mu.Unlock()

	v, _, _ := c.group.Do("tables\x00"+key, func() (any, error) {
		pattern := schemaName
		if key == noSchema {
			pattern = ""
		}
		found := c.src.ListTables(ctx, pattern, "")

		c.mu.Lock()
		defer c.mu.Unlock()
		for _, name := range found {
			c.putLocked(name)
		}
		// An empty list may be a failed listing; ask again next time.
		if len(found) > 0 {
			c.loaded[key] = true
		}
		c.logger.Debug("cached tables", slog.String("schema", schemaName), slog.Int("count", len(found)))
		return c.namesLocked(key), nil
	})
	return slices.Clone(v.([]schema.QualifiedName))
}

func (c *Cache) namesLocked(key string) []schema.QualifiedName {
	names := make([]schema.QualifiedName, 0, len(c.tables[key]))
	for _, e := range c.tables[key] {
		names = append(names, e.name.Copy())
	}
	schema.SortNames(names)
	return names
}

// putLocked registers a table name and returns its entry.
func (c *Cache) putLocked(name schema.QualifiedName) *entry {
	key := c.schemaKey(name.Schema)
	bySchema := c.tables[key]
	if bySchema == nil {
		bySchema = make(map[string]*entry)
		c.tables[key] = bySchema
	}
	e := bySchema[name.Name]
	if e == nil {
		e = &entry{name: name.Copy()}
		bySchema[name.Name] = e
	}
	return e
}

// findLocked looks a table up in the given schema, then in the no-schema
// namespace, then in any cached schema when the name is unique there.
func (c *Cache) findLocked(table schema.QualifiedName) *entry {
	naming := c.src.Naming()
	candidates := []string{table.Name}
	if adjusted := naming.AdjustCase(table).Name; adjusted != table.Name {
		candidates = append(candidates, adjusted)
	}

	lookup := func(key string) *entry {
		for _, n := range candidates {
			if e := c.tables[key][n]; e != nil {
				return e
			}
		}
		return nil
	}

	if e := lookup(c.schemaKey(table.Schema)); e != nil {
		return e
	}
	if e := lookup(noSchema); e != nil {
		return e
	}
	if table.Schema != "" {
		return nil
	}

	var found *entry
	for _, bySchema := range c.tables {
		for _, e := range bySchema {
			if !strings.EqualFold(e.name.Name, table.Name) {
				continue
			}
			if found != nil {
				return nil
			}
			found = e
		}
	}
	return found
}

// Columns returns the columns of a table, reading them through the source
// only when no cached entry has them. Errors are not cached.
func (c *Cache) Columns(ctx context.Context, table schema.QualifiedName) ([]schema.Column, error) {
	c.mu.Lock()
	if e := c.findLocked(table); e != nil {
		if e.columns != nil {
			cols := slices.Clone(e.columns)
			c.mu.Unlock()
			return cols, nil
		}
		table = e.name.Copy()
	}
	c.mu.Unlock()

	v, err, _ := c.group.Do("columns\x00"+table.Expression(), func() (any, error) {
		cols, err := c.src.TableColumns(ctx, table)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		c.putLocked(table).columns = cols
		return cols, nil
	})
	if err != nil {
		return nil, err
	}
	return slices.Clone(v.([]schema.Column)), nil
}

// TableDefinition returns the full definition of a table, loading it
// through the source once. The result is a copy the caller may modify.
func (c *Cache) TableDefinition(ctx context.Context, table schema.QualifiedName) (*schema.Table, error) {
	c.mu.Lock()
	if e := c.findLocked(table); e != nil {
		if e.def != nil {
			def := e.def.Copy()
			c.mu.Unlock()
			return def, nil
		}
		table = e.name.Copy()
	}
	c.mu.Unlock()

	v, err, _ := c.group.Do("definition\x00"+table.Expression(), func() (any, error) {
		def, err := c.src.TableDefinition(ctx, table)
		if err != nil {
			return nil, err
		}
		c.AddTable(def)
		return def, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*schema.Table).Copy(), nil
}

// TableDefinitions loads several definitions with at most workers calls
// in flight. The result keeps the order of names.
func (c *Cache) TableDefinitions(ctx context.Context, names []schema.QualifiedName, workers int) ([]*schema.Table, error) {
	out := make([]*schema.Table, len(names))
	g, gctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i, name := range names {
		g.Go(func() error {
			def, err := c.TableDefinition(gctx, name)
			if err != nil {
				return err
			}
			out[i] = def
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// AddTable stores a definition obtained elsewhere, e.g. a table the caller
// just created.
func (c *Cache) AddTable(def *schema.Table) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.putLocked(def.Name)
	e.name = def.Name.Copy()
	e.def = def.Copy()
	e.columns = slices.Clone(def.Columns)
}

// Invalidate drops everything cached for one schema.
func (c *Cache) Invalidate(schemaName string) {
	key := c.schemaKey(schemaName)
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tables, key)
	delete(c.loaded, key)
}

// Clear drops the whole cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.tables)
	clear(c.loaded)
}

// Query passes through to the source uncached.
func (c *Cache) Query(ctx context.Context, sql string, args ...any) ([][]string, error) {
	return c.src.Query(ctx, sql, args...)
}

// Settings returns the source's capabilities.
func (c *Cache) Settings() *capability.Settings { return c.src.Settings() }

// Naming returns the source's identifier rules.
func (c *Cache) Naming() schema.Naming { return c.src.Naming() }
