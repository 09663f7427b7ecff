package capability

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/hurou927/dbmeta/internal/dialect"
)

// Prefix is the namespace shared by every capability key.
const Prefix = "workbench.db."

// DefaultEnvPrefix selects environment overrides such as
// DBMETA_CAP_WORKBENCH__DB__ORACLE__QUOTE__CHAR.
const DefaultEnvPrefix = "DBMETA_CAP_"

// keyDelim keeps dotted property names flat inside koanf.
const keyDelim = "/"

//go:embed defaults.yaml
var defaultsYAML []byte

// Registry is the capability store. It is safe for concurrent use; a
// reload swaps the resolved key set atomically.
type Registry struct {
	mu         sync.RWMutex
	values     map[string]string
	generation uint64

	files     []string
	envPrefix string
	defaults  bool
	overrides map[string]string
	logger    *slog.Logger
	onReload  []func()
}

// Option configures a Registry.
type Option func(*Registry)

// WithFiles adds capability files. YAML files (.yaml, .yml) are parsed with
// the YAML parser, anything else as a flat key=value properties file.
// Later files override earlier ones.
func WithFiles(paths ...string) Option {
	return func(r *Registry) {
		r.files = append(r.files, paths...)
	}
}

// WithEnvPrefix sets the environment variable prefix. An empty prefix
// disables environment overrides.
func WithEnvPrefix(prefix string) Option {
	return func(r *Registry) {
		r.envPrefix = prefix
	}
}

// WithoutDefaults skips the built-in capability set.
func WithoutDefaults() Option {
	return func(r *Registry) {
		r.defaults = false
	}
}

// WithLogger sets the logger used for reload diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// New builds a registry and loads all configured sources.
func New(opts ...Option) (*Registry, error) {
	r := &Registry{
		envPrefix: DefaultEnvPrefix,
		defaults:  true,
		overrides: make(map[string]string),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.New(slog.DiscardHandler)
	}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload re-reads every source. Programmatic overrides set with Set survive
// a reload.
func (r *Registry) Reload() error {
	k := koanf.New(keyDelim)

	if r.defaults {
		mp, err := yaml.Parser().Unmarshal(defaultsYAML)
		if err != nil {
			return fmt.Errorf("parsing built-in capabilities: %w", err)
		}
		if err := k.Load(confmap.Provider(mp, ""), nil); err != nil {
			return fmt.Errorf("loading built-in capabilities: %w", err)
		}
	}

	for _, path := range r.files {
		if err := k.Load(file.Provider(path), parserFor(path)); err != nil {
			return fmt.Errorf("loading capability file %s: %w", path, err)
		}
	}

	if r.envPrefix != "" {
		prefix := r.envPrefix
		if err := k.Load(env.Provider(prefix, "", func(s string) string {
			return envKey(prefix, s)
		}), nil); err != nil {
			return fmt.Errorf("loading capability env vars: %w", err)
		}
	}

	values := flatten(k)

	r.mu.Lock()
	defer r.mu.Unlock()
	for key, v := range r.overrides {
		values[key] = v
	}
	r.values = values
	r.generation++
	return nil
}

// envKey maps DBMETA_CAP_WORKBENCH__DB__ORACLE__QUOTE__CHAR to
// workbench.db.oracle.quote.char.
func envKey(prefix, name string) string {
	s := strings.TrimPrefix(name, prefix)
	return strings.ToLower(strings.ReplaceAll(s, "__", "."))
}

func parserFor(path string) koanf.Parser {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Parser()
	default:
		return PropertiesParser()
	}
}

// flatten converts the koanf key space into dotted capability keys. Nested
// YAML maps are joined with dots so both flat and nested layouts work.
func flatten(k *koanf.Koanf) map[string]string {
	all := k.All()
	out := make(map[string]string, len(all))
	for key, v := range all {
		out[strings.ReplaceAll(key, keyDelim, ".")] = stringify(v)
	}
	return out
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []any:
		parts := make([]string, 0, len(t))
		for _, p := range t {
			parts = append(parts, stringify(p))
		}
		return strings.Join(parts, ",")
	case []string:
		return strings.Join(t, ",")
	default:
		return fmt.Sprintf("%v", t)
	}
}

// Set overrides a single key. The key must be fully qualified, e.g.
// "workbench.db.oracle.quote.char".
func (r *Registry) Set(key, value string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.overrides[key] = value
	r.values[key] = value
	r.generation++
}

// Unset removes a programmatic override. Values from other sources are
// restored on the next Reload.
func (r *Registry) Unset(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.overrides, key)
	delete(r.values, key)
	r.generation++
}

// Lookup returns the raw value stored under a fully qualified key.
func (r *Registry) Lookup(key string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.values[key]
	return v, ok
}

// Keys returns every known key with the given prefix, sorted.
func (r *Registry) Keys(prefix string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var keys []string
	for k := range r.values {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func (r *Registry) gen() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.generation
}

// Settings returns the capability view for a dialect and version.
func (r *Registry) Settings(id dialect.ID, version dialect.Version) *Settings {
	return &Settings{
		reg:     r,
		id:      id,
		version: version,
		cache:   make(map[string]cached),
	}
}

// OnReload registers fn to run after Watch reloaded the files.
func (r *Registry) OnReload(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onReload = append(r.onReload, fn)
}

// Watch reloads the registry whenever one of its files changes. It blocks
// until ctx is done.
func (r *Registry) Watch(ctx context.Context) error {
	if len(r.files) == 0 {
		<-ctx.Done()
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating file watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	watched := make(map[string]bool, len(r.files))
	for _, f := range r.files {
		abs, err := filepath.Abs(f)
		if err != nil {
			return err
		}
		watched[abs] = true
		// Editors replace files on save, so watch the directory.
		if err := watcher.Add(filepath.Dir(abs)); err != nil {
			return fmt.Errorf("watching %s: %w", f, err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			abs, _ := filepath.Abs(event.Name)
			if !watched[abs] {
				continue
			}
			if err := r.Reload(); err != nil {
				r.logger.Error("reloading capabilities failed", "file", event.Name, "error", err)
				continue
			}
			r.logger.Info("capabilities reloaded", "file", event.Name)
			r.mu.RLock()
			hooks := r.onReload
			r.mu.RUnlock()
			for _, fn := range hooks {
				fn()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Error("capability watcher error", "error", err)
		}
	}
}
