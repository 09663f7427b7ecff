// Package metadata answers "what objects, columns, indexes and keys exist"
// for one connection. It normalizes provider rows into schema types, runs
// the dialect's plugins and degrades gracefully when optional calls fail.
package metadata

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/hurou927/dbmeta/internal/capability"
	"github.com/hurou927/dbmeta/internal/dialect"
	"github.com/hurou927/dbmeta/internal/provider"
	"github.com/hurou927/dbmeta/internal/schema"
)

// ErrNotFound is returned when a table cannot be resolved to exactly one
// object.
var ErrNotFound = errors.New("object not found")

// Service is the metadata facade for one connection.
type Service struct {
	prov     provider.Provider
	settings *capability.Settings
	product  provider.ProductInfo
	plugins  Plugins
	logger   *slog.Logger

	mu       sync.Mutex
	naming   schema.Naming
	keywords *keywordSet
	onClose  []func()
	closed   bool
}

// Option configures a Service.
type Option func(*options)

type options struct {
	logger  *slog.Logger
	dialect dialect.ID
	version dialect.Version
	plugins *Plugins
}

// WithLogger sets the logger. A nil logger discards output.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithDialect overrides the dialect derived from the product name.
func WithDialect(id dialect.ID) Option {
	return func(o *options) { o.dialect = id }
}

// WithVersion overrides the product version reported by the provider.
func WithVersion(v dialect.Version) Option {
	return func(o *options) { o.version = v }
}

// WithPlugins replaces the plugin set registered for the dialect.
func WithPlugins(p Plugins) Option {
	return func(o *options) { o.plugins = &p }
}

// New probes the provider and builds a service for the detected dialect.
// A failing probe is logged and leaves the service on the generic dialect.
func New(ctx context.Context, prov provider.Provider, reg *capability.Registry, opts ...Option) (*Service, error) {
	if prov == nil {
		return nil, fmt.Errorf("metadata: nil provider")
	}
	if reg == nil {
		return nil, fmt.Errorf("metadata: nil capability registry")
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	product, err := prov.Product(ctx)
	if err != nil {
		logger.Warn("could not read product information", "error", err)
	}

	id := o.dialect
	if id == "" {
		id = dialect.Classify(product.Name)
	}
	version := o.version
	if version.IsZero() {
		version = dialect.Version{Major: product.Major, Minor: product.Minor}
		if version.IsZero() {
			version = dialect.ParseVersion(product.Version)
		}
	}

	s := &Service{
		prov:     prov,
		settings: reg.Settings(id, version),
		product:  product,
		logger:   logger.With(slog.String("dialect", string(id))),
	}
	if o.plugins != nil {
		s.plugins = *o.plugins
	} else {
		s.plugins = PluginsFor(id)
	}
	s.naming = s.buildNaming()

	s.logger.Debug("metadata service ready",
		"product", product.Name,
		"version", version.String(),
		"quote", s.naming.QuoteOpen,
		"store_case", s.naming.StoreCase.String(),
	)
	return s, nil
}

// buildNaming derives identifier rules from capabilities and the product
// information.
func (s *Service) buildNaming() schema.Naming {
	n := schema.DefaultNaming()

	quote := s.settings.String("quote.char", "")
	if quote == "" {
		quote = strings.TrimSpace(s.product.IdentifierQuote)
	}
	if quote == "" {
		quote = `"`
	}
	n.SetQuote(quote)

	storeCase := s.settings.String("store.case", "")
	if storeCase == "" {
		storeCase = s.product.StoresCase
	}
	if c, ok := schema.ParseStoreCase(storeCase); ok {
		n.StoreCase = c
	}

	n.SchemaSeparator = s.settings.String("schema.separator", ".")
	n.CatalogSeparator = s.settings.String("catalog.separator", n.SchemaSeparator)
	n.SupportsCatalogs = s.settings.Bool("supports.catalogs", true)
	n.SupportsSchemas = s.settings.Bool("supports.schemas", true)
	n.NeverQuote = s.settings.Bool("quote.never", false)
	if re := s.settings.Regexp("identifier.pattern"); re != nil {
		n.IdentifierPattern = re
	}
	n.Reserved = s.IsReservedWord

	n.CurrentCatalog = s.product.CurrentCatalog
	n.CurrentSchema = s.product.CurrentSchema
	n.IgnoreCatalogs = s.settings.List("ignore.catalog", nil)
	n.IgnoreSchemas = s.settings.List("ignore.schema", nil)
	n.OmitCurrentCatalog = s.settings.Bool("omit.current.catalog", true)
	n.OmitCurrentSchema = s.settings.Bool("omit.current.schema", true)
	return n
}

// Dialect returns the dialect the service resolved.
func (s *Service) Dialect() dialect.ID { return s.settings.Dialect() }

// Settings returns the capability view for the connection's dialect.
func (s *Service) Settings() *capability.Settings { return s.settings }

// Product returns what the provider reported at construction.
func (s *Service) Product() provider.ProductInfo { return s.product }

// Provider returns the underlying provider.
func (s *Service) Provider() provider.Provider { return s.prov }

// Logger returns the service logger.
func (s *Service) Logger() *slog.Logger { return s.logger }

// Naming returns a snapshot of the identifier rules, including the
// current catalog and schema.
func (s *Service) Naming() schema.Naming {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.naming
}

// CurrentSchema returns the connection's current schema.
func (s *Service) CurrentSchema() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.naming.CurrentSchema
}

// CurrentCatalog returns the connection's current catalog.
func (s *Service) CurrentCatalog() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.naming.CurrentCatalog
}

// SetCurrentSchema records a schema change made on the connection.
func (s *Service) SetCurrentSchema(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.naming.CurrentSchema = name
}

// SetCurrentCatalog records a catalog change made on the connection.
func (s *Service) SetCurrentCatalog(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.naming.CurrentCatalog = name
}

// NeedsQuotes reports whether name must be quoted in this dialect.
func (s *Service) NeedsQuotes(name string) bool {
	return s.Naming().NeedsQuotes(name)
}

// QuoteObjectName quotes name when the dialect requires it.
func (s *Service) QuoteObjectName(name string) string {
	return s.Naming().QuoteObjectName(name)
}

// AdjustCase folds the unquoted parts of q to the storage case.
func (s *Service) AdjustCase(q schema.QualifiedName) schema.QualifiedName {
	return s.Naming().AdjustCase(q)
}

// ParseName splits user input into a qualified name.
func (s *Service) ParseName(text string) schema.QualifiedName {
	return s.Naming().Parse(text)
}

// Render returns the dialect-correct text for q.
func (s *Service) Render(q schema.QualifiedName) string {
	return s.Naming().Render(q)
}

// OnClose registers fn to run when the service is closed.
func (s *Service) OnClose(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onClose = append(s.onClose, fn)
}

// Close runs the close hooks and closes the provider. Calling Close more
// than once is a no-op.
func (s *Service) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	hooks := s.onClose
	s.onClose = nil
	s.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}
	if err := s.prov.Close(); err != nil {
		return fmt.Errorf("closing provider: %w", err)
	}
	return nil
}

// degrade logs a failed optional call. Unsupported calls are expected and
// logged at debug level.
func (s *Service) degrade(what string, err error, attrs ...any) {
	attrs = append(attrs, "error", err)
	if provider.IsUnsupported(err) {
		s.logger.Debug(what+" not supported", attrs...)
		return
	}
	s.logger.Warn(what+" failed", attrs...)
}
