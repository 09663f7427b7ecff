package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hurou927/dbmeta/internal/cache"
	"github.com/hurou927/dbmeta/internal/capability"
	"github.com/hurou927/dbmeta/internal/config"
	"github.com/hurou927/dbmeta/internal/db"
	"github.com/hurou927/dbmeta/internal/dialect"
	"github.com/hurou927/dbmeta/internal/logging"
	"github.com/hurou927/dbmeta/internal/metadata"
	"github.com/hurou927/dbmeta/internal/schema"
)

// loadWorkers bounds concurrent table definition reads.
const loadWorkers = 4

// session is one open connection with its metadata service and cache.
type session struct {
	cfg    *config.Config
	logger *slog.Logger
	svc    *metadata.Service
	cache  *cache.Cache
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(path, cmd.Flags())
}

func newLogger(cmd *cobra.Command, cfg *config.Log) (*slog.Logger, error) {
	return logging.New(cmd.ErrOrStderr(), cfg.Level, cfg.Format)
}

func newRegistry(files []string, logger *slog.Logger) (*capability.Registry, error) {
	reg, err := capability.New(capability.WithFiles(files...), capability.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("loading capabilities: %w", err)
	}
	return reg, nil
}

// parseDialect accepts a dialect id as well as a product name.
func parseDialect(s string) dialect.ID {
	if id := dialect.ID(strings.ToLower(strings.TrimSpace(s))); dialect.Known(id) {
		return id
	}
	return dialect.Classify(s)
}

// openSession connects to the configured database. The caller must close
// the session.
func openSession(cmd *cobra.Command) (*session, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cmd, &cfg.Log)
	if err != nil {
		return nil, err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	reg, err := newRegistry(cfg.Capabilities, logger)
	if err != nil {
		return nil, err
	}

	logger.Debug("connecting", slog.String("target", db.Redact(&cfg.Connection)))
	prov, driverDialect, err := db.Connect(ctx, &cfg.Connection)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	opts := []metadata.Option{metadata.WithLogger(logger)}
	if cfg.Dialect != "" {
		opts = append(opts, metadata.WithDialect(parseDialect(cfg.Dialect)))
	}
	if cfg.DialectVersion != "" {
		opts = append(opts, metadata.WithVersion(dialect.ParseVersion(cfg.DialectVersion)))
	}
	svc, err := metadata.New(ctx, prov, reg, opts...)
	if err != nil {
		_ = prov.Close()
		return nil, err
	}
	// The driver knows better than an unrecognized product name.
	if cfg.Dialect == "" && svc.Dialect() == dialect.Generic && driverDialect != dialect.Generic {
		svc, err = metadata.New(ctx, prov, reg, append(opts, metadata.WithDialect(driverDialect))...)
		if err != nil {
			_ = prov.Close()
			return nil, err
		}
	}

	return &session{
		cfg:    cfg,
		logger: logger,
		svc:    svc,
		cache:  cache.New(svc, logger),
	}, nil
}

func (s *session) Close() error {
	return s.svc.Close()
}

// schemas returns the configured schemas, or the current schema.
func (s *session) schemas() []string {
	if len(s.cfg.Schemas) == 0 {
		return []string{""}
	}
	return s.cfg.Schemas
}

// tableNames lists the tables of every configured schema.
func (s *session) tableNames(ctx context.Context) []schema.QualifiedName {
	var names []schema.QualifiedName
	for _, sc := range s.schemas() {
		names = append(names, s.cache.Tables(ctx, sc)...)
	}
	return names
}

// tables loads the definitions of every table in the configured schemas.
func (s *session) tables(ctx context.Context) ([]*schema.Table, error) {
	names := s.tableNames(ctx)
	s.logger.Info("reading table definitions", slog.Int("tables", len(names)))
	defs, err := s.cache.TableDefinitions(ctx, names, loadWorkers)
	if err != nil {
		return nil, fmt.Errorf("reading table definitions: %w", err)
	}
	return defs, nil
}

// openOutput returns the file named by path, or the command's output for
// "" and "-".
func openOutput(cmd *cobra.Command, path string) (io.Writer, func() error, error) {
	if path == "" || path == "-" {
		return cmd.OutOrStdout(), func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("creating output file: %w", err)
	}
	return f, f.Close, nil
}
