package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hurou927/dbmeta/internal/db"
)

// NewRootCmd creates the dbmeta command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "dbmeta",
		Short: "Inspect relational metadata and rebuild DDL across database dialects",
		Long: `dbmeta connects to a database, reads its catalog through a dialect-aware
metadata layer and reconstructs CREATE TABLE, index and foreign key DDL from
the dialect's capability templates. It can also analyze the foreign key graph
and generate children-first delete scripts.

Connection settings come from --config, DBMETA_ environment variables and
flags, in increasing priority.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.String("config", "", "path to YAML config file")
	pf.String("driver", "", fmt.Sprintf("database driver (%s)", strings.Join(db.Drivers(), ", ")))
	pf.String("dsn", "", "driver connection string; overrides host, port and database")
	pf.String("host", "", "database host")
	pf.Int("port", 0, "database port (default: the driver's port)")
	pf.String("database", "", "database name, or file for sqlite and duckdb")
	pf.String("user", "", "database user")
	pf.String("password", "", "database password")
	pf.String("sslmode", "", "postgres sslmode")
	pf.String("dialect", "", "dialect id or product name; overrides detection")
	pf.String("dialect-version", "", "product version used for capability lookup, e.g. 12.1")
	pf.StringSlice("capabilities", nil, "additional capability files (.yaml or .properties)")
	pf.StringSlice("schema", nil, "schemas to inspect (default: the current schema)")
	pf.String("log-level", "info", "log level: debug, info, warn or error")
	pf.String("log-format", "text", "log format: text or json")

	root.AddCommand(
		newObjectsCmd(),
		newColumnsCmd(),
		newSourceCmd(),
		newAnalyzeCmd(),
		newDeleteScriptCmd(),
		newCapabilityCmd(),
	)
	return root
}

// Execute runs the root command.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
