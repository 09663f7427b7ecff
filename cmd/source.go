package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/hurou927/dbmeta/internal/ddl"
	"github.com/hurou927/dbmeta/internal/output"
	"github.com/hurou927/dbmeta/internal/schema"
)

func newSourceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "source [table...]",
		Short: "Print the DDL of tables",
		Long: `Prints CREATE TABLE statements with their indexes, comments and grants.
The dialect's native source query is used where one is configured; otherwise
the statement is generated from metadata with the dialect's templates.

Without arguments every table of the configured schemas is scripted in
foreign key order.`,
		Example: `  dbmeta source orders
  dbmeta source --drop --output schema.sql
  dbmeta source orders --part fk`,
		RunE: runSource,
	}
	f := cmd.Flags()
	f.Bool("drop", false, "include DROP statements")
	f.Bool("no-fk", false, "leave out foreign keys")
	f.Bool("no-grants", false, "leave out grants")
	f.String("part", "table", "what to print for a single table: table, index or fk")
	f.String("output", "", "output file (default: stdout)")
	return cmd
}

func runSource(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := cmd.Context()
	f := cmd.Flags()
	drop, _ := f.GetBool("drop")
	noFK, _ := f.GetBool("no-fk")
	noGrants, _ := f.GetBool("no-grants")
	part, _ := f.GetString("part")
	outPath, _ := f.GetString("output")
	if outPath == "" {
		outPath = s.cfg.Output
	}
	opts := ddl.Options{IncludeDrop: drop, IncludeFK: !noFK, IncludeGrants: !noGrants}

	var names []schema.QualifiedName
	for _, a := range args {
		found, err := s.svc.FindTable(ctx, s.svc.ParseName(a))
		if err != nil {
			return err
		}
		if found == nil {
			return fmt.Errorf("table %q not found", a)
		}
		names = append(names, *found)
	}
	if len(args) == 0 {
		names = s.tableNames(ctx)
	}

	b := ddl.NewBuilder(s.cache, s.logger)
	var text string
	switch {
	case len(names) == 1 && part == "index":
		text, err = b.IndexSource(ctx, names[0])
	case len(names) == 1 && part == "fk":
		text, err = b.ForeignKeySource(ctx, names[0])
	case part != "table":
		return fmt.Errorf("unknown part: %s (supported: table, index, fk for a single table)", part)
	case len(names) == 1:
		text, err = b.TableSource(ctx, names[0], opts)
	default:
		if _, err := s.cache.TableDefinitions(ctx, names, loadWorkers); err != nil {
			return fmt.Errorf("reading table definitions: %w", err)
		}
		text, err = b.Script(ctx, names, opts)
	}
	if err != nil {
		return err
	}

	w, closeOut, err := openOutput(cmd, outPath)
	if err != nil {
		return err
	}
	if err := output.NewWriter(w).WriteScript(text); err != nil {
		_ = closeOut()
		return fmt.Errorf("writing source: %w", err)
	}
	if err := closeOut(); err != nil {
		return err
	}
	s.logger.Debug("source written", slog.Int("tables", len(names)), slog.String("output", outPath))
	return nil
}
