package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/hurou927/dbmeta/internal/deletescript"
	"github.com/hurou927/dbmeta/internal/graph"
)

func newDeleteScriptCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete-script",
		Short: "Generate a script that deletes root rows and everything referencing them",
		Long: `Generates DELETE statements for the roots configured under "roots" and for
every table that references them through foreign keys or virtual relations.
Children are deleted before their parents; self-references are followed with
a recursive query. Tables on a foreign key cycle are reported and skipped.

The script is only generated, never executed.`,
		RunE: runDeleteScript,
	}
	f := cmd.Flags()
	f.String("output", "", "output file (default: stdout)")
	f.Bool("no-transaction", false, "do not wrap the script in BEGIN/COMMIT")
	f.String("delimiter", "", "statement terminator (default: the dialect's)")
	return cmd
}

func runDeleteScript(cmd *cobra.Command, _ []string) error {
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.cfg.ValidateForDeleteScript(); err != nil {
		return err
	}

	tables, err := s.tables(cmd.Context())
	if err != nil {
		return err
	}
	g := graph.Build(tables, s.cfg.ExcludeSet(), s.cfg.VirtualRelations)

	f := cmd.Flags()
	noTx, _ := f.GetBool("no-transaction")
	delim, _ := f.GetString("delimiter")
	if delim == "" {
		delim = s.svc.Settings().String("script.delimiter", ";")
	}
	outPath, _ := f.GetString("output")
	if outPath == "" {
		outPath = s.cfg.Output
	}

	w, closeOut, err := openOutput(cmd, outPath)
	if err != nil {
		return err
	}
	gen := deletescript.New(g, s.svc.Naming(), s.logger)
	if err := gen.Write(w, s.cfg.Roots, deletescript.WriteOptions{Transactional: !noTx, Delimiter: delim}); err != nil {
		_ = closeOut()
		return fmt.Errorf("generating delete script: %w", err)
	}
	if err := closeOut(); err != nil {
		return err
	}
	s.logger.Info("delete script generated", slog.Int("roots", len(s.cfg.Roots)), slog.String("output", outPath))
	return nil
}
