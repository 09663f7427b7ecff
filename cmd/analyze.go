package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hurou927/dbmeta/internal/graph"
)

func newAnalyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze the foreign key graph",
		Long: `Reads every table of the configured schemas, builds the foreign key graph
including configured virtual relations and prints it as a mermaid diagram or a
text summary with creation order, components and cycles.`,
		RunE: runAnalyze,
	}
	cmd.Flags().String("format", "mermaid", "output format: mermaid or text")
	cmd.Flags().Bool("fail-on-cycle", false, "exit with an error when the graph has a cycle")
	return cmd
}

func runAnalyze(cmd *cobra.Command, _ []string) error {
	format, _ := cmd.Flags().GetString("format")
	if format != "mermaid" && format != "text" {
		return fmt.Errorf("unknown format: %s (supported: mermaid, text)", format)
	}

	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	tables, err := s.tables(cmd.Context())
	if err != nil {
		return err
	}
	g := graph.Build(tables, s.cfg.ExcludeSet(), s.cfg.VirtualRelations)

	w := cmd.OutOrStdout()
	if format == "text" {
		err = graph.WriteText(w, g)
	} else {
		err = graph.WriteMermaid(w, g)
	}
	if err != nil {
		return err
	}

	if failOnCycle, _ := cmd.Flags().GetBool("fail-on-cycle"); failOnCycle {
		return graph.ValidateCycles(graph.TopoSortAll(g))
	}
	return nil
}
