package cmd

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

type columnInfo struct {
	Name     string `json:"name" yaml:"name"`
	Type     string `json:"type" yaml:"type"`
	Nullable bool   `json:"nullable" yaml:"nullable"`
	Default  string `json:"default,omitempty" yaml:"default,omitempty"`
	PK       bool   `json:"pk" yaml:"pk"`
	Comment  string `json:"comment,omitempty" yaml:"comment,omitempty"`
}

func newColumnsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "columns <table>",
		Short: "Show the columns of a table",
		Args:  cobra.ExactArgs(1),
		RunE:  runColumns,
	}
	cmd.Flags().String("format", "table", "output format: table, json or yaml")
	return cmd
}

func runColumns(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := cmd.Context()
	found, err := s.svc.FindTable(ctx, s.svc.ParseName(args[0]))
	if err != nil {
		return err
	}
	if found == nil {
		return fmt.Errorf("table %q not found", args[0])
	}
	cols, err := s.cache.Columns(ctx, *found)
	if err != nil {
		return fmt.Errorf("reading columns of %s: %w", s.svc.Render(*found), err)
	}

	format, _ := cmd.Flags().GetString("format")
	infos := make([]columnInfo, 0, len(cols))
	rows := make([]table.Row, 0, len(cols))
	for _, c := range cols {
		infos = append(infos, columnInfo{
			Name:     c.Name,
			Type:     c.DisplayType(),
			Nullable: c.Nullable,
			Default:  c.Default,
			PK:       c.IsPK,
			Comment:  c.Comment,
		})
		pk := ""
		if c.IsPK {
			pk = "*"
		}
		rows = append(rows, table.Row{c.Name, c.DisplayType(), c.Nullable, c.Default, pk, c.Comment})
	}
	return render(cmd.OutOrStdout(), format,
		table.Row{"Column", "Type", "Nullable", "Default", "PK", "Comment"}, rows, infos)
}
