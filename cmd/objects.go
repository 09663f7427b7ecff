package cmd

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

type objectInfo struct {
	Type    string `json:"type" yaml:"type"`
	Catalog string `json:"catalog,omitempty" yaml:"catalog,omitempty"`
	Schema  string `json:"schema,omitempty" yaml:"schema,omitempty"`
	Name    string `json:"name" yaml:"name"`
	Comment string `json:"comment,omitempty" yaml:"comment,omitempty"`
}

func newObjectsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "objects [name-pattern]",
		Short: "List tables, views, sequences and other objects",
		Long: `Lists the objects of the configured schemas. The optional pattern uses
SQL LIKE wildcards. --types restricts the object types, e.g. TABLE,VIEW.`,
		Example: `  dbmeta objects --driver sqlite --database shop.db
  dbmeta objects 'ord%' --types TABLE --format json`,
		Args: cobra.MaximumNArgs(1),
		RunE: runObjects,
	}
	cmd.Flags().StringSlice("types", nil, "object types to list (default: all)")
	cmd.Flags().String("format", "table", "output format: table, json or yaml")
	return cmd
}

func runObjects(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	pattern := ""
	if len(args) == 1 {
		pattern = args[0]
	}
	types, _ := cmd.Flags().GetStringSlice("types")
	format, _ := cmd.Flags().GetString("format")

	var (
		infos []objectInfo
		rows  []table.Row
	)
	for _, sc := range s.schemas() {
		for _, o := range s.svc.ListObjects(cmd.Context(), "", sc, pattern, types) {
			infos = append(infos, objectInfo{
				Type:    o.Type,
				Catalog: o.Catalog,
				Schema:  o.Schema,
				Name:    o.Name,
				Comment: o.Comment,
			})
			rows = append(rows, table.Row{o.Type, s.svc.Render(o), o.Comment})
		}
	}
	return render(cmd.OutOrStdout(), format, table.Row{"Type", "Name", "Comment"}, rows, infos)
}
