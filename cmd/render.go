package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"gopkg.in/yaml.v3"
)

// render writes rows as a table, or v as json or yaml.
func render(w io.Writer, format string, header table.Row, rows []table.Row, v any) error {
	switch format {
	case "", "table":
		if len(rows) == 0 {
			_, _ = fmt.Fprintln(w, "(0 rows)")
			return nil
		}
		t := table.NewWriter()
		t.SetOutputMirror(w)
		t.SetStyle(table.StyleLight)
		t.AppendHeader(header)
		t.AppendRows(rows)
		t.Render()
		return nil
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown format: %s (supported: table, json, yaml)", format)
	}
}
