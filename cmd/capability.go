package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hurou927/dbmeta/internal/capability"
	"github.com/hurou927/dbmeta/internal/config"
	"github.com/hurou927/dbmeta/internal/dialect"
)

type propertyInfo struct {
	Property string `json:"property" yaml:"property"`
	Value    string `json:"value" yaml:"value"`
	Key      string `json:"key,omitempty" yaml:"key,omitempty"`
}

func newCapabilityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "capability",
		Aliases: []string{"cap"},
		Short:   "Inspect dialect capabilities without connecting",
		Long: `Resolves capability properties for the dialect given with --dialect and
--dialect-version, using the built-in capabilities, --capabilities files and
DBMETA_CAP_ environment overrides.`,
	}
	cmd.AddCommand(newCapabilityGetCmd(), newCapabilityKeysCmd(), newCapabilityVerbsCmd(), newCapabilityWatchCmd())
	return cmd
}

// capabilitySettings builds the registry from flags alone.
func capabilitySettings(cmd *cobra.Command) (*capability.Settings, error) {
	f := cmd.Flags()
	level, _ := f.GetString("log-level")
	format, _ := f.GetString("log-format")
	logger, err := newLogger(cmd, &config.Log{Level: level, Format: format})
	if err != nil {
		return nil, err
	}
	files, _ := f.GetStringSlice("capabilities")
	reg, err := newRegistry(files, logger)
	if err != nil {
		return nil, err
	}
	name, _ := f.GetString("dialect")
	version, _ := f.GetString("dialect-version")
	return reg.Settings(parseDialect(name), dialect.ParseVersion(version)), nil
}

// resolve looks prop up and reports the key that answered.
func resolve(s *capability.Settings, prop string) propertyInfo {
	info := propertyInfo{Property: prop}
	for _, key := range append(s.DialectKeys(prop), capability.GlobalKey(prop)) {
		if v, ok := s.Registry().Lookup(key); ok {
			info.Value, info.Key = v, key
			break
		}
	}
	return info
}

func renderProperties(w io.Writer, format string, s *capability.Settings, props []string) error {
	infos := make([]propertyInfo, 0, len(props))
	rows := make([]table.Row, 0, len(props))
	for _, p := range props {
		info := resolve(s, strings.TrimPrefix(p, capability.Prefix))
		infos = append(infos, info)
		key := info.Key
		if key == "" {
			key = "(not set)"
		}
		rows = append(rows, table.Row{info.Property, info.Value, key})
	}
	return render(w, format, table.Row{"Property", "Value", "Key"}, rows, infos)
}

func newCapabilityGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "get <property>...",
		Short:   "Resolve properties through the dialect fallback chain",
		Example: `  dbmeta capability get quote.char ddl.pk.inline --dialect oracle --dialect-version 12.1`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := capabilitySettings(cmd)
			if err != nil {
				return err
			}
			format, _ := cmd.Flags().GetString("format")
			return renderProperties(cmd.OutOrStdout(), format, s, args)
		},
	}
	cmd.Flags().String("format", "table", "output format: table, json or yaml")
	return cmd
}

func newCapabilityKeysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys [prefix]",
		Short: "List stored keys, by default those of the dialect",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := capabilitySettings(cmd)
			if err != nil {
				return err
			}
			prefix := capability.Prefix + s.Dialect().String() + "."
			if len(args) == 1 {
				prefix = args[0]
			}
			w := cmd.OutOrStdout()
			for _, key := range s.Registry().Keys(prefix) {
				v, _ := s.Registry().Lookup(key)
				if _, err := fmt.Fprintf(w, "%s=%s\n", key, v); err != nil {
					return err
				}
			}
			return nil
		},
	}
	return cmd
}

func newCapabilityVerbsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verbs [sql]",
		Short: "Show updating and max-rows verbs, or classify a statement",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := capabilitySettings(cmd)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if len(args) == 1 {
				_, err = fmt.Fprintf(w, "verb: %s\nupdating: %t\nmax rows: %t\n",
					capability.Verb(args[0]), s.IsUpdatingStatement(args[0]), s.ApplyMaxRows(args[0]))
				return err
			}
			_, err = fmt.Fprintf(w, "updating: %s\nmax rows: %s\n",
				strings.Join(s.UpdatingVerbs(), ", "), strings.Join(s.MaxRowsVerbs(), ", "))
			return err
		},
	}
}

func newCapabilityWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch <property>...",
		Short: "Print properties again whenever a capability file changes",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := capabilitySettings(cmd)
			if err != nil {
				return err
			}
			format, _ := cmd.Flags().GetString("format")
			w := cmd.OutOrStdout()
			if err := renderProperties(w, format, s, args); err != nil {
				return err
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			reloaded := make(chan struct{}, 1)
			s.Registry().OnReload(func() {
				select {
				case reloaded <- struct{}{}:
				default:
				}
			})

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return s.Registry().Watch(gctx) })
			g.Go(func() error {
				for {
					select {
					case <-gctx.Done():
						return nil
					case <-reloaded:
						if err := renderProperties(w, format, s, args); err != nil {
							return err
						}
					}
				}
			})
			return g.Wait()
		},
	}
	cmd.Flags().String("format", "table", "output format: table, json or yaml")
	return cmd
}
