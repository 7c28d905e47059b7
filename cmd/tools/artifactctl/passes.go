package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"artifact-compiler/pkg/registry"
)

func newPassesCmd(root *rootOptions) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "passes",
		Short: "Validate the pass registry and list passes in dependency order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := file
			var defRetries int
			if path == "" {
				cfg, err := root.load()
				if err != nil {
					return err
				}
				path = cfg.Compiler.RegistryPath
				defRetries = cfg.Compiler.MaxRetries
			} else {
				defRetries = 3
			}

			reg, err := registry.LoadRegistry(path)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tKIND\tDEPENDS ON\tRETRIES")
			for _, id := range reg.Order() {
				p, _ := reg.Get(id)
				deps := "-"
				if len(p.DependsOn) > 0 {
					deps = strings.Join(p.DependsOn, ",")
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", p.ID, p.ArtifactKind, deps, p.Retries(defRetries))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "registry file (default: compiler.registry_path)")
	return cmd
}
