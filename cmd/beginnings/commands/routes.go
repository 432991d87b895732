package commands

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/beginnings-dev/beginnings/config"
	"github.com/beginnings-dev/beginnings/routing"
)

func newRoutesCmd() *cobra.Command {
	var configPath string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "routes",
		Short: "Print the route table a configuration produces",
		Long: `Compile the route configuration and print every exact route and wildcard
pattern with its specificity score and the configuration keys it contributes.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewLoader(configPath).Load()
			if err != nil {
				return err
			}

			resolver := routing.NewResolver(cfg.Routing())
			diagnostics := resolver.Diagnostics()

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(diagnostics)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PATTERN\tSPECIFICITY\tTYPE\tMETHODS\tKEYS")
			for _, d := range diagnostics {
				kind := "pattern"
				if d.Exact {
					kind = "exact"
				}
				methods := strings.Join(d.Methods, ",")
				if methods == "" {
					methods = "-"
				}
				fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n",
					d.Pattern, d.Specificity, kind, methods, strings.Join(d.Keys, ","))
			}
			if err := w.Flush(); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "\n%d entries\n", len(diagnostics))
			if skipped := resolver.Stats().SkippedEntries; skipped > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "%d malformed entries skipped\n", skipped)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "beginnings.yaml", "Configuration file")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")

	return cmd
}
