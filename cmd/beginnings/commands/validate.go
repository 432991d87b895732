package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/beginnings-dev/beginnings/config"
	"github.com/beginnings-dev/beginnings/extension"
	"github.com/beginnings-dev/beginnings/extension/builtin"
	"github.com/beginnings-dev/beginnings/observability"
)

func newValidateCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a configuration file",
		Long: `Load the configuration, check its structure, and dry-run every declared
extension load. Exits non-zero when anything fails, so the command can gate a
deployment.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			cfg, err := config.NewLoader(configPath).Load()
			if err != nil {
				return fmt.Errorf("configuration invalid: %w", err)
			}
			fmt.Fprintf(out, "configuration %s: ok\n", configPath)

			registry := extension.NewRegistry(
				builtin.Factories(zap.NewNop(), observability.NewNoOpCollector()))

			failures := 0
			for _, ext := range cfg.Extensions {
				if err := registry.Load(ext.Name, ext.Config); err != nil {
					failures++
					fmt.Fprintf(out, "extension %s: %v\n", ext.Name, err)
					continue
				}
				fmt.Fprintf(out, "extension %s: ok\n", ext.Name)
			}

			if failures > 0 {
				return fmt.Errorf("%d of %d extensions failed validation", failures, len(cfg.Extensions))
			}
			fmt.Fprintf(out, "%d extensions validated\n", len(cfg.Extensions))
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "beginnings.yaml", "Configuration file")

	return cmd
}
