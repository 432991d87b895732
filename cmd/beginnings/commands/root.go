// Package commands implements the beginnings operator CLI: inspecting the
// route table a configuration produces and validating a configuration before
// deployment.
package commands

import (
	"github.com/spf13/cobra"
)

func Execute(version string) error {
	rootCmd := &cobra.Command{
		Use:   "beginnings",
		Short: "Beginnings - configuration-driven web framework CLI",
		Long: `Beginnings lets applications declare routes, middleware behavior, and
cross-cutting security concerns through layered configuration files.

This CLI inspects and validates those configuration files.`,
		Version: version,
	}

	rootCmd.AddCommand(newRoutesCmd())
	rootCmd.AddCommand(newValidateCmd())

	return rootCmd.Execute()
}
