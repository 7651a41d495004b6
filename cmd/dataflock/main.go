// Package main provides the entry point for the dataflock CLI tool.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dataflock/dataflock/cmd/dataflock/commands"
	"github.com/dataflock/dataflock/pkg/version"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "dataflock",
		Short: "Dataflock - reactive Python computation environments",
		Long: `Dataflock runs reactive computation environments: submit code cells,
and every dependent cell re-executes automatically in dependency order.

Commands:
  serve     Start the dataflock server
  env       Manage environments
  cell      Manage cells inside an environment
  var       Read variables from an environment`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Add commands.
	rootCmd.AddCommand(commands.NewServeCommand())
	rootCmd.AddCommand(commands.NewEnvCommand())
	rootCmd.AddCommand(commands.NewCellCommand())
	rootCmd.AddCommand(commands.NewVarCommand())
	rootCmd.AddCommand(versionCmd())

	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Fprintf(os.Stdout, "dataflock %s (commit: %s, built: %s)\n", version.Version, version.Commit, version.Date)
		},
	}
}
