package commands

import (
	"net/http"
	"net/url"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/dataflock/dataflock/internal/server"
)

// NewEnvCommand creates the env subcommand tree.
func NewEnvCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "env",
		Short: "Manage environments",
	}

	serverURL := addServerFlag(cmd)

	cmd.AddCommand(envListCmd(serverURL))
	cmd.AddCommand(envCreateCmd(serverURL))
	cmd.AddCommand(envDeleteCmd(serverURL))

	return cmd
}

func envListCmd(serverURL *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List environments",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var resp server.EnvironmentsResponse

			err := newClient(*serverURL).do(cmd, http.MethodGet, "/", nil, &resp)
			if err != nil {
				return err
			}

			writer := table.NewWriter()
			writer.SetOutputMirror(cmd.OutOrStdout())
			writer.SetStyle(table.StyleLight)
			writer.AppendHeader(table.Row{"Environment"})

			for _, name := range resp.Environments {
				writer.AppendRow(table.Row{name})
			}

			writer.Render()

			return nil
		},
	}
}

func envCreateCmd(serverURL *string) *cobra.Command {
	return &cobra.Command{
		Use:   "create <name>",
		Short: "Create an environment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := server.EnvironmentRequest{Name: args[0]}

			err := newClient(*serverURL).do(cmd, http.MethodPost, "/", req, nil)
			if err != nil {
				return err
			}

			color.Green("environment %q created", args[0])

			return nil
		},
	}
}

func envDeleteCmd(serverURL *string) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete an environment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/" + url.PathEscape(args[0])

			err := newClient(*serverURL).do(cmd, http.MethodDelete, path, nil, nil)
			if err != nil {
				return err
			}

			color.Yellow("environment %q deleted", args[0])

			return nil
		},
	}
}
