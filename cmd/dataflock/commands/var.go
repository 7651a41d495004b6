package commands

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/dataflock/dataflock/internal/server"
)

// NewVarCommand creates the var subcommand tree.
func NewVarCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "var",
		Short: "Read variables from an environment",
	}

	serverURL := addServerFlag(cmd)

	cmd.AddCommand(varGetCmd(serverURL))

	return cmd
}

func varGetCmd(serverURL *string) *cobra.Command {
	return &cobra.Command{
		Use:   "get <env> <name>",
		Short: "Print a variable's current value as JSON",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/" + url.PathEscape(args[0]) + "/variables/" + url.PathEscape(args[1])

			var resp server.VariableResponse

			err := newClient(*serverURL).do(cmd, http.MethodGet, path, nil, &resp)
			if err != nil {
				return err
			}

			data, marshalErr := json.MarshalIndent(resp.Value, "", "  ")
			if marshalErr != nil {
				return fmt.Errorf("encode value: %w", marshalErr)
			}

			fmt.Fprintln(cmd.OutOrStdout(), string(data))

			return nil
		},
	}
}
