package commands

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/dataflock/dataflock/internal/server"
)

const cellCodePreviewLen = 40

// NewCellCommand creates the cell subcommand tree.
func NewCellCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cell",
		Short: "Manage cells inside an environment",
	}

	serverURL := addServerFlag(cmd)

	cmd.AddCommand(cellListCmd(serverURL))
	cmd.AddCommand(cellCreateCmd(serverURL))
	cmd.AddCommand(cellShowCmd(serverURL))
	cmd.AddCommand(cellUpdateCmd(serverURL))
	cmd.AddCommand(cellDeleteCmd(serverURL))
	cmd.AddCommand(cellRunCmd(serverURL))

	return cmd
}

func cellsPath(env string) string {
	return "/" + url.PathEscape(env) + "/cells"
}

func cellPath(env, cellID string) string {
	return cellsPath(env) + "/" + url.PathEscape(cellID)
}

// readCode loads cell code from a file argument, or stdin when the
// argument is "-".
func readCode(arg string) (string, error) {
	if arg == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}

		return string(data), nil
	}

	data, err := os.ReadFile(arg)
	if err != nil {
		return "", fmt.Errorf("read code: %w", err)
	}

	return string(data), nil
}

func renderCells(out io.Writer, cells ...server.CellResponse) {
	writer := table.NewWriter()
	writer.SetOutputMirror(out)
	writer.SetStyle(table.StyleLight)
	writer.AppendHeader(table.Row{"ID", "Live", "Dirty", "Running", "Reads", "Writes", "Code"})

	for _, cell := range cells {
		code := strings.ReplaceAll(cell.Code, "\n", "; ")
		if len(code) > cellCodePreviewLen {
			code = code[:cellCodePreviewLen] + "..."
		}

		writer.AppendRow(table.Row{
			cell.ID,
			cell.Live,
			cell.Dirty,
			cell.Running,
			strings.Join(cell.Reads, ", "),
			strings.Join(cell.Writes, ", "),
			code,
		})
	}

	writer.Render()
}

func cellListCmd(serverURL *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list <env>",
		Short: "List cells",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var cells []server.CellResponse

			err := newClient(*serverURL).do(cmd, http.MethodGet, cellsPath(args[0]), nil, &cells)
			if err != nil {
				return err
			}

			renderCells(cmd.OutOrStdout(), cells...)

			return nil
		},
	}
}

func cellCreateCmd(serverURL *string) *cobra.Command {
	var live bool

	cmd := &cobra.Command{
		Use:   "create <env> <file|->",
		Short: "Create a cell from a file or stdin",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := readCode(args[1])
			if err != nil {
				return err
			}

			req := server.CellRequest{Code: code, Live: &live}

			var cell server.CellResponse

			doErr := newClient(*serverURL).do(cmd, http.MethodPost, cellsPath(args[0]), req, &cell)
			if doErr != nil {
				return doErr
			}

			color.Green("cell %s created", cell.ID)
			renderCells(cmd.OutOrStdout(), cell)

			return nil
		},
	}

	cmd.Flags().BoolVar(&live, "live", true, "re-execute automatically when inputs change")

	return cmd
}

func cellShowCmd(serverURL *string) *cobra.Command {
	return &cobra.Command{
		Use:   "show <env> <cell-id>",
		Short: "Show one cell",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var cell server.CellResponse

			err := newClient(*serverURL).do(cmd, http.MethodGet, cellPath(args[0], args[1]), nil, &cell)
			if err != nil {
				return err
			}

			renderCells(cmd.OutOrStdout(), cell)
			fmt.Fprintln(cmd.OutOrStdout(), cell.Code)

			return nil
		},
	}
}

func cellUpdateCmd(serverURL *string) *cobra.Command {
	var live bool

	cmd := &cobra.Command{
		Use:   "update <env> <cell-id> <file|->",
		Short: "Replace a cell's code",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := readCode(args[2])
			if err != nil {
				return err
			}

			req := server.CellRequest{Code: code, Live: &live}

			var cell server.CellResponse

			doErr := newClient(*serverURL).do(cmd, http.MethodPost, cellPath(args[0], args[1]), req, &cell)
			if doErr != nil {
				return doErr
			}

			color.Green("cell %s updated", cell.ID)
			renderCells(cmd.OutOrStdout(), cell)

			return nil
		},
	}

	cmd.Flags().BoolVar(&live, "live", true, "re-execute automatically when inputs change")

	return cmd
}

func cellDeleteCmd(serverURL *string) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <env> <cell-id>",
		Short: "Delete a cell",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			err := newClient(*serverURL).do(cmd, http.MethodDelete, cellPath(args[0], args[1]), nil, nil)
			if err != nil {
				return err
			}

			color.Yellow("cell %s deleted", args[1])

			return nil
		},
	}
}

func cellRunCmd(serverURL *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run <env> <cell-id>",
		Short: "Run a cell now, regardless of its live flag",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := cellPath(args[0], args[1]) + "/run"

			err := newClient(*serverURL).do(cmd, http.MethodPost, path, nil, nil)
			if err != nil {
				return err
			}

			color.Green("cell %s scheduled", args[1])

			return nil
		},
	}
}
