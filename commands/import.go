package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/probelab/wafermap/export"
)

func newImportCmd(cli *CLI) *cobra.Command {
	var overwrite bool

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import an entry from an export document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read import file: %w", err)
			}
			g, err := export.Parse(data)
			if err != nil {
				return fmt.Errorf("parse import file: %w", err)
			}

			rt, err := cli.openRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.close()

			if err := rt.store.ReplaceFromImport(g, overwrite); err != nil {
				return fmt.Errorf("import entry: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %q (%dx%d)\n", g.Name, g.Size, g.Size)
			return nil
		},
	}

	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace an existing entry of the same name")
	return cmd
}
