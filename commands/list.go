package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/probelab/wafermap/export"
)

func newListCmd(cli *CLI) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all measurement grid entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := cli.openRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.close()

			names := rt.store.Names()
			if len(names) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No entries.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 2, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tSIZE\tMEASURED\tSUCCESS\tFAILED\tMISALIGNED\tMODIFIED")
			for _, name := range names {
				g, err := rt.store.Get(name)
				if err != nil {
					continue
				}
				doc := export.Build(g)
				st := doc.Statistics
				fmt.Fprintf(w, "%s\t%dx%d\t%d/%d\t%s%%\t%s%%\t%s%%\t%s\n",
					g.Name, g.Size, g.Size,
					st.Total-st.Unmeasured, st.Total,
					st.SuccessPercent(), st.FailedPercent(), st.MisalignedPercent(),
					g.LastModified.Format("2006-01-02 15:04"))
			}
			return w.Flush()
		},
	}
}
