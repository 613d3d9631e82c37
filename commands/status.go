package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/probelab/wafermap/export"
	"github.com/probelab/wafermap/grid"
)

// stateGlyphs renders one cell per character in the grid view.
var stateGlyphs = map[grid.CellState]byte{
	grid.Unmeasured: '.',
	grid.Success:    'S',
	grid.Failed:     'F',
	grid.Misaligned: 'M',
}

func newStatusCmd(cli *CLI) *cobra.Command {
	return &cobra.Command{
		Use:   "status [name]",
		Short: "Show sync status, or the detailed state of one entry",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := cli.openRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.close()

			out := cmd.OutOrStdout()
			if len(args) == 1 {
				g, err := rt.store.Get(args[0])
				if err != nil {
					return fmt.Errorf("load entry: %w", err)
				}
				printEntry(out, g)
				return nil
			}

			st := rt.engine.Status()
			state := "offline"
			if st.Connected {
				state = "online"
			}
			fmt.Fprintf(out, "Store:   %s (%s)\n", rt.cfg.Store.Backend, state)
			if st.Message != "" {
				fmt.Fprintf(out, "Detail:  %s\n", st.Message)
			}
			fmt.Fprintf(out, "Entries: %d\n", rt.store.Len())
			return nil
		},
	}
}

func printEntry(out io.Writer, g *grid.Grid) {
	doc := export.Build(g)
	st := doc.Statistics

	fmt.Fprintf(out, "%s (%dx%d)\n", g.Name, g.Size, g.Size)
	fmt.Fprintf(out, "Created:  %s\n", g.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(out, "Modified: %s\n\n", g.LastModified.Format("2006-01-02 15:04:05"))

	fmt.Fprintf(out, "  successful  %5d  (%s%%)\n", st.Successful, st.SuccessPercent())
	fmt.Fprintf(out, "  failed      %5d  (%s%%)\n", st.Failed, st.FailedPercent())
	fmt.Fprintf(out, "  misaligned  %5d  (%s%%)\n", st.Misaligned, st.MisalignedPercent())
	fmt.Fprintf(out, "  unmeasured  %5d  (%s%%)\n", st.Unmeasured, st.UnmeasuredPercent())

	// A 128x128 grid does not fit a terminal; the statistics above and the
	// export document cover it.
	if g.Size > 32 {
		return
	}

	fmt.Fprintln(out)
	var row strings.Builder
	for r := 0; r < g.Size; r++ {
		row.Reset()
		row.WriteString("  ")
		for c := 0; c < g.Size; c++ {
			i, _ := g.Index(r, c)
			row.WriteByte(stateGlyphs[g.Cells[i]])
			row.WriteByte(' ')
		}
		fmt.Fprintln(out, row.String())
	}
}
