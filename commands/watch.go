package commands

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

// watchEvent is the loose view of a shared-store document used for display.
// Malformed payloads still get a line; the engine handles validation.
type watchEvent struct {
	Name         string    `json:"name"`
	Size         int       `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

func newWatchCmd(cli *CLI) *cobra.Command {
	return &cobra.Command{
		Use:   "watch [name]",
		Short: "Follow shared-store changes until interrupted",
		Long: `Watch keeps the process attached to the shared store and prints a line
for every entry change or deletion as it arrives. With a name argument only
changes to that entry are shown.

When a metrics address is configured, a Prometheus /metrics endpoint is
served for the lifetime of the watch.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt, err := cli.openRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.close()

			filter := ""
			if len(args) == 1 {
				filter = args[0]
				if err := rt.store.SetActive(filter); err != nil {
					return fmt.Errorf("watch entry: %w", err)
				}
			}

			if addr := rt.cfg.Metrics.Addr; addr != "" {
				mux := http.NewServeMux()
				mux.Handle("/metrics", promhttp.HandlerFor(rt.registry, promhttp.HandlerOpts{}))
				srv := &http.Server{Addr: addr, Handler: mux}
				go func() {
					if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
						cli.logger.Error("metrics endpoint failed", "addr", addr, "error", err)
					}
				}()
				defer srv.Close()
				fmt.Fprintf(cmd.OutOrStdout(), "Serving metrics on %s/metrics\n", addr)
			}

			snapshot, events, err := rt.remote.Subscribe(ctx)
			if err != nil {
				return fmt.Errorf("subscribe to shared store: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Watching %s store (%d entries). Ctrl-C to stop.\n",
				rt.cfg.Store.Backend, len(snapshot))

			out := cmd.OutOrStdout()
			for {
				select {
				case <-ctx.Done():
					fmt.Fprintln(out, "\nStopped.")
					return nil
				case ev, ok := <-events:
					if !ok {
						return nil
					}
					var we watchEvent
					if ev.Value != nil {
						_ = json.Unmarshal(ev.Value, &we)
					}
					name := we.Name
					if name == "" {
						name = ev.Key
					}
					if filter != "" && name != filter {
						continue
					}
					stamp := time.Now().Format("15:04:05")
					if ev.Tombstone() {
						fmt.Fprintf(out, "%s  deleted  %s\n", stamp, name)
					} else {
						fmt.Fprintf(out, "%s  changed  %s (%dx%d)\n", stamp, name, we.Size, we.Size)
					}
				}
			}
		},
	}
}
