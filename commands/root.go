// Package commands provides the wafermap CLI subcommands.
package commands

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// CLI carries the global flag values shared by every subcommand.
type CLI struct {
	configPath string
	backend    string
	logLevel   string

	logger *slog.Logger
}

// NewRoot builds the wafermap root command with all subcommands attached.
func NewRoot(version string) *cobra.Command {
	cli := &CLI{}

	cmd := &cobra.Command{
		Use:   "wafermap",
		Short: "Collaborative wafer measurement grids",
		Long: `Wafermap tracks per-device measurement state on wafer grids and keeps
every collaborating process convergent through a shared document store.

Each entry is a named grid of 8x8 or 128x128 cells; a cell cycles through
unmeasured, success, failed, and misaligned. Edits are pushed optimistically
as whole-entry documents; remote edits are mirrored into the local store.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return cli.setupLogging()
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&cli.configPath, "config", "c", "", "Config file path (YAML)")
	pf.StringVar(&cli.backend, "store", "", "Store backend override (local, nats, gossip, memory)")
	pf.StringVar(&cli.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")

	cmd.AddCommand(
		newCreateCmd(cli),
		newListCmd(cli),
		newStatusCmd(cli),
		newCycleCmd(cli),
		newClearCmd(cli),
		newDeleteCmd(cli),
		newExportCmd(cli),
		newImportCmd(cli),
		newWatchCmd(cli),
		newVersionCmd(version),
	)

	return cmd
}

func (c *CLI) setupLogging() error {
	level := slog.LevelWarn
	switch strings.ToLower(c.logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("unknown log level %q", c.logLevel)
	}

	c.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(c.logger)
	return nil
}

func newVersionCmd(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "wafermap version %s\n", version)
		},
	}
}
