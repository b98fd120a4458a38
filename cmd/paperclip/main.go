// Command paperclip manages records and their attachments from the shell,
// applies the database schema and runs the deferred upload workers.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "paperclip",
		Short: "Attachment processing and storage",
		Long: `paperclip attaches files to records, derives the configured styles
and stores every file in the configured backend.

Examples:
  paperclip attach User avatar ./face.png     # new record with an avatar
  paperclip attach User avatar ./face.png --id 6f1c...
  paperclip show User 6f1c...
  paperclip identify ./face.png
  paperclip migrate up
  paperclip work                              # run deferred upload workers`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "configuration file (default config.toml)")

	root.AddCommand(
		a.attachCmd(),
		a.detachCmd(),
		a.destroyCmd(),
		a.showCmd(),
		a.identifyCmd(),
		a.migrateCmd(),
		a.workCmd(),
	)
	return root
}
