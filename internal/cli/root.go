// Package cli implements the todo command line client.
package cli

import (
	"time"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	// Wait bounds how long a command waits for pending remote writes
	// before exiting. Unfinished writes are resynced on the next run.
	Wait time.Duration
}

// NewRootCommand creates the root command of the todo CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "todo",
		Short: "Offline-first todo list",
		Long: `Manage a todo list that works offline and synchronizes with a todosync server.

Every change is stored locally first and then pushed to the server. When the
server cannot be reached the change is retried with backoff and, failing
that, the whole list is uploaded on the next successful contact.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log sync activity to stderr")
	cmd.PersistentFlags().DurationVar(&opts.Wait, "wait", 10*time.Second, "how long to wait for the server before exiting")

	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewAddCommand(opts))
	cmd.AddCommand(NewEditCommand(opts))
	cmd.AddCommand(NewDoneCommand(opts))
	cmd.AddCommand(NewRemoveCommand(opts))
	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewWatchCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))
	cmd.AddCommand(NewImportCommand(opts))
	cmd.AddCommand(NewLoginCommand(opts))

	return cmd
}
