package cli

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/fastygo/todosync/domain"
)

// RecordOptions holds the content flags shared by add and edit.
type RecordOptions struct {
	*RootOptions
	Text       string
	Importance string
	Deadline   string
	NoDeadline bool
	Color      string
}

func (o *RecordOptions) bind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&o.Importance, "importance", "i", "", "low, basic or important")
	cmd.Flags().StringVarP(&o.Deadline, "deadline", "d", "", "due date (YYYY-MM-DD or RFC 3339)")
	cmd.Flags().StringVar(&o.Color, "color", "", "text color as #RRGGBB")
}

func parseImportance(raw string, fallback domain.Importance) (domain.Importance, error) {
	if raw == "" {
		return fallback, nil
	}
	importance, ok := domain.ParseImportance(strings.ToLower(raw))
	if !ok {
		return "", fmt.Errorf("unknown importance %q: must be low, basic or important", raw)
	}
	return importance, nil
}

func parseDeadline(raw string, fallback *time.Time) (*time.Time, error) {
	if raw == "" {
		return fallback, nil
	}
	if t, err := time.ParseInLocation("2006-01-02", raw, time.Local); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, fmt.Errorf("invalid deadline %q: use YYYY-MM-DD or RFC 3339", raw)
	}
	return &t, nil
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	var hideDone bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "Show the list, newest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr(), hooks{})
			if err != nil {
				return err
			}
			// Let the refresh issued by Load land before drawing.
			waitErr := a.close()
			a.sync.SetShowCompleted(!hideDone)
			fmt.Fprintln(a.out, renderList(a.sync.Snapshot(), a.sync.Dirty(), time.Now()))
			return waitErr
		},
	}
	cmd.Flags().BoolVar(&hideDone, "hide-done", false, "hide completed records")
	return cmd
}

// NewAddCommand creates the add command.
func NewAddCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RecordOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "add <text>",
		Short: "Add a record",
		Example: `  todo add "Buy milk"
  todo add "File taxes" --importance important --deadline 2025-04-15`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			importance, err := parseImportance(opts.Importance, domain.ImportanceRegular)
			if err != nil {
				return err
			}
			deadline, err := parseDeadline(opts.Deadline, nil)
			if err != nil {
				return err
			}

			a, err := openApp(cmd.Context(), rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr(), hooks{})
			if err != nil {
				return err
			}
			rec := domain.NewRecord(strings.Join(args, " "), importance, deadline, opts.Color)
			saveErr := a.sync.Save(cmd.Context(), rec)
			if saveErr == nil {
				ok(a.out, "added "+rec.ID.String()[:shortIDLen])
			}
			return errors.Join(saveErr, a.close())
		},
	}
	opts.bind(cmd)
	return cmd
}

// NewEditCommand creates the edit command.
func NewEditCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RecordOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "edit <id> [--text ...]",
		Short: "Change a record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr(), hooks{})
			if err != nil {
				return err
			}
			editErr := edit(cmd, a, opts, args[0])
			return errors.Join(editErr, a.close())
		},
	}
	opts.bind(cmd)
	cmd.Flags().StringVarP(&opts.Text, "text", "t", "", "new text")
	cmd.Flags().BoolVar(&opts.NoDeadline, "no-deadline", false, "remove the deadline")
	return cmd
}

func edit(cmd *cobra.Command, a *app, opts *RecordOptions, ref string) error {
	rec, err := a.resolve(ref)
	if err != nil {
		return err
	}

	text := rec.Text
	if opts.Text != "" {
		text = opts.Text
	}
	importance, err := parseImportance(opts.Importance, rec.Importance)
	if err != nil {
		return err
	}
	deadline, err := parseDeadline(opts.Deadline, rec.Deadline)
	if err != nil {
		return err
	}
	if opts.NoDeadline {
		deadline = nil
	}

	if err := a.sync.Save(cmd.Context(), rec.Edited(text, importance, deadline, opts.Color, time.Now())); err != nil {
		return err
	}
	ok(a.out, "updated "+rec.ID.String()[:shortIDLen])
	return nil
}

// NewDoneCommand creates the done command.
func NewDoneCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "done <id>",
		Short: "Toggle a record between done and open",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr(), hooks{})
			if err != nil {
				return err
			}
			toggleErr := func() error {
				rec, err := a.resolve(args[0])
				if err != nil {
					return err
				}
				if err := a.sync.ToggleDone(cmd.Context(), rec.ID); err != nil {
					return err
				}
				state := "done"
				if rec.IsDone {
					state = "open"
				}
				ok(a.out, rec.ID.String()[:shortIDLen]+" is "+state)
				return nil
			}()
			return errors.Join(toggleErr, a.close())
		},
	}
}

// NewRemoveCommand creates the rm command.
func NewRemoveCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"delete"},
		Short:   "Delete a record",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr(), hooks{})
			if err != nil {
				return err
			}
			rmErr := func() error {
				rec, err := a.resolve(args[0])
				if err != nil {
					return err
				}
				if err := a.sync.Delete(cmd.Context(), rec.ID); err != nil {
					return err
				}
				ok(a.out, "deleted "+rec.ID.String()[:shortIDLen])
				return nil
			}()
			return errors.Join(rmErr, a.close())
		},
	}
}
