package cli

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fastygo/todosync/repository/file"
)

// FileOptions holds flags for export and import.
type FileOptions struct {
	*RootOptions
	Format string // "csv" | "json"; guessed from the extension when empty
}

func (o *FileOptions) format(path string) (string, error) {
	format := strings.ToLower(o.Format)
	if format == "" {
		format = strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	}
	switch format {
	case "csv", "json":
		return format, nil
	default:
		return "", fmt.Errorf("unknown format %q: use --format csv or --format json", format)
	}
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export <file>",
		Short: "Write the whole list to a CSV or JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := opts.format(args[0])
			if err != nil {
				return err
			}
			a, err := openApp(cmd.Context(), rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr(), hooks{})
			if err != nil {
				return err
			}

			records := a.sync.Snapshot().Items
			if format == "csv" {
				err = file.SaveCSV(args[0], records)
			} else {
				err = file.SaveJSON(args[0], records)
			}
			if err == nil {
				ok(a.out, fmt.Sprintf("exported %d records to %s", len(records), args[0]))
			}
			return errors.Join(err, a.close())
		},
	}
	cmd.Flags().StringVar(&opts.Format, "format", "", "csv or json")
	return cmd
}

// NewImportCommand creates the import command. Imported records keep their
// ids, so importing an export again updates instead of duplicating.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Add or update records from a CSV or JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := opts.format(args[0])
			if err != nil {
				return err
			}

			var res file.Result
			if format == "csv" {
				res, err = file.LoadCSV(args[0])
			} else {
				res, err = file.LoadJSON(args[0])
			}
			if err != nil {
				return err
			}

			a, err := openApp(cmd.Context(), rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr(), hooks{})
			if err != nil {
				return err
			}
			var saveErr error
			saved := 0
			for _, rec := range res.Records {
				if err := a.sync.Save(cmd.Context(), rec); err != nil {
					saveErr = err
					break
				}
				saved++
			}

			msg := fmt.Sprintf("imported %d records", saved)
			if res.Skipped > 0 {
				msg += fmt.Sprintf(", skipped %d invalid", res.Skipped)
			}
			ok(a.out, msg)
			return errors.Join(saveErr, a.close())
		},
	}
	cmd.Flags().StringVar(&opts.Format, "format", "", "csv or json")
	return cmd
}
