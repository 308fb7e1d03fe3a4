// File: cmd/notes.go
package cmd

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/xhs-cli/internal/xhs"
)

func newNotesCmd() *cobra.Command {
	var opts xhs.ListOptions
	cmd := &cobra.Command{
		Use:   "notes",
		Short: "List the account's published notes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkflow(cmd, func(ctx context.Context, svc *xhs.Service) xhs.Result {
				return svc.ListNotes(ctx, opts)
			})
		},
	}
	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "notes per page (1-100)")
	cmd.Flags().StringVar(&opts.Cursor, "cursor", "", "nextCursor of the previous page")
	return cmd
}

func newDeleteCmd() *cobra.Command {
	var last bool
	cmd := &cobra.Command{
		Use:   "delete [note-id]",
		Short: "Delete a note by id, or the newest note with --last",
		Args: func(cmd *cobra.Command, args []string) error {
			switch {
			case last && len(args) > 0:
				return errors.New("pass either a note id or --last, not both")
			case !last && len(args) != 1:
				return errors.New("a note id is required unless --last is set")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkflow(cmd, func(ctx context.Context, svc *xhs.Service) xhs.Result {
				if last {
					return svc.DeleteLastNote(ctx, "")
				}
				return svc.DeleteNote(ctx, args[0], "")
			})
		},
	}
	cmd.Flags().BoolVar(&last, "last", false, "delete the most recent note")
	return cmd
}
