// File: cmd/browse.go
package cmd

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/xhs-cli/internal/xhs"
)

func newFeedsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "feeds",
		Short: "List the recommended feed on the home page",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkflow(cmd, func(ctx context.Context, svc *xhs.Service) xhs.Result {
				return svc.Feeds(ctx, "")
			})
		},
	}
}

func newSearchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search <keyword...>",
		Short: "Search notes by keyword",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			keyword := strings.Join(args, " ")
			return runWorkflow(cmd, func(ctx context.Context, svc *xhs.Service) xhs.Result {
				return svc.Search(ctx, keyword, "")
			})
		},
	}
}

func newDetailCmd() *cobra.Command {
	var token string
	cmd := &cobra.Command{
		Use:   "detail <feed-id>",
		Short: "Show the detail state of one note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkflow(cmd, func(ctx context.Context, svc *xhs.Service) xhs.Result {
				return svc.NoteDetail(ctx, args[0], token, "")
			})
		},
	}
	cmd.Flags().StringVar(&token, "xsec-token", "", "xsecToken from a feeds or search result")
	_ = cmd.MarkFlagRequired("xsec-token")
	return cmd
}

func newCommentCmd() *cobra.Command {
	var token string
	cmd := &cobra.Command{
		Use:   "comment <feed-id> <text...>",
		Short: "Post a comment on a note",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args[1:], " ")
			return runWorkflow(cmd, func(ctx context.Context, svc *xhs.Service) xhs.Result {
				return svc.Comment(ctx, args[0], token, text, "")
			})
		},
	}
	cmd.Flags().StringVar(&token, "xsec-token", "", "xsecToken from a feeds or search result")
	_ = cmd.MarkFlagRequired("xsec-token")
	return cmd
}
