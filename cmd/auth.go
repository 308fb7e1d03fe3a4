// File: cmd/auth.go
package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/xhs-cli/internal/xhs"
)

func newLoginCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Open a browser window and wait for a QR-code login",
		Long: `Opens the explore page in a visible browser and waits until the session
marker appears. The cookies are then saved so later commands run logged in.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkflow(cmd, func(ctx context.Context, svc *xhs.Service) xhs.Result {
				return svc.Login(ctx, xhs.LoginOptions{Timeout: timeout})
			})
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "how long to wait for the login (default browser.login_timeout)")
	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Delete the saved session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkflow(cmd, func(ctx context.Context, svc *xhs.Service) xhs.Result {
				return svc.Logout(ctx)
			})
		},
	}
}

func newStatusCmd() *cobra.Command {
	var offline bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Report whether the saved session is still logged in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkflow(cmd, func(ctx context.Context, svc *xhs.Service) xhs.Result {
				return svc.Status(ctx, xhs.StatusOptions{Offline: offline})
			})
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "only inspect the cookie file, do not start a browser")
	return cmd
}
