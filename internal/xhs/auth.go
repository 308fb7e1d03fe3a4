// File: internal/xhs/auth.go
package xhs

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/xhs-cli/internal/browser"
	"github.com/xkilldash9x/xhs-cli/internal/selector"
)

// LoginOptions tune Login. Zero values fall back to configuration.
type LoginOptions struct {
	Timeout  time.Duration
	ExecPath string
}

// Login opens the explore page and waits for the user to finish logging
// in out of band (QR scan). An existing session returns at once with
// Action "none".
func (s *Service) Login(ctx context.Context, opts LoginOptions) Result {
	return s.run("login", func() (any, string, error) {
		bcfg := s.cfg.Browser()
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = bcfg.LoginTimeout
		}
		poll := bcfg.LoginPoll
		if poll <= 0 {
			poll = 5 * time.Second
		}
		exploreURL := s.cfg.XHS().ExploreURL

		var data LoginData
		var message string
		pageOpts := s.pageOptions(opts.ExecPath)
		headless := bcfg.LoginHeadless
		pageOpts.Headless = &headless

		err := s.withSessionPage(ctx, pageOpts, func(page browser.Page) error {
			if err := s.manager.Navigate(ctx, page, exploreURL); err != nil {
				return err
			}
			if s.loggedIn(ctx, page) {
				data = LoginData{Status: "logged_in", Action: "none"}
				message = "Already logged in"
				return nil
			}

			s.logger.Info("Waiting for login. Scan the QR code in the browser window.", zap.Duration("timeout", timeout))
			_, _, err := s.engine.Wait(ctx, page, s.cands(selector.RoleLoginOK), selector.WaitOptions{
				Timeout:  timeout,
				Interval: poll,
			})
			if err != nil {
				if selector.IsNotFound(err) {
					return &LoginTimeoutError{Timeout: timeout, URL: exploreURL}
				}
				return err
			}

			if err := s.manager.SaveCookies(ctx, page); err != nil {
				return fmt.Errorf("failed to persist session: %w", err)
			}
			if err := s.settle(ctx, time.Second); err != nil {
				return err
			}
			if !s.loggedIn(ctx, page) {
				return &LoginFailedError{Reason: "login indicator disappeared before the session could be verified"}
			}
			data = LoginData{Status: "logged_in", Action: "logged_in"}
			message = "Login successful"
			return nil
		})
		return data, message, err
	})
}

// Logout removes the saved session.
func (s *Service) Logout(ctx context.Context) Result {
	return s.run("logout", func() (any, string, error) {
		if err := ctx.Err(); err != nil {
			return nil, "", err
		}
		removed, err := s.session.Delete()
		if err != nil {
			return LogoutData{Status: "logged_in"}, "", fmt.Errorf("failed to delete cookies file: %w", err)
		}
		msg := "Logged out successfully (cookies deleted)"
		if !removed {
			msg = "No saved session to remove"
		}
		return LogoutData{Status: "logged_out", Removed: removed}, msg, nil
	})
}

// StatusOptions tune Status.
type StatusOptions struct {
	// Offline skips the browser and reports only the cookie file.
	Offline  bool
	ExecPath string
}

// Status reports the cookie file and, unless Offline, whether the saved
// session is still accepted by the site.
func (s *Service) Status(ctx context.Context, opts StatusOptions) Result {
	return s.run("status", func() (any, string, error) {
		info, err := s.session.Info()
		if err != nil {
			return nil, "", fmt.Errorf("failed to read session file: %w", err)
		}
		data := StatusData{CookieFile: info, LoggedIn: info.Exists, Status: "logged_out"}
		if opts.Offline {
			if info.Exists {
				data.Status = "session_saved"
			}
			return data, "Session file checked", nil
		}

		exploreURL := s.cfg.XHS().ExploreURL
		err = s.withPage(ctx, s.pageOptions(opts.ExecPath), func(page browser.Page) error {
			if err := s.manager.Navigate(ctx, page, exploreURL); err != nil {
				return err
			}
			if err := s.settle(ctx, time.Second); err != nil {
				return err
			}
			data.LoggedIn = s.loggedIn(ctx, page)
			data.URLChecked = exploreURL
			return nil
		})
		if err != nil {
			return nil, "", err
		}
		if data.LoggedIn {
			data.Status = "logged_in"
		}
		return data, "Status checked", nil
	})
}
