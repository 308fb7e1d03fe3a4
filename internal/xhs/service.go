// File: internal/xhs/service.go
package xhs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/xhs-cli/internal/browser"
	"github.com/xkilldash9x/xhs-cli/internal/clock"
	"github.com/xkilldash9x/xhs-cli/internal/completion"
	"github.com/xkilldash9x/xhs-cli/internal/config"
	"github.com/xkilldash9x/xhs-cli/internal/cookiestore"
	"github.com/xkilldash9x/xhs-cli/internal/media"
	"github.com/xkilldash9x/xhs-cli/internal/selector"
)

// SessionFile is the part of the cookie store Logout and Status use.
type SessionFile interface {
	Delete() (bool, error)
	Info() (cookiestore.Info, error)
}

// Deps are the collaborators a Service drives.
type Deps struct {
	Manager *browser.Manager
	Catalog *selector.Catalog
	Session SessionFile
	// Downloader is optional; without it remote image paths are rejected.
	Downloader *media.Downloader
	Clock      clock.Clock
}

// Service runs the platform workflows. Each call opens its own page and
// closes it before returning, so calls may run concurrently.
type Service struct {
	logger     *zap.Logger
	cfg        config.Interface
	manager    *browser.Manager
	catalog    *selector.Catalog
	session    SessionFile
	downloader *media.Downloader
	clock      clock.Clock
	engine     *selector.Engine
	machine    *completion.Machine
}

// NewService wires a Service. Manager, Catalog and Session are required.
func NewService(logger *zap.Logger, cfg config.Interface, deps Deps) (*Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Manager == nil || deps.Catalog == nil || deps.Session == nil {
		return nil, errors.New("xhs service requires a browser manager, selector catalog and session file")
	}
	if missing := deps.Catalog.Missing(selector.KnownRoles); len(missing) > 0 {
		return nil, fmt.Errorf("selector catalog is missing roles: %v", missing)
	}
	c := deps.Clock
	if c == nil {
		c = clock.New()
	}
	engine := selector.NewEngine(logger, c)
	return &Service{
		logger:     logger.Named("xhs"),
		cfg:        cfg,
		manager:    deps.Manager,
		catalog:    deps.Catalog,
		session:    deps.Session,
		downloader: deps.Downloader,
		clock:      c,
		engine:     engine,
		machine:    completion.NewMachine(logger, engine, c),
	}, nil
}

// run times fn and folds its outcome into a Result.
func (s *Service) run(op string, fn func() (any, string, error)) Result {
	started := s.clock.Now()
	data, message, err := fn()
	res := newResult(op, started, s.clock.Now(), data, message, err)

	fields := []zap.Field{
		zap.String("operation", op),
		zap.String("run_id", res.RunID),
		zap.String("code", string(res.Code)),
		zap.Duration("duration", res.Duration()),
	}
	if err != nil {
		s.logger.Error("Workflow failed.", append(fields, zap.Error(err))...)
	} else {
		s.logger.Info("Workflow finished.", fields...)
	}
	return res
}

// withPage opens a page, runs fn and always closes the page exactly once.
func (s *Service) withPage(ctx context.Context, opts browser.PageOptions, fn func(page browser.Page) error) error {
	opts.LoadCookies = true
	page, err := s.manager.NewPage(ctx, opts)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.manager.ClosePage(page); cerr != nil {
			s.logger.Debug("Page close reported an error.", zap.Error(cerr))
		}
	}()
	return fn(page)
}

// sessionSaveTimeout bounds the cookie save on a failed workflow, which may
// run after ctx is already cancelled.
const sessionSaveTimeout = 10 * time.Second

// withSessionPage is withPage for workflows that can rotate session cookies.
// Their success paths save explicitly; when fn fails the page's cookies are
// still saved, best effort, so a partly completed login is kept. A failed save
// is logged and never replaces fn's error.
func (s *Service) withSessionPage(ctx context.Context, opts browser.PageOptions, fn func(page browser.Page) error) error {
	return s.withPage(ctx, opts, func(page browser.Page) error {
		err := fn(page)
		if err != nil {
			s.saveSession(ctx, page)
		}
		return err
	})
}

func (s *Service) saveSession(ctx context.Context, page browser.Page) {
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sessionSaveTimeout)
	defer cancel()

	// An empty jar would create a cookie file, which reads as a saved login.
	cookies, err := page.Cookies(saveCtx)
	if err != nil {
		s.logger.Warn("Could not read cookies after a failed workflow.", zap.Error(err))
		return
	}
	if len(cookies) == 0 {
		return
	}
	if err := s.manager.SaveCookies(saveCtx, page); err != nil {
		s.logger.Warn("Could not save cookies after a failed workflow.", zap.Error(err))
	}
}

func (s *Service) pageOptions(execPath string) browser.PageOptions {
	return browser.PageOptions{ExecPath: execPath, Persistent: true}
}

func (s *Service) settle(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	return s.clock.Sleep(ctx, d)
}

func (s *Service) cands(role selector.Role) selector.Candidates {
	return s.catalog.Get(role)
}

// loggedIn reports whether the login marker is on the page.
func (s *Service) loggedIn(ctx context.Context, page browser.Page) bool {
	return s.engine.Exists(ctx, page, s.cands(selector.RoleLoginOK))
}

// currentURL is best effort; it is only used for error context.
func (s *Service) currentURL(ctx context.Context, page browser.Page) string {
	u, err := page.URL(ctx)
	if err != nil {
		return ""
	}
	return u
}

// requireCreatorSession fails with NotLoggedInError when the page shows no
// authenticated marker and either sits on a login URL or has no note cards.
func (s *Service) requireCreatorSession(ctx context.Context, page browser.Page, op string) error {
	if s.loggedIn(ctx, page) || s.engine.Exists(ctx, page, s.cands(selector.RoleAuthIndicator)) {
		return nil
	}
	current := s.currentURL(ctx, page)
	if isLoginURL(current) {
		return &NotLoggedInError{Operation: op, URL: current}
	}
	if !s.engine.Exists(ctx, page, s.cands(selector.RoleNoteCard)) {
		return &NotLoggedInError{Operation: op, URL: current}
	}
	return nil
}

// click scrolls el into view and clicks it.
func (s *Service) click(ctx context.Context, el browser.Element) error {
	if err := el.ScrollIntoView(ctx); err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return el.Click(ctx)
}
