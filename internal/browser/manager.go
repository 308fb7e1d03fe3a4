// File: internal/browser/manager.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/xhs-cli/internal/clock"
	"github.com/xkilldash9x/xhs-cli/internal/config"
	"github.com/xkilldash9x/xhs-cli/internal/cookiestore"
)

// CookieStore is the persistence the Manager needs from the session store.
type CookieStore interface {
	Load() ([]cookiestore.Cookie, error)
	Save(cookies []cookiestore.Cookie) error
}

// PageOptions control how NewPage prepares a tab.
type PageOptions struct {
	// LoadCookies injects the saved session into the new page.
	LoadCookies bool
	// ExecPath overrides browser.exec_path for this page.
	ExecPath string
	// Persistent pages share a long-lived browser instance. Non-persistent
	// pages get a dedicated instance that is shut down with the page.
	Persistent bool
	// Headless overrides browser.headless when set.
	Headless *bool
}

// Option customises a Manager.
type Option func(*Manager)

// WithClock replaces the wall clock used for retry delays.
func WithClock(c clock.Clock) Option {
	return func(m *Manager) { m.clock = c }
}

// WithRequestDelay spaces navigations at least d apart.
func WithRequestDelay(d time.Duration) Option {
	return func(m *Manager) {
		if d <= 0 {
			m.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		m.limiter = rate.NewLimiter(rate.Every(d), 1)
	}
}

type instanceKey struct {
	execPath    string
	userDataDir string
	headless    bool
}

func (k instanceKey) String() string {
	return fmt.Sprintf("%s|%s|%t", k.execPath, k.userDataDir, k.headless)
}

var errManagerShutdown = errors.New("browser manager is shut down")

type trackedPage struct {
	page     Page
	instance Instance
	// owned instances are closed together with the page.
	owned bool
}

// Manager owns browser processes and the lifecycle of every page handed out.
// It is safe for concurrent use; each page must be used by one workflow at a time.
type Manager struct {
	logger  *zap.Logger
	cfg     config.BrowserConfig
	driver  Driver
	store   CookieStore
	clock   clock.Clock
	limiter *rate.Limiter

	// launches collapses concurrent starts of the same shared browser.
	launches singleflight.Group

	mu        sync.Mutex
	instances map[instanceKey]Instance
	// retired shared instances stay up until their last page closes.
	retired  map[Instance]struct{}
	pages    map[string]*trackedPage
	shutdown bool
}

// NewManager creates a manager. No browser is started until the first NewPage.
func NewManager(logger *zap.Logger, cfg config.BrowserConfig, driver Driver, store CookieStore, opts ...Option) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		logger:    logger.Named("browser_manager"),
		cfg:       cfg,
		driver:    driver,
		store:     store,
		clock:     clock.New(),
		limiter:   rate.NewLimiter(rate.Inf, 1),
		instances: make(map[instanceKey]Instance),
		retired:   make(map[Instance]struct{}),
		pages:     make(map[string]*trackedPage),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NewPage launches or reuses a browser and opens a tab in it. A missing or
// unlaunchable browser binary yields *LaunchError.
func (m *Manager) NewPage(ctx context.Context, opts PageOptions) (Page, error) {
	launch := LaunchOptions{
		Headless:    m.cfg.Headless,
		ExecPath:    m.cfg.ExecPath,
		UserDataDir: m.cfg.UserDataDir,
		UserAgent:   m.cfg.UserAgent,
		Args:        m.cfg.Args,
	}
	if opts.ExecPath != "" {
		launch.ExecPath = opts.ExecPath
	}
	if opts.Headless != nil {
		launch.Headless = *opts.Headless
	}
	if launch.ExecPath != "" {
		if _, err := os.Stat(launch.ExecPath); err != nil {
			return nil, &LaunchError{ExecPath: launch.ExecPath, Err: err}
		}
	}

	key := instanceKey{execPath: launch.ExecPath, userDataDir: launch.UserDataDir, headless: launch.Headless}
	instance, owned, err := m.acquireInstance(ctx, key, launch, opts.Persistent)
	if err != nil {
		return nil, err
	}

	page, err := instance.NewPage(ctx)
	if err != nil {
		if owned {
			_ = instance.Close()
		} else if ctx.Err() == nil {
			m.retire(key, instance)
		}
		return nil, fmt.Errorf("failed to open page: %w", err)
	}

	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		_ = page.Close()
		if owned {
			_ = instance.Close()
		}
		return nil, errManagerShutdown
	}
	m.pages[page.ID()] = &trackedPage{page: page, instance: instance, owned: owned}
	m.mu.Unlock()

	logger := m.logger.With(zap.String("page_id", page.ID()))
	logger.Debug("Page opened.", zap.Bool("persistent", opts.Persistent), zap.Bool("headless", launch.Headless))

	if opts.LoadCookies {
		m.injectCookies(ctx, page, logger)
	}
	return page, nil
}

// acquireInstance returns the shared browser for key, launching it if
// needed, or a fresh owned browser for non-persistent pages. Launches run
// outside m.mu.
func (m *Manager) acquireInstance(ctx context.Context, key instanceKey, launch LaunchOptions, persistent bool) (Instance, bool, error) {
	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		return nil, false, errManagerShutdown
	}
	if inst, ok := m.instances[key]; ok && persistent {
		m.mu.Unlock()
		return inst, false, nil
	}
	m.mu.Unlock()

	if !persistent {
		inst, err := m.launch(ctx, launch)
		if err != nil {
			return nil, false, err
		}
		return inst, true, nil
	}

	v, err, _ := m.launches.Do(key.String(), func() (any, error) {
		m.mu.Lock()
		if inst, ok := m.instances[key]; ok {
			m.mu.Unlock()
			return inst, nil
		}
		m.mu.Unlock()

		inst, err := m.launch(ctx, launch)
		if err != nil {
			return nil, err
		}

		m.mu.Lock()
		defer m.mu.Unlock()
		if m.shutdown {
			_ = inst.Close()
			return nil, errManagerShutdown
		}
		m.instances[key] = inst
		return inst, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.(Instance), false, nil
}

func (m *Manager) launch(ctx context.Context, launch LaunchOptions) (Instance, error) {
	m.logger.Info("Launching browser.", zap.String("exec_path", launch.ExecPath), zap.Bool("headless", launch.Headless))
	inst, err := m.driver.Launch(ctx, launch)
	if err != nil {
		var le *LaunchError
		if errors.As(err, &le) {
			return nil, err
		}
		return nil, &LaunchError{ExecPath: launch.ExecPath, Err: err}
	}
	return inst, nil
}

// retire drops a shared browser that failed to open a page, so the next
// NewPage launches a fresh one. It is closed once no open page uses it.
func (m *Manager) retire(key instanceKey, inst Instance) {
	m.mu.Lock()
	if m.instances[key] == inst {
		delete(m.instances, key)
	}
	inUse := m.inUseLocked(inst)
	if inUse {
		m.retired[inst] = struct{}{}
	}
	m.mu.Unlock()

	m.logger.Warn("Shared browser failed to open a page; it will be replaced.", zap.Bool("in_use", inUse))
	if !inUse {
		_ = inst.Close()
	}
}

func (m *Manager) inUseLocked(inst Instance) bool {
	for _, p := range m.pages {
		if p.instance == inst {
			return true
		}
	}
	return false
}

func (m *Manager) injectCookies(ctx context.Context, page Page, logger *zap.Logger) {
	cookies, err := m.store.Load()
	if err != nil {
		if errors.Is(err, cookiestore.ErrNoSession) {
			logger.Debug("No saved session to load.")
		} else {
			logger.Warn("Failed to load saved session.", zap.Error(err))
		}
		return
	}

	now := m.clock.Now()
	live := cookies[:0:0]
	for _, c := range cookies {
		if !c.Expired(now) {
			live = append(live, c)
		}
	}
	if len(live) == 0 {
		return
	}
	if err := page.SetCookies(ctx, live); err != nil {
		logger.Warn("Failed to inject saved cookies.", zap.Error(err))
		return
	}
	logger.Debug("Saved cookies injected.", zap.Int("count", len(live)))
}

// Navigate loads url, retrying transient failures with exponential backoff.
// HTTP 4xx responses and DNS/URL errors are returned at once.
func (m *Manager) Navigate(ctx context.Context, page Page, url string) error {
	nav := m.cfg.Navigation
	attempts := max(nav.MaxAttempts, 1)
	logger := m.logger.With(zap.String("page_id", page.ID()), zap.String("url", url))

	var (
		attempt   int
		status    int
		permanent bool
	)
	operation := func() error {
		if err := m.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		attempt++

		code, err := m.navigateOnce(ctx, page, url, nav.Timeout)
		switch {
		case err == nil && code >= 400 && code < 500:
			status, permanent = code, true
			return backoff.Permanent(fmt.Errorf("server responded with HTTP %d", code))
		case err == nil && code >= 500:
			status = code
			return fmt.Errorf("server responded with HTTP %d", code)
		case err == nil:
			return nil
		case ctx.Err() != nil:
			return backoff.Permanent(ctx.Err())
		case IsPermanent(err):
			permanent = true
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, next time.Duration) {
		logger.Warn("Navigation failed, retrying.",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", next),
			zap.Error(err),
		)
	}

	b := backoff.WithContext(backoff.WithMaxRetries(m.navigationBackOff(), uint64(attempts-1)), ctx)
	timer := clock.NewTimer(ctx, m.clock)
	if err := backoff.RetryNotifyWithTimer(operation, b, notify, timer); err != nil {
		return &NavigationError{URL: url, Attempts: attempt, Status: status, Permanent: permanent, Err: err}
	}
	if attempt > 1 {
		logger.Info("Navigation succeeded after retry.", zap.Int("attempt", attempt))
	}
	return nil
}

// navigationBackOff starts at retry_delay and doubles up to max_delay,
// without jitter.
func (m *Manager) navigationBackOff() *backoff.ExponentialBackOff {
	nav := m.cfg.Navigation
	maxInterval := nav.MaxDelay
	if maxInterval <= 0 {
		maxInterval = backoff.DefaultMaxInterval
	}
	return backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(max(nav.RetryDelay, 0)),
		backoff.WithMaxInterval(maxInterval),
		backoff.WithMultiplier(2),
		backoff.WithRandomizationFactor(0),
		backoff.WithMaxElapsedTime(0),
		backoff.WithClockProvider(m.clock),
	)
}

func (m *Manager) navigateOnce(ctx context.Context, page Page, url string, timeout time.Duration) (int, error) {
	if timeout <= 0 {
		return page.Navigate(ctx, url)
	}
	navCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return page.Navigate(navCtx, url)
}

// SaveCookies persists every cookie visible to page.
func (m *Manager) SaveCookies(ctx context.Context, page Page) error {
	cookies, err := page.Cookies(ctx)
	if err != nil {
		return fmt.Errorf("failed to read page cookies: %w", err)
	}
	if err := m.store.Save(cookies); err != nil {
		return err
	}
	m.logger.Debug("Session saved.", zap.String("page_id", page.ID()), zap.Int("count", len(cookies)))
	return nil
}

// ClosePage closes page and, for non-persistent pages, its browser. Closing a
// page twice is a no-op.
func (m *Manager) ClosePage(page Page) error {
	if page == nil {
		return nil
	}
	m.mu.Lock()
	tracked, ok := m.pages[page.ID()]
	closeInstance := false
	if ok {
		delete(m.pages, page.ID())
		closeInstance = tracked.owned
		if _, retired := m.retired[tracked.instance]; retired && !m.inUseLocked(tracked.instance) {
			delete(m.retired, tracked.instance)
			closeInstance = true
		}
	}
	m.mu.Unlock()

	if !ok {
		return nil
	}

	err := tracked.page.Close()
	if closeInstance {
		err = errors.Join(err, tracked.instance.Close())
	}
	if err != nil {
		m.logger.Warn("Error while closing page.", zap.String("page_id", page.ID()), zap.Error(err))
	}
	return err
}

// OpenPages reports how many pages have been opened and not yet closed.
func (m *Manager) OpenPages() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pages)
}

// Shutdown closes every open page and every shared browser. The manager
// refuses new pages afterwards.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.shutdown = true
	pages := make([]*trackedPage, 0, len(m.pages))
	for id, p := range m.pages {
		pages = append(pages, p)
		delete(m.pages, id)
	}
	instances := make([]Instance, 0, len(m.instances)+len(m.retired))
	for key, inst := range m.instances {
		instances = append(instances, inst)
		delete(m.instances, key)
	}
	for inst := range m.retired {
		instances = append(instances, inst)
		delete(m.retired, inst)
	}
	m.mu.Unlock()

	var errs []error
	for _, p := range pages {
		if err := p.page.Close(); err != nil {
			errs = append(errs, err)
		}
		if p.owned {
			if err := p.instance.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	for _, inst := range instances {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := inst.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(pages) > 0 || len(instances) > 0 {
		m.logger.Info("Browser manager shut down.", zap.Int("pages", len(pages)), zap.Int("browsers", len(instances)))
	}
	return errors.Join(errs...)
}
