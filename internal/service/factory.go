// File: internal/service/factory.go
package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/xhs-cli/internal/browser"
	"github.com/xkilldash9x/xhs-cli/internal/browser/stealth"
	"github.com/xkilldash9x/xhs-cli/internal/clock"
	"github.com/xkilldash9x/xhs-cli/internal/config"
	"github.com/xkilldash9x/xhs-cli/internal/xhs"
)

// ComponentFactory builds the components for one command invocation.
// Commands depend on this interface so tests can swap the browser driver.
type ComponentFactory interface {
	Create(ctx context.Context, cfg config.Interface, logger *zap.Logger) (*Components, error)
}

// FactoryOption customizes the production factory.
type FactoryOption func(*concreteFactory)

// WithDriver replaces the Chrome driver.
func WithDriver(d browser.Driver) FactoryOption {
	return func(f *concreteFactory) { f.driver = d }
}

// WithClock replaces the wall clock used by the manager and the service.
func WithClock(c clock.Clock) FactoryOption {
	return func(f *concreteFactory) { f.clock = c }
}

// concreteFactory is the production implementation of the ComponentFactory.
type concreteFactory struct {
	driver browser.Driver
	clock  clock.Clock
}

// NewComponentFactory creates a factory. Without WithDriver it drives a
// local Chrome through chromedp.
func NewComponentFactory(opts ...FactoryOption) ComponentFactory {
	f := &concreteFactory{}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Create wires the session store, selector catalog, downloader, browser
// manager and workflow service. No browser is launched here.
func (f *concreteFactory) Create(ctx context.Context, cfg config.Interface, logger *zap.Logger) (*Components, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	components := &Components{Config: cfg, Logger: logger}

	var initializationErr error
	defer func() {
		if initializationErr != nil {
			logger.Warn("Initialization failed, shutting down partially created components.", zap.Error(initializationErr))
			components.Shutdown(ctx)
		}
	}()

	// 1. Session file
	session, err := InitializeSession(cfg.Paths())
	if err != nil {
		initializationErr = err
		return nil, initializationErr
	}
	components.Session = session
	logger.Debug("Session store initialized.", zap.String("path", session.Path()))

	// 2. Selector catalog
	catalog, err := InitializeCatalog(cfg.Selectors(), logger)
	if err != nil {
		initializationErr = err
		return nil, initializationErr
	}
	components.Catalog = catalog

	// 3. Remote image downloader (optional)
	components.Downloader = InitializeDownloader(cfg.Media(), logger)

	// 4. Browser manager
	driver := f.driver
	if driver == nil {
		persona := stealth.DefaultPersona.WithUserAgent(cfg.Browser().UserAgent)
		driver = browser.NewChromeDriver(logger, persona)
	}
	managerOpts := []browser.Option{browser.WithRequestDelay(cfg.XHS().RequestDelay)}
	if f.clock != nil {
		managerOpts = append(managerOpts, browser.WithClock(f.clock))
	}
	components.Manager = browser.NewManager(logger, cfg.Browser(), driver, session, managerOpts...)
	logger.Debug("Browser manager initialized.")

	// 5. Workflow service
	svc, err := xhs.NewService(logger, cfg, xhs.Deps{
		Manager:    components.Manager,
		Catalog:    catalog,
		Session:    session,
		Downloader: components.Downloader,
		Clock:      f.clock,
	})
	if err != nil {
		initializationErr = fmt.Errorf("failed to initialize xhs service: %w", err)
		return nil, initializationErr
	}
	components.Service = svc

	logger.Debug("All components initialized.")
	return components, nil
}
