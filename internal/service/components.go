// File: internal/service/components.go
package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/xhs-cli/internal/browser"
	"github.com/xkilldash9x/xhs-cli/internal/config"
	"github.com/xkilldash9x/xhs-cli/internal/cookiestore"
	"github.com/xkilldash9x/xhs-cli/internal/media"
	"github.com/xkilldash9x/xhs-cli/internal/selector"
	"github.com/xkilldash9x/xhs-cli/internal/xhs"
)

// shutdownTimeout bounds browser teardown once the command context is gone.
const shutdownTimeout = 30 * time.Second

// Components holds everything a command needs to run one workflow.
// Shutdown releases them in reverse order of creation.
type Components struct {
	Config     config.Interface
	Logger     *zap.Logger
	Session    *cookiestore.Store
	Catalog    *selector.Catalog
	Downloader *media.Downloader
	Manager    *browser.Manager
	Service    *xhs.Service
}

// Shutdown closes every browser the manager still owns. It is safe to call
// on partially initialized components and more than once.
func (c *Components) Shutdown(ctx context.Context) {
	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Debug("Beginning components shutdown sequence.")

	if c.Manager != nil {
		// The caller's context may already be canceled by a signal; teardown
		// still needs time to close Chrome.
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		if err := c.Manager.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Error during browser manager shutdown.", zap.Error(err))
		} else {
			logger.Debug("Browser manager shut down.")
		}
	}
	logger.Debug("All components shut down.")
}
