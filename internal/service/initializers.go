// File: internal/service/initializers.go
package service

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/xhs-cli/internal/config"
	"github.com/xkilldash9x/xhs-cli/internal/cookiestore"
	"github.com/xkilldash9x/xhs-cli/internal/media"
	"github.com/xkilldash9x/xhs-cli/internal/network"
	"github.com/xkilldash9x/xhs-cli/internal/selector"
)

// InitializeSession opens the cookie store at the configured path. The file
// itself is not required to exist yet.
func InitializeSession(cfg config.PathsConfig) (*cookiestore.Store, error) {
	path, err := cfg.ResolvedCookiesFile()
	if err != nil {
		return nil, fmt.Errorf("invalid paths.cookies_file: %w", err)
	}
	return cookiestore.New(path), nil
}

// InitializeCatalog loads the embedded selector catalog and applies the
// optional override file on top of it.
func InitializeCatalog(cfg config.SelectorsConfig, logger *zap.Logger) (*selector.Catalog, error) {
	catalog, err := selector.Load(cfg.OverrideFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load selector catalog: %w", err)
	}
	if cfg.OverrideFile != "" {
		logger.Info("Selector overrides applied.", zap.String("file", cfg.OverrideFile))
	}
	return catalog, nil
}

// InitializeDownloader builds the remote image downloader. A bad download
// directory is not fatal: the service then rejects remote image paths.
func InitializeDownloader(cfg config.MediaConfig, logger *zap.Logger) *media.Downloader {
	clientCfg := network.NewDefaultClientConfig()
	clientCfg.Logger = logger
	if cfg.DownloadTimeout > 0 {
		clientCfg.RequestTimeout = cfg.DownloadTimeout
	}
	d, err := media.NewDownloader(logger, cfg, network.NewClient(clientCfg))
	if err != nil {
		logger.Warn("Remote image downloads disabled.", zap.Error(err))
		return nil
	}
	return d
}
