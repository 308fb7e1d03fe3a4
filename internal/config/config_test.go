// File: internal/config/config_test.go
package config

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -- Constructor and Defaults Tests --

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "info", cfg.Logger().Level)
	assert.Equal(t, "xhs-cli", cfg.Logger().ServiceName)
	assert.True(t, cfg.Browser().Headless)
	assert.False(t, cfg.Browser().LoginHeadless)
	assert.Equal(t, 300*time.Second, cfg.Browser().LoginTimeout)
	assert.Equal(t, 5*time.Second, cfg.Browser().LoginPoll)
	assert.Equal(t, 3, cfg.Browser().Navigation.MaxAttempts)
	assert.Equal(t, 40, cfg.Publish().MaxTitleWidth)
	assert.Equal(t, 18, cfg.Publish().MaxImages)
	assert.Equal(t, int64(500*1024*1024), cfg.Publish().MaxVideoBytes)
	assert.Equal(t, 60*time.Second, cfg.Publish().ImageCompletion.Timeout)
	assert.Equal(t, 5*time.Second, cfg.Publish().VideoCompletion.BusyInterval)
	assert.Equal(t, "https://creator.xiaohongshu.com/new/note-manager?source=official", cfg.XHS().NoteManagerURL)

	require.NoError(t, cfg.Validate(), "defaults must always validate")
}

// -- Validation Logic Tests --

func TestConfigValidation(t *testing.T) {
	t.Run("Navigation attempts", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.BrowserCfg.Navigation.MaxAttempts = 0
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "browser.navigation.max_attempts must be a positive integer")
	})

	t.Run("Cookie path", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.PathsCfg.CookiesFile = "   "
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "paths.cookies_file")
	})

	t.Run("Publish limits", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.PublishCfg.MaxTitleWidth = 0
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "publish configuration invalid")
	})

	t.Run("Completion loops", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.PublishCfg.VideoCompletion.PollInterval = 0
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "video_completion")
	})

	t.Run("Media concurrency", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.MediaCfg.Concurrency = -1
		assert.Error(t, cfg.Validate())
	})
}

// -- Viper Integration Tests --

func TestNewConfigFromViper(t *testing.T) {
	yamlConfig := []byte(`
logger:
  level: debug
browser:
  headless: false
  exec_path: /opt/chrome/chrome
  navigation:
    max_attempts: 5
    retry_delay: 250ms
paths:
  cookies_file: /tmp/xhs/cookies.json
publish:
  image_completion:
    timeout: 90s
`)
	v := viper.New()
	SetDefaults(v)
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(bytes.NewBuffer(yamlConfig)))

	cfg, err := NewConfigFromViper(v)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logger().Level)
	assert.False(t, cfg.Browser().Headless)
	assert.Equal(t, "/opt/chrome/chrome", cfg.Browser().ExecPath)
	assert.Equal(t, 5, cfg.Browser().Navigation.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Browser().Navigation.RetryDelay)
	assert.Equal(t, "/tmp/xhs/cookies.json", cfg.Paths().CookiesFile)
	assert.Equal(t, 90*time.Second, cfg.Publish().ImageCompletion.Timeout)
	// Untouched keys keep their defaults.
	assert.Equal(t, time.Second, cfg.Publish().ImageCompletion.PollInterval)
}

func TestNewConfigFromViper_Invalid(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("media.concurrency", 0)

	_, err := NewConfigFromViper(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestSetters(t *testing.T) {
	cfg := NewDefaultConfig()
	var iface Interface = cfg

	iface.SetBrowserHeadless(false)
	iface.SetBrowserExecPath("/usr/bin/chromium")
	iface.SetLoginTimeout(time.Minute)

	assert.False(t, cfg.Browser().Headless)
	assert.Equal(t, "/usr/bin/chromium", cfg.Browser().ExecPath)
	assert.Equal(t, time.Minute, cfg.Browser().LoginTimeout)
}

func TestResolvedPaths(t *testing.T) {
	home, err := homedir.Dir()
	require.NoError(t, err)

	p := PathsConfig{CookiesFile: "~/.xhs-cli/cookies.json"}
	resolved, err := p.ResolvedCookiesFile()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".xhs-cli", "cookies.json"), resolved)

	rel := MediaConfig{DownloadDir: "images"}
	dir, err := rel.ResolvedDownloadDir()
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(dir))
	assert.True(t, strings.HasSuffix(dir, "images"))

	_, err = PathsConfig{}.ResolvedCookiesFile()
	assert.Error(t, err)
}
