// File: internal/config/config.go
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Browser() BrowserConfig
	Paths() PathsConfig
	XHS() XHSConfig
	Selectors() SelectorsConfig
	Publish() PublishConfig
	Media() MediaConfig

	// Browser Setters
	SetBrowserHeadless(bool)
	SetBrowserExecPath(string)
	SetLoginTimeout(time.Duration)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	BrowserCfg   BrowserConfig   `mapstructure:"browser" yaml:"browser"`
	PathsCfg     PathsConfig     `mapstructure:"paths" yaml:"paths"`
	XHSCfg       XHSConfig       `mapstructure:"xhs" yaml:"xhs"`
	SelectorsCfg SelectorsConfig `mapstructure:"selectors" yaml:"selectors"`
	PublishCfg   PublishConfig   `mapstructure:"publish" yaml:"publish"`
	MediaCfg     MediaConfig     `mapstructure:"media" yaml:"media"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig       { return c.LoggerCfg }
func (c *Config) Browser() BrowserConfig     { return c.BrowserCfg }
func (c *Config) Paths() PathsConfig         { return c.PathsCfg }
func (c *Config) XHS() XHSConfig             { return c.XHSCfg }
func (c *Config) Selectors() SelectorsConfig { return c.SelectorsCfg }
func (c *Config) Publish() PublishConfig     { return c.PublishCfg }
func (c *Config) Media() MediaConfig         { return c.MediaCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetBrowserHeadless(b bool)       { c.BrowserCfg.Headless = b }
func (c *Config) SetBrowserExecPath(p string)     { c.BrowserCfg.ExecPath = p }
func (c *Config) SetLoginTimeout(d time.Duration) { c.BrowserCfg.LoginTimeout = d }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig holds settings for the controlled browser instances.
type BrowserConfig struct {
	Headless    bool     `mapstructure:"headless" yaml:"headless"`
	ExecPath    string   `mapstructure:"exec_path" yaml:"exec_path"`
	UserDataDir string   `mapstructure:"user_data_dir" yaml:"user_data_dir"`
	Args        []string `mapstructure:"args" yaml:"args"`
	UserAgent   string   `mapstructure:"user_agent" yaml:"user_agent"`
	// LoginHeadless is used only by the login flow, which needs a visible
	// window for the QR code.
	LoginHeadless bool             `mapstructure:"login_headless" yaml:"login_headless"`
	LoginTimeout  time.Duration    `mapstructure:"login_timeout" yaml:"login_timeout"`
	LoginPoll     time.Duration    `mapstructure:"login_poll" yaml:"login_poll"`
	Navigation    NavigationConfig `mapstructure:"navigation" yaml:"navigation"`
}

// NavigationConfig tunes navigateWithRetry.
type NavigationConfig struct {
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxAttempts int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	RetryDelay  time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay" yaml:"max_delay"`
}

// PathsConfig locates on-disk state.
type PathsConfig struct {
	CookiesFile string `mapstructure:"cookies_file" yaml:"cookies_file"`
}

// ResolvedCookiesFile expands a leading ~ and returns an absolute path.
func (p PathsConfig) ResolvedCookiesFile() (string, error) {
	return expandPath(p.CookiesFile)
}

// XHSConfig holds the platform endpoints.
type XHSConfig struct {
	HomeURL           string        `mapstructure:"home_url" yaml:"home_url"`
	ExploreURL        string        `mapstructure:"explore_url" yaml:"explore_url"`
	SearchURL         string        `mapstructure:"search_url" yaml:"search_url"`
	CreatorPublishURL string        `mapstructure:"creator_publish_url" yaml:"creator_publish_url"`
	CreatorVideoURL   string        `mapstructure:"creator_video_url" yaml:"creator_video_url"`
	NoteManagerURL    string        `mapstructure:"note_manager_url" yaml:"note_manager_url"`
	RequestDelay      time.Duration `mapstructure:"request_delay" yaml:"request_delay"`
}

// SelectorsConfig points at an optional override of the embedded selector catalog.
type SelectorsConfig struct {
	OverrideFile string `mapstructure:"override_file" yaml:"override_file"`
}

// PublishConfig holds publish limits and waits.
type PublishConfig struct {
	MaxTitleWidth int   `mapstructure:"max_title_width" yaml:"max_title_width"`
	MaxImages     int   `mapstructure:"max_images" yaml:"max_images"`
	MaxVideoBytes int64 `mapstructure:"max_video_bytes" yaml:"max_video_bytes"`

	PageSettle        time.Duration `mapstructure:"page_settle" yaml:"page_settle"`
	TabSettle         time.Duration `mapstructure:"tab_settle" yaml:"tab_settle"`
	ImageUploadSettle time.Duration `mapstructure:"image_upload_settle" yaml:"image_upload_settle"`
	EditorWait        time.Duration `mapstructure:"editor_wait" yaml:"editor_wait"`
	FieldSettle       time.Duration `mapstructure:"field_settle" yaml:"field_settle"`
	TagSettle         time.Duration `mapstructure:"tag_settle" yaml:"tag_settle"`
	SubmitSettle      time.Duration `mapstructure:"submit_settle" yaml:"submit_settle"`
	NoteIDSettle      time.Duration `mapstructure:"note_id_settle" yaml:"note_id_settle"`

	ImageCompletion CompletionConfig `mapstructure:"image_completion" yaml:"image_completion"`
	VideoProcessing CompletionConfig `mapstructure:"video_processing" yaml:"video_processing"`
	VideoCompletion CompletionConfig `mapstructure:"video_completion" yaml:"video_completion"`
	VideoUploadWait time.Duration    `mapstructure:"video_upload_wait" yaml:"video_upload_wait"`
}

// CompletionConfig bounds one completion-polling loop.
type CompletionConfig struct {
	Timeout      time.Duration `mapstructure:"timeout" yaml:"timeout"`
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	BusyInterval time.Duration `mapstructure:"busy_interval" yaml:"busy_interval"`
}

// MediaConfig configures remote image downloads.
type MediaConfig struct {
	DownloadDir     string        `mapstructure:"download_dir" yaml:"download_dir"`
	DownloadTimeout time.Duration `mapstructure:"download_timeout" yaml:"download_timeout"`
	Concurrency     int           `mapstructure:"concurrency" yaml:"concurrency"`
	MaxImageBytes   int64         `mapstructure:"max_image_bytes" yaml:"max_image_bytes"`
}

// ResolvedDownloadDir expands a leading ~ and returns an absolute path.
func (m MediaConfig) ResolvedDownloadDir() (string, error) {
	return expandPath(m.DownloadDir)
}

func expandPath(p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", fmt.Errorf("empty path")
	}
	expanded, err := homedir.Expand(p)
	if err != nil {
		return "", fmt.Errorf("failed to expand path %q: %w", p, err)
	}
	return filepath.Abs(expanded)
}

// NewDefaultConfig creates a new configuration populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "xhs-cli")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.user_data_dir", "")
	v.SetDefault("browser.args", []string{})
	v.SetDefault("browser.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/139.0.0.0 Safari/537.36")
	v.SetDefault("browser.login_headless", false)
	v.SetDefault("browser.login_timeout", "300s")
	v.SetDefault("browser.login_poll", "5s")
	v.SetDefault("browser.navigation.timeout", "30s")
	v.SetDefault("browser.navigation.max_attempts", 3)
	v.SetDefault("browser.navigation.retry_delay", "2s")
	v.SetDefault("browser.navigation.max_delay", "15s")

	// -- Paths --
	v.SetDefault("paths.cookies_file", "~/.xhs-cli/cookies.json")

	// -- XHS --
	v.SetDefault("xhs.home_url", "https://www.xiaohongshu.com")
	v.SetDefault("xhs.explore_url", "https://www.xiaohongshu.com/explore")
	v.SetDefault("xhs.search_url", "https://www.xiaohongshu.com/search_result")
	v.SetDefault("xhs.creator_publish_url", "https://creator.xiaohongshu.com/publish/publish?source=official")
	v.SetDefault("xhs.creator_video_url", "https://creator.xiaohongshu.com/publish/publish?source=official")
	v.SetDefault("xhs.note_manager_url", "https://creator.xiaohongshu.com/new/note-manager?source=official")
	v.SetDefault("xhs.request_delay", "1s")

	// -- Selectors --
	v.SetDefault("selectors.override_file", "")

	// -- Publish --
	v.SetDefault("publish.max_title_width", 40)
	v.SetDefault("publish.max_images", 18)
	v.SetDefault("publish.max_video_bytes", int64(500*1024*1024))
	v.SetDefault("publish.page_settle", "3s")
	v.SetDefault("publish.tab_settle", "2s")
	v.SetDefault("publish.image_upload_settle", "15s")
	v.SetDefault("publish.editor_wait", "15s")
	v.SetDefault("publish.field_settle", "2s")
	v.SetDefault("publish.tag_settle", "1s")
	v.SetDefault("publish.submit_settle", "2s")
	v.SetDefault("publish.note_id_settle", "5s")
	v.SetDefault("publish.image_completion.timeout", "60s")
	v.SetDefault("publish.image_completion.poll_interval", "1s")
	v.SetDefault("publish.image_completion.busy_interval", "1s")
	v.SetDefault("publish.video_upload_wait", "3s")
	v.SetDefault("publish.video_processing.timeout", "120s")
	v.SetDefault("publish.video_processing.poll_interval", "3s")
	v.SetDefault("publish.video_processing.busy_interval", "3s")
	v.SetDefault("publish.video_completion.timeout", "300s")
	v.SetDefault("publish.video_completion.poll_interval", "2s")
	v.SetDefault("publish.video_completion.busy_interval", "5s")

	// -- Media --
	v.SetDefault("media.download_dir", "~/.xhs-cli/images")
	v.SetDefault("media.download_timeout", "30s")
	v.SetDefault("media.concurrency", 4)
	v.SetDefault("media.max_image_bytes", int64(32*1024*1024))
}

// NewConfigFromViper unmarshals the configuration from a viper instance and validates it.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.BrowserCfg.Navigation.MaxAttempts <= 0 {
		return fmt.Errorf("browser.navigation.max_attempts must be a positive integer")
	}
	if c.BrowserCfg.Navigation.Timeout <= 0 {
		return fmt.Errorf("browser.navigation.timeout must be positive")
	}
	if c.BrowserCfg.LoginTimeout <= 0 {
		return fmt.Errorf("browser.login_timeout must be positive")
	}
	if c.BrowserCfg.LoginPoll <= 0 {
		return fmt.Errorf("browser.login_poll must be positive")
	}
	if strings.TrimSpace(c.PathsCfg.CookiesFile) == "" {
		return fmt.Errorf("paths.cookies_file is a required configuration field")
	}
	if c.XHSCfg.ExploreURL == "" || c.XHSCfg.CreatorPublishURL == "" || c.XHSCfg.NoteManagerURL == "" {
		return fmt.Errorf("xhs urls must not be empty")
	}
	if c.XHSCfg.RequestDelay < 0 {
		return fmt.Errorf("xhs.request_delay must not be negative")
	}
	if err := c.PublishCfg.Validate(); err != nil {
		return fmt.Errorf("publish configuration invalid: %w", err)
	}
	if c.MediaCfg.Concurrency <= 0 {
		return fmt.Errorf("media.concurrency must be a positive integer")
	}
	return nil
}

// Validate checks the publish configuration.
func (p *PublishConfig) Validate() error {
	if p.MaxTitleWidth <= 0 {
		return fmt.Errorf("max_title_width must be a positive integer")
	}
	if p.MaxImages <= 0 {
		return fmt.Errorf("max_images must be a positive integer")
	}
	if p.MaxVideoBytes <= 0 {
		return fmt.Errorf("max_video_bytes must be positive")
	}
	for name, cc := range map[string]CompletionConfig{
		"image_completion": p.ImageCompletion,
		"video_processing": p.VideoProcessing,
		"video_completion": p.VideoCompletion,
	} {
		if cc.Timeout <= 0 || cc.PollInterval <= 0 {
			return fmt.Errorf("%s requires a positive timeout and poll_interval", name)
		}
	}
	return nil
}
