// File: cmd/root.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/xhs-cli/internal/config"
	"github.com/xkilldash9x/xhs-cli/internal/observability"
	"github.com/xkilldash9x/xhs-cli/internal/service"
)

type contextKey string

const configKey contextKey = "config"

var (
	cfgFile  string
	execPath string
	compact  bool

	// componentFactory is swapped in tests to drive a fake browser.
	componentFactory = service.NewComponentFactory()
)

// ErrResultFailed signals that a workflow ran and reported failure. The
// result has already been printed, so callers only set the exit code.
var ErrResultFailed = errors.New("operation failed")

// rootCmd is kept for Execute; tests build fresh trees with NewRootCommand.
var rootCmd = NewRootCommand()

// NewRootCommand builds the command tree. Each call returns an independent
// tree so flag values never leak between invocations.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "xhs-cli",
		Short:         "Automates Xiaohongshu publishing, note management and browsing through a real browser.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			config.SetDefaults(v)

			if err := initializeConfig(cmd, v); err != nil {
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}

			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "xhs-cli"})
				return fmt.Errorf("failed to load or validate config: %w", err)
			}
			if execPath != "" {
				cfg.SetBrowserExecPath(execPath)
			}

			observability.InitializeLogger(cfg.Logger())
			observability.GetLogger().Debug("Starting xhs-cli", zap.String("version", Version))

			cmd.SetContext(context.WithValue(cmd.Context(), configKey, cfg))
			return nil
		},
	}
	cmd.SetVersionTemplate("{{.Name}} version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	cmd.PersistentFlags().StringVar(&execPath, "exec-path", "", "Chrome or Chromium binary to launch")
	cmd.PersistentFlags().Bool("headless", true, "run the browser without a window (login always shows one)")
	cmd.PersistentFlags().BoolVar(&compact, "compact", false, "print the result as single-line JSON")

	cmd.AddCommand(
		newLoginCmd(),
		newLogoutCmd(),
		newStatusCmd(),
		newPublishCmd(),
		newNotesCmd(),
		newDeleteCmd(),
		newFeedsCmd(),
		newSearchCmd(),
		newDetailCmd(),
		newCommentCmd(),
		newVersionCmd(),
	)
	return cmd
}

// Execute runs the root command with a signal-aware context.
func Execute(ctx context.Context) error {
	err := rootCmd.ExecuteContext(ctx)
	if err != nil && !errors.Is(err, ErrResultFailed) {
		observability.GetLogger().Error("Command execution failed", zap.Error(err))
	}
	observability.Sync()
	return err
}

// initializeConfig reads the config file and XHS_ environment variables.
// A missing default config file is not an error.
func initializeConfig(cmd *cobra.Command, v *viper.Viper) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("XHS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	// A changed flag overrides file and environment values.
	if f := cmd.Flags().Lookup("headless"); f != nil {
		if err := v.BindPFlag("browser.headless", f); err != nil {
			return err
		}
	}
	return nil
}

// configFrom returns the configuration stored by PersistentPreRunE.
func configFrom(cmd *cobra.Command) (*config.Config, error) {
	cfg, ok := cmd.Context().Value(configKey).(*config.Config)
	if !ok {
		return nil, errors.New("configuration not initialized")
	}
	return cfg, nil
}
