// Package cmd defines and implements the CLI commands for the pagewatch executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/JakeFAU/pagewatch/internal/app"
	"github.com/JakeFAU/pagewatch/internal/config"
	"github.com/JakeFAU/pagewatch/internal/logging"
	"github.com/JakeFAU/pagewatch/internal/telemetry"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// newApp is the application factory. It's a variable so tests can inject
// their own App.
var newApp = func(settingsPath string, out io.Writer) (*app.App, error) {
	settings, err := config.Load(settingsPath)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(logging.Config{
		Development: settings.Logging.Development,
		Level:       settings.Logging.Level,
	})
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	tp, err := telemetry.InitTracerProvider(context.Background(), "pagewatch")
	if err != nil {
		return nil, err
	}
	return app.New(settings, logger, app.WithOutput(out), app.WithTracerProvider(tp)), nil
}

// runFlags are the inputs of a watch run.
type runFlags struct {
	configPath string
	storage    string
}

func (f *runFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.configPath, "config", "c", "", "watch configuration file (JSON)")
	cmd.Flags().StringVarP(&f.storage, "storage", "s", "",
		"snapshot storage: file path, sqlite://path, postgres://dsn or gs://bucket/object")
}

// newRootCmd creates and configures the root command. Given -c and -s it
// performs a run, like the run subcommand.
func newRootCmd() *cobra.Command {
	var (
		settingsPath string
		flags        runFlags
	)
	cmd := &cobra.Command{
		Use:   "pagewatch",
		Short: "Watch fragments of web pages and react when they change.",
		Long: `pagewatch fetches every page named in a watch configuration, selects the
declared fragments, compares them with the snapshot kept from the previous run
and runs the configured actions for each fragment that changed.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(settingsPath, cmd.OutOrStdout())
			if err != nil {
				return fmt.Errorf("failed to initialize application: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		// This hook ensures services are shut down gracefully.
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, err := resolveApp(cmd.Context()); err == nil {
				appInstance.Close(context.WithoutCancel(cmd.Context()))
			}
		},

		RunE: func(cmd *cobra.Command, _ []string) error {
			if flags.configPath == "" && flags.storage == "" {
				return cmd.Help()
			}
			return runWatch(cmd, flags)
		},
	}

	cmd.PersistentFlags().StringVar(&settingsPath, "settings", "", "runtime settings file (YAML, JSON or TOML)")
	flags.register(cmd)

	cmd.AddCommand(newRunCmd(), newValidateCmd())
	return cmd
}

func resolveApp(ctx context.Context) (*app.App, error) {
	if ctx == nil {
		return nil, errors.New("application services not initialized")
	}
	appInstance, ok := ctx.Value(appKey).(*app.App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err == nil {
		return
	}

	logger := zap.L()
	if !logger.Core().Enabled(zapcore.FatalLevel) {
		// Settings never loaded, so no logger was installed.
		if fallback, lerr := logging.New(logging.Config{}); lerr == nil {
			logger = fallback
		} else {
			fmt.Fprintln(os.Stderr, "pagewatch:", err)
			os.Exit(1)
		}
	}
	logger.Fatal("Command execution failed", zap.Error(err))
}
