// Package cmd defines and implements the CLI commands for the plantmonitor executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/solar-plant-monitor/internal/app"
	"github.com/JakeFAU/solar-plant-monitor/internal/config"
	"github.com/JakeFAU/solar-plant-monitor/internal/logging"
	"github.com/JakeFAU/solar-plant-monitor/internal/metrics"
	"github.com/JakeFAU/solar-plant-monitor/internal/monitor"
	"github.com/JakeFAU/solar-plant-monitor/internal/orchestrator"
)

var (
	cfgFile string
	envFile string
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App defines the application interface that commands will use.
type App interface {
	Close()
	GetLogger() *zap.Logger
	GetConfig() config.Config
	GetClock() monitor.Clock
	Targets() ([]orchestrator.Target, error)
	Orchestrator(opts app.RunOptions) (*orchestrator.Orchestrator, error)
}

// newApp is the application factory. It's a variable so tests can replace it.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (App, error) {
	return app.NewApp(ctx, cfg, logger)
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plantmonitor",
		Short: "Watches solar plant dashboards and reports anomalies.",
		Long: `plantmonitor logs into each configured vendor dashboard, captures evidence
screenshots of every plant, checks inverter status and fault history, and
notifies operators about anything abnormal. On the first day of the month it
also records the previous month's generation figures.`,
		SilenceUsage: true,

		// Build the service container after flags are parsed and before the subcommand runs.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile, envFile)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			logger, err := logging.New(logging.Options{
				Development: cfg.Logging.Development,
				Level:       cfg.Logging.Level,
				Dir:         cfg.Logging.Dir,
				MaxAgeDays:  cfg.Logging.MaxAgeDays,
			})
			if err != nil {
				return fmt.Errorf("failed to build logger: %w", err)
			}
			zap.ReplaceGlobals(logger)
			metrics.Init()

			appInstance, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				appInstance.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (defaults and PLANTMONITOR_* environment only when empty)")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file holding vendor credentials")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newReportCmd())

	return cmd
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "plantmonitor: %v\n", err)
		os.Exit(1)
	}
}
