// Package cmd defines the CLI commands for the cityscope executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/cityscope-ingest/internal/app"
	"github.com/JakeFAU/cityscope-ingest/internal/config"
	"github.com/JakeFAU/cityscope-ingest/internal/logging"
	"github.com/JakeFAU/cityscope-ingest/internal/pipeline"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App is what subcommands need from the application. Tests inject a fake.
type App interface {
	Close()
	GetLogger() *zap.Logger
	Migrate(ctx context.Context) error
	Ingest(ctx context.Context, opts pipeline.RunOptions) (pipeline.Report, error)
}

// newApp is the application factory. It's a variable so tests can replace it.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (App, error) {
	return app.New(ctx, cfg, logger)
}

// newRootCmd creates the root command and its subcommands.
func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "cityscope",
		Short: "Ingests municipal meeting documents into structured summaries.",
		Long: `cityscope discovers published meeting documents, extracts their text,
asks a generative model for the meeting title, date, and a resident-focused
summary, and stores one record per document. Each run processes a bounded
batch and skips documents that were already ingested.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		// Builds the application after flags are parsed and before the subcommand runs.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(cfg.Logging.Development)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			zap.ReplaceGlobals(logger)

			appInstance, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); environment variables use the CITYSCOPE_ prefix")

	cmd.AddCommand(newIngestCmd(), newMigrateCmd())
	return cmd
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// withApp runs fn with the application and closes it afterwards. Cobra skips post-run
// hooks when RunE fails, so closing happens here.
func withApp(cmd *cobra.Command, fn func(App) error) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	defer appInstance.Close()
	return fn(appInstance)
}

// Execute runs the CLI until completion or SIGINT/SIGTERM.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "cityscope: %v\n", err)
		os.Exit(1)
	}
}
