// Package cmd implements the starcrawler CLI commands.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/oss-observatory/starcrawler/internal/api"
	"github.com/oss-observatory/starcrawler/internal/app"
	"github.com/oss-observatory/starcrawler/internal/config"
	"github.com/oss-observatory/starcrawler/internal/crawler"
	"github.com/oss-observatory/starcrawler/internal/export"
	"github.com/oss-observatory/starcrawler/internal/progress"
)

var cfgFile string

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App is the service container surface the commands depend on. Declaring it
// here lets tests inject a fake container through newApp.
type App interface {
	Close()
	GetConfig() *config.Config
	GetLogger() *zap.Logger
	GetStore() app.Store
	GetBlobs() crawler.BlobStore
	GetPublisher() crawler.Publisher
	GetHub() *progress.Hub
	GetExporter() *export.Exporter
	GetAPIServer() *api.Server
}

// newApp is the application factory. It is a variable so tests can replace
// it with a fake factory.
var newApp = func(ctx context.Context) (App, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg)
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "starcrawler",
		Short: "Harvest the most-starred repositories on GitHub",
		Long: `starcrawler partitions the GitHub search space by language, star
range, and creation window to route around the 1,000-result search cap, then
fetches repository pages concurrently until the configured target count of
unique repositories has been delivered to the database.`,

		// Runs after flags are parsed and before the subcommand's RunE, so
		// this is where the service container is built and injected.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(cmd.Context())
			if err != nil {
				return fmt.Errorf("initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		// Shuts services down after the subcommand finishes.
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				appInstance.Close()
			}
		},

		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default searches ., /etc/starcrawler, $HOME/.starcrawler)")

	cmd.AddCommand(newCrawlCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newExportCmd())

	return cmd
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point for the CLI.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
