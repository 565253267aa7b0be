package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/oss-observatory/starcrawler/internal/clock/system"
	"github.com/oss-observatory/starcrawler/internal/crawler"
	"github.com/oss-observatory/starcrawler/internal/github"
	"github.com/oss-observatory/starcrawler/internal/id/uuid"
	"github.com/oss-observatory/starcrawler/internal/policy/ratelimit"
	queuememory "github.com/oss-observatory/starcrawler/internal/queue/memory"
)

// newCrawlCmd creates and configures the 'crawl' subcommand, which runs one
// harvest to completion against the configured backends.
func newCrawlCmd() *cobra.Command {
	var withServer bool
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Run one harvest of the most-starred GitHub repositories",
		Long: `Runs a full harvest: the search grid is partitioned by language,
star range, and creation window, pages are fetched concurrently until the
target count is reached, and every unique repository is delivered to the
configured database backend.`,

		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCrawl(cmd, withServer)
		},
	}
	cmd.Flags().BoolVar(&withServer, "with-server", true, "expose the status API while the run is active")
	return cmd
}

func runCrawl(cmd *cobra.Command, withServer bool) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	cfg := appInstance.GetConfig()
	if cfg.GitHub.Token == "" {
		return errors.New("github.token is required (set STARCRAWLER_GITHUB_TOKEN)")
	}
	logger := appInstance.GetLogger()
	svc := buildCrawlService(appInstance)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	installStopHandler(ctx, cancel, svc, logger)

	var stopServer func()
	if withServer {
		stopServer = startStatusServer(appInstance, logger)
	}

	result, runErr := svc.Run(ctx)
	if stopServer != nil {
		stopServer()
	}

	logger.Info("crawl command finished",
		zap.String("run_id", result.RunID),
		zap.String("status", string(result.Status)),
		zap.Int64("unique", result.Stats.UniqueEmitted),
		zap.Int64("pages", result.Stats.PagesFetched),
		zap.Duration("elapsed", result.Elapsed),
	)

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return fmt.Errorf("harvest run: %w", runErr)
	}
	return nil
}

func buildCrawlService(appInstance App) *crawler.CrawlService {
	cfg := appInstance.GetConfig()
	logger := appInstance.GetLogger()
	clk := system.New()

	pacer := ratelimit.New(ratelimit.Config{
		DefaultRPS:   cfg.GitHub.RequestsPerSecond,
		DefaultBurst: cfg.GitHub.Burst,
	})
	client := github.NewClient(github.Config{
		Token:          cfg.GitHub.Token,
		Endpoint:       cfg.GitHub.Endpoint,
		PageSize:       cfg.Crawler.PageSize,
		RequestTimeout: cfg.GitHub.RequestTimeout,
		UserAgent:      cfg.GitHub.UserAgent,
	}, pacer, clk, logger.Named("github"))

	fetcher := crawler.NewPagedFetcher(client, cfg.Crawler, clk, logger.Named("fetch"))
	partitioner := crawler.NewGridPartitioner(cfg.Crawler.Languages, cfg.Crawler.StarRanges, cfg.Crawler.CreatedWindows)
	newQueue := func(capacity int) crawler.Queue { return queuememory.NewQueue(capacity) }

	return crawler.NewCrawlService(
		cfg.Crawler,
		partitioner,
		fetcher,
		appInstance.GetStore(),
		appInstance.GetPublisher(),
		appInstance.GetHub(),
		newQueue,
		uuid.New(),
		clk,
		logger.Named("crawl"),
	)
}

// installStopHandler wires two-stage interrupts: the first signal stops
// admitting new work so in-flight pages can drain, the second aborts.
func installStopHandler(ctx context.Context, cancel context.CancelFunc, svc *crawler.CrawlService, logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sigCh)
		select {
		case <-sigCh:
			logger.Info("stop requested; draining in-flight pages (interrupt again to abort)")
			svc.RequestStop()
		case <-ctx.Done():
			return
		}
		select {
		case <-sigCh:
			logger.Warn("abort requested")
			cancel()
		case <-ctx.Done():
		}
	}()
}

// startStatusServer exposes run status and health while the harvest is
// active. Bind failures are logged, not fatal; the crawl continues.
func startStatusServer(appInstance App, logger *zap.Logger) func() {
	port := appInstance.GetConfig().Server.Port
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           appInstance.GetAPIServer().Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("status server started", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("status server error", zap.Error(err))
		}
	}()
	return func() {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelShutdown()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("status server shutdown error", zap.Error(err))
		}
	}
}
