// -- cmd/harvest.go --
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/magpie-cli/internal/article"
	"github.com/xkilldash9x/magpie-cli/internal/browser"
	"github.com/xkilldash9x/magpie-cli/internal/collector"
	"github.com/xkilldash9x/magpie-cli/internal/config"
	"github.com/xkilldash9x/magpie-cli/internal/export"
	"github.com/xkilldash9x/magpie-cli/internal/observability"
	"github.com/xkilldash9x/magpie-cli/internal/resolver"
	"github.com/xkilldash9x/magpie-cli/internal/session"
)

// newHarvestCmd creates and configures the `harvest` command.
func newHarvestCmd() *cobra.Command {
	harvestCmd := &cobra.Command{
		Use:   "harvest",
		Short: "Collects every bookmark, expands its links, and writes the export files",
		Long: `Harvest opens the bookmarks timeline in a Chrome instance, scrolls until
the timeline is exhausted, expands shortened links, optionally pulls the
full text of native articles, and writes the result as CSV and/or JSONL.

The first run needs an interactive login in the browser window; the saved
session is reused afterwards, including in --headless mode. Ctrl-C stops
scrolling gracefully: everything collected so far is still enriched and
exported. A second Ctrl-C aborts immediately.`,
		Args: cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			// Bind flags to their corresponding Viper keys so command-line
			// flags correctly override config file and environment values.
			bindings := map[string]string{
				"collector.max_scrolls":  "max-scrolls",
				"collector.scroll_delay": "scroll-delay",
				"export.stem":            "output",
				"export.format":          "format",
				"browser.headless":       "headless",
				"session.auth_file":      "auth-file",
			}
			for key, flag := range bindings {
				if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
					return err
				}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := observability.GetLogger()

			cfg, err := config.NewConfigFromViper(viper.GetViper())
			if err != nil {
				return err
			}
			if noArticles, _ := cmd.Flags().GetBool("no-articles"); noArticles {
				cfg.Articles.Enabled = false
			}

			// The run context is deliberately NOT tied to SIGINT. A signal
			// requests a graceful stop through the token; cutting the context
			// would also kill the enrichment and export of partial results.
			ctx := cmd.Context()
			token := collector.NewCancelToken()
			stopSignals := watchSignals(token, logger)
			defer stopSignals()

			return runHarvest(ctx, cfg, token, logger)
		},
	}

	harvestCmd.Flags().Int("max-scrolls", 0, "Maximum scroll attempts. (Overrides config/env)")
	harvestCmd.Flags().Duration("scroll-delay", 0, "Delay between scrolls, e.g. 2s. (Overrides config/env)")
	harvestCmd.Flags().StringP("output", "o", "", "Output filename stem without extension.")
	harvestCmd.Flags().StringP("format", "f", "", "Output format: csv, jsonl, or both.")
	harvestCmd.Flags().Bool("headless", false, "Run the browser headlessly (requires a saved session).")
	harvestCmd.Flags().Bool("no-articles", false, "Skip fetching the full text of native articles.")
	harvestCmd.Flags().String("auth-file", "", "Path to the saved session state JSON.")

	return harvestCmd
}

// watchSignals converts the first SIGINT/SIGTERM into a graceful stop request
// and the second into an immediate exit. The returned func releases the
// signal handler.
func watchSignals(token *collector.CancelToken, logger *zap.Logger) func() {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		for range sigCh {
			if token.Requested() {
				logger.Warn("Second interrupt, aborting immediately")
				os.Exit(130)
			}
			logger.Info("Interrupt received, finishing current pass; press Ctrl-C again to abort")
			token.Request()
		}
	}()
	return func() { signal.Stop(sigCh) }
}

func runHarvest(ctx context.Context, cfg *config.Config, token *collector.CancelToken, logger *zap.Logger) error {
	authPath, err := cfg.AuthFilePath()
	if err != nil {
		return err
	}
	store := session.NewStore(authPath, logger)

	if cfg.Browser.Headless && !store.Exists() {
		return fmt.Errorf("no session file found at %s; run `magpie-cli login` (or harvest without --headless) first", authPath)
	}

	manager, err := browser.NewManager(ctx, logger, cfg)
	if err != nil {
		return fmt.Errorf("failed to start browser: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := manager.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Error during browser shutdown", zap.Error(err))
		}
	}()

	page, err := manager.NewSession(ctx)
	if err != nil {
		return fmt.Errorf("failed to open browser tab: %w", err)
	}
	defer page.Close(context.Background())

	if store.Exists() {
		if err := restoreSession(ctx, page, store); err != nil {
			logger.Warn("Could not restore saved session, continuing without it", zap.Error(err))
		}
	} else {
		// Headful and no saved state: log in before the first attempt.
		if err := interactiveLogin(ctx, page, store, cfg, token, logger); err != nil {
			return err
		}
	}

	loop := buildLoop(page, manager, cfg, logger)

	st, runErr := loop.Run(ctx, token)

	// An expired session in a headful run gets one interactive retry, the
	// stale cookies replaced by a fresh login.
	if errors.Is(runErr, collector.ErrSessionExpired) && !cfg.Browser.Headless {
		logger.Info("Saved session is no longer valid, falling back to interactive login")
		if err := interactiveLogin(ctx, page, store, cfg, token, logger); err != nil {
			return err
		}
		st, runErr = loop.Run(ctx, token)
	}

	logger.Info("Collection finished",
		zap.Int("records", st.Len()),
		zap.Int("iterations", st.Iterations),
		zap.Bool("cancelled", st.Cancelled),
	)

	if st.Len() == 0 {
		logger.Warn("No bookmarks collected")
	} else {
		// Export runs even when the browser died mid-run; a partial harvest
		// beats an empty one.
		written, expErr := export.Write(st.Records, cfg.Export, logger)
		if expErr != nil {
			if runErr != nil {
				logger.Error("Export failed after a collection error", zap.Error(expErr))
				return runErr
			}
			return expErr
		}
		for _, path := range written {
			fmt.Printf("Saved %d bookmarks to %s\n", st.Len(), path)
		}
	}

	return runErr
}

// buildLoop wires the collection loop and its enrichment collaborators.
func buildLoop(page *browser.Session, manager *browser.Manager, cfg *config.Config, logger *zap.Logger) *collector.Loop {
	extractor := collector.NewExtractor(cfg.Collector, cfg.Resolver.ShortlinkHosts)
	links := resolver.New(cfg.Resolver, cfg.Browser.UserAgent, logger)

	var articles collector.ArticleFetcher
	if cfg.Articles.Enabled {
		openTab := func(ctx context.Context) (article.Tab, error) {
			return manager.NewSession(ctx)
		}
		articles = article.NewFetcher(openTab, cfg.Articles, cfg.Collector.Selectors.ArticleBody, logger)
	}

	return collector.NewLoop(page, extractor, links, articles, cfg.Articles.Concurrency, cfg.Collector, logger)
}

// restoreSession loads the saved cookies into the live browser tab.
func restoreSession(ctx context.Context, page *browser.Session, store *session.Store) error {
	state, err := store.Load()
	if err != nil {
		return err
	}
	return page.SetCookies(ctx, state.CookieParams())
}

// interactiveLogin drives the manual login flow and persists the resulting
// session state.
func interactiveLogin(ctx context.Context, page *browser.Session, store *session.Store, cfg *config.Config, token *collector.CancelToken, logger *zap.Logger) error {
	if err := page.Navigate(ctx, cfg.Session.LoginURL); err != nil {
		return fmt.Errorf("failed to open login page: %w", err)
	}
	if err := session.AwaitLogin(ctx, page, token.Requested, logger); err != nil {
		return err
	}
	cookies, err := page.Cookies(ctx)
	if err != nil {
		return fmt.Errorf("failed to read session cookies: %w", err)
	}
	if err := store.Save(session.FromCDP(cookies)); err != nil {
		return fmt.Errorf("failed to save session state: %w", err)
	}
	logger.Info("Session saved", zap.String("path", store.Path()))
	return nil
}
