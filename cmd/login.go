// -- cmd/login.go --
package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/magpie-cli/internal/browser"
	"github.com/xkilldash9x/magpie-cli/internal/collector"
	"github.com/xkilldash9x/magpie-cli/internal/config"
	"github.com/xkilldash9x/magpie-cli/internal/observability"
	"github.com/xkilldash9x/magpie-cli/internal/session"
)

// newLoginCmd creates the `login` command: log in interactively, save the
// session state, and exit without scraping anything.
func newLoginCmd() *cobra.Command {
	loginCmd := &cobra.Command{
		Use:   "login",
		Short: "Logs in interactively and saves the session for later headless runs",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return viper.BindPFlag("session.auth_file", cmd.Flags().Lookup("auth-file"))
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := observability.GetLogger()

			cfg, err := config.NewConfigFromViper(viper.GetViper())
			if err != nil {
				return err
			}
			// The login window must be visible regardless of configuration.
			cfg.Browser.Headless = false

			authPath, err := cfg.AuthFilePath()
			if err != nil {
				return err
			}
			store := session.NewStore(authPath, logger)

			ctx := cmd.Context()
			token := collector.NewCancelToken()
			stopSignals := watchSignals(token, logger)
			defer stopSignals()

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

			if err := interactiveLogin(ctx, page, store, cfg, token, logger); err != nil {
				return err
			}
			fmt.Printf("Session saved to %s\n", store.Path())
			return nil
		},
	}

	loginCmd.Flags().String("auth-file", "", "Path to the saved session state JSON.")
	return loginCmd
}
