// File: internal/session/login.go
package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
)

// loginSlugs identify URLs inside the platform's login/verification flow.
var loginSlugs = []string{"x.com/login", "x.com/i/flow", "x.com/account/"}

// ErrLoginCancelled is returned when the user interrupts the login wait.
var ErrLoginCancelled = errors.New("login cancelled before completion")

// IsLoginPage reports whether a URL belongs to the login flow.
func IsLoginPage(url string) bool {
	for _, slug := range loginSlugs {
		if strings.Contains(url, slug) {
			return true
		}
	}
	return false
}

// PageLocator exposes the one driver capability the login watcher needs.
type PageLocator interface {
	Location(ctx context.Context) (string, error)
}

// AwaitLogin polls the page URL until it leaves the login flow, meaning the
// user finished signing in. It returns ErrLoginCancelled when cancelled()
// flips first. URL polling goes through script evaluation because the flow is
// a single-page app and the navigation-level URL does not update.
func AwaitLogin(ctx context.Context, page PageLocator, cancelled func() bool, logger *zap.Logger) error {
	log := logger.Named("login")
	log.Info("Waiting for you to log in in the browser window; login is detected automatically.")

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	lastNotice := time.Now()

	for {
		if cancelled() {
			return ErrLoginCancelled
		}

		loc, err := page.Location(ctx)
		if err == nil {
			if !IsLoginPage(loc) {
				log.Info("Login detected", zap.String("url", loc))
				return nil
			}
			if time.Since(lastNotice) >= 5*time.Second {
				log.Info("Still waiting for login", zap.String("current", loc))
				lastNotice = time.Now()
			}
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
