// File: internal/browser/session.go
package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/magpie-cli/internal/config"
)

// Session manages a single, isolated browser tab. It implements the
// collector's Driver interface and the article fetcher's tab contract.
type Session struct {
	id     string
	cfg    *config.Config
	logger *zap.Logger

	allocatorCtx context.Context
	sessionCtx   context.Context
	sessionStop  context.CancelFunc

	wg       *sync.WaitGroup
	isClosed bool
	mu       sync.Mutex
}

func newSession(allocCtx context.Context, cfg *config.Config, logger *zap.Logger, wg *sync.WaitGroup) *Session {
	id := uuid.New().String()
	return &Session{
		id:           id,
		cfg:          cfg,
		logger:       logger.Named("session").With(zap.String("session_id", id[:8])),
		allocatorCtx: allocCtx,
		wg:           wg,
	}
}

// initialize creates the actual browser tab.
func (s *Session) initialize() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessionCtx != nil {
		return fmt.Errorf("session already initialized")
	}
	s.sessionCtx, s.sessionStop = chromedp.NewContext(s.allocatorCtx)
	return nil
}

// run executes chromedp actions against this tab with a bounded deadline.
// chromedp actions must run on the session's own context chain; the caller's
// context is honored as a pre-flight check.
func (s *Session) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	if s.isClosed {
		s.mu.Unlock()
		return fmt.Errorf("session is closed")
	}
	sessionCtx := s.sessionCtx
	s.mu.Unlock()

	runCtx, cancel := context.WithTimeout(sessionCtx, timeout)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

// ID returns the unique identifier of this tab.
func (s *Session) ID() string { return s.id }

// Navigate loads a URL, waits for the document body, and sits out the
// configured post-load settle time for client-side rendering.
func (s *Session) Navigate(ctx context.Context, url string) error {
	s.logger.Debug("Navigating", zap.String("url", url))
	return s.run(ctx, s.cfg.Network.NavigationTimeout,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(s.cfg.Network.PostLoadWait),
	)
}

// Location returns the page's real URL. The target is a single-page app, so
// only script evaluation sees client-side navigation.
func (s *Session) Location(ctx context.Context) (string, error) {
	var href string
	if err := s.run(ctx, 5*time.Second, chromedp.Evaluate("location.href", &href)); err != nil {
		return "", err
	}
	return href, nil
}

// WaitVisible blocks until the selector matches a visible node or the timeout
// elapses.
func (s *Session) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	return s.run(ctx, timeout, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

// ItemsHTML returns the outer HTML of every node matching the selector, in
// document order.
func (s *Session) ItemsHTML(ctx context.Context, selector string) ([]string, error) {
	expr := fmt.Sprintf(
		`Array.from(document.querySelectorAll(%q)).map((el) => el.outerHTML)`, selector)
	var items []string
	if err := s.run(ctx, 15*time.Second, chromedp.Evaluate(expr, &items)); err != nil {
		return nil, err
	}
	return items, nil
}

// HTML returns the outer HTML of the first node matching the selector, or an
// empty string when nothing matches.
func (s *Session) HTML(ctx context.Context, selector string) (string, error) {
	expr := fmt.Sprintf(
		`(() => { const el = document.querySelector(%q); return el ? el.outerHTML : ""; })()`, selector)
	var html string
	if err := s.run(ctx, 15*time.Second, chromedp.Evaluate(expr, &html)); err != nil {
		return "", err
	}
	return html, nil
}

// DocumentHTML returns the full document markup.
func (s *Session) DocumentHTML(ctx context.Context) (string, error) {
	var html string
	if err := s.run(ctx, 15*time.Second, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}

// ScrollBy scrolls the viewport down by the given multiple of its height.
func (s *Session) ScrollBy(ctx context.Context, viewports float64) error {
	expr := fmt.Sprintf("window.scrollBy(0, window.innerHeight * %g)", viewports)
	return s.run(ctx, 10*time.Second, chromedp.Evaluate(expr, nil))
}

// Cookies returns all cookies visible to the browser, including HttpOnly ones.
func (s *Session) Cookies(ctx context.Context) ([]*network.Cookie, error) {
	var cookies []*network.Cookie
	err := s.run(ctx, 10*time.Second, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = storage.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, err
	}
	return cookies, nil
}

// SetCookies installs cookies into the browser before navigation.
func (s *Session) SetCookies(ctx context.Context, params []*network.CookieParam) error {
	return s.run(ctx, 10*time.Second, chromedp.ActionFunc(func(ctx context.Context) error {
		return network.SetCookies(params).Do(ctx)
	}))
}

// Close terminates the tab and signals the manager.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.isClosed {
		s.mu.Unlock()
		return nil
	}
	s.isClosed = true
	stop := s.sessionStop
	sessionCtx := s.sessionCtx
	s.mu.Unlock()

	if stop != nil {
		stop()
	}
	if sessionCtx != nil {
		waitCtx, cancelWait := context.WithTimeout(ctx, 10*time.Second)
		defer cancelWait()
		select {
		case <-sessionCtx.Done():
			s.logger.Debug("Browser session closed gracefully.")
		case <-waitCtx.Done():
			s.logger.Warn("Deadline exceeded waiting for session to close.", zap.Error(waitCtx.Err()))
		}
	}
	s.wg.Done()
	return nil
}
