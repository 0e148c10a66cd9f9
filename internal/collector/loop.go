// File: internal/collector/loop.go
package collector

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/magpie-cli/internal/config"
	"github.com/xkilldash9x/magpie-cli/internal/session"
)

// Driver is the page surface the collection loop depends on. The chromedp
// session in internal/browser implements it; tests supply fakes.
type Driver interface {
	// Navigate loads a URL and waits for the page to settle.
	Navigate(ctx context.Context, url string) error
	// Location returns the real current URL via script evaluation. The
	// target is a single-page app, so the navigation-level URL goes stale.
	Location(ctx context.Context) (string, error)
	// WaitVisible blocks until the selector matches a visible node.
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error
	// ItemsHTML returns the outer HTML of every node matching the selector.
	ItemsHTML(ctx context.Context, selector string) ([]string, error)
	// ScrollBy scrolls the viewport down by a multiple of its height.
	ScrollBy(ctx context.Context, viewports float64) error
}

// LinkResolver expands shortened URLs. The result always has the same length
// and order as the input.
type LinkResolver interface {
	ResolveAll(ctx context.Context, urls []string) []string
}

// ArticleFetcher retrieves the body text of a native article. A failed fetch
// returns an error; the loop treats it as "absent", never as fatal.
type ArticleFetcher interface {
	Fetch(ctx context.Context, articleURL string) (string, error)
}

// Loop drives the scroll/extract/dedup state machine and the subsequent
// enrichment pass.
type Loop struct {
	driver       Driver
	extractor    *Extractor
	resolver     LinkResolver
	articles     ArticleFetcher // nil skips article enrichment
	articleLimit int
	cfg          config.CollectorConfig
	logger       *zap.Logger
}

// NewLoop wires a collection loop. Passing a nil fetcher disables article
// enrichment entirely.
func NewLoop(
	driver Driver,
	extractor *Extractor,
	resolver LinkResolver,
	articles ArticleFetcher,
	articleLimit int,
	cfg config.CollectorConfig,
	logger *zap.Logger,
) *Loop {
	if articleLimit < 1 {
		articleLimit = 1
	}
	return &Loop{
		driver:       driver,
		extractor:    extractor,
		resolver:     resolver,
		articles:     articles,
		articleLimit: articleLimit,
		cfg:          cfg,
		logger:       logger.Named("collector"),
	}
}

// Run executes the full collection: navigation, the scroll phase, and the
// enrichment pass. The returned state is always usable, even when the error
// is non-nil, so the caller can export whatever was gathered.
//
// The token is observed once per scroll iteration, after the iteration's
// extraction has completed; a cancel request is treated exactly like "page
// exhausted" and never skips enrichment.
func (l *Loop) Run(ctx context.Context, token *CancelToken) (*State, error) {
	st := NewState()

	if err := l.openBookmarks(ctx); err != nil {
		return st, err
	}

	fault := l.scrollPhase(ctx, st, token)

	// Partial collection still gets fully enriched. Articles need a live
	// browser, so they are skipped after a driver fault; link resolution is
	// plain HTTP and always runs.
	l.enrich(ctx, st, fault == nil)

	return st, fault
}

// openBookmarks navigates to the bookmarks page and waits for the first items
// to render, distinguishing an expired session from a dead driver.
func (l *Loop) openBookmarks(ctx context.Context) error {
	l.logger.Info("Navigating to bookmarks", zap.String("url", l.cfg.BookmarksURL))
	if err := l.driver.Navigate(ctx, l.cfg.BookmarksURL); err != nil {
		return &DriverFault{Op: "navigate", Err: err}
	}

	if loc, err := l.driver.Location(ctx); err == nil && session.IsLoginPage(loc) {
		return ErrSessionExpired
	}

	if err := l.driver.WaitVisible(ctx, l.cfg.Selectors.Item, l.cfg.InitialWait); err != nil {
		// A timeout here usually means a silent redirect into the login flow.
		if loc, lerr := l.driver.Location(ctx); lerr == nil && session.IsLoginPage(loc) {
			return ErrSessionExpired
		}
		return &DriverFault{Op: "wait for items", Err: err}
	}
	return nil
}

// scrollPhase runs the scroll/extract/dedup iterations. It returns nil on a
// normal stop (exhaustion, max scrolls, cancellation) and a *DriverFault when
// the browser itself fails.
func (l *Loop) scrollPhase(ctx context.Context, st *State, token *CancelToken) error {
	l.logger.Info("Starting scroll collection", zap.Int("max_scrolls", l.cfg.MaxScrolls))

	for i := 1; i <= l.cfg.MaxScrolls; i++ {
		items, err := l.driver.ItemsHTML(ctx, l.cfg.Selectors.Item)
		if err != nil {
			return &DriverFault{Op: "query items", Err: err}
		}

		newThisRound := 0
		for _, html := range items {
			rec, err := l.extractor.Extract(html)
			if err != nil {
				// One malformed item never aborts the run.
				l.logger.Debug("Skipping unparseable item", zap.Error(err))
				continue
			}
			if st.Add(rec) {
				newThisRound++
			}
		}
		st.Iterations = i

		if newThisRound > 0 {
			st.EmptyScrolls = 0
			l.logger.Info("Scroll progress",
				zap.Int("scroll", i),
				zap.Int("max", l.cfg.MaxScrolls),
				zap.Int("new", newThisRound),
				zap.Int("total", st.Len()),
			)
		} else {
			st.EmptyScrolls++
		}

		// Terminal conditions, checked between iterations only so the
		// extraction above always completes.
		if token.Requested() {
			st.Cancelled = true
			l.logger.Info("Cancellation requested, stopping scroll",
				zap.Int("collected", st.Len()))
			return nil
		}
		if st.EmptyScrolls >= l.cfg.EmptyScrollThreshold {
			l.logger.Info("No new items, page exhausted",
				zap.Int("empty_scrolls", st.EmptyScrolls))
			return nil
		}
		if i == l.cfg.MaxScrolls {
			return nil
		}

		if err := l.driver.ScrollBy(ctx, 2); err != nil {
			return &DriverFault{Op: "scroll", Err: err}
		}
		// Mandatory pacing; scrolling full speed trips the host's abuse
		// detection.
		select {
		case <-time.After(l.cfg.ScrollDelay):
		case <-ctx.Done():
			return &DriverFault{Op: "scroll delay", Err: ctx.Err()}
		}
	}
	return nil
}

// enrich resolves shortened links and fetches native articles for the whole
// accumulator. It is not interruptible by the user's cancel token.
func (l *Loop) enrich(ctx context.Context, st *State, driverAlive bool) {
	l.resolveLinks(ctx, st)
	if driverAlive {
		l.fetchArticles(ctx, st)
	}
}

// resolveLinks flattens every record's raw links into one batch, resolves it,
// and writes results back by index so ordering is preserved no matter how the
// workers interleave.
func (l *Loop) resolveLinks(ctx context.Context, st *State) {
	total := 0
	for _, rec := range st.Records {
		total += len(rec.RawLinks)
	}
	batch := make([]string, 0, total)
	for _, rec := range st.Records {
		batch = append(batch, rec.RawLinks...)
	}

	l.logger.Info("Resolving links", zap.Int("count", total))
	resolved := l.resolver.ResolveAll(ctx, batch)

	off := 0
	for _, rec := range st.Records {
		n := len(rec.RawLinks)
		rec.ResolvedLinks = resolved[off : off+n : off+n]
		off += n
	}
}

// fetchArticles enriches records carrying an article reference, bounded by the
// configured concurrency. Each fetch writes one field of one record, so
// workers never contend.
func (l *Loop) fetchArticles(ctx context.Context, st *State) {
	if l.articles == nil {
		return
	}
	var withArticles []*BookmarkRecord
	for _, rec := range st.Records {
		if rec.ArticleRef != "" {
			withArticles = append(withArticles, rec)
		}
	}
	if len(withArticles) == 0 {
		return
	}

	l.logger.Info("Fetching native articles", zap.Int("count", len(withArticles)))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.articleLimit)
	for _, rec := range withArticles {
		g.Go(func() error {
			text, err := l.articles.Fetch(gctx, rec.ArticleRef)
			if err != nil {
				l.logger.Warn("Article fetch failed",
					zap.String("url", rec.ArticleRef), zap.Error(err))
				return nil
			}
			rec.ArticleText = text
			return nil
		})
	}
	// Workers swallow their own errors; Wait only orders completion.
	_ = g.Wait()
}
