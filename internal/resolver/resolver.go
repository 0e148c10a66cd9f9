// File: internal/resolver/resolver.go
package resolver

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/magpie-cli/internal/config"
)

// Resolver expands shortened redirect URLs to their final destinations.
//
// Each URL is probed independently with a HEAD request that never reads a
// body. Probes run with bounded concurrency plus a rate limiter: unbounded
// fan-out trips the redirect service's rate limiting, fully sequential makes
// total latency linear in bookmark count.
type Resolver struct {
	cfg        config.ResolverConfig
	client     *http.Client
	limiter    *rate.Limiter
	shortHosts map[string]struct{}
	userAgent  string
	logger     *zap.Logger
}

// New builds a resolver from configuration. The user agent matters: the
// shortener answers differently to obvious bots.
func New(cfg config.ResolverConfig, userAgent string, logger *zap.Logger) *Resolver {
	l := logger.Named("resolver")
	hosts := make(map[string]struct{}, len(cfg.ShortlinkHosts))
	for _, h := range cfg.ShortlinkHosts {
		hosts[strings.ToLower(h)] = struct{}{}
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1)
	}
	return &Resolver{
		cfg:        cfg,
		client:     newProbeClient(cfg.Timeout, cfg.MaxRedirects, l),
		limiter:    limiter,
		shortHosts: hosts,
		userAgent:  userAgent,
		logger:     l,
	}
}

// ResolveAll resolves a batch of URLs. The result has the same length and
// order as the input, always: a URL that is not a shortlink passes through
// untouched, and a failed resolution keeps the raw URL in its slot.
func (r *Resolver) ResolveAll(ctx context.Context, urls []string) []string {
	out := make([]string, len(urls))
	copy(out, urls)

	// Each unique shortlink is probed exactly once even when several records
	// carry it.
	unique := make(map[string]struct{})
	for _, u := range urls {
		if r.isShortlink(u) {
			unique[u] = struct{}{}
		}
	}
	if len(unique) == 0 {
		return out
	}
	r.logger.Info("Expanding shortened links",
		zap.Int("unique", len(unique)), zap.Int("total", len(urls)))

	resolved := make(map[string]string, len(unique))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)
	for u := range unique {
		g.Go(func() error {
			final, err := r.resolveOne(gctx, u)
			if err != nil {
				// One dead link never fails the batch.
				r.logger.Debug("Link resolution failed, keeping original",
					zap.String("url", u), zap.Error(err))
				return nil
			}
			mu.Lock()
			resolved[u] = final
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	for i, u := range urls {
		if final, ok := resolved[u]; ok {
			out[i] = final
		}
	}
	return out
}

// resolveOne follows the redirect chain for one URL via HEAD and returns the
// final destination.
func (r *Resolver) resolveOne(ctx context.Context, shortURL string) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", err
	}

	probeCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodHead, shortURL, nil)
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("probe: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return "", fmt.Errorf("probe: status %d", resp.StatusCode)
	}
	// The client followed the chain; the last request holds the destination.
	return resp.Request.URL.String(), nil
}

func (r *Resolver) isShortlink(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	_, ok := r.shortHosts[strings.ToLower(u.Hostname())]
	return ok
}
