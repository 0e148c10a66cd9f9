// Package article pulls the text body of platform-native articles
// referenced by bookmarked posts. Fetches are best effort: a failed or
// empty fetch never aborts a harvest.
package article

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"go.uber.org/zap"

	"github.com/xkilldash9x/magpie-cli/internal/config"
)

// Tab is the slice of a browser session the fetcher needs. A fresh tab
// is opened per article so navigation never disturbs the bookmarks page.
type Tab interface {
	Navigate(ctx context.Context, url string) error
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error
	HTML(ctx context.Context, selector string) (string, error)
	DocumentHTML(ctx context.Context) (string, error)
	Close(ctx context.Context) error
}

// OpenTabFunc opens a new browser tab. Wired to browser.Manager.NewSession.
type OpenTabFunc func(ctx context.Context) (Tab, error)

// Fetcher renders an article URL in its own tab and extracts readable text.
type Fetcher struct {
	openTab      OpenTabFunc
	bodySelector string
	timeout      time.Duration
	logger       *zap.Logger
}

func NewFetcher(openTab OpenTabFunc, cfg config.ArticlesConfig, bodySelector string, logger *zap.Logger) *Fetcher {
	if bodySelector == "" {
		bodySelector = `[data-testid="articleBody"]`
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Fetcher{
		openTab:      openTab,
		bodySelector: bodySelector,
		timeout:      cfg.Timeout,
		logger:       logger.Named("article"),
	}
}

// Fetch loads the article at rawURL and returns its plain text body.
// An empty string with a nil error means the page rendered but no
// article content could be located.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	fctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	tab, err := f.openTab(fctx)
	if err != nil {
		return "", fmt.Errorf("opening article tab: %w", err)
	}
	defer func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer closeCancel()
		if cerr := tab.Close(closeCtx); cerr != nil {
			f.logger.Debug("article tab close failed", zap.Error(cerr))
		}
	}()

	if err := tab.Navigate(fctx, rawURL); err != nil {
		return "", fmt.Errorf("navigating to article: %w", err)
	}

	// The body container renders after the shell; give it a short grace
	// period but fall through to the generic selectors if it never shows.
	if err := tab.WaitVisible(fctx, f.bodySelector, 10*time.Second); err != nil {
		f.logger.Debug("article body selector not visible", zap.String("url", rawURL), zap.Error(err))
	}

	if html, err := tab.HTML(fctx, f.bodySelector); err == nil && html != "" {
		if text := extractText(html); text != "" {
			return text, nil
		}
	}
	if html, err := tab.HTML(fctx, "article"); err == nil && html != "" {
		if text := extractText(html); text != "" {
			return text, nil
		}
	}

	docHTML, err := tab.DocumentHTML(fctx)
	if err != nil {
		return "", fmt.Errorf("reading article document: %w", err)
	}
	return readableText(docHTML, rawURL)
}

var reWhitespace = regexp.MustCompile(`[ \t]+`)

// extractText flattens an HTML fragment to paragraph-joined plain text.
func extractText(fragment string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return ""
	}
	doc.Find("script, style, figure, aside").Remove()

	var parts []string
	doc.Find("p, h1, h2, h3, li, blockquote").Each(func(_ int, sel *goquery.Selection) {
		if t := cleanLine(sel.Text()); t != "" {
			parts = append(parts, t)
		}
	})
	if len(parts) == 0 {
		if t := cleanLine(doc.Text()); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n\n")
}

// readableText is the last-resort path: run readability over the whole
// rendered document and flatten whatever it considers the main content.
func readableText(docHTML, pageURL string) (string, error) {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("parsing article url: %w", err)
	}
	art, err := readability.FromReader(strings.NewReader(docHTML), parsed)
	if err != nil {
		return "", fmt.Errorf("extracting article content: %w", err)
	}
	if text := extractText(art.Content); text != "" {
		return text, nil
	}
	return cleanLine(art.TextContent), nil
}

func cleanLine(s string) string {
	s = reWhitespace.ReplaceAllString(s, " ")
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, " ")
}
