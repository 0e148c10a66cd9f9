// File: internal/collector/extractor.go
package collector

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/xkilldash9x/magpie-cli/internal/config"
)

// reURL matches bare URLs inside rendered tweet text.
var reURL = regexp.MustCompile(`https?://[^\s"'<>\)]+`)

// reWhitespace collapses rendered line breaks for the single-line text field.
var reWhitespace = regexp.MustCompile(`\s+`)

// Extractor turns one bookmark item's outer HTML into a BookmarkRecord.
// All DOM queries come from the selector policy in the configuration; the
// extractor itself knows nothing about the host page beyond that policy.
type Extractor struct {
	cfg        config.CollectorConfig
	shortHosts map[string]struct{}
}

// NewExtractor builds an extractor for the given collector policy. The
// shortlink hosts are shared with the resolver so both layers agree on what
// counts as a redirect URL.
func NewExtractor(cfg config.CollectorConfig, shortlinkHosts []string) *Extractor {
	hosts := make(map[string]struct{}, len(shortlinkHosts))
	for _, h := range shortlinkHosts {
		hosts[strings.ToLower(h)] = struct{}{}
	}
	return &Extractor{cfg: cfg, shortHosts: hosts}
}

// Extract parses a single item. It fails only when the permalink, the one
// mandatory field, is missing; everything else degrades to empty values.
func (e *Extractor) Extract(itemHTML string) (*BookmarkRecord, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(itemHTML))
	if err != nil {
		return nil, fmt.Errorf("parse item markup: %w", err)
	}

	sel := e.cfg.Selectors

	// Permalink first: the timestamp element sits inside the status anchor.
	timeEl := doc.Find(sel.Timestamp).First()
	permalink := e.absolutize(timeEl.Closest("a").AttrOr("href", ""))
	if permalink == "" {
		return nil, ErrNoPermalink
	}

	rec := &BookmarkRecord{
		ID:        idFromPermalink(permalink),
		Permalink: permalink,
	}

	if dt, ok := timeEl.Attr("datetime"); ok {
		if ts, err := time.Parse(time.RFC3339, dt); err == nil {
			rec.Timestamp = &ts
		}
	}

	rec.AuthorName = strings.TrimSpace(doc.Find(sel.AuthorName).First().Text())
	rec.AuthorHandle = e.authorHandle(doc)

	text := doc.Find(sel.Text).First().Text()
	rec.Text = strings.TrimSpace(reWhitespace.ReplaceAllString(text, " "))

	rec.ImageRefs = e.imageRefs(doc)
	rec.RawLinks, rec.ArticleRef = e.outboundLinks(doc, text)

	return rec, nil
}

// authorHandle reads the first profile anchor and formats its path segment.
func (e *Extractor) authorHandle(doc *goquery.Document) string {
	href := ""
	doc.Find(e.cfg.Selectors.AuthorLink).EachWithBreak(func(_ int, a *goquery.Selection) bool {
		h, ok := a.Attr("href")
		if !ok || !strings.HasPrefix(h, "/") {
			return true
		}
		href = h
		return false
	})
	handle := strings.Trim(href, "/")
	if i := strings.IndexByte(handle, '/'); i >= 0 {
		handle = handle[:i]
	}
	if handle == "" {
		return ""
	}
	return "@" + handle
}

// imageRefs collects photo sources and rewrites each to the original-quality
// variant, suppressing duplicates within the item.
func (e *Extractor) imageRefs(doc *goquery.Document) []string {
	var refs []string
	seen := make(map[string]struct{})
	doc.Find(e.cfg.Selectors.PhotoImage).Each(func(_ int, img *goquery.Selection) {
		src, ok := img.Attr("src")
		if !ok || !strings.Contains(src, e.cfg.ImageHostFragment) {
			return
		}
		ref := e.normalizeImageURL(src)
		if _, dup := seen[ref]; dup {
			return
		}
		seen[ref] = struct{}{}
		refs = append(refs, ref)
	})
	return refs
}

// normalizeImageURL replaces the size-variant query parameter with the
// configured one, preserving the rest of the query string.
func (e *Extractor) normalizeImageURL(src string) string {
	u, err := url.Parse(src)
	if err != nil {
		return src
	}
	q := u.Query()
	q.Set("name", e.cfg.ImageVariant)
	u.RawQuery = q.Encode()
	return u.String()
}

// outboundLinks walks the three link zones in encounter order, returning the
// raw outbound links (exact duplicates suppressed) and the native article
// reference, if one was found. The article link never appears in the raw set.
func (e *Extractor) outboundLinks(doc *goquery.Document, text string) ([]string, string) {
	rawLinks := make([]string, 0, 4)
	articleRef := ""
	seen := make(map[string]struct{})

	consider := func(href string) {
		if !strings.HasPrefix(href, "http://") && !strings.HasPrefix(href, "https://") {
			return
		}
		if e.isArticleURL(href) {
			if articleRef == "" {
				articleRef = href
			}
			return
		}
		host := hostOf(href)
		_, short := e.shortHosts[host]
		if !short && e.isPlatformHost(host) {
			return
		}
		if _, dup := seen[href]; dup {
			return
		}
		seen[href] = struct{}{}
		rawLinks = append(rawLinks, href)
	}

	// The inline text zone covers both bare URLs in the rendered text and the
	// anchors the page wraps them in.
	for _, m := range reURL.FindAllString(text, -1) {
		consider(m)
	}
	for _, zone := range e.cfg.Selectors.LinkZones {
		doc.Find(zone).Find("a[href]").Each(func(_ int, a *goquery.Selection) {
			consider(a.AttrOr("href", ""))
		})
	}

	return rawLinks, articleRef
}

// isArticleURL reports whether a link targets a native platform article.
func (e *Extractor) isArticleURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return strings.Contains(u.Path, "/articles/") && e.isPlatformHost(strings.ToLower(u.Hostname()))
}

func (e *Extractor) isPlatformHost(host string) bool {
	for _, p := range e.cfg.PlatformHosts {
		if host == p || strings.HasSuffix(host, "."+p) {
			return true
		}
	}
	return false
}

// absolutize resolves page-relative permalinks against the primary platform host.
func (e *Extractor) absolutize(href string) string {
	if href == "" || !strings.HasPrefix(href, "/") {
		return href
	}
	host := "x.com"
	if len(e.cfg.PlatformHosts) > 0 {
		host = e.cfg.PlatformHosts[0]
	}
	return "https://" + host + href
}

// idFromPermalink derives the dedup key: the last path segment of the
// permalink, which is the status id for the current URL conventions.
func idFromPermalink(permalink string) string {
	u, err := url.Parse(permalink)
	if err != nil {
		return permalink
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	if last := segments[len(segments)-1]; last != "" {
		return last
	}
	return permalink
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
