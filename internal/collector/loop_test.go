// File: internal/collector/loop_test.go
package collector_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/magpie-cli/internal/collector"
	"github.com/xkilldash9x/magpie-cli/internal/config"
)

// fakeDriver replays a fixed sequence of page states, one per ItemsHTML call.
// The last state repeats once the sequence is exhausted, mimicking a timeline
// that stops growing.
type fakeDriver struct {
	pages      [][]string
	call       int
	scrolls    int
	location   string
	itemsErrAt int // 1-based call number that fails, 0 for never
}

func (d *fakeDriver) Navigate(ctx context.Context, url string) error { return nil }

func (d *fakeDriver) Location(ctx context.Context) (string, error) {
	if d.location == "" {
		return "https://x.com/i/bookmarks", nil
	}
	return d.location, nil
}

func (d *fakeDriver) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	return nil
}

func (d *fakeDriver) ItemsHTML(ctx context.Context, selector string) ([]string, error) {
	d.call++
	if d.itemsErrAt != 0 && d.call == d.itemsErrAt {
		return nil, errors.New("tab crashed")
	}
	idx := d.call - 1
	if idx >= len(d.pages) {
		idx = len(d.pages) - 1
	}
	return d.pages[idx], nil
}

func (d *fakeDriver) ScrollBy(ctx context.Context, viewports float64) error {
	d.scrolls++
	return nil
}

// fakeLinkResolver maps inputs through a fixed table, leaving unknown URLs
// untouched, and records every batch it receives.
type fakeLinkResolver struct {
	mapping map[string]string
	batches [][]string
}

func (r *fakeLinkResolver) ResolveAll(ctx context.Context, urls []string) []string {
	r.batches = append(r.batches, append([]string(nil), urls...))
	out := make([]string, len(urls))
	for i, u := range urls {
		if final, ok := r.mapping[u]; ok {
			out[i] = final
		} else {
			out[i] = u
		}
	}
	return out
}

// fakeArticleFetcher serves canned article text. Safe for concurrent use.
type fakeArticleFetcher struct {
	mu    sync.Mutex
	texts map[string]string
	errs  map[string]error
	calls []string
}

func (f *fakeArticleFetcher) Fetch(ctx context.Context, articleURL string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, articleURL)
	if err, ok := f.errs[articleURL]; ok {
		return "", err
	}
	return f.texts[articleURL], nil
}

func testLoopConfig(t *testing.T) config.CollectorConfig {
	t.Helper()
	cfg := config.NewDefaultConfig()
	c := cfg.Collector
	c.EmptyScrollThreshold = 2
	c.ScrollDelay = time.Millisecond
	c.InitialWait = time.Second
	return c
}

// statusItem renders a minimal bookmark item whose permalink ends in id.
func statusItem(id string, links ...string) string {
	return renderItem(itemOpts{
		statusPath: "/u/status/" + id,
		datetime:   "2026-01-02T15:04:05Z",
		author:     "U",
		handle:     "u",
		text:       "item " + id,
		cardLinks:  links,
	})
}

func recordIDs(st *collector.State) []string {
	ids := make([]string, 0, st.Len())
	for _, rec := range st.Records {
		ids = append(ids, rec.ID)
	}
	return ids
}

func TestLoop_ScrollsUntilExhausted(t *testing.T) {
	grown := []string{statusItem("A"), statusItem("B"), statusItem("C"), statusItem("D")}
	driver := &fakeDriver{pages: [][]string{
		{statusItem("A"), statusItem("B"), statusItem("C")},
		grown,
		grown,
		grown,
	}}
	cfg := testLoopConfig(t)
	loop := collector.NewLoop(driver,
		collector.NewExtractor(config.NewDefaultConfig().Collector, []string{"t.co"}),
		&fakeLinkResolver{}, nil, 1, cfg, zap.NewNop())

	token := collector.NewCancelToken()
	st, err := loop.Run(context.Background(), token)
	require.NoError(t, err)

	// Iteration 1 finds three items, iteration 2 one more, then two empty
	// scrolls in a row end the run.
	assert.Equal(t, []string{"A", "B", "C", "D"}, recordIDs(st))
	assert.Equal(t, 4, st.Iterations)
	assert.Equal(t, 3, driver.scrolls, "no scroll after the terminal iteration")
	assert.False(t, st.Cancelled)
}

func TestLoop_DedupAcrossIterations(t *testing.T) {
	// The same items re-render on every pass; duplicates never re-enter the
	// accumulator however often they appear.
	page := []string{statusItem("A"), statusItem("B")}
	driver := &fakeDriver{pages: [][]string{page, page, page}}
	cfg := testLoopConfig(t)
	loop := collector.NewLoop(driver,
		collector.NewExtractor(config.NewDefaultConfig().Collector, []string{"t.co"}),
		&fakeLinkResolver{}, nil, 1, cfg, zap.NewNop())

	st, err := loop.Run(context.Background(), collector.NewCancelToken())
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, recordIDs(st))
}

func TestLoop_CancelBeforeFirstScroll(t *testing.T) {
	articleURL := "https://x.com/i/articles/555"
	driver := &fakeDriver{pages: [][]string{
		{statusItem("A", "https://t.co/one", articleURL), statusItem("B")},
	}}
	resolver := &fakeLinkResolver{mapping: map[string]string{
		"https://t.co/one": "https://example.org/long",
	}}
	fetcher := &fakeArticleFetcher{texts: map[string]string{articleURL: "article body"}}

	cfg := testLoopConfig(t)
	loop := collector.NewLoop(driver,
		collector.NewExtractor(config.NewDefaultConfig().Collector, []string{"t.co"}),
		resolver, fetcher, 2, cfg, zap.NewNop())

	// Cancellation arrives before the loop even starts: the already visible
	// items are still collected and fully enriched.
	token := collector.NewCancelToken()
	token.Request()

	st, err := loop.Run(context.Background(), token)
	require.NoError(t, err)

	assert.True(t, st.Cancelled)
	assert.Equal(t, 1, st.Iterations)
	assert.Equal(t, 0, driver.scrolls)
	assert.Equal(t, []string{"A", "B"}, recordIDs(st))

	require.Len(t, resolver.batches, 1, "link resolution still runs after cancellation")
	assert.Equal(t, []string{"https://example.org/long"}, st.Records[0].ResolvedLinks)
	assert.Equal(t, "article body", st.Records[0].ArticleText,
		"article enrichment still runs after cancellation")
}

func TestLoop_SessionExpired(t *testing.T) {
	driver := &fakeDriver{
		pages:    [][]string{{}},
		location: "https://x.com/login",
	}
	cfg := testLoopConfig(t)
	loop := collector.NewLoop(driver,
		collector.NewExtractor(config.NewDefaultConfig().Collector, []string{"t.co"}),
		&fakeLinkResolver{}, nil, 1, cfg, zap.NewNop())

	st, err := loop.Run(context.Background(), collector.NewCancelToken())
	require.ErrorIs(t, err, collector.ErrSessionExpired)
	assert.Zero(t, st.Len())
}

func TestLoop_DriverFaultKeepsPartialState(t *testing.T) {
	articleURL := "https://x.com/i/articles/777"
	driver := &fakeDriver{
		pages: [][]string{
			{statusItem("A", "https://t.co/one", articleURL)},
		},
		itemsErrAt: 2,
	}
	resolver := &fakeLinkResolver{mapping: map[string]string{
		"https://t.co/one": "https://example.org/long",
	}}
	fetcher := &fakeArticleFetcher{texts: map[string]string{articleURL: "never fetched"}}

	cfg := testLoopConfig(t)
	loop := collector.NewLoop(driver,
		collector.NewExtractor(config.NewDefaultConfig().Collector, []string{"t.co"}),
		resolver, fetcher, 1, cfg, zap.NewNop())

	st, err := loop.Run(context.Background(), collector.NewCancelToken())

	var fault *collector.DriverFault
	require.ErrorAs(t, err, &fault)
	assert.Equal(t, "query items", fault.Op)

	// The partial harvest survives the fault, links are still resolved over
	// plain HTTP, but article fetching needs the dead browser and is skipped.
	assert.Equal(t, []string{"A"}, recordIDs(st))
	assert.Equal(t, []string{"https://example.org/long"}, st.Records[0].ResolvedLinks)
	assert.Empty(t, fetcher.calls)
	assert.Empty(t, st.Records[0].ArticleText)
}

func TestLoop_ResolvedLinksKeepOrderAndLength(t *testing.T) {
	driver := &fakeDriver{pages: [][]string{
		{
			statusItem("A", "https://t.co/a1", "https://t.co/a2"),
			statusItem("B", "https://t.co/b1"),
			statusItem("C"),
		},
	}}
	// The second link stays unresolved; its slot keeps the raw URL.
	resolver := &fakeLinkResolver{mapping: map[string]string{
		"https://t.co/a1": "https://example.org/first",
		"https://t.co/b1": "https://example.org/third",
	}}

	cfg := testLoopConfig(t)
	cfg.EmptyScrollThreshold = 1
	loop := collector.NewLoop(driver,
		collector.NewExtractor(config.NewDefaultConfig().Collector, []string{"t.co"}),
		resolver, nil, 1, cfg, zap.NewNop())

	st, err := loop.Run(context.Background(), collector.NewCancelToken())
	require.NoError(t, err)
	require.Len(t, st.Records, 3)

	// All records' links travel as one flat batch.
	require.Len(t, resolver.batches, 1)
	assert.Equal(t, []string{"https://t.co/a1", "https://t.co/a2", "https://t.co/b1"},
		resolver.batches[0])

	want := [][]string{
		{"https://example.org/first", "https://t.co/a2"},
		{"https://example.org/third"},
		{},
	}
	got := [][]string{
		st.Records[0].ResolvedLinks,
		st.Records[1].ResolvedLinks,
		st.Records[2].ResolvedLinks,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("resolved links mismatch (-want +got):\n%s", diff)
	}
	for _, rec := range st.Records {
		assert.Len(t, rec.ResolvedLinks, len(rec.RawLinks))
	}
}

func TestLoop_ArticleFetchFailureIsContained(t *testing.T) {
	articleURL := "https://x.com/i/articles/999"
	driver := &fakeDriver{pages: [][]string{
		{statusItem("A", articleURL)},
	}}
	fetcher := &fakeArticleFetcher{errs: map[string]error{
		articleURL: errors.New("render timeout"),
	}}

	cfg := testLoopConfig(t)
	cfg.EmptyScrollThreshold = 1
	loop := collector.NewLoop(driver,
		collector.NewExtractor(config.NewDefaultConfig().Collector, []string{"t.co"}),
		&fakeLinkResolver{}, fetcher, 1, cfg, zap.NewNop())

	st, err := loop.Run(context.Background(), collector.NewCancelToken())
	require.NoError(t, err, "a failed article fetch never fails the run")
	require.Len(t, st.Records, 1)
	assert.Equal(t, []string{articleURL}, fetcher.calls)
	assert.Empty(t, st.Records[0].ArticleText)
}

func TestLoop_MalformedItemsAreSkipped(t *testing.T) {
	driver := &fakeDriver{pages: [][]string{
		{
			statusItem("A"),
			`<article data-testid="tweet"><div>skeleton placeholder</div></article>`,
			statusItem("B"),
		},
	}}
	cfg := testLoopConfig(t)
	cfg.EmptyScrollThreshold = 1
	loop := collector.NewLoop(driver,
		collector.NewExtractor(config.NewDefaultConfig().Collector, []string{"t.co"}),
		&fakeLinkResolver{}, nil, 1, cfg, zap.NewNop())

	st, err := loop.Run(context.Background(), collector.NewCancelToken())
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, recordIDs(st))
}

func TestCancelToken(t *testing.T) {
	token := collector.NewCancelToken()
	assert.False(t, token.Requested())
	token.Request()
	assert.True(t, token.Requested())
	token.Request() // idempotent
	assert.True(t, token.Requested())
}
