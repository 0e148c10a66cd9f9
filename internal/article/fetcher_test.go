// File: internal/article/fetcher_test.go
package article

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/magpie-cli/internal/config"
)

// fakeTab is a scripted browser tab.
type fakeTab struct {
	bySelector map[string]string
	document   string
	navErr     error
	closed     bool
}

func (f *fakeTab) Navigate(ctx context.Context, url string) error { return f.navErr }

func (f *fakeTab) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	if _, ok := f.bySelector[selector]; ok {
		return nil
	}
	return errors.New("selector never appeared")
}

func (f *fakeTab) HTML(ctx context.Context, selector string) (string, error) {
	return f.bySelector[selector], nil
}

func (f *fakeTab) DocumentHTML(ctx context.Context) (string, error) {
	return f.document, nil
}

func (f *fakeTab) Close(ctx context.Context) error {
	f.closed = true
	return nil
}

func newTestFetcher(tab *fakeTab, openErr error) *Fetcher {
	open := func(ctx context.Context) (Tab, error) {
		if openErr != nil {
			return nil, openErr
		}
		return tab, nil
	}
	return NewFetcher(open, config.ArticlesConfig{Timeout: 5 * time.Second}, "", zap.NewNop())
}

func TestFetch_BodySelector(t *testing.T) {
	tab := &fakeTab{bySelector: map[string]string{
		`[data-testid="articleBody"]`: `<div><p>First paragraph.</p><p>Second   paragraph.</p></div>`,
	}}
	f := newTestFetcher(tab, nil)

	text, err := f.Fetch(context.Background(), "https://x.com/i/articles/1")
	require.NoError(t, err)
	assert.Equal(t, "First paragraph.\n\nSecond paragraph.", text)
	assert.True(t, tab.closed, "the article tab must always be closed")
}

func TestFetch_FallsBackToArticleElement(t *testing.T) {
	tab := &fakeTab{bySelector: map[string]string{
		"article": `<article><h1>Title</h1><p>Body text.</p></article>`,
	}}
	f := newTestFetcher(tab, nil)

	text, err := f.Fetch(context.Background(), "https://x.com/i/articles/2")
	require.NoError(t, err)
	assert.Equal(t, "Title\n\nBody text.", text)
}

func TestFetch_ReadabilityFallback(t *testing.T) {
	tab := &fakeTab{document: `<!DOCTYPE html><html><head><title>Long read</title></head><body>
		<div id="content">
			<p>Readability has to find this paragraph, which is deliberately long
			enough to count as real article content rather than navigation chrome
			or boilerplate around the page body.</p>
			<p>A second paragraph keeps the extraction honest and gives the
			scoring heuristics something to hold on to.</p>
		</div>
	</body></html>`}
	f := newTestFetcher(tab, nil)

	text, err := f.Fetch(context.Background(), "https://x.com/i/articles/3")
	require.NoError(t, err)
	assert.Contains(t, text, "find this paragraph")
	assert.True(t, tab.closed)
}

func TestFetch_NavigateError(t *testing.T) {
	tab := &fakeTab{navErr: errors.New("net::ERR_ABORTED")}
	f := newTestFetcher(tab, nil)

	_, err := f.Fetch(context.Background(), "https://x.com/i/articles/4")
	require.Error(t, err)
	assert.True(t, tab.closed, "the tab is closed even when navigation fails")
}

func TestFetch_OpenTabError(t *testing.T) {
	f := newTestFetcher(nil, errors.New("browser is gone"))

	_, err := f.Fetch(context.Background(), "https://x.com/i/articles/5")
	assert.Error(t, err)
}

func TestExtractText(t *testing.T) {
	assert.Equal(t, "One\n\nTwo", extractText(`<p>One</p><script>ignored()</script><p>Two</p>`))
	assert.Equal(t, "plain text only", extractText(`<div>plain   text only</div>`),
		"fragments without block elements fall back to the flattened text")
	assert.Empty(t, extractText(""))
}
