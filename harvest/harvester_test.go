package harvest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pevans/newsreel/fetch"
	"github.com/pevans/newsreel/scrape"
)

// fakeFetcher serves canned pages keyed by URL and records requests.
type fakeFetcher struct {
	mu    sync.Mutex
	pages map[string]string
	errs  map[string]error
	calls []string
}

func (f *fakeFetcher) Fetch(_ context.Context, pageURL string, _ fetch.Options) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, pageURL)
	f.mu.Unlock()

	if err, ok := f.errs[pageURL]; ok {
		return "", err
	}
	page, ok := f.pages[pageURL]
	if !ok {
		return "", fmt.Errorf("%w: 404 Not Found", fetch.ErrBadStatus)
	}
	return page, nil
}

func (f *fakeFetcher) called(pageURL string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for _, c := range f.calls {
		if c == pageURL {
			n++
		}
	}
	return n
}

// fakeFeed returns canned feed entries.
type fakeFeed struct {
	entries []Entry
	err     error
}

func (f *fakeFeed) List(context.Context, string) ([]Entry, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.entries, nil
}

const listingURL = "https://example.com/news"

func listingConfig() *scrape.ScrapeConfig {
	return &scrape.ScrapeConfig{
		Name: "example",
		URL:  listingURL,
		Mode: scrape.ModeDirect,
		Fields: scrape.Fields{
			Container: scrape.SelectorSpec{Selectors: []string{"article.story"}},
			Title:     scrape.SelectorSpec{Selectors: []string{".headline"}, MinLength: 10, Required: true},
			Link:      scrape.SelectorSpec{Selectors: []string{"a"}, Required: true},
			Summary:   scrape.SelectorSpec{Selectors: []string{".dek"}},
			Image:     scrape.SelectorSpec{Selectors: []string{"img"}},
			Date:      scrape.SelectorSpec{Selectors: []string{"time"}},
		},
	}
}

func newTestHarvester(direct fetch.Fetcher) *Harvester {
	return &Harvester{
		Direct:        direct,
		MinContentLen: 40,
		MaxContentLen: 2000,
	}
}

// story builds one listing container.
func story(headline, href, dek string) string {
	return `<article class="story">
		<h2 class="headline">` + headline + `</h2>
		<a href="` + href + `">Read more</a>
		<p class="dek">` + dek + `</p>
	</article>`
}

func listingPage(stories ...string) string {
	return `<!DOCTYPE html><html><body><main>` + strings.Join(stories, "\n") + `</main></body></html>`
}

const quantumDek = "Researchers demonstrated a logical qubit that survives longer than any of its physical parts, a first for the field."

// TestHarvest_ShortTitlesDropped verifies titles below the configured
// minimum sink their candidates
func TestHarvest_ShortTitlesDropped(t *testing.T) {
	direct := &fakeFetcher{pages: map[string]string{
		listingURL: listingPage(
			`<article class="story">
				<h2 class="headline">Quantum Error Correction Reaches New Milestone</h2>
				<a href="/stories/quantum">Read more</a>
				<p class="dek">`+quantumDek+`</p>
				<img src="/img/quantum.jpg">
				<time datetime="2026-08-20T10:00:00Z">Aug 20</time>
			</article>`,
			story("News", "/stories/short-one", "Short title, long enough summary text for the validator to accept."),
			story("Brief", "/stories/short-two", "Another short title with an otherwise acceptable summary body."),
		),
	}}

	articles, herrs := newTestHarvester(direct).Harvest(context.Background(), listingConfig(), 10)

	require.Empty(t, herrs)
	require.Len(t, articles, 1, "only the long-titled story should survive")

	art := articles[0]
	assert.Equal(t, "example", art.Source)
	assert.Equal(t, "https://example.com/stories/quantum", art.URL)
	assert.Equal(t, "Quantum Error Correction Reaches New Milestone", art.Title)
	assert.Equal(t, quantumDek, art.Summary)
	assert.Equal(t, quantumDek, art.Content, "content seeds from the summary")
	assert.Equal(t, "https://example.com/img/quantum.jpg", art.Image)
	assert.Equal(t, "2026-08-20T10:00:00Z", art.Published)
	assert.False(t, art.HarvestedAt.IsZero())
}

// TestHarvest_DedupWithinSource verifies no two articles share a URL
func TestHarvest_DedupWithinSource(t *testing.T) {
	direct := &fakeFetcher{pages: map[string]string{
		listingURL: listingPage(
			story("First angle on the merger", "/stories/merger", "The merger story as the front page presents it, summarized at length."),
			story("Second angle on the merger", "/stories/merger", "The very same link offered again further down the listing page."),
			story("Unrelated second story here", "/stories/other", "A different article entirely, with its own link and its own summary."),
		),
	}}

	articles, herrs := newTestHarvester(direct).Harvest(context.Background(), listingConfig(), 10)

	require.Empty(t, herrs)
	require.Len(t, articles, 2)

	seen := make(map[string]bool)
	for _, art := range articles {
		assert.False(t, seen[art.URL], "duplicate URL %s emitted", art.URL)
		seen[art.URL] = true
	}
	assert.Equal(t, "First angle on the merger", articles[0].Title, "first occurrence wins")
}

// TestHarvest_PerSourceLimit verifies harvesting stops at the limit in
// document order
func TestHarvest_PerSourceLimit(t *testing.T) {
	direct := &fakeFetcher{pages: map[string]string{
		listingURL: listingPage(
			story("Story number one headline", "/stories/1", "Summary text for the first story, easily past the minimum length."),
			story("Story number two headline", "/stories/2", "Summary text for the second story, easily past the minimum length."),
			story("Story number three headline", "/stories/3", "Summary text for the third story, easily past the minimum length."),
			story("Story number four headline", "/stories/4", "Summary text for the fourth story, easily past the minimum length."),
		),
	}}

	articles, herrs := newTestHarvester(direct).Harvest(context.Background(), listingConfig(), 2)

	require.Empty(t, herrs)
	require.Len(t, articles, 2)
	assert.Equal(t, "https://example.com/stories/1", articles[0].URL)
	assert.Equal(t, "https://example.com/stories/2", articles[1].URL)
}

// TestHarvest_ListingFetchFailure verifies a dead listing yields zero
// articles and one error
func TestHarvest_ListingFetchFailure(t *testing.T) {
	direct := &fakeFetcher{errs: map[string]error{
		listingURL: errors.New("connection refused"),
	}}

	articles, herrs := newTestHarvester(direct).Harvest(context.Background(), listingConfig(), 10)

	assert.Empty(t, articles)
	require.Len(t, herrs, 1)
	assert.Equal(t, "example", herrs[0].Source)
	assert.Empty(t, herrs[0].URL, "listing failures are not tied to one article")
	assert.Contains(t, herrs[0].Err.Error(), "connection refused")
}

// TestHarvest_BadLinksSkipped verifies unusable links drop their
// candidates silently
func TestHarvest_BadLinksSkipped(t *testing.T) {
	direct := &fakeFetcher{pages: map[string]string{
		listingURL: listingPage(
			story("Candidate with a mail link", "mailto:tips@example.com", "This candidate's only link is a mail address, which no reader can visit."),
			`<article class="story"><h2 class="headline">Candidate without any link</h2><p class="dek">No anchor at all inside this container, so there is nothing to emit.</p></article>`,
			story("Candidate with a good link", "/stories/good", "A perfectly ordinary story with a resolvable link and enough summary."),
		),
	}}

	articles, herrs := newTestHarvester(direct).Harvest(context.Background(), listingConfig(), 10)

	require.Empty(t, herrs, "bad links are skips, not errors")
	require.Len(t, articles, 1)
	assert.Equal(t, "https://example.com/stories/good", articles[0].URL)
}

// TestHarvest_DataURIImageAbsent verifies inline data images are
// treated as no image
func TestHarvest_DataURIImageAbsent(t *testing.T) {
	direct := &fakeFetcher{pages: map[string]string{
		listingURL: listingPage(
			`<article class="story">
				<h2 class="headline">Story with an inline placeholder image</h2>
				<a href="/stories/inline">Read more</a>
				<p class="dek">The image here is a base64 placeholder and must not become the article image.</p>
				<img src="data:image/png;base64,iVBORw0KGgoAAAANSUhEUg==">
			</article>`,
		),
	}}

	articles, herrs := newTestHarvester(direct).Harvest(context.Background(), listingConfig(), 10)

	require.Empty(t, herrs)
	require.Len(t, articles, 1)
	assert.Empty(t, articles[0].Image)
}

const articleURL = "https://example.com/stories/quantum"

func fullFetchConfig() *scrape.ScrapeConfig {
	cfg := listingConfig()
	cfg.FetchFull = true
	cfg.Fields.FullContent = scrape.SelectorSpec{Selectors: []string{".article-body"}}
	return cfg
}

func singleStoryListing(dek string) string {
	return listingPage(story("Quantum Error Correction Reaches New Milestone", "/stories/quantum", dek))
}

const articleBody = "The full investigation in paragraph one, laying out what happened and why it matters to everyone involved. " +
	"Paragraph two continues with supporting detail from people close to the matter and documents reviewed."

const articlePage = `<html><body>
<nav>Site navigation junk</nav>
<article><div class="article-body"><p>The full investigation in paragraph one, laying out what happened and why it matters to everyone involved.</p>
<p>Paragraph two continues with supporting detail from people close to the matter and documents reviewed.</p></div></article>
<footer>Footer junk</footer>
</body></html>`

const shortDek = "A short teaser for the quantum milestone story."

// TestHarvest_FullContentReplacesSummary verifies a longer article
// body replaces the summary as content
func TestHarvest_FullContentReplacesSummary(t *testing.T) {
	direct := &fakeFetcher{pages: map[string]string{
		listingURL: singleStoryListing(shortDek),
		articleURL: articlePage,
	}}

	articles, herrs := newTestHarvester(direct).Harvest(context.Background(), fullFetchConfig(), 10)

	require.Empty(t, herrs)
	require.Len(t, articles, 1)

	art := articles[0]
	assert.Equal(t, articleBody, art.Content)
	assert.Equal(t, shortDek, art.Summary, "the summary field keeps the teaser")
	assert.NotContains(t, art.Content, "navigation junk", "chrome regions are stripped before extraction")
	assert.Equal(t, 1, direct.called(articleURL))
}

// TestHarvest_FullContentKeptWhenShorter verifies a thin article body
// never replaces a longer summary
func TestHarvest_FullContentKeptWhenShorter(t *testing.T) {
	direct := &fakeFetcher{pages: map[string]string{
		listingURL: singleStoryListing(shortDek),
		articleURL: `<html><body><div class="article-body">Stub.</div></body></html>`,
	}}

	articles, herrs := newTestHarvester(direct).Harvest(context.Background(), fullFetchConfig(), 10)

	require.Empty(t, herrs)
	require.Len(t, articles, 1)
	assert.Equal(t, shortDek, articles[0].Content)
}

// TestHarvest_FullContentFetchFailure verifies a timed-out article
// fetch keeps the summary and records the failure against the URL
func TestHarvest_FullContentFetchFailure(t *testing.T) {
	direct := &fakeFetcher{
		pages: map[string]string{listingURL: singleStoryListing(shortDek)},
		errs:  map[string]error{articleURL: context.DeadlineExceeded},
	}

	articles, herrs := newTestHarvester(direct).Harvest(context.Background(), fullFetchConfig(), 10)

	require.Len(t, articles, 1, "the candidate survives the failed fetch")
	assert.Equal(t, shortDek, articles[0].Content, "content falls back to the cleaned summary")

	require.Len(t, herrs, 1)
	assert.Equal(t, articleURL, herrs[0].URL)
	assert.Equal(t, "example", herrs[0].Source)
	assert.ErrorIs(t, herrs[0].Err, context.DeadlineExceeded)
}

// TestHarvest_FullContentEmptyPage verifies a blank article page
// counts as a fetch failure
func TestHarvest_FullContentEmptyPage(t *testing.T) {
	direct := &fakeFetcher{pages: map[string]string{
		listingURL: singleStoryListing(shortDek),
		articleURL: "   \n  ",
	}}

	articles, herrs := newTestHarvester(direct).Harvest(context.Background(), fullFetchConfig(), 10)

	require.Len(t, articles, 1)
	assert.Equal(t, shortDek, articles[0].Content)
	require.Len(t, herrs, 1)
	assert.Equal(t, articleURL, herrs[0].URL)
}

// TestHarvest_ContentBoundary verifies content exactly at the minimum
// passes and one character below drops
func TestHarvest_ContentBoundary(t *testing.T) {
	dek := strings.Repeat("a", 50)
	direct := &fakeFetcher{pages: map[string]string{
		listingURL: singleStoryListing(dek),
	}}

	h := newTestHarvester(direct)
	h.MinContentLen = 50

	articles, herrs := h.Harvest(context.Background(), listingConfig(), 10)
	require.Empty(t, herrs)
	require.Len(t, articles, 1, "content at the threshold is accepted")
	assert.Equal(t, dek, articles[0].Content)

	h.MinContentLen = 51
	articles, herrs = h.Harvest(context.Background(), listingConfig(), 10)
	assert.Empty(t, herrs, "thin content is a silent drop, not an error")
	assert.Empty(t, articles, "one character below the threshold drops")
}

// TestHarvest_ContentCapped verifies long content is capped at a word
// boundary
func TestHarvest_ContentCapped(t *testing.T) {
	direct := &fakeFetcher{pages: map[string]string{
		listingURL: singleStoryListing("the quick brown fox jumps over the lazy dog"),
	}}

	h := newTestHarvester(direct)
	h.MinContentLen = 10
	h.MaxContentLen = 20

	articles, _ := h.Harvest(context.Background(), listingConfig(), 10)

	require.Len(t, articles, 1)
	assert.Equal(t, "the quick brown fox", articles[0].Content)
	assert.LessOrEqual(t, len(articles[0].Content), 20)
}

// TestHarvest_PostprocessHook verifies the hook rewrites articles and
// hook failures keep the original
func TestHarvest_PostprocessHook(t *testing.T) {
	direct := &fakeFetcher{pages: map[string]string{
		listingURL: singleStoryListing(quantumDek),
	}}

	cfg := listingConfig()
	cfg.Postprocess = func(a scrape.Article) (scrape.Article, error) {
		a.Title = strings.ToUpper(a.Title)
		return a, nil
	}

	articles, _ := newTestHarvester(direct).Harvest(context.Background(), cfg, 10)
	require.Len(t, articles, 1)
	assert.Equal(t, "QUANTUM ERROR CORRECTION REACHES NEW MILESTONE", articles[0].Title)

	cfg.Postprocess = func(scrape.Article) (scrape.Article, error) {
		return scrape.Article{}, errors.New("hook exploded")
	}

	articles, herrs := newTestHarvester(direct).Harvest(context.Background(), cfg, 10)
	require.Len(t, articles, 1, "a failing hook never drops the article")
	assert.Empty(t, herrs)
	assert.Equal(t, "Quantum Error Correction Reaches New Milestone", articles[0].Title,
		"the original article survives a hook failure")
}

// TestHarvest_PreprocessHook verifies the hook's document feeds
// full-content extraction
func TestHarvest_PreprocessHook(t *testing.T) {
	hookBody := "Hook injected article body text, long enough to clear every validation threshold in play here."
	direct := &fakeFetcher{pages: map[string]string{
		listingURL: singleStoryListing(shortDek),
		articleURL: `<html><body><p>Nothing the selectors recognize.</p></body></html>`,
	}}

	var sawRaw string
	cfg := fullFetchConfig()
	cfg.Preprocess = func(_, rawHTML string, _ *goquery.Document) (*goquery.Document, error) {
		sawRaw = rawHTML
		return goquery.NewDocumentFromReader(strings.NewReader(
			`<html><body><div class="article-body">` + hookBody + `</div></body></html>`))
	}

	articles, herrs := newTestHarvester(direct).Harvest(context.Background(), cfg, 10)

	require.Empty(t, herrs)
	require.Len(t, articles, 1)
	assert.Equal(t, hookBody, articles[0].Content, "extraction should run against the hook's document")
	assert.Contains(t, sawRaw, "Nothing the selectors recognize", "the hook sees the fetched page")
}

// TestHarvest_PreprocessHookFailure verifies a failing hook falls back
// to the page as fetched
func TestHarvest_PreprocessHookFailure(t *testing.T) {
	direct := &fakeFetcher{pages: map[string]string{
		listingURL: singleStoryListing(shortDek),
		articleURL: articlePage,
	}}

	cfg := fullFetchConfig()
	cfg.Preprocess = func(string, string, *goquery.Document) (*goquery.Document, error) {
		return nil, errors.New("readability choked")
	}

	articles, herrs := newTestHarvester(direct).Harvest(context.Background(), cfg, 10)

	require.Empty(t, herrs, "a hook failure is not a fetch failure")
	require.Len(t, articles, 1)
	assert.Equal(t, articleBody, articles[0].Content)
}

// TestHarvest_RenderedMode verifies rendered sources use the renderer
// and never the direct fetcher
func TestHarvest_RenderedMode(t *testing.T) {
	direct := &fakeFetcher{pages: map[string]string{}}
	rendered := &fakeFetcher{pages: map[string]string{
		listingURL: singleStoryListing(quantumDek),
	}}

	h := newTestHarvester(direct)
	h.Rendered = rendered

	cfg := listingConfig()
	cfg.Mode = scrape.ModeRendered

	articles, herrs := h.Harvest(context.Background(), cfg, 10)

	require.Empty(t, herrs)
	require.Len(t, articles, 1)
	assert.Equal(t, 1, rendered.called(listingURL))
	assert.Equal(t, 0, direct.called(listingURL))
}

// TestHarvest_RenderedModeWithoutRenderer verifies a contained error
// when no renderer is wired
func TestHarvest_RenderedModeWithoutRenderer(t *testing.T) {
	h := newTestHarvester(&fakeFetcher{})

	cfg := listingConfig()
	cfg.Mode = scrape.ModeRendered

	articles, herrs := h.Harvest(context.Background(), cfg, 10)

	assert.Empty(t, articles)
	require.Len(t, herrs, 1)
	assert.Contains(t, herrs[0].Err.Error(), "renderer")
}

func feedConfig() *scrape.ScrapeConfig {
	return &scrape.ScrapeConfig{
		Name: "example-feed",
		URL:  "https://example.com/rss.xml",
		Mode: scrape.ModeFeed,
	}
}

// TestHarvestFeed verifies feed entries run the same validation and
// dedup pipeline as scraped candidates
func TestHarvestFeed(t *testing.T) {
	h := newTestHarvester(&fakeFetcher{})
	h.Feeds = &fakeFeed{entries: []Entry{
		{
			Title:     "First feed story of the day",
			Link:      "https://example.com/stories/f1",
			Summary:   "A feed-provided summary that is comfortably past the length floor.",
			Image:     "https://example.com/img/f1.jpg",
			Published: "Mon, 24 Aug 2026 10:00:00 GMT",
		},
		{
			Title:   "",
			Link:    "https://example.com/stories/f2",
			Summary: "An entry with no title at all, which the pipeline must reject outright.",
		},
		{
			Title:   "Duplicate of the first entry",
			Link:    "https://example.com/stories/f1",
			Summary: "Same link as the first entry, so dedup has to swallow this one.",
		},
		{
			Title:   "Entry with a relative link",
			Link:    "/stories/f4",
			Summary: "Relative links resolve against the feed URL just like listing links.",
		},
	}}

	articles, herrs := h.Harvest(context.Background(), feedConfig(), 10)

	require.Empty(t, herrs)
	require.Len(t, articles, 2)

	assert.Equal(t, "https://example.com/stories/f1", articles[0].URL)
	assert.Equal(t, "First feed story of the day", articles[0].Title)
	assert.Equal(t, "Mon, 24 Aug 2026 10:00:00 GMT", articles[0].Published, "the raw date string passes through")
	assert.Equal(t, "https://example.com/img/f1.jpg", articles[0].Image)
	assert.Equal(t, "example-feed", articles[0].Source)

	assert.Equal(t, "https://example.com/stories/f4", articles[1].URL)
}

// TestHarvestFeed_Limit verifies the per-source limit applies to feeds
func TestHarvestFeed_Limit(t *testing.T) {
	entries := make([]Entry, 5)
	for i := range entries {
		entries[i] = Entry{
			Title:   fmt.Sprintf("Feed story number %d today", i+1),
			Link:    fmt.Sprintf("https://example.com/stories/n%d", i+1),
			Summary: "Enough summary text to pass validation without any trouble at all.",
		}
	}

	h := newTestHarvester(&fakeFetcher{})
	h.Feeds = &fakeFeed{entries: entries}

	articles, herrs := h.Harvest(context.Background(), feedConfig(), 2)

	require.Empty(t, herrs)
	assert.Len(t, articles, 2)
}

// TestHarvestFeed_FetchFailure verifies a dead feed yields one error
func TestHarvestFeed_FetchFailure(t *testing.T) {
	h := newTestHarvester(&fakeFetcher{})
	h.Feeds = &fakeFeed{err: errors.New(": gateway timeout")}

	articles, herrs := h.Harvest(context.Background(), feedConfig(), 10)

	assert.Empty(t, articles)
	require.Len(t, herrs, 1)
	assert.Equal(t, "example-feed", herrs[0].Source)
}

// TestHarvestFeed_NoLister verifies feed sources fail cleanly without
// a feed client
func TestHarvestFeed_NoLister(t *testing.T) {
	h := newTestHarvester(&fakeFetcher{})

	articles, herrs := h.Harvest(context.Background(), feedConfig(), 10)

	assert.Empty(t, articles)
	require.Len(t, herrs, 1)
	assert.Contains(t, herrs[0].Err.Error(), "feed lister")
}

// TestHarvestFeed_FullContent verifies feed sources can fetch article
// pages for full content
func TestHarvestFeed_FullContent(t *testing.T) {
	direct := &fakeFetcher{pages: map[string]string{
		"https://example.com/stories/f1": articlePage,
	}}

	h := newTestHarvester(direct)
	h.Feeds = &fakeFeed{entries: []Entry{{
		Title:   "Feed story with a full fetch",
		Link:    "https://example.com/stories/f1",
		Summary: "The short feed summary that the full article body should replace.",
	}}}

	cfg := feedConfig()
	cfg.FetchFull = true
	cfg.Fields.FullContent = scrape.SelectorSpec{Selectors: []string{".article-body"}}

	articles, herrs := h.Harvest(context.Background(), cfg, 10)

	require.Empty(t, herrs)
	require.Len(t, articles, 1)
	assert.Equal(t, articleBody, articles[0].Content)
}
