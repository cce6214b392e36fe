// Package harvest turns configured sources into finished articles. A
// Harvester fetches a source's listing page (or feed), selects article
// containers, extracts and scores field candidates, optionally fetches
// each article's own page for full content, and validates the result.
// Failures are contained at the smallest scope that can absorb them: a
// bad candidate never sinks its source, and a bad source never sinks a
// batch.
package harvest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/pevans/newsreel/feed"
	"github.com/pevans/newsreel/fetch"
	"github.com/pevans/newsreel/scrape"
)

const (
	// DefaultListingTimeout bounds the listing-page or feed fetch.
	DefaultListingTimeout = 30 * time.Second
	// DefaultArticleTimeout bounds each full-article fetch.
	DefaultArticleTimeout = 20 * time.Second
	// DefaultMinContentLen is the shortest cleaned content an article
	// may carry and still be emitted.
	DefaultMinContentLen = 100
	// DefaultMaxContentLen caps cleaned content length.
	DefaultMaxContentLen = 10000
)

var errEmptyPage = errors.New("page body is empty")

// articleChromeSelector matches regions of a story page that never
// carry article copy. They are removed before full-content extraction.
const articleChromeSelector = `script, style, noscript, nav, footer, aside, header, form, iframe, figure, video, ` +
	`[class*="advert"], [id*="advert"], [class*="sponsor"], [class*="promo"], ` +
	`[class*="comment"], [id*="comment"], [class*="share"], [class*="social"], ` +
	`[class*="related"], [class*="newsletter"], [class*="player"]`

// HarvestError is one contained failure from a source's harvest. URL
// is set when the failure concerns a single article rather than the
// source as a whole.
type HarvestError struct {
	Source string
	URL    string
	Err    error
}

func (e HarvestError) Error() string {
	if e.URL != "" {
		return fmt.Sprintf("%s (%s): %v", e.Source, e.URL, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Source, e.Err)
}

func (e HarvestError) Unwrap() error { return e.Err }

// FeedLister lists the entries of a syndication feed. *feed.Client
// satisfies it.
type FeedLister interface {
	List(ctx context.Context, feedURL string) ([]Entry, error)
}

// Entry aliases the feed entry type so harvester callers only deal in
// one package's names.
type Entry = feed.Entry

// Harvester extracts articles from configured sources. Construct with
// New for sensible timeouts and content bounds; a zero MaxContentLen
// disables capping and a zero MinContentLen accepts any length.
type Harvester struct {
	Direct   fetch.Fetcher
	Rendered fetch.Fetcher
	Feeds    FeedLister

	ListingTimeout time.Duration
	ArticleTimeout time.Duration

	MinContentLen int
	MaxContentLen int

	Log *zap.Logger
}

// New returns a Harvester over the given fetchers with default
// timeouts and content bounds. Any collaborator may be nil; sources
// that need it then fail with a contained error.
func New(direct, rendered fetch.Fetcher, feeds FeedLister, log *zap.Logger) *Harvester {
	if log == nil {
		log = zap.NewNop()
	}
	return &Harvester{
		Direct:         direct,
		Rendered:       rendered,
		Feeds:          feeds,
		ListingTimeout: DefaultListingTimeout,
		ArticleTimeout: DefaultArticleTimeout,
		MinContentLen:  DefaultMinContentLen,
		MaxContentLen:  DefaultMaxContentLen,
		Log:            log,
	}
}

func (h *Harvester) log() *zap.Logger {
	if h.Log != nil {
		return h.Log
	}
	return zap.NewNop()
}

// Harvest runs the pipeline for one source and returns up to limit
// finished articles plus every contained failure. A non-positive limit
// means no limit. A listing-level failure yields zero articles and one
// error; nothing below the listing level ever aborts the source.
func (h *Harvester) Harvest(ctx context.Context, cfg *scrape.ScrapeConfig, limit int) ([]scrape.Article, []HarvestError) {
	log := h.log().With(zap.String("source", cfg.Name))

	if cfg.Mode == scrape.ModeFeed {
		return h.harvestFeed(ctx, cfg, limit, log)
	}

	fetcher, err := h.fetcherFor(cfg)
	if err != nil {
		return nil, []HarvestError{{Source: cfg.Name, Err: err}}
	}

	page, err := fetcher.Fetch(ctx, cfg.URL, fetch.Options{
		Headers: cfg.Headers,
		Timeout: h.ListingTimeout,
		WaitFor: cfg.WaitFor,
	})
	if err != nil {
		log.Warn("listing fetch failed", zap.String("url", cfg.URL), zap.Error(err))
		return nil, []HarvestError{{Source: cfg.Name, Err: fmt.Errorf("failed to fetch listing: %w", err)}}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		log.Warn("listing parse failed", zap.String("url", cfg.URL), zap.Error(err))
		return nil, []HarvestError{{Source: cfg.Name, Err: fmt.Errorf("failed to parse listing: %w", err)}}
	}

	var (
		articles []scrape.Article
		herrs    []HarvestError
		seen     = make(map[string]bool)
	)

	// Union-select every container selector; matches come back in
	// document order regardless of which selector found them.
	containerSelector := strings.Join(cfg.Fields.Container.Selectors, ", ")
	doc.Find(containerSelector).EachWithBreak(func(_ int, node *goquery.Selection) bool {
		if limit > 0 && len(articles) >= limit {
			return false
		}
		art, errs, ok := h.processCandidate(ctx, cfg, node, seen, log)
		herrs = append(herrs, errs...)
		if ok {
			seen[art.URL] = true
			articles = append(articles, art)
		}
		return true
	})

	log.Info("source harvested", zap.Int("articles", len(articles)), zap.Int("errors", len(herrs)))
	return articles, herrs
}

// processCandidate walks one container node through field extraction,
// the optional full-content fetch, validation, and the postprocess
// hook. A panic anywhere inside drops the candidate and nothing else.
func (h *Harvester) processCandidate(ctx context.Context, cfg *scrape.ScrapeConfig, node *goquery.Selection, seen map[string]bool, log *zap.Logger) (art scrape.Article, herrs []HarvestError, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("candidate processing panicked", zap.Any("cause", r))
			ok = false
		}
	}()

	// The link comes first: without a usable URL there is no article,
	// and the URL is what dedup keys on.
	href, _ := h.extractField(node, scrape.FieldLink, cfg.Fields.Link, log)
	link := ResolveURL(cfg.URL, href)
	if link == "" {
		if href != "" {
			log.Debug("discarding candidate with unusable link", zap.String("href", href))
		}
		return art, nil, false
	}
	if seen[link] {
		return art, nil, false
	}

	title, _ := h.extractField(node, scrape.FieldTitle, cfg.Fields.Title, log)
	if title == "" {
		log.Debug("dropping candidate without title", zap.String("url", link))
		return art, nil, false
	}

	summary, _ := h.extractField(node, scrape.FieldSummary, cfg.Fields.Summary, log)

	image, _ := h.extractField(node, scrape.FieldImage, cfg.Fields.Image, log)

	var published string
	if !cfg.Fields.Date.Empty() {
		published, _ = h.extractField(node, scrape.FieldDate, cfg.Fields.Date, log)
	}

	art = scrape.Article{
		Source:      cfg.Name,
		URL:         link,
		Title:       title,
		Summary:     summary,
		Image:       ResolveURL(cfg.URL, image),
		Published:   published,
		HarvestedAt: time.Now().UTC(),
	}

	return h.finishArticle(ctx, cfg, art, summary, log)
}

// extractField runs the selector spec for one field and logs a warning
// when a required field comes up empty. The miss itself stays
// recoverable; the caller decides whether it sinks the candidate.
func (h *Harvester) extractField(node *goquery.Selection, field string, spec scrape.SelectorSpec, log *zap.Logger) (string, bool) {
	value, _, ok := SelectBest(node, field, spec)
	if !ok && spec.Required {
		log.Warn("required field missing", zap.String("field", field))
	}
	return value, ok
}

// finishArticle runs the pipeline tail shared by listing candidates
// and feed entries: the optional full-content fetch, content cleanup,
// length validation, and the postprocess hook. content seeds from the
// summary and may be replaced by a strictly longer full-content fetch.
func (h *Harvester) finishArticle(ctx context.Context, cfg *scrape.ScrapeConfig, art scrape.Article, content string, log *zap.Logger) (scrape.Article, []HarvestError, bool) {
	var herrs []HarvestError

	if cfg.FetchFull && !cfg.Fields.FullContent.Empty() {
		full, err := h.fetchFullContent(ctx, cfg, art.URL, log)
		switch {
		case err != nil:
			log.Warn("full article fetch failed, keeping summary",
				zap.String("url", art.URL), zap.Error(err))
			herrs = append(herrs, HarvestError{
				Source: cfg.Name,
				URL:    art.URL,
				Err:    fmt.Errorf("failed to fetch full article: %w", err),
			})
		case len(full) > len(content):
			content = full
		}
	}

	content = capText(CleanText(content), h.MaxContentLen)
	if len(content) < h.MinContentLen {
		log.Debug("dropping candidate with thin content",
			zap.String("url", art.URL), zap.Int("length", len(content)))
		return art, herrs, false
	}
	art.Content = content

	if cfg.Postprocess != nil {
		processed, err := cfg.Postprocess(art)
		if err != nil {
			log.Warn("postprocess hook failed, keeping original",
				zap.String("url", art.URL), zap.Error(err))
		} else {
			art = processed
		}
	}
	return art, herrs, true
}

// fetchFullContent fetches an article's own page and extracts the best
// full-content candidate from it, honoring the source's pacing delay.
// The page is preprocessed by the config's hook (when set) and
// stripped of chrome regions before extraction.
func (h *Harvester) fetchFullContent(ctx context.Context, cfg *scrape.ScrapeConfig, articleURL string, log *zap.Logger) (string, error) {
	if delay := cfg.DelayDuration(); delay > 0 {
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		}
	}

	fetcher, err := h.fetcherFor(cfg)
	if err != nil {
		return "", err
	}
	page, err := fetcher.Fetch(ctx, articleURL, fetch.Options{
		Headers: cfg.Headers,
		Timeout: h.ArticleTimeout,
		WaitFor: cfg.WaitFor,
	})
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(page) == "" {
		return "", errEmptyPage
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return "", fmt.Errorf("failed to parse article page: %w", err)
	}

	if cfg.Preprocess != nil {
		pre, err := cfg.Preprocess(articleURL, page, doc)
		if err != nil {
			log.Warn("preprocess hook failed, using page as fetched",
				zap.String("url", articleURL), zap.Error(err))
		} else if pre != nil {
			doc = pre
		}
	}

	doc.Find(articleChromeSelector).Remove()

	body, _, _ := SelectBest(doc.Selection, scrape.FieldFullContent, cfg.Fields.FullContent)
	return body, nil
}

// harvestFeed is the feed-mode pipeline: entries arrive already split
// into fields, so extraction reduces to cleaning, and the shared tail
// handles the rest.
func (h *Harvester) harvestFeed(ctx context.Context, cfg *scrape.ScrapeConfig, limit int, log *zap.Logger) ([]scrape.Article, []HarvestError) {
	if h.Feeds == nil {
		return nil, []HarvestError{{Source: cfg.Name, Err: errors.New("no feed lister configured")}}
	}

	listCtx := ctx
	if h.ListingTimeout > 0 {
		var cancel context.CancelFunc
		listCtx, cancel = context.WithTimeout(ctx, h.ListingTimeout)
		defer cancel()
	}
	entries, err := h.Feeds.List(listCtx, cfg.URL)
	if err != nil {
		log.Warn("feed fetch failed", zap.String("url", cfg.URL), zap.Error(err))
		return nil, []HarvestError{{Source: cfg.Name, Err: fmt.Errorf("failed to fetch feed: %w", err)}}
	}

	var (
		articles []scrape.Article
		herrs    []HarvestError
		seen     = make(map[string]bool)
	)
	for _, entry := range entries {
		if limit > 0 && len(articles) >= limit {
			break
		}
		art, errs, ok := h.processEntry(ctx, cfg, entry, seen, log)
		herrs = append(herrs, errs...)
		if ok {
			seen[art.URL] = true
			articles = append(articles, art)
		}
	}

	log.Info("source harvested", zap.Int("articles", len(articles)), zap.Int("errors", len(herrs)))
	return articles, herrs
}

func (h *Harvester) processEntry(ctx context.Context, cfg *scrape.ScrapeConfig, entry Entry, seen map[string]bool, log *zap.Logger) (art scrape.Article, herrs []HarvestError, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("entry processing panicked", zap.Any("cause", r))
			ok = false
		}
	}()

	link := ResolveURL(cfg.URL, entry.Link)
	if link == "" {
		if entry.Link != "" {
			log.Debug("discarding entry with unusable link", zap.String("href", entry.Link))
		}
		return art, nil, false
	}
	if seen[link] {
		return art, nil, false
	}

	title := CleanText(entry.Title)
	if title == "" {
		log.Debug("dropping entry without title", zap.String("url", link))
		return art, nil, false
	}

	summary := CleanText(entry.Summary)

	art = scrape.Article{
		Source:      cfg.Name,
		URL:         link,
		Title:       title,
		Summary:     summary,
		Image:       ResolveURL(cfg.URL, entry.Image),
		Published:   entry.Published,
		HarvestedAt: time.Now().UTC(),
	}

	return h.finishArticle(ctx, cfg, art, summary, log)
}

// fetcherFor picks the fetch strategy a source's config calls for.
func (h *Harvester) fetcherFor(cfg *scrape.ScrapeConfig) (fetch.Fetcher, error) {
	if cfg.Mode == scrape.ModeRendered {
		if h.Rendered == nil {
			return nil, errors.New("source needs a rendered fetch but no renderer is configured")
		}
		return h.Rendered, nil
	}
	if h.Direct == nil {
		return nil, errors.New("no direct fetcher configured")
	}
	return h.Direct, nil
}
