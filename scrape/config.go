package scrape

import (
	"fmt"
	"net/url"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Mode selects how a source's listing is retrieved.
type Mode string

const (
	// ModeDirect fetches pages with a plain HTTP GET.
	ModeDirect Mode = "direct"
	// ModeRendered fetches pages through a headless browser so that
	// script-generated markup is present in the returned HTML.
	ModeRendered Mode = "rendered"
	// ModeFeed reads the listing from an RSS or Atom feed instead of an
	// HTML page.
	ModeFeed Mode = "feed"
)

// Field names as used throughout extraction. The extractor uses them to
// decide how a candidate's value is read (href, src, datetime, or text)
// and which fields are scored.
const (
	FieldContainer   = "container"
	FieldTitle       = "title"
	FieldLink        = "link"
	FieldSummary     = "summary"
	FieldImage       = "image"
	FieldDate        = "date"
	FieldFullContent = "full_content"
)

// Preprocess adjusts a fetched article page before full-content
// extraction runs against it. It receives the page URL, the raw HTML as
// fetched, and the parsed document, and returns the document to extract
// from (which may be a different one). A returned error is caught at the
// call site and the original document is kept.
type Preprocess func(pageURL, rawHTML string, doc *goquery.Document) (*goquery.Document, error)

// Postprocess rewrites a finished article just before it is emitted. A
// returned error is caught at the call site and the original article is
// kept unmodified.
type Postprocess func(Article) (Article, error)

// SelectorSpec describes how one field is located. Every selector in
// Selectors is tried and all of their matches compete; the best-scoring
// candidate across the whole list wins, with ties broken by first
// occurrence in document order.
type SelectorSpec struct {
	Selectors []string `json:"selectors" yaml:"selectors"`

	// MinLength rejects candidate values shorter than this many bytes.
	MinLength int `json:"min_length,omitempty" yaml:"min_length,omitempty"`

	// Required marks the field as expected. A missing required field is
	// logged as a warning; whether the article survives is the
	// harvester's call, not the extractor's.
	Required bool `json:"required,omitempty" yaml:"required,omitempty"`

	// Priority is advisory only. It is carried through serialization for
	// forward compatibility but does not influence selection.
	Priority int `json:"priority,omitempty" yaml:"priority,omitempty"`
}

// Empty reports whether the spec has no selectors at all.
func (s SelectorSpec) Empty() bool {
	return len(s.Selectors) == 0
}

// Fields groups the per-field selector specs of one source.
type Fields struct {
	Container   SelectorSpec `json:"container,omitempty" yaml:"container,omitempty"`
	Title       SelectorSpec `json:"title,omitempty" yaml:"title,omitempty"`
	Link        SelectorSpec `json:"link,omitempty" yaml:"link,omitempty"`
	Summary     SelectorSpec `json:"summary,omitempty" yaml:"summary,omitempty"`
	Image       SelectorSpec `json:"image,omitempty" yaml:"image,omitempty"`
	Date        SelectorSpec `json:"date,omitempty" yaml:"date,omitempty"`
	FullContent SelectorSpec `json:"full_content,omitempty" yaml:"full_content,omitempty"`
}

// ScrapeConfig declares everything source-specific about harvesting one
// site: where its listing lives, how to fetch it, and which selectors
// locate each field. Behavioral differences between sources live here as
// data; there is no per-site code anywhere in the pipeline. Configs are
// immutable once registered.
type ScrapeConfig struct {
	// Name keys the config in the registry and tags every article and
	// error the source produces.
	Name string `json:"name" yaml:"name"`

	// URL is the listing page (or, in feed mode, the feed URL).
	URL string `json:"url" yaml:"url"`

	Mode   Mode   `json:"mode" yaml:"mode"`
	Fields Fields `json:"fields" yaml:"fields"`

	// Headers are sent with every direct fetch for this source. Rendered
	// fetches go through the browser and ignore them.
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`

	// Delay paces article-page fetches, as a time.ParseDuration string
	// ("750ms", "2s"). Empty means no pacing.
	Delay string `json:"delay,omitempty" yaml:"delay,omitempty"`

	// FetchFull enables re-fetching each article's own page for fuller
	// body text. It only has an effect when FullContent selectors exist.
	FetchFull bool `json:"fetch_full,omitempty" yaml:"fetch_full,omitempty"`

	// WaitFor is a selector the rendered fetch waits for before
	// returning HTML. Waiting times out non-fatally.
	WaitFor string `json:"wait_for,omitempty" yaml:"wait_for,omitempty"`

	// Hooks are code, not data: they do not survive serialization.
	Preprocess  Preprocess  `json:"-" yaml:"-"`
	Postprocess Postprocess `json:"-" yaml:"-"`
}

// DelayDuration returns the parsed per-request delay, or zero when none
// is configured or the value does not parse.
func (c *ScrapeConfig) DelayDuration() time.Duration {
	if c.Delay == "" {
		return 0
	}
	d, err := time.ParseDuration(c.Delay)
	if err != nil || d < 0 {
		return 0
	}
	return d
}

// Validate checks that the config is complete enough to harvest.
func (c *ScrapeConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("config has no name")
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("%s: invalid url: %w", c.Name, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s: url must be http or https", c.Name)
	}

	switch c.Mode {
	case ModeDirect, ModeRendered:
		if c.Fields.Container.Empty() {
			return fmt.Errorf("%s: no container selectors", c.Name)
		}
		if c.Fields.Title.Empty() {
			return fmt.Errorf("%s: no title selectors", c.Name)
		}
		if c.Fields.Link.Empty() {
			return fmt.Errorf("%s: no link selectors", c.Name)
		}
	case ModeFeed:
		// Feed entries carry their own title and link; selector specs
		// only matter if a full-content fetch is configured.
	default:
		return fmt.Errorf("%s: unknown mode %q", c.Name, c.Mode)
	}

	if c.Delay != "" {
		if _, err := time.ParseDuration(c.Delay); err != nil {
			return fmt.Errorf("%s: invalid delay: %w", c.Name, err)
		}
	}
	return nil
}
