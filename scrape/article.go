package scrape

import "time"

// Article is a single finished record produced by harvesting one source.
// By the time an Article is emitted it satisfies three invariants: the
// title is non-empty, the URL is an absolute http(s) URL unique within
// its source's harvest, and the content meets the harvester's minimum
// length. Articles are not mutated after emission; ownership passes to
// whichever collaborator stores them.
type Article struct {
	// Source is the registry name of the source that produced this
	// article, or the host name when the generic fallback was used.
	Source string `json:"source"`

	// URL is the article's resolved, absolute http(s) address.
	URL string `json:"url"`

	Title   string `json:"title"`
	Summary string `json:"summary,omitempty"`

	// Content starts out as the listing-page summary and is replaced by
	// the full article body when a full fetch yields strictly more text.
	Content string `json:"content"`

	// Image is the resolved URL of the article's teaser image, if any.
	// Inline data: URIs are treated as no image at all.
	Image string `json:"image,omitempty"`

	// Published is the raw published-date text as found in the page or
	// feed. No parsing is attempted; sources disagree too wildly on
	// formats for a parsed value to be trustworthy.
	Published string `json:"published,omitempty"`

	// Script holds the summarization collaborator's output once the
	// article has been enriched. Empty until then.
	Script string `json:"script,omitempty"`

	HarvestedAt time.Time `json:"harvested_at"`
}
