// Package feed lists the entries of RSS and Atom feeds in a shape the
// harvester can process like any other listing page.
package feed

import (
	"context"
	"fmt"
	"strings"

	"github.com/mmcdole/gofeed"
)

// Entry is one feed item reduced to the fields the harvest pipeline
// cares about. Published carries the raw date string as the feed
// supplied it; parsing is left to consumers.
type Entry struct {
	Title     string
	Link      string
	Summary   string
	Image     string
	Published string
}

// Client fetches and parses syndication feeds. The gofeed library
// detects RSS and Atom automatically and normalizes both into one
// structure, so a single client handles either format. The zero value
// is ready to use.
type Client struct {
	// UserAgent overrides the default request user agent when set.
	UserAgent string
}

// List downloads the feed at feedURL and returns its entries in feed
// order. The context bounds the whole download and parse.
func (c *Client) List(ctx context.Context, feedURL string) ([]Entry, error) {
	fp := gofeed.NewParser()
	if c.UserAgent != "" {
		fp.UserAgent = c.UserAgent
	}

	parsed, err := fp.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	entries := make([]Entry, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		if item == nil {
			continue
		}
		entries = append(entries, entryFromItem(item))
	}
	return entries, nil
}

// entryFromItem maps one gofeed item onto an Entry. RSS descriptions
// and Atom summaries both arrive in item.Description; Atom content
// serves as the fallback when a feed omits descriptions.
func entryFromItem(item *gofeed.Item) Entry {
	entry := Entry{
		Title:     item.Title,
		Link:      item.Link,
		Summary:   item.Description,
		Published: item.Published,
	}

	if entry.Summary == "" {
		entry.Summary = item.Content
	}
	if entry.Published == "" {
		entry.Published = item.Updated
	}

	if item.Image != nil && item.Image.URL != "" {
		entry.Image = item.Image.URL
	} else {
		for _, enc := range item.Enclosures {
			if enc == nil {
				continue
			}
			if strings.HasPrefix(enc.Type, "image/") && enc.URL != "" {
				entry.Image = enc.URL
				break
			}
		}
	}
	return entry
}
