package scrape

import (
	"fmt"
	"net/url"
	"strings"

	readability "codeberg.org/readeck/go-readability"
	"github.com/PuerkitoBio/goquery"
)

// ReadabilityPreprocess is a stock Preprocess hook that runs readability
// extraction over a fetched article page and, when it finds usable
// content, swaps in the simplified document for full-content extraction.
// The generic fallback config uses it so that arbitrary sites get decent
// body text without hand-tuned selectors.
func ReadabilityPreprocess(pageURL, rawHTML string, doc *goquery.Document) (*goquery.Document, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		u = &url.URL{}
	}

	article, err := readability.FromReader(strings.NewReader(rawHTML), u)
	if err != nil {
		return nil, fmt.Errorf("readability: %w", err)
	}
	if strings.TrimSpace(article.Content) == "" {
		// Nothing usable extracted; keep the document as fetched.
		return doc, nil
	}

	simplified, err := goquery.NewDocumentFromReader(strings.NewReader(article.Content))
	if err != nil {
		return nil, fmt.Errorf("parse simplified content: %w", err)
	}
	return simplified, nil
}
