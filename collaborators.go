// Package newsreel harvests articles from configured news sources and
// hands them to enrichment and storage collaborators. The packages
// under it do the component work; this package ties one batch run
// together.
package newsreel

import (
	"context"

	"github.com/pevans/newsreel/scrape"
)

// Summarizer turns article content into a short narration script.
// Implementations wrap whatever model or service does the work; the
// batch layer needs only this one call and treats any failure as
// per-article.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// Storage persists finished articles under URL-derived ids.
// *store.FileStore satisfies it. Get returns nil without error for an
// unknown id.
type Storage interface {
	Put(id string, article scrape.Article) error
	Get(id string) (*scrape.Article, error)
	List() ([]scrape.Article, error)
	Delete(id string) error
}
