package newsreel

import "time"

// BatchError describes one contained failure from a batch run. URL is
// set when the failure concerns a single article rather than a whole
// source.
type BatchError struct {
	Source  string `json:"source"`
	URL     string `json:"url,omitempty"`
	Message string `json:"message"`
}

// BatchResult summarizes one batch run. It is complete when returned
// and never mutated afterwards; the Success flag and the Errors list
// are the only signals of partial failure.
type BatchResult struct {
	SourcesAttempted  int           `json:"sources_attempted"`
	ArticlesHarvested int           `json:"articles_harvested"`
	ArticlesStored    int           `json:"articles_stored"`
	Errors            []BatchError  `json:"errors,omitempty"`
	Elapsed           time.Duration `json:"elapsed"`

	// SuccessRatio is stored over harvested. It is 0 when sources were
	// requested but nothing was harvested, and 1 when no sources were
	// requested at all.
	SuccessRatio float64 `json:"success_ratio"`
	Success      bool    `json:"success"`
}
