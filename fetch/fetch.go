// Package fetch retrieves page HTML. Two strategies live behind one
// contract: a plain HTTP fetch and a headless-browser render for pages
// that only exist after scripts run.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultTimeout bounds a fetch when the caller does not.
	DefaultTimeout = 30 * time.Second
	// DefaultMaxBodyBytes caps how much of a response body is read.
	DefaultMaxBodyBytes = 10 << 20

	userAgent = "newsreel/1.0 (article harvester)"
)

// ErrBadStatus marks responses whose status code signals failure.
var ErrBadStatus = errors.New("bad response status")

// Options tune a single fetch. Headers are set on top of the defaults,
// Timeout bounds the whole request, and WaitFor names an element a
// rendered fetch should wait for before returning the page.
type Options struct {
	Headers map[string]string
	Timeout time.Duration
	WaitFor string
}

// Fetcher retrieves the HTML of a page.
type Fetcher interface {
	Fetch(ctx context.Context, pageURL string, opts Options) (string, error)
}

// DirectFetcher fetches pages with a plain HTTP GET. Status codes
// below 400 count as success; redirects are followed by the underlying
// client and logged on the way. Response bodies are read up to
// MaxBodyBytes and silently truncated past it.
type DirectFetcher struct {
	client       *http.Client
	log          *zap.Logger
	MaxBodyBytes int64
}

// NewDirect returns a DirectFetcher with a tuned transport. A nil
// logger disables logging.
func NewDirect(log *zap.Logger) *DirectFetcher {
	if log == nil {
		log = zap.NewNop()
	}

	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}

	f := &DirectFetcher{
		log:          log,
		MaxBodyBytes: DefaultMaxBodyBytes,
	}
	f.client = &http.Client{
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			log.Debug("following redirect",
				zap.String("from", via[len(via)-1].URL.String()),
				zap.String("to", req.URL.String()))
			if len(via) >= 10 {
				return errors.New("too many redirects")
			}
			return nil
		},
	}
	return f
}

// Fetch issues a GET for pageURL and returns the body as a string.
func (f *DirectFetcher) Fetch(ctx context.Context, pageURL string, opts Options) (string, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}

	resp, err := f.httpClient().Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("%w: %d %s", ErrBadStatus, resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	max := f.MaxBodyBytes
	if max <= 0 {
		max = DefaultMaxBodyBytes
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, max))
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}
	return string(body), nil
}

func (f *DirectFetcher) httpClient() *http.Client {
	if f.client != nil {
		return f.client
	}
	return http.DefaultClient
}
