package fetch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

const (
	// DefaultRenderTimeout bounds a whole render when the caller does
	// not.
	DefaultRenderTimeout = 45 * time.Second
	// waitForTimeout bounds the optional wait for a configured
	// element. Missing the element is not fatal to the render.
	waitForTimeout = 5 * time.Second
	// settleDelay gives late script work a moment to finish after the
	// document is ready.
	settleDelay = time.Second
)

// ErrEmptyBody marks a fetch that technically succeeded but produced
// no usable HTML.
var ErrEmptyBody = errors.New("empty page body")

// Renderer produces the fully rendered HTML of a page, driving a
// headless browser or anything that can stand in for one.
type Renderer interface {
	Render(ctx context.Context, pageURL, waitFor string, timeout time.Duration) (string, error)
}

// RenderedFetcher adapts a Renderer to the Fetcher contract so
// script-dependent sources drop into the same pipeline as direct ones.
type RenderedFetcher struct {
	Renderer Renderer
}

// Fetch renders pageURL and returns the resulting HTML. An empty
// render is reported as an error just like a failed HTTP fetch.
func (f *RenderedFetcher) Fetch(ctx context.Context, pageURL string, opts Options) (string, error) {
	if f.Renderer == nil {
		return "", errors.New("no renderer configured")
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultRenderTimeout
	}

	html, err := f.Renderer.Render(ctx, pageURL, opts.WaitFor, timeout)
	if err != nil {
		return "", fmt.Errorf("failed to render URL: %w", err)
	}
	if html == "" {
		return "", ErrEmptyBody
	}
	return html, nil
}

// BrowserRenderer renders pages in a headless browser via chromedp.
// Every Render call launches and tears down its own browser context,
// so no browser state outlives a single fetch regardless of how the
// call exits.
type BrowserRenderer struct {
	Log *zap.Logger
}

func (r *BrowserRenderer) log() *zap.Logger {
	if r.Log != nil {
		return r.Log
	}
	return zap.NewNop()
}

// Render navigates to pageURL, optionally waits for waitFor to become
// visible, and returns the rendered document. The wait for waitFor has
// its own short bound and failing it only means proceeding with
// whatever has loaded.
func (r *BrowserRenderer) Render(ctx context.Context, pageURL, waitFor string, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = DefaultRenderTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	opts := append(chromedp.DefaultExecAllocatorOptions[:], chromedp.UserAgent(userAgent))
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	err := chromedp.Run(browserCtx,
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(settleDelay),
	)
	if err != nil {
		return "", fmt.Errorf("failed to navigate: %w", err)
	}

	if waitFor != "" {
		waitCtx, cancelWait := context.WithTimeout(browserCtx, waitForTimeout)
		if err := chromedp.Run(waitCtx, chromedp.WaitVisible(waitFor, chromedp.ByQuery)); err != nil {
			r.log().Debug("wait for element gave up, rendering anyway",
				zap.String("url", pageURL),
				zap.String("selector", waitFor),
				zap.Error(err))
		}
		cancelWait()
	}

	var html string
	if err := chromedp.Run(browserCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("failed to extract rendered HTML: %w", err)
	}
	return html, nil
}
