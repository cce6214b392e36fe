package scrape

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
)

// ErrUnknownSource is returned by Resolve for identifiers that are
// neither registered names nor http(s) URLs.
var ErrUnknownSource = errors.New("unknown source")

// ErrDuplicateSource is returned by Register when the name is taken.
var ErrDuplicateSource = errors.New("source already registered")

// Registry maps source names to their scrape configurations. Identifiers
// that are not registered but parse as http(s) URLs resolve to the
// generic fallback config bound to that URL.
//
// Registries are populated once (at construction, from definition
// files, or from a persistent store) and read-only afterwards; Register
// is not safe to call concurrently with Resolve.
type Registry struct {
	configs map[string]*ScrapeConfig
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{configs: make(map[string]*ScrapeConfig)}
}

// Register validates and adds a config under its name.
func (r *Registry) Register(cfg *ScrapeConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("register: %w", err)
	}
	if _, ok := r.configs[cfg.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateSource, cfg.Name)
	}
	r.configs[cfg.Name] = cfg
	return nil
}

// Lookup returns the config registered under name.
func (r *Registry) Lookup(name string) (*ScrapeConfig, bool) {
	cfg, ok := r.configs[name]
	return cfg, ok
}

// Names returns all registered source names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.configs))
	for name := range r.configs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve turns a batch source identifier into a config: a registered
// name wins, an http(s) URL gets the generic fallback bound to it, and
// anything else is ErrUnknownSource.
func (r *Registry) Resolve(identifier string) (*ScrapeConfig, error) {
	if cfg, ok := r.configs[identifier]; ok {
		return cfg, nil
	}
	if u, err := url.Parse(identifier); err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != "" {
		return Generic(identifier), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownSource, identifier)
}

// Generic returns the fallback config for an arbitrary listing URL: broad
// selector lists, direct fetch, full-article fetching with a readability
// pass to make up for the lack of hand-tuned selectors. The config is
// named after the URL's host.
func Generic(pageURL string) *ScrapeConfig {
	name := "generic"
	if u, err := url.Parse(pageURL); err == nil && u.Host != "" {
		name = u.Host
	}
	return &ScrapeConfig{
		Name: name,
		URL:  pageURL,
		Mode: ModeDirect,
		Fields: Fields{
			Container: SelectorSpec{Selectors: []string{
				"article",
				"[class*=story]",
				"[class*=post]",
				"[class*=teaser]",
				"[class*=card]",
			}},
			Title: SelectorSpec{
				Selectors: []string{"h1", "h2", "h3", "[class*=headline]", "[class*=title]"},
				MinLength: 10,
				Required:  true,
			},
			Link: SelectorSpec{Selectors: []string{"a"}, Required: true},
			Summary: SelectorSpec{Selectors: []string{
				"p",
				"[class*=summary]",
				"[class*=excerpt]",
				"[class*=description]",
			}},
			Image: SelectorSpec{Selectors: []string{"img"}},
			Date:  SelectorSpec{Selectors: []string{"time", "[datetime]", "[class*=date]"}},
			FullContent: SelectorSpec{Selectors: []string{
				"article",
				"main",
				"[class*=article-body]",
				"[class*=story-body]",
				"[class*=content]",
				".post-content",
				".entry-content",
			}},
		},
		Delay:      "1s",
		FetchFull:  true,
		Preprocess: ReadabilityPreprocess,
	}
}

// Builtin returns a registry seeded with the stock source definitions.
func Builtin() *Registry {
	r := NewRegistry()
	for _, cfg := range builtinConfigs() {
		// Built-ins are maintained alongside Validate; a failure here is
		// a programming error, not a runtime condition.
		if err := r.Register(cfg); err != nil {
			panic(err)
		}
	}
	return r
}

func builtinConfigs() []*ScrapeConfig {
	return []*ScrapeConfig{
		{
			Name: "hackernews",
			URL:  "https://news.ycombinator.com/",
			Mode: ModeDirect,
			Fields: Fields{
				Container: SelectorSpec{Selectors: []string{".athing"}},
				Title:     SelectorSpec{Selectors: []string{".titleline > a"}, Required: true},
				Link:      SelectorSpec{Selectors: []string{".titleline > a"}, Required: true},
			},
			Delay: "500ms",
		},
		{
			Name: "bbc-world",
			URL:  "https://feeds.bbci.co.uk/news/world/rss.xml",
			Mode: ModeFeed,
			Fields: Fields{
				FullContent: SelectorSpec{Selectors: []string{
					"article [data-component=text-block]",
					"article",
				}},
			},
			Delay:     "1s",
			FetchFull: true,
		},
		{
			Name:    "theverge",
			URL:     "https://www.theverge.com/tech",
			Mode:    ModeRendered,
			WaitFor: "article",
			Fields: Fields{
				Container: SelectorSpec{Selectors: []string{"article", "[class*=duet--content-cards]"}},
				Title:     SelectorSpec{Selectors: []string{"h2 a", "h2", "[class*=headline]"}, MinLength: 10, Required: true},
				Link:      SelectorSpec{Selectors: []string{"h2 a", "a"}, Required: true},
				Summary:   SelectorSpec{Selectors: []string{"p", "[class*=excerpt]"}},
				Image:     SelectorSpec{Selectors: []string{"img"}},
				Date:      SelectorSpec{Selectors: []string{"time"}},
				FullContent: SelectorSpec{Selectors: []string{
					"[class*=article-body]",
					"article",
				}},
			},
			Delay:     "1s",
			FetchFull: true,
		},
	}
}
