package harvest

import (
	"net/url"
	"strings"
)

// ResolveURL resolves candidate against base and returns the absolute
// form, or the empty string when the candidate is blank, unparseable,
// or resolves to something other than an http(s) URL. It never fails;
// callers treat "" as "no URL".
func ResolveURL(base, candidate string) string {
	candidate = strings.TrimSpace(candidate)
	if candidate == "" {
		return ""
	}

	b, err := url.Parse(base)
	if err != nil {
		return ""
	}
	u, err := b.Parse(candidate)
	if err != nil {
		return ""
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return u.String()
}
