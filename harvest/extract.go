package harvest

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/pevans/newsreel/scrape"
)

// fieldScored reports whether candidates for field are ranked by the
// scorer. Every other field keeps the first valid candidate found.
func fieldScored(field string) bool {
	switch field {
	case scrape.FieldTitle, scrape.FieldSummary, scrape.FieldFullContent:
		return true
	}
	return false
}

// SelectBest runs every selector in spec against scope and returns the
// best candidate value for field, its score, and whether any candidate
// qualified. All selectors are scanned; a later selector can beat an
// earlier one, but ties keep the first candidate found. Hidden nodes
// and values shorter than the spec's minimum length never qualify.
//
// For the full-content field the winning node's inner markup, cleaned,
// replaces the plain text when it turns out strictly longer. Images
// yield their src (or lazy-load equivalent), links their href, and
// dates their datetime attribute before falling back to text.
func SelectBest(scope *goquery.Selection, field string, spec scrape.SelectorSpec) (string, int, bool) {
	if scope == nil || spec.Empty() {
		return "", 0, false
	}

	var (
		best      string
		bestNode  *goquery.Selection
		bestScore = -1
	)

	for _, selector := range spec.Selectors {
		scope.Find(selector).Each(func(_ int, node *goquery.Selection) {
			if nodeHidden(node) {
				return
			}
			value := candidateValue(node, field)
			if value == "" {
				return
			}
			if spec.MinLength > 0 && len(value) < spec.MinLength {
				return
			}

			score := 0
			if fieldScored(field) {
				score = Score(node, selector, field)
			}
			if score > bestScore {
				best, bestNode, bestScore = value, node, score
			}
		})
	}

	if bestScore < 0 {
		return "", 0, false
	}

	if field == scrape.FieldFullContent && bestNode != nil {
		if markup, err := bestNode.Html(); err == nil {
			if cleaned := CleanText(markup); len(cleaned) > len(best) {
				best = cleaned
			}
		}
	}
	return best, bestScore, true
}

// candidateValue extracts the raw value a node offers for a field.
func candidateValue(node *goquery.Selection, field string) string {
	switch field {
	case scrape.FieldLink:
		return strings.TrimSpace(node.AttrOr("href", ""))

	case scrape.FieldImage:
		if src := strings.TrimSpace(node.AttrOr("src", "")); src != "" {
			return src
		}
		if src := strings.TrimSpace(node.AttrOr("data-src", "")); src != "" {
			return src
		}
		for _, attr := range []string{"srcset", "data-srcset"} {
			set := node.AttrOr(attr, "")
			if set == "" {
				continue
			}
			first := strings.Split(set, ",")[0]
			if fields := strings.Fields(first); len(fields) > 0 {
				return fields[0]
			}
		}
		return ""

	case scrape.FieldDate:
		if dt := strings.TrimSpace(node.AttrOr("datetime", "")); dt != "" {
			return dt
		}
		return CleanText(node.Text())

	default:
		return CleanText(node.Text())
	}
}

// nodeHidden reports whether a node is styled invisible inline.
func nodeHidden(node *goquery.Selection) bool {
	style, ok := node.Attr("style")
	if !ok {
		return false
	}
	style = strings.ReplaceAll(strings.ToLower(style), " ", "")
	return strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden")
}
