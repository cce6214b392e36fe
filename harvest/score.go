package harvest

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/pevans/newsreel/scrape"
)

// noiseAncestorSelector matches page regions whose descendants are
// usually site chrome rather than article copy.
const noiseAncestorSelector = `nav, footer, aside, ` +
	`[class*="sidebar"], [id*="sidebar"], ` +
	`[class*="comment"], [id*="comment"], ` +
	`[class*="nav"], [class*="menu"], [class*="footer"]`

const (
	headingBonus     = 30
	subheadingBonus  = 15
	paragraphBonus   = 5
	titleHintBonus   = 20
	contentHintBonus = 10
	noisePenalty     = 50
	linkPenalty      = 10
)

// Score rates node as a candidate for field, given the selector that
// matched it. The base score is the cleaned text length; heading and
// paragraph tags earn a bonus, as do selectors whose text hints at the
// purpose of the field. Nodes buried in navigation or comment regions
// are penalized, as are bare hyperlinks offered for anything but a
// link or title. Scores never go below zero, and a node that cannot be
// scored scores zero rather than aborting the scan.
func Score(node *goquery.Selection, selector, field string) (score int) {
	defer func() {
		if r := recover(); r != nil {
			score = 0
		}
	}()

	if node == nil || node.Length() == 0 {
		return 0
	}
	name := goquery.NodeName(node)
	if name == "" || strings.HasPrefix(name, "#") {
		return 0
	}

	score = len(CleanText(node.Text()))

	switch name {
	case "h1", "h2", "h3":
		score += headingBonus
	case "h4", "h5", "h6":
		score += subheadingBonus
	case "p":
		score += paragraphBonus
	}

	hint := strings.ToLower(selector)
	if strings.Contains(hint, "title") || strings.Contains(hint, "headline") {
		score += titleHintBonus
	}
	if strings.Contains(hint, "content") || strings.Contains(hint, "body") || strings.Contains(hint, "article") {
		score += contentHintBonus
	}

	if node.ParentsFiltered(noiseAncestorSelector).Length() > 0 {
		score -= noisePenalty
	}
	if name == "a" && field != scrape.FieldLink && field != scrape.FieldTitle {
		score -= linkPenalty
	}

	if score < 0 {
		score = 0
	}
	return score
}
