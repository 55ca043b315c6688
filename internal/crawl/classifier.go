package crawl

// PageKind is the classification of a loaded page.
type PageKind int

// Page kinds, distinguished by marker-element presence.
const (
	PageNotReady PageKind = iota
	PageCard
	PageResults
)

func (k PageKind) String() string {
	switch k {
	case PageCard:
		return "card"
	case PageResults:
		return "results"
	default:
		return "not-ready"
	}
}

// Classifier decides what kind of page the session is looking at, by
// presence of distinguishing markers. Selectors are configuration because
// they track the site's volatile markup, not this package's design.
type Classifier struct {
	cardSelector    string
	resultsSelector string
}

// NewClassifier builds a classifier with the given marker selectors.
func NewClassifier(cardSelector, resultsSelector string) *Classifier {
	return &Classifier{cardSelector: cardSelector, resultsSelector: resultsSelector}
}

// Classify inspects the page source. Unparseable HTML classifies as
// not-ready, which the crawl loop treats as "refresh once, then skip".
func (c *Classifier) Classify(html string) PageKind {
	doc, err := parseDocument(html)
	if err != nil {
		return PageNotReady
	}
	if c.resultsSelector != "" && doc.Find(c.resultsSelector).Length() > 0 {
		return PageResults
	}
	if c.cardSelector != "" && doc.Find(c.cardSelector).Length() > 0 {
		return PageCard
	}
	return PageNotReady
}
