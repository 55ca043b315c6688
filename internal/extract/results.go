package extract

import (
	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/kmorey/greyhound-pipeline/internal/crawl"
)

// ResultsExtractor reads runner rows off a historical results page. The
// results view reuses the card view's runner block component inside the
// results container, so the row parsing is shared.
type ResultsExtractor struct {
	logger *zap.Logger
}

// NewResultsExtractor builds a results-page extractor.
func NewResultsExtractor(logger *zap.Logger) *ResultsExtractor {
	return &ResultsExtractor{logger: logger}
}

// Extract returns one record per runner block in the results container.
func (e *ResultsExtractor) Extract(doc *goquery.Document, target crawl.RaceTarget) []crawl.RunnerRecord {
	return runnersIn(doc, resultsContainerSelector, target, e.logger)
}
