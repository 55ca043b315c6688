// Package extract implements the goquery record extractors for the two
// race page variants and the dog statistics pages.
package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/kmorey/greyhound-pipeline/internal/crawl"
)

// Markup anchors for the SPA's race views. Both views render the same
// runner block component inside different containers.
const (
	cardContainerSelector    = "div#sortContainer"
	resultsContainerSelector = "div#results-race-view"
	runnerBlockSelector      = "div.runnerBlock"
	titleSelector            = "span#title-circle-container"
)

var (
	sexMarkerPattern = regexp.MustCompile(`\s*\([MW]\)\s*`)
	trapClassPattern = regexp.MustCompile(`trap(\d+)`)
	gradePattern     = regexp.MustCompile(`\b([A-Z]\d+)\b`)
	distancePattern  = regexp.MustCompile(`\b(\d+m)\b`)
	formPattern      = regexp.MustCompile(`Form:\s*([A-Z0-9T]+)`)
	forecastPattern  = regexp.MustCompile(`SP Forecast:\s*([0-9/]+)`)
	trainerPattern   = regexp.MustCompile(`Tnr:\s*([A-Za-z\s]+)`)
)

// CardExtractor reads runner rows off a race-card page.
type CardExtractor struct {
	logger *zap.Logger
}

// NewCardExtractor builds a card-page extractor.
func NewCardExtractor(logger *zap.Logger) *CardExtractor {
	return &CardExtractor{logger: logger}
}

// Extract returns one record per runner block in the card container.
func (e *CardExtractor) Extract(doc *goquery.Document, target crawl.RaceTarget) []crawl.RunnerRecord {
	return runnersIn(doc, cardContainerSelector, target, e.logger)
}

func runnersIn(doc *goquery.Document, container string, target crawl.RaceTarget, logger *zap.Logger) []crawl.RunnerRecord {
	grade, distance := titleGradeAndDistance(doc)

	var records []crawl.RunnerRecord
	doc.Find(container).Find(runnerBlockSelector).Each(func(_ int, block *goquery.Selection) {
		name := strings.TrimSpace(block.Find("strong").First().Text())
		if name == "" {
			return
		}
		// Drop the sex marker the site appends to some names.
		name = strings.TrimSpace(sexMarkerPattern.ReplaceAllString(name, ""))

		infoText := block.Find("div.info").Text()
		records = append(records, crawl.RunnerRecord{
			Track:         target.Track,
			RaceNumber:    target.RaceNumber,
			RaceTime:      target.RaceTime,
			Grade:         grade,
			Distance:      distance,
			Trap:          trapFromBlock(block),
			DogName:       name,
			Form:          matchOrUnknown(formPattern, infoText),
			ForecastPrice: matchOrUnknown(forecastPattern, infoText),
			Trainer:       matchOrUnknown(trainerPattern, infoText),
		})
	})
	logger.Debug("runner blocks extracted",
		zap.String("track", target.Track),
		zap.String("race", target.RaceNumber),
		zap.Int("count", len(records)),
	)
	return records
}

// titleGradeAndDistance reads the race grade and distance from the title
// circle, e.g. "A5 480m".
func titleGradeAndDistance(doc *goquery.Document) (grade, distance string) {
	title := doc.Find(titleSelector).Text()
	return matchOrUnknown(gradePattern, title), matchOrUnknown(distancePattern, title)
}

// trapFromBlock pulls the trap number from the block's trap icon class.
func trapFromBlock(block *goquery.Selection) string {
	icon := block.Find(`i[class*="trap"]`).First()
	class, ok := icon.Attr("class")
	if !ok {
		return crawl.Unknown
	}
	if m := trapClassPattern.FindStringSubmatch(class); m != nil {
		return m[1]
	}
	return crawl.Unknown
}

func matchOrUnknown(re *regexp.Regexp, text string) string {
	if m := re.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return crawl.Unknown
}
