package extract

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kmorey/greyhound-pipeline/internal/crawl"
)

const cardFixture = `<html><body>
<span id="title-circle-container">11:08 A5 480m</span>
<div id="sortContainer">
  <div class="runnerBlock">
    <i class="dogIcon trap1"></i>
    <strong>Fast Fern (W)</strong>
    <div class="info"><em>Form:</em> 12T345 <em>SP Forecast:</em> 5/2 <em>Tnr:</em> J Smith</div>
  </div>
  <div class="runnerBlock">
    <i class="dogIcon trap4"></i>
    <strong>Swift Sal</strong>
    <div class="info"><em>Form:</em> 21116 <em>SP Forecast:</em> 11/4 <em>Tnr:</em> P Jones</div>
  </div>
  <div class="runnerBlock">
    <strong>Brindle Bob (M)</strong>
  </div>
  <div class="runnerBlock">
    <i class="dogIcon trap6"></i>
  </div>
</div>
</body></html>`

func parse(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

func cardTarget() crawl.RaceTarget {
	return crawl.RaceTarget{Track: "Hove", RaceNumber: "1", RaceTime: "11:08", Path: "#card/hove-1"}
}

func TestCardExtractReadsRunnerBlocks(t *testing.T) {
	extractor := NewCardExtractor(zap.NewNop())

	records := extractor.Extract(parse(t, cardFixture), cardTarget())
	// The block without a dog name is dropped; the nameless icon block too.
	require.Len(t, records, 3)

	first := records[0]
	require.Equal(t, "Hove", first.Track)
	require.Equal(t, "1", first.RaceNumber)
	require.Equal(t, "11:08", first.RaceTime)
	require.Equal(t, "A5", first.Grade)
	require.Equal(t, "480m", first.Distance)
	require.Equal(t, "1", first.Trap)
	require.Equal(t, "Fast Fern", first.DogName, "sex marker stripped")
	require.Equal(t, "12T345", first.Form)
	require.Equal(t, "5/2", first.ForecastPrice)
	require.Equal(t, "J Smith", first.Trainer)

	require.Equal(t, "4", records[1].Trap)
	require.Equal(t, "Swift Sal", records[1].DogName)
}

func TestCardExtractDegradesToUnknown(t *testing.T) {
	extractor := NewCardExtractor(zap.NewNop())

	records := extractor.Extract(parse(t, cardFixture), cardTarget())
	require.Len(t, records, 3)

	// Brindle Bob has no trap icon and no info block.
	bob := records[2]
	require.Equal(t, "Brindle Bob", bob.DogName)
	require.Equal(t, crawl.Unknown, bob.Trap)
	require.Equal(t, crawl.Unknown, bob.Form)
	require.Equal(t, crawl.Unknown, bob.ForecastPrice)
	require.Equal(t, crawl.Unknown, bob.Trainer)
}

func TestCardExtractMissingTitle(t *testing.T) {
	const page = `<html><body><div id="sortContainer">
<div class="runnerBlock"><i class="trap2"></i><strong>Dot Dash</strong></div>
</div></body></html>`
	extractor := NewCardExtractor(zap.NewNop())

	records := extractor.Extract(parse(t, page), cardTarget())
	require.Len(t, records, 1)
	require.Equal(t, crawl.Unknown, records[0].Grade)
	require.Equal(t, crawl.Unknown, records[0].Distance)
	require.Equal(t, "2", records[0].Trap)
}

func TestCardExtractIgnoresResultsView(t *testing.T) {
	const page = `<html><body><div id="results-race-view">
<div class="runnerBlock"><strong>Fast Fern</strong></div>
</div></body></html>`
	extractor := NewCardExtractor(zap.NewNop())

	require.Empty(t, extractor.Extract(parse(t, page), cardTarget()))
}

func TestResultsExtractReadsResultsView(t *testing.T) {
	const page = `<html><body>
<span id="title-circle-container">D2 270m</span>
<div id="results-race-view">
  <div class="runnerBlock">
    <i class="dogIcon trap3"></i>
    <strong>Ernie</strong>
    <div class="info"><em>Form:</em> 65432 <em>SP Forecast:</em> 7/1 <em>Tnr:</em> M Brown</div>
  </div>
</div>
</body></html>`
	extractor := NewResultsExtractor(zap.NewNop())

	records := extractor.Extract(parse(t, page), cardTarget())
	require.Len(t, records, 1)
	require.Equal(t, "Ernie", records[0].DogName)
	require.Equal(t, "3", records[0].Trap)
	require.Equal(t, "D2", records[0].Grade)
	require.Equal(t, "270m", records[0].Distance)

	// The card extractor sees nothing on this page.
	require.Empty(t, NewCardExtractor(zap.NewNop()).Extract(parse(t, page), cardTarget()))
}
