package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/kmorey/greyhound-pipeline/internal/dogstats"
)

var trapImagePattern = regexp.MustCompile(`trap_(\d+)\.`)

// StatsParser reads the summary and race history tables off a dog's
// statistics page. The page carries several tables with no ids, so both
// are located by their header text.
type StatsParser struct {
	logger *zap.Logger
}

// NewStatsParser builds a statistics page parser.
func NewStatsParser(logger *zap.Logger) *StatsParser {
	return &StatsParser{logger: logger}
}

// Parse implements dogstats.Parser.
func (p *StatsParser) Parse(html string, key string) (dogstats.DogStats, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return dogstats.DogStats{}, fmt.Errorf("parse stats page for %s: %w", key, err)
	}

	stats := dogstats.DogStats{Key: key}
	summaryDone, historyDone := false, false
	doc.Find("table").Each(func(_ int, table *goquery.Selection) {
		headers := tableHeaders(table)
		switch {
		case !summaryDone && containsAll(headers, "Runs", "Wins", "Win %"):
			stats.Runs, stats.Wins, stats.WinPct = summaryRow(table)
			summaryDone = true
		case !historyDone && containsAll(headers, "Date", "Track", "Grade"):
			stats.History = historyRows(table)
			historyDone = true
		}
	})

	p.logger.Debug("stats page parsed",
		zap.String("dog", key),
		zap.Int("runs", stats.Runs),
		zap.Int("history_rows", len(stats.History)),
	)
	return stats, nil
}

// tableHeaders returns the table's header texts, falling back to the
// first row's cells when the table has no th elements.
func tableHeaders(table *goquery.Selection) []string {
	cells := table.Find("th")
	if cells.Length() == 0 {
		cells = table.Find("tr").First().Find("td")
	}
	var headers []string
	cells.Each(func(_ int, cell *goquery.Selection) {
		headers = append(headers, strings.TrimSpace(cell.Text()))
	})
	return headers
}

func containsAll(haystack []string, wanted ...string) bool {
	set := make(map[string]struct{}, len(haystack))
	for _, h := range haystack {
		set[h] = struct{}{}
	}
	for _, w := range wanted {
		if _, ok := set[w]; !ok {
			return false
		}
	}
	return true
}

// summaryRow reads the first data row of the Runs/Wins/Win % table.
func summaryRow(table *goquery.Selection) (runs, wins int, winPct float64) {
	row := table.Find("tr").Eq(1)
	cells := row.Find("td")
	if cells.Length() < 3 {
		return 0, 0, 0
	}
	runs, _ = strconv.Atoi(strings.TrimSpace(cells.Eq(0).Text()))
	wins, _ = strconv.Atoi(strings.TrimSpace(cells.Eq(1).Text()))
	winPct, _ = strconv.ParseFloat(strings.TrimSpace(cells.Eq(2).Text()), 64)
	return runs, wins, winPct
}

// historyRows reads the race history table. The trailing AVERAGE row is
// an aggregate the site appends, not a race; it is skipped.
func historyRows(table *goquery.Selection) []dogstats.HistoryRow {
	var rows []dogstats.HistoryRow
	table.Find("tr").Each(func(i int, row *goquery.Selection) {
		if i == 0 {
			return
		}
		cells := row.Find("td")
		if cells.Length() < 10 {
			return
		}
		if strings.TrimSpace(cells.Eq(0).Text()) == "AVERAGE" {
			return
		}
		rows = append(rows, dogstats.HistoryRow{
			Date:     cellText(cells, 0),
			Track:    cellText(cells, 1),
			Trap:     trapFromImage(cells.Eq(2)),
			Grade:    cellText(cells, 3),
			Distance: cellText(cells, 4),
			Going:    cellText(cells, 5),
			Runners:  cellText(cells, 6),
			Position: cellText(cells, 7),
			Beaten:   cellText(cells, 8),
			Time:     cellText(cells, 9),
			SP:       cellText(cells, 10),
			Comment:  cellText(cells, 11),
		})
	})
	return rows
}

func cellText(cells *goquery.Selection, i int) string {
	if i >= cells.Length() {
		return ""
	}
	return strings.TrimSpace(cells.Eq(i).Text())
}

// trapFromImage pulls the trap number out of the cell's trap icon path,
// e.g. "./images/trap_1.jpg".
func trapFromImage(cell *goquery.Selection) string {
	src, ok := cell.Find("img").First().Attr("src")
	if !ok {
		return ""
	}
	if m := trapImagePattern.FindStringSubmatch(src); m != nil {
		return m[1]
	}
	return ""
}
