package extract

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const statsFixture = `<html><body>
<h2>Fast Fern</h2>
<table>
<tr><th>Runs</th><th>Wins</th><th>Win %</th></tr>
<tr><td>42</td><td>7</td><td>16.7</td></tr>
</table>
<table>
<tr><th>Date</th><th>Track</th><th>Trap</th><th>Grade</th><th>Distance</th><th>Going</th><th>Runners</th><th>Position</th><th>Btn</th><th>Time</th><th>SP</th><th>Comment</th></tr>
<tr><td>01/08/25</td><td>Hove</td><td><img src="./images/trap_3.jpg"></td><td>A5</td><td>480</td><td>-10</td><td>6</td><td>1st</td><td>2.50</td><td>28.81</td><td>5/2</td><td>EP, Led</td></tr>
<tr><td>25/07/25</td><td>Hove</td><td><img src="./images/trap_1.jpg"></td><td>A5</td><td>480</td><td>N</td><td>6</td><td>3rd</td><td>4.25</td><td>29.01</td><td>7/2</td><td>Crd1</td></tr>
<tr><td>AVERAGE</td><td></td><td></td><td></td><td></td><td></td><td></td><td></td><td>28.91</td><td></td><td></td></tr>
</table>
</body></html>`

func TestStatsParserReadsSummaryAndHistory(t *testing.T) {
	parser := NewStatsParser(zap.NewNop())

	stats, err := parser.Parse(statsFixture, "Fast Fern")
	require.NoError(t, err)

	require.Equal(t, "Fast Fern", stats.Key)
	require.Equal(t, 42, stats.Runs)
	require.Equal(t, 7, stats.Wins)
	require.InDelta(t, 16.7, stats.WinPct, 0.001)
	require.False(t, stats.NotFound)

	// The AVERAGE aggregate row is not a race.
	require.Len(t, stats.History, 2)

	first := stats.History[0]
	require.Equal(t, "01/08/25", first.Date)
	require.Equal(t, "Hove", first.Track)
	require.Equal(t, "3", first.Trap, "trap read from the icon path")
	require.Equal(t, "A5", first.Grade)
	require.Equal(t, "480", first.Distance)
	require.Equal(t, "-10", first.Going)
	require.Equal(t, "6", first.Runners)
	require.Equal(t, "1st", first.Position)
	require.Equal(t, "2.50", first.Beaten)
	require.Equal(t, "28.81", first.Time)
	require.Equal(t, "5/2", first.SP)
	require.Equal(t, "EP, Led", first.Comment)

	require.Equal(t, "1", stats.History[1].Trap)
}

func TestStatsParserHeadersInFirstRowCells(t *testing.T) {
	// Some renderings carry the header row as plain td cells.
	const page = `<html><body><table>
<tr><td>Runs</td><td>Wins</td><td>Win %</td></tr>
<tr><td>10</td><td>2</td><td>20.0</td></tr>
</table></body></html>`
	parser := NewStatsParser(zap.NewNop())

	stats, err := parser.Parse(page, "Swift Sal")
	require.NoError(t, err)
	require.Equal(t, 10, stats.Runs)
	require.Equal(t, 2, stats.Wins)
	require.InDelta(t, 20.0, stats.WinPct, 0.001)
	require.Empty(t, stats.History)
}

func TestStatsParserNoTables(t *testing.T) {
	parser := NewStatsParser(zap.NewNop())

	stats, err := parser.Parse("<html><body><p>no data</p></body></html>", "Ernie")
	require.NoError(t, err)
	require.Equal(t, "Ernie", stats.Key)
	require.Zero(t, stats.Runs)
	require.Empty(t, stats.History)
}

func TestStatsParserShortHistoryRowsSkipped(t *testing.T) {
	const page = `<html><body><table>
<tr><th>Date</th><th>Track</th><th>Trap</th><th>Grade</th><th>Distance</th><th>Going</th><th>Runners</th><th>Position</th><th>Btn</th><th>Time</th></tr>
<tr><td>01/08/25</td><td>Hove</td></tr>
<tr><td>02/08/25</td><td>Hove</td><td></td><td>A5</td><td>480</td><td>N</td><td>6</td><td>2nd</td><td>1.00</td><td>28.95</td></tr>
</table></body></html>`
	parser := NewStatsParser(zap.NewNop())

	stats, err := parser.Parse(page, "Dot Dash")
	require.NoError(t, err)
	require.Len(t, stats.History, 1)
	require.Equal(t, "02/08/25", stats.History[0].Date)
	require.Empty(t, stats.History[0].Trap)
	require.Empty(t, stats.History[0].SP, "missing trailing cells read as empty")
}
