package crawl

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDateRangeInclusiveAscending(t *testing.T) {
	r, err := NewDateRange("2025-09-05", "2025-09-07")
	require.NoError(t, err)
	require.Equal(t, []string{"2025-09-05", "2025-09-06", "2025-09-07"}, r.Dates())
	require.Equal(t, "2025-09-05_to_2025-09-07", r.Label())
}

func TestDateRangeSingleDateFillsBothBounds(t *testing.T) {
	tests := []struct {
		name       string
		start, end string
	}{
		{"both supplied", "2025-09-05", "2025-09-05"},
		{"start only", "2025-09-05", ""},
		{"end only", "", "2025-09-05"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewDateRange(tt.start, tt.end)
			require.NoError(t, err)
			require.Equal(t, []string{"2025-09-05"}, r.Dates())
			require.Equal(t, "2025-09-05", r.Label())
		})
	}
}

func TestDateRangeMonthBoundary(t *testing.T) {
	r, err := NewDateRange("2025-08-30", "2025-09-02")
	require.NoError(t, err)
	require.Equal(t, []string{"2025-08-30", "2025-08-31", "2025-09-01", "2025-09-02"}, r.Dates())
}

func TestDateRangeErrors(t *testing.T) {
	tests := []struct {
		name       string
		start, end string
	}{
		{"no dates at all", "", ""},
		{"bad start format", "05/09/2025", "2025-09-07"},
		{"bad end format", "2025-09-05", "tomorrow"},
		{"end before start", "2025-09-07", "2025-09-05"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDateRange(tt.start, tt.end)
			require.Error(t, err)
		})
	}
}
