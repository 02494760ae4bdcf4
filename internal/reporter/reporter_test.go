package reporter

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/actionsum/autotrack/internal/config"
	"github.com/actionsum/autotrack/internal/ledger"
	"github.com/actionsum/autotrack/internal/models"
)

type staticEntries []*ledger.Entry

func (s staticEntries) EntriesSince(ctx context.Context, since time.Time) ([]*ledger.Entry, error) {
	var out []*ledger.Entry
	for _, e := range s {
		if !e.Start.Before(since) {
			out = append(out, e)
		}
	}
	return out, nil
}

func utc(day, hour, min int) time.Time {
	return time.Date(2024, time.March, day, hour, min, 0, 0, time.UTC)
}

func entry(id int64, start time.Time, end *time.Time) *ledger.Entry {
	return &ledger.Entry{ID: id, Category: "Work", Activity: "Work", Start: start, End: end}
}

func ptr(t time.Time) *time.Time { return &t }

func newTestReporter() *Reporter {
	cfg := config.Default()
	cfg.Report.TimeZone = "UTC"

	entries := staticEntries{
		entry(1, utc(10, 22, 0), ptr(utc(10, 23, 0))), // Sunday, before the week
		entry(2, utc(11, 23, 0), ptr(utc(12, 1, 0))),  // crosses midnight
		entry(3, utc(12, 9, 0), ptr(utc(12, 10, 30))),
		entry(4, utc(13, 9, 0), nil), // still running
	}

	// Wednesday noon
	return New(cfg, entries).WithClock(func() time.Time { return utc(13, 12, 0) })
}

func TestGenerateWeekReport(t *testing.T) {
	r := newTestReporter()

	report, err := r.GenerateReport(context.Background(), "week")
	require.NoError(t, err)

	assert.Equal(t, utc(11, 0, 0), report.Period.Start)
	assert.Equal(t, utc(18, 0, 0), report.Period.End)

	require.Len(t, report.Days, 3)
	assert.Equal(t, models.DaySummary{Day: "2024-03-11", TotalSeconds: 3600, TotalHours: 1, EntryCount: 1}, report.Days[0])
	assert.Equal(t, models.DaySummary{Day: "2024-03-12", TotalSeconds: 9000, TotalHours: 2.5, EntryCount: 2}, report.Days[1])
	assert.Equal(t, models.DaySummary{Day: "2024-03-13", TotalSeconds: 10800, TotalHours: 3, EntryCount: 1, Open: true}, report.Days[2])

	assert.Equal(t, int64(23400), report.TotalSeconds)
	assert.InDelta(t, 6.5, report.TotalHours, 0.0001)
	assert.InDelta(t, 390.0, report.TotalMinutes, 0.0001)
}

func TestGenerateDayReport(t *testing.T) {
	r := newTestReporter()

	report, err := r.GenerateReport(context.Background(), "today")
	require.NoError(t, err)

	require.Len(t, report.Days, 1)
	assert.Equal(t, "2024-03-13", report.Days[0].Day)
	assert.Equal(t, int64(10800), report.TotalSeconds)
}

func TestGenerateMonthReport(t *testing.T) {
	r := newTestReporter()

	report, err := r.GenerateReport(context.Background(), "month")
	require.NoError(t, err)

	assert.Equal(t, utc(1, 0, 0), report.Period.Start)
	require.Len(t, report.Days, 4)
	assert.Equal(t, "2024-03-10", report.Days[0].Day)
	assert.Equal(t, int64(3600+23400), report.TotalSeconds)
}

func TestGenerateReportInvalidPeriod(t *testing.T) {
	_, err := newTestReporter().GenerateReport(context.Background(), "fortnight")
	assert.Error(t, err)
}

func TestFormatReportText(t *testing.T) {
	r := newTestReporter()
	report, err := r.GenerateReport(context.Background(), "week")
	require.NoError(t, err)

	text := r.FormatReportText(report)
	assert.Contains(t, text, "Work Report - week")
	assert.Contains(t, text, "Total Time: 6h30m")
	assert.Contains(t, text, "2024-03-13")
	assert.Contains(t, text, "3h00m*")

	empty := r.FormatReportText(&models.Report{Period: models.ReportPeriod{Type: "day"}})
	assert.Contains(t, empty, "No work recorded")
}

func TestFormatReportJSON(t *testing.T) {
	r := newTestReporter()
	report, err := r.GenerateReport(context.Background(), "day")
	require.NoError(t, err)

	out, err := r.FormatReportJSON(report)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.EqualValues(t, 10800, decoded["total_seconds"])
	assert.Len(t, decoded["days"], 1)
}
