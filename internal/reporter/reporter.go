package reporter

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/actionsum/autotrack/internal/config"
	"github.com/actionsum/autotrack/internal/ledger"
	"github.com/actionsum/autotrack/internal/models"
	"github.com/actionsum/autotrack/pkg/utils"
)

// EntrySource lists ledger entries started at or after a given time.
type EntrySource interface {
	EntriesSince(ctx context.Context, since time.Time) ([]*ledger.Entry, error)
}

// Reporter handles report generation
type Reporter struct {
	config  *config.Config
	entries EntrySource
	now     func() time.Time
}

// New creates a new reporter
func New(cfg *config.Config, entries EntrySource) *Reporter {
	return &Reporter{
		config:  cfg,
		entries: entries,
		now:     time.Now,
	}
}

// WithClock replaces the reporter's notion of now.
func (r *Reporter) WithClock(now func() time.Time) *Reporter {
	r.now = now
	return r
}

// GenerateReport sums worked time per day for the specified period.
// Entries still running are counted up to now, and entries crossing
// midnight are split between the days they cover.
func (r *Reporter) GenerateReport(ctx context.Context, periodType string) (*models.Report, error) {
	loc, err := r.config.Location()
	if err != nil {
		return nil, err
	}

	now := r.now().In(loc)
	period, err := Period(periodType, now)
	if err != nil {
		return nil, err
	}

	// Look one day back so that entries running across the period start
	// are still counted.
	entries, err := r.entries.EntriesSince(ctx, period.Start.AddDate(0, 0, -1))
	if err != nil {
		return nil, errors.Wrap(err, "failed to get entries")
	}

	limit := period.End
	if now.Before(limit) {
		limit = now
	}

	days := make(map[string]*models.DaySummary)
	for _, e := range entries {
		start := e.Start.In(loc)
		if start.Before(period.Start) {
			start = period.Start
		}
		end := limit
		if e.End != nil && e.End.Before(end) {
			end = e.End.In(loc)
		}

		for start.Before(end) {
			dayStart := ledger.StartOfDay(start)
			next := dayStart.AddDate(0, 0, 1)
			segEnd := end
			if next.Before(segEnd) {
				segEnd = next
			}

			key := dayStart.Format("2006-01-02")
			summary, ok := days[key]
			if !ok {
				summary = &models.DaySummary{Day: key}
				days[key] = summary
			}
			summary.TotalSeconds += int64(segEnd.Sub(start) / time.Second)
			summary.EntryCount++
			if e.Open() && !segEnd.Before(end) {
				summary.Open = true
			}

			start = segEnd
		}
	}

	summaries := make([]models.DaySummary, 0, len(days))
	var totalSeconds int64
	for _, s := range days {
		s.TotalHours = float64(s.TotalSeconds) / 3600.0
		totalSeconds += s.TotalSeconds
		summaries = append(summaries, *s)
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].Day < summaries[j].Day })

	return &models.Report{
		Period:       *period,
		Days:         summaries,
		TotalSeconds: totalSeconds,
		TotalMinutes: float64(totalSeconds) / 60.0,
		TotalHours:   float64(totalSeconds) / 3600.0,
		GeneratedAt:  now,
	}, nil
}

// Period calculates the time range of a day, week or month report
// containing now.
func Period(periodType string, now time.Time) (*models.ReportPeriod, error) {
	var start, end time.Time

	switch periodType {
	case "day", "today":
		start = ledger.StartOfDay(now)
		end = start.AddDate(0, 0, 1)

	case "week":
		// Start of week (Monday)
		weekday := int(now.Weekday())
		if weekday == 0 {
			weekday = 7 // Sunday = 7
		}
		start = ledger.StartOfDay(now).AddDate(0, 0, -(weekday - 1))
		end = start.AddDate(0, 0, 7)

	case "month":
		start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		end = start.AddDate(0, 1, 0)

	default:
		return nil, errors.Errorf("invalid period type: %s (valid: day, week, month)", periodType)
	}

	return &models.ReportPeriod{
		Start: start,
		End:   end,
		Type:  periodType,
	}, nil
}

// FormatReportText formats the report as human-readable text
func (r *Reporter) FormatReportText(report *models.Report) string {
	output := fmt.Sprintf("Work Report - %s\n", report.Period.Type)
	output += fmt.Sprintf("Period: %s to %s\n",
		report.Period.Start.Format("2006-01-02 15:04"),
		report.Period.End.Format("2006-01-02 15:04"))
	output += fmt.Sprintf("Total Time: %s (%.2fh)\n\n",
		utils.FormatDuration(time.Duration(report.TotalSeconds)*time.Second), report.TotalHours)

	if len(report.Days) == 0 {
		output += "No work recorded for this period.\n"
		return output
	}

	output += fmt.Sprintf("%-12s %10s %10s %8s\n", "Day", "Worked", "Hours", "Entries")
	output += fmt.Sprintf("%s\n", "--------------------------------------------")

	for _, day := range report.Days {
		worked := utils.FormatDuration(time.Duration(day.TotalSeconds) * time.Second)
		if day.Open {
			worked += "*"
		}
		output += fmt.Sprintf("%-12s %10s %10.2f %8d\n", day.Day, worked, day.TotalHours, day.EntryCount)
	}

	return output
}

// FormatReportJSON formats the report as JSON
func (r *Reporter) FormatReportJSON(report *models.Report) (string, error) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal JSON")
	}
	return string(data), nil
}
